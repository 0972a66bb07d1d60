package rag

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tk     *tiktoken.Tiktoken
	tkErr  error
	tkOnce sync.Once
)

func getTokenizer() (*tiktoken.Tiktoken, error) {
	tkOnce.Do(func() {
		tk, tkErr = tiktoken.GetEncoding("cl100k_base")
	})
	return tk, tkErr
}

// TruncateTokens cuts text to at most maxTokens cl100k tokens. If the
// tokenizer cannot load, it falls back to a byte cut on a rune boundary.
func TruncateTokens(text string, maxTokens int) string {
	// every token covers at least one byte
	if maxTokens <= 0 || len(text) <= maxTokens {
		return text
	}

	enc, err := getTokenizer()
	if err != nil {
		return cutBytes(text, maxTokens)
	}

	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return enc.Decode(tokens[:maxTokens])
}

func cutBytes(text string, n int) string {
	if len(text) <= n {
		return text
	}
	last := 0
	for i := range text {
		if i > n {
			break
		}
		last = i
	}
	return text[:last]
}
