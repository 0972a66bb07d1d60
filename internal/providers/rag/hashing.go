package rag

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/pkg/textnorm"
)

const bigramWeight = 0.5

// HashingProvider is an offline embedder: folded words and word bigrams are
// hashed into signed buckets and the result is L2 normalized. Identical
// text always gives the identical vector, and texts sharing words land
// close to each other.
type HashingProvider struct {
	dims int
}

func NewHashingProvider(dims int) *HashingProvider {
	return &HashingProvider{dims: dims}
}

func (h *HashingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	words := textnorm.Words(text)
	if len(words) == 0 {
		return nil, fmt.Errorf("nothing to embed: %w", core.ErrInvalidInput)
	}

	vec := make([]float64, h.dims)
	for i, w := range words {
		h.add(vec, w, 1)
		if i > 0 {
			h.add(vec, words[i-1]+" "+w, bigramWeight)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, h.dims)
	if norm == 0 {
		// every feature cancelled out; still return a stable unit vector
		out[0] = 1
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (h *HashingProvider) add(vec []float64, feature string, weight float64) {
	hs := fnv.New64a()
	_, _ = hs.Write([]byte(feature))
	sum := hs.Sum64()

	idx := sum % uint64(h.dims)
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}
