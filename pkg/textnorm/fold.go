// Package textnorm folds user text into a lowercase, diacritics-free form
// so Czech and English keywords match however the user typed them.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldRune lowercases r and strips its combining marks. Runes that
// decompose to nothing but marks are returned unchanged.
func FoldRune(r rune) rune {
	if r < 0x80 {
		return unicode.ToLower(r)
	}
	for _, d := range norm.NFD.String(string(r)) {
		if !unicode.Is(unicode.Mn, d) {
			return unicode.ToLower(d)
		}
	}
	return unicode.ToLower(r)
}

// FoldRunes maps text rune by rune, so index i of the result corresponds to
// index i of []rune(text).
func FoldRunes(text string) []rune {
	src := []rune(text)
	out := make([]rune, len(src))
	for i, r := range src {
		out[i] = FoldRune(r)
	}
	return out
}

// Fold lowercases text and removes diacritics.
func Fold(text string) string {
	// chains keep buffers, one per call
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(stripMarks, text)
	if err != nil {
		out = string(FoldRunes(text))
	}
	return strings.ToLower(out)
}

// Words folds text and splits it on anything that is not a letter or digit.
func Words(text string) []string {
	return strings.FieldsFunc(Fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Normalize folds text and collapses it to single-space separated words.
func Normalize(text string) string {
	return strings.Join(Words(text), " ")
}
