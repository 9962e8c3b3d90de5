package search

import (
	"regexp"
	"strings"
)

var reASCIIToken = regexp.MustCompile(`^[a-z0-9]+$`)

// Tokenize lowercases and whitespace-splits the text, then expands every
// non-ASCII token into character bi-grams. The returned bag contains the
// original tokens plus the bi-grams. Bi-grams restore partial matching on
// CJK text where word boundaries carry no whitespace.
func Tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))

	var tokens []string
	for _, field := range fields {
		tokens = append(tokens, field)
		if reASCIIToken.MatchString(field) {
			continue
		}
		tokens = append(tokens, bigrams(field)...)
	}
	return tokens
}

// bigrams returns the rune-level character bi-grams of a token. Tokens of
// one rune yield nothing beyond the original token.
func bigrams(token string) []string {
	runes := []rune(token)
	if len(runes) < 2 {
		return nil
	}
	grams := make([]string, 0, len(runes)-1)
	for i := 0; i < len(runes)-1; i++ {
		grams = append(grams, string(runes[i:i+2]))
	}
	return grams
}
