package llm

import (
	"math"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// TruncationMarker is appended to context cut by TruncateContext.
const TruncationMarker = "\n\n[...context truncated...]"

const (
	charsPerToken          = 4.0
	charsPerTokenDiacritic = 2.5
	diacriticRatio         = 0.15
)

// CharsPerToken returns the estimated characters per token of text: 2.5 when more
// than 15% of its letters carry diacritics (Vietnamese and similar), 4 otherwise.
func CharsPerToken(text string) float64 {
	var letters, marked int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if hasDiacritic(r) {
			marked++
		}
	}
	if letters > 0 && float64(marked)/float64(letters) > diacriticRatio {
		return charsPerTokenDiacritic
	}
	return charsPerToken
}

// hasDiacritic reports whether r decomposes into a base letter plus combining marks.
func hasDiacritic(r rune) bool {
	switch r {
	case 'đ', 'Đ', 'ø', 'Ø', 'ł', 'Ł', 'ħ', 'Ħ':
		// stroked letters have no canonical decomposition
		return true
	}
	if r < utf8.RuneSelf {
		return false
	}
	return utf8.RuneCountInString(norm.NFD.String(string(r))) > 1
}

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n) / CharsPerToken(text)))
}

// TruncateContext cuts text on a rune boundary so it fits maxTokens and appends
// TruncationMarker. Text already within budget, or maxTokens <= 0, is returned unchanged.
func TruncateContext(text string, maxTokens int) string {
	if maxTokens <= 0 || EstimateTokens(text) <= maxTokens {
		return text
	}
	maxChars := int(float64(maxTokens) * CharsPerToken(text))
	runes := []rune(text)
	if maxChars >= len(runes) {
		return text
	}
	return string(runes[:maxChars]) + TruncationMarker
}
