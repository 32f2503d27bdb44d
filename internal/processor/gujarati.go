package processor

import (
	"regexp"
	"strings"
)

// Gujarati Unicode block
const (
	gujaratiFirst = '\u0A80'
	gujaratiLast  = '\u0AFF'
)

// GujaratiValidityThreshold is the share of Gujarati-block runes above which
// OCR output is accepted. It filters out near-empty OCR noise; it is not a
// language detector.
var GujaratiValidityThreshold = 0.1

var (
	whitespaceRe = regexp.MustCompile(`[\s\p{Z}]+`)
	// Anything that is not Gujarati, whitespace, a letter, a digit, underscore
	// or basic punctuation.
	strayCharRe = regexp.MustCompile(`[^\x{0A80}-\x{0AFF}\s\p{L}\p{N}_.,!?():-]`)
)

// Clean normalizes OCR output: whitespace runs become a single space and
// stray symbols are removed.
func Clean(text string) string {
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strayCharRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// IsValidGujarati reports whether more than GujaratiValidityThreshold of the
// trimmed text is in the Gujarati block.
func IsValidGujarati(text string) bool {
	return GujaratiRatio(text) > GujaratiValidityThreshold
}

// GujaratiRatio returns the fraction of runes of the trimmed text that fall in
// the Gujarati block. Empty text has ratio 0.
func GujaratiRatio(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	var total, gujarati int
	for _, r := range text {
		total++
		if isGujarati(r) {
			gujarati++
		}
	}
	return float64(gujarati) / float64(total)
}

func isGujarati(r rune) bool {
	return r >= gujaratiFirst && r <= gujaratiLast
}
