// Package lang provides a lightweight language detector for the
// ingestion pipeline's detect-language stage. No language-id library
// (whatlanggo, lingua-go, cld3) appears anywhere in the retrieved
// example pack, so this is a small frequency-based heuristic over a
// fixed set of common stopwords, normalized to a BCP-47 tag with
// golang.org/x/text/language the way the rest of the pack normalizes
// locale tags.
package lang

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// stopwords maps a BCP-47 base tag to a set of very common words in
// that language. Detection picks whichever language's stopwords
// appear most often in the sample text.
var stopwords = map[string][]string{
	"en": {"the", "and", "is", "of", "to", "in", "that", "for", "with", "are"},
	"es": {"el", "la", "de", "que", "y", "en", "los", "las", "por", "con"},
	"fr": {"le", "la", "de", "et", "les", "des", "est", "pour", "dans", "que"},
	"de": {"der", "die", "und", "das", "ist", "den", "von", "mit", "für", "ein"},
	"pt": {"o", "a", "de", "que", "e", "do", "da", "em", "para", "com"},
}

// Detect returns the BCP-47 tag of the language most likely spoken in
// text, defaulting to "en" when the sample is too short or no
// stopword set scores above zero.
func Detect(text string) string {
	words := tokenize(text)
	if len(words) == 0 {
		return "en"
	}

	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}

	// Iterate codes in a fixed order so a score tie always resolves
	// the same way across runs.
	codes := make([]string, 0, len(stopwords))
	for code := range stopwords {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	best := "en"
	bestScore := 0
	for _, code := range codes {
		score := 0
		for _, w := range stopwords[code] {
			score += counts[w]
		}
		if score > bestScore {
			bestScore = score
			best = code
		}
	}
	return Normalize(best)
}

// Normalize canonicalizes a raw language code to its BCP-47 base
// form, e.g. "EN_us" -> "en".
func Normalize(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return "en"
	}
	base, _ := tag.Base()
	return base.String()
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= 'à' && r <= 'ÿ')
	})
	return fields
}
