package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// quoteFolder folds Hebrew punctuation and typographic variants onto the
// ASCII characters the rule tables are written against.
var quoteFolder = strings.NewReplacer(
	"\u05f4", `"`, // gershayim
	"\u05f3", "'", // geresh
	"\u201c", `"`,
	"\u201d", `"`,
	"\u2018", "'",
	"\u2019", "'",
	"\u00a0", " ",
	"\u200f", "",
	"\u200e", "",
	"\r", "",
)

// normalizeText prepares raw document text for rule matching.
func normalizeText(raw string) string {
	return quoteFolder.Replace(norm.NFC.String(raw))
}

// Lines splits raw text into trimmed, non-empty lines in document order.
func Lines(raw string) []string {
	parts := strings.Split(normalizeText(raw), "\n")
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, p)
		}
	}
	return lines
}

var currencyMarkers = regexp.MustCompile(`(?i)[₪$€£]|ש"ח|\bnis\b|\bils\b|\s+`)

// NormalizeAmount strips currency markers, whitespace and dangling separators
// from an amount. Every amount field, heuristic or AI-sourced, goes through it.
func NormalizeAmount(s string) string {
	s = currencyMarkers.ReplaceAllString(normalizeText(s), "")
	return strings.Trim(s, ".,:;")
}
