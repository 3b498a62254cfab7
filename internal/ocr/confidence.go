package ocr

import (
	"regexp"
	"strings"
)

var (
	reDate     = regexp.MustCompile(`\b\d{1,2}[./-]\d{1,2}[./-]\d{2,4}\b|\b20\d{2}-\d{2}-\d{2}\b`)
	reCurrency = regexp.MustCompile(`(?i)[₪$€£]|ש"ח|ש״ח|\b(?:nis|ils|usd|eur)\b`)
	reAmount   = regexp.MustCompile(`\b\d{1,3}(?:,\d{3})*\.\d{2}\b|\b\d+\.\d{2}\b`)
)

// heuristicConfidence estimates recognition quality (0-100) for engines that
// report none, from invoice artifacts present in the text.
func heuristicConfidence(txt string) float64 {
	if strings.TrimSpace(txt) == "" {
		return 0
	}
	score := 20.0
	if reDate.MatchString(txt) {
		score += 20
	}
	if reCurrency.MatchString(txt) {
		score += 15
	}
	if reAmount.MatchString(txt) {
		score += 15
	}
	if len(txt) > 120 {
		score += 10
	}
	return min(score, 100)
}
