package report

import (
	"strings"
	"unicode/utf8"

	"github.com/lucasnoah/secretguard/internal/scan"
)

const redactedMarker = "[redacted]"

// RedactMatch masks matched secret text. Short values are replaced
// entirely; longer ones keep a four-character prefix so an operator can
// still tell which credential was hit.
func RedactMatch(s string) string {
	if utf8.RuneCountInString(s) <= 8 {
		return redactedMarker
	}
	r := []rune(s)
	return string(r[:4]) + strings.Repeat("*", 4) + redactedMarker
}

// RedactFindings returns a copy of findings with matched text masked.
func RedactFindings(findings []scan.Finding) []scan.Finding {
	out := make([]scan.Finding, len(findings))
	for i, f := range findings {
		f.MatchedText = RedactMatch(f.MatchedText)
		out[i] = f
	}
	return out
}
