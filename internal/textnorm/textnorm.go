// Package textnorm applies the single normalization pass every text
// boundary in the service runs through: ligature cleanup, unicode folding,
// and whitespace collapse.
package textnorm

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// ligatures collapses common OCR/PDF-extraction ligature artifacts back
	// to their plain-ASCII expansion.
	ligatureReplacer = strings.NewReplacer(
		"ﬀ", "ff",
		"ﬁ", "fi",
		"ﬂ", "fl",
		"ﬃ", "ffi",
		"ﬄ", "ffl",
		"‘", "'",
		"’", "'",
		"“", "\"",
		"”", "\"",
		"–", "-",
		"—", "-",
	)

	whitespaceRun = regexp.MustCompile(`[ \t\f\v]+`)
	blankLineRun  = regexp.MustCompile(`\n{3,}`)
	// doubleExpansion catches ingestion artifacts where an abbreviation was
	// expanded twice, e.g. "EBUS (endobronchial ultrasound) (endobronchial
	// ultrasound)". RE2 has no backreferences, so Normalize compares the two
	// captured groups itself.
	doubleExpansion = regexp.MustCompile(`\(([^()]+)\)\s*\(([^()]+)\)`)
)

// Normalize removes ligature artifacts, collapses repeated-expansion
// artifacts, and normalizes whitespace and unicode form. It is idempotent:
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = ligatureReplacer.Replace(s)
	for prev := ""; prev != s; {
		prev = s
		s = doubleExpansion.ReplaceAllStringFunc(s, func(m string) string {
			sub := doubleExpansion.FindStringSubmatch(m)
			if strings.TrimSpace(sub[1]) == strings.TrimSpace(sub[2]) {
				return "(" + sub[1] + ")"
			}
			return m
		})
	}
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = blankLineRun.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(s)
}
