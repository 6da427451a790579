package orchestrator

import (
	"regexp"

	"github.com/ipassist/ipassist-core/internal/domain"
)

// classifier holds the closed regex families that drive classify. Order of
// evaluation encodes the tie-break precedence: emergency > safety > coding >
// procedure > clinical.
type classifier struct {
	emergency    []*regexp.Regexp
	contraindication []*regexp.Regexp
	dose         *regexp.Regexp
	cptToken     *regexp.Regexp
	procedural   []*regexp.Regexp
}

func newClassifier(emergencyPatterns []string) *classifier {
	c := &classifier{
		dose:     regexp.MustCompile(`\b\d+(\.\d+)?\s?(mg|mcg|mL|units?)\b`),
		cptToken: regexp.MustCompile(`\bcpt\s*\d{5}\b|\b\d{5}-[tT]\b`),
	}
	for _, p := range emergencyPatterns {
		c.emergency = append(c.emergency, regexp.MustCompile(p))
	}
	for _, p := range []string{
		`\bcontraindicat`, `\banticoagul`, `\bpregnan`, `\brenal failure\b`, `\ballerg`,
	} {
		c.contraindication = append(c.contraindication, regexp.MustCompile(p))
	}
	for _, p := range []string{
		`\bhow (do|to) (i|you) perform\b`, `\btechnique for\b`, `\bsteps? (to|for)\b`, `\bplacement requirements\b`,
	} {
		c.procedural = append(c.procedural, regexp.MustCompile(p))
	}
	return c
}

// Classify inspects the normalized query text and returns exactly one
// classification, applying the ambiguity precedence order.
func (c *classifier) Classify(normalizedText string) domain.Classification {
	if anyMatch(c.emergency, normalizedText) {
		return domain.ClassEmergency
	}
	if anyMatch(c.contraindication, normalizedText) || c.dose.MatchString(normalizedText) {
		return domain.ClassSafety
	}
	if c.cptToken.MatchString(normalizedText) {
		return domain.ClassCoding
	}
	if anyMatch(c.procedural, normalizedText) {
		return domain.ClassProcedure
	}
	return domain.ClassClinical
}

func anyMatch(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
