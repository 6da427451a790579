// Package safety implements the emergency pattern detector and the
// pre/post-synthesis safety checks: pediatric, dosing, and contraindication
// triggers that can force routing or flag a draft for review. Checks run
// as an ordered checklist that accumulates warnings rather than failing
// fast, the same style the teacher uses for request validation.
package safety

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ipassist/ipassist-core/internal/domain"
)

// Config holds the regex families and thresholds enumerated in §6.
type Config struct {
	PediatricKeywords  []string
	EmergencyPatterns  []string
	DoseConfirmMinSources int
	DoseVariancePct       float64
}

// DefaultConfig returns sensible defaults for the named configuration
// knobs; callers override from environment via config.LoadConfig.
func DefaultConfig() Config {
	return Config{
		PediatricKeywords: []string{
			"pediatric", "neonate", "neonatal", "infant", "child", "children", "newborn",
		},
		EmergencyPatterns: []string{
			`massive hemoptysis`,
			`airway obstruction`,
			`tension pneumothorax`,
			`foreign body aspiration`,
			`respiratory failure`,
			`cardiac arrest`,
		},
		DoseConfirmMinSources: 2,
		DoseVariancePct:       20,
	}
}

// Checker evaluates the safety gates against a query or a draft answer.
type Checker struct {
	cfg               Config
	emergencyPatterns []*regexp.Regexp
	doseNumber        *regexp.Regexp
}

// New compiles the configured regex families once at construction.
func New(cfg Config) *Checker {
	patterns := make([]*regexp.Regexp, 0, len(cfg.EmergencyPatterns))
	for _, p := range cfg.EmergencyPatterns {
		patterns = append(patterns, regexp.MustCompile(`(?i)`+p))
	}
	return &Checker{
		cfg:               cfg,
		emergencyPatterns: patterns,
		doseNumber:        regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(mg|mcg|mL|units?)\b`),
	}
}

// PreCheck inspects the query text alone, independent of retrieval, per
// §4.5 safety_pre.
type PreCheck struct {
	IsEmergency bool
	IsPediatric bool
	HasDoseNumbers bool
	Warnings    []string
}

// Pre runs the emergency/pediatric/dose checks against normalized query
// text.
func (c *Checker) Pre(normalizedText string) PreCheck {
	var out PreCheck
	lower := strings.ToLower(normalizedText)

	for _, p := range c.emergencyPatterns {
		if p.MatchString(lower) {
			out.IsEmergency = true
			out.Warnings = append(out.Warnings, "emergency_pattern_detected")
			break
		}
	}

	for _, kw := range c.cfg.PediatricKeywords {
		if strings.Contains(lower, kw) {
			out.IsPediatric = true
			out.Warnings = append(out.Warnings, "pediatric_context_detected")
			break
		}
	}

	if c.doseNumber.MatchString(lower) {
		out.HasDoseNumbers = true
		out.Warnings = append(out.Warnings, "absolute_dose_numbers_present")
	}

	return out
}

// PostCheck is the result of inspecting a draft LLM answer against its
// grounding set.
type PostCheck struct {
	ReviewRequired bool
	Warnings       []string
}

// Post inspects the draft for unsupported dose claims and, for
// safety-classed queries, missing contraindication coverage.
func (c *Checker) Post(draft string, grounding []domain.Chunk, classification domain.Classification) PostCheck {
	var out PostCheck

	for _, match := range c.doseNumber.FindAllStringSubmatch(draft, -1) {
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		unit := match[2]
		if !c.doseSupportedByGrounding(value, unit, grounding) {
			out.ReviewRequired = true
			out.Warnings = append(out.Warnings, "unsupported_dose_claim: "+match[0])
		}
	}

	if classification == domain.ClassSafety {
		if !draftMentionsContraindication(draft, grounding) {
			out.ReviewRequired = true
			out.Warnings = append(out.Warnings, "missing_contraindication_coverage")
		}
	}

	return out
}

// doseSupportedByGrounding requires the dose value to appear, within
// ±DoseVariancePct, in at least DoseConfirmMinSources grounding chunks.
func (c *Checker) doseSupportedByGrounding(value float64, unit string, grounding []domain.Chunk) bool {
	pattern := regexp.MustCompile(`(\d+(?:\.\d+)?)\s*` + regexp.QuoteMeta(unit))
	sources := 0
	for _, chunk := range grounding {
		for _, m := range pattern.FindAllStringSubmatch(chunk.Text, -1) {
			found, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			if withinVariance(value, found, c.cfg.DoseVariancePct) {
				sources++
				break
			}
		}
	}
	return sources >= c.cfg.DoseConfirmMinSources
}

func withinVariance(a, b, pct float64) bool {
	if a == 0 {
		return b == 0
	}
	diff := math.Abs(a-b) / math.Abs(a) * 100
	return diff <= pct
}

func draftMentionsContraindication(draft string, grounding []domain.Chunk) bool {
	lower := strings.ToLower(draft)
	if strings.Contains(lower, "contraindicat") {
		return true
	}
	for _, chunk := range grounding {
		if chunk.HasTag(domain.TagHasContraindication) {
			return false
		}
	}
	return true // no contraindication-tagged grounding, nothing to miss
}
