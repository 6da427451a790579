// Package precedence implements the authority/evidence/recency composite
// score that grounds the hybrid retriever's hierarchy-aware ranking, plus
// the standard-of-care guard that protects A1 material from displacement
// by newer-but-less-authoritative sources.
package precedence

import (
	"math"

	"github.com/ipassist/ipassist-core/internal/domain"
)

// Config holds the tunable weights and half-lives. All of it is
// configuration, not an invariant, per the open design question on scoring
// weights.
type Config struct {
	AWeight map[domain.AuthorityTier]float64
	HWeight map[domain.EvidenceLevel]float64
	// HalfLifeYears maps domain -> recency half-life in years.
	HalfLifeYears map[domain.Domain]float64
	A1Floor       float64
}

// DefaultConfig returns the weights and half-lives named in §4.3.
func DefaultConfig() Config {
	return Config{
		AWeight: map[domain.AuthorityTier]float64{
			domain.TierA1: 1.0,
			domain.TierA2: 0.85,
			domain.TierA3: 0.7,
			domain.TierA4: 0.6,
		},
		HWeight: map[domain.EvidenceLevel]float64{
			domain.LevelH1: 1.0,
			domain.LevelH2: 0.9,
			domain.LevelH3: 0.75,
			domain.LevelH4: 0.6,
		},
		HalfLifeYears: map[domain.Domain]float64{
			domain.DomainCodingBilling:        3,
			domain.DomainTechnologyNavigation: 4,
			domain.DomainAblation:             5,
			domain.DomainClinical:             6,
			domain.DomainLungVolumeReduction:  5,
		},
		A1Floor: 0.7,
	}
}

// HalfLife returns the configured half-life for a domain, defaulting to the
// clinical half-life if the domain is unrecognized.
func (c Config) HalfLife(d domain.Domain) float64 {
	if hl, ok := c.HalfLifeYears[d]; ok {
		return hl
	}
	return c.HalfLifeYears[domain.DomainClinical]
}

// Recency computes 0.5^(age/half_life), enforcing the A1 floor.
func Recency(c Config, tier domain.AuthorityTier, d domain.Domain, chunkYear, currentYear int) float64 {
	age := currentYear - chunkYear
	if age < 0 {
		age = 0
	}
	halfLife := c.HalfLife(d)
	if halfLife <= 0 {
		halfLife = 1
	}
	r := math.Pow(0.5, float64(age)/halfLife)
	if tier == domain.TierA1 && r < c.A1Floor {
		r = c.A1Floor
	}
	return r
}

// Score computes the composite precedence score for a chunk, in [0,1].
func Score(c Config, chunk domain.Chunk, currentYear int) float64 {
	aw := c.AWeight[chunk.AuthorityTier]
	hw := c.HWeight[chunk.EvidenceLevel]
	recency := Recency(c, chunk.AuthorityTier, chunk.Domain, chunk.Year, currentYear)
	return 0.5*recency + 0.3*hw + 0.2*aw
}

// IsStaleCoding reports whether a coding_billing chunk is older than its
// half-life plus one year, the threshold that earns the stale_coding tag.
func IsStaleCoding(c Config, chunk domain.Chunk, currentYear int) bool {
	if chunk.Domain != domain.DomainCodingBilling {
		return false
	}
	age := currentYear - chunk.Year
	return float64(age) > c.HalfLife(chunk.Domain)+1
}

// sameTopicCluster reports whether two chunks share at least one primary
// alias, the "same topic cluster" test the standard-of-care guard needs.
func sameTopicCluster(a, b domain.Chunk) bool {
	if len(a.Aliases) == 0 || len(b.Aliases) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a.Aliases))
	for _, al := range a.Aliases {
		set[al] = struct{}{}
	}
	for _, al := range b.Aliases {
		if _, ok := set[al]; ok {
			return true
		}
	}
	return false
}

// ApplyStandardOfCareGuard swaps higher and lower when higher is an A4
// chunk outranking a same-topic A1 chunk, unless higher is H1/H2 and at
// least 3 years newer than lower.
func ApplyStandardOfCareGuard(higher, lower domain.Chunk) (newHigher, newLower domain.Chunk, swapped bool) {
	if higher.AuthorityTier != domain.TierA4 || lower.AuthorityTier != domain.TierA1 {
		return higher, lower, false
	}
	if !sameTopicCluster(higher, lower) {
		return higher, lower, false
	}
	strongEvidence := higher.EvidenceLevel == domain.LevelH1 || higher.EvidenceLevel == domain.LevelH2
	newerEnough := higher.Year-lower.Year >= 3
	if strongEvidence && newerEnough {
		return higher, lower, false
	}
	return lower, higher, true
}
