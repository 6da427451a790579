package precedence

import (
	"testing"

	"github.com/ipassist/ipassist-core/internal/domain"
)

func TestA1Floor(t *testing.T) {
	c := DefaultConfig()
	r := Recency(c, domain.TierA1, domain.DomainClinical, 1990, 2026)
	if r < c.A1Floor {
		t.Fatalf("A1 floor violated: got %v", r)
	}
}

func TestRecencyDecaysForNonA1(t *testing.T) {
	c := DefaultConfig()
	recent := Recency(c, domain.TierA2, domain.DomainCodingBilling, 2025, 2026)
	old := Recency(c, domain.TierA2, domain.DomainCodingBilling, 2000, 2026)
	if old >= recent {
		t.Fatalf("expected older chunk to have lower recency: old=%v recent=%v", old, recent)
	}
}

func TestScoreInRange(t *testing.T) {
	c := DefaultConfig()
	chunk := domain.Chunk{AuthorityTier: domain.TierA2, EvidenceLevel: domain.LevelH2, Domain: domain.DomainClinical, Year: 2020}
	s := Score(c, chunk, 2026)
	if s < 0 || s > 1 {
		t.Fatalf("precedence score out of range: %v", s)
	}
}

func TestIsStaleCoding(t *testing.T) {
	c := DefaultConfig()
	chunk := domain.Chunk{Domain: domain.DomainCodingBilling, Year: 2018}
	if !IsStaleCoding(c, chunk, 2026) {
		t.Fatalf("expected stale_coding for an 8-year-old coding_billing chunk (half-life 3)")
	}
	fresh := domain.Chunk{Domain: domain.DomainCodingBilling, Year: 2025}
	if IsStaleCoding(c, fresh, 2026) {
		t.Fatalf("did not expect stale_coding for a 1-year-old chunk")
	}
}

func TestStandardOfCareGuardSwapsWithoutStrongEvidence(t *testing.T) {
	a1 := domain.Chunk{ChunkID: "a1c", AuthorityTier: domain.TierA1, EvidenceLevel: domain.LevelH3, Year: 2015, Aliases: []string{"stent"}}
	a4 := domain.Chunk{ChunkID: "a4c", AuthorityTier: domain.TierA4, EvidenceLevel: domain.LevelH3, Year: 2020, Aliases: []string{"stent"}}

	newHigher, newLower, swapped := ApplyStandardOfCareGuard(a4, a1)
	if !swapped {
		t.Fatalf("expected swap when A4 lacks H1/H2 strength")
	}
	if newHigher.ChunkID != "a1c" || newLower.ChunkID != "a4c" {
		t.Fatalf("swap produced wrong order: higher=%s lower=%s", newHigher.ChunkID, newLower.ChunkID)
	}
}

func TestStandardOfCareGuardAllowsStrongRecentEvidence(t *testing.T) {
	a1 := domain.Chunk{ChunkID: "a1c", AuthorityTier: domain.TierA1, EvidenceLevel: domain.LevelH3, Year: 2015, Aliases: []string{"stent"}}
	a4 := domain.Chunk{ChunkID: "a4c", AuthorityTier: domain.TierA4, EvidenceLevel: domain.LevelH1, Year: 2020, Aliases: []string{"stent"}}

	_, _, swapped := ApplyStandardOfCareGuard(a4, a1)
	if swapped {
		t.Fatalf("did not expect swap when A4 is H1 and 5 years newer")
	}
}

func TestStandardOfCareGuardIgnoresDifferentTopics(t *testing.T) {
	a1 := domain.Chunk{ChunkID: "a1c", AuthorityTier: domain.TierA1, Aliases: []string{"stent"}}
	a4 := domain.Chunk{ChunkID: "a4c", AuthorityTier: domain.TierA4, Aliases: []string{"lavage"}}

	_, _, swapped := ApplyStandardOfCareGuard(a4, a1)
	if swapped {
		t.Fatalf("did not expect swap across unrelated topics")
	}
}
