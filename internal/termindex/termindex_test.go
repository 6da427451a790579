package termindex

import (
	"sort"
	"testing"

	"github.com/ipassist/ipassist-core/internal/domain"
)

func sampleChunks() []domain.Chunk {
	return []domain.Chunk{
		{ChunkID: "c1", CPTCodes: []string{"31622"}, Aliases: []string{"EBUS-TBNA"}},
		{ChunkID: "c2", CPTCodes: []string{"31622", "31645"}, Aliases: []string{"bronchial stent"}},
		{ChunkID: "c3", Aliases: []string{"ebus-tbna"}},
	}
}

func TestLookupCPT(t *testing.T) {
	idx := Build(sampleChunks())
	got := idx.LookupCPT("31622")
	sort.Strings(got)
	want := []string{"c1", "c2"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("LookupCPT(31622) = %v, want %v", got, want)
	}
	if got := idx.LookupCPT("99999"); got != nil {
		t.Fatalf("expected no hits for unknown CPT, got %v", got)
	}
}

func TestLookupAliasCaseInsensitive(t *testing.T) {
	idx := Build(sampleChunks())
	got := idx.LookupAlias("EBUS-TBNA")
	sort.Strings(got)
	if len(got) != 2 || got[0] != "c1" || got[1] != "c3" {
		t.Fatalf("LookupAlias case-insensitive merge failed: %v", got)
	}
}
