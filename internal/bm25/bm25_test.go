package bm25

import (
	"testing"

	"github.com/ipassist/ipassist-core/internal/domain"
)

func corpus() []domain.Chunk {
	return []domain.Chunk{
		{ChunkID: "c1", Text: "Tracheal stent insertion for benign tracheal stenosis."},
		{ChunkID: "c2", Text: "EBUS-TBNA sampling of mediastinal lymph node stations."},
		{ChunkID: "c3", Text: "Fiducial marker placement requires 3-6 markers non-collinear."},
	}
}

func TestSearchRanksExactTermHigher(t *testing.T) {
	idx := Build(corpus())
	hits := idx.Search("tracheal stent", 10)
	if len(hits) == 0 || hits[0].ChunkID != "c1" {
		t.Fatalf("expected c1 to rank first, got %+v", hits)
	}
}

func TestSearchNoMatches(t *testing.T) {
	idx := Build(corpus())
	hits := idx.Search("zzz_nonexistent_term", 10)
	if hits != nil {
		t.Fatalf("expected no hits, got %+v", hits)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := Build(nil)
	if hits := idx.Search("anything", 10); hits != nil {
		t.Fatalf("expected nil hits on empty index, got %+v", hits)
	}
}

func TestTopScore(t *testing.T) {
	idx := Build(corpus())
	hits := idx.Search("fiducial marker", 10)
	if got := TopScore(hits); got <= 0 {
		t.Fatalf("expected positive top score, got %v", got)
	}
	if got := TopScore(nil); got != 0 {
		t.Fatalf("expected 0 for no hits, got %v", got)
	}
}

func TestLimit(t *testing.T) {
	idx := Build(corpus())
	hits := idx.Search("stations placement stent", 1)
	if len(hits) != 1 {
		t.Fatalf("expected limit to cap results to 1, got %d", len(hits))
	}
}
