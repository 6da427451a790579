package citation

import (
	"testing"

	"github.com/ipassist/ipassist-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveHidesBookChapters(t *testing.T) {
	idx := Build(map[string]Record{
		"d1": {Authors: "Smith", Year: 2020, Title: "Textbook of IP", Venue: "Elsevier", DocType: domain.DocTypeBookChapter},
		"d2": {Authors: "Jones", Year: 2022, Title: "RCT on stents", Venue: "Chest", DocType: domain.DocTypeRCT},
	})
	grounding := []domain.Chunk{
		{ChunkID: "c1", DocID: "d1", DocType: domain.DocTypeBookChapter},
		{ChunkID: "c2", DocID: "d2", DocType: domain.DocTypeJournalArticle},
	}
	cites := idx.Resolve([]string{"c1", "c2"}, grounding)
	require.Len(t, cites, 2)
	assert.False(t, cites[0].Visible)

	visible := VisibleOnly(cites)
	require.Len(t, visible, 1)
	assert.Equal(t, "d2", visible[0].DocID)
}

func TestResolveDedupesByDocID(t *testing.T) {
	idx := Build(map[string]Record{
		"d1": {Authors: "Smith", Year: 2020, DocType: domain.DocTypeGuideline},
	})
	grounding := []domain.Chunk{
		{ChunkID: "c1", DocID: "d1", DocType: domain.DocTypeGuideline},
		{ChunkID: "c2", DocID: "d1", DocType: domain.DocTypeGuideline},
	}
	cites := idx.Resolve([]string{"c1", "c2"}, grounding)
	assert.Len(t, cites, 1)
}

func TestResolveOrdersByFirstAppearance(t *testing.T) {
	idx := Build(map[string]Record{
		"d1": {DocType: domain.DocTypeGuideline},
		"d2": {DocType: domain.DocTypeGuideline},
	})
	grounding := []domain.Chunk{
		{ChunkID: "c1", DocID: "d1", DocType: domain.DocTypeGuideline},
		{ChunkID: "c2", DocID: "d2", DocType: domain.DocTypeGuideline},
	}
	cites := idx.Resolve([]string{"c2", "c1"}, grounding)
	require.Len(t, cites, 2)
	assert.Equal(t, "d2", cites[0].DocID)
	assert.Equal(t, "d1", cites[1].DocID)
}
