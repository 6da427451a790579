package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadChunksAndCitationIndex(t *testing.T) {
	dir := t.TempDir()

	chunksPath := filepath.Join(dir, "chunks.ndjson")
	chunksContent := `{"chunk_id":"c1","text":"fiducial marker placement","doc_id":"d1","year":2023,"authority_tier":"A1"}
{"chunk_id":"c2","text":"CPT 31622","doc_id":"d2","year":2022,"authority_tier":"A2","cpt_codes":["31622"]}
`
	require.NoError(t, os.WriteFile(chunksPath, []byte(chunksContent), 0644))

	chunks, err := LoadChunks(chunksPath)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "c1", chunks[0].ChunkID)

	store := BuildChunkStore(chunks)
	got, ok := store.Get("c2")
	require.True(t, ok)
	assert.Equal(t, []string{"31622"}, got.CPTCodes)

	citationsPath := filepath.Join(dir, "citations.json")
	citationsContent := `{"d1":{"Authors":"Smith et al.","Year":2023,"Title":"Fiducial Placement","Venue":"J Bronchology","DocType":"journal_article"}}`
	require.NoError(t, os.WriteFile(citationsPath, []byte(citationsContent), 0644))

	idx, err := LoadCitationIndex(citationsPath)
	require.NoError(t, err)
	resolved := idx.Resolve([]string{"c1"}, chunks)
	require.Len(t, resolved, 1)
	assert.Equal(t, "Smith et al.", resolved[0].Authors)
}
