// Package corpus loads the ingestion collaborator's immutable startup
// inputs: the newline-delimited chunk stream and the citation index. Both
// are read synchronously once at process start; there is no hot-swap.
package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ipassist/ipassist-core/internal/citation"
	"github.com/ipassist/ipassist-core/internal/domain"
)

// LoadChunks reads a newline-delimited JSON stream of domain.Chunk records.
func LoadChunks(path string) ([]domain.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open chunks file: %w", err)
	}
	defer f.Close()

	var chunks []domain.Chunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var c domain.Chunk
		if err := json.Unmarshal(line, &c); err != nil {
			return nil, fmt.Errorf("corpus: parse chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("corpus: scan chunks file: %w", err)
	}
	return chunks, nil
}

// LoadCitationIndex reads a doc_id -> citation record JSON object.
func LoadCitationIndex(path string) (*citation.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open citation index: %w", err)
	}
	defer f.Close()

	var records map[string]citation.Record
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		return nil, fmt.Errorf("corpus: decode citation index: %w", err)
	}
	return citation.Build(records), nil
}

// ChunkStore is an in-memory, read-only chunk_id -> Chunk lookup, the
// shared corpus handle the retriever's indexes key against.
type ChunkStore struct {
	chunks map[string]domain.Chunk
}

// BuildChunkStore indexes a chunk slice by chunk_id.
func BuildChunkStore(chunks []domain.Chunk) *ChunkStore {
	store := &ChunkStore{chunks: make(map[string]domain.Chunk, len(chunks))}
	for _, c := range chunks {
		store.chunks[c.ChunkID] = c
	}
	return store
}

// Get resolves a chunk_id to its full payload.
func (s *ChunkStore) Get(chunkID string) (domain.Chunk, bool) {
	c, ok := s.chunks[chunkID]
	return c, ok
}
