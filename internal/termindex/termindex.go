// Package termindex holds the two static maps used for exact-match
// retrieval: CPT code to chunk IDs, and medical-term alias to chunk IDs.
// Both are built once from the chunk corpus and are read-only at query
// time, the same "process-wide read-only resource initialized at startup"
// idiom the teacher uses for its vector-index handle.
package termindex

import "github.com/ipassist/ipassist-core/internal/domain"

// Index is the read-only exact-match term index.
type Index struct {
	cptToChunks   map[string]map[string]struct{}
	aliasToChunks map[string]map[string]struct{}
}

// Build constructs a term index from the full chunk corpus. It is intended
// to run once at startup.
func Build(chunks []domain.Chunk) *Index {
	idx := &Index{
		cptToChunks:   make(map[string]map[string]struct{}),
		aliasToChunks: make(map[string]map[string]struct{}),
	}
	for _, c := range chunks {
		for _, cpt := range c.CPTCodes {
			if idx.cptToChunks[cpt] == nil {
				idx.cptToChunks[cpt] = make(map[string]struct{})
			}
			idx.cptToChunks[cpt][c.ChunkID] = struct{}{}
		}
		for _, alias := range c.Aliases {
			key := normalizeAlias(alias)
			if idx.aliasToChunks[key] == nil {
				idx.aliasToChunks[key] = make(map[string]struct{})
			}
			idx.aliasToChunks[key][c.ChunkID] = struct{}{}
		}
	}
	return idx
}

func normalizeAlias(a string) string {
	out := make([]byte, 0, len(a))
	for i := 0; i < len(a); i++ {
		b := a[i]
		if b >= 'A' && b <= 'Z' {
			b = b - 'A' + 'a'
		}
		out = append(out, b)
	}
	return string(out)
}

// LookupCPT returns the chunk IDs indexed under the given 5-digit CPT code.
func (idx *Index) LookupCPT(cpt string) []string {
	return setKeys(idx.cptToChunks[cpt])
}

// LookupAlias returns the chunk IDs indexed under the given alias term,
// case-insensitively.
func (idx *Index) LookupAlias(alias string) []string {
	return setKeys(idx.aliasToChunks[normalizeAlias(alias)])
}

// Aliases returns every alias term known to the index, for query-side
// substring scanning.
func (idx *Index) Aliases() []string {
	out := make([]string, 0, len(idx.aliasToChunks))
	for a := range idx.aliasToChunks {
		out = append(out, a)
	}
	return out
}

func setKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
