// Package citation resolves cited chunk IDs into formatted bibliographic
// references, applying the visibility policy that hides textbook chapters
// from the reference list while still letting them ground the answer. The
// dedup-by-ID, ordered-list-building idiom follows the teacher's document
// aggregation helpers.
package citation

import "github.com/ipassist/ipassist-core/internal/domain"

// Record is one pre-built citation entry, keyed by doc_id.
type Record struct {
	Authors string
	Year    int
	Title   string
	Venue   string
	DocType domain.DocType
}

// Index is the read-only doc_id -> citation lookup built once from the
// ingestion collaborator's citation payload.
type Index struct {
	records map[string]Record
}

// Build constructs a citation index from a doc_id-keyed record map.
func Build(records map[string]Record) *Index {
	return &Index{records: records}
}

var visibleDocTypes = map[domain.DocType]bool{
	domain.DocTypeJournalArticle:   true,
	domain.DocTypeGuideline:        true,
	domain.DocTypeSystematicReview: true,
}

// VisibleDocTypes reports whether a doc_type is eligible to appear in the
// visible reference list.
func VisibleDocTypes() map[domain.DocType]bool {
	out := make(map[domain.DocType]bool, len(visibleDocTypes))
	for k, v := range visibleDocTypes {
		out[k] = v
	}
	return out
}

// Resolve takes the chunk IDs cited in a draft plus the full grounding set,
// numbers references in order of first appearance in `cited`, and
// deduplicates by doc_id. Chunks whose doc_type is not in the visible set
// are still resolvable (for grounding_chunks) but carry Visible=false. A
// chunk with no doc_type of its own falls back to its citation record's.
func (idx *Index) Resolve(cited []string, grounding []domain.Chunk) []domain.Citation {
	chunkByID := make(map[string]domain.Chunk, len(grounding))
	for _, c := range grounding {
		chunkByID[c.ChunkID] = c
	}

	seenDoc := make(map[string]bool)
	var out []domain.Citation
	for _, chunkID := range cited {
		chunk, ok := chunkByID[chunkID]
		if !ok {
			continue
		}
		if seenDoc[chunk.DocID] {
			continue
		}
		rec, ok := idx.records[chunk.DocID]
		if !ok {
			continue
		}
		seenDoc[chunk.DocID] = true
		docType := chunk.DocType
		if docType == "" {
			docType = rec.DocType
		}
		out = append(out, domain.Citation{
			ChunkID: chunkID,
			DocID:   chunk.DocID,
			Authors: rec.Authors,
			Year:    rec.Year,
			Title:   rec.Title,
			Venue:   rec.Venue,
			Visible: visibleDocTypes[docType],
		})
	}
	return out
}

// VisibleOnly filters a citation list down to entries the reference list
// policy permits to be shown.
func VisibleOnly(cites []domain.Citation) []domain.Citation {
	out := make([]domain.Citation, 0, len(cites))
	for _, c := range cites {
		if c.Visible {
			out = append(out, c)
		}
	}
	return out
}
