// Package bm25 implements an in-memory sparse lexical index over chunk
// text, scored with the classic Okapi BM25 formula.
package bm25

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/ipassist/ipassist-core/internal/domain"
)

const (
	k1 = 1.6
	b  = 0.75
)

var tokenPattern = regexp.MustCompile(`\p{L}[\p{L}\p{M}]*|\p{N}+`)

func tokenize(s string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(s), -1)
	return matches
}

// Hit is one scored match from the index.
type Hit struct {
	ChunkID string
	Score   float64
}

// Index is an in-memory BM25 index over a fixed chunk corpus, built once
// and read-only at query time.
type Index struct {
	postings    map[string]map[string]int // term -> chunk_id -> term frequency
	docLength   map[string]int
	totalLength int
	docCount    int
	chunkOrder  []string
}

// Build tokenizes every chunk's text and constructs the postings lists.
func Build(chunks []domain.Chunk) *Index {
	idx := &Index{
		postings:  make(map[string]map[string]int),
		docLength: make(map[string]int),
	}
	for _, c := range chunks {
		idx.add(c.ChunkID, c.Text)
	}
	return idx
}

func (idx *Index) add(chunkID, text string) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return
	}
	idx.docCount++
	idx.docLength[chunkID] = len(tokens)
	idx.totalLength += len(tokens)
	idx.chunkOrder = append(idx.chunkOrder, chunkID)

	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	for term, freq := range counts {
		if idx.postings[term] == nil {
			idx.postings[term] = make(map[string]int)
		}
		idx.postings[term][chunkID] = freq
	}
}

func (idx *Index) avgDocLength() float64 {
	if idx.docCount == 0 {
		return 0
	}
	return float64(idx.totalLength) / float64(idx.docCount)
}

func (idx *Index) idf(term string) float64 {
	df := len(idx.postings[term])
	if df == 0 {
		return 0
	}
	n := float64(idx.docCount)
	dff := float64(df)
	return math.Log((n-dff+0.5)/(dff+0.5) + 1)
}

// Search scores the query against every document containing at least one
// query term and returns the top-limit hits in descending score order.
func (idx *Index) Search(query string, limit int) []Hit {
	if idx.docCount == 0 {
		return nil
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	avgLen := idx.avgDocLength()
	scores := make(map[string]float64)
	for _, term := range terms {
		postings := idx.postings[term]
		if len(postings) == 0 {
			continue
		}
		idf := idx.idf(term)
		for chunkID, freq := range postings {
			dl := float64(idx.docLength[chunkID])
			tf := float64(freq)
			denom := tf + k1*(1-b+b*dl/avgLen)
			scores[chunkID] += idf * (tf * (k1 + 1) / denom)
		}
	}
	if len(scores) == 0 {
		return nil
	}

	hits := make([]Hit, 0, len(scores))
	for chunkID, score := range scores {
		hits = append(hits, Hit{ChunkID: chunkID, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// TopScore returns the highest score in a Search result (its first hit, as
// Search sorts descending), used by the hybrid retriever to normalize
// sparse scores into [0,1].
func TopScore(hits []Hit) float64 {
	if len(hits) == 0 {
		return 0
	}
	return hits[0].Score
}
