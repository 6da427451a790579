// Package retrieval implements the hybrid retriever: it runs dense and
// sparse retrieval concurrently, then adds exact-match hits, merges by chunk ID,
// computes the hierarchy-aware final score, and returns the top-k
// candidates. Concurrency for the dense+sparse fan-out follows the same
// errgroup join-before-merge pattern used for concurrent dense/BM25
// retrieval in the pack's retriever implementations.
package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ipassist/ipassist-core/internal/bm25"
	"github.com/ipassist/ipassist-core/internal/denseindex"
	"github.com/ipassist/ipassist-core/internal/domain"
	"github.com/ipassist/ipassist-core/internal/precedence"
	"github.com/ipassist/ipassist-core/internal/rerank"
	"github.com/ipassist/ipassist-core/internal/termindex"
)

// ChunkStore resolves a chunk_id to its full payload, the shared corpus
// handle every index keys against.
type ChunkStore interface {
	Get(chunkID string) (domain.Chunk, bool)
}

// DenseSearcher is the subset of the dense index client the retriever
// needs, narrowed to ease testing.
type DenseSearcher interface {
	Search(ctx context.Context, query string, m int) ([]denseindex.Hit, error)
}

var cptTokenPattern = regexp.MustCompile(`\b\d{5}\b`)

// Retriever implements the hybrid search described in the core spec.
type Retriever struct {
	dense    DenseSearcher
	sparse   *bm25.Index
	terms    *termindex.Index
	chunks   ChunkStore
	reranker rerank.Reranker
	prec     precedence.Config

	currentYear func() int
}

// Options configures a Retriever.
type Options struct {
	Dense       DenseSearcher
	Sparse      *bm25.Index
	Terms       *termindex.Index
	Chunks      ChunkStore
	Reranker    rerank.Reranker
	Precedence  precedence.Config
	CurrentYear func() int // overridable for deterministic tests
}

// New constructs a Retriever from its constituent indexes.
func New(opts Options) *Retriever {
	cy := opts.CurrentYear
	if cy == nil {
		cy = func() int { return time.Now().Year() }
	}
	return &Retriever{
		dense:       opts.Dense,
		sparse:      opts.Sparse,
		terms:       opts.Terms,
		chunks:      opts.Chunks,
		reranker:    opts.Reranker,
		prec:        opts.Precedence,
		currentYear: cy,
	}
}

// Warning flags accumulated during a search.
const (
	WarningDenseUnavailable  = "dense_unavailable"
	WarningSparseUnavailable = "sparse_unavailable"
)

// Result is the hybrid retriever's output.
type Result struct {
	Hits     []domain.RetrievedHit
	Warnings []string
}

// ErrRetrievalUnavailable is returned when both dense and sparse retrieval
// fail; exact-match alone is never sufficient to answer.
var ErrRetrievalUnavailable = fmt.Errorf("retrieval_unavailable")

// Search runs the full hybrid pipeline and returns up to k hits ordered by
// descending final_score.
func (r *Retriever) Search(ctx context.Context, qctx domain.QueryContext) (Result, error) {
	k := qctx.TopK
	if k < 1 {
		k = 1
	}
	if k > 50 {
		k = 50
	}
	m := k * 3
	if m < 60 {
		m = 60
	}

	var (
		denseHits  []denseindex.Hit
		denseErr   error
		sparseHits []bm25.Hit
		sparseErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if r.dense == nil {
			denseErr = fmt.Errorf("dense index not configured")
			return nil
		}
		hits, err := r.dense.Search(gctx, qctx.NormalizedText, m)
		if err != nil {
			denseErr = err
			return nil
		}
		denseHits = hits
		return nil
	})
	g.Go(func() error {
		if r.sparse == nil {
			sparseErr = fmt.Errorf("sparse index not configured")
			return nil
		}
		sparseHits = r.sparse.Search(qctx.NormalizedText, m)
		return nil
	})
	_ = g.Wait() // both goroutines record errors locally and never return one

	var warnings []string
	if denseErr != nil {
		warnings = append(warnings, WarningDenseUnavailable)
	}
	if sparseErr != nil {
		warnings = append(warnings, WarningSparseUnavailable)
	}
	if denseErr != nil && sparseErr != nil {
		return Result{}, ErrRetrievalUnavailable
	}

	merged := make(map[string]*domain.RetrievedHit)

	topSparse := bm25.TopScore(sparseHits)
	for _, h := range denseHits {
		hit := getOrCreate(merged, h.ChunkID, r.chunks)
		if hit == nil {
			continue
		}
		hit.RawScoreBySource[domain.SourceDense] = h.Score
		hit.SourceFlags[domain.SourceDense] = true
	}
	for _, h := range sparseHits {
		hit := getOrCreate(merged, h.ChunkID, r.chunks)
		if hit == nil {
			continue
		}
		norm := 0.0
		if topSparse > 0 {
			norm = h.Score / topSparse
		}
		hit.RawScoreBySource[domain.SourceSparse] = norm
		hit.SourceFlags[domain.SourceSparse] = true
	}

	for _, cpt := range cptTokenPattern.FindAllString(qctx.NormalizedText, -1) {
		for _, chunkID := range r.termsLookupCPT(cpt) {
			hit := getOrCreate(merged, chunkID, r.chunks)
			if hit == nil {
				continue
			}
			hit.RawScoreBySource[domain.SourceExact] = 1.0
			hit.SourceFlags[domain.SourceExact] = true
		}
	}
	for _, alias := range r.termsAliasesPresentIn(qctx.NormalizedText) {
		for _, chunkID := range r.termsLookupAlias(alias) {
			hit := getOrCreate(merged, chunkID, r.chunks)
			if hit == nil {
				continue
			}
			hit.RawScoreBySource[domain.SourceExact] = 1.0
			hit.SourceFlags[domain.SourceExact] = true
		}
	}

	hits := make([]domain.RetrievedHit, 0, len(merged))
	currentYear := r.currentYear()
	for _, hit := range merged {
		hit.FinalScore = r.finalScore(*hit, qctx, currentYear)
		if precedence.IsStaleCoding(r.prec, hit.Chunk, currentYear) && !hit.Chunk.HasTag(domain.TagStaleCoding) {
			hit.Chunk.Tags = append(append([]domain.Tag{}, hit.Chunk.Tags...), domain.TagStaleCoding)
		}
		hits = append(hits, *hit)
	}

	hits = applyFilters(hits, qctx.Filters)
	hits = applyStandardOfCareGuard(hits, r.prec)

	sortHits(hits)

	if qctx.UseReranker && r.reranker != nil {
		hits = r.rerankTop30(ctx, qctx, hits)
		sortHits(hits)
	}

	if len(hits) > k {
		hits = hits[:k]
	}

	return Result{Hits: hits, Warnings: warnings}, nil
}

func (r *Retriever) termsLookupCPT(cpt string) []string {
	if r.terms == nil {
		return nil
	}
	return r.terms.LookupCPT(cpt)
}

func (r *Retriever) termsLookupAlias(alias string) []string {
	if r.terms == nil {
		return nil
	}
	return r.terms.LookupAlias(alias)
}

func (r *Retriever) termsAliasesPresentIn(text string) []string {
	if r.terms == nil {
		return nil
	}
	var found []string
	for _, alias := range r.terms.Aliases() {
		if containsWord(text, alias) {
			found = append(found, alias)
		}
	}
	return found
}

func containsWord(text, word string) bool {
	return regexp.MustCompile(`\b`+regexp.QuoteMeta(word)+`\b`).MatchString(text)
}

func getOrCreate(m map[string]*domain.RetrievedHit, chunkID string, store ChunkStore) *domain.RetrievedHit {
	if hit, ok := m[chunkID]; ok {
		return hit
	}
	if store == nil {
		return nil
	}
	chunk, ok := store.Get(chunkID)
	if !ok {
		return nil
	}
	hit := &domain.RetrievedHit{
		ChunkID:          chunkID,
		RawScoreBySource: make(map[domain.SourceFlag]float64),
		SourceFlags:      make(map[domain.SourceFlag]bool),
		Chunk:            chunk,
	}
	m[chunkID] = hit
	return hit
}

// finalScore implements the hierarchy-aware scoring formula from §4.2.
func (r *Retriever) finalScore(hit domain.RetrievedHit, qctx domain.QueryContext, currentYear int) float64 {
	dense := hit.RawScoreBySource[domain.SourceDense]
	sparse := hit.RawScoreBySource[domain.SourceSparse]
	semantic := dense
	if sparse > semantic {
		semantic = sparse
	}

	section := 0.5
	if sectionMatchesClass(hit.Chunk.SectionKind, qctx.Classification) {
		section = 1.0
	}

	entity := 0.0
	if hit.SourceFlags[domain.SourceExact] {
		entity = 1.0
	}

	prec := precedence.Score(r.prec, hit.Chunk, currentYear)

	score := 0.45*prec + 0.35*semantic + 0.10*section + 0.10*entity

	if hit.RawScoreBySource[domain.SourceExact] == 1.0 {
		for _, cpt := range hit.Chunk.CPTCodes {
			if containsWord(qctx.NormalizedText, cpt) {
				score += 0.05
				break
			}
		}
	}
	if qctx.Classification == domain.ClassCoding && hit.Chunk.Domain == domain.DomainCodingBilling {
		score += 0.05
	}

	return score
}

func sectionMatchesClass(kind domain.SectionKind, class domain.Classification) bool {
	switch class {
	case domain.ClassProcedure:
		return kind == domain.SectionProcedure
	case domain.ClassCoding:
		return kind == domain.SectionCoding || kind == domain.SectionTableRow
	case domain.ClassSafety:
		return kind == domain.SectionContraindication
	default:
		return false
	}
}

func applyFilters(hits []domain.RetrievedHit, f domain.Filters) []domain.RetrievedHit {
	out := hits[:0]
	for _, h := range hits {
		if len(f.AuthorityTiers) > 0 && !tierIn(h.Chunk.AuthorityTier, f.AuthorityTiers) {
			continue
		}
		if f.YearMin > 0 && h.Chunk.Year < f.YearMin {
			continue
		}
		if f.YearMax > 0 && h.Chunk.Year > f.YearMax {
			continue
		}
		if len(f.Domains) > 0 && !domainIn(h.Chunk.Domain, f.Domains) {
			continue
		}
		if len(f.SectionKinds) > 0 && !sectionIn(h.Chunk.SectionKind, f.SectionKinds) {
			continue
		}
		if f.HasTable && !h.Chunk.HasTag(domain.TagHasTable) {
			continue
		}
		if f.HasContraindication && !h.Chunk.HasTag(domain.TagHasContraindication) {
			continue
		}
		if f.RequireContraindicationOrDose && !h.Chunk.HasTag(domain.TagHasContraindication) && !h.Chunk.HasTag(domain.TagHasDose) {
			continue
		}
		out = append(out, h)
	}
	return out
}

func tierIn(t domain.AuthorityTier, set []domain.AuthorityTier) bool {
	for _, s := range set {
		if s == t {
			return true
		}
	}
	return false
}

func domainIn(d domain.Domain, set []domain.Domain) bool {
	for _, s := range set {
		if s == d {
			return true
		}
	}
	return false
}

func sectionIn(k domain.SectionKind, set []domain.SectionKind) bool {
	for _, s := range set {
		if s == k {
			return true
		}
	}
	return false
}

// applyStandardOfCareGuard walks score-adjacent pairs within the same topic
// cluster and swaps rank when an under-qualified A4 chunk outranks an A1.
func applyStandardOfCareGuard(hits []domain.RetrievedHit, cfg precedence.Config) []domain.RetrievedHit {
	sortHits(hits)
	for i := 0; i < len(hits)-1; i++ {
		a, b := hits[i].Chunk, hits[i+1].Chunk
		_, _, swapped := precedence.ApplyStandardOfCareGuard(a, b)
		if swapped {
			// Move each hit whole, then exchange the scores so the A1 chunk
			// keeps the higher one and the later re-sort preserves the swap.
			hits[i], hits[i+1] = hits[i+1], hits[i]
			hits[i].FinalScore, hits[i+1].FinalScore = hits[i+1].FinalScore, hits[i].FinalScore
		}
	}
	return hits
}

// sortHits applies the §4.2 tie-break order: final_score desc, authority
// tier desc, year desc, text length asc, chunk_id asc.
func sortHits(hits []domain.RetrievedHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if ta, tb := tierRank(a.Chunk.AuthorityTier), tierRank(b.Chunk.AuthorityTier); ta != tb {
			return ta > tb
		}
		if a.Chunk.Year != b.Chunk.Year {
			return a.Chunk.Year > b.Chunk.Year
		}
		if len(a.Chunk.Text) != len(b.Chunk.Text) {
			return len(a.Chunk.Text) < len(b.Chunk.Text)
		}
		return a.ChunkID < b.ChunkID
	})
}

func tierRank(t domain.AuthorityTier) int {
	switch t {
	case domain.TierA1:
		return 4
	case domain.TierA2:
		return 3
	case domain.TierA3:
		return 2
	case domain.TierA4:
		return 1
	default:
		return 0
	}
}

func (r *Retriever) rerankTop30(ctx context.Context, qctx domain.QueryContext, hits []domain.RetrievedHit) []domain.RetrievedHit {
	n := 30
	if n > len(hits) {
		n = len(hits)
	}
	top := hits[:n]
	rest := hits[n:]

	docs := make([]string, len(top))
	for i, h := range top {
		docs[i] = h.Chunk.Text
	}
	scores, err := r.reranker.Score(ctx, qctx.NormalizedText, docs)
	if err != nil {
		return hits
	}
	for i := range top {
		if i < len(scores) {
			top[i].RerankScore = scores[i]
			top[i].FinalScore = 0.5*top[i].FinalScore + 0.5*scores[i]
		}
	}
	return append(top, rest...)
}
