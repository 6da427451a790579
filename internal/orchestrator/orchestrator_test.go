package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipassist/ipassist-core/internal/bm25"
	"github.com/ipassist/ipassist-core/internal/cache"
	"github.com/ipassist/ipassist-core/internal/citation"
	"github.com/ipassist/ipassist-core/internal/denseindex"
	"github.com/ipassist/ipassist-core/internal/domain"
	"github.com/ipassist/ipassist-core/internal/llm"
	"github.com/ipassist/ipassist-core/internal/precedence"
	"github.com/ipassist/ipassist-core/internal/querynorm"
	"github.com/ipassist/ipassist-core/internal/retrieval"
	"github.com/ipassist/ipassist-core/internal/safety"
	"github.com/ipassist/ipassist-core/internal/termindex"
)

type memStore struct {
	chunks map[string]domain.Chunk
}

func (m memStore) Get(id string) (domain.Chunk, bool) {
	c, ok := m.chunks[id]
	return c, ok
}

type fakeDense struct{}

func (fakeDense) Search(ctx context.Context, query string, m int) ([]denseindex.Hit, error) {
	return nil, nil
}

func sampleCorpus() []domain.Chunk {
	return []domain.Chunk{
		{
			ChunkID: "hemoptysis-1", Text: "Massive hemoptysis management requires immediate airway protection and bronchoscopy.",
			DocID: "d1", DocType: domain.DocTypeGuideline, SectionKind: domain.SectionProcedure,
			Year: 2024, AuthorityTier: domain.TierA1, EvidenceLevel: domain.LevelH1, Domain: domain.DomainClinical,
			Tags: []domain.Tag{domain.TagHasEmergencyPattern},
		},
		{
			ChunkID: "fiducial-1", Text: "Fiducial marker placement requires 3-6 markers non-collinear 1.5-5 cm apart.",
			DocID: "d2", DocType: domain.DocTypeJournalArticle, SectionKind: domain.SectionProcedure,
			Year: 2023, AuthorityTier: domain.TierA1, EvidenceLevel: domain.LevelH3, Domain: domain.DomainClinical,
			Aliases: []string{"fiducial marker"},
		},
	}
}

func buildOrchestrator(t *testing.T, llmServerURL string) *Orchestrator {
	t.Helper()
	corpus := sampleCorpus()
	store := memStore{chunks: map[string]domain.Chunk{}}
	for _, c := range corpus {
		store.chunks[c.ChunkID] = c
	}
	retr := retrieval.New(retrieval.Options{
		Dense:       fakeDense{},
		Sparse:      bm25.Build(corpus),
		Terms:       termindex.Build(corpus),
		Chunks:      store,
		Precedence:  precedence.DefaultConfig(),
		CurrentYear: func() int { return 2026 },
	})

	var llmClient *llm.Client
	if llmServerURL != "" {
		llmClient = llm.New(llm.Config{BaseURL: llmServerURL, Model: "test-model"})
	}

	return New(Options{
		EmergencyPatterns: []string{`\bmassive hemoptysis\b`},
		Retriever:         retr,
		Safety:            safety.New(safety.DefaultConfig()),
		Citations:         citation.Build(map[string]citation.Record{}),
		QueryNorm:         querynorm.New(nil),
		LLM:               llmClient,
		Cache:             cache.New(nil, cache.Config{TTLSeconds: 60, MaxItems: 10}, zerolog.Nop()),
		Budget:            Budget{RequestMs: 5000, EmergencyMs: 500},
		Log:               zerolog.Nop(),
	})
}

func TestHandleEmergencyFastPath(t *testing.T) {
	o := buildOrchestrator(t, "")
	resp, err := o.Handle(context.Background(), Request{Query: "management of massive hemoptysis >200 mL"})
	require.NoError(t, err)
	assert.True(t, resp.IsEmergency)
	assert.Equal(t, "emergency", resp.Classification)
	assert.Contains(t, resp.AnswerHTML, "emergency-protocol")
}

func TestHandleClinicalQuerySynthesizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"text": "Use 3-6 markers placed non-collinear, spaced [fiducial-1].",
			"raw":  map[string]any{"finish_reason": "stop"},
		})
	}))
	defer srv.Close()

	o := buildOrchestrator(t, srv.URL)
	resp, err := o.Handle(context.Background(), Request{Query: "fiducial marker placement requirements"})
	require.NoError(t, err)
	assert.False(t, resp.IsEmergency)
	assert.Contains(t, resp.AnswerHTML, "fiducial-1")
	assert.NotEmpty(t, resp.GroundingChunks)
}

func TestHandleFallsBackToEvidenceOnlyWhenLLMUnavailable(t *testing.T) {
	o := buildOrchestrator(t, "")
	resp, err := o.Handle(context.Background(), Request{Query: "fiducial marker placement requirements"})
	require.NoError(t, err)
	assert.Contains(t, resp.SafetyWarnings, "llm_unavailable")
	assert.NotEmpty(t, resp.GroundingChunks)
}

func TestHandleEmptyCorpusForQuery(t *testing.T) {
	o := buildOrchestrator(t, "")
	resp, err := o.Handle(context.Background(), Request{Query: "something entirely unrelated to any chunk xyz123"})
	require.NoError(t, err)
	assert.Contains(t, resp.SafetyWarnings, "empty_corpus_for_query")
}
