// Package orchestrator drives the query state machine: start -> classify ->
// set_filters -> retrieve -> rerank? -> safety_pre -> synthesize ->
// safety_post -> end, with an emergency fast path that skips reranking and
// synthesis entirely. Staging follows the teacher's multi-pass pipeline
// shape (one method per stage, a result struct threaded through, elapsed
// time recorded per stage) generalized from segment-by-segment LLM calls to
// this domain's single-turn retrieve-then-synthesize flow.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ipassist/ipassist-core/internal/cache"
	"github.com/ipassist/ipassist-core/internal/citation"
	"github.com/ipassist/ipassist-core/internal/domain"
	"github.com/ipassist/ipassist-core/internal/llm"
	"github.com/ipassist/ipassist-core/internal/querynorm"
	"github.com/ipassist/ipassist-core/internal/retrieval"
	"github.com/ipassist/ipassist-core/internal/safety"
	"github.com/ipassist/ipassist-core/internal/session"
	"github.com/ipassist/ipassist-core/internal/storage"
)

// Request is the query path's exposed input shape.
type Request struct {
	Query       string
	TopK        int
	UseReranker *bool
	SessionID   string
	Filters     domain.Filters
}

// Response is the query path's exposed output shape.
type Response struct {
	AnswerHTML           string            `json:"answer_html"`
	Citations            []domain.Citation `json:"citations"`
	IsEmergency           bool              `json:"is_emergency"`
	Confidence            float64          `json:"confidence"`
	Classification        string           `json:"classification"`
	SafetyWarnings        []string         `json:"safety_warnings"`
	GroundingChunks       []string         `json:"grounding_chunks"`
	ReviewRequired        bool             `json:"review_required"`
	SuggestedRelaxations  []string         `json:"suggested_relaxations,omitempty"`
}

// relaxationOrder is the fixed priority order filters are dropped in when
// a query's filters empty out the corpus: the most specific, narrowest
// filter goes first.
var relaxationOrder = []string{"section_kind", "domain", "year_range", "authority_tier"}

func relaxFilters(f domain.Filters, step string) domain.Filters {
	switch step {
	case "section_kind":
		f.SectionKinds = nil
	case "domain":
		f.Domains = nil
	case "year_range":
		f.YearMin, f.YearMax = 0, 0
	case "authority_tier":
		f.AuthorityTiers = nil
	}
	return f
}

// Budget configures per-path request timeouts.
type Budget struct {
	RequestMs   int
	EmergencyMs int
}

// DefaultBudget matches the configured defaults.
func DefaultBudget() Budget {
	return Budget{RequestMs: 5000, EmergencyMs: 500}
}

// Orchestrator wires every stage's collaborator together.
type Orchestrator struct {
	classifier  *classifier
	retriever   *retrieval.Retriever
	safety      *safety.Checker
	citations   *citation.Index
	queryNorm   *querynorm.Normalizer
	llmClient   *llm.Client
	cache       *cache.Cache
	sessions    *session.Store
	storage     *storage.Store
	budget      Budget
	log         zerolog.Logger
	systemPrompt string
}

// Options constructs an Orchestrator.
type Options struct {
	EmergencyPatterns []string
	Retriever         *retrieval.Retriever
	Safety            *safety.Checker
	Citations         *citation.Index
	QueryNorm         *querynorm.Normalizer
	LLM               *llm.Client
	Cache             *cache.Cache
	Sessions          *session.Store
	Storage           *storage.Store
	Budget            Budget
	Log               zerolog.Logger
	SystemPrompt      string
}

// New constructs an Orchestrator.
func New(opts Options) *Orchestrator {
	budget := opts.Budget
	if budget.RequestMs <= 0 {
		budget = DefaultBudget()
	}
	prompt := opts.SystemPrompt
	if prompt == "" {
		prompt = "You are an interventional pulmonology reference assistant. Cite every clinical claim inline using the chunk IDs provided as grounding. Never state a claim the grounding does not support."
	}
	return &Orchestrator{
		classifier:   newClassifier(opts.EmergencyPatterns),
		retriever:    opts.Retriever,
		safety:       opts.Safety,
		citations:    opts.Citations,
		queryNorm:    opts.QueryNorm,
		llmClient:    opts.LLM,
		cache:        opts.Cache,
		sessions:     opts.Sessions,
		storage:      opts.Storage,
		budget:       budget,
		log:          opts.Log,
		systemPrompt: prompt,
	}
}

// Handle runs the full state machine for one query request.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	norm := o.queryNorm.Normalize(req.Query)
	class := o.classifier.Classify(norm.NormalizedText)

	useReranker := class != domain.ClassEmergency
	if req.UseReranker != nil {
		useReranker = *req.UseReranker && class != domain.ClassEmergency
	}
	filters, topK, useReranker := setFilters(class, req.Filters, req.TopK, useReranker)

	budgetMs := o.budget.RequestMs
	if class == domain.ClassEmergency {
		budgetMs = o.budget.EmergencyMs
	}
	rctx, cancel := context.WithTimeout(ctx, time.Duration(budgetMs)*time.Millisecond)
	defer cancel()

	history := o.historyFor(rctx, req.SessionID)

	qctx := domain.QueryContext{
		RawText:             req.Query,
		NormalizedText:      norm.NormalizedText,
		Classification:      class,
		Filters:             filters,
		TopK:                topK,
		UseReranker:         useReranker,
		SessionID:           req.SessionID,
		ConversationHistory: history,
	}

	pre := o.safety.Pre(norm.NormalizedText)

	cacheKey := ""
	if o.cache != nil && class != domain.ClassEmergency {
		cacheKey = cache.Key(norm.NormalizedText, filters, useReranker)
		if cached, ok := o.cache.Get(rctx, cacheKey); ok {
			var resp Response
			if err := json.Unmarshal(cached, &resp); err == nil {
				o.recordExecution(rctx, req, class, resp, useReranker, true, "", time.Since(start))
				o.log.Debug().Str("classification", string(class)).Msg("orchestrator: cache hit")
				return resp, nil
			}
		}
	}

	result, err := o.retriever.Search(rctx, qctx)
	if err != nil {
		if err == retrieval.ErrRetrievalUnavailable {
			return Response{}, fmt.Errorf("retrieval_unavailable: %w", err)
		}
		return Response{}, err
	}

	if len(result.Hits) == 0 {
		resp := Response{
			Classification:       string(class),
			IsEmergency:          class == domain.ClassEmergency,
			SafetyWarnings:       append(pre.Warnings, "empty_corpus_for_query"),
			GroundingChunks:      nil,
			ReviewRequired:       false,
			SuggestedRelaxations: o.suggestRelaxations(rctx, qctx),
		}
		o.recordExecution(rctx, req, class, resp, useReranker, false, "empty_corpus_for_query", time.Since(start))
		return resp, nil
	}

	groundingChunks := make([]domain.Chunk, 0, len(result.Hits))
	groundingIDs := make([]string, 0, len(result.Hits))
	for _, h := range result.Hits {
		groundingChunks = append(groundingChunks, h.Chunk)
		groundingIDs = append(groundingIDs, h.ChunkID)
	}

	if class == domain.ClassEmergency {
		resp := o.emergencyResponse(result.Hits, pre)
		o.persistTurn(rctx, req.SessionID, req.Query, resp.AnswerHTML, class)
		o.recordExecution(rctx, req, class, resp, false, false, "", time.Since(start))
		o.log.Info().Dur("elapsed", time.Since(start)).Str("classification", string(class)).Msg("orchestrator: emergency fast path")
		return resp, nil
	}

	draft, raw, synthErr := o.synthesize(rctx, qctx, result.Hits)
	if synthErr != nil {
		resp := o.evidenceOnlyResponse(class, result.Hits, pre, result.Warnings)
		o.persistTurn(rctx, req.SessionID, req.Query, resp.AnswerHTML, class)
		o.recordExecution(rctx, req, class, resp, useReranker, false, "llm_unavailable", time.Since(start))
		o.log.Warn().Err(synthErr).Msg("orchestrator: llm unavailable, returning evidence-only response")
		return resp, nil
	}
	_ = raw

	post := o.safety.Post(draft, groundingChunks, class)

	cited := o.extractCitedChunkIDs(draft, groundingIDs)
	citations := citation.VisibleOnly(o.citations.Resolve(cited, groundingChunks))

	warnings := append(append([]string{}, pre.Warnings...), result.Warnings...)
	warnings = append(warnings, post.Warnings...)
	warnings = dedupeStrings(append(warnings, staleCodingWarnings(groundingChunks)...))

	resp := Response{
		AnswerHTML:      draft,
		Citations:       citations,
		IsEmergency:     false,
		Confidence:      confidenceFromHits(result.Hits),
		Classification:  string(class),
		SafetyWarnings:  warnings,
		GroundingChunks: groundingIDs,
		ReviewRequired:  post.ReviewRequired,
	}

	o.persistTurn(rctx, req.SessionID, req.Query, draft, class)
	o.recordExecution(rctx, req, class, resp, useReranker, false, "", time.Since(start))
	if o.cache != nil && cacheKey != "" {
		if encoded, err := json.Marshal(resp); err == nil {
			o.cache.Set(rctx, cacheKey, encoded)
		}
	}
	o.log.Info().Dur("elapsed", time.Since(start)).Str("classification", string(class)).Msg("orchestrator: request complete")
	return resp, nil
}

// recordExecution persists one answered-query audit row and rolls its
// outcome into the classification usage stats. Persistence failures are
// logged, never surfaced to the caller: the audit trail must not hold up
// an already-computed answer.
func (o *Orchestrator) recordExecution(ctx context.Context, req Request, class domain.Classification, resp Response, useReranker, cacheHit bool, errorKind string, elapsed time.Duration) {
	if o.storage == nil {
		return
	}
	filters, _ := json.Marshal(req.Filters)
	grounding, _ := json.Marshal(resp.GroundingChunks)
	warnings, _ := json.Marshal(resp.SafetyWarnings)
	sessionID := &req.SessionID
	if req.SessionID == "" {
		sessionID = nil
	}
	exec := &storage.QueryExecution{
		SessionID:       sessionID,
		QueryText:       req.Query,
		Classification:  string(class),
		FiltersApplied:  filters,
		GroundingChunks: grounding,
		SafetyWarnings:  warnings,
		IsEmergency:     resp.IsEmergency,
		ReviewRequired:  resp.ReviewRequired,
		Confidence:      resp.Confidence,
		UsedReranker:    useReranker,
		CacheHit:        cacheHit,
		LatencyMs:       int(elapsed.Milliseconds()),
		ErrorKind:       errorKind,
	}
	if err := o.storage.RecordExecution(ctx, exec); err != nil {
		o.log.Warn().Err(err).Msg("orchestrator: failed to record query execution audit row")
	}
}

// suggestRelaxations probes retrieval with filters dropped one at a time,
// in relaxationOrder, and returns the cumulative set of relaxations that
// first yields a non-empty result. Returns nil if even dropping every
// filter finds nothing, meaning the corpus genuinely lacks this content.
func (o *Orchestrator) suggestRelaxations(ctx context.Context, qctx domain.QueryContext) []string {
	relaxed := qctx.Filters
	applied := make([]string, 0, len(relaxationOrder))
	for _, step := range relaxationOrder {
		relaxed = relaxFilters(relaxed, step)
		applied = append(applied, step)

		probe := qctx
		probe.Filters = relaxed
		result, err := o.retriever.Search(ctx, probe)
		if err == nil && len(result.Hits) > 0 {
			return applied
		}
	}
	return nil
}

func (o *Orchestrator) historyFor(ctx context.Context, sessionID string) []domain.Message {
	if o.sessions == nil || sessionID == "" {
		return nil
	}
	h, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil
	}
	return h.Turns
}

func (o *Orchestrator) persistTurn(ctx context.Context, sessionID, query, answer string, class domain.Classification) {
	if o.sessions == nil || sessionID == "" {
		return
	}
	_ = o.sessions.AddTurn(ctx, sessionID, domain.Message{Role: "user", Content: query})
	_ = o.sessions.AddTurn(ctx, sessionID, domain.Message{Role: "assistant", Content: answer})

	if o.storage == nil {
		return
	}
	turnCount := 0
	if h, err := o.sessions.Get(ctx, sessionID); err == nil {
		turnCount = len(h.Turns)
	}
	if err := o.storage.UpsertSession(ctx, sessionID, turnCount, string(class)); err != nil {
		o.log.Warn().Err(err).Msg("orchestrator: failed to upsert durable session record")
	}
}

// synthesize calls the external LLM with the system prompt, conversation
// history, and grounding chunks as context.
func (o *Orchestrator) synthesize(ctx context.Context, qctx domain.QueryContext, hits []domain.RetrievedHit) (string, map[string]any, error) {
	if o.llmClient == nil {
		return "", nil, fmt.Errorf("llm client not configured")
	}
	messages := make([]domain.Message, 0, len(qctx.ConversationHistory)+2)
	messages = append(messages, domain.Message{Role: "system", Content: o.systemPrompt})
	messages = append(messages, qctx.ConversationHistory...)
	messages = append(messages, domain.Message{Role: "user", Content: buildGroundedPrompt(qctx.RawText, hits)})

	resp, err := o.llmClient.Generate(ctx, messages, nil, 1024, "")
	if err != nil {
		return "", nil, err
	}
	return resp.Text, resp.Raw, nil
}

func buildGroundedPrompt(query string, hits []domain.RetrievedHit) string {
	prompt := "Question: " + query + "\n\nGrounding chunks:\n"
	for _, h := range hits {
		prompt += fmt.Sprintf("[%s] %s\n", h.ChunkID, h.Chunk.Text)
	}
	return prompt
}

// emergencyResponse builds the canned emergency template: the retrieved
// A1/A2 chunks listed without LLM synthesis, meeting the fast-path budget.
func (o *Orchestrator) emergencyResponse(hits []domain.RetrievedHit, pre safety.PreCheck) Response {
	ids := make([]string, 0, len(hits))
	html := "<div class=\"emergency-protocol\"><p>This appears to be an emergency query. The following authoritative sources apply:</p><ul>"
	for _, h := range hits {
		ids = append(ids, h.ChunkID)
		html += fmt.Sprintf("<li>[%s] %s</li>", h.ChunkID, h.Chunk.Text)
	}
	html += "</ul><p>Seek immediate in-person evaluation; this summary does not replace clinical judgment.</p></div>"

	return Response{
		AnswerHTML:      html,
		Citations:       nil,
		IsEmergency:     true,
		Confidence:      confidenceFromHits(hits),
		Classification:  string(domain.ClassEmergency),
		SafetyWarnings:  pre.Warnings,
		GroundingChunks: ids,
		ReviewRequired:  false,
	}
}

// evidenceOnlyResponse is returned when the LLM is unavailable or times
// out: ordered grounding chunks with citations and no synthesized prose.
func (o *Orchestrator) evidenceOnlyResponse(class domain.Classification, hits []domain.RetrievedHit, pre safety.PreCheck, retrievalWarnings []string) Response {
	ids := make([]string, 0, len(hits))
	chunks := make([]domain.Chunk, 0, len(hits))
	html := "<div class=\"evidence-only\"><p>Synthesis unavailable; returning ranked source evidence.</p><ul>"
	for _, h := range hits {
		ids = append(ids, h.ChunkID)
		chunks = append(chunks, h.Chunk)
		html += fmt.Sprintf("<li>[%s] %s</li>", h.ChunkID, h.Chunk.Text)
	}
	html += "</ul></div>"

	warnings := dedupeStrings(append(append([]string{"llm_unavailable"}, pre.Warnings...), retrievalWarnings...))
	citations := citation.VisibleOnly(o.citations.Resolve(ids, chunks))

	return Response{
		AnswerHTML:      html,
		Citations:       citations,
		IsEmergency:     class == domain.ClassEmergency,
		Confidence:      confidenceFromHits(hits),
		Classification:  string(class),
		SafetyWarnings:  warnings,
		GroundingChunks: ids,
		ReviewRequired:  false,
	}
}

// extractCitedChunkIDs returns the grounding chunk IDs the draft actually
// references inline, preserving first-appearance order, falling back to
// the full grounding set when the draft cites none explicitly.
func (o *Orchestrator) extractCitedChunkIDs(draft string, groundingIDs []string) []string {
	var cited []string
	for _, id := range groundingIDs {
		if containsToken(draft, id) {
			cited = append(cited, id)
		}
	}
	if len(cited) == 0 {
		return groundingIDs
	}
	return cited
}

func containsToken(haystack, token string) bool {
	return len(token) > 0 && indexOf(haystack, token) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func confidenceFromHits(hits []domain.RetrievedHit) float64 {
	if len(hits) == 0 {
		return 0
	}
	top := hits[0].FinalScore
	if top > 1 {
		top = 1
	}
	if top < 0 {
		top = 0
	}
	return top
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func staleCodingWarnings(chunks []domain.Chunk) []string {
	var warnings []string
	for _, c := range chunks {
		if c.HasTag(domain.TagStaleCoding) {
			warnings = append(warnings, "stale_coding")
			break
		}
	}
	return warnings
}
