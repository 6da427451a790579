// Package handlers exposes the gin HTTP surface for the query, coding, and
// session endpoints. Request parsing and error-response shapes follow
// agent_handlers.go's ShouldBindJSON / c.JSON(gin.H{"error": ...}) idiom.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ipassist/ipassist-core/internal/domain"
	"github.com/ipassist/ipassist-core/internal/orchestrator"
	"github.com/ipassist/ipassist-core/internal/retrieval"
)

// QueryHandlers serves the answer-synthesis query path.
type QueryHandlers struct {
	orchestrator *orchestrator.Orchestrator
}

// NewQueryHandlers constructs the query handlers.
func NewQueryHandlers(o *orchestrator.Orchestrator) *QueryHandlers {
	return &QueryHandlers{orchestrator: o}
}

type queryRequest struct {
	Query       string         `json:"query" binding:"required"`
	TopK        int            `json:"top_k"`
	UseReranker *bool          `json:"use_reranker"`
	SessionID   string         `json:"session_id"`
	Filters     map[string]any `json:"filters"`
	Model       string         `json:"model"`
}

// Query handles POST /api/v1/query.
func (h *QueryHandlers) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	resp, err := h.orchestrator.Handle(c.Request.Context(), orchestrator.Request{
		Query:       req.Query,
		TopK:        req.TopK,
		UseReranker: req.UseReranker,
		SessionID:   req.SessionID,
		Filters:     parseFilters(req.Filters),
	})
	if err != nil {
		if errors.Is(err, retrieval.ErrRetrievalUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "retrieval_unavailable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func parseFilters(raw map[string]any) domain.Filters {
	var f domain.Filters
	if raw == nil {
		return f
	}
	if tiers, ok := raw["authority_tiers"].([]any); ok {
		for _, t := range tiers {
			if s, ok := t.(string); ok {
				f.AuthorityTiers = append(f.AuthorityTiers, domain.AuthorityTier(s))
			}
		}
	}
	if domains, ok := raw["domains"].([]any); ok {
		for _, d := range domains {
			if s, ok := d.(string); ok {
				f.Domains = append(f.Domains, domain.Domain(s))
			}
		}
	}
	if yearMin, ok := raw["year_min"].(float64); ok {
		f.YearMin = int(yearMin)
	}
	if yearMax, ok := raw["year_max"].(float64); ok {
		f.YearMax = int(yearMax)
	}
	return f
}
