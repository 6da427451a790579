package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ipassist/ipassist-core/internal/storage"
)

// StatsHandlers serves the rolling per-classification usage counters the
// audit layer accumulates on every answered query.
type StatsHandlers struct {
	storage *storage.Store
}

// NewStatsHandlers constructs the stats handlers.
func NewStatsHandlers(s *storage.Store) *StatsHandlers {
	return &StatsHandlers{storage: s}
}

// GetUsageStats handles GET /api/v1/stats/:classification.
func (h *StatsHandlers) GetUsageStats(c *gin.Context) {
	classification := c.Param("classification")
	stats, err := h.storage.GetUsageStats(c.Request.Context(), classification)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load usage stats", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
