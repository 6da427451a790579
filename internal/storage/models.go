// Package storage holds the gorm-persisted records: one row per answered
// query, rolling per-classification usage stats, and durable conversation
// session metadata. Shapes and JSONB conventions follow the teacher's
// models/execution.go and models/usage_stats.go (UUID primary keys,
// datatypes.JSON for variable-shape payloads, soft-delete via DeletedAt).
package storage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// QueryExecution is one answered query, recorded for audit and for the
// usage-stats rollup.
type QueryExecution struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID    *uuid.UUID `json:"user_id,omitempty" gorm:"type:uuid;index"`
	SessionID *string   `json:"session_id,omitempty" gorm:"index"`

	QueryText      string `json:"query_text" gorm:"type:text;not null"`
	Classification string `json:"classification" gorm:"type:varchar(32);not null;index"`

	FiltersApplied  datatypes.JSON `json:"filters_applied,omitempty" gorm:"type:jsonb"`
	GroundingChunks datatypes.JSON `json:"grounding_chunks,omitempty" gorm:"type:jsonb"`
	SafetyWarnings  datatypes.JSON `json:"safety_warnings,omitempty" gorm:"type:jsonb"`

	IsEmergency    bool    `json:"is_emergency" gorm:"default:false;index"`
	ReviewRequired bool    `json:"review_required" gorm:"default:false;index"`
	Confidence     float64 `json:"confidence" gorm:"type:decimal(4,3)"`

	UsedReranker bool `json:"used_reranker" gorm:"default:false"`
	CacheHit     bool `json:"cache_hit" gorm:"default:false"`

	LatencyMs int `json:"latency_ms" gorm:"default:0"`

	ErrorKind string `json:"error_kind,omitempty" gorm:"type:varchar(64)"`

	CreatedAt time.Time  `json:"created_at" gorm:"not null;default:now();index"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" gorm:"index"`
}

func (QueryExecution) TableName() string { return "query_executions" }

// ClassificationUsageStats is a rolling per-classification counter row,
// keyed by classification the way the teacher keys AgentUsageStats by
// agent_id.
type ClassificationUsageStats struct {
	Classification string `json:"classification" gorm:"type:varchar(32);primary_key"`

	TotalQueries      int `json:"total_queries" gorm:"default:0"`
	EmergencyQueries  int `json:"emergency_queries" gorm:"default:0"`
	ReviewRequired    int `json:"review_required" gorm:"default:0"`
	RetrievalDegraded int `json:"retrieval_degraded" gorm:"default:0"`
	LLMFallbacks      int `json:"llm_fallbacks" gorm:"default:0"`

	AvgLatencyMs int `json:"avg_latency_ms" gorm:"default:0"`

	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:now()"`
}

func (ClassificationUsageStats) TableName() string { return "classification_usage_stats" }

// ConversationSession is the durable record of a multi-turn session,
// mirroring the in-memory/Redis session.History shape for the subset that
// outlives the TTL window (audit trail, not the live turn buffer).
type ConversationSession struct {
	SessionID string     `json:"session_id" gorm:"type:varchar(128);primary_key"`
	UserID    *uuid.UUID `json:"user_id,omitempty" gorm:"type:uuid;index"`

	TurnCount int `json:"turn_count" gorm:"default:0"`

	LastClassification string `json:"last_classification,omitempty" gorm:"type:varchar(32)"`

	ClosedAt *time.Time `json:"closed_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:now()"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:now()"`
}

func (ConversationSession) TableName() string { return "conversation_sessions" }
