package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSessionNotFound is returned when a durable session lookup finds no
// matching row.
var ErrSessionNotFound = errors.New("storage: session not found")

// Store persists query executions and rolling usage stats, following the
// teacher's gorm-backed service-impl structure (a *gorm.DB held directly,
// WithContext on every call, gorm.ErrRecordNotFound translated to a
// domain-meaningful error).
type Store struct {
	db *gorm.DB
}

// New constructs a Store. AutoMigrate is left to the caller's startup
// sequence, the same separation the teacher keeps between service
// construction and schema migration.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the backing tables.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&QueryExecution{}, &ClassificationUsageStats{}, &ConversationSession{})
}

// RecordExecution inserts one answered-query audit row and rolls its
// outcome into the classification's usage stats in the same transaction.
func (s *Store) RecordExecution(ctx context.Context, exec *QueryExecution) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(exec).Error; err != nil {
			return fmt.Errorf("storage: create query execution: %w", err)
		}
		return bumpUsageStats(tx, exec)
	})
}

func bumpUsageStats(tx *gorm.DB, exec *QueryExecution) error {
	var stats ClassificationUsageStats
	err := tx.Where("classification = ?", exec.Classification).First(&stats).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		stats = ClassificationUsageStats{Classification: exec.Classification}
	case err != nil:
		return fmt.Errorf("storage: load usage stats: %w", err)
	}

	stats.TotalQueries++
	if exec.IsEmergency {
		stats.EmergencyQueries++
	}
	if exec.ReviewRequired {
		stats.ReviewRequired++
	}
	if exec.ErrorKind == "retrieval_degraded" {
		stats.RetrievalDegraded++
	}
	if exec.ErrorKind == "llm_unavailable" || exec.ErrorKind == "llm_timeout" {
		stats.LLMFallbacks++
	}
	if stats.TotalQueries > 0 {
		stats.AvgLatencyMs = (stats.AvgLatencyMs*(stats.TotalQueries-1) + exec.LatencyMs) / stats.TotalQueries
	}
	stats.UpdatedAt = time.Now()

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "classification"}},
		UpdateAll: true,
	}).Create(&stats).Error
}

// GetUsageStats returns the current rollup for a classification, zero
// values if none has been recorded yet.
func (s *Store) GetUsageStats(ctx context.Context, classification string) (ClassificationUsageStats, error) {
	var stats ClassificationUsageStats
	err := s.db.WithContext(ctx).Where("classification = ?", classification).First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ClassificationUsageStats{Classification: classification}, nil
	}
	if err != nil {
		return ClassificationUsageStats{}, fmt.Errorf("storage: get usage stats: %w", err)
	}
	return stats, nil
}

// UpsertSession records a session's last-seen classification and turn
// count for the audit trail (distinct from the live Redis turn buffer,
// which owns actual conversation content).
func (s *Store) UpsertSession(ctx context.Context, sessionID string, turnCount int, lastClassification string) error {
	session := ConversationSession{
		SessionID:           sessionID,
		TurnCount:           turnCount,
		LastClassification:  lastClassification,
		UpdatedAt:           time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		UpdateAll: true,
	}).Create(&session).Error
}

// CreateSession inserts a new durable session record. Returns an error if
// the session_id already exists.
func (s *Store) CreateSession(ctx context.Context, sessionID string, userID *uuid.UUID) (ConversationSession, error) {
	session := ConversationSession{
		SessionID: sessionID,
		UserID:    userID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return ConversationSession{}, fmt.Errorf("storage: create session: %w", err)
	}
	return session, nil
}

// GetSession returns the durable record for a session_id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (ConversationSession, error) {
	var session ConversationSession
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ConversationSession{}, ErrSessionNotFound
	}
	if err != nil {
		return ConversationSession{}, fmt.Errorf("storage: get session: %w", err)
	}
	return session, nil
}

// ListSessions returns the most recently updated durable sessions, newest
// first, capped at limit.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]ConversationSession, error) {
	var sessions []ConversationSession
	err := s.db.WithContext(ctx).Order("updated_at DESC").Limit(limit).Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("storage: list sessions: %w", err)
	}
	return sessions, nil
}

// UpdateSessionClassification lets an operator correct a session's
// last-recorded classification without waiting for the next turn.
func (s *Store) UpdateSessionClassification(ctx context.Context, sessionID, classification string) (ConversationSession, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return ConversationSession{}, err
	}
	session.LastClassification = classification
	session.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(&session).Error; err != nil {
		return ConversationSession{}, fmt.Errorf("storage: update session: %w", err)
	}
	return session, nil
}

// CloseSession marks a durable session record closed. Idempotent: closing
// an already-closed session is not an error.
func (s *Store) CloseSession(ctx context.Context, sessionID string) (ConversationSession, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return ConversationSession{}, err
	}
	now := time.Now()
	session.ClosedAt = &now
	session.UpdatedAt = now
	if err := s.db.WithContext(ctx).Save(&session).Error; err != nil {
		return ConversationSession{}, fmt.Errorf("storage: close session: %w", err)
	}
	return session, nil
}
