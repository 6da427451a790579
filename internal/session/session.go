// Package session owns per-session conversation history: the last N turns
// a multi-turn query carries forward. State is Redis-backed, keyed and
// scoped exactly the way the teacher's short-term memory service keys
// conversation buffers, but generalized from per-agent to per-session
// scope since this service has no notion of a configurable agent.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ipassist/ipassist-core/internal/domain"
)

const keyPrefix = "ipassist:session:"

func memoryKey(sessionID string) string {
	return fmt.Sprintf("%s%s", keyPrefix, sessionID)
}

// History is the live, TTL-bounded conversation turn buffer for one session.
type History struct {
	SessionID string           `json:"session_id"`
	Turns     []domain.Message `json:"turns"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store manages per-session conversation history. Locking is per session
// via Redis's own per-key atomicity; no cross-session lock is needed since
// each request owns only its own session's history.
type Store struct {
	redis     *redis.Client
	maxTurns  int
	ttl       time.Duration
	fallback  map[string]History
}

// Config configures a Store.
type Config struct {
	MaxTurns   int
	TTLSeconds int
}

// New constructs a session store. redisClient may be nil, in which case
// history is kept in an unbounded in-process map (suitable only for tests
// or single-process deployments without Redis).
func New(redisClient *redis.Client, cfg Config) *Store {
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 10
	}
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		redis:    redisClient,
		maxTurns: maxTurns,
		ttl:      ttl,
		fallback: make(map[string]History),
	}
}

// Get retrieves a session's conversation history, returning an empty
// history if none exists yet.
func (s *Store) Get(ctx context.Context, sessionID string) (History, error) {
	if s.redis == nil {
		return s.fallback[sessionID], nil
	}
	data, err := s.redis.Get(ctx, memoryKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return History{SessionID: sessionID}, nil
		}
		return History{}, fmt.Errorf("session: get: %w", err)
	}
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return History{}, fmt.Errorf("session: unmarshal: %w", err)
	}
	return h, nil
}

// AddTurn appends a message to the session's history, trimming to the
// configured max turns.
func (s *Store) AddTurn(ctx context.Context, sessionID string, msg domain.Message) error {
	h, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	h.SessionID = sessionID
	h.Turns = append(h.Turns, msg)
	if len(h.Turns) > s.maxTurns {
		h.Turns = h.Turns[len(h.Turns)-s.maxTurns:]
	}
	h.UpdatedAt = time.Now()

	if s.redis == nil {
		s.fallback[sessionID] = h
		return nil
	}
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := s.redis.Set(ctx, memoryKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: set: %w", err)
	}
	return nil
}

// Clear removes a session's history entirely.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if s.redis == nil {
		delete(s.fallback, sessionID)
		return nil
	}
	if err := s.redis.Del(ctx, memoryKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}
