package session

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipassist/ipassist-core/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, Config{MaxTurns: 3, TTLSeconds: 3600})
}

func TestAddTurnAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddTurn(ctx, "sess1", domain.Message{Role: "user", Content: "hello"}))
	h, err := s.Get(ctx, "sess1")
	require.NoError(t, err)
	require.Len(t, h.Turns, 1)
	assert.Equal(t, "hello", h.Turns[0].Content)
}

func TestAddTurnTrimsToMax(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AddTurn(ctx, "sess1", domain.Message{Role: "user", Content: "msg"}))
	}
	h, err := s.Get(ctx, "sess1")
	require.NoError(t, err)
	assert.Len(t, h.Turns, 3)
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddTurn(ctx, "sess1", domain.Message{Role: "user", Content: "hi"}))
	require.NoError(t, s.Clear(ctx, "sess1"))
	h, err := s.Get(ctx, "sess1")
	require.NoError(t, err)
	assert.Empty(t, h.Turns)
}
