package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetMemory(t *testing.T) {
	c := New(nil, Config{TTLSeconds: 60, MaxItems: 10}, zerolog.Nop())
	ctx := context.Background()
	key := Key("fiducial marker", nil, true)

	c.Set(ctx, key, []byte("payload"))
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "payload", string(got))
}

func TestLRUEviction(t *testing.T) {
	c := New(nil, Config{TTLSeconds: 60, MaxItems: 2}, zerolog.Nop())
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"))
	c.Set(ctx, "b", []byte("2"))
	c.Set(ctx, "c", []byte("3")) // evicts "a"

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestExpiry(t *testing.T) {
	c := New(nil, Config{TTLSeconds: 0, MaxItems: 10}, zerolog.Nop())
	c.ttl = 10 * time.Millisecond
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"))
	time.Sleep(20 * time.Millisecond)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestKeyDeterministic(t *testing.T) {
	k1 := Key("query", map[string]string{"domain": "clinical"}, true)
	k2 := Key("query", map[string]string{"domain": "clinical"}, true)
	assert.Equal(t, k1, k2)

	k3 := Key("query", map[string]string{"domain": "coding_billing"}, true)
	assert.NotEqual(t, k1, k3)
}
