package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ExpiresEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	m := NewMemory(0)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "ok", []byte("long"), 30*time.Minute))
	require.NoError(t, m.Set(ctx, "failed", []byte("short"), time.Minute))

	v, ok, err := m.Get(ctx, "ok")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("long"), v)

	now = now.Add(2 * time.Minute)
	_, ok, _ = m.Get(ctx, "failed")
	assert.False(t, ok, "short ttl entry should have expired")
	_, ok, _ = m.Get(ctx, "ok")
	assert.True(t, ok)

	now = now.Add(30 * time.Minute)
	_, ok, _ = m.Get(ctx, "ok")
	assert.False(t, ok)

	m.sweep()
	assert.Zero(t, m.Len())
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	defer m.Close()

	src := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", src, 0))
	src[0] = 'x'

	v, ok, _ := m.Get(ctx, "k")
	require.True(t, ok)
	v[1] = 'y'

	again, _, _ := m.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "memcached"}, nil)
	assert.Error(t, err)
}
