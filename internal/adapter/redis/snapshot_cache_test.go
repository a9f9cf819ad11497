package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) (*SnapshotCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSnapshotCache(client, 2*time.Second), mr
}

func TestSnapshotCache_GetSet(t *testing.T) {
	ctx := context.Background()
	cache, mr := newCache(t)

	_, ok, err := cache.Get(ctx, "orders:0::")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "orders:0::", []byte(`{"orders":[]}`)))
	data, ok, err := cache.Get(ctx, "orders:0::")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"orders":[]}`, string(data))

	mr.FastForward(3 * time.Second)
	_, ok, err = cache.Get(ctx, "orders:0::")
	require.NoError(t, err)
	assert.False(t, ok, "entries expire after the TTL")
}

func TestSnapshotCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	cache, _ := newCache(t)

	gen, err := cache.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)

	require.NoError(t, cache.Invalidate(ctx))
	require.NoError(t, cache.Invalidate(ctx))

	gen, err = cache.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen)
}

func TestSnapshotCache_Unreachable(t *testing.T) {
	cache, mr := newCache(t)
	mr.Close()

	_, err := cache.Generation(context.Background())
	assert.Error(t, err)
}
