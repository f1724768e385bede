package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisBackendFromClient(client, time.Second), mr
}

func TestRedisBackend_GetSetDelete(t *testing.T) {
	b, _ := newTestRedis(t)
	ctx := context.Background()

	_, ok, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Minute))

	v, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	existed, err := b.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = b.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestRedisBackend_NativeExpiry(t *testing.T) {
	b, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Hour))
	assert.Equal(t, time.Hour, mr.TTL("k"))

	mr.FastForward(time.Hour)

	_, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisBackend_PrefixOperations(t *testing.T) {
	b, _ := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "matches:v2:a", []byte("1"), time.Hour))
	require.NoError(t, b.Set(ctx, "matches:v2:b", []byte("2"), time.Hour))
	require.NoError(t, b.Set(ctx, "session:c", []byte("3"), time.Hour))

	count, err := b.CountPrefix(ctx, "matches:v2:")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	removed, err := b.DeletePrefix(ctx, "matches:v2:")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, ok, err := b.Get(ctx, "session:c")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisBackend_UnavailableReturnsError(t *testing.T) {
	b, mr := newTestRedis(t)
	mr.Close()

	_, _, err := b.Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestOpen_UsesRedisWhenReachable(t *testing.T) {
	mr := miniredis.RunT(t)

	b, err := Open(context.Background(), OpenConfig{RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	assert.Equal(t, "redis", b.Name())
}
