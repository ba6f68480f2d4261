package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/funding-auth/internal/auth"
	"github.com/spec-kit/funding-auth/internal/config"
)

func newTestStore(t *testing.T) (*CsrfStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return NewCsrfStore(client, "csrf:", time.Second), mr
}

func TestCsrfStore_PutGet(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "alice_funding_admin", "abc", time.Hour))

	got, err := store.Get(ctx, "alice_funding_admin")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	raw, err := mr.Get("csrf:alice_funding_admin")
	require.NoError(t, err)
	assert.Equal(t, "abc", raw)
	assert.Equal(t, time.Hour, mr.TTL("csrf:alice_funding_admin"))
}

func TestCsrfStore_Missing(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, auth.ErrCsrfBindingNotFound)
}

func TestCsrfStore_Overwrite(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "alice", "abc", time.Hour))
	require.NoError(t, store.Put(ctx, "alice", "xyz", time.Hour))

	got, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "xyz", got)
}

func TestCsrfStore_BindingExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "alice", "abc", time.Minute))
	mr.FastForward(time.Minute + time.Second)

	_, err := store.Get(ctx, "alice")
	assert.ErrorIs(t, err, auth.ErrCsrfBindingNotFound)
}

func TestCsrfStore_Unavailable(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	err := store.Put(context.Background(), "alice", "abc", time.Minute)
	require.Error(t, err)

	_, err = store.Get(context.Background(), "alice")
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrCsrfBindingNotFound)
}

func TestRedis_Ping(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(config.RedisConfig{Addr: mr.Addr(), OpTimeoutMs: 500}, zap.NewNop())
	defer r.Close()

	assert.NoError(t, r.Ping(context.Background()))

	var missing *Redis
	assert.Error(t, missing.Ping(context.Background()))
}
