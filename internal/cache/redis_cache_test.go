package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"subpromo/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisCache(client, zerolog.Nop())
}

func TestRedisCache_GetSet(t *testing.T) {
	mr, c := newTestRedis(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)
	assert.True(t, IsMiss(err))

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisCache_SetRejectsNonPositiveTTL(t *testing.T) {
	_, c := newTestRedis(t)

	err := c.Set(context.Background(), "k", []byte("v"), 0)

	var cacheErr *Error
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "set", cacheErr.Op)
	assert.Equal(t, "k", cacheErr.Key)
}

func TestRedisCache_StoreFailureIsTypedError(t *testing.T) {
	mr, c := newTestRedis(t)
	mr.SetError("ERR injected failure")

	_, err := c.Get(context.Background(), "k")

	require.Error(t, err)
	assert.False(t, IsMiss(err))
	var cacheErr *Error
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "get", cacheErr.Op)
}

func TestRedisCache_DeleteByPattern(t *testing.T) {
	mr, c := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		require.NoError(t, mr.Set(fmt.Sprintf("p:validation:a:%d", i), "x"))
	}
	require.NoError(t, mr.Set("p:validation:b:1", "x"))
	require.NoError(t, mr.Set("p:list:all", "x"))

	deleted, err := c.DeleteByPattern(ctx, "p:validation:a:*", 4)
	require.NoError(t, err)
	assert.Equal(t, 25, deleted)

	assert.True(t, mr.Exists("p:validation:b:1"))
	assert.True(t, mr.Exists("p:list:all"))
	assert.False(t, mr.Exists("p:validation:a:0"))

	deleted, err = c.DeleteByPattern(ctx, "p:nothing:*", 10)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestRedisCache_DeleteByPattern_SinglePageBatches(t *testing.T) {
	mr, c := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 40; i++ {
		require.NoError(t, mr.Set(fmt.Sprintf("p:detail:%02d", i), "x"))
	}

	deleted, err := c.DeleteByPattern(ctx, "p:detail:*", 1)
	require.NoError(t, err)
	assert.Equal(t, 40, deleted)
	assert.Empty(t, mr.Keys())
}

func TestRedisCache_DeleteByPattern_ScanFailure(t *testing.T) {
	mr, c := newTestRedis(t)
	require.NoError(t, mr.Set("p:list:all", "x"))
	mr.SetError("ERR injected failure")

	deleted, err := c.DeleteByPattern(context.Background(), "p:list:*", 10)

	assert.Zero(t, deleted)
	var cacheErr *Error
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "scan", cacheErr.Op)
}

func TestJSONHelpers(t *testing.T) {
	_, c := newTestRedis(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, SetJSON(ctx, c, "json", payload{Name: "a", Count: 2}, time.Minute))
	got, err := GetJSON[payload](ctx, c, "json")
	require.NoError(t, err)
	assert.Equal(t, payload{Name: "a", Count: 2}, got)

	require.NoError(t, c.Set(ctx, "bad", []byte("{not json"), time.Minute))
	_, err = GetJSON[payload](ctx, c, "bad")
	var cacheErr *Error
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "decode", cacheErr.Op)
}

func TestNewRedisClient(t *testing.T) {
	ctx := context.Background()

	t.Run("Connects", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := NewRedisClient(ctx, config.RedisConfig{Addr: mr.Addr()}, zerolog.Nop())
		require.NoError(t, err)
		assert.NoError(t, client.Close())
	})

	t.Run("Unreachable address", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		client, err := NewRedisClient(ctx, config.RedisConfig{Addr: addr}, zerolog.Nop())
		assert.Error(t, err)
		assert.Nil(t, client)
	})
}
