package repository

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailoverUsesPrimary(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	primary := NewRedisReplayCache(client, time.Hour)
	fallback := NewMemoryReplayCache(time.Hour)
	logger := zerolog.New(io.Discard)

	cache := NewFailoverReplayCache(primary, fallback, &logger)
	ctx := context.Background()

	first, err := cache.MarkIfFirst(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := cache.MarkIfFirst(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, again)

	// Marker landed in Redis, not in the fallback.
	assert.True(t, mr.Exists("webhook_event:evt_1"))
}

func TestFailoverFallsBackWhenPrimaryDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	primary := NewRedisReplayCache(client, time.Hour)
	fallback := NewMemoryReplayCache(time.Hour)
	logger := zerolog.New(io.Discard)

	cache := NewFailoverReplayCache(primary, fallback, &logger)
	ctx := context.Background()

	mr.Close()

	first, err := cache.MarkIfFirst(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := cache.MarkIfFirst(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, again)
}

func TestFailoverForgetWhileDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	primary := NewRedisReplayCache(client, time.Hour)
	fallback := NewMemoryReplayCache(time.Hour)
	logger := zerolog.New(io.Discard)

	cache := NewFailoverReplayCache(primary, fallback, &logger)
	ctx := context.Background()

	mr.Close()

	_, err := cache.MarkIfFirst(ctx, "evt_1")
	require.NoError(t, err)
	require.NoError(t, cache.Forget(ctx, "evt_1"))

	first, err := cache.MarkIfFirst(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, first)
}
