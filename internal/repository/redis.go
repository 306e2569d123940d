package repository

import (
	"context"
	"fmt"
	"time"

	"vendora/internal/config"

	"github.com/redis/go-redis/v9"
)

// RedisReplayCache remembers processed webhook event IDs via SETNX. A marker
// is the fast path only; the conditional transition stays the source of
// idempotency when Redis is cold or empty.
type RedisReplayCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a Redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisReplayCache(client *redis.Client, ttl time.Duration) *RedisReplayCache {
	return &RedisReplayCache{
		client: client,
		ttl:    ttl,
	}
}

func replayKey(eventID string) string {
	return fmt.Sprintf("webhook_event:%s", eventID)
}

// MarkIfFirst returns true when this is the first time the event ID is seen.
func (r *RedisReplayCache) MarkIfFirst(ctx context.Context, eventID string) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	set, err := r.client.SetNX(ctx, replayKey(eventID), 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event in redis: %w", err)
	}
	return set, nil
}

// Forget drops the marker so a redelivery of the event is processed again.
func (r *RedisReplayCache) Forget(ctx context.Context, eventID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	if err := r.client.Del(ctx, replayKey(eventID)).Err(); err != nil {
		return fmt.Errorf("failed to delete event marker from redis: %w", err)
	}
	return nil
}
