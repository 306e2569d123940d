package repository

import (
	"context"
	"sync/atomic"
	"time"

	"vendora/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverReplayCache prefers the primary cache and degrades to the fallback
// when the primary errors. The primary is probed again after a minute.
type FailoverReplayCache struct {
	primary   domain.ReplayCache
	fallback  domain.ReplayCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverReplayCache(primary, fallback domain.ReplayCache, logger *zerolog.Logger) *FailoverReplayCache {
	return &FailoverReplayCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverReplayCache) MarkIfFirst(ctx context.Context, eventID string) (bool, error) {
	if !r.isDown.Load() {
		first, err := r.primary.MarkIfFirst(ctx, eventID)
		if err == nil {
			return first, nil
		}
		r.logger.Error().Err(err).Msg("Primary replay cache failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		first, err := r.primary.MarkIfFirst(ctx, eventID)
		if err == nil {
			r.isDown.Store(false)
			return first, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.MarkIfFirst(ctx, eventID)
}

func (r *FailoverReplayCache) Forget(ctx context.Context, eventID string) error {
	if !r.isDown.Load() {
		err := r.primary.Forget(ctx, eventID)
		if err == nil {
			return r.fallback.Forget(ctx, eventID)
		}
		r.logger.Error().Err(err).Msg("Primary replay cache failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.Forget(ctx, eventID)
}
