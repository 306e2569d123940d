package sweeper

import (
	"context"
	"time"

	"vendora/internal/domain"
	"vendora/internal/events"
	"vendora/internal/metrics"
	"vendora/internal/models"

	"github.com/rs/zerolog"
)

// Sweeper promotes confirmed bookings whose service date has passed to
// completed. Manual-path bookings never receive a gateway callback, so this
// time-based promotion is their only route to the terminal state.
type Sweeper struct {
	repo      domain.BookingRepository
	notifier  domain.Notifier
	publisher domain.EventPublisher
	logger    zerolog.Logger
}

func New(repo domain.BookingRepository, notifier domain.Notifier, publisher domain.EventPublisher, logger *zerolog.Logger) *Sweeper {
	return &Sweeper{
		repo:      repo,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger.With().Str("component", "sweeper").Logger(),
	}
}

// RunOnce performs a single sweep and returns how many bookings it actually
// promoted. Each transition is independently conditional, so a concurrent
// webhook or second sweep on the same row yields exactly one winner.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	cutoff := time.Now()

	candidates, err := s.repo.ListByStatusOlderThan(ctx, models.StatusConfirmed, cutoff)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, booking := range candidates {
		applied, err := s.repo.TransitionStatus(ctx, booking.ID, models.StatusCompleted, models.StatusConfirmed)
		if err != nil {
			s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("sweep transition failed")
			continue
		}
		if !applied {
			// Lost the race to a webhook; nothing to do.
			continue
		}

		promoted++
		s.afterPromotion(ctx, booking)
	}

	metrics.AddSweeperTransitions(promoted)
	s.logger.Info().
		Int("candidates", len(candidates)).
		Int("promoted", promoted).
		Msg("sweep finished")
	return promoted, nil
}

func (s *Sweeper) afterPromotion(ctx context.Context, booking *models.Booking) {
	if s.publisher != nil {
		payload := events.BookingEventPayload{
			BookingID:  booking.ID,
			UserID:     booking.UserID,
			VendorID:   booking.VendorID,
			Status:     models.StatusCompleted,
			OccurredAt: time.Now(),
		}
		if err := s.publisher.PublishJSON(events.EventBookingCompleted, payload); err != nil {
			s.logger.Warn().Err(err).Int64("booking_id", booking.ID).Msg("failed to publish event")
		}
	}

	if s.notifier != nil {
		s.notifier.NotifyStatusChange(ctx, booking.ID, models.StatusCompleted, []int64{booking.UserID, booking.VendorID})
	}
}
