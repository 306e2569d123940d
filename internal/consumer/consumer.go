package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vendora/internal/database"
	"vendora/internal/domain"
	"vendora/internal/events"
	"vendora/internal/gateway"
	"vendora/internal/metrics"
	"vendora/internal/models"

	"github.com/rs/zerolog"
)

// Outcomes recorded per processed event.
const (
	outcomeApplied      = "applied"
	outcomeReplay       = "replay"
	outcomeIgnored      = "ignored"
	outcomeUnresolvable = "unresolvable"
	outcomeFailed       = "failed"
)

// Consumer applies verified gateway events to booking state. Dispatch is
// driven entirely by the conditional status transition: a replayed or
// out-of-order event finds no row in the expected prior status and becomes a
// no-op instead of an error.
type Consumer struct {
	repo      domain.BookingRepository
	ledger    domain.ErrorLedger
	gateway   domain.PaymentGateway
	notifier  domain.Notifier
	publisher domain.EventPublisher
	replay    domain.ReplayCache
	logger    zerolog.Logger
}

func New(
	repo domain.BookingRepository,
	ledger domain.ErrorLedger,
	paymentGateway domain.PaymentGateway,
	notifier domain.Notifier,
	publisher domain.EventPublisher,
	replay domain.ReplayCache,
	logger *zerolog.Logger,
) *Consumer {
	return &Consumer{
		repo:      repo,
		ledger:    ledger,
		gateway:   paymentGateway,
		notifier:  notifier,
		publisher: publisher,
		replay:    replay,
		logger:    logger.With().Str("component", "consumer").Logger(),
	}
}

// Process dispatches one verified event. A nil return means the delivery must
// be acknowledged; a non-nil return is the only path that triggers gateway
// redelivery.
func (c *Consumer) Process(ctx context.Context, event *gateway.Event) error {
	log := c.logger.With().
		Str("event_id", event.ID).
		Str("event_kind", event.RawKind).
		Logger()

	if c.replay != nil {
		first, err := c.replay.MarkIfFirst(ctx, event.ID)
		if err != nil {
			// Cache outage disables the fast path only.
			log.Warn().Err(err).Msg("replay cache unavailable, relying on conditional transition")
		} else if !first {
			log.Debug().Msg("event already processed, skipping")
			metrics.IncWebhookEvent(event.RawKind, outcomeReplay)
			return nil
		}
	}

	outcome, err := c.dispatch(ctx, event, log)
	if err != nil {
		// Let the gateway redeliver; drop the replay marker so the retry
		// is not short-circuited.
		if c.replay != nil {
			if forgetErr := c.replay.Forget(ctx, event.ID); forgetErr != nil {
				log.Warn().Err(forgetErr).Msg("failed to clear replay marker")
			}
		}
		c.appendLedger(ctx, event, nil, models.ErrCodeDispatchFailure, err.Error())
		metrics.IncWebhookEvent(event.RawKind, outcomeFailed)
		log.Error().Err(err).Msg("event dispatch failed")
		return err
	}

	metrics.IncWebhookEvent(event.RawKind, outcome)
	log.Info().Str("outcome", outcome).Msg("event processed")
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, event *gateway.Event, log zerolog.Logger) (string, error) {
	switch event.Kind {
	case gateway.KindAuthorizationSucceeded:
		return c.handleAuthorizationSucceeded(ctx, event, log)
	case gateway.KindAuthorizationFailed:
		return c.handleAuthorizationFailed(ctx, event)
	case gateway.KindChargeRefunded:
		return c.handleChargeRefunded(ctx, event)
	default:
		c.appendLedger(ctx, event, nil, models.ErrCodeUnresolvableEvent,
			fmt.Sprintf("unknown event kind %q", event.RawKind))
		return outcomeUnresolvable, nil
	}
}

func (c *Consumer) handleAuthorizationSucceeded(ctx context.Context, event *gateway.Event, log zerolog.Logger) (string, error) {
	booking, outcome, err := c.resolveByMetadata(ctx, event)
	if booking == nil {
		return outcome, err
	}

	applied, err := c.repo.TransitionStatus(ctx, booking.ID, models.StatusCompleted,
		models.StatusPendingPayment, models.StatusConfirmed)
	if err != nil {
		return "", fmt.Errorf("transition to completed: %w", err)
	}
	if !applied {
		return outcomeIgnored, nil
	}

	if event.AuthorizationRef != "" {
		if _, err := c.repo.SetExternalPaymentRef(ctx, booking.ID, event.AuthorizationRef); err != nil {
			if !errors.Is(err, database.ErrPaymentRefTaken) {
				return "", fmt.Errorf("record payment ref: %w", err)
			}
		}
	}

	// The transition above applied exactly once, so capture runs at most
	// once per booking. A failed capture is recorded, never retried here.
	if c.gateway != nil && event.AuthorizationRef != "" {
		if _, err := c.gateway.Capture(ctx, event.AuthorizationRef); err != nil {
			c.appendLedger(ctx, event, booking, models.ErrCodeCaptureFailure, err.Error())
			log.Error().Err(err).Int64("booking_id", booking.ID).Msg("capture failed after transition")
		}
	}

	c.afterTransition(ctx, booking, models.StatusCompleted, events.EventBookingCompleted, event.AuthorizationRef)
	return outcomeApplied, nil
}

func (c *Consumer) handleAuthorizationFailed(ctx context.Context, event *gateway.Event) (string, error) {
	booking, outcome, err := c.resolveByMetadata(ctx, event)
	if booking == nil {
		return outcome, err
	}

	applied, err := c.repo.TransitionStatus(ctx, booking.ID, models.StatusPaymentFailed,
		models.StatusPendingPayment)
	if err != nil {
		return "", fmt.Errorf("transition to payment_failed: %w", err)
	}
	if !applied {
		return outcomeIgnored, nil
	}

	c.afterTransition(ctx, booking, models.StatusPaymentFailed, events.EventPaymentFailed, event.AuthorizationRef)
	return outcomeApplied, nil
}

func (c *Consumer) handleChargeRefunded(ctx context.Context, event *gateway.Event) (string, error) {
	if event.AuthorizationRef == "" {
		c.appendLedger(ctx, event, nil, models.ErrCodeUnresolvableEvent, "refund event without authorization ref")
		return outcomeUnresolvable, nil
	}

	booking, err := c.repo.FindByExternalPaymentRef(ctx, event.AuthorizationRef)
	if err != nil {
		if errors.Is(err, database.ErrBookingNotFound) {
			c.appendLedger(ctx, event, nil, models.ErrCodeUnresolvableEvent,
				fmt.Sprintf("no booking holds payment ref %q", event.AuthorizationRef))
			return outcomeUnresolvable, nil
		}
		return "", fmt.Errorf("lookup by payment ref: %w", err)
	}

	applied, err := c.repo.TransitionStatus(ctx, booking.ID, models.StatusRefunded,
		models.StatusCompleted)
	if err != nil {
		return "", fmt.Errorf("transition to refunded: %w", err)
	}
	if !applied {
		return outcomeIgnored, nil
	}

	c.afterTransition(ctx, booking, models.StatusRefunded, events.EventBookingRefunded, event.AuthorizationRef)
	return outcomeApplied, nil
}

// resolveByMetadata loads the booking named in the event's correlation
// metadata. A nil booking with a nil error means the event was unresolvable
// and has already been recorded.
func (c *Consumer) resolveByMetadata(ctx context.Context, event *gateway.Event) (*models.Booking, string, error) {
	if event.Metadata.BookingID == 0 {
		c.appendLedger(ctx, event, nil, models.ErrCodeUnresolvableEvent, "event carries no booking id")
		return nil, outcomeUnresolvable, nil
	}

	booking, err := c.repo.GetBooking(ctx, event.Metadata.BookingID)
	if err != nil {
		if errors.Is(err, database.ErrBookingNotFound) {
			c.appendLedger(ctx, event, nil, models.ErrCodeUnresolvableEvent,
				fmt.Sprintf("booking %d not found", event.Metadata.BookingID))
			return nil, outcomeUnresolvable, nil
		}
		return nil, "", fmt.Errorf("load booking %d: %w", event.Metadata.BookingID, err)
	}
	return booking, "", nil
}

func (c *Consumer) afterTransition(ctx context.Context, booking *models.Booking, newStatus, eventType, paymentRef string) {
	if c.publisher != nil {
		payload := events.BookingEventPayload{
			BookingID:  booking.ID,
			UserID:     booking.UserID,
			VendorID:   booking.VendorID,
			Status:     newStatus,
			PaymentRef: paymentRef,
			OccurredAt: time.Now(),
		}
		if err := c.publisher.PublishJSON(eventType, payload); err != nil {
			c.logger.Warn().Err(err).Int64("booking_id", booking.ID).Msg("failed to publish event")
		}
	}

	if c.notifier != nil {
		c.notifier.NotifyStatusChange(ctx, booking.ID, newStatus, []int64{booking.UserID, booking.VendorID})
	}
}

func (c *Consumer) appendLedger(ctx context.Context, event *gateway.Event, booking *models.Booking, code, message string) {
	rec := &models.PaymentErrorRecord{
		Code:    code,
		Message: message,
	}
	if booking != nil {
		rec.BookingID = &booking.ID
		rec.UserID = &booking.UserID
	} else if event.Metadata.BookingID != 0 {
		id := event.Metadata.BookingID
		rec.BookingID = &id
	}

	meta, err := json.Marshal(map[string]string{
		"event_id":          event.ID,
		"event_kind":        event.RawKind,
		"authorization_ref": event.AuthorizationRef,
	})
	if err == nil {
		rec.Metadata = string(meta)
	}

	if err := c.ledger.AppendPaymentError(ctx, rec); err != nil {
		c.logger.Error().Err(err).
			Str("event_id", event.ID).
			Str("code", code).
			Msg("failed to append payment error record")
	}
}
