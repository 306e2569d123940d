package domain

import (
	"context"
	"time"

	"vendora/internal/models"
)

// BookingRepository is the booking store surface. TransitionStatus is the
// single concurrency-safety mechanism; every other component is a caller of
// it, never a second source of truth.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	TransitionStatus(ctx context.Context, id int64, newStatus string, expectedPrior ...string) (bool, error)
	ListByStatusOlderThan(ctx context.Context, status string, cutoff time.Time) ([]*models.Booking, error)
	SetExternalPaymentRef(ctx context.Context, id int64, ref string) (bool, error)
	FindByExternalPaymentRef(ctx context.Context, ref string) (*models.Booking, error)
	AttachPaymentProof(ctx context.Context, id int64, proofRef string) (bool, error)
	FinancialTotalsByStatus(ctx context.Context) (map[string]int64, error)
}

// ErrorLedger records payment-processing failures for operator follow-up.
// Append-only; there is no automatic retry behind it.
type ErrorLedger interface {
	AppendPaymentError(ctx context.Context, rec *models.PaymentErrorRecord) error
}

// PaymentGateway is the hold-then-capture adapter surface. Implementations
// translate all upstream failures into their own taxonomy; raw transport
// errors never escape.
type PaymentGateway interface {
	CreateAuthorization(ctx context.Context, amountCents int64, meta models.PaymentMetadata) (string, error)
	Capture(ctx context.Context, authorizationRef string) (string, error)
}

// Notifier fans a committed status change out to downstream collaborators
// (notification, chat, mail). Fire-and-forget: failures are logged and never
// roll back the transition.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, bookingID int64, newStatus string, actorIDs []int64)
}

// EventPublisher publishes domain events strictly after a transition commits.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// ReplayCache remembers webhook event IDs that already went through dispatch.
// Best effort only: a cache miss or outage merely disables the fast path,
// the conditional transition still guarantees idempotency.
type ReplayCache interface {
	MarkIfFirst(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}
