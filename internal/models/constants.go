package models

const (
	StatusPendingReview  = "pending_review"
	StatusPendingPayment = "pending_payment"
	StatusConfirmed      = "confirmed"
	StatusCompleted      = "completed"
	StatusCancelled      = "cancelled"
	StatusPaymentFailed  = "payment_failed"
	StatusRefunded       = "refunded"
)

const (
	PathManual = "manual"
	PathOnline = "online"
)

// Error-ledger codes written by the consumer and the service layer.
const (
	ErrCodeUnresolvableEvent      = "unresolvable_event"
	ErrCodeGatewayFailure         = "gateway_failure"
	ErrCodeCaptureFailure         = "capture_failure"
	ErrCodeDuplicateAuthorization = "duplicate_authorization"
	ErrCodeDispatchFailure        = "dispatch_failure"
)

const (
	// ReplayMarkerTTL is how long processed webhook event IDs stay cached.
	// Purely a fast path; correctness comes from the conditional transition.
	ReplayMarkerTTL = 48 * 60 * 60 // 48 hours in seconds

	// DefaultLedgerPageSize limits operator listings of payment errors.
	DefaultLedgerPageSize = 50

	// DefaultGatewayTimeout bounds a single gateway call in seconds.
	DefaultGatewayTimeout = 15
)
