package models

import "time"

// Booking is a reservation of a vendor's service for a user's event.
// Monetary fields and PaymentPath are immutable after creation; the status
// column is the only mutable lifecycle field and is changed exclusively
// through the store's conditional transition.
type Booking struct {
	ID                  int64     `json:"id"`
	UserID              int64     `json:"user_id"`
	EventID             int64     `json:"event_id"`
	VendorID            int64     `json:"vendor_id"`
	ServiceID           int64     `json:"service_id"`
	ServiceDate         time.Time `json:"service_date"`
	FinalAmountCents    int64     `json:"final_amount_cents"`
	DepositAmountCents  int64     `json:"deposit_amount_cents"`
	SpecialInstructions string    `json:"special_instructions,omitempty"`
	ProofOfPayment      *string   `json:"proof_of_payment,omitempty"`
	ExternalPaymentRef  *string   `json:"external_payment_ref,omitempty"`
	PaymentPath         string    `json:"payment_path"` // manual, online
	Status              string    `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// PaymentMetadata correlates a gateway authorization back to a booking.
type PaymentMetadata struct {
	BookingID int64 `json:"booking_id"`
	UserID    int64 `json:"user_id"`
}

// InitialStatus returns the creation-time status for a payment path.
// The path choice is permanent for the booking's lifetime.
func InitialStatus(paymentPath string) string {
	if paymentPath == PathOnline {
		return StatusPendingPayment
	}
	return StatusPendingReview
}

// IsTerminal reports whether a status admits no further transitions
// except completed -> refunded.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusPaymentFailed, StatusRefunded:
		return true
	}
	return false
}
