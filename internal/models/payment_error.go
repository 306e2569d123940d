package models

import "time"

// PaymentErrorRecord is an append-only audit row for payment-processing
// failures. Records are never updated or deleted; resolution is a human
// operator's job, not the system's.
type PaymentErrorRecord struct {
	ID        int64     `json:"id"`
	BookingID *int64    `json:"booking_id,omitempty"`
	UserID    *int64    `json:"user_id,omitempty"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Metadata  string    `json:"metadata,omitempty"` // JSON object with correlation identifiers
	CreatedAt time.Time `json:"created_at"`
}
