package database

import "errors"

var (
	// ErrBookingNotFound is returned when no booking matches the lookup.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrPaymentRefTaken is returned when a booking already carries an
	// external payment reference. At most one outstanding authorization
	// may correlate to a booking.
	ErrPaymentRefTaken = errors.New("booking already has an external payment reference")
)
