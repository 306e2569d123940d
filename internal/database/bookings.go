package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"vendora/internal/models"
)

const bookingColumns = `id, user_id, event_id, vendor_id, service_id, service_date,
               final_amount_cents, deposit_amount_cents, special_instructions,
               proof_of_payment, external_payment_ref, payment_path, status,
               created_at, updated_at`

// CreateBooking inserts a new booking. Status and amounts must already be
// set by the caller; the store never invents lifecycle state.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `INSERT INTO bookings (
                user_id, event_id, vendor_id, service_id, service_date,
                final_amount_cents, deposit_amount_cents, special_instructions,
                proof_of_payment, external_payment_ref, payment_path, status,
                created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.db.ExecContext(ctx, query,
		booking.UserID,
		booking.EventID,
		booking.VendorID,
		booking.ServiceID,
		booking.ServiceDate,
		booking.FinalAmountCents,
		booking.DepositAmountCents,
		booking.SpecialInstructions,
		booking.ProofOfPayment,
		booking.ExternalPaymentRef,
		booking.PaymentPath,
		booking.Status,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now

	return nil
}

// GetBooking returns a booking by ID.
func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	booking, err := db.scanBooking(db.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// TransitionStatus atomically sets the status only when the current status is
// in expectedPrior. With no expected statuses the update is unconditional.
// Returns false, nil when the row was already past the expected set; two
// racing callers produce exactly one success and one no-op.
func (db *DB) TransitionStatus(ctx context.Context, id int64, newStatus string, expectedPrior ...string) (bool, error) {
	query := `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`
	args := []interface{}{newStatus, time.Now(), id}

	if len(expectedPrior) > 0 {
		query += ` AND status IN (?` + strings.Repeat(",?", len(expectedPrior)-1) + `)`
		for _, s := range expectedPrior {
			args = append(args, s)
		}
	}

	result, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition booking %d to %s: %w", id, newStatus, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows > 0, nil
}

// ListByStatusOlderThan returns bookings in a status whose service date is
// before the cutoff. Read-only sweep input; no locking.
func (db *DB) ListByStatusOlderThan(ctx context.Context, status string, cutoff time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + `
              FROM bookings WHERE status = ? AND service_date < ?
              ORDER BY service_date ASC`

	rows, err := db.db.QueryContext(ctx, query, status, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings by status: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		booking, err := db.scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

// SetExternalPaymentRef records the gateway authorization reference,
// conditional on no reference being set yet.
func (db *DB) SetExternalPaymentRef(ctx context.Context, id int64, ref string) (bool, error) {
	query := `UPDATE bookings SET external_payment_ref = ?, updated_at = ?
              WHERE id = ? AND external_payment_ref IS NULL`
	result, err := db.db.ExecContext(ctx, query, ref, time.Now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to set payment ref for booking %d: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows > 0, nil
}

// FindByExternalPaymentRef resolves the booking holding a gateway reference.
// Used by refund correlation.
func (db *DB) FindByExternalPaymentRef(ctx context.Context, ref string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE external_payment_ref = ?`
	booking, err := db.scanBooking(db.db.QueryRowContext(ctx, query, ref))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to find booking by payment ref: %w", err)
	}
	return booking, nil
}

// AttachPaymentProof stores a proof-of-payment reference on a manual-path
// booking still awaiting review.
func (db *DB) AttachPaymentProof(ctx context.Context, id int64, proofRef string) (bool, error) {
	query := `UPDATE bookings SET proof_of_payment = ?, updated_at = ?
              WHERE id = ? AND payment_path = ? AND status = ?`
	result, err := db.db.ExecContext(ctx, query, proofRef, time.Now(), id, models.PathManual, models.StatusPendingReview)
	if err != nil {
		return false, fmt.Errorf("failed to attach payment proof for booking %d: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows > 0, nil
}

// FinancialTotalsByStatus sums final amounts grouped by status for reporting.
func (db *DB) FinancialTotalsByStatus(ctx context.Context) (map[string]int64, error) {
	query := `SELECT status, COALESCE(SUM(final_amount_cents), 0)
              FROM bookings GROUP BY status`

	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get financial totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var status string
		var total int64
		if err := rows.Scan(&status, &total); err != nil {
			return nil, fmt.Errorf("failed to scan financial total: %w", err)
		}
		totals[status] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate financial totals: %w", err)
	}
	return totals, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (db *DB) scanBooking(row rowScanner) (*models.Booking, error) {
	var booking models.Booking
	err := row.Scan(
		&booking.ID,
		&booking.UserID,
		&booking.EventID,
		&booking.VendorID,
		&booking.ServiceID,
		&booking.ServiceDate,
		&booking.FinalAmountCents,
		&booking.DepositAmountCents,
		&booking.SpecialInstructions,
		&booking.ProofOfPayment,
		&booking.ExternalPaymentRef,
		&booking.PaymentPath,
		&booking.Status,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}
