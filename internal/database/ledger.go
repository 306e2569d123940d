package database

import (
	"context"
	"fmt"
	"time"

	"vendora/internal/models"
)

// AppendPaymentError writes an immutable audit row. There is no update or
// delete path for payment errors by design.
func (db *DB) AppendPaymentError(ctx context.Context, rec *models.PaymentErrorRecord) error {
	query := `INSERT INTO payment_errors (booking_id, user_id, code, message, metadata, created_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.db.ExecContext(ctx, query,
		rec.BookingID,
		rec.UserID,
		rec.Code,
		rec.Message,
		rec.Metadata,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to append payment error: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rec.ID = id
	rec.CreatedAt = now
	return nil
}

// ListRecentPaymentErrors returns the newest ledger rows for operator review.
func (db *DB) ListRecentPaymentErrors(ctx context.Context, limit int) ([]*models.PaymentErrorRecord, error) {
	if limit <= 0 {
		limit = models.DefaultLedgerPageSize
	}

	query := `SELECT id, booking_id, user_id, code, message, metadata, created_at
              FROM payment_errors ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := db.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment errors: %w", err)
	}
	defer rows.Close()

	var records []*models.PaymentErrorRecord
	for rows.Next() {
		var rec models.PaymentErrorRecord
		err := rows.Scan(&rec.ID, &rec.BookingID, &rec.UserID, &rec.Code, &rec.Message, &rec.Metadata, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment error: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment errors: %w", err)
	}
	return records, nil
}

// ListPaymentErrorsForBooking returns the ledger rows tied to one booking.
func (db *DB) ListPaymentErrorsForBooking(ctx context.Context, bookingID int64) ([]*models.PaymentErrorRecord, error) {
	query := `SELECT id, booking_id, user_id, code, message, metadata, created_at
              FROM payment_errors WHERE booking_id = ? ORDER BY created_at ASC, id ASC`

	rows, err := db.db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment errors for booking %d: %w", bookingID, err)
	}
	defer rows.Close()

	var records []*models.PaymentErrorRecord
	for rows.Next() {
		var rec models.PaymentErrorRecord
		err := rows.Scan(&rec.ID, &rec.BookingID, &rec.UserID, &rec.Code, &rec.Message, &rec.Metadata, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment error: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment errors: %w", err)
	}
	return records, nil
}
