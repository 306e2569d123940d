package database

import (
	"context"
	"io"
	"testing"
	"time"

	"vendora/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	assert.NoError(t, err)
	db.Close() // Close the DB to trigger errors

	ctx := context.Background()

	t.Run("CreateBooking_Error", func(t *testing.T) {
		err := db.CreateBooking(ctx, &models.Booking{})
		assert.Error(t, err)
	})

	t.Run("GetBooking_Error", func(t *testing.T) {
		_, err := db.GetBooking(ctx, 1)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrBookingNotFound)
	})

	t.Run("TransitionStatus_Error", func(t *testing.T) {
		_, err := db.TransitionStatus(ctx, 1, models.StatusCompleted, models.StatusConfirmed)
		assert.Error(t, err)
	})

	t.Run("ListByStatusOlderThan_Error", func(t *testing.T) {
		_, err := db.ListByStatusOlderThan(ctx, models.StatusConfirmed, time.Now())
		assert.Error(t, err)
	})

	t.Run("SetExternalPaymentRef_Error", func(t *testing.T) {
		_, err := db.SetExternalPaymentRef(ctx, 1, "auth_x")
		assert.Error(t, err)
	})

	t.Run("AppendPaymentError_Error", func(t *testing.T) {
		err := db.AppendPaymentError(ctx, &models.PaymentErrorRecord{Code: "x", Message: "y"})
		assert.Error(t, err)
	})

	t.Run("FinancialTotals_Error", func(t *testing.T) {
		_, err := db.FinancialTotalsByStatus(ctx)
		assert.Error(t, err)
	})
}
