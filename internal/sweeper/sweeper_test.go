package sweeper

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"vendora/internal/database"
	"vendora/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSweeper(t *testing.T) (*Sweeper, *database.DB) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "vendora.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, nil, nil, &logger), db
}

func seedBooking(t *testing.T, db *database.DB, status string, serviceDate time.Time) *models.Booking {
	t.Helper()
	booking := &models.Booking{
		UserID:           7,
		EventID:          3,
		VendorID:         12,
		ServiceID:        5,
		ServiceDate:      serviceDate,
		FinalAmountCents: 40000,
		PaymentPath:      models.PathManual,
		Status:           status,
	}
	require.NoError(t, db.CreateBooking(context.Background(), booking))
	return booking
}

func TestRunOncePromotesPastConfirmedBookings(t *testing.T) {
	s, db := setupSweeper(t)
	ctx := context.Background()

	yesterday := time.Now().AddDate(0, 0, -1)
	nextWeek := time.Now().AddDate(0, 0, 7)

	past := seedBooking(t, db, models.StatusConfirmed, yesterday)
	future := seedBooking(t, db, models.StatusConfirmed, nextWeek)
	pending := seedBooking(t, db, models.StatusPendingReview, yesterday)

	count, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := db.GetBooking(ctx, past.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	got, err = db.GetBooking(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)

	got, err = db.GetBooking(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingReview, got.Status)
}

func TestRunOnceConverges(t *testing.T) {
	s, db := setupSweeper(t)
	ctx := context.Background()

	seedBooking(t, db, models.StatusConfirmed, time.Now().AddDate(0, 0, -3))
	seedBooking(t, db, models.StatusConfirmed, time.Now().AddDate(0, 0, -2))

	first, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first)

	// Unchanged data: a second sweep must promote nothing.
	second, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second)
}

func TestRunOnceEmptyStore(t *testing.T) {
	s, _ := setupSweeper(t)

	count, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
