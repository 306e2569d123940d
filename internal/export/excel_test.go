package export

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"
	"time"

	"vendora/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testExporter(t *testing.T) *Exporter {
	t.Helper()
	logger := zerolog.New(io.Discard)
	return NewExporter(t.TempDir(), &logger)
}

func sampleData() (map[string]int64, []*models.PaymentErrorRecord) {
	bookingID := int64(7)
	totals := map[string]int64{
		models.StatusCompleted:      120000,
		models.StatusPendingPayment: 45000,
	}
	records := []*models.PaymentErrorRecord{
		{
			ID:        1,
			BookingID: &bookingID,
			Code:      models.ErrCodeGatewayFailure,
			Message:   "authorization timeout",
			CreatedAt: time.Now(),
		},
	}
	return totals, records
}

func TestBuildFinancialReport(t *testing.T) {
	e := testExporter(t)
	totals, records := sampleData()

	f, err := e.BuildFinancialReport(totals, records)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.Contains(t, sheets, "Financial Totals")
	assert.Contains(t, sheets, "Payment Errors")

	// Statuses are sorted alphabetically: completed before pending_payment.
	status, err := f.GetCellValue("Financial Totals", "A2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)

	amount, err := f.GetCellValue("Financial Totals", "B2")
	require.NoError(t, err)
	assert.Equal(t, "1200", amount)

	code, err := f.GetCellValue("Payment Errors", "D2")
	require.NoError(t, err)
	assert.Equal(t, models.ErrCodeGatewayFailure, code)
}

func TestWriteFinancialReport(t *testing.T) {
	e := testExporter(t)
	totals, records := sampleData()

	var buf bytes.Buffer
	require.NoError(t, e.WriteFinancialReport(&buf, totals, records))
	assert.NotZero(t, buf.Len())

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Payment Errors")
}

func TestSaveFinancialReport(t *testing.T) {
	e := testExporter(t)
	totals, records := sampleData()

	path, err := e.SaveFinancialReport(totals, records)
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", filepath.Ext(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Financial Totals")
}
