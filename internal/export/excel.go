package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"vendora/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Exporter renders financial and error-ledger reports as Excel workbooks for
// operators.
type Exporter struct {
	exportPath string
	logger     zerolog.Logger
}

func NewExporter(exportPath string, logger *zerolog.Logger) *Exporter {
	return &Exporter{
		exportPath: exportPath,
		logger:     logger.With().Str("component", "export").Logger(),
	}
}

// BuildFinancialReport assembles a workbook with per-status totals and the
// recent payment error ledger.
func (e *Exporter) BuildFinancialReport(totals map[string]int64, errorRecords []*models.PaymentErrorRecord) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := e.writeTotalsSheet(f, totals); err != nil {
		f.Close()
		return nil, err
	}
	if err := e.writeLedgerSheet(f, errorRecords); err != nil {
		f.Close()
		return nil, err
	}

	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

// WriteFinancialReport streams the workbook to w without touching disk.
func (e *Exporter) WriteFinancialReport(w io.Writer, totals map[string]int64, errorRecords []*models.PaymentErrorRecord) error {
	f, err := e.BuildFinancialReport(totals, errorRecords)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %v", err)
	}
	return nil
}

// SaveFinancialReport writes the workbook into the configured export
// directory and returns the file path.
func (e *Exporter) SaveFinancialReport(totals map[string]int64, errorRecords []*models.PaymentErrorRecord) (string, error) {
	if err := os.MkdirAll(e.exportPath, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	f, err := e.BuildFinancialReport(totals, errorRecords)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fileName := fmt.Sprintf("financial_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.exportPath, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}

func (e *Exporter) writeTotalsSheet(f *excelize.File, totals map[string]int64) error {
	sheetName := "Financial Totals"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})

	_ = f.SetCellValue(sheetName, "A1", "Status")
	_ = f.SetCellValue(sheetName, "B1", "Total amount")
	_ = f.SetCellStyle(sheetName, "A1", "B1", headerStyle)

	statuses := make([]string, 0, len(totals))
	for status := range totals {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)

	row := 2
	for _, status := range statuses {
		cellA, _ := excelize.CoordinatesToCellName(1, row)
		cellB, _ := excelize.CoordinatesToCellName(2, row)
		_ = f.SetCellValue(sheetName, cellA, status)
		_ = f.SetCellValue(sheetName, cellB, float64(totals[status])/100)
		row++
	}

	_ = f.SetColWidth(sheetName, "A", "A", 20)
	_ = f.SetColWidth(sheetName, "B", "B", 16)
	return nil
}

func (e *Exporter) writeLedgerSheet(f *excelize.File, records []*models.PaymentErrorRecord) error {
	sheetName := "Payment Errors"
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("error creating sheet: %v", err)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FCE4EC"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})

	headers := []string{"ID", "Booking", "User", "Code", "Message", "Recorded at"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, rec := range records {
		row := i + 2
		setCell := func(col int, value interface{}) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheetName, cell, value)
		}

		setCell(1, rec.ID)
		if rec.BookingID != nil {
			setCell(2, *rec.BookingID)
		}
		if rec.UserID != nil {
			setCell(3, *rec.UserID)
		}
		setCell(4, rec.Code)
		setCell(5, rec.Message)
		setCell(6, rec.CreatedAt.Format(time.RFC3339))
	}

	_ = f.SetColWidth(sheetName, "E", "E", 48)
	return nil
}
