package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jmercadier/amortization-extractor/internal/extract"
)

// Service renders a finished AmortizationTable as XLSX or CSV bytes for the
// download endpoints and the CLI. It only ever sees fully-validated tables.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

var columnHeaders = []string{
	"#",
	"Due Date",
	"Payment",
	"Principal",
	"Interest",
	"Insurance",
	"Remaining Balance",
}

// TableXLSX returns an XLSX workbook with one sheet: the schedule rows plus
// a totals row.
func (s *Service) TableXLSX(t *extract.Table) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Amortization"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	for i, h := range columnHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	rowNo := 2
	for _, r := range t.Rows {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, rowNo)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, r.Index)
		write(2, formatDate(r.DueDate))
		write(3, r.Payment.String())
		write(4, r.Principal.String())
		write(5, r.Interest.String())
		write(6, r.Insurance.String())
		if r.Balance != nil {
			write(7, r.Balance.String())
		}
		rowNo++
	}

	// Totals row
	write := func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, rowNo)
		_ = f.SetCellValue(sheet, cell, v)
	}
	write(2, "Total")
	write(3, t.TotalPayment.String())
	write(4, t.TotalPrincipal.String())
	write(5, t.TotalInterest.String())
	write(6, t.TotalInsurance.String())

	_ = f.SetColWidth(sheet, "A", "A", 6)
	_ = f.SetColWidth(sheet, "B", "B", 14)
	_ = f.SetColWidth(sheet, "C", "G", 16)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", t.RowCount,
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// TableCSV returns the schedule as CSV with a header row, one record per
// installment, no totals row.
func (s *Service) TableCSV(t *extract.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(columnHeaders); err != nil {
		return nil, fmt.Errorf("csv write header: %w", err)
	}
	for _, r := range t.Rows {
		balance := ""
		if r.Balance != nil {
			balance = r.Balance.String()
		}
		record := []string{
			fmt.Sprintf("%d", r.Index),
			formatDate(r.DueDate),
			r.Payment.String(),
			r.Principal.String(),
			r.Interest.String(),
			r.Insurance.String(),
			balance,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("csv write row %d: %w", r.Index, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv flush: %w", err)
	}

	s.logger.Info("export.csv.ok", "rows", t.RowCount, "bytes", buf.Len())
	return buf.Bytes(), nil
}

func formatDate(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.Format("2006-01-02")
}
