package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/jmercadier/amortization-extractor/internal/extract"
)

// Config for the Google Sheets write-through collaborator.
type Config struct {
	SpreadsheetID   string
	SheetRange      string // A1 notation append anchor, e.g. "Amortization!A1"
	CredentialsFile string // service-account JSON; empty uses ADC
}

// Service appends finished tables to a spreadsheet. It is a downstream,
// best-effort consumer: callers report its failures separately and never
// fail an extraction over them.
type Service struct {
	cfg    Config
	api    *sheetsapi.Service
	logger *slog.Logger
}

func NewService(ctx context.Context, cfg Config, logger *slog.Logger) (*Service, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheets: spreadsheet ID is required")
	}
	if cfg.SheetRange == "" {
		cfg.SheetRange = "Amortization!A1"
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	api, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}
	return &Service{cfg: cfg, api: api, logger: logger}, nil
}

// AppendTable appends one header row, the schedule rows, and a totals row
// for the given source file.
func (s *Service) AppendTable(ctx context.Context, filename string, t *extract.Table) error {
	start := time.Now()

	values := make([][]any, 0, t.RowCount+2)
	values = append(values, []any{
		"File", "#", "Due Date", "Payment", "Principal", "Interest", "Insurance", "Remaining Balance",
	})
	for _, r := range t.Rows {
		due := ""
		if r.DueDate != nil {
			due = r.DueDate.Format("2006-01-02")
		}
		balance := ""
		if r.Balance != nil {
			balance = r.Balance.String()
		}
		values = append(values, []any{
			filename, r.Index, due,
			r.Payment.String(), r.Principal.String(),
			r.Interest.String(), r.Insurance.String(), balance,
		})
	}
	values = append(values, []any{
		filename, "", "Total",
		t.TotalPayment.String(), t.TotalPrincipal.String(),
		t.TotalInterest.String(), t.TotalInsurance.String(), "",
	})

	_, err := s.api.Spreadsheets.Values.
		Append(s.cfg.SpreadsheetID, s.cfg.SheetRange, &sheetsapi.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		s.logger.Error("sheets.append.error",
			"spreadsheet_id", s.cfg.SpreadsheetID,
			"filename", filename,
			"error", err,
		)
		return fmt.Errorf("sheets: append values: %w", err)
	}

	s.logger.Info("sheets.append.ok",
		"spreadsheet_id", s.cfg.SpreadsheetID,
		"filename", filename,
		"rows", t.RowCount,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
