package extract

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jmercadier/amortization-extractor/constants"
	"github.com/jmercadier/amortization-extractor/internal/common"
)

// Accepted calendar formats for due dates, probed in order.
var dateLayouts = []string{"02/01/2006", "2006-01-02"}

// Row is one validated amortization installment. Monetary fields are
// non-negative; absent source fields are zero only when the source marked
// them absent explicitly.
type Row struct {
	Index     int        `json:"index"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	Payment   Cents      `json:"payment"`
	Principal Cents      `json:"principal"`
	Interest  Cents      `json:"interest"`
	Insurance Cents      `json:"insurance"`
	Balance   *Cents     `json:"remaining_balance,omitempty"`
}

// Table is an ordered amortization schedule with derived aggregates. It is
// built once per successful extraction and must not be mutated afterwards;
// the aggregates are recomputed from the rows at build time and nowhere
// else.
type Table struct {
	Rows []Row `json:"rows"`

	TotalPayment   Cents      `json:"total_payment"`
	TotalPrincipal Cents      `json:"total_principal"`
	TotalInterest  Cents      `json:"total_interest"`
	TotalInsurance Cents      `json:"total_insurance"`
	RowCount       int        `json:"row_count"`
	FirstDueDate   *time.Time `json:"first_due_date,omitempty"`
}

// Builder validates and assembles canonical records into a Table.
type Builder struct {
	logger *slog.Logger
}

func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{logger: logger}
}

// Build converts records into a Table, preserving order exactly. A single
// bad row fails the whole build: a silently incomplete schedule is worse
// than an explicit failure.
func (b *Builder) Build(records []Record) (*Table, error) {
	if len(records) == 0 {
		return nil, common.NewExtractionError(
			common.KindValidation, common.StageBuild, "no rows to build", nil)
	}

	rows := make([]Row, 0, len(records))
	for i, rec := range records {
		row, err := buildRow(i, rec)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	t := &Table{Rows: rows, RowCount: len(rows)}
	for _, r := range rows {
		t.TotalPayment += r.Payment
		t.TotalPrincipal += r.Principal
		t.TotalInterest += r.Interest
		t.TotalInsurance += r.Insurance
		if r.DueDate != nil && (t.FirstDueDate == nil || r.DueDate.Before(*t.FirstDueDate)) {
			d := *r.DueDate
			t.FirstDueDate = &d
		}
	}

	b.logger.Debug("table.built",
		"rows", t.RowCount,
		"total_interest", t.TotalInterest.String(),
		"total_insurance", t.TotalInsurance.String(),
	)
	return t, nil
}

func buildRow(pos int, rec Record) (Row, error) {
	row := Row{Index: pos + 1}

	idx, present, err := parseIndex(rec[constants.FieldIndex])
	if err != nil {
		return Row{}, rowError(pos, constants.FieldIndex, err)
	}
	if present && idx != pos+1 {
		return Row{}, rowError(pos, constants.FieldIndex,
			fmt.Errorf("sequence index %d breaks 1-based contiguous order, expected %d", idx, pos+1))
	}

	due, err := parseDate(rec[constants.FieldDueDate])
	if err != nil {
		return Row{}, rowError(pos, constants.FieldDueDate, err)
	}
	row.DueDate = due

	for _, f := range []struct {
		field constants.Field
		dst   *Cents
	}{
		{constants.FieldPayment, &row.Payment},
		{constants.FieldPrincipal, &row.Principal},
		{constants.FieldInterest, &row.Interest},
		{constants.FieldInsurance, &row.Insurance},
	} {
		amount, _, err := ParseAmount(rec[f.field])
		if err != nil {
			return Row{}, rowError(pos, f.field, err)
		}
		if amount < 0 {
			return Row{}, rowError(pos, f.field,
				fmt.Errorf("negative amount %s", amount))
		}
		*f.dst = amount
	}

	balance, absent, err := ParseAmount(rec[constants.FieldBalance])
	if err != nil {
		return Row{}, rowError(pos, constants.FieldBalance, err)
	}
	if !absent {
		if balance < 0 {
			return Row{}, rowError(pos, constants.FieldBalance,
				fmt.Errorf("negative amount %s", balance))
		}
		row.Balance = &balance
	}

	return row, nil
}

func rowError(pos int, field constants.Field, err error) error {
	return common.NewExtractionError(
		common.KindValidation, common.StageBuild,
		fmt.Sprintf("row %d: field %q: %v", pos+1, field, err), err)
}

func parseIndex(v any) (int, bool, error) {
	switch t := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		n := int(t)
		if float64(n) != t || n < 1 {
			return 0, false, fmt.Errorf("invalid sequence index %v", t)
		}
		return n, true, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return 0, false, fmt.Errorf("invalid sequence index %q", t)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("unsupported index type %T", v)
	}
}

func parseDate(v any) (*time.Time, error) {
	s, ok := v.(string)
	if v == nil || (ok && strings.TrimSpace(s) == "") {
		return nil, nil
	}
	if !ok {
		return nil, fmt.Errorf("unsupported date type %T", v)
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("date %q matches no accepted format (%s)", s, strings.Join(dateLayouts, ", "))
}
