package extract

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cents is a monetary amount in hundredths of the schedule currency. All
// monetary fields hold fixed two-decimal precision; sums over Cents are
// exact.
type Cents int64

// String renders the amount with exactly two decimals, e.g. "1234.56".
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON renders Cents as a two-decimal JSON string, matching the wire
// convention for money fields.
func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// French PDFs separate thousands with plain, no-break, or narrow no-break
// spaces and often suffix the euro sign.
var amountCleaner = strings.NewReplacer(
	"\u20ac", "",
	"\u00a0", "",
	"\u202f", "",
	" ", "",
)

// ParseAmount converts a raw extracted value into Cents. The second return
// reports explicit absence (nil, empty string, or a lone dash); a value that
// is present but unparseable is an error, never a silent zero.
//
// String amounts accept both French and English formats: "1 234,56 €",
// "1234.56", "1.234,56". When both separators appear, the last one is taken
// as the decimal mark.
func ParseAmount(v any) (Cents, bool, error) {
	switch t := v.(type) {
	case nil:
		return 0, true, nil
	case float64:
		return fromFloat(t)
	case int:
		return Cents(int64(t) * 100), false, nil
	case int64:
		return Cents(t * 100), false, nil
	case string:
		s := amountCleaner.Replace(strings.TrimSpace(t))
		if s == "" || s == "-" {
			return 0, true, nil
		}
		s = normalizeSeparators(s)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("not a monetary amount: %q", t)
		}
		return fromFloat(f)
	default:
		return 0, false, fmt.Errorf("unsupported amount type %T", v)
	}
}

func fromFloat(f float64) (Cents, bool, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("non-finite amount %v", f)
	}
	return Cents(math.Round(f * 100)), false, nil
}

// normalizeSeparators rewrites a cleaned numeric string to use '.' as the
// decimal mark. With both ',' and '.' present, the last separator wins as
// decimal and the other is dropped as a thousands separator.
func normalizeSeparators(s string) string {
	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if strings.Count(s, ",") == 1 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	return s
}
