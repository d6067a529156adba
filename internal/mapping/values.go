package mapping

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateLayouts are tried in order. Day-first layouts come before month-first
// ones because airline manifests are overwhelmingly day-first.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"2006/01/02",
	"02-Jan-2006",
	"02 Jan 2006",
	"02Jan06",
	"20060102",
}

// stringValue renders a raw cell as trimmed text
func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case time.Time:
		return val.Format("2006-01-02")
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// dateValue converts a raw cell to a date in loc. Unparseable or blank
// values yield nil.
func dateValue(v any, loc *time.Location) *time.Time {
	if loc == nil {
		loc = time.UTC
	}

	if t, ok := v.(time.Time); ok {
		if t.IsZero() {
			return nil
		}
		local := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
		return &local
	}

	s := stringValue(v)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t
		}
	}
	return nil
}

// amountValue converts a raw cell to a decimal. Anything unparseable is zero.
func amountValue(v any) decimal.Decimal {
	switch val := v.(type) {
	case nil:
		return decimal.Zero
	case float64:
		return decimal.NewFromFloat(val)
	case float32:
		return decimal.NewFromFloat32(val)
	case int:
		return decimal.NewFromInt(int64(val))
	case int64:
		return decimal.NewFromInt(val)
	case decimal.Decimal:
		return val
	}

	cleaned := cleanAmount(stringValue(v))
	if cleaned == "" {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return amount
}

// cleanAmount strips currency symbols, codes, spaces and thousands
// separators. A trailing comma group of one or two digits is read as a
// decimal comma. Accounting parentheses mark a negative amount.
func cleanAmount(s string) string {
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case r == '-':
			negative = true
		}
	}
	out := b.String()

	if strings.Contains(out, ",") {
		if strings.Contains(out, ".") {
			out = strings.ReplaceAll(out, ",", "")
		} else if i := strings.LastIndex(out, ","); strings.Count(out, ",") == 1 && len(out)-i-1 <= 2 {
			out = out[:i] + "." + out[i+1:]
		} else {
			out = strings.ReplaceAll(out, ",", "")
		}
	}
	if out == "" {
		return ""
	}
	if negative {
		out = "-" + out
	}
	return out
}

// optionalString returns nil for blank text
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
