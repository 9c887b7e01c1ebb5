package service

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateLayouts are the accepted input formats for expense dates.
var dateLayouts = []string{time.DateOnly, time.RFC3339Nano}

// parseDate reads a YYYY-MM-DD or RFC 3339 date. Date-only values are
// midnight UTC. The second result reports whether the value was date-only.
func parseDate(field, raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, invalid(field, "is required")
	}
	for i, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), i == 0, nil
		}
	}
	return time.Time{}, false, invalid(field, "must be a date (YYYY-MM-DD or RFC 3339)")
}

// parseExpenseDate parses an expense date and rejects dates after now.
func parseExpenseDate(raw string, now time.Time) (time.Time, error) {
	date, _, err := parseDate("date", raw)
	if err != nil {
		return time.Time{}, err
	}
	if date.After(now) {
		return time.Time{}, invalid("date", "cannot be in the future")
	}
	return date, nil
}

func parseCategory(raw string) (string, error) {
	category := strings.TrimSpace(raw)
	if category == "" {
		return "", invalid("category", "is required")
	}
	return category, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, invalid("amount", "is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, invalid("amount", "must be a number")
	}
	return amount, nil
}

func parsePaymentMethod(raw string) (string, error) {
	method := strings.TrimSpace(raw)
	if method == "" {
		return "", invalid("paymentMethod", "is required")
	}
	return method, nil
}

// optionalText maps blank text to nil.
func optionalText(raw string) *string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}
	return &text
}

// dateRange parses optional inclusive bounds. A date-only end bound covers
// the whole day.
func dateRange(startRaw, endRaw string) (from, to *time.Time, err error) {
	if strings.TrimSpace(startRaw) != "" {
		start, _, err := parseDate("startDate", startRaw)
		if err != nil {
			return nil, nil, err
		}
		from = &start
	}

	if strings.TrimSpace(endRaw) != "" {
		end, dateOnly, err := parseDate("endDate", endRaw)
		if err != nil {
			return nil, nil, err
		}
		if dateOnly {
			end = end.Add(24*time.Hour - time.Nanosecond)
		}
		to = &end
	}

	if from != nil && to != nil && from.After(*to) {
		return nil, nil, invalid("startDate", "must not be after endDate")
	}
	return from, to, nil
}
