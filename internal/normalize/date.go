// Package normalize converts raw CSV field values into canonical types.
//
// The functions here are pure value-to-value transforms: they take the string
// exactly as it appeared in the export and return either a canonical value or
// a validation error, never panicking and never touching shared state. The
// row parser calls them once per field and keeps going after a failure, so a
// bad value costs one row, not the whole file.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"transaction-import-service/internal/models"
	pkgerrors "transaction-import-service/pkg/errors"
)

// dateLayouts are tried in priority order. Two-digit years get their own
// entry because Go's reference layout cannot express the pivot rule.
var dateLayouts = []string{
	"2006-01-02", // ISO
	"01/02/2006", // US
	"01-02-2006",
	"2006/01/02",
}

const shortYearLayout = "01/02/06"

// fallbackLayouts approximate a general date parse for exports that carry a
// time component or spelled-out months.
var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
}

// Date parses a raw date string into UTC midnight of the calendar day.
// Recognized encodings, in priority order: YYYY-MM-DD, MM/DD/YYYY,
// MM-DD-YYYY, YYYY/MM/DD and MM/DD/YY (years below 50 read as 20xx, the
// rest as 19xx), then a general fallback parse. Dates strictly after today
// are rejected; future-dated transactions are invalid.
func Date(raw string) (time.Time, error) {
	return DateAt(raw, time.Now())
}

// DateAt is Date with an explicit "now" so the future-date cutoff is
// testable.
func DateAt(raw string, now time.Time) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, pkgerrors.ValidationError(pkgerrors.CodeMissingField, "date", raw, nil)
	}

	parsed, err := parseDate(value)
	if err != nil {
		return time.Time{}, pkgerrors.ValidationError(pkgerrors.CodeInvalidDate, "date", raw, err)
	}

	day := models.TruncateToDay(parsed)
	today := models.TruncateToDay(now)
	if day.After(today) {
		return time.Time{}, pkgerrors.ValidationError(pkgerrors.CodeInvalidDate, "date", raw,
			fmt.Errorf("date %s is in the future", day.Format(models.DateLayout)))
	}

	return day, nil
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}

	if t, err := time.ParseInLocation(shortYearLayout, value, time.UTC); err == nil {
		return applyShortYearPivot(t), nil
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date format: %q", value)
}

// applyShortYearPivot maps a two-digit year onto the century boundary:
// 00-49 become 2000-2049, 50-99 become 1950-1999. Go's own pivot (69) does
// not match the convention bank exports follow, so the year is rebuilt here.
func applyShortYearPivot(t time.Time) time.Time {
	year := t.Year() % 100
	if year < 50 {
		year += 2000
	} else {
		year += 1900
	}
	return time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
