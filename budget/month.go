package budget

import (
	"fmt"
	"regexp"
	"time"
)

// =============================================================================
// MONTH - Validated YYYY-MM key
// =============================================================================

// Month is a calendar month key in zero-padded "YYYY-MM" form. The zero
// padding makes plain string comparison a correct total order, which is the
// entire change-detection mechanism of the rollover engine, so Month values
// are only constructed through ParseMonth, CurrentMonth, or MonthOf.
type Month string

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ParseMonth validates a raw month string.
func ParseMonth(s string) (Month, error) {
	if !monthPattern.MatchString(s) {
		return "", &ValidationError{Field: "month", Message: fmt.Sprintf("invalid month %q (want YYYY-MM)", s)}
	}
	return Month(s), nil
}

// CurrentMonth returns the month containing the given wall-clock instant.
func CurrentMonth(now time.Time) Month {
	return Month(now.Format("2006-01"))
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month(t.Format("2006-01"))
}

// Valid reports whether m holds a well-formed key. The zero value is invalid.
func (m Month) Valid() bool {
	return monthPattern.MatchString(string(m))
}

func (m Month) String() string { return string(m) }

// Before reports whether m precedes other. Lexicographic comparison is
// correct because both sides are zero-padded.
func (m Month) Before(other Month) bool { return string(m) < string(other) }

// Next returns the following calendar month.
func (m Month) Next() Month {
	return Month(m.start().AddDate(0, 1, 0).Format("2006-01"))
}

// Prev returns the preceding calendar month.
func (m Month) Prev() Month {
	return Month(m.start().AddDate(0, -1, 0).Format("2006-01"))
}

// Start returns midnight UTC on the first day of the month.
func (m Month) Start() time.Time { return m.start() }

// Format renders the month for display, e.g. "February 2026".
func (m Month) Format() string {
	return m.start().Format("January 2006")
}

func (m Month) start() time.Time {
	t, err := time.Parse("2006-01", string(m))
	if err != nil {
		return time.Time{}
	}
	return t
}
