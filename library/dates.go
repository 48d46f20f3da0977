package library

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used on the command line and in
// import files.
const DateLayout = "2006-01-02"

// FormatDate renders t as a calendar date. The zero time renders as "".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

// ParseDate parses a calendar date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must look like %s", ErrInvalidArgument, s, DateLayout)
	}
	return t, nil
}
