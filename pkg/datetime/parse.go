// Package datetime provides date and time utility functions.
package datetime

import (
	"fmt"
	"strings"
	"time"

	"github.com/iwvelando/capacity-trend/pkg/constants"
)

const (
	// DateLayout is the format expected in config files and is also the output
	// date format.
	DateLayout = constants.DateLayout
)

// MustParseTime parses a date string using the given layout and panics on error.
// This is intended for use in tests where the date string is known to be valid.
func MustParseTime(layout, dateStr string) time.Time {
	t, err := time.Parse(layout, dateStr)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseDate parses a date in DateLayout. RFC 3339 timestamps are accepted too
// since remote sources commonly report iteration dates that way.
func ParseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("date cannot be empty")
	}
	if t, err := time.Parse(DateLayout, trimmed); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected %s or RFC 3339", value, DateLayout)
	}
	return t.UTC(), nil
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Lookback returns the [start, end] range covering the given number of days
// ending on the day of now.
func Lookback(now time.Time, days int) (time.Time, time.Time) {
	end := StartOfDay(now)
	return end.AddDate(0, 0, -days), end
}

// StrictlyBetween reports whether t lies strictly after start and strictly
// before end.
func StrictlyBetween(t, start, end time.Time) bool {
	return t.After(start) && t.Before(end)
}

// Format renders t in DateLayout.
func Format(t time.Time) string {
	return t.Format(DateLayout)
}
