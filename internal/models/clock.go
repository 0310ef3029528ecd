package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidClock = errors.New("invalid time, expected HH:MM")
	ErrInvalidDate  = errors.New("invalid date, expected YYYY-MM-DD")
)

// ParseClock переводит "HH:MM" в минуты от полуночи.
func ParseClock(s string) (int, error) {
	t, err := time.Parse(ClockLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock is the inverse of ParseClock.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// NormalizeClock returns s in canonical zero-padded form.
func NormalizeClock(s string) (string, error) {
	m, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return FormatClock(m), nil
}

// ParseDate parses an ISO calendar date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// DateOnly drops the clock part and location of t.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
