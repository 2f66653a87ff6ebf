package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of calendar dates
const DateLayout = "2006-01-02"

// Date is a calendar day without time of day or zone
type Date struct {
	year  int
	month time.Month
	day   int
}

// NewDate builds a date, normalizing out-of-range values the way time.Date does
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar day of t in t's location
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{year: y, month: m, day: d}
}

// Today returns the local calendar day
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses a YYYY-MM-DD string
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Time returns midnight UTC of the day
func (d Date) Time() time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the date n days later (or earlier when n is negative)
func (d Date) AddDays(n int) Date {
	return NewDate(d.year, d.month, d.day+n)
}

// Weekday returns the day of the week
func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

// Before reports whether d is strictly before o
func (d Date) Before(o Date) bool {
	return d.Time().Before(o.Time())
}

// After reports whether d is strictly after o
func (d Date) After(o Date) bool {
	return d.Time().After(o.Time())
}

// IsZero reports whether the date is unset
func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.year, int(d.month), d.day)
}

// Ptr returns a pointer to a copy of d
func (d Date) Ptr() *Date {
	return &d
}

// MarshalJSON encodes the date as "YYYY-MM-DD"
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD" and full RFC3339 timestamps
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
