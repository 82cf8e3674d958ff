// Package clock supplies the current instant and the current calendar day.
//
// Calendar days are represented as time.Time values at midnight UTC so that
// date arithmetic never crosses a DST or zone boundary.
package clock

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

type Clock interface {
	Now() time.Time
	Today() time.Time
	// Location is where calendar days start and end.
	Location() *time.Location
}

// System reads the wall clock. Loc decides where a calendar day starts; nil
// means UTC.
type System struct {
	Loc *time.Location
}

func (s System) Now() time.Time {
	return time.Now().UTC()
}

func (s System) Today() time.Time {
	return DateOf(time.Now().In(s.Location()))
}

func (s System) Location() *time.Location {
	return orUTC(s.Loc)
}

// Fixed always returns the same instant.
type Fixed struct {
	At  time.Time
	Loc *time.Location
}

func (f *Fixed) Now() time.Time {
	return f.At.UTC()
}

func (f *Fixed) Today() time.Time {
	return DateOf(f.At.In(f.Location()))
}

func (f *Fixed) Location() *time.Location {
	return orUTC(f.Loc)
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// Advance moves a fixed clock forward.
func (f *Fixed) Advance(d time.Duration) {
	f.At = f.At.Add(d)
}

// Date builds a calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf drops the time of day from t, keeping the calendar day as seen in
// t's own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

func AddDays(day time.Time, n int64) time.Time {
	return DateOf(day).AddDate(0, 0, int(n))
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be formatted as YYYY-MM-DD: %w", err)
	}
	return t, nil
}

// StartOfDay is the instant a YYYY-MM-DD day begins in loc.
func StartOfDay(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, orUTC(loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be formatted as YYYY-MM-DD: %w", err)
	}
	return t, nil
}

func FormatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}
