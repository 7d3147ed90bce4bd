// Package calendar validates requested date ranges against already booked days.
// All comparisons are by calendar day; time of day is ignored.
package calendar

import (
	"errors"
	"fmt"
	"time"

	"rentals/internal/models"
)

const DateLayout = "2006-01-02"

var (
	ErrPastDate        = errors.New("date is in the past")
	ErrDateTooFar      = errors.New("date is too far in the future")
	ErrDateConflict    = errors.New("date is already booked")
	ErrInvalidDuration = errors.New("duration must be at least 1")
)

// ConflictError names the first requested day that is already booked.
type ConflictError struct {
	Date time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDateConflict.Error(), FormatDate(e.Date))
}

func (e *ConflictError) Unwrap() error {
	return ErrDateConflict
}

type Unit int

const (
	Months Unit = iota
	Nights
)

func (u Unit) String() string {
	if u == Nights {
		return "nights"
	}
	return "months"
}

// UnitFor returns how lease durations are counted for a listing kind.
func UnitFor(kind models.PropertyKind) Unit {
	if kind == models.KindTransient {
		return Nights
	}
	return Months
}

// Day returns UTC midnight of t's calendar date as read in t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}

// EndDate is the last occupied day, inclusive.
// Months: start plus N months, clamped to the end of a shorter target month
// (Jan 31 + 1 month is Feb 29 in a leap year). Nights: the date of the last night.
func EndDate(start time.Time, duration int, unit Unit) (time.Time, error) {
	if duration < 1 {
		return time.Time{}, ErrInvalidDuration
	}
	start = Day(start)
	if unit == Nights {
		return start.AddDate(0, 0, duration-1), nil
	}
	return addMonths(start, duration), nil
}

func addMonths(start time.Time, n int) time.Time {
	y, m, d := start.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

// Span lists every day from start to end inclusive.
func Span(start, end time.Time) []time.Time {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// LeaseDates is the full day list a booking of duration units would occupy.
func LeaseDates(start time.Time, duration int, unit Unit) ([]time.Time, error) {
	end, err := EndDate(start, duration, unit)
	if err != nil {
		return nil, err
	}
	return Span(start, end), nil
}

// CheckConflict walks the requested range day by day and fails on the first booked day.
func CheckConflict(start time.Time, duration int, unit Unit, booked []time.Time) error {
	end, err := EndDate(start, duration, unit)
	if err != nil {
		return err
	}
	taken := make(map[time.Time]struct{}, len(booked))
	for _, b := range booked {
		taken[Day(b)] = struct{}{}
	}
	for d := Day(start); !d.After(end); d = d.AddDate(0, 0, 1) {
		if _, ok := taken[d]; ok {
			return &ConflictError{Date: d}
		}
	}
	return nil
}

// CheckDay fails when a single day is among booked.
func CheckDay(date time.Time, booked []time.Time) error {
	for _, b := range booked {
		if SameDay(date, b) {
			return &ConflictError{Date: Day(date)}
		}
	}
	return nil
}

// CheckWindow rejects days before today and days more than maxDays after today.
func CheckWindow(date, now time.Time, maxDays int) error {
	d, today := Day(date), Day(now)
	if d.Before(today) {
		return ErrPastDate
	}
	if maxDays > 0 && d.After(today.AddDate(0, 0, maxDays)) {
		return fmt.Errorf("%w: more than %d days ahead", ErrDateTooFar, maxDays)
	}
	return nil
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func FormatDates(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = FormatDate(d)
	}
	return out
}
