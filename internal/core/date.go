package core

import (
	"errors"
	"time"
)

var (
	ErrInvalidMonth = errors.New("invalid month")
	ErrInvalidYear  = errors.New("invalid year")
)

// Window is an inclusive calendar date range.
type Window struct {
	Start time.Time
	End   time.Time
}

// MonthWindow returns the first and last calendar day of a month.
// month is 0-based (0 = January), matching the external contract.
func MonthWindow(year, month int) Window {
	start := time.Date(year, time.Month(month+1), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return Window{Start: start, End: end}
}

// ValidateYearMonth checks a year and 0-based month coming from a caller.
// The engine itself never calls this.
func ValidateYearMonth(year, month int) error {
	if year < 1900 || year > 9999 {
		return ErrInvalidYear
	}
	if month < 0 || month > 11 {
		return ErrInvalidMonth
	}
	return nil
}

// Contains reports whether t falls on a day inside the window.
func (w Window) Contains(t time.Time) bool {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return !d.Before(w.Start) && !d.After(w.End)
}
