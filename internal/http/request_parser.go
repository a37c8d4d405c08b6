package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"deplacements/internal/core"
)

var errInvalidUserID = errors.New("invalid user id")

// MonthParams holds parsed year and 0-based month values.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams extracts year and 0-based month from query parameters.
// Missing values default to the current month; present but malformed or out
// of range values are an error.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{
		Year:  now.Year(),
		Month: int(now.Month()) - 1,
	}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return MonthParams{}, fmt.Errorf("year %q: %w", v, core.ErrInvalidYear)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return MonthParams{}, fmt.Errorf("month %q: %w", v, core.ErrInvalidMonth)
		}
		params.Month = m
	}

	if err := core.ValidateYearMonth(params.Year, params.Month); err != nil {
		return MonthParams{}, err
	}
	return params, nil
}

// parseUserID reads the {id} path value.
func parseUserID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.PathValue("id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%q: %w", raw, errInvalidUserID)
	}
	return id, nil
}

// wantsRounded reports whether ?rounded= asks for cent-rounded amounts.
func wantsRounded(query url.Values) bool {
	v := strings.TrimSpace(query.Get("rounded"))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
