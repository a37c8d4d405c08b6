// Package core provides the domain entities and the numeric boundary.
//
// Every monetary or distance value read from storage or from a request goes
// through ParseOrZero exactly once. The valuation engine downstream assumes
// clean, finite float64 inputs.
package core

import (
	"database/sql"
	"math"
	"strconv"
	"strings"
)

// ParseOrZero coerces a raw numeric field to a finite float64.
//
// Accepted inputs are numbers, numeric strings (dot or comma decimal
// separator, surrounding spaces allowed) and the sql.Null* wrappers.
// Anything absent, malformed, NaN or infinite yields 0.
//
// Examples:
//
//	ParseOrZero("12,5")                 -> 12.5
//	ParseOrZero(nil)                    -> 0
//	ParseOrZero(math.NaN())             -> 0
//	ParseOrZero(sql.NullString{})       -> 0
func ParseOrZero(v any) float64 {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		f = parseNumericString(x)
	case []byte:
		f = parseNumericString(string(x))
	case *float64:
		if x == nil {
			return 0
		}
		f = *x
	case *string:
		if x == nil {
			return 0
		}
		f = parseNumericString(*x)
	case sql.NullFloat64:
		if !x.Valid {
			return 0
		}
		f = x.Float64
	case sql.NullString:
		if !x.Valid {
			return 0
		}
		f = parseNumericString(x.String)
	case sql.NullInt64:
		if !x.Valid {
			return 0
		}
		f = float64(x.Int64)
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func parseNumericString(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// NonNegative clamps negative values to zero.
func NonNegative(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
