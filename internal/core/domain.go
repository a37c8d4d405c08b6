package core

import (
	"errors"
	"strings"
	"time"
)

const (
	ConditionAll       ConditionType = "ALL"
	ConditionThreshold ConditionType = "THRESHOLD"
)

type (
	// ConditionType selects how a vehicle rate rule prices a distance.
	ConditionType string

	User struct {
		ID     int64
		Name   string
		RoleID int64
		Active bool
	}

	TravelType struct {
		ID   int64
		Name string
	}

	// VehicleRateRule is a per-user per-kilometer rate configuration.
	// RateAfterThreshold and ThresholdKm only matter for THRESHOLD rules.
	VehicleRateRule struct {
		ID                  int64
		OwnerUserID         int64
		ConditionType       ConditionType
		RateBeforeThreshold float64
		RateAfterThreshold  float64
		ThresholdKm         float64
		Active              bool
		DisplayName         string
	}

	RoleDailyAllowanceRate struct {
		ID           int64
		RoleID       int64
		TravelTypeID int64
		RatePerDay   float64
		Active       bool
	}

	Expense struct {
		ID             int64
		TripID         int64
		Description    string
		Amount         float64
		ProofReference *string // nil when no receipt was attached
	}

	// Trip is one dated travel record. AssignedRule and TravelType are
	// attached by the data-access layer; the engine does no joins.
	Trip struct {
		ID                 int64
		UserID             int64
		TravelTypeID       int64
		Date               time.Time
		DistanceKm         float64
		AssignedRateRuleID *int64
		AssignedRule       *VehicleRateRule
		TravelType         *TravelType
		Expenses           []Expense
	}
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrRoleNotFound = errors.New("role not found")
)

// Justified reports whether the expense carries a usable proof reference.
func (e Expense) Justified() bool {
	return e.ProofReference != nil && strings.TrimSpace(*e.ProofReference) != ""
}

// Label returns the rule's display name, or "Règle <id>" when it has none.
func (r VehicleRateRule) Label() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return "Règle " + itoa(r.ID)
}

// IsValid returns true for the condition types the engine knows how to price.
func (c ConditionType) IsValid() bool {
	switch c {
	case ConditionAll, ConditionThreshold:
		return true
	default:
		return false
	}
}

// ParseConditionType normalizes a stored condition type. Unknown values are
// returned as-is so that pricing them yields zero.
func ParseConditionType(s string) ConditionType {
	return ConditionType(strings.ToUpper(strings.TrimSpace(s)))
}
