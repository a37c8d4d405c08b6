package valuation

import (
	"fmt"
	"slices"
	"strings"

	"deplacements/internal/core"
)

// DefaultRulePolicy decides which active rule applies to a trip that has no
// attached rule of its own.
type DefaultRulePolicy string

const (
	// FirstSupplied keeps the caller's ordering: the first active rule wins.
	FirstSupplied DefaultRulePolicy = "first"
	// LowestID picks the active rule with the smallest id.
	LowestID DefaultRulePolicy = "lowest_id"
)

// ParseDefaultRulePolicy maps a configuration value to a policy.
func ParseDefaultRulePolicy(s string) (DefaultRulePolicy, error) {
	switch p := DefaultRulePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", FirstSupplied:
		return FirstSupplied, nil
	case LowestID:
		return LowestID, nil
	default:
		return "", fmt.Errorf("unknown default rule policy %q", s)
	}
}

// ResolveRule returns the vehicle rate rule that applies to trip.
//
// An attached assigned rule always wins, regardless of activeRules ordering.
// Otherwise the first element of activeRules is used; nil means no cost.
func ResolveRule(trip core.Trip, activeRules []core.VehicleRateRule) *core.VehicleRateRule {
	if trip.AssignedRateRuleID != nil && trip.AssignedRule != nil {
		return trip.AssignedRule
	}
	if len(activeRules) > 0 {
		return &activeRules[0]
	}
	return nil
}

// orderRules returns the rules in the order the policy resolves them.
// The input slice is never reordered in place.
func orderRules(rules []core.VehicleRateRule, policy DefaultRulePolicy) []core.VehicleRateRule {
	if policy != LowestID || len(rules) < 2 {
		return rules
	}
	ordered := slices.Clone(rules)
	slices.SortStableFunc(ordered, func(a, b core.VehicleRateRule) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return ordered
}
