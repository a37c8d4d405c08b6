// Package valuation turns a snapshot of trips, expenses and rate
// configuration into reimbursement totals.
//
// Everything here except Aggregator is a pure function over already
// sanitized inputs (see core.ParseOrZero). Nothing mutates the snapshot.
package valuation

import (
	"fmt"

	"deplacements/internal/core"
)

// CostMode selects how mileage is priced over a set of trips.
//
// The dashboard has always priced each trip on its own, while the export and
// the company recap price the summed distance of every trip sharing a rule.
// Both produce different numbers for the same data when a THRESHOLD rule is
// involved; each consumer keeps the mode it historically used.
type CostMode int

const (
	// PerTrip resolves and prices every trip independently.
	PerTrip CostMode = iota
	// Grouped prices the total distance of each assigned-rule partition once.
	Grouped
)

func (m CostMode) String() string {
	switch m {
	case PerTrip:
		return "per_trip"
	case Grouped:
		return "grouped"
	default:
		return fmt.Sprintf("cost_mode(%d)", int(m))
	}
}

// MileageCost prices a distance with a vehicle rate rule.
// Non-positive distances, a nil rule and unknown condition types cost 0.
func MileageCost(distanceKm float64, rule *core.VehicleRateRule) float64 {
	if distanceKm <= 0 || rule == nil {
		return 0
	}
	switch rule.ConditionType {
	case core.ConditionAll:
		return distanceKm * rule.RateBeforeThreshold
	case core.ConditionThreshold:
		t := rule.ThresholdKm
		rb := rule.RateBeforeThreshold
		ra := rule.RateAfterThreshold
		if distanceKm <= t {
			return distanceKm * rb
		}
		return t*rb + (distanceKm-t)*ra
	default:
		return 0
	}
}

// TripMileageCost prices a single trip with the rule the resolver picks for it.
func TripMileageCost(trip core.Trip, activeRules []core.VehicleRateRule) float64 {
	return MileageCost(core.NonNegative(trip.DistanceKm), ResolveRule(trip, activeRules))
}

// MileageCosts returns the total mileage cost of trips under the given mode.
func MileageCosts(trips []core.Trip, activeRules []core.VehicleRateRule, mode CostMode) float64 {
	switch mode {
	case PerTrip:
		var total float64
		for _, trip := range trips {
			total += TripMileageCost(trip, activeRules)
		}
		return total
	case Grouped:
		return sumMileage(BuildDistanceGroups(trips, activeRules))
	default:
		return 0
	}
}
