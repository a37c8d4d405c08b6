package valuation

import (
	"deplacements/internal/core"
)

// MileageGroup is the priced aggregate of every trip sharing one rule.
type MileageGroup struct {
	RuleID        int64              `json:"ruleId"`
	Distance      float64            `json:"distance"`
	Total         float64            `json:"total"`
	Rate          float64            `json:"rate"`
	RateAfter     float64            `json:"rateAfter"`
	Threshold     float64            `json:"threshold"`
	ConditionType core.ConditionType `json:"conditionType"`
}

// BuildDistanceGroups partitions trips by assigned rule id and prices the
// summed distance of each partition once, keyed by the rule label.
//
// Trips without an assigned rule are ignored, as are partitions whose rule
// is not among activeRules. If two partitions share a label, their distances
// and totals accumulate into the first entry.
func BuildDistanceGroups(trips []core.Trip, activeRules []core.VehicleRateRule) map[string]MileageGroup {
	var order []int64
	distances := make(map[int64]float64)
	for _, trip := range trips {
		if trip.AssignedRateRuleID == nil {
			continue
		}
		id := *trip.AssignedRateRuleID
		if _, seen := distances[id]; !seen {
			order = append(order, id)
		}
		distances[id] += core.NonNegative(trip.DistanceKm)
	}

	groups := make(map[string]MileageGroup, len(order))
	for _, id := range order {
		rule := findRule(activeRules, id)
		if rule == nil {
			continue
		}
		distance := distances[id]
		cost := MileageCost(distance, rule)
		label := rule.Label()

		if existing, ok := groups[label]; ok {
			existing.Distance += distance
			existing.Total += cost
			groups[label] = existing
			continue
		}
		groups[label] = MileageGroup{
			RuleID:        rule.ID,
			Distance:      distance,
			Total:         cost,
			Rate:          rule.RateBeforeThreshold,
			RateAfter:     rule.RateAfterThreshold,
			Threshold:     rule.ThresholdKm,
			ConditionType: rule.ConditionType,
		}
	}
	return groups
}

func findRule(rules []core.VehicleRateRule, id int64) *core.VehicleRateRule {
	for i := range rules {
		if rules[i].ID == id {
			return &rules[i]
		}
	}
	return nil
}
