package valuation

import (
	"deplacements/internal/core"
)

// UnknownTravelTypeName labels allowance groups whose travel type is missing.
const UnknownTravelTypeName = "Type inconnu"

// AllowanceGroup counts allowance days sharing one daily rate.
type AllowanceGroup struct {
	Count int     `json:"count"`
	Total float64 `json:"total"`
	Name  string  `json:"name"`
}

// RateForTravelType returns the first rate configured for the travel type.
func RateForTravelType(rates []core.RoleDailyAllowanceRate, travelTypeID int64) (core.RoleDailyAllowanceRate, bool) {
	for _, r := range rates {
		if r.TravelTypeID == travelTypeID {
			return r, true
		}
	}
	return core.RoleDailyAllowanceRate{}, false
}

// TravelTypeName returns the name of the travel type, or the placeholder.
func TravelTypeName(types []core.TravelType, id int64) string {
	for _, tt := range types {
		if tt.ID == id {
			return tt.Name
		}
	}
	return UnknownTravelTypeName
}

// BuildDailyAllowances adds one allowance day per trip whose travel type has
// a configured rate, grouped by the rate value itself.
//
// Two travel types configured with the same rate land in the same group; the
// group keeps the name of the first trip that created it.
//
// TODO: key groups by travel type id once the merge of types sharing a rate
// is confirmed to be unintended; reports depend on the current keys.
func BuildDailyAllowances(trips []core.Trip, rates []core.RoleDailyAllowanceRate, types []core.TravelType) map[float64]AllowanceGroup {
	groups := make(map[float64]AllowanceGroup)
	for _, trip := range trips {
		matched, ok := RateForTravelType(rates, trip.TravelTypeID)
		if !ok {
			continue
		}
		rate := matched.RatePerDay
		g, exists := groups[rate]
		if !exists {
			g.Name = TravelTypeName(types, trip.TravelTypeID)
		}
		g.Count++
		g.Total += rate
		groups[rate] = g
	}
	return groups
}
