package valuation

import (
	"encoding/json"
	"slices"
	"strconv"
)

// MonthlySummary is the export variant of one user's month.
//
// GrandTotal always equals TotalMisc + MileageTotal() + AllowanceTotal();
// both helpers sum in sorted key order so the identity holds bit for bit.
type MonthlySummary struct {
	UserID          int64                      `json:"userId"`
	Year            int                        `json:"year"`
	Month           int                        `json:"month"`
	TotalMisc       float64                    `json:"totalMisc"`
	MiscCount       int                        `json:"miscCount"`
	MileageCosts    map[string]MileageGroup    `json:"mileageCosts"`
	DailyAllowances map[float64]AllowanceGroup `json:"-"`
	GrandTotal      float64                    `json:"grandTotal"`
}

// DashboardSummary is the per-trip variant consumed by the JSON dashboard.
type DashboardSummary struct {
	UserID        int64   `json:"userId"`
	Year          int     `json:"year"`
	Month         int     `json:"month"`
	TotalDistance float64 `json:"totalDistance"`
	TotalTripCost float64 `json:"totalTripCost"`
	Justified     int     `json:"justified"`
	Unjustified   int     `json:"unjustified"`
}

// MileageLabels returns the mileage group labels in sorted order.
func (s MonthlySummary) MileageLabels() []string {
	labels := make([]string, 0, len(s.MileageCosts))
	for label := range s.MileageCosts {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	return labels
}

// AllowanceRates returns the allowance group rates in ascending order.
func (s MonthlySummary) AllowanceRates() []float64 {
	rates := make([]float64, 0, len(s.DailyAllowances))
	for rate := range s.DailyAllowances {
		rates = append(rates, rate)
	}
	slices.Sort(rates)
	return rates
}

func (s MonthlySummary) MileageTotal() float64 {
	return sumMileage(s.MileageCosts)
}

func (s MonthlySummary) AllowanceTotal() float64 {
	return sumAllowances(s.DailyAllowances)
}

// MarshalJSON renders DailyAllowances with the rate formatted as the key,
// since encoding/json cannot key objects by float64.
func (s MonthlySummary) MarshalJSON() ([]byte, error) {
	type alias MonthlySummary
	allowances := make(map[string]AllowanceGroup, len(s.DailyAllowances))
	for rate, g := range s.DailyAllowances {
		allowances[FormatRate(rate)] = g
	}
	return json.Marshal(struct {
		alias
		DailyAllowances map[string]AllowanceGroup `json:"dailyAllowances"`
	}{
		alias:           alias(s),
		DailyAllowances: allowances,
	})
}

// FormatRate formats a rate with the shortest exact representation.
func FormatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', -1, 64)
}

func sumMileage(groups map[string]MileageGroup) float64 {
	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	var total float64
	for _, label := range labels {
		total += groups[label].Total
	}
	return total
}

func sumAllowances(groups map[float64]AllowanceGroup) float64 {
	rates := make([]float64, 0, len(groups))
	for rate := range groups {
		rates = append(rates, rate)
	}
	slices.Sort(rates)
	var total float64
	for _, rate := range rates {
		total += groups[rate].Total
	}
	return total
}
