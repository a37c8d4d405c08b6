package valuation

import (
	"deplacements/internal/core"
)

// ExpenseSummary totals the miscellaneous expenses of a set of trips.
type ExpenseSummary struct {
	TotalMisc        float64
	MiscCount        int
	JustifiedCount   int
	UnjustifiedCount int
}

// SummarizeExpenses sums every expense of every trip and classifies each one
// as justified or not by its proof reference.
func SummarizeExpenses(trips []core.Trip) ExpenseSummary {
	var s ExpenseSummary
	for _, trip := range trips {
		for _, e := range trip.Expenses {
			s.TotalMisc += e.Amount
			s.MiscCount++
			if e.Justified() {
				s.JustifiedCount++
			} else {
				s.UnjustifiedCount++
			}
		}
	}
	return s
}

// TripExpenseSum returns the sum of a single trip's expenses.
func TripExpenseSum(trip core.Trip) float64 {
	var total float64
	for _, e := range trip.Expenses {
		total += e.Amount
	}
	return total
}
