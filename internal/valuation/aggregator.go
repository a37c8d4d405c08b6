package valuation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"deplacements/internal/core"
)

// DataAccess is the read-only collaborator the Aggregator fetches its
// snapshot from. Trips come back with expenses, assigned rule and travel
// type already attached.
type DataAccess interface {
	FetchUser(ctx context.Context, userID int64) (core.User, error)
	FetchTripsForUserInWindow(ctx context.Context, userID int64, start, endInclusive time.Time) ([]core.Trip, error)
	FetchActiveVehicleRateRules(ctx context.Context, userID int64) ([]core.VehicleRateRule, error)
	FetchDailyAllowanceRatesForRole(ctx context.Context, roleID int64) ([]core.RoleDailyAllowanceRate, error)
	FetchAllTravelTypes(ctx context.Context) ([]core.TravelType, error)
}

// AggregatorConfig holds tunables for the Aggregator
type AggregatorConfig struct {
	// RulePolicy orders the default active rules (default: FirstSupplied)
	RulePolicy DefaultRulePolicy

	// RecapWorkers bounds concurrent users in the company recap (default: 4)
	RecapWorkers int
}

// DefaultAggregatorConfig returns the historical behaviour
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		RulePolicy:   FirstSupplied,
		RecapWorkers: 4,
	}
}

// Aggregator computes per-user monthly summaries. It holds no state between
// calls and is safe for concurrent use.
type Aggregator struct {
	data   DataAccess
	config AggregatorConfig
}

func NewAggregator(data DataAccess, config AggregatorConfig) *Aggregator {
	if config.RulePolicy == "" {
		config.RulePolicy = FirstSupplied
	}
	if config.RecapWorkers < 1 {
		config.RecapWorkers = 1
	}
	return &Aggregator{data: data, config: config}
}

// snapshot is everything one user's month is computed from.
type snapshot struct {
	user        core.User
	trips       []core.Trip
	activeRules []core.VehicleRateRule
	rates       []core.RoleDailyAllowanceRate
	types       []core.TravelType
}

func (a *Aggregator) loadSnapshot(ctx context.Context, userID int64, year, month int) (snapshot, error) {
	user, err := a.data.FetchUser(ctx, userID)
	if err != nil {
		return snapshot{}, fmt.Errorf("fetch user %d: %w", userID, err)
	}
	return a.loadSnapshotFor(ctx, user, year, month)
}

func (a *Aggregator) loadSnapshotFor(ctx context.Context, user core.User, year, month int) (snapshot, error) {
	window := core.MonthWindow(year, month)

	trips, err := a.data.FetchTripsForUserInWindow(ctx, user.ID, window.Start, window.End)
	if err != nil {
		return snapshot{}, fmt.Errorf("fetch trips for user %d: %w", user.ID, err)
	}
	rules, err := a.data.FetchActiveVehicleRateRules(ctx, user.ID)
	if err != nil {
		return snapshot{}, fmt.Errorf("fetch active rules for user %d: %w", user.ID, err)
	}
	rates, err := a.data.FetchDailyAllowanceRatesForRole(ctx, user.RoleID)
	if err != nil {
		return snapshot{}, fmt.Errorf("fetch allowance rates for role %d: %w", user.RoleID, err)
	}
	types, err := a.data.FetchAllTravelTypes(ctx)
	if err != nil {
		return snapshot{}, fmt.Errorf("fetch travel types: %w", err)
	}

	return snapshot{
		user:        user,
		trips:       trips,
		activeRules: orderRules(rules, a.config.RulePolicy),
		rates:       rates,
		types:       types,
	}, nil
}

// ComputeExportSummary returns the document-export variant for one user and
// a 0-based month: grouped mileage, rate-keyed allowances and misc totals.
func (a *Aggregator) ComputeExportSummary(ctx context.Context, userID int64, year, month int) (MonthlySummary, error) {
	snap, err := a.loadSnapshot(ctx, userID, year, month)
	if err != nil {
		return MonthlySummary{}, err
	}
	summary := exportSummary(snap, year, month)

	slog.DebugContext(ctx, "Export summary computed",
		"user_id", userID,
		"year", year,
		"month", month,
		"trips", len(snap.trips),
		"grand_total", summary.GrandTotal)

	return summary, nil
}

func exportSummary(snap snapshot, year, month int) MonthlySummary {
	misc := SummarizeExpenses(snap.trips)
	summary := MonthlySummary{
		UserID:          snap.user.ID,
		Year:            year,
		Month:           month,
		TotalMisc:       misc.TotalMisc,
		MiscCount:       misc.MiscCount,
		MileageCosts:    BuildDistanceGroups(snap.trips, snap.activeRules),
		DailyAllowances: BuildDailyAllowances(snap.trips, snap.rates, snap.types),
	}
	summary.GrandTotal = summary.TotalMisc + summary.MileageTotal() + summary.AllowanceTotal()
	return summary
}

// ComputeDashboardSummary returns the dashboard variant: every trip priced on
// its own with its resolved rule, its travel type's daily rate and its own
// expenses. It is computed independently of the export variant.
func (a *Aggregator) ComputeDashboardSummary(ctx context.Context, userID int64, year, month int) (DashboardSummary, error) {
	snap, err := a.loadSnapshot(ctx, userID, year, month)
	if err != nil {
		return DashboardSummary{}, err
	}
	summary := dashboardSummary(snap, year, month)

	slog.DebugContext(ctx, "Dashboard summary computed",
		"user_id", userID,
		"year", year,
		"month", month,
		"trips", len(snap.trips),
		"total_trip_cost", summary.TotalTripCost)

	return summary, nil
}

func dashboardSummary(snap snapshot, year, month int) DashboardSummary {
	summary := DashboardSummary{
		UserID: snap.user.ID,
		Year:   year,
		Month:  month,
	}
	for _, trip := range snap.trips {
		cost := TripMileageCost(trip, snap.activeRules)
		if rate, ok := RateForTravelType(snap.rates, trip.TravelTypeID); ok {
			cost += rate.RatePerDay
		}
		cost += TripExpenseSum(trip)

		summary.TotalTripCost += cost
		summary.TotalDistance += core.NonNegative(trip.DistanceKm)
	}
	misc := SummarizeExpenses(snap.trips)
	summary.Justified = misc.JustifiedCount
	summary.Unjustified = misc.UnjustifiedCount
	return summary
}
