package valuation

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"deplacements/internal/core"
)

// TravelTypeDays is one travel type's column block in a recap row.
type TravelTypeDays struct {
	TravelTypeID int64   `json:"travelTypeId"`
	Name         string  `json:"name"`
	Days         int     `json:"days"`
	Rate         float64 `json:"rate"`
	Total        float64 `json:"total"`
}

// RecapRow is one active user's line in the company monthly recap.
// Mileage is priced in Grouped mode, like the export.
type RecapRow struct {
	UserID         int64            `json:"userId"`
	UserName       string           `json:"userName"`
	TravelTypes    []TravelTypeDays `json:"travelTypes"`
	TotalDistance  float64          `json:"totalDistance"`
	MileageTotal   float64          `json:"mileageTotal"`
	AllowanceTotal float64          `json:"allowanceTotal"`
	MiscTotal      float64          `json:"miscTotal"`
	GrandTotal     float64          `json:"grandTotal"`
}

// ComputeCompanyMonthlyRecap computes one row per active user, in the order
// users were given. Users are processed on a pool bounded by
// RecapWorkers; the first data-access failure cancels the rest and is
// returned.
func (a *Aggregator) ComputeCompanyMonthlyRecap(ctx context.Context, year, month int, activeUsers []core.User) ([]RecapRow, error) {
	start := time.Now()
	rows := make([]RecapRow, len(activeUsers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.RecapWorkers)

	for i, user := range activeUsers {
		g.Go(func() error {
			snap, err := a.loadSnapshotFor(gctx, user, year, month)
			if err != nil {
				return err
			}
			rows[i] = recapRow(snap, year, month)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Company recap computed",
		"year", year,
		"month", month,
		"users", len(activeUsers),
		"workers", a.config.RecapWorkers,
		"duration_ms", time.Since(start).Milliseconds())

	return rows, nil
}

func recapRow(snap snapshot, year, month int) RecapRow {
	summary := exportSummary(snap, year, month)

	days := make(map[int64]int, len(snap.types))
	var distance float64
	for _, trip := range snap.trips {
		days[trip.TravelTypeID]++
		distance += core.NonNegative(trip.DistanceKm)
	}

	row := RecapRow{
		UserID:         snap.user.ID,
		UserName:       snap.user.Name,
		TravelTypes:    make([]TravelTypeDays, 0, len(snap.types)),
		TotalDistance:  distance,
		MileageTotal:   summary.MileageTotal(),
		AllowanceTotal: summary.AllowanceTotal(),
		MiscTotal:      summary.TotalMisc,
		GrandTotal:     summary.GrandTotal,
	}
	for _, tt := range snap.types {
		col := TravelTypeDays{
			TravelTypeID: tt.ID,
			Name:         tt.Name,
			Days:         days[tt.ID],
		}
		if rate, ok := RateForTravelType(snap.rates, tt.ID); ok {
			col.Rate = rate.RatePerDay
			col.Total = float64(col.Days) * rate.RatePerDay
		}
		row.TravelTypes = append(row.TravelTypes, col)
	}
	return row
}
