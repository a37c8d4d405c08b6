package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"deplacements/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// Repository reads the reimbursement data set from a SQL database. Numeric
// columns are scanned as text and sanitized with core.ParseOrZero, so a NULL
// or malformed value reads as 0 instead of failing the whole query.
type Repository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewRepository(db), nil
}

// NewRepository wraps an already opened database. The schema is assumed to
// be in place.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping is used by the readiness probe.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) FetchUser(ctx context.Context, userID int64) (core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, role_id, active FROM users WHERE id = ?`, userID).
		Scan(&u.ID, &u.Name, &u.RoleID, &u.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %d: %w", userID, core.ErrUserNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user %d: %w", userID, err)
	}
	return u, nil
}

// FetchActiveUsers lists active users by name, the order recap rows use.
func (r *Repository) FetchActiveUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, role_id, active FROM users WHERE active = 1 ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		var u core.User
		if err := rows.Scan(&u.ID, &u.Name, &u.RoleID, &u.Active); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// FetchTripsForUserInWindow returns the user's trips dated within
// [start, endInclusive], ordered by date then id, with expenses, the
// assigned rate rule and the travel type attached.
func (r *Repository) FetchTripsForUserInWindow(ctx context.Context, userID int64, start, endInclusive time.Time) ([]core.Trip, error) {
	from, to := start.Format(dateLayout), endInclusive.Format(dateLayout)

	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.user_id, t.travel_type_id, t.trip_date, t.distance_km, t.vehicle_rate_rule_id,
		       r.id, r.user_id, r.condition_type, r.rate_before_threshold, r.rate_after_threshold,
		       r.threshold_km, r.active, r.display_name,
		       tt.id, tt.name
		FROM trips t
		LEFT JOIN vehicle_rate_rules r ON r.id = t.vehicle_rate_rule_id
		LEFT JOIN travel_types tt ON tt.id = t.travel_type_id
		WHERE t.user_id = ? AND t.trip_date BETWEEN ? AND ?
		ORDER BY t.trip_date, t.id`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	var trips []core.Trip
	index := make(map[int64]int)
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		index[trip.ID] = len(trips)
		trips = append(trips, trip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trips: %w", err)
	}
	if len(trips) == 0 {
		return trips, nil
	}

	if err := r.attachExpenses(ctx, userID, from, to, trips, index); err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "Trips loaded",
		"user_id", userID,
		"from", from,
		"to", to,
		"count", len(trips))

	return trips, nil
}

func scanTrip(rows *sql.Rows) (core.Trip, error) {
	var (
		trip                     core.Trip
		date                     string
		distance                 sql.NullString
		assignedID               sql.NullInt64
		ruleID, ruleOwner        sql.NullInt64
		ruleCondition, ruleName  sql.NullString
		before, after, threshold sql.NullString
		ruleActive               sql.NullBool
		travelTypeID             sql.NullInt64
		travelTypeName           sql.NullString
	)
	err := rows.Scan(&trip.ID, &trip.UserID, &trip.TravelTypeID, &date, &distance, &assignedID,
		&ruleID, &ruleOwner, &ruleCondition, &before, &after, &threshold, &ruleActive, &ruleName,
		&travelTypeID, &travelTypeName)
	if err != nil {
		return core.Trip{}, fmt.Errorf("scan trip: %w", err)
	}

	trip.Date, err = time.Parse(dateLayout, date)
	if err != nil {
		return core.Trip{}, fmt.Errorf("parse date of trip %d: %w", trip.ID, err)
	}
	trip.DistanceKm = core.ParseOrZero(distance)

	if assignedID.Valid {
		id := assignedID.Int64
		trip.AssignedRateRuleID = &id
	}
	if ruleID.Valid {
		trip.AssignedRule = &core.VehicleRateRule{
			ID:                  ruleID.Int64,
			OwnerUserID:         ruleOwner.Int64,
			ConditionType:       core.ParseConditionType(ruleCondition.String),
			RateBeforeThreshold: core.ParseOrZero(before),
			RateAfterThreshold:  core.ParseOrZero(after),
			ThresholdKm:         core.ParseOrZero(threshold),
			Active:              ruleActive.Bool,
			DisplayName:         ruleName.String,
		}
	}
	if travelTypeID.Valid {
		trip.TravelType = &core.TravelType{ID: travelTypeID.Int64, Name: travelTypeName.String}
	}
	return trip, nil
}

func (r *Repository) attachExpenses(ctx context.Context, userID int64, from, to string, trips []core.Trip, index map[int64]int) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.trip_id, e.description, e.amount, e.proof_reference
		FROM expenses e
		JOIN trips t ON t.id = e.trip_id
		WHERE t.user_id = ? AND t.trip_date BETWEEN ? AND ?
		ORDER BY e.id`, userID, from, to)
	if err != nil {
		return fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e      core.Expense
			amount sql.NullString
			proof  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TripID, &e.Description, &amount, &proof); err != nil {
			return fmt.Errorf("scan expense: %w", err)
		}
		e.Amount = core.ParseOrZero(amount)
		if proof.Valid {
			p := proof.String
			e.ProofReference = &p
		}
		if i, ok := index[e.TripID]; ok {
			trips[i].Expenses = append(trips[i].Expenses, e)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate expenses: %w", err)
	}
	return nil
}

// FetchActiveVehicleRateRules returns the user's active rules ordered by id.
func (r *Repository) FetchActiveVehicleRateRules(ctx context.Context, userID int64) ([]core.VehicleRateRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, condition_type, rate_before_threshold, rate_after_threshold,
		       threshold_km, active, display_name
		FROM vehicle_rate_rules
		WHERE user_id = ? AND active = 1
		ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list vehicle rate rules: %w", err)
	}
	defer rows.Close()

	var rules []core.VehicleRateRule
	for rows.Next() {
		var (
			rule                     core.VehicleRateRule
			condition                string
			before, after, threshold sql.NullString
		)
		if err := rows.Scan(&rule.ID, &rule.OwnerUserID, &condition, &before, &after, &threshold, &rule.Active, &rule.DisplayName); err != nil {
			return nil, fmt.Errorf("scan vehicle rate rule: %w", err)
		}
		rule.ConditionType = core.ParseConditionType(condition)
		rule.RateBeforeThreshold = core.ParseOrZero(before)
		rule.RateAfterThreshold = core.ParseOrZero(after)
		rule.ThresholdKm = core.ParseOrZero(threshold)
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vehicle rate rules: %w", err)
	}
	return rules, nil
}

// FetchDailyAllowanceRatesForRole returns the role's active rates ordered by
// id. It fails with core.ErrRoleNotFound when the role does not exist.
func (r *Repository) FetchDailyAllowanceRatesForRole(ctx context.Context, roleID int64) ([]core.RoleDailyAllowanceRate, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM roles WHERE id = ?`, roleID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("role %d: %w", roleID, core.ErrRoleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get role %d: %w", roleID, err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, role_id, travel_type_id, rate_per_day, active
		FROM role_daily_allowance_rates
		WHERE role_id = ? AND active = 1
		ORDER BY id`, roleID)
	if err != nil {
		return nil, fmt.Errorf("list daily allowance rates: %w", err)
	}
	defer rows.Close()

	var rates []core.RoleDailyAllowanceRate
	for rows.Next() {
		var (
			rate   core.RoleDailyAllowanceRate
			perDay sql.NullString
		)
		if err := rows.Scan(&rate.ID, &rate.RoleID, &rate.TravelTypeID, &perDay, &rate.Active); err != nil {
			return nil, fmt.Errorf("scan daily allowance rate: %w", err)
		}
		rate.RatePerDay = core.ParseOrZero(perDay)
		rates = append(rates, rate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily allowance rates: %w", err)
	}
	return rates, nil
}

func (r *Repository) FetchAllTravelTypes(ctx context.Context) ([]core.TravelType, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM travel_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list travel types: %w", err)
	}
	defer rows.Close()

	var types []core.TravelType
	for rows.Next() {
		var tt core.TravelType
		if err := rows.Scan(&tt.ID, &tt.Name); err != nil {
			return nil, fmt.Errorf("scan travel type: %w", err)
		}
		types = append(types, tt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate travel types: %w", err)
	}
	return types, nil
}
