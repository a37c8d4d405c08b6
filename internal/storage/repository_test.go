package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"deplacements/internal/core"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seed(t *testing.T, repo *Repository, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		if _, err := repo.db.Exec(stmt); err != nil {
			t.Fatalf("seed %q: %v", stmt, err)
		}
	}
}

func seedFixture(t *testing.T, repo *Repository) {
	seed(t, repo,
		`INSERT INTO roles (id, name) VALUES (1, 'Technicien'), (2, 'Chef')`,
		`INSERT INTO users (id, name, role_id, active) VALUES
			(1, 'Zoé', 1, 1), (2, 'Adrien', 2, 1), (3, 'Parti', 1, 0)`,
		`INSERT INTO travel_types (id, name) VALUES (2, 'Chantier'), (1, 'Grand déplacement')`,
		`INSERT INTO vehicle_rate_rules
			(id, user_id, condition_type, rate_before_threshold, rate_after_threshold, threshold_km, active, display_name)
			VALUES
			(3, 1, 'threshold', 2, 1.5, 500, 1, 'Voiture'),
			(1, 1, 'ALL', 'abc', NULL, NULL, 1, ''),
			(2, 1, 'ALL', 9, NULL, NULL, 0, 'Ancienne')`,
		`INSERT INTO role_daily_allowance_rates (id, role_id, travel_type_id, rate_per_day, active) VALUES
			(2, 1, 2, 35, 1), (1, 1, 1, NULL, 1), (3, 1, 1, 99, 0)`,
		`INSERT INTO trips (id, user_id, travel_type_id, trip_date, distance_km, vehicle_rate_rule_id) VALUES
			(10, 1, 2, '2024-03-15', 300, 3),
			(11, 1, 1, '2024-03-01', NULL, NULL),
			(12, 1, 2, '2024-03-31', 12.5, 2),
			(13, 1, 2, '2024-04-01', 100, 3),
			(14, 1, 2, '2024-02-29', 100, 3),
			(15, 2, 2, '2024-03-10', 50, NULL)`,
		`INSERT INTO expenses (id, trip_id, description, amount, proof_reference) VALUES
			(1, 10, 'Péage', 12.4, 'ticket.jpg'),
			(2, 10, 'Parking', '7,5', NULL),
			(3, 11, 'Repas', NULL, ''),
			(4, 13, 'Hors fenêtre', 99, NULL)`,
	)
}

func TestFetchTripsForUserInWindow(t *testing.T) {
	repo := newTestRepository(t)
	seedFixture(t, repo)

	w := core.MonthWindow(2024, 2)
	trips, err := repo.FetchTripsForUserInWindow(context.Background(), 1, w.Start, w.End)
	if err != nil {
		t.Fatalf("FetchTripsForUserInWindow: %v", err)
	}

	if len(trips) != 3 {
		t.Fatalf("expected 3 trips in March, got %d", len(trips))
	}
	if trips[0].ID != 11 || trips[1].ID != 10 || trips[2].ID != 12 {
		t.Fatalf("expected trips ordered by date, got %d %d %d", trips[0].ID, trips[1].ID, trips[2].ID)
	}

	first := trips[0]
	if first.DistanceKm != 0 || first.AssignedRateRuleID != nil || first.AssignedRule != nil {
		t.Fatalf("NULL distance and rule should read as zero values: %+v", first)
	}
	if first.TravelType == nil || first.TravelType.Name != "Grand déplacement" {
		t.Fatalf("travel type not attached: %+v", first.TravelType)
	}
	if len(first.Expenses) != 1 || first.Expenses[0].Amount != 0 || first.Expenses[0].Justified() {
		t.Fatalf("unexpected expenses for trip 11: %+v", first.Expenses)
	}

	mid := trips[1]
	if !mid.Date.Equal(time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", mid.Date)
	}
	if mid.AssignedRule == nil || mid.AssignedRule.ConditionType != core.ConditionThreshold ||
		mid.AssignedRule.ThresholdKm != 500 || mid.AssignedRule.RateAfterThreshold != 1.5 {
		t.Fatalf("assigned rule not attached: %+v", mid.AssignedRule)
	}
	if len(mid.Expenses) != 2 {
		t.Fatalf("expected 2 expenses, got %+v", mid.Expenses)
	}
	if mid.Expenses[0].Amount != 12.4 || !mid.Expenses[0].Justified() {
		t.Fatalf("unexpected first expense: %+v", mid.Expenses[0])
	}
	if mid.Expenses[1].Amount != 7.5 || mid.Expenses[1].ProofReference != nil {
		t.Fatalf("comma decimal should be parsed: %+v", mid.Expenses[1])
	}

	// An inactive assigned rule is still attached; filtering is the engine's job.
	last := trips[2]
	if last.AssignedRule == nil || last.AssignedRule.Active || last.AssignedRule.DisplayName != "Ancienne" {
		t.Fatalf("inactive assigned rule not attached: %+v", last.AssignedRule)
	}
}

func TestFetchTripsForUserInWindowEmpty(t *testing.T) {
	repo := newTestRepository(t)
	seedFixture(t, repo)

	w := core.MonthWindow(2023, 0)
	trips, err := repo.FetchTripsForUserInWindow(context.Background(), 1, w.Start, w.End)
	if err != nil {
		t.Fatalf("FetchTripsForUserInWindow: %v", err)
	}
	if len(trips) != 0 {
		t.Fatalf("expected no trips, got %d", len(trips))
	}
}

func TestFetchActiveVehicleRateRules(t *testing.T) {
	repo := newTestRepository(t)
	seedFixture(t, repo)

	rules, err := repo.FetchActiveVehicleRateRules(context.Background(), 1)
	if err != nil {
		t.Fatalf("FetchActiveVehicleRateRules: %v", err)
	}
	if len(rules) != 2 || rules[0].ID != 1 || rules[1].ID != 3 {
		t.Fatalf("expected active rules 1 and 3 ordered by id, got %+v", rules)
	}
	if rules[0].RateBeforeThreshold != 0 || rules[0].ThresholdKm != 0 {
		t.Fatalf("malformed and NULL rates should read as 0: %+v", rules[0])
	}
	if rules[1].ConditionType != core.ConditionThreshold {
		t.Fatalf("condition type should be normalized, got %q", rules[1].ConditionType)
	}
}

func TestFetchDailyAllowanceRatesForRole(t *testing.T) {
	repo := newTestRepository(t)
	seedFixture(t, repo)
	ctx := context.Background()

	rates, err := repo.FetchDailyAllowanceRatesForRole(ctx, 1)
	if err != nil {
		t.Fatalf("FetchDailyAllowanceRatesForRole: %v", err)
	}
	if len(rates) != 2 || rates[0].ID != 1 || rates[0].RatePerDay != 0 || rates[1].RatePerDay != 35 {
		t.Fatalf("unexpected rates: %+v", rates)
	}

	rates, err = repo.FetchDailyAllowanceRatesForRole(ctx, 2)
	if err != nil || len(rates) != 0 {
		t.Fatalf("role without rates: got %+v, %v", rates, err)
	}

	if _, err := repo.FetchDailyAllowanceRatesForRole(ctx, 42); !errors.Is(err, core.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestFetchUsers(t *testing.T) {
	repo := newTestRepository(t)
	seedFixture(t, repo)
	ctx := context.Background()

	u, err := repo.FetchUser(ctx, 3)
	if err != nil || u.Name != "Parti" || u.Active || u.RoleID != 1 {
		t.Fatalf("FetchUser(3) = %+v, %v", u, err)
	}
	if _, err := repo.FetchUser(ctx, 99); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	users, err := repo.FetchActiveUsers(ctx)
	if err != nil {
		t.Fatalf("FetchActiveUsers: %v", err)
	}
	if len(users) != 2 || users[0].Name != "Adrien" || users[1].Name != "Zoé" {
		t.Fatalf("expected active users ordered by name, got %+v", users)
	}

	types, err := repo.FetchAllTravelTypes(ctx)
	if err != nil || len(types) != 2 || types[0].ID != 1 {
		t.Fatalf("FetchAllTravelTypes = %+v, %v", types, err)
	}
}

func TestRepositoryPropagatesQueryErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	boom := errors.New("disk I/O error")
	mock.ExpectQuery("FROM trips t").WillReturnError(boom)
	mock.ExpectQuery("FROM vehicle_rate_rules").WillReturnError(boom)
	mock.ExpectQuery("FROM roles").WillReturnError(boom)

	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now()

	if _, err := repo.FetchTripsForUserInWindow(ctx, 1, now, now); !errors.Is(err, boom) {
		t.Fatalf("trips: expected wrapped error, got %v", err)
	}
	if _, err := repo.FetchActiveVehicleRateRules(ctx, 1); !errors.Is(err, boom) {
		t.Fatalf("rules: expected wrapped error, got %v", err)
	}
	if _, err := repo.FetchDailyAllowanceRatesForRole(ctx, 1); !errors.Is(err, boom) || errors.Is(err, core.ErrRoleNotFound) {
		t.Fatalf("rates: expected wrapped error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRepositoryExpenseQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	cols := []string{"id", "user_id", "travel_type_id", "trip_date", "distance_km", "vehicle_rate_rule_id",
		"rid", "ruser", "condition_type", "before", "after", "threshold", "active", "display_name",
		"ttid", "ttname"}
	mock.ExpectQuery("FROM trips t").WillReturnRows(sqlmock.NewRows(cols).
		AddRow(1, 1, 1, "2024-03-02", "10", nil, nil, nil, nil, nil, nil, nil, nil, nil, 1, "Chantier"))
	boom := errors.New("expenses unavailable")
	mock.ExpectQuery("FROM expenses e").WillReturnError(boom)

	_, err = NewRepository(db).FetchTripsForUserInWindow(context.Background(), 1, time.Now(), time.Now())
	if !errors.Is(err, boom) {
		t.Fatalf("expected expense error to propagate, got %v", err)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.db")
	if v, err := SchemaVersion(path); err != nil || v != 0 {
		t.Fatalf("fresh database: version %d, %v", v, err)
	}
	if err := RunMigrations(path); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := RunMigrations(path); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if v, err := SchemaVersion(path); err != nil || v != 1 {
		t.Fatalf("version after migrations = %d, %v", v, err)
	}
}
