package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"deplacements/internal/core"
	applog "deplacements/internal/log"
	"deplacements/internal/services"
	"deplacements/internal/valuation"
)

type fakeSummaries struct {
	err       error
	dashboard valuation.DashboardSummary
	export    valuation.MonthlySummary
	calls     []string
}

func (f *fakeSummaries) ComputeDashboardSummary(ctx context.Context, userID int64, year, month int) (valuation.DashboardSummary, error) {
	f.calls = append(f.calls, fmt.Sprintf("dashboard %d %d-%d", userID, year, month))
	if f.err != nil {
		return valuation.DashboardSummary{}, f.err
	}
	s := f.dashboard
	s.UserID, s.Year, s.Month = userID, year, month
	return s, nil
}

func (f *fakeSummaries) ComputeExportSummary(ctx context.Context, userID int64, year, month int) (valuation.MonthlySummary, error) {
	f.calls = append(f.calls, fmt.Sprintf("export %d %d-%d", userID, year, month))
	if f.err != nil {
		return valuation.MonthlySummary{}, f.err
	}
	s := f.export
	s.UserID, s.Year, s.Month = userID, year, month
	return s, nil
}

type fakeUsers struct{}

func (fakeUsers) FetchUser(ctx context.Context, userID int64) (core.User, error) {
	if userID != 7 {
		return core.User{}, fmt.Errorf("user %d: %w", userID, core.ErrUserNotFound)
	}
	return core.User{ID: 7, Name: "Zoé Martin", RoleID: 1, Active: true}, nil
}

type fakeRecaps struct {
	computes int
	queued   bool
	err      error
}

func (f *fakeRecaps) Compute(ctx context.Context, year, month int) ([]valuation.RecapRow, error) {
	f.computes++
	if f.err != nil {
		return nil, f.err
	}
	return []valuation.RecapRow{{UserID: 7, UserName: "Zoé Martin", GrandTotal: 70}}, nil
}

func (f *fakeRecaps) Request(ctx context.Context, year, month int) (services.RecapResult, error) {
	if f.err != nil {
		return services.RecapResult{}, f.err
	}
	if f.queued {
		return services.RecapResult{RequestID: "0b7c1f7e-4f0e-4f53-9d55-0d6f0e7e1a10", Queued: true}, nil
	}
	return services.RecapResult{Ref: "mem:2024-03", Rows: 1}, nil
}

type fakePing struct{ err error }

func (f fakePing) Ping(ctx context.Context) error { return f.err }

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = applog.New(applog.Config{Level: slog.LevelError, Component: applog.ComponentHTTP, Output: io.Discard})
	}
	srv := NewServer(":0", deps)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(srv *Server, method, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, Deps{Ready: fakePing{}})
	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := do(srv, http.MethodGet, path); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	down := newTestServer(t, Deps{Ready: fakePing{err: errors.New("database is locked")}})
	rr := do(down, http.MethodGet, "/readyz")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d, want 503", rr.Code)
	}
}

func TestDashboard(t *testing.T) {
	summaries := &fakeSummaries{dashboard: valuation.DashboardSummary{TotalDistance: 120, TotalTripCost: 95.5, Justified: 2, Unjustified: 1}}
	srv := newTestServer(t, Deps{Summaries: summaries})

	rr := do(srv, http.MethodGet, "/api/users/7/dashboard?year=2024&month=2")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	var got valuation.DashboardSummary
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.UserID != 7 || got.Year != 2024 || got.Month != 2 || got.TotalTripCost != 95.5 || got.Unjustified != 1 {
		t.Fatalf("unexpected summary %+v", got)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" || rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("security headers missing: %v", rr.Header())
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := newTestServer(t, Deps{Summaries: &fakeSummaries{}})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users/7/dashboard?year=2024&month=0", nil)
	req.Header.Set("X-Request-ID", "trace-42")
	srv.Handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "trace-42" {
		t.Fatalf("X-Request-ID = %q", got)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		want   int
	}{
		{"non numeric id", "/api/users/abc/dashboard", nil, http.StatusBadRequest},
		{"zero id", "/api/users/0/export", nil, http.StatusBadRequest},
		{"month out of range", "/api/users/7/dashboard?year=2024&month=12", nil, http.StatusBadRequest},
		{"negative month", "/api/users/7/export?year=2024&month=-1", nil, http.StatusBadRequest},
		{"malformed year", "/api/users/7/dashboard?year=twenty&month=1", nil, http.StatusBadRequest},
		{"unknown user", "/api/users/7/dashboard?year=2024&month=1", fmt.Errorf("fetch user 7: %w", core.ErrUserNotFound), http.StatusNotFound},
		{"storage failure", "/api/users/7/export?year=2024&month=1", errors.New("disk I/O error"), http.StatusInternalServerError},
		{"unknown user pdf", "/api/users/8/export.pdf?year=2024&month=1", nil, http.StatusNotFound},
		{"recap month", "/api/recaps?year=2024&month=13", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Deps{Summaries: &fakeSummaries{err: tt.err}, Users: fakeUsers{}, Recaps: &fakeRecaps{}})
			rr := do(srv, http.MethodGet, tt.target)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body)
			}
			var body errorBody
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body.Error == "" {
				t.Fatalf("expected JSON error body, got %q", rr.Body)
			}
			if tt.want == http.StatusInternalServerError && strings.Contains(body.Error, "disk") {
				t.Fatalf("internal error details leaked: %q", body.Error)
			}
		})
	}
}

func TestExportRounding(t *testing.T) {
	summaries := &fakeSummaries{export: valuation.MonthlySummary{
		TotalMisc:  12.345,
		MiscCount:  1,
		GrandTotal: 12.345,
		MileageCosts: map[string]valuation.MileageGroup{
			"Voiture": {Distance: 10, Total: 0},
		},
		DailyAllowances: map[float64]valuation.AllowanceGroup{},
	}}
	srv := newTestServer(t, Deps{Summaries: summaries})

	raw := do(srv, http.MethodGet, "/api/users/7/export?year=2024&month=2")
	if raw.Code != http.StatusOK || !strings.Contains(raw.Body.String(), `"grandTotal":12.345`) {
		t.Fatalf("raw export: %d %s", raw.Code, raw.Body)
	}

	rounded := do(srv, http.MethodGet, "/api/users/7/export?year=2024&month=2&rounded=true")
	if rounded.Code != http.StatusOK || !strings.Contains(rounded.Body.String(), `"grandTotal":12.35`) {
		t.Fatalf("rounded export: %d %s", rounded.Code, rounded.Body)
	}
	if !strings.Contains(rounded.Body.String(), `"dailyAllowances":{}`) {
		t.Fatalf("allowances should render as an object: %s", rounded.Body)
	}
}

func TestExportPDF(t *testing.T) {
	summaries := &fakeSummaries{export: valuation.MonthlySummary{
		MileageCosts: map[string]valuation.MileageGroup{"Voiture": {Distance: 100, Total: 50}},
		DailyAllowances: map[float64]valuation.AllowanceGroup{
			20: {Name: "Chantier", Count: 1, Total: 20},
		},
		GrandTotal: 70,
	}}
	srv := newTestServer(t, Deps{Summaries: summaries, Users: fakeUsers{}})

	rr := do(srv, http.MethodGet, "/api/users/7/export.pdf?year=2024&month=2")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type %q", ct)
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF-")) {
		t.Fatal("body is not a PDF")
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "note-de-frais-7-2024-03.pdf") {
		t.Fatalf("content disposition %q", cd)
	}
}

func TestRecapEndpoints(t *testing.T) {
	recaps := &fakeRecaps{}
	srv := newTestServer(t, Deps{Recaps: recaps})

	for i := 0; i < 2; i++ {
		rr := do(srv, http.MethodGet, "/api/recaps?year=2024&month=2")
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
		}
		var got recapResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Month != 2 || len(got.Rows) != 1 || got.Rows[0].UserName != "Zoé Martin" {
			t.Fatalf("unexpected recap %+v", got)
		}
	}
	if recaps.computes != 1 {
		t.Fatalf("expected cached recap, computed %d times", recaps.computes)
	}

	rr := do(srv, http.MethodPost, "/api/recaps?year=2024&month=2")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "mem:2024-03") {
		t.Fatalf("inline recap: %d %s", rr.Code, rr.Body)
	}

	do(srv, http.MethodGet, "/api/recaps?year=2024&month=2")
	if recaps.computes != 2 {
		t.Fatalf("recap request should drop the cached rows, computed %d times", recaps.computes)
	}

	recaps.queued = true
	rr = do(srv, http.MethodPost, "/api/recaps?year=2024&month=2")
	if rr.Code != http.StatusAccepted || !strings.Contains(rr.Body.String(), `"queued":true`) {
		t.Fatalf("queued recap: %d %s", rr.Code, rr.Body)
	}
}

func TestRecapRequestRateLimited(t *testing.T) {
	srv := newTestServer(t, Deps{Recaps: &fakeRecaps{}})

	var last int
	for i := 0; i <= defaultRequestsPerMinute; i++ {
		last = do(srv, http.MethodPost, "/api/recaps?year=2024&month=2").Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429", last)
	}
	if srv.metrics.rateLimitHits != 1 {
		t.Fatalf("rateLimitHits=%d", srv.metrics.rateLimitHits)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, Deps{Recaps: &fakeRecaps{}})
	if rr := do(srv, http.MethodDelete, "/api/recaps"); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
}
