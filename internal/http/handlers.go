package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"deplacements/internal/export"
	applog "deplacements/internal/log"
	"deplacements/internal/valuation"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, params, ok := s.userMonth(w, r, applog.OpDashboard)
	if !ok {
		return
	}

	summary, err := s.deps.Summaries.ComputeDashboardSummary(r.Context(), userID, params.Year, params.Month)
	if err != nil {
		writeFailure(w, r, applog.OpDashboard, err)
		return
	}

	s.structured.LogSummaryServed(r.Context(), applog.OpDashboard, userID, params.Year, params.Month, summary.TotalTripCost)
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	userID, params, ok := s.userMonth(w, r, applog.OpExport)
	if !ok {
		return
	}

	summary, err := s.deps.Summaries.ComputeExportSummary(r.Context(), userID, params.Year, params.Month)
	if err != nil {
		writeFailure(w, r, applog.OpExport, err)
		return
	}
	if wantsRounded(r.URL.Query()) {
		summary = export.Rounded(summary)
	}

	s.structured.LogSummaryServed(r.Context(), applog.OpExport, userID, params.Year, params.Month, summary.GrandTotal)
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	userID, params, ok := s.userMonth(w, r, applog.OpRender)
	if !ok {
		return
	}

	user, err := s.deps.Users.FetchUser(r.Context(), userID)
	if err != nil {
		writeFailure(w, r, applog.OpRender, err)
		return
	}
	summary, err := s.deps.Summaries.ComputeExportSummary(r.Context(), userID, params.Year, params.Month)
	if err != nil {
		writeFailure(w, r, applog.OpRender, err)
		return
	}

	// Render fully before writing so a failure can still become a 500.
	var buf bytes.Buffer
	if err := export.RenderPDF(&buf, user, summary); err != nil {
		writeFailure(w, r, applog.OpRender, err)
		return
	}

	filename := fmt.Sprintf("note-de-frais-%d-%04d-%02d.pdf", userID, params.Year, params.Month+1)
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)

	s.structured.LogSummaryServed(r.Context(), applog.OpRender, userID, params.Year, params.Month, summary.GrandTotal)
}

type recapResponse struct {
	Year  int                  `json:"year"`
	Month int                  `json:"month"`
	Rows  []valuation.RecapRow `json:"rows"`
}

func (s *Server) handleListRecap(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), time.Now())
	if err != nil {
		writeFailure(w, r, applog.OpRecap, err)
		return
	}

	key := recapCacheKey(params)
	rows, hit := s.recapCache.Get(key)
	if !hit {
		rows, err = s.deps.Recaps.Compute(r.Context(), params.Year, params.Month)
		if err != nil {
			writeFailure(w, r, applog.OpRecap, err)
			return
		}
		if rows == nil {
			rows = []valuation.RecapRow{}
		}
		s.recapCache.Set(key, rows)
	}

	applog.FromContext(r.Context()).DebugContext(r.Context(), "Recap listed",
		applog.FieldYear, params.Year,
		applog.FieldMonth, params.Month,
		applog.FieldRows, len(rows),
		"cache_hit", hit)

	writeJSON(w, http.StatusOK, recapResponse{Year: params.Year, Month: params.Month, Rows: rows})
}

// handleRequestRecap queues a recap generation, or runs it inline when no
// queue is configured. Year and month come from the query string.
func (s *Server) handleRequestRecap(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), time.Now())
	if err != nil {
		writeFailure(w, r, applog.OpRecap, err)
		return
	}

	result, err := s.deps.Recaps.Request(r.Context(), params.Year, params.Month)
	if err != nil {
		writeFailure(w, r, applog.OpRecap, err)
		return
	}
	s.recapCache.Delete(recapCacheKey(params))

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Recap requested",
		applog.FieldYear, params.Year,
		applog.FieldMonth, params.Month,
		applog.FieldQueued, result.Queued,
		applog.FieldSheetsRef, result.Ref)

	status := http.StatusOK
	if result.Queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

// userMonth parses the path user id and the month query, writing a 400 on
// failure.
func (s *Server) userMonth(w http.ResponseWriter, r *http.Request, operation string) (int64, MonthParams, bool) {
	userID, err := parseUserID(r)
	if err != nil {
		writeFailure(w, r, operation, err)
		return 0, MonthParams{}, false
	}
	params, err := ParseMonthParams(r.URL.Query(), time.Now())
	if err != nil {
		writeFailure(w, r, operation, err)
		return 0, MonthParams{}, false
	}
	return userID, params, true
}

func recapCacheKey(p MonthParams) string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}
