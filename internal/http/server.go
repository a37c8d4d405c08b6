package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"deplacements/internal/cache"
	"deplacements/internal/core"
	applog "deplacements/internal/log"
	"deplacements/internal/services"
	"deplacements/internal/valuation"
)

type (
	// SummaryComputer is the per-user side of the valuation engine.
	SummaryComputer interface {
		ComputeDashboardSummary(ctx context.Context, userID int64, year, month int) (valuation.DashboardSummary, error)
		ComputeExportSummary(ctx context.Context, userID int64, year, month int) (valuation.MonthlySummary, error)
	}

	UserReader interface {
		FetchUser(ctx context.Context, userID int64) (core.User, error)
	}

	// RecapRequester computes company recaps and queues their generation.
	RecapRequester interface {
		Compute(ctx context.Context, year, month int) ([]valuation.RecapRow, error)
		Request(ctx context.Context, year, month int) (services.RecapResult, error)
	}

	// ReadinessChecker reports whether the data store answers.
	ReadinessChecker interface {
		Ping(ctx context.Context) error
	}
)

// Deps groups the collaborators the handlers call into.
type Deps struct {
	Summaries SummaryComputer
	Users     UserReader
	Recaps    RecapRequester
	Ready     ReadinessChecker
	Logger    *applog.Logger

	// RequestTimeout bounds each API request (0 disables the deadline).
	RequestTimeout time.Duration
}

type Server struct {
	http.Server
	deps        Deps
	structured  *applog.StructuredLogger
	rateLimiter *rateLimiter
	metrics     *securityMetrics

	// Recap rows per month; dropped when a new recap is requested.
	recapCache   *cache.LRUCache[[]valuation.RecapRow]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.New(applog.Config{Level: slog.LevelInfo, Component: applog.ComponentHTTP})
	}
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           applog.Middleware(deps.Logger)(mux),
			ReadHeaderTimeout: 10 * time.Second,
		},
		deps:         deps,
		structured:   applog.NewStructuredLogger(deps.Logger),
		rateLimiter:  newRateLimiter(),
		metrics:      &securityMetrics{},
		recapCache:   cache.NewLRUCache[[]valuation.RecapRow](24, 2*time.Minute),
		cacheManager: cache.NewManager(),
	}
	s.cacheManager.Register("recaps", s.recapCache)
	s.cacheManager.StartCleanup(5 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/users/{id}/dashboard", s.withSecurityHeaders(s.handleDashboard))
	mux.HandleFunc("GET /api/users/{id}/export", s.withSecurityHeaders(s.handleExport))
	mux.HandleFunc("GET /api/users/{id}/export.pdf", s.withSecurityHeaders(s.handleExportPDF))
	mux.HandleFunc("GET /api/recaps", s.withSecurityHeaders(s.handleListRecap))
	mux.HandleFunc("POST /api/recaps", s.withSecurityHeaders(s.handleRequestRecap))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		stats := s.recapCache.Stats()
		s.deps.Logger.InfoContext(ctx, "Recap cache closed",
			"entries", stats.Entries,
			"hits", stats.Hits,
			"misses", stats.Misses,
			"suspicious_requests", atomic.LoadInt64(&s.metrics.suspiciousRequests),
			"rate_limit_hits", atomic.LoadInt64(&s.metrics.rateLimitHits))
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, request id,
// request deadline and request logging to API responses.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)

		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" || len(requestID) > 64 {
			requestID = generateRequestID()
		}

		ctx := r.Context()
		if s.deps.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.deps.RequestTimeout)
			defer cancel()
		}
		logger := applog.FromContext(ctx).With(applog.FieldRequestID, requestID)
		ctx = applog.WithLogger(ctx, logger)
		r = r.WithContext(ctx)

		s.structured.LogHTTPStart(ctx, r, clientIP)
		if reason, ok := probeReason(r, s.metrics); ok {
			logger.WarnContext(ctx, "Suspicious request",
				applog.FieldClientIP, clientIP,
				applog.FieldPath, r.URL.Path,
				"reason", reason)
		}

		// Recap generation is the expensive call; limit it per client.
		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP, s.metrics) {
			logger.WarnContext(ctx, "Rate limit exceeded", applog.FieldClientIP, clientIP, applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			return
		}

		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.structured.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "Readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
