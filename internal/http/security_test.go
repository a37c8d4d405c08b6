package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"direct peer", "203.0.113.9:5555", nil, "203.0.113.9"},
		{"untrusted peer ignores forwarding", "203.0.113.9:5555", map[string]string{"X-Forwarded-For": "198.51.100.1"}, "203.0.113.9"},
		{"trusted proxy first hop", "10.0.0.2:80", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.3"}, "198.51.100.1"},
		{"trusted proxy real ip", "127.0.0.1:80", map[string]string{"X-Real-IP": "198.51.100.7"}, "198.51.100.7"},
		{"trusted proxy garbage", "192.168.1.1:80", map[string]string{"X-Forwarded-For": "not-an-ip"}, "192.168.1.1"},
		{"no port", "198.51.100.4", nil, "198.51.100.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/recaps", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := extractClientIP(r); got != tt.want {
				t.Fatalf("extractClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProbeReason(t *testing.T) {
	metrics := &securityMetrics{}

	clean := httptest.NewRequest(http.MethodGet, "/api/users/7/export.pdf?year=2024&month=2", nil)
	clean.Header.Set("User-Agent", "curl/8.5.0")
	if reason, ok := probeReason(clean, metrics); ok {
		t.Fatalf("clean request flagged: %s", reason)
	}

	probe := httptest.NewRequest(http.MethodGet, "/api/../.env", nil)
	if _, ok := probeReason(probe, metrics); !ok {
		t.Fatal("path traversal not flagged")
	}

	scanner := httptest.NewRequest(http.MethodGet, "/api/recaps", nil)
	scanner.Header.Set("User-Agent", "sqlmap/1.7")
	if reason, ok := probeReason(scanner, metrics); !ok || reason != "scanner agent sqlmap" {
		t.Fatalf("scanner: %q, %v", reason, ok)
	}

	if metrics.suspiciousRequests != 2 {
		t.Fatalf("suspiciousRequests = %d", metrics.suspiciousRequests)
	}
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := &rateLimiter{limit: 2, now: func() time.Time { return now }, buckets: map[string]*bucket{}, done: make(chan struct{})}

	if !rl.allow("a", nil) || !rl.allow("a", nil) {
		t.Fatal("burst should be allowed")
	}
	if rl.allow("a", nil) {
		t.Fatal("third request should be denied")
	}
	if !rl.allow("b", nil) {
		t.Fatal("clients are limited independently")
	}

	now = now.Add(30 * time.Second)
	if !rl.allow("a", nil) {
		t.Fatal("one token should have refilled after 30s")
	}
	if rl.allow("a", nil) {
		t.Fatal("only one token should have refilled")
	}

	now = now.Add(time.Hour)
	if n := rl.sweep(); n != 2 {
		t.Fatalf("sweep removed %d, want 2", n)
	}
	rl.stop()
	rl.stop()
}
