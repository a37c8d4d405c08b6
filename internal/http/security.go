package http

import (
	"net"
	"net/http"
	"strings"
	"sync/atomic"
)

// securityMetrics counts requests the API refused or found suspicious.
type securityMetrics struct {
	rateLimitHits      int64
	suspiciousRequests int64
}

// Forwarding headers are only believed when the direct peer is one of these.
var trustedProxies = mustParseCIDRs(
	"127.0.0.0/8",
	"::1/128",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic("invalid trusted proxy CIDR " + c + ": " + err.Error())
		}
		out = append(out, n)
	}
	return out
}

func fromTrustedProxy(ip net.IP) bool {
	for _, n := range trustedProxies {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// extractClientIP returns the address rate limits and logs are keyed by:
// the first valid X-Forwarded-For hop, then X-Real-IP, when the peer is a
// trusted proxy; the peer address otherwise.
func extractClientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	peerIP := net.ParseIP(peer)
	if peerIP == nil || !fromTrustedProxy(peerIP) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return peer
}

var (
	probeFragments = []string{
		"../", "..\\", ".env", ".git", ".ssh", "wp-admin", "phpmyadmin",
		"etc/passwd", "cmd.exe", "<script", "javascript:", "union select", "eval(",
	}
	scannerAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab"}
)

// probeReason names the first probing pattern found in the request, if any.
// Such requests are logged and counted, never blocked.
func probeReason(r *http.Request, metrics *securityMetrics) (string, bool) {
	reason := ""
	target := strings.ToLower(r.URL.Path + "?" + r.URL.RawQuery)
	agent := strings.ToLower(r.Header.Get("User-Agent"))

	switch {
	case r.Method == http.MethodTrace || r.Method == http.MethodConnect:
		reason = "method " + r.Method
	case len(r.URL.String()) > 2048:
		reason = "oversized url"
	case strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5:
		reason = "long forwarding chain"
	default:
		for _, f := range probeFragments {
			if strings.Contains(target, f) {
				reason = "url contains " + f
				break
			}
		}
		if reason == "" {
			for _, a := range scannerAgents {
				if strings.Contains(agent, a) {
					reason = "scanner agent " + a
					break
				}
			}
		}
	}

	if reason == "" {
		return "", false
	}
	if metrics != nil {
		atomic.AddInt64(&metrics.suspiciousRequests, 1)
	}
	return reason, true
}
