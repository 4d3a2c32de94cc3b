package ratelimit

import (
	"net/http"
	"strings"
)

// maxUserAgentKey bounds the fallback identifier so hostile user agents
// cannot bloat the limiter map with long keys.
const maxUserAgentKey = 64

// ClientIdentifier derives a rate limit key for an HTTP request.
//
// Preference order: a trusted proxy-supplied client IP header, a real-IP
// header, the first hop of X-Forwarded-For, then a truncated User-Agent
// when no IP is determinable.
func ClientIdentifier(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return "ip:" + ip
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return "ip:" + ip
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return "ip:" + ip
		}
	}

	if host := requestHost(r); host != "" {
		return "ip:" + host
	}

	ua := r.UserAgent()
	if len(ua) > maxUserAgentKey {
		ua = ua[:maxUserAgentKey]
	}
	if ua == "" {
		ua = "unknown"
	}
	return "ua:" + ua
}

// requestHost extracts the bare host from RemoteAddr, tolerating a missing port.
func requestHost(r *http.Request) string {
	addr := r.RemoteAddr
	if addr == "" {
		return ""
	}
	if i := strings.LastIndex(addr, ":"); i > 0 && !strings.Contains(addr[i:], "]") {
		return strings.Trim(addr[:i], "[]")
	}
	return strings.Trim(addr, "[]")
}
