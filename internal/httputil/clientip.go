// Package httputil holds request helpers shared by the API and the stream
// handlers.
package httputil

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP extracts the client IP address from the request. Rate limits and
// stream slots are keyed on it.
//
// When trustProxy is true the leftmost X-Forwarded-For entry, then
// X-Real-IP, is used if it parses as an IP; otherwise RemoteAddr. Only
// enable trustProxy behind a reverse proxy that overwrites those headers.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip, ok := parseIP(first); ok {
				return ip
			}
		}
		if ip, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseIP normalises s, dropping any IPv6 zone.
func parseIP(s string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return addr.WithZone("").String(), true
}
