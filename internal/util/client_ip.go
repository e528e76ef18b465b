package util

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller IP from forwarded headers or the peer address.
// Used only as a rate-limit key, so forwarded headers are taken at face value.
func ClientIP(r *http.Request) string {
	if xfwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xfwd != "" {
		if ip := strings.TrimSpace(strings.SplitN(xfwd, ",", 2)[0]); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
