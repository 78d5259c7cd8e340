package httpx

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the caller address for r. With trustForwarded set, the
// left-most X-Forwarded-For entry (or X-Real-IP) wins over RemoteAddr, which
// is what a TLS-terminating front proxy appends.
func ClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
