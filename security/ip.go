package security

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the client IP address used to key the login throttle.
// X-Forwarded-For and X-Real-IP are honoured only when trustProxy is set;
// otherwise a spoofed header would let a client rotate identities at will.
// With trustProxy, the leftmost valid X-Forwarded-For entry is taken as the
// originating client.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := firstForwardedIP(r.Header.Get("X-Forwarded-For")); ip != "" {
			return ip
		}
		if ip := r.Header.Get("X-Real-IP"); net.ParseIP(ip) != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// firstForwardedIP returns the leftmost valid IP in an X-Forwarded-For list,
// or "" when the header is absent or carries no parseable address.
func firstForwardedIP(xff string) string {
	if xff == "" {
		return ""
	}
	for _, part := range strings.Split(xff, ",") {
		ip := strings.TrimSpace(part)
		if net.ParseIP(ip) != nil {
			return ip
		}
	}
	return ""
}
