package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the caller identity used for login throttling:
// CF-Connecting-IP, else the first X-Forwarded-For entry, else "".
// RemoteAddr is deliberately not consulted.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	return ""
}

// IsLoopbackRequest reports whether the request both targets a loopback host
// and arrives from a loopback peer.
func IsLoopbackRequest(r *http.Request) bool {
	return isLoopbackHost(hostOnly(r.Host)) && isLoopbackHost(hostOnly(r.RemoteAddr))
}

// IsSecureRequest trusts X-Forwarded-Proto when present, otherwise the
// connection's TLS state.
func IsSecureRequest(r *http.Request) bool {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return strings.EqualFold(strings.TrimSpace(proto), "https")
	}
	return r.TLS != nil
}

// IsJSONRequest reports whether the Content-Type mentions application/json.
func IsJSONRequest(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json")
}

// RequireJSON rejects requests whose body is not declared as JSON.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsJSONRequest(r) {
			w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
			w.WriteHeader(http.StatusUnsupportedMediaType)
			_, _ = w.Write([]byte("Expected application/json"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func hostOnly(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return strings.Trim(hostport, "[]")
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
