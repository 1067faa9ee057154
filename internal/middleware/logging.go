package middleware

import (
	"net/http"

	"navdir/internal/observability"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// LogContext copies the chi request ID into the logging context so that
// observability.FromContext tags every line written while serving r.
func LogContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := chimiddleware.GetReqID(ctx); id != "" {
			ctx = observability.WithRequestID(ctx, id)
		}
		if ip := ClientIP(r); ip != "" {
			ctx = observability.WithClientIP(ctx, ip)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
