package metrics

import (
	"net/http"
	"time"
)

// HTTPMetricsMiddleware records request duration and count for every route.
// The route pattern registered on the mux is used as the handler label so
// that path parameters don't explode label cardinality.
func HTTPMetricsMiddleware(m *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap ResponseWriter to capture status code
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     200,
		}

		next.ServeHTTP(wrapped, r)

		if m != nil {
			handler := r.Pattern
			if handler == "" {
				handler = "unmatched"
			}
			m.RecordHTTPRequest(handler, r.Method, wrapped.statusCode, time.Since(start).Seconds())
		}
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code and calls the underlying WriteHeader.
func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
