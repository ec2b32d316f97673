package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/convergelabs/beliefd/internal/metrics"
)

// Metrics returns middleware that records request counts and latencies in
// the Prometheus registry.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			m.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rw.statusCode)).Inc()
			m.RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		})
	}
}
