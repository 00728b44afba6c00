package middleware

import (
	"net/http"
	"sync/atomic"
)

// MetricsCollector counts requests, client errors and server errors.
type MetricsCollector struct {
	requestCount *atomic.Int64
	errorCount   *atomic.Int64
	serverErrors *atomic.Int64
}

// NewMetricsCollector creates a collector that adds to the given counters.
func NewMetricsCollector(requestCount, errorCount, serverErrors *atomic.Int64) *MetricsCollector {
	return &MetricsCollector{
		requestCount: requestCount,
		errorCount:   errorCount,
		serverErrors: serverErrors,
	}
}

// Middleware returns middleware that counts requests and errors.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.requestCount.Add(1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		if rw.statusCode >= 400 {
			mc.errorCount.Add(1)
		}
		if rw.statusCode >= 500 {
			mc.serverErrors.Add(1)
		}
	})
}
