package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware provides Prometheus metrics for HTTP requests
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		ActiveConnections.Inc()
		defer ActiveConnections.Dec()

		next.ServeHTTP(wrapped, r)

		// Label by route template so /v1/consume/{kind} stays one series per route
		endpoint := "unknown"
		if route := mux.CurrentRoute(r); route != nil {
			if template, err := route.GetPathTemplate(); err == nil {
				endpoint = template
			}
		}

		RequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// RecordBlobStoreOperation records metrics for blob store operations
func RecordBlobStoreOperation(operation, status string, duration time.Duration) {
	BlobStoreOperationsTotal.WithLabelValues(operation, status).Inc()
	BlobStoreDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordExtProcStream records the result of an ext_proc stream
func RecordExtProcStream(result string) {
	ExtProcStreamsTotal.WithLabelValues(result).Inc()
}
