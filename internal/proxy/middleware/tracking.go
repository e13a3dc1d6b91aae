package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// RequestTracker counts consume requests still being served so shutdown
// and the health endpoint can report them
type RequestTracker struct {
	logger   *logrus.Entry
	inFlight atomic.Int64
	draining func() bool
}

// NewRequestTracker creates a new request tracker middleware
func NewRequestTracker(logger *logrus.Entry) *RequestTracker {
	return &RequestTracker{logger: logger}
}

// SetDrainingHandler sets the check reporting whether the server is shutting down
func (rt *RequestTracker) SetDrainingHandler(draining func() bool) {
	rt.draining = draining
}

// InFlight returns the number of requests currently inside the middleware
func (rt *RequestTracker) InFlight() int64 {
	return rt.inFlight.Load()
}

// Middleware returns the HTTP middleware function
func (rt *RequestTracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt.inFlight.Add(1)
		defer func() {
			remaining := rt.inFlight.Add(-1)
			if rt.draining != nil && rt.draining() {
				rt.logger.WithFields(logrus.Fields{
					"path":      r.URL.Path,
					"remaining": remaining,
				}).Info("Request finished while draining")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
