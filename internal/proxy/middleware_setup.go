package proxy

import (
	"github.com/guided-traffic/body-consumer/internal/proxy/middleware"
)

// setupMiddleware sets up the middleware for the server
func (s *Server) setupMiddleware() {
	s.requestTracker = middleware.NewRequestTracker(s.logger)
	s.requestTracker.SetDrainingHandler(s.draining)

	s.httpLogger = middleware.NewLogger(s.logger, s.config.LogHealthRequests)
	s.corsHandler = middleware.NewCORS(s.logger)

	if s.config.Auth.Enabled {
		s.bearerAuth = middleware.NewBearerAuth([]byte(s.config.Auth.HMACSecret), s.config.Auth.Issuer, s.logger.WithField("component", "auth"))
	}
}
