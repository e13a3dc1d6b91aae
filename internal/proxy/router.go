package proxy

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/guided-traffic/body-consumer/internal/monitoring"
	"github.com/guided-traffic/body-consumer/internal/proxy/handlers/consume"
	"github.com/guided-traffic/body-consumer/internal/proxy/handlers/health"
)

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes(router *mux.Router) {
	if s.config.Monitoring.Enabled {
		router.Use(monitoring.HTTPMiddleware)
	}
	router.Use(s.httpLogger.Middleware)

	healthHandler := health.NewHandler(s.logger, s.config.LogHealthRequests, s.build)
	healthHandler.SetShutdownStateHandler(s.shutdownStateHandler)
	healthHandler.SetInFlightHandler(s.requestTracker.InFlight)

	// Health and version stay reachable without authentication
	router.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	router.HandleFunc("/version", healthHandler.Version).Methods(http.MethodGet)

	api := router.PathPrefix("/v1").Subrouter()
	api.Use(s.corsHandler.Middleware)
	if s.bearerAuth != nil {
		api.Use(s.bearerAuth.Middleware)
	}
	api.Use(s.requestTracker.Middleware)

	consumeHandler := consume.NewHandler(s.consumer, s.blobStore, s.config.Consumption.MaxBodyBytes, s.logger.WithField("handler", "consume"))
	api.HandleFunc("/consume/{kind}", consumeHandler.Handle).Methods(http.MethodPost, http.MethodPut, http.MethodOptions)
	api.HandleFunc("/blobs/{id}", consumeHandler.Fetch).Methods(http.MethodGet, http.MethodOptions)
}
