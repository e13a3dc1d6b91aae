package proxy

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/body-consumer/internal/body"
	"github.com/guided-traffic/body-consumer/internal/config"
	"github.com/guided-traffic/body-consumer/internal/proxy/handlers/consume"
	"github.com/guided-traffic/body-consumer/internal/proxy/handlers/health"
	"github.com/guided-traffic/body-consumer/internal/proxy/middleware"
)

// Server is the HTTP front end of the body consumer
type Server struct {
	httpServer *http.Server
	consumer   *body.Consumer
	blobStore  consume.BlobStore
	config     *config.Config
	build      health.BuildInfo
	logger     *logrus.Entry

	requestTracker *middleware.RequestTracker
	httpLogger     *middleware.Logger
	corsHandler    *middleware.CORS
	bearerAuth     *middleware.BearerAuth

	shutdownMu   sync.RWMutex
	shuttingDown bool
	shutdownTime time.Time
}

// NewServer creates a new server instance. blobStore may be nil.
func NewServer(cfg *config.Config, consumer *body.Consumer, blobStore consume.BlobStore, build health.BuildInfo) *Server {
	server := &Server{
		consumer:  consumer,
		blobStore: blobStore,
		config:    cfg,
		build:     build,
		logger:    logrus.WithField("component", "http-server"),
	}
	server.setupMiddleware()

	router := mux.NewRouter()
	server.setupRoutes(router)

	server.httpServer = &http.Server{
		Addr:              cfg.BindAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return server
}

// Handler returns the server's root handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until ctx is done, then drains in-flight requests
func (s *Server) Start(ctx context.Context) error {
	serverErrChan := make(chan error, 1)
	go func() {
		var err error
		if s.config.TLS.Enabled {
			s.logger.WithFields(logrus.Fields{
				"address":   s.config.BindAddress,
				"cert_file": s.config.TLS.CertFile,
				"key_file":  s.config.TLS.KeyFile,
			}).Info("Starting HTTPS server")
			err = s.httpServer.ListenAndServeTLS(s.config.TLS.CertFile, s.config.TLS.KeyFile)
		} else {
			s.logger.WithField("address", s.config.BindAddress).Info("Starting HTTP server")
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErrChan:
		return err
	case <-ctx.Done():
	}

	s.beginShutdown()
	s.logger.WithField("in_flight", s.requestTracker.InFlight()).Info("Shutting down server")

	timeout := time.Duration(s.config.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("Failed to gracefully shutdown server")
		return err
	}

	s.logger.Info("Server stopped")
	return nil
}

func (s *Server) beginShutdown() {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	if !s.shuttingDown {
		s.shuttingDown = true
		s.shutdownTime = time.Now()
	}
}

func (s *Server) shutdownStateHandler() (bool, time.Time) {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.shuttingDown, s.shutdownTime
}

func (s *Server) draining() bool {
	shuttingDown, _ := s.shutdownStateHandler()
	return shuttingDown
}
