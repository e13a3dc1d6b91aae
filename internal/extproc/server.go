// Package extproc exposes body consumption as an Envoy external processor.
// A request opts in with the kind header; its buffered body is consumed and
// the outcome is returned to Envoy as a header and dynamic metadata.
package extproc

import (
	"context"
	"fmt"
	"net"
	"time"

	ext_proc_v3 "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/guided-traffic/body-consumer/internal/body"
)

// Header names and metadata namespace written by the processor
const (
	ResultHeader      = "x-consume-body-result"
	MetadataNamespace = "body-consumer"
)

// Config holds external processor settings
type Config struct {
	BindAddress   string
	KindHeader    string
	MaxBodyBytes  int64
	RejectOnError bool
}

// Server implements the ext_proc ExternalProcessor service
type Server struct {
	ext_proc_v3.UnimplementedExternalProcessorServer

	consumer *body.Consumer
	config   Config
	logger   *logrus.Entry
}

var _ ext_proc_v3.ExternalProcessorServer = &Server{}

// NewServer creates an external processor
func NewServer(consumer *body.Consumer, cfg Config) *Server {
	return &Server{
		consumer: consumer,
		config:   cfg,
		logger:   logrus.WithField("component", "extproc"),
	}
}

// GRPCServer returns a gRPC server with the processor registered
func (s *Server) GRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	gs := grpc.NewServer(opts...)
	ext_proc_v3.RegisterExternalProcessorServer(gs, s)
	return gs
}

// Start serves gRPC until ctx is done
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.config.BindAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.BindAddress, err)
	}

	gs := s.GRPCServer()
	serverErrChan := make(chan error, 1)
	go func() {
		s.logger.WithField("address", lis.Addr().String()).Info("Starting ext_proc server")
		if err := gs.Serve(lis); err != nil {
			serverErrChan <- fmt.Errorf("ext_proc server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErrChan:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down ext_proc server")
	stopped := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		gs.Stop()
	}

	s.logger.Info("Ext_proc server stopped")
	return nil
}
