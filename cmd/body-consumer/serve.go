package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/guided-traffic/body-consumer/internal/config"
	"github.com/guided-traffic/body-consumer/internal/extproc"
	"github.com/guided-traffic/body-consumer/internal/monitoring"
	"github.com/guided-traffic/body-consumer/internal/proxy"
	"github.com/guided-traffic/body-consumer/internal/proxy/handlers/consume"
	"github.com/guided-traffic/body-consumer/internal/proxy/handlers/health"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and, when enabled, the Envoy external processor",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := setupLogging(cfg); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"version":   version,
		"commit":    commit,
		"buildTime": buildTime,
	}).Info("Body consumer build information")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := newConsumer(cfg)

	blobStore, err := newBlobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create blob store: %w", err)
	}
	// A typed nil must not reach the handler as a non-nil interface
	var store consume.BlobStore
	if blobStore != nil {
		store = blobStore
	}

	build := health.BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
	server := proxy.NewServer(cfg, consumer, store, build)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })

	if cfg.Monitoring.Enabled {
		monitoring.SetServerInfo(version, commit, buildTime)
		monitoringServer := monitoring.NewServer(&monitoring.Config{
			BindAddress: cfg.Monitoring.BindAddress,
			MetricsPath: cfg.Monitoring.MetricsPath,
		})
		g.Go(func() error { return monitoringServer.Start(gctx) })
	}

	if cfg.ExtProc.Enabled {
		processor := extproc.NewServer(consumer, extproc.Config{
			BindAddress:   cfg.ExtProc.BindAddress,
			KindHeader:    cfg.ExtProc.KindHeader,
			MaxBodyBytes:  cfg.Consumption.MaxBodyBytes,
			RejectOnError: cfg.ExtProc.RejectOnError,
		})
		g.Go(func() error { return processor.Start(gctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logrus.Info("Body consumer stopped")
	return nil
}
