package main

import (
	"context"
	"fmt"

	"github.com/google/tink/go/tink"
	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/body-consumer/internal/body"
	"github.com/guided-traffic/body-consumer/internal/config"
	"github.com/guided-traffic/body-consumer/internal/engine"
	"github.com/guided-traffic/body-consumer/internal/monitoring"
	"github.com/guided-traffic/body-consumer/internal/storage"
)

// setupLogging applies the configured log level and format to the standard logger
func setupLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)

	switch cfg.LogFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", cfg.LogFormat)
	}
	return nil
}

// newConsumer builds the runtime-backed consumer
func newConsumer(cfg *config.Config) *body.Consumer {
	rt := engine.New(&engine.Config{MaxArrayBufferLength: cfg.Consumption.MaxArrayBufferBytes})
	consumer := body.NewConsumer(body.NewDecoders(rt), logrus.WithField("component", "body-consumer"))
	if cfg.Monitoring.Enabled {
		consumer.SetRecorder(monitoring.NewRecorder())
	}
	return consumer
}

// newS3API creates the S3 client shared by the object source and blob store
func newS3API(ctx context.Context, cfg *config.Config) (storage.API, error) {
	return storage.NewClient(ctx, &storage.Config{
		Endpoint:       cfg.BlobStore.Endpoint,
		Region:         cfg.BlobStore.Region,
		AccessKeyID:    cfg.BlobStore.AccessKeyID,
		SecretKey:      cfg.BlobStore.SecretKey,
		ForcePathStyle: cfg.BlobStore.UsePathStyle,
	})
}

// newBlobStore returns nil when blob persistence is disabled
func newBlobStore(ctx context.Context, cfg *config.Config) (*storage.BlobStore, error) {
	if !cfg.BlobStore.Enabled {
		return nil, nil
	}

	api, err := newS3API(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var primitive tink.AEAD
	if cfg.BlobStore.KeysetFile != "" {
		primitive, err = storage.LoadKeyset(cfg.BlobStore.KeysetFile)
		if err != nil {
			return nil, err
		}
	} else {
		logrus.Warn("Blob store has no keyset; blobs are stored unsealed")
	}

	return storage.NewBlobStore(api, &storage.BlobStoreConfig{
		Bucket: cfg.BlobStore.Bucket,
		Prefix: cfg.BlobStore.Prefix,
	}, primitive, logrus.StandardLogger()), nil
}
