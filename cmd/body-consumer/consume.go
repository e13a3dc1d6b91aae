package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/guided-traffic/body-consumer/internal/body"
	"github.com/guided-traffic/body-consumer/internal/config"
	"github.com/guided-traffic/body-consumer/internal/proxy/handlers/consume"
	"github.com/guided-traffic/body-consumer/internal/storage"
)

var (
	consumeKind        string
	consumeContentType string
	consumeTimeout     time.Duration
)

var consumeCmd = &cobra.Command{
	Use:   "consume <file|s3://bucket/key|->",
	Short: "Consume a file, S3 object or stdin once and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runConsume,
}

func init() {
	consumeCmd.Flags().StringVar(&consumeKind, "as", "", "body kind: text, json, blob, formData or arrayBuffer (default: consumption.default_kind)")
	consumeCmd.Flags().StringVar(&consumeContentType, "content-type", "", "content type of a local body (default: guessed from the file extension)")
	consumeCmd.Flags().DurationVar(&consumeTimeout, "timeout", 30*time.Second, "maximum time to wait for the result")
}

func runConsume(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := setupLogging(cfg); err != nil {
		return err
	}

	kind := cfg.DefaultKind()
	if consumeKind != "" {
		if kind, err = body.ParseKind(consumeKind); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), consumeTimeout)
	defer cancel()

	consumer := newConsumer(cfg)
	data, err := consumeSource(ctx, cfg, consumer, args[0], kind, cmd.InOrStdin())
	if err != nil {
		return err
	}

	var stored *storage.StoredBlob
	if blob, ok := data.(*body.Blob); ok {
		blobStore, err := newBlobStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to create blob store: %w", err)
		}
		if blobStore != nil {
			if stored, err = blobStore.Put(ctx, blob); err != nil {
				return err
			}
		}
	}

	result, err := consume.Render(data, stored)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// consumeSource reads ref into a body and consumes it as kind
func consumeSource(ctx context.Context, cfg *config.Config, consumer *body.Consumer, ref string, kind body.Kind, stdin io.Reader) (body.Data, error) {
	if strings.HasPrefix(ref, "s3://") {
		bucket, key, err := storage.ParseObjectURL(ref)
		if err != nil {
			return nil, err
		}
		api, err := newS3API(ctx, cfg)
		if err != nil {
			return nil, err
		}
		obj, err := storage.NewObjectSource(api, consumer, cfg.Consumption.MaxBodyBytes, logrus.StandardLogger()).Load(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
		return obj.Consume(ctx, kind)
	}

	var (
		src         io.Reader
		contentType = consumeContentType
	)
	if ref == "-" {
		src = stdin
	} else {
		f, err := os.Open(ref) // #nosec G304 - path is the command argument
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", ref, err)
		}
		defer func() { _ = f.Close() }()
		src = f
		if contentType == "" {
			contentType = mime.TypeByExtension(filepath.Ext(ref))
		}
	}

	b := body.NewBody(consumer, contentType)
	b.SetLimit(cfg.Consumption.MaxBodyBytes)
	sink := b.Consume(kind)
	if _, err := io.Copy(b, src); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	if err := b.Finish(); err != nil {
		return nil, err
	}
	return sink.Wait(ctx)
}
