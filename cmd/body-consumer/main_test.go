package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/guided-traffic/body-consumer/internal/body"
	"github.com/guided-traffic/body-consumer/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		LogLevel:  "error",
		LogFormat: "text",
		Consumption: config.ConsumptionConfig{
			MaxBodyBytes: 1024,
			DefaultKind:  "text",
		},
	}
}

func TestSetupLogging(t *testing.T) {
	defer logrus.SetFormatter(&logrus.TextFormatter{})
	defer logrus.SetLevel(logrus.InfoLevel)

	cfg := testConfig()
	cfg.LogLevel = "debug"
	cfg.LogFormat = "json"
	require.NoError(t, setupLogging(cfg))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	cfg.LogFormat = "xml"
	assert.Error(t, setupLogging(cfg))

	cfg.LogFormat = "text"
	cfg.LogLevel = "loud"
	assert.Error(t, setupLogging(cfg))
}

func TestConsumeSource_File(t *testing.T) {
	cfg := testConfig()
	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"n":7}`), 0600))

	data, err := consumeSource(context.Background(), cfg, newConsumer(cfg), path, body.KindJSON, nil)
	require.NoError(t, err)

	value := data.(body.JSONValue).Value.(*structpb.Value)
	assert.Equal(t, float64(7), value.GetStructValue().GetFields()["n"].GetNumberValue())
}

func TestConsumeSource_FormTypeFromFlag(t *testing.T) {
	cfg := testConfig()
	path := filepath.Join(t.TempDir(), "form.txt")
	require.NoError(t, os.WriteFile(path, []byte("a=1"), 0600))

	// .txt guesses text/plain, which forms reject
	_, err := consumeSource(context.Background(), cfg, newConsumer(cfg), path, body.KindFormData, nil)
	assert.ErrorIs(t, err, body.ErrInappropriateMIME)

	consumeContentType = "application/x-www-form-urlencoded"
	defer func() { consumeContentType = "" }()
	data, err := consumeSource(context.Background(), cfg, newConsumer(cfg), path, body.KindFormData, nil)
	require.NoError(t, err)
	value, _ := data.(*body.FormData).Get("a")
	assert.Equal(t, "1", value)
}

func TestConsumeSource_Stdin(t *testing.T) {
	cfg := testConfig()
	data, err := consumeSource(context.Background(), cfg, newConsumer(cfg), "-", body.KindText, strings.NewReader("from stdin"))
	require.NoError(t, err)
	assert.Equal(t, body.Text("from stdin"), data)
}

func TestConsumeSource_Errors(t *testing.T) {
	cfg := testConfig()

	_, err := consumeSource(context.Background(), cfg, newConsumer(cfg), filepath.Join(t.TempDir(), "missing"), body.KindText, nil)
	assert.Error(t, err)

	_, err = consumeSource(context.Background(), cfg, newConsumer(cfg), "-", body.KindText, bytes.NewReader(make([]byte, 2048)))
	assert.ErrorIs(t, err, body.ErrBodyTooLarge)

	_, err = consumeSource(context.Background(), cfg, newConsumer(cfg), "s3://bucket", body.KindText, nil)
	assert.Error(t, err)
}

func TestNewBlobStore_Disabled(t *testing.T) {
	store, err := newBlobStore(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Nil(t, store)
}
