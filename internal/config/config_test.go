package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guided-traffic/body-consumer/internal/body"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	setDefaults()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "0.0.0.0:8080", cfg.BindAddress)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30, cfg.ShutdownTimeout)
	assert.Equal(t, int64(10*1024*1024), cfg.Consumption.MaxBodyBytes)
	assert.Equal(t, 0, cfg.Consumption.MaxArrayBufferBytes)
	assert.Equal(t, body.KindText, cfg.DefaultKind())
	assert.False(t, cfg.ExtProc.Enabled)
	assert.Equal(t, ":9001", cfg.ExtProc.BindAddress)
	assert.Equal(t, "x-consume-body-as", cfg.ExtProc.KindHeader)
	assert.False(t, cfg.Auth.Enabled)
	assert.False(t, cfg.BlobStore.Enabled)
	assert.Equal(t, "blobs/", cfg.BlobStore.Prefix)
	assert.True(t, cfg.BlobStore.UsePathStyle)
	assert.Equal(t, ":9090", cfg.Monitoring.BindAddress)
	assert.Equal(t, "/metrics", cfg.Monitoring.MetricsPath)
	assert.False(t, cfg.TLS.Enabled)
	assert.Empty(t, cfg.TLS.CertFile)
}

func TestLoad_CustomValues(t *testing.T) {
	viper.Reset()
	setDefaults()

	viper.Set("bind_address", "127.0.0.1:9999")
	viper.Set("log_level", "debug")
	viper.Set("log_format", "json")
	viper.Set("consumption.max_body_bytes", 1024)
	viper.Set("consumption.max_array_buffer_bytes", 512)
	viper.Set("consumption.default_kind", "arrayBuffer")
	viper.Set("extproc.enabled", true)
	viper.Set("extproc.kind_header", "x-as")
	viper.Set("extproc.reject_on_error", true)
	viper.Set("auth.enabled", true)
	viper.Set("auth.hmac_secret", strings.Repeat("s", 32))
	viper.Set("auth.issuer", "gateway")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.BindAddress)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, int64(1024), cfg.Consumption.MaxBodyBytes)
	assert.Equal(t, 512, cfg.Consumption.MaxArrayBufferBytes)
	assert.Equal(t, body.KindArrayBuffer, cfg.DefaultKind())
	assert.True(t, cfg.ExtProc.Enabled)
	assert.Equal(t, "x-as", cfg.ExtProc.KindHeader)
	assert.True(t, cfg.ExtProc.RejectOnError)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "gateway", cfg.Auth.Issuer)
}

func TestLoad_ValidationErrors(t *testing.T) {
	keysetDir := t.TempDir()
	existingKeyset := filepath.Join(keysetDir, "keyset.json")
	require.NoError(t, os.WriteFile(existingKeyset, []byte("{}"), 0600))

	tests := []struct {
		name   string
		values map[string]interface{}
		errMsg string
	}{
		{
			name:   "Empty bind address",
			values: map[string]interface{}{"bind_address": ""},
			errMsg: "bind_address is required",
		},
		{
			name:   "Negative body limit",
			values: map[string]interface{}{"consumption.max_body_bytes": -1},
			errMsg: "consumption.max_body_bytes must not be negative",
		},
		{
			name:   "Negative array buffer limit",
			values: map[string]interface{}{"consumption.max_array_buffer_bytes": -5},
			errMsg: "consumption.max_array_buffer_bytes must not be negative",
		},
		{
			name:   "Unknown default kind",
			values: map[string]interface{}{"consumption.default_kind": "stream"},
			errMsg: "consumption.default_kind",
		},
		{
			name:   "Extproc without kind header",
			values: map[string]interface{}{"extproc.enabled": true, "extproc.kind_header": ""},
			errMsg: "extproc.kind_header is required",
		},
		{
			name:   "Short HMAC secret",
			values: map[string]interface{}{"auth.enabled": true, "auth.hmac_secret": "short"},
			errMsg: "auth.hmac_secret must be at least 32 bytes",
		},
		{
			name:   "Blob store without bucket",
			values: map[string]interface{}{"blob_store.enabled": true},
			errMsg: "blob_store.bucket is required",
		},
		{
			name: "Blob store with half credentials",
			values: map[string]interface{}{
				"blob_store.enabled":       true,
				"blob_store.bucket":        "blobs",
				"blob_store.access_key_id": "AKIA",
			},
			errMsg: "must be set together",
		},
		{
			name: "Blob store with missing keyset",
			values: map[string]interface{}{
				"blob_store.enabled":     true,
				"blob_store.bucket":      "blobs",
				"blob_store.keyset_file": filepath.Join(keysetDir, "missing.json"),
			},
			errMsg: "blob_store.keyset_file does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			setDefaults()
			for key, value := range tt.values {
				viper.Set(key, value)
			}

			cfg, err := Load()
			assert.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("Blob store with existing keyset", func(t *testing.T) {
		viper.Reset()
		setDefaults()
		viper.Set("blob_store.enabled", true)
		viper.Set("blob_store.bucket", "blobs")
		viper.Set("blob_store.keyset_file", existingKeyset)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, existingKeyset, cfg.BlobStore.KeysetFile)
	})
}

func TestInitConfig_WithConfigFile(t *testing.T) {
	viper.Reset()

	path := filepath.Join(t.TempDir(), "body-consumer.yaml")
	content := `
bind_address: "127.0.0.1:8181"
log_level: warn
consumption:
  default_kind: json
blob_store:
  enabled: true
  bucket: consumed
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	InitConfig(path)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8181", cfg.BindAddress)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, body.KindJSON, cfg.DefaultKind())
	assert.Equal(t, "consumed", cfg.BlobStore.Bucket)
	assert.Equal(t, "blobs/", cfg.BlobStore.Prefix)
}

func TestInitConfig_Environment(t *testing.T) {
	viper.Reset()
	t.Setenv("BODYC_BIND_ADDRESS", "127.0.0.1:7070")
	t.Setenv("BODYC_CONSUMPTION_DEFAULT_KIND", "blob")
	t.Setenv("BODYC_BLOB_STORE_ENABLED", "true")
	t.Setenv("BODYC_BLOB_STORE_BUCKET", "from-env")

	InitConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7070", cfg.BindAddress)
	assert.Equal(t, body.KindBlob, cfg.DefaultKind())
	assert.True(t, cfg.BlobStore.Enabled)
	assert.Equal(t, "from-env", cfg.BlobStore.Bucket)
}

func TestLoad_TLS(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, []byte("cert"), 0600))
	require.NoError(t, os.WriteFile(keyFile, []byte("key"), 0600))

	tests := []struct {
		name   string
		cert   string
		key    string
		errMsg string
	}{
		{name: "Valid files", cert: certFile, key: keyFile},
		{name: "Missing cert_file", key: keyFile, errMsg: "tls.cert_file is required"},
		{name: "Missing key_file", cert: certFile, errMsg: "tls.key_file is required"},
		{name: "Absent certificate", cert: filepath.Join(dir, "none.pem"), key: keyFile, errMsg: "TLS certificate file does not exist"},
		{name: "Absent key", cert: certFile, key: filepath.Join(dir, "none.key"), errMsg: "TLS key file does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			setDefaults()
			viper.Set("tls.enabled", true)
			viper.Set("tls.cert_file", tt.cert)
			viper.Set("tls.key_file", tt.key)

			cfg, err := Load()
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.True(t, cfg.TLS.Enabled)
			assert.Equal(t, certFile, cfg.TLS.CertFile)
			assert.Equal(t, keyFile, cfg.TLS.KeyFile)
		})
	}
}
