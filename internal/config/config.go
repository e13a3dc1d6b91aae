package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/guided-traffic/body-consumer/internal/body"
	"github.com/spf13/viper"
)

// TLSConfig holds TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`      // Enable/disable monitoring
	BindAddress string `mapstructure:"bind_address"` // Address to bind monitoring server (default: :9090)
	MetricsPath string `mapstructure:"metrics_path"` // Path for metrics endpoint (default: /metrics)
}

// ConsumptionConfig holds limits applied while receiving and decoding bodies
type ConsumptionConfig struct {
	// Maximum number of body bytes accepted from a transport (default: 10MB)
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`

	// Maximum array buffer the runtime allocates (0 = runtime default)
	MaxArrayBufferBytes int `mapstructure:"max_array_buffer_bytes"`

	// Kind used when a transport does not name one (default: text)
	DefaultKind string `mapstructure:"default_kind"`
}

// ExtProcConfig holds the Envoy external processor configuration
type ExtProcConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BindAddress   string `mapstructure:"bind_address"`    // gRPC listen address (default: :9001)
	KindHeader    string `mapstructure:"kind_header"`     // Request header selecting the body kind
	RejectOnError bool   `mapstructure:"reject_on_error"` // Answer rejected consumptions with an immediate 4xx
}

// AuthConfig holds bearer token authentication for the HTTP API
type AuthConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	HMACSecret string `mapstructure:"hmac_secret"` // HS256 signing secret
	Issuer     string `mapstructure:"issuer"`      // Optional required issuer
}

// BlobStoreConfig holds the S3 location where consumed blobs are persisted
type BlobStoreConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
	Endpoint     string `mapstructure:"endpoint"`
	Region       string `mapstructure:"region"`
	AccessKeyID  string `mapstructure:"access_key_id"`
	SecretKey    string `mapstructure:"secret_key"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	KeysetFile   string `mapstructure:"keyset_file"` // Optional Tink keyset (JSON) used to seal blobs at rest
}

// Config holds the application configuration
type Config struct {
	// Server configuration
	BindAddress       string    `mapstructure:"bind_address"`
	LogLevel          string    `mapstructure:"log_level"`
	LogFormat         string    `mapstructure:"log_format"` // "text" (default) or "json"
	LogHealthRequests bool      `mapstructure:"log_health_requests"`
	ShutdownTimeout   int       `mapstructure:"shutdown_timeout"` // Graceful shutdown timeout in seconds
	TLS               TLSConfig `mapstructure:"tls"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`

	// Body consumption configuration
	Consumption ConsumptionConfig `mapstructure:"consumption"`

	// Envoy external processor
	ExtProc ExtProcConfig `mapstructure:"extproc"`

	// HTTP API authentication
	Auth AuthConfig `mapstructure:"auth"`

	// Blob persistence
	BlobStore BlobStoreConfig `mapstructure:"blob_store"`
}

// InitConfig initializes the configuration system
func InitConfig(cfgFile string) {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		// Search config in home directory with name ".body-consumer" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".body-consumer")
	}

	// Environment variable configuration
	viper.SetEnvPrefix("BODYC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// Load loads the configuration from viper
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// DefaultKind returns the configured default body kind
func (c *Config) DefaultKind() body.Kind {
	kind, err := body.ParseKind(c.Consumption.DefaultKind)
	if err != nil {
		return body.KindText
	}
	return kind
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("bind_address", "0.0.0.0:8080")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("log_health_requests", false)
	viper.SetDefault("shutdown_timeout", 30)

	// TLS defaults
	viper.SetDefault("tls.enabled", false)
	viper.SetDefault("tls.cert_file", "")
	viper.SetDefault("tls.key_file", "")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", false)
	viper.SetDefault("monitoring.bind_address", ":9090")
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Consumption defaults
	viper.SetDefault("consumption.max_body_bytes", 10*1024*1024) // 10MB default
	viper.SetDefault("consumption.max_array_buffer_bytes", 0)    // runtime default
	viper.SetDefault("consumption.default_kind", "text")

	// Envoy external processor defaults
	viper.SetDefault("extproc.enabled", false)
	viper.SetDefault("extproc.bind_address", ":9001")
	viper.SetDefault("extproc.kind_header", "x-consume-body-as")
	viper.SetDefault("extproc.reject_on_error", false)

	// Auth defaults
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.hmac_secret", "")
	viper.SetDefault("auth.issuer", "")

	// Blob store defaults
	viper.SetDefault("blob_store.enabled", false)
	viper.SetDefault("blob_store.bucket", "")
	viper.SetDefault("blob_store.prefix", "blobs/")
	viper.SetDefault("blob_store.endpoint", "")
	viper.SetDefault("blob_store.region", "us-east-1")
	viper.SetDefault("blob_store.access_key_id", "")
	viper.SetDefault("blob_store.secret_key", "")
	viper.SetDefault("blob_store.use_path_style", true)
	viper.SetDefault("blob_store.keyset_file", "")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.BindAddress == "" {
		return fmt.Errorf("bind_address is required")
	}

	// Validate TLS configuration
	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			return fmt.Errorf("tls.cert_file is required when TLS is enabled")
		}
		if cfg.TLS.KeyFile == "" {
			return fmt.Errorf("tls.key_file is required when TLS is enabled")
		}

		// Check if certificate files exist
		if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS certificate file does not exist: %s", cfg.TLS.CertFile)
		}
		if _, err := os.Stat(cfg.TLS.KeyFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS key file does not exist: %s", cfg.TLS.KeyFile)
		}
	}

	if err := validateConsumption(cfg); err != nil {
		return err
	}

	if cfg.ExtProc.Enabled {
		if cfg.ExtProc.BindAddress == "" {
			return fmt.Errorf("extproc.bind_address is required when extproc is enabled")
		}
		if cfg.ExtProc.KindHeader == "" {
			return fmt.Errorf("extproc.kind_header is required when extproc is enabled")
		}
	}

	if cfg.Auth.Enabled && len(cfg.Auth.HMACSecret) < 32 {
		return fmt.Errorf("auth.hmac_secret must be at least 32 bytes when auth is enabled")
	}

	if err := validateBlobStore(cfg); err != nil {
		return err
	}

	return nil
}

// validateConsumption validates the consumption limits
func validateConsumption(cfg *Config) error {
	if cfg.Consumption.MaxBodyBytes < 0 {
		return fmt.Errorf("consumption.max_body_bytes must not be negative, got %d", cfg.Consumption.MaxBodyBytes)
	}
	if cfg.Consumption.MaxArrayBufferBytes < 0 {
		return fmt.Errorf("consumption.max_array_buffer_bytes must not be negative, got %d", cfg.Consumption.MaxArrayBufferBytes)
	}
	if cfg.Consumption.DefaultKind != "" {
		if _, err := body.ParseKind(cfg.Consumption.DefaultKind); err != nil {
			return fmt.Errorf("consumption.default_kind: %w", err)
		}
	}
	return nil
}

// validateBlobStore validates the blob store configuration
func validateBlobStore(cfg *Config) error {
	if !cfg.BlobStore.Enabled {
		return nil
	}
	if cfg.BlobStore.Bucket == "" {
		return fmt.Errorf("blob_store.bucket is required when the blob store is enabled")
	}
	if (cfg.BlobStore.AccessKeyID == "") != (cfg.BlobStore.SecretKey == "") {
		return fmt.Errorf("blob_store.access_key_id and blob_store.secret_key must be set together")
	}
	if cfg.BlobStore.KeysetFile != "" {
		if _, err := os.Stat(cfg.BlobStore.KeysetFile); os.IsNotExist(err) {
			return fmt.Errorf("blob_store.keyset_file does not exist: %s", cfg.BlobStore.KeysetFile)
		}
	}
	return nil
}
