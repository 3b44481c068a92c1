// Package config loads the relay's TOML configuration.
//
// Precedence is defaults, then the config file, then RELAY_* environment
// variables. Secrets may also be left empty here and resolved from SSM
// Parameter Store by the caller (see the *_param keys).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/fpang/channel-video-relay/internal/cursor"
)

// Config is the full relay configuration.
type Config struct {
	Source   SourceConfig   `toml:"source"`
	Storage  StorageConfig  `toml:"storage"`
	Webhook  WebhookConfig  `toml:"webhook"`
	Cursor   CursorConfig   `toml:"cursor"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Logging  LoggingConfig  `toml:"logging"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// SourceConfig points at the message gateway.
type SourceConfig struct {
	BaseURL    string        `toml:"base_url"`
	Token      string        `toml:"token"`
	TokenParam string        `toml:"token_param"`
	Channel    string        `toml:"channel"`
	PageSize   int           `toml:"page_size"`
	PageDelay  time.Duration `toml:"page_delay"`
}

// StorageConfig describes the S3-compatible bucket. Endpoint and the static
// keys are only needed for non-AWS providers.
type StorageConfig struct {
	Bucket        string `toml:"bucket"`
	Region        string `toml:"region"`
	Endpoint      string `toml:"endpoint"`
	PublicURLBase string `toml:"public_url_base"`
	PathStyle     bool   `toml:"path_style"`
	AccessKey     string `toml:"access_key"`
	SecretKey     string `toml:"secret_key"`
	TempDir       string `toml:"temp_dir"`
}

// WebhookConfig configures delivery notifications.
type WebhookConfig struct {
	URL               string        `toml:"url"`
	URLParam          string        `toml:"url_param"`
	ChannelLabel      string        `toml:"channel_label"`
	Timeout           time.Duration `toml:"timeout"`
	MaxAttempts       int           `toml:"max_attempts"`
	BaseDelay         time.Duration `toml:"base_delay"`
	RetryClientErrors bool          `toml:"retry_client_errors"`
}

// CursorConfig selects the cursor backend.
type CursorConfig struct {
	Backend   string `toml:"backend"`
	Path      string `toml:"path"`
	Table     string `toml:"table"`
	RedisAddr string `toml:"redis_addr"`
}

// PipelineConfig holds run behavior.
type PipelineConfig struct {
	OnFailure string `toml:"on_failure"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `toml:"level"`
	Console bool   `toml:"console"`
}

// MetricsConfig holds EMF settings.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
}

// Cursor backends.
const (
	BackendFile   = "file"
	BackendDynamo = "dynamodb"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// DefaultCursorPath is where the file backend keeps its state.
const DefaultCursorPath = "./downloads/" + cursor.DefaultFileName

// DefaultConfig returns a Config with the production defaults.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			PageSize:  100,
			PageDelay: 1500 * time.Millisecond,
		},
		Storage: StorageConfig{
			Region: "us-east-1",
		},
		Webhook: WebhookConfig{
			Timeout:           30 * time.Second,
			MaxAttempts:       3,
			BaseDelay:         2 * time.Second,
			RetryClientErrors: true,
		},
		Cursor: CursorConfig{
			Backend: BackendFile,
			Path:    DefaultCursorPath,
		},
		Pipeline: PipelineConfig{
			OnFailure: "skip",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "ChannelVideoRelay",
		},
	}
}

// LoadFromFile decodes path over the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key %q in %s", undecoded[0].String(), path)
	}
	return cfg, nil
}

// LoadConfig returns the defaults when path is empty, otherwise the file
// decoded over them. Environment overrides are applied in both cases.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from RELAY_* variables. getenv is os.Getenv
// outside tests.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := map[string]*string{
		"RELAY_SOURCE_URL":         &c.Source.BaseURL,
		"RELAY_SOURCE_TOKEN":       &c.Source.Token,
		"RELAY_CHANNEL":            &c.Source.Channel,
		"RELAY_BUCKET":             &c.Storage.Bucket,
		"RELAY_STORAGE_ENDPOINT":   &c.Storage.Endpoint,
		"RELAY_STORAGE_ACCESS_KEY": &c.Storage.AccessKey,
		"RELAY_STORAGE_SECRET_KEY": &c.Storage.SecretKey,
		"RELAY_PUBLIC_URL_BASE":    &c.Storage.PublicURLBase,
		"RELAY_WEBHOOK_URL":        &c.Webhook.URL,
		"RELAY_CURSOR_BACKEND":     &c.Cursor.Backend,
		"RELAY_CURSOR_PATH":        &c.Cursor.Path,
		"RELAY_CURSOR_TABLE":       &c.Cursor.Table,
		"RELAY_REDIS_ADDR":         &c.Cursor.RedisAddr,
		"RELAY_LOG_LEVEL":          &c.Logging.Level,
	}
	for name, dst := range str {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	if v := getenv("RELAY_METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RELAY_METRICS_ENABLED: %w", err)
		}
		c.Metrics.Enabled = b
	}
	return nil
}

// ChannelLabel is the channel value sent to the webhook.
func (c *Config) ChannelLabel() string {
	if c.Webhook.ChannelLabel != "" {
		return c.Webhook.ChannelLabel
	}
	return "t.me/" + c.Source.Channel
}

// Validate checks the configuration needed for a full run. Secrets must be
// resolved before calling it.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Source.BaseURL != "", "source base_url must be specified")
	if c.Source.BaseURL != "" {
		u, err := url.Parse(c.Source.BaseURL)
		check(err == nil && u.Scheme != "" && u.Host != "", "source base_url is not an absolute URL: %s", c.Source.BaseURL)
	}
	check(c.Source.Channel != "", "source channel must be specified")
	check(c.Source.PageSize > 0, "source page_size must be positive")
	check(c.Source.PageDelay >= 0, "source page_delay must not be negative")

	check(c.Storage.Bucket != "", "storage bucket must be specified")
	check((c.Storage.AccessKey == "") == (c.Storage.SecretKey == ""), "storage access_key and secret_key must be set together")

	check(c.Webhook.URL != "", "webhook url must be specified")
	check(c.Webhook.MaxAttempts > 0, "webhook max_attempts must be positive")
	check(c.Webhook.Timeout > 0, "webhook timeout must be positive")
	check(c.Webhook.BaseDelay >= 0, "webhook base_delay must not be negative")

	switch c.Cursor.Backend {
	case BackendFile:
		check(c.Cursor.Path != "", "cursor path must be specified for the file backend")
	case BackendDynamo:
		check(c.Cursor.Table != "", "cursor table must be specified for the dynamodb backend")
	case BackendRedis:
		check(c.Cursor.RedisAddr != "", "cursor redis_addr must be specified for the redis backend")
	case BackendMemory:
	default:
		check(false, "unsupported cursor backend: %s (must be file, dynamodb, redis, or memory)", c.Cursor.Backend)
	}

	check(c.Pipeline.OnFailure == "skip" || c.Pipeline.OnFailure == "hold",
		"invalid pipeline on_failure: %s (must be skip or hold)", c.Pipeline.OnFailure)

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	check(validLevels[c.Logging.Level], "invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)

	return errors.Join(errs...)
}
