// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Store    StoreConfig    `mapstructure:"store"`
	Harvest  HarvestConfig  `mapstructure:"harvest"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Export   ExportConfig   `mapstructure:"export"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Server   ServerConfig   `mapstructure:"server"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// StoreConfig selects and configures the record store.
type StoreConfig struct {
	Driver           string `mapstructure:"driver"`
	DSN              string `mapstructure:"dsn"`
	Table            string `mapstructure:"table"`
	SQLitePath       string `mapstructure:"sqlite_path"`
	SeedFile         string `mapstructure:"seed_file"`
	MaxConns         int32  `mapstructure:"max_conns"`
	ConnectAttempts  int    `mapstructure:"connect_attempts"`
	ConnectBackoffMs int    `mapstructure:"connect_backoff_ms"`
	Migrate          bool   `mapstructure:"migrate"`
}

// HarvestConfig governs the dispatcher and the per-record harvest sequence.
type HarvestConfig struct {
	Concurrency        int `mapstructure:"concurrency"`
	MaxRecords         int `mapstructure:"max_records"`
	TargetEmails       int `mapstructure:"target_emails"`
	MaxPersistedEmails int `mapstructure:"max_persisted_emails"`
	ContactDelayMinMs  int `mapstructure:"contact_delay_min_ms"`
	ContactDelayMaxMs  int `mapstructure:"contact_delay_max_ms"`
}

// BreakerConfig tunes the per-domain circuit breaker.
type BreakerConfig struct {
	Threshold    int `mapstructure:"threshold"`
	ResetSeconds int `mapstructure:"reset_seconds"`
}

// HTTPConfig configures light fetches.
type HTTPConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int     `mapstructure:"max_body_bytes"`
	RPS            float64 `mapstructure:"rps"`
	Burst          int     `mapstructure:"burst"`
}

// HeadlessConfig configures the rendering subsystem.
type HeadlessConfig struct {
	Enabled                bool   `mapstructure:"enabled"`
	Headless               bool   `mapstructure:"headless"`
	ExecPath               string `mapstructure:"exec_path"`
	MaxParallel            int    `mapstructure:"max_parallel"`
	PageLoadTimeoutSeconds int    `mapstructure:"page_load_timeout_seconds"`
	ScriptTimeoutSeconds   int    `mapstructure:"script_timeout_seconds"`
	BodyWaitSeconds        int    `mapstructure:"body_wait_seconds"`
	MaxFrameDepth          int    `mapstructure:"max_frame_depth"`
}

// ExportConfig selects the export sink and format.
type ExportConfig struct {
	Sink      string `mapstructure:"sink"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	Format    string `mapstructure:"format"`
}

// PubSubConfig holds metadata for harvest event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the status API.
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// Load builds a Config from disk/environment. overrides, keyed like
// "harvest.concurrency", take precedence over every other source.
func Load(path string, overrides map[string]any) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		// Without an explicit file, look for config.{yaml,toml,json} in the
		// usual places; none is fine.
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.harvester")
		v.AddConfigPath("/etc/harvester/")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}
	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Default returns the configuration with every default applied.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.table", "businesses")
	v.SetDefault("store.sqlite_path", "data/harvester.db")
	v.SetDefault("store.seed_file", "")
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("store.connect_attempts", 3)
	v.SetDefault("store.connect_backoff_ms", 1000)
	v.SetDefault("store.migrate", false)
	v.SetDefault("harvest.concurrency", 5)
	v.SetDefault("harvest.max_records", 0)
	v.SetDefault("harvest.target_emails", 3)
	v.SetDefault("harvest.max_persisted_emails", 10)
	v.SetDefault("harvest.contact_delay_min_ms", 500)
	v.SetDefault("harvest.contact_delay_max_ms", 1000)
	v.SetDefault("breaker.threshold", 3)
	v.SetDefault("breaker.reset_seconds", 1800)
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.max_body_bytes", 5<<20)
	v.SetDefault("http.rps", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.headless", true)
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("headless.max_parallel", 0)
	v.SetDefault("headless.page_load_timeout_seconds", 30)
	v.SetDefault("headless.script_timeout_seconds", 15)
	v.SetDefault("headless.body_wait_seconds", 5)
	v.SetDefault("headless.max_frame_depth", 2)
	v.SetDefault("export.sink", "local")
	v.SetDefault("export.base_dir", "exports")
	v.SetDefault("export.gcs_bucket", "")
	v.SetDefault("export.prefix", "contacts")
	v.SetDefault("export.format", "csv")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("store.driver %q is not one of postgres, sqlite, memory", c.Store.Driver)
	}
	if c.Harvest.Concurrency <= 0 {
		return fmt.Errorf("harvest.concurrency must be > 0")
	}
	if c.Harvest.MaxRecords < 0 {
		return fmt.Errorf("harvest.max_records must be >= 0")
	}
	if c.Harvest.ContactDelayMinMs < 0 || c.Harvest.ContactDelayMinMs > c.Harvest.ContactDelayMaxMs {
		return fmt.Errorf("harvest.contact_delay_min_ms must be between 0 and harvest.contact_delay_max_ms")
	}
	if c.Breaker.Threshold <= 0 {
		return fmt.Errorf("breaker.threshold must be > 0")
	}
	if c.Breaker.ResetSeconds <= 0 {
		return fmt.Errorf("breaker.reset_seconds must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RPS < 0 {
		return fmt.Errorf("http.rps must be >= 0")
	}
	if c.Headless.Enabled {
		if c.Headless.PageLoadTimeoutSeconds <= 0 || c.Headless.ScriptTimeoutSeconds <= 0 || c.Headless.BodyWaitSeconds <= 0 {
			return fmt.Errorf("headless timeouts must be > 0 when headless is enabled")
		}
	}
	switch c.Export.Sink {
	case "local", "memory":
	case "gcs":
		if c.Export.GCSBucket == "" {
			return fmt.Errorf("export.gcs_bucket is required for the gcs sink")
		}
	default:
		return fmt.Errorf("export.sink %q is not one of local, gcs, memory", c.Export.Sink)
	}
	switch strings.ToLower(c.Export.Format) {
	case "csv", "xlsx":
	default:
		return fmt.Errorf("export.format %q is not one of csv, xlsx", c.Export.Format)
	}
	if c.PubSub.ProjectID != "" && c.PubSub.Topic == "" {
		return fmt.Errorf("pubsub.topic is required when pubsub.project_id is set")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// ContactDelays returns the randomized delay bounds between contact pages.
func (c Config) ContactDelays() (time.Duration, time.Duration) {
	return time.Duration(c.Harvest.ContactDelayMinMs) * time.Millisecond,
		time.Duration(c.Harvest.ContactDelayMaxMs) * time.Millisecond
}

// BreakerReset returns the breaker cool-down.
func (c Config) BreakerReset() time.Duration {
	return time.Duration(c.Breaker.ResetSeconds) * time.Second
}

// SessionLimit returns how many browser sessions may run at once.
// headless.max_parallel wins when set; otherwise every worker gets one.
func (c Config) SessionLimit() int {
	if c.Headless.MaxParallel > 0 {
		return c.Headless.MaxParallel
	}
	return c.Harvest.Concurrency
}

// ConnectBackoff returns the base store connect backoff.
func (c Config) ConnectBackoff() time.Duration {
	return time.Duration(c.Store.ConnectBackoffMs) * time.Millisecond
}

// Seconds converts a whole-second knob to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
