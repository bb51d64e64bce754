// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Poll    PollConfig    `mapstructure:"poll"`
	Favicon FaviconConfig `mapstructure:"favicon"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// PollConfig governs scheduler and poll pipeline behavior.
type PollConfig struct {
	Concurrency     int     `mapstructure:"concurrency"`
	IntervalSeconds int     `mapstructure:"interval_seconds"`
	UserAgent       string  `mapstructure:"user_agent"`
	UseValidators   bool    `mapstructure:"use_validators"`
	PerHostRPS      float64 `mapstructure:"per_host_rps"`
	PerHostBurst    int     `mapstructure:"per_host_burst"`
	MaxBodyBytes    int64   `mapstructure:"max_body_bytes"`
}

// FaviconConfig controls the favicon resolver.
type FaviconConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	BlobPrefix string `mapstructure:"blob_prefix"`
}

// StorageConfig selects and configures blob persistence.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FEEDHQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("poll.concurrency", 4)
	v.SetDefault("poll.interval_seconds", 300)
	v.SetDefault("poll.use_validators", true)
	v.SetDefault("poll.per_host_rps", 1.0)
	v.SetDefault("poll.per_host_burst", 2)
	v.SetDefault("poll.max_body_bytes", 10<<20)
	v.SetDefault("favicon.enabled", true)
	v.SetDefault("favicon.blob_prefix", "favicons")
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Poll.Concurrency <= 0 {
		return fmt.Errorf("poll.concurrency must be > 0")
	}
	if c.Poll.IntervalSeconds <= 0 {
		return fmt.Errorf("poll.interval_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.DB.Provider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is postgres")
		}
	default:
		return fmt.Errorf("db.provider must be memory or postgres")
	}
	switch c.Storage.Provider {
	case "memory":
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set when storage.provider is local")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
		}
	default:
		return fmt.Errorf("storage.provider must be memory, local, or gcs")
	}
	if c.PubSub.Enabled {
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
		}
	}
	return nil
}

// PollInterval returns the scheduler cycle interval.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalSeconds) * time.Second
}
