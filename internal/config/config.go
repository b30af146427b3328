// Package config provides Viper-based configuration for readmark.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DriverHybrid = "hybrid"
	DriverSQLite = "sqlite"
)

// Config is the complete readmark configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Video     VideoConfig     `mapstructure:"video"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the persistence driver. Redis is also the job
// queue, so it is required for both drivers.
type StoreConfig struct {
	Driver         string        `mapstructure:"driver"`
	Redis          string        `mapstructure:"redis"`
	Badger         string        `mapstructure:"badger"`
	SQLite         string        `mapstructure:"sqlite"`
	GCInterval     time.Duration `mapstructure:"gc_interval"`
	GCDiscardRatio float64       `mapstructure:"gc_discard_ratio"`
}

type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	AllowPrivate bool          `mapstructure:"allow_private"`
}

type VideoConfig struct {
	OEmbedEndpoint string `mapstructure:"oembed_endpoint"`
	CacheSize      int    `mapstructure:"cache_size"`
}

type AuthConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
	Cookie string        `mapstructure:"cookie"`
}

// RateLimitConfig limits article saves per user.
type RateLimitConfig struct {
	SavesPerMinute float64 `mapstructure:"saves_per_minute"`
	Burst          int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type WorkerConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	PopTimeout time.Duration `mapstructure:"pop_timeout"`
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"redis":  "store.redis",
	"badger": "store.badger",
	"store":  "store.driver",
	"sqlite": "store.sqlite",
	"addr":   "server.addr",
}

// Load reads configuration from defaults, the optional file, READMARK_*
// environment variables and the given flags, in increasing precedence.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("readmark")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/readmark")
	}

	v.SetEnvPrefix("READMARK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("store.driver", DriverHybrid)
	v.SetDefault("store.redis", "localhost:6379")
	v.SetDefault("store.badger", "./badger-data")
	v.SetDefault("store.sqlite", "./readmark.db")
	v.SetDefault("store.gc_interval", 5*time.Minute)
	v.SetDefault("store.gc_discard_ratio", 0.7)

	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.user_agent", "readmark/1.0 (+https://github.com/readmark)")
	v.SetDefault("fetch.max_body_bytes", 8<<20)
	v.SetDefault("fetch.allow_private", false)

	v.SetDefault("video.oembed_endpoint", "https://www.youtube.com/oembed")
	v.SetDefault("video.cache_size", 256)

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "readmark")
	v.SetDefault("auth.ttl", 30*24*time.Hour)
	v.SetDefault("auth.cookie", "readmark_token")

	v.SetDefault("ratelimit.saves_per_minute", 30.0)
	v.SetDefault("ratelimit.burst", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("worker.enabled", true)
	v.SetDefault("worker.pop_timeout", 5*time.Second)
}

func validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case DriverHybrid, DriverSQLite:
	default:
		return fmt.Errorf("invalid store driver: %s (must be %s or %s)", cfg.Store.Driver, DriverHybrid, DriverSQLite)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", cfg.Log.Level)
	}

	if cfg.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	if cfg.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch.max_body_bytes must be positive")
	}
	if cfg.RateLimit.SavesPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit values must not be negative")
	}
	return nil
}
