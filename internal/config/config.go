// Package config loads base station configuration from YAML files and
// environment variables. A missing config file is not an error: every setting
// has a working default so a bare `meshbase run` against a local Redis works
// out of the box.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// RedisConfig holds connection settings for the Redis backing store.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// RetentionConfig controls how long stored records are kept.
type RetentionConfig struct {
	Days int `mapstructure:"days"`
}

// QueueConfig controls the ingestion queue.
type QueueConfig struct {
	// Size bounds the number of packets held between receipt and
	// persistence. 0 means unbounded.
	Size int `mapstructure:"size"`
}

// LogConfig controls log output.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error. The trace level
	// includes a full dump of every received packet.
	Level string `mapstructure:"level"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Config is the top-level base station configuration.
type Config struct {
	// Instance namespaces all Redis keys so multiple base stations can
	// share one Redis.
	Instance     string          `mapstructure:"instance"`
	Redis        RedisConfig     `mapstructure:"redis"`
	Retention    RetentionConfig `mapstructure:"retention"`
	Queue        QueueConfig     `mapstructure:"queue"`
	DrainTimeout time.Duration   `mapstructure:"drain_timeout"`
	Heartbeat    time.Duration   `mapstructure:"heartbeat"`
	Log          LogConfig       `mapstructure:"log"`
	Metrics      MetricsConfig   `mapstructure:"metrics"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Instance: "default",
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Retention:    RetentionConfig{Days: 30},
		Queue:        QueueConfig{Size: 10000},
		DrainTimeout: 30 * time.Second,
		Heartbeat:    30 * time.Second,
		Log:          LogConfig{Level: "info"},
		Metrics:      MetricsConfig{Enabled: false, Addr: ":9105"},
	}
}

// searchPaths returns the config file locations checked in order.
func searchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "meshbase"))
	}
	return append(paths, "/etc/meshbase")
}

// Load reads configuration from path, or searches the standard locations when
// path is empty. Environment variables prefixed MESHBASE_ override file
// values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		for _, p := range searchPaths() {
			v.AddConfigPath(p)
		}
	}

	v.BindEnv("instance", "MESHBASE_INSTANCE")
	v.BindEnv("redis.host", "MESHBASE_REDIS_HOST")
	v.BindEnv("redis.port", "MESHBASE_REDIS_PORT")
	v.BindEnv("redis.db", "MESHBASE_REDIS_DB")
	v.BindEnv("redis.password", "MESHBASE_REDIS_PASSWORD")
	v.BindEnv("retention.days", "MESHBASE_RETENTION_DAYS")
	v.BindEnv("queue.size", "MESHBASE_QUEUE_SIZE")
	v.BindEnv("drain_timeout", "MESHBASE_DRAIN_TIMEOUT")
	v.BindEnv("heartbeat", "MESHBASE_HEARTBEAT")
	v.BindEnv("log.level", "MESHBASE_LOG_LEVEL")
	v.BindEnv("metrics.enabled", "MESHBASE_METRICS_ENABLED")
	v.BindEnv("metrics.addr", "MESHBASE_METRICS_ADDR")

	def := Default()
	v.SetDefault("instance", def.Instance)
	v.SetDefault("redis.host", def.Redis.Host)
	v.SetDefault("redis.port", def.Redis.Port)
	v.SetDefault("redis.db", def.Redis.DB)
	v.SetDefault("retention.days", def.Retention.Days)
	v.SetDefault("queue.size", def.Queue.Size)
	v.SetDefault("drain_timeout", def.DrainTimeout)
	v.SetDefault("heartbeat", def.Heartbeat)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("metrics.addr", def.Metrics.Addr)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// No config file anywhere: run on defaults.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate performs strict validation on the configuration.
func (c *Config) Validate() error {
	if c.Instance == "" {
		return fmt.Errorf("instance name cannot be empty")
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("redis.host cannot be empty")
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		return fmt.Errorf("redis.port must be between 1 and 65535, got %d", c.Redis.Port)
	}
	if c.Retention.Days <= 0 {
		return fmt.Errorf("retention.days must be positive, got %d", c.Retention.Days)
	}
	if c.Queue.Size < 0 {
		return fmt.Errorf("queue.size cannot be negative, got %d", c.Queue.Size)
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("drain_timeout cannot be negative, got %s", c.DrainTimeout)
	}
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of trace, debug, info, warn, error, got %q", c.Log.Level)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr cannot be empty when metrics are enabled")
	}
	return nil
}

// RedisOptions builds the go-redis client options for this configuration.
func (c *Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port),
		DB:       c.Redis.DB,
		Password: c.Redis.Password,
	}
}
