// Package config loads service configuration from defaults, an optional
// YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the server configuration
type Config struct {
	Port        string `mapstructure:"port"`
	DBPath      string `mapstructure:"db_path"`
	ServiceName string `mapstructure:"service_name"`
	LogLevel    string `mapstructure:"log_level"`

	RedisAddr         string `mapstructure:"redis_addr"`
	UseQueue          bool   `mapstructure:"use_queue"`
	WorkerConcurrency int    `mapstructure:"worker_concurrency"`

	// AnalysisConcurrency bounds per-response fan-out within one survey
	AnalysisConcurrency int `mapstructure:"analysis_concurrency"`

	OllamaURL   string `mapstructure:"ollama_url"`
	OllamaModel string `mapstructure:"ollama_model"`
	UseOllama   bool   `mapstructure:"use_ollama"`

	HealthCacheTTL      time.Duration `mapstructure:"health_cache_ttl"`
	HealthLookupTimeout time.Duration `mapstructure:"health_lookup_timeout"`
}

// defaults are applied before the file and the environment
var defaults = map[string]interface{}{
	"port":                  "8080",
	"db_path":               "feedbackanalyzer.db",
	"service_name":          "feedbackanalyzer",
	"log_level":             "info",
	"redis_addr":            "localhost:6379",
	"use_queue":             true,
	"worker_concurrency":    4,
	"analysis_concurrency":  8,
	"ollama_url":            "http://localhost:11434",
	"ollama_model":          "gpt-oss:20b",
	"use_ollama":            false,
	"health_cache_ttl":      5 * time.Minute,
	"health_lookup_timeout": 500 * time.Millisecond,
}

// Load reads configuration. A missing file is not an error; keys are
// overridden by upper-cased environment variables (DB_PATH, REDIS_ADDR).
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", cfgFile, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if c.UseQueue && c.RedisAddr == "" {
		return errors.New("redis_addr is required when use_queue is set")
	}
	if c.WorkerConcurrency < 0 || c.AnalysisConcurrency < 0 {
		return errors.New("concurrency must not be negative")
	}
	if c.HealthLookupTimeout < 0 || c.HealthCacheTTL < 0 {
		return errors.New("health durations must not be negative")
	}
	return nil
}

// SlogLevel maps log_level to a slog level, defaulting to info
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
