package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "feedbackanalyzer.db", cfg.DBPath)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.True(t, cfg.UseQueue)
	assert.False(t, cfg.UseOllama)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, 8, cfg.AnalysisConcurrency)
	assert.Equal(t, 5*time.Minute, cfg.HealthCacheTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.HealthLookupTimeout)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `port: "9090"
db_path: /var/lib/feedback.db
use_queue: false
analysis_concurrency: 2
health_cache_ttl: 30s
ollama_model: llama3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/var/lib/feedback.db", cfg.DBPath)
	assert.False(t, cfg.UseQueue)
	assert.Equal(t, 2, cfg.AnalysisConcurrency)
	assert.Equal(t, 30*time.Second, cfg.HealthCacheTTL)
	assert.Equal(t, "llama3", cfg.OllamaModel)
	// untouched keys keep their defaults
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis_addr: file:6379\n"), 0o644))

	t.Setenv("DB_PATH", "/tmp/env.db")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("USE_OLLAMA", "true")
	t.Setenv("WORKER_CONCURRENCY", "16")
	t.Setenv("HEALTH_LOOKUP_TIMEOUT", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/env.db", cfg.DBPath)
	assert.Equal(t, "redis:6379", cfg.RedisAddr, "environment wins over the file")
	assert.True(t, cfg.UseOllama)
	assert.Equal(t, 16, cfg.WorkerConcurrency)
	assert.Equal(t, 2*time.Second, cfg.HealthLookupTimeout)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{Port: "8080", DBPath: "x.db", RedisAddr: "r:6379", UseQueue: true}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing port", func(c *Config) { c.Port = "" }, true},
		{"missing db path", func(c *Config) { c.DBPath = "" }, true},
		{"queue without redis", func(c *Config) { c.RedisAddr = "" }, true},
		{"no queue without redis", func(c *Config) { c.RedisAddr = ""; c.UseQueue = false }, false},
		{"negative concurrency", func(c *Config) { c.AnalysisConcurrency = -1 }, true},
		{"negative timeout", func(c *Config) { c.HealthLookupTimeout = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for level, want := range tests {
		cfg := &Config{LogLevel: level}
		assert.Equal(t, want, cfg.SlogLevel(), level)
	}
}
