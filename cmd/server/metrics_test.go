package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/zombar/feedbackanalyzer/internal/analyzer"
	"github.com/zombar/feedbackanalyzer/internal/api"
	"github.com/zombar/feedbackanalyzer/internal/config"
	"github.com/zombar/feedbackanalyzer/internal/database"
	"github.com/zombar/feedbackanalyzer/internal/metrics"
	"github.com/zombar/feedbackanalyzer/internal/models"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewBusinessMetrics("feedbackanalyzer", reg)
	m.AnalysesTotal.WithLabelValues("success").Inc()
	dbMetrics := metrics.NewDatabaseMetrics("feedbackanalyzer", reg)
	dbMetrics.UpdateDBStats(testDB(t).Conn())

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/plain") {
		t.Errorf("Expected content-type to contain 'text/plain', got '%s'", contentType)
	}

	body := w.Body.String()
	expectedMetrics := []string{
		"feedbackanalyzer_analyses_total",
		"feedbackanalyzer_db_open_connections",
	}
	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metrics to contain '%s'", metric)
		}
	}
}

func TestBuildHandlerLogsWithTraceIDs(t *testing.T) {
	db := testDB(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	apiHandler := api.NewHandler(db, analyzer.New(), api.Options{Logger: logger})
	handler := buildHandler(apiHandler, "feedbackanalyzer-test", logger)

	req := httptest.NewRequest(http.MethodGet, "/api/surveys", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("Expected one JSON log record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "http_request" {
		t.Errorf("Expected http_request record, got %v", rec["msg"])
	}
	if rec["path"] != "/api/surveys" {
		t.Errorf("Expected path /api/surveys, got %v", rec["path"])
	}
	if _, ok := rec["trace_id"]; !ok {
		t.Error("Expected trace_id attribute")
	}
}

func TestHealthProviderChain(t *testing.T) {
	db := testDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{HealthCacheTTL: time.Minute, HealthLookupTimeout: time.Second}
	provider := newHealthProvider(db, rdb, cfg, logger)

	if err := db.SaveHealthScore(ctx, &models.HealthScore{CustomerID: "acme", Status: analyzer.HealthAtRisk}); err != nil {
		t.Fatalf("Failed to save health score: %v", err)
	}

	status, err := provider.LatestHealthStatus(ctx, "acme")
	if err != nil || status != analyzer.HealthAtRisk {
		t.Fatalf("Expected at_risk, got %q (%v)", status, err)
	}
	if !mr.Exists("feedback:health:acme") {
		t.Error("Expected status to be cached in redis")
	}

	// a newer status is served once the cache entry is invalidated
	if err := db.SaveHealthScore(ctx, &models.HealthScore{
		CustomerID: "acme",
		Status:     analyzer.HealthCritical,
		CreatedAt:  time.Now().UTC().Add(time.Second),
	}); err != nil {
		t.Fatalf("Failed to save health score: %v", err)
	}
	if status, _ := provider.LatestHealthStatus(ctx, "acme"); status != analyzer.HealthAtRisk {
		t.Errorf("Expected cached at_risk before invalidation, got %q", status)
	}
	if err := provider.Invalidate(ctx, "acme"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if status, _ := provider.LatestHealthStatus(ctx, "acme"); status != analyzer.HealthCritical {
		t.Errorf("Expected critical after invalidation, got %q", status)
	}
}

func TestHealthProviderWithoutRedis(t *testing.T) {
	db := testDB(t)
	cfg := &config.Config{}
	provider := newHealthProvider(db, nil, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	status, err := provider.LatestHealthStatus(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if status != analyzer.HealthUnknown {
		t.Errorf("Expected unknown status, got %q", status)
	}
	if err := provider.Invalidate(context.Background(), "nobody"); err != nil {
		t.Errorf("Invalidate without a cache should be a no-op, got %v", err)
	}
}

func TestConnectRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if client := connectRedis(addr, slog.New(slog.NewTextHandler(io.Discard, nil))); client != nil {
		client.Close()
		t.Error("Expected nil client when redis is down")
	}
}
