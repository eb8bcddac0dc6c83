package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	return rec
}

func TestHTTPLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	handler := HTTPLoggingMiddleware(newTestLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("hello"))
	}))

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "request")
	defer span.End()

	req := httptest.NewRequest(http.MethodPost, "/api/surveys?x=1", nil).WithContext(ctx)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rec := decodeRecord(t, &buf)
	assert.Equal(t, "http_request", rec["msg"])
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "POST", rec["method"])
	assert.Equal(t, "/api/surveys", rec["path"])
	assert.Equal(t, "x=1", rec["query"])
	assert.Equal(t, float64(http.StatusCreated), rec["status"])
	assert.Equal(t, float64(5), rec["bytes"])
	assert.Equal(t, span.SpanContext().TraceID().String(), rec["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), rec["span_id"])
}

func TestHTTPLoggingMiddlewareDefaultStatus(t *testing.T) {
	var buf bytes.Buffer
	handler := HTTPLoggingMiddleware(newTestLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/trends", nil))

	rec := decodeRecord(t, &buf)
	assert.Equal(t, float64(http.StatusOK), rec["status"])
	assert.Equal(t, "", rec["trace_id"])
}

func TestLevelForStatus(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/api/surveys", http.StatusOK, slog.LevelInfo},
		{"/api/surveys", http.StatusNotFound, slog.LevelWarn},
		{"/api/surveys", http.StatusBadRequest, slog.LevelWarn},
		{"/api/surveys", http.StatusInternalServerError, slog.LevelError},
		{"/health", http.StatusOK, slog.LevelDebug},
		{"/metrics", http.StatusOK, slog.LevelDebug},
		{"/health", http.StatusServiceUnavailable, slog.LevelError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, levelForStatus(tt.path, tt.status), "%s %d", tt.path, tt.status)
	}
}

func TestHTTPErrorLogger(t *testing.T) {
	var buf bytes.Buffer
	req := httptest.NewRequest(http.MethodGet, "/api/surveys/s1", nil)

	HTTPErrorLogger(newTestLogger(&buf), http.StatusInternalServerError, errors.New("database is locked"), req)

	rec := decodeRecord(t, &buf)
	assert.Equal(t, "http_error", rec["msg"])
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "database is locked", rec["error"])
	assert.Equal(t, float64(500), rec["status"])
}

func TestLogRequest(t *testing.T) {
	var buf bytes.Buffer
	req := httptest.NewRequest(http.MethodPost, "/api/surveys/s1/analyze", nil)

	LogRequest(newTestLogger(&buf), req, "survey analysis queued", slog.String("task_id", "t1"))

	rec := decodeRecord(t, &buf)
	assert.Equal(t, "survey analysis queued", rec["msg"])
	assert.Equal(t, "t1", rec["task_id"])
	assert.Equal(t, "/api/surveys/s1/analyze", rec["path"])
}
