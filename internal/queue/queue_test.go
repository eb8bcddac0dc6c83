package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TestIsRetriableError tests error classification
func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "Connection refused error",
			err:      errors.New("dial tcp: connection refused"),
			expected: true,
		},
		{
			name:     "Context deadline exceeded",
			err:      errors.New("generation failed: context deadline exceeded"),
			expected: true,
		},
		{
			name:     "Service unavailable",
			err:      errors.New("503 Service Unavailable"),
			expected: true,
		},
		{
			name:     "SQLite lock",
			err:      errors.New("failed to save analysis: database is locked (5) (SQLITE_BUSY)"),
			expected: true,
		},
		{
			name:     "Invalid request error",
			err:      errors.New("invalid request format"),
			expected: false,
		},
		{
			name:     "Parse error",
			err:      errors.New("failed to unmarshal analysis"),
			expected: false,
		},
		{
			name:     "Nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetriableError(tt.err), "Error: %v", tt.err)
		})
	}
}

// TestRetryDelayFunc tests the per-task-type retry schedules
func TestRetryDelayFunc(t *testing.T) {
	testErr := errors.New("connection refused")

	enrichTask := asynq.NewTask(TypeEnrichAnalysis, []byte(`{}`))
	expected := []time.Duration{
		30 * time.Second,
		1 * time.Minute,
		2 * time.Minute,
		5 * time.Minute,
		10 * time.Minute,
		20 * time.Minute,
		30 * time.Minute,
		1 * time.Hour,
		2 * time.Hour,
		4 * time.Hour,
	}
	for i, want := range expected {
		assert.Equal(t, want, retryDelay(i, testErr, enrichTask), "Enrichment retry %d", i)
	}
	assert.Equal(t, 4*time.Hour, retryDelay(25, testErr, enrichTask), "Enrichment delay should cap")

	analyzeTask := asynq.NewTask(TypeAnalyzeSurvey, []byte(`{}`))
	analysisExpected := []time.Duration{10 * time.Second, 30 * time.Second, 1 * time.Minute, 5 * time.Minute}
	for i, want := range analysisExpected {
		assert.Equal(t, want, retryDelay(i, testErr, analyzeTask), "Analysis retry %d", i)
	}
	assert.Equal(t, 5*time.Minute, retryDelay(9, testErr, analyzeTask))
}

// TestQueuePriorities tests that analysis outranks enrichment
func TestQueuePriorities(t *testing.T) {
	assert.Equal(t, 6, queuePriorities[QueueAnalysis])
	assert.Equal(t, 3, queuePriorities[QueueEnrichment])
	assert.Len(t, queuePriorities, 2)
}

// TestTaskTypeConstants tests that task type constants are defined correctly
func TestTaskTypeConstants(t *testing.T) {
	assert.Equal(t, "feedback:analyze_survey", TypeAnalyzeSurvey)
	assert.Equal(t, "feedback:enrich_analysis", TypeEnrichAnalysis)
}

func setupQueueClient(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := NewClient(ClientConfig{RedisAddr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestClientEnqueueAnalyzeSurvey(t *testing.T) {
	mr, client := setupQueueClient(t)

	taskID, err := client.EnqueueAnalyzeSurvey(context.Background(), "survey-1")
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)

	pending, err := mr.List("asynq:{" + QueueAnalysis + "}:pending")
	require.NoError(t, err)
	assert.Equal(t, []string{taskID}, pending)
	assert.True(t, mr.Exists("asynq:{"+QueueAnalysis+"}:t:"+taskID))
}

func TestClientEnqueueEnrichAnalysis(t *testing.T) {
	mr, client := setupQueueClient(t)
	ctx := context.Background()

	taskID, err := client.EnqueueEnrichAnalysis(ctx, "analysis-1", "survey-1")
	require.NoError(t, err)
	assert.Equal(t, "analysis-1-enrich", taskID)
	assert.True(t, mr.Exists("asynq:{"+QueueEnrichment+"}:t:analysis-1-enrich"))

	// the same analysis is only enriched once
	_, err = client.EnqueueEnrichAnalysis(ctx, "analysis-1", "survey-1")
	assert.ErrorIs(t, err, asynq.ErrTaskIDConflict)
}

func TestClientEnqueueRedisDown(t *testing.T) {
	mr, client := setupQueueClient(t)
	mr.Close()

	_, err := client.EnqueueAnalyzeSurvey(context.Background(), "survey-1")
	assert.Error(t, err)
}

func TestTraceFields(t *testing.T) {
	traceID, spanID := traceFields(context.Background(), TypeAnalyzeSurvey, "s1", 1)
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "request")
	defer span.End()

	traceID, spanID = traceFields(ctx, TypeAnalyzeSurvey, "s1", 1)
	assert.Equal(t, span.SpanContext().TraceID().String(), traceID)
	assert.Equal(t, span.SpanContext().SpanID().String(), spanID)
}
