package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Task type constants
const (
	TypeAnalyzeSurvey  = "feedback:analyze_survey"
	TypeEnrichAnalysis = "feedback:enrich_analysis"
)

// Queue names
const (
	QueueAnalysis   = "analysis"
	QueueEnrichment = "enrichment"
)

// AnalyzeSurveyPayload represents the payload for a survey analysis
type AnalyzeSurveyPayload struct {
	SurveyID string `json:"survey_id"`
	// Tracing and timing fields
	TraceID    string `json:"trace_id,omitempty"`
	SpanID     string `json:"span_id,omitempty"`
	EnqueuedAt int64  `json:"enqueued_at"` // Unix timestamp in nanoseconds
}

// EnrichAnalysisPayload represents the payload for LLM enrichment of a
// stored analysis
type EnrichAnalysisPayload struct {
	AnalysisID string `json:"analysis_id"`
	SurveyID   string `json:"survey_id,omitempty"`
	// Tracing and timing fields
	TraceID    string `json:"trace_id,omitempty"`
	SpanID     string `json:"span_id,omitempty"`
	EnqueuedAt int64  `json:"enqueued_at"` // Unix timestamp in nanoseconds
}

// Client wraps the Asynq client for enqueueing tasks
type Client struct {
	client *asynq.Client
}

// ClientConfig contains configuration for the queue client
type ClientConfig struct {
	RedisAddr string
}

// NewClient creates a new queue client
func NewClient(cfg ClientConfig) *Client {
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
	}

	return &Client{
		client: asynq.NewClient(redisOpt),
	}
}

// traceFields returns the trace and span IDs of the span in ctx and records
// an enqueue event on it
func traceFields(ctx context.Context, taskType, taskID string, enqueuedAt int64, attrs ...attribute.KeyValue) (traceID, spanID string) {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return "", ""
	}
	spanCtx := span.SpanContext()

	attrs = append([]attribute.KeyValue{
		attribute.String("task.type", taskType),
		attribute.String("task.id", taskID),
		attribute.Int64("enqueued_at", enqueuedAt),
	}, attrs...)
	span.AddEvent("task_enqueued", trace.WithAttributes(attrs...))

	return spanCtx.TraceID().String(), spanCtx.SpanID().String()
}

// EnqueueAnalyzeSurvey enqueues a survey analysis task
func (c *Client) EnqueueAnalyzeSurvey(ctx context.Context, surveyID string) (string, error) {
	payload := AnalyzeSurveyPayload{
		SurveyID:   surveyID,
		EnqueuedAt: time.Now().UnixNano(), // Record enqueue time for queue wait metrics
	}
	payload.TraceID, payload.SpanID = traceFields(ctx, TypeAnalyzeSurvey, surveyID, payload.EnqueuedAt,
		attribute.String("survey.id", surveyID))

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TypeAnalyzeSurvey, payloadBytes)

	opts := []asynq.Option{
		asynq.MaxRetry(4),
		asynq.Timeout(5 * time.Minute),
		asynq.Queue(QueueAnalysis),
		asynq.Retention(7 * 24 * time.Hour), // Keep completed tasks for 7 days
	}

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue analyze survey task: %w", err)
	}

	return info.ID, nil
}

// EnqueueEnrichAnalysis enqueues a low-priority LLM enrichment task
func (c *Client) EnqueueEnrichAnalysis(ctx context.Context, analysisID, surveyID string) (string, error) {
	taskID := analysisID + "-enrich"
	payload := EnrichAnalysisPayload{
		AnalysisID: analysisID,
		SurveyID:   surveyID,
		EnqueuedAt: time.Now().UnixNano(),
	}
	payload.TraceID, payload.SpanID = traceFields(ctx, TypeEnrichAnalysis, taskID, payload.EnqueuedAt,
		attribute.String("analysis.id", analysisID))

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TypeEnrichAnalysis, payloadBytes, asynq.TaskID(taskID))

	opts := []asynq.Option{
		asynq.MaxRetry(10),              // High retry tolerance for Ollama
		asynq.Timeout(10 * time.Minute), // 10 minute timeout for AI processing
		asynq.Queue(QueueEnrichment),
		asynq.Retention(7 * 24 * time.Hour),
	}

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue enrich analysis task: %w", err)
	}

	return info.ID, nil
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.client.Close()
}
