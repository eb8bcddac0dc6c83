package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/feedbackanalyzer/internal/database"
)

// queueWait returns how long a task waited since it was enqueued
func queueWait(enqueuedAt int64) time.Duration {
	if enqueuedAt <= 0 {
		return 0
	}
	return time.Since(time.Unix(0, enqueuedAt))
}

// startTaskSpan continues the trace recorded in a task payload with a
// consumer span. Without stored IDs the attributes go on the span already
// in ctx, if any, and the returned span is nil.
func startTaskSpan(ctx context.Context, taskType, traceIDHex, spanIDHex string, enqueuedAt int64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	wait := queueWait(enqueuedAt)
	attrs = append(attrs, attribute.Float64("queue.wait_time_seconds", wait.Seconds()))

	if traceIDHex != "" && spanIDHex != "" {
		traceID, err := trace.TraceIDFromHex(traceIDHex)
		if err == nil {
			spanID, err := trace.SpanIDFromHex(spanIDHex)
			if err == nil {
				remoteSpanCtx := trace.NewSpanContext(trace.SpanContextConfig{
					TraceID:    traceID,
					SpanID:     spanID,
					TraceFlags: trace.FlagsSampled,
					Remote:     true,
				})
				ctx = trace.ContextWithRemoteSpanContext(ctx, remoteSpanCtx)

				attrs = append([]attribute.KeyValue{attribute.String("task.type", taskType)}, attrs...)
				attrs = append(attrs, attribute.Int64("enqueued_at", enqueuedAt))

				var span trace.Span
				ctx, span = otel.Tracer("feedbackanalyzer").Start(ctx, "asynq.task.process",
					trace.WithSpanKind(trace.SpanKindConsumer),
					trace.WithAttributes(attrs...),
				)
				span.AddEvent("task_processing_started", trace.WithAttributes(
					attribute.Float64("wait_time_seconds", wait.Seconds()),
				))
				return ctx, span
			}
		}
	}

	if existingSpan := trace.SpanFromContext(ctx); existingSpan.SpanContext().IsValid() {
		existingSpan.SetAttributes(attrs...)
	}
	return ctx, nil
}

// handleAnalyzeSurvey runs the rule-based analysis of a survey
func (w *Worker) handleAnalyzeSurvey(ctx context.Context, t *asynq.Task) error {
	var payload AnalyzeSurveyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("failed to unmarshal task payload", "error", err)
		return fmt.Errorf("invalid task payload: %v: %w", err, asynq.SkipRetry)
	}

	retryCount, _ := asynq.GetRetryCount(ctx)

	w.logger.Info("analyzing survey",
		"survey_id", payload.SurveyID,
		"retry_count", retryCount,
		"queue_wait_seconds", queueWait(payload.EnqueuedAt).Seconds(),
	)

	ctx, span := startTaskSpan(ctx, TypeAnalyzeSurvey, payload.TraceID, payload.SpanID, payload.EnqueuedAt,
		attribute.String("survey.id", payload.SurveyID),
		attribute.Int("retry_count", retryCount),
	)
	if span != nil {
		defer span.End()
	}

	rec, err := w.processor.ProcessSurvey(ctx, payload.SurveyID)
	if err != nil {
		if errors.Is(err, database.ErrSurveyNotFound) {
			w.logger.Warn("survey no longer exists, dropping task", "survey_id", payload.SurveyID)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		if isRetriableError(err) {
			w.logger.Warn("retriable error, will retry",
				"survey_id", payload.SurveyID,
				"error", err,
				"retry_count", retryCount,
			)
			return err
		}
		w.logger.Error("permanent error analyzing survey",
			"survey_id", payload.SurveyID,
			"error", err,
		)
		return fmt.Errorf("failed to analyze survey: %w", err)
	}

	w.logger.Info("survey analysis completed",
		"survey_id", payload.SurveyID,
		"analysis_id", rec.ID,
	)
	return nil
}

// handleEnrichAnalysis adds LLM narrative to a stored analysis
func (w *Worker) handleEnrichAnalysis(ctx context.Context, t *asynq.Task) error {
	var payload EnrichAnalysisPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("failed to unmarshal task payload", "error", err)
		return fmt.Errorf("invalid task payload: %v: %w", err, asynq.SkipRetry)
	}

	retryCount, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	w.logger.Info("enriching analysis with AI",
		"analysis_id", payload.AnalysisID,
		"retry_count", retryCount,
		"max_retries", maxRetry,
		"queue_wait_seconds", queueWait(payload.EnqueuedAt).Seconds(),
	)

	ctx, span := startTaskSpan(ctx, TypeEnrichAnalysis, payload.TraceID, payload.SpanID, payload.EnqueuedAt,
		attribute.String("analysis.id", payload.AnalysisID),
		attribute.Int("retry_count", retryCount),
	)
	if span != nil {
		defer span.End()
	}

	if err := w.processor.EnrichAnalysis(ctx, payload.AnalysisID); err != nil {
		if errors.Is(err, database.ErrAnalysisNotFound) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		if isRetriableError(err) {
			w.logger.Warn("retriable Ollama error, will retry",
				"analysis_id", payload.AnalysisID,
				"error", err,
				"retry_count", retryCount,
			)
			return err
		}
		w.logger.Error("permanent error enriching analysis",
			"analysis_id", payload.AnalysisID,
			"error", err,
		)
		return fmt.Errorf("failed to enrich analysis: %w", err)
	}

	w.logger.Info("analysis enrichment completed",
		"analysis_id", payload.AnalysisID,
		"retry_count", retryCount,
	)
	return nil
}

// isRetriableError determines if an error is transient (connection,
// timeout, lock contention)
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	retriablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
		"too many requests",
		"context deadline exceeded",
		"context canceled",
		"i/o timeout",
		"no such host",
		"network is unreachable",
		"database is locked",
		"sqlite_busy",
	}

	for _, pattern := range retriablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
