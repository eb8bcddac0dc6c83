package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zombar/feedbackanalyzer/internal/analyzer"
	"github.com/zombar/feedbackanalyzer/internal/database"
	"github.com/zombar/feedbackanalyzer/internal/metrics"
	"github.com/zombar/feedbackanalyzer/internal/models"
	"github.com/zombar/feedbackanalyzer/internal/ollama"
)

// Store is the persistence the processor needs
type Store interface {
	GetSurvey(ctx context.Context, id string) (*models.Survey, error)
	SaveSurveyAnalysis(ctx context.Context, rec *models.SurveyAnalysisRecord) error
	GetSurveyAnalysis(ctx context.Context, id string) (*models.SurveyAnalysisRecord, error)
	UpdateAnalysisEnrichment(ctx context.Context, id, summary string, themes []models.Theme) error
}

// Enricher produces LLM narrative on top of a local analysis
type Enricher interface {
	SummarizeFeedback(ctx context.Context, digest string) (string, error)
	ExtractThemes(ctx context.Context, texts []string) ([]ollama.Theme, error)
}

// EnrichmentEnqueuer schedules enrichment of a stored analysis
type EnrichmentEnqueuer interface {
	EnqueueEnrichAnalysis(ctx context.Context, analysisID, surveyID string) (string, error)
}

// Processor runs survey analyses and their enrichment. Both the queue
// worker and the synchronous API path use it.
type Processor struct {
	store    Store
	analyzer *analyzer.Analyzer
	enricher Enricher
	enqueuer EnrichmentEnqueuer
	metrics  *metrics.BusinessMetrics
	logger   *slog.Logger
}

// ProcessorConfig holds the processor's optional collaborators
type ProcessorConfig struct {
	// Enricher enables LLM enrichment when set
	Enricher Enricher
	// Enqueuer schedules enrichment after each analysis; without one,
	// analyses are stored unenriched
	Enqueuer EnrichmentEnqueuer
	Metrics  *metrics.BusinessMetrics
	Logger   *slog.Logger
}

// NewProcessor creates a processor
func NewProcessor(store Store, a *analyzer.Analyzer, cfg ProcessorConfig) *Processor {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewBusinessMetrics("feedbackanalyzer", prometheus.NewRegistry())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Processor{
		store:    store,
		analyzer: a,
		enricher: cfg.Enricher,
		enqueuer: cfg.Enqueuer,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// SetEnqueuer sets the enrichment enqueuer after construction
func (p *Processor) SetEnqueuer(e EnrichmentEnqueuer) {
	p.enqueuer = e
}

// ProcessSurvey analyzes a stored survey and persists the result
func (p *Processor) ProcessSurvey(ctx context.Context, surveyID string) (*models.SurveyAnalysisRecord, error) {
	ctx, span := otel.Tracer("feedbackanalyzer").Start(ctx, "survey.analyze")
	defer span.End()
	span.SetAttributes(attribute.String("survey.id", surveyID))

	survey, err := p.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load survey: %w", err)
	}

	timer := time.Now()
	status := "success"
	defer func() {
		p.metrics.ObserveDurationWithExemplar(ctx, p.metrics.AnalysisDuration, time.Since(timer).Seconds(), status)
		p.metrics.AnalysesTotal.WithLabelValues(status).Inc()
	}()

	result := p.analyzer.AnalyzeSurvey(ctx, survey.AnalyzerInput())
	if result.NoResponses() {
		status = analyzer.StatusNoResponses
	}
	span.SetAttributes(
		attribute.Int("responses.total", result.TotalResponses),
		attribute.Int("responses.analyzed", result.AnalyzedResponses),
		attribute.Int("urgent_issues.count", result.UrgentIssuesCount),
		attribute.Int("churn_risks.count", result.ChurnRiskCount),
	)

	rec := &models.SurveyAnalysisRecord{SurveyID: surveyID, Result: result}
	if err := p.store.SaveSurveyAnalysis(ctx, rec); err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}

	p.recordResult(result)

	p.logger.Info("survey analysis saved",
		"survey_id", surveyID,
		"analysis_id", rec.ID,
		"analyzed_responses", result.AnalyzedResponses,
		"urgent_issues", result.UrgentIssuesCount,
		"churn_risks", result.ChurnRiskCount,
		"processing_time_ms", result.ProcessingTimeMs,
	)

	if p.enricher != nil && p.enqueuer != nil && !result.NoResponses() {
		if _, err := p.enqueuer.EnqueueEnrichAnalysis(ctx, rec.ID, surveyID); err != nil {
			// enrichment is optional; the local analysis stands
			p.logger.Error("failed to enqueue enrichment", "analysis_id", rec.ID, "error", err)
		}
	}

	return rec, nil
}

func (p *Processor) recordResult(result analyzer.SurveyAnalysis) {
	p.metrics.ResponsesAnalyzedTotal.Add(float64(result.AnalyzedResponses))
	for _, issue := range result.UrgentIssues {
		p.metrics.UrgentIssuesTotal.WithLabelValues(string(issue.Severity)).Inc()
	}
	for _, risk := range result.ChurnRisks {
		p.metrics.ChurnRiskScore.Observe(float64(risk.RiskScore))
	}
}

// EnrichAnalysis adds an LLM summary and themes to a stored analysis. A
// failed theme extraction keeps the summary.
func (p *Processor) EnrichAnalysis(ctx context.Context, analysisID string) error {
	if p.enricher == nil {
		return fmt.Errorf("enrichment not configured: %w", asynq.SkipRetry)
	}

	ctx, span := otel.Tracer("feedbackanalyzer").Start(ctx, "ai.enrich_analysis")
	defer span.End()
	span.SetAttributes(attribute.String("analysis.id", analysisID))

	rec, err := p.store.GetSurveyAnalysis(ctx, analysisID)
	if err != nil {
		return fmt.Errorf("failed to retrieve analysis: %w", err)
	}

	var texts []string
	if survey, err := p.store.GetSurvey(ctx, rec.SurveyID); err == nil {
		for _, r := range survey.Responses {
			if r.IsComplete {
				texts = append(texts, r.Text())
			}
		}
	} else if !errors.Is(err, database.ErrSurveyNotFound) {
		return fmt.Errorf("failed to load survey: %w", err)
	}

	summary, err := p.enricher.SummarizeFeedback(ctx, Digest(rec.Result))
	if err != nil {
		p.metrics.EnrichmentsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to summarize feedback: %w", err)
	}

	var themes []models.Theme
	extracted, err := p.enricher.ExtractThemes(ctx, texts)
	if err != nil {
		p.logger.Warn("theme extraction failed, keeping summary only", "analysis_id", analysisID, "error", err)
	}
	for _, t := range extracted {
		themes = append(themes, models.Theme{Theme: t.Theme, Sentiment: t.Sentiment, Evidence: t.Evidence})
	}

	if err := p.store.UpdateAnalysisEnrichment(ctx, analysisID, summary, themes); err != nil {
		p.metrics.EnrichmentsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to update enriched analysis: %w", err)
	}

	p.metrics.EnrichmentsTotal.WithLabelValues("success").Inc()
	span.SetAttributes(attribute.Int("themes.count", len(themes)))
	return nil
}

// Digest renders the facts of an analysis as plain text for an LLM prompt
func Digest(a analyzer.SurveyAnalysis) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Survey: %s (%s)\n", a.SurveyName, a.SurveyType)
	fmt.Fprintf(&b, "Responses analyzed: %d of %d\n", a.AnalyzedResponses, a.TotalResponses)
	if a.NPS != nil && a.NPS.Score != nil {
		fmt.Fprintf(&b, "NPS: %d (promoters %.1f%%, detractors %.1f%%)\n",
			*a.NPS.Score, a.NPS.PromotersPct, a.NPS.DetractorsPct)
	}
	d := a.SentimentDistribution
	fmt.Fprintf(&b, "Sentiment: %.1f%% positive, %.1f%% neutral, %.1f%% negative\n",
		d.PositivePct, d.NeutralPct, d.NegativePct)

	if len(a.Topics) > 0 {
		var topics []string
		for i, t := range a.Topics {
			if i == 5 {
				break
			}
			topics = append(topics, fmt.Sprintf("%s (%d, %s)", t.DisplayName, t.Count, t.Sentiment))
		}
		fmt.Fprintf(&b, "Top topics: %s\n", strings.Join(topics, "; "))
	}
	fmt.Fprintf(&b, "Urgent issues: %d\n", a.UrgentIssuesCount)
	fmt.Fprintf(&b, "Customers at elevated churn risk: %d\n", a.ChurnRiskCount)
	fmt.Fprintf(&b, "Competitor mentions: %d\n", a.CompetitorMentionCount)
	if a.ExecutiveSummary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", a.ExecutiveSummary)
	}

	return b.String()
}
