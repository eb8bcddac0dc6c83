package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zombar/feedbackanalyzer/internal/analyzer"
	"github.com/zombar/feedbackanalyzer/internal/database"
	"github.com/zombar/feedbackanalyzer/internal/models"
	"github.com/zombar/feedbackanalyzer/internal/tracing"
	"github.com/zombar/feedbackanalyzer/pkg/logging"
)

// defaultTrendDays is the trend window when days is not given
const defaultTrendDays = 90

// SurveyProcessor runs and stores a survey analysis inline
type SurveyProcessor interface {
	ProcessSurvey(ctx context.Context, surveyID string) (*models.SurveyAnalysisRecord, error)
}

// AnalysisQueue enqueues survey analyses for the worker
type AnalysisQueue interface {
	EnqueueAnalyzeSurvey(ctx context.Context, surveyID string) (string, error)
}

// HealthCache drops cached health statuses when a new one is recorded
type HealthCache interface {
	Invalidate(ctx context.Context, customerID string) error
}

// Options holds the handler's optional collaborators
type Options struct {
	// Processor serves ?sync=true analyses and is the fallback when no
	// queue is configured
	Processor SurveyProcessor
	Queue     AnalysisQueue
	Health    HealthCache
	Logger    *slog.Logger
}

// Handler handles HTTP requests
type Handler struct {
	db        *database.DB
	analyzer  *analyzer.Analyzer
	processor SurveyProcessor
	queue     AnalysisQueue
	health    HealthCache
	logger    *slog.Logger
	mux       *http.ServeMux
}

// NewHandler creates a new API handler with CORS support and metrics
func NewHandler(db *database.DB, a *analyzer.Analyzer, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	h := &Handler{
		db:        db,
		analyzer:  a,
		processor: opts.Processor,
		queue:     opts.Queue,
		health:    opts.Health,
		logger:    opts.Logger,
		mux:       http.NewServeMux(),
	}

	h.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(h.mux)
}

// setupRoutes configures all API routes
func (h *Handler) setupRoutes() {
	h.mux.Handle("/metrics", promhttp.Handler())
	h.mux.HandleFunc("/health", h.handleHealth)
	h.mux.HandleFunc("/api/analyze", h.handleAnalyze)
	h.mux.HandleFunc("/api/surveys", h.handleSurveys)
	h.mux.HandleFunc("/api/surveys/", h.handleSurveyOperations)
	h.mux.HandleFunc("/api/health-scores", h.handleHealthScores)
	h.mux.HandleFunc("/api/trends", h.handleTrends)
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleAnalyze analyzes a single response synchronously
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req analyzer.ResponseInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Text) == "" && req.OverallScore == nil && len(req.Ratings) == 0 {
		respondError(w, "Text, ratings or overall_score is required", http.StatusBadRequest)
		return
	}

	tracing.SetSpanAttributes(r.Context(),
		attribute.Int("text.length", len(req.Text)),
		attribute.Int("ratings.count", len(req.Ratings)))

	result := h.analyzer.AnalyzeResponse(r.Context(), req)
	respondJSON(w, result, http.StatusOK)
}

// createSurveyRequest is the body of POST /api/surveys. Responses are
// complete unless is_complete is false.
type createSurveyRequest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	SurveyType      string `json:"survey_type"`
	PromotersCount  int    `json:"promoters_count"`
	PassivesCount   int    `json:"passives_count"`
	DetractorsCount int    `json:"detractors_count"`
	Responses       []struct {
		ID           string          `json:"id"`
		CustomerID   string          `json:"customer_id"`
		OverallScore *float64        `json:"overall_score"`
		IsComplete   *bool           `json:"is_complete"`
		Answers      []models.Answer `json:"answers"`
	} `json:"responses"`
}

func (req createSurveyRequest) survey() (*models.Survey, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.New("name is required")
	}

	surveyType := strings.ToLower(strings.TrimSpace(req.SurveyType))
	switch surveyType {
	case "":
		surveyType = analyzer.SurveyTypeNPS
	case analyzer.SurveyTypeNPS, analyzer.SurveyTypeCSAT, analyzer.SurveyTypeCES:
	default:
		return nil, fmt.Errorf("unknown survey_type %q", req.SurveyType)
	}

	s := &models.Survey{
		ID:              req.ID,
		Name:            req.Name,
		SurveyType:      surveyType,
		PromotersCount:  req.PromotersCount,
		PassivesCount:   req.PassivesCount,
		DetractorsCount: req.DetractorsCount,
	}
	for i, resp := range req.Responses {
		if resp.OverallScore != nil && (*resp.OverallScore < 0 || *resp.OverallScore > 10) {
			return nil, fmt.Errorf("response %d: overall_score must be between 0 and 10", i)
		}
		complete := true
		if resp.IsComplete != nil {
			complete = *resp.IsComplete
		}
		s.Responses = append(s.Responses, models.SurveyResponse{
			ID:           resp.ID,
			CustomerID:   resp.CustomerID,
			OverallScore: resp.OverallScore,
			IsComplete:   complete,
			Answers:      resp.Answers,
		})
	}
	return s, nil
}

// handleSurveys handles creating and listing surveys
func (h *Handler) handleSurveys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createSurvey(w, r)
	case http.MethodGet:
		h.listSurveys(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) createSurvey(w http.ResponseWriter, r *http.Request) {
	var req createSurveyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	survey, err := req.survey()
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.db.CreateSurvey(r.Context(), survey); err != nil {
		h.internalError(w, r, err)
		return
	}

	tracing.SetSpanAttributes(r.Context(),
		attribute.String("survey.id", survey.ID),
		attribute.Int("responses.count", len(survey.Responses)))

	respondJSON(w, survey, http.StatusCreated)
}

func (h *Handler) listSurveys(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	surveys, err := h.db.ListSurveys(r.Context(), limit, offset)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	respondJSON(w, surveys, http.StatusOK)
}

// handleSurveyOperations dispatches /api/surveys/{id}[/analyze|/analysis]
func (h *Handler) handleSurveyOperations(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(r.URL.Path[len("/api/surveys/"):], "/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		respondError(w, "Survey ID is required", http.StatusBadRequest)
		return
	}

	tracing.SetSpanAttributes(r.Context(), attribute.String("survey.id", id))

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.getSurvey(w, r, id)
		case http.MethodDelete:
			h.deleteSurvey(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "analyze":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.analyzeSurvey(w, r, id)
	case "analysis":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.getLatestAnalysis(w, r, id)
	default:
		respondError(w, "Not found", http.StatusNotFound)
	}
}

func (h *Handler) getSurvey(w http.ResponseWriter, r *http.Request, id string) {
	survey, err := h.db.GetSurvey(r.Context(), id)
	if err != nil {
		h.respondLookupError(w, r, err)
		return
	}
	respondJSON(w, survey, http.StatusOK)
}

func (h *Handler) deleteSurvey(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.db.DeleteSurvey(r.Context(), id); err != nil {
		h.respondLookupError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// analyzeSurvey enqueues a survey analysis, or runs it inline when
// ?sync=true is given or no queue is configured
func (h *Handler) analyzeSurvey(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	sync, _ := strconv.ParseBool(r.URL.Query().Get("sync"))

	if !sync && h.queue != nil {
		// confirm the survey exists before queueing work for it
		if _, err := h.db.GetSurvey(ctx, id); err != nil {
			h.respondLookupError(w, r, err)
			return
		}

		taskID, err := h.queue.EnqueueAnalyzeSurvey(ctx, id)
		if err != nil {
			h.internalError(w, r, fmt.Errorf("failed to enqueue analysis: %w", err))
			return
		}
		logging.LogRequest(h.logger, r, "survey analysis queued",
			slog.String("survey_id", id),
			slog.String("task_id", taskID),
		)

		respondJSON(w, map[string]interface{}{
			"survey_id": id,
			"task_id":   taskID,
			"status":    "queued",
			"message":   "Analysis queued for processing",
		}, http.StatusAccepted)
		return
	}

	if h.processor == nil {
		respondError(w, "Analysis is not available", http.StatusServiceUnavailable)
		return
	}

	rec, err := h.processor.ProcessSurvey(ctx, id)
	if err != nil {
		h.respondLookupError(w, r, err)
		return
	}

	tracing.SetSpanAttributes(ctx,
		attribute.String("analysis.id", rec.ID),
		attribute.Int("responses.analyzed", rec.Result.AnalyzedResponses))

	respondJSON(w, rec, http.StatusOK)
}

func (h *Handler) getLatestAnalysis(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := h.db.GetLatestSurveyAnalysis(r.Context(), id)
	if err != nil {
		h.respondLookupError(w, r, err)
		return
	}
	respondJSON(w, rec, http.StatusOK)
}

// handleHealthScores records a customer health status
func (h *Handler) handleHealthScores(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var hs models.HealthScore
	if err := json.NewDecoder(r.Body).Decode(&hs); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if hs.CustomerID == "" {
		respondError(w, "customer_id is required", http.StatusBadRequest)
		return
	}
	hs.Status = analyzer.HealthStatus(strings.ToLower(string(hs.Status)))
	if !hs.Status.Valid() || hs.Status == analyzer.HealthUnknown {
		respondError(w, fmt.Sprintf("invalid health_status %q", hs.Status), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if err := h.db.SaveHealthScore(ctx, &hs); err != nil {
		h.internalError(w, r, err)
		return
	}

	if h.health != nil {
		if err := h.health.Invalidate(ctx, hs.CustomerID); err != nil {
			// stale entries expire with the cache TTL
			h.logger.Warn("failed to invalidate cached health status",
				"customer_id", hs.CustomerID,
				"error", err,
			)
		}
	}

	respondJSON(w, hs, http.StatusCreated)
}

// handleTrends reports NPS and score trends across surveys
func (h *Handler) handleTrends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("survey_ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		respondError(w, "survey_ids parameter is required", http.StatusBadRequest)
		return
	}

	days := defaultTrendDays
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		d, err := strconv.Atoi(daysStr)
		if err != nil {
			respondError(w, "days must be an integer", http.StatusBadRequest)
			return
		}
		days = d
	}

	tracing.SetSpanAttributes(r.Context(),
		attribute.Int("surveys.requested", len(ids)),
		attribute.Int("trend.days", days))

	surveyMetrics, err := h.db.SurveyMetrics(r.Context(), ids, days)
	if err != nil {
		if errors.Is(err, database.ErrInvalidWindow) {
			respondError(w, "days must not be negative", http.StatusBadRequest)
			return
		}
		h.internalError(w, r, err)
		return
	}

	report := analyzer.GetTrend(surveyMetrics)
	if report == nil {
		respondJSON(w, map[string]interface{}{
			"trend":          nil,
			"survey_metrics": surveyMetrics,
			"message":        "At least two surveys in the window are needed for a trend",
		}, http.StatusOK)
		return
	}

	respondJSON(w, report, http.StatusOK)
}

// respondLookupError maps not-found sentinels to 404
func (h *Handler) respondLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, database.ErrSurveyNotFound) || errors.Is(err, database.ErrAnalysisNotFound) {
		respondError(w, err.Error(), http.StatusNotFound)
		return
	}
	h.internalError(w, r, err)
}

// internalError logs err and sends a 500
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	logging.HTTPErrorLogger(h.logger, http.StatusInternalServerError, err, r)
	respondError(w, err.Error(), http.StatusInternalServerError)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
