package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zombar/feedbackanalyzer/internal/analyzer"
	"github.com/zombar/feedbackanalyzer/internal/models"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func createTestSurvey(name string, createdAt time.Time, scores ...float64) *models.Survey {
	s := &models.Survey{
		Name:       name,
		SurveyType: analyzer.SurveyTypeNPS,
		CreatedAt:  createdAt,
	}
	for i, score := range scores {
		s.Responses = append(s.Responses, models.SurveyResponse{
			CustomerID:   "cust-" + string(rune('a'+i)),
			OverallScore: floatPtr(score),
			IsComplete:   true,
			Answers: []models.Answer{
				{Question: "How likely are you to recommend us?", RatingValue: intPtr(int(score))},
				{Question: "Anything else?", TextValue: "The support team was helpful"},
			},
		})
	}
	return s
}

func TestCreateAndGetSurvey(t *testing.T) {
	db := setupTestDB(t, "survey_roundtrip")
	ctx := context.Background()

	survey := createTestSurvey("Q1 NPS", time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC), 9, 4)
	survey.Responses[1].IsComplete = false
	if err := db.CreateSurvey(ctx, survey); err != nil {
		t.Fatalf("Failed to create survey: %v", err)
	}
	if survey.ID == "" || survey.Responses[0].ID == "" || survey.Responses[0].Answers[0].ID == "" {
		t.Fatal("Expected IDs to be assigned")
	}

	got, err := db.GetSurvey(ctx, survey.ID)
	if err != nil {
		t.Fatalf("Failed to get survey: %v", err)
	}

	if got.Name != "Q1 NPS" || got.SurveyType != analyzer.SurveyTypeNPS {
		t.Errorf("Unexpected survey fields: %+v", got)
	}
	if !got.CreatedAt.Equal(survey.CreatedAt) {
		t.Errorf("Expected created_at %v, got %v", survey.CreatedAt, got.CreatedAt)
	}
	if len(got.Responses) != 2 {
		t.Fatalf("Expected 2 responses, got %d", len(got.Responses))
	}

	first := got.Responses[0]
	if first.ID != survey.Responses[0].ID {
		t.Errorf("Expected responses in insertion order")
	}
	if first.OverallScore == nil || *first.OverallScore != 9 {
		t.Errorf("Expected overall score 9, got %v", first.OverallScore)
	}
	if !first.IsComplete || got.Responses[1].IsComplete {
		t.Errorf("Completion flags not preserved")
	}
	if len(first.Answers) != 2 {
		t.Fatalf("Expected 2 answers, got %d", len(first.Answers))
	}
	if first.Answers[0].RatingValue == nil || *first.Answers[0].RatingValue != 9 {
		t.Errorf("Expected rating answer first, got %+v", first.Answers[0])
	}
	if first.Answers[1].TextValue != "The support team was helpful" || first.Answers[1].RatingValue != nil {
		t.Errorf("Unexpected text answer: %+v", first.Answers[1])
	}
}

func TestGetSurveyNotFound(t *testing.T) {
	db := setupTestDB(t, "survey_missing")

	_, err := db.GetSurvey(context.Background(), "nope")
	if !errors.Is(err, ErrSurveyNotFound) {
		t.Errorf("Expected ErrSurveyNotFound, got %v", err)
	}
}

func TestGetSurveyWithoutResponses(t *testing.T) {
	db := setupTestDB(t, "survey_empty")
	ctx := context.Background()

	survey := createTestSurvey("Empty", time.Now())
	if err := db.CreateSurvey(ctx, survey); err != nil {
		t.Fatalf("Failed to create survey: %v", err)
	}

	got, err := db.GetSurvey(ctx, survey.ID)
	if err != nil {
		t.Fatalf("Failed to get survey: %v", err)
	}
	if len(got.Responses) != 0 {
		t.Errorf("Expected no responses, got %d", len(got.Responses))
	}
}

func TestListSurveys(t *testing.T) {
	db := setupTestDB(t, "survey_list")
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"oldest", "middle", "newest"} {
		s := createTestSurvey(name, base.AddDate(0, 0, i), 8)
		if err := db.CreateSurvey(ctx, s); err != nil {
			t.Fatalf("Failed to create survey: %v", err)
		}
	}

	all, err := db.ListSurveys(ctx, 10, 0)
	if err != nil {
		t.Fatalf("Failed to list surveys: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 surveys, got %d", len(all))
	}
	if all[0].Name != "newest" || all[2].Name != "oldest" {
		t.Errorf("Expected newest first, got %s..%s", all[0].Name, all[2].Name)
	}
	if all[0].ResponseCount != 1 {
		t.Errorf("Expected response count 1, got %d", all[0].ResponseCount)
	}

	page, err := db.ListSurveys(ctx, 1, 1)
	if err != nil {
		t.Fatalf("Failed to list page: %v", err)
	}
	if len(page) != 1 || page[0].Name != "middle" {
		t.Errorf("Expected middle survey on page 2, got %+v", page)
	}
}

func TestDeleteSurveyCascades(t *testing.T) {
	db := setupTestDB(t, "survey_delete")
	ctx := context.Background()

	survey := createTestSurvey("Doomed", time.Now(), 3)
	if err := db.CreateSurvey(ctx, survey); err != nil {
		t.Fatalf("Failed to create survey: %v", err)
	}
	rec := &models.SurveyAnalysisRecord{Result: analyzer.SurveyAnalysis{SurveyID: survey.ID}}
	if err := db.SaveSurveyAnalysis(ctx, rec); err != nil {
		t.Fatalf("Failed to save analysis: %v", err)
	}

	if err := db.DeleteSurvey(ctx, survey.ID); err != nil {
		t.Fatalf("Failed to delete survey: %v", err)
	}

	for _, table := range []string{"survey_responses", "survey_answers", "survey_analyses"} {
		var n int
		if err := db.conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Fatalf("Failed to count %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("Expected %s to be empty after delete, got %d rows", table, n)
		}
	}

	if err := db.DeleteSurvey(ctx, survey.ID); !errors.Is(err, ErrSurveyNotFound) {
		t.Errorf("Expected ErrSurveyNotFound on second delete, got %v", err)
	}
}

func TestLatestHealthStatus(t *testing.T) {
	db := setupTestDB(t, "health")
	ctx := context.Background()

	status, err := db.LatestHealthStatus(ctx, "cust-1")
	if err != nil {
		t.Fatalf("Unexpected error for unknown customer: %v", err)
	}
	if status != analyzer.HealthUnknown {
		t.Errorf("Expected unknown status, got %q", status)
	}

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	scores := []models.HealthScore{
		{CustomerID: "cust-1", Status: analyzer.HealthHealthy, CreatedAt: base},
		{CustomerID: "cust-1", Status: analyzer.HealthCritical, Score: floatPtr(12), CreatedAt: base.Add(time.Hour)},
		{CustomerID: "cust-2", Status: analyzer.HealthAtRisk, CreatedAt: base.Add(2 * time.Hour)},
	}
	for i := range scores {
		if err := db.SaveHealthScore(ctx, &scores[i]); err != nil {
			t.Fatalf("Failed to save health score: %v", err)
		}
	}

	status, err = db.LatestHealthStatus(ctx, "cust-1")
	if err != nil {
		t.Fatalf("Failed to get health status: %v", err)
	}
	if status != analyzer.HealthCritical {
		t.Errorf("Expected critical, got %q", status)
	}

	var provider analyzer.HealthStatusProvider = db
	status, _ = provider.LatestHealthStatus(ctx, "cust-2")
	if status != analyzer.HealthAtRisk {
		t.Errorf("Expected at_risk, got %q", status)
	}
}

func TestSaveHealthScoreRejectsInvalidStatus(t *testing.T) {
	db := setupTestDB(t, "health_invalid")
	ctx := context.Background()

	for _, status := range []analyzer.HealthStatus{analyzer.HealthUnknown, "thriving"} {
		err := db.SaveHealthScore(ctx, &models.HealthScore{CustomerID: "c", Status: status})
		if err == nil {
			t.Errorf("Expected error for status %q", status)
		}
	}
}

func TestSurveyAnalysisRoundTrip(t *testing.T) {
	db := setupTestDB(t, "analysis")
	ctx := context.Background()

	survey := createTestSurvey("Analyzed", time.Now(), 10, 2)
	if err := db.CreateSurvey(ctx, survey); err != nil {
		t.Fatalf("Failed to create survey: %v", err)
	}

	result := analyzer.New().AnalyzeSurvey(ctx, survey.AnalyzerInput())
	older := &models.SurveyAnalysisRecord{Result: result, CreatedAt: time.Now().Add(-time.Hour)}
	newer := &models.SurveyAnalysisRecord{Result: result}
	for _, rec := range []*models.SurveyAnalysisRecord{older, newer} {
		if err := db.SaveSurveyAnalysis(ctx, rec); err != nil {
			t.Fatalf("Failed to save analysis: %v", err)
		}
	}
	if newer.SurveyID != survey.ID {
		t.Errorf("Expected survey id taken from result, got %q", newer.SurveyID)
	}

	latest, err := db.GetLatestSurveyAnalysis(ctx, survey.ID)
	if err != nil {
		t.Fatalf("Failed to get latest analysis: %v", err)
	}
	if latest.ID != newer.ID {
		t.Errorf("Expected latest analysis %s, got %s", newer.ID, latest.ID)
	}
	if latest.Result.AnalyzedResponses != 2 || latest.Result.NPS == nil || *latest.Result.NPS.Score != 0 {
		t.Errorf("Analysis result not preserved: %+v", latest.Result)
	}
	if latest.EnrichedAt != nil || latest.AISummary != "" {
		t.Error("Expected analysis without enrichment")
	}

	themes := []models.Theme{{Theme: "Support", Sentiment: "positive", Evidence: "helpful"}}
	if err := db.UpdateAnalysisEnrichment(ctx, newer.ID, "Customers like support.", themes); err != nil {
		t.Fatalf("Failed to enrich analysis: %v", err)
	}

	enriched, err := db.GetSurveyAnalysis(ctx, newer.ID)
	if err != nil {
		t.Fatalf("Failed to get analysis: %v", err)
	}
	if enriched.AISummary != "Customers like support." {
		t.Errorf("Unexpected summary %q", enriched.AISummary)
	}
	if len(enriched.AIThemes) != 1 || enriched.AIThemes[0].Theme != "Support" {
		t.Errorf("Unexpected themes %+v", enriched.AIThemes)
	}
	if enriched.EnrichedAt == nil {
		t.Error("Expected enriched_at to be set")
	}
}

func TestAnalysisNotFound(t *testing.T) {
	db := setupTestDB(t, "analysis_missing")
	ctx := context.Background()

	if _, err := db.GetSurveyAnalysis(ctx, "missing"); !errors.Is(err, ErrAnalysisNotFound) {
		t.Errorf("Expected ErrAnalysisNotFound, got %v", err)
	}
	if _, err := db.GetLatestSurveyAnalysis(ctx, "missing"); !errors.Is(err, ErrAnalysisNotFound) {
		t.Errorf("Expected ErrAnalysisNotFound, got %v", err)
	}
	if err := db.UpdateAnalysisEnrichment(ctx, "missing", "x", nil); !errors.Is(err, ErrAnalysisNotFound) {
		t.Errorf("Expected ErrAnalysisNotFound, got %v", err)
	}
}

func TestSurveyMetrics(t *testing.T) {
	db := setupTestDB(t, "metrics")
	ctx := context.Background()

	now := time.Now().UTC()
	ancient := createTestSurvey("ancient", now.AddDate(0, 0, -200), 10)
	first := createTestSurvey("first", now.AddDate(0, 0, -60), 10, 10, 3, 8)
	second := createTestSurvey("second", now.AddDate(0, 0, -5), 10, 9, 9, 2)
	csat := createTestSurvey("csat", now.AddDate(0, 0, -1), 4)
	csat.SurveyType = analyzer.SurveyTypeCSAT

	var ids []string
	for _, s := range []*models.Survey{second, ancient, csat, first} {
		if err := db.CreateSurvey(ctx, s); err != nil {
			t.Fatalf("Failed to create survey: %v", err)
		}
		ids = append(ids, s.ID)
	}

	metrics, err := db.SurveyMetrics(ctx, ids, 90)
	if err != nil {
		t.Fatalf("Failed to get metrics: %v", err)
	}
	if len(metrics) != 3 {
		t.Fatalf("Expected 3 surveys in window, got %d", len(metrics))
	}
	if metrics[0].Name != "first" || metrics[1].Name != "second" || metrics[2].Name != "csat" {
		t.Errorf("Expected oldest first, got %s, %s, %s", metrics[0].Name, metrics[1].Name, metrics[2].Name)
	}

	// first: 2 promoters, 1 passive, 1 detractor
	if metrics[0].NPSScore == nil || *metrics[0].NPSScore != 25 {
		t.Errorf("Expected first NPS 25, got %v", metrics[0].NPSScore)
	}
	// second: 3 promoters, 1 detractor
	if metrics[1].NPSScore == nil || *metrics[1].NPSScore != 50 {
		t.Errorf("Expected second NPS 50, got %v", metrics[1].NPSScore)
	}
	if metrics[2].NPSScore != nil {
		t.Errorf("Expected no NPS for csat survey, got %v", *metrics[2].NPSScore)
	}
	if metrics[0].AvgScore == nil || *metrics[0].AvgScore != 7.75 {
		t.Errorf("Expected avg 7.75, got %v", metrics[0].AvgScore)
	}
	if metrics[1].ResponseCount != 4 {
		t.Errorf("Expected 4 responses, got %d", metrics[1].ResponseCount)
	}

	report := analyzer.GetTrend(metrics)
	if report == nil || report.NPSTrend == nil || report.NPSTrend.Direction != analyzer.TrendImproving {
		t.Errorf("Expected improving NPS trend, got %+v", report)
	}
}

func TestSurveyMetricsInvalidWindow(t *testing.T) {
	db := setupTestDB(t, "metrics_window")

	_, err := db.SurveyMetrics(context.Background(), []string{"a"}, -1)
	if !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("Expected ErrInvalidWindow, got %v", err)
	}

	metrics, err := db.SurveyMetrics(context.Background(), nil, 30)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(metrics) != 0 {
		t.Errorf("Expected no metrics, got %d", len(metrics))
	}
}
