package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombar/feedbackanalyzer/internal/analyzer"
	"github.com/zombar/feedbackanalyzer/internal/models"
)

// timeLayout has fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

var nowUTC = func() time.Time { return time.Now().UTC() }

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CreateSurvey saves a survey with its responses and answers in one
// transaction. Missing IDs and timestamps are filled in.
func (db *DB) CreateSurvey(ctx context.Context, survey *models.Survey) error {
	if survey.ID == "" {
		survey.ID = uuid.NewString()
	}
	if survey.CreatedAt.IsZero() {
		survey.CreatedAt = nowUTC()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, db.rebind(`
		INSERT INTO surveys (id, name, survey_type, promoters_count, passives_count, detractors_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), survey.ID, survey.Name, survey.SurveyType, survey.PromotersCount, survey.PassivesCount,
		survey.DetractorsCount, formatTime(survey.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert survey: %w", err)
	}

	for i := range survey.Responses {
		resp := &survey.Responses[i]
		if resp.ID == "" {
			resp.ID = uuid.NewString()
		}
		if resp.CreatedAt.IsZero() {
			resp.CreatedAt = survey.CreatedAt
		}
		resp.SurveyID = survey.ID

		var score sql.NullFloat64
		if resp.OverallScore != nil {
			score = sql.NullFloat64{Float64: *resp.OverallScore, Valid: true}
		}
		_, err = tx.ExecContext(ctx, db.rebind(`
			INSERT INTO survey_responses (id, survey_id, position, customer_id, overall_score, is_complete, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`), resp.ID, survey.ID, i, resp.CustomerID, score, boolToInt(resp.IsComplete), formatTime(resp.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert response: %w", err)
		}

		for j := range resp.Answers {
			ans := &resp.Answers[j]
			if ans.ID == "" {
				ans.ID = uuid.NewString()
			}
			var rating sql.NullInt64
			if ans.RatingValue != nil {
				rating = sql.NullInt64{Int64: int64(*ans.RatingValue), Valid: true}
			}
			_, err = tx.ExecContext(ctx, db.rebind(`
				INSERT INTO survey_answers (id, response_id, position, question, text_value, rating_value)
				VALUES (?, ?, ?, ?, ?, ?)
			`), ans.ID, resp.ID, j, ans.Question, ans.TextValue, rating)
			if err != nil {
				return fmt.Errorf("failed to insert answer: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetSurvey retrieves a survey with its responses and answers
func (db *DB) GetSurvey(ctx context.Context, id string) (*models.Survey, error) {
	var (
		survey    models.Survey
		createdAt string
	)
	err := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT id, name, survey_type, promoters_count, passives_count, detractors_count, created_at
		FROM surveys
		WHERE id = ?
	`), id).Scan(&survey.ID, &survey.Name, &survey.SurveyType, &survey.PromotersCount,
		&survey.PassivesCount, &survey.DetractorsCount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSurveyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get survey: %w", err)
	}
	if survey.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	responses, err := db.surveyResponses(ctx, id)
	if err != nil {
		return nil, err
	}
	survey.Responses = responses

	return &survey, nil
}

func (db *DB) surveyResponses(ctx context.Context, surveyID string) ([]models.SurveyResponse, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT id, customer_id, overall_score, is_complete, created_at
		FROM survey_responses
		WHERE survey_id = ?
		ORDER BY position
	`), surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	var (
		responses []models.SurveyResponse
		index     = make(map[string]int)
	)
	for rows.Next() {
		var (
			r         models.SurveyResponse
			score     sql.NullFloat64
			complete  int
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.CustomerID, &score, &complete, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		if score.Valid {
			v := score.Float64
			r.OverallScore = &v
		}
		r.SurveyID = surveyID
		r.IsComplete = complete != 0
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		index[r.ID] = len(responses)
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate responses: %w", err)
	}
	if len(responses) == 0 {
		return nil, nil
	}

	answerRows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT a.id, a.response_id, a.question, a.text_value, a.rating_value
		FROM survey_answers a
		JOIN survey_responses r ON r.id = a.response_id
		WHERE r.survey_id = ?
		ORDER BY r.position, a.position
	`), surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query answers: %w", err)
	}
	defer answerRows.Close()

	for answerRows.Next() {
		var (
			a          models.Answer
			responseID string
			rating     sql.NullInt64
		)
		if err := answerRows.Scan(&a.ID, &responseID, &a.Question, &a.TextValue, &rating); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		if rating.Valid {
			v := int(rating.Int64)
			a.RatingValue = &v
		}
		if i, ok := index[responseID]; ok {
			responses[i].Answers = append(responses[i].Answers, a)
		}
	}
	if err := answerRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate answers: %w", err)
	}

	return responses, nil
}

// ListSurveys returns survey summaries, newest first
func (db *DB) ListSurveys(ctx context.Context, limit, offset int) ([]models.SurveySummary, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT s.id, s.name, s.survey_type, s.created_at,
			(SELECT COUNT(*) FROM survey_responses r WHERE r.survey_id = s.id)
		FROM surveys s
		ORDER BY s.created_at DESC, s.id
		LIMIT ? OFFSET ?
	`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list surveys: %w", err)
	}
	defer rows.Close()

	summaries := []models.SurveySummary{}
	for rows.Next() {
		var (
			s         models.SurveySummary
			createdAt string
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.SurveyType, &createdAt, &s.ResponseCount); err != nil {
			return nil, fmt.Errorf("failed to scan survey: %w", err)
		}
		if s.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate surveys: %w", err)
	}

	return summaries, nil
}

// DeleteSurvey deletes a survey; responses, answers and analyses cascade
func (db *DB) DeleteSurvey(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, db.rebind("DELETE FROM surveys WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete survey: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSurveyNotFound
	}

	return nil
}

// SaveHealthScore records a customer health classification
func (db *DB) SaveHealthScore(ctx context.Context, hs *models.HealthScore) error {
	if !hs.Status.Valid() || hs.Status == analyzer.HealthUnknown {
		return fmt.Errorf("invalid health status %q", hs.Status)
	}
	if hs.ID == "" {
		hs.ID = uuid.NewString()
	}
	if hs.CreatedAt.IsZero() {
		hs.CreatedAt = nowUTC()
	}

	var score sql.NullFloat64
	if hs.Score != nil {
		score = sql.NullFloat64{Float64: *hs.Score, Valid: true}
	}
	_, err := db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO health_scores (id, customer_id, health_status, score, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), hs.ID, hs.CustomerID, string(hs.Status), score, formatTime(hs.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert health score: %w", err)
	}
	return nil
}

// LatestHealthStatus returns the most recent health status of a customer,
// or HealthUnknown when none has been recorded
func (db *DB) LatestHealthStatus(ctx context.Context, customerID string) (analyzer.HealthStatus, error) {
	var status string
	err := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT health_status
		FROM health_scores
		WHERE customer_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`), customerID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return analyzer.HealthUnknown, nil
	}
	if err != nil {
		return analyzer.HealthUnknown, fmt.Errorf("failed to get health status: %w", err)
	}
	return analyzer.HealthStatus(status), nil
}

// SaveSurveyAnalysis stores a survey analysis result
func (db *DB) SaveSurveyAnalysis(ctx context.Context, rec *models.SurveyAnalysisRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = nowUTC()
	}
	if rec.SurveyID == "" {
		rec.SurveyID = rec.Result.SurveyID
	}

	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	var nps sql.NullInt64
	if rec.Result.NPS != nil && rec.Result.NPS.Score != nil {
		nps = sql.NullInt64{Int64: int64(*rec.Result.NPS.Score), Valid: true}
	}

	_, err = db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO survey_analyses (id, survey_id, status, nps_score, urgent_issues_count, churn_risk_count, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), rec.ID, rec.SurveyID, rec.Result.Status, nps, rec.Result.UrgentIssuesCount,
		rec.Result.ChurnRiskCount, string(resultJSON), formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	return nil
}

const analysisColumns = `id, survey_id, result, ai_summary, ai_themes, enriched_at, created_at`

// GetSurveyAnalysis retrieves a stored analysis by ID
func (db *DB) GetSurveyAnalysis(ctx context.Context, id string) (*models.SurveyAnalysisRecord, error) {
	row := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT `+analysisColumns+`
		FROM survey_analyses
		WHERE id = ?
	`), id)
	return scanAnalysis(row)
}

// GetLatestSurveyAnalysis retrieves the most recent analysis of a survey
func (db *DB) GetLatestSurveyAnalysis(ctx context.Context, surveyID string) (*models.SurveyAnalysisRecord, error) {
	row := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT `+analysisColumns+`
		FROM survey_analyses
		WHERE survey_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`), surveyID)
	return scanAnalysis(row)
}

func scanAnalysis(row *sql.Row) (*models.SurveyAnalysisRecord, error) {
	var (
		rec        models.SurveyAnalysisRecord
		resultJSON string
		themesJSON string
		enrichedAt sql.NullString
		createdAt  string
	)
	err := row.Scan(&rec.ID, &rec.SurveyID, &resultJSON, &rec.AISummary, &themesJSON, &enrichedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	if err := json.Unmarshal([]byte(resultJSON), &rec.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}
	if themesJSON != "" {
		if err := json.Unmarshal([]byte(themesJSON), &rec.AIThemes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal themes: %w", err)
		}
	}
	if enrichedAt.Valid {
		t, err := parseTime(enrichedAt.String)
		if err != nil {
			return nil, err
		}
		rec.EnrichedAt = &t
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	return &rec, nil
}

// UpdateAnalysisEnrichment attaches an LLM summary and themes to a stored
// analysis
func (db *DB) UpdateAnalysisEnrichment(ctx context.Context, id, summary string, themes []models.Theme) error {
	themesJSON := ""
	if len(themes) > 0 {
		b, err := json.Marshal(themes)
		if err != nil {
			return fmt.Errorf("failed to marshal themes: %w", err)
		}
		themesJSON = string(b)
	}

	result, err := db.conn.ExecContext(ctx, db.rebind(`
		UPDATE survey_analyses
		SET ai_summary = ?, ai_themes = ?, enriched_at = ?
		WHERE id = ?
	`), summary, themesJSON, formatTime(nowUTC()), id)
	if err != nil {
		return fmt.Errorf("failed to update analysis: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrAnalysisNotFound
	}
	return nil
}

// SurveyMetrics returns per-survey aggregates for the given surveys created
// within the last days days, oldest first. NPS is only computed for NPS
// surveys.
func (db *DB) SurveyMetrics(ctx context.Context, ids []string, days int) ([]analyzer.SurveyMetrics, error) {
	if days < 0 {
		return nil, ErrInvalidWindow
	}
	if len(ids) == 0 {
		return []analyzer.SurveyMetrics{}, nil
	}

	cutoff := nowUTC().AddDate(0, 0, -days)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, formatTime(cutoff))

	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT id
		FROM surveys
		WHERE id IN (`+placeholders+`) AND created_at >= ?
		ORDER BY created_at, id
	`), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query surveys: %w", err)
	}

	var found []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan survey id: %w", err)
		}
		found = append(found, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate surveys: %w", err)
	}

	metrics := make([]analyzer.SurveyMetrics, 0, len(found))
	for _, id := range found {
		survey, err := db.GetSurvey(ctx, id)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, surveyMetrics(survey))
	}
	return metrics, nil
}

func surveyMetrics(s *models.Survey) analyzer.SurveyMetrics {
	m := analyzer.SurveyMetrics{
		SurveyID:      s.ID,
		Name:          s.Name,
		Date:          s.CreatedAt,
		ResponseCount: len(s.Responses),
		AvgScore:      s.AverageScore(),
	}
	if s.SurveyType == analyzer.SurveyTypeNPS {
		in := s.AnalyzerInput()
		responses := make([]analyzer.ResponseInput, 0, len(s.Responses))
		for _, r := range s.Responses {
			responses = append(responses, r.AnalyzerInput())
		}
		if nps := analyzer.CalculateNPS(in.NPSCounts, responses); nps.Score != nil {
			v := float64(*nps.Score)
			m.NPSScore = &v
		}
	}
	return m
}
