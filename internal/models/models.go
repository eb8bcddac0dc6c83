package models

import (
	"strings"
	"time"

	"github.com/zombar/feedbackanalyzer/internal/analyzer"
)

// Survey is a feedback survey with its responses
type Survey struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SurveyType string `json:"survey_type"` // nps, csat, ces
	// Pre-computed NPS totals; all zero means derive from responses
	PromotersCount  int              `json:"promoters_count,omitempty"`
	PassivesCount   int              `json:"passives_count,omitempty"`
	DetractorsCount int              `json:"detractors_count,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	Responses       []SurveyResponse `json:"responses,omitempty"`
}

// SurveySummary is a survey listing entry
type SurveySummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	SurveyType    string    `json:"survey_type"`
	ResponseCount int       `json:"response_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// SurveyResponse is one respondent's submission
type SurveyResponse struct {
	ID           string    `json:"id"`
	SurveyID     string    `json:"survey_id,omitempty"`
	CustomerID   string    `json:"customer_id"`
	OverallScore *float64  `json:"overall_score,omitempty"`
	IsComplete   bool      `json:"is_complete"`
	CreatedAt    time.Time `json:"created_at"`
	Answers      []Answer  `json:"answers"`
}

// Answer is a response to a single question
type Answer struct {
	ID          string `json:"id,omitempty"`
	Question    string `json:"question,omitempty"`
	TextValue   string `json:"text_value,omitempty"`
	RatingValue *int   `json:"rating_value,omitempty"`
}

// Text joins the text answers of a response with single spaces
func (r SurveyResponse) Text() string {
	var parts []string
	for _, a := range r.Answers {
		if a.TextValue != "" {
			parts = append(parts, a.TextValue)
		}
	}
	return strings.Join(parts, " ")
}

// Ratings returns the numeric answers of a response
func (r SurveyResponse) Ratings() []int {
	var out []int
	for _, a := range r.Answers {
		if a.RatingValue != nil {
			out = append(out, *a.RatingValue)
		}
	}
	return out
}

// AnalyzerInput converts a response for the analyzer
func (r SurveyResponse) AnalyzerInput() analyzer.ResponseInput {
	return analyzer.ResponseInput{
		ResponseID:   r.ID,
		CustomerID:   r.CustomerID,
		Text:         r.Text(),
		Ratings:      r.Ratings(),
		OverallScore: r.OverallScore,
	}
}

// AnalyzerInput converts the survey for the analyzer. Only complete
// responses are analyzed, but every response counts toward the total.
func (s *Survey) AnalyzerInput() analyzer.SurveyInput {
	in := analyzer.SurveyInput{
		SurveyID:       s.ID,
		SurveyName:     s.Name,
		SurveyType:     s.SurveyType,
		TotalResponses: len(s.Responses),
	}
	for _, r := range s.Responses {
		if r.IsComplete {
			in.Responses = append(in.Responses, r.AnalyzerInput())
		}
	}
	if s.PromotersCount+s.PassivesCount+s.DetractorsCount > 0 {
		in.NPSCounts = &analyzer.NPSCounts{
			Promoters:  s.PromotersCount,
			Passives:   s.PassivesCount,
			Detractors: s.DetractorsCount,
		}
	}
	return in
}

// AverageScore is the mean overall score of responses that have one
func (s *Survey) AverageScore() *float64 {
	var sum float64
	n := 0
	for _, r := range s.Responses {
		if r.OverallScore != nil {
			sum += *r.OverallScore
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

// HealthScore is a point-in-time customer health classification
type HealthScore struct {
	ID         string                `json:"id"`
	CustomerID string                `json:"customer_id"`
	Status     analyzer.HealthStatus `json:"health_status"`
	Score      *float64              `json:"score,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}

// Theme is an LLM-extracted feedback theme
type Theme struct {
	Theme     string `json:"theme"`
	Sentiment string `json:"sentiment"`
	Evidence  string `json:"evidence"`
}

// SurveyAnalysisRecord is a stored survey analysis, optionally enriched by
// an LLM after the fact
type SurveyAnalysisRecord struct {
	ID         string                  `json:"id"`
	SurveyID   string                  `json:"survey_id"`
	Result     analyzer.SurveyAnalysis `json:"result"`
	AISummary  string                  `json:"ai_summary,omitempty"`
	AIThemes   []Theme                 `json:"ai_themes,omitempty"`
	EnrichedAt *time.Time              `json:"enriched_at,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
}
