package analyzer

import (
	"math"
	"unicode/utf8"
)

// SentimentLabel classifies a sentiment score
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
	// SentimentMixed is only used for topic-level sentiment
	SentimentMixed SentimentLabel = "mixed"
)

// Level is a four-step severity scale shared by urgency, churn risk and
// recommendation priority
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// rank orders levels for sorting, most severe first
func (l Level) rank() int {
	switch l {
	case LevelCritical:
		return 0
	case LevelHigh:
		return 1
	case LevelMedium:
		return 2
	case LevelLow:
		return 3
	}
	return 4
}

// AtLeast reports whether l is as severe as other
func (l Level) AtLeast(other Level) bool {
	return l.rank() <= other.rank()
}

// Evidence is one sentiment-bearing token found in a text
type Evidence struct {
	Term        string  `json:"term"`
	BaseWeight  float64 `json:"base_weight"`
	FinalWeight float64 `json:"final_weight"`
	Negated     bool    `json:"negated"`
	Intensified bool    `json:"intensified"`
}

// SentimentResult is the sentiment of a text span
type SentimentResult struct {
	Label      SentimentLabel `json:"label"`
	Score      float64        `json:"score"`      // -1.0 to 1.0
	Confidence float64        `json:"confidence"` // 0.0 to 1.0
	// RatingInfluence is the normalized rating blended into Score, if any
	RatingInfluence *float64   `json:"rating_influence,omitempty"`
	Evidence        []Evidence `json:"evidence"`
}

// UrgencyResult is the need-for-attention classification of a text span
type UrgencyResult struct {
	Level   Level    `json:"level"`
	Score   int      `json:"score"` // 0-100
	Reasons []string `json:"reasons"`
}

// RiskFactor is one contributor to a churn risk score
type RiskFactor struct {
	Name        string `json:"factor"`
	Description string `json:"description"`
	Weight      int    `json:"weight"`
}

// Action is a recommended follow-up for a churn risk
type Action struct {
	Action      string `json:"action"`
	Priority    Level  `json:"priority"`
	Description string `json:"description"`
}

// ChurnRiskResult is the churn assessment of one customer response
type ChurnRiskResult struct {
	CustomerID         string       `json:"customer_id"`
	RiskScore          int          `json:"risk_score"` // 0-100
	RiskLevel          Level        `json:"risk_level"`
	Factors            []RiskFactor `json:"factors"`
	RecommendedActions []Action     `json:"recommended_actions"`
}

// TopicMatch is a topic found across a corpus of texts
type TopicMatch struct {
	Topic          Topic          `json:"topic"`
	DisplayName    string         `json:"display_name"`
	Count          int            `json:"count"`
	Percentage     float64        `json:"percentage"`
	Sentiment      SentimentLabel `json:"sentiment"` // positive, negative or mixed
	SentimentScore float64        `json:"sentiment_score"`
	Examples       []string       `json:"examples"`
}

// CompetitorMention is a competitor or switching reference in a text
type CompetitorMention struct {
	Snippet        string `json:"text_snippet"`
	CompetitorType string `json:"competitor_type"`
	Context        string `json:"context"`
	ResponseIndex  int    `json:"response_index"`
	ResponseID     string `json:"response_id,omitempty"`
}

// ResponseInput is one survey response supplied by the caller
type ResponseInput struct {
	ResponseID   string   `json:"response_id"`
	CustomerID   string   `json:"customer_id"`
	Text         string   `json:"text"`
	Ratings      []int    `json:"ratings,omitempty"`
	OverallScore *float64 `json:"overall_score,omitempty"`
	// MaxRating is the scale of Ratings; zero means 10
	MaxRating int `json:"max_rating,omitempty"`
}

func (in ResponseInput) maxRating() int {
	if in.MaxRating > 0 {
		return in.MaxRating
	}
	return defaultMaxRating
}

// churnRating is the rating fed to the churn scorer: the overall score when
// present, else the mean of the numeric ratings
func (in ResponseInput) churnRating() *float64 {
	if in.OverallScore != nil {
		v := *in.OverallScore
		return &v
	}
	if len(in.Ratings) == 0 {
		return nil
	}
	avg := mean(in.Ratings)
	return &avg
}

// hasVeryLowScore reports whether the overall score or any rating is <= 3
func (in ResponseInput) hasVeryLowScore() bool {
	if in.OverallScore != nil && *in.OverallScore <= veryLowScore {
		return true
	}
	for _, r := range in.Ratings {
		if float64(r) <= veryLowScore {
			return true
		}
	}
	return false
}

// AnalysisResult is the analysis of a single response
type AnalysisResult struct {
	ResponseID      string          `json:"response_id"`
	CustomerID      string          `json:"customer_id"`
	Sentiment       SentimentResult `json:"sentiment"`
	Topics          []Topic         `json:"topics"`
	Urgency         UrgencyResult   `json:"urgency"`
	ChurnRisk       ChurnRiskResult `json:"churn_risk"`
	KeyPhrases      []string        `json:"key_phrases"`
	TextLength      int             `json:"text_length"`
	HasTextFeedback bool            `json:"has_text_feedback"`
}

func mean(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// truncate returns at most n characters of s
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
