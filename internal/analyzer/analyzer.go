package analyzer

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// Survey types
const (
	SurveyTypeNPS  = "nps"
	SurveyTypeCSAT = "csat"
	SurveyTypeCES  = "ces"
)

// StatusNoResponses marks an analysis of a survey without responses
const StatusNoResponses = "no_responses"

const (
	defaultConcurrency = 8
	maxKeyPhrases      = 5
	minPhraseLength    = 20
	maxPhraseLength    = 200
	snippetLength      = 300
	noTextSnippet      = "[No text feedback]"
)

// Analyzer runs the feedback pipeline over responses and surveys. It is safe
// for concurrent use once configured.
type Analyzer struct {
	registry    *Registry
	health      HealthStatusProvider
	concurrency int
	logger      *slog.Logger
}

// New creates a new Analyzer using the default registry and no health signal
func New() *Analyzer {
	return &Analyzer{
		registry:    DefaultRegistry(),
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
}

// NewWithHealthProvider creates a new Analyzer that consults provider for
// each customer's latest health status
func NewWithHealthProvider(provider HealthStatusProvider) *Analyzer {
	a := New()
	a.health = provider
	return a
}

// SetConcurrency bounds how many responses AnalyzeSurvey analyzes at once.
// Values below 1 are ignored.
func (a *Analyzer) SetConcurrency(n int) {
	if n > 0 {
		a.concurrency = n
	}
}

// SetLogger sets the logger used for health lookup failures
func (a *Analyzer) SetLogger(logger *slog.Logger) {
	if logger != nil {
		a.logger = logger
	}
}

// AnalyzeResponse runs sentiment, topic, urgency and churn analysis on one
// response. A failed health lookup is treated as no health signal.
func (a *Analyzer) AnalyzeResponse(ctx context.Context, in ResponseInput) AnalysisResult {
	r := a.registry
	text := in.Text

	sentiment := r.Sentiment(text).BlendRatings(in.Ratings, in.maxRating())

	churn := r.ChurnRisk(ChurnInput{
		CustomerID: in.CustomerID,
		Text:       text,
		Rating:     in.churnRating(),
		Health:     a.lookupHealth(ctx, in.CustomerID),
	})

	return AnalysisResult{
		ResponseID:      in.ResponseID,
		CustomerID:      in.CustomerID,
		Sentiment:       sentiment,
		Topics:          r.DetectTopics(text),
		Urgency:         r.Urgency(text).withLowScore(in.OverallScore),
		ChurnRisk:       churn,
		KeyPhrases:      r.KeyPhrases(text),
		TextLength:      utf8.RuneCountInString(text),
		HasTextFeedback: strings.TrimSpace(text) != "",
	}
}

func (a *Analyzer) lookupHealth(ctx context.Context, customerID string) HealthStatus {
	if a.health == nil || customerID == "" {
		return HealthUnknown
	}
	status, err := a.health.LatestHealthStatus(ctx, customerID)
	if err != nil {
		a.logger.Warn("health status lookup failed", "customer_id", customerID, "error", err)
		return HealthUnknown
	}
	return status
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// KeyPhrases returns up to five sentences of 20 to 200 characters that
// contain at least one sentiment word
func (r *Registry) KeyPhrases(text string) []string {
	phrases := []string{}
	for _, sentence := range sentenceSplit.Split(text, -1) {
		sentence = strings.TrimSpace(sentence)
		n := utf8.RuneCountInString(sentence)
		if n <= minPhraseLength || n >= maxPhraseLength {
			continue
		}
		for _, tok := range tokenize(sentence) {
			if _, ok := r.sentimentWeight(tok); ok {
				phrases = append(phrases, sentence)
				break
			}
		}
		if len(phrases) == maxKeyPhrases {
			break
		}
	}
	return phrases
}

// NPSCounts are pre-computed promoter, passive and detractor totals
type NPSCounts struct {
	Promoters  int `json:"promoters"`
	Passives   int `json:"passives"`
	Detractors int `json:"detractors"`
}

// NPSBreakdown is the Net Promoter Score of a survey
type NPSBreakdown struct {
	Score         *int    `json:"nps_score"`
	Promoters     int     `json:"promoters"`
	PromotersPct  float64 `json:"promoters_pct"`
	Passives      int     `json:"passives"`
	PassivesPct   float64 `json:"passives_pct"`
	Detractors    int     `json:"detractors"`
	DetractorsPct float64 `json:"detractors_pct"`
	Total         int     `json:"total"`
}

// CalculateNPS classifies respondents into promoters (9-10), passives (7-8)
// and detractors (0-6). Pre-computed counts are used when they sum above
// zero; otherwise each response's overall score is classified.
func CalculateNPS(counts *NPSCounts, responses []ResponseInput) NPSBreakdown {
	var c NPSCounts
	if counts != nil {
		c = *counts
	}
	if c.Promoters+c.Passives+c.Detractors == 0 {
		c = NPSCounts{}
		for _, r := range responses {
			if r.OverallScore == nil {
				continue
			}
			switch s := *r.OverallScore; {
			case s >= 9:
				c.Promoters++
			case s >= 7:
				c.Passives++
			default:
				c.Detractors++
			}
		}
	}

	total := c.Promoters + c.Passives + c.Detractors
	b := NPSBreakdown{Promoters: c.Promoters, Passives: c.Passives, Detractors: c.Detractors, Total: total}
	if total == 0 {
		return b
	}

	// halves round to even: 1 promoter of 8 is 12
	score := int(math.RoundToEven(float64(c.Promoters-c.Detractors) / float64(total) * 100))
	b.Score = &score
	b.PromotersPct = round(float64(c.Promoters)/float64(total)*100, 1)
	b.PassivesPct = round(float64(c.Passives)/float64(total)*100, 1)
	b.DetractorsPct = round(float64(c.Detractors)/float64(total)*100, 1)
	return b
}

// SentimentDistribution counts response sentiment labels
type SentimentDistribution struct {
	Positive      int     `json:"positive"`
	PositivePct   float64 `json:"positive_pct"`
	Neutral       int     `json:"neutral"`
	NeutralPct    float64 `json:"neutral_pct"`
	Negative      int     `json:"negative"`
	NegativePct   float64 `json:"negative_pct"`
	AverageScore  float64 `json:"average_score"`
	TotalAnalyzed int     `json:"total_analyzed"`
}

func distribution(results []AnalysisResult) SentimentDistribution {
	var d SentimentDistribution
	var sum float64
	for _, r := range results {
		switch r.Sentiment.Label {
		case SentimentPositive:
			d.Positive++
		case SentimentNegative:
			d.Negative++
		default:
			d.Neutral++
		}
		sum += r.Sentiment.Score
	}

	d.TotalAnalyzed = len(results)
	divisor := float64(max(len(results), 1))
	d.PositivePct = round(float64(d.Positive)/divisor*100, 1)
	d.NeutralPct = round(float64(d.Neutral)/divisor*100, 1)
	d.NegativePct = round(float64(d.Negative)/divisor*100, 1)
	if len(results) > 0 {
		d.AverageScore = round(sum/float64(len(results)), 3)
	}
	return d
}

// UrgentIssue is a response flagged for immediate follow-up
type UrgentIssue struct {
	ResponseID   string   `json:"response_id"`
	CustomerID   string   `json:"customer_id"`
	Reason       string   `json:"reason"`
	Severity     Level    `json:"severity"`
	UrgencyScore int      `json:"urgency_score"`
	Snippet      string   `json:"text_snippet"`
	OverallScore *float64 `json:"overall_score,omitempty"`
}

// SurveyInput is a survey's responses as supplied by the caller
type SurveyInput struct {
	SurveyID   string `json:"survey_id"`
	SurveyName string `json:"survey_name,omitempty"`
	SurveyType string `json:"survey_type"`
	// Responses are the complete responses to analyze
	Responses []ResponseInput `json:"responses"`
	// TotalResponses counts every response including incomplete ones; zero
	// means len(Responses)
	TotalResponses int        `json:"total_responses,omitempty"`
	NPSCounts      *NPSCounts `json:"nps_counts,omitempty"`
}

// SurveyAnalysis is the aggregate analysis of a survey
type SurveyAnalysis struct {
	SurveyID               string                `json:"survey_id"`
	SurveyName             string                `json:"survey_name,omitempty"`
	SurveyType             string                `json:"survey_type,omitempty"`
	Status                 string                `json:"status,omitempty"`
	Message                string                `json:"message,omitempty"`
	TotalResponses         int                   `json:"total_responses"`
	AnalyzedResponses      int                   `json:"analyzed_responses"`
	SentimentDistribution  SentimentDistribution `json:"sentiment_distribution"`
	NPS                    *NPSBreakdown         `json:"nps_analysis"`
	Topics                 []TopicMatch          `json:"topics"`
	UrgentIssues           []UrgentIssue         `json:"urgent_issues"`
	UrgentIssuesCount      int                   `json:"urgent_issues_count"`
	ChurnRisks             []ChurnRiskResult     `json:"churn_risks"`
	ChurnRiskCount         int                   `json:"churn_risk_count"`
	CompetitorMentions     []CompetitorMention   `json:"competitor_mentions"`
	CompetitorMentionCount int                   `json:"competitor_mention_count"`
	Recommendations        []Recommendation      `json:"recommendations"`
	ExecutiveSummary       string                `json:"executive_summary"`
	ProcessingTimeMs       int64                 `json:"processing_time_ms"`
	AnalyzedAt             time.Time             `json:"analyzed_at"`
}

// NoResponses reports whether the survey had nothing to analyze
func (s SurveyAnalysis) NoResponses() bool {
	return s.Status == StatusNoResponses
}

// AnalyzeSurvey analyzes every response with text feedback and aggregates
// the results. Responses are analyzed concurrently; the aggregate follows
// input order. A survey without responses yields a no_responses status.
func (a *Analyzer) AnalyzeSurvey(ctx context.Context, in SurveyInput) SurveyAnalysis {
	start := time.Now()

	total := in.TotalResponses
	if total == 0 {
		total = len(in.Responses)
	}
	if total == 0 {
		return SurveyAnalysis{
			SurveyID: in.SurveyID,
			Status:   StatusNoResponses,
			Message:  "No responses to analyze",
		}
	}

	var withText []ResponseInput
	for _, resp := range in.Responses {
		if strings.TrimSpace(resp.Text) != "" {
			withText = append(withText, resp)
		}
	}

	results := make([]AnalysisResult, len(withText))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, resp := range withText {
		g.Go(func() error {
			results[i] = a.AnalyzeResponse(gctx, resp)
			return nil
		})
	}
	_ = g.Wait()

	texts := make([]string, len(withText))
	for i, resp := range withText {
		texts[i] = resp.Text
	}

	out := SurveyAnalysis{
		SurveyID:              in.SurveyID,
		SurveyName:            in.SurveyName,
		SurveyType:            in.SurveyType,
		TotalResponses:        total,
		AnalyzedResponses:     len(withText),
		SentimentDistribution: distribution(results),
		Topics:                a.registry.ExtractTopics(texts),
		UrgentIssues:          a.urgentIssues(in.Responses),
		ChurnRisks:            elevatedChurn(results),
		CompetitorMentions:    a.registry.CompetitorMentions(texts),
	}

	if in.SurveyType == SurveyTypeNPS {
		nps := CalculateNPS(in.NPSCounts, in.Responses)
		out.NPS = &nps
	}

	for i := range out.CompetitorMentions {
		out.CompetitorMentions[i].ResponseID = withText[out.CompetitorMentions[i].ResponseIndex].ResponseID
	}

	out.UrgentIssuesCount = len(out.UrgentIssues)
	out.ChurnRiskCount = len(out.ChurnRisks)
	out.CompetitorMentionCount = len(out.CompetitorMentions)
	out.Recommendations = Recommend(out)
	out.ExecutiveSummary = ExecutiveSummary(out)
	out.ProcessingTimeMs = time.Since(start).Milliseconds()
	out.AnalyzedAt = time.Now().UTC()

	return out
}

// urgentIssues scans responses with text or a very low score and keeps those
// whose urgency is high, critical or scores at least 50
func (a *Analyzer) urgentIssues(responses []ResponseInput) []UrgentIssue {
	issues := []UrgentIssue{}
	for _, resp := range responses {
		hasText := strings.TrimSpace(resp.Text) != ""
		if !hasText && !resp.hasVeryLowScore() {
			continue
		}

		u := a.registry.Urgency(resp.Text).withLowScore(resp.OverallScore)
		if !u.Level.AtLeast(LevelHigh) && u.Score < lowScoreUrgency {
			continue
		}

		snippet := noTextSnippet
		if hasText {
			snippet = truncate(resp.Text, snippetLength)
		}
		issues = append(issues, UrgentIssue{
			ResponseID:   resp.ResponseID,
			CustomerID:   resp.CustomerID,
			Reason:       strings.Join(u.Reasons, "; "),
			Severity:     u.Level,
			UrgencyScore: u.Score,
			Snippet:      snippet,
			OverallScore: resp.OverallScore,
		})
	}

	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].UrgencyScore > issues[j].UrgencyScore
	})
	return issues
}

func elevatedChurn(results []AnalysisResult) []ChurnRiskResult {
	risks := []ChurnRiskResult{}
	for _, r := range results {
		if r.ChurnRisk.RiskLevel.AtLeast(LevelHigh) {
			risks = append(risks, r.ChurnRisk)
		}
	}
	sort.SliceStable(risks, func(i, j int) bool {
		return risks[i].RiskScore > risks[j].RiskScore
	})
	return risks
}
