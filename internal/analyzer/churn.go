package analyzer

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// HealthStatus is a customer's most recent health classification
type HealthStatus string

const (
	HealthUnknown  HealthStatus = ""
	HealthHealthy  HealthStatus = "healthy"
	HealthAtRisk   HealthStatus = "at_risk"
	HealthCritical HealthStatus = "critical"
	HealthChurned  HealthStatus = "churned"
)

// Valid reports whether s is a known status or unknown
func (s HealthStatus) Valid() bool {
	switch s {
	case HealthUnknown, HealthHealthy, HealthAtRisk, HealthCritical, HealthChurned:
		return true
	}
	return false
}

// HealthStatusProvider looks up the latest health status of a customer. An
// unknown customer is HealthUnknown with a nil error. Implementations must
// be safe for concurrent use.
type HealthStatusProvider interface {
	LatestHealthStatus(ctx context.Context, customerID string) (HealthStatus, error)
}

// HealthStatusFunc adapts a function to HealthStatusProvider
type HealthStatusFunc func(ctx context.Context, customerID string) (HealthStatus, error)

// LatestHealthStatus calls f
func (f HealthStatusFunc) LatestHealthStatus(ctx context.Context, customerID string) (HealthStatus, error) {
	return f(ctx, customerID)
}

// ChurnInput is the data the churn scorer needs for one customer response
type ChurnInput struct {
	CustomerID string
	Text       string
	// Rating is the response's score on a 0-10 scale, if any
	Rating *float64
	Health HealthStatus
}

const (
	churnKeywordScale   = 30
	competitorRisk      = 15
	criticalHealthRisk  = 15
	atRiskHealthRisk    = 10
	maxReportedKeywords = 3
)

// ChurnRisk combines rating, churn language, negative sentiment, competitor
// mentions and health status into a 0-100 risk score
func (r *Registry) ChurnRisk(in ChurnInput) ChurnRiskResult {
	var (
		total   float64
		factors = []RiskFactor{}
	)
	add := func(name, description string, weight float64) {
		total += weight
		factors = append(factors, RiskFactor{Name: name, Description: description, Weight: int(math.Round(weight))})
	}

	if in.Rating != nil {
		rating := *in.Rating
		switch {
		case rating <= 3:
			add("very_low_score", fmt.Sprintf("Very low rating of %g/10", rating), 40)
		case rating <= 5:
			add("low_score", fmt.Sprintf("Low rating of %g/10", rating), 30)
		case rating <= 6:
			add("below_average_score", fmt.Sprintf("Below average rating of %g/10", rating), 20)
		}
	}

	if strings.TrimSpace(in.Text) != "" {
		var (
			keywordRisk float64
			found       []string
		)
		for _, kw := range r.churn {
			if kw.re.MatchString(in.Text) {
				keywordRisk = math.Max(keywordRisk, kw.weight*churnKeywordScale)
				found = append(found, kw.term)
			}
		}
		if len(found) > 0 {
			if len(found) > maxReportedKeywords {
				found = found[:maxReportedKeywords]
			}
			add("churn_keywords", "Detected churn-related language: "+strings.Join(found, ", "), keywordRisk)
		}

		score := r.Sentiment(in.Text).Score
		var sentimentRisk float64
		switch {
		case score < -0.5:
			sentimentRisk = 20
		case score < -0.25:
			sentimentRisk = 15
		case score < 0:
			sentimentRisk = 10
		}
		if sentimentRisk > 0 {
			add("negative_sentiment", fmt.Sprintf("Negative sentiment detected (score: %.2f)", score), sentimentRisk)
		}

		if len(r.CompetitorMentions([]string{in.Text})) > 0 {
			add("competitor_mention", "Mentioned competitor or alternative solutions", competitorRisk)
		}
	}

	switch in.Health {
	case HealthCritical:
		add("critical_health", "Customer is in critical health status", criticalHealthRisk)
	case HealthAtRisk:
		add("at_risk_health", "Customer is at risk health status", atRiskHealthRisk)
	}

	score := int(math.Round(math.Min(100, total)))
	level := ChurnLevelForScore(score)

	return ChurnRiskResult{
		CustomerID:         in.CustomerID,
		RiskScore:          score,
		RiskLevel:          level,
		Factors:            factors,
		RecommendedActions: churnActions(level, factors),
	}
}

// ChurnLevelForScore maps a 0-100 churn risk score to a level
func ChurnLevelForScore(score int) Level {
	switch {
	case score >= 75:
		return LevelCritical
	case score >= 50:
		return LevelHigh
	case score >= 25:
		return LevelMedium
	default:
		return LevelLow
	}
}

func churnActions(level Level, factors []RiskFactor) []Action {
	has := func(name string) bool {
		for _, f := range factors {
			if f.Name == name {
				return true
			}
		}
		return false
	}

	actions := []Action{}
	if level.AtLeast(LevelHigh) {
		actions = append(actions, Action{"immediate_callback", LevelHigh, "Schedule immediate callback with customer success manager"})
	}
	if has("competitor_mention") {
		actions = append(actions, Action{"competitive_review", LevelHigh, "Conduct competitive comparison and prepare retention offer"})
	}
	if has("churn_keywords") {
		actions = append(actions, Action{"escalation", LevelHigh, "Escalate to retention team for proactive outreach"})
	}
	if has("negative_sentiment") {
		actions = append(actions, Action{"service_recovery", LevelMedium, "Initiate service recovery process to address concerns"})
	}
	if level == LevelCritical {
		actions = append(actions, Action{"executive_sponsor", LevelHigh, "Consider executive sponsor involvement for high-value account"})
	}
	return actions
}
