package analyzer

import (
	"fmt"
	"strings"
)

const (
	positiveSummaryPct = 60
	negativeSummaryPct = 40
	summaryThemes      = 3
)

// ExecutiveSummary writes a short plain-text summary of a survey analysis
func ExecutiveSummary(a SurveyAnalysis) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Analysis of %d survey responses (%d with text feedback).",
		a.TotalResponses, a.AnalyzedResponses))

	if a.NPS != nil && a.NPS.Score != nil {
		score := *a.NPS.Score
		word := "concerning"
		switch {
		case score >= 50:
			word = "excellent"
		case score >= 0:
			word = "good"
		}
		parts = append(parts, fmt.Sprintf("NPS score of %d indicates %s customer sentiment.", score, word))
	}

	d := a.SentimentDistribution
	switch {
	case d.PositivePct >= positiveSummaryPct:
		parts = append(parts, fmt.Sprintf("Overall sentiment is positive (%g%% positive responses).", d.PositivePct))
	case d.NegativePct >= negativeSummaryPct:
		parts = append(parts, fmt.Sprintf("Significant negative sentiment detected (%g%% negative responses).", d.NegativePct))
	default:
		parts = append(parts, "Sentiment is mixed across responses.")
	}

	if n := len(a.UrgentIssues); n > 0 {
		parts = append(parts, fmt.Sprintf("ATTENTION: %d responses flagged as requiring immediate attention.", n))
	}

	if n := len(a.ChurnRisks); n > 0 {
		parts = append(parts, fmt.Sprintf("%d customers identified with elevated churn risk.", n))
	}

	if len(a.Topics) > 0 {
		var names []string
		for i, t := range a.Topics {
			if i == summaryThemes {
				break
			}
			names = append(names, t.DisplayName)
		}
		parts = append(parts, fmt.Sprintf("Key themes: %s.", strings.Join(names, ", ")))
	}

	if n := len(a.CompetitorMentions); n > 0 {
		parts = append(parts, fmt.Sprintf("%d competitor/alternative mentions detected.", n))
	}

	return strings.Join(parts, " ")
}
