package analyzer

import (
	"fmt"
	"sort"
)

// Recommendation is an action item for the customer success team
type Recommendation struct {
	Action   string `json:"action"`
	Priority Level  `json:"priority"`
	Reason   string `json:"reason"`
	// Target names who or what the action is for; CustomerIDs is set
	// instead when the action targets specific customers
	Target          string   `json:"target,omitempty"`
	CustomerIDs     []string `json:"customer_ids,omitempty"`
	EstimatedImpact string   `json:"estimated_impact"`
	SuggestedOwner  string   `json:"suggested_owner"`
}

const (
	maxOutreachTargets   = 5
	maxCallbackTargets   = 10
	minCompetitorSignals = 3
	minNegativeTopic     = 3
	maxTopicActions      = 3
	testimonialThreshold = 50
)

// Recommend derives prioritized action items from a survey analysis. Rules
// are evaluated in a fixed order and the result is stably sorted by
// priority, critical first.
func Recommend(a SurveyAnalysis) []Recommendation {
	recs := []Recommendation{}

	var critical, high []string
	for _, issue := range a.UrgentIssues {
		switch issue.Severity {
		case LevelCritical:
			critical = append(critical, issue.CustomerID)
		case LevelHigh:
			high = append(high, issue.CustomerID)
		}
	}

	if len(critical) > 0 {
		recs = append(recs, Recommendation{
			Action:          "immediate_outreach",
			Priority:        LevelCritical,
			Reason:          fmt.Sprintf("%d critical issues detected requiring immediate attention", len(critical)),
			CustomerIDs:     firstN(critical, maxOutreachTargets),
			EstimatedImpact: "Prevent immediate churn risk",
			SuggestedOwner:  "CSM",
		})
	}

	if len(high) > 0 {
		recs = append(recs, Recommendation{
			Action:          "priority_callback",
			Priority:        LevelHigh,
			Reason:          fmt.Sprintf("%d high-priority issues identified", len(high)),
			CustomerIDs:     firstN(high, maxCallbackTargets),
			EstimatedImpact: "Address concerns before escalation",
			SuggestedOwner:  "CSM",
		})
	}

	if len(a.ChurnRisks) > 0 {
		ids := make([]string, 0, len(a.ChurnRisks))
		for _, c := range a.ChurnRisks {
			ids = append(ids, c.CustomerID)
		}
		recs = append(recs, Recommendation{
			Action:          "retention_campaign",
			Priority:        LevelHigh,
			Reason:          fmt.Sprintf("%d customers identified with high churn risk", len(a.ChurnRisks)),
			CustomerIDs:     firstN(ids, maxCallbackTargets),
			EstimatedImpact: "Reduce churn probability",
			SuggestedOwner:  "Retention Team",
		})
	}

	if len(a.CompetitorMentions) >= minCompetitorSignals {
		recs = append(recs, Recommendation{
			Action:          "competitive_analysis",
			Priority:        LevelHigh,
			Reason:          fmt.Sprintf("%d competitor/alternative mentions detected", len(a.CompetitorMentions)),
			Target:          "Product & Marketing Teams",
			EstimatedImpact: "Understand competitive positioning gaps",
			SuggestedOwner:  "Product Marketing",
		})
	}

	topicActions := 0
	for _, t := range a.Topics {
		if topicActions == maxTopicActions {
			break
		}
		if t.Sentiment != SentimentNegative || t.Count < minNegativeTopic {
			continue
		}
		topicActions++
		recs = append(recs, Recommendation{
			Action:          "topic_improvement",
			Priority:        LevelMedium,
			Reason:          fmt.Sprintf("Negative feedback on %s (%d mentions)", t.DisplayName, t.Count),
			Target:          t.Topic.String(),
			EstimatedImpact: fmt.Sprintf("Address %g%% of negative feedback", t.Percentage),
			SuggestedOwner:  t.Topic.Owner(),
		})
	}

	if a.SentimentDistribution.PositivePct >= testimonialThreshold {
		recs = append(recs, Recommendation{
			Action:          "testimonial_collection",
			Priority:        LevelLow,
			Reason:          fmt.Sprintf("High positive sentiment (%g%%) - opportunity for testimonials", a.SentimentDistribution.PositivePct),
			Target:          "Promoters",
			EstimatedImpact: "Generate social proof and referrals",
			SuggestedOwner:  "Marketing",
		})
	}

	if a.NPS != nil && a.NPS.Detractors > 0 {
		recs = append(recs, Recommendation{
			Action:          "detractor_recovery",
			Priority:        LevelHigh,
			Reason:          fmt.Sprintf("%d NPS detractors identified", a.NPS.Detractors),
			Target:          "Detractor customers",
			EstimatedImpact: "Convert detractors to passives/promoters",
			SuggestedOwner:  "CSM",
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority.rank() < recs[j].Priority.rank()
	})
	return recs
}

func firstN(ids []string, n int) []string {
	if len(ids) > n {
		return ids[:n]
	}
	return ids
}
