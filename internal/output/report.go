package output

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zombar/feedbackanalyzer/internal/analyzer"
)

// maxIssueRows bounds the urgent issue and churn tables
const maxIssueRows = 10

func section(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(StyleHeader.Render(title))
	sb.WriteString("\n")
}

func metric(sb *strings.Builder, label, value string) {
	sb.WriteString(StyleLabel.Render(label))
	sb.WriteString(value)
	sb.WriteString("\n")
}

// levelStyle colors a severity level
func levelStyle(l analyzer.Level) string {
	switch l {
	case analyzer.LevelCritical, analyzer.LevelHigh:
		return StyleError.Render(string(l))
	case analyzer.LevelMedium:
		return StyleWarning.Render(string(l))
	}
	return StyleMuted.Render(string(l))
}

func npsStyle(score int) string {
	text := strconv.Itoa(score)
	switch {
	case score >= 50:
		return StyleSuccess.Render(text)
	case score >= 0:
		return StyleWarning.Render(text)
	}
	return StyleError.Render(text)
}

// SurveyReport renders a survey analysis
func SurveyReport(a analyzer.SurveyAnalysis) string {
	var sb strings.Builder

	title := a.SurveyName
	if title == "" {
		title = a.SurveyID
	}
	sb.WriteString(StyleBold.Render("Survey: " + title))
	sb.WriteString("\n")

	if a.NoResponses() {
		sb.WriteString(StyleMuted.Render(a.Message))
		sb.WriteString("\n")
		return sb.String()
	}

	section(&sb, "Overview")
	metric(&sb, "Responses analyzed", fmt.Sprintf("%d of %d", a.AnalyzedResponses, a.TotalResponses))
	if a.NPS != nil && a.NPS.Score != nil {
		metric(&sb, "NPS", fmt.Sprintf("%s (promoters %.1f%%, passives %.1f%%, detractors %.1f%%)",
			npsStyle(*a.NPS.Score), a.NPS.PromotersPct, a.NPS.PassivesPct, a.NPS.DetractorsPct))
	}
	d := a.SentimentDistribution
	metric(&sb, "Sentiment", fmt.Sprintf("%s %.1f%%  %s %.1f%%  %s %.1f%%",
		StyleSuccess.Render("positive"), d.PositivePct,
		"neutral", d.NeutralPct,
		StyleError.Render("negative"), d.NegativePct))
	metric(&sb, "Average sentiment", fmt.Sprintf("%.3f", d.AverageScore))

	if len(a.Topics) > 0 {
		section(&sb, "Topics")
		t := NewTable("Topic", "Mentions", "Share", "Sentiment")
		for _, topic := range a.Topics {
			t.AddRow(topic.DisplayName, strconv.Itoa(topic.Count),
				fmt.Sprintf("%.1f%%", topic.Percentage), string(topic.Sentiment))
		}
		sb.WriteString(t.Render())
	}

	if len(a.UrgentIssues) > 0 {
		section(&sb, fmt.Sprintf("Urgent issues (%d)", a.UrgentIssuesCount))
		t := NewTable("Customer", "Severity", "Score", "Feedback")
		for i, issue := range a.UrgentIssues {
			if i == maxIssueRows {
				break
			}
			t.AddRow(issue.CustomerID, levelStyle(issue.Severity), strconv.Itoa(issue.UrgencyScore), clip(issue.Snippet, 60))
		}
		sb.WriteString(t.Render())
	}

	if len(a.ChurnRisks) > 0 {
		section(&sb, fmt.Sprintf("Churn risks (%d)", a.ChurnRiskCount))
		t := NewTable("Customer", "Level", "Risk", "Factors")
		for i, risk := range a.ChurnRisks {
			if i == maxIssueRows {
				break
			}
			names := make([]string, 0, len(risk.Factors))
			for _, f := range risk.Factors {
				names = append(names, f.Name)
			}
			t.AddRow(risk.CustomerID, levelStyle(risk.RiskLevel), strconv.Itoa(risk.RiskScore), strings.Join(names, ", "))
		}
		sb.WriteString(t.Render())
	}

	if a.CompetitorMentionCount > 0 {
		section(&sb, "Competitor mentions")
		metric(&sb, "Mentions", strconv.Itoa(a.CompetitorMentionCount))
	}

	if len(a.Recommendations) > 0 {
		section(&sb, "Recommendations")
		for _, r := range a.Recommendations {
			fmt.Fprintf(&sb, "[%s] %s\n", levelStyle(r.Priority), StyleBold.Render(r.Action))
			fmt.Fprintf(&sb, "    %s\n", r.Reason)
			if len(r.CustomerIDs) > 0 {
				fmt.Fprintf(&sb, "    %s\n", StyleMuted.Render("customers: "+strings.Join(r.CustomerIDs, ", ")))
			}
			fmt.Fprintf(&sb, "    %s\n", StyleMuted.Render("owner: "+r.SuggestedOwner))
		}
	}

	if a.ExecutiveSummary != "" {
		section(&sb, "Executive summary")
		sb.WriteString(a.ExecutiveSummary)
		sb.WriteString("\n")
	}

	return sb.String()
}

func formatTrend(tr *analyzer.Trend) string {
	if tr == nil {
		return StyleMuted.Render("not enough data")
	}
	direction := string(tr.Direction)
	switch tr.Direction {
	case analyzer.TrendImproving:
		direction = StyleSuccess.Render(direction)
	case analyzer.TrendDeclining:
		direction = StyleError.Render(direction)
	}
	return fmt.Sprintf("%s (%g → %g, %+.2f, %+.1f%%)",
		direction, tr.FirstValue, tr.LastValue, tr.Change, tr.PercentageChange)
}

// TrendReport renders a trend report; a nil report means fewer than two
// surveys were given
func TrendReport(r *analyzer.TrendReport) string {
	var sb strings.Builder
	if r == nil {
		sb.WriteString(StyleMuted.Render("At least two surveys are needed for a trend"))
		sb.WriteString("\n")
		return sb.String()
	}

	sb.WriteString(StyleBold.Render(fmt.Sprintf("Trend across %d surveys", r.SurveysAnalyzed)))
	sb.WriteString("\n\n")

	t := NewTable("Survey", "Date", "Responses", "NPS", "Avg score")
	for _, m := range r.SurveyMetrics {
		name := m.Name
		if name == "" {
			name = m.SurveyID
		}
		t.AddRow(name, m.Date.Format("2006-01-02"), strconv.Itoa(m.ResponseCount),
			optional(m.NPSScore, "%.0f"), optional(m.AvgScore, "%.2f"))
	}
	sb.WriteString(t.Render())
	sb.WriteString("\n")

	metric(&sb, "NPS trend", formatTrend(r.NPSTrend))
	metric(&sb, "Score trend", formatTrend(r.ScoreTrend))

	return sb.String()
}

func optional(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
