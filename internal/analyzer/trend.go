package analyzer

import (
	"math"
	"time"
)

// TrendDirection classifies how a metric moved between the first and last
// data point
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// stableBand is the percentage change within which a trend is stable
const stableBand = 5

// Trend is the movement of one metric over an ordered series
type Trend struct {
	Direction        TrendDirection `json:"direction"`
	Change           float64        `json:"change"`
	PercentageChange float64        `json:"percentage_change"`
	FirstValue       float64        `json:"first_value"`
	LastValue        float64        `json:"last_value"`
}

// CalculateTrend compares the first and last of an ordered series. It
// returns nil for fewer than two values.
func CalculateTrend(values []float64) *Trend {
	if len(values) < 2 {
		return nil
	}

	first, last := values[0], values[len(values)-1]
	change := last - first

	var pct float64
	switch {
	case first != 0:
		pct = change / math.Abs(first) * 100
	case change > 0:
		pct = 100
	case change < 0:
		pct = -100
	}

	direction := TrendStable
	switch {
	case pct > stableBand:
		direction = TrendImproving
	case pct < -stableBand:
		direction = TrendDeclining
	}

	return &Trend{
		Direction:        direction,
		Change:           round(change, 2),
		PercentageChange: round(pct, 1),
		FirstValue:       first,
		LastValue:        last,
	}
}

// SurveyMetrics is the per-survey aggregate fed to trend analysis
type SurveyMetrics struct {
	SurveyID      string    `json:"survey_id"`
	Name          string    `json:"name"`
	Date          time.Time `json:"date"`
	ResponseCount int       `json:"response_count"`
	NPSScore      *float64  `json:"nps_score"`
	AvgScore      *float64  `json:"avg_score"`
}

// TrendReport is the longitudinal view over a set of surveys
type TrendReport struct {
	SurveysAnalyzed int             `json:"surveys_analyzed"`
	SurveyMetrics   []SurveyMetrics `json:"survey_metrics"`
	NPSTrend        *Trend          `json:"nps_trend"`
	ScoreTrend      *Trend          `json:"score_trend"`
}

// GetTrend computes NPS and average-score trends over metrics ordered by
// time. It returns nil when fewer than two surveys are given; a metric
// present on fewer than two surveys has a nil trend.
func GetTrend(metrics []SurveyMetrics) *TrendReport {
	if len(metrics) < 2 {
		return nil
	}

	var nps, scores []float64
	for _, m := range metrics {
		if m.NPSScore != nil {
			nps = append(nps, *m.NPSScore)
		}
		if m.AvgScore != nil {
			scores = append(scores, *m.AvgScore)
		}
	}

	return &TrendReport{
		SurveysAnalyzed: len(metrics),
		SurveyMetrics:   metrics,
		NPSTrend:        CalculateTrend(nps),
		ScoreTrend:      CalculateTrend(scores),
	}
}
