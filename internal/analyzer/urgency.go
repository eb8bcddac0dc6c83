package analyzer

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	capsRatioThreshold = 0.3
	capsMinLength      = 20
	capsScore          = 60
	punctuationRun     = 3
	punctuationScore   = 50
	maxUrgencyReasons  = 3
	veryLowScore       = 3
	lowScoreUrgency    = 50
)

type urgencySignal struct {
	score  float64
	reason string
}

// Urgency classifies how urgently a text needs attention. The score is the
// strongest single signal, not a sum.
func (r *Registry) Urgency(text string) UrgencyResult {
	if strings.TrimSpace(text) == "" {
		return UrgencyResult{Level: LevelLow, Score: 0, Reasons: []string{}}
	}

	var signals []urgencySignal
	for _, kw := range r.urgent {
		if kw.re.MatchString(text) {
			signals = append(signals, urgencySignal{
				score:  kw.weight * 100,
				reason: fmt.Sprintf("Contains urgent keyword: '%s'", kw.term),
			})
		}
	}

	if length := utf8.RuneCountInString(text); length > capsMinLength {
		upper := 0
		for _, c := range text {
			if unicode.IsUpper(c) {
				upper++
			}
		}
		if float64(upper)/float64(length) > capsRatioThreshold {
			signals = append(signals, urgencySignal{score: capsScore, reason: "Contains significant ALL CAPS text"})
		}
	}

	if strings.Count(text, "!") >= punctuationRun || strings.Count(text, "?") >= punctuationRun {
		signals = append(signals, urgencySignal{score: punctuationScore, reason: "Contains multiple exclamation/question marks"})
	}

	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].score > signals[j].score
	})

	var score float64
	reasons := []string{}
	for i, s := range signals {
		if i == 0 {
			score = s.score
		}
		if i < maxUrgencyReasons {
			reasons = append(reasons, s.reason)
		}
	}

	return UrgencyResult{
		Level:   UrgencyLevelForScore(score),
		Score:   int(math.Round(score)),
		Reasons: reasons,
	}
}

// UrgencyLevelForScore maps a 0-100 urgency score to a level
func UrgencyLevelForScore(score float64) Level {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}

// withLowScore applies the very-low-score rule for a response whose overall
// score is 3 or less: a low level becomes medium with a score of at least 50,
// and the reason is recorded at any level
func (u UrgencyResult) withLowScore(overall *float64) UrgencyResult {
	if overall == nil || *overall > veryLowScore {
		return u
	}
	out := u
	if out.Level == LevelLow {
		out.Level = LevelMedium
		out.Score = max(u.Score, lowScoreUrgency)
	}
	out.Reasons = append(append([]string(nil), u.Reasons...), "Very low NPS score")
	return out
}
