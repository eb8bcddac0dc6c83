package analyzer

import "math"

const (
	// negationWindow is how many following tokens a negator affects
	negationWindow = 3
	// negationDamping scales a flipped weight
	negationDamping = 0.8
	// sentimentThreshold separates positive/negative from neutral
	sentimentThreshold = 0.15
	// noEvidenceConfidence is the confidence of a text without sentiment words
	noEvidenceConfidence = 0.2
	maxEvidence          = 10
	defaultMaxRating     = 10
	textBlendWeight      = 0.6
	ratingBlendWeight    = 0.4
)

// Sentiment scores text with the weighted lexicon, handling negation and
// intensifiers. Empty text is a weak neutral.
//
// The negation countdown is decremented by every token that is not itself a
// negator or intensifier and does not reset at sentence boundaries.
func (r *Registry) Sentiment(text string) SentimentResult {
	tokens := tokenize(text)

	var (
		scores     []float64
		evidence   []Evidence
		negation   int
		multiplier = 1.0
	)

	for _, token := range tokens {
		if r.isNegator(token) {
			negation = negationWindow
			continue
		}

		if m, ok := r.intensifiers[token]; ok {
			multiplier = m
			continue
		}

		if base, ok := r.sentimentWeight(token); ok {
			final := base * multiplier
			negated := negation > 0
			if negated {
				final = -final * negationDamping
			}
			scores = append(scores, final)
			evidence = append(evidence, Evidence{
				Term:        token,
				BaseWeight:  base,
				FinalWeight: final,
				Negated:     negated,
				Intensified: multiplier != 1.0,
			})
		}

		multiplier = 1.0
		if negation > 0 {
			negation--
		}
	}

	return aggregateSentiment(scores, evidence)
}

// aggregateSentiment combines word scores into one result. Each score is
// weighted by 1 + 0.5|s| so that extreme words count more.
func aggregateSentiment(scores []float64, evidence []Evidence) SentimentResult {
	if len(scores) == 0 {
		return SentimentResult{
			Label:      SentimentNeutral,
			Score:      0,
			Confidence: noEvidenceConfidence,
			Evidence:   []Evidence{},
		}
	}

	var weighted, magnitude float64
	for _, s := range scores {
		weighted += s * (1 + math.Abs(s)*0.5)
		magnitude += math.Abs(s)
	}

	score := clamp(weighted/float64(len(scores)), -1, 1)
	confidence := math.Min(1, float64(len(scores))/5) * (1 - 1/(1+magnitude))

	if len(evidence) > maxEvidence {
		evidence = evidence[:maxEvidence]
	}

	// labels use the unrounded score
	return SentimentResult{
		Label:      labelForScore(score),
		Score:      round(score, 3),
		Confidence: round(confidence, 3),
		Evidence:   evidence,
	}
}

// BlendRatings mixes numeric ratings into the sentiment score:
// 60% text, 40% rating normalized to [-1, 1]. The receiver is not modified.
func (s SentimentResult) BlendRatings(ratings []int, maxRating int) SentimentResult {
	if len(ratings) == 0 {
		return s
	}
	if maxRating <= 0 {
		maxRating = defaultMaxRating
	}

	normalized := mean(ratings)/float64(maxRating)*2 - 1
	blended := clamp(s.Score*textBlendWeight+normalized*ratingBlendWeight, -1, 1)
	influence := round(normalized, 3)

	out := s
	out.Evidence = append([]Evidence(nil), s.Evidence...)
	out.Score = round(blended, 3)
	out.Label = labelForScore(blended)
	out.RatingInfluence = &influence
	return out
}

func labelForScore(score float64) SentimentLabel {
	switch {
	case score > sentimentThreshold:
		return SentimentPositive
	case score < -sentimentThreshold:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}
