package analyzer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Topic identifies one of the fixed feedback themes
type Topic uint8

const (
	TopicResponseTime Topic = iota
	TopicPricing
	TopicProductQuality
	TopicCustomerService
	TopicEaseOfUse
	TopicReliability
	TopicOnboarding
	TopicCommunication
	TopicBilling
	TopicFeatureRequest
	numTopics
)

// topicThreshold is the minimum evidence score for a topic to be present
const topicThreshold = 1.0

const (
	keywordScore  = 0.5
	phraseScore   = 1.5
	maxExamples   = 3
	exampleLength = 200
)

var topicIDs = [numTopics]string{
	TopicResponseTime:    "response_time",
	TopicPricing:         "pricing",
	TopicProductQuality:  "product_quality",
	TopicCustomerService: "customer_service",
	TopicEaseOfUse:       "ease_of_use",
	TopicReliability:     "reliability",
	TopicOnboarding:      "onboarding",
	TopicCommunication:   "communication",
	TopicBilling:         "billing",
	TopicFeatureRequest:  "feature_request",
}

// String returns the topic identifier, e.g. "response_time"
func (t Topic) String() string {
	if t >= numTopics {
		return fmt.Sprintf("topic(%d)", uint8(t))
	}
	return topicIDs[t]
}

// DisplayName returns the human-readable topic name, e.g. "Response Time"
func (t Topic) DisplayName() string {
	words := strings.Split(t.String(), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Owner returns the team that should act on negative feedback for the topic
func (t Topic) Owner() string {
	if t >= numTopics {
		return "CSM"
	}
	return topicSpecs[t].owner
}

// MarshalText encodes the topic as its identifier
func (t Topic) MarshalText() ([]byte, error) {
	if t >= numTopics {
		return nil, fmt.Errorf("unknown topic %d", uint8(t))
	}
	return []byte(topicIDs[t]), nil
}

// UnmarshalText decodes a topic identifier
func (t *Topic) UnmarshalText(text []byte) error {
	parsed, err := ParseTopic(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTopic returns the topic with the given identifier
func ParseTopic(s string) (Topic, error) {
	for i, id := range topicIDs {
		if id == s {
			return Topic(i), nil
		}
	}
	return 0, fmt.Errorf("unknown topic %q", s)
}

// Topics returns every topic in table order
func Topics() []Topic {
	out := make([]Topic, numTopics)
	for i := range out {
		out[i] = Topic(i)
	}
	return out
}

type topicSpec struct {
	keywords []string
	phrases  []string
	weight   float64
	owner    string
}

var topicSpecs = [numTopics]topicSpec{
	TopicResponseTime: {
		keywords: []string{"slow", "wait", "waiting", "response time", "took forever", "delayed",
			"delay", "hours", "days", "weeks", "long time", "eventually", "finally"},
		phrases: []string{`took\s+\w+\s+(hours|days|weeks)`, `waiting\s+for`, `still\s+waiting`,
			`no\s+response`},
		weight: 1.0,
		owner:  "Support Team",
	},
	TopicPricing: {
		keywords: []string{"expensive", "price", "cost", "pricing", "affordable", "value", "cheap",
			"overpriced", "fee", "charge", "bill", "invoice", "money", "budget", "worth"},
		phrases: []string{`too\s+expensive`, `not\s+worth`, `hidden\s+(fees?|charges?)`,
			`value\s+for\s+money`},
		weight: 1.0,
		owner:  "Finance/Sales",
	},
	TopicProductQuality: {
		keywords: []string{"quality", "product", "feature", "functionality", "works", "bug", "buggy",
			"glitch", "crash", "error", "broken", "reliable", "unreliable", "stable", "unstable"},
		phrases: []string{`doesn't\s+work`, `not\s+working`, `stopped\s+working`,
			`keeps\s+(crashing|breaking|failing)`},
		weight: 1.2,
		owner:  "Engineering",
	},
	TopicCustomerService: {
		keywords: []string{"support", "service", "help", "agent", "representative", "staff", "team",
			"phone", "email", "chat", "ticket", "contact", "reach", "response", "friendly",
			"helpful", "rude", "courteous"},
		phrases: []string{`customer\s+(service|support)`, `support\s+team`, `help\s+desk`,
			`couldn't\s+reach`},
		weight: 1.1,
		owner:  "Support Team",
	},
	TopicEaseOfUse: {
		keywords: []string{"easy", "difficult", "complicated", "intuitive", "user-friendly", "confusing",
			"simple", "complex", "understand", "learn", "figure out", "navigate"},
		phrases: []string{`easy\s+to\s+use`, `hard\s+to\s+(use|understand|figure)`, `user\s+friendly`,
			`learning\s+curve`},
		weight: 0.9,
		owner:  "UX/Product",
	},
	TopicReliability: {
		keywords: []string{"reliable", "unreliable", "bug", "error", "crash", "down", "outage", "uptime",
			"downtime", "issue", "problem", "fail", "failure"},
		phrases: []string{`keeps\s+(crashing|failing)`, `always\s+(down|broken)`, `never\s+works`,
			`constant\s+(issues?|problems?)`},
		weight: 1.15,
		owner:  "Engineering",
	},
	TopicOnboarding: {
		keywords: []string{"onboarding", "setup", "getting started", "implementation", "training",
			"documentation", "tutorial", "guide", "started", "beginning", "initial"},
		phrases: []string{`getting\s+started`, `set\s*up\s+(process|experience)`,
			`first\s+(time|experience|impression)`},
		weight: 0.85,
		owner:  "Onboarding Team",
	},
	TopicCommunication: {
		keywords: []string{"communication", "update", "inform", "notification", "transparent",
			"transparency", "proactive", "follow up", "response", "reply", "callback"},
		phrases: []string{`keep\s+.*\s+informed`, `no\s+(update|response|communication)`,
			`lack\s+of\s+communication`},
		weight: 0.95,
		owner:  "CSM",
	},
	TopicBilling: {
		keywords: []string{"billing", "invoice", "charge", "payment", "subscription", "renewal",
			"overcharge", "refund", "credit", "account"},
		phrases: []string{`billing\s+(issue|problem|error)`, `wrong\s+charge`,
			`unexpected\s+(charge|fee)`, `auto\s*renew`},
		weight: 1.05,
		owner:  "Finance",
	},
	TopicFeatureRequest: {
		keywords: []string{"wish", "want", "need", "missing", "add", "feature", "improvement",
			"suggestion", "would like", "should have", "request", "enhance"},
		phrases: []string{`would\s+be\s+(nice|great|helpful)`, `wish\s+(you|it|there)`,
			`should\s+(add|have|include)`, `feature\s+request`},
		weight: 0.8,
		owner:  "Product Management",
	},
}

type compiledTopic struct {
	topic    Topic
	keywords []*regexp.Regexp
	phrases  []*regexp.Regexp
	weight   float64
}

func compileTopic(t Topic, spec topicSpec) (compiledTopic, error) {
	ct := compiledTopic{topic: t, weight: spec.weight}
	for _, kw := range spec.keywords {
		re, err := compileKeyword(kw)
		if err != nil {
			return ct, fmt.Errorf("topic %s keyword %q: %w", t, kw, err)
		}
		ct.keywords = append(ct.keywords, re)
	}
	for _, p := range spec.phrases {
		apos := strings.ReplaceAll(p, "'", `['’]`)
		re, err := regexp.Compile(`(?i)` + apos)
		if err != nil {
			return ct, fmt.Errorf("topic %s phrase %q: %w", t, p, err)
		}
		ct.phrases = append(ct.phrases, re)
	}
	return ct, nil
}

// topicEvidence is the result of matching one topic against one text
type topicEvidence struct {
	score float64
	spans [][]int
}

// match scores a text for the topic. Each keyword and each phrase pattern
// counts once no matter how often it occurs.
func (ct compiledTopic) match(text string) topicEvidence {
	var (
		ev       topicEvidence
		keywords int
		phrases  int
	)
	for _, re := range ct.keywords {
		if locs := re.FindAllStringIndex(text, -1); locs != nil {
			keywords++
			ev.spans = append(ev.spans, locs...)
		}
	}
	for _, re := range ct.phrases {
		if locs := re.FindAllStringIndex(text, -1); locs != nil {
			phrases++
			ev.spans = append(ev.spans, locs...)
		}
	}
	ev.score = (float64(keywords)*keywordScore + float64(phrases)*phraseScore) * ct.weight
	return ev
}

// TopicScore returns the raw evidence score of a topic in text
func (r *Registry) TopicScore(t Topic, text string) float64 {
	if t >= numTopics {
		return 0
	}
	return r.topics[t].match(text).score
}

// DetectTopics returns the topics present in a single text, in table order
func (r *Registry) DetectTopics(text string) []Topic {
	out := []Topic{}
	if strings.TrimSpace(text) == "" {
		return out
	}
	for _, ct := range r.topics {
		if ct.match(text).score >= topicThreshold {
			out = append(out, ct.topic)
		}
	}
	return out
}

type topicAccumulator struct {
	count     int
	sum       float64
	examples  []string
	firstSeen int
}

// ExtractTopics finds topics across a corpus of texts and reports for each
// the number of texts mentioning it, their share, the average sentiment of
// the clauses carrying the topic and up to three examples. Results are
// sorted by count, most frequent first.
func (r *Registry) ExtractTopics(texts []string) []TopicMatch {
	var (
		accs [numTopics]*topicAccumulator
		seen int
	)

	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		for _, ct := range r.topics {
			ev := ct.match(text)
			if ev.score < topicThreshold {
				continue
			}
			acc := accs[ct.topic]
			if acc == nil {
				acc = &topicAccumulator{firstSeen: seen}
				accs[ct.topic] = acc
				seen++
			}
			acc.count++
			acc.sum += r.Sentiment(topicScope(text, ev.spans)).Score
			if len(acc.examples) < maxExamples {
				acc.examples = append(acc.examples, truncate(text, exampleLength))
			}
		}
	}

	type ranked struct {
		match     TopicMatch
		firstSeen int
	}
	var found []ranked
	for i, acc := range accs {
		if acc == nil {
			continue
		}
		t := Topic(i)
		avg := acc.sum / float64(acc.count)
		found = append(found, ranked{
			match: TopicMatch{
				Topic:          t,
				DisplayName:    t.DisplayName(),
				Count:          acc.count,
				Percentage:     round(float64(acc.count)/float64(len(texts))*100, 1),
				Sentiment:      topicLabel(avg),
				SentimentScore: round(avg, 3),
				Examples:       acc.examples,
			},
			firstSeen: acc.firstSeen,
		})
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].match.Count != found[j].match.Count {
			return found[i].match.Count > found[j].match.Count
		}
		return found[i].firstSeen < found[j].firstSeen
	})

	out := make([]TopicMatch, 0, len(found))
	for _, f := range found {
		out = append(out, f.match)
	}
	return out
}

func topicLabel(avg float64) SentimentLabel {
	switch {
	case avg > sentimentThreshold:
		return SentimentPositive
	case avg < -sentimentThreshold:
		return SentimentNegative
	default:
		return SentimentMixed
	}
}

// clauseBoundary splits text at sentence punctuation, semicolons and
// contrastive conjunctions
var clauseBoundary = regexp.MustCompile(`(?i)[.!?;]+|\b(?:but|however|although|though|yet|whereas)\b`)

// topicScope returns the clauses of text overlapping any evidence span,
// joined in order. The whole text is returned when no clause qualifies.
func topicScope(text string, spans [][]int) string {
	bounds := clauseBoundary.FindAllStringIndex(text, -1)
	if len(bounds) == 0 || len(spans) == 0 {
		return text
	}

	var clauses [][2]int
	start := 0
	for _, b := range bounds {
		clauses = append(clauses, [2]int{start, b[0]})
		start = b[1]
	}
	clauses = append(clauses, [2]int{start, len(text)})

	var parts []string
	for _, c := range clauses {
		for _, s := range spans {
			if s[0] < c[1] && s[1] > c[0] {
				if part := strings.TrimSpace(text[c[0]:c[1]]); part != "" {
					parts = append(parts, part)
				}
				break
			}
		}
	}
	if len(parts) == 0 {
		return text
	}
	return strings.Join(parts, ". ")
}
