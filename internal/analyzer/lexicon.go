package analyzer

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// weightedTerm is a lexicon term with its weight, in table order
type weightedTerm struct {
	term   string
	weight float64
}

// positiveWords are sentiment words with intensity scores in (0, 1]
var positiveWords = []weightedTerm{
	// High intensity
	{"excellent", 1.0}, {"outstanding", 1.0}, {"amazing", 0.95}, {"fantastic", 0.95},
	{"wonderful", 0.9}, {"exceptional", 0.95}, {"superb", 0.9}, {"brilliant", 0.9},
	{"phenomenal", 0.95}, {"incredible", 0.9}, {"perfect", 1.0}, {"love", 0.85},
	// Medium intensity
	{"great", 0.75}, {"good", 0.6}, {"nice", 0.55}, {"helpful", 0.65}, {"friendly", 0.6},
	{"professional", 0.65}, {"efficient", 0.7}, {"reliable", 0.7}, {"recommend", 0.75},
	{"satisfied", 0.65}, {"happy", 0.7}, {"pleased", 0.65}, {"impressed", 0.75},
	{"valuable", 0.7}, {"useful", 0.6}, {"effective", 0.65}, {"quality", 0.65},
	{"fast", 0.5}, {"quick", 0.5},
	// Low intensity
	{"okay", 0.35}, {"fine", 0.35}, {"decent", 0.4}, {"acceptable", 0.35},
	{"adequate", 0.35}, {"reasonable", 0.4}, {"fair", 0.4}, {"positive", 0.5},
}

// negativeWords are sentiment words with intensity scores in [-1, 0)
var negativeWords = []weightedTerm{
	// High intensity
	{"terrible", -1.0}, {"awful", -1.0}, {"horrible", -0.95}, {"worst", -1.0},
	{"disgusting", -0.95}, {"appalling", -0.95}, {"atrocious", -0.95}, {"dreadful", -0.9},
	{"unacceptable", -0.9}, {"pathetic", -0.9}, {"abysmal", -0.95}, {"hate", -0.85},
	// Medium intensity
	{"bad", -0.65}, {"poor", -0.6}, {"disappointed", -0.7}, {"frustrating", -0.75},
	{"frustrated", -0.75}, {"annoying", -0.65}, {"annoyed", -0.65}, {"useless", -0.75},
	{"unhelpful", -0.7}, {"unprofessional", -0.7}, {"rude", -0.75}, {"slow", -0.55},
	{"unreliable", -0.7}, {"waste", -0.75}, {"broken", -0.7}, {"failed", -0.7},
	{"problem", -0.5}, {"issue", -0.45}, {"complaint", -0.55}, {"error", -0.55},
	{"overpriced", -0.7}, {"expensive", -0.5}, {"pricey", -0.45},
	// Low intensity
	{"mediocre", -0.45}, {"lacking", -0.45}, {"underwhelming", -0.5},
	{"confusing", -0.45}, {"difficult", -0.4}, {"complicated", -0.4},
}

// intensifiers multiply the weight of the next sentiment word
var intensifiers = []weightedTerm{
	{"very", 1.3}, {"extremely", 1.5}, {"incredibly", 1.5}, {"absolutely", 1.4},
	{"really", 1.25}, {"highly", 1.3}, {"completely", 1.4}, {"totally", 1.35},
	{"utterly", 1.5}, {"thoroughly", 1.3}, {"exceptionally", 1.4}, {"remarkably", 1.3},
	{"particularly", 1.2}, {"especially", 1.25}, {"so", 1.2}, {"such", 1.15},
}

// negators flip the polarity of sentiment words inside the negation window
var negators = []string{
	"not", "no", "never", "neither", "nobody", "nothing", "nowhere", "n't",
	"cannot", "can't", "won't", "wouldn't", "couldn't", "shouldn't", "isn't",
	"aren't", "wasn't", "weren't", "don't", "doesn't", "didn't", "hardly",
	"barely", "scarcely", "seldom", "rarely", "without",
}

// urgentKeywords indicate an issue needing immediate attention
var urgentKeywords = []weightedTerm{
	{"critical", 1.0}, {"urgent", 1.0}, {"emergency", 1.0}, {"immediately", 0.9},
	{"asap", 0.9}, {"terrible", 0.85}, {"awful", 0.85}, {"horrible", 0.85},
	{"worst", 0.9}, {"never again", 0.85}, {"cancel", 0.8}, {"canceling", 0.85},
	{"cancelling", 0.85}, {"refund", 0.75}, {"demand", 0.7}, {"unacceptable", 0.8},
	{"outraged", 0.85}, {"furious", 0.85}, {"livid", 0.9}, {"sue", 0.95},
	{"lawyer", 0.9}, {"legal", 0.8}, {"bbb", 0.75}, {"report", 0.6},
	{"review", 0.5}, {"social media", 0.65}, {"twitter", 0.6}, {"facebook", 0.6},
}

// churnKeywords indicate intent to leave
var churnKeywords = []weightedTerm{
	{"cancel", 0.9}, {"canceling", 0.9}, {"cancelling", 0.9}, {"leave", 0.7},
	{"leaving", 0.75}, {"switch", 0.75}, {"switching", 0.8}, {"competitor", 0.85},
	{"alternative", 0.7}, {"other company", 0.75}, {"looking elsewhere", 0.8},
	{"done", 0.6}, {"finished", 0.55}, {"over it", 0.65}, {"fed up", 0.75},
	{"last straw", 0.85}, {"final", 0.5}, {"goodbye", 0.7}, {"ending", 0.65},
	{"terminate", 0.85}, {"discontinue", 0.8}, {"stop using", 0.75},
	{"not renewing", 0.9}, {"wont renew", 0.9}, {"won't renew", 0.9},
}

// competitorPatterns match generic competitor, alternative and switching language
var competitorPatterns = []string{
	`\b(competitors?)\b`,
	`\b(other (company|service|provider|vendor|solution))\b`,
	`\b(alternatives?)\b`,
	`\b(switched? to)\b`,
	`\b(considering|looking at|evaluating)\s+\w+\s+(instead|alternatively)\b`,
	`\b(better (option|choice|alternative))\b`,
}

// keywordMatcher is a compiled word-boundary matcher for a weighted term
type keywordMatcher struct {
	term   string
	weight float64
	re     *regexp.Regexp
}

// Registry holds the compiled lexicons and patterns. It is built once and
// never mutated, so one value may be shared by any number of goroutines.
type Registry struct {
	positive     map[string]float64
	negative     map[string]float64
	intensifiers map[string]float64
	negators     map[string]bool
	urgent       []keywordMatcher
	churn        []keywordMatcher
	competitor   []*regexp.Regexp
	topics       [numTopics]compiledTopic
}

// NewRegistry compiles the built-in lexicons and topic definitions.
// Any pattern that fails to compile is returned as an error.
func NewRegistry() (*Registry, error) {
	return buildRegistry(topicSpecs, competitorPatterns)
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	r, err := NewRegistry()
	if err != nil {
		panic(fmt.Sprintf("analyzer: invalid built-in lexicon: %v", err))
	}
	return r
})

// DefaultRegistry returns the process-wide registry, compiling it on first use
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

func buildRegistry(topics [numTopics]topicSpec, competitor []string) (*Registry, error) {
	r := &Registry{
		positive:     termMap(positiveWords),
		negative:     termMap(negativeWords),
		intensifiers: termMap(intensifiers),
		negators:     make(map[string]bool, len(negators)),
	}
	for _, n := range negators {
		r.negators[n] = true
	}

	var err error
	if r.urgent, err = compileKeywords(urgentKeywords); err != nil {
		return nil, fmt.Errorf("urgency keywords: %w", err)
	}
	if r.churn, err = compileKeywords(churnKeywords); err != nil {
		return nil, fmt.Errorf("churn keywords: %w", err)
	}

	for _, p := range competitor {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("competitor pattern %q: %w", p, err)
		}
		r.competitor = append(r.competitor, re)
	}

	for i := range topics {
		ct, err := compileTopic(Topic(i), topics[i])
		if err != nil {
			return nil, err
		}
		r.topics[i] = ct
	}

	return r, nil
}

func termMap(terms []weightedTerm) map[string]float64 {
	m := make(map[string]float64, len(terms))
	for _, t := range terms {
		m[t.term] = t.weight
	}
	return m
}

func compileKeywords(terms []weightedTerm) ([]keywordMatcher, error) {
	out := make([]keywordMatcher, 0, len(terms))
	for _, t := range terms {
		re, err := compileKeyword(t.term)
		if err != nil {
			return nil, err
		}
		out = append(out, keywordMatcher{term: t.term, weight: t.weight, re: re})
	}
	return out, nil
}

// compileKeyword builds a case-insensitive matcher for a term anchored at
// a word start. The last word also matches its regular inflections, so
// "cancel" fires on "cancelled" and "fee" on "fees" while "issue" still
// does not fire "sue". Internal whitespace matches any run of whitespace.
func compileKeyword(term string) (*regexp.Regexp, error) {
	parts := strings.Fields(term)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty keyword")
	}
	last := len(parts) - 1
	for i, p := range parts[:last] {
		parts[i] = regexp.QuoteMeta(p)
	}
	parts[last] = inflections(parts[last])
	return regexp.Compile(`(?i)\b` + strings.Join(parts, `\s+`) + `\b`)
}

// inflectionSuffixes are appended to a word as is
const inflectionSuffixes = `(?:s|es|ed|ing|ings|ation|ations)?`

// inflections returns a pattern for word and its plural, past and
// progressive forms: silent e dropped, final y to ies/ied, and a
// doubled final consonant after a vowel.
func inflections(word string) string {
	w := strings.ToLower(word)
	q := regexp.QuoteMeta(word)
	alts := []string{q + inflectionSuffixes}

	n := len(w)
	if n < 2 {
		return "(?:" + alts[0] + ")"
	}
	end, prev := w[n-1], w[n-2]
	stem := regexp.QuoteMeta(word[:n-1])
	switch {
	case end == 'e':
		if prev != 'e' {
			alts = append(alts, q+"d")
		}
		alts = append(alts, stem+`(?:ing|ings|ation|ations)`)
	case end == 'y' && !isVowel(prev):
		alts = append(alts, stem+`(?:ies|ied)`)
	case isLetter(end) && !isVowel(end) && !strings.ContainsRune("wxy", rune(end)) && isVowel(prev):
		c := regexp.QuoteMeta(string(word[n-1]))
		alts = append(alts, q+c+`(?:ed|ing|ation|ations)`)
	}
	return "(?:" + strings.Join(alts, "|") + ")"
}

func isVowel(c byte) bool {
	return strings.IndexByte("aeiou", c) >= 0
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z'
}

// isNegator reports whether a token flips polarity
func (r *Registry) isNegator(token string) bool {
	return r.negators[token] || strings.HasSuffix(token, "n't")
}

// sentimentWeight returns the lexicon weight of a token, if any
func (r *Registry) sentimentWeight(token string) (float64, bool) {
	if w, ok := r.positive[token]; ok {
		return w, true
	}
	w, ok := r.negative[token]
	return w, ok
}

// IsSentimentWord reports whether a token is in the positive or negative lexicon
func (r *Registry) IsSentimentWord(token string) bool {
	_, ok := r.sentimentWeight(strings.ToLower(token))
	return ok
}

var (
	tokenPattern      = regexp.MustCompile(`[a-z0-9]+(?:'[a-z]+)*`)
	apostropheReplace = strings.NewReplacer("’", "'", "‘", "'", "`", "'")
)

// tokenize lower-cases text and splits it into word tokens, keeping
// contractions such as "don't" whole
func tokenize(text string) []string {
	text = apostropheReplace.Replace(strings.ToLower(text))
	return tokenPattern.FindAllString(text, -1)
}
