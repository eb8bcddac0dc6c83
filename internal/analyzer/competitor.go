package analyzer

import (
	"strings"
	"unicode/utf8"
)

const (
	contextRadius = 50
	dedupPrefix   = 100
	genericType   = "generic"
)

// CompetitorMentions scans texts for competitor, alternative and switching
// language. Each mention carries the matched snippet, about 50 characters
// of surrounding context and the index of the source text. Mentions whose
// contexts share the same first 100 characters are reported once.
func (r *Registry) CompetitorMentions(texts []string) []CompetitorMention {
	mentions := []CompetitorMention{}
	seen := make(map[string]bool)

	for idx, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		for _, re := range r.competitor {
			for _, loc := range re.FindAllStringIndex(text, -1) {
				context := contextWindow(text, loc[0], loc[1], contextRadius)
				key := truncate(context, dedupPrefix)
				if seen[key] {
					continue
				}
				seen[key] = true
				mentions = append(mentions, CompetitorMention{
					Snippet:        strings.ToLower(text[loc[0]:loc[1]]),
					CompetitorType: genericType,
					Context:        context,
					ResponseIndex:  idx,
				})
			}
		}
	}

	return mentions
}

// contextWindow returns text[start:end] widened by radius characters on each
// side, with "..." marking truncation
func contextWindow(text string, start, end, radius int) string {
	from := start
	for n := 0; n < radius && from > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := end
	for n := 0; n < radius && to < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}

	ctx := text[from:to]
	if from > 0 {
		ctx = "..." + ctx
	}
	if to < len(text) {
		ctx += "..."
	}
	return ctx
}
