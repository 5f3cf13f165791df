package question

import (
	"sort"
	"strings"

	"github.com/tilemart/salescore/internal/sales/requirement"
)

// Scoring weights. The missing-requirement term dominates so a question that
// fills a gap always outranks one that merely matches the topic.
const (
	weightMissing = 100.0
	weightTopic   = 10.0
)

// Policy selects the next questions to ask. Pure function of its inputs; the
// library's weights are only ever replaced between sessions.
type Policy struct {
	lib *Library
}

func NewPolicy(lib *Library) *Policy {
	return &Policy{lib: lib}
}

// Ranked is a template with the score the policy assigned it.
type Ranked struct {
	Template
	Score float64 `json:"score"`
}

// NextQuestions returns up to max templates ordered by descending score.
// Questions whose targets are all filled are never selected. Ties break by
// the ledger's canonical missing-key order of the first missing target, then
// by library insertion order.
func (p *Policy) NextQuestions(led *requirement.Ledger, topicHint string, max int) []Ranked {
	if max <= 0 || led == nil {
		return nil
	}

	missingRank := make(map[requirement.Key]int)
	for i, k := range led.Missing() {
		missingRank[k] = i
	}

	topicHint = strings.ToLower(strings.TrimSpace(topicHint))

	var ranked []Ranked
	for _, t := range p.lib.Templates {
		if _, anyMissing := firstMissingTarget(t, missingRank); !anyMissing {
			continue
		}
		score := weightMissing + t.ConversionWeight + t.Priority
		if topicMatches(t.Topic, topicHint) {
			score += weightTopic
		}
		ranked = append(ranked, Ranked{Template: t, Score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		ri, _ := firstMissingTarget(ranked[i].Template, missingRank)
		rj, _ := firstMissingTarget(ranked[j].Template, missingRank)
		if ri != rj {
			return ri < rj
		}
		return ranked[i].order < ranked[j].order
	})

	if len(ranked) > max {
		ranked = ranked[:max]
	}
	return ranked
}

// firstMissingTarget returns the canonical rank of the best (earliest)
// missing target, and whether the template targets any missing key at all.
func firstMissingTarget(t Template, missingRank map[requirement.Key]int) (int, bool) {
	best := len(missingRank) + 1
	found := false
	for _, k := range t.Targets {
		if r, ok := missingRank[k]; ok {
			found = true
			if r < best {
				best = r
			}
		}
	}
	return best, found
}

func topicMatches(topic, hint string) bool {
	if topic == "" || topic == "general" || hint == "" {
		return false
	}
	return strings.Contains(hint, topic) || strings.Contains(topic, hint)
}
