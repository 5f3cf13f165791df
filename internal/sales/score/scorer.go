package score

import (
	"strings"

	"github.com/tilemart/salescore/internal/sales/phase"
	"github.com/tilemart/salescore/internal/sales/requirement"
)

// Turn is one utterance of the transcript view.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ToolEvent is the slice of a tool invocation record the scorer reads.
type ToolEvent struct {
	Tool      string `json:"tool"`
	Allowed   bool   `json:"allowed"`
	Succeeded bool   `json:"succeeded"`
}

// Transcript is the read-only session state the scorer observes. The scorer
// never mutates any of it.
type Transcript struct {
	Turns  []Turn
	Ledger *requirement.Ledger
	// Phase is the furthest phase the session has reached.
	Phase   phase.Phase
	Records []ToolEvent
}

// PhaseScore is the rubric outcome for one phase.
type PhaseScore struct {
	Score     int      `json:"score"` // 0..phase.MaxScore
	Satisfied []string `json:"satisfied,omitempty"`
	Missing   []string `json:"missing,omitempty"`
}

// Report is a full evaluation: one score per rubric phase plus red flags.
type Report struct {
	Phases   map[phase.Phase]PhaseScore `json:"phases"`
	RedFlags []string                   `json:"red_flags,omitempty"`
}

// Scorer evaluates transcripts against a fixed rubric.
type Scorer struct {
	rubric *Rubric
}

func NewScorer(rubric *Rubric) *Scorer {
	return &Scorer{rubric: rubric}
}

// Evaluate scores the transcript. Pure: identical recorded state yields an
// identical report, whether called after every turn or once at session end.
func (s *Scorer) Evaluate(tr Transcript) Report {
	rep := Report{Phases: make(map[phase.Phase]PhaseScore, len(s.rubric.Phases))}
	for _, pr := range s.rubric.Phases {
		ps := PhaseScore{}
		for _, c := range pr.Criteria {
			if evalCheck(c.Check, tr) {
				ps.Satisfied = append(ps.Satisfied, c.ID)
			} else {
				ps.Missing = append(ps.Missing, c.ID)
			}
		}
		ps.Score = len(ps.Satisfied)
		if ps.Score > phase.MaxScore {
			ps.Score = phase.MaxScore
		}
		rep.Phases[pr.Phase] = ps
	}
	for _, f := range s.rubric.RedFlags {
		fired := true
		for _, c := range f.When {
			if !evalCheck(c, tr) {
				fired = false
				break
			}
		}
		if fired {
			rep.RedFlags = append(rep.RedFlags, f.Description)
		}
	}
	return rep
}

func evalCheck(c Check, tr Transcript) bool {
	ok := false
	switch c.Type {
	case CheckRequirementFilled:
		ok = tr.Ledger != nil && tr.Ledger.IsFilled(requirement.Key(c.Key))
	case CheckToolSucceeded:
		for _, r := range tr.Records {
			if r.Tool == c.Tool && r.Succeeded {
				ok = true
				break
			}
		}
	case CheckToolBlocked:
		for _, r := range tr.Records {
			if r.Tool == c.Tool && !r.Allowed {
				ok = true
				break
			}
		}
	case CheckAssistantMentions:
		ok = assistantMentions(tr.Turns, c.Keywords)
	case CheckPhaseReached:
		ok = phase.Index(tr.Phase) >= phase.Index(phase.Phase(c.Phase))
	}
	if c.Negate {
		return !ok
	}
	return ok
}

func assistantMentions(turns []Turn, keywords []string) bool {
	for _, t := range turns {
		if t.Role != "assistant" {
			continue
		}
		content := strings.ToLower(t.Content)
		for _, kw := range keywords {
			if strings.Contains(content, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}
