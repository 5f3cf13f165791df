// Package score evaluates a conversation transcript against the fixed sales
// rubric. Scoring is pure over recorded state: the same transcript scores
// identically whether evaluated turn by turn or once at the end.
package score

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tilemart/salescore/internal/sales/phase"
	"github.com/tilemart/salescore/internal/sales/requirement"
)

//go:embed rubric.yaml
var defaultRubricYAML []byte

// CheckType enumerates how a criterion or red flag is evaluated.
type CheckType string

const (
	// CheckRequirementFilled passes when the named requirement is filled.
	CheckRequirementFilled CheckType = "requirement_filled"
	// CheckToolSucceeded passes when the named tool has a successful
	// invocation on record.
	CheckToolSucceeded CheckType = "tool_succeeded"
	// CheckToolBlocked passes when the named tool has a gate-denied
	// invocation on record.
	CheckToolBlocked CheckType = "tool_blocked"
	// CheckAssistantMentions passes when any assistant turn contains one
	// of the keywords (case-insensitive).
	CheckAssistantMentions CheckType = "assistant_mentions"
	// CheckPhaseReached passes when the session reached the named phase.
	CheckPhaseReached CheckType = "phase_reached"
)

// Check is one declarative predicate over recorded session state.
type Check struct {
	Type     CheckType `yaml:"type"`
	Key      string    `yaml:"key,omitempty"`      // requirement_filled
	Tool     string    `yaml:"tool,omitempty"`     // tool_succeeded
	Keywords []string  `yaml:"keywords,omitempty"` // assistant_mentions
	Phase    string    `yaml:"phase,omitempty"`    // phase_reached
	// Negate inverts the predicate (used by red flags).
	Negate bool `yaml:"negate,omitempty"`
}

// Criterion is one boolean rubric item within a phase.
type Criterion struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Check       Check  `yaml:"check"`
}

// PhaseRubric is the criteria set for one phase. Exactly CriteriaPerPhase
// criteria so satisfied-count maps directly onto the 0-4 scale.
type PhaseRubric struct {
	Phase    phase.Phase `yaml:"phase"`
	Criteria []Criterion `yaml:"criteria"`
}

// RedFlag fires when all of its conditions hold, independent of any score.
type RedFlag struct {
	ID          string  `yaml:"id"`
	Description string  `yaml:"description"`
	When        []Check `yaml:"when"`
}

// CriteriaPerPhase pins the satisfied-count -> score table: 0 criteria -> 0,
// each criterion worth one point, all four -> phase.MaxScore.
const CriteriaPerPhase = phase.MaxScore

// Rubric is the full scoring configuration. Immutable at runtime.
type Rubric struct {
	Version  string        `yaml:"version"`
	Phases   []PhaseRubric `yaml:"phases"`
	RedFlags []RedFlag     `yaml:"red_flags"`
}

// LoadRubric parses and validates a YAML rubric document.
func LoadRubric(data []byte) (*Rubric, error) {
	var r Rubric
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rubric: %w", err)
	}
	if len(r.Phases) == 0 {
		return nil, fmt.Errorf("rubric has no phases")
	}
	seen := make(map[phase.Phase]bool)
	for _, pr := range r.Phases {
		if phase.Index(pr.Phase) < 0 {
			return nil, fmt.Errorf("rubric names unknown phase %q", pr.Phase)
		}
		if seen[pr.Phase] {
			return nil, fmt.Errorf("rubric repeats phase %q", pr.Phase)
		}
		seen[pr.Phase] = true
		if len(pr.Criteria) != CriteriaPerPhase {
			return nil, fmt.Errorf("phase %q has %d criteria, want %d", pr.Phase, len(pr.Criteria), CriteriaPerPhase)
		}
		for _, c := range pr.Criteria {
			if err := validateCheck(c.Check); err != nil {
				return nil, fmt.Errorf("criterion %q: %w", c.ID, err)
			}
		}
	}
	for _, f := range r.RedFlags {
		if len(f.When) == 0 {
			return nil, fmt.Errorf("red flag %q has no conditions", f.ID)
		}
		for _, c := range f.When {
			if err := validateCheck(c); err != nil {
				return nil, fmt.Errorf("red flag %q: %w", f.ID, err)
			}
		}
	}
	return &r, nil
}

// LoadRubricFile reads a rubric from disk, falling back to the embedded
// default when path is empty.
func LoadRubricFile(path string) (*Rubric, error) {
	if path == "" {
		return LoadRubric(defaultRubricYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rubric: %w", err)
	}
	return LoadRubric(data)
}

func validateCheck(c Check) error {
	switch c.Type {
	case CheckRequirementFilled:
		if _, err := requirement.NewLedger().Record(requirement.Key(c.Key), "probe", false); err != nil {
			return err
		}
	case CheckToolSucceeded, CheckToolBlocked:
		if c.Tool == "" {
			return fmt.Errorf("%s check needs a tool", c.Type)
		}
	case CheckAssistantMentions:
		if len(c.Keywords) == 0 {
			return fmt.Errorf("assistant_mentions check needs keywords")
		}
	case CheckPhaseReached:
		if phase.Index(phase.Phase(c.Phase)) < 0 {
			return fmt.Errorf("phase_reached check names unknown phase %q", c.Phase)
		}
	default:
		return fmt.Errorf("unknown check type %q", c.Type)
	}
	return nil
}
