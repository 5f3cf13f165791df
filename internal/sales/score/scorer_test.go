package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilemart/salescore/internal/sales/phase"
	"github.com/tilemart/salescore/internal/sales/requirement"
)

func loadDefault(t *testing.T) *Scorer {
	t.Helper()
	r, err := LoadRubricFile("")
	require.NoError(t, err)
	return NewScorer(r)
}

func fullTranscript(t *testing.T) Transcript {
	t.Helper()
	led := requirement.NewLedger()
	for _, k := range requirement.MandatoryKeys() {
		_, err := led.Record(k, "v", false)
		require.NoError(t, err)
	}
	_, err := led.Record(requirement.KeyProductSelected, "tile-oak-07", false)
	require.NoError(t, err)

	return Transcript{
		Turns: []Turn{
			{Role: "assistant", Content: "Welcome to Tilemart! I'm happy to walk you through your project - first, a few questions. Our installers have decades of experience."},
			{Role: "user", Content: "Hi, I'm redoing my bathroom floor."},
			{Role: "assistant", Content: "I'd recommend the oak-look porcelain as an option. With a straight pattern you'll need 8 boxes, and the total comes to $39.92. Shall I set aside the boxes and schedule delivery?"},
		},
		Ledger: led,
		Phase:  phase.Close,
		Records: []ToolEvent{
			{Tool: "search_product", Allowed: true, Succeeded: true},
			{Tool: "calculate_materials", Allowed: true, Succeeded: true},
			{Tool: "attempt_close", Allowed: true, Succeeded: true},
			{Tool: "save_project", Allowed: true, Succeeded: true},
		},
	}
}

func TestRubricLoads(t *testing.T) {
	r, err := LoadRubricFile("")
	require.NoError(t, err)
	assert.Len(t, r.Phases, len(phase.All()))
	for _, pr := range r.Phases {
		assert.Len(t, pr.Criteria, CriteriaPerPhase)
	}
	assert.NotEmpty(t, r.RedFlags)
}

func TestLoadRubricRejectsUnknownPhase(t *testing.T) {
	_, err := LoadRubric([]byte(`
version: "x"
phases:
  - phase: checkout
    criteria:
      - {id: a, description: a, check: {type: requirement_filled, key: identity}}
      - {id: b, description: b, check: {type: requirement_filled, key: budget}}
      - {id: c, description: c, check: {type: requirement_filled, key: timeline}}
      - {id: d, description: d, check: {type: requirement_filled, key: dimensions}}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown phase")
}

func TestPerfectSessionScoresFour(t *testing.T) {
	s := loadDefault(t)
	rep := s.Evaluate(fullTranscript(t))

	for _, p := range phase.All() {
		ps, ok := rep.Phases[p]
		require.True(t, ok, "phase %s missing from report", p)
		assert.Equal(t, phase.MaxScore, ps.Score, "phase %s: missing %v", p, ps.Missing)
	}
	assert.Empty(t, rep.RedFlags)
}

func TestPartialCriteriaCount(t *testing.T) {
	s := loadDefault(t)
	led := requirement.NewLedger()
	_, err := led.Record(requirement.KeyDimensions, "10x10", false)
	require.NoError(t, err)
	_, err = led.Record(requirement.KeyBudget, "1500", false)
	require.NoError(t, err)

	rep := s.Evaluate(Transcript{Ledger: led, Phase: phase.NeedsAssessment})
	assert.Equal(t, 2, rep.Phases[phase.NeedsAssessment].Score)
	assert.ElementsMatch(t, []string{"installation-method-collected", "timeline-collected"},
		rep.Phases[phase.NeedsAssessment].Missing)
}

func TestRedFlags(t *testing.T) {
	s := loadDefault(t)

	// Close reached without a close attempt, dimensions missing, and a
	// search that was blocked by the gate.
	rep := s.Evaluate(Transcript{
		Ledger: requirement.NewLedger(),
		Phase:  phase.Close,
		Records: []ToolEvent{
			{Tool: "search_product", Allowed: false},
		},
	})

	assert.Contains(t, rep.RedFlags, "dimensions never collected")
	assert.Contains(t, rep.RedFlags, "close phase reached with zero close-attempt tool invocations")
	assert.Contains(t, rep.RedFlags, "product search attempted before needs assessment was complete")
}

func TestScoringIsDeterministic(t *testing.T) {
	s := loadDefault(t)
	tr := fullTranscript(t)

	first := s.Evaluate(tr)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Evaluate(tr))
	}
}

func TestScorerDoesNotMutateState(t *testing.T) {
	s := loadDefault(t)
	tr := fullTranscript(t)
	missingBefore := tr.Ledger.Missing()
	recordsBefore := len(tr.Records)

	_ = s.Evaluate(tr)

	assert.Equal(t, missingBefore, tr.Ledger.Missing())
	assert.Equal(t, recordsBefore, len(tr.Records))
}
