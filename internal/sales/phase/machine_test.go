package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilemart/salescore/internal/sales/requirement"
)

type fakeOutcome map[string]bool

func (f fakeOutcome) Succeeded(name string) bool { return f[name] }

func fullLedger(t *testing.T) *requirement.Ledger {
	t.Helper()
	l := requirement.NewLedger()
	for _, k := range requirement.MandatoryKeys() {
		_, err := l.Record(k, "x", false)
		require.NoError(t, err)
	}
	return l
}

func TestInitialPhase(t *testing.T) {
	assert.Equal(t, Greeting, NewMachine().Current())
}

func TestGreetingToNeedsAssessment(t *testing.T) {
	m := NewMachine()
	l := requirement.NewLedger()

	// Identity alone is not enough.
	_, err := l.Record(requirement.KeyIdentity, "Dana", false)
	require.NoError(t, err)
	assert.Empty(t, m.Reevaluate(Input{Ledger: l}))
	assert.Equal(t, Greeting, m.Current())

	// Identity plus a project-type signal moves the session forward.
	entered := m.Reevaluate(Input{Ledger: l, ProjectType: "bathroom_floor"})
	assert.Equal(t, []Phase{NeedsAssessment}, entered)
}

func TestNeedsAssessmentGateRequiresAllFiveFacts(t *testing.T) {
	// Fill the five mandatory facts in a scrambled order: the machine may
	// only enter design details after the last one lands.
	order := []requirement.Key{
		requirement.KeyTimeline,
		requirement.KeyIdentity,
		requirement.KeyInstallationMethod,
		requirement.KeyDimensions,
		requirement.KeyBudget,
	}

	m := NewMachine()
	l := requirement.NewLedger()
	in := Input{Ledger: l, ProjectType: "kitchen_backsplash"}

	for i, k := range order {
		_, err := l.Record(k, "v", false)
		require.NoError(t, err)
		m.Reevaluate(in)
		if i < len(order)-1 {
			assert.NotEqual(t, DesignDetails, m.Current(), "entered design details after %d facts", i+1)
		}
	}
	assert.Equal(t, DesignDetails, m.Current())
}

func TestCloseRequiresSelectionAndCalculation(t *testing.T) {
	m := Restore(DesignDetails)
	l := fullLedger(t)
	in := Input{Ledger: l, ProjectType: "bathroom_floor"}

	m.Reevaluate(in)
	assert.Equal(t, DesignDetails, m.Current())

	_, err := l.Record(requirement.KeyProductSelected, "tile-oak-07", false)
	require.NoError(t, err)
	m.Reevaluate(in)
	assert.Equal(t, DesignDetails, m.Current(), "selection without calculation must not close")

	in.Tools = fakeOutcome{ToolCalculateMaterials: true}
	entered := m.Reevaluate(in)
	assert.Equal(t, []Phase{Close}, entered)
	assert.Equal(t, Close, m.Current())
}

func TestReevaluateSkipsNothing(t *testing.T) {
	// A ledger that satisfies every predicate at once still walks the
	// phases one by one, in order.
	m := NewMachine()
	l := fullLedger(t)
	_, err := l.Record(requirement.KeyProductSelected, "tile-slate-01", false)
	require.NoError(t, err)

	entered := m.Reevaluate(Input{
		Ledger:      l,
		ProjectType: "entryway",
		Tools:       fakeOutcome{ToolCalculateMaterials: true},
	})
	assert.Equal(t, []Phase{NeedsAssessment, DesignDetails, Close}, entered)
}

func TestForceBlockedTransition(t *testing.T) {
	m := NewMachine()
	l := requirement.NewLedger()

	err := m.Force(DesignDetails, Input{Ledger: l})
	require.ErrorIs(t, err, ErrGateViolation)
	assert.Equal(t, Greeting, m.Current())

	err = m.Force(Phase("checkout"), Input{Ledger: l})
	require.ErrorIs(t, err, ErrGateViolation)
}

func TestNoRegression(t *testing.T) {
	m := Restore(Close)
	err := m.Force(NeedsAssessment, Input{Ledger: fullLedger(t), ProjectType: "p"})
	require.ErrorIs(t, err, ErrGateViolation)
	assert.Equal(t, Close, m.Current())
}

func TestMonotonicPhaseIndex(t *testing.T) {
	m := NewMachine()
	l := requirement.NewLedger()
	in := Input{Ledger: l}

	last := Index(m.Current())
	steps := []func(){
		func() { _, _ = l.Record(requirement.KeyIdentity, "Kim", false); in.ProjectType = "shower_wall" },
		func() { _, _ = l.Record(requirement.KeyDimensions, "5x8", false) },
		func() { _, _ = l.Record(requirement.KeyBudget, "1200", false) },
		func() { _, _ = l.Record(requirement.KeyInstallationMethod, "contractor", false) },
		func() { _, _ = l.Record(requirement.KeyTimeline, "spring", false) },
	}
	for _, step := range steps {
		step()
		m.Reevaluate(in)
		cur := Index(m.Current())
		assert.GreaterOrEqual(t, cur, last)
		last = cur
	}
}

func TestResetPolicies(t *testing.T) {
	l := fullLedger(t)
	m := Restore(DesignDetails)

	m.Reset(ResetPhaseOnly, l)
	assert.Equal(t, Greeting, m.Current())
	assert.Empty(t, l.Missing(), "phase-only reset must keep the ledger")

	m = Restore(DesignDetails)
	m.Reset(ResetPhaseAndLedger, l)
	assert.Equal(t, Greeting, m.Current())
	assert.Equal(t, requirement.MandatoryKeys(), l.Missing())
}
