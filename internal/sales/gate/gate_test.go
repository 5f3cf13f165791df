package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilemart/salescore/internal/sales/phase"
	"github.com/tilemart/salescore/internal/sales/requirement"
)

type outcomes map[string]bool

func (o outcomes) Succeeded(name string) bool { return o[name] }

func completeLedger(t *testing.T) *requirement.Ledger {
	t.Helper()
	l := requirement.NewLedger()
	for _, k := range requirement.MandatoryKeys() {
		_, err := l.Record(k, "v", false)
		require.NoError(t, err)
	}
	return l
}

// TestAuthorizeTable walks the full gating table: every tool against every
// prerequisite state, met and unmet.
func TestAuthorizeTable(t *testing.T) {
	empty := requirement.NewLedger()
	complete := completeLedger(t)

	identified := requirement.NewLedger()
	_, err := identified.Record(requirement.KeyIdentity, "Dana", false)
	require.NoError(t, err)

	cases := []struct {
		name string
		tool string
		s    State
		want bool
	}{
		{"lookup always allowed", ToolLookupCustomer, State{Phase: phase.Greeting, Ledger: empty}, true},
		{"search blocked while facts missing", ToolSearchProduct, State{Phase: phase.NeedsAssessment, Ledger: empty}, false},
		{"search blocked with partial facts", ToolSearchProduct, State{Phase: phase.NeedsAssessment, Ledger: identified}, false},
		{"search allowed once complete", ToolSearchProduct, State{Phase: phase.DesignDetails, Ledger: complete}, true},
		{"calculate blocked without search", ToolCalculateMaterials, State{Phase: phase.DesignDetails, Ledger: complete}, false},
		{"calculate allowed after search", ToolCalculateMaterials, State{Phase: phase.DesignDetails, Ledger: complete, Tools: outcomes{ToolSearchProduct: true}}, true},
		{"close blocked without calculation", ToolAttemptClose, State{Phase: phase.DesignDetails, Ledger: complete, Tools: outcomes{ToolSearchProduct: true}}, false},
		{"close allowed after calculation", ToolAttemptClose, State{Phase: phase.Close, Ledger: complete, Tools: outcomes{ToolCalculateMaterials: true}}, true},
		{"save blocked without identity", ToolSaveProject, State{Phase: phase.Greeting, Ledger: empty}, false},
		{"save allowed with identity", ToolSaveProject, State{Phase: phase.NeedsAssessment, Ledger: identified}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Authorize(tc.tool, tc.s)
			assert.Equal(t, tc.want, d.Allowed, "reason: %s", d.Reason)
			assert.NotEmpty(t, d.Reason, "every decision carries a reason")
		})
	}
}

func TestAuthorizeUnknownTool(t *testing.T) {
	d := Authorize("drop_tables", State{Ledger: requirement.NewLedger()})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "unknown tool")
}

func TestDenialReasonNamesMissingKeys(t *testing.T) {
	l := requirement.NewLedger()
	_, err := l.Record(requirement.KeyIdentity, "Dana", false)
	require.NoError(t, err)
	_, err = l.Record(requirement.KeyDimensions, "10x10", false)
	require.NoError(t, err)

	d := Authorize(ToolSearchProduct, State{Phase: phase.NeedsAssessment, Ledger: l})
	require.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "budget")
	assert.Contains(t, d.Reason, "installation_method")
	assert.Contains(t, d.Reason, "timeline")
}

func TestKnown(t *testing.T) {
	for _, name := range Tools() {
		assert.True(t, Known(name), name)
	}
	assert.False(t, Known("get_weather"))
}
