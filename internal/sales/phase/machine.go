package phase

import (
	"fmt"

	"github.com/tilemart/salescore/internal/sales/requirement"
)

// Phase is one step of the sales methodology. Phases are strictly ordered and
// a session never moves backwards except through an explicit reset.
type Phase string

const (
	Greeting        Phase = "greeting"
	NeedsAssessment Phase = "needs_assessment"
	DesignDetails   Phase = "design_details"
	Close           Phase = "close"
)

// ordered lists the phases in methodology order.
var ordered = []Phase{Greeting, NeedsAssessment, DesignDetails, Close}

// Index returns the position of p in the methodology order, or -1 for an
// unknown phase.
func Index(p Phase) int {
	for i, q := range ordered {
		if q == p {
			return i
		}
	}
	return -1
}

// All returns the phases in order.
func All() []Phase {
	out := make([]Phase, len(ordered))
	copy(out, ordered)
	return out
}

// MaxScore is the compliance ceiling per phase.
const MaxScore = 4

// ErrGateViolation is returned when a transition is forced while its entry
// predicate is false. Callers treat it as a blocked action, not a crash.
var ErrGateViolation = fmt.Errorf("phase gate violation")

// ToolOutcome is the slice of the session's tool record the machine needs:
// which tools have succeeded so far.
type ToolOutcome interface {
	Succeeded(toolName string) bool
}

// Tool names the machine's predicates reference. Kept here rather than in the
// tool registry so the machine stays a leaf package.
const (
	ToolSearchProduct      = "search_product"
	ToolCalculateMaterials = "calculate_materials"
	ToolAttemptClose       = "attempt_close"
	ToolLookupCustomer     = "lookup_customer"
	ToolSaveProject        = "save_project"
)

// Input is everything an entry predicate may consult.
type Input struct {
	Ledger *requirement.Ledger
	Tools  ToolOutcome
	// ProjectType is the detected project type ("bathroom_floor",
	// "kitchen_backsplash", ...), empty until extraction finds one.
	ProjectType string
}

func (in Input) succeeded(tool string) bool {
	return in.Tools != nil && in.Tools.Succeeded(tool)
}

// entryPredicate reports whether the session may enter the phase.
type entryPredicate func(in Input) bool

var entryPredicates = map[Phase]entryPredicate{
	Greeting: func(Input) bool { return true },
	NeedsAssessment: func(in Input) bool {
		return in.Ledger.IsFilled(requirement.KeyIdentity) && in.ProjectType != ""
	},
	DesignDetails: func(in Input) bool {
		return in.Ledger.IsComplete(requirement.MandatoryKeys()...)
	},
	Close: func(in Input) bool {
		return in.Ledger.IsFilled(requirement.KeyProductSelected) &&
			in.succeeded(ToolCalculateMaterials)
	},
}

// ResetPolicy decides what a customer-initiated topic change clears. The
// source methodology leaves this open, so it is configuration, not a guess.
type ResetPolicy string

const (
	// ResetPhaseOnly rewinds the phase marker but keeps collected facts.
	ResetPhaseOnly ResetPolicy = "phase_only"
	// ResetPhaseAndLedger also discards the requirement ledger.
	ResetPhaseAndLedger ResetPolicy = "phase_and_ledger"
)

// Machine tracks the current phase for one session. Not safe for concurrent
// use; turns within a session are sequential.
type Machine struct {
	current Phase
}

func NewMachine() *Machine {
	return &Machine{current: Greeting}
}

// Restore rebuilds a machine at a checkpointed phase. Unknown phases fall
// back to Greeting.
func Restore(p Phase) *Machine {
	if Index(p) < 0 {
		p = Greeting
	}
	return &Machine{current: p}
}

// Current returns the phase the session is in.
func (m *Machine) Current() Phase {
	return m.current
}

// Reevaluate advances the machine as far as entry predicates allow, one phase
// at a time, and returns the phases entered this call in order. It never
// regresses.
func (m *Machine) Reevaluate(in Input) []Phase {
	var entered []Phase
	for {
		i := Index(m.current)
		if i < 0 || i+1 >= len(ordered) {
			return entered
		}
		next := ordered[i+1]
		if !entryPredicates[next](in) {
			return entered
		}
		m.current = next
		entered = append(entered, next)
	}
}

// Force attempts a direct transition to target. The transition fails with
// ErrGateViolation when the target is behind the current phase or any entry
// predicate on the way is false; the caller is expected to ask for the
// missing information instead of treating this as fatal.
func (m *Machine) Force(target Phase, in Input) error {
	ti := Index(target)
	if ti < 0 {
		return fmt.Errorf("%w: unknown phase %q", ErrGateViolation, target)
	}
	if ti < Index(m.current) {
		return fmt.Errorf("%w: cannot regress from %s to %s", ErrGateViolation, m.current, target)
	}
	for i := Index(m.current) + 1; i <= ti; i++ {
		if !entryPredicates[ordered[i]](in) {
			return fmt.Errorf("%w: entry conditions for %s not met", ErrGateViolation, ordered[i])
		}
	}
	m.current = target
	return nil
}

// Reset rewinds the machine to Greeting and, depending on policy, clears the
// ledger. The only sanctioned way to move backwards.
func (m *Machine) Reset(policy ResetPolicy, led *requirement.Ledger) {
	m.current = Greeting
	if policy == ResetPhaseAndLedger && led != nil {
		led.Reset()
	}
}
