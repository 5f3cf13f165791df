// Package gate decides whether a requested tool invocation is allowed given
// the session's phase, collected facts, and prior tool outcomes. Denial is a
// normal result, never an error: the caller asks a clarifying question
// instead of invoking the tool.
package gate

import (
	"fmt"
	"strings"

	"github.com/tilemart/salescore/internal/sales/phase"
	"github.com/tilemart/salescore/internal/sales/requirement"
)

// Tool names known to the gate. Any other name is a validation failure at the
// dispatch layer, not a gate decision.
const (
	ToolSearchProduct      = phase.ToolSearchProduct
	ToolCalculateMaterials = phase.ToolCalculateMaterials
	ToolAttemptClose       = phase.ToolAttemptClose
	ToolLookupCustomer     = phase.ToolLookupCustomer
	ToolSaveProject        = phase.ToolSaveProject
)

// Decision is the gate's verdict for one request.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// State is the recorded session state a rule may consult.
type State struct {
	Phase  phase.Phase
	Ledger *requirement.Ledger
	Tools  phase.ToolOutcome
}

func (s State) succeeded(tool string) bool {
	return s.Tools != nil && s.Tools.Succeeded(tool)
}

// rule is one declarative prerequisite for a tool.
type rule struct {
	check func(State) Decision
}

// rules is the gating table. Each entry states its prerequisite in terms of
// the ledger and prior tool outcomes so the table is testable without any
// model involved.
var rules = map[string]rule{
	ToolLookupCustomer: {check: func(State) Decision {
		return allow("customer lookup has no prerequisites")
	}},
	ToolSearchProduct: {check: func(s State) Decision {
		if missing := s.Ledger.Missing(); len(missing) > 0 {
			return deny("needs assessment incomplete: missing " + joinKeys(missing))
		}
		return allow("needs assessment complete")
	}},
	ToolCalculateMaterials: {check: func(s State) Decision {
		if !s.succeeded(ToolSearchProduct) {
			return deny("no successful product search recorded for this session")
		}
		return allow("product search succeeded")
	}},
	ToolAttemptClose: {check: func(s State) Decision {
		if !s.succeeded(ToolCalculateMaterials) {
			return deny("no successful calculation recorded for this session")
		}
		return allow("calculation available")
	}},
	ToolSaveProject: {check: func(s State) Decision {
		if !s.Ledger.IsFilled(requirement.KeyIdentity) {
			return deny("cannot save a project without customer identity")
		}
		return allow("customer identified")
	}},
}

// Known reports whether the gate has a rule for the tool.
func Known(toolName string) bool {
	_, ok := rules[toolName]
	return ok
}

// Tools returns the gated tool names in dependency-chain order.
func Tools() []string {
	return []string{ToolLookupCustomer, ToolSearchProduct, ToolCalculateMaterials, ToolAttemptClose, ToolSaveProject}
}

// Authorize evaluates the gating table for one tool request. Unknown tools
// are denied with an explanatory reason; the dispatch layer additionally
// treats them as validation errors.
func Authorize(toolName string, s State) Decision {
	r, ok := rules[toolName]
	if !ok {
		return deny(fmt.Sprintf("unknown tool %q", toolName))
	}
	if s.Ledger == nil {
		return deny("no session state")
	}
	return r.check(s)
}

func joinKeys(keys []requirement.Key) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}
