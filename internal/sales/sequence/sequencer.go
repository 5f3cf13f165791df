// Package sequence chains dependent tool invocations once their
// prerequisites hold, without a fresh model round-trip per step. The chain is
// declarative: an ordered list of steps, each gated before it runs. A failure
// halts the chain and reports partial progress; re-running resumes at the
// first step that has not yet succeeded.
package sequence

import (
	"context"

	"github.com/tilemart/salescore/internal/sales/gate"
	logx "github.com/tilemart/salescore/pkg/logger"
)

// StepFunc executes one tool with arguments the engine has already bound.
// The returned payload is recorded verbatim in the session's tool record.
type StepFunc func(ctx context.Context) (payload any, err error)

// Step is one link of the dependency chain.
type Step struct {
	Tool string
	// Mutating steps are never retried automatically: a duplicate close
	// attempt or project save is a real side effect.
	Mutating bool
	Run      StepFunc
}

// Status classifies what happened to a step during one chain run.
type Status string

const (
	// StatusDone means the step ran and succeeded in this invocation.
	StatusDone Status = "done"
	// StatusAlreadyDone means a prior invocation had succeeded; the step
	// was not re-run.
	StatusAlreadyDone Status = "already_done"
	// StatusBlocked means the gate denied the step; the chain stops.
	StatusBlocked Status = "blocked"
	// StatusFailed means the step ran and returned an error.
	StatusFailed Status = "failed"
)

// StepResult is the outcome of one step within a chain run.
type StepResult struct {
	Tool     string        `json:"tool"`
	Status   Status        `json:"status"`
	Decision gate.Decision `json:"decision"`
	Payload  any           `json:"payload,omitempty"`
	Err      string        `json:"error,omitempty"`
	Retried  bool          `json:"retried,omitempty"`
}

// Result is the outcome of a whole chain run. Halted is set when a step was
// blocked or failed; the steps before it still carry their results.
type Result struct {
	Steps  []StepResult `json:"steps"`
	Halted bool         `json:"halted"`
	Reason string       `json:"reason,omitempty"`
}

// Hooks connect the sequencer to the session state it must consult and
// update between steps.
type Hooks struct {
	// Authorize is consulted with the state as updated by earlier steps.
	Authorize func(tool string) gate.Decision
	// Succeeded reports whether a previous invocation of the tool already
	// succeeded in this session. Drives resume-instead-of-restart.
	Succeeded func(tool string) bool
	// Record is called after every attempted step so the ledger, tool
	// record, and phase state see the outcome before the next gate check.
	Record func(res StepResult)
}

// Runner executes a fixed chain against per-session hooks.
type Runner struct {
	steps []Step
}

func NewRunner(steps []Step) *Runner {
	return &Runner{steps: steps}
}

// Run walks the chain in order. Each step runs to completion before the next
// is considered. Non-mutating steps get one automatic retry on failure.
func (r *Runner) Run(ctx context.Context, h Hooks) Result {
	var out Result
	for _, step := range r.steps {
		if h.Succeeded != nil && h.Succeeded(step.Tool) {
			out.Steps = append(out.Steps, StepResult{
				Tool:     step.Tool,
				Status:   StatusAlreadyDone,
				Decision: gate.Decision{Allowed: true, Reason: "already succeeded in this session"},
			})
			continue
		}

		decision := gate.Decision{Allowed: true, Reason: "no gate configured"}
		if h.Authorize != nil {
			decision = h.Authorize(step.Tool)
		}
		if !decision.Allowed {
			logx.Debug().
				Str("tool", step.Tool).
				Str("reason", decision.Reason).
				Msg("chain stopped at gate")
			res := StepResult{Tool: step.Tool, Status: StatusBlocked, Decision: decision}
			if h.Record != nil {
				h.Record(res)
			}
			out.Steps = append(out.Steps, res)
			out.Halted = true
			out.Reason = decision.Reason
			return out
		}

		res := r.execute(ctx, step, decision)
		if h.Record != nil {
			h.Record(res)
		}
		out.Steps = append(out.Steps, res)
		if res.Status == StatusFailed {
			out.Halted = true
			out.Reason = res.Err
			return out
		}
	}
	return out
}

func (r *Runner) execute(ctx context.Context, step Step, decision gate.Decision) StepResult {
	payload, err := step.Run(ctx)
	retried := false
	if err != nil && !step.Mutating {
		// One retry for idempotent read-only steps; mutating steps
		// would duplicate side effects.
		logx.Warn().Str("tool", step.Tool).Err(err).Msg("step failed, retrying once")
		retried = true
		payload, err = step.Run(ctx)
	}
	if err != nil {
		logx.Error().Str("tool", step.Tool).Err(err).Msg("step failed")
		return StepResult{Tool: step.Tool, Status: StatusFailed, Decision: decision, Err: err.Error(), Retried: retried}
	}
	return StepResult{Tool: step.Tool, Status: StatusDone, Decision: decision, Payload: payload, Retried: retried}
}
