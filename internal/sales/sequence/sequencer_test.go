package sequence

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilemart/salescore/internal/sales/gate"
)

type counter struct {
	calls map[string]int
	fail  map[string]int // fail the first n calls of a tool
}

func newCounter() *counter {
	return &counter{calls: map[string]int{}, fail: map[string]int{}}
}

func (c *counter) step(tool string, mutating bool) Step {
	return Step{
		Tool:     tool,
		Mutating: mutating,
		Run: func(context.Context) (any, error) {
			c.calls[tool]++
			if c.fail[tool] > 0 {
				c.fail[tool]--
				return nil, fmt.Errorf("%s unavailable", tool)
			}
			return tool + "-payload", nil
		},
	}
}

func allowAll(string) gate.Decision {
	return gate.Decision{Allowed: true, Reason: "ok"}
}

func chain(c *counter) *Runner {
	return NewRunner([]Step{
		c.step("search_product", false),
		c.step("calculate_materials", false),
		c.step("attempt_close", true),
	})
}

func TestFullChainRuns(t *testing.T) {
	c := newCounter()
	done := map[string]bool{}

	res := chain(c).Run(context.Background(), Hooks{
		Authorize: allowAll,
		Succeeded: func(tool string) bool { return done[tool] },
		Record: func(r StepResult) {
			if r.Status == StatusDone {
				done[r.Tool] = true
			}
		},
	})

	require.False(t, res.Halted)
	require.Len(t, res.Steps, 3)
	for _, s := range res.Steps {
		assert.Equal(t, StatusDone, s.Status)
	}
	assert.Equal(t, 1, c.calls["search_product"])
	assert.Equal(t, 1, c.calls["attempt_close"])
}

func TestHaltsAtGate(t *testing.T) {
	c := newCounter()
	res := chain(c).Run(context.Background(), Hooks{
		Authorize: func(tool string) gate.Decision {
			if tool == "calculate_materials" {
				return gate.Decision{Allowed: false, Reason: "no successful product search"}
			}
			return gate.Decision{Allowed: true, Reason: "ok"}
		},
	})

	require.True(t, res.Halted)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, StatusDone, res.Steps[0].Status)
	assert.Equal(t, StatusBlocked, res.Steps[1].Status)
	assert.Equal(t, 0, c.calls["calculate_materials"], "blocked step must not run")
	assert.Equal(t, 0, c.calls["attempt_close"])
}

func TestFailureHaltsWithPartialResults(t *testing.T) {
	c := newCounter()
	c.fail["calculate_materials"] = 2 // fails the initial call and the retry

	res := chain(c).Run(context.Background(), Hooks{Authorize: allowAll})

	require.True(t, res.Halted)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, StatusDone, res.Steps[0].Status)
	assert.Equal(t, StatusFailed, res.Steps[1].Status)
	assert.Contains(t, res.Reason, "calculate_materials")
	assert.Equal(t, 0, c.calls["attempt_close"], "failed step must never be skipped over")
}

func TestReadOnlyStepRetriedOnce(t *testing.T) {
	c := newCounter()
	c.fail["search_product"] = 1 // first call fails, retry succeeds

	res := chain(c).Run(context.Background(), Hooks{Authorize: allowAll})

	require.False(t, res.Halted)
	assert.Equal(t, 2, c.calls["search_product"])
	assert.True(t, res.Steps[0].Retried)
}

func TestMutatingStepNeverRetried(t *testing.T) {
	c := newCounter()
	c.fail["attempt_close"] = 1

	res := chain(c).Run(context.Background(), Hooks{Authorize: allowAll})

	require.True(t, res.Halted)
	assert.Equal(t, 1, c.calls["attempt_close"])
	assert.Equal(t, StatusFailed, res.Steps[2].Status)
	assert.False(t, res.Steps[2].Retried)
}

func TestResumeSkipsSucceededSteps(t *testing.T) {
	c := newCounter()
	c.fail["calculate_materials"] = 2
	done := map[string]bool{}
	hooks := Hooks{
		Authorize: allowAll,
		Succeeded: func(tool string) bool { return done[tool] },
		Record: func(r StepResult) {
			if r.Status == StatusDone {
				done[r.Tool] = true
			}
		},
	}

	first := chain(c).Run(context.Background(), hooks)
	require.True(t, first.Halted)
	require.Equal(t, 1, c.calls["search_product"])

	// Re-invoking after the failure resumes at calculate, not at search.
	second := chain(c).Run(context.Background(), hooks)
	require.False(t, second.Halted)
	assert.Equal(t, 1, c.calls["search_product"], "search must not be re-invoked")
	assert.Equal(t, StatusAlreadyDone, second.Steps[0].Status)
	assert.Equal(t, StatusDone, second.Steps[1].Status)
	assert.Equal(t, StatusDone, second.Steps[2].Status)
}
