package model

import (
	"github.com/cloudwego/eino/schema"

	"github.com/tilemart/salescore/internal/sales/phase"
	"github.com/tilemart/salescore/internal/sales/question"
	"github.com/tilemart/salescore/internal/sales/score"
	"github.com/tilemart/salescore/internal/sales/sequence"
)

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex/atomic is required as long as you never touch it outside handlers.
//   - The Session pointer is loaded once at turn start and checkpointed by the
//     repository at turn end; turns within a session are strictly sequential.
type AppState struct {
	Session              *Session
	History              []*schema.Message // mutated only inside Eino state handlers
	Extraction           *Extraction       // set by parser post-handler
	ChainResult          *sequence.Result  // set by the tool executor after auto-sequencing
	PendingQuestions     []question.Ranked // selected by the decision node for the response prompt
	ToolCallCount        int
	ToolCallLimitReached bool
	ToolCallIDSeq        int // local sequence to synthesize tool_call_id when provider omits
	RecordsAtTurnStart   int // index into Session.Records when the turn began

	// Accumulated total LLM cost (USD) across model invocations for this turn
	TotalCostUSD float64
}

// QueryInput represents one inbound customer utterance.
type QueryInput struct {
	SessionID  string `json:"session_id"`
	CustomerID string `json:"customer_id,omitempty"`
	Query      string `json:"query"`
}

// TurnOutput is the session-boundary response shape: everything the
// transport layer needs to marshal back to the caller.
type TurnOutput struct {
	SessionID  string           `json:"session_id"`
	Response   string           `json:"response"`
	Phase      phase.Phase      `json:"phase"`
	FiredTools []ToolRecord     `json:"fired_tools,omitempty"`
	Scores     score.Report     `json:"scores"`
	Chain      *sequence.Result `json:"chain,omitempty"`
	CostUSD    float64          `json:"cost_usd,omitempty"`
}
