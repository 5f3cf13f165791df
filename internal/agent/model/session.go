package model

import (
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/tilemart/salescore/internal/sales/phase"
	"github.com/tilemart/salescore/internal/sales/requirement"
	"github.com/tilemart/salescore/internal/sales/score"
)

// Role labels a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance of the session transcript.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolRecord is the immutable audit entry for one tool invocation: what was
// requested, what the gate decided, and what happened. The sequencer resumes
// from these and the scorer reads them; nothing ever rewrites one.
type ToolRecord struct {
	ID        string    `json:"id"`
	Tool      string    `json:"tool"`
	Arguments string    `json:"arguments,omitempty"`
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
	Succeeded bool      `json:"succeeded"`
	Payload   any       `json:"payload,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the orchestration core's exclusive view of one customer
// interaction. It is persisted to the external store only at checkpoints;
// nothing outside the core mutates it mid-session.
type Session struct {
	ID          string              `json:"id"`
	CustomerID  string              `json:"customer_id,omitempty"`
	Turns       []Turn              `json:"turns"`
	Phase       phase.Phase         `json:"phase"`
	ProjectType string              `json:"project_type,omitempty"`
	Ledger      *requirement.Ledger `json:"ledger"`
	Records     []ToolRecord        `json:"tool_records"`
	Scores      score.Report        `json:"scores"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// NewSession starts a fresh session in the greeting phase.
func NewSession(id, customerID string) *Session {
	now := time.Now().UTC()
	if id == "" {
		id = shortuuid.New()
	}
	return &Session{
		ID:         id,
		CustomerID: customerID,
		Phase:      phase.Greeting,
		Ledger:     requirement.NewLedger(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// AppendTurn records an utterance.
func (s *Session) AppendTurn(role Role, content string) {
	now := time.Now().UTC()
	s.Turns = append(s.Turns, Turn{Role: role, Content: content, Timestamp: now})
	s.UpdatedAt = now
}

// AppendRecord adds a tool invocation to the audit trail and returns it.
func (s *Session) AppendRecord(rec ToolRecord) ToolRecord {
	if rec.ID == "" {
		rec.ID = shortuuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	s.Records = append(s.Records, rec)
	s.UpdatedAt = rec.Timestamp
	return rec
}

// Succeeded reports whether the named tool has a successful invocation on
// record. Implements phase.ToolOutcome.
func (s *Session) Succeeded(toolName string) bool {
	for _, r := range s.Records {
		if r.Tool == toolName && r.Succeeded {
			return true
		}
	}
	return false
}

// Transcript produces the read-only view the compliance scorer consumes.
func (s *Session) Transcript() score.Transcript {
	turns := make([]score.Turn, 0, len(s.Turns))
	for _, t := range s.Turns {
		turns = append(turns, score.Turn{Role: string(t.Role), Content: t.Content})
	}
	events := make([]score.ToolEvent, 0, len(s.Records))
	for _, r := range s.Records {
		events = append(events, score.ToolEvent{Tool: r.Tool, Allowed: r.Allowed, Succeeded: r.Succeeded})
	}
	return score.Transcript{
		Turns:   turns,
		Ledger:  s.Ledger,
		Phase:   s.Phase,
		Records: events,
	}
}
