package model

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/schema"
)

// ErrSessionNotFound is returned by LoadSession when no checkpoint exists.
var ErrSessionNotFound = errors.New("session not found")

type ConversationRepository interface {
	// AddMessage appends a message to the conversation history.
	AddMessage(ctx context.Context, conversationID string, message *schema.Message) error

	// LoadHistory retrieves the conversation history for a conversation.
	LoadHistory(ctx context.Context, conversationID string) (*ConversationHistory, error)

	// ClearHistory removes all conversation history for a conversation.
	ClearHistory(ctx context.Context, conversationID string) error

	// GetMessageCount returns the number of messages in the conversation.
	GetMessageCount(ctx context.Context, conversationID string) (int, error)

	// SaveSession checkpoints the orchestration state. Called at phase
	// transitions and turn end; the store never mutates the session.
	SaveSession(ctx context.Context, session *Session) error

	// LoadSession restores a checkpointed session, or ErrSessionNotFound.
	LoadSession(ctx context.Context, sessionID string) (*Session, error)
}

// ConversationHistory represents loaded conversation data with metadata.
type ConversationHistory struct {
	ConversationID string
	Messages       []*schema.Message
}
