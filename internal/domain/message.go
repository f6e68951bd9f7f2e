package domain

import "context"

// Scope identifies one ordered message stream: the (user, session, agent)
// triple that a conversation history belongs to.
type Scope struct {
	UserID    string
	SessionID string
	AgentID   string
}

// Validate checks that every scope component is non-empty.
func (s Scope) Validate() error {
	if s.UserID == "" || s.SessionID == "" || s.AgentID == "" {
		return ErrInvalidScope
	}
	return nil
}

func (s Scope) String() string {
	return s.UserID + "/" + s.SessionID + "/" + s.AgentID
}

// Message is a single conversation turn persisted for one scope.
// Content holds the payload exactly as stored: JSON text.
type Message struct {
	Scope
	Index     int64 // message_index: strictly increasing within the scope
	Role      string
	Content   string
	Timestamp int64 // epoch seconds, set at write time
}

// ConversationRepository stores and retrieves ordered messages per scope.
type ConversationRepository interface {
	// Append assigns the next message_index for the scope and inserts the
	// row. Safe for concurrent appenders to the same scope; returns the
	// stored message with its assigned index.
	Append(ctx context.Context, scope Scope, role, content string, timestamp int64) (*Message, error)

	// Insert stores a message with a caller-assigned index. A duplicate
	// (scope, index) fails with ErrConflict.
	Insert(ctx context.Context, m *Message) error

	// Get returns the message at index for the scope, or ErrNotFound.
	Get(ctx context.Context, scope Scope, index int64) (*Message, error)

	// List returns messages for the scope ascending by index. limit > 0
	// keeps the newest limit messages; limit <= 0 returns the full history.
	List(ctx context.Context, scope Scope, limit int) ([]*Message, error)

	// Count returns the number of messages stored for the scope.
	Count(ctx context.Context, scope Scope) (int64, error)

	// PurgeBefore deletes messages with a timestamp older than cutoff
	// (epoch seconds) across all scopes. Returns the rows removed.
	PurgeBefore(ctx context.Context, cutoff int64) (int64, error)
}
