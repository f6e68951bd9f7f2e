package ws

import "encoding/json"

// MessageEvent is the wire form of a live-tailed append.
type MessageEvent struct {
	UserID    string          `json:"user_id"`
	SessionID string          `json:"session_id"`
	AgentID   string          `json:"agent_id"`
	Index     int64           `json:"message_index"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Timestamp int64           `json:"timestamp"`
}
