package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/convlog/internal/domain"
)

// MessageBody is the wire form of a stored message. Content is returned as
// the JSON value it was appended with.
type MessageBody struct {
	UserID    string          `json:"user_id"`
	SessionID string          `json:"session_id"`
	AgentID   string          `json:"agent_id"`
	Index     int64           `json:"message_index"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Timestamp int64           `json:"timestamp"`
}

func toMessageBody(m *domain.Message) MessageBody {
	return MessageBody{
		UserID:    m.UserID,
		SessionID: m.SessionID,
		AgentID:   m.AgentID,
		Index:     m.Index,
		Role:      m.Role,
		Content:   json.RawMessage(m.Content),
		Timestamp: m.Timestamp,
	}
}

type AppendMessageInput struct {
	UserID    string `path:"userID" doc:"User ID"`
	SessionID string `path:"sessionID" doc:"Session ID"`
	AgentID   string `path:"agentID" doc:"Agent ID"`
	Body      struct {
		Role      string          `json:"role" minLength:"1" doc:"Sender classification, e.g. user or assistant"`
		Content   json.RawMessage `json:"content" doc:"Arbitrary JSON message payload"`
		Timestamp int64           `json:"timestamp,omitempty" doc:"Epoch seconds; server time when omitted"`
	}
}

type AppendMessageOutput struct {
	Body MessageBody
}

type ListMessagesInput struct {
	UserID    string `path:"userID" doc:"User ID"`
	SessionID string `path:"sessionID" doc:"Session ID"`
	AgentID   string `path:"agentID" doc:"Agent ID"`
	Limit     int    `query:"limit" minimum:"0" doc:"Keep only the newest N messages; 0 returns all"`
}

type ListMessagesOutput struct {
	Body struct {
		Messages []MessageBody `json:"messages"`
	}
}

type GetMessageInput struct {
	UserID    string `path:"userID" doc:"User ID"`
	SessionID string `path:"sessionID" doc:"Session ID"`
	AgentID   string `path:"agentID" doc:"Agent ID"`
	Index     int64  `path:"index" minimum:"0" doc:"Message index within the scope"`
}

type GetMessageOutput struct {
	Body MessageBody
}

type CountMessagesInput struct {
	UserID    string `path:"userID" doc:"User ID"`
	SessionID string `path:"sessionID" doc:"Session ID"`
	AgentID   string `path:"agentID" doc:"Agent ID"`
}

type CountMessagesOutput struct {
	Body struct {
		Count int64 `json:"count"`
	}
}

func RegisterConversationRoutes(api huma.API, store DataStore, publisher MessagePublisher) {
	huma.Register(api, huma.Operation{
		OperationID: "append-message",
		Method:      http.MethodPost,
		Path:        "/conversations/{userID}/{sessionID}/{agentID}/messages",
		Summary:     "Append a message to a conversation scope",
		Tags:        []string{"Conversations"},
	}, func(ctx context.Context, input *AppendMessageInput) (*AppendMessageOutput, error) {
		if len(input.Body.Content) == 0 || !json.Valid(input.Body.Content) {
			return nil, huma.Error422UnprocessableEntity("content must be valid JSON")
		}

		scope := domain.Scope{
			UserID:    input.UserID,
			SessionID: input.SessionID,
			AgentID:   input.AgentID,
		}

		m, err := store.Conversations().Append(ctx, scope, input.Body.Role, string(input.Body.Content), input.Body.Timestamp)
		if err != nil {
			return nil, mapStoreError("failed to append message", err)
		}

		if publisher != nil {
			publisher.PublishMessage(ctx, m)
		}

		return &AppendMessageOutput{Body: toMessageBody(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/conversations/{userID}/{sessionID}/{agentID}/messages",
		Summary:     "Fetch conversation history in message_index order",
		Tags:        []string{"Conversations"},
	}, func(ctx context.Context, input *ListMessagesInput) (*ListMessagesOutput, error) {
		scope := domain.Scope{
			UserID:    input.UserID,
			SessionID: input.SessionID,
			AgentID:   input.AgentID,
		}

		messages, err := store.Conversations().List(ctx, scope, input.Limit)
		if err != nil {
			return nil, mapStoreError("failed to list messages", err)
		}

		out := &ListMessagesOutput{}
		out.Body.Messages = make([]MessageBody, 0, len(messages))
		for _, m := range messages {
			out.Body.Messages = append(out.Body.Messages, toMessageBody(m))
		}

		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-message",
		Method:      http.MethodGet,
		Path:        "/conversations/{userID}/{sessionID}/{agentID}/messages/{index}",
		Summary:     "Fetch a single message by index",
		Tags:        []string{"Conversations"},
	}, func(ctx context.Context, input *GetMessageInput) (*GetMessageOutput, error) {
		scope := domain.Scope{
			UserID:    input.UserID,
			SessionID: input.SessionID,
			AgentID:   input.AgentID,
		}

		m, err := store.Conversations().Get(ctx, scope, input.Index)
		if err != nil {
			return nil, mapStoreError("failed to get message", err)
		}

		return &GetMessageOutput{Body: toMessageBody(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "count-messages",
		Method:      http.MethodGet,
		Path:        "/conversations/{userID}/{sessionID}/{agentID}/count",
		Summary:     "Count messages stored for a conversation scope",
		Tags:        []string{"Conversations"},
	}, func(ctx context.Context, input *CountMessagesInput) (*CountMessagesOutput, error) {
		scope := domain.Scope{
			UserID:    input.UserID,
			SessionID: input.SessionID,
			AgentID:   input.AgentID,
		}

		count, err := store.Conversations().Count(ctx, scope)
		if err != nil {
			return nil, mapStoreError("failed to count messages", err)
		}

		out := &CountMessagesOutput{}
		out.Body.Count = count

		return out, nil
	})
}

// mapStoreError translates domain sentinels to HTTP problem responses.
func mapStoreError(detail string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return huma.Error404NotFound(detail, err)
	case errors.Is(err, domain.ErrInvalidScope):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, domain.ErrConflict):
		return huma.Error409Conflict(detail, err)
	case errors.Is(err, domain.ErrNotInitialized), errors.Is(err, domain.ErrClosed):
		return huma.Error503ServiceUnavailable(detail, err)
	default:
		return huma.Error500InternalServerError(detail, err)
	}
}
