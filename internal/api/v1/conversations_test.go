package v1_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/convlog/internal/domain"
)

func TestAppendMessage(t *testing.T) {
	t.Parallel()

	var gotScope domain.Scope
	repo := &mockConversationRepo{
		AppendFunc: func(_ context.Context, scope domain.Scope, role, content string, _ int64) (*domain.Message, error) {
			gotScope = scope
			return &domain.Message{
				Scope:     scope,
				Index:     4,
				Role:      role,
				Content:   content,
				Timestamp: 1700000000,
			}, nil
		},
	}
	publisher := &capturePublisher{}
	api := newTestAPI(t, repo, publisher)

	resp := api.Post("/conversations/u1/s1/a1/messages", map[string]any{
		"role":    "user",
		"content": map[string]any{"text": "hello"},
	})
	require.Equal(t, http.StatusOK, resp.Code)

	assert.Equal(t, domain.Scope{UserID: "u1", SessionID: "s1", AgentID: "a1"}, gotScope)

	var body struct {
		Index     int64           `json:"message_index"`
		Role      string          `json:"role"`
		Content   json.RawMessage `json:"content"`
		Timestamp int64           `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, int64(4), body.Index)
	assert.Equal(t, "user", body.Role)
	assert.JSONEq(t, `{"text":"hello"}`, string(body.Content))
	assert.Equal(t, int64(1700000000), body.Timestamp)

	require.Len(t, publisher.published, 1)
	assert.Equal(t, int64(4), publisher.published[0].Index)
}

func TestAppendMessage_NilPublisher(t *testing.T) {
	t.Parallel()

	repo := &mockConversationRepo{
		AppendFunc: func(_ context.Context, scope domain.Scope, role, content string, _ int64) (*domain.Message, error) {
			return &domain.Message{Scope: scope, Role: role, Content: content}, nil
		},
	}
	api := newTestAPI(t, repo, nil)

	resp := api.Post("/conversations/u1/s1/a1/messages", map[string]any{
		"role":    "user",
		"content": map[string]any{"text": "hello"},
	})
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAppendMessage_InvalidContent(t *testing.T) {
	t.Parallel()

	repo := &mockConversationRepo{
		AppendFunc: func(_ context.Context, _ domain.Scope, _, _ string, _ int64) (*domain.Message, error) {
			t.Fatal("store must not be called for invalid content")
			return nil, nil
		},
	}
	api := newTestAPI(t, repo, nil)

	resp := api.Post("/conversations/u1/s1/a1/messages", map[string]any{
		"role": "user",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestAppendMessage_StoreErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "conflict", err: domain.ErrConflict, wantCode: http.StatusConflict},
		{name: "not initialized", err: domain.ErrNotInitialized, wantCode: http.StatusServiceUnavailable},
		{name: "closed", err: domain.ErrClosed, wantCode: http.StatusServiceUnavailable},
		{name: "invalid scope", err: domain.ErrInvalidScope, wantCode: http.StatusUnprocessableEntity},
		{name: "unknown", err: errors.New("disk on fire"), wantCode: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := &mockConversationRepo{
				AppendFunc: func(_ context.Context, _ domain.Scope, _, _ string, _ int64) (*domain.Message, error) {
					return nil, tc.err
				},
			}
			api := newTestAPI(t, repo, nil)

			resp := api.Post("/conversations/u1/s1/a1/messages", map[string]any{
				"role":    "user",
				"content": map[string]any{},
			})
			assert.Equal(t, tc.wantCode, resp.Code)
		})
	}
}

func TestListMessages(t *testing.T) {
	t.Parallel()

	var gotLimit int
	repo := &mockConversationRepo{
		ListFunc: func(_ context.Context, scope domain.Scope, limit int) ([]*domain.Message, error) {
			gotLimit = limit
			return []*domain.Message{
				{Scope: scope, Index: 0, Role: "user", Content: `{"text":"hi"}`, Timestamp: 1},
				{Scope: scope, Index: 1, Role: "assistant", Content: `{"text":"hey"}`, Timestamp: 2},
			}, nil
		},
	}
	api := newTestAPI(t, repo, nil)

	resp := api.Get("/conversations/u1/s1/a1/messages?limit=50")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 50, gotLimit)

	var body struct {
		Messages []struct {
			Index int64  `json:"message_index"`
			Role  string `json:"role"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Messages, 2)
	assert.Equal(t, int64(0), body.Messages[0].Index)
	assert.Equal(t, "assistant", body.Messages[1].Role)
}

func TestListMessages_Empty(t *testing.T) {
	t.Parallel()

	repo := &mockConversationRepo{
		ListFunc: func(_ context.Context, _ domain.Scope, _ int) ([]*domain.Message, error) {
			return nil, nil
		},
	}
	api := newTestAPI(t, repo, nil)

	resp := api.Get("/conversations/u1/s1/a1/messages")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"messages":[]`, "empty history is an empty array, not null")
}

func TestGetMessage(t *testing.T) {
	t.Parallel()

	repo := &mockConversationRepo{
		GetFunc: func(_ context.Context, scope domain.Scope, index int64) (*domain.Message, error) {
			return &domain.Message{
				Scope:     scope,
				Index:     index,
				Role:      "assistant",
				Content:   `{"text":"hey"}`,
				Timestamp: 1700000000,
			}, nil
		},
	}
	api := newTestAPI(t, repo, nil)

	resp := api.Get("/conversations/u1/s1/a1/messages/3")
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Index int64  `json:"message_index"`
		Role  string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body.Index)
	assert.Equal(t, "assistant", body.Role)
}

func TestGetMessage_NotFound(t *testing.T) {
	t.Parallel()

	repo := &mockConversationRepo{
		GetFunc: func(_ context.Context, _ domain.Scope, _ int64) (*domain.Message, error) {
			return nil, domain.ErrNotFound
		},
	}
	api := newTestAPI(t, repo, nil)

	resp := api.Get("/conversations/u1/s1/a1/messages/99")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCountMessages(t *testing.T) {
	t.Parallel()

	repo := &mockConversationRepo{
		CountFunc: func(_ context.Context, scope domain.Scope) (int64, error) {
			assert.Equal(t, "u1", scope.UserID)
			return 12, nil
		},
	}
	api := newTestAPI(t, repo, nil)

	resp := api.Get("/conversations/u1/s1/a1/count")
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Count int64 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, int64(12), body.Count)
}

func TestCountMessages_StoreUnavailable(t *testing.T) {
	t.Parallel()

	repo := &mockConversationRepo{
		CountFunc: func(_ context.Context, _ domain.Scope) (int64, error) {
			return 0, domain.ErrClosed
		},
	}
	api := newTestAPI(t, repo, nil)

	resp := api.Get("/conversations/u1/s1/a1/count")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
