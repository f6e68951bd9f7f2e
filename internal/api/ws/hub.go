package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/gosuda/convlog/internal/domain"
	redisstore "github.com/gosuda/convlog/internal/store/redis"
)

// Hub manages WebSocket connections backed by Redis pub/sub.
type Hub struct {
	pubsub *redisstore.PubSub
}

// NewHub creates a new WebSocket hub.
func NewHub(pubsub *redisstore.PubSub) *Hub {
	return &Hub{pubsub: pubsub}
}

// ServeConversation handles WebSocket connections tailing one conversation
// scope. Subscribes to Redis channel "conv:<userID>:<sessionID>:<agentID>"
// and streams appended messages to the client.
func (h *Hub) ServeConversation(w http.ResponseWriter, r *http.Request) {
	scope := domain.Scope{
		UserID:    chi.URLParam(r, "userID"),
		SessionID: chi.URLParam(r, "sessionID"),
		AgentID:   chi.URLParam(r, "agentID"),
	}
	if err := scope.Validate(); err != nil {
		http.Error(w, "invalid conversation scope", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	channel := redisstore.ScopeChannel(scope)

	messages, cleanup, err := h.pubsub.Subscribe(ctx, channel)
	if err != nil {
		log.Error().Err(err).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}

// PublishMessage fans an appended message out to live tail subscribers.
// Fan-out is best effort; a publish failure never fails the append.
func (h *Hub) PublishMessage(ctx context.Context, m *domain.Message) {
	event := MessageEvent{
		UserID:    m.UserID,
		SessionID: m.SessionID,
		AgentID:   m.AgentID,
		Index:     m.Index,
		Role:      m.Role,
		Content:   json.RawMessage(m.Content),
		Timestamp: m.Timestamp,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Warn().Err(err).Str("scope", m.Scope.String()).Msg("ws: marshal message event")
		return
	}

	if err := h.pubsub.Publish(ctx, redisstore.ScopeChannel(m.Scope), payload); err != nil {
		log.Warn().Err(err).Str("scope", m.Scope.String()).Msg("ws: publish message event")
	}
}
