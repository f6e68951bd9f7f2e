package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/convlog/internal/api/v1"
	"github.com/gosuda/convlog/internal/api/ws"
	"github.com/gosuda/convlog/internal/store"
)

func registerAPIRoutes(api huma.API, st store.Store, hub *ws.Hub) {
	// A nil *ws.Hub must become a nil interface so handlers skip fan-out.
	var publisher v1.MessagePublisher
	if hub != nil {
		publisher = hub
	}
	v1.RegisterConversationRoutes(api, st, publisher)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/conversations/{userID}/{sessionID}/{agentID}", hub.ServeConversation)
}
