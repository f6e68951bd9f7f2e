package v1

import (
	"context"

	"github.com/gosuda/convlog/internal/domain"
)

// DataStore abstracts the repository accessor pattern for handler testing.
// *sqlite.Store and *postgres.Store satisfy this interface.
type DataStore interface {
	Conversations() domain.ConversationRepository
}

// MessagePublisher fans appended messages out to live tail subscribers.
// *ws.Hub satisfies this interface. A nil publisher disables fan-out.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, m *domain.Message)
}
