package store

import (
	"context"
	"strings"

	"github.com/gosuda/convlog/internal/domain"
	"github.com/gosuda/convlog/internal/store/postgres"
	"github.com/gosuda/convlog/internal/store/sqlite"
)

// Store is the backend-agnostic handle over the conversation log.
// Both *sqlite.Store and *postgres.Store satisfy this interface.
type Store interface {
	// Init creates the conversations schema if it does not exist.
	// Idempotent; must complete before any read or write is issued.
	Init(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
	Conversations() domain.ConversationRepository
}

// Open selects a backend from the store URL. postgres:// and postgresql://
// URLs open the remote backend; everything else (a bare filesystem path or
// a file: URL) opens the embedded SQLite backend. authToken, when set,
// overrides the password of a remote connection.
func Open(ctx context.Context, url, authToken string, maxConns int32) (Store, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return postgres.New(ctx, url, authToken, maxConns)
	}
	return sqlite.New(ctx, strings.TrimPrefix(url, "file:"))
}
