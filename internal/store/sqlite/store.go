package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gosuda/convlog/internal/domain"
)

// Store is the embedded SQLite backend for local single-node deployments.
type Store struct {
	db            *sql.DB
	conversations *ConversationRepo

	initMu      sync.Mutex
	initialized atomic.Bool
	closed      atomic.Bool
}

// New opens (or creates) the SQLite database at path. If path is empty it
// defaults to ./data/convlog.db. The parent directory is created if missing.
func New(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "./data/convlog.db"
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite.New: create data dir: %w", err)
		}
	}

	// _txlock=immediate takes the write lock at BEGIN so concurrent
	// appenders serialize instead of deadlocking on lock upgrade.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open: %w", err)
	}

	if path == ":memory:" {
		// Each pooled connection would otherwise get its own private database.
		db.SetMaxOpenConns(1)
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.New: ping: %w", err)
	}

	s := &Store{db: db}
	s.conversations = &ConversationRepo{store: s}

	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
  user_id TEXT NOT NULL,
  session_id TEXT NOT NULL,
  agent_id TEXT NOT NULL,
  message_index INTEGER NOT NULL,
  role TEXT NOT NULL,
  content TEXT NOT NULL,
  timestamp INTEGER NOT NULL,
  PRIMARY KEY (user_id, session_id, agent_id, message_index)
);

CREATE INDEX IF NOT EXISTS idx_conversations_lookup
ON conversations(user_id, session_id, agent_id);
`

// Init creates the conversations table and lookup index if they do not
// exist. Concurrent and repeated calls are safe.
func (s *Store) Init(ctx context.Context) error {
	if s.closed.Load() {
		return domain.ErrClosed
	}

	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.initialized.Load() {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite.Init: %w", err)
	}

	s.initialized.Store(true)
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return domain.ErrClosed
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite.Ping: %w", err)
	}
	return nil
}

// Close releases the database handle. Operations issued afterwards fail
// with domain.ErrClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite.Close: %w", err)
	}
	return nil
}

func (s *Store) Conversations() domain.ConversationRepository { return s.conversations }

// ready gates repository operations on the uninitialized -> initialized ->
// closed lifecycle: fail fast instead of blocking or corrupting state.
func (s *Store) ready() error {
	if s.closed.Load() {
		return domain.ErrClosed
	}
	if !s.initialized.Load() {
		return domain.ErrNotInitialized
	}
	return nil
}
