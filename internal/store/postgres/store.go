package postgres

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/convlog/internal/domain"
)

// Store is the remote PostgreSQL backend.
type Store struct {
	pool          *pgxpool.Pool
	conversations *ConversationRepo

	initMu      sync.Mutex
	initialized atomic.Bool
	closed      atomic.Bool
}

// New connects to PostgreSQL at dsn. authToken, when non-empty, overrides
// the connection password (remote deployments issuing rotating tokens).
func New(ctx context.Context, dsn, authToken string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	if authToken != "" {
		cfg.ConnConfig.Password = authToken
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	s := &Store{pool: pool}
	s.conversations = &ConversationRepo{store: s}

	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
  user_id TEXT NOT NULL,
  session_id TEXT NOT NULL,
  agent_id TEXT NOT NULL,
  message_index BIGINT NOT NULL,
  role TEXT NOT NULL,
  content TEXT NOT NULL,
  timestamp BIGINT NOT NULL,
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

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres.Init: %w", err)
	}

	s.initialized.Store(true)
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return domain.ErrClosed
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres.Ping: %w", err)
	}
	return nil
}

// Close releases the connection pool. Operations issued afterwards fail
// with domain.ErrClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.pool.Close()
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
