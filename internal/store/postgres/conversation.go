package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gosuda/convlog/internal/domain"
)

// pgUniqueViolation is the SQLSTATE raised on primary-key conflicts.
const pgUniqueViolation = "23505"

// appendRetries bounds the re-read-and-retry loop when two appenders race
// for the same message_index.
const appendRetries = 3

// ConversationRepo implements domain.ConversationRepository over PostgreSQL.
type ConversationRepo struct {
	store *Store
}

func (r *ConversationRepo) Append(ctx context.Context, scope domain.Scope, role, content string, timestamp int64) (*domain.Message, error) {
	if err := r.store.ready(); err != nil {
		return nil, err
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if timestamp <= 0 {
		timestamp = time.Now().Unix()
	}

	var lastErr error
	for range appendRetries {
		m, err := r.appendOnce(ctx, scope, role, content, timestamp)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("postgres.ConversationRepo.Append: %w", err)
		}
		lastErr = err
	}

	return nil, fmt.Errorf("postgres.ConversationRepo.Append: retries exhausted: %w", lastErr)
}

func (r *ConversationRepo) appendOnce(ctx context.Context, scope domain.Scope, role, content string, timestamp int64) (*domain.Message, error) {
	tx, err := r.store.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var next int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(message_index) + 1, 0) FROM conversations
		 WHERE user_id = $1 AND session_id = $2 AND agent_id = $3`,
		scope.UserID, scope.SessionID, scope.AgentID,
	).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("next index: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO conversations (user_id, session_id, agent_id, message_index, role, content, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		scope.UserID, scope.SessionID, scope.AgentID, next, role, content, timestamp,
	)
	if err != nil {
		return nil, mapErr(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &domain.Message{
		Scope:     scope,
		Index:     next,
		Role:      role,
		Content:   content,
		Timestamp: timestamp,
	}, nil
}

func (r *ConversationRepo) Insert(ctx context.Context, m *domain.Message) error {
	if err := r.store.ready(); err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Index < 0 {
		return fmt.Errorf("postgres.ConversationRepo.Insert: negative index %d", m.Index)
	}
	if m.Timestamp <= 0 {
		m.Timestamp = time.Now().Unix()
	}

	_, err := r.store.pool.Exec(ctx,
		`INSERT INTO conversations (user_id, session_id, agent_id, message_index, role, content, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.UserID, m.SessionID, m.AgentID, m.Index, m.Role, m.Content, m.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres.ConversationRepo.Insert: %w", mapErr(err))
	}

	return nil
}

func (r *ConversationRepo) Get(ctx context.Context, scope domain.Scope, index int64) (*domain.Message, error) {
	if err := r.store.ready(); err != nil {
		return nil, err
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	m := domain.Message{Scope: scope, Index: index}
	err := r.store.pool.QueryRow(ctx,
		`SELECT role, content, timestamp FROM conversations
		 WHERE user_id = $1 AND session_id = $2 AND agent_id = $3 AND message_index = $4`,
		scope.UserID, scope.SessionID, scope.AgentID, index,
	).Scan(&m.Role, &m.Content, &m.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres.ConversationRepo.Get: %w", err)
	}

	return &m, nil
}

func (r *ConversationRepo) List(ctx context.Context, scope domain.Scope, limit int) ([]*domain.Message, error) {
	if err := r.store.ready(); err != nil {
		return nil, err
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT message_index, role, content, timestamp FROM conversations
	          WHERE user_id = $1 AND session_id = $2 AND agent_id = $3
	          ORDER BY message_index ASC`
	args := []any{scope.UserID, scope.SessionID, scope.AgentID}

	if limit > 0 {
		// Keep the newest limit messages; rows come back descending and are
		// reversed below so callers always see ascending index order.
		query = `SELECT message_index, role, content, timestamp FROM conversations
		         WHERE user_id = $1 AND session_id = $2 AND agent_id = $3
		         ORDER BY message_index DESC LIMIT $4`
		args = append(args, limit)
	}

	rows, err := r.store.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres.ConversationRepo.List: %w", err)
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		m := domain.Message{Scope: scope}

		err = rows.Scan(&m.Index, &m.Role, &m.Content, &m.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("postgres.ConversationRepo.List: scan: %w", err)
		}
		messages = append(messages, &m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres.ConversationRepo.List: rows: %w", err)
	}

	if limit > 0 {
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}

	return messages, nil
}

func (r *ConversationRepo) Count(ctx context.Context, scope domain.Scope) (int64, error) {
	if err := r.store.ready(); err != nil {
		return 0, err
	}
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	var count int64
	err := r.store.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM conversations WHERE user_id = $1 AND session_id = $2 AND agent_id = $3`,
		scope.UserID, scope.SessionID, scope.AgentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres.ConversationRepo.Count: %w", err)
	}

	return count, nil
}

func (r *ConversationRepo) PurgeBefore(ctx context.Context, cutoff int64) (int64, error) {
	if err := r.store.ready(); err != nil {
		return 0, err
	}

	tag, err := r.store.pool.Exec(ctx,
		`DELETE FROM conversations WHERE timestamp < $1`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres.ConversationRepo.PurgeBefore: %w", err)
	}

	return tag.RowsAffected(), nil
}

// mapErr translates unique-constraint violations to domain.ErrConflict.
func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return err
}
