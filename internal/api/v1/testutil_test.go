package v1_test

import (
	"context"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"

	v1 "github.com/gosuda/convlog/internal/api/v1"
	"github.com/gosuda/convlog/internal/domain"
)

// mockConversationRepo implements domain.ConversationRepository with
// overridable function fields.
type mockConversationRepo struct {
	AppendFunc      func(ctx context.Context, scope domain.Scope, role, content string, timestamp int64) (*domain.Message, error)
	InsertFunc      func(ctx context.Context, m *domain.Message) error
	GetFunc         func(ctx context.Context, scope domain.Scope, index int64) (*domain.Message, error)
	ListFunc        func(ctx context.Context, scope domain.Scope, limit int) ([]*domain.Message, error)
	CountFunc       func(ctx context.Context, scope domain.Scope) (int64, error)
	PurgeBeforeFunc func(ctx context.Context, cutoff int64) (int64, error)
}

var _ domain.ConversationRepository = (*mockConversationRepo)(nil)

func (m *mockConversationRepo) Append(ctx context.Context, scope domain.Scope, role, content string, timestamp int64) (*domain.Message, error) {
	return m.AppendFunc(ctx, scope, role, content, timestamp)
}

func (m *mockConversationRepo) Insert(ctx context.Context, msg *domain.Message) error {
	return m.InsertFunc(ctx, msg)
}

func (m *mockConversationRepo) Get(ctx context.Context, scope domain.Scope, index int64) (*domain.Message, error) {
	return m.GetFunc(ctx, scope, index)
}

func (m *mockConversationRepo) List(ctx context.Context, scope domain.Scope, limit int) ([]*domain.Message, error) {
	return m.ListFunc(ctx, scope, limit)
}

func (m *mockConversationRepo) Count(ctx context.Context, scope domain.Scope) (int64, error) {
	return m.CountFunc(ctx, scope)
}

func (m *mockConversationRepo) PurgeBefore(ctx context.Context, cutoff int64) (int64, error) {
	return m.PurgeBeforeFunc(ctx, cutoff)
}

type mockDataStore struct {
	conversations *mockConversationRepo
}

var _ v1.DataStore = (*mockDataStore)(nil)

func (m *mockDataStore) Conversations() domain.ConversationRepository {
	return m.conversations
}

// capturePublisher records every fanned-out message.
type capturePublisher struct {
	published []*domain.Message
}

var _ v1.MessagePublisher = (*capturePublisher)(nil)

func (p *capturePublisher) PublishMessage(_ context.Context, m *domain.Message) {
	p.published = append(p.published, m)
}

func newTestAPI(t *testing.T, repo *mockConversationRepo, publisher v1.MessagePublisher) humatest.TestAPI {
	t.Helper()

	_, api := humatest.New(t)
	v1.RegisterConversationRoutes(api, &mockDataStore{conversations: repo}, publisher)
	return api
}
