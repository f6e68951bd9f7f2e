package sqlite_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/convlog/internal/domain"
	"github.com/gosuda/convlog/internal/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.Init(context.Background()))
	return st
}

func testScope() domain.Scope {
	return domain.Scope{UserID: "u1", SessionID: "s1", AgentID: "a1"}
}

func TestStore_InitIdempotent(t *testing.T) {
	t.Parallel()

	st, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	require.NoError(t, st.Init(ctx))
	require.NoError(t, st.Init(ctx), "second Init must be a no-op")

	// Data written after the first Init survives the second.
	_, err = st.Conversations().Append(ctx, testScope(), "user", `{"text":"hi"}`, 0)
	require.NoError(t, err)
	require.NoError(t, st.Init(ctx))

	count, err := st.Conversations().Count(ctx, testScope())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStore_OperationsBeforeInit(t *testing.T) {
	t.Parallel()

	st, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	ctx := context.Background()

	_, err = st.Conversations().Append(ctx, testScope(), "user", `{}`, 0)
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	_, err = st.Conversations().List(ctx, testScope(), 0)
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	_, err = st.Conversations().Count(ctx, testScope())
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestStore_OperationsAfterClose(t *testing.T) {
	t.Parallel()

	st, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, st.Init(ctx))
	require.NoError(t, st.Close())
	require.NoError(t, st.Close(), "Close must be idempotent")

	_, err = st.Conversations().Append(ctx, testScope(), "user", `{}`, 0)
	assert.ErrorIs(t, err, domain.ErrClosed)

	_, err = st.Conversations().List(ctx, testScope(), 0)
	assert.ErrorIs(t, err, domain.ErrClosed)

	assert.ErrorIs(t, st.Ping(ctx), domain.ErrClosed)
	assert.ErrorIs(t, st.Init(ctx), domain.ErrClosed)
}

func TestConversationRepo_AppendAssignsSequentialIndexes(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	repo := st.Conversations()
	scope := testScope()

	for i := range 5 {
		m, err := repo.Append(ctx, scope, "user", fmt.Sprintf(`{"n":%d}`, i), 0)
		require.NoError(t, err)
		assert.Equal(t, int64(i), m.Index)
		assert.Positive(t, m.Timestamp, "zero timestamp must be defaulted to now")
	}

	messages, err := repo.List(ctx, scope, 0)
	require.NoError(t, err)
	require.Len(t, messages, 5)
	for i, m := range messages {
		assert.Equal(t, int64(i), m.Index)
		assert.Equal(t, fmt.Sprintf(`{"n":%d}`, i), m.Content)
	}
}

func TestConversationRepo_AppendIsolatesScopes(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	repo := st.Conversations()

	a := domain.Scope{UserID: "u1", SessionID: "s1", AgentID: "planner"}
	b := domain.Scope{UserID: "u1", SessionID: "s1", AgentID: "coder"}

	_, err := repo.Append(ctx, a, "user", `{"text":"for planner"}`, 0)
	require.NoError(t, err)
	_, err = repo.Append(ctx, b, "user", `{"text":"for coder"}`, 0)
	require.NoError(t, err)

	// Indexes start at zero independently per scope.
	mb, err := repo.Append(ctx, b, "assistant", `{"text":"ack"}`, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), mb.Index)

	fromA, err := repo.List(ctx, a, 0)
	require.NoError(t, err)
	require.Len(t, fromA, 1)
	assert.Equal(t, `{"text":"for planner"}`, fromA[0].Content)
}

func TestConversationRepo_AppendInvalidScope(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.Conversations().Append(ctx, domain.Scope{UserID: "u1"}, "user", `{}`, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidScope)
}

func TestConversationRepo_InsertDuplicateIndex(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	repo := st.Conversations()

	m := &domain.Message{
		Scope:     testScope(),
		Index:     0,
		Role:      "user",
		Content:   `{"text":"first"}`,
		Timestamp: time.Now().Unix(),
	}
	require.NoError(t, repo.Insert(ctx, m))

	dup := &domain.Message{
		Scope:     testScope(),
		Index:     0,
		Role:      "user",
		Content:   `{"text":"second"}`,
		Timestamp: time.Now().Unix(),
	}
	err := repo.Insert(ctx, dup)
	assert.ErrorIs(t, err, domain.ErrConflict)

	// The original row is untouched.
	messages, err := repo.List(ctx, testScope(), 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, `{"text":"first"}`, messages[0].Content)
}

func TestConversationRepo_InsertNegativeIndex(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)

	err := st.Conversations().Insert(context.Background(), &domain.Message{
		Scope: testScope(),
		Index: -1,
		Role:  "user",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative index")
}

func TestConversationRepo_AppendAfterExplicitInsertGap(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	repo := st.Conversations()

	// A gap left by an explicit insert is tolerated: the next append
	// continues from the maximum, not from the hole.
	require.NoError(t, repo.Insert(ctx, &domain.Message{
		Scope: testScope(), Index: 10, Role: "user", Content: `{}`, Timestamp: 1,
	}))

	m, err := repo.Append(ctx, testScope(), "assistant", `{}`, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(11), m.Index)
}

func TestConversationRepo_Get(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	repo := st.Conversations()

	want, err := repo.Append(ctx, testScope(), "assistant", `{"text":"hey"}`, 0)
	require.NoError(t, err)

	got, err := repo.Get(ctx, testScope(), want.Index)
	require.NoError(t, err)
	assert.Equal(t, want.Content, got.Content)
	assert.Equal(t, want.Role, got.Role)
	assert.Equal(t, want.Timestamp, got.Timestamp)

	_, err = repo.Get(ctx, testScope(), 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConversationRepo_ListNewestWithLimit(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	repo := st.Conversations()
	scope := testScope()

	for i := range 10 {
		_, err := repo.Append(ctx, scope, "user", fmt.Sprintf(`{"n":%d}`, i), 0)
		require.NoError(t, err)
	}

	messages, err := repo.List(ctx, scope, 3)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	// Newest three, still in ascending index order.
	assert.Equal(t, int64(7), messages[0].Index)
	assert.Equal(t, int64(8), messages[1].Index)
	assert.Equal(t, int64(9), messages[2].Index)
}

func TestConversationRepo_ListLimitLargerThanHistory(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	repo := st.Conversations()

	_, err := repo.Append(ctx, testScope(), "user", `{}`, 0)
	require.NoError(t, err)

	messages, err := repo.List(ctx, testScope(), 100)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestConversationRepo_ListEmptyScope(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)

	messages, err := st.Conversations().List(context.Background(), testScope(), 0)
	require.NoError(t, err)
	assert.Empty(t, messages, "unknown scope lists as empty, not an error")
}

func TestConversationRepo_Count(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	repo := st.Conversations()

	count, err := repo.Count(ctx, testScope())
	require.NoError(t, err)
	assert.Zero(t, count)

	for range 4 {
		_, err = repo.Append(ctx, testScope(), "user", `{}`, 0)
		require.NoError(t, err)
	}

	count, err = repo.Count(ctx, testScope())
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestConversationRepo_PurgeBefore(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	repo := st.Conversations()

	old := time.Now().Add(-48 * time.Hour).Unix()
	fresh := time.Now().Unix()

	_, err := repo.Append(ctx, testScope(), "user", `{"text":"old"}`, old)
	require.NoError(t, err)
	_, err = repo.Append(ctx, testScope(), "user", `{"text":"fresh"}`, fresh)
	require.NoError(t, err)

	removed, err := repo.PurgeBefore(ctx, time.Now().Add(-24*time.Hour).Unix())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	messages, err := repo.List(ctx, testScope(), 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, `{"text":"fresh"}`, messages[0].Content)

	// Nothing left to purge.
	removed, err = repo.PurgeBefore(ctx, time.Now().Add(-24*time.Hour).Unix())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestConversationRepo_ConcurrentAppends(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	repo := st.Conversations()
	scope := testScope()

	const writers = 8

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = repo.Append(ctx, scope, "user", fmt.Sprintf(`{"writer":%d}`, i), 0)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	messages, err := repo.List(ctx, scope, 0)
	require.NoError(t, err)
	require.Len(t, messages, writers)

	// All writers landed on distinct, dense indexes.
	for i, m := range messages {
		assert.Equal(t, int64(i), m.Index)
	}
}
