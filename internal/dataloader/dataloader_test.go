package dataloader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/UkralStul/forum-service/internal/domain"
	"github.com/UkralStul/forum-service/internal/storage/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore считает обращения к GetRepliesByPostIDs.
type countingStore struct {
	*inmemory.Store
	mu    sync.Mutex
	calls int
	err   error
}

func (s *countingStore) GetRepliesByPostIDs(ctx context.Context, postIDs []string) (map[string][]*domain.Reply, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.Store.GetRepliesByPostIDs(ctx, postIDs)
}

func TestLoaders_LoadReplies_Batches(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: inmemory.New()}

	p1, err := store.CreatePost(ctx, &domain.Post{Title: "a", Content: "a"})
	require.NoError(t, err)
	p2, err := store.CreatePost(ctx, &domain.Post{Title: "b", Content: "b"})
	require.NoError(t, err)
	_, err = store.CreateReply(ctx, &domain.Reply{PostID: p1.ID, Content: "one"})
	require.NoError(t, err)
	_, err = store.CreateReply(ctx, &domain.Reply{PostID: p1.ID, Content: "two"})
	require.NoError(t, err)

	loaders := NewLoaders(store)
	got, err := loaders.LoadReplies(ctx, []string{p1.ID, p2.ID})
	require.NoError(t, err)

	require.Len(t, got[p1.ID], 2)
	assert.Equal(t, "one", got[p1.ID][0].Content)
	assert.Equal(t, "two", got[p1.ID][1].Content)
	assert.NotNil(t, got[p2.ID])
	assert.Empty(t, got[p2.ID])
	assert.Equal(t, 1, store.calls)
}

func TestLoaders_LoadReplies_Error(t *testing.T) {
	store := &countingStore{Store: inmemory.New(), err: errors.New("db down")}

	_, err := NewLoaders(store).LoadReplies(context.Background(), []string{"x"})
	assert.EqualError(t, err, "db down")
}

func TestMiddleware_InjectsLoaders(t *testing.T) {
	assert.Nil(t, For(context.Background()))

	var seen *Loaders
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = For(r.Context())
	})
	rec := httptest.NewRecorder()
	Middleware(inmemory.New(), next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts", nil))

	require.NotNil(t, seen)
	assert.NotNil(t, seen.RepliesByPostID)
}
