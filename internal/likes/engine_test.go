package likes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/UkralStul/forum-service/internal/domain"
	"github.com/UkralStul/forum-service/internal/logging"
	"github.com/UkralStul/forum-service/internal/storage/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStore отдает ошибки из очереди, затем делегирует настоящему хранилищу.
type scriptedStore struct {
	mu    sync.Mutex
	errs  []error
	calls int
	next  func(ctx context.Context, userID, postID string) (domain.LikeResult, error)
}

func (s *scriptedStore) ToggleLike(ctx context.Context, userID, postID string) (domain.LikeResult, error) {
	s.mu.Lock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		s.mu.Unlock()
		return domain.LikeResult{}, err
	}
	s.mu.Unlock()
	return s.next(ctx, userID, postID)
}

func newTestEngine(t *testing.T) (*Engine, *inmemory.Store, *domain.User, *domain.Post) {
	t.Helper()
	store := inmemory.New()
	ctx := context.Background()
	user, err := store.CreateUser(ctx, &domain.User{Username: "alice", PasswordHash: "hash"})
	require.NoError(t, err)
	post, err := store.CreatePost(ctx, &domain.Post{Title: "Hello", Content: "World"})
	require.NoError(t, err)
	engine := NewEngine(store, Options{
		MaxRetries:   DefaultMaxRetries,
		StoreTimeout: time.Second,
		RetryDelay:   time.Millisecond,
		Logger:       logging.Discard(),
	})
	return engine, store, user, post
}

func TestEngine_ToggleAlternates(t *testing.T) {
	engine, store, user, post := newTestEngine(t)
	ctx := context.Background()

	res, err := engine.Toggle(ctx, user.ID, post.ID)
	require.NoError(t, err)
	assert.True(t, res.Liked())
	assert.Equal(t, 1, res.NoLikes)

	u, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{post.ID}, u.PostLiked)

	res, err = engine.Toggle(ctx, user.ID, post.ID)
	require.NoError(t, err)
	assert.False(t, res.Liked())
	assert.Equal(t, 0, res.NoLikes)

	p, err := store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Zero(t, p.NoLikes)
	assert.Empty(t, p.UsersLiked)
}

func TestEngine_NotFound(t *testing.T) {
	engine, _, user, post := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Toggle(ctx, user.ID, "missing")
	assert.ErrorIs(t, err, domain.ErrPostNotFound)

	_, err = engine.Toggle(ctx, "missing", post.ID)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = engine.Toggle(ctx, "", post.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestEngine_RetriesConflicts(t *testing.T) {
	_, store, user, post := newTestEngine(t)
	scripted := &scriptedStore{
		errs: []error{domain.ErrConflict, domain.ErrConflict},
		next: store.ToggleLike,
	}
	engine := NewEngine(scripted, Options{MaxRetries: 3, RetryDelay: time.Millisecond, Logger: logging.Discard()})

	res, err := engine.Toggle(context.Background(), user.ID, post.ID)
	require.NoError(t, err)
	assert.True(t, res.Liked())
	assert.Equal(t, 3, scripted.calls)
}

func TestEngine_ConflictsExhausted(t *testing.T) {
	_, store, user, post := newTestEngine(t)
	scripted := &scriptedStore{
		errs: []error{domain.ErrConflict, domain.ErrConflict, domain.ErrConflict, domain.ErrConflict, domain.ErrConflict},
		next: store.ToggleLike,
	}
	engine := NewEngine(scripted, Options{MaxRetries: 2, RetryDelay: time.Millisecond, Logger: logging.Discard()})

	_, err := engine.Toggle(context.Background(), user.ID, post.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 3, scripted.calls)

	// Ни одна попытка не применилась
	p, err := store.GetPostByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Zero(t, p.NoLikes)
}

func TestEngine_MaxRetriesZeroValue(t *testing.T) {
	conflicts := func() []error {
		return []error{domain.ErrConflict, domain.ErrConflict, domain.ErrConflict, domain.ErrConflict, domain.ErrConflict}
	}

	// Пустые Options дают повторы по умолчанию
	_, store, user, post := newTestEngine(t)
	scripted := &scriptedStore{errs: conflicts(), next: store.ToggleLike}
	engine := NewEngine(scripted, Options{RetryDelay: time.Millisecond, Logger: logging.Discard()})
	_, err := engine.Toggle(context.Background(), user.ID, post.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, DefaultMaxRetries+1, scripted.calls)

	scripted = &scriptedStore{errs: conflicts(), next: store.ToggleLike}
	engine = NewEngine(scripted, Options{MaxRetries: NoRetries, RetryDelay: time.Millisecond, Logger: logging.Discard()})
	_, err = engine.Toggle(context.Background(), user.ID, post.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 1, scripted.calls)
}

func TestEngine_NonConflictErrorsAreNotRetried(t *testing.T) {
	_, store, user, post := newTestEngine(t)
	scripted := &scriptedStore{
		errs: []error{fmt.Errorf("driver: %w", context.DeadlineExceeded)},
		next: store.ToggleLike,
	}
	engine := NewEngine(scripted, Options{MaxRetries: 3, RetryDelay: time.Millisecond, Logger: logging.Discard()})

	_, err := engine.Toggle(context.Background(), user.ID, post.ID)
	assert.ErrorIs(t, err, domain.ErrStorageTimeout)
	assert.Equal(t, 1, scripted.calls)

	scripted.errs = []error{errors.New("boom")}
	scripted.calls = 0
	_, err = engine.Toggle(context.Background(), user.ID, post.ID)
	assert.EqualError(t, err, "toggle like: boom")
	assert.Equal(t, 1, scripted.calls)
}

func TestEngine_StoreTimeout(t *testing.T) {
	_, _, user, post := newTestEngine(t)
	blocking := &scriptedStore{
		next: func(ctx context.Context, _, _ string) (domain.LikeResult, error) {
			<-ctx.Done()
			return domain.LikeResult{}, ctx.Err()
		},
	}
	engine := NewEngine(blocking, Options{MaxRetries: 3, StoreTimeout: 20 * time.Millisecond, Logger: logging.Discard()})

	start := time.Now()
	_, err := engine.Toggle(context.Background(), user.ID, post.ID)
	assert.ErrorIs(t, err, domain.ErrStorageTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, blocking.calls)
}

func TestEngine_ConcurrentDistinctUsersConverge(t *testing.T) {
	engine, store, _, post := newTestEngine(t)
	ctx := context.Background()

	const n = 64
	ids := make([]string, n)
	for i := range ids {
		u, err := store.CreateUser(ctx, &domain.User{Username: fmt.Sprintf("user%d", i), PasswordHash: "h"})
		require.NoError(t, err)
		ids[i] = u.ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			if _, err := engine.Toggle(ctx, uid, post.ID); err != nil {
				errs <- err
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("toggle failed: %v", err)
	}

	p, err := store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, n, p.NoLikes)
	assert.Len(t, p.UsersLiked, n)
	for _, id := range ids {
		u, err := store.GetUserByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []string{post.ID}, u.PostLiked)
	}
}
