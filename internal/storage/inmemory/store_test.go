// internal/storage/inmemory/store_test.go

package inmemory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/UkralStul/forum-service/internal/domain"
	"github.com/UkralStul/forum-service/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore создает хранилище, одного пользователя и один пост для тестов
func newTestStore(t *testing.T) (storage.Storage, *domain.User, *domain.Post) {
	t.Helper()
	store := New()
	ctx := context.Background()
	user, err := store.CreateUser(ctx, &domain.User{Username: "alice", PasswordHash: "hash"})
	require.NoError(t, err)
	post, err := store.CreatePost(ctx, &domain.Post{Title: "Hello", Content: "World"})
	require.NoError(t, err)
	return store, user, post
}

func TestStore_CreateAndGetPost(t *testing.T) {
	store, _, post := newTestStore(t)
	ctx := context.Background()

	retrieved, err := store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", retrieved.Title)
	assert.Zero(t, retrieved.NoLikes)
	assert.Empty(t, retrieved.ReplyIDs)
	assert.Empty(t, retrieved.UsersLiked)

	_, err = store.GetPostByID(ctx, "non-existent-id")
	assert.ErrorIs(t, err, domain.ErrPostNotFound)
}

func TestStore_CreateUser_Duplicate(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, err := store.CreateUser(context.Background(), &domain.User{Username: "alice", PasswordHash: "x"})
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStore_CreateReply_AppendsToPost(t *testing.T) {
	store, _, post := newTestStore(t)
	ctx := context.Background()

	r1, err := store.CreateReply(ctx, &domain.Reply{PostID: post.ID, Content: "first"})
	require.NoError(t, err)
	r2, err := store.CreateReply(ctx, &domain.Reply{PostID: post.ID, Content: "second"})
	require.NoError(t, err)

	got, err := store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{r1.ID, r2.ID}, got.ReplyIDs)
	assert.Equal(t, 2, got.NoReplies)

	byPost, err := store.GetRepliesByPostIDs(ctx, []string{post.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, byPost[post.ID], 2)
	assert.Equal(t, "first", byPost[post.ID][0].Content)
	assert.Empty(t, byPost["missing"])

	n, err := store.CountReplies(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestStore_CreateReply_PostNotFound(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateReply(ctx, &domain.Reply{PostID: "nope", Content: "lost"})
	assert.ErrorIs(t, err, domain.ErrPostNotFound)

	n, err := store.CountReplies(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_ToggleLike_Involution(t *testing.T) {
	store, user, post := newTestStore(t)
	ctx := context.Background()

	res, err := store.ToggleLike(ctx, user.ID, post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Liked, res.State)
	assert.Equal(t, 1, res.NoLikes)

	p, err := store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{user.ID}, p.UsersLiked)
	u, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{post.ID}, u.PostLiked)

	res, err = store.ToggleLike(ctx, user.ID, post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Unliked, res.State)
	assert.Equal(t, 0, res.NoLikes)

	p, err = store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, p.UsersLiked)
	u, err = store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, u.PostLiked)
}

func TestStore_ToggleLike_NotFound(t *testing.T) {
	store, user, post := newTestStore(t)
	ctx := context.Background()

	_, err := store.ToggleLike(ctx, user.ID, "missing-post")
	assert.ErrorIs(t, err, domain.ErrPostNotFound)
	_, err = store.ToggleLike(ctx, "missing-user", post.ID)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestStore_ToggleLike_ConcurrentDistinctUsers(t *testing.T) {
	store, _, post := newTestStore(t)
	ctx := context.Background()

	const n = 50
	users := make([]*domain.User, n)
	for i := range users {
		u, err := store.CreateUser(ctx, &domain.User{Username: fmt.Sprintf("user-%d", i), PasswordHash: "h"})
		require.NoError(t, err)
		users[i] = u
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := store.ToggleLike(ctx, id, post.ID)
			assert.NoError(t, err)
		}(u.ID)
	}
	wg.Wait()

	p, err := store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, n, p.NoLikes)
	assert.Len(t, p.UsersLiked, n)

	active, err := store.CountActiveUsers(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, n, active)
}

func TestStore_ToggleLike_ConcurrentSamePair(t *testing.T) {
	store, user, post := newTestStore(t)
	ctx := context.Background()

	// Четное число переключений одной пары возвращает исходное состояние.
	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ToggleLike(ctx, user.ID, post.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, p.NoLikes)
	assert.Empty(t, p.UsersLiked)
	u, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, u.PostLiked)
}

func TestStore_ToggleLike_RespectsContext(t *testing.T) {
	store, user, post := newTestStore(t)
	s := store.(*Store)

	// Держим семафор поста, чтобы переключение ждало его.
	rec := s.postRec(post.ID)
	require.NoError(t, rec.sem.Acquire(context.Background(), 1))
	defer rec.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := store.ToggleLike(ctx, user.ID, post.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStore_Sessions(t *testing.T) {
	store, user, _ := newTestStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	require.NoError(t, store.SetSession(ctx, user.ID, "digest-1", exp))
	got, err := store.GetUserBySessionDigest(ctx, "digest-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	// Новая сессия вытесняет старую.
	require.NoError(t, store.SetSession(ctx, user.ID, "digest-2", exp))
	_, err = store.GetUserBySessionDigest(ctx, "digest-1")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	require.NoError(t, store.ClearSessionByDigest(ctx, "digest-2"))
	require.NoError(t, store.ClearSessionByDigest(ctx, "digest-2"))
	_, err = store.GetUserBySessionDigest(ctx, "digest-2")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	u, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, u.HasSession())
}

func TestStore_TopPosts(t *testing.T) {
	store, user, first := newTestStore(t)
	ctx := context.Background()

	second, err := store.CreatePost(ctx, &domain.Post{Title: "Second", Content: "c"})
	require.NoError(t, err)
	third, err := store.CreatePost(ctx, &domain.Post{Title: "Third", Content: "c"})
	require.NoError(t, err)

	_, err = store.ToggleLike(ctx, user.ID, third.ID)
	require.NoError(t, err)
	_, err = store.CreateReply(ctx, &domain.Reply{PostID: second.ID, Content: "r"})
	require.NoError(t, err)

	liked, err := store.GetTopLikedPosts(ctx, 2)
	require.NoError(t, err)
	require.Len(t, liked, 2)
	assert.Equal(t, third.ID, liked[0].ID)
	assert.Equal(t, first.ID, liked[1].ID) // при равенстве - раньше созданный

	replied, err := store.GetTopRepliedPosts(ctx, 5)
	require.NoError(t, err)
	require.Len(t, replied, 3)
	assert.Equal(t, second.ID, replied[0].ID)
	assert.Equal(t, first.ID, replied[1].ID)
	assert.Equal(t, third.ID, replied[2].ID)

	all, err := store.GetPosts(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, third.ID, all[0].ID) // новые первыми

	paged, err := store.GetPosts(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, second.ID, paged[0].ID)
}
