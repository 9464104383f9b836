package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/UkralStul/forum-service/internal/domain"
)

// userRecord - пользователь и его множество лайкнутых постов.
// Все поля, кроме sem, защищены sem.
type userRecord struct {
	sem   *semaphore.Weighted
	user  domain.User
	liked map[string]struct{}
}

// postRecord - пост, последовательность его ответов и множество лайкнувших.
// Все поля, кроме sem и seq, защищены sem.
type postRecord struct {
	sem     *semaphore.Weighted
	seq     int64
	post    domain.Post
	replies []string
	likers  map[string]struct{}
}

// Store реализует интерфейс Storage в памяти.
//
// mu защищает только сами карты и удерживается на время поиска или вставки.
// Записи блокируются собственными семафорами, порядок захвата: пост, затем
// пользователь, затем mu. Захватывать семафор записи под mu нельзя.
type Store struct {
	mu         sync.RWMutex
	users      map[string]*userRecord
	byUsername map[string]string // username -> userID
	bySession  map[string]string // session digest -> userID
	posts      map[string]*postRecord
	replies    map[string]*domain.Reply
	seq        int64
}

// New создает новый экземпляр in-memory хранилища.
func New() *Store {
	return &Store{
		users:      make(map[string]*userRecord),
		byUsername: make(map[string]string),
		bySession:  make(map[string]string),
		posts:      make(map[string]*postRecord),
		replies:    make(map[string]*domain.Reply),
	}
}

func lock(ctx context.Context, sem *semaphore.Weighted) error {
	return sem.Acquire(ctx, 1)
}

func unlock(sem *semaphore.Weighted) {
	sem.Release(1)
}

func (s *Store) userRec(id string) *userRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[id]
}

func (s *Store) postRec(id string) *postRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.posts[id]
}

// === User Methods ===

func (s *Store) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byUsername[user.Username]; taken {
		return nil, domain.ErrUsernameTaken
	}

	rec := &userRecord{
		sem:   semaphore.NewWeighted(1),
		user:  *user,
		liked: make(map[string]struct{}),
	}
	rec.user.ID = uuid.NewString()
	rec.user.CreatedAt = time.Now().UTC()
	rec.user.SessionDigest = nil
	rec.user.SessionExpiresAt = nil
	rec.user.PostLiked = nil

	s.users[rec.user.ID] = rec
	s.byUsername[rec.user.Username] = rec.user.ID

	out := rec.user
	out.PostLiked = []string{}
	return &out, nil
}

// snapshot копирует пользователя. Вызывать под семафором записи.
func (r *userRecord) snapshot() *domain.User {
	u := r.user
	if r.user.SessionDigest != nil {
		d := *r.user.SessionDigest
		u.SessionDigest = &d
	}
	if r.user.SessionExpiresAt != nil {
		e := *r.user.SessionExpiresAt
		u.SessionExpiresAt = &e
	}
	u.PostLiked = sortedKeys(r.liked)
	return &u
}

func (s *Store) readUser(ctx context.Context, rec *userRecord) (*domain.User, error) {
	if err := lock(ctx, rec.sem); err != nil {
		return nil, err
	}
	defer unlock(rec.sem)
	return rec.snapshot(), nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	rec := s.userRec(id)
	if rec == nil {
		return nil, domain.ErrUserNotFound
	}
	return s.readUser(ctx, rec)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.byUsername[username]
	rec := s.users[id]
	s.mu.RUnlock()
	if !ok || rec == nil {
		return nil, domain.ErrUserNotFound
	}
	return s.readUser(ctx, rec)
}

func (s *Store) GetUserBySessionDigest(ctx context.Context, digest string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.bySession[digest]
	rec := s.users[id]
	s.mu.RUnlock()
	if !ok || rec == nil {
		return nil, domain.ErrUserNotFound
	}

	u, err := s.readUser(ctx, rec)
	if err != nil {
		return nil, err
	}
	// Сессию могли заменить между поиском и захватом записи.
	if u.SessionDigest == nil || *u.SessionDigest != digest {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	rec := s.userRec(userID)
	if rec == nil {
		return domain.ErrUserNotFound
	}
	if err := lock(ctx, rec.sem); err != nil {
		return err
	}
	defer unlock(rec.sem)
	rec.user.PasswordHash = hash
	return nil
}

func (s *Store) SetSession(ctx context.Context, userID, digest string, expiresAt time.Time) error {
	rec := s.userRec(userID)
	if rec == nil {
		return domain.ErrUserNotFound
	}
	if err := lock(ctx, rec.sem); err != nil {
		return err
	}
	defer unlock(rec.sem)

	s.mu.Lock()
	if rec.user.SessionDigest != nil {
		delete(s.bySession, *rec.user.SessionDigest)
	}
	s.bySession[digest] = userID
	s.mu.Unlock()

	d := digest
	exp := expiresAt.UTC()
	rec.user.SessionDigest = &d
	rec.user.SessionExpiresAt = &exp
	return nil
}

func (s *Store) ClearSessionByDigest(ctx context.Context, digest string) error {
	s.mu.RLock()
	id, ok := s.bySession[digest]
	rec := s.users[id]
	s.mu.RUnlock()
	if !ok || rec == nil {
		return nil
	}
	if err := lock(ctx, rec.sem); err != nil {
		return err
	}
	defer unlock(rec.sem)

	if rec.user.SessionDigest == nil || *rec.user.SessionDigest != digest {
		return nil
	}
	s.mu.Lock()
	delete(s.bySession, digest)
	s.mu.Unlock()
	rec.user.SessionDigest = nil
	rec.user.SessionExpiresAt = nil
	return nil
}

func (s *Store) CountActiveUsers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	recs := make([]*userRecord, 0, len(s.users))
	for _, r := range s.users {
		recs = append(recs, r)
	}
	s.mu.RUnlock()

	var n int64
	for _, r := range recs {
		if err := lock(ctx, r.sem); err != nil {
			return 0, err
		}
		if len(r.liked) > 0 {
			n++
		}
		unlock(r.sem)
	}
	return n, nil
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	rec := &postRecord{
		sem:    semaphore.NewWeighted(1),
		seq:    s.seq,
		post:   *post,
		likers: make(map[string]struct{}),
	}
	rec.post.ID = uuid.NewString()
	rec.post.CreatedAt = time.Now().UTC()
	rec.post.NoLikes = 0
	rec.post.NoReplies = 0
	rec.post.LikeVersion = 0
	rec.post.ReplyIDs = nil
	rec.post.UsersLiked = nil
	s.posts[rec.post.ID] = rec

	return rec.snapshot(), nil
}

// snapshot копирует пост вместе со связями. Вызывать под семафором записи.
func (r *postRecord) snapshot() *domain.Post {
	p := r.post
	p.ReplyIDs = append(make([]string, 0, len(r.replies)), r.replies...)
	p.UsersLiked = sortedKeys(r.likers)
	return &p
}

type orderedPost struct {
	seq  int64
	post *domain.Post
}

// snapshotPosts снимает копии всех постов, по одному семафору за раз.
func (s *Store) snapshotPosts(ctx context.Context) ([]orderedPost, error) {
	s.mu.RLock()
	recs := make([]*postRecord, 0, len(s.posts))
	for _, r := range s.posts {
		recs = append(recs, r)
	}
	s.mu.RUnlock()

	out := make([]orderedPost, 0, len(recs))
	for _, r := range recs {
		if err := lock(ctx, r.sem); err != nil {
			return nil, err
		}
		out = append(out, orderedPost{seq: r.seq, post: r.snapshot()})
		unlock(r.sem)
	}
	return out, nil
}

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	rec := s.postRec(id)
	if rec == nil {
		return nil, domain.ErrPostNotFound
	}
	if err := lock(ctx, rec.sem); err != nil {
		return nil, err
	}
	defer unlock(rec.sem)
	return rec.snapshot(), nil
}

func (s *Store) GetPosts(ctx context.Context, limit, offset int) ([]*domain.Post, error) {
	all, err := s.snapshotPosts(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].seq > all[j].seq
	})
	return page(all, limit, offset), nil
}

func (s *Store) GetTopLikedPosts(ctx context.Context, limit int) ([]*domain.Post, error) {
	return s.topBy(ctx, limit, func(p *domain.Post) int { return p.NoLikes })
}

func (s *Store) GetTopRepliedPosts(ctx context.Context, limit int) ([]*domain.Post, error) {
	return s.topBy(ctx, limit, func(p *domain.Post) int { return p.NoReplies })
}

func (s *Store) topBy(ctx context.Context, limit int, key func(*domain.Post) int) ([]*domain.Post, error) {
	all, err := s.snapshotPosts(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		ki, kj := key(all[i].post), key(all[j].post)
		if ki != kj {
			return ki > kj
		}
		return all[i].seq < all[j].seq
	})
	return page(all, limit, 0), nil
}

func (s *Store) CountPosts(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.posts)), nil
}

// === Reply Methods ===

func (s *Store) CreateReply(ctx context.Context, reply *domain.Reply) (*domain.Reply, error) {
	rec := s.postRec(reply.PostID)
	if rec == nil {
		return nil, domain.ErrPostNotFound
	}
	// Семафор поста держится, пока ответ создается и добавляется в пост:
	// читатели поста видят либо оба изменения, либо ни одного.
	if err := lock(ctx, rec.sem); err != nil {
		return nil, err
	}
	defer unlock(rec.sem)

	stored := *reply
	stored.ID = uuid.NewString()
	stored.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	s.replies[stored.ID] = &stored
	s.mu.Unlock()

	rec.replies = append(rec.replies, stored.ID)
	rec.post.NoReplies = len(rec.replies)

	out := stored
	return &out, nil
}

func (s *Store) GetReplyByID(ctx context.Context, id string) (*domain.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.replies[id]
	if !ok {
		return nil, domain.ErrReplyNotFound
	}
	out := *r
	return &out, nil
}

func (s *Store) CountReplies(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.replies)), nil
}

// === Dataloader Methods ===

func (s *Store) GetRepliesByPostIDs(ctx context.Context, postIDs []string) (map[string][]*domain.Reply, error) {
	results := make(map[string][]*domain.Reply, len(postIDs))

	for _, pID := range postIDs {
		rec := s.postRec(pID)
		if rec == nil {
			results[pID] = []*domain.Reply{}
			continue
		}
		if err := lock(ctx, rec.sem); err != nil {
			return nil, err
		}
		ids := append([]string(nil), rec.replies...)
		unlock(rec.sem)

		replies := make([]*domain.Reply, 0, len(ids))
		s.mu.RLock()
		for _, id := range ids {
			if r, ok := s.replies[id]; ok {
				c := *r
				replies = append(replies, &c)
			}
		}
		s.mu.RUnlock()
		results[pID] = replies
	}

	return results, nil
}

// === Like Methods ===

// ToggleLike держит семафор поста, затем семафор пользователя, и меняет все
// три факта под ними. Переключения одного поста сериализуются, разных - нет.
func (s *Store) ToggleLike(ctx context.Context, userID, postID string) (domain.LikeResult, error) {
	prec := s.postRec(postID)
	if prec == nil {
		return domain.LikeResult{}, domain.ErrPostNotFound
	}
	urec := s.userRec(userID)
	if urec == nil {
		return domain.LikeResult{}, domain.ErrUserNotFound
	}

	if err := lock(ctx, prec.sem); err != nil {
		return domain.LikeResult{}, err
	}
	defer unlock(prec.sem)
	if err := lock(ctx, urec.sem); err != nil {
		return domain.LikeResult{}, err
	}
	defer unlock(urec.sem)

	var state domain.LikeState
	if _, liked := prec.likers[userID]; liked {
		delete(prec.likers, userID)
		delete(urec.liked, postID)
		state = domain.Unliked
	} else {
		prec.likers[userID] = struct{}{}
		urec.liked[postID] = struct{}{}
		state = domain.Liked
	}
	prec.post.NoLikes = len(prec.likers)
	prec.post.LikeVersion++

	return domain.LikeResult{State: state, NoLikes: prec.post.NoLikes}, nil
}

// === helpers ===

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func page(all []orderedPost, limit, offset int) []*domain.Post {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []*domain.Post{}
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*domain.Post, 0, end-offset)
	for _, op := range all[offset:end] {
		out = append(out, op.post)
	}
	return out
}
