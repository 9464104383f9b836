package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/UkralStul/forum-service/internal/dataloader"
	"github.com/UkralStul/forum-service/internal/domain"
	"github.com/UkralStul/forum-service/internal/metrics"
	"github.com/UkralStul/forum-service/internal/storage"
)

const (
	// DashboardTop - длина списков top_liked и top_commented.
	DashboardTop = 5
	dashboardKey = "dashboard"
)

// Store - то, что сервису нужно от хранилища.
type Store interface {
	storage.PostStore
	storage.ReplyStore
	CountActiveUsers(ctx context.Context) (int64, error)
}

type Options struct {
	StoreTimeout      time.Duration
	DashboardCacheTTL time.Duration
	Logger            *slog.Logger
	Now               func() time.Time
}

// Thread - пост вместе с его ответами.
type Thread struct {
	*domain.Post
	ReplyItems []*domain.Reply `json:"reply_items"`
}

// Totals - общие счетчики форума.
type Totals struct {
	Posts       int64 `json:"total_posts"`
	Replies     int64 `json:"total_replies"`
	ActiveUsers int64 `json:"active_users"`
}

// Dashboard - сводка для главной страницы.
type Dashboard struct {
	Totals
	TopLiked     []*domain.Post `json:"top_liked"`
	TopCommented []*domain.Post `json:"top_commented"`
}

// Service создает и читает посты и ответы.
type Service struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger
	cache   *ttlCache[*Dashboard]

	// gen растет при каждом Invalidate, чтобы не положить в кеш
	// сводку, посчитанную до записи.
	mu  sync.Mutex
	gen uint64
}

func NewService(store Store, opts Options) (*Service, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cache, err := newTTLCache[*Dashboard](8, opts.DashboardCacheTTL, opts.Now)
	if err != nil {
		return nil, fmt.Errorf("create dashboard cache: %w", err)
	}
	return &Service{
		store:   store,
		timeout: opts.StoreTimeout,
		logger:  opts.Logger,
		cache:   cache,
	}, nil
}

func (s *Service) fail(ctx context.Context, op string, err error) error {
	err = storage.Classify(ctx, op, err)
	if errors.Is(err, domain.ErrStorageTimeout) {
		metrics.RecordStorageTimeout(op)
	}
	return err
}

// CreatePost сохраняет новый пост без ответов и лайков.
func (s *Service) CreatePost(ctx context.Context, title, content string) (*domain.Post, error) {
	title = strings.TrimSpace(title)
	if title == "" || strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyField
	}

	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	post, err := s.store.CreatePost(ctx, &domain.Post{Title: title, Content: content})
	if err != nil {
		return nil, s.fail(ctx, "create post", err)
	}
	s.Invalidate()
	s.logger.Info("post created", "post_id", post.ID)
	return post, nil
}

// CreateReply добавляет ответ к посту. Создание ответа и его появление
// в списке ответов поста хранилище выполняет как одно действие.
func (s *Service) CreateReply(ctx context.Context, postID, content string) (*domain.Reply, error) {
	if postID == "" {
		return nil, domain.ErrPostNotFound
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyField
	}

	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.store.CreateReply(ctx, &domain.Reply{PostID: postID, Content: content})
	if err != nil {
		return nil, s.fail(ctx, "create reply", err)
	}
	s.Invalidate()
	s.logger.Info("reply created", "post_id", postID, "reply_id", reply.ID)
	return reply, nil
}

func (s *Service) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	post, err := s.store.GetPostByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "get post", err)
	}
	return post, nil
}

// GetReply возвращает ответ, только если он принадлежит посту postID.
func (s *Service) GetReply(ctx context.Context, postID, replyID string) (*domain.Reply, error) {
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.store.GetReplyByID(ctx, replyID)
	if err != nil {
		return nil, s.fail(ctx, "get reply", err)
	}
	if reply.PostID != postID {
		return nil, domain.ErrReplyNotFound
	}
	return reply, nil
}

// GetThread возвращает пост с ответами в порядке добавления.
func (s *Service) GetThread(ctx context.Context, id string) (*Thread, error) {
	post, err := s.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	threads, err := s.attachReplies(ctx, []*domain.Post{post})
	if err != nil {
		return nil, err
	}
	return threads[0], nil
}

// ListPosts возвращает все посты, новые первыми.
func (s *Service) ListPosts(ctx context.Context) ([]*domain.Post, error) {
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	posts, err := s.store.GetPosts(ctx, 0, 0)
	if err != nil {
		return nil, s.fail(ctx, "list posts", err)
	}
	return posts, nil
}

// ListThreads - ListPosts с ответами, подгруженными одной пачкой.
func (s *Service) ListThreads(ctx context.Context) ([]*Thread, error) {
	posts, err := s.ListPosts(ctx)
	if err != nil {
		return nil, err
	}
	return s.attachReplies(ctx, posts)
}

func (s *Service) attachReplies(ctx context.Context, posts []*domain.Post) ([]*Thread, error) {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}

	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		replies map[string][]*domain.Reply
		err     error
	)
	// Внутри HTTP-запроса ответы идут через лоадер, иначе напрямую в хранилище
	if loaders := dataloader.For(ctx); loaders != nil {
		replies, err = loaders.LoadReplies(ctx, ids)
	} else {
		replies, err = s.store.GetRepliesByPostIDs(ctx, ids)
	}
	if err != nil {
		return nil, s.fail(ctx, "load replies", err)
	}

	threads := make([]*Thread, len(posts))
	for i, p := range posts {
		items := replies[p.ID]
		if items == nil {
			items = []*domain.Reply{}
		}
		threads[i] = &Thread{Post: p, ReplyItems: items}
	}
	return threads, nil
}

// TopLiked - n постов с наибольшим числом лайков, при равенстве раньше созданный выше.
func (s *Service) TopLiked(ctx context.Context, n int) ([]*domain.Post, error) {
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	posts, err := s.store.GetTopLikedPosts(ctx, n)
	if err != nil {
		return nil, s.fail(ctx, "top liked", err)
	}
	return posts, nil
}

// TopCommented - n постов с наибольшим числом ответов, тот же порядок при равенстве.
func (s *Service) TopCommented(ctx context.Context, n int) ([]*domain.Post, error) {
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	posts, err := s.store.GetTopRepliedPosts(ctx, n)
	if err != nil {
		return nil, s.fail(ctx, "top commented", err)
	}
	return posts, nil
}

// Totals считает посты, ответы и пользователей, лайкнувших хотя бы один пост.
func (s *Service) Totals(ctx context.Context) (Totals, error) {
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		t   Totals
		err error
	)
	if t.Posts, err = s.store.CountPosts(ctx); err != nil {
		return Totals{}, s.fail(ctx, "count posts", err)
	}
	if t.Replies, err = s.store.CountReplies(ctx); err != nil {
		return Totals{}, s.fail(ctx, "count replies", err)
	}
	if t.ActiveUsers, err = s.store.CountActiveUsers(ctx); err != nil {
		return Totals{}, s.fail(ctx, "count active users", err)
	}
	return t, nil
}

// Dashboard собирает сводку. Результат кешируется на DashboardCacheTTL.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	s.mu.Lock()
	d, ok := s.cache.Get(dashboardKey)
	gen := s.gen
	s.mu.Unlock()
	if ok {
		return d, nil
	}

	totals, err := s.Totals(ctx)
	if err != nil {
		return nil, err
	}
	liked, err := s.TopLiked(ctx, DashboardTop)
	if err != nil {
		return nil, err
	}
	commented, err := s.TopCommented(ctx, DashboardTop)
	if err != nil {
		return nil, err
	}

	d = &Dashboard{Totals: totals, TopLiked: liked, TopCommented: commented}
	s.mu.Lock()
	if s.gen == gen {
		s.cache.Set(dashboardKey, d)
	}
	s.mu.Unlock()
	return d, nil
}

// Invalidate сбрасывает закешированную сводку.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.gen++
	s.cache.Purge()
	s.mu.Unlock()
}
