package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/UkralStul/forum-service/internal/content"
	"github.com/UkralStul/forum-service/internal/dataloader"
	"github.com/UkralStul/forum-service/internal/domain"
	"github.com/UkralStul/forum-service/internal/storage"
)

const (
	CookieName     = "session_token"
	requestTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
)

// Authenticator - регистрация и сессии.
type Authenticator interface {
	Register(ctx context.Context, username, password, confirmPassword string) (string, error)
	Authenticate(ctx context.Context, username, password string) (*domain.Session, error)
	Validate(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

// Content - посты, ответы и сводка.
type Content interface {
	CreatePost(ctx context.Context, title, body string) (*domain.Post, error)
	CreateReply(ctx context.Context, postID, body string) (*domain.Reply, error)
	GetThread(ctx context.Context, id string) (*content.Thread, error)
	GetReply(ctx context.Context, postID, replyID string) (*domain.Reply, error)
	ListThreads(ctx context.Context) ([]*content.Thread, error)
	Dashboard(ctx context.Context) (*content.Dashboard, error)
	Invalidate()
}

// LikeToggler переключает лайки.
type LikeToggler interface {
	Toggle(ctx context.Context, userID, postID string) (domain.LikeResult, error)
}

type Deps struct {
	Auth    Authenticator
	Content Content
	Likes   LikeToggler
	// Replies нужен лоадеру ответов для списков постов.
	Replies      storage.ReplyStore
	Logger       *slog.Logger
	SessionTTL   time.Duration
	CookieSecure bool
}

type Server struct {
	auth     Authenticator
	content  Content
	likes    LikeToggler
	replies  storage.ReplyStore
	logger   *slog.Logger
	ttl      time.Duration
	secure   bool
	validate *validator.Validate
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = time.Hour
	}
	return &Server{
		auth:     d.Auth,
		content:  d.Content,
		likes:    d.Likes,
		replies:  d.Replies,
		logger:   d.Logger,
		ttl:      d.SessionTTL,
		secure:   d.CookieSecure,
		validate: validator.New(),
	}
}

// Routes собирает роутер со всеми маршрутами.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)
	r.Get("/dashboard", s.handleDashboard)

	r.Route("/posts", func(r chi.Router) {
		r.With(s.withLoaders).Get("/", s.handleListPosts)
		r.With(s.withLoaders).Get("/{id}", s.handleGetPost)
		r.Get("/{id}/replies/{replyID}", s.handleGetReply)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/", s.handleCreatePost)
			r.Post("/{id}/replies", s.handleCreateReply)
			r.Post("/{id}/like", s.handleToggleLike)
		})
	})

	return r
}

func (s *Server) withLoaders(next http.Handler) http.Handler {
	if s.replies == nil {
		return next
	}
	return dataloader.Middleware(s.replies, next)
}
