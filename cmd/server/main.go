package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UkralStul/forum-service/internal/auth"
	"github.com/UkralStul/forum-service/internal/config"
	"github.com/UkralStul/forum-service/internal/content"
	"github.com/UkralStul/forum-service/internal/domain"
	"github.com/UkralStul/forum-service/internal/httpapi"
	"github.com/UkralStul/forum-service/internal/likes"
	"github.com/UkralStul/forum-service/internal/logging"
	"github.com/UkralStul/forum-service/internal/storage"
	"github.com/UkralStul/forum-service/internal/storage/inmemory"
	"github.com/UkralStul/forum-service/internal/storage/postgres"
)

const shutdownTimeout = 10 * time.Second

func main() {
	storageType := flag.String("storage", "", "Storage type (in-memory or postgres), overrides STORAGE")
	seed := flag.Bool("seed", true, "Fill in-memory storage with demo posts")
	flag.Parse()

	if *storageType != "" {
		_ = os.Setenv("STORAGE", *storageType)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:   cfg.LogLevel,
		JSON:    cfg.LogJSON,
		Service: "forum-service",
	})
	slog.SetDefault(logger)

	var store storage.Storage
	logger.Info("starting server", "storage", cfg.Storage, "addr", cfg.Addr)
	if cfg.Storage == config.StoragePostgres {
		pg, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
	} else {
		store = inmemory.New()
		if *seed {
			seedDemoContent(logger, store)
		}
	}

	authSvc := auth.NewService(store, auth.Options{
		SessionTTL:   cfg.SessionTTL,
		StoreTimeout: cfg.StoreTimeout,
		Hasher:       auth.NewBcryptHasher(cfg.BcryptCost),
		Logger:       logger.With("component", "auth"),
	})
	contentSvc, err := content.NewService(store, content.Options{
		StoreTimeout:      cfg.StoreTimeout,
		DashboardCacheTTL: cfg.DashboardCacheTTL,
		Logger:            logger.With("component", "content"),
	})
	if err != nil {
		logger.Error("failed to init content service", "error", err)
		os.Exit(1)
	}
	retries := cfg.LikeMaxRetries
	if retries == 0 {
		retries = likes.NoRetries
	}
	engine := likes.NewEngine(store, likes.Options{
		MaxRetries:   retries,
		StoreTimeout: cfg.StoreTimeout,
		Logger:       logger.With("component", "likes"),
	})

	api := httpapi.NewServer(httpapi.Deps{
		Auth:         authSvc,
		Content:      contentSvc,
		Likes:        engine,
		Replies:      store,
		Logger:       logger.With("component", "http"),
		SessionTTL:   cfg.SessionTTL,
		CookieSecure: cfg.CookieSecure,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	logger.Info("listening", "url", "http://localhost"+cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// seedDemoContent заполняет пустое хранилище парой постов для ручной проверки.
func seedDemoContent(logger *slog.Logger, s storage.Storage) {
	ctx := context.Background()

	post, err := s.CreatePost(ctx, &domain.Post{
		Title:   "Добро пожаловать на форум",
		Content: "Зарегистрируйтесь, войдите и оставьте ответ или лайк.",
	})
	if err != nil {
		logger.Error("seed: failed to create post", "error", err)
		os.Exit(1)
	}

	for _, text := range []string{
		"Первый ответ!",
		"Как работает счетчик лайков при одновременных запросах?",
	} {
		if _, err := s.CreateReply(ctx, &domain.Reply{PostID: post.ID, Content: text}); err != nil {
			logger.Error("seed: failed to create reply", "error", err)
			os.Exit(1)
		}
	}

	quiet, err := s.CreatePost(ctx, &domain.Post{
		Title:   "Пост без ответов",
		Content: "Здесь пока тихо.",
	})
	if err != nil {
		logger.Error("seed: failed to create post", "error", err)
		os.Exit(1)
	}

	logger.Info("demo content created", "post_id", post.ID, "quiet_post_id", quiet.ID)
}
