package likes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/UkralStul/forum-service/internal/domain"
	"github.com/UkralStul/forum-service/internal/metrics"
	"github.com/UkralStul/forum-service/internal/storage"
)

const (
	DefaultMaxRetries = 3
	// NoRetries в Options.MaxRetries отключает повторы: одна попытка.
	NoRetries         = -1
	defaultRetryDelay = 5 * time.Millisecond
)

type Options struct {
	// MaxRetries - сколько раз повторять переключение после domain.ErrConflict.
	// Ноль означает DefaultMaxRetries, отрицательное значение - без повторов.
	MaxRetries   int
	StoreTimeout time.Duration
	// RetryDelay - начальная пауза между попытками, дальше растет с джиттером.
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Engine переключает лайк пользователя на посте.
// Атомарность одной попытки обеспечивает хранилище, Engine отвечает за
// повтор конфликтных попыток и ограничение времени каждой из них.
type Engine struct {
	store      storage.LikeStore
	maxRetries int
	timeout    time.Duration
	delay      time.Duration
	logger     *slog.Logger
}

func NewEngine(store storage.LikeStore, opts Options) *Engine {
	e := &Engine{
		store:      store,
		maxRetries: opts.MaxRetries,
		timeout:    opts.StoreTimeout,
		delay:      opts.RetryDelay,
		logger:     opts.Logger,
	}
	switch {
	case e.maxRetries == 0:
		e.maxRetries = DefaultMaxRetries
	case e.maxRetries < 0:
		e.maxRetries = 0
	}
	if e.delay <= 0 {
		e.delay = defaultRetryDelay
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

func (e *Engine) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.delay
	b.MaxInterval = 20 * e.delay
	b.RandomizationFactor = 0.5
	return b
}

// Toggle ставит лайк, если его не было, и снимает, если был.
// Возвращает итоговое состояние и число лайков поста после переключения.
func (e *Engine) Toggle(ctx context.Context, userID, postID string) (domain.LikeResult, error) {
	if userID == "" {
		return domain.LikeResult{}, domain.ErrUnauthenticated
	}
	if postID == "" {
		return domain.LikeResult{}, domain.ErrPostNotFound
	}

	attempt := 0
	op := func() (domain.LikeResult, error) {
		attempt++
		actx, cancel := storage.WithTimeout(ctx, e.timeout)
		defer cancel()

		res, err := e.store.ToggleLike(actx, userID, postID)
		if err == nil {
			return res, nil
		}
		err = storage.Classify(actx, "toggle like", err)
		if errors.Is(err, domain.ErrConflict) {
			return domain.LikeResult{}, err
		}
		return domain.LikeResult{}, backoff.Permanent(err)
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(e.newBackOff()),
		backoff.WithMaxTries(uint(e.maxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			metrics.RecordLikeConflict(false)
			e.logger.Debug("like toggle conflict, retrying",
				"post_id", postID, "user_id", userID, "attempt", attempt, "wait", wait)
		}),
	)
	if err != nil {
		// на последней попытке Retry отдает ошибку без распаковки
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		switch {
		case errors.Is(err, domain.ErrConflict):
			metrics.RecordLikeConflict(true)
			e.logger.Warn("like toggle gave up after conflicts",
				"post_id", postID, "user_id", userID, "attempts", attempt)
			return domain.LikeResult{}, fmt.Errorf("toggle like after %d attempts: %w", attempt, err)
		case errors.Is(err, domain.ErrStorageTimeout):
			metrics.RecordStorageTimeout("toggle like")
		}
		return domain.LikeResult{}, err
	}

	metrics.RecordLikeToggle(res.State.String())
	e.logger.Info("like toggled", "post_id", postID, "user_id", userID, "state", res.State.String(), "no_likes", res.NoLikes)
	return res, nil
}
