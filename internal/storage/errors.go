package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UkralStul/forum-service/internal/domain"
)

// WithTimeout ограничивает время одного обращения к хранилищу.
// Нулевой timeout означает отсутствие ограничения.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Classify приводит ошибку хранилища к таксономии domain.
// Доменные ошибки возвращаются как есть, истекший дедлайн становится
// domain.ErrStorageTimeout, остальное оборачивается с именем операции.
func Classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUnauthenticated),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrStorageTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, domain.ErrStorageTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
