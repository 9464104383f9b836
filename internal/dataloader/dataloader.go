package dataloader

import (
	"context"
	"net/http"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/UkralStul/forum-service/internal/domain"
	"github.com/UkralStul/forum-service/internal/storage"
)

type contextKey string

const key = contextKey("dataloaders")

// Loaders содержит все дата-лоадеры запроса.
type Loaders struct {
	RepliesByPostID *dataloader.Loader
}

// NewLoaders собирает лоадеры поверх хранилища ответов.
func NewLoaders(store storage.ReplyStore) *Loaders {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		postIDs := keys.Keys()

		// Один запрос к хранилищу на всю пачку постов
		repliesMap, err := store.GetRepliesByPostIDs(ctx, postIDs)
		results := make([]*dataloader.Result, len(keys))
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		// Порядок результатов совпадает с порядком ключей
		for i, postID := range postIDs {
			replies := repliesMap[postID]
			if replies == nil {
				replies = []*domain.Reply{}
			}
			results[i] = &dataloader.Result{Data: replies}
		}
		return results
	}

	return &Loaders{
		// Кеш лоадера живет один запрос, поэтому свежесозданные ответы не теряются
		RepliesByPostID: dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(time.Millisecond)),
	}
}

// Middleware для внедрения лоадеров в контекст запроса.
func Middleware(store storage.ReplyStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithLoaders(r.Context(), NewLoaders(store))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithLoaders(ctx context.Context, l *Loaders) context.Context {
	return context.WithValue(ctx, key, l)
}

// For извлекает лоадеры из контекста. Вне Middleware возвращает nil.
func For(ctx context.Context) *Loaders {
	l, _ := ctx.Value(key).(*Loaders)
	return l
}

// LoadReplies батчит запросы ответов для нескольких постов.
func (l *Loaders) LoadReplies(ctx context.Context, postIDs []string) (map[string][]*domain.Reply, error) {
	thunk := l.RepliesByPostID.LoadMany(ctx, dataloader.NewKeysFromStrings(postIDs))
	data, errs := thunk()

	out := make(map[string][]*domain.Reply, len(postIDs))
	for i, postID := range postIDs {
		if i < len(errs) && errs[i] != nil {
			return nil, errs[i]
		}
		replies, _ := data[i].([]*domain.Reply)
		out[postID] = replies
	}
	return out, nil
}
