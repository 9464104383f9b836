package auth

import "context"

type ctxKeyUserID struct{}

// WithUserID кладет идентификатор пользователя, найденный по сессии, в контекст запроса.
func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID{}, uid)
}

// UserIDFrom достает идентификатор пользователя из контекста.
func UserIDFrom(ctx context.Context) (string, bool) {
	id, _ := ctx.Value(ctxKeyUserID{}).(string)
	return id, id != ""
}
