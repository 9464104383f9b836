package storage

import (
	"context"
	"time"

	"github.com/UkralStul/forum-service/internal/domain"
)

// UserStore - учетные записи и сессии.
type UserStore interface {
	// CreateUser возвращает domain.ErrUsernameTaken, если имя уже занято.
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserBySessionDigest(ctx context.Context, digest string) (*domain.User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error

	// SetSession заменяет любую предыдущую сессию пользователя.
	SetSession(ctx context.Context, userID, digest string, expiresAt time.Time) error
	// ClearSessionByDigest идемпотентен: неизвестный дайджест не ошибка.
	ClearSessionByDigest(ctx context.Context, digest string) error

	// CountActiveUsers - число пользователей, у которых есть хотя бы один лайк.
	CountActiveUsers(ctx context.Context) (int64, error)
}

// PostStore - посты и выборки для дашборда.
type PostStore interface {
	CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error)
	GetPostByID(ctx context.Context, id string) (*domain.Post, error)
	// GetPosts возвращает посты от новых к старым. limit <= 0 - без ограничения.
	GetPosts(ctx context.Context, limit, offset int) ([]*domain.Post, error)
	// Сортировка по убыванию счетчика, при равенстве - раньше созданный первым.
	GetTopLikedPosts(ctx context.Context, limit int) ([]*domain.Post, error)
	GetTopRepliedPosts(ctx context.Context, limit int) ([]*domain.Post, error)
	CountPosts(ctx context.Context) (int64, error)
}

// ReplyStore - ответы на посты.
type ReplyStore interface {
	// CreateReply создает ответ и добавляет его в последовательность ответов поста
	// одной операцией. Возвращает domain.ErrPostNotFound для неизвестного поста.
	CreateReply(ctx context.Context, reply *domain.Reply) (*domain.Reply, error)
	GetReplyByID(ctx context.Context, id string) (*domain.Reply, error)
	CountReplies(ctx context.Context) (int64, error)

	// Метод для Dataloader'а: ответы в порядке добавления, сгруппированные по посту.
	GetRepliesByPostIDs(ctx context.Context, postIDs []string) (map[string][]*domain.Reply, error)
}

// LikeStore применяет переключение лайка как единое целое: множество лайкнувших
// у поста, множество лайков у пользователя и счетчик меняются вместе.
// Хранилища с оптимистичной блокировкой возвращают domain.ErrConflict при гонке.
type LikeStore interface {
	ToggleLike(ctx context.Context, userID, postID string) (domain.LikeResult, error)
}

// Storage определяет контракт для хранилищ.
type Storage interface {
	UserStore
	PostStore
	ReplyStore
	LikeStore
}
