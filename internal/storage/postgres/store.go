package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UkralStul/forum-service/internal/domain"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store реализует интерфейс Storage с использованием PostgreSQL.
// Лайки переключаются через оптимистичную блокировку по posts.like_version.
type Store struct {
	db *gorm.DB
}

// New создает новый экземпляр хранилища PostgreSQL.
func New(dsn string) (*Store, error) {
	return Open(postgres.Open(dsn), logger.Warn)
}

// Open подключается через произвольный диалект gorm и выполняет миграцию.
// Тесты передают сюда sqlite.
func Open(dialector gorm.Dialector, level logger.LogLevel) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Выполняем миграцию схемы
	if err := db.AutoMigrate(&domain.User{}, &domain.Post{}, &domain.Reply{}, &domain.PostLike{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close закрывает пул соединений.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return err
}

// validID отсекает строки, которые PostgreSQL не примет в колонку uuid.
// Такой id заведомо ничего не найдет.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// === User Methods ===

func (s *Store) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	u := *user
	u.ID = ""
	u.SessionDigest = nil
	u.SessionExpiresAt = nil

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.User{}).Where("username = ?", u.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrUsernameTaken
		}
		return tx.Create(&u).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Гонка двух регистраций, разрешенная уникальным индексом.
		return nil, domain.ErrUsernameTaken
	}
	if err != nil {
		return nil, err
	}
	u.PostLiked = []string{}
	return &u, nil
}

func (s *Store) loadUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	var u domain.User
	db := s.db.WithContext(ctx)
	if err := db.Where(query, arg).First(&u).Error; err != nil {
		return nil, notFound(err, domain.ErrUserNotFound)
	}
	u.PostLiked = []string{}
	if err := db.Model(&domain.PostLike{}).
		Where("user_id = ?", u.ID).
		Order("post_id ASC").
		Pluck("post_id", &u.PostLiked).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if !validID(id) {
		return nil, domain.ErrUserNotFound
	}
	return s.loadUser(ctx, "id = ?", id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.loadUser(ctx, "username = ?", username)
}

func (s *Store) GetUserBySessionDigest(ctx context.Context, digest string) (*domain.User, error) {
	return s.loadUser(ctx, "session_digest = ?", digest)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	if !validID(userID) {
		return domain.ErrUserNotFound
	}
	res := s.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *Store) SetSession(ctx context.Context, userID, digest string, expiresAt time.Time) error {
	if !validID(userID) {
		return domain.ErrUserNotFound
	}
	res := s.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"session_digest":     digest,
			"session_expires_at": expiresAt.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *Store) ClearSessionByDigest(ctx context.Context, digest string) error {
	return s.db.WithContext(ctx).Model(&domain.User{}).
		Where("session_digest = ?", digest).
		Updates(map[string]any{
			"session_digest":     nil,
			"session_expires_at": nil,
		}).Error
}

func (s *Store) CountActiveUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.PostLike{}).Distinct("user_id").Count(&n).Error
	return n, err
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	p := domain.Post{Title: post.Title, Content: post.Content}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, err
	}
	// GORM заполнит ID и CreatedAt после создания
	p.ReplyIDs = []string{}
	p.UsersLiked = []string{}
	return &p, nil
}

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	if !validID(id) {
		return nil, domain.ErrPostNotFound
	}
	var post domain.Post
	if err := s.db.WithContext(ctx).First(&post, "id = ?", id).Error; err != nil {
		// GORM возвращает gorm.ErrRecordNotFound, если запись не найдена
		return nil, notFound(err, domain.ErrPostNotFound)
	}
	posts := []*domain.Post{&post}
	if err := s.fillRelations(ctx, posts); err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *Store) GetPosts(ctx context.Context, limit, offset int) ([]*domain.Post, error) {
	return s.findPosts(ctx, "created_at DESC, id DESC", limit, offset)
}

func (s *Store) GetTopLikedPosts(ctx context.Context, limit int) ([]*domain.Post, error) {
	return s.findPosts(ctx, "no_likes DESC, created_at ASC, id ASC", limit, 0)
}

func (s *Store) GetTopRepliedPosts(ctx context.Context, limit int) ([]*domain.Post, error) {
	return s.findPosts(ctx, "no_replies DESC, created_at ASC, id ASC", limit, 0)
}

func (s *Store) findPosts(ctx context.Context, order string, limit, offset int) ([]*domain.Post, error) {
	var posts []*domain.Post
	query := s.db.WithContext(ctx).Order(order)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&posts).Error; err != nil {
		return nil, err
	}
	if err := s.fillRelations(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// fillRelations догружает ответы и лайкнувших двумя запросами на весь список.
func (s *Store) fillRelations(ctx context.Context, posts []*domain.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]string, len(posts))
	byID := make(map[string]*domain.Post, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
		p.ReplyIDs = []string{}
		p.UsersLiked = []string{}
		byID[p.ID] = p
	}

	var replies []domain.Reply
	if err := s.db.WithContext(ctx).
		Select("id", "post_id").
		Where("post_id IN ?", ids).
		Order("created_at ASC, id ASC").
		Find(&replies).Error; err != nil {
		return err
	}
	for _, r := range replies {
		byID[r.PostID].ReplyIDs = append(byID[r.PostID].ReplyIDs, r.ID)
	}

	var likes []domain.PostLike
	if err := s.db.WithContext(ctx).
		Where("post_id IN ?", ids).
		Order("user_id ASC").
		Find(&likes).Error; err != nil {
		return err
	}
	for _, l := range likes {
		byID[l.PostID].UsersLiked = append(byID[l.PostID].UsersLiked, l.UserID)
	}
	return nil
}

func (s *Store) CountPosts(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.Post{}).Count(&n).Error
	return n, err
}

// === Reply Methods ===

func (s *Store) CreateReply(ctx context.Context, reply *domain.Reply) (*domain.Reply, error) {
	if !validID(reply.PostID) {
		return nil, domain.ErrPostNotFound
	}
	r := domain.Reply{PostID: reply.PostID, Content: reply.Content}

	// Счетчик поста и сам ответ появляются в одной транзакции
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Post{}).
			Where("id = ?", r.PostID).
			UpdateColumn("no_replies", gorm.Expr("no_replies + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrPostNotFound
		}
		return tx.Create(&r).Error
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetReplyByID(ctx context.Context, id string) (*domain.Reply, error) {
	if !validID(id) {
		return nil, domain.ErrReplyNotFound
	}
	var r domain.Reply
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, notFound(err, domain.ErrReplyNotFound)
	}
	return &r, nil
}

func (s *Store) CountReplies(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.Reply{}).Count(&n).Error
	return n, err
}

// === Dataloader Method ===

func (s *Store) GetRepliesByPostIDs(ctx context.Context, postIDs []string) (map[string][]*domain.Reply, error) {
	valid := make([]string, 0, len(postIDs))
	for _, id := range postIDs {
		if validID(id) {
			valid = append(valid, id)
		}
	}

	var replies []*domain.Reply
	if len(valid) > 0 {
		// Загружаем все ответы для всех переданных postID одним запросом
		err := s.db.WithContext(ctx).
			Where("post_id IN ?", valid).
			Order("post_id, created_at ASC, id ASC").
			Find(&replies).Error
		if err != nil {
			return nil, err
		}
	}

	result := make(map[string][]*domain.Reply, len(postIDs))
	for _, id := range postIDs {
		result[id] = []*domain.Reply{}
	}
	for _, r := range replies {
		result[r.PostID] = append(result[r.PostID], r)
	}
	return result, nil
}

// === Like Methods ===

// ToggleLike читает версию поста, меняет строку post_likes и затем
// обновляет счетчик условием like_version = прочитанная версия.
// Если версия успела измениться, транзакция откатывается с domain.ErrConflict.
func (s *Store) ToggleLike(ctx context.Context, userID, postID string) (domain.LikeResult, error) {
	var result domain.LikeResult
	if !validID(postID) {
		return result, domain.ErrPostNotFound
	}
	if !validID(userID) {
		return result, domain.ErrUserNotFound
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post domain.Post
		if err := tx.Select("id", "no_likes", "like_version").First(&post, "id = ?", postID).Error; err != nil {
			return notFound(err, domain.ErrPostNotFound)
		}

		var users int64
		if err := tx.Model(&domain.User{}).Where("id = ?", userID).Count(&users).Error; err != nil {
			return err
		}
		if users == 0 {
			return domain.ErrUserNotFound
		}

		var existing int64
		if err := tx.Model(&domain.PostLike{}).
			Where("user_id = ? AND post_id = ?", userID, postID).
			Count(&existing).Error; err != nil {
			return err
		}

		delta := 1
		result.State = domain.Liked
		if existing > 0 {
			delta = -1
			result.State = domain.Unliked
			res := tx.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&domain.PostLike{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return domain.ErrConflict
			}
		} else {
			like := domain.PostLike{UserID: userID, PostID: postID}
			if err := tx.Create(&like).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return domain.ErrConflict
				}
				return err
			}
		}

		res := tx.Model(&domain.Post{}).
			Where("id = ? AND like_version = ?", postID, post.LikeVersion).
			UpdateColumns(map[string]any{
				"no_likes":     gorm.Expr("no_likes + ?", delta),
				"like_version": gorm.Expr("like_version + ?", 1),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrConflict
		}
		result.NoLikes = post.NoLikes + delta
		return nil
	})
	if err != nil {
		return domain.LikeResult{}, err
	}
	return result, nil
}
