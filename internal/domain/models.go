package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User представляет зарегистрированного пользователя.
// Сессия хранится как SHA-256 дайджест токена, сам токен знает только клиент.
type User struct {
	ID               string     `json:"id" gorm:"type:uuid;primaryKey"`
	Username         string     `json:"username" gorm:"type:varchar(64);not null;uniqueIndex"`
	PasswordHash     string     `json:"-" gorm:"type:varchar(255);not null"`
	SessionDigest    *string    `json:"-" gorm:"type:varchar(64);uniqueIndex"`
	SessionExpiresAt *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"createdAt" gorm:"not null"`
	PostLiked        []string   `json:"postLiked,omitempty" gorm:"-"` // заполняется хранилищем
}

// HasSession сообщает, привязана ли к пользователю какая-либо сессия.
func (u *User) HasSession() bool {
	return u.SessionDigest != nil && *u.SessionDigest != ""
}

// Post представляет пост в системе.
type Post struct {
	ID          string    `json:"id" gorm:"type:uuid;primaryKey"`
	Title       string    `json:"title" gorm:"type:varchar(255);not null"`
	Content     string    `json:"content" gorm:"type:text;not null"`
	NoLikes     int       `json:"no_likes" gorm:"not null;default:0;index"`
	NoReplies   int       `json:"no_replies" gorm:"not null;default:0;index"`
	LikeVersion int64     `json:"-" gorm:"not null;default:0"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null;index"`
	ReplyIDs    []string  `json:"replies" gorm:"-"`
	UsersLiked  []string  `json:"users_liked" gorm:"-"`
}

// Reply представляет ответ на пост. PostID задается при создании и больше не меняется.
type Reply struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	PostID    string    `json:"post_id" gorm:"type:uuid;not null;index"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;index"`
}

// PostLike связывает пользователя и пост. Одна строка одновременно является
// элементом Post.UsersLiked и User.PostLiked.
type PostLike struct {
	UserID    string    `gorm:"type:uuid;primaryKey"`
	PostID    string    `gorm:"type:uuid;primaryKey;index"`
	CreatedAt time.Time `gorm:"not null"`
}

// Session - выданный клиенту токен.
type Session struct {
	Token     string    `json:"-"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LikeState - итоговое состояние лайка после переключения.
type LikeState int

const (
	Unliked LikeState = iota
	Liked
)

func (s LikeState) String() string {
	if s == Liked {
		return "liked"
	}
	return "unliked"
}

// LikeResult возвращается движком лайков вызывающему коду.
type LikeResult struct {
	State   LikeState `json:"-"`
	NoLikes int       `json:"no_likes"`
}

// Liked - удобный аксессор для шаблонов и JSON.
func (r LikeResult) Liked() bool { return r.State == Liked }

// === gorm hooks ===

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (r *Reply) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
