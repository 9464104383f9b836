package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/UkralStul/forum-service/internal/domain"
	"github.com/UkralStul/forum-service/internal/metrics"
	"github.com/UkralStul/forum-service/internal/storage"
)

// Options - настройки Service. Нулевые поля заменяются значениями по умолчанию.
type Options struct {
	SessionTTL   time.Duration
	StoreTimeout time.Duration
	Hasher       PasswordHasher
	Logger       *slog.Logger
	Now          func() time.Time
}

// Service регистрирует пользователей и управляет их сессиями.
// У пользователя одна активная сессия: каждый вход заменяет предыдущую.
type Service struct {
	users   storage.UserStore
	hasher  PasswordHasher
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(users storage.UserStore, opts Options) *Service {
	s := &Service{
		users:   users,
		hasher:  opts.Hasher,
		ttl:     opts.SessionTTL,
		timeout: opts.StoreTimeout,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if s.hasher == nil {
		s.hasher = NewBcryptHasher(0)
	}
	if s.ttl <= 0 {
		s.ttl = time.Hour
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// NormalizeUsername приводит имя к виду, в котором оно хранится.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (s *Service) fail(ctx context.Context, op string, err error) error {
	err = storage.Classify(ctx, op, err)
	if errors.Is(err, domain.ErrStorageTimeout) {
		metrics.RecordStorageTimeout(op)
	}
	return err
}

// Register создает пользователя без сессии.
// Занятое имя проверяется раньше несовпадения паролей; при любой ошибке запись не создается.
func (s *Service) Register(ctx context.Context, username, password, confirmPassword string) (string, error) {
	username = NormalizeUsername(username)
	if username == "" || password == "" {
		return "", domain.ErrEmptyField
	}
	// длина в байтах, а не в символах
	if len(password) > MaxPasswordBytes {
		return "", domain.ErrPasswordTooLong
	}

	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.users.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		return "", domain.ErrUsernameTaken
	case !errors.Is(err, domain.ErrUserNotFound):
		return "", s.fail(ctx, "register", err)
	}

	if password != confirmPassword {
		return "", domain.ErrPasswordMismatch
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, &domain.User{Username: username, PasswordHash: hash})
	if err != nil {
		return "", s.fail(ctx, "register", err)
	}

	s.logger.Info("user registered", "user_id", user.ID, "username", username)
	return user.ID, nil
}

// Authenticate проверяет пароль и выдает новую сессию, вытесняя прежнюю.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*domain.Session, error) {
	username = NormalizeUsername(username)

	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			metrics.RecordAuthAttempt("user_not_found")
			s.logger.Info("login failed: no such user", "username", username)
			return nil, domain.ErrUserNotFound
		}
		metrics.RecordAuthAttempt("error")
		return nil, s.fail(ctx, "authenticate", err)
	}

	ok, needsRehash := s.hasher.Verify(user.PasswordHash, password)
	if !ok {
		metrics.RecordAuthAttempt("invalid_credentials")
		s.logger.Info("login failed: bad password", "user_id", user.ID)
		return nil, domain.ErrInvalidCredentials
	}

	if needsRehash {
		s.rehash(ctx, user.ID, password)
	}

	token, err := newToken()
	if err != nil {
		metrics.RecordAuthAttempt("error")
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	expiresAt := s.now().Add(s.ttl)

	if err := s.users.SetSession(ctx, user.ID, digestToken(token), expiresAt); err != nil {
		metrics.RecordAuthAttempt("error")
		return nil, s.fail(ctx, "authenticate", err)
	}

	metrics.RecordAuthAttempt("success")
	s.logger.Info("login ok", "user_id", user.ID, "expires_at", expiresAt, "replaced_session", user.HasSession())
	return &domain.Session{Token: token, UserID: user.ID, ExpiresAt: expiresAt}, nil
}

// rehash переводит пароль на текущий алгоритм. Неудача не мешает входу.
func (s *Service) rehash(ctx context.Context, userID, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, userID, hash)
	}
	if err != nil {
		s.logger.Warn("password rehash failed", "user_id", userID, "error", err)
		return
	}
	s.logger.Info("password rehashed", "user_id", userID)
}

// Validate возвращает владельца токена. Отсутствующий, чужой и просроченный
// токены неразличимы для вызывающего: все дают domain.ErrUnauthenticated.
func (s *Service) Validate(ctx context.Context, token string) (string, error) {
	presented := digestToken(token)
	stored := dummyDigest
	var (
		userID    string
		expiresAt time.Time
	)

	if token != "" {
		ctx, cancel := storage.WithTimeout(ctx, s.timeout)
		defer cancel()

		user, err := s.users.GetUserBySessionDigest(ctx, presented)
		switch {
		case err == nil:
			if user.HasSession() && user.SessionExpiresAt != nil {
				stored = *user.SessionDigest
				userID = user.ID
				expiresAt = *user.SessionExpiresAt
			}
		case errors.Is(err, domain.ErrUserNotFound):
		default:
			return "", s.fail(ctx, "validate", err)
		}
	}

	match := subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
	if !match || userID == "" || !s.now().Before(expiresAt) {
		return "", domain.ErrUnauthenticated
	}
	return userID, nil
}

// Revoke закрывает сессию владельца токена. Повторный вызов - не ошибка.
func (s *Service) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.users.ClearSessionByDigest(ctx, digestToken(token)); err != nil {
		return s.fail(ctx, "revoke", err)
	}
	s.logger.Debug("session revoked", "token_present", true)
	return nil
}
