package domain

import "errors"

// kindError - ошибка с родительской категорией, чтобы errors.Is работал
// и по конкретной ошибке, и по ее классу (NotFound, Validation и т.д.).
type kindError struct {
	msg    string
	parent error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool {
	return e.parent != nil && target == e.parent
}

func newKind(parent error, msg string) error {
	return &kindError{msg: msg, parent: parent}
}

// Классы ошибок.
var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrConflict - гонка при оптимистичной блокировке, запрос можно повторить.
	ErrConflict = errors.New("concurrent update conflict, retry")
	// ErrStorageTimeout - хранилище не ответило за отведенное время.
	ErrStorageTimeout = errors.New("storage timeout")
)

// Конкретные ошибки.
var (
	ErrUserNotFound  = newKind(ErrNotFound, "user not found")
	ErrPostNotFound  = newKind(ErrNotFound, "post not found")
	ErrReplyNotFound = newKind(ErrNotFound, "reply not found")

	ErrInvalidCredentials = newKind(ErrUnauthenticated, "invalid username or password")

	ErrUsernameTaken    = newKind(ErrValidation, "username already exists")
	ErrPasswordMismatch = newKind(ErrValidation, "the passwords don't match")
	ErrEmptyField       = newKind(ErrValidation, "required field is empty")
	ErrPasswordTooLong  = newKind(ErrValidation, "password is longer than 72 bytes")
)
