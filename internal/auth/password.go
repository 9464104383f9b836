package auth

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher хеширует пароли при регистрации и проверяет их при входе.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify сообщает, подходит ли пароль, и нужно ли перехешировать его
	// (устаревший формат или заниженная стоимость).
	Verify(hash, password string) (ok, needsRehash bool)
}

// BcryptHasher - bcrypt с фиксированной стоимостью. Дополнительно принимает
// несоленые MD5-хеши из старой базы и просит их перехешировать.
type BcryptHasher struct {
	Cost int
}

// MaxPasswordBytes - предел bcrypt, длиннее он не хеширует.
const MaxPasswordBytes = 72

var legacyMD5 = regexp.MustCompile(`^[0-9a-f]{32}$`)

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{Cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h *BcryptHasher) Verify(hash, password string) (bool, bool) {
	if legacyMD5.MatchString(hash) {
		sum := md5.Sum([]byte(password))
		ok := subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(hash)) == 1
		return ok, ok
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return false, false
	}
	cost, err := bcrypt.Cost([]byte(hash))
	return true, err == nil && cost < h.Cost
}
