package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// tokenBytes - 256 бит энтропии.
const tokenBytes = 32

// dummyDigest сравнивается с предъявленным дайджестом, когда сравнивать не с чем,
// чтобы ветка "токена нет" стоила столько же, сколько "токен не совпал".
var dummyDigest = strings.Repeat("0", sha256.Size*2)

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// digestToken - в хранилище лежит только SHA-256 от токена.
func digestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
