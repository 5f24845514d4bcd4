package identity

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

var legacyDigest = regexp.MustCompile(`^[0-9a-f]{32}$`)

// HashPassword возвращает bcrypt-хеш пароля.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword сверяет пароль с сохранённым хешем.
// Старые аккаунты хранят несолёный MD5; для них upgrade == true, и хеш нужно пересчитать.
func CheckPassword(hash, password string) (ok, upgrade bool, err error) {
	if legacyDigest.MatchString(hash) {
		sum := md5.Sum([]byte(password))
		digest := hex.EncodeToString(sum[:])
		ok = subtle.ConstantTimeCompare([]byte(digest), []byte(hash)) == 1
		return ok, ok, nil
	}

	err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, false, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, false, nil
	}
	return false, false, fmt.Errorf("compare password: %w", err)
}
