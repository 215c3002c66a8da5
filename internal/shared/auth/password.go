package auth

import (
	"errors"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordRunes = 8
	// bcrypt only reads the first 72 bytes.
	maxPasswordBytes = 72
)

var (
	ErrWeakPassword    = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes")

	dummyHash     []byte
	dummyHashOnce sync.Once
)

// ValidatePassword counts characters, not bytes, for the lower bound so
// accented passwords are not penalized.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordRunes {
		return ErrWeakPassword
	}
	if len(password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// PasswordMatches reports whether password matches hash. A nil hash (an
// unknown email or an OAuth-only profile) still costs one bcrypt
// comparison so response time does not reveal which emails exist.
func PasswordMatches(hash *string, password string) bool {
	if hash == nil {
		dummyHashOnce.Do(func() {
			dummyHash, _ = bcrypt.GenerateFromPassword([]byte("splitpay-dummy-password"), bcrypt.DefaultCost)
		})
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(*hash), []byte(password)) == nil
}
