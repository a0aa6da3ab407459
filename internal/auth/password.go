package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrNotHashed は保存されている値がbcryptハッシュではない場合に返します
var ErrNotHashed = errors.New("stored credential is not a bcrypt hash")

// HashPassword はパスワードをbcryptでハッシュ化します
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword はパスワードとハッシュを照合します
// ハッシュでない値(平文で保存された値など)とは照合しません
func CheckPassword(hash, password string) error {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return ErrNotHashed
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
