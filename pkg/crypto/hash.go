package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Ошибки хеширования API ключей
var (
	ErrEmptyAPIKey    = errors.New("api key cannot be empty")
	ErrAPIKeyMismatch = errors.New("api key does not match hash")
	ErrInvalidHash    = errors.New("invalid api key hash format")
	ErrAPIKeyTooLong  = errors.New("api key exceeds maximum length of 72 bytes")
)

// DefaultCost - стоимость bcrypt по умолчанию
const DefaultCost = 12

// MaxAPIKeyLength - bcrypt учитывает только первые 72 байта
const MaxAPIKeyLength = 72

// HashAPIKey хеширует API ключ через bcrypt
func HashAPIKey(key string, cost int) (string, error) {
	if key == "" {
		return "", ErrEmptyAPIKey
	}
	if len(key) > MaxAPIKeyLength {
		return "", ErrAPIKeyTooLong
	}

	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyAPIKey сверяет ключ с bcrypt-хешем
func VerifyAPIKey(key, hash string) error {
	if key == "" {
		return ErrEmptyAPIKey
	}
	if hash == "" {
		return ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrAPIKeyMismatch
		}
		return ErrInvalidHash
	}
	return nil
}

// ValidateHash проверяет, что строка является bcrypt-хешем
func ValidateHash(hash string) error {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return ErrInvalidHash
	}
	return nil
}
