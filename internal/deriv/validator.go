package deriv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"copytrader/internal/models"
)

var (
	ErrEmptyToken         = errors.New("token is empty")
	ErrValidationTimeout  = errors.New("token validation timed out")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Validator проверяет токен одноразовой сессией authorize
type Validator struct {
	dialer  *Dialer
	timeout time.Duration
	now     func() time.Time
}

// NewValidator создаёт валидатор с таймаутом на всю процедуру
func NewValidator(dialer *Dialer, timeout time.Duration) *Validator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Validator{dialer: dialer, timeout: timeout, now: time.Now}
}

// Validate открывает сессию, авторизуется и возвращает атрибуты счёта
//
// Сессия закрывается при любом исходе. Отказ площадки возвращается как
// ErrInvalidCredentials с исходным APIError в цепочке.
func (v *Validator) Validate(ctx context.Context, token string) (*models.AccountAttributes, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEmptyToken
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	session, err := v.dialer.Open(ctx)
	if err != nil {
		return nil, v.mapError(err)
	}
	defer session.Close()

	attrs, err := session.Authorize(ctx, token)
	if err != nil {
		return nil, v.mapError(err)
	}

	attrs.ValidatedAt = v.now().UTC()
	return attrs, nil
}

func (v *Validator) mapError(err error) error {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, apiErr)
	case errors.Is(err, context.DeadlineExceeded):
		return ErrValidationTimeout
	default:
		return err
	}
}
