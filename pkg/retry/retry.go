package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config - параметры экспоненциального backoff с jitter
//
// delay(n) = min(InitialDelay * Multiplier^n, MaxDelay) ± JitterFactor
type Config struct {
	// MaxRetries - максимум попыток (включая первую), <= 0 - без ограничения
	MaxRetries int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// JitterFactor - доля случайной вариации задержки (0.0 - 1.0)
	JitterFactor float64

	// RetryIf - фильтр ошибок, по умолчанию повторяются все кроме Permanent
	RetryIf func(error) bool

	// OnRetry вызывается перед ожиданием очередной попытки
	OnRetry func(attempt int, err error, delay time.Duration)
}

// FeedConfig - переподключение потока транзакций мастера
//
// 10 попыток, 2s → 60s.
func FeedConfig() Config {
	return Config{
		MaxRetries:   10,
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

// DatabaseConfig - ожидание БД при старте сервиса
//
// 5 попыток, 1s, 2s, 4s, 8s.
func DatabaseConfig() Config {
	return Config{
		MaxRetries:   5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (c *Config) normalize() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
}

// Backoff возвращает задержку перед попыткой attempt (с нуля)
func (c Config) Backoff(attempt int) time.Duration {
	c.normalize()
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	if c.JitterFactor > 0 {
		delay += delay * c.JitterFactor * (rand.Float64()*2 - 1)
	}
	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// Exhausted - израсходован ли бюджет попыток после attempts неудач
func (c Config) Exhausted(attempts int) bool {
	return c.MaxRetries > 0 && attempts >= c.MaxRetries
}

// Do выполняет operation до успеха, постоянной ошибки, исчерпания попыток или отмены ctx
//
//	err := retry.Do(ctx, func() error {
//	    return db.PingContext(ctx)
//	}, retry.DatabaseConfig())
func Do(ctx context.Context, operation func() error, cfg Config) error {
	cfg.normalize()
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = IsRetryable
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryIf(err) || cfg.Exhausted(attempt+1) {
			return err
		}

		delay := cfg.Backoff(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		}
	}
}

// ============================================================
// Классификация ошибок
// ============================================================

// PermanentError - ошибка, которую бессмысленно повторять
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent помечает ошибку как постоянную
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent - ошибка помечена через Permanent
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// IsRetryable - повторяются все ошибки, кроме постоянных и отмены контекста
func IsRetryable(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
