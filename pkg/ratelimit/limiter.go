package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter - token bucket для ограничения частоты открытия сессий к площадке
//
// Ведро наполняется со скоростью rate токенов/сек до ёмкости burst.
// Каждое новое WebSocket-соединение потребляет один токен.
//
//	limiter := NewRateLimiter(20, 40)
//	if err := limiter.Wait(ctx); err != nil { ... }
type RateLimiter struct {
	rate       float64
	burst      float64
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewRateLimiter создаёт limiter; rate <= 0 отключает ограничение
func NewRateLimiter(rate, burst float64) *RateLimiter {
	if burst < rate {
		burst = rate
	}
	if burst < 1 {
		burst = 1
	}

	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// refill вызывается под lock'ом
func (rl *RateLimiter) refill() {
	now := rl.now()
	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
	rl.lastRefill = now
}

// Wait блокирует до получения токена или отмены ctx
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil || rl.rate <= 0 {
		return ctx.Err()
	}

	for {
		rl.mu.Lock()
		rl.refill()
		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Allow забирает токен без ожидания
func (rl *RateLimiter) Allow() bool {
	if rl == nil || rl.rate <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// Tokens - текущее количество доступных токенов
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	return rl.tokens
}
