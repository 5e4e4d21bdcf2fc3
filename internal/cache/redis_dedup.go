package cache

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"copytrader/internal/bot"
)

// Options - подключение к Redis
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient создаёт клиент Redis
func NewClient(opts Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// RedisDeduper - дедупликация транзакций мастеров через SETNX с TTL
//
// Переживает рестарт процесса и общий для нескольких инстансов.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

var _ bot.Deduper = (*RedisDeduper)(nil)

// NewRedisDeduper создаёт дедупликатор поверх клиента
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

// MarkSeen возвращает true, если ключ транзакции записан впервые
func (d *RedisDeduper) MarkSeen(ctx context.Context, masterID, transactionID string) (bool, error) {
	key := bot.DedupKey(masterID, transactionID)
	ok, err := d.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX %s: %w", key, err)
	}
	return ok, nil
}

// Ping проверяет доступность Redis
func (d *RedisDeduper) Ping(ctx context.Context) error {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis PING: %w", err)
	}
	return nil
}

// Close закрывает клиент
func (d *RedisDeduper) Close() error {
	return d.client.Close()
}
