package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Deriv    DerivConfig
	Engine   EngineConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port           int
	Host           string
	AllowedOrigins []string // для CORS и WebSocket потока, пусто = любой origin
}

// DatabaseConfig - настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	EncryptionKey string // 32 байта, шифрование токенов площадки
	APIKeyHash    string // bcrypt-хеш ключа management API, пусто = без авторизации
}

// DerivConfig - параметры площадки
type DerivConfig struct {
	WSURL             string
	AppID             string
	ValidationTimeout time.Duration // ожидание ответа на authorize при валидации
	OrderTimeout      time.Duration // ожидание подтверждения покупки
	DefaultCurrency   string
}

// EngineConfig - параметры движка репликации
type EngineConfig struct {
	// Ограничение исходящих сессий
	MaxConcurrentSessions int     // одновременно открытых сессий размещения ордеров
	SessionRate           float64 // новых соединений в секунду
	SessionBurst          float64

	// Реестр подписок
	SyncInterval time.Duration // период сверки реестра с БД

	// Переподключение потока мастера
	FeedInitialDelay time.Duration
	FeedMaxDelay     time.Duration
	FeedMaxRetries   int
	FeedPingInterval time.Duration

	// Дедупликация транзакций после переподключений
	DedupTTL time.Duration

	// Очистка мастеров без копировщиков (0 = выключено)
	OrphanSweepInterval time.Duration
	OrphanMasterTTL     time.Duration
}

// RedisConfig - пустой Addr включает in-memory дедупликацию
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig - пустой список брокеров отключает публикацию событий
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level       string
	Format      string
	Output      string
	Development bool
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "copytrader"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
			APIKeyHash:    getEnv("API_KEY_HASH", ""),
		},
		Deriv: DerivConfig{
			WSURL:             getEnv("DERIV_WS_URL", "wss://ws.binaryws.com/websockets/v3"),
			AppID:             getEnv("DERIV_APP_ID", "1089"),
			ValidationTimeout: getEnvAsDuration("VALIDATION_TIMEOUT", 10*time.Second),
			OrderTimeout:      getEnvAsDuration("ORDER_TIMEOUT", 15*time.Second),
			DefaultCurrency:   getEnv("DEFAULT_CURRENCY", "USD"),
		},
		Engine: EngineConfig{
			MaxConcurrentSessions: getEnvAsInt("MAX_CONCURRENT_SESSIONS", 50),
			SessionRate:           getEnvAsFloat("SESSION_RATE", 20),
			SessionBurst:          getEnvAsFloat("SESSION_BURST", 40),

			SyncInterval: getEnvAsDuration("SYNC_INTERVAL", 30*time.Second),

			FeedInitialDelay: getEnvAsDuration("FEED_INITIAL_DELAY", 2*time.Second),
			FeedMaxDelay:     getEnvAsDuration("FEED_MAX_DELAY", 60*time.Second),
			FeedMaxRetries:   getEnvAsInt("FEED_MAX_RETRIES", 10),
			FeedPingInterval: getEnvAsDuration("FEED_PING_INTERVAL", 30*time.Second),

			DedupTTL: getEnvAsDuration("DEDUP_TTL", 24*time.Hour),

			OrphanSweepInterval: getEnvAsDuration("ORPHAN_SWEEP_INTERVAL", 0),
			OrphanMasterTTL:     getEnvAsDuration("ORPHAN_MASTER_TTL", 24*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "copytrader.events"),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Format:      getEnv("LOG_FORMAT", "json"),
			Output:      getEnv("LOG_OUTPUT", "stdout"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// ENCRYPTION_KEY обязателен: токены площадки хранятся только в зашифрованном виде
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting account tokens")
	}

	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	if c.Security.APIKeyHash != "" && !strings.HasPrefix(c.Security.APIKeyHash, "$2") {
		return fmt.Errorf("API_KEY_HASH must be a bcrypt hash")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if _, err := url.Parse(c.Deriv.WSURL); err != nil || c.Deriv.WSURL == "" {
		return fmt.Errorf("DERIV_WS_URL is invalid: %q", c.Deriv.WSURL)
	}

	if c.Deriv.ValidationTimeout <= 0 {
		return fmt.Errorf("VALIDATION_TIMEOUT must be positive, got %v", c.Deriv.ValidationTimeout)
	}

	if c.Deriv.OrderTimeout <= 0 {
		return fmt.Errorf("ORDER_TIMEOUT must be positive, got %v", c.Deriv.OrderTimeout)
	}

	if c.Engine.MaxConcurrentSessions < 1 {
		return fmt.Errorf("MAX_CONCURRENT_SESSIONS must be at least 1, got %d", c.Engine.MaxConcurrentSessions)
	}

	if c.Engine.SessionRate < 0 {
		return fmt.Errorf("SESSION_RATE cannot be negative, got %v", c.Engine.SessionRate)
	}

	if c.Engine.SyncInterval < time.Second {
		return fmt.Errorf("SYNC_INTERVAL must be at least 1s, got %v", c.Engine.SyncInterval)
	}

	if c.Engine.FeedMaxRetries < 0 {
		return fmt.Errorf("FEED_MAX_RETRIES cannot be negative, got %d", c.Engine.FeedMaxRetries)
	}

	if c.Engine.FeedInitialDelay <= 0 || c.Engine.FeedMaxDelay < c.Engine.FeedInitialDelay {
		return fmt.Errorf("FEED_INITIAL_DELAY must be positive and not exceed FEED_MAX_DELAY")
	}

	if c.Engine.OrphanSweepInterval < 0 {
		return fmt.Errorf("ORPHAN_SWEEP_INTERVAL cannot be negative, got %v", c.Engine.OrphanSweepInterval)
	}

	return nil
}

// Endpoint возвращает URL WebSocket API площадки с app_id
func (d DerivConfig) Endpoint() string {
	u, err := url.Parse(d.WSURL)
	if err != nil {
		return d.WSURL
	}
	q := u.Query()
	if d.AppID != "" {
		q.Set("app_id", d.AppID)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList разбирает список через запятую, пустые элементы отбрасываются
func getEnvAsList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
