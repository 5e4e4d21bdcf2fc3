package middleware

import (
	"context"
	"crypto/sha256"
	"net/http"
	"strings"
	"sync"

	"copytrader/pkg/crypto"
	"copytrader/pkg/utils"
)

// Заголовки аутентификации management API
const (
	APIKeyHeader = "X-API-Key"
	UserIDHeader = "X-User-ID"
)

type contextKey string

const userIDKey contextKey = "user_id"

// APIKeyAuth проверяет X-API-Key по bcrypt-хешу
//
// bcrypt медленный, поэтому подтверждённые ключи кешируются по sha256.
// Пустой хеш отключает проверку (режим локальной разработки).
type APIKeyAuth struct {
	hash     string
	verified sync.Map // [32]byte -> struct{}
	logger   *utils.Logger
}

// NewAPIKeyAuth создаёт middleware проверки ключа
func NewAPIKeyAuth(hash string, logger *utils.Logger) *APIKeyAuth {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	if hash == "" {
		logger.Warn("API_KEY_HASH is empty, management API is not protected")
	}
	return &APIKeyAuth{hash: hash, logger: logger.WithComponent("auth")}
}

// Middleware возвращает http middleware для mux.Router.Use
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.hash == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing api key")
			return
		}

		digest := sha256.Sum256([]byte(key))
		if _, ok := a.verified.Load(digest); !ok {
			if err := crypto.VerifyAPIKey(key, a.hash); err != nil {
				a.logger.Warn("api key rejected",
					utils.String("path", r.URL.Path),
					utils.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			a.verified.Store(digest, struct{}{})
		}

		next.ServeHTTP(w, r)
	})
}

// RequireUser переносит X-User-ID в context запроса
//
// Идентификатор пользователя определяет владельца мастеров и копировщиков.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing "+UserIDHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// WithUserID кладёт id пользователя в context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext возвращает id пользователя, если он есть
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
