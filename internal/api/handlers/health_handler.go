package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger - зависимость, доступность которой проверяет /health
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler отдаёт состояние сервиса
type HealthHandler struct {
	db      Pinger
	timeout time.Duration
}

// NewHealthHandler создает HealthHandler; db может быть nil
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db, timeout: 2 * time.Second}
}

// Health проверяет подключение к БД
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		if err := h.db.PingContext(ctx); err != nil {
			respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "degraded",
				"database": err.Error(),
			})
			return
		}
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
