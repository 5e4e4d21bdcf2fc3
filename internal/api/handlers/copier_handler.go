package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"copytrader/internal/service"
)

// CopierHandler отвечает за аккаунты копировщиков
//
// Endpoints:
// - GET /api/v1/copiers          - копировщики пользователя
// - POST /api/v1/copiers         - регистрация копировщика
// - PATCH /api/v1/copiers/{id}   - политика ставки, активность, токен
// - DELETE /api/v1/copiers/{id}  - удаление
type CopierHandler struct {
	accounts service.AccountServiceInterface
}

// NewCopierHandler создает новый CopierHandler
func NewCopierHandler(accounts service.AccountServiceInterface) *CopierHandler {
	return &CopierHandler{accounts: accounts}
}

// ListCopiers возвращает копировщиков пользователя
// GET /api/v1/copiers
func (h *CopierHandler) ListCopiers(w http.ResponseWriter, r *http.Request) {
	copiers, err := h.accounts.ListCopiers(r.Context(), userID(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, copiers)
}

// RegisterCopier регистрирует копировщика
// POST /api/v1/copiers
//
// Request Body:
//
//	{
//	  "token": "...",
//	  "master_id": "6f1c...",
//	  "stake_type": "PERCENTAGE",
//	  "stake_amount": 50,
//	  "risk_multiplier": 1.5
//	}
//
// Response:
// - 201 Created
// - 404 Not Found: мастер не найден
// - 409 Conflict: мастер неактивен или копировщик уже подписан
func (h *CopierHandler) RegisterCopier(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterCopierRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}
	req.UserID = userID(r)

	copier, err := h.accounts.RegisterCopier(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, copier)
}

// UpdateCopier частично обновляет копировщика
// PATCH /api/v1/copiers/{id}
func (h *CopierHandler) UpdateCopier(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateCopierRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	copier, err := h.accounts.UpdateCopier(r.Context(), userID(r), mux.Vars(r)["id"], &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, copier)
}

// DeleteCopier удаляет копировщика
// DELETE /api/v1/copiers/{id}
func (h *CopierHandler) DeleteCopier(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.DeleteCopier(r.Context(), userID(r), mux.Vars(r)["id"]); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
