package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"copytrader/internal/service"
)

// MasterHandler отвечает за аккаунты мастеров
//
// Endpoints:
// - GET /api/v1/masters                - мастера пользователя
// - POST /api/v1/masters               - регистрация мастера
// - GET /api/v1/masters/{id}           - один мастер
// - PATCH /api/v1/masters/{id}         - частичное обновление
// - DELETE /api/v1/masters/{id}        - удаление (копировщики удаляются, история остаётся)
// - POST /api/v1/masters/{id}/refresh  - обновление снимка баланса
// - GET /api/v1/masters/{id}/earnings  - журнал комиссий
type MasterHandler struct {
	accounts service.AccountServiceInterface
	trades   service.TradeServiceInterface
}

// NewMasterHandler создает новый MasterHandler с внедрением зависимостей
func NewMasterHandler(accounts service.AccountServiceInterface, trades service.TradeServiceInterface) *MasterHandler {
	return &MasterHandler{
		accounts: accounts,
		trades:   trades,
	}
}

// ListMasters возвращает мастеров пользователя
// GET /api/v1/masters
func (h *MasterHandler) ListMasters(w http.ResponseWriter, r *http.Request) {
	masters, err := h.accounts.ListMasters(r.Context(), userID(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, masters)
}

// RegisterMaster регистрирует мастера
// POST /api/v1/masters
//
// Request Body:
//
//	{
//	  "token": "a1-...",
//	  "label": "main",
//	  "performance_fee": 20
//	}
//
// Response:
// - 201 Created: мастер создан
// - 400 Bad Request: невалидные параметры
// - 422 Unprocessable Entity: площадка отклонила токен
// - 502 Bad Gateway: площадка не ответила вовремя
func (h *MasterHandler) RegisterMaster(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterMasterRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}
	req.UserID = userID(r)

	master, err := h.accounts.RegisterMaster(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, master)
}

// GetMaster возвращает мастера
// GET /api/v1/masters/{id}
func (h *MasterHandler) GetMaster(w http.ResponseWriter, r *http.Request) {
	master, err := h.accounts.GetMaster(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, master)
}

// UpdateMaster частично обновляет мастера
// PATCH /api/v1/masters/{id}
//
// Request Body (все поля опциональны):
//
//	{"active": false, "performance_fee": 25, "label": "swing", "token": "..."}
func (h *MasterHandler) UpdateMaster(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateMasterRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	master, err := h.accounts.UpdateMaster(r.Context(), userID(r), mux.Vars(r)["id"], &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, master)
}

// DeleteMaster удаляет мастера
// DELETE /api/v1/masters/{id}
func (h *MasterHandler) DeleteMaster(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.DeleteMaster(r.Context(), userID(r), mux.Vars(r)["id"]); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshMaster повторно проверяет токен и обновляет снимок аккаунта
// POST /api/v1/masters/{id}/refresh
func (h *MasterHandler) RefreshMaster(w http.ResponseWriter, r *http.Request) {
	master, err := h.accounts.RefreshMaster(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, master)
}

// GetEarnings возвращает журнал комиссий мастера
// GET /api/v1/masters/{id}/earnings?limit=50
func (h *MasterHandler) GetEarnings(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_limit", err.Error(), nil)
		return
	}

	summary, err := h.trades.GetEarnings(r.Context(), userID(r), mux.Vars(r)["id"], limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}
