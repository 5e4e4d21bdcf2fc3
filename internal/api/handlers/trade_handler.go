package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"copytrader/internal/models"
	"copytrader/internal/service"
)

// TradeHandler отвечает за записи репликации, расчёт комиссий и состояние подписок
//
// Endpoints:
// - GET /api/v1/trades                - список записей с фильтрами
// - GET /api/v1/trades/{id}           - одна запись
// - POST /api/v1/trades/{id}/settle   - расчёт комиссии мастера
// - GET /api/v1/subscriptions         - состояние лент мастеров
type TradeHandler struct {
	trades     service.TradeServiceInterface
	settlement service.SettlementServiceInterface
}

// NewTradeHandler создает новый TradeHandler
func NewTradeHandler(trades service.TradeServiceInterface, settlement service.SettlementServiceInterface) *TradeHandler {
	return &TradeHandler{
		trades:     trades,
		settlement: settlement,
	}
}

// SettleRequest - тело запроса расчёта
type SettleRequest struct {
	FollowerProfit *float64 `json:"follower_profit"`
}

// SettleResponse - результат расчёта
type SettleResponse struct {
	Processed bool `json:"processed"`
	*models.SettlementResult
}

// ListTrades возвращает записи репликации по мастерам и копировщикам пользователя
// GET /api/v1/trades?master_id=&copier_id=&status=SUCCESS&processed=false&limit=50&offset=0
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := models.CopiedTradeFilter{
		MasterID: q.Get("master_id"),
		CopierID: q.Get("copier_id"),
		Status:   strings.ToUpper(q.Get("status")),
	}
	if filter.Status != "" && filter.Status != models.CopiedTradeSuccess && filter.Status != models.CopiedTradeFailed {
		respondWithError(w, http.StatusBadRequest, "invalid_status", "status must be SUCCESS or FAILED", nil)
		return
	}

	if raw := q.Get("processed"); raw != "" {
		processed, err := strconv.ParseBool(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid_processed", "processed must be a boolean", nil)
			return
		}
		filter.Processed = &processed
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit", 0); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_limit", err.Error(), nil)
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_offset", err.Error(), nil)
		return
	}

	trades, err := h.trades.ListTrades(r.Context(), userID(r), filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, trades)
}

// GetTrade возвращает запись репликации
// GET /api/v1/trades/{id}
func (h *TradeHandler) GetTrade(w http.ResponseWriter, r *http.Request) {
	trade, err := h.trades.GetTrade(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, trade)
}

// SettleTrade рассчитывает комиссию мастера по записи
// POST /api/v1/trades/{id}/settle
//
// Request Body:
//
//	{"follower_profit": 100}
//
// Response:
// - 200 OK: {"processed": true, "already_processed": false, "fee": "20", ...}
// - 400 Bad Request: follower_profit отсутствует или не конечное число
// - 404 Not Found: запись не найдена или копировщик принадлежит другому пользователю
func (h *TradeHandler) SettleTrade(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}
	if req.FollowerProfit == nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "follower_profit is required", nil)
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.trades.AuthorizeSettlement(r.Context(), userID(r), id); err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.settlement.Settle(r.Context(), id, *req.FollowerProfit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, SettleResponse{Processed: true, SettlementResult: result})
}

// GetSubscriptions возвращает состояние лент мастеров
// GET /api/v1/subscriptions
func (h *TradeHandler) GetSubscriptions(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.trades.Subscriptions())
}
