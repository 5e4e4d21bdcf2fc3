package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"copytrader/internal/api/middleware"
	"copytrader/internal/service"
	"copytrader/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes - ограничение размера тела запроса
const maxBodyBytes = 1 << 20

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondWithError отправляет JSON ответ с ошибкой
func respondWithError(w http.ResponseWriter, statusCode int, code, message string, details interface{}) {
	respondWithJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// decodeBody читает JSON тело запроса; пустое тело - ошибка
func decodeBody(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

// userID возвращает id пользователя, проставленный middleware.RequireUser
func userID(r *http.Request) string {
	id, _ := middleware.UserIDFromContext(r.Context())
	return id
}

// queryInt разбирает целочисленный query-параметр
func queryInt(r *http.Request, name string, defaultValue int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return v, nil
}

// handleServiceError обрабатывает ошибки от сервиса и возвращает соответствующий HTTP статус
func handleServiceError(w http.ResponseWriter, err error) {
	var verr utils.ValidationErrors

	switch {
	case errors.As(err, &verr):
		respondWithError(w, http.StatusBadRequest, "validation_failed", "Validation failed", []utils.ValidationError(verr))

	case errors.Is(err, service.ErrMasterNotFound):
		respondWithError(w, http.StatusNotFound, "master_not_found", "Master account not found", nil)

	case errors.Is(err, service.ErrCopierNotFound):
		respondWithError(w, http.StatusNotFound, "copier_not_found", "Copier account not found", nil)

	case errors.Is(err, service.ErrCopiedTradeNotFound):
		respondWithError(w, http.StatusNotFound, "copied_trade_not_found", "Copied trade not found", nil)

	case errors.Is(err, service.ErrMasterExists):
		respondWithError(w, http.StatusConflict, "master_exists", "Master account already exists", nil)

	case errors.Is(err, service.ErrCopierExists):
		respondWithError(w, http.StatusConflict, "copier_exists", "Copier already follows this master", nil)

	case errors.Is(err, service.ErrMasterInactive):
		respondWithError(w, http.StatusConflict, "master_inactive", "Master account is not active", nil)

	case errors.Is(err, service.ErrInvalidToken):
		respondWithError(w, http.StatusUnprocessableEntity, "invalid_token", "Token rejected by trading platform", err.Error())

	case errors.Is(err, service.ErrValidationUnavailable):
		respondWithError(w, http.StatusBadGateway, "validation_unavailable", "Trading platform did not confirm the token", err.Error())

	case errors.Is(err, service.ErrInvalidProfit), errors.Is(err, service.ErrEmptyCopiedTradeID):
		respondWithError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)

	default:
		utils.Error("request failed", utils.Err(err))
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", nil)
	}
}
