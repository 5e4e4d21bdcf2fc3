package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"copytrader/internal/api/handlers"
	"copytrader/internal/api/middleware"
	"copytrader/internal/service"
	"copytrader/pkg/utils"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	AccountService    service.AccountServiceInterface
	TradeService      service.TradeServiceInterface
	SettlementService service.SettlementServiceInterface

	// DB проверяется в /health, может быть nil
	DB handlers.Pinger
	// Stream обслуживает /ws/stream, может быть nil
	Stream http.HandlerFunc

	APIKeyHash     string
	AllowedOrigins []string
	Logger         *utils.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/ (X-API-Key, X-User-ID)
//
//	├── /masters/
//	│   ├── GET / - мастера пользователя
//	│   ├── POST / - регистрация мастера
//	│   ├── GET /{id} - мастер
//	│   ├── PATCH /{id} - обновление
//	│   ├── DELETE /{id} - удаление
//	│   ├── POST /{id}/refresh - обновить снимок аккаунта
//	│   └── GET /{id}/earnings - журнал комиссий
//	├── /copiers/
//	│   ├── GET / - копировщики пользователя
//	│   ├── POST / - регистрация копировщика
//	│   ├── PATCH /{id} - обновление
//	│   └── DELETE /{id} - удаление
//	├── /trades/
//	│   ├── GET / - записи репликации
//	│   ├── GET /{id} - запись
//	│   └── POST /{id}/settle - расчёт комиссии
//	└── GET /subscriptions - состояние лент мастеров
//
// /ws/stream - live-поток событий
// /health, /metrics - эксплуатация
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. APIKey + RequireUser (только /api/v1)
func SetupRoutes(deps *Dependencies) *mux.Router {
	logger := deps.Logger
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}

	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger))
	router.Use(middleware.CORS(deps.AllowedOrigins))

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.NewAPIKeyAuth(deps.APIKeyHash, logger).Middleware)
	api.Use(middleware.RequireUser)

	if deps.AccountService != nil {
		masterHandler := handlers.NewMasterHandler(deps.AccountService, deps.TradeService)
		api.HandleFunc("/masters", masterHandler.ListMasters).Methods(http.MethodGet)
		api.HandleFunc("/masters", masterHandler.RegisterMaster).Methods(http.MethodPost)
		api.HandleFunc("/masters/{id}", masterHandler.GetMaster).Methods(http.MethodGet)
		api.HandleFunc("/masters/{id}", masterHandler.UpdateMaster).Methods(http.MethodPatch)
		api.HandleFunc("/masters/{id}", masterHandler.DeleteMaster).Methods(http.MethodDelete)
		api.HandleFunc("/masters/{id}/refresh", masterHandler.RefreshMaster).Methods(http.MethodPost)
		if deps.TradeService != nil {
			api.HandleFunc("/masters/{id}/earnings", masterHandler.GetEarnings).Methods(http.MethodGet)
		}

		copierHandler := handlers.NewCopierHandler(deps.AccountService)
		api.HandleFunc("/copiers", copierHandler.ListCopiers).Methods(http.MethodGet)
		api.HandleFunc("/copiers", copierHandler.RegisterCopier).Methods(http.MethodPost)
		api.HandleFunc("/copiers/{id}", copierHandler.UpdateCopier).Methods(http.MethodPatch)
		api.HandleFunc("/copiers/{id}", copierHandler.DeleteCopier).Methods(http.MethodDelete)
	}

	if deps.TradeService != nil && deps.SettlementService != nil {
		tradeHandler := handlers.NewTradeHandler(deps.TradeService, deps.SettlementService)
		api.HandleFunc("/trades", tradeHandler.ListTrades).Methods(http.MethodGet)
		api.HandleFunc("/trades/{id}", tradeHandler.GetTrade).Methods(http.MethodGet)
		api.HandleFunc("/trades/{id}/settle", tradeHandler.SettleTrade).Methods(http.MethodPost)
		api.HandleFunc("/subscriptions", tradeHandler.GetSubscriptions).Methods(http.MethodGet)
	}

	// WebSocket route
	if deps.Stream != nil {
		router.HandleFunc("/ws/stream", deps.Stream)
	}

	healthHandler := handlers.NewHealthHandler(deps.DB)
	router.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// preflight: без маршрута mux отвечает 405 до CORS middleware
	router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return router
}
