package service

import (
	"context"

	"github.com/shopspring/decimal"

	"copytrader/internal/models"
	"copytrader/internal/repository"
	"copytrader/pkg/crypto"
)

// MasterRepositoryInterface определяет интерфейс репозитория мастеров
type MasterRepositoryInterface interface {
	Create(ctx context.Context, m *models.MasterAccount) error
	GetByID(ctx context.Context, id string) (*models.MasterAccount, error)
	ListByUser(ctx context.Context, userID string) ([]*models.MasterAccount, error)
	Update(ctx context.Context, m *models.MasterAccount) error
	UpdateSnapshot(ctx context.Context, m *models.MasterAccount) error
	RotateToken(ctx context.Context, m *models.MasterAccount) error
	Delete(ctx context.Context, id string) error
}

// CopierRepositoryInterface определяет интерфейс репозитория копировщиков
type CopierRepositoryInterface interface {
	Create(ctx context.Context, c *models.CopierAccount) error
	GetByID(ctx context.Context, id string) (*models.CopierAccount, error)
	ListByUser(ctx context.Context, userID string) ([]*models.CopierAccount, error)
	Update(ctx context.Context, c *models.CopierAccount) error
	Delete(ctx context.Context, id string) error
}

// CopiedTradeRepositoryInterface определяет интерфейс репозитория записей репликации
type CopiedTradeRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*models.CopiedTrade, error)
	List(ctx context.Context, filter models.CopiedTradeFilter) ([]*models.CopiedTrade, error)
}

// SettlementRepositoryInterface определяет интерфейс атомарного расчёта комиссии
type SettlementRepositoryInterface interface {
	Settle(ctx context.Context, copiedTradeID string, followerProfit decimal.Decimal) (*models.SettlementResult, error)
}

// EarningRepositoryInterface определяет интерфейс журнала начислений
type EarningRepositoryInterface interface {
	ListByMaster(ctx context.Context, masterID string, limit int) ([]*models.MasterEarning, error)
	SumByMaster(ctx context.Context, masterID string) (decimal.Decimal, error)
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ MasterRepositoryInterface = (*repository.MasterRepository)(nil)
var _ CopierRepositoryInterface = (*repository.CopierRepository)(nil)
var _ CopiedTradeRepositoryInterface = (*repository.CopiedTradeRepository)(nil)
var _ SettlementRepositoryInterface = (*repository.SettlementRepository)(nil)
var _ EarningRepositoryInterface = (*repository.EarningRepository)(nil)

// ============ Внешние зависимости ============

// CredentialValidator проверяет токен на площадке и возвращает атрибуты аккаунта
type CredentialValidator interface {
	Validate(ctx context.Context, token string) (*models.AccountAttributes, error)
}

// TokenCipher шифрует токены для хранения и расшифровывает их
type TokenCipher interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// EventPublisher принимает доменные события
type EventPublisher interface {
	Publish(ctx context.Context, event models.Event)
}

var _ TokenCipher = (*crypto.TokenCipher)(nil)

// SubscriptionLister отдаёт состояние подписок на ленты мастеров
type SubscriptionLister interface {
	Statuses() []models.SubscriptionStatus
}

// ============ Интерфейсы сервисов для Dependency Injection ============

// AccountServiceInterface определяет интерфейс сервиса аккаунтов
type AccountServiceInterface interface {
	RegisterMaster(ctx context.Context, req *RegisterMasterRequest) (*models.MasterAccount, error)
	GetMaster(ctx context.Context, userID, id string) (*models.MasterAccount, error)
	ListMasters(ctx context.Context, userID string) ([]*models.MasterAccount, error)
	UpdateMaster(ctx context.Context, userID, id string, req *UpdateMasterRequest) (*models.MasterAccount, error)
	RefreshMaster(ctx context.Context, userID, id string) (*models.MasterAccount, error)
	DeleteMaster(ctx context.Context, userID, id string) error
	RegisterCopier(ctx context.Context, req *RegisterCopierRequest) (*models.CopierAccount, error)
	GetCopier(ctx context.Context, userID, id string) (*models.CopierAccount, error)
	ListCopiers(ctx context.Context, userID string) ([]*models.CopierAccount, error)
	UpdateCopier(ctx context.Context, userID, id string, req *UpdateCopierRequest) (*models.CopierAccount, error)
	DeleteCopier(ctx context.Context, userID, id string) error
}

// SettlementServiceInterface определяет интерфейс сервиса расчёта комиссий
type SettlementServiceInterface interface {
	Settle(ctx context.Context, copiedTradeID string, followerProfit float64) (*models.SettlementResult, error)
}

// TradeServiceInterface определяет интерфейс сервиса запросов по сделкам
type TradeServiceInterface interface {
	ListTrades(ctx context.Context, userID string, filter models.CopiedTradeFilter) ([]*models.CopiedTrade, error)
	GetTrade(ctx context.Context, userID, id string) (*models.CopiedTrade, error)
	AuthorizeSettlement(ctx context.Context, userID, id string) error
	GetEarnings(ctx context.Context, userID, masterID string, limit int) (*EarningsSummary, error)
	Subscriptions() []models.SubscriptionStatus
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ AccountServiceInterface = (*AccountService)(nil)
var _ SettlementServiceInterface = (*SettlementService)(nil)
var _ TradeServiceInterface = (*TradeService)(nil)
