package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"copytrader/internal/models"
	"copytrader/internal/repository"
)

// EarningsSummary - журнал начислений мастера с итогом
type EarningsSummary struct {
	MasterID string                  `json:"master_id"`
	Total    decimal.Decimal         `json:"total"`
	Earnings []*models.MasterEarning `json:"earnings"`
}

// TradeService отвечает за чтение записей репликации, журнала комиссий
// и состояния подписок.
type TradeService struct {
	trades        CopiedTradeRepositoryInterface
	earnings      EarningRepositoryInterface
	accounts      AccountServiceInterface
	subscriptions SubscriptionLister
}

// NewTradeService создает новый экземпляр TradeService.
//
// subscriptions может быть nil, тогда список подписок пуст.
func NewTradeService(trades CopiedTradeRepositoryInterface, earnings EarningRepositoryInterface, accounts AccountServiceInterface, subscriptions SubscriptionLister) *TradeService {
	return &TradeService{
		trades:        trades,
		earnings:      earnings,
		accounts:      accounts,
		subscriptions: subscriptions,
	}
}

// ListTrades возвращает записи пользователя по фильтру (пустой список вместо nil)
//
// Видны только записи, где пользователь владеет мастером или копировщиком.
func (s *TradeService) ListTrades(ctx context.Context, userID string, filter models.CopiedTradeFilter) ([]*models.CopiedTrade, error) {
	if userID == "" {
		return []*models.CopiedTrade{}, nil
	}
	filter.UserID = userID

	trades, err := s.trades.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if trades == nil {
		trades = []*models.CopiedTrade{}
	}
	return trades, nil
}

// GetTrade возвращает запись репликации, если пользователь владеет её мастером
// или копировщиком. Чужая запись неотличима от отсутствующей.
func (s *TradeService) GetTrade(ctx context.Context, userID, id string) (*models.CopiedTrade, error) {
	trade, err := s.getTrade(ctx, id)
	if err != nil {
		return nil, err
	}

	owns, err := s.ownsCopier(ctx, userID, trade.CopierID)
	if err == nil && !owns {
		owns, err = s.ownsMaster(ctx, userID, trade.MasterID)
	}
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, ErrCopiedTradeNotFound
	}
	return trade, nil
}

// AuthorizeSettlement разрешает расчёт только владельцу копировщика:
// прибыль сообщает сторона, заплатившая ставку.
func (s *TradeService) AuthorizeSettlement(ctx context.Context, userID, id string) error {
	trade, err := s.getTrade(ctx, id)
	if err != nil {
		return err
	}
	owns, err := s.ownsCopier(ctx, userID, trade.CopierID)
	if err != nil {
		return err
	}
	if !owns {
		return ErrCopiedTradeNotFound
	}
	return nil
}

func (s *TradeService) getTrade(ctx context.Context, id string) (*models.CopiedTrade, error) {
	trade, err := s.trades.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCopiedTradeNotFound) {
			return nil, ErrCopiedTradeNotFound
		}
		return nil, err
	}
	return trade, nil
}

func (s *TradeService) ownsCopier(ctx context.Context, userID, copierID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	_, err := s.accounts.GetCopier(ctx, userID, copierID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrCopierNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *TradeService) ownsMaster(ctx context.Context, userID, masterID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	_, err := s.accounts.GetMaster(ctx, userID, masterID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrMasterNotFound):
		return false, nil
	default:
		return false, err
	}
}

// GetEarnings возвращает начисления мастера пользователя и их сумму
func (s *TradeService) GetEarnings(ctx context.Context, userID, masterID string, limit int) (*EarningsSummary, error) {
	if _, err := s.accounts.GetMaster(ctx, userID, masterID); err != nil {
		return nil, err
	}

	earnings, err := s.earnings.ListByMaster(ctx, masterID, limit)
	if err != nil {
		return nil, err
	}
	if earnings == nil {
		earnings = []*models.MasterEarning{}
	}

	total, err := s.earnings.SumByMaster(ctx, masterID)
	if err != nil {
		return nil, err
	}

	return &EarningsSummary{
		MasterID: masterID,
		Total:    total,
		Earnings: earnings,
	}, nil
}

// Subscriptions возвращает состояние лент мастеров
func (s *TradeService) Subscriptions() []models.SubscriptionStatus {
	if s.subscriptions == nil {
		return []models.SubscriptionStatus{}
	}
	statuses := s.subscriptions.Statuses()
	if statuses == nil {
		statuses = []models.SubscriptionStatus{}
	}
	return statuses
}
