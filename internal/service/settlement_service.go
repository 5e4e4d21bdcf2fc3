package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"copytrader/internal/bot"
	"copytrader/internal/models"
	"copytrader/internal/repository"
	"copytrader/pkg/utils"
)

// Ошибки сервиса расчёта
var (
	ErrInvalidProfit       = errors.New("follower profit must be a finite number")
	ErrCopiedTradeNotFound = errors.New("copied trade not found")
	ErrEmptyCopiedTradeID  = errors.New("copied trade id is required")
)

// Результаты расчёта для метрик
const (
	settlementCharged          = "charged"
	settlementZeroFee          = "zero_fee"
	settlementAlreadyProcessed = "already_processed"
	settlementError            = "error"
)

// SettlementService начисляет комиссию мастера по закрытой сделке копировщика.
//
// Вся запись выполняется одной транзакцией в репозитории; сервис отвечает
// за проверку входа, метрики и публикацию события.
type SettlementService struct {
	repo   SettlementRepositoryInterface
	events EventPublisher
	logger *utils.Logger
}

// NewSettlementService создает новый экземпляр SettlementService.
func NewSettlementService(repo SettlementRepositoryInterface, events EventPublisher, logger *utils.Logger) *SettlementService {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	return &SettlementService{
		repo:   repo,
		events: events,
		logger: logger.WithComponent("settlement"),
	}
}

// Settle рассчитывает комиссию по записи репликации.
//
// Параметры:
// - copiedTradeID: id записи репликации
// - followerProfit: прибыль копировщика (отрицательная допустима, комиссия тогда 0)
//
// Повторный вызов по обработанной записи возвращает AlreadyProcessed = true
// и ничего не меняет.
//
// Возвращает:
// - error: ErrInvalidProfit для NaN/Inf, ErrCopiedTradeNotFound если записи нет
func (s *SettlementService) Settle(ctx context.Context, copiedTradeID string, followerProfit float64) (*models.SettlementResult, error) {
	if copiedTradeID == "" {
		return nil, ErrEmptyCopiedTradeID
	}
	if !utils.IsFinite(followerProfit) {
		return nil, ErrInvalidProfit
	}

	result, err := s.repo.Settle(ctx, copiedTradeID, decimal.NewFromFloat(followerProfit))
	if err != nil {
		if errors.Is(err, repository.ErrCopiedTradeNotFound) {
			return nil, ErrCopiedTradeNotFound
		}
		bot.RecordSettlement(settlementError, 0)
		s.logger.Error("settlement failed",
			utils.CopiedTradeID(copiedTradeID),
			utils.Err(err),
		)
		return nil, fmt.Errorf("settle %s: %w", copiedTradeID, err)
	}

	log := s.logger.With(
		utils.CopiedTradeID(copiedTradeID),
		utils.MasterID(result.MasterID),
		utils.CopierID(result.CopierID),
	)

	if result.AlreadyProcessed {
		bot.RecordSettlement(settlementAlreadyProcessed, 0)
		log.Debug("copied trade already settled")
		return result, nil
	}

	fee := result.Fee.InexactFloat64()
	if result.Fee.IsPositive() {
		bot.RecordSettlement(settlementCharged, fee)
	} else {
		bot.RecordSettlement(settlementZeroFee, 0)
	}

	log.Info("copied trade settled",
		utils.String("follower_profit", result.FollowerProfit.String()),
		utils.String("fee", result.Fee.String()),
	)

	if s.events != nil {
		s.events.Publish(ctx, models.NewEvent(models.EventTradeSettled, result.MasterID, result))
	}

	return result, nil
}
