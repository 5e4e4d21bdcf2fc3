package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"copytrader/internal/deriv"
	"copytrader/internal/models"
	"copytrader/internal/repository"
	"copytrader/pkg/utils"
)

// ErrZeroStake - рассчитанная ставка не положительна, ордер не отправляется
var ErrZeroStake = errors.New("stake amount is zero")

// CopierSource - чтение активных копировщиков мастера
type CopierSource interface {
	ListActiveByMaster(ctx context.Context, masterID string) ([]*models.CopierAccount, error)
}

// TradeRecorder - запись результатов репликации
type TradeRecorder interface {
	Create(ctx context.Context, t *models.CopiedTrade) error
}

// OrderPlacer - размещение зеркального ордера
type OrderPlacer interface {
	Place(ctx context.Context, token string, spec models.OrderSpec) (*deriv.Confirmation, error)
}

// TokenOpener - расшифровка токенов, хранящихся в БД
type TokenOpener interface {
	Open(sealed string) (string, error)
}

// EventSink - получатель событий (live-поток, шина)
type EventSink interface {
	Publish(ctx context.Context, event models.Event)
}

// EngineConfig - параметры движка репликации
type EngineConfig struct {
	// Глобальный предел одновременно открытых сессий размещения ордеров
	MaxConcurrentSessions int64
	// Валюта ордера, если в уведомлении её нет
	DefaultCurrency string
	// Таймаут записи результата в БД
	RecordTimeout time.Duration
	// Сколько помнить транзакцию в локальном дедупликаторе
	DedupTTL time.Duration
}

// Engine - движок репликации сделок
//
// На каждую сделку мастера:
// 1. Дедупликация по (мастер, транзакция)
// 2. Чтение активных копировщиков
// 3. Параллельно для каждого: расчёт ставки → ордер → запись SUCCESS/FAILED
//
// Ошибка одного копировщика не влияет на остальных. Общее число открытых
// сессий ограничено семафором, лишние попытки ждут в очереди. Отмена ctx
// снимает с очереди только ещё не начатые попытки.
type Engine struct {
	copiers  CopierSource
	trades   TradeRecorder
	placer   OrderPlacer
	tokens   TokenOpener
	dedup    Deduper
	local    *MemoryDeduper
	sink     EventSink
	sessions *semaphore.Weighted

	defaultCurrency string
	recordTimeout   time.Duration

	logger *utils.Logger
	now    func() time.Time

	mu sync.RWMutex
}

// NewEngine создаёт движок репликации
func NewEngine(cfg EngineConfig, copiers CopierSource, trades TradeRecorder, placer OrderPlacer, tokens TokenOpener, logger *utils.Logger) *Engine {
	if cfg.MaxConcurrentSessions <= 0 {
		cfg.MaxConcurrentSessions = 50
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 5 * time.Second
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	e := &Engine{
		copiers:         copiers,
		trades:          trades,
		placer:          placer,
		tokens:          tokens,
		local:           NewMemoryDeduper(cfg.DedupTTL),
		sessions:        semaphore.NewWeighted(cfg.MaxConcurrentSessions),
		defaultCurrency: cfg.DefaultCurrency,
		recordTimeout:   cfg.RecordTimeout,
		logger:          logger.WithComponent("engine"),
		now:             time.Now,
	}
	e.dedup = e.local
	return e
}

// SetDeduper заменяет дедупликатор (например, на Redis)
//
// Локальный дедупликатор остаётся резервом: при ошибке внешнего
// решение принимается по памяти процесса.
func (e *Engine) SetDeduper(d Deduper) {
	e.mu.Lock()
	e.dedup = d
	e.mu.Unlock()
}

// SetEventSink устанавливает получателя событий репликации
func (e *Engine) SetEventSink(sink EventSink) {
	e.mu.Lock()
	e.sink = sink
	e.mu.Unlock()
}

// HandleNotification реплицирует сделку мастера на всех его активных копировщиков
//
// Возвращает записи в порядке копировщиков. Ошибка возвращается только если
// не удалось прочитать список копировщиков; ошибки ордеров становятся FAILED записями.
func (e *Engine) HandleNotification(ctx context.Context, masterID string, n *models.TradeNotification) ([]*models.CopiedTrade, error) {
	log := e.logger.WithMaster(masterID).With(utils.TransactionID(n.TransactionID))

	if !n.IsReplicable() {
		RecordTransaction("ignored")
		log.Debug("transaction ignored", utils.String("action", n.Action))
		return nil, nil
	}

	copiers, err := e.copiers.ListActiveByMaster(ctx, masterID)
	if err != nil {
		log.Error("failed to load copiers", utils.Err(err))
		return nil, fmt.Errorf("list copiers: %w", err)
	}

	if !e.markSeen(ctx, masterID, n.TransactionID, log) {
		RecordTransaction("duplicate")
		log.Debug("duplicate transaction skipped")
		return nil, nil
	}

	RecordTransaction("replicated")
	FanoutSize.Observe(float64(len(copiers)))

	records := make([]*models.CopiedTrade, len(copiers))
	var g errgroup.Group
	for i, copier := range copiers {
		g.Go(func() error {
			records[i] = e.replicate(ctx, masterID, n, copier)
			return nil
		})
	}
	g.Wait()

	log.Info("transaction replicated",
		utils.Symbol(n.Symbol),
		utils.Amount(n.Amount),
		utils.Int("copiers", len(copiers)))

	return records, nil
}

// markSeen отмечает транзакцию и возвращает true, если она встретилась впервые
//
// Транзакция отмечается и в локальном дедупликаторе: повтор, уже
// реплицированный этим процессом, отсекается даже при сбое внешнего.
func (e *Engine) markSeen(ctx context.Context, masterID, transactionID string, log *utils.Logger) bool {
	e.mu.RLock()
	dedup := e.dedup
	e.mu.RUnlock()

	localFirst, _ := e.local.MarkSeen(ctx, masterID, transactionID)
	if dedup == nil || dedup == Deduper(e.local) {
		return localFirst
	}

	first, err := dedup.MarkSeen(ctx, masterID, transactionID)
	if err != nil {
		DedupFallbacks.Inc()
		log.Warn("dedup check failed, using local state", utils.Err(err))
		return localFirst
	}
	return first && localFirst
}

// replicate выполняет одну попытку для одного копировщика и сохраняет её итог
func (e *Engine) replicate(ctx context.Context, masterID string, n *models.TradeNotification, copier *models.CopierAccount) *models.CopiedTrade {
	start := e.now()
	log := e.logger.WithMaster(masterID).WithCopier(copier.ID).With(utils.TransactionID(n.TransactionID))

	stake := RoundStake(CalculateStake(n.Amount, copier.Policy(), copier.RiskMultiplier))
	spec := models.NewOrderSpec(n, stake, e.defaultCurrency)

	record := &models.CopiedTrade{
		MasterID:            masterID,
		CopierID:            copier.ID,
		MasterTransactionID: n.TransactionID,
		Symbol:              spec.Symbol,
		ContractType:        spec.ContractType,
		Amount:              stake,
		Currency:            spec.Currency,
	}

	var (
		confirmation *deriv.Confirmation
		err          error
	)
	switch {
	case stake <= 0:
		err = ErrZeroStake
	default:
		if err = utils.ValidateSymbol(spec.Symbol); err == nil {
			confirmation, err = e.place(ctx, copier, spec)
		}
	}

	if err != nil {
		record.Status = models.CopiedTradeFailed
		record.ErrorMessage = err.Error()
		log.Warn("copy order failed", utils.Amount(stake), utils.Err(err))
	} else {
		record.Status = models.CopiedTradeSuccess
		record.ContractID = confirmation.ContractID
		log.Info("copy order placed", utils.Amount(stake), utils.ContractID(confirmation.ContractID))
	}

	e.persist(ctx, record, log)

	RecordCopiedTrade(record.Status, float64(e.now().Sub(start).Milliseconds()))
	e.publish(ctx, models.NewEvent(models.EventTradeReplicated, masterID, record))

	return record
}

// place ждёт слот в пуле сессий и размещает ордер
func (e *Engine) place(ctx context.Context, copier *models.CopierAccount, spec models.OrderSpec) (*deriv.Confirmation, error) {
	waitStart := e.now()
	if err := e.sessions.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for session slot: %w", err)
	}
	defer e.sessions.Release(1)
	SessionWaitLatency.Observe(float64(e.now().Sub(waitStart).Microseconds()) / 1000)

	InFlightSessions.Inc()
	defer InFlightSessions.Dec()

	token := copier.Token
	if e.tokens != nil {
		plain, err := e.tokens.Open(copier.Token)
		if err != nil {
			return nil, fmt.Errorf("decrypt copier token: %w", err)
		}
		token = plain
	}

	// Открытая сессия доводится до конца: её ограничивает таймаут ордера,
	// а не отмена ctx, иначе исполненная покупка записалась бы как FAILED
	return e.placer.Place(context.WithoutCancel(ctx), token, spec)
}

// persist сохраняет запись даже при отмене ctx: попытка уже состоялась
func (e *Engine) persist(ctx context.Context, record *models.CopiedTrade, log *utils.Logger) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.recordTimeout)
	defer cancel()

	err := e.trades.Create(writeCtx, record)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrCopiedTradeExists):
		log.Debug("copied trade already recorded")
	default:
		RecordWriteErrors.Inc()
		log.Error("failed to persist copied trade", utils.Status(record.Status), utils.Err(err))
	}
}

func (e *Engine) publish(ctx context.Context, event models.Event) {
	e.mu.RLock()
	sink := e.sink
	e.mu.RUnlock()

	if sink != nil {
		sink.Publish(ctx, event)
	}
}
