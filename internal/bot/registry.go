package bot

import (
	"context"
	"sort"
	"sync"
	"time"

	"copytrader/internal/deriv"
	"copytrader/internal/models"
	"copytrader/pkg/utils"
)

// MasterSource - чтение активных мастеров и очистка осиротевших
type MasterSource interface {
	ListActive(ctx context.Context) ([]*models.MasterAccount, error)
	DeleteOrphans(ctx context.Context, olderThan time.Time) (int64, error)
}

// NotificationHandler - обработчик сделок мастера
type NotificationHandler interface {
	HandleNotification(ctx context.Context, masterID string, n *models.TradeNotification) ([]*models.CopiedTrade, error)
}

// Feed - поток транзакций одного мастера
//
// Реализуется deriv.Stream.
type Feed interface {
	SetOnTransaction(handler func(*models.TradeNotification))
	SetOnStateChange(handler func(deriv.StreamState, error))
	Start(ctx context.Context)
	Close()
	State() deriv.StreamState
	Status() models.SubscriptionStatus
}

// FeedFactory создаёт поток по расшифрованному токену мастера
type FeedFactory func(masterID, token string) Feed

// RegistryConfig - параметры реестра подписок
type RegistryConfig struct {
	// Период сверки реестра с БД
	SyncInterval time.Duration
	// Через сколько после отказа поток пробуется заново
	FailedRetryDelay time.Duration
	// Период очистки мастеров без копировщиков, 0 - отключено
	OrphanSweepInterval time.Duration
	// Минимальный возраст удаляемого мастера
	OrphanMasterTTL time.Duration
}

// subscription - запись реестра
type subscription struct {
	feed     Feed
	sealed   string // зашифрованный токен, по которому поток был запущен
	failedAt time.Time
}

// Registry - реестр живых подписок, ключ - ID мастера
//
// Сверка с БД:
// - активный мастер без подписки → запуск потока
// - подписка мастера, который отключён или удалён → остановка
// - сменился токен → перезапуск
// - поток в failed дольше FailedRetryDelay → перезапуск
type Registry struct {
	config  RegistryConfig
	masters MasterSource
	tokens  TokenOpener
	handler NotificationHandler
	factory FeedFactory
	sink    EventSink
	logger  *utils.Logger
	now     func() time.Time

	subs map[string]*subscription
	mu   sync.RWMutex

	// Обработчики сделок, запущенные из потоков
	inflight sync.WaitGroup
}

// NewRegistry создаёт реестр подписок
func NewRegistry(config RegistryConfig, masters MasterSource, tokens TokenOpener, handler NotificationHandler, factory FeedFactory, logger *utils.Logger) *Registry {
	if config.SyncInterval <= 0 {
		config.SyncInterval = 30 * time.Second
	}
	if config.FailedRetryDelay <= 0 {
		config.FailedRetryDelay = time.Minute
	}
	if config.OrphanMasterTTL <= 0 {
		config.OrphanMasterTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	return &Registry{
		config:  config,
		masters: masters,
		tokens:  tokens,
		handler: handler,
		factory: factory,
		logger:  logger.WithComponent("registry"),
		now:     time.Now,
		subs:    make(map[string]*subscription),
	}
}

// SetEventSink устанавливает получателя событий о состоянии подписок
func (r *Registry) SetEventSink(sink EventSink) {
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
}

// Run выполняет сверку при старте и далее по таймеру до отмены ctx
func (r *Registry) Run(ctx context.Context) error {
	if err := r.Reconcile(ctx); err != nil {
		r.logger.Error("initial reconcile failed", utils.Err(err))
	}

	ticker := time.NewTicker(r.config.SyncInterval)
	defer ticker.Stop()

	var sweep <-chan time.Time
	if r.config.OrphanSweepInterval > 0 {
		sweepTicker := time.NewTicker(r.config.OrphanSweepInterval)
		defer sweepTicker.Stop()
		sweep = sweepTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			r.StopAll()
			r.inflight.Wait()
			return ctx.Err()
		case <-ticker.C:
			if err := r.Reconcile(ctx); err != nil {
				r.logger.Error("reconcile failed", utils.Err(err))
			}
		case <-sweep:
			r.SweepOrphans(ctx)
		}
	}
}

// Reconcile приводит набор подписок к списку активных мастеров
func (r *Registry) Reconcile(ctx context.Context) error {
	masters, err := r.masters.ListActive(ctx)
	if err != nil {
		return err
	}

	desired := make(map[string]*models.MasterAccount, len(masters))
	for _, m := range masters {
		desired[m.ID] = m
	}

	now := r.now()
	var stale []*subscription
	var start []*models.MasterAccount

	r.mu.Lock()
	for id, sub := range r.subs {
		master, ok := desired[id]
		switch {
		case !ok:
			r.logger.Info("stopping feed for inactive master", utils.MasterID(id))
			stale = append(stale, sub)
			delete(r.subs, id)

		case sub.sealed != master.Token:
			r.logger.Info("master token changed, restarting feed", utils.MasterID(id))
			stale = append(stale, sub)
			delete(r.subs, id)
			start = append(start, master)

		case sub.feed.State() == deriv.StreamFailed:
			if sub.failedAt.IsZero() {
				sub.failedAt = now
			}
			if now.Sub(sub.failedAt) >= r.config.FailedRetryDelay {
				r.logger.Info("retrying failed feed", utils.MasterID(id))
				stale = append(stale, sub)
				delete(r.subs, id)
				start = append(start, master)
			}
		}
	}
	for id, master := range desired {
		if _, ok := r.subs[id]; !ok && !containsMaster(start, id) {
			start = append(start, master)
		}
	}
	r.mu.Unlock()

	for _, sub := range stale {
		sub.feed.Close()
	}
	for _, master := range start {
		r.start(ctx, master)
	}

	r.updateStateGauges()
	return nil
}

// start расшифровывает токен и запускает поток мастера
func (r *Registry) start(ctx context.Context, master *models.MasterAccount) {
	token := master.Token
	if r.tokens != nil {
		plain, err := r.tokens.Open(master.Token)
		if err != nil {
			r.logger.Error("failed to decrypt master token", utils.MasterID(master.ID), utils.Err(err))
			return
		}
		token = plain
	}

	masterID := master.ID
	feed := r.factory(masterID, token)
	feed.SetOnTransaction(func(n *models.TradeNotification) {
		r.dispatch(ctx, masterID, n)
	})
	feed.SetOnStateChange(func(state deriv.StreamState, err error) {
		r.onStateChange(ctx, feed, state, err)
	})

	r.mu.Lock()
	r.subs[masterID] = &subscription{feed: feed, sealed: master.Token}
	r.mu.Unlock()

	feed.Start(ctx)
	r.logger.Info("feed started", utils.MasterID(masterID))
}

// dispatch передаёт сделку движку, не блокируя чтение потока
func (r *Registry) dispatch(ctx context.Context, masterID string, n *models.TradeNotification) {
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		if _, err := r.handler.HandleNotification(ctx, masterID, n); err != nil {
			r.logger.Error("replication failed",
				utils.MasterID(masterID),
				utils.TransactionID(n.TransactionID),
				utils.Err(err))
		}
	}()
}

func (r *Registry) onStateChange(ctx context.Context, feed Feed, state deriv.StreamState, err error) {
	status := feed.Status()
	status.State = state.String()

	eventType := models.EventSubscriptionChanged
	switch state {
	case deriv.StreamReconnecting:
		FeedReconnects.Inc()
	case deriv.StreamFailed:
		FeedFailures.Inc()
		eventType = models.EventSubscriptionFailed
		r.logger.Error("master feed failed permanently",
			utils.MasterID(status.MasterID),
			utils.Int("retries", status.Retries),
			utils.Err(err))
	}

	r.mu.RLock()
	sink := r.sink
	r.mu.RUnlock()

	if sink != nil {
		sink.Publish(ctx, models.NewEvent(eventType, status.MasterID, status))
	}
}

// SweepOrphans удаляет мастеров без копировщиков старше OrphanMasterTTL
func (r *Registry) SweepOrphans(ctx context.Context) {
	deleted, err := r.masters.DeleteOrphans(ctx, r.now().Add(-r.config.OrphanMasterTTL))
	if err != nil {
		r.logger.Error("orphan sweep failed", utils.Err(err))
		return
	}
	if deleted > 0 {
		r.logger.Info("orphan masters removed", utils.Int64("count", deleted))
	}
}

// StopAll останавливает все потоки
func (r *Registry) StopAll() {
	r.mu.Lock()
	subs := make([]*subscription, 0, len(r.subs))
	for id, sub := range r.subs {
		subs = append(subs, sub)
		delete(r.subs, id)
	}
	r.mu.Unlock()

	for _, sub := range subs {
		sub.feed.Close()
	}
	r.updateStateGauges()
}

// Statuses возвращает состояние подписок, отсортированное по ID мастера
func (r *Registry) Statuses() []models.SubscriptionStatus {
	r.mu.RLock()
	result := make([]models.SubscriptionStatus, 0, len(r.subs))
	for _, sub := range r.subs {
		result = append(result, sub.feed.Status())
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].MasterID < result[j].MasterID })
	return result
}

// Len возвращает количество подписок
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Registry) updateStateGauges() {
	counts := map[deriv.StreamState]int{
		deriv.StreamConnecting:   0,
		deriv.StreamSubscribed:   0,
		deriv.StreamReconnecting: 0,
		deriv.StreamFailed:       0,
	}

	r.mu.RLock()
	for _, sub := range r.subs {
		counts[sub.feed.State()]++
	}
	r.mu.RUnlock()

	for state, n := range counts {
		FeedStates.WithLabelValues(state.String()).Set(float64(n))
	}
}

func containsMaster(list []*models.MasterAccount, id string) bool {
	for _, m := range list {
		if m.ID == id {
			return true
		}
	}
	return false
}
