package deriv

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"copytrader/internal/models"
	"copytrader/pkg/retry"
	"copytrader/pkg/utils"
)

// StreamConfig конфигурация потока транзакций мастера
type StreamConfig struct {
	// Backoff и бюджет переподключений
	Retry retry.Config
	// Интервал ping для проверки соединения
	PingInterval time.Duration
	// Таймаут ожидания pong
	PongTimeout time.Duration
	// Таймаут подключения и авторизации
	ConnectTimeout time.Duration
}

// DefaultStreamConfig возвращает конфигурацию по умолчанию
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Retry:          retry.FeedConfig(),
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
}

// StreamState состояние потока
type StreamState int32

const (
	StreamIdle StreamState = iota
	StreamConnecting
	StreamSubscribed
	StreamReconnecting
	StreamFailed
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamIdle:
		return "idle"
	case StreamConnecting:
		return "connecting"
	case StreamSubscribed:
		return "subscribed"
	case StreamReconnecting:
		return "reconnecting"
	case StreamFailed:
		return "failed"
	case StreamClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal - поток больше не будет переподключаться сам
func (s StreamState) Terminal() bool {
	return s == StreamFailed || s == StreamClosed
}

// Stream держит подписку на транзакции одного мастера
//
// Функции:
// - авторизация токеном мастера и подписка на транзакции
// - переподключение с exponential backoff, jitter и бюджетом попыток
// - ping/pong для проверки живости соединения
// - отказ авторизации переводит поток в failed без повторов
//
// Использование:
// 1. Создать поток: NewStream(...)
// 2. Установить handlers: SetOnTransaction, SetOnStateChange
// 3. Запустить: Start(ctx)
// 4. Остановить: Close()
type Stream struct {
	masterID string
	token    string
	dialer   *Dialer
	config   StreamConfig
	logger   *utils.Logger

	state         int32 // atomic StreamState
	retries       int32 // atomic
	skippedFrames int64 // atomic

	// Callbacks
	onTransaction func(*models.TradeNotification)
	onStateChange func(StreamState, error)
	callbackMu    sync.RWMutex

	mu          sync.RWMutex
	lastErr     error
	startedAt   time.Time
	lastEventAt time.Time

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewStream создаёт поток транзакций мастера
func NewStream(masterID, token string, dialer *Dialer, config StreamConfig, logger *utils.Logger) *Stream {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = 10 * time.Second
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	return &Stream{
		masterID: masterID,
		token:    token,
		dialer:   dialer,
		config:   config,
		logger:   logger.WithComponent("stream").WithMaster(masterID),
		done:     make(chan struct{}),
	}
}

// SetOnTransaction устанавливает callback для сделок мастера
//
// Вызывается из горутины чтения; долгая обработка задерживает поток.
func (s *Stream) SetOnTransaction(handler func(*models.TradeNotification)) {
	s.callbackMu.Lock()
	s.onTransaction = handler
	s.callbackMu.Unlock()
}

// SetOnStateChange устанавливает callback смены состояния
func (s *Stream) SetOnStateChange(handler func(StreamState, error)) {
	s.callbackMu.Lock()
	s.onStateChange = handler
	s.callbackMu.Unlock()
}

// MasterID возвращает идентификатор мастера
func (s *Stream) MasterID() string {
	return s.masterID
}

// State возвращает текущее состояние
func (s *Stream) State() StreamState {
	return StreamState(atomic.LoadInt32(&s.state))
}

// Done закрывается после остановки цикла переподключения
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Status возвращает снимок состояния для API
func (s *Stream) Status() models.SubscriptionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := models.SubscriptionStatus{
		MasterID:    s.masterID,
		State:       s.State().String(),
		Retries:     int(atomic.LoadInt32(&s.retries)),
		StartedAt:   s.startedAt,
		LastEventAt: s.lastEventAt,
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	return status
}

// Start запускает цикл подписки в отдельной горутине; повторный вызов игнорируется
func (s *Stream) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		s.cancel = cancel

		s.mu.Lock()
		s.startedAt = time.Now().UTC()
		s.mu.Unlock()

		go s.supervise(ctx)
	})
}

// Close останавливает поток и ждёт завершения цикла
func (s *Stream) Close() {
	s.startOnce.Do(func() {
		// поток не запускался
		close(s.done)
	})
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
	s.setState(StreamClosed, nil)
}

// ============ Цикл переподключения ============

func (s *Stream) supervise(ctx context.Context) {
	defer close(s.done)

	failures := 0
	for {
		if ctx.Err() != nil {
			s.setState(StreamClosed, nil)
			return
		}

		if failures == 0 {
			s.setState(StreamConnecting, nil)
		}

		subscribed, err := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.setState(StreamClosed, nil)
			return
		}

		// Успешная подписка восстанавливает бюджет попыток
		if subscribed {
			failures = 0
		}

		if retry.IsPermanent(err) {
			s.logger.Error("master feed rejected credentials", utils.Err(err))
			s.setState(StreamFailed, err)
			return
		}

		failures++
		atomic.StoreInt32(&s.retries, int32(failures))

		if s.config.Retry.Exhausted(failures) {
			s.logger.Error("master feed retry budget exhausted",
				utils.Int("attempts", failures), utils.Err(err))
			s.setState(StreamFailed, err)
			return
		}

		delay := s.config.Retry.Backoff(failures - 1)
		s.logger.Warn("master feed disconnected, reconnecting",
			utils.Int("attempt", failures),
			utils.Duration("delay", delay),
			utils.Err(err))
		s.setState(StreamReconnecting, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setState(StreamClosed, nil)
			return
		case <-timer.C:
		}
	}
}

// runOnce выполняет одно подключение; возвращает признак успешной подписки
func (s *Stream) runOnce(ctx context.Context) (bool, error) {
	connCtx, cancel := context.WithTimeout(ctx, s.config.ConnectTimeout)
	session, err := s.dialer.Open(connCtx)
	if err != nil {
		cancel()
		return false, err
	}
	defer session.Close()

	if _, err := session.Authorize(connCtx, s.token); err != nil {
		cancel()
		if IsAuthError(err) {
			return false, retry.Permanent(err)
		}
		return false, err
	}
	cancel()

	connCtx, cancelConn := context.WithCancel(ctx)
	defer cancelConn()

	pingErr := make(chan error, 1)
	go s.pingPump(connCtx, session, pingErr)

	subscribed := false
	onAck := func() {
		subscribed = true
		atomic.StoreInt32(&s.retries, 0)
		s.setState(StreamSubscribed, nil)
		s.logger.Info("master feed subscribed")
	}

	idle := s.config.PingInterval + s.config.PongTimeout
	err = session.Subscribe(connCtx, idle, onAck, s.dispatch, s.skipFrame)

	select {
	case perr := <-pingErr:
		if err == nil || errors.Is(err, ErrSessionClosed) {
			err = perr
		}
	default:
	}

	if IsAuthError(err) {
		err = retry.Permanent(err)
	}
	return subscribed, err
}

func (s *Stream) dispatch(n *models.TradeNotification) {
	s.mu.Lock()
	s.lastEventAt = time.Now().UTC()
	s.mu.Unlock()

	s.callbackMu.RLock()
	handler := s.onTransaction
	s.callbackMu.RUnlock()

	if handler != nil {
		handler(n)
	}
}

// SkippedFrames возвращает число пропущенных битых кадров
func (s *Stream) SkippedFrames() int64 {
	return atomic.LoadInt64(&s.skippedFrames)
}

// skipFrame пропускает кадр, который не удалось разобрать
func (s *Stream) skipFrame(err error) {
	atomic.AddInt64(&s.skippedFrames, 1)
	s.logger.Warn("malformed feed frame skipped", utils.Err(err))
}

// pingPump отправляет ping для проверки соединения
func (s *Stream) pingPump(ctx context.Context, session *Session, errc chan<- error) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := session.Ping(s.config.PongTimeout); err != nil {
				errc <- err
				session.Close()
				return
			}
		}
	}
}

func (s *Stream) setState(state StreamState, err error) {
	prev := StreamState(atomic.SwapInt32(&s.state, int32(state)))

	s.mu.Lock()
	if err != nil {
		s.lastErr = err
	} else if state == StreamSubscribed {
		s.lastErr = nil
	}
	s.mu.Unlock()

	if prev == state {
		return
	}

	s.callbackMu.RLock()
	handler := s.onStateChange
	s.callbackMu.RUnlock()

	if handler != nil {
		handler(state, err)
	}
}
