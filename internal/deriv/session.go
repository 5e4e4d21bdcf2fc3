package deriv

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"copytrader/internal/models"
	"copytrader/pkg/ratelimit"
)

// ErrSessionClosed - сессия закрыта до получения ответа
var ErrSessionClosed = errors.New("session closed")

// Dialer открывает WebSocket-соединения с площадкой
//
// Все исходящие соединения (валидация, ордера, потоки мастеров) проходят через
// общий token bucket, чтобы не превышать лимит площадки на новые подключения.
type Dialer struct {
	url              string
	handshakeTimeout time.Duration
	limiter          *ratelimit.RateLimiter
}

// NewDialer создаёт dialer; limiter может быть nil
func NewDialer(url string, limiter *ratelimit.RateLimiter) *Dialer {
	return &Dialer{
		url:              url,
		handshakeTimeout: 10 * time.Second,
		limiter:          limiter,
	}
}

// URL возвращает адрес WebSocket API
func (d *Dialer) URL() string {
	return d.url
}

// Open устанавливает соединение в пределах ctx
func (d *Dialer) Open(ctx context.Context) (*Session, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: d.handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("dial error: %w", err)
	}

	return &Session{conn: conn}, nil
}

// Session - кратковременная сессия запрос-ответ поверх одного соединения
//
// Не предназначена для конкурентного использования, кроме Close.
type Session struct {
	conn      *websocket.Conn
	reqID     int
	closeOnce sync.Once
	closed    atomic.Bool
}

// Authorize авторизует сессию токеном и возвращает атрибуты счёта
func (s *Session) Authorize(ctx context.Context, token string) (*models.AccountAttributes, error) {
	s.reqID++
	env, err := s.call(ctx, authorizeRequest{Authorize: token, ReqID: s.reqID}, MsgAuthorize)
	if err != nil {
		return nil, err
	}
	if env.Authorize == nil {
		return nil, fmt.Errorf("empty authorize response")
	}
	return env.Authorize.attributes(), nil
}

// Buy покупает контракт по спецификации ордера
func (s *Session) Buy(ctx context.Context, spec models.OrderSpec) (*Confirmation, error) {
	s.reqID++
	req := newBuyRequest(spec)
	req.ReqID = s.reqID

	env, err := s.call(ctx, req, MsgBuy)
	if err != nil {
		return nil, err
	}
	if env.Buy == nil || env.Buy.ContractID == "" {
		return nil, fmt.Errorf("buy response without contract_id")
	}
	return &Confirmation{
		ContractID:    string(env.Buy.ContractID),
		TransactionID: string(env.Buy.TransactionID),
		BuyPrice:      float64(env.Buy.BuyPrice),
		BalanceAfter:  float64(env.Buy.Balance),
	}, nil
}

// Close закрывает соединение; безопасен для повторного вызова
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = s.conn.Close()
	})
	return err
}

// call отправляет запрос и ждёт ответ с нужным msg_type, кадром error или истечением ctx
func (s *Session) call(ctx context.Context, req interface{}, want string) (*envelope, error) {
	// Отмена ctx без дедлайна прерывает блокирующее чтение
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline {
		s.conn.SetWriteDeadline(deadline)
		s.conn.SetReadDeadline(deadline)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, s.mapIOError(ctx, err)
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, s.mapIOError(ctx, err)
		}

		env, err := decodeEnvelope(data)
		if err != nil {
			return nil, err
		}
		if env.Error != nil {
			return nil, env.Error
		}
		if env.MsgType == want {
			return env, nil
		}
		// Посторонние кадры (ping, старые подписки) пропускаем
	}
}

// mapIOError превращает таймаут чтения/записи в context.DeadlineExceeded
func (s *Session) mapIOError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return context.DeadlineExceeded
	}
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return fmt.Errorf("session error: %w", err)
}

// Subscribe подписывается на поток транзакций авторизованного счёта и читает его
//
// Блокируется до разрыва соединения, кадра error или отмены ctx. onAck вызывается
// один раз на первом кадре подписки, onEvent - на каждой транзакции,
// onMalformed - на кадре, который не удалось разобрать.
// idle - допустимая тишина на соединении; 0 отключает контроль.
func (s *Session) Subscribe(ctx context.Context, idle time.Duration, onAck func(), onEvent func(*models.TradeNotification), onMalformed func(error)) error {
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	s.reqID++
	payload, err := json.Marshal(transactionSubscribeRequest{Transaction: 1, Subscribe: 1, ReqID: s.reqID})
	if err != nil {
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return s.mapIOError(ctx, err)
	}
	s.conn.SetWriteDeadline(time.Time{})

	extend := func() {
		if idle > 0 {
			s.conn.SetReadDeadline(time.Now().Add(idle))
		} else {
			s.conn.SetReadDeadline(time.Time{})
		}
	}
	extend()
	s.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	acked := false
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return s.mapIOError(ctx, err)
		}
		extend()

		env, err := decodeEnvelope(data)
		if err != nil {
			// битый кадр не рвёт подписку
			if onMalformed != nil {
				onMalformed(err)
			}
			continue
		}
		if env.Error != nil {
			return env.Error
		}
		if env.MsgType != MsgTransaction {
			continue
		}

		if !acked {
			acked = true
			if onAck != nil {
				onAck()
			}
		}
		if env.Transaction == nil {
			continue
		}
		if n := env.Transaction.notification(); n != nil && onEvent != nil {
			onEvent(n)
		}
	}
}

// Ping отправляет управляющий ping; безопасен параллельно с чтением
func (s *Session) Ping(timeout time.Duration) error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}
