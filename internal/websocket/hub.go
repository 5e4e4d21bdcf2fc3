package websocket

import (
	"context"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"copytrader/internal/models"
	"copytrader/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Hub управляет всеми активными WebSocket соединениями live-потока
//
// Назначение:
// Рассылает клиентам-дашбордам события репликации, расчётов и
// состояния подписок мастеров без polling.
//
// Функции:
// - Регистрация и отмена регистрации клиентов
// - Broadcast сообщений всем активным клиентам
// - Отключение клиентов, не успевающих читать
// - Потокобезопасная работа с клиентами (sync.RWMutex)
//
// Использование:
// 1. Создать hub: hub := NewHub(origins, logger)
// 2. Запустить в горутине: go hub.Run()
// 3. Передать как получатель событий: engine.SetEventSink(hub)
// 4. Остановить: hub.Stop()
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan []byte

	// Регистрация нового клиента
	register chan *Client

	// Отмена регистрации клиента
	unregister chan *Client

	// Остановка цикла
	stop     chan struct{}
	stopOnce sync.Once

	// Сообщения, отброшенные при переполнении broadcast
	dropped int64

	origins *OriginChecker
	logger  *utils.Logger

	// Mutex для потокобезопасного доступа к clients
	mu sync.RWMutex
}

// NewHub создает новый Hub
func NewHub(allowedOrigins []string, logger *utils.Logger) *Hub {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		origins:    NewOriginChecker(allowedOrigins),
		logger:     logger.WithComponent("ws_hub"),
	}
}

// Run запускает главный цикл Hub
//
// Копирует список клиентов под RLock, отправляет без блокировки,
// медленных клиентов удаляет под Write Lock.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("stream client connected", utils.Int("clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("stream client disconnected", utils.Int("clients", total))

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				total := len(h.clients)
				h.mu.Unlock()
				h.logger.Warn("removed slow stream clients",
					utils.Int("removed", len(toRemove)),
					utils.Int("clients", total))
			}
		}
	}
}

// Stop останавливает цикл и закрывает каналы клиентов
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Publish сериализует событие и рассылает его клиентам
func (h *Hub) Publish(_ context.Context, event models.Event) {
	h.Broadcast(NewStreamMessage(event))
}

// Broadcast сериализует сообщение и ставит его в очередь рассылки
func (h *Hub) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal stream message", utils.Err(err))
		return
	}
	h.BroadcastRaw(data)
}

// BroadcastRaw ставит готовые данные в очередь; при переполнении сообщение отбрасывается
func (h *Hub) BroadcastRaw(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		atomic.AddInt64(&h.dropped, 1)
	}
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages возвращает количество отброшенных сообщений
func (h *Hub) DroppedMessages() int64 {
	return atomic.LoadInt64(&h.dropped)
}
