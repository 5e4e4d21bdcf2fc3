package websocket

import (
	"time"

	"copytrader/internal/models"
)

// MessageType определяет тип сообщения live-потока
type MessageType string

// Типы сообщений live-потока
const (
	// MessageTypeTradeReplicated - результат попытки репликации для одного копировщика
	MessageTypeTradeReplicated MessageType = models.EventTradeReplicated

	// MessageTypeTradeSettled - расчёт комиссии по записи репликации
	MessageTypeTradeSettled MessageType = models.EventTradeSettled

	// MessageTypeSubscriptionChanged - смена состояния потока мастера
	MessageTypeSubscriptionChanged MessageType = models.EventSubscriptionChanged

	// MessageTypeSubscriptionFailed - поток мастера остановлен после отказа
	MessageTypeSubscriptionFailed MessageType = models.EventSubscriptionFailed
)

// StreamMessage - сообщение, отправляемое клиентам
type StreamMessage struct {
	Type      MessageType `json:"type"`
	MasterID  string      `json:"master_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewStreamMessage создаёт сообщение из события
func NewStreamMessage(event models.Event) *StreamMessage {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &StreamMessage{
		Type:      MessageType(event.Type),
		MasterID:  event.MasterID,
		Timestamp: ts,
		Data:      event.Data,
	}
}
