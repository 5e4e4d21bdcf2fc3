package models

import "time"

// Типы событий для live-потока и шины событий
const (
	EventTradeReplicated     = "trade_replicated"
	EventTradeSettled        = "trade_settled"
	EventSubscriptionChanged = "subscription_changed"
	EventSubscriptionFailed  = "subscription_failed"
)

// SubscriptionStatus - состояние подписки мастера в реестре
type SubscriptionStatus struct {
	MasterID    string    `json:"master_id"`
	State       string    `json:"state"`
	Retries     int       `json:"retries"`
	LastError   string    `json:"last_error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	LastEventAt time.Time `json:"last_event_at"`
}

// Event - событие для live-потока и шины событий
type Event struct {
	Type      string      `json:"type"`
	MasterID  string      `json:"master_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent создаёт событие с текущим временем
func NewEvent(eventType, masterID string, data interface{}) Event {
	return Event{
		Type:      eventType,
		MasterID:  masterID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}
