package events

import (
	"context"

	"copytrader/internal/models"
)

// Publisher - получатель событий
type Publisher interface {
	Publish(ctx context.Context, event models.Event)
}

// NoopPublisher отбрасывает события (Kafka не настроена)
type NoopPublisher struct{}

// Publish реализует Publisher
func (NoopPublisher) Publish(context.Context, models.Event) {}

// Multi рассылает событие всем получателям по порядку
type Multi []Publisher

// Publish реализует Publisher
func (m Multi) Publish(ctx context.Context, event models.Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, event)
		}
	}
}
