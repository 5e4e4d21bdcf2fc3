package deriv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"copytrader/internal/models"
)

// ErrOrderTimeout - площадка не подтвердила ордер за отведённое время
var ErrOrderTimeout = errors.New("order placement timed out")

// Confirmation - подтверждение покупки контракта
type Confirmation struct {
	ContractID    string  `json:"contract_id"`
	TransactionID string  `json:"transaction_id,omitempty"`
	BuyPrice      float64 `json:"buy_price"`
	BalanceAfter  float64 `json:"balance_after"`
}

// Placer размещает ордер от имени копировщика
//
// Каждый ордер использует свою сессию: authorize, buy, close.
type Placer struct {
	dialer  *Dialer
	timeout time.Duration
}

// NewPlacer создаёт клиент размещения ордеров
func NewPlacer(dialer *Dialer, timeout time.Duration) *Placer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Placer{dialer: dialer, timeout: timeout}
}

// Place авторизуется токеном копировщика и покупает контракт
func (p *Placer) Place(ctx context.Context, token string, spec models.OrderSpec) (*Confirmation, error) {
	if spec.Amount <= 0 {
		return nil, fmt.Errorf("invalid order amount: %v", spec.Amount)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	session, err := p.dialer.Open(ctx)
	if err != nil {
		return nil, p.mapError(err)
	}
	defer session.Close()

	if _, err := session.Authorize(ctx, token); err != nil {
		return nil, p.mapError(fmt.Errorf("authorize: %w", err))
	}

	confirmation, err := session.Buy(ctx, spec)
	if err != nil {
		return nil, p.mapError(fmt.Errorf("buy: %w", err))
	}
	return confirmation, nil
}

func (p *Placer) mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrOrderTimeout
	}
	return err
}
