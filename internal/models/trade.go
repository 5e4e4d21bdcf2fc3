package models

// TradeNotification - сделка мастера, полученная из потока транзакций (не сохраняется)
type TradeNotification struct {
	TransactionID string  `json:"transaction_id"`
	Action        string  `json:"action"` // buy, sell, deposit, ...
	ContractID    string  `json:"contract_id,omitempty"`
	Symbol        string  `json:"symbol"`
	ContractType  string  `json:"contract_type"`
	Amount        float64 `json:"amount"` // номинал, всегда >= 0
	Currency      string  `json:"currency"`
	Duration      int     `json:"duration"`
	DurationUnit  string  `json:"duration_unit"`
}

// IsReplicable - копируются только покупки контрактов
func (n *TradeNotification) IsReplicable() bool {
	return n.Action == "" || n.Action == "buy"
}

// OrderSpec - параметры зеркального ордера копировщика
type OrderSpec struct {
	Amount       float64 `json:"amount"`
	Basis        string  `json:"basis"` // всегда "stake"
	ContractType string  `json:"contract_type"`
	Currency     string  `json:"currency"`
	Symbol       string  `json:"symbol"`
	Duration     int     `json:"duration"`
	DurationUnit string  `json:"duration_unit"`
}

// BasisStake - ставка задаётся суммой
const BasisStake = "stake"

// NewOrderSpec строит ордер из уведомления мастера с рассчитанной суммой
func NewOrderSpec(n *TradeNotification, amount float64, defaultCurrency string) OrderSpec {
	currency := n.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	return OrderSpec{
		Amount:       amount,
		Basis:        BasisStake,
		ContractType: n.ContractType,
		Currency:     currency,
		Symbol:       n.Symbol,
		Duration:     n.Duration,
		DurationUnit: n.DurationUnit,
	}
}
