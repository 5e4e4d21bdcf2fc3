package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Статусы записи репликации
const (
	CopiedTradeSuccess = "SUCCESS"
	CopiedTradeFailed  = "FAILED"
)

// CopiedTrade - результат одной попытки зеркалирования сделки мастера на копировщика
//
// processed переходит false→true ровно один раз, при расчёте комиссии.
type CopiedTrade struct {
	ID                  string              `json:"id" db:"id"`
	MasterID            string              `json:"master_id" db:"master_id"`
	CopierID            string              `json:"copier_id" db:"copier_id"`
	MasterTransactionID string              `json:"master_transaction_id" db:"master_transaction_id"`
	ContractID          string              `json:"contract_id,omitempty" db:"contract_id"`
	Symbol              string              `json:"symbol" db:"symbol"`
	ContractType        string              `json:"contract_type" db:"contract_type"`
	Amount              float64             `json:"amount" db:"amount"` // ставка копировщика
	Currency            string              `json:"currency" db:"currency"`
	Status              string              `json:"status" db:"status"` // SUCCESS, FAILED
	ErrorMessage        string              `json:"error_message,omitempty" db:"error_message"`
	Processed           bool                `json:"processed" db:"processed"`
	FollowerProfit      decimal.NullDecimal `json:"follower_profit" db:"follower_profit"` // NULL до расчёта
	MasterFee           decimal.NullDecimal `json:"master_fee" db:"master_fee"`           // NULL до расчёта
	CreatedAt           time.Time           `json:"created_at" db:"created_at"`
	SettledAt           *time.Time          `json:"settled_at,omitempty" db:"settled_at"`
}

// CopiedTradeFilter - фильтр выборки записей репликации
type CopiedTradeFilter struct {
	// Только записи, где пользователь владеет мастером или копировщиком
	UserID    string
	MasterID  string
	CopierID  string
	Status    string
	Processed *bool
	Limit     int
	Offset    int
}

// MasterEarning - запись журнала начисленных комиссий (только добавление)
type MasterEarning struct {
	ID             string          `json:"id" db:"id"`
	MasterID       string          `json:"master_id" db:"master_id"`
	CopierID       string          `json:"copier_id" db:"copier_id"`
	CopiedTradeID  string          `json:"copied_trade_id" db:"copied_trade_id"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	FollowerProfit decimal.Decimal `json:"follower_profit" db:"follower_profit"`
	FeePercentage  decimal.Decimal `json:"fee_percentage" db:"fee_percentage"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// SettlementResult - итог расчёта комиссии по записи репликации
type SettlementResult struct {
	CopiedTradeID    string          `json:"copied_trade_id"`
	MasterID         string          `json:"master_id"`
	CopierID         string          `json:"copier_id"`
	AlreadyProcessed bool            `json:"already_processed"`
	FollowerProfit   decimal.Decimal `json:"follower_profit"`
	FeePercentage    decimal.Decimal `json:"fee_percentage"`
	Fee              decimal.Decimal `json:"fee"`
	EarningID        string          `json:"earning_id,omitempty"`
}

var hundred = decimal.NewFromInt(100)

// PerformanceFee считает комиссию мастера: profit * pct / 100 при положительной прибыли, иначе 0
func PerformanceFee(followerProfit, percentage decimal.Decimal) decimal.Decimal {
	if !followerProfit.IsPositive() || !percentage.IsPositive() {
		return decimal.Zero
	}
	return followerProfit.Mul(percentage).Div(hundred)
}
