package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Типы аккаунтов на стороне площадки
const (
	AccountKindReal = "real"
	AccountKindDemo = "demo"
)

// MasterAccount - аккаунт, сделки которого копируются
type MasterAccount struct {
	ID             string          `json:"id" db:"id"`
	UserID         string          `json:"user_id" db:"user_id"`
	Label          string          `json:"label" db:"label"`
	Token          string          `json:"-" db:"token"`                     // зашифрован, не возвращается в JSON
	LoginID        string          `json:"login_id" db:"login_id"`           // id аккаунта на площадке (CR.../VRTC...)
	AccountKind    string          `json:"account_kind" db:"account_kind"`   // real, demo
	Currency       string          `json:"currency" db:"currency"`
	Email          string          `json:"email,omitempty" db:"email"`
	Active         bool            `json:"active" db:"active"`
	PerformanceFee decimal.Decimal `json:"performance_fee" db:"performance_fee"` // процент от прибыли копировщика
	Earnings       decimal.Decimal `json:"earnings" db:"earnings"`               // накопленные комиссии
	Balance        decimal.Decimal `json:"balance" db:"balance"`
	Equity         decimal.Decimal `json:"equity" db:"equity"`
	Profit         decimal.Decimal `json:"profit" db:"profit"`
	Loss           decimal.Decimal `json:"loss" db:"loss"`
	ValidatedAt    time.Time       `json:"validated_at" db:"validated_at"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// ApplyAttributes переносит снимок аккаунта, полученный при валидации
func (m *MasterAccount) ApplyAttributes(attrs *AccountAttributes) {
	m.LoginID = attrs.LoginID
	m.Currency = attrs.Currency
	m.Email = attrs.Email
	m.AccountKind = attrs.Kind()
	m.Balance = decimal.NewFromFloat(attrs.Balance)
	m.Equity = decimal.NewFromFloat(attrs.Equity)
	m.Profit = decimal.NewFromFloat(attrs.Profit)
	m.Loss = decimal.NewFromFloat(attrs.Loss)
	m.ValidatedAt = attrs.ValidatedAt
}

// CopierAccount - аккаунт, получающий зеркальные ордера одного мастера
type CopierAccount struct {
	ID             string    `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	MasterID       string    `json:"master_id" db:"master_id"`
	Token          string    `json:"-" db:"token"` // зашифрован
	LoginID        string    `json:"login_id" db:"login_id"`
	AccountKind    string    `json:"account_kind" db:"account_kind"` // наследуется от мастера
	Email          string    `json:"email,omitempty" db:"email"`
	Active         bool      `json:"active" db:"active"`
	StakeType      string    `json:"stake_type" db:"stake_type"`           // PERCENTAGE, FIXED
	StakeAmount    *float64  `json:"stake_amount" db:"stake_amount"`       // процент или фиксированная сумма
	RiskMultiplier float64   `json:"risk_multiplier" db:"risk_multiplier"` // >= 0
	ValidatedAt    time.Time `json:"validated_at" db:"validated_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Policy возвращает политику расчёта ставки копировщика
func (c *CopierAccount) Policy() StakePolicy {
	return StakePolicy{Kind: c.StakeType, Amount: c.StakeAmount}
}

// Значения по умолчанию для нового копировщика
const (
	DefaultStakeType      = StakeTypePercentage
	DefaultStakeAmount    = 100.0
	DefaultRiskMultiplier = 1.0
)

// Типы политики размера ставки
const (
	StakeTypePercentage = "PERCENTAGE"
	StakeTypeFixed      = "FIXED"
)

// StakePolicy - правило расчёта ставки копировщика
type StakePolicy struct {
	Kind   string   `json:"kind"`
	Amount *float64 `json:"amount,omitempty"` // nil трактуется как 0
}

// IsValidStakeType проверяет тип политики
func IsValidStakeType(kind string) bool {
	return kind == StakeTypePercentage || kind == StakeTypeFixed
}

// AccountAttributes - нормализованные атрибуты аккаунта после авторизации
type AccountAttributes struct {
	LoginID     string    `json:"login_id"`
	Currency    string    `json:"currency"`
	Email       string    `json:"email"`
	Balance     float64   `json:"balance"`
	Equity      float64   `json:"equity"`
	Profit      float64   `json:"profit"`
	Loss        float64   `json:"loss"` // max(0, -profit)
	IsVirtual   bool      `json:"is_virtual"`
	ValidatedAt time.Time `json:"validated_at"`
}

// Kind возвращает тип аккаунта по признаку виртуальности
func (a *AccountAttributes) Kind() string {
	if a.IsVirtual {
		return AccountKindDemo
	}
	return AccountKindReal
}
