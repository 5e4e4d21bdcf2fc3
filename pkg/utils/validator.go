package utils

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Ограничения входных данных
const (
	MinTokenLength      = 8
	MaxTokenLength      = 128
	MaxPerformanceFee   = 100.0
	MaxRiskMultiplier   = 100.0
	MaxStakePercentage  = 1000.0
	MaxLabelLength      = 100
	MaxFixedStakeAmount = 1_000_000.0
)

var (
	tokenRegex  = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)
	symbolRegex = regexp.MustCompile(`^[A-Za-z0-9_]{2,30}$`)
)

// ValidateToken - базовая проверка формата токена площадки
func ValidateToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is required")
	}
	if len(token) < MinTokenLength || len(token) > MaxTokenLength {
		return fmt.Errorf("token length must be between %d and %d", MinTokenLength, MaxTokenLength)
	}
	if !tokenRegex.MatchString(token) {
		return errors.New("token contains invalid characters")
	}
	return nil
}

// ValidatePerformanceFee - процент комиссии мастера в диапазоне [0, 100]
func ValidatePerformanceFee(pct float64) error {
	if !IsFinite(pct) || pct < 0 || pct > MaxPerformanceFee {
		return fmt.Errorf("performance fee must be between 0 and %.0f", MaxPerformanceFee)
	}
	return nil
}

// ValidateRiskMultiplier - множитель риска в диапазоне [0, 100]
func ValidateRiskMultiplier(r float64) error {
	if !IsFinite(r) || r < 0 || r > MaxRiskMultiplier {
		return fmt.Errorf("risk multiplier must be between 0 and %.0f", MaxRiskMultiplier)
	}
	return nil
}

// ValidateStakeAmount проверяет величину ставки в зависимости от типа политики
func ValidateStakeAmount(kind string, amount float64) error {
	if !IsFinite(amount) || amount < 0 {
		return errors.New("stake amount must be a non-negative number")
	}
	switch kind {
	case "PERCENTAGE":
		if amount > MaxStakePercentage {
			return fmt.Errorf("stake percentage must not exceed %.0f", MaxStakePercentage)
		}
	case "FIXED":
		if amount > MaxFixedStakeAmount {
			return fmt.Errorf("fixed stake must not exceed %.0f", MaxFixedStakeAmount)
		}
	default:
		return fmt.Errorf("unknown stake type %q", kind)
	}
	return nil
}

// ValidateLabel - необязательная подпись аккаунта
func ValidateLabel(label string) error {
	if len(label) > MaxLabelLength {
		return fmt.Errorf("label must not exceed %d characters", MaxLabelLength)
	}
	return nil
}

// ValidateSymbol - формат символа площадки (R_100, frxEURUSD)
func ValidateSymbol(symbol string) error {
	if !symbolRegex.MatchString(symbol) {
		return fmt.Errorf("invalid symbol %q", symbol)
	}
	return nil
}

// IsFinite - число не NaN и не бесконечность
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ============ ValidationErrors ============

// ValidationError - ошибка валидации конкретного поля
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors - накопитель ошибок валидации
type ValidationErrors []ValidationError

// Add добавляет ошибку поля, nil игнорируется
func (v *ValidationErrors) Add(field string, err error) {
	if err == nil {
		return
	}
	*v = append(*v, ValidationError{Field: field, Message: err.Error()})
}

// HasErrors - есть ли накопленные ошибки
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}
