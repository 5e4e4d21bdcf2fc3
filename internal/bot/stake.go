package bot

import (
	"math"

	"github.com/shopspring/decimal"

	"copytrader/internal/models"
)

// CalculateStake вычисляет ставку копировщика по сделке мастера
//
//	FIXED:      amount * r
//	PERCENTAGE: masterAmount * amount / 100 * r
//
// Отрицательные, нечисловые и отсутствующие значения считаются нулём,
// нулевой множитель риска заменяется на 1. Любой тип, кроме FIXED, трактуется как процент.
func CalculateStake(masterAmount float64, policy models.StakePolicy, riskMultiplier float64) float64 {
	amount := 0.0
	if policy.Amount != nil {
		amount = nonNegative(*policy.Amount)
	}

	multiplier := nonNegative(riskMultiplier)
	if multiplier == 0 {
		multiplier = 1
	}

	if policy.Kind == models.StakeTypeFixed {
		return amount * multiplier
	}

	return nonNegative(masterAmount) * (amount / 100) * multiplier
}

// RoundStake округляет ставку до центов, как принимает площадка
func RoundStake(stake float64) float64 {
	if !isFinite(stake) {
		return 0
	}
	return decimal.NewFromFloat(stake).Round(2).InexactFloat64()
}

func nonNegative(v float64) float64 {
	if !isFinite(v) || v < 0 {
		return 0
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
