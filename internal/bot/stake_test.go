package bot

import (
	"math"
	"testing"

	"copytrader/internal/models"
)

func ptr(v float64) *float64 { return &v }

func TestCalculateStake(t *testing.T) {
	tests := []struct {
		name   string
		master float64
		policy models.StakePolicy
		risk   float64
		want   float64
	}{
		{"percentage 10%", 100, models.StakePolicy{Kind: models.StakeTypePercentage, Amount: ptr(10)}, 1, 10},
		{"percentage 10% x2", 100, models.StakePolicy{Kind: models.StakeTypePercentage, Amount: ptr(10)}, 2, 20},
		{"percentage 100% default", 7.5, models.StakePolicy{Kind: models.StakeTypePercentage, Amount: ptr(100)}, 1, 7.5},
		{"fixed ignores master amount", 0, models.StakePolicy{Kind: models.StakeTypeFixed, Amount: ptr(50)}, 1, 50},
		{"fixed with multiplier", 1000, models.StakePolicy{Kind: models.StakeTypeFixed, Amount: ptr(5)}, 3, 15},
		{"fixed zero amount", 100, models.StakePolicy{Kind: models.StakeTypeFixed, Amount: ptr(0)}, 7, 0},
		{"fixed missing amount", 100, models.StakePolicy{Kind: models.StakeTypeFixed}, 2, 0},
		{"zero multiplier defaults to 1", 100, models.StakePolicy{Kind: models.StakeTypeFixed, Amount: ptr(5)}, 0, 5},
		{"negative multiplier defaults to 1", 100, models.StakePolicy{Kind: models.StakeTypePercentage, Amount: ptr(10)}, -2, 10},
		{"negative master amount", -100, models.StakePolicy{Kind: models.StakeTypePercentage, Amount: ptr(10)}, 1, 0},
		{"negative policy amount", 100, models.StakePolicy{Kind: models.StakeTypeFixed, Amount: ptr(-5)}, 1, 0},
		{"NaN master amount", math.NaN(), models.StakePolicy{Kind: models.StakeTypePercentage, Amount: ptr(10)}, 1, 0},
		{"unknown kind as percentage", 200, models.StakePolicy{Kind: "FOLLOW", Amount: ptr(50)}, 1, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateStake(tt.master, tt.policy, tt.risk)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CalculateStake(%v, %+v, %v) = %v, want %v", tt.master, tt.policy, tt.risk, got, tt.want)
			}
		})
	}
}

func TestCalculateStake_FixedZeroForAnyMultiplier(t *testing.T) {
	policy := models.StakePolicy{Kind: models.StakeTypeFixed, Amount: ptr(0)}
	for _, r := range []float64{0, 0.5, 1, 2, 100, -1, math.Inf(1)} {
		if got := CalculateStake(123, policy, r); got != 0 {
			t.Errorf("multiplier %v: got %v, want 0", r, got)
		}
	}
}

func TestCalculateStake_Deterministic(t *testing.T) {
	policy := models.StakePolicy{Kind: models.StakeTypePercentage, Amount: ptr(33.3)}
	first := CalculateStake(17.25, policy, 1.7)
	for i := 0; i < 100; i++ {
		if got := CalculateStake(17.25, policy, 1.7); got != first {
			t.Fatalf("non-deterministic result: %v vs %v", got, first)
		}
	}
}

func TestRoundStake(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{10, 10},
		{3.14159, 3.14},
		{2.675, 2.68},
		{0.004, 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
	}

	for _, tt := range tests {
		if got := RoundStake(tt.in); got != tt.want {
			t.Errorf("RoundStake(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
