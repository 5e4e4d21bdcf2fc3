package utils

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid alnum", "a1B2c3D4e5F6g7H", false},
		{"valid with dash", "abc-def_12345", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"too short", "abc", true},
		{"too long", strings.Repeat("a", MaxTokenLength+1), true},
		{"special chars", "abc$%^&*12345", true},
		{"spaces inside", "abc def 12345", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateToken(tt.token)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateToken(%q) error = %v, wantErr %v", tt.token, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePerformanceFee(t *testing.T) {
	tests := []struct {
		pct     float64
		wantErr bool
	}{
		{0, false},
		{10, false},
		{100, false},
		{-1, true},
		{100.01, true},
		{math.NaN(), true},
		{math.Inf(1), true},
	}

	for _, tt := range tests {
		err := ValidatePerformanceFee(tt.pct)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePerformanceFee(%v) error = %v, wantErr %v", tt.pct, err, tt.wantErr)
		}
	}
}

func TestValidateRiskMultiplier(t *testing.T) {
	tests := []struct {
		r       float64
		wantErr bool
	}{
		{0, false},
		{1, false},
		{2.5, false},
		{-0.5, true},
		{101, true},
		{math.NaN(), true},
	}

	for _, tt := range tests {
		err := ValidateRiskMultiplier(tt.r)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateRiskMultiplier(%v) error = %v, wantErr %v", tt.r, err, tt.wantErr)
		}
	}
}

func TestValidateStakeAmount(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		amount  float64
		wantErr bool
	}{
		{"percentage 100", "PERCENTAGE", 100, false},
		{"percentage zero", "PERCENTAGE", 0, false},
		{"percentage too big", "PERCENTAGE", 5000, true},
		{"fixed 50", "FIXED", 50, false},
		{"fixed too big", "FIXED", 2_000_000, true},
		{"negative", "FIXED", -1, true},
		{"nan", "PERCENTAGE", math.NaN(), true},
		{"unknown kind", "MARTINGALE", 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStakeAmount(tt.kind, tt.amount)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateStakeAmount(%s, %v) error = %v, wantErr %v", tt.kind, tt.amount, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSymbolAndLabel(t *testing.T) {
	if err := ValidateSymbol("R_100"); err != nil {
		t.Errorf("R_100 should be valid: %v", err)
	}
	if err := ValidateSymbol("frxEURUSD"); err != nil {
		t.Errorf("frxEURUSD should be valid: %v", err)
	}
	if err := ValidateSymbol("R 100"); err == nil {
		t.Error("symbol with space should be invalid")
	}
	if err := ValidateLabel(strings.Repeat("x", MaxLabelLength+1)); err == nil {
		t.Error("long label should be invalid")
	}
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	if errs.HasErrors() {
		t.Fatal("empty ValidationErrors should not have errors")
	}

	errs.Add("token", nil)
	errs.Add("token", errors.New("token is required"))
	errs.Add("risk_multiplier", errors.New("must be positive"))

	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(errs))
	}
	want := "token: token is required; risk_multiplier: must be positive"
	if errs.Error() != want {
		t.Errorf("Error() = %q, want %q", errs.Error(), want)
	}
}
