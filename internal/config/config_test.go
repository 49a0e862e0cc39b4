package config

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"amm-experiment-lab/internal/domain"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero starting balance", func(c *Config) { c.StartingBalanceX = decimal.Zero }},
		{"negative fee", func(c *Config) { c.DefaultFeePercent = decimal.NewFromInt(-1) }},
		{"fee at 100", func(c *Config) { c.DefaultFeePercent = decimal.NewFromInt(100) }},
		{"zero lock wait", func(c *Config) { c.LockWait = 0 }},
		{"zero sweep interval", func(c *Config) { c.SweepInterval = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			if err := c.Validate(); !errors.Is(err, ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestValidateExperiment(t *testing.T) {
	valid := &domain.Experiment{
		NumRounds:           10,
		NumTrainingRounds:   2,
		NumRoundsForPayment: 5,
		NumPlayers:          12,
		NumGroups:           3,
	}
	if err := ValidateExperiment(valid); err != nil {
		t.Fatalf("valid experiment rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*domain.Experiment)
	}{
		{"training rounds equal total", func(e *domain.Experiment) { e.NumTrainingRounds = e.NumRounds }},
		{"payment rounds exceed real rounds", func(e *domain.Experiment) { e.NumRoundsForPayment = 9 }},
		{"no groups", func(e *domain.Experiment) { e.NumGroups = 0 }},
		{"no rounds", func(e *domain.Experiment) { e.NumRounds = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := *valid
			tt.mutate(&e)
			if err := ValidateExperiment(&e); !errors.Is(err, ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}
