// Package service is the external surface of the lab: a thin facade
// over the lifecycle controller, the swap engine, and the read stores.
// All errors bubble up as the typed sentinels of the packages below.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/exchange"
	"amm-experiment-lab/internal/lifecycle"
	"amm-experiment-lab/internal/storage"
)

// Service exposes the operations callers outside the lab use.
type Service struct {
	controller *lifecycle.Controller
	engine     *exchange.Engine
	feedback   storage.FeedbackStore
	payments   storage.PaymentStore
	log        zerolog.Logger
}

// Options wires a Service.
type Options struct {
	Controller *lifecycle.Controller
	Engine     *exchange.Engine
	Feedback   storage.FeedbackStore
	Payments   storage.PaymentStore
	Logger     zerolog.Logger
}

func New(opts Options) *Service {
	return &Service{
		controller: opts.Controller,
		engine:     opts.Engine,
		feedback:   opts.Feedback,
		payments:   opts.Payments,
		log:        opts.Logger.With().Str("component", "service").Logger(),
	}
}

// CreatePoolsForRound seeds one pool per group for the round.
func (s *Service) CreatePoolsForRound(ctx context.Context, roundID uuid.UUID) ([]*domain.Pool, error) {
	return s.controller.CreatePoolsForRound(ctx, roundID)
}

// ActivatePool opens a pool for trading.
func (s *Service) ActivatePool(ctx context.Context, poolID uuid.UUID) error {
	return s.controller.ActivatePool(ctx, poolID)
}

// ExecuteSwap performs one swap for a player.
func (s *Service) ExecuteSwap(ctx context.Context, poolID, playerID uuid.UUID, direction domain.SwapDirection, amountIn decimal.Decimal) (*exchange.SwapResult, error) {
	return s.engine.Swap(ctx, poolID, playerID, direction, amountIn)
}

// DeactivatePool closes a pool, freezing its reserves.
func (s *Service) DeactivatePool(ctx context.Context, poolID uuid.UUID) error {
	return s.controller.DeactivatePool(ctx, poolID)
}

// GetFeedback returns a player's feedback for a scored pool.
func (s *Service) GetFeedback(ctx context.Context, playerID, poolID uuid.UUID) (*domain.UserFeedback, error) {
	fb, err := s.feedback.GetByPlayerAndPool(ctx, playerID, poolID)
	if err != nil {
		return nil, fmt.Errorf("feedback for player %s pool %s: %w", playerID, poolID, err)
	}
	return fb, nil
}

// GetPayment returns a player's final payment for an experiment.
func (s *Service) GetPayment(ctx context.Context, playerID, experimentID uuid.UUID) (*domain.Payment, error) {
	p, err := s.payments.GetByPlayerAndExperiment(ctx, playerID, experimentID)
	if err != nil {
		return nil, fmt.Errorf("payment for player %s experiment %s: %w", playerID, experimentID, err)
	}
	return p, nil
}
