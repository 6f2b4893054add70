package cache

import (
	"context"
	"time"

	"livrocaixa/backend/internal/domain"
)

// LedgerCache is the read-through cache in front of movement listings
// and cash-flow summaries. Implementations must treat a miss and an
// error as distinct outcomes.
type LedgerCache interface {
	GetMovementPage(ctx context.Context, key string) (*domain.MovementPage, bool, error)
	SetMovementPage(ctx context.Context, key string, value *domain.MovementPage, ttl time.Duration) error
	GetCashFlowSummary(ctx context.Context, key string) (*domain.CashFlowSummary, bool, error)
	SetCashFlowSummary(ctx context.Context, key string, value *domain.CashFlowSummary, ttl time.Duration) error
	GetReplenishment(ctx context.Context, key string) (*domain.ReplenishmentResponse, bool, error)
	SetReplenishment(ctx context.Context, key string, value *domain.ReplenishmentResponse, ttl time.Duration) error
	ClearPattern(ctx context.Context, pattern string) error
}

type NoopLedgerCache struct{}

func (NoopLedgerCache) GetMovementPage(_ context.Context, _ string) (*domain.MovementPage, bool, error) {
	return nil, false, nil
}

func (NoopLedgerCache) SetMovementPage(_ context.Context, _ string, _ *domain.MovementPage, _ time.Duration) error {
	return nil
}

func (NoopLedgerCache) GetCashFlowSummary(_ context.Context, _ string) (*domain.CashFlowSummary, bool, error) {
	return nil, false, nil
}

func (NoopLedgerCache) SetCashFlowSummary(_ context.Context, _ string, _ *domain.CashFlowSummary, _ time.Duration) error {
	return nil
}

func (NoopLedgerCache) GetReplenishment(_ context.Context, _ string) (*domain.ReplenishmentResponse, bool, error) {
	return nil, false, nil
}

func (NoopLedgerCache) SetReplenishment(_ context.Context, _ string, _ *domain.ReplenishmentResponse, _ time.Duration) error {
	return nil
}

func (NoopLedgerCache) ClearPattern(_ context.Context, _ string) error {
	return nil
}
