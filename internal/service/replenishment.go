package service

import (
	"context"
	"log"

	"livrocaixa/backend/internal/domain"
)

// ReplenishmentSuggestions lists what to buy next, most urgent first.
// With onlyBelowThreshold set, only ingredients already flagged low or
// out of stock are considered. Responses are cached briefly; purchase
// mutations invalidate them along with the rest of the ledger caches.
func (s *Service) ReplenishmentSuggestions(ctx context.Context, onlyBelowThreshold bool) (*domain.ReplenishmentResponse, error) {
	key := replenishmentCachePrefix + "all"
	if onlyBelowThreshold {
		key = replenishmentCachePrefix + "below"
	}
	if cached, ok, err := s.cache.GetReplenishment(ctx, key); err != nil {
		log.Printf("[cache] WARN: replenishment read failed key=%s: %v", key, err)
	} else if ok {
		return cached, nil
	}

	ingredients, err := s.repo.ListIngredients(ctx, onlyBelowThreshold)
	if err != nil {
		return nil, wrapStoreError(err)
	}

	resp := s.replenisher.BuildResponse(ingredients)
	if err := s.cache.SetReplenishment(ctx, key, &resp, s.cacheTTL); err != nil {
		log.Printf("[cache] WARN: replenishment write failed key=%s: %v", key, err)
	}
	return &resp, nil
}

func (s *Service) ListIngredients(ctx context.Context, onlyBelowThreshold bool) ([]domain.Ingredient, error) {
	ingredients, err := s.repo.ListIngredients(ctx, onlyBelowThreshold)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return ingredients, nil
}
