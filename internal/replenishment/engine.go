package replenishment

import (
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"livrocaixa/backend/internal/domain"
	"livrocaixa/backend/internal/units"
)

// Engine scores low ingredients and suggests how much of each to buy.
// A suggestion restocks to restockFactor times the minimum threshold.
type Engine struct {
	restockFactor decimal.Decimal
	minScore      float64
}

func NewEngine() *Engine {
	return &Engine{
		restockFactor: decimal.NewFromInt(2),
		minScore:      0.20,
	}
}

func (e *Engine) Suggest(ingredients []domain.Ingredient) []domain.ReplenishmentSuggestion {
	type scored struct {
		suggestion domain.ReplenishmentSuggestion
		score      float64
	}

	candidates := make([]scored, 0, len(ingredients))
	for _, ingredient := range ingredients {
		if !ingredient.Active || ingredient.MinStockThreshold.LessThanOrEqual(decimal.Zero) {
			continue
		}

		target := ingredient.MinStockThreshold.Mul(e.restockFactor)
		deficit := target.Sub(ingredient.CurrentStock)
		if deficit.LessThanOrEqual(decimal.Zero) {
			continue
		}

		deficitRatio, _ := deficit.Div(target).Float64()
		urgencyScore := urgencyWeight(ingredient.StockStatus)
		score := 0.65*clamp(deficitRatio, 0, 1) + 0.35*urgencyScore
		if score < e.minScore {
			continue
		}

		candidates = append(candidates, scored{
			suggestion: domain.ReplenishmentSuggestion{
				IngredientID:      ingredient.ID,
				Name:              ingredient.Name,
				Unit:              ingredient.Unit,
				CurrentStock:      ingredient.CurrentStock,
				MinStockThreshold: ingredient.MinStockThreshold,
				SuggestedQuantity: deficit,
				EstimatedCost:     estimateCost(ingredient, deficit),
				Urgency:           urgencyLabel(ingredient.StockStatus),
				ReasonCode:        deriveReason(ingredient),
			},
			score: score,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score == candidates[j].score {
			return candidates[i].suggestion.Name < candidates[j].suggestion.Name
		}
		return candidates[i].score > candidates[j].score
	})

	suggestions := make([]domain.ReplenishmentSuggestion, 0, len(candidates))
	for _, c := range candidates {
		suggestions = append(suggestions, c.suggestion)
	}
	return suggestions
}

func (e *Engine) BuildResponse(ingredients []domain.Ingredient) domain.ReplenishmentResponse {
	return domain.ReplenishmentResponse{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Suggestions: e.Suggest(ingredients),
	}
}

// estimateCost prices the deficit in whole purchase units, rounding
// up: suppliers sell a full kg even when 300g is missing.
func estimateCost(ingredient domain.Ingredient, deficit decimal.Decimal) decimal.Decimal {
	perPurchase, err := units.UnitsPerPurchase(ingredient.PurchaseUnit, ingredient.Unit)
	if err != nil || perPurchase.LessThanOrEqual(decimal.Zero) {
		if err != nil {
			log.Printf("[replenishment] WARN: cannot convert %s to %s for %s: %v", ingredient.PurchaseUnit, ingredient.Unit, ingredient.Name, err)
		}
		return ingredient.Price
	}

	purchaseQty := deficit.Div(perPurchase).Ceil()
	if purchaseQty.LessThan(decimal.NewFromInt(1)) {
		purchaseQty = decimal.NewFromInt(1)
	}
	return ingredient.Price.Mul(purchaseQty).Round(2)
}

func urgencyLabel(status string) string {
	switch status {
	case domain.StockStatusOutOfStock:
		return "critical"
	case domain.StockStatusLow:
		return "high"
	default:
		return "medium"
	}
}

func urgencyWeight(status string) float64 {
	switch status {
	case domain.StockStatusOutOfStock:
		return 1.0
	case domain.StockStatusLow:
		return 0.70
	default:
		return 0.35
	}
}

func deriveReason(ingredient domain.Ingredient) string {
	switch {
	case ingredient.CurrentStock.LessThanOrEqual(decimal.Zero):
		return "stock_depleted"
	case ingredient.CurrentStock.LessThanOrEqual(ingredient.MinStockThreshold):
		return "below_threshold"
	default:
		return "approaching_threshold"
	}
}

func clamp(val float64, minVal float64, maxVal float64) float64 {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}
