package replenishment

import (
	"testing"

	"github.com/shopspring/decimal"

	"livrocaixa/backend/internal/domain"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func testIngredient(id, name string, stock, threshold string) domain.Ingredient {
	ing := domain.Ingredient{
		ID:                  id,
		Name:                name,
		Unit:                "ml",
		CurrentStock:        dec(stock),
		MinStockThreshold:   dec(threshold),
		Price:               dec("9.80"),
		PurchaseUnit:        "l",
		BasePortionQuantity: dec("30"),
		BasePortionUnit:     "ml",
		Active:              true,
	}
	ing.StockStatus = domain.StockStatusFor(ing.CurrentStock, ing.MinStockThreshold)
	return ing
}

func TestSuggestOrdersByUrgency(t *testing.T) {
	engine := NewEngine()

	ingredients := []domain.Ingredient{
		testIngredient("ing-oleo", "Óleo de Soja", "900", "1000"),
		testIngredient("ing-vinagre", "Vinagre", "0", "500"),
		testIngredient("ing-sal", "Sal", "5000", "1000"),
	}

	suggestions := engine.Suggest(ingredients)
	if len(suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(suggestions))
	}

	// Fully depleted stock outranks a merely low one.
	if suggestions[0].IngredientID != "ing-vinagre" {
		t.Fatalf("expected depleted ingredient first, got %s", suggestions[0].IngredientID)
	}
	if suggestions[0].Urgency != "critical" || suggestions[0].ReasonCode != "stock_depleted" {
		t.Fatalf("unexpected urgency/reason: %s/%s", suggestions[0].Urgency, suggestions[0].ReasonCode)
	}

	low := suggestions[1]
	if low.IngredientID != "ing-oleo" || low.Urgency != "high" || low.ReasonCode != "below_threshold" {
		t.Fatalf("unexpected second suggestion: %+v", low)
	}
	// Restock to twice the threshold: 2000 - 900 = 1100 ml.
	if !low.SuggestedQuantity.Equal(dec("1100")) {
		t.Fatalf("expected suggested quantity 1100, got %s", low.SuggestedQuantity)
	}
	// 1100 ml needs two whole litre bottles at 9.80.
	if !low.EstimatedCost.Equal(dec("19.6")) {
		t.Fatalf("expected estimated cost 19.6, got %s", low.EstimatedCost)
	}
}

func TestSuggestSkipsInactiveAndUnthresholded(t *testing.T) {
	engine := NewEngine()

	inactive := testIngredient("ing-a", "A", "0", "100")
	inactive.Active = false
	unthresholded := testIngredient("ing-b", "B", "0", "0")

	suggestions := engine.Suggest([]domain.Ingredient{inactive, unthresholded})
	if len(suggestions) != 0 {
		t.Fatalf("expected no suggestions, got %d", len(suggestions))
	}
}

func TestSuggestIncludesApproachingThreshold(t *testing.T) {
	engine := NewEngine()

	// Above the threshold but under the restock target.
	approaching := testIngredient("ing-c", "C", "1500", "1000")
	suggestions := engine.Suggest([]domain.Ingredient{approaching})
	if len(suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(suggestions))
	}
	if suggestions[0].Urgency != "medium" || suggestions[0].ReasonCode != "approaching_threshold" {
		t.Fatalf("unexpected urgency/reason: %s/%s", suggestions[0].Urgency, suggestions[0].ReasonCode)
	}
	if !suggestions[0].SuggestedQuantity.Equal(dec("500")) {
		t.Fatalf("expected deficit 500, got %s", suggestions[0].SuggestedQuantity)
	}
}

func TestBuildResponseStampsGeneration(t *testing.T) {
	engine := NewEngine()
	resp := engine.BuildResponse(nil)
	if resp.GeneratedAt == "" {
		t.Fatalf("expected generated_at to be set")
	}
	if len(resp.Suggestions) != 0 {
		t.Fatalf("expected empty suggestions, got %d", len(resp.Suggestions))
	}
}
