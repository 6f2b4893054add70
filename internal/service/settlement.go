package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"livrocaixa/backend/internal/domain"
	"livrocaixa/backend/internal/events"
	"livrocaixa/backend/internal/units"
)

// paymentSubcategory labels revenue by channel the way the books are
// kept in Portuguese.
func paymentSubcategory(method string) string {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "credit":
		return "Cartão de Crédito"
	case "debit":
		return "Cartão de Débito"
	case "pix":
		return "PIX"
	case "cash":
		return "Dinheiro"
	case "":
		return "Outros"
	default:
		return method
	}
}

func feePercentFor(settings domain.PaymentFeeSettings, method string) decimal.Decimal {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "credit":
		return settings.CreditFeePercent
	case "debit":
		return settings.DebitFeePercent
	case "pix":
		return settings.PixFeePercent
	case "ifood":
		return settings.IfoodFeePercent
	case "uber_eats":
		return settings.UberEatsFeePercent
	default:
		return decimal.Zero
	}
}

// SettleOrder books a closed order into the ledger: a paid revenue
// line, the cost of goods sold derived from recipes, and the payment
// gateway fee when the channel charges one.
func (s *Service) SettleOrder(ctx context.Context, req domain.OrderSettlementRequest) (*domain.OrderSettlementResult, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, newError(CodePermissionDenied, "authentication required")
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" {
		return nil, newError(CodeInvalidValue, "order_id is required")
	}
	if req.Total.LessThanOrEqual(decimal.Zero) {
		return nil, newError(CodeInvalidValue, "order total must be greater than zero")
	}

	now := time.Now().UTC()
	relatedType := domain.RelatedOrder
	revenueCategory := domain.CategorySales
	revenueSubcategory := paymentSubcategory(req.PaymentMethod)

	revenue := domain.FinancialMovement{
		Type:              domain.MovementRevenue,
		Value:             req.Total,
		Category:          &revenueCategory,
		Subcategory:       &revenueSubcategory,
		Description:       "Venda - Pedido #" + req.OrderID,
		MovementDate:      &now,
		PaymentStatus:     domain.StatusPaid,
		PaymentMethod:     optional(req.PaymentMethod),
		RelatedEntityType: &relatedType,
		RelatedEntityID:   &req.OrderID,
		CreatedBy:         actor.Username,
	}

	totalCmv, err := s.orderCost(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	var cmv *domain.FinancialMovement
	if totalCmv.GreaterThan(decimal.Zero) {
		cmvCategory := domain.CategoryVariableCosts
		cmvSubcategory := "CMV"
		cmv = &domain.FinancialMovement{
			Type:              domain.MovementCMV,
			Value:             totalCmv,
			Category:          &cmvCategory,
			Subcategory:       &cmvSubcategory,
			Description:       "CMV - Pedido #" + req.OrderID,
			MovementDate:      &now,
			PaymentStatus:     domain.StatusPaid,
			RelatedEntityType: &relatedType,
			RelatedEntityID:   &req.OrderID,
			CreatedBy:         actor.Username,
		}
	}

	var fee *domain.FinancialMovement
	settings, err := s.repo.GetPaymentFeeSettings(ctx)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	feePercent := feePercentFor(settings, req.PaymentMethod)
	if feePercent.GreaterThan(decimal.Zero) {
		feeAmount := req.Total.Mul(feePercent).Div(decimal.NewFromInt(100)).Round(2)
		if feeAmount.GreaterThan(decimal.Zero) {
			feeCategory := domain.CategoryVariableCosts
			feeSubcategory := "Taxas de Pagamento"
			fee = &domain.FinancialMovement{
				Type:              domain.MovementExpense,
				Value:             feeAmount,
				Category:          &feeCategory,
				Subcategory:       &feeSubcategory,
				Description:       "Taxa " + strings.ToLower(strings.TrimSpace(req.PaymentMethod)) + " - Pedido #" + req.OrderID,
				MovementDate:      &now,
				PaymentStatus:     domain.StatusPaid,
				PaymentMethod:     optional(req.PaymentMethod),
				RelatedEntityType: &relatedType,
				RelatedEntityID:   &req.OrderID,
				CreatedBy:         actor.Username,
			}
		}
	}

	result, err := s.repo.SettleOrder(ctx, revenue, cmv, fee)
	if err != nil {
		return nil, wrapStoreError(err)
	}

	s.invalidateLedgerCache(ctx)
	s.events.Publish(ctx, events.OrderSettled, result)
	return result, nil
}

// orderCost sums the cost of goods across order lines. A product with
// a fixed cost price uses it directly; otherwise the recipe is costed
// portion by portion from ingredient purchase prices.
func (s *Service) orderCost(ctx context.Context, items []domain.OrderSettlementItem) (decimal.Decimal, error) {
	total := decimal.Zero
	if len(items) == 0 {
		return total, nil
	}

	productIDs := make([]string, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.ProductID) == "" || item.Quantity.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, newError(CodeInvalidItem, "each order item needs a product_id and a positive quantity")
		}
		productIDs = append(productIDs, item.ProductID)
	}

	products, err := s.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return decimal.Zero, wrapStoreError(err)
	}

	ingredientIDs := make([]string, 0, 16)
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return decimal.Zero, errorf(CodeInvalidItem, "unknown product: %s", item.ProductID)
		}
		if product.CostPrice == nil {
			for _, portion := range product.Recipe {
				ingredientIDs = append(ingredientIDs, portion.IngredientID)
			}
		}
		for _, extra := range item.Extras {
			ingredientIDs = append(ingredientIDs, extra.IngredientID)
		}
		for _, adj := range item.BaseAdjustments {
			ingredientIDs = append(ingredientIDs, adj.IngredientID)
		}
	}

	ingredients := map[string]domain.Ingredient{}
	if len(ingredientIDs) > 0 {
		ingredients, err = s.repo.GetIngredientsByIDs(ctx, ingredientIDs)
		if err != nil {
			return decimal.Zero, wrapStoreError(err)
		}
	}

	for _, item := range items {
		product := products[item.ProductID]

		var unitCost decimal.Decimal
		if product.CostPrice != nil {
			unitCost = *product.CostPrice
		} else {
			for _, portion := range product.Recipe {
				portionCost, ok := s.portionCost(ingredients, portion.IngredientID)
				if !ok {
					continue
				}
				unitCost = unitCost.Add(portionCost.Mul(portion.Portions))
			}
		}
		lineCost := unitCost.Mul(item.Quantity)

		for _, extra := range item.Extras {
			if extra.Quantity.LessThanOrEqual(decimal.Zero) {
				continue
			}
			portionCost, ok := s.portionCost(ingredients, extra.IngredientID)
			if !ok {
				continue
			}
			lineCost = lineCost.Add(portionCost.Mul(extra.Quantity).Mul(item.Quantity))
		}
		// Base adjustments only ever add cost; removals keep the
		// original recipe cost.
		for _, adj := range item.BaseAdjustments {
			if adj.Quantity.LessThanOrEqual(decimal.Zero) {
				continue
			}
			portionCost, ok := s.portionCost(ingredients, adj.IngredientID)
			if !ok {
				continue
			}
			lineCost = lineCost.Add(portionCost.Mul(adj.Quantity).Mul(item.Quantity))
		}

		total = total.Add(lineCost)
	}

	return total.Round(2), nil
}

// portionCost prices one base portion of an ingredient. When units are
// incompatible the purchase price itself is used as a rough stand-in
// rather than failing the settlement.
func (s *Service) portionCost(ingredients map[string]domain.Ingredient, ingredientID string) (decimal.Decimal, bool) {
	ingredient, ok := ingredients[ingredientID]
	if !ok {
		log.Printf("[settlement] WARN: ingredient %s not found while costing order", ingredientID)
		return decimal.Zero, false
	}

	cost, err := units.CostPerBasePortion(ingredient.Price, ingredient.PurchaseUnit, ingredient.BasePortionQuantity, ingredient.BasePortionUnit)
	if err != nil {
		log.Printf("[settlement] WARN: falling back to purchase price for %s: %v", ingredient.Name, err)
		return ingredient.Price, true
	}
	return cost, true
}
