package service

import (
	"context"
	"testing"

	"livrocaixa/backend/internal/domain"
)

func TestSettleOrderWithFixedCostAndFee(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	result, err := svc.SettleOrder(ctx, domain.OrderSettlementRequest{
		OrderID:       "ped-101",
		Total:         dec("100"),
		PaymentMethod: "credit",
		Items: []domain.OrderSettlementItem{
			{ProductID: "prod-lasanha", Quantity: dec("2")},
		},
	})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	// Two units at the fixed cost price of 18.50.
	if !result.TotalCmv.Equal(dec("37")) {
		t.Fatalf("expected CMV 37, got %s", result.TotalCmv)
	}
	// Credit cards charge 3.5% of the order total.
	if !result.FeeAmount.Equal(dec("3.5")) {
		t.Fatalf("expected fee 3.5, got %s", result.FeeAmount)
	}
	if result.CmvMovementID == nil || result.FeeMovementID == nil {
		t.Fatalf("expected CMV and fee movements to be booked")
	}

	revenue, err := svc.GetMovement(ctx, result.RevenueMovementID)
	if err != nil {
		t.Fatalf("get revenue movement failed: %v", err)
	}
	if revenue.Type != domain.MovementRevenue || revenue.PaymentStatus != domain.StatusPaid {
		t.Fatalf("expected paid revenue movement, got %s/%s", revenue.Type, revenue.PaymentStatus)
	}
	if revenue.Subcategory == nil || *revenue.Subcategory != "Cartão de Crédito" {
		t.Fatalf("expected subcategory Cartão de Crédito, got %v", revenue.Subcategory)
	}
	if revenue.Description != "Venda - Pedido #ped-101" {
		t.Fatalf("unexpected revenue description: %s", revenue.Description)
	}

	fee, err := svc.GetMovement(ctx, *result.FeeMovementID)
	if err != nil {
		t.Fatalf("get fee movement failed: %v", err)
	}
	if fee.Description != "Taxa credit - Pedido #ped-101" {
		t.Fatalf("unexpected fee description: %s", fee.Description)
	}
}

func TestSettleOrderDerivesCostFromRecipe(t *testing.T) {
	svc, _ := newTestService()

	result, err := svc.SettleOrder(adminCtx(), domain.OrderSettlementRequest{
		OrderID:       "ped-202",
		Total:         dec("55"),
		PaymentMethod: "cash",
		Items: []domain.OrderSettlementItem{
			{ProductID: "prod-pizza", Quantity: dec("1")},
		},
	})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	// flour 2 x (6.50/kg -> 0.975 per 150g) + cheese (42/kg -> 5.04 per 120g)
	// + sauce (12/l -> 1.08 per 90ml) = 8.07
	if !result.TotalCmv.Equal(dec("8.07")) {
		t.Fatalf("expected recipe CMV 8.07, got %s", result.TotalCmv)
	}
	// Cash has no gateway fee.
	if result.FeeMovementID != nil {
		t.Fatalf("expected no fee movement for cash, got %v", *result.FeeMovementID)
	}
}

func TestSettleOrderCostsExtrasAndAdjustments(t *testing.T) {
	svc, _ := newTestService()

	plain, err := svc.SettleOrder(adminCtx(), domain.OrderSettlementRequest{
		OrderID:       "ped-303",
		Total:         dec("40"),
		PaymentMethod: "cash",
		Items: []domain.OrderSettlementItem{
			{ProductID: "prod-omelete", Quantity: dec("1")},
		},
	})
	if err != nil {
		t.Fatalf("settle plain failed: %v", err)
	}

	loaded, err := svc.SettleOrder(adminCtx(), domain.OrderSettlementRequest{
		OrderID:       "ped-304",
		Total:         dec("48"),
		PaymentMethod: "cash",
		Items: []domain.OrderSettlementItem{
			{
				ProductID: "prod-omelete",
				Quantity:  dec("1"),
				Extras:    []domain.OrderExtra{{IngredientID: "ing-queijo", Quantity: dec("1")}},
				// Removals never discount the base recipe.
				BaseAdjustments: []domain.OrderExtra{{IngredientID: "ing-ovo", Quantity: dec("-1")}},
			},
		},
	})
	if err != nil {
		t.Fatalf("settle loaded failed: %v", err)
	}

	diff := loaded.TotalCmv.Sub(plain.TotalCmv)
	// One extra cheese portion: 42/kg over a 120g portion = 5.04.
	if !diff.Equal(dec("5.04")) {
		t.Fatalf("expected extras to add 5.04, got %s", diff)
	}
}

func TestSettleOrderValidation(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.SettleOrder(context.Background(), domain.OrderSettlementRequest{
		OrderID: "ped-401", Total: dec("10"), PaymentMethod: "cash",
	})
	assertCode(t, err, CodePermissionDenied)

	_, err = svc.SettleOrder(adminCtx(), domain.OrderSettlementRequest{
		Total: dec("10"), PaymentMethod: "cash",
	})
	assertCode(t, err, CodeInvalidValue)

	_, err = svc.SettleOrder(adminCtx(), domain.OrderSettlementRequest{
		OrderID: "ped-402", Total: dec("0"), PaymentMethod: "cash",
	})
	assertCode(t, err, CodeInvalidValue)

	_, err = svc.SettleOrder(adminCtx(), domain.OrderSettlementRequest{
		OrderID: "ped-403", Total: dec("10"), PaymentMethod: "cash",
		Items: []domain.OrderSettlementItem{{ProductID: "prod-inexistente", Quantity: dec("1")}},
	})
	assertCode(t, err, CodeInvalidItem)

	_, err = svc.SettleOrder(adminCtx(), domain.OrderSettlementRequest{
		OrderID: "ped-404", Total: dec("10"), PaymentMethod: "cash",
		Items: []domain.OrderSettlementItem{{ProductID: "prod-pizza", Quantity: dec("0")}},
	})
	assertCode(t, err, CodeInvalidItem)
}
