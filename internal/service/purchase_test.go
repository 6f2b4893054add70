package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"livrocaixa/backend/internal/domain"
)

func createTestInvoice(t *testing.T, svc *Service, ctx context.Context, number string, items []domain.PurchaseItemRequest) *domain.PurchaseInvoice {
	t.Helper()
	invoice, err := svc.CreatePurchaseInvoice(ctx, domain.PurchaseInvoiceCreateRequest{
		InvoiceNumber: number,
		SupplierName:  "Distribuidora Central",
		PurchaseDate:  "10-02-2026",
		PaymentStatus: "paid",
		PaymentMethod: "pix",
		Items:         items,
	})
	if err != nil {
		t.Fatalf("create invoice %s failed: %v", number, err)
	}
	return invoice
}

func ingredientStock(t *testing.T, svc *Service, ctx context.Context, id string) decimal.Decimal {
	t.Helper()
	ingredients, err := svc.ListIngredients(ctx, false)
	if err != nil {
		t.Fatalf("list ingredients failed: %v", err)
	}
	for _, ing := range ingredients {
		if ing.ID == id {
			return ing.CurrentStock
		}
	}
	t.Fatalf("ingredient %s not found", id)
	return decimal.Zero
}

func TestCreatePurchaseInvoiceBooksExpenseAndStock(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	invoice := createTestInvoice(t, svc, ctx, "NF-1001", []domain.PurchaseItemRequest{
		{IngredientID: "ing-farinha", Quantity: dec("5000"), UnitPrice: dec("0.0065")},
	})

	if !invoice.TotalAmount.Equal(dec("32.5")) {
		t.Fatalf("expected total 32.5 from item totals, got %s", invoice.TotalAmount)
	}
	if got := ingredientStock(t, svc, ctx, "ing-farinha"); !got.Equal(dec("13000")) {
		t.Fatalf("expected stock 13000 after purchase, got %s", got)
	}

	// The linked expense mirrors the invoice total and payment status.
	page, err := svc.ListMovements(ctx, domain.MovementFilter{
		RelatedEntityType: domain.RelatedPurchaseInvoice,
		RelatedEntityID:   invoice.ID,
	}, 1, 10)
	if err != nil {
		t.Fatalf("list linked movements failed: %v", err)
	}
	if len(page.Movements) != 1 {
		t.Fatalf("expected 1 linked expense, got %d", len(page.Movements))
	}
	expense := page.Movements[0]
	if expense.Type != domain.MovementExpense || !expense.Value.Equal(invoice.TotalAmount) {
		t.Fatalf("expected expense of %s, got %s %s", invoice.TotalAmount, expense.Type, expense.Value)
	}
	if expense.Description != "Compra - NF NF-1001 - Distribuidora Central" {
		t.Fatalf("unexpected expense description: %s", expense.Description)
	}
	if expense.Category == nil || *expense.Category != domain.CategoryStockPurchases {
		t.Fatalf("expected category %s, got %v", domain.CategoryStockPurchases, expense.Category)
	}
}

func TestCreatePurchaseInvoiceRequiresAuthAndFields(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreatePurchaseInvoice(context.Background(), domain.PurchaseInvoiceCreateRequest{
		InvoiceNumber: "NF-1", SupplierName: "X",
		Items: []domain.PurchaseItemRequest{{IngredientID: "ing-farinha", Quantity: dec("1"), UnitPrice: dec("1")}},
	})
	assertCode(t, err, CodePermissionDenied)

	_, err = svc.CreatePurchaseInvoice(adminCtx(), domain.PurchaseInvoiceCreateRequest{
		SupplierName: "X",
		Items:        []domain.PurchaseItemRequest{{IngredientID: "ing-farinha", Quantity: dec("1"), UnitPrice: dec("1")}},
	})
	assertCode(t, err, CodeInvalidValue)

	_, err = svc.CreatePurchaseInvoice(adminCtx(), domain.PurchaseInvoiceCreateRequest{
		InvoiceNumber: "NF-1", SupplierName: "X",
	})
	assertCode(t, err, CodeInvalidItem)
}

func TestCreatePurchaseInvoiceListsAllMissingIngredients(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreatePurchaseInvoice(adminCtx(), domain.PurchaseInvoiceCreateRequest{
		InvoiceNumber: "NF-2002",
		SupplierName:  "Hortifruti União",
		Items: []domain.PurchaseItemRequest{
			{IngredientID: "ing-zz-tomate", Quantity: dec("10"), UnitPrice: dec("2")},
			{IngredientID: "ing-farinha", Quantity: dec("100"), UnitPrice: dec("0.01")},
			{IngredientID: "ing-aa-alface", Quantity: dec("5"), UnitPrice: dec("3")},
		},
	})
	assertCode(t, err, CodeIngredientNotFound)

	svcErr, _ := AsError(err)
	details, ok := svcErr.Details.(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", svcErr.Details)
	}
	missing, ok := details["missing_ingredient_ids"].([]string)
	if !ok {
		t.Fatalf("expected missing ids slice, got %T", details["missing_ingredient_ids"])
	}
	if len(missing) != 2 || missing[0] != "ing-aa-alface" || missing[1] != "ing-zz-tomate" {
		t.Fatalf("expected both missing ids sorted, got %v", missing)
	}
}

func TestUnitPriceKeepsOriginalScale(t *testing.T) {
	svc, _ := newTestService()

	invoice := createTestInvoice(t, svc, adminCtx(), "NF-3003", []domain.PurchaseItemRequest{
		{IngredientID: "ing-carne", Quantity: dec("1000"), UnitPrice: dec("39.9")},
	})

	item := invoice.Items[0]
	if item.UnitPrice.String() != "39.9" {
		t.Fatalf("expected unit price to stay 39.9, got %s", item.UnitPrice.String())
	}
}

func TestUnitPriceQuantization(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"39.9", "39.9"},
		{"39.99", "39.99"},
		{"39.9000000001", "39.9"},
		{"0.0065", "0.0065"},
		{"0.123456789012345", "0.12"},
		{"12", "12"},
	}
	for _, tc := range cases {
		got := quantizeUnitPrice(dec(tc.in))
		if got.String() != tc.want {
			t.Errorf("quantizeUnitPrice(%s) = %s, want %s", tc.in, got.String(), tc.want)
		}
	}
}

func TestInvoicePaidAlwaysCarriesPaymentDate(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	paid, err := svc.CreatePurchaseInvoice(ctx, domain.PurchaseInvoiceCreateRequest{
		InvoiceNumber: "NF-5001",
		SupplierName:  "Distribuidora Central",
		PaymentStatus: "paid",
		Items:         []domain.PurchaseItemRequest{{IngredientID: "ing-farinha", Quantity: dec("100"), UnitPrice: dec("0.0065")}},
	})
	if err != nil {
		t.Fatalf("create paid invoice failed: %v", err)
	}
	if paid.PaymentDate == nil {
		t.Fatal("expected paid invoice without dates to default a payment date")
	}

	pending, err := svc.CreatePurchaseInvoice(ctx, domain.PurchaseInvoiceCreateRequest{
		InvoiceNumber: "NF-5002",
		SupplierName:  "Distribuidora Central",
		Items:         []domain.PurchaseItemRequest{{IngredientID: "ing-farinha", Quantity: dec("100"), UnitPrice: dec("0.0065")}},
	})
	if err != nil {
		t.Fatalf("create pending invoice failed: %v", err)
	}
	if pending.PaymentDate != nil {
		t.Fatalf("expected pending invoice without a payment date to stay undated, got %v", pending.PaymentDate)
	}

	status := "paid"
	updated, err := svc.UpdatePurchaseInvoice(ctx, pending.ID, domain.PurchaseInvoiceUpdateRequest{PaymentStatus: &status})
	if err != nil {
		t.Fatalf("update to paid failed: %v", err)
	}
	if updated.PaymentDate == nil {
		t.Fatal("expected transition to paid to set a payment date")
	}
}

func TestInvoiceItemQuantityFallsBackToDisplayConversion(t *testing.T) {
	svc, _ := newTestService()

	display := dec("2.5")
	invoice := createTestInvoice(t, svc, adminCtx(), "NF-4004", []domain.PurchaseItemRequest{
		{IngredientID: "ing-molho", DisplayQuantity: &display, DisplayUnit: "l", UnitPrice: dec("12")},
	})

	item := invoice.Items[0]
	if !item.Quantity.Equal(dec("2500")) {
		t.Fatalf("expected 2.5 l converted to 2500 ml, got %s", item.Quantity)
	}
	// With a display quantity the total prices the purchase units.
	if !item.TotalPrice.Equal(dec("30")) {
		t.Fatalf("expected total 2.5 x 12 = 30, got %s", item.TotalPrice)
	}
}

func TestUpdatePurchaseInvoiceTracksChangesAndRejectsNoops(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	invoice := createTestInvoice(t, svc, ctx, "NF-5005", []domain.PurchaseItemRequest{
		{IngredientID: "ing-queijo", Quantity: dec("2000"), UnitPrice: dec("0.042")},
	})

	sameSupplier := invoice.SupplierName
	_, err := svc.UpdatePurchaseInvoice(ctx, invoice.ID, domain.PurchaseInvoiceUpdateRequest{
		SupplierName: &sameSupplier,
	})
	assertCode(t, err, CodeNoUpdates)

	newSupplier := "Laticínios Serra Azul"
	updated, err := svc.UpdatePurchaseInvoice(ctx, invoice.ID, domain.PurchaseInvoiceUpdateRequest{
		SupplierName: &newSupplier,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.SupplierName != newSupplier {
		t.Fatalf("expected supplier updated, got %s", updated.SupplierName)
	}

	entries, err := svc.ListInvoiceAudit(ctx, invoice.ID, 10)
	if err != nil {
		t.Fatalf("audit list failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected CREATE and UPDATE audit entries, got %d", len(entries))
	}
	update := entries[0]
	if update.ActionType != domain.AuditUpdate {
		t.Fatalf("expected newest entry UPDATE, got %s", update.ActionType)
	}
	if len(update.ChangedFields) != 1 || update.ChangedFields[0] != "supplier_name" {
		t.Fatalf("expected changed field supplier_name, got %v", update.ChangedFields)
	}
}

func TestUpdatePurchaseInvoiceReplacesItemsAndReappliesStock(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	invoice := createTestInvoice(t, svc, ctx, "NF-6006", []domain.PurchaseItemRequest{
		{IngredientID: "ing-ovo", Quantity: dec("24"), UnitPrice: dec("1.2")},
	})
	if got := ingredientStock(t, svc, ctx, "ing-ovo"); !got.Equal(dec("84")) {
		t.Fatalf("expected 84 eggs after purchase, got %s", got)
	}

	updated, err := svc.UpdatePurchaseInvoice(ctx, invoice.ID, domain.PurchaseInvoiceUpdateRequest{
		Items: []domain.PurchaseItemRequest{
			{IngredientID: "ing-ovo", Quantity: dec("12"), UnitPrice: dec("1.2")},
		},
	})
	if err != nil {
		t.Fatalf("item replacement failed: %v", err)
	}
	if !updated.TotalAmount.Equal(dec("14.4")) {
		t.Fatalf("expected recomputed total 14.4, got %s", updated.TotalAmount)
	}
	if got := ingredientStock(t, svc, ctx, "ing-ovo"); !got.Equal(dec("72")) {
		t.Fatalf("expected old quantity reversed and new applied (72), got %s", got)
	}
}

func TestDeletePurchaseInvoiceReversesStockAndMovements(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	before := ingredientStock(t, svc, ctx, "ing-farinha")
	invoice := createTestInvoice(t, svc, ctx, "NF-7007", []domain.PurchaseItemRequest{
		{IngredientID: "ing-farinha", Quantity: dec("3000"), UnitPrice: dec("0.007")},
	})

	err := svc.DeletePurchaseInvoice(managerCtx(), invoice.ID)
	assertCode(t, err, CodePermissionDenied)

	if err := svc.DeletePurchaseInvoice(ctx, invoice.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if got := ingredientStock(t, svc, ctx, "ing-farinha"); !got.Equal(before) {
		t.Fatalf("expected stock back to %s, got %s", before, got)
	}
	page, err := svc.ListMovements(ctx, domain.MovementFilter{
		RelatedEntityType: domain.RelatedPurchaseInvoice,
		RelatedEntityID:   invoice.ID,
	}, 1, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page.Movements) != 0 {
		t.Fatalf("expected linked movements removed, got %d", len(page.Movements))
	}
	_, err = svc.GetPurchaseInvoice(ctx, invoice.ID)
	assertCode(t, err, CodeNotFound)
}

func TestDeleteMovementCascadesToPurchaseInvoice(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	before := ingredientStock(t, svc, ctx, "ing-queijo")
	invoice := createTestInvoice(t, svc, ctx, "NF-8008", []domain.PurchaseItemRequest{
		{IngredientID: "ing-queijo", Quantity: dec("1000"), UnitPrice: dec("0.042")},
	})

	page, err := svc.ListMovements(ctx, domain.MovementFilter{
		RelatedEntityType: domain.RelatedPurchaseInvoice,
		RelatedEntityID:   invoice.ID,
	}, 1, 10)
	if err != nil || len(page.Movements) != 1 {
		t.Fatalf("expected linked expense, got %d (err %v)", len(page.Movements), err)
	}

	if err := svc.DeleteMovement(ctx, page.Movements[0].ID); err != nil {
		t.Fatalf("delete movement failed: %v", err)
	}

	_, err = svc.GetPurchaseInvoice(ctx, invoice.ID)
	assertCode(t, err, CodeNotFound)
	if got := ingredientStock(t, svc, ctx, "ing-queijo"); !got.Equal(before) {
		t.Fatalf("expected stock restored to %s, got %s", before, got)
	}
}

func TestInvoicePaymentStatusFlowsToLinkedExpense(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	invoice, err := svc.CreatePurchaseInvoice(ctx, domain.PurchaseInvoiceCreateRequest{
		InvoiceNumber: "NF-9009",
		SupplierName:  "Distribuidora Central",
		PaymentStatus: "pending",
		Items: []domain.PurchaseItemRequest{
			{IngredientID: "ing-oleo", Quantity: dec("900"), UnitPrice: dec("0.0098")},
		},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	page, err := svc.ListMovements(ctx, domain.MovementFilter{
		RelatedEntityType: domain.RelatedPurchaseInvoice,
		RelatedEntityID:   invoice.ID,
	}, 1, 10)
	if err != nil || len(page.Movements) != 1 {
		t.Fatalf("expected linked expense, got %d (err %v)", len(page.Movements), err)
	}
	expense := page.Movements[0]
	if expense.PaymentStatus != domain.StatusPending {
		t.Fatalf("expected pending expense, got %s", expense.PaymentStatus)
	}

	if _, err := svc.UpdatePaymentStatus(ctx, expense.ID, "paid", "20-02-2026"); err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}

	refreshed, err := svc.GetPurchaseInvoice(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("get invoice failed: %v", err)
	}
	if refreshed.PaymentStatus != domain.StatusPaid {
		t.Fatalf("expected invoice marked paid alongside the expense, got %s", refreshed.PaymentStatus)
	}
}
