package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"livrocaixa/backend/internal/domain"
	"livrocaixa/backend/internal/store"
)

func TestPurchaseInvoiceLifecycleAdjustsStock(t *testing.T) {
	databaseURL := os.Getenv("LIVROCAIXA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set LIVROCAIXA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	ingredientID := fmt.Sprintf("ing-it-%d", stamp)
	invoiceNumber := fmt.Sprintf("NF-IT-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM purchase_invoice_items WHERE ingredient_id = $1`, ingredientID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM purchase_invoices WHERE invoice_number = $1`, invoiceNumber)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM financial_movements WHERE description LIKE $1`, "Compra - NF "+invoiceNumber+"%")
		_, _ = s.db.ExecContext(ctx, `DELETE FROM ingredients WHERE id = $1`, ingredientID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO ingredients (
			id, name, unit, current_stock, min_stock_threshold, stock_status,
			price, purchase_unit, base_portion_quantity, base_portion_unit,
			active, created_at, updated_at
		)
		VALUES ($1, 'Farinha Integração', 'g', 2000, 500, 'ok', 6.50, 'kg', 150, 'g', true, now(), now())
	`, ingredientID); err != nil {
		t.Fatalf("seed ingredient: %v", err)
	}

	quantity := decimal.RequireFromString("3000")
	unitPrice := decimal.RequireFromString("0.0065")
	total := quantity.Mul(unitPrice)

	invoice := domain.PurchaseInvoice{
		InvoiceNumber: invoiceNumber,
		SupplierName:  "Fornecedor Integração",
		TotalAmount:   total,
		PaymentStatus: domain.StatusPaid,
		CreatedBy:     "admin",
		Items: []domain.PurchaseInvoiceItem{
			{IngredientID: ingredientID, Quantity: quantity, UnitPrice: unitPrice, TotalPrice: total},
		},
	}
	category := domain.CategoryStockPurchases
	expense := domain.FinancialMovement{
		Type:          domain.MovementExpense,
		Value:         total,
		Category:      &category,
		Description:   "Compra - NF " + invoiceNumber + " - Fornecedor Integração",
		PaymentStatus: domain.StatusPaid,
		CreatedBy:     "admin",
	}
	audit := domain.InvoiceAuditEntry{ChangedBy: "admin"}

	created, err := s.CreatePurchaseInvoice(ctx, invoice, expense, audit)
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM invoice_audit_log WHERE invoice_id = $1`, created.ID)
	})

	stock := queryStock(t, s, ctx, ingredientID)
	if !stock.Equal(decimal.RequireFromString("5000")) {
		t.Fatalf("expected stock 5000 after purchase, got %s", stock)
	}

	entries, err := s.ListInvoiceAudit(ctx, created.ID, 10)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) != 1 || entries[0].ActionType != domain.AuditCreate {
		t.Fatalf("expected single CREATE audit entry, got %+v", entries)
	}

	if err := s.DeletePurchaseInvoice(ctx, created.ID, domain.InvoiceAuditEntry{ChangedBy: "admin"}); err != nil {
		t.Fatalf("delete invoice: %v", err)
	}

	stock = queryStock(t, s, ctx, ingredientID)
	if !stock.Equal(decimal.RequireFromString("2000")) {
		t.Fatalf("expected stock restored to 2000 after delete, got %s", stock)
	}

	if _, err := s.GetPurchaseInvoiceByID(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	var linked int
	if err := s.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM financial_movements
		WHERE related_entity_type = $1 AND related_entity_id = $2
	`, domain.RelatedPurchaseInvoice, created.ID).Scan(&linked); err != nil {
		t.Fatalf("count linked movements: %v", err)
	}
	if linked != 0 {
		t.Fatalf("expected linked movements removed, got %d", linked)
	}
}

func queryStock(t *testing.T, s *Store, ctx context.Context, ingredientID string) decimal.Decimal {
	t.Helper()

	var stock decimal.Decimal
	if err := s.db.QueryRowContext(ctx, `
		SELECT current_stock
		FROM ingredients
		WHERE id = $1
	`, ingredientID).Scan(&stock); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	return stock
}
