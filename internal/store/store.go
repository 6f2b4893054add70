package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"livrocaixa/backend/internal/domain"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNoUpdates       = errors.New("no fields to update")
	ErrSyncFailed      = errors.New("linked invoice sync failed")
	ErrStockUpdate     = errors.New("stock update affected no rows")
	ErrStockReversal   = errors.New("stock reversal affected no rows")
)

// MissingIngredientsError reports every referenced ingredient id that
// does not exist, collected in one batch check.
type MissingIngredientsError struct {
	IDs []string
}

func (e *MissingIngredientsError) Error() string {
	return fmt.Sprintf("ingredients not found: %s", strings.Join(e.IDs, ", "))
}

type StockShortage struct {
	IngredientID string          `json:"ingredient_id"`
	Name         string          `json:"name"`
	Available    decimal.Decimal `json:"available"`
	Required     decimal.Decimal `json:"required"`
}

// InsufficientStockError carries the per-ingredient shortage report for
// a rejected invoice deletion.
type InsufficientStockError struct {
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	names := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		names = append(names, fmt.Sprintf("%s (available %s, required %s)", s.Name, s.Available, s.Required))
	}
	return "insufficient stock to reverse: " + strings.Join(names, "; ")
}

type Repository interface {
	// ledger movements
	CreateMovement(ctx context.Context, m domain.FinancialMovement) (*domain.FinancialMovement, error)
	GetMovementByID(ctx context.Context, id string) (*domain.FinancialMovement, error)
	ListMovements(ctx context.Context, filter domain.MovementFilter, page int, pageSize int) (*domain.MovementPage, error)
	UpdateMovement(ctx context.Context, id string, patch domain.MovementPatch) (*domain.FinancialMovement, error)
	UpdateMovementPaymentStatus(ctx context.Context, id string, status domain.PaymentStatus, movementDate *time.Time) (*domain.FinancialMovement, error)
	ReconcileMovement(ctx context.Context, id string, reconciled bool, at time.Time) (*domain.FinancialMovement, error)
	DeleteMovement(ctx context.Context, id string) error
	CashFlowTotals(ctx context.Context, from *time.Time, to *time.Time, includePending bool) (domain.CashFlowTotals, error)
	ReconciliationReport(ctx context.Context, filter domain.ReconciliationFilter) (*domain.ReconciliationReport, error)

	// purchase invoices
	CreatePurchaseInvoice(ctx context.Context, invoice domain.PurchaseInvoice, expense domain.FinancialMovement, audit domain.InvoiceAuditEntry) (*domain.PurchaseInvoice, error)
	GetPurchaseInvoiceByID(ctx context.Context, id string) (*domain.PurchaseInvoice, error)
	ListPurchaseInvoices(ctx context.Context, filter domain.InvoiceFilter, page int, pageSize int) (*domain.InvoicePage, error)
	UpdatePurchaseInvoice(ctx context.Context, invoice domain.PurchaseInvoice, replaceItems bool, audit domain.InvoiceAuditEntry) (*domain.PurchaseInvoice, error)
	DeletePurchaseInvoice(ctx context.Context, id string, audit domain.InvoiceAuditEntry) error
	ListInvoiceAudit(ctx context.Context, invoiceID string, limit int) ([]domain.InvoiceAuditEntry, error)

	// ingredients
	GetIngredientsByIDs(ctx context.Context, ids []string) (map[string]domain.Ingredient, error)
	ListIngredients(ctx context.Context, onlyBelowThreshold bool) ([]domain.Ingredient, error)

	// order settlement
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	GetPaymentFeeSettings(ctx context.Context) (domain.PaymentFeeSettings, error)
	SettleOrder(ctx context.Context, revenue domain.FinancialMovement, cmv *domain.FinancialMovement, fee *domain.FinancialMovement) (*domain.OrderSettlementResult, error)

	// recurrence rules
	CreateRecurrenceRule(ctx context.Context, rule domain.RecurrenceRule) (*domain.RecurrenceRule, error)
	GetRecurrenceRuleByID(ctx context.Context, id string) (*domain.RecurrenceRule, error)
	ListRecurrenceRules(ctx context.Context, activeOnly bool) ([]domain.RecurrenceRule, error)
	UpdateRecurrenceRule(ctx context.Context, rule domain.RecurrenceRule) (*domain.RecurrenceRule, error)
	DeactivateRecurrenceRule(ctx context.Context, id string) error
	// InsertGeneratedMovement atomically claims (ruleID, periodKey) and
	// inserts the generated movement. Returns false without error when
	// the period was already claimed.
	InsertGeneratedMovement(ctx context.Context, ruleID string, periodKey string, m domain.FinancialMovement) (bool, error)

	// auth accounts
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
