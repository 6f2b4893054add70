package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementRevenue MovementType = "REVENUE"
	MovementExpense MovementType = "EXPENSE"
	MovementCMV     MovementType = "CMV"
	MovementTax     MovementType = "TAX"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementRevenue, MovementExpense, MovementCMV, MovementTax:
		return true
	}
	return false
}

type PaymentStatus string

const (
	StatusPending PaymentStatus = "Pending"
	StatusPaid    PaymentStatus = "Paid"
)

func (s PaymentStatus) Valid() bool {
	return s == StatusPending || s == StatusPaid
}

// ParsePaymentStatus maps caller input to a canonical status, accepting
// any casing of "pending" and "paid".
func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return StatusPending, true
	case "paid":
		return StatusPaid, true
	}
	return "", false
}

const (
	CategorySales          = "Vendas"
	CategoryVariableCosts  = "Custos Variáveis"
	CategoryFixedCosts     = "Custos Fixos"
	CategoryTaxes          = "Tributos"
	CategoryStockPurchases = "Compras de Estoque"
)

const (
	RelatedPurchaseInvoice = "purchase_invoice"
	RelatedOrder           = "order"
	RelatedRecurrenceRule  = "recurrence_rule"
)

// FinancialMovement is one recorded ledger line: a revenue, expense,
// cost-of-goods or tax event. Value is always positive; direction is
// implied by Type.
type FinancialMovement struct {
	ID                string          `json:"id"`
	Type              MovementType    `json:"type"`
	Value             decimal.Decimal `json:"value"`
	Category          *string         `json:"category"`
	Subcategory       *string         `json:"subcategory,omitempty"`
	Description       string          `json:"description"`
	MovementDate      *time.Time      `json:"movement_date"`
	PaymentStatus     PaymentStatus   `json:"payment_status"`
	PaymentMethod     *string         `json:"payment_method,omitempty"`
	SenderReceiver    *string         `json:"sender_receiver,omitempty"`
	RelatedEntityType *string         `json:"related_entity_type,omitempty"`
	RelatedEntityID   *string         `json:"related_entity_id,omitempty"`
	Notes             *string         `json:"notes,omitempty"`
	PaymentGatewayID  *string         `json:"payment_gateway_id,omitempty"`
	TransactionID     *string         `json:"transaction_id,omitempty"`
	BankAccount       *string         `json:"bank_account,omitempty"`
	Reconciled        bool            `json:"reconciled"`
	ReconciledAt      *time.Time      `json:"reconciled_at,omitempty"`
	CreatedBy         string          `json:"created_by,omitempty"`
	CreatedByName     string          `json:"created_by_name,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type MovementCreateRequest struct {
	Type              string          `json:"type"`
	Value             decimal.Decimal `json:"value"`
	Category          string          `json:"category"`
	Subcategory       string          `json:"subcategory"`
	Description       string          `json:"description"`
	MovementDate      string          `json:"movement_date"`
	PaymentStatus     string          `json:"payment_status"`
	PaymentMethod     string          `json:"payment_method"`
	SenderReceiver    string          `json:"sender_receiver"`
	RelatedEntityType string          `json:"related_entity_type"`
	RelatedEntityID   string          `json:"related_entity_id"`
	Notes             string          `json:"notes"`
	PaymentGatewayID  string          `json:"payment_gateway_id"`
	TransactionID     string          `json:"transaction_id"`
	BankAccount       string          `json:"bank_account"`
}

type MovementUpdateRequest struct {
	Type             *string          `json:"type,omitempty"`
	Value            *decimal.Decimal `json:"value,omitempty"`
	Category         *string          `json:"category,omitempty"`
	Subcategory      *string          `json:"subcategory,omitempty"`
	Description      *string          `json:"description,omitempty"`
	MovementDate     *string          `json:"movement_date,omitempty"`
	PaymentStatus    *string          `json:"payment_status,omitempty"`
	PaymentMethod    *string          `json:"payment_method,omitempty"`
	SenderReceiver   *string          `json:"sender_receiver,omitempty"`
	Notes            *string          `json:"notes,omitempty"`
	PaymentGatewayID *string          `json:"payment_gateway_id,omitempty"`
	TransactionID    *string          `json:"transaction_id,omitempty"`
	BankAccount      *string          `json:"bank_account,omitempty"`
}

// MovementPatch is the store-level partial update, already validated
// and with dates parsed. Nil fields are untouched.
type MovementPatch struct {
	Type             *MovementType
	Value            *decimal.Decimal
	Category         *string
	Subcategory      *string
	Description      *string
	MovementDate     **time.Time
	PaymentStatus    *PaymentStatus
	PaymentMethod    *string
	SenderReceiver   *string
	Notes            *string
	PaymentGatewayID *string
	TransactionID    *string
	BankAccount      *string
}

func (p MovementPatch) Empty() bool {
	return p.Type == nil && p.Value == nil && p.Category == nil && p.Subcategory == nil &&
		p.Description == nil && p.MovementDate == nil && p.PaymentStatus == nil &&
		p.PaymentMethod == nil && p.SenderReceiver == nil && p.Notes == nil &&
		p.PaymentGatewayID == nil && p.TransactionID == nil && p.BankAccount == nil
}

type MovementFilter struct {
	StartDate         *time.Time
	EndDate           *time.Time
	Type              string
	Category          string
	PaymentStatus     string
	RelatedEntityType string
	RelatedEntityID   string
	PaymentGatewayID  string
	TransactionID     string
	BankAccount       string
	Reconciled        *bool
}

type MovementPage struct {
	Movements []FinancialMovement `json:"movements"`
	Page      int                 `json:"page"`
	PageSize  int                 `json:"page_size"`
	Total     int                 `json:"total"`
}

type CashFlowTotals struct {
	Revenue       decimal.Decimal
	Expense       decimal.Decimal
	Cmv           decimal.Decimal
	Tax           decimal.Decimal
	PendingAmount decimal.Decimal
}

type CashFlowSummary struct {
	Period         string          `json:"period"`
	StartDate      *time.Time      `json:"start_date,omitempty"`
	EndDate        *time.Time      `json:"end_date,omitempty"`
	Revenue        decimal.Decimal `json:"revenue"`
	Expense        decimal.Decimal `json:"expense"`
	Cmv            decimal.Decimal `json:"cmv"`
	Tax            decimal.Decimal `json:"tax"`
	GrossProfit    decimal.Decimal `json:"gross_profit"`
	NetProfit      decimal.Decimal `json:"net_profit"`
	CashFlow       decimal.Decimal `json:"cash_flow"`
	IncludePending bool            `json:"include_pending"`
	PendingAmount  decimal.Decimal `json:"pending_amount"`
}

type ReconciliationFilter struct {
	StartDate        *time.Time
	EndDate          *time.Time
	Reconciled       *bool
	PaymentGatewayID string
}

type ReconciliationReport struct {
	TotalCount         int                 `json:"total_count"`
	ReconciledCount    int                 `json:"reconciled_count"`
	UnreconciledCount  int                 `json:"unreconciled_count"`
	ReconciledAmount   decimal.Decimal     `json:"reconciled_amount"`
	UnreconciledAmount decimal.Decimal     `json:"unreconciled_amount"`
	Movements          []FinancialMovement `json:"movements"`
}

// Ingredient is the stock-keeping unit replenished by purchase invoices
// and consumed by recipes. CurrentStock is held in the base stock unit.
type Ingredient struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Unit                string          `json:"unit"`
	CurrentStock        decimal.Decimal `json:"current_stock"`
	MinStockThreshold   decimal.Decimal `json:"min_stock_threshold"`
	StockStatus         string          `json:"stock_status"`
	Price               decimal.Decimal `json:"price"`
	PurchaseUnit        string          `json:"purchase_unit"`
	BasePortionQuantity decimal.Decimal `json:"base_portion_quantity"`
	BasePortionUnit     string          `json:"base_portion_unit"`
	Active              bool            `json:"active"`
}

const (
	StockStatusOK         = "ok"
	StockStatusLow        = "low"
	StockStatusOutOfStock = "out_of_stock"
)

// StockStatusFor derives the stock flag from a level and its minimum
// threshold.
func StockStatusFor(stock decimal.Decimal, threshold decimal.Decimal) string {
	switch {
	case stock.LessThanOrEqual(decimal.Zero):
		return StockStatusOutOfStock
	case stock.LessThanOrEqual(threshold):
		return StockStatusLow
	default:
		return StockStatusOK
	}
}

type PurchaseInvoiceItem struct {
	ID              string           `json:"id"`
	IngredientID    string           `json:"ingredient_id"`
	IngredientName  string           `json:"ingredient_name,omitempty"`
	Quantity        decimal.Decimal  `json:"quantity"`
	UnitPrice       decimal.Decimal  `json:"unit_price"`
	TotalPrice      decimal.Decimal  `json:"total_price"`
	DisplayQuantity *decimal.Decimal `json:"display_quantity,omitempty"`
	DisplayUnit     string           `json:"display_unit,omitempty"`
}

type PurchaseInvoice struct {
	ID            string                `json:"id"`
	InvoiceNumber string                `json:"invoice_number"`
	SupplierName  string                `json:"supplier_name"`
	TotalAmount   decimal.Decimal       `json:"total_amount"`
	PurchaseDate  *time.Time            `json:"purchase_date,omitempty"`
	PaymentStatus PaymentStatus         `json:"payment_status"`
	PaymentMethod *string               `json:"payment_method,omitempty"`
	PaymentDate   *time.Time            `json:"payment_date,omitempty"`
	Notes         *string               `json:"notes,omitempty"`
	CreatedBy     string                `json:"created_by"`
	CreatedByName string                `json:"created_by_name,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	Items         []PurchaseInvoiceItem `json:"items"`
}

type PurchaseItemRequest struct {
	IngredientID    string           `json:"ingredient_id"`
	Quantity        decimal.Decimal  `json:"quantity"`
	UnitPrice       decimal.Decimal  `json:"unit_price"`
	TotalPrice      *decimal.Decimal `json:"total_price,omitempty"`
	DisplayQuantity *decimal.Decimal `json:"display_quantity,omitempty"`
	DisplayUnit     string           `json:"display_unit,omitempty"`
}

type PurchaseInvoiceCreateRequest struct {
	InvoiceNumber string                `json:"invoice_number"`
	SupplierName  string                `json:"supplier_name"`
	TotalAmount   decimal.Decimal       `json:"total_amount"`
	PurchaseDate  string                `json:"purchase_date"`
	PaymentStatus string                `json:"payment_status"`
	PaymentMethod string                `json:"payment_method"`
	PaymentDate   string                `json:"payment_date"`
	Notes         string                `json:"notes"`
	Items         []PurchaseItemRequest `json:"items"`
}

type PurchaseInvoiceUpdateRequest struct {
	InvoiceNumber *string               `json:"invoice_number,omitempty"`
	SupplierName  *string               `json:"supplier_name,omitempty"`
	PurchaseDate  *string               `json:"purchase_date,omitempty"`
	PaymentStatus *string               `json:"payment_status,omitempty"`
	PaymentMethod *string               `json:"payment_method,omitempty"`
	PaymentDate   *string               `json:"payment_date,omitempty"`
	Notes         *string               `json:"notes,omitempty"`
	Items         []PurchaseItemRequest `json:"items,omitempty"`
}

type InvoiceFilter struct {
	StartDate     *time.Time
	EndDate       *time.Time
	SupplierName  string
	PaymentStatus string
}

type InvoicePage struct {
	Invoices []PurchaseInvoice `json:"invoices"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Total    int               `json:"total"`
}

const (
	AuditCreate = "CREATE"
	AuditUpdate = "UPDATE"
	AuditDelete = "DELETE"
)

// InvoiceAuditEntry is one append-only row of the invoice change trail.
type InvoiceAuditEntry struct {
	ID            string          `json:"id"`
	InvoiceID     string          `json:"invoice_id"`
	ActionType    string          `json:"action_type"`
	ChangedBy     string          `json:"changed_by"`
	OldValues     json.RawMessage `json:"old_values,omitempty"`
	NewValues     json.RawMessage `json:"new_values,omitempty"`
	ChangedFields []string        `json:"changed_fields,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type RecipePortion struct {
	IngredientID string          `json:"ingredient_id"`
	Portions     decimal.Decimal `json:"portions"`
}

// Product carries only what order settlement needs: an optional fixed
// cost price and the recipe used to derive cost when it is absent.
type Product struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	CostPrice *decimal.Decimal `json:"cost_price,omitempty"`
	Recipe    []RecipePortion  `json:"recipe,omitempty"`
}

type OrderExtra struct {
	IngredientID string          `json:"ingredient_id"`
	Quantity     decimal.Decimal `json:"quantity"`
}

type OrderSettlementItem struct {
	ProductID       string          `json:"product_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	Extras          []OrderExtra    `json:"extras,omitempty"`
	BaseAdjustments []OrderExtra    `json:"base_adjustments,omitempty"`
}

type OrderSettlementRequest struct {
	OrderID       string                `json:"order_id"`
	Total         decimal.Decimal       `json:"total"`
	PaymentMethod string                `json:"payment_method"`
	Items         []OrderSettlementItem `json:"items"`
}

type OrderSettlementResult struct {
	RevenueMovementID string          `json:"revenue_movement_id"`
	CmvMovementID     *string         `json:"cmv_movement_id,omitempty"`
	FeeMovementID     *string         `json:"fee_movement_id,omitempty"`
	TotalCmv          decimal.Decimal `json:"total_cmv"`
	FeeAmount         decimal.Decimal `json:"fee_amount"`
}

// PaymentFeeSettings holds the percentage fee each payment channel
// charges on an order's total.
type PaymentFeeSettings struct {
	CreditFeePercent   decimal.Decimal `json:"credit_fee_percent"`
	DebitFeePercent    decimal.Decimal `json:"debit_fee_percent"`
	PixFeePercent      decimal.Decimal `json:"pix_fee_percent"`
	IfoodFeePercent    decimal.Decimal `json:"ifood_fee_percent"`
	UberEatsFeePercent decimal.Decimal `json:"uber_eats_fee_percent"`
}

type RecurrenceType string

const (
	RecurrenceMonthly RecurrenceType = "MONTHLY"
	RecurrenceWeekly  RecurrenceType = "WEEKLY"
	RecurrenceYearly  RecurrenceType = "YEARLY"
)

func (t RecurrenceType) Valid() bool {
	return t == RecurrenceMonthly || t == RecurrenceWeekly || t == RecurrenceYearly
}

type RecurrenceRule struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    *string         `json:"description,omitempty"`
	Type           MovementType    `json:"type"`
	Category       *string         `json:"category,omitempty"`
	Subcategory    *string         `json:"subcategory,omitempty"`
	Value          decimal.Decimal `json:"value"`
	RecurrenceType RecurrenceType  `json:"recurrence_type"`
	RecurrenceDay  int             `json:"recurrence_day"`
	SenderReceiver *string         `json:"sender_receiver,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type RecurrenceRuleCreateRequest struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Type           string          `json:"type"`
	Category       string          `json:"category"`
	Subcategory    string          `json:"subcategory"`
	Value          decimal.Decimal `json:"value"`
	RecurrenceType string          `json:"recurrence_type"`
	RecurrenceDay  int             `json:"recurrence_day"`
	SenderReceiver string          `json:"sender_receiver"`
	Notes          string          `json:"notes"`
}

type RecurrenceRuleUpdateRequest struct {
	Name           *string          `json:"name,omitempty"`
	Description    *string          `json:"description,omitempty"`
	Category       *string          `json:"category,omitempty"`
	Subcategory    *string          `json:"subcategory,omitempty"`
	Value          *decimal.Decimal `json:"value,omitempty"`
	RecurrenceType *string          `json:"recurrence_type,omitempty"`
	RecurrenceDay  *int             `json:"recurrence_day,omitempty"`
	SenderReceiver *string          `json:"sender_receiver,omitempty"`
	Notes          *string          `json:"notes,omitempty"`
	IsActive       *bool            `json:"is_active,omitempty"`
}

type GenerateResult struct {
	Generated int      `json:"generated"`
	Errors    []string `json:"errors,omitempty"`
}

type ReplenishmentSuggestion struct {
	IngredientID      string          `json:"ingredient_id"`
	Name              string          `json:"name"`
	Unit              string          `json:"unit"`
	CurrentStock      decimal.Decimal `json:"current_stock"`
	MinStockThreshold decimal.Decimal `json:"min_stock_threshold"`
	SuggestedQuantity decimal.Decimal `json:"suggested_quantity"`
	EstimatedCost     decimal.Decimal `json:"estimated_cost"`
	Urgency           string          `json:"urgency"`
	ReasonCode        string          `json:"reason_code"`
}

type ReplenishmentResponse struct {
	GeneratedAt string                    `json:"generated_at"`
	Suggestions []ReplenishmentSuggestion `json:"suggestions"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Name      string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
