package service

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"livrocaixa/backend/internal/domain"
	"livrocaixa/backend/internal/events"
	"livrocaixa/backend/internal/units"
)

const purchaseExpenseSubcategory = "Ingredientes"

// quantizeUnitPrice computes unit prices at ten-decimal precision and
// strips floating artifacts: once trailing zeros are dropped, a price
// carrying more than two significant fractional digits is rounded to
// two places. 39.9 and 39.99 pass through untouched, 39.9000000001
// comes out as 39.9, and a per-gram price like 0.0065 keeps its scale
// because the leading zeros are not significant.
func quantizeUnitPrice(price decimal.Decimal) decimal.Decimal {
	q := price
	if q.Exponent() < -10 {
		q = q.Round(10)
	}
	if significantFractionDigits(q) > 2 {
		return q.Round(2)
	}
	return q
}

// significantFractionDigits counts the digits after the decimal point
// once trailing and leading zeros are removed.
func significantFractionDigits(d decimal.Decimal) int {
	s := d.Abs().String()
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0
	}
	frac := strings.TrimLeft(s[dot+1:], "0")
	return len(frac)
}

func (s *Service) CreatePurchaseInvoice(ctx context.Context, req domain.PurchaseInvoiceCreateRequest) (*domain.PurchaseInvoice, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, newError(CodePermissionDenied, "authentication required")
	}

	req.InvoiceNumber = strings.TrimSpace(req.InvoiceNumber)
	req.SupplierName = strings.TrimSpace(req.SupplierName)
	if req.InvoiceNumber == "" || req.SupplierName == "" {
		return nil, newError(CodeInvalidValue, "invoice_number and supplier_name are required")
	}
	if len(req.Items) == 0 {
		return nil, newError(CodeInvalidItem, "at least one item is required")
	}

	status := domain.StatusPending
	if req.PaymentStatus != "" {
		parsed, ok := domain.ParsePaymentStatus(req.PaymentStatus)
		if !ok {
			return nil, errorf(CodeInvalidStatus, "unknown payment status: %s", req.PaymentStatus)
		}
		status = parsed
	}
	purchaseDate, err := parseDate(req.PurchaseDate)
	if err != nil {
		return nil, err
	}
	paymentDate, err := parseDate(req.PaymentDate)
	if err != nil {
		return nil, err
	}
	if status == domain.StatusPaid && paymentDate == nil {
		paymentDate = purchaseDate
		if paymentDate == nil {
			now := time.Now().UTC()
			paymentDate = &now
		}
	}

	items, err := s.buildInvoiceItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	totalAmount := req.TotalAmount
	if totalAmount.LessThanOrEqual(decimal.Zero) {
		totalAmount = decimal.Zero
		for _, item := range items {
			totalAmount = totalAmount.Add(item.TotalPrice)
		}
	}

	invoice := domain.PurchaseInvoice{
		InvoiceNumber: req.InvoiceNumber,
		SupplierName:  req.SupplierName,
		TotalAmount:   totalAmount,
		PurchaseDate:  purchaseDate,
		PaymentStatus: status,
		PaymentMethod: optional(req.PaymentMethod),
		PaymentDate:   paymentDate,
		Notes:         optional(req.Notes),
		CreatedBy:     actor.Username,
		Items:         items,
	}

	expenseCategory := domain.CategoryStockPurchases
	expenseSubcategory := purchaseExpenseSubcategory
	expense := domain.FinancialMovement{
		Type:           domain.MovementExpense,
		Value:          totalAmount,
		Category:       &expenseCategory,
		Subcategory:    &expenseSubcategory,
		Description:    "Compra - NF " + req.InvoiceNumber + " - " + req.SupplierName,
		MovementDate:   normalizeMovementDate(status, paymentDate),
		PaymentStatus:  status,
		PaymentMethod:  optional(req.PaymentMethod),
		SenderReceiver: &req.SupplierName,
		CreatedBy:      actor.Username,
	}

	audit := domain.InvoiceAuditEntry{
		ChangedBy: actor.Username,
		NewValues: snapshotInvoice(invoice),
	}

	created, err := s.repo.CreatePurchaseInvoice(ctx, invoice, expense, audit)
	if err != nil {
		return nil, wrapStoreError(err)
	}

	s.invalidateLedgerCache(ctx)
	s.events.Publish(ctx, events.PurchaseCreated, created)
	return created, nil
}

// buildInvoiceItems validates and normalizes request items: unit
// prices quantized, display quantities converted into the ingredient's
// stock unit when the base quantity is not given.
func (s *Service) buildInvoiceItems(ctx context.Context, reqItems []domain.PurchaseItemRequest) ([]domain.PurchaseInvoiceItem, error) {
	ids := make([]string, 0, len(reqItems))
	for _, item := range reqItems {
		if strings.TrimSpace(item.IngredientID) == "" {
			return nil, newError(CodeInvalidItem, "item ingredient_id is required")
		}
		ids = append(ids, item.IngredientID)
	}

	ingredients, err := s.repo.GetIngredientsByIDs(ctx, ids)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	missing := make([]string, 0)
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := ingredients[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &Error{
			Code:    CodeIngredientNotFound,
			Message: "ingredients not found: " + strings.Join(missing, ", "),
			Details: map[string]any{"missing_ingredient_ids": missing},
		}
	}

	items := make([]domain.PurchaseInvoiceItem, 0, len(reqItems))
	for _, reqItem := range reqItems {
		ingredient := ingredients[reqItem.IngredientID]

		unitPrice := quantizeUnitPrice(reqItem.UnitPrice)
		if unitPrice.LessThanOrEqual(decimal.Zero) {
			return nil, errorf(CodeInvalidUnitPrice, "unit price must be positive for ingredient %s", reqItem.IngredientID)
		}

		quantity := reqItem.Quantity
		if quantity.LessThanOrEqual(decimal.Zero) && reqItem.DisplayQuantity != nil && reqItem.DisplayUnit != "" {
			converted, err := units.Convert(*reqItem.DisplayQuantity, reqItem.DisplayUnit, ingredient.Unit)
			if err != nil {
				return nil, errorf(CodeInvalidItem, "cannot convert %s to %s for ingredient %s", reqItem.DisplayUnit, ingredient.Unit, reqItem.IngredientID)
			}
			quantity = converted
		}
		if quantity.LessThanOrEqual(decimal.Zero) {
			return nil, errorf(CodeInvalidItem, "quantity must be positive for ingredient %s", reqItem.IngredientID)
		}

		var totalPrice decimal.Decimal
		switch {
		case reqItem.TotalPrice != nil:
			totalPrice = *reqItem.TotalPrice
			if totalPrice.LessThanOrEqual(decimal.Zero) {
				return nil, errorf(CodeInvalidTotalPrice, "total price must be positive for ingredient %s", reqItem.IngredientID)
			}
		case reqItem.DisplayQuantity != nil:
			totalPrice = reqItem.DisplayQuantity.Mul(unitPrice)
		default:
			totalPrice = quantity.Mul(unitPrice)
		}

		items = append(items, domain.PurchaseInvoiceItem{
			IngredientID:    reqItem.IngredientID,
			IngredientName:  ingredient.Name,
			Quantity:        quantity,
			UnitPrice:       unitPrice,
			TotalPrice:      totalPrice,
			DisplayQuantity: reqItem.DisplayQuantity,
			DisplayUnit:     strings.TrimSpace(reqItem.DisplayUnit),
		})
	}
	return items, nil
}

func (s *Service) GetPurchaseInvoice(ctx context.Context, id string) (*domain.PurchaseInvoice, error) {
	if strings.TrimSpace(id) == "" {
		return nil, newError(CodeInvalidValue, "invoice id is required")
	}
	invoice, err := s.repo.GetPurchaseInvoiceByID(ctx, id)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return invoice, nil
}

func (s *Service) ListPurchaseInvoices(ctx context.Context, filter domain.InvoiceFilter, page int, pageSize int) (*domain.InvoicePage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	result, err := s.repo.ListPurchaseInvoices(ctx, filter, page, pageSize)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return result, nil
}

func (s *Service) UpdatePurchaseInvoice(ctx context.Context, id string, req domain.PurchaseInvoiceUpdateRequest) (*domain.PurchaseInvoice, error) {
	if strings.TrimSpace(id) == "" {
		return nil, newError(CodeInvalidValue, "invoice id is required")
	}

	existing, err := s.repo.GetPurchaseInvoiceByID(ctx, id)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	if err := requireEditPermission(ctx, existing.CreatedBy); err != nil {
		return nil, err
	}

	updated := *existing
	changedFields := make([]string, 0, 8)

	if req.InvoiceNumber != nil {
		number := strings.TrimSpace(*req.InvoiceNumber)
		if number == "" {
			return nil, newError(CodeInvalidValue, "invoice_number cannot be empty")
		}
		if number != existing.InvoiceNumber {
			changedFields = append(changedFields, "invoice_number")
		}
		updated.InvoiceNumber = number
	}
	if req.SupplierName != nil {
		supplier := strings.TrimSpace(*req.SupplierName)
		if supplier == "" {
			return nil, newError(CodeInvalidValue, "supplier_name cannot be empty")
		}
		if supplier != existing.SupplierName {
			changedFields = append(changedFields, "supplier_name")
		}
		updated.SupplierName = supplier
	}
	if req.PurchaseDate != nil {
		parsed, err := parseDate(*req.PurchaseDate)
		if err != nil {
			return nil, err
		}
		updated.PurchaseDate = parsed
		changedFields = append(changedFields, "purchase_date")
	}
	if req.PaymentStatus != nil {
		status, ok := domain.ParsePaymentStatus(*req.PaymentStatus)
		if !ok {
			return nil, errorf(CodeInvalidStatus, "unknown payment status: %s", *req.PaymentStatus)
		}
		if status != existing.PaymentStatus {
			changedFields = append(changedFields, "payment_status")
		}
		updated.PaymentStatus = status
	}
	if req.PaymentMethod != nil {
		updated.PaymentMethod = optional(*req.PaymentMethod)
		changedFields = append(changedFields, "payment_method")
	}
	if req.PaymentDate != nil {
		parsed, err := parseDate(*req.PaymentDate)
		if err != nil {
			return nil, err
		}
		updated.PaymentDate = parsed
		changedFields = append(changedFields, "payment_date")
	}
	if req.Notes != nil {
		updated.Notes = optional(*req.Notes)
		changedFields = append(changedFields, "notes")
	}

	// a paid invoice always carries a payment date
	if updated.PaymentStatus == domain.StatusPaid && updated.PaymentDate == nil {
		now := time.Now().UTC()
		updated.PaymentDate = &now
		if updated.PaymentStatus != existing.PaymentStatus {
			changedFields = append(changedFields, "payment_date")
		}
	}

	replaceItems := len(req.Items) > 0
	if replaceItems {
		items, err := s.buildInvoiceItems(ctx, req.Items)
		if err != nil {
			return nil, err
		}
		updated.Items = items
		total := decimal.Zero
		for _, item := range items {
			total = total.Add(item.TotalPrice)
		}
		updated.TotalAmount = total
		changedFields = append(changedFields, "items", "total_amount")
	}

	if len(changedFields) == 0 {
		return nil, newError(CodeNoUpdates, "no fields to update")
	}

	actor, _ := ActorFromContext(ctx)
	audit := domain.InvoiceAuditEntry{
		ChangedBy:     actor.Username,
		OldValues:     snapshotInvoice(*existing),
		NewValues:     snapshotInvoice(updated),
		ChangedFields: changedFields,
	}

	saved, err := s.repo.UpdatePurchaseInvoice(ctx, updated, replaceItems, audit)
	if err != nil {
		return nil, wrapStoreError(err)
	}

	s.invalidateLedgerCache(ctx)
	s.events.Publish(ctx, events.PurchaseUpdated, saved)
	return saved, nil
}

// DeletePurchaseInvoice reverses the stock contributed by the invoice
// and removes its linked ledger entries. Rejected outright when any
// ingredient no longer has enough stock to give back.
func (s *Service) DeletePurchaseInvoice(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return newError(CodeInvalidValue, "invoice id is required")
	}
	if err := requireRole(ctx, "admin"); err != nil {
		return err
	}

	existing, err := s.repo.GetPurchaseInvoiceByID(ctx, id)
	if err != nil {
		return wrapStoreError(err)
	}

	actor, _ := ActorFromContext(ctx)
	audit := domain.InvoiceAuditEntry{
		ChangedBy: actor.Username,
		OldValues: snapshotInvoice(*existing),
	}

	if err := s.repo.DeletePurchaseInvoice(ctx, id, audit); err != nil {
		return wrapStoreError(err)
	}

	s.invalidateLedgerCache(ctx)
	s.events.Publish(ctx, events.PurchaseDeleted, map[string]string{"invoice_id": id})
	return nil
}

func (s *Service) ListInvoiceAudit(ctx context.Context, invoiceID string, limit int) ([]domain.InvoiceAuditEntry, error) {
	if strings.TrimSpace(invoiceID) == "" {
		return nil, newError(CodeInvalidValue, "invoice id is required")
	}
	if limit < 1 {
		limit = 50
	}
	entries, err := s.repo.ListInvoiceAudit(ctx, invoiceID, limit)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return entries, nil
}

func snapshotInvoice(invoice domain.PurchaseInvoice) json.RawMessage {
	payload, err := json.Marshal(invoice)
	if err != nil {
		log.Printf("[audit] WARN: failed to snapshot invoice %s: %v", invoice.ID, err)
		return nil
	}
	return payload
}
