package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"livrocaixa/backend/internal/domain"
	"livrocaixa/backend/internal/store"
	"livrocaixa/backend/internal/xid"
)

const invoiceColumns = `
	i.id, i.invoice_number, i.supplier_name, i.total_amount, i.purchase_date,
	i.payment_status, i.payment_method, i.payment_date, i.notes,
	i.created_by, COALESCE(u.name, ''), i.created_at, i.updated_at`

const invoiceFrom = `
	FROM purchase_invoices i
	LEFT JOIN app_users u ON u.username = i.created_by`

func scanInvoice(scanner interface{ Scan(dest ...any) error }) (*domain.PurchaseInvoice, error) {
	var inv domain.PurchaseInvoice
	var purchaseDate, paymentDate sql.NullTime
	var paymentMethod, notes sql.NullString

	err := scanner.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.SupplierName, &inv.TotalAmount, &purchaseDate,
		&inv.PaymentStatus, &paymentMethod, &paymentDate, &notes,
		&inv.CreatedBy, &inv.CreatedByName, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.PurchaseDate = timePtr(purchaseDate)
	inv.PaymentDate = timePtr(paymentDate)
	inv.PaymentMethod = stringPtr(paymentMethod)
	inv.Notes = stringPtr(notes)
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	return &inv, nil
}

type lockedIngredient struct {
	id        string
	name      string
	stock     decimal.Decimal
	threshold decimal.Decimal
}

// lockIngredients selects the referenced rows FOR UPDATE. Missing active
// ingredients are reported all at once.
func lockIngredients(ctx context.Context, tx *sql.Tx, ids []string) (map[string]*lockedIngredient, error) {
	unique := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			unique[id] = struct{}{}
		}
	}
	ordered := make([]string, 0, len(unique))
	for id := range unique {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, current_stock, min_stock_threshold
		FROM ingredients
		WHERE active = true AND id = ANY($1)
		FOR UPDATE
	`, ordered)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locked := make(map[string]*lockedIngredient, len(ordered))
	for rows.Next() {
		var ing lockedIngredient
		if err := rows.Scan(&ing.id, &ing.name, &ing.stock, &ing.threshold); err != nil {
			return nil, err
		}
		locked[ing.id] = &ing
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	missing := make([]string, 0)
	for _, id := range ordered {
		if _, ok := locked[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &store.MissingIngredientsError{IDs: missing}
	}

	return locked, nil
}

func adjustStock(ctx context.Context, tx *sql.Tx, ing *lockedIngredient, delta decimal.Decimal, reversal bool) error {
	newStock := ing.stock.Add(delta)
	status := domain.StockStatusFor(newStock, ing.threshold)

	res, err := tx.ExecContext(ctx, `
		UPDATE ingredients
		SET current_stock = $2, stock_status = $3, updated_at = now()
		WHERE id = $1 AND active = true
	`, ing.id, newStock, status)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if reversal {
			return fmt.Errorf("%w: ingredient %s", store.ErrStockReversal, ing.id)
		}
		return fmt.Errorf("%w: ingredient %s", store.ErrStockUpdate, ing.id)
	}

	ing.stock = newStock
	return nil
}

func insertInvoiceItems(ctx context.Context, tx *sql.Tx, invoiceID string, items []domain.PurchaseInvoiceItem) error {
	for idx := range items {
		item := &items[idx]
		if item.ID == "" {
			item.ID = xid.New("pii")
		}
		var displayQty any
		if item.DisplayQuantity != nil {
			displayQty = *item.DisplayQuantity
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_invoice_items (
				id, invoice_id, ingredient_id, quantity, unit_price, total_price,
				display_quantity, display_unit
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, item.ID, invoiceID, item.IngredientID, item.Quantity, item.UnitPrice, item.TotalPrice,
			displayQty, nullIfEmpty(item.DisplayUnit))
		if err != nil {
			return err
		}
	}
	return nil
}

func insertAuditEntry(ctx context.Context, q dbtx, entry domain.InvoiceAuditEntry) error {
	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	changedFields, err := json.Marshal(entry.ChangedFields)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO invoice_audit_log (
			id, invoice_id, action_type, changed_by, old_values, new_values,
			changed_fields, notes, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.InvoiceID, entry.ActionType, entry.ChangedBy,
		nullJSON(entry.OldValues), nullJSON(entry.NewValues),
		changedFields, nullIfEmpty(entry.Notes), entry.CreatedAt)
	return err
}

func (s *Store) CreatePurchaseInvoice(ctx context.Context, invoice domain.PurchaseInvoice, expense domain.FinancialMovement, audit domain.InvoiceAuditEntry) (*domain.PurchaseInvoice, error) {
	if invoice.InvoiceNumber == "" || invoice.SupplierName == "" || len(invoice.Items) == 0 {
		return nil, store.ErrInvalidArgument
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]string, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		ids = append(ids, item.IngredientID)
	}
	locked, err := lockIngredients(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	if invoice.ID == "" {
		invoice.ID = xid.New("inv")
	}
	now := time.Now().UTC()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = invoice.CreatedAt

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_invoices (
			id, invoice_number, supplier_name, total_amount, purchase_date,
			payment_status, payment_method, payment_date, notes,
			created_by, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, invoice.ID, invoice.InvoiceNumber, invoice.SupplierName, invoice.TotalAmount,
		nullTimeVal(invoice.PurchaseDate), invoice.PaymentStatus, nullString(invoice.PaymentMethod),
		nullTimeVal(invoice.PaymentDate), nullString(invoice.Notes),
		invoice.CreatedBy, invoice.CreatedAt, invoice.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidArgument
		}
		return nil, err
	}

	if err := insertInvoiceItems(ctx, tx, invoice.ID, invoice.Items); err != nil {
		return nil, err
	}
	for _, item := range invoice.Items {
		if err := adjustStock(ctx, tx, locked[item.IngredientID], item.Quantity, false); err != nil {
			return nil, err
		}
	}

	relatedType := domain.RelatedPurchaseInvoice
	relatedID := invoice.ID
	expense.RelatedEntityType = &relatedType
	expense.RelatedEntityID = &relatedID
	if _, err := insertMovement(ctx, tx, expense); err != nil {
		return nil, err
	}

	audit.InvoiceID = invoice.ID
	audit.ActionType = domain.AuditCreate
	if err := insertAuditEntry(ctx, tx, audit); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetPurchaseInvoiceByID(ctx, invoice.ID)
}

func (s *Store) GetPurchaseInvoiceByID(ctx context.Context, id string) (*domain.PurchaseInvoice, error) {
	row := s.db.QueryRowContext(ctx, `SELECT`+invoiceColumns+invoiceFrom+` WHERE i.id = $1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.invoiceItems(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	inv.Items = items[id]
	if inv.Items == nil {
		inv.Items = []domain.PurchaseInvoiceItem{}
	}
	return inv, nil
}

func (s *Store) invoiceItems(ctx context.Context, invoiceIDs []string) (map[string][]domain.PurchaseInvoiceItem, error) {
	result := make(map[string][]domain.PurchaseInvoiceItem, len(invoiceIDs))
	if len(invoiceIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT pi.id, pi.invoice_id, pi.ingredient_id, COALESCE(ing.name, ''),
		       pi.quantity, pi.unit_price, pi.total_price, pi.display_quantity, pi.display_unit
		FROM purchase_invoice_items pi
		LEFT JOIN ingredients ing ON ing.id = pi.ingredient_id
		WHERE pi.invoice_id = ANY($1)
		ORDER BY pi.id
	`, invoiceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.PurchaseInvoiceItem
		var invoiceID string
		var displayQty decimal.NullDecimal
		var displayUnit sql.NullString
		err := rows.Scan(&item.ID, &invoiceID, &item.IngredientID, &item.IngredientName,
			&item.Quantity, &item.UnitPrice, &item.TotalPrice, &displayQty, &displayUnit)
		if err != nil {
			return nil, err
		}
		if displayQty.Valid {
			q := displayQty.Decimal
			item.DisplayQuantity = &q
		}
		item.DisplayUnit = displayUnit.String
		result[invoiceID] = append(result[invoiceID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) ListPurchaseInvoices(ctx context.Context, filter domain.InvoiceFilter, page int, pageSize int) (*domain.InvoicePage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 100
	}

	conditions := make([]string, 0, 4)
	args := make([]any, 0, 4)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.StartDate != nil {
		conditions = append(conditions, "i.purchase_date >= "+arg(*filter.StartDate))
	}
	if filter.EndDate != nil {
		conditions = append(conditions, "i.purchase_date < "+arg(filter.EndDate.AddDate(0, 0, 1)))
	}
	if filter.SupplierName != "" {
		conditions = append(conditions, "UPPER(i.supplier_name) LIKE "+arg("%"+strings.ToUpper(filter.SupplierName)+"%"))
	}
	if filter.PaymentStatus != "" {
		conditions = append(conditions, "i.payment_status = "+arg(filter.PaymentStatus))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+invoiceFrom+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	offset := (page - 1) * pageSize
	listArgs := append(append([]any{}, args...), pageSize, offset)
	rows, err := s.db.QueryContext(ctx, `SELECT`+invoiceColumns+invoiceFrom+where+fmt.Sprintf(`
		ORDER BY i.purchase_date DESC NULLS LAST, i.created_at DESC
		LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2), listArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.PurchaseInvoice, 0, pageSize)
	ids := make([]string, 0, pageSize)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
		ids = append(ids, inv.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemsByInvoice, err := s.invoiceItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for idx := range invoices {
		invoices[idx].Items = itemsByInvoice[invoices[idx].ID]
		if invoices[idx].Items == nil {
			invoices[idx].Items = []domain.PurchaseInvoiceItem{}
		}
	}

	return &domain.InvoicePage{Invoices: invoices, Page: page, PageSize: pageSize, Total: total}, nil
}

func (s *Store) UpdatePurchaseInvoice(ctx context.Context, invoice domain.PurchaseInvoice, replaceItems bool, audit domain.InvoiceAuditEntry) (*domain.PurchaseInvoice, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	oldItems, err := lockInvoiceItems(ctx, tx, invoice.ID)
	if err != nil {
		return nil, err
	}

	if replaceItems {
		ids := make([]string, 0, len(oldItems)+len(invoice.Items))
		for _, item := range oldItems {
			ids = append(ids, item.IngredientID)
		}
		for _, item := range invoice.Items {
			ids = append(ids, item.IngredientID)
		}
		locked, err := lockIngredients(ctx, tx, ids)
		if err != nil {
			return nil, err
		}

		for _, item := range oldItems {
			if err := adjustStock(ctx, tx, locked[item.IngredientID], item.Quantity.Neg(), true); err != nil {
				return nil, err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM purchase_invoice_items WHERE invoice_id = $1`, invoice.ID); err != nil {
			return nil, err
		}
		if err := insertInvoiceItems(ctx, tx, invoice.ID, invoice.Items); err != nil {
			return nil, err
		}
		for _, item := range invoice.Items {
			if err := adjustStock(ctx, tx, locked[item.IngredientID], item.Quantity, false); err != nil {
				return nil, err
			}
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE purchase_invoices
		SET invoice_number = $2, supplier_name = $3, total_amount = $4, purchase_date = $5,
		    payment_status = $6, payment_method = $7, payment_date = $8, notes = $9,
		    updated_at = now()
		WHERE id = $1
	`, invoice.ID, invoice.InvoiceNumber, invoice.SupplierName, invoice.TotalAmount,
		nullTimeVal(invoice.PurchaseDate), invoice.PaymentStatus, nullString(invoice.PaymentMethod),
		nullTimeVal(invoice.PaymentDate), nullString(invoice.Notes))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	// keep the linked expense in step with the invoice
	res, err = tx.ExecContext(ctx, `
		UPDATE financial_movements
		SET value = $2, payment_status = $3,
		    movement_date = CASE WHEN $3 = 'Paid' THEN COALESCE($4, movement_date, now()) ELSE movement_date END,
		    sender_receiver = $5, updated_at = now()
		WHERE related_entity_type = $6 AND related_entity_id = $1
	`, invoice.ID, invoice.TotalAmount, invoice.PaymentStatus, nullTimeVal(invoice.PaymentDate),
		invoice.SupplierName, domain.RelatedPurchaseInvoice)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrSyncFailed, err)
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrSyncFailed, err)
	}
	if affected == 0 {
		return nil, store.ErrSyncFailed
	}

	audit.InvoiceID = invoice.ID
	audit.ActionType = domain.AuditUpdate
	if err := insertAuditEntry(ctx, tx, audit); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetPurchaseInvoiceByID(ctx, invoice.ID)
}

func lockInvoiceItems(ctx context.Context, tx *sql.Tx, invoiceID string) ([]domain.PurchaseInvoiceItem, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT true FROM purchase_invoices WHERE id = $1 FOR UPDATE`, invoiceID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, ingredient_id, quantity, unit_price, total_price
		FROM purchase_invoice_items
		WHERE invoice_id = $1
		ORDER BY id
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PurchaseInvoiceItem, 0, 8)
	for rows.Next() {
		var item domain.PurchaseInvoiceItem
		if err := rows.Scan(&item.ID, &item.IngredientID, &item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (s *Store) DeletePurchaseInvoice(ctx context.Context, id string, audit domain.InvoiceAuditEntry) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	items, err := lockInvoiceItems(ctx, tx, id)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.IngredientID)
	}
	locked, err := lockIngredients(ctx, tx, ids)
	if err != nil {
		return err
	}

	// reversing must never drive stock negative; validate everything
	// before touching any row
	shortages := make([]store.StockShortage, 0)
	required := make(map[string]decimal.Decimal, len(items))
	for _, item := range items {
		required[item.IngredientID] = required[item.IngredientID].Add(item.Quantity)
	}
	for ingredientID, qty := range required {
		ing := locked[ingredientID]
		if ing.stock.LessThan(qty) {
			shortages = append(shortages, store.StockShortage{
				IngredientID: ingredientID,
				Name:         ing.name,
				Available:    ing.stock,
				Required:     qty,
			})
		}
	}
	if len(shortages) > 0 {
		sort.Slice(shortages, func(i, j int) bool { return shortages[i].IngredientID < shortages[j].IngredientID })
		return &store.InsufficientStockError{Shortages: shortages}
	}

	for _, item := range items {
		if err := adjustStock(ctx, tx, locked[item.IngredientID], item.Quantity.Neg(), true); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM financial_movements
		WHERE related_entity_type = $1 AND related_entity_id = $2
	`, domain.RelatedPurchaseInvoice, id); err != nil {
		return err
	}

	audit.InvoiceID = id
	audit.ActionType = domain.AuditDelete
	// the audit trail must not block the deletion itself; a savepoint
	// keeps a failed insert from aborting the surrounding tx
	if _, err := tx.ExecContext(ctx, `SAVEPOINT audit_entry`); err != nil {
		return err
	}
	if err := insertAuditEntry(ctx, tx, audit); err != nil {
		log.Printf("[audit] WARN: failed to record invoice delete id=%s: %v", id, err)
		if _, err := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT audit_entry`); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM purchase_invoice_items WHERE invoice_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM purchase_invoices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	return tx.Commit()
}

func (s *Store) ListInvoiceAudit(ctx context.Context, invoiceID string, limit int) ([]domain.InvoiceAuditEntry, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, action_type, changed_by, old_values, new_values,
		       changed_fields, notes, created_at
		FROM invoice_audit_log
		WHERE invoice_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, invoiceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.InvoiceAuditEntry, 0, limit)
	for rows.Next() {
		var entry domain.InvoiceAuditEntry
		var oldValues, newValues, changedFields []byte
		var notes sql.NullString
		err := rows.Scan(&entry.ID, &entry.InvoiceID, &entry.ActionType, &entry.ChangedBy,
			&oldValues, &newValues, &changedFields, &notes, &entry.CreatedAt)
		if err != nil {
			return nil, err
		}
		entry.OldValues = oldValues
		entry.NewValues = newValues
		if len(changedFields) > 0 {
			if err := json.Unmarshal(changedFields, &entry.ChangedFields); err != nil {
				return nil, err
			}
		}
		entry.Notes = notes.String
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func (s *Store) GetIngredientsByIDs(ctx context.Context, ids []string) (map[string]domain.Ingredient, error) {
	result := make(map[string]domain.Ingredient, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, unit, current_stock, min_stock_threshold, stock_status,
		       price, purchase_unit, base_portion_quantity, base_portion_unit, active
		FROM ingredients
		WHERE active = true AND id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		ing, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		result[ing.ID] = *ing
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) ListIngredients(ctx context.Context, onlyBelowThreshold bool) ([]domain.Ingredient, error) {
	query := `
		SELECT id, name, unit, current_stock, min_stock_threshold, stock_status,
		       price, purchase_unit, base_portion_quantity, base_portion_unit, active
		FROM ingredients
		WHERE active = true`
	if onlyBelowThreshold {
		query += ` AND stock_status IN ('low', 'out_of_stock')`
	}
	query += ` ORDER BY current_stock ASC, name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ingredients := make([]domain.Ingredient, 0, 64)
	for rows.Next() {
		ing, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		ingredients = append(ingredients, *ing)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ingredients, nil
}

func scanIngredient(scanner interface{ Scan(dest ...any) error }) (*domain.Ingredient, error) {
	var ing domain.Ingredient
	err := scanner.Scan(&ing.ID, &ing.Name, &ing.Unit, &ing.CurrentStock, &ing.MinStockThreshold,
		&ing.StockStatus, &ing.Price, &ing.PurchaseUnit, &ing.BasePortionQuantity,
		&ing.BasePortionUnit, &ing.Active)
	if err != nil {
		return nil, err
	}
	return &ing, nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
