package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"livrocaixa/backend/internal/domain"
	"livrocaixa/backend/internal/store"
	"livrocaixa/backend/internal/xid"
)

// Store is the in-memory mirror of the postgres repository. It backs
// unit tests and lets the server run without a DATABASE_URL.
type Store struct {
	mu          sync.RWMutex
	movements   map[string]*domain.FinancialMovement
	invoices    map[string]*domain.PurchaseInvoice
	ingredients map[string]*domain.Ingredient
	products    map[string]domain.Product
	rules       map[string]*domain.RecurrenceRule
	generated   map[string]string
	audit       []domain.InvoiceAuditEntry
	feeSettings domain.PaymentFeeSettings
	users       map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_MANAGER_PASSWORD;
// hardcoded dev defaults are used otherwise, with a warning.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_MANAGER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_MANAGER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		name     string
		password string
		role     string
	}{
		{"admin", "Administrador", adminPwd, "admin"},
		{"manager", "Gerente", managerPwd, "manager"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Name:      u.name,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func NewSeeded() *Store {
	ingredients := []domain.Ingredient{
		{ID: "ing-farinha", Name: "Farinha de Trigo", Unit: "g", CurrentStock: dec("8000"), MinStockThreshold: dec("2000"), Price: dec("6.50"), PurchaseUnit: "kg", BasePortionQuantity: dec("150"), BasePortionUnit: "g", Active: true},
		{ID: "ing-queijo", Name: "Queijo Mussarela", Unit: "g", CurrentStock: dec("5000"), MinStockThreshold: dec("1500"), Price: dec("42.00"), PurchaseUnit: "kg", BasePortionQuantity: dec("120"), BasePortionUnit: "g", Active: true},
		{ID: "ing-molho", Name: "Molho de Tomate", Unit: "ml", CurrentStock: dec("6000"), MinStockThreshold: dec("1000"), Price: dec("12.00"), PurchaseUnit: "l", BasePortionQuantity: dec("90"), BasePortionUnit: "ml", Active: true},
		{ID: "ing-carne", Name: "Carne Moída", Unit: "g", CurrentStock: dec("4000"), MinStockThreshold: dec("1200"), Price: dec("38.90"), PurchaseUnit: "kg", BasePortionQuantity: dec("180"), BasePortionUnit: "g", Active: true},
		{ID: "ing-ovo", Name: "Ovos", Unit: "un", CurrentStock: dec("60"), MinStockThreshold: dec("24"), Price: dec("14.40"), PurchaseUnit: "dz", BasePortionQuantity: dec("2"), BasePortionUnit: "un", Active: true},
		{ID: "ing-oleo", Name: "Óleo de Soja", Unit: "ml", CurrentStock: dec("900"), MinStockThreshold: dec("1000"), Price: dec("9.80"), PurchaseUnit: "l", BasePortionQuantity: dec("30"), BasePortionUnit: "ml", Active: true},
	}

	ingredientMap := make(map[string]*domain.Ingredient, len(ingredients))
	for idx := range ingredients {
		ing := ingredients[idx]
		ing.StockStatus = domain.StockStatusFor(ing.CurrentStock, ing.MinStockThreshold)
		ingredientMap[ing.ID] = &ing
	}

	costQueijo := dec("18.50")
	products := map[string]domain.Product{
		"prod-pizza": {ID: "prod-pizza", Name: "Pizza Margherita", Recipe: []domain.RecipePortion{
			{IngredientID: "ing-farinha", Portions: dec("2")},
			{IngredientID: "ing-queijo", Portions: dec("1")},
			{IngredientID: "ing-molho", Portions: dec("1")},
		}},
		"prod-lasanha": {ID: "prod-lasanha", Name: "Lasanha à Bolonhesa", CostPrice: &costQueijo},
		"prod-omelete": {ID: "prod-omelete", Name: "Omelete da Casa", Recipe: []domain.RecipePortion{
			{IngredientID: "ing-ovo", Portions: dec("1")},
			{IngredientID: "ing-queijo", Portions: dec("0.5")},
		}},
	}

	return &Store{
		movements:   make(map[string]*domain.FinancialMovement),
		invoices:    make(map[string]*domain.PurchaseInvoice),
		ingredients: ingredientMap,
		products:    products,
		rules:       make(map[string]*domain.RecurrenceRule),
		generated:   make(map[string]string),
		audit:       make([]domain.InvoiceAuditEntry, 0, 64),
		feeSettings: domain.PaymentFeeSettings{
			CreditFeePercent:   dec("3.5"),
			DebitFeePercent:    dec("2.0"),
			PixFeePercent:      dec("0.99"),
			IfoodFeePercent:    dec("12.0"),
			UberEatsFeePercent: dec("14.0"),
		},
		users: seedUsers(),
	}
}

func (s *Store) CreateMovement(_ context.Context, m domain.FinancialMovement) (*domain.FinancialMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertMovementLocked(m)
}

func (s *Store) insertMovementLocked(m domain.FinancialMovement) (*domain.FinancialMovement, error) {
	if !m.Type.Valid() || m.Value.LessThanOrEqual(decimal.Zero) || m.Description == "" {
		return nil, store.ErrInvalidArgument
	}
	if m.PaymentStatus == "" {
		m.PaymentStatus = domain.StatusPending
	}
	if !m.PaymentStatus.Valid() {
		return nil, store.ErrInvalidArgument
	}
	if m.ID == "" {
		m.ID = xid.New("fm")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.UpdatedAt = m.CreatedAt
	if user, ok := s.users[m.CreatedBy]; ok {
		m.CreatedByName = user.Name
	}

	stored := m
	s.movements[m.ID] = &stored
	result := m
	return &result, nil
}

func (s *Store) GetMovementByID(_ context.Context, id string) (*domain.FinancialMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.movements[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	result := *m
	return &result, nil
}

func matchesFilter(m *domain.FinancialMovement, filter domain.MovementFilter) bool {
	if filter.StartDate != nil && (m.MovementDate == nil || m.MovementDate.Before(*filter.StartDate)) {
		return false
	}
	if filter.EndDate != nil && (m.MovementDate == nil || !m.MovementDate.Before(filter.EndDate.AddDate(0, 0, 1))) {
		return false
	}
	if filter.Type != "" && string(m.Type) != filter.Type {
		return false
	}
	if filter.Category != "" && (m.Category == nil || *m.Category != filter.Category) {
		return false
	}
	if filter.PaymentStatus != "" && string(m.PaymentStatus) != filter.PaymentStatus {
		return false
	}
	if filter.RelatedEntityType != "" && (m.RelatedEntityType == nil || *m.RelatedEntityType != filter.RelatedEntityType) {
		return false
	}
	if filter.RelatedEntityID != "" && (m.RelatedEntityID == nil || *m.RelatedEntityID != filter.RelatedEntityID) {
		return false
	}
	if filter.PaymentGatewayID != "" && (m.PaymentGatewayID == nil || *m.PaymentGatewayID != filter.PaymentGatewayID) {
		return false
	}
	if filter.TransactionID != "" && (m.TransactionID == nil || *m.TransactionID != filter.TransactionID) {
		return false
	}
	if filter.BankAccount != "" && (m.BankAccount == nil || *m.BankAccount != filter.BankAccount) {
		return false
	}
	if filter.Reconciled != nil && m.Reconciled != *filter.Reconciled {
		return false
	}
	return true
}

func sortMovements(movements []domain.FinancialMovement) {
	slices.SortFunc(movements, func(a, b domain.FinancialMovement) int {
		// movement_date descending, nulls last, then created_at descending
		switch {
		case a.MovementDate == nil && b.MovementDate != nil:
			return 1
		case a.MovementDate != nil && b.MovementDate == nil:
			return -1
		case a.MovementDate != nil && b.MovementDate != nil && !a.MovementDate.Equal(*b.MovementDate):
			if a.MovementDate.After(*b.MovementDate) {
				return -1
			}
			return 1
		}
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
}

func (s *Store) ListMovements(_ context.Context, filter domain.MovementFilter, page int, pageSize int) (*domain.MovementPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 100
	}

	s.mu.RLock()
	matched := make([]domain.FinancialMovement, 0, len(s.movements))
	for _, m := range s.movements {
		if matchesFilter(m, filter) {
			matched = append(matched, *m)
		}
	}
	s.mu.RUnlock()

	sortMovements(matched)

	total := len(matched)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &domain.MovementPage{
		Movements: matched[start:end],
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
	}, nil
}

func (s *Store) UpdateMovement(_ context.Context, id string, patch domain.MovementPatch) (*domain.FinancialMovement, error) {
	if patch.Empty() {
		return nil, store.ErrNoUpdates
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.movements[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	if patch.Type != nil {
		m.Type = *patch.Type
	}
	if patch.Value != nil {
		m.Value = *patch.Value
	}
	if patch.Category != nil {
		m.Category = clonePtr(nilIfEmpty(*patch.Category))
	}
	if patch.Subcategory != nil {
		m.Subcategory = clonePtr(nilIfEmpty(*patch.Subcategory))
	}
	if patch.Description != nil {
		m.Description = *patch.Description
	}
	if patch.MovementDate != nil {
		m.MovementDate = cloneTime(*patch.MovementDate)
	}
	if patch.PaymentStatus != nil {
		m.PaymentStatus = *patch.PaymentStatus
	}
	if patch.PaymentMethod != nil {
		m.PaymentMethod = clonePtr(nilIfEmpty(*patch.PaymentMethod))
	}
	if patch.SenderReceiver != nil {
		m.SenderReceiver = clonePtr(nilIfEmpty(*patch.SenderReceiver))
	}
	if patch.Notes != nil {
		m.Notes = clonePtr(nilIfEmpty(*patch.Notes))
	}
	if patch.PaymentGatewayID != nil {
		m.PaymentGatewayID = clonePtr(nilIfEmpty(*patch.PaymentGatewayID))
	}
	if patch.TransactionID != nil {
		m.TransactionID = clonePtr(nilIfEmpty(*patch.TransactionID))
	}
	if patch.BankAccount != nil {
		m.BankAccount = clonePtr(nilIfEmpty(*patch.BankAccount))
	}
	m.UpdatedAt = time.Now().UTC()

	result := *m
	return &result, nil
}

func (s *Store) UpdateMovementPaymentStatus(_ context.Context, id string, status domain.PaymentStatus, movementDate *time.Time) (*domain.FinancialMovement, error) {
	if !status.Valid() {
		return nil, store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.movements[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	m.PaymentStatus = status
	m.MovementDate = cloneTime(movementDate)
	m.UpdatedAt = time.Now().UTC()

	if m.RelatedEntityType != nil && *m.RelatedEntityType == domain.RelatedPurchaseInvoice && m.RelatedEntityID != nil {
		inv, ok := s.invoices[*m.RelatedEntityID]
		if !ok {
			return nil, store.ErrSyncFailed
		}
		inv.PaymentStatus = status
		if status == domain.StatusPaid && inv.PaymentDate == nil {
			inv.PaymentDate = cloneTime(movementDate)
		}
		inv.UpdatedAt = m.UpdatedAt
	}

	result := *m
	return &result, nil
}

func (s *Store) ReconcileMovement(_ context.Context, id string, reconciled bool, at time.Time) (*domain.FinancialMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.movements[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	m.Reconciled = reconciled
	if reconciled {
		t := at.UTC()
		m.ReconciledAt = &t
	} else {
		m.ReconciledAt = nil
	}
	m.UpdatedAt = time.Now().UTC()

	result := *m
	return &result, nil
}

func (s *Store) DeleteMovement(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.movements[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.movements, id)
	return nil
}

func (s *Store) CashFlowTotals(_ context.Context, from *time.Time, to *time.Time, includePending bool) (domain.CashFlowTotals, error) {
	totals := domain.CashFlowTotals{
		Revenue:       decimal.Zero,
		Expense:       decimal.Zero,
		Cmv:           decimal.Zero,
		Tax:           decimal.Zero,
		PendingAmount: decimal.Zero,
	}

	inRange := func(t time.Time) bool {
		if from != nil && t.Before(*from) {
			return false
		}
		if to != nil && !t.Before(to.AddDate(0, 0, 1)) {
			return false
		}
		return true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.movements {
		if m.PaymentStatus == domain.StatusPaid && m.MovementDate != nil && inRange(*m.MovementDate) {
			switch m.Type {
			case domain.MovementRevenue:
				totals.Revenue = totals.Revenue.Add(m.Value)
			case domain.MovementExpense:
				totals.Expense = totals.Expense.Add(m.Value)
			case domain.MovementCMV:
				totals.Cmv = totals.Cmv.Add(m.Value)
			case domain.MovementTax:
				totals.Tax = totals.Tax.Add(m.Value)
			}
			continue
		}
		if includePending && m.PaymentStatus == domain.StatusPending &&
			(m.Type == domain.MovementExpense || m.Type == domain.MovementTax) {
			ref := m.CreatedAt
			if m.MovementDate != nil {
				ref = *m.MovementDate
			}
			if inRange(ref) {
				totals.PendingAmount = totals.PendingAmount.Add(m.Value)
			}
		}
	}

	return totals, nil
}

func (s *Store) ReconciliationReport(_ context.Context, filter domain.ReconciliationFilter) (*domain.ReconciliationReport, error) {
	s.mu.RLock()
	matched := make([]domain.FinancialMovement, 0, len(s.movements))
	for _, m := range s.movements {
		if m.PaymentStatus != domain.StatusPaid {
			continue
		}
		if filter.StartDate != nil && (m.MovementDate == nil || m.MovementDate.Before(*filter.StartDate)) {
			continue
		}
		if filter.EndDate != nil && (m.MovementDate == nil || !m.MovementDate.Before(filter.EndDate.AddDate(0, 0, 1))) {
			continue
		}
		if filter.Reconciled != nil && m.Reconciled != *filter.Reconciled {
			continue
		}
		if filter.PaymentGatewayID != "" && (m.PaymentGatewayID == nil || *m.PaymentGatewayID != filter.PaymentGatewayID) {
			continue
		}
		matched = append(matched, *m)
	}
	s.mu.RUnlock()

	sortMovements(matched)

	report := &domain.ReconciliationReport{
		ReconciledAmount:   decimal.Zero,
		UnreconciledAmount: decimal.Zero,
		Movements:          matched,
	}
	for _, m := range matched {
		report.TotalCount++
		if m.Reconciled {
			report.ReconciledCount++
			report.ReconciledAmount = report.ReconciledAmount.Add(m.Value)
		} else {
			report.UnreconciledCount++
			report.UnreconciledAmount = report.UnreconciledAmount.Add(m.Value)
		}
	}

	return report, nil
}

func (s *Store) CreatePurchaseInvoice(_ context.Context, invoice domain.PurchaseInvoice, expense domain.FinancialMovement, audit domain.InvoiceAuditEntry) (*domain.PurchaseInvoice, error) {
	if invoice.InvoiceNumber == "" || invoice.SupplierName == "" || len(invoice.Items) == 0 {
		return nil, store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	missing := missingIngredients(s.ingredients, invoice.Items)
	if len(missing) > 0 {
		return nil, &store.MissingIngredientsError{IDs: missing}
	}

	if invoice.ID == "" {
		invoice.ID = xid.New("inv")
	}
	now := time.Now().UTC()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = invoice.CreatedAt
	if user, ok := s.users[invoice.CreatedBy]; ok {
		invoice.CreatedByName = user.Name
	}
	for idx := range invoice.Items {
		if invoice.Items[idx].ID == "" {
			invoice.Items[idx].ID = xid.New("pii")
		}
		invoice.Items[idx].IngredientName = s.ingredients[invoice.Items[idx].IngredientID].Name
	}

	for _, item := range invoice.Items {
		s.applyStockDeltaLocked(item.IngredientID, item.Quantity)
	}

	relatedType := domain.RelatedPurchaseInvoice
	relatedID := invoice.ID
	expense.RelatedEntityType = &relatedType
	expense.RelatedEntityID = &relatedID
	if _, err := s.insertMovementLocked(expense); err != nil {
		return nil, err
	}

	audit.InvoiceID = invoice.ID
	audit.ActionType = domain.AuditCreate
	s.appendAuditLocked(audit)

	stored := invoice
	stored.Items = slices.Clone(invoice.Items)
	s.invoices[invoice.ID] = &stored

	result := invoice
	result.Items = slices.Clone(invoice.Items)
	return &result, nil
}

func missingIngredients(ingredients map[string]*domain.Ingredient, items []domain.PurchaseInvoiceItem) []string {
	seen := make(map[string]struct{}, len(items))
	missing := make([]string, 0)
	for _, item := range items {
		if _, dup := seen[item.IngredientID]; dup {
			continue
		}
		seen[item.IngredientID] = struct{}{}
		ing, ok := ingredients[item.IngredientID]
		if !ok || !ing.Active {
			missing = append(missing, item.IngredientID)
		}
	}
	sort.Strings(missing)
	return missing
}

func (s *Store) applyStockDeltaLocked(ingredientID string, delta decimal.Decimal) {
	ing := s.ingredients[ingredientID]
	ing.CurrentStock = ing.CurrentStock.Add(delta)
	ing.StockStatus = domain.StockStatusFor(ing.CurrentStock, ing.MinStockThreshold)
}

func (s *Store) appendAuditLocked(entry domain.InvoiceAuditEntry) {
	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.audit = append(s.audit, entry)
}

func (s *Store) GetPurchaseInvoiceByID(_ context.Context, id string) (*domain.PurchaseInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	result := *inv
	result.Items = slices.Clone(inv.Items)
	return &result, nil
}

func (s *Store) ListPurchaseInvoices(_ context.Context, filter domain.InvoiceFilter, page int, pageSize int) (*domain.InvoicePage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 100
	}

	s.mu.RLock()
	matched := make([]domain.PurchaseInvoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		if filter.StartDate != nil && (inv.PurchaseDate == nil || inv.PurchaseDate.Before(*filter.StartDate)) {
			continue
		}
		if filter.EndDate != nil && (inv.PurchaseDate == nil || !inv.PurchaseDate.Before(filter.EndDate.AddDate(0, 0, 1))) {
			continue
		}
		if filter.SupplierName != "" && !strings.Contains(strings.ToUpper(inv.SupplierName), strings.ToUpper(filter.SupplierName)) {
			continue
		}
		if filter.PaymentStatus != "" && string(inv.PaymentStatus) != filter.PaymentStatus {
			continue
		}
		clone := *inv
		clone.Items = slices.Clone(inv.Items)
		matched = append(matched, clone)
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b domain.PurchaseInvoice) int {
		switch {
		case a.PurchaseDate == nil && b.PurchaseDate != nil:
			return 1
		case a.PurchaseDate != nil && b.PurchaseDate == nil:
			return -1
		case a.PurchaseDate != nil && b.PurchaseDate != nil && !a.PurchaseDate.Equal(*b.PurchaseDate):
			if a.PurchaseDate.After(*b.PurchaseDate) {
				return -1
			}
			return 1
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})

	total := len(matched)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &domain.InvoicePage{Invoices: matched[start:end], Page: page, PageSize: pageSize, Total: total}, nil
}

func (s *Store) UpdatePurchaseInvoice(_ context.Context, invoice domain.PurchaseInvoice, replaceItems bool, audit domain.InvoiceAuditEntry) (*domain.PurchaseInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.invoices[invoice.ID]
	if !ok {
		return nil, store.ErrNotFound
	}

	if replaceItems {
		missing := missingIngredients(s.ingredients, invoice.Items)
		if len(missing) > 0 {
			return nil, &store.MissingIngredientsError{IDs: missing}
		}
		for _, item := range current.Items {
			if _, ok := s.ingredients[item.IngredientID]; !ok {
				return nil, fmt.Errorf("%w: ingredient %s", store.ErrStockReversal, item.IngredientID)
			}
			s.applyStockDeltaLocked(item.IngredientID, item.Quantity.Neg())
		}
		for idx := range invoice.Items {
			if invoice.Items[idx].ID == "" {
				invoice.Items[idx].ID = xid.New("pii")
			}
			invoice.Items[idx].IngredientName = s.ingredients[invoice.Items[idx].IngredientID].Name
			s.applyStockDeltaLocked(invoice.Items[idx].IngredientID, invoice.Items[idx].Quantity)
		}
		current.Items = slices.Clone(invoice.Items)
	}

	current.InvoiceNumber = invoice.InvoiceNumber
	current.SupplierName = invoice.SupplierName
	current.TotalAmount = invoice.TotalAmount
	current.PurchaseDate = cloneTime(invoice.PurchaseDate)
	current.PaymentStatus = invoice.PaymentStatus
	current.PaymentMethod = clonePtr(invoice.PaymentMethod)
	current.PaymentDate = cloneTime(invoice.PaymentDate)
	current.Notes = clonePtr(invoice.Notes)
	current.UpdatedAt = time.Now().UTC()

	synced := false
	for _, m := range s.movements {
		if m.RelatedEntityType != nil && *m.RelatedEntityType == domain.RelatedPurchaseInvoice &&
			m.RelatedEntityID != nil && *m.RelatedEntityID == invoice.ID {
			m.Value = invoice.TotalAmount
			m.PaymentStatus = invoice.PaymentStatus
			if invoice.PaymentStatus == domain.StatusPaid && m.MovementDate == nil {
				if invoice.PaymentDate != nil {
					m.MovementDate = cloneTime(invoice.PaymentDate)
				} else {
					now := time.Now().UTC()
					m.MovementDate = &now
				}
			}
			m.SenderReceiver = clonePtr(&invoice.SupplierName)
			m.UpdatedAt = current.UpdatedAt
			synced = true
		}
	}
	if !synced {
		return nil, store.ErrSyncFailed
	}

	audit.InvoiceID = invoice.ID
	audit.ActionType = domain.AuditUpdate
	s.appendAuditLocked(audit)

	result := *current
	result.Items = slices.Clone(current.Items)
	return &result, nil
}

func (s *Store) DeletePurchaseInvoice(_ context.Context, id string, audit domain.InvoiceAuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return store.ErrNotFound
	}

	required := make(map[string]decimal.Decimal, len(inv.Items))
	for _, item := range inv.Items {
		required[item.IngredientID] = required[item.IngredientID].Add(item.Quantity)
	}

	shortages := make([]store.StockShortage, 0)
	for ingredientID, qty := range required {
		ing, ok := s.ingredients[ingredientID]
		if !ok {
			return fmt.Errorf("%w: ingredient %s", store.ErrStockReversal, ingredientID)
		}
		if ing.CurrentStock.LessThan(qty) {
			shortages = append(shortages, store.StockShortage{
				IngredientID: ingredientID,
				Name:         ing.Name,
				Available:    ing.CurrentStock,
				Required:     qty,
			})
		}
	}
	if len(shortages) > 0 {
		sort.Slice(shortages, func(i, j int) bool { return shortages[i].IngredientID < shortages[j].IngredientID })
		return &store.InsufficientStockError{Shortages: shortages}
	}

	for _, item := range inv.Items {
		s.applyStockDeltaLocked(item.IngredientID, item.Quantity.Neg())
	}

	for movementID, m := range s.movements {
		if m.RelatedEntityType != nil && *m.RelatedEntityType == domain.RelatedPurchaseInvoice &&
			m.RelatedEntityID != nil && *m.RelatedEntityID == id {
			delete(s.movements, movementID)
		}
	}

	audit.InvoiceID = id
	audit.ActionType = domain.AuditDelete
	s.appendAuditLocked(audit)

	delete(s.invoices, id)
	return nil
}

func (s *Store) ListInvoiceAudit(_ context.Context, invoiceID string, limit int) ([]domain.InvoiceAuditEntry, error) {
	if limit < 1 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.InvoiceAuditEntry, 0, limit)
	for idx := len(s.audit) - 1; idx >= 0 && len(entries) < limit; idx-- {
		if s.audit[idx].InvoiceID == invoiceID {
			entries = append(entries, s.audit[idx])
		}
	}
	return entries, nil
}

func (s *Store) GetIngredientsByIDs(_ context.Context, ids []string) (map[string]domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Ingredient, len(ids))
	for _, id := range ids {
		if ing, ok := s.ingredients[id]; ok && ing.Active {
			result[id] = *ing
		}
	}
	return result, nil
}

func (s *Store) ListIngredients(_ context.Context, onlyBelowThreshold bool) ([]domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ingredients := make([]domain.Ingredient, 0, len(s.ingredients))
	for _, ing := range s.ingredients {
		if !ing.Active {
			continue
		}
		if onlyBelowThreshold && ing.StockStatus == domain.StockStatusOK {
			continue
		}
		ingredients = append(ingredients, *ing)
	}

	slices.SortFunc(ingredients, func(a, b domain.Ingredient) int {
		if cmp := a.CurrentStock.Cmp(b.CurrentStock); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.Name, b.Name)
	})
	return ingredients, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			clone := p
			clone.Recipe = slices.Clone(p.Recipe)
			result[id] = clone
		}
	}
	return result, nil
}

func (s *Store) GetPaymentFeeSettings(_ context.Context) (domain.PaymentFeeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feeSettings, nil
}

func (s *Store) SettleOrder(_ context.Context, revenue domain.FinancialMovement, cmv *domain.FinancialMovement, fee *domain.FinancialMovement) (*domain.OrderSettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &domain.OrderSettlementResult{TotalCmv: decimal.Zero, FeeAmount: decimal.Zero}

	created, err := s.insertMovementLocked(revenue)
	if err != nil {
		return nil, err
	}
	result.RevenueMovementID = created.ID

	if cmv != nil {
		created, err := s.insertMovementLocked(*cmv)
		if err != nil {
			delete(s.movements, result.RevenueMovementID)
			return nil, err
		}
		result.CmvMovementID = &created.ID
		result.TotalCmv = created.Value
	}
	if fee != nil {
		created, err := s.insertMovementLocked(*fee)
		if err != nil {
			delete(s.movements, result.RevenueMovementID)
			if result.CmvMovementID != nil {
				delete(s.movements, *result.CmvMovementID)
			}
			return nil, err
		}
		result.FeeMovementID = &created.ID
		result.FeeAmount = created.Value
	}

	return result, nil
}

func (s *Store) CreateRecurrenceRule(_ context.Context, rule domain.RecurrenceRule) (*domain.RecurrenceRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == "" {
		rule.ID = xid.New("rr")
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = rule.CreatedAt
	rule.IsActive = true

	stored := rule
	s.rules[rule.ID] = &stored
	result := rule
	return &result, nil
}

func (s *Store) GetRecurrenceRuleByID(_ context.Context, id string) (*domain.RecurrenceRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	result := *rule
	return &result, nil
}

func (s *Store) ListRecurrenceRules(_ context.Context, activeOnly bool) ([]domain.RecurrenceRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]domain.RecurrenceRule, 0, len(s.rules))
	for _, rule := range s.rules {
		if activeOnly && !rule.IsActive {
			continue
		}
		rules = append(rules, *rule)
	}
	slices.SortFunc(rules, func(a, b domain.RecurrenceRule) int {
		return strings.Compare(a.Name, b.Name)
	})
	return rules, nil
}

func (s *Store) UpdateRecurrenceRule(_ context.Context, rule domain.RecurrenceRule) (*domain.RecurrenceRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rules[rule.ID]
	if !ok {
		return nil, store.ErrNotFound
	}

	rule.CreatedAt = current.CreatedAt
	rule.UpdatedAt = time.Now().UTC()
	stored := rule
	s.rules[rule.ID] = &stored

	result := rule
	return &result, nil
}

func (s *Store) DeactivateRecurrenceRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[id]
	if !ok {
		return store.ErrNotFound
	}
	rule.IsActive = false
	rule.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) InsertGeneratedMovement(_ context.Context, ruleID string, periodKey string, m domain.FinancialMovement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ruleID + "|" + periodKey
	if _, exists := s.generated[key]; exists {
		return false, nil
	}

	created, err := s.insertMovementLocked(m)
	if err != nil {
		return false, err
	}
	s.generated[key] = created.ID
	return true, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return store.ErrInvalidArgument
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Username = username
	s.users[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}

func nilIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func clonePtr(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := v.UTC()
	return &t
}
