package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"livrocaixa/backend/internal/domain"
	"livrocaixa/backend/internal/store"
	"livrocaixa/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so movement writes can
// join a caller's transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const movementColumns = `
	m.id, m.type, m.value, m.category, m.subcategory, m.description,
	m.movement_date, m.payment_status, m.payment_method, m.sender_receiver,
	m.related_entity_type, m.related_entity_id, m.notes,
	m.payment_gateway_id, m.transaction_id, m.bank_account,
	m.reconciled, m.reconciled_at, m.created_by, COALESCE(u.name, ''),
	m.created_at, m.updated_at`

const movementFrom = `
	FROM financial_movements m
	LEFT JOIN app_users u ON u.username = m.created_by`

func scanMovement(scanner interface{ Scan(dest ...any) error }) (*domain.FinancialMovement, error) {
	var m domain.FinancialMovement
	var category, subcategory, paymentMethod, senderReceiver sql.NullString
	var relatedType, relatedID, notes, gatewayID, transactionID, bankAccount sql.NullString
	var movementDate, reconciledAt sql.NullTime

	err := scanner.Scan(
		&m.ID, &m.Type, &m.Value, &category, &subcategory, &m.Description,
		&movementDate, &m.PaymentStatus, &paymentMethod, &senderReceiver,
		&relatedType, &relatedID, &notes,
		&gatewayID, &transactionID, &bankAccount,
		&m.Reconciled, &reconciledAt, &m.CreatedBy, &m.CreatedByName,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Category = stringPtr(category)
	m.Subcategory = stringPtr(subcategory)
	m.PaymentMethod = stringPtr(paymentMethod)
	m.SenderReceiver = stringPtr(senderReceiver)
	m.RelatedEntityType = stringPtr(relatedType)
	m.RelatedEntityID = stringPtr(relatedID)
	m.Notes = stringPtr(notes)
	m.PaymentGatewayID = stringPtr(gatewayID)
	m.TransactionID = stringPtr(transactionID)
	m.BankAccount = stringPtr(bankAccount)
	m.MovementDate = timePtr(movementDate)
	m.ReconciledAt = timePtr(reconciledAt)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

func insertMovement(ctx context.Context, q dbtx, m domain.FinancialMovement) (*domain.FinancialMovement, error) {
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
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = m.CreatedAt

	_, err := q.ExecContext(ctx, `
		INSERT INTO financial_movements (
			id, type, value, category, subcategory, description,
			movement_date, payment_status, payment_method, sender_receiver,
			related_entity_type, related_entity_id, notes,
			payment_gateway_id, transaction_id, bank_account,
			reconciled, reconciled_at, created_by, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, m.ID, m.Type, m.Value, nullString(m.Category), nullString(m.Subcategory), m.Description,
		nullTimeVal(m.MovementDate), m.PaymentStatus, nullString(m.PaymentMethod), nullString(m.SenderReceiver),
		nullString(m.RelatedEntityType), nullString(m.RelatedEntityID), nullString(m.Notes),
		nullString(m.PaymentGatewayID), nullString(m.TransactionID), nullString(m.BankAccount),
		m.Reconciled, nullTimeVal(m.ReconciledAt), m.CreatedBy, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

func (s *Store) CreateMovement(ctx context.Context, m domain.FinancialMovement) (*domain.FinancialMovement, error) {
	return insertMovement(ctx, s.db, m)
}

func (s *Store) GetMovementByID(ctx context.Context, id string) (*domain.FinancialMovement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT`+movementColumns+movementFrom+` WHERE m.id = $1`, id)
	m, err := scanMovement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func movementFilterConditions(filter domain.MovementFilter) ([]string, []any) {
	conditions := make([]string, 0, 8)
	args := make([]any, 0, 8)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.StartDate != nil {
		conditions = append(conditions, "m.movement_date >= "+arg(*filter.StartDate))
	}
	if filter.EndDate != nil {
		// exclusive upper bound one day past the requested end
		conditions = append(conditions, "m.movement_date < "+arg(filter.EndDate.AddDate(0, 0, 1)))
	}
	if filter.Type != "" {
		conditions = append(conditions, "m.type = "+arg(filter.Type))
	}
	if filter.Category != "" {
		conditions = append(conditions, "m.category = "+arg(filter.Category))
	}
	if filter.PaymentStatus != "" {
		conditions = append(conditions, "m.payment_status = "+arg(filter.PaymentStatus))
	}
	if filter.RelatedEntityType != "" {
		conditions = append(conditions, "m.related_entity_type = "+arg(filter.RelatedEntityType))
	}
	if filter.RelatedEntityID != "" {
		conditions = append(conditions, "m.related_entity_id = "+arg(filter.RelatedEntityID))
	}
	if filter.PaymentGatewayID != "" {
		conditions = append(conditions, "m.payment_gateway_id = "+arg(filter.PaymentGatewayID))
	}
	if filter.TransactionID != "" {
		conditions = append(conditions, "m.transaction_id = "+arg(filter.TransactionID))
	}
	if filter.BankAccount != "" {
		conditions = append(conditions, "m.bank_account = "+arg(filter.BankAccount))
	}
	if filter.Reconciled != nil {
		conditions = append(conditions, "m.reconciled = "+arg(*filter.Reconciled))
	}
	return conditions, args
}

func (s *Store) ListMovements(ctx context.Context, filter domain.MovementFilter, page int, pageSize int) (*domain.MovementPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 100
	}

	conditions, args := movementFilterConditions(filter)
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+movementFrom+where, args...).Scan(&total)
	if err != nil {
		return nil, err
	}

	offset := (page - 1) * pageSize
	listArgs := append(append([]any{}, args...), pageSize, offset)
	rows, err := s.db.QueryContext(ctx, `SELECT`+movementColumns+movementFrom+where+fmt.Sprintf(`
		ORDER BY m.movement_date DESC NULLS LAST, m.created_at DESC
		LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2), listArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.FinancialMovement, 0, pageSize)
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &domain.MovementPage{Movements: movements, Page: page, PageSize: pageSize, Total: total}, nil
}

func (s *Store) UpdateMovement(ctx context.Context, id string, patch domain.MovementPatch) (*domain.FinancialMovement, error) {
	if patch.Empty() {
		return nil, store.ErrNoUpdates
	}

	sets := make([]string, 0, 14)
	args := make([]any, 0, 14)
	set := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Type != nil {
		set("type", *patch.Type)
	}
	if patch.Value != nil {
		set("value", *patch.Value)
	}
	if patch.Category != nil {
		set("category", nullIfEmpty(*patch.Category))
	}
	if patch.Subcategory != nil {
		set("subcategory", nullIfEmpty(*patch.Subcategory))
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.MovementDate != nil {
		set("movement_date", nullTimeVal(*patch.MovementDate))
	}
	if patch.PaymentStatus != nil {
		set("payment_status", *patch.PaymentStatus)
	}
	if patch.PaymentMethod != nil {
		set("payment_method", nullIfEmpty(*patch.PaymentMethod))
	}
	if patch.SenderReceiver != nil {
		set("sender_receiver", nullIfEmpty(*patch.SenderReceiver))
	}
	if patch.Notes != nil {
		set("notes", nullIfEmpty(*patch.Notes))
	}
	if patch.PaymentGatewayID != nil {
		set("payment_gateway_id", nullIfEmpty(*patch.PaymentGatewayID))
	}
	if patch.TransactionID != nil {
		set("transaction_id", nullIfEmpty(*patch.TransactionID))
	}
	if patch.BankAccount != nil {
		set("bank_account", nullIfEmpty(*patch.BankAccount))
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE financial_movements
		SET %s, updated_at = now()
		WHERE id = $%d
	`, strings.Join(sets, ", "), len(args)), args...)
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

	return s.GetMovementByID(ctx, id)
}

func (s *Store) UpdateMovementPaymentStatus(ctx context.Context, id string, status domain.PaymentStatus, movementDate *time.Time) (*domain.FinancialMovement, error) {
	if !status.Valid() {
		return nil, store.ErrInvalidArgument
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var relatedType, relatedID sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT related_entity_type, related_entity_id
		FROM financial_movements
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&relatedType, &relatedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE financial_movements
		SET payment_status = $2, movement_date = $3, updated_at = now()
		WHERE id = $1
	`, id, status, nullTimeVal(movementDate))
	if err != nil {
		return nil, err
	}

	// A movement owned by a purchase invoice keeps the invoice's payment
	// state in sync inside the same transaction.
	if relatedType.Valid && relatedType.String == domain.RelatedPurchaseInvoice && relatedID.Valid {
		res, err := tx.ExecContext(ctx, `
			UPDATE purchase_invoices
			SET payment_status = $2,
			    payment_date = CASE WHEN $2 = 'Paid' THEN COALESCE(payment_date, $3) ELSE payment_date END,
			    updated_at = now()
			WHERE id = $1
		`, relatedID.String, status, nullTimeVal(movementDate))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrSyncFailed, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrSyncFailed, err)
		}
		if affected == 0 {
			return nil, store.ErrSyncFailed
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetMovementByID(ctx, id)
}

func (s *Store) ReconcileMovement(ctx context.Context, id string, reconciled bool, at time.Time) (*domain.FinancialMovement, error) {
	var reconciledAt any
	if reconciled {
		reconciledAt = at.UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE financial_movements
		SET reconciled = $2, reconciled_at = $3, updated_at = now()
		WHERE id = $1
	`, id, reconciled, reconciledAt)
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

	return s.GetMovementByID(ctx, id)
}

func (s *Store) DeleteMovement(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM financial_movements WHERE id = $1`, id)
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
	return nil
}

func (s *Store) CashFlowTotals(ctx context.Context, from *time.Time, to *time.Time, includePending bool) (domain.CashFlowTotals, error) {
	totals := domain.CashFlowTotals{
		Revenue:       decimal.Zero,
		Expense:       decimal.Zero,
		Cmv:           decimal.Zero,
		Tax:           decimal.Zero,
		PendingAmount: decimal.Zero,
	}

	conditions := []string{"payment_status = 'Paid'", "movement_date IS NOT NULL"}
	args := make([]any, 0, 2)
	if from != nil {
		args = append(args, *from)
		conditions = append(conditions, fmt.Sprintf("movement_date >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, to.AddDate(0, 0, 1))
		conditions = append(conditions, fmt.Sprintf("movement_date < $%d", len(args)))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT type, COALESCE(SUM(value), 0)
		FROM financial_movements
		WHERE `+strings.Join(conditions, " AND ")+`
		GROUP BY type
	`, args...)
	if err != nil {
		return totals, err
	}
	defer rows.Close()

	for rows.Next() {
		var movementType domain.MovementType
		var sum decimal.Decimal
		if err := rows.Scan(&movementType, &sum); err != nil {
			return totals, err
		}
		switch movementType {
		case domain.MovementRevenue:
			totals.Revenue = sum
		case domain.MovementExpense:
			totals.Expense = sum
		case domain.MovementCMV:
			totals.Cmv = sum
		case domain.MovementTax:
			totals.Tax = sum
		}
	}
	if err := rows.Err(); err != nil {
		return totals, err
	}

	if includePending {
		pendingConditions := []string{"payment_status = 'Pending'", "type IN ('EXPENSE','TAX')"}
		pendingArgs := make([]any, 0, 2)
		if from != nil {
			pendingArgs = append(pendingArgs, *from)
			pendingConditions = append(pendingConditions, fmt.Sprintf("COALESCE(movement_date, created_at) >= $%d", len(pendingArgs)))
		}
		if to != nil {
			pendingArgs = append(pendingArgs, to.AddDate(0, 0, 1))
			pendingConditions = append(pendingConditions, fmt.Sprintf("COALESCE(movement_date, created_at) < $%d", len(pendingArgs)))
		}

		err := s.db.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(value), 0)
			FROM financial_movements
			WHERE `+strings.Join(pendingConditions, " AND "), pendingArgs...).Scan(&totals.PendingAmount)
		if err != nil {
			return totals, err
		}
	}

	return totals, nil
}

func (s *Store) ReconciliationReport(ctx context.Context, filter domain.ReconciliationFilter) (*domain.ReconciliationReport, error) {
	conditions := []string{"m.payment_status = 'Paid'"}
	args := make([]any, 0, 4)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.StartDate != nil {
		conditions = append(conditions, "m.movement_date >= "+arg(*filter.StartDate))
	}
	if filter.EndDate != nil {
		conditions = append(conditions, "m.movement_date < "+arg(filter.EndDate.AddDate(0, 0, 1)))
	}
	if filter.Reconciled != nil {
		conditions = append(conditions, "m.reconciled = "+arg(*filter.Reconciled))
	}
	if filter.PaymentGatewayID != "" {
		conditions = append(conditions, "m.payment_gateway_id = "+arg(filter.PaymentGatewayID))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT`+movementColumns+movementFrom+`
		WHERE `+strings.Join(conditions, " AND ")+`
		ORDER BY m.movement_date DESC NULLS LAST, m.created_at DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report := &domain.ReconciliationReport{
		ReconciledAmount:   decimal.Zero,
		UnreconciledAmount: decimal.Zero,
		Movements:          make([]domain.FinancialMovement, 0, 64),
	}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		report.Movements = append(report.Movements, *m)
		report.TotalCount++
		if m.Reconciled {
			report.ReconciledCount++
			report.ReconciledAmount = report.ReconciledAmount.Add(m.Value)
		} else {
			report.UnreconciledCount++
			report.UnreconciledAmount = report.UnreconciledAmount.Add(m.Value)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return report, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func nullString(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTimeVal(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC()
}
