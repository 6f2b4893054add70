package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"livrocaixa/backend/internal/domain"
	"livrocaixa/backend/internal/store"
	"livrocaixa/backend/internal/xid"
)

const ruleColumns = `
	id, name, description, type, category, subcategory, value,
	recurrence_type, recurrence_day, sender_receiver, notes, is_active,
	created_at, updated_at`

func scanRule(scanner interface{ Scan(dest ...any) error }) (*domain.RecurrenceRule, error) {
	var rule domain.RecurrenceRule
	var description, category, subcategory, senderReceiver, notes sql.NullString

	err := scanner.Scan(&rule.ID, &rule.Name, &description, &rule.Type, &category, &subcategory,
		&rule.Value, &rule.RecurrenceType, &rule.RecurrenceDay, &senderReceiver, &notes,
		&rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rule.Description = stringPtr(description)
	rule.Category = stringPtr(category)
	rule.Subcategory = stringPtr(subcategory)
	rule.SenderReceiver = stringPtr(senderReceiver)
	rule.Notes = stringPtr(notes)
	rule.CreatedAt = rule.CreatedAt.UTC()
	rule.UpdatedAt = rule.UpdatedAt.UTC()
	return &rule, nil
}

func (s *Store) CreateRecurrenceRule(ctx context.Context, rule domain.RecurrenceRule) (*domain.RecurrenceRule, error) {
	if rule.ID == "" {
		rule.ID = xid.New("rr")
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = rule.CreatedAt
	rule.IsActive = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recurrence_rules (
			id, name, description, type, category, subcategory, value,
			recurrence_type, recurrence_day, sender_receiver, notes, is_active,
			created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, rule.ID, rule.Name, nullString(rule.Description), rule.Type, nullString(rule.Category),
		nullString(rule.Subcategory), rule.Value, rule.RecurrenceType, rule.RecurrenceDay,
		nullString(rule.SenderReceiver), nullString(rule.Notes), rule.IsActive,
		rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return nil, err
	}

	created := rule
	return &created, nil
}

func (s *Store) GetRecurrenceRuleByID(ctx context.Context, id string) (*domain.RecurrenceRule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT`+ruleColumns+` FROM recurrence_rules WHERE id = $1`, id)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return rule, nil
}

func (s *Store) ListRecurrenceRules(ctx context.Context, activeOnly bool) ([]domain.RecurrenceRule, error) {
	query := `SELECT` + ruleColumns + ` FROM recurrence_rules`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]domain.RecurrenceRule, 0, 32)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rules, nil
}

func (s *Store) UpdateRecurrenceRule(ctx context.Context, rule domain.RecurrenceRule) (*domain.RecurrenceRule, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE recurrence_rules
		SET name = $2, description = $3, category = $4, subcategory = $5, value = $6,
		    recurrence_type = $7, recurrence_day = $8, sender_receiver = $9, notes = $10,
		    is_active = $11, updated_at = now()
		WHERE id = $1
	`, rule.ID, rule.Name, nullString(rule.Description), nullString(rule.Category),
		nullString(rule.Subcategory), rule.Value, rule.RecurrenceType, rule.RecurrenceDay,
		nullString(rule.SenderReceiver), nullString(rule.Notes), rule.IsActive)
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

	return s.GetRecurrenceRuleByID(ctx, rule.ID)
}

func (s *Store) DeactivateRecurrenceRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE recurrence_rules
		SET is_active = false, updated_at = now()
		WHERE id = $1
	`, id)
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

// InsertGeneratedMovement claims (rule_id, period_key) through the
// table's unique constraint before writing the movement, so concurrent
// generator runs cannot double-book a period.
func (s *Store) InsertGeneratedMovement(ctx context.Context, ruleID string, periodKey string, m domain.FinancialMovement) (bool, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if m.ID == "" {
		m.ID = xid.New("fm")
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO recurrence_generated (rule_id, period_key, movement_id, created_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (rule_id, period_key) DO NOTHING
	`, ruleID, periodKey, m.ID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := insertMovement(ctx, tx, m); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidArgument
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, name, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
	`, username, user.Name, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidArgument
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, COALESCE(name, ''), password, role, active, created_at
		FROM app_users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Name, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidArgument
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
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
