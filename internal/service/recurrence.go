package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"livrocaixa/backend/internal/domain"
	"livrocaixa/backend/internal/events"
)

func validateRecurrence(recurrenceType domain.RecurrenceType, day int) error {
	if !recurrenceType.Valid() {
		return errorf(CodeInvalidRecurrenceType, "unknown recurrence type: %s", recurrenceType)
	}
	switch recurrenceType {
	case domain.RecurrenceMonthly:
		if day < 1 || day > 31 {
			return newError(CodeInvalidRecurrenceDay, "monthly recurrence day must be between 1 and 31")
		}
	case domain.RecurrenceWeekly:
		if day < 1 || day > 7 {
			return newError(CodeInvalidRecurrenceDay, "weekly recurrence day must be between 1 and 7")
		}
	case domain.RecurrenceYearly:
		if day < 1 || day > 365 {
			return newError(CodeInvalidRecurrenceDay, "yearly recurrence day must be between 1 and 365")
		}
	}
	return nil
}

func defaultRuleCategory(movementType domain.MovementType) string {
	if movementType == domain.MovementTax {
		return domain.CategoryTaxes
	}
	return domain.CategoryFixedCosts
}

func (s *Service) CreateRecurrenceRule(ctx context.Context, req domain.RecurrenceRuleCreateRequest) (*domain.RecurrenceRule, error) {
	if err := requireRole(ctx, "admin", "manager"); err != nil {
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, newError(CodeInvalidValue, "rule name is required")
	}
	movementType := domain.MovementType(strings.ToUpper(strings.TrimSpace(req.Type)))
	if movementType != domain.MovementExpense && movementType != domain.MovementTax {
		return nil, errorf(CodeInvalidType, "recurrence rules only support EXPENSE and TAX, got %s", req.Type)
	}
	if req.Value.LessThanOrEqual(decimal.Zero) {
		return nil, newError(CodeInvalidValue, "value must be greater than zero")
	}
	recurrenceType := domain.RecurrenceType(strings.ToUpper(strings.TrimSpace(req.RecurrenceType)))
	if err := validateRecurrence(recurrenceType, req.RecurrenceDay); err != nil {
		return nil, err
	}

	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = defaultRuleCategory(movementType)
	}
	subcategory := strings.TrimSpace(req.Subcategory)
	if subcategory == "" {
		subcategory = req.Name
	}

	rule := domain.RecurrenceRule{
		Name:           req.Name,
		Description:    optional(req.Description),
		Type:           movementType,
		Category:       &category,
		Subcategory:    &subcategory,
		Value:          req.Value,
		RecurrenceType: recurrenceType,
		RecurrenceDay:  req.RecurrenceDay,
		SenderReceiver: optional(req.SenderReceiver),
		Notes:          optional(req.Notes),
	}

	created, err := s.repo.CreateRecurrenceRule(ctx, rule)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return created, nil
}

func (s *Service) GetRecurrenceRule(ctx context.Context, id string) (*domain.RecurrenceRule, error) {
	if strings.TrimSpace(id) == "" {
		return nil, newError(CodeInvalidValue, "rule id is required")
	}
	rule, err := s.repo.GetRecurrenceRuleByID(ctx, id)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return rule, nil
}

func (s *Service) ListRecurrenceRules(ctx context.Context, activeOnly bool) ([]domain.RecurrenceRule, error) {
	rules, err := s.repo.ListRecurrenceRules(ctx, activeOnly)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return rules, nil
}

func (s *Service) UpdateRecurrenceRule(ctx context.Context, id string, req domain.RecurrenceRuleUpdateRequest) (*domain.RecurrenceRule, error) {
	if strings.TrimSpace(id) == "" {
		return nil, newError(CodeInvalidValue, "rule id is required")
	}
	if err := requireRole(ctx, "admin", "manager"); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetRecurrenceRuleByID(ctx, id)
	if err != nil {
		return nil, wrapStoreError(err)
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, newError(CodeInvalidValue, "rule name cannot be empty")
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = optional(*req.Description)
	}
	if req.Category != nil {
		updated.Category = optional(*req.Category)
	}
	if req.Subcategory != nil {
		updated.Subcategory = optional(*req.Subcategory)
	}
	if req.Value != nil {
		if req.Value.LessThanOrEqual(decimal.Zero) {
			return nil, newError(CodeInvalidValue, "value must be greater than zero")
		}
		updated.Value = *req.Value
	}
	if req.RecurrenceType != nil {
		updated.RecurrenceType = domain.RecurrenceType(strings.ToUpper(strings.TrimSpace(*req.RecurrenceType)))
	}
	if req.RecurrenceDay != nil {
		updated.RecurrenceDay = *req.RecurrenceDay
	}
	if err := validateRecurrence(updated.RecurrenceType, updated.RecurrenceDay); err != nil {
		return nil, err
	}
	if req.SenderReceiver != nil {
		updated.SenderReceiver = optional(*req.SenderReceiver)
	}
	if req.Notes != nil {
		updated.Notes = optional(*req.Notes)
	}
	if req.IsActive != nil {
		updated.IsActive = *req.IsActive
	}

	saved, err := s.repo.UpdateRecurrenceRule(ctx, updated)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return saved, nil
}

func (s *Service) DeactivateRecurrenceRule(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return newError(CodeInvalidValue, "rule id is required")
	}
	if err := requireRole(ctx, "admin"); err != nil {
		return err
	}
	if err := s.repo.DeactivateRecurrenceRule(ctx, id); err != nil {
		return wrapStoreError(err)
	}
	return nil
}

// GenerateRecurringMovements runs every active rule for the given
// period and books the pending movements that are not already claimed.
// Re-running the same period is a no-op thanks to the per-rule period
// claim, so the scheduler can fire it as often as it likes.
func (s *Service) GenerateRecurringMovements(ctx context.Context, year int, month int, week int) (*domain.GenerateResult, error) {
	if err := requireRole(ctx, "admin", "manager"); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	if month < 1 || month > 12 {
		return nil, newError(CodeInvalidDate, "month must be between 1 and 12")
	}
	if week == 0 {
		_, week = now.ISOWeek()
	}
	if week < 1 || week > 53 {
		return nil, newError(CodeInvalidDate, "week must be between 1 and 53")
	}

	rules, err := s.repo.ListRecurrenceRules(ctx, true)
	if err != nil {
		return nil, wrapStoreError(err)
	}

	result := &domain.GenerateResult{}
	for _, rule := range rules {
		dueDate, periodKey := ruleOccurrence(rule, year, month, week)

		movement := domain.FinancialMovement{
			Type:              rule.Type,
			Value:             rule.Value,
			Category:          rule.Category,
			Subcategory:       rule.Subcategory,
			Description:       rule.Name + " - " + string(rule.Type),
			MovementDate:      &dueDate,
			PaymentStatus:     domain.StatusPending,
			SenderReceiver:    rule.SenderReceiver,
			RelatedEntityType: stringRef(domain.RelatedRecurrenceRule),
			RelatedEntityID:   stringRef(rule.ID),
			Notes:             rule.Notes,
			CreatedBy:         "system",
		}

		inserted, err := s.repo.InsertGeneratedMovement(ctx, rule.ID, periodKey, movement)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("rule %s (%s): %v", rule.Name, rule.ID, err))
			continue
		}
		if inserted {
			result.Generated++
		}
	}

	if result.Generated > 0 {
		s.invalidateLedgerCache(ctx)
	}
	s.events.Publish(ctx, events.RecurrenceRunFinished, result)
	return result, nil
}

// ruleOccurrence resolves the due date and the idempotency period key
// of a rule for the requested generation window.
func ruleOccurrence(rule domain.RecurrenceRule, year int, month int, week int) (time.Time, string) {
	switch rule.RecurrenceType {
	case domain.RecurrenceWeekly:
		monday := isoWeekStart(year, week)
		due := monday.AddDate(0, 0, rule.RecurrenceDay-1)
		return due, fmt.Sprintf("%04d-W%02d", year, week)
	case domain.RecurrenceYearly:
		due := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, rule.RecurrenceDay-1)
		lastDay := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
		if due.After(lastDay) {
			due = lastDay
		}
		return due, fmt.Sprintf("%04d", year)
	default: // monthly
		day := rule.RecurrenceDay
		if last := daysInMonth(year, month); day > last {
			day = last
		}
		due := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		return due, fmt.Sprintf("%04d-%02d", year, month)
	}
}

func daysInMonth(year int, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// isoWeekStart returns the Monday of the given ISO week. January 4th
// is always inside week 1.
func isoWeekStart(year int, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := int(jan4.Weekday())
	if offset == 0 {
		offset = 7
	}
	monday := jan4.AddDate(0, 0, 1-offset)
	return monday.AddDate(0, 0, (week-1)*7)
}

func stringRef(value string) *string {
	return &value
}
