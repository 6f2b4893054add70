package service

import (
	"testing"

	"livrocaixa/backend/internal/domain"
)

func TestCreateRecurrenceRuleValidatesAndDefaults(t *testing.T) {
	svc, _ := newTestService()
	ctx := managerCtx()

	_, err := svc.CreateRecurrenceRule(employeeCtx("carlos"), domain.RecurrenceRuleCreateRequest{
		Name: "Aluguel", Type: "EXPENSE", Value: dec("3500"), RecurrenceType: "MONTHLY", RecurrenceDay: 5,
	})
	assertCode(t, err, CodePermissionDenied)

	_, err = svc.CreateRecurrenceRule(ctx, domain.RecurrenceRuleCreateRequest{
		Name: "Venda recorrente", Type: "REVENUE", Value: dec("100"), RecurrenceType: "MONTHLY", RecurrenceDay: 1,
	})
	assertCode(t, err, CodeInvalidType)

	_, err = svc.CreateRecurrenceRule(ctx, domain.RecurrenceRuleCreateRequest{
		Name: "Aluguel", Type: "EXPENSE", Value: dec("3500"), RecurrenceType: "DAILY", RecurrenceDay: 1,
	})
	assertCode(t, err, CodeInvalidRecurrenceType)

	_, err = svc.CreateRecurrenceRule(ctx, domain.RecurrenceRuleCreateRequest{
		Name: "Aluguel", Type: "EXPENSE", Value: dec("3500"), RecurrenceType: "MONTHLY", RecurrenceDay: 32,
	})
	assertCode(t, err, CodeInvalidRecurrenceDay)

	_, err = svc.CreateRecurrenceRule(ctx, domain.RecurrenceRuleCreateRequest{
		Name: "Faxina", Type: "EXPENSE", Value: dec("200"), RecurrenceType: "WEEKLY", RecurrenceDay: 8,
	})
	assertCode(t, err, CodeInvalidRecurrenceDay)

	rule, err := svc.CreateRecurrenceRule(ctx, domain.RecurrenceRuleCreateRequest{
		Name: "DAS", Type: "TAX", Value: dec("320"), RecurrenceType: "MONTHLY", RecurrenceDay: 20,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if rule.Category == nil || *rule.Category != domain.CategoryTaxes {
		t.Fatalf("expected default category %s for TAX, got %v", domain.CategoryTaxes, rule.Category)
	}
	if rule.Subcategory == nil || *rule.Subcategory != "DAS" {
		t.Fatalf("expected subcategory defaulted to rule name, got %v", rule.Subcategory)
	}
	if !rule.IsActive {
		t.Fatalf("expected new rule to be active")
	}
}

func TestGenerateRecurringMovementsIsIdempotent(t *testing.T) {
	svc, _ := newTestService()
	ctx := managerCtx()

	rule, err := svc.CreateRecurrenceRule(ctx, domain.RecurrenceRuleCreateRequest{
		Name: "Aluguel", Type: "EXPENSE", Value: dec("3500"), RecurrenceType: "MONTHLY", RecurrenceDay: 31,
	})
	if err != nil {
		t.Fatalf("create rule failed: %v", err)
	}

	result, err := svc.GenerateRecurringMovements(ctx, 2026, 2, 0)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if result.Generated != 1 {
		t.Fatalf("expected 1 generated movement, got %d", result.Generated)
	}

	again, err := svc.GenerateRecurringMovements(ctx, 2026, 2, 0)
	if err != nil {
		t.Fatalf("second generate failed: %v", err)
	}
	if again.Generated != 0 {
		t.Fatalf("expected re-run to generate nothing, got %d", again.Generated)
	}

	page, err := svc.ListMovements(ctx, domain.MovementFilter{
		RelatedEntityType: domain.RelatedRecurrenceRule,
		RelatedEntityID:   rule.ID,
	}, 1, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page.Movements) != 1 {
		t.Fatalf("expected a single generated movement, got %d", len(page.Movements))
	}

	movement := page.Movements[0]
	if movement.PaymentStatus != domain.StatusPending {
		t.Fatalf("expected generated movement pending, got %s", movement.PaymentStatus)
	}
	// Day 31 clamps to the end of a 28-day February.
	if movement.MovementDate == nil || movement.MovementDate.Format("2006-01-02") != "2026-02-28" {
		t.Fatalf("expected due date 2026-02-28, got %v", movement.MovementDate)
	}
	if movement.Description != "Aluguel - EXPENSE" {
		t.Fatalf("unexpected description: %s", movement.Description)
	}
	if movement.CreatedBy != "system" {
		t.Fatalf("expected created_by system, got %s", movement.CreatedBy)
	}
}

func TestGenerateRecurringMovementsSkipsInactiveRules(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	rule, err := svc.CreateRecurrenceRule(ctx, domain.RecurrenceRuleCreateRequest{
		Name: "Contador", Type: "EXPENSE", Value: dec("900"), RecurrenceType: "MONTHLY", RecurrenceDay: 10,
	})
	if err != nil {
		t.Fatalf("create rule failed: %v", err)
	}
	if err := svc.DeactivateRecurrenceRule(ctx, rule.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	result, err := svc.GenerateRecurringMovements(ctx, 2026, 3, 0)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if result.Generated != 0 {
		t.Fatalf("expected nothing generated from inactive rules, got %d", result.Generated)
	}
}

func TestGenerateRecurringMovementsValidatesPeriod(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	_, err := svc.GenerateRecurringMovements(ctx, 2026, 13, 0)
	assertCode(t, err, CodeInvalidDate)

	_, err = svc.GenerateRecurringMovements(ctx, 2026, 6, 54)
	assertCode(t, err, CodeInvalidDate)
}

func TestUpdateRecurrenceRuleRevalidatesCombination(t *testing.T) {
	svc, _ := newTestService()
	ctx := managerCtx()

	rule, err := svc.CreateRecurrenceRule(ctx, domain.RecurrenceRuleCreateRequest{
		Name: "Faxina", Type: "EXPENSE", Value: dec("200"), RecurrenceType: "MONTHLY", RecurrenceDay: 15,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Switching to weekly without adjusting the day must fail: 15 is not
	// a weekday index.
	weekly := "WEEKLY"
	_, err = svc.UpdateRecurrenceRule(ctx, rule.ID, domain.RecurrenceRuleUpdateRequest{
		RecurrenceType: &weekly,
	})
	assertCode(t, err, CodeInvalidRecurrenceDay)

	day := 3
	updated, err := svc.UpdateRecurrenceRule(ctx, rule.ID, domain.RecurrenceRuleUpdateRequest{
		RecurrenceType: &weekly,
		RecurrenceDay:  &day,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.RecurrenceType != domain.RecurrenceWeekly || updated.RecurrenceDay != 3 {
		t.Fatalf("expected weekly day 3, got %s day %d", updated.RecurrenceType, updated.RecurrenceDay)
	}
}

func TestRuleOccurrencePeriodKeys(t *testing.T) {
	monthly := domain.RecurrenceRule{RecurrenceType: domain.RecurrenceMonthly, RecurrenceDay: 5}
	_, key := ruleOccurrence(monthly, 2026, 7, 1)
	if key != "2026-07" {
		t.Fatalf("expected monthly key 2026-07, got %s", key)
	}

	weekly := domain.RecurrenceRule{RecurrenceType: domain.RecurrenceWeekly, RecurrenceDay: 1}
	due, key := ruleOccurrence(weekly, 2026, 1, 2)
	if key != "2026-W02" {
		t.Fatalf("expected weekly key 2026-W02, got %s", key)
	}
	if due.Weekday() != 1 {
		t.Fatalf("expected day 1 to land on a Monday, got %s", due.Weekday())
	}

	yearly := domain.RecurrenceRule{RecurrenceType: domain.RecurrenceYearly, RecurrenceDay: 365}
	due, key = ruleOccurrence(yearly, 2026, 1, 1)
	if key != "2026" {
		t.Fatalf("expected yearly key 2026, got %s", key)
	}
	if due.Format("2006-01-02") != "2026-12-31" {
		t.Fatalf("expected day 365 clamped to 2026-12-31, got %s", due.Format("2006-01-02"))
	}
}
