package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"livrocaixa/backend/internal/domain"
	"livrocaixa/backend/internal/store"
	"livrocaixa/backend/internal/store/memory"
)

func newTestService() (*Service, store.Repository) {
	repo := memory.NewSeeded()
	svc := New(repo, nil, nil, nil, 0)
	return svc, repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func managerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "manager", Role: "manager"})
}

func employeeCtx(username string) context.Context {
	return WithActor(context.Background(), domain.Actor{Username: username, Role: "employee"})
}

func assertCode(t *testing.T, err error, want ErrorCode) {
	t.Helper()
	svcErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected coded error %s, got %v", want, err)
	}
	if svcErr.Code != want {
		t.Fatalf("expected code %s, got %s (%s)", want, svcErr.Code, svcErr.Message)
	}
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func TestCreateMovementRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	_, err := svc.CreateMovement(ctx, domain.MovementCreateRequest{
		Type: "TRANSFER", Value: dec("10"), Description: "algo",
	})
	assertCode(t, err, CodeInvalidType)

	_, err = svc.CreateMovement(ctx, domain.MovementCreateRequest{
		Type: "REVENUE", Value: dec("0"), Description: "algo",
	})
	assertCode(t, err, CodeInvalidValue)

	_, err = svc.CreateMovement(ctx, domain.MovementCreateRequest{
		Type: "REVENUE", Value: dec("10"), Description: "   ",
	})
	assertCode(t, err, CodeInvalidValue)

	_, err = svc.CreateMovement(ctx, domain.MovementCreateRequest{
		Type: "REVENUE", Value: dec("10"), Description: "algo", PaymentStatus: "maybe",
	})
	assertCode(t, err, CodeInvalidStatus)

	_, err = svc.CreateMovement(ctx, domain.MovementCreateRequest{
		Type: "REVENUE", Value: dec("10"), Description: "algo", MovementDate: "next tuesday",
	})
	assertCode(t, err, CodeInvalidDate)
}

func TestCreateMovementDateDefaults(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	paid, err := svc.CreateMovement(ctx, domain.MovementCreateRequest{
		Type: "REVENUE", Value: dec("250"), Description: "Venda balcão", PaymentStatus: "paid",
	})
	if err != nil {
		t.Fatalf("create paid movement failed: %v", err)
	}
	if paid.MovementDate == nil {
		t.Fatalf("expected paid movement to carry a movement date")
	}
	if paid.CreatedBy != "admin" {
		t.Fatalf("expected created_by admin, got %s", paid.CreatedBy)
	}

	// a pending movement may carry an expected payment date
	expected, err := svc.CreateMovement(ctx, domain.MovementCreateRequest{
		Type: "EXPENSE", Value: dec("80"), Description: "Conta de luz",
		MovementDate: "15-03-2026", PaymentStatus: "pending",
	})
	if err != nil {
		t.Fatalf("create pending movement failed: %v", err)
	}
	if expected.MovementDate == nil {
		t.Fatalf("expected date 2026-03-15 kept on pending movement, got nil")
	}
	if got := expected.MovementDate.Format("2006-01-02"); got != "2026-03-15" {
		t.Fatalf("expected date 2026-03-15 kept on pending movement, got %s", got)
	}

	// without one, pending stays undated
	undated, err := svc.CreateMovement(ctx, domain.MovementCreateRequest{
		Type: "EXPENSE", Value: dec("40"), Description: "Conta de água",
	})
	if err != nil {
		t.Fatalf("create undated pending movement failed: %v", err)
	}
	if undated.MovementDate != nil {
		t.Fatalf("expected no date on undated pending movement, got %v", undated.MovementDate)
	}
}

func TestCreateMovementParsesDayFirstDates(t *testing.T) {
	svc, _ := newTestService()

	movement, err := svc.CreateMovement(adminCtx(), domain.MovementCreateRequest{
		Type: "REVENUE", Value: dec("100"), Description: "Venda",
		PaymentStatus: "paid", MovementDate: "05-02-2026",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if got := movement.MovementDate.Format("2006-01-02"); got != "2026-02-05" {
		t.Fatalf("expected 2026-02-05, got %s", got)
	}
}

func TestListMovementsPaginatesAndFilters(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	for i := 0; i < 5; i++ {
		_, err := svc.CreateMovement(ctx, domain.MovementCreateRequest{
			Type: "REVENUE", Value: dec("10"), Description: "Venda", PaymentStatus: "paid",
		})
		if err != nil {
			t.Fatalf("create #%d failed: %v", i, err)
		}
	}
	_, err := svc.CreateMovement(ctx, domain.MovementCreateRequest{
		Type: "EXPENSE", Value: dec("30"), Description: "Aluguel",
	})
	if err != nil {
		t.Fatalf("create expense failed: %v", err)
	}

	page, err := svc.ListMovements(ctx, domain.MovementFilter{Type: "REVENUE"}, 1, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if page.Total != 5 {
		t.Fatalf("expected total 5 revenue movements, got %d", page.Total)
	}
	if len(page.Movements) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page.Movements))
	}

	// Out-of-range pages are clamped, never an error.
	page, err = svc.ListMovements(ctx, domain.MovementFilter{}, -3, 5000)
	if err != nil {
		t.Fatalf("list with wild paging failed: %v", err)
	}
	if page.Page != 1 || page.PageSize != maxPageSize {
		t.Fatalf("expected clamped page 1/%d, got %d/%d", maxPageSize, page.Page, page.PageSize)
	}
}

func TestUpdateMovementPermissions(t *testing.T) {
	svc, _ := newTestService()

	created, err := svc.CreateMovement(employeeCtx("carlos"), domain.MovementCreateRequest{
		Type: "EXPENSE", Value: dec("45"), Description: "Compra de gás",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	newValue := dec("50")
	_, err = svc.UpdateMovement(employeeCtx("ana"), created.ID, domain.MovementUpdateRequest{Value: &newValue})
	assertCode(t, err, CodePermissionDenied)

	updated, err := svc.UpdateMovement(employeeCtx("carlos"), created.ID, domain.MovementUpdateRequest{Value: &newValue})
	if err != nil {
		t.Fatalf("creator update failed: %v", err)
	}
	if !updated.Value.Equal(newValue) {
		t.Fatalf("expected value 50, got %s", updated.Value)
	}

	desc := "Compra de gás (ajustado)"
	updated, err = svc.UpdateMovement(managerCtx(), created.ID, domain.MovementUpdateRequest{Description: &desc})
	if err != nil {
		t.Fatalf("manager update failed: %v", err)
	}
	if updated.Description != desc {
		t.Fatalf("expected updated description, got %s", updated.Description)
	}
}

func TestUpdateMovementKeepsExpectedDateOnPending(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	created, err := svc.CreateMovement(ctx, domain.MovementCreateRequest{
		Type: "EXPENSE", Value: dec("90"), Description: "Internet",
		MovementDate: "20-04-2026",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// editing other fields must not disturb the expected date
	notes := "vence dia 20"
	updated, err := svc.UpdateMovement(ctx, created.ID, domain.MovementUpdateRequest{Notes: &notes})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.MovementDate == nil || updated.MovementDate.Format("2006-01-02") != "2026-04-20" {
		t.Fatalf("expected date 2026-04-20 kept, got %v", updated.MovementDate)
	}

	paid := "paid"
	updated, err = svc.UpdateMovement(ctx, created.ID, domain.MovementUpdateRequest{PaymentStatus: &paid})
	if err != nil {
		t.Fatalf("update to paid failed: %v", err)
	}
	if updated.MovementDate == nil || updated.MovementDate.Format("2006-01-02") != "2026-04-20" {
		t.Fatalf("expected date 2026-04-20 kept on paid flip, got %v", updated.MovementDate)
	}
}

func TestUpdateMovementToPaidDerivesMissingDate(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	created, err := svc.CreateMovement(ctx, domain.MovementCreateRequest{
		Type: "EXPENSE", Value: dec("90"), Description: "Internet",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.MovementDate != nil {
		t.Fatalf("expected undated pending movement, got %v", created.MovementDate)
	}

	paid := "paid"
	updated, err := svc.UpdateMovement(ctx, created.ID, domain.MovementUpdateRequest{PaymentStatus: &paid})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.MovementDate == nil {
		t.Fatalf("expected paid movement to gain a date")
	}
}

func TestUpdatePaymentStatusEndpointSemantics(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	created, err := svc.CreateMovement(ctx, domain.MovementCreateRequest{
		Type: "TAX", Value: dec("320"), Description: "DAS mensal",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	_, err = svc.UpdatePaymentStatus(ctx, created.ID, "settled", "")
	assertCode(t, err, CodeInvalidStatus)

	updated, err := svc.UpdatePaymentStatus(ctx, created.ID, "paid", "10-01-2026")
	if err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if updated.MovementDate == nil || updated.MovementDate.Format("2006-01-02") != "2026-01-10" {
		t.Fatalf("expected payment date 2026-01-10, got %v", updated.MovementDate)
	}

	updated, err = svc.UpdatePaymentStatus(ctx, created.ID, "pending", "")
	if err != nil {
		t.Fatalf("mark pending failed: %v", err)
	}
	if updated.MovementDate != nil {
		t.Fatalf("expected date cleared on pending")
	}
}

func TestDeleteMovementRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	created, err := svc.CreateMovement(adminCtx(), domain.MovementCreateRequest{
		Type: "REVENUE", Value: dec("15"), Description: "Venda", PaymentStatus: "paid",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	err = svc.DeleteMovement(managerCtx(), created.ID)
	assertCode(t, err, CodePermissionDenied)

	if err := svc.DeleteMovement(adminCtx(), created.ID); err != nil {
		t.Fatalf("admin delete failed: %v", err)
	}

	_, err = svc.GetMovement(adminCtx(), created.ID)
	assertCode(t, err, CodeNotFound)
}

func TestReconcileMovementRequiresManager(t *testing.T) {
	svc, _ := newTestService()

	created, err := svc.CreateMovement(adminCtx(), domain.MovementCreateRequest{
		Type: "REVENUE", Value: dec("200"), Description: "Venda", PaymentStatus: "paid",
		PaymentGatewayID: "gw-sumup", TransactionID: "trx-991",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	_, err = svc.ReconcileMovement(employeeCtx("carlos"), created.ID, true)
	assertCode(t, err, CodePermissionDenied)

	updated, err := svc.ReconcileMovement(managerCtx(), created.ID, true)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !updated.Reconciled || updated.ReconciledAt == nil {
		t.Fatalf("expected movement to be reconciled with timestamp")
	}
}

func TestCashFlowSummaryMath(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	seed := []struct {
		typ   string
		value string
	}{
		{"REVENUE", "100"},
		{"CMV", "30"},
		{"EXPENSE", "20"},
		{"TAX", "10"},
	}
	for _, m := range seed {
		_, err := svc.CreateMovement(ctx, domain.MovementCreateRequest{
			Type: m.typ, Value: dec(m.value), Description: "linha " + m.typ, PaymentStatus: "paid",
		})
		if err != nil {
			t.Fatalf("seed %s failed: %v", m.typ, err)
		}
	}
	_, err := svc.CreateMovement(ctx, domain.MovementCreateRequest{
		Type: "EXPENSE", Value: dec("50"), Description: "Boleto pendente",
	})
	if err != nil {
		t.Fatalf("seed pending failed: %v", err)
	}

	summary, err := svc.CashFlowSummary(ctx, "this_month", false)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if !summary.GrossProfit.Equal(dec("70")) {
		t.Fatalf("expected gross profit 70, got %s", summary.GrossProfit)
	}
	if !summary.NetProfit.Equal(dec("40")) {
		t.Fatalf("expected net profit 40, got %s", summary.NetProfit)
	}
	if !summary.CashFlow.Equal(dec("40")) {
		t.Fatalf("expected cash flow 40, got %s", summary.CashFlow)
	}

	withPending, err := svc.CashFlowSummary(ctx, "this_month", true)
	if err != nil {
		t.Fatalf("summary with pending failed: %v", err)
	}
	if !withPending.PendingAmount.Equal(dec("50")) {
		t.Fatalf("expected pending amount 50, got %s", withPending.PendingAmount)
	}
	if !withPending.CashFlow.Equal(dec("40")) {
		t.Fatalf("expected cash flow to stay 40 with pending reported separately, got %s", withPending.CashFlow)
	}

	_, err = svc.CashFlowSummary(ctx, "next_month", false)
	assertCode(t, err, CodeInvalidDate)
}

func TestReconciliationReportCountsOnlyPaid(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	first, err := svc.CreateMovement(ctx, domain.MovementCreateRequest{
		Type: "REVENUE", Value: dec("120"), Description: "Venda cartão", PaymentStatus: "paid",
		PaymentGatewayID: "gw-stone",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	_, err = svc.CreateMovement(ctx, domain.MovementCreateRequest{
		Type: "REVENUE", Value: dec("75"), Description: "Venda fiado",
	})
	if err != nil {
		t.Fatalf("create pending failed: %v", err)
	}

	if _, err := svc.ReconcileMovement(ctx, first.ID, true); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	report, err := svc.ReconciliationReport(ctx, domain.ReconciliationFilter{})
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if report.TotalCount != 1 {
		t.Fatalf("expected 1 paid movement in report, got %d", report.TotalCount)
	}
	if report.ReconciledCount != 1 || report.UnreconciledCount != 0 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if !report.ReconciledAmount.Equal(dec("120")) {
		t.Fatalf("expected reconciled amount 120, got %s", report.ReconciledAmount)
	}
}
