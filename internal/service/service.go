package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"livrocaixa/backend/internal/cache"
	"livrocaixa/backend/internal/domain"
	"livrocaixa/backend/internal/events"
	"livrocaixa/backend/internal/replenishment"
	"livrocaixa/backend/internal/store"
)

const (
	movementCachePrefix      = "ledger:movements:"
	summaryCachePrefix       = "ledger:summary:"
	replenishmentCachePrefix = "ledger:replenishment:"

	maxPageSize     = 1000
	defaultPageSize = 100
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo        store.Repository
	cache       cache.LedgerCache
	events      events.Publisher
	replenisher *replenishment.Engine
	cacheTTL    time.Duration
}

func New(repo store.Repository, ledgerCache cache.LedgerCache, publisher events.Publisher, replenisher *replenishment.Engine, cacheTTL time.Duration) *Service {
	if ledgerCache == nil {
		ledgerCache = cache.NoopLedgerCache{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if replenisher == nil {
		replenisher = replenishment.NewEngine()
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}

	return &Service{
		repo:        repo,
		cache:       ledgerCache,
		events:      publisher,
		replenisher: replenisher,
		cacheTTL:    cacheTTL,
	}
}

// Dates arrive either in the BR day-first form or as ISO strings.
var dateLayouts = []string{
	"02-01-2006",
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

func parseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			t := parsed.UTC()
			return &t, nil
		}
	}
	return nil, errorf(CodeInvalidDate, "unrecognized date: %s", value)
}

func (s *Service) CreateMovement(ctx context.Context, req domain.MovementCreateRequest) (*domain.FinancialMovement, error) {
	movementType := domain.MovementType(strings.ToUpper(strings.TrimSpace(req.Type)))
	if !movementType.Valid() {
		return nil, errorf(CodeInvalidType, "unknown movement type: %s", req.Type)
	}
	if req.Value.LessThanOrEqual(decimal.Zero) {
		return nil, newError(CodeInvalidValue, "value must be greater than zero")
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, newError(CodeInvalidValue, "description is required")
	}

	status := domain.StatusPending
	if req.PaymentStatus != "" {
		parsed, ok := domain.ParsePaymentStatus(req.PaymentStatus)
		if !ok {
			return nil, errorf(CodeInvalidStatus, "unknown payment status: %s", req.PaymentStatus)
		}
		status = parsed
	}

	movementDate, err := parseDate(req.MovementDate)
	if err != nil {
		return nil, err
	}
	movementDate = defaultMovementDate(status, movementDate)

	actor, _ := ActorFromContext(ctx)
	movement := domain.FinancialMovement{
		Type:              movementType,
		Value:             req.Value,
		Category:          optional(req.Category),
		Subcategory:       optional(req.Subcategory),
		Description:       strings.TrimSpace(req.Description),
		MovementDate:      movementDate,
		PaymentStatus:     status,
		PaymentMethod:     optional(req.PaymentMethod),
		SenderReceiver:    optional(req.SenderReceiver),
		RelatedEntityType: optional(req.RelatedEntityType),
		RelatedEntityID:   optional(req.RelatedEntityID),
		Notes:             optional(req.Notes),
		PaymentGatewayID:  optional(req.PaymentGatewayID),
		TransactionID:     optional(req.TransactionID),
		BankAccount:       optional(req.BankAccount),
		CreatedBy:         actor.Username,
	}

	created, err := s.repo.CreateMovement(ctx, movement)
	if err != nil {
		return nil, wrapStoreError(err)
	}

	s.invalidateLedgerCache(ctx)
	s.events.Publish(ctx, events.MovementCreated, created)
	return created, nil
}

func (s *Service) GetMovement(ctx context.Context, id string) (*domain.FinancialMovement, error) {
	if strings.TrimSpace(id) == "" {
		return nil, newError(CodeInvalidValue, "movement id is required")
	}
	movement, err := s.repo.GetMovementByID(ctx, id)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return movement, nil
}

func (s *Service) ListMovements(ctx context.Context, filter domain.MovementFilter, page int, pageSize int) (*domain.MovementPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	key := movementCacheKey(filter, page, pageSize)
	if cached, ok, err := s.cache.GetMovementPage(ctx, key); err != nil {
		log.Printf("[cache] WARN: movement page read failed key=%s: %v", key, err)
	} else if ok {
		return cached, nil
	}

	result, err := s.repo.ListMovements(ctx, filter, page, pageSize)
	if err != nil {
		return nil, wrapStoreError(err)
	}

	if err := s.cache.SetMovementPage(ctx, key, result, s.cacheTTL); err != nil {
		log.Printf("[cache] WARN: movement page write failed key=%s: %v", key, err)
	}
	return result, nil
}

func (s *Service) UpdateMovement(ctx context.Context, id string, req domain.MovementUpdateRequest) (*domain.FinancialMovement, error) {
	if strings.TrimSpace(id) == "" {
		return nil, newError(CodeInvalidValue, "movement id is required")
	}

	existing, err := s.repo.GetMovementByID(ctx, id)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	if err := requireEditPermission(ctx, existing.CreatedBy); err != nil {
		return nil, err
	}

	var patch domain.MovementPatch
	if req.Type != nil {
		movementType := domain.MovementType(strings.ToUpper(strings.TrimSpace(*req.Type)))
		if !movementType.Valid() {
			return nil, errorf(CodeInvalidType, "unknown movement type: %s", *req.Type)
		}
		patch.Type = &movementType
	}
	if req.Value != nil {
		if req.Value.LessThanOrEqual(decimal.Zero) {
			return nil, newError(CodeInvalidValue, "value must be greater than zero")
		}
		patch.Value = req.Value
	}
	if req.Description != nil {
		desc := strings.TrimSpace(*req.Description)
		if desc == "" {
			return nil, newError(CodeInvalidValue, "description cannot be empty")
		}
		patch.Description = &desc
	}
	patch.Category = req.Category
	patch.Subcategory = req.Subcategory
	patch.PaymentMethod = req.PaymentMethod
	patch.SenderReceiver = req.SenderReceiver
	patch.Notes = req.Notes
	patch.PaymentGatewayID = req.PaymentGatewayID
	patch.TransactionID = req.TransactionID
	patch.BankAccount = req.BankAccount

	status := existing.PaymentStatus
	if req.PaymentStatus != nil {
		parsed, ok := domain.ParsePaymentStatus(*req.PaymentStatus)
		if !ok {
			return nil, errorf(CodeInvalidStatus, "unknown payment status: %s", *req.PaymentStatus)
		}
		status = parsed
		patch.PaymentStatus = &status
	}
	if req.MovementDate != nil {
		parsed, err := parseDate(*req.MovementDate)
		if err != nil {
			return nil, err
		}
		filled := defaultMovementDate(status, parsed)
		patch.MovementDate = &filled
	} else if status == domain.StatusPaid && existing.MovementDate == nil {
		// moving to Paid without a date derives one; a pending
		// movement keeps its expected date across edits
		filled := defaultMovementDate(status, nil)
		patch.MovementDate = &filled
	}

	updated, err := s.repo.UpdateMovement(ctx, id, patch)
	if err != nil {
		return nil, wrapStoreError(err)
	}

	s.invalidateLedgerCache(ctx)
	return updated, nil
}

// UpdatePaymentStatus flips a movement between pending and paid and
// keeps any linked purchase invoice in step within the same unit of
// work.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id string, rawStatus string, rawDate string) (*domain.FinancialMovement, error) {
	if strings.TrimSpace(id) == "" {
		return nil, newError(CodeInvalidValue, "movement id is required")
	}
	status, ok := domain.ParsePaymentStatus(rawStatus)
	if !ok {
		return nil, errorf(CodeInvalidStatus, "unknown payment status: %s", rawStatus)
	}

	existing, err := s.repo.GetMovementByID(ctx, id)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	if err := requireEditPermission(ctx, existing.CreatedBy); err != nil {
		return nil, err
	}

	movementDate, err := parseDate(rawDate)
	if err != nil {
		return nil, err
	}
	if movementDate == nil {
		movementDate = existing.MovementDate
	}
	movementDate = normalizeMovementDate(status, movementDate)

	updated, err := s.repo.UpdateMovementPaymentStatus(ctx, id, status, movementDate)
	if err != nil {
		return nil, wrapStoreError(err)
	}

	s.invalidateLedgerCache(ctx)
	s.events.Publish(ctx, events.PaymentStatusUpdated, updated)
	return updated, nil
}

func (s *Service) ReconcileMovement(ctx context.Context, id string, reconciled bool) (*domain.FinancialMovement, error) {
	if strings.TrimSpace(id) == "" {
		return nil, newError(CodeInvalidValue, "movement id is required")
	}
	if err := requireRole(ctx, "admin", "manager"); err != nil {
		return nil, err
	}

	updated, err := s.repo.ReconcileMovement(ctx, id, reconciled, time.Now().UTC())
	if err != nil {
		return nil, wrapStoreError(err)
	}

	s.invalidateLedgerCache(ctx)
	return updated, nil
}

// DeleteMovement removes a ledger line. Deleting the expense of a
// purchase invoice delegates to the invoice deletion so stock is
// reversed and the audit trail written.
func (s *Service) DeleteMovement(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return newError(CodeInvalidValue, "movement id is required")
	}
	if err := requireRole(ctx, "admin"); err != nil {
		return err
	}

	movement, err := s.repo.GetMovementByID(ctx, id)
	if err != nil {
		return wrapStoreError(err)
	}

	if movement.RelatedEntityType != nil && *movement.RelatedEntityType == domain.RelatedPurchaseInvoice &&
		movement.RelatedEntityID != nil {
		return s.DeletePurchaseInvoice(ctx, *movement.RelatedEntityID)
	}

	if err := s.repo.DeleteMovement(ctx, id); err != nil {
		return wrapStoreError(err)
	}

	s.invalidateLedgerCache(ctx)
	return nil
}

func (s *Service) CashFlowSummary(ctx context.Context, period string, includePending bool) (*domain.CashFlowSummary, error) {
	period = strings.ToLower(strings.TrimSpace(period))
	if period == "" {
		period = "this_month"
	}

	now := time.Now().UTC()
	var from, to *time.Time
	switch period {
	case "this_month":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		from = &start
	case "last_month":
		firstOfThis := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		start := firstOfThis.AddDate(0, -1, 0)
		end := firstOfThis.AddDate(0, 0, -1)
		from, to = &start, &end
	case "last_30_days":
		start := now.AddDate(0, 0, -30)
		from = &start
	case "all":
	default:
		return nil, errorf(CodeInvalidDate, "unknown period: %s", period)
	}

	key := summaryCacheKey(period, includePending)
	if cached, ok, err := s.cache.GetCashFlowSummary(ctx, key); err != nil {
		log.Printf("[cache] WARN: summary read failed key=%s: %v", key, err)
	} else if ok {
		return cached, nil
	}

	totals, err := s.repo.CashFlowTotals(ctx, from, to, includePending)
	if err != nil {
		return nil, wrapStoreError(err)
	}

	grossProfit := totals.Revenue.Sub(totals.Cmv)
	netProfit := grossProfit.Sub(totals.Expense).Sub(totals.Tax)
	// pending movements surface only through pending_amount; the cash
	// flow itself counts settled money
	cashFlow := netProfit

	summary := &domain.CashFlowSummary{
		Period:         period,
		StartDate:      from,
		EndDate:        to,
		Revenue:        totals.Revenue,
		Expense:        totals.Expense,
		Cmv:            totals.Cmv,
		Tax:            totals.Tax,
		GrossProfit:    grossProfit,
		NetProfit:      netProfit,
		CashFlow:       cashFlow,
		IncludePending: includePending,
		PendingAmount:  totals.PendingAmount,
	}

	if err := s.cache.SetCashFlowSummary(ctx, key, summary, s.cacheTTL); err != nil {
		log.Printf("[cache] WARN: summary write failed key=%s: %v", key, err)
	}
	return summary, nil
}

func (s *Service) ReconciliationReport(ctx context.Context, filter domain.ReconciliationFilter) (*domain.ReconciliationReport, error) {
	report, err := s.repo.ReconciliationReport(ctx, filter)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return report, nil
}

// normalizeMovementDate enforces the strict status/date pairing used
// by explicit payment-status flips: a paid movement always carries a
// date, a pending one never does.
func normalizeMovementDate(status domain.PaymentStatus, movementDate *time.Time) *time.Time {
	if status == domain.StatusPending {
		return nil
	}
	return defaultMovementDate(status, movementDate)
}

// defaultMovementDate fills the date a paid movement must carry. A
// pending movement keeps whatever expected date the caller supplied,
// including none.
func defaultMovementDate(status domain.PaymentStatus, movementDate *time.Time) *time.Time {
	if status == domain.StatusPaid && movementDate == nil {
		now := time.Now().UTC()
		return &now
	}
	return movementDate
}

func requireRole(ctx context.Context, roles ...string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return newError(CodePermissionDenied, "authentication required")
	}
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return errorf(CodePermissionDenied, "role %s cannot perform this operation", actor.Role)
}

func requireEditPermission(ctx context.Context, createdBy string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return newError(CodePermissionDenied, "authentication required")
	}
	if actor.Role == "admin" || actor.Role == "manager" {
		return nil
	}
	if createdBy != "" && actor.Username == createdBy {
		return nil
	}
	return newError(CodePermissionDenied, "only the creator or a manager can edit this record")
}

func (s *Service) invalidateLedgerCache(ctx context.Context) {
	for _, pattern := range []string{movementCachePrefix + "*", summaryCachePrefix + "*", replenishmentCachePrefix + "*"} {
		if err := s.cache.ClearPattern(ctx, pattern); err != nil {
			log.Printf("[cache] WARN: failed to clear pattern %s: %v", pattern, err)
		}
	}
}

func movementCacheKey(filter domain.MovementFilter, page int, pageSize int) string {
	var sb strings.Builder
	if filter.StartDate != nil {
		sb.WriteString(filter.StartDate.Format("2006-01-02"))
	}
	sb.WriteString("|")
	if filter.EndDate != nil {
		sb.WriteString(filter.EndDate.Format("2006-01-02"))
	}
	fmt.Fprintf(&sb, "|%s|%s|%s|%s|%s|%s|%s|%s",
		filter.Type, filter.Category, filter.PaymentStatus,
		filter.RelatedEntityType, filter.RelatedEntityID,
		filter.PaymentGatewayID, filter.TransactionID, filter.BankAccount)
	if filter.Reconciled != nil {
		fmt.Fprintf(&sb, "|%t", *filter.Reconciled)
	}
	fmt.Fprintf(&sb, "|p%d|s%d", page, pageSize)

	sum := sha1.Sum([]byte(sb.String()))
	return movementCachePrefix + hex.EncodeToString(sum[:])
}

func summaryCacheKey(period string, includePending bool) string {
	return fmt.Sprintf("%s%s:%t", summaryCachePrefix, period, includePending)
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
