package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"livrocaixa/backend/internal/domain"
	"livrocaixa/backend/internal/service"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		// Fall back to a deterministic secret if crypto/rand fails (should not happen in practice).
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (expressed as Unix time truncated to the hour). The token is hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

// generateCSRFToken returns a token valid for the current hour bucket.
func (a *API) generateCSRFToken() string {
	now := time.Now().UTC()
	bucket := now.Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken checks whether the provided token matches the current or
// previous hour bucket, giving a 2-hour validity window.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	now := time.Now().UTC()
	currentBucket := now.Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	expected1 := a.csrfTokenForHour(currentBucket)
	expected2 := a.csrfTokenForHour(prevBucket)

	return hmac.Equal([]byte(token), []byte(expected1)) ||
		hmac.Equal([]byte(token), []byte(expected2))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/movements", a.requireAuth(a.handleMovements))
	mux.HandleFunc("/api/v1/movements/", a.requireAuth(a.handleMovementActions))
	mux.HandleFunc("/api/v1/reports/cash-flow", a.requireAuth(a.handleCashFlow))
	mux.HandleFunc("/api/v1/reports/reconciliation", a.requireAuth(a.handleReconciliationReport, "admin", "manager"))

	mux.HandleFunc("/api/v1/purchases", a.requireAuth(a.handlePurchases))
	mux.HandleFunc("/api/v1/purchases/", a.requireAuth(a.handlePurchaseActions))

	mux.HandleFunc("/api/v1/orders/settlement", a.requireAuth(a.handleOrderSettlement))

	mux.HandleFunc("/api/v1/recurrence/rules", a.requireAuth(a.handleRecurrenceRules, "admin", "manager"))
	mux.HandleFunc("/api/v1/recurrence/rules/", a.requireAuth(a.handleRecurrenceRuleActions, "admin", "manager"))
	mux.HandleFunc("/api/v1/recurrence/generate", a.requireAuth(a.handleRecurrenceGenerate, "admin", "manager"))

	mux.HandleFunc("/api/v1/ingredients", a.requireAuth(a.handleIngredients))
	mux.HandleFunc("/api/v1/replenishment/suggestions", a.requireAuth(a.handleReplenishmentSuggestions, "admin", "manager"))

	mux.HandleFunc("/api/v1/users/staff", a.requireAuth(a.handleStaff, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless CSRF token valid for the current hour bucket.
// Clients must include this token in the X-CSRF-Token header for all mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// csrfExemptPaths lists paths that are exempt from CSRF validation.
// Login is excluded because it is called without a prior CSRF token fetch.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF enforces CSRF token validation for state-changing methods.
// Returns false and writes an error response if validation fails.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleMovements(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter, err := movementFilterFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		page := parsePositiveLimit(r.URL.Query().Get("page"), 1, 0)
		pageSize := parsePositiveLimit(r.URL.Query().Get("page_size"), 100, 1000)

		result, err := a.service.ListMovements(r.Context(), filter, page, pageSize)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case http.MethodPost:
		var req domain.MovementCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		movement, err := a.service.CreateMovement(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"movement": movement})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleMovementActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/movements/"
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("movement id required"))
		return
	}

	if strings.HasSuffix(tail, "/payment-status") {
		if r.Method != http.MethodPatch && r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		id := strings.Trim(strings.TrimSuffix(tail, "/payment-status"), "/")
		var req struct {
			PaymentStatus string `json:"payment_status"`
			MovementDate  string `json:"movement_date"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		movement, err := a.service.UpdatePaymentStatus(r.Context(), id, req.PaymentStatus, req.MovementDate)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"movement": movement})
		return
	}

	if strings.HasSuffix(tail, "/reconcile") {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		id := strings.Trim(strings.TrimSuffix(tail, "/reconcile"), "/")
		var req struct {
			Reconciled bool `json:"reconciled"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		movement, err := a.service.ReconcileMovement(r.Context(), id, req.Reconciled)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"movement": movement})
		return
	}

	switch r.Method {
	case http.MethodGet:
		movement, err := a.service.GetMovement(r.Context(), tail)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"movement": movement})
	case http.MethodPatch:
		var req domain.MovementUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		movement, err := a.service.UpdateMovement(r.Context(), tail, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"movement": movement})
	case http.MethodDelete:
		if err := a.service.DeleteMovement(r.Context(), tail); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCashFlow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	period := r.URL.Query().Get("period")
	includePending := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("include_pending")), "true")

	summary, err := a.service.CashFlowSummary(r.Context(), period, includePending)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("format")), "csv") {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"cash-flow-%s.csv\"", summary.Period))
		_, _ = w.Write([]byte(cashFlowToCSV(summary)))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleReconciliationReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	filter := domain.ReconciliationFilter{
		PaymentGatewayID: strings.TrimSpace(query.Get("payment_gateway_id")),
	}
	var err error
	if filter.StartDate, err = parseDateParam(query.Get("start_date")); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if filter.EndDate, err = parseDateParam(query.Get("end_date")); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if raw := strings.TrimSpace(query.Get("reconciled")); raw != "" {
		reconciled := strings.EqualFold(raw, "true")
		filter.Reconciled = &reconciled
	}

	report, err := a.service.ReconciliationReport(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handlePurchases(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		filter := domain.InvoiceFilter{
			SupplierName:  strings.TrimSpace(query.Get("supplier_name")),
			PaymentStatus: normalizeStatusParam(query.Get("payment_status")),
		}
		var err error
		if filter.StartDate, err = parseDateParam(query.Get("start_date")); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if filter.EndDate, err = parseDateParam(query.Get("end_date")); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		page := parsePositiveLimit(query.Get("page"), 1, 0)
		pageSize := parsePositiveLimit(query.Get("page_size"), 100, 1000)

		result, err := a.service.ListPurchaseInvoices(r.Context(), filter, page, pageSize)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case http.MethodPost:
		var req domain.PurchaseInvoiceCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		invoice, err := a.service.CreatePurchaseInvoice(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"invoice": invoice})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePurchaseActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/purchases/"
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("invoice id required"))
		return
	}

	if strings.HasSuffix(tail, "/audit") {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		invoiceID := strings.Trim(strings.TrimSuffix(tail, "/audit"), "/")
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
		entries, err := a.service.ListInvoiceAudit(r.Context(), invoiceID, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
		return
	}

	switch r.Method {
	case http.MethodGet:
		invoice, err := a.service.GetPurchaseInvoice(r.Context(), tail)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"invoice": invoice})
	case http.MethodPatch:
		var req domain.PurchaseInvoiceUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		invoice, err := a.service.UpdatePurchaseInvoice(r.Context(), tail, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"invoice": invoice})
	case http.MethodDelete:
		if err := a.service.DeletePurchaseInvoice(r.Context(), tail); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleOrderSettlement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.OrderSettlementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.service.SettleOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleRecurrenceRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		activeOnly := !strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("include_inactive")), "true")
		rules, err := a.service.ListRecurrenceRules(r.Context(), activeOnly)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
	case http.MethodPost:
		var req domain.RecurrenceRuleCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		rule, err := a.service.CreateRecurrenceRule(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"rule": rule})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleRecurrenceRuleActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/recurrence/rules/"
	ruleID := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if ruleID == "" {
		writeError(w, http.StatusBadRequest, errors.New("rule id required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		rule, err := a.service.GetRecurrenceRule(r.Context(), ruleID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rule": rule})
	case http.MethodPatch:
		var req domain.RecurrenceRuleUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		rule, err := a.service.UpdateRecurrenceRule(r.Context(), ruleID, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rule": rule})
	case http.MethodDelete:
		if err := a.service.DeactivateRecurrenceRule(r.Context(), ruleID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleRecurrenceGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		Year  int `json:"year"`
		Month int `json:"month"`
		Week  int `json:"week"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.service.GenerateRecurringMovements(r.Context(), req.Year, req.Month, req.Week)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleIngredients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	onlyBelowThreshold := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("below_threshold")), "true")
	ingredients, err := a.service.ListIngredients(r.Context(), onlyBelowThreshold)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ingredients": ingredients})
}

func (a *API) handleReplenishmentSuggestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	onlyBelowThreshold := !strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("include_healthy")), "true")
	resp, err := a.service.ReplenishmentSuggestions(r.Context(), onlyBelowThreshold)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleStaff(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"staff": a.auth.ListStaff()})
	case http.MethodPost:
		var req domain.StaffCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		staff, err := a.auth.CreateStaff(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"staff": staff})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Enforce CSRF protection for all state-changing requests.
		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// normalizeStatusParam canonicalizes a payment-status query value so
// filters match regardless of casing. Unrecognized values pass through
// and simply match nothing.
func normalizeStatusParam(raw string) string {
	raw = strings.TrimSpace(raw)
	if parsed, ok := domain.ParsePaymentStatus(raw); ok {
		return string(parsed)
	}
	return raw
}

// queryDateLayouts accepts the day-first form used by the UI plus ISO.
var queryDateLayouts = []string{"02-01-2006", "2006-01-02"}

func parseDateParam(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range queryDateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t := parsed.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date: %s", raw)
}

func movementFilterFromQuery(r *http.Request) (domain.MovementFilter, error) {
	query := r.URL.Query()
	filter := domain.MovementFilter{
		Type:              strings.TrimSpace(query.Get("type")),
		Category:          strings.TrimSpace(query.Get("category")),
		PaymentStatus:     normalizeStatusParam(query.Get("payment_status")),
		RelatedEntityType: strings.TrimSpace(query.Get("related_entity_type")),
		RelatedEntityID:   strings.TrimSpace(query.Get("related_entity_id")),
		PaymentGatewayID:  strings.TrimSpace(query.Get("payment_gateway_id")),
		TransactionID:     strings.TrimSpace(query.Get("transaction_id")),
		BankAccount:       strings.TrimSpace(query.Get("bank_account")),
	}

	var err error
	if filter.StartDate, err = parseDateParam(query.Get("start_date")); err != nil {
		return domain.MovementFilter{}, err
	}
	if filter.EndDate, err = parseDateParam(query.Get("end_date")); err != nil {
		return domain.MovementFilter{}, err
	}
	if raw := strings.TrimSpace(query.Get("reconciled")); raw != "" {
		reconciled := strings.EqualFold(raw, "true")
		filter.Reconciled = &reconciled
	}
	return filter, nil
}

func cashFlowToCSV(summary *domain.CashFlowSummary) string {
	lines := []string{
		"key,value",
		fmt.Sprintf("period,%s", summary.Period),
		fmt.Sprintf("revenue,%s", summary.Revenue),
		fmt.Sprintf("expense,%s", summary.Expense),
		fmt.Sprintf("cmv,%s", summary.Cmv),
		fmt.Sprintf("tax,%s", summary.Tax),
		fmt.Sprintf("gross_profit,%s", summary.GrossProfit),
		fmt.Sprintf("net_profit,%s", summary.NetProfit),
		fmt.Sprintf("cash_flow,%s", summary.CashFlow),
		fmt.Sprintf("include_pending,%t", summary.IncludePending),
		fmt.Sprintf("pending_amount,%s", summary.PendingAmount),
	}
	return strings.Join(lines, "\n") + "\n"
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeServiceError maps a coded service error onto an HTTP status and
// keeps the code and details in the payload so clients can branch on
// them without parsing messages.
func writeServiceError(w http.ResponseWriter, err error) {
	svcErr, ok := service.AsError(err)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	status := http.StatusBadRequest
	switch svcErr.Code {
	case service.CodeNotFound:
		status = http.StatusNotFound
	case service.CodePermissionDenied:
		status = http.StatusForbidden
	case service.CodeIngredientNotFound:
		status = http.StatusNotFound
	case service.CodeInsufficientStock, service.CodeSyncError,
		service.CodeStockUpdateError, service.CodeStockReversalError:
		status = http.StatusConflict
	case service.CodeDatabaseError, service.CodeInternalError:
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, status, map[string]any{
		"error":   svcErr.Message,
		"code":    svcErr.Code,
		"details": svcErr.Details,
	})
}

func writeError(w http.ResponseWriter, status int, err error) {
	// For 5xx responses, return a generic message to avoid leaking internal
	// implementation details (stack traces, SQL errors, file paths, etc.).
	// 4xx responses are user-facing so we return the original error message.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
