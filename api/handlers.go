/*
handlers.go - HTTP API handlers for the budget engine

PURPOSE:
  Exposes the budgeting engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Users:
    POST   /api/users                        Initialize user (onboarding)
    GET    /api/users/{id}/month             Stored current month
    POST   /api/users/{id}/session          Session-start rollover check

  Income:
    GET    /api/users/{id}/income/{month}    Income record
    PUT    /api/users/{id}/income/{month}    Set income (upsert)
    POST   /api/users/{id}/income/{month}/add Add to income
    GET    /api/users/{id}/income            Income history

  Rules:
    GET    /api/users/{id}/rules             List rules (?active=true)
    POST   /api/users/{id}/rules             Create rule
    PATCH  /api/rules/{ruleID}               Update rule
    DELETE /api/rules/{ruleID}               Delete rule
    GET    /api/users/{id}/rules/total       Total mandatory amount

  Categories / Expenses / Savings / Summary: see server.go route table.

  Admin:
    POST   /api/admin/rollover/sweep         Run one scheduler sweep now

ARCHITECTURE:
  Handler struct holds all dependencies: the document store, the rollover
  engine, and one ledger per collection. Handlers parse, validate, call
  domain logic, serialize.

ERROR HANDLING:
  Domain errors map to HTTP status via writeDomainError:
  - 400: Validation errors, invalid input
  - 401: Missing user identity
  - 404: Record not found
  - 409: Conflict (duplicate id, idempotent replay)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. The user id path segment is
  trusted as-is. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/docstore"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      docstore.Store
	Engine     *budget.Engine
	Income     *budget.IncomeLedger
	Rules      *budget.RuleSet
	Categories *budget.CategoryLedger
	Expenses   *budget.ExpenseLedger
	Savings    *budget.SavingsLedger

	log zerolog.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a handler with all ledgers wired over the given store.
func NewHandler(store docstore.Store, log zerolog.Logger) *Handler {
	return &Handler{
		Store:      store,
		Engine:     budget.NewEngine(store, log),
		Income:     budget.NewIncomeLedger(store),
		Rules:      budget.NewRuleSet(store),
		Categories: budget.NewCategoryLedger(store),
		Expenses:   budget.NewExpenseLedger(store),
		Savings:    budget.NewSavingsLedger(store),
		log:        log.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// CreateUser initializes a user marker at the real current month.
// POST /api/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	marker, err := h.Engine.InitializeUser(r.Context(), req.ID, req.Email)
	if err != nil {
		writeDomainError(w, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(marker))
}

// GetUserMonth returns the stored active month, without triggering rollover.
// GET /api/users/{id}/month
func (h *Handler) GetUserMonth(w http.ResponseWriter, r *http.Request) {
	marker, err := h.Engine.Marker(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(marker))
}

// StartSession runs the session-start rollover check and, when the stored
// month is behind, the rollover itself.
// POST /api/users/{id}/session
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	needed, err := h.Engine.NeedsRollover(r.Context(), userID)
	if err != nil && budget.IsNotFound(err) {
		writeDomainError(w, "User not found", err)
		return
	}

	dto := SessionDTO{Month: string(budget.CurrentMonth(time.Now()))}
	if !needed {
		writeJSON(w, http.StatusOK, dto)
		return
	}

	result, err := h.Engine.PerformRollover(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "Rollover failed", err)
		return
	}
	writeJSON(w, http.StatusOK, SessionDTO{
		Month:          result.Month.String(),
		RolledOver:     !result.Lost && !result.AlreadyCurrent,
		Lost:           result.Lost,
		AlreadyCurrent: result.AlreadyCurrent,
		EntriesWritten: result.EntriesWritten,
		EntriesSkipped: result.EntriesSkipped,
	})
}

// =============================================================================
// INCOME HANDLERS
// =============================================================================

// GetIncome returns the income record for a month. Absent income is a valid
// state and returns a zero amount, not 404.
// GET /api/users/{id}/income/{month}
func (h *Handler) GetIncome(w http.ResponseWriter, r *http.Request) {
	userID, month, ok := h.userMonth(w, r)
	if !ok {
		return
	}

	inc, err := h.Income.Income(r.Context(), userID, month)
	if err != nil {
		writeDomainError(w, "Failed to get income", err)
		return
	}
	if inc == nil {
		writeJSON(w, http.StatusOK, IncomeDTO{Month: month.String(), Amount: "0"})
		return
	}
	writeJSON(w, http.StatusOK, IncomeDTO{
		ID:       inc.ID,
		Month:    inc.Month.String(),
		Amount:   inc.Amount.String(),
		LockedAt: formatTime(inc.LockedAt),
	})
}

// SetIncome upserts the month's income to an absolute amount.
// PUT /api/users/{id}/income/{month}
func (h *Handler) SetIncome(w http.ResponseWriter, r *http.Request) {
	h.incomeWrite(w, r, h.Income.SetIncome)
}

// AddIncome atomically adds to the month's income.
// POST /api/users/{id}/income/{month}/add
func (h *Handler) AddIncome(w http.ResponseWriter, r *http.Request) {
	h.incomeWrite(w, r, h.Income.AddIncome)
}

func (h *Handler) incomeWrite(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, userID string, month budget.Month, amount decimal.Decimal) error) {
	userID, month, ok := h.userMonth(w, r)
	if !ok {
		return
	}

	var req SetIncomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	if err := op(r.Context(), userID, month, amount); err != nil {
		writeDomainError(w, "Failed to write income", err)
		return
	}
	h.GetIncome(w, r)
}

// GetIncomeHistory returns past income records, newest month first.
// GET /api/users/{id}/income?limit=
func (h *Handler) GetIncomeHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	limit := queryLimit(r, 12)

	history, err := h.Income.History(r.Context(), userID, limit)
	if err != nil {
		writeDomainError(w, "Failed to get income history", err)
		return
	}

	dtos := make([]IncomeDTO, len(history))
	for i, inc := range history {
		dtos[i] = IncomeDTO{
			ID:       inc.ID,
			Month:    inc.Month.String(),
			Amount:   inc.Amount.String(),
			LockedAt: formatTime(inc.LockedAt),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RULE HANDLERS
// =============================================================================

// ListRules returns the user's mandatory rules. ?active=true filters to
// rules that contribute to rollover accrual.
// GET /api/users/{id}/rules
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	var (
		rules []budget.MandatoryRule
		err   error
	)
	if r.URL.Query().Get("active") == "true" {
		rules, err = h.Rules.ActiveRules(r.Context(), userID)
	} else {
		rules, err = h.Rules.Rules(r.Context(), userID)
	}
	if err != nil {
		writeDomainError(w, "Failed to list rules", err)
		return
	}

	dtos := make([]RuleDTO, len(rules))
	for i, rule := range rules {
		dtos[i] = toRuleDTO(rule)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRule creates a mandatory rule.
// POST /api/users/{id}/rules
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	rule, err := h.Rules.CreateRule(r.Context(), userID, req.Name, amount)
	if err != nil {
		writeDomainError(w, "Failed to create rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleDTO(rule))
}

// UpdateRule patches a rule's name, amount, and/or active flag.
// PATCH /api/rules/{ruleID}
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")

	var req UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	upd := budget.RuleUpdate{Name: req.Name, IsActive: req.IsActive}
	if req.Amount != nil {
		amount, err := parseAmount(*req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		upd.Amount = &amount
	}

	if err := h.Rules.UpdateRule(r.Context(), ruleID, upd); err != nil {
		writeDomainError(w, "Failed to update rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteRule deletes a rule. Past accrual entries referencing it remain.
// DELETE /api/rules/{ruleID}
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.Rules.DeleteRule(r.Context(), chi.URLParam(r, "ruleID")); err != nil {
		writeDomainError(w, "Failed to delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetRulesTotal returns the sum of active rule amounts.
// GET /api/users/{id}/rules/total
func (h *Handler) GetRulesTotal(w http.ResponseWriter, r *http.Request) {
	total, err := h.Rules.TotalMandatory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to total rules", err)
		return
	}
	writeJSON(w, http.StatusOK, SavingsTotalDTO{Total: total.String()})
}

// =============================================================================
// CATEGORY HANDLERS
// =============================================================================

// GetCategories returns the month's categories with aggregate totals.
// GET /api/users/{id}/categories/{month}
func (h *Handler) GetCategories(w http.ResponseWriter, r *http.Request) {
	userID, month, ok := h.userMonth(w, r)
	if !ok {
		return
	}

	ov, err := h.Categories.Overview(r.Context(), userID, month)
	if err != nil {
		writeDomainError(w, "Failed to get categories", err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoriesDTO(month, ov))
}

// CreateCategory creates a spending envelope for the month.
// POST /api/users/{id}/categories/{month}
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	userID, month, ok := h.userMonth(w, r)
	if !ok {
		return
	}

	var req CreateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	budgeted, err := parseAmount(req.Budgeted)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid budget amount", err)
		return
	}

	cat, err := h.Categories.CreateCategory(r.Context(), userID, month, req.Name, budgeted)
	if err != nil {
		writeDomainError(w, "Failed to create category", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryDTO(cat))
}

// UpdateCategory patches a category's name and/or budget. Spent is owned by
// the expense ledger and cannot be edited here.
// PATCH /api/categories/{categoryID}
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	categoryID := chi.URLParam(r, "categoryID")

	var req UpdateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	upd := budget.CategoryUpdate{Name: req.Name}
	if req.Budgeted != nil {
		budgeted, err := parseAmount(*req.Budgeted)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid budget amount", err)
			return
		}
		upd.Budgeted = &budgeted
	}

	if err := h.Categories.UpdateCategory(r.Context(), categoryID, upd); err != nil {
		writeDomainError(w, "Failed to update category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCategory deletes a category. Expenses referencing it become
// orphans; their records remain in history.
// DELETE /api/categories/{categoryID}
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.Categories.DeleteCategory(r.Context(), chi.URLParam(r, "categoryID")); err != nil {
		writeDomainError(w, "Failed to delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// ListExpenses returns the month's expenses, newest first.
// GET /api/users/{id}/expenses/{month}?limit=
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, month, ok := h.userMonth(w, r)
	if !ok {
		return
	}

	var (
		expenses []budget.Expense
		err      error
	)
	if limit := queryLimit(r, 0); limit > 0 {
		expenses, err = h.Expenses.RecentExpenses(r.Context(), userID, month, limit)
	} else {
		expenses, err = h.Expenses.MonthExpenses(r.Context(), userID, month)
	}
	if err != nil {
		writeDomainError(w, "Failed to list expenses", err)
		return
	}

	dtos := make([]ExpenseDTO, len(expenses))
	for i, e := range expenses {
		dtos[i] = toExpenseDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateExpense records an expense and bumps the category's spent total.
// POST /api/users/{id}/expenses/{month}
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	userID, month, ok := h.userMonth(w, r)
	if !ok {
		return
	}

	var req CreateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	date := time.Now()
	if req.Date != "" {
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
			return
		}
	}

	exp, err := h.Expenses.RecordExpense(r.Context(), userID, month, req.CategoryID, amount, req.Note, date)
	if err != nil {
		writeDomainError(w, "Failed to record expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(exp))
}

// DeleteExpense removes an expense and reverses its category spent
// contribution. The amount comes from the stored record, never the client.
// DELETE /api/expenses/{expenseID}
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	expenseID := chi.URLParam(r, "expenseID")

	exp, err := h.Expenses.Expense(r.Context(), expenseID)
	if err != nil {
		writeDomainError(w, "Failed to get expense", err)
		return
	}

	if err := h.Expenses.RemoveExpense(r.Context(), expenseID, exp.CategoryID, exp.Amount); err != nil {
		writeDomainError(w, "Failed to remove expense", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SAVINGS HANDLERS
// =============================================================================

// GetSavingsTotal returns the all-time accumulated savings.
// GET /api/users/{id}/savings
func (h *Handler) GetSavingsTotal(w http.ResponseWriter, r *http.Request) {
	total, err := h.Savings.Total(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to total savings", err)
		return
	}
	writeJSON(w, http.StatusOK, SavingsTotalDTO{Total: total.String()})
}

// GetSavingsMonth returns one month's savings with the per-source breakdown.
// GET /api/users/{id}/savings/{month}
func (h *Handler) GetSavingsMonth(w http.ResponseWriter, r *http.Request) {
	userID, month, ok := h.userMonth(w, r)
	if !ok {
		return
	}

	breakdown, err := h.Savings.Breakdown(r.Context(), userID, month)
	if err != nil {
		writeDomainError(w, "Failed to get savings breakdown", err)
		return
	}
	writeJSON(w, http.StatusOK, toSavingsMonthDTO(month, breakdown))
}

// GetSavingsHistory returns per-month totals, newest month first.
// GET /api/users/{id}/savings/history?limit=
func (h *Handler) GetSavingsHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.Savings.History(r.Context(), chi.URLParam(r, "id"), queryLimit(r, 12))
	if err != nil {
		writeDomainError(w, "Failed to get savings history", err)
		return
	}

	dtos := make([]SavingsHistoryDTO, len(history))
	for i, ms := range history {
		dtos[i] = SavingsHistoryDTO{Month: ms.Month.String(), Total: ms.Total.String()}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddLeftover appends a manual leftover savings entry. This is the only
// path that writes leftover entries; nothing sweeps leftovers automatically.
// POST /api/users/{id}/savings/{month}/leftover
func (h *Handler) AddLeftover(w http.ResponseWriter, r *http.Request) {
	userID, month, ok := h.userMonth(w, r)
	if !ok {
		return
	}

	var req AddLeftoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	if _, err := h.Savings.Add(r.Context(), userID, month, amount, budget.SourceLeftover); err != nil {
		writeDomainError(w, "Failed to add savings entry", err)
		return
	}

	breakdown, err := h.Savings.Breakdown(r.Context(), userID, month)
	if err != nil {
		writeDomainError(w, "Failed to get savings breakdown", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSavingsMonthDTO(month, breakdown))
}

// =============================================================================
// SUMMARY
// =============================================================================

// GetSummary returns the dashboard aggregates for one month.
// GET /api/users/{id}/summary/{month}
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID, month, ok := h.userMonth(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	inc, err := h.Income.Income(ctx, userID, month)
	if err != nil {
		writeDomainError(w, "Failed to get income", err)
		return
	}
	income := decimal.Zero
	if inc != nil {
		income = inc.Amount
	}

	mandatory, err := h.Rules.TotalMandatory(ctx, userID)
	if err != nil {
		writeDomainError(w, "Failed to total rules", err)
		return
	}

	ov, err := h.Categories.Overview(ctx, userID, month)
	if err != nil {
		writeDomainError(w, "Failed to get categories", err)
		return
	}

	breakdown, err := h.Savings.Breakdown(ctx, userID, month)
	if err != nil {
		writeDomainError(w, "Failed to get savings breakdown", err)
		return
	}

	writeJSON(w, http.StatusOK, SummaryDTO{
		Month:          month.String(),
		Income:         income.String(),
		MandatoryTotal: mandatory.String(),
		Budget:         toCategoriesDTO(month, ov),
		Savings:        toSavingsMonthDTO(month, breakdown),
	})
}

// =============================================================================
// ADMIN
// =============================================================================

// TriggerSweep runs one rollover sweep over all stale user markers.
// POST /api/admin/rollover/sweep
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	result := sweepOnce(r.Context(), h.Store, h.Engine, h.log)
	writeJSON(w, http.StatusOK, SweepResultDTO{
		Checked:    result.Checked,
		RolledOver: result.RolledOver,
		Failed:     result.Failed,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// userMonth extracts and validates the {id} and {month} path segments.
// Writes the error response itself when validation fails.
func (h *Handler) userMonth(w http.ResponseWriter, r *http.Request) (string, budget.Month, bool) {
	userID := chi.URLParam(r, "id")
	month, err := budget.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeDomainError(w, "Invalid month", err)
		return "", "", false
	}
	return userID, month, true
}

func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, budget.ErrValidation):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, budget.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, message, err)
	case budget.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, docstore.ErrDuplicateID):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
