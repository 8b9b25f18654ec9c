package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/api"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/docstore"
	"github.com/warp/budget-engine/docstore/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testServer struct {
	store   *memory.Store
	handler *api.Handler
	router  http.Handler
}

func newTestServer() *testServer {
	store := memory.New()
	handler := api.NewHandler(store, zerolog.Nop())
	return &testServer{store: store, handler: handler, router: api.NewRouter(handler)}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out), "body: %s", w.Body.String())
	return out
}

func currentMonth() string {
	return string(budget.CurrentMonth(time.Now()))
}

// =============================================================================
// USERS & SESSION
// =============================================================================

func TestCreateUser_ReturnsCurrentMonth(t *testing.T) {
	ts := newTestServer()

	w := ts.do(t, http.MethodPost, "/api/users", map[string]string{"id": "usr-1", "email": "a@example.com"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	user := decode[api.UserDTO](t, w)
	assert.Equal(t, "usr-1", user.ID)
	assert.Equal(t, currentMonth(), user.CurrentMonth)
}

func TestCreateUser_DuplicateIsConflict(t *testing.T) {
	ts := newTestServer()
	body := map[string]string{"id": "usr-1", "email": "a@example.com"}

	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/users", body).Code)
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/api/users", body).Code)
}

func TestStartSession_CurrentUserIsNoop(t *testing.T) {
	ts := newTestServer()
	ts.do(t, http.MethodPost, "/api/users", map[string]string{"id": "usr-1", "email": "a@example.com"})

	w := ts.do(t, http.MethodPost, "/api/users/usr-1/session", nil)
	require.Equal(t, http.StatusOK, w.Code)

	session := decode[api.SessionDTO](t, w)
	assert.Equal(t, currentMonth(), session.Month)
	assert.False(t, session.RolledOver)
	assert.Equal(t, 0, session.EntriesWritten)
}

func TestGetUserMonth_UnknownUserIs404(t *testing.T) {
	ts := newTestServer()
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/users/ghost/month", nil).Code)
}

// =============================================================================
// INCOME
// =============================================================================

func TestIncome_SetAddGet(t *testing.T) {
	ts := newTestServer()
	ts.do(t, http.MethodPost, "/api/users", map[string]string{"id": "usr-1", "email": "a@example.com"})
	month := currentMonth()

	w := ts.do(t, http.MethodPut, "/api/users/usr-1/income/"+month, map[string]string{"amount": "3000"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/users/usr-1/income/"+month+"/add", map[string]string{"amount": "250.50"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	income := decode[api.IncomeDTO](t, ts.do(t, http.MethodGet, "/api/users/usr-1/income/"+month, nil))
	assert.Equal(t, "3250.5", income.Amount)
}

func TestIncome_AbsentMonthIsZero(t *testing.T) {
	ts := newTestServer()
	income := decode[api.IncomeDTO](t, ts.do(t, http.MethodGet, "/api/users/usr-1/income/2026-01", nil))
	assert.Equal(t, "0", income.Amount)
}

func TestIncome_InvalidMonthIs400(t *testing.T) {
	ts := newTestServer()
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/users/usr-1/income/January", nil).Code)
}

func TestIncome_InvalidAmountIs400(t *testing.T) {
	ts := newTestServer()
	w := ts.do(t, http.MethodPut, "/api/users/usr-1/income/2026-01", map[string]string{"amount": "lots"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// RULES
// =============================================================================

func TestRules_CreateListTotal(t *testing.T) {
	ts := newTestServer()

	w := ts.do(t, http.MethodPost, "/api/users/usr-1/rules", map[string]string{"name": "Emergency fund", "amount": "300"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rule := decode[api.RuleDTO](t, w)
	assert.True(t, rule.IsActive)

	w = ts.do(t, http.MethodPost, "/api/users/usr-1/rules", map[string]string{"name": "Vacation", "amount": "150"})
	require.Equal(t, http.StatusCreated, w.Code)
	vacation := decode[api.RuleDTO](t, w)

	// Deactivate vacation; totals and the active filter drop it
	off := false
	w = ts.do(t, http.MethodPatch, "/api/rules/"+vacation.ID, api.UpdateRuleRequest{IsActive: &off})
	require.Equal(t, http.StatusNoContent, w.Code)

	active := decode[[]api.RuleDTO](t, ts.do(t, http.MethodGet, "/api/users/usr-1/rules?active=true", nil))
	require.Len(t, active, 1)
	assert.Equal(t, "Emergency fund", active[0].Name)

	total := decode[api.SavingsTotalDTO](t, ts.do(t, http.MethodGet, "/api/users/usr-1/rules/total", nil))
	assert.Equal(t, "300", total.Total)
}

func TestRules_EmptyNameIs400(t *testing.T) {
	ts := newTestServer()
	w := ts.do(t, http.MethodPost, "/api/users/usr-1/rules", map[string]string{"name": "  ", "amount": "300"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// CATEGORIES & EXPENSES
// =============================================================================

func TestCategoriesAndExpenses_EndToEnd(t *testing.T) {
	ts := newTestServer()
	month := "2026-01"

	w := ts.do(t, http.MethodPost, "/api/users/usr-1/categories/"+month, map[string]string{"name": "Groceries", "budgeted": "400"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cat := decode[api.CategoryDTO](t, w)

	w = ts.do(t, http.MethodPost, "/api/users/usr-1/expenses/"+month, map[string]string{
		"category_id": cat.ID, "amount": "64.30", "note": "weekly shop",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	exp := decode[api.ExpenseDTO](t, w)

	view := decode[api.CategoriesDTO](t, ts.do(t, http.MethodGet, "/api/users/usr-1/categories/"+month, nil))
	require.Len(t, view.Categories, 1)
	assert.Equal(t, "64.3", view.TotalSpent)
	assert.Equal(t, "335.7", view.Categories[0].Remaining)

	// Delete reverses spent using the stored amount
	w = ts.do(t, http.MethodDelete, "/api/expenses/"+exp.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	view = decode[api.CategoriesDTO](t, ts.do(t, http.MethodGet, "/api/users/usr-1/categories/"+month, nil))
	assert.Equal(t, "0", view.TotalSpent)

	list := decode[[]api.ExpenseDTO](t, ts.do(t, http.MethodGet, "/api/users/usr-1/expenses/"+month, nil))
	assert.Empty(t, list)
}

func TestDeleteExpense_UnknownIs404(t *testing.T) {
	ts := newTestServer()
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/expenses/ghost", nil).Code)
}

func TestCategory_UpdateCannotTouchSpent(t *testing.T) {
	ts := newTestServer()
	month := "2026-01"
	cat := decode[api.CategoryDTO](t, ts.do(t, http.MethodPost, "/api/users/usr-1/categories/"+month,
		map[string]string{"name": "Groceries", "budgeted": "400"}))
	ts.do(t, http.MethodPost, "/api/users/usr-1/expenses/"+month, map[string]string{
		"category_id": cat.ID, "amount": "50",
	})

	// A client trying to smuggle spent through the patch body changes nothing
	w := ts.do(t, http.MethodPatch, "/api/categories/"+cat.ID, map[string]string{"budgeted": "500", "spent": "0"})
	require.Equal(t, http.StatusNoContent, w.Code)

	view := decode[api.CategoriesDTO](t, ts.do(t, http.MethodGet, "/api/users/usr-1/categories/"+month, nil))
	assert.Equal(t, "50", view.Categories[0].Spent)
	assert.Equal(t, "500", view.Categories[0].Budgeted)
}

// =============================================================================
// SAVINGS & SUMMARY
// =============================================================================

func TestSavings_LeftoverAndBreakdown(t *testing.T) {
	ts := newTestServer()
	month := "2026-01"

	w := ts.do(t, http.MethodPost, "/api/users/usr-1/savings/"+month+"/leftover", map[string]string{"amount": "42.50"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	breakdown := decode[api.SavingsMonthDTO](t, ts.do(t, http.MethodGet, "/api/users/usr-1/savings/"+month, nil))
	assert.Equal(t, "42.5", breakdown.Leftover)
	assert.Equal(t, "0", breakdown.Mandatory)
	assert.Equal(t, "42.5", breakdown.Total)

	total := decode[api.SavingsTotalDTO](t, ts.do(t, http.MethodGet, "/api/users/usr-1/savings", nil))
	assert.Equal(t, "42.5", total.Total)

	history := decode[[]api.SavingsHistoryDTO](t, ts.do(t, http.MethodGet, "/api/users/usr-1/savings/history", nil))
	require.Len(t, history, 1)
	assert.Equal(t, month, history[0].Month)
}

func TestSummary_AggregatesTheMonth(t *testing.T) {
	ts := newTestServer()
	month := "2026-01"

	ts.do(t, http.MethodPut, "/api/users/usr-1/income/"+month, map[string]string{"amount": "3000"})
	ts.do(t, http.MethodPost, "/api/users/usr-1/rules", map[string]string{"name": "Emergency fund", "amount": "300"})
	cat := decode[api.CategoryDTO](t, ts.do(t, http.MethodPost, "/api/users/usr-1/categories/"+month,
		map[string]string{"name": "Groceries", "budgeted": "400"}))
	ts.do(t, http.MethodPost, "/api/users/usr-1/expenses/"+month, map[string]string{"category_id": cat.ID, "amount": "90"})

	summary := decode[api.SummaryDTO](t, ts.do(t, http.MethodGet, "/api/users/usr-1/summary/"+month, nil))
	assert.Equal(t, "3000", summary.Income)
	assert.Equal(t, "300", summary.MandatoryTotal)
	assert.Equal(t, "90", summary.Budget.TotalSpent)
	assert.Equal(t, "0", summary.Savings.Total)
}

// =============================================================================
// ADMIN SWEEP
// =============================================================================

func TestAdminSweep_RollsOverStaleMarkers(t *testing.T) {
	// GIVEN: A user whose marker is pinned to an old month, with one rule
	// WHEN: The admin sweep runs
	// THEN: The marker advances and the month's accrual lands
	ts := newTestServer()
	ts.do(t, http.MethodPost, "/api/users", map[string]string{"id": "usr-1", "email": "a@example.com"})
	ts.do(t, http.MethodPost, "/api/users/usr-1/rules", map[string]string{"name": "Emergency fund", "amount": "300"})

	require.NoError(t, ts.store.Update(context.Background(), budget.CollectionUsers, "usr-1",
		docstore.Record{"currentMonth": "2019-01"}))

	w := ts.do(t, http.MethodPost, "/api/admin/rollover/sweep", nil)
	require.Equal(t, http.StatusOK, w.Code)
	result := decode[api.SweepResultDTO](t, w)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 1, result.RolledOver)
	assert.Equal(t, 0, result.Failed)

	user := decode[api.UserDTO](t, ts.do(t, http.MethodGet, "/api/users/usr-1/month", nil))
	assert.Equal(t, currentMonth(), user.CurrentMonth)

	path := fmt.Sprintf("/api/users/usr-1/savings/%s", currentMonth())
	breakdown := decode[api.SavingsMonthDTO](t, ts.do(t, http.MethodGet, path, nil))
	assert.Equal(t, "300", breakdown.Mandatory)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenarios_LoadFreshStart(t *testing.T) {
	ts := newTestServer()

	w := ts.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "fresh-start"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	view := decode[api.CategoriesDTO](t, ts.do(t, http.MethodGet, "/api/users/demo-fresh/categories/"+currentMonth(), nil))
	assert.Len(t, view.Categories, 3)

	current := decode[api.ScenarioDTO](t, ts.do(t, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "fresh-start", current.ID)
}

func TestScenarios_UnknownIs400(t *testing.T) {
	ts := newTestServer()
	w := ts.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
