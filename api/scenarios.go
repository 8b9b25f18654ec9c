/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for testing and demos. Each scenario creates a user, income,
	mandatory rules, categories, and some expenses.

AVAILABLE SCENARIOS:

	fresh-start:    Single user, first month, a few envelopes, no history
	family-budget:  Household with rules, several categories, expenses,
	                and accrued savings from a simulated prior rollover

HOW SCENARIOS WORK:
 1. Create a user via the engine (stamps the current month)
 2. Set income, create rules and categories
 3. Record expenses through the expense ledger so spent totals stay
    consistent with the records
 4. family-budget also appends prior-month savings entries to give the
    history endpoints something to show

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "family-budget"}

NOTE:

	Scenarios write fixed user ids and deterministic income/savings ids,
	so re-loading one is idempotent at the user level but duplicates
	random-id records (rules, categories, expenses). Only use in
	development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - budget/rollover.go: InitializeUser
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/docstore"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-start",
		Name:        "Fresh Start",
		Description: "New user in their first month: income, three envelopes, no history",
	},
	{
		ID:          "family-budget",
		Name:        "Family Budget",
		Description: "Household with mandatory rules, expenses, and savings history",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: h.currentScenario, Name: h.currentScenario})
}

// LoadScenario populates the store with a demo scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	var err error
	switch req.ScenarioID {
	case "fresh-start":
		err = h.loadFreshStart(ctx)
	case "family-budget":
		err = h.loadFamilyBudget(ctx)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) loadFreshStart(ctx context.Context) error {
	const userID = "demo-fresh"
	month := budget.CurrentMonth(time.Now())

	if _, err := h.Engine.InitializeUser(ctx, userID, "fresh@example.com"); err != nil && !errors.Is(err, docstore.ErrDuplicateID) {
		return err
	}

	if err := h.Income.SetIncome(ctx, userID, month, dec("2800")); err != nil {
		return err
	}

	for _, c := range []struct {
		name     string
		budgeted string
	}{
		{"Groceries", "450"},
		{"Transport", "120"},
		{"Fun", "150"},
	} {
		if _, err := h.Categories.CreateCategory(ctx, userID, month, c.name, dec(c.budgeted)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadFamilyBudget(ctx context.Context) error {
	const userID = "demo-family"
	month := budget.CurrentMonth(time.Now())
	prev := month.Prev()

	if _, err := h.Engine.InitializeUser(ctx, userID, "family@example.com"); err != nil && !errors.Is(err, docstore.ErrDuplicateID) {
		return err
	}

	if err := h.Income.SetIncome(ctx, userID, month, dec("5200")); err != nil {
		return err
	}
	if err := h.Income.SetIncome(ctx, userID, prev, dec("5200")); err != nil {
		return err
	}

	rules := []struct {
		name   string
		amount string
	}{
		{"Emergency fund", "300"},
		{"Vacation", "150"},
		{"Kids college", "200"},
	}
	var ruleIDs []string
	for _, rl := range rules {
		created, err := h.Rules.CreateRule(ctx, userID, rl.name, dec(rl.amount))
		if err != nil {
			return err
		}
		ruleIDs = append(ruleIDs, created.ID)
	}

	categories := []struct {
		name     string
		budgeted string
		expenses []string
	}{
		{"Groceries", "800", []string{"64.30", "112.85", "38.20"}},
		{"Utilities", "250", []string{"180.00"}},
		{"Kids", "300", []string{"45.99", "23.50"}},
		{"Dining out", "200", []string{"89.40", "52.10", "78.25"}},
	}
	for _, c := range categories {
		cat, err := h.Categories.CreateCategory(ctx, userID, month, c.name, dec(c.budgeted))
		if err != nil {
			return err
		}
		for i, amount := range c.expenses {
			date := time.Now().AddDate(0, 0, -i*3)
			if _, err := h.Expenses.RecordExpense(ctx, userID, month, cat.ID, dec(amount), "", date); err != nil {
				return err
			}
		}
	}

	// Simulated prior-month accrual, shaped like real rollover entries.
	for i, ruleID := range ruleIDs {
		entry := budget.SavingsEntry{
			ID:     fmt.Sprintf("sav-%s-%s-%s", userID, prev, ruleID),
			UserID: userID,
			Month:  prev,
			Amount: dec(rules[i].amount),
			Source: budget.SourceMandatory,
		}
		if _, err := h.Savings.AddEntry(ctx, entry); err != nil && !errors.Is(err, docstore.ErrDuplicateID) {
			return err
		}
	}
	return nil
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}
