/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  All monetary amounts cross the wire as decimal strings ("1234.56").
  Parsing happens in handlers; DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - budget/types.go: The domain records these mirror
*/
package api

import (
	"time"

	"github.com/warp/budget-engine/budget"
)

// =============================================================================
// USERS
// =============================================================================

// UserDTO represents a user marker in API responses.
type UserDTO struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	CurrentMonth string `json:"current_month"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// CreateUserRequest is the onboarding request.
type CreateUserRequest struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SessionDTO reports the outcome of a session-start rollover check.
type SessionDTO struct {
	Month          string `json:"month"`
	RolledOver     bool   `json:"rolled_over"`
	Lost           bool   `json:"lost,omitempty"`
	AlreadyCurrent bool   `json:"already_current,omitempty"`
	EntriesWritten int    `json:"entries_written"`
	EntriesSkipped int    `json:"entries_skipped"`
}

// =============================================================================
// INCOME
// =============================================================================

// IncomeDTO represents the single income record for a (user, month) pair.
type IncomeDTO struct {
	ID       string `json:"id,omitempty"`
	Month    string `json:"month"`
	Amount   string `json:"amount"`
	LockedAt string `json:"locked_at,omitempty"`
}

// SetIncomeRequest sets or adds to a month's income.
type SetIncomeRequest struct {
	Amount string `json:"amount"`
}

// =============================================================================
// RULES
// =============================================================================

// RuleDTO represents a mandatory savings rule.
type RuleDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Amount    string `json:"amount"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateRuleRequest creates a mandatory rule.
type CreateRuleRequest struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

// UpdateRuleRequest patches a rule. Nil fields are left untouched.
type UpdateRuleRequest struct {
	Name     *string `json:"name,omitempty"`
	Amount   *string `json:"amount,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// =============================================================================
// CATEGORIES
// =============================================================================

// CategoryDTO represents a per-month spending envelope.
type CategoryDTO struct {
	ID        string `json:"id"`
	Month     string `json:"month"`
	Name      string `json:"name"`
	Budgeted  string `json:"budgeted"`
	Spent     string `json:"spent"`
	Remaining string `json:"remaining"`
	Overspent bool   `json:"overspent"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateCategoryRequest creates a category for a month.
type CreateCategoryRequest struct {
	Name     string `json:"name"`
	Budgeted string `json:"budgeted"`
}

// UpdateCategoryRequest patches name and/or budget. Spent is not editable.
type UpdateCategoryRequest struct {
	Name     *string `json:"name,omitempty"`
	Budgeted *string `json:"budgeted,omitempty"`
}

// CategoriesDTO is the month view: categories plus aggregate totals.
type CategoriesDTO struct {
	Month         string        `json:"month"`
	TotalBudgeted string        `json:"total_budgeted"`
	TotalSpent    string        `json:"total_spent"`
	Remaining     string        `json:"remaining"`
	Categories    []CategoryDTO `json:"categories"`
}

// =============================================================================
// EXPENSES
// =============================================================================

// ExpenseDTO represents an individual spend record.
type ExpenseDTO struct {
	ID         string `json:"id"`
	Month      string `json:"month"`
	CategoryID string `json:"category_id"`
	Amount     string `json:"amount"`
	Note       string `json:"note,omitempty"`
	Date       string `json:"date"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// CreateExpenseRequest records an expense against a category.
type CreateExpenseRequest struct {
	CategoryID string `json:"category_id"`
	Amount     string `json:"amount"`
	Note       string `json:"note"`
	Date       string `json:"date,omitempty"`
}

// =============================================================================
// SAVINGS
// =============================================================================

// SavingsTotalDTO is the all-time accumulated savings.
type SavingsTotalDTO struct {
	Total string `json:"total"`
}

// SavingsMonthDTO is a month's total with the per-source breakdown.
type SavingsMonthDTO struct {
	Month     string `json:"month"`
	Mandatory string `json:"mandatory"`
	Leftover  string `json:"leftover"`
	Total     string `json:"total"`
}

// SavingsHistoryDTO is one month in the savings history.
type SavingsHistoryDTO struct {
	Month string `json:"month"`
	Total string `json:"total"`
}

// AddLeftoverRequest appends a manual leftover savings entry.
type AddLeftoverRequest struct {
	Amount string `json:"amount"`
}

// =============================================================================
// SUMMARY
// =============================================================================

// SummaryDTO is the dashboard aggregate for one month.
type SummaryDTO struct {
	Month          string          `json:"month"`
	Income         string          `json:"income"`
	MandatoryTotal string          `json:"mandatory_total"`
	Budget         CategoriesDTO   `json:"budget"`
	Savings        SavingsMonthDTO `json:"savings"`
}

// =============================================================================
// ADMIN / SCENARIOS
// =============================================================================

// SweepResultDTO reports one scheduler sweep.
type SweepResultDTO struct {
	Checked    int `json:"checked"`
	RolledOver int `json:"rolled_over"`
	Failed     int `json:"failed"`
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toUserDTO(u budget.UserMarker) UserDTO {
	return UserDTO{
		ID:           u.ID,
		Email:        u.Email,
		CurrentMonth: u.CurrentMonth.String(),
		CreatedAt:    formatTime(u.CreatedAt),
	}
}

func toRuleDTO(r budget.MandatoryRule) RuleDTO {
	return RuleDTO{
		ID:        r.ID,
		Name:      r.Name,
		Amount:    r.Amount.String(),
		IsActive:  r.IsActive,
		CreatedAt: formatTime(r.CreatedAt),
	}
}

func toCategoryDTO(c budget.Category) CategoryDTO {
	return CategoryDTO{
		ID:        c.ID,
		Month:     c.Month.String(),
		Name:      c.Name,
		Budgeted:  c.Budgeted.String(),
		Spent:     c.Spent.String(),
		Remaining: c.Remaining().String(),
		Overspent: c.Overspent(),
		CreatedAt: formatTime(c.CreatedAt),
	}
}

func toExpenseDTO(e budget.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID:         e.ID,
		Month:      e.Month.String(),
		CategoryID: e.CategoryID,
		Amount:     e.Amount.String(),
		Note:       e.Note,
		Date:       e.Date.Format("2006-01-02"),
		CreatedAt:  formatTime(e.CreatedAt),
	}
}

func toCategoriesDTO(month budget.Month, ov budget.Overview) CategoriesDTO {
	cats := make([]CategoryDTO, len(ov.Categories))
	for i, c := range ov.Categories {
		cats[i] = toCategoryDTO(c)
	}
	return CategoriesDTO{
		Month:         month.String(),
		TotalBudgeted: ov.TotalBudgeted.String(),
		TotalSpent:    ov.TotalSpent.String(),
		Remaining:     ov.Remaining.String(),
		Categories:    cats,
	}
}

func toSavingsMonthDTO(month budget.Month, b budget.Breakdown) SavingsMonthDTO {
	return SavingsMonthDTO{
		Month:     month.String(),
		Mandatory: b.Mandatory.String(),
		Leftover:  b.Leftover.String(),
		Total:     b.Total.String(),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
