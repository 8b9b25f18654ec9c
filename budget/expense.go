/*
expense.go - Expense records and the spent-total invariant

PURPOSE:
  Keeps each category's spent total consistent with its expenses without
  recomputing the sum on the hot path.

INVARIANT:
  spent(category) == sum(amounts of its recorded, non-removed expenses).

  Creating an expense increments the category's spent by the amount;
  removing it decrements by the same amount. Both sides use the store's
  commutative IncrementField, never a read-modify-write of the cached
  total, so concurrent expense traffic on one category cannot lose updates.

EDGE CASES:
  - Overspending (spent > budgeted) is allowed. The UI warns; the engine
    never rejects or clamps.
  - The two writes (expense doc, spent increment) are not one atomic
    transaction. A crash in between leaves an expense whose amount is not
    reflected in spent; re-recording is the recovery, same as the original
    application.
  - RemoveExpense takes the original amount from the caller. The engine
    does not re-read the expense, so callers capture the amount before
    deleting. The HTTP layer does that re-read on the caller's behalf.

SEE ALSO:
  - category.go: the envelope being mutated
*/
package budget

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/docstore"
)

// ExpenseLedger records individual spends and maintains the category spent
// invariant.
type ExpenseLedger struct {
	store docstore.Store
}

func NewExpenseLedger(store docstore.Store) *ExpenseLedger {
	return &ExpenseLedger{store: store}
}

// RecordExpense creates the expense, then increments the category's spent.
// The category must exist; referential integrity is the caller's problem,
// matching the document store's lack of foreign keys.
func (l *ExpenseLedger) RecordExpense(ctx context.Context, userID string, month Month, categoryID string, amount decimal.Decimal, note string, date time.Time) (Expense, error) {
	if err := requireUser(userID); err != nil {
		return Expense{}, err
	}
	if categoryID == "" {
		return Expense{}, &ValidationError{Field: "categoryId", Message: "must not be empty"}
	}
	if err := requirePositive("amount", amount); err != nil {
		return Expense{}, err
	}
	if date.IsZero() {
		date = time.Now().UTC()
	}

	exp := Expense{
		ID:         "exp-" + uuid.New().String(),
		UserID:     userID,
		Month:      month,
		CategoryID: categoryID,
		Amount:     amount,
		Note:       note,
		Date:       date,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := l.store.Create(ctx, CollectionExpenses, exp.record()); err != nil {
		return Expense{}, fmt.Errorf("failed to create expense: %w", err)
	}

	if err := l.store.IncrementField(ctx, CollectionCategories, categoryID, "spent", amount); err != nil {
		return Expense{}, fmt.Errorf("expense %s recorded but spent update failed: %w", exp.ID, err)
	}
	return exp, nil
}

// RemoveExpense deletes the expense and decrements the category's spent by
// the originally recorded amount, supplied by the caller.
func (l *ExpenseLedger) RemoveExpense(ctx context.Context, expenseID, categoryID string, amount decimal.Decimal) error {
	if expenseID == "" {
		return &ValidationError{Field: "expenseId", Message: "must not be empty"}
	}
	if err := requirePositive("amount", amount); err != nil {
		return err
	}

	if err := l.store.Delete(ctx, CollectionExpenses, expenseID); err != nil {
		return err
	}

	err := l.store.IncrementField(ctx, CollectionCategories, categoryID, "spent", amount.Neg())
	if docstore.IsNotFound(err) {
		// Category already deleted; the expense was an orphan. Nothing to
		// reconcile.
		return nil
	}
	if err != nil {
		return fmt.Errorf("expense %s removed but spent update failed: %w", expenseID, err)
	}
	return nil
}

// Expense loads one expense by id.
func (l *ExpenseLedger) Expense(ctx context.Context, expenseID string) (Expense, error) {
	rec, err := l.store.Get(ctx, CollectionExpenses, expenseID)
	if err != nil {
		return Expense{}, err
	}
	return expenseFromRecord(rec), nil
}

// MonthExpenses returns a month's expenses, newest first.
func (l *ExpenseLedger) MonthExpenses(ctx context.Context, userID string, month Month) ([]Expense, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	recs, err := l.store.Query(ctx, CollectionExpenses,
		docstore.Eq("userId", userID), docstore.Eq("month", string(month)))
	if err != nil {
		return nil, fmt.Errorf("failed to load expenses: %w", err)
	}
	return sortNewestFirst(recs), nil
}

// CategoryExpenses returns every expense referencing a category, newest
// spend date first.
func (l *ExpenseLedger) CategoryExpenses(ctx context.Context, userID, categoryID string) ([]Expense, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	recs, err := l.store.Query(ctx, CollectionExpenses,
		docstore.Eq("userId", userID), docstore.Eq("categoryId", categoryID))
	if err != nil {
		return nil, fmt.Errorf("failed to load expenses: %w", err)
	}

	out := make([]Expense, 0, len(recs))
	for _, r := range recs {
		out = append(out, expenseFromRecord(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// RecentExpenses truncates MonthExpenses to the latest n.
func (l *ExpenseLedger) RecentExpenses(ctx context.Context, userID string, month Month, n int) ([]Expense, error) {
	expenses, err := l.MonthExpenses(ctx, userID, month)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(expenses) > n {
		expenses = expenses[:n]
	}
	return expenses, nil
}

// TotalMonthExpenses sums a month's expense amounts.
func (l *ExpenseLedger) TotalMonthExpenses(ctx context.Context, userID string, month Month) (decimal.Decimal, error) {
	expenses, err := l.MonthExpenses(ctx, userID, month)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total, nil
}

func sortNewestFirst(recs []docstore.Record) []Expense {
	out := make([]Expense, 0, len(recs))
	for _, r := range recs {
		out = append(out, expenseFromRecord(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
