package budget_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/docstore/memory"
)

func TestCreateCategory_StartsWithZeroSpent(t *testing.T) {
	categories := budget.NewCategoryLedger(memory.New())

	cat, err := categories.CreateCategory(context.Background(), "usr-1", "2026-01", "Groceries", dec("400"))
	require.NoError(t, err)
	assert.True(t, cat.Spent.IsZero())
	assert.True(t, cat.Remaining().Equal(dec("400")))
	assert.False(t, cat.Overspent())
}

func TestCreateCategory_AllowsZeroBudget(t *testing.T) {
	// A zero envelope is a tracking-only category; only negatives are
	// rejected.
	categories := budget.NewCategoryLedger(memory.New())
	ctx := context.Background()

	_, err := categories.CreateCategory(ctx, "usr-1", "2026-01", "Tracking", dec("0"))
	assert.NoError(t, err)

	_, err = categories.CreateCategory(ctx, "usr-1", "2026-01", "Broken", dec("-10"))
	assert.ErrorIs(t, err, budget.ErrValidation)
}

func TestUpdateCategory_NeverTouchesSpent(t *testing.T) {
	// GIVEN: A category with accumulated spending
	// WHEN: The budget and name are edited
	// THEN: Spent is untouched; only expense create/delete may move it
	store := memory.New()
	categories := budget.NewCategoryLedger(store)
	expenses := budget.NewExpenseLedger(store)
	ctx := context.Background()

	cat, err := categories.CreateCategory(ctx, "usr-1", "2026-01", "Groceries", dec("400"))
	require.NoError(t, err)
	_, err = expenses.RecordExpense(ctx, "usr-1", "2026-01", cat.ID, dec("75.25"), "", time.Now())
	require.NoError(t, err)

	name := "Food"
	budgeted := dec("500")
	require.NoError(t, categories.UpdateCategory(ctx, cat.ID, budget.CategoryUpdate{Name: &name, Budgeted: &budgeted}))

	reloaded, err := categories.Category(ctx, cat.ID)
	require.NoError(t, err)
	assert.Equal(t, "Food", reloaded.Name)
	assert.True(t, reloaded.Budgeted.Equal(dec("500")))
	assert.True(t, reloaded.Spent.Equal(dec("75.25")), "got %s", reloaded.Spent)
}

func TestOverview_SumsAcrossCategories(t *testing.T) {
	store := memory.New()
	categories := budget.NewCategoryLedger(store)
	expenses := budget.NewExpenseLedger(store)
	ctx := context.Background()

	groceries, err := categories.CreateCategory(ctx, "usr-1", "2026-01", "Groceries", dec("400"))
	require.NoError(t, err)
	_, err = categories.CreateCategory(ctx, "usr-1", "2026-01", "Transport", dec("120"))
	require.NoError(t, err)
	// Another month stays out of the overview
	_, err = categories.CreateCategory(ctx, "usr-1", "2026-02", "Groceries", dec("999"))
	require.NoError(t, err)

	_, err = expenses.RecordExpense(ctx, "usr-1", "2026-01", groceries.ID, dec("90"), "", time.Now())
	require.NoError(t, err)

	ov, err := categories.Overview(ctx, "usr-1", "2026-01")
	require.NoError(t, err)
	assert.Len(t, ov.Categories, 2)
	assert.True(t, ov.TotalBudgeted.Equal(dec("520")), "got %s", ov.TotalBudgeted)
	assert.True(t, ov.TotalSpent.Equal(dec("90")), "got %s", ov.TotalSpent)
	assert.True(t, ov.Remaining.Equal(dec("430")), "got %s", ov.Remaining)
}

func TestDeleteCategory_LeavesExpensesInHistory(t *testing.T) {
	store := memory.New()
	categories := budget.NewCategoryLedger(store)
	expenses := budget.NewExpenseLedger(store)
	ctx := context.Background()

	cat, err := categories.CreateCategory(ctx, "usr-1", "2026-01", "Groceries", dec("400"))
	require.NoError(t, err)
	_, err = expenses.RecordExpense(ctx, "usr-1", "2026-01", cat.ID, dec("30"), "", time.Now())
	require.NoError(t, err)

	require.NoError(t, categories.DeleteCategory(ctx, cat.ID))

	_, err = categories.Category(ctx, cat.ID)
	assert.True(t, budget.IsNotFound(err))

	list, err := expenses.MonthExpenses(ctx, "usr-1", "2026-01")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
