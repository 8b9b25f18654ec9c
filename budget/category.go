package budget

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/docstore"
)

// =============================================================================
// CATEGORY LEDGER - Per-month discretionary spending envelopes
// =============================================================================

// CategoryLedger manages per-month categories. "Food" in March and "Food"
// in April are distinct records with independent budgets and spent totals.
//
// INVARIANT: spent is mutated only by the expense ledger's relative
// increments. Budget edits never touch it.
type CategoryLedger struct {
	store docstore.Store
}

func NewCategoryLedger(store docstore.Store) *CategoryLedger {
	return &CategoryLedger{store: store}
}

// Categories returns the month's categories, oldest first.
func (l *CategoryLedger) Categories(ctx context.Context, userID string, month Month) ([]Category, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	recs, err := l.store.Query(ctx, CollectionCategories,
		docstore.Eq("userId", userID), docstore.Eq("month", string(month)))
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}

	out := make([]Category, 0, len(recs))
	for _, r := range recs {
		out = append(out, categoryFromRecord(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Category loads one category by id.
func (l *CategoryLedger) Category(ctx context.Context, categoryID string) (Category, error) {
	rec, err := l.store.Get(ctx, CollectionCategories, categoryID)
	if err != nil {
		return Category{}, err
	}
	return categoryFromRecord(rec), nil
}

// CreateCategory opens a new envelope with spent = 0.
func (l *CategoryLedger) CreateCategory(ctx context.Context, userID string, month Month, name string, budgeted decimal.Decimal) (Category, error) {
	if err := requireUser(userID); err != nil {
		return Category{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if budgeted.IsNegative() {
		return Category{}, &ValidationError{Field: "budgeted", Message: "must not be negative"}
	}

	cat := Category{
		ID:        "cat-" + uuid.New().String(),
		UserID:    userID,
		Month:     month,
		Name:      name,
		Budgeted:  budgeted,
		Spent:     decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := l.store.Create(ctx, CollectionCategories, cat.record()); err != nil {
		return Category{}, fmt.Errorf("failed to create category: %w", err)
	}
	return cat, nil
}

// CategoryUpdate carries the editable subset. Spent is deliberately absent.
type CategoryUpdate struct {
	Name     *string
	Budgeted *decimal.Decimal
}

// UpdateCategory patches name and/or budget. Spent cannot be edited here.
func (l *CategoryLedger) UpdateCategory(ctx context.Context, categoryID string, upd CategoryUpdate) error {
	fields := docstore.Record{}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return &ValidationError{Field: "name", Message: "must not be empty"}
		}
		fields["name"] = name
	}
	if upd.Budgeted != nil {
		if upd.Budgeted.IsNegative() {
			return &ValidationError{Field: "budgeted", Message: "must not be negative"}
		}
		fields["budgeted"] = upd.Budgeted.String()
	}
	if len(fields) == 0 {
		return &ValidationError{Field: "update", Message: "no fields to update"}
	}
	return l.store.Update(ctx, CollectionCategories, categoryID, fields)
}

// DeleteCategory removes the envelope. Expenses pointing at it become
// orphans and are not reconciled; their spend history stays queryable but
// the envelope's totals are gone. Accepted limitation.
func (l *CategoryLedger) DeleteCategory(ctx context.Context, categoryID string) error {
	return l.store.Delete(ctx, CollectionCategories, categoryID)
}

// Overview aggregates a month's envelopes for the dashboard.
type Overview struct {
	TotalBudgeted decimal.Decimal
	TotalSpent    decimal.Decimal
	Remaining     decimal.Decimal
	Categories    []Category
}

// Overview sums budgeted and spent across the month's categories.
func (l *CategoryLedger) Overview(ctx context.Context, userID string, month Month) (Overview, error) {
	cats, err := l.Categories(ctx, userID, month)
	if err != nil {
		return Overview{}, err
	}

	ov := Overview{
		TotalBudgeted: decimal.Zero,
		TotalSpent:    decimal.Zero,
		Categories:    cats,
	}
	for _, c := range cats {
		ov.TotalBudgeted = ov.TotalBudgeted.Add(c.Budgeted)
		ov.TotalSpent = ov.TotalSpent.Add(c.Spent)
	}
	ov.Remaining = ov.TotalBudgeted.Sub(ov.TotalSpent)
	return ov, nil
}
