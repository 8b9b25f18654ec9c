package budget

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/docstore"
)

// =============================================================================
// INCOME LEDGER - One income figure per user per month
// =============================================================================

// IncomeLedger tracks monthly income. The invariant: at most one record per
// (userID, month) pair. Records get deterministic ids derived from that
// pair, so concurrent set/add calls converge on the same document instead of
// creating duplicates.
type IncomeLedger struct {
	store docstore.Store
}

func NewIncomeLedger(store docstore.Store) *IncomeLedger {
	return &IncomeLedger{store: store}
}

func incomeID(userID string, month Month) string {
	return fmt.Sprintf("inc-%s-%s", userID, month)
}

// Income returns the record for the pair, or nil when none exists.
func (l *IncomeLedger) Income(ctx context.Context, userID string, month Month) (*Income, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	rec, err := l.store.Get(ctx, CollectionIncome, incomeID(userID, month))
	if docstore.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load income: %w", err)
	}
	inc := incomeFromRecord(rec)
	return &inc, nil
}

// SetIncome creates or replaces the month's income figure. Upsert, never
// duplicate: the deterministic id means a create racing another create
// collapses into an update.
func (l *IncomeLedger) SetIncome(ctx context.Context, userID string, month Month, amount decimal.Decimal) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if err := requirePositive("amount", amount); err != nil {
		return err
	}

	fields := docstore.Record{
		"amount":   amount.String(),
		"lockedAt": time.Now().UTC().Format(time.RFC3339),
	}
	err := l.store.Update(ctx, CollectionIncome, incomeID(userID, month), fields)
	if !docstore.IsNotFound(err) {
		return err
	}

	inc := Income{
		ID:       incomeID(userID, month),
		UserID:   userID,
		Month:    month,
		Amount:   amount,
		LockedAt: time.Now().UTC(),
	}
	_, err = l.store.Create(ctx, CollectionIncome, inc.record())
	if errors.Is(err, docstore.ErrDuplicateID) {
		// Lost the create race; the record exists now.
		return l.store.Update(ctx, CollectionIncome, incomeID(userID, month), fields)
	}
	return err
}

// AddIncome adds extra income on top of the existing figure. The add is a
// store-side relative increment, not a read-modify-write, so concurrent
// adds never lose an update. With no existing record the delta becomes the
// initial amount, matching SetIncome.
func (l *IncomeLedger) AddIncome(ctx context.Context, userID string, month Month, delta decimal.Decimal) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if err := requirePositive("amount", delta); err != nil {
		return err
	}

	id := incomeID(userID, month)
	err := l.store.IncrementField(ctx, CollectionIncome, id, "amount", delta)
	if err == nil {
		return l.store.Update(ctx, CollectionIncome, id, docstore.Record{
			"lockedAt": time.Now().UTC().Format(time.RFC3339),
		})
	}
	if !docstore.IsNotFound(err) {
		return fmt.Errorf("failed to add income: %w", err)
	}

	inc := Income{
		ID:       id,
		UserID:   userID,
		Month:    month,
		Amount:   delta,
		LockedAt: time.Now().UTC(),
	}
	_, err = l.store.Create(ctx, CollectionIncome, inc.record())
	if errors.Is(err, docstore.ErrDuplicateID) {
		return l.store.IncrementField(ctx, CollectionIncome, id, "amount", delta)
	}
	return err
}

// History returns income records most-recent month first, truncated to
// limit (0 means all).
func (l *IncomeLedger) History(ctx context.Context, userID string, limit int) ([]Income, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	recs, err := l.store.Query(ctx, CollectionIncome, docstore.Eq("userId", userID))
	if err != nil {
		return nil, fmt.Errorf("failed to load income history: %w", err)
	}

	out := make([]Income, 0, len(recs))
	for _, r := range recs {
		out = append(out, incomeFromRecord(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[j].Month.Before(out[i].Month) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
