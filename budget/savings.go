/*
savings.go - Append-only savings ledger

PURPOSE:
  Savings entries are the accrual records produced by month rollover
  (source=mandatory) and by explicit leftover sweeps (source=leftover).

CRITICAL INVARIANTS:
  1. APPEND-ONLY: entries are never updated or deleted.
  2. NO CACHED TOTALS: every total, breakdown, and history point is a sum
     over entries at read time. Correctness reduces to "the entries are
     correct"; there is no denormalized aggregate to drift or corrupt.

IDEMPOTENT APPENDS:
  Accrual entries carry deterministic ids keyed by (user, month, rule).
  Re-appending after a crash or retry collides on the id and is treated as
  already applied, which is what makes the rollover's accrual step safely
  retriable.

COST:
  Reads are O(entries). That trade for auditability is deliberate; do not
  "optimize" this into a counter.
*/
package budget

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/docstore"
)

// SavingsLedger reads and appends savings entries.
type SavingsLedger struct {
	store docstore.Store
}

func NewSavingsLedger(store docstore.Store) *SavingsLedger {
	return &SavingsLedger{store: store}
}

// Add appends a new entry with a random id. Used for manual entries; the
// rollover engine appends through AddEntry with deterministic ids.
func (l *SavingsLedger) Add(ctx context.Context, userID string, month Month, amount decimal.Decimal, source SavingsSource) (string, error) {
	return l.AddEntry(ctx, SavingsEntry{
		ID:     "sav-" + uuid.New().String(),
		UserID: userID,
		Month:  month,
		Amount: amount,
		Source: source,
	})
}

// AddEntry appends the given entry, honoring its id. An id collision means
// the entry was already appended and returns docstore.ErrDuplicateID.
func (l *SavingsLedger) AddEntry(ctx context.Context, e SavingsEntry) (string, error) {
	if err := requireUser(e.UserID); err != nil {
		return "", err
	}
	if err := requirePositive("amount", e.Amount); err != nil {
		return "", err
	}
	if !e.Source.Valid() {
		return "", &ValidationError{Field: "source", Message: fmt.Sprintf("unknown source %q", e.Source)}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	id, err := l.store.Create(ctx, CollectionSavings, e.record())
	if errors.Is(err, docstore.ErrDuplicateID) {
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("failed to append savings entry: %w", err)
	}
	return id, nil
}

// MonthEntries returns a month's entries, oldest first.
func (l *SavingsLedger) MonthEntries(ctx context.Context, userID string, month Month) ([]SavingsEntry, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	recs, err := l.store.Query(ctx, CollectionSavings,
		docstore.Eq("userId", userID), docstore.Eq("month", string(month)))
	if err != nil {
		return nil, fmt.Errorf("failed to load savings: %w", err)
	}
	return decodeEntries(recs), nil
}

// Total sums every entry for the user across all months.
func (l *SavingsLedger) Total(ctx context.Context, userID string) (decimal.Decimal, error) {
	if err := requireUser(userID); err != nil {
		return decimal.Zero, err
	}
	recs, err := l.store.Query(ctx, CollectionSavings, docstore.Eq("userId", userID))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load savings: %w", err)
	}

	total := decimal.Zero
	for _, r := range recs {
		total = total.Add(r.Decimal("amount"))
	}
	return total, nil
}

// MonthTotal sums one month's entries.
func (l *SavingsLedger) MonthTotal(ctx context.Context, userID string, month Month) (decimal.Decimal, error) {
	entries, err := l.MonthEntries(ctx, userID, month)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total, nil
}

// Breakdown partitions a month's savings by source.
// Total == Mandatory + Leftover == MonthTotal, always.
type Breakdown struct {
	Mandatory decimal.Decimal
	Leftover  decimal.Decimal
	Total     decimal.Decimal
}

// Breakdown computes the per-source partition for a month.
func (l *SavingsLedger) Breakdown(ctx context.Context, userID string, month Month) (Breakdown, error) {
	entries, err := l.MonthEntries(ctx, userID, month)
	if err != nil {
		return Breakdown{}, err
	}

	b := Breakdown{Mandatory: decimal.Zero, Leftover: decimal.Zero}
	for _, e := range entries {
		switch e.Source {
		case SourceMandatory:
			b.Mandatory = b.Mandatory.Add(e.Amount)
		case SourceLeftover:
			b.Leftover = b.Leftover.Add(e.Amount)
		}
	}
	b.Total = b.Mandatory.Add(b.Leftover)
	return b, nil
}

// MonthSavings is one point in the savings history.
type MonthSavings struct {
	Month Month
	Total decimal.Decimal
}

// History groups entries by month, newest month first, truncated to limit
// (0 means all). The result is a finite snapshot, re-queryable at will.
func (l *SavingsLedger) History(ctx context.Context, userID string, limit int) ([]MonthSavings, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	recs, err := l.store.Query(ctx, CollectionSavings, docstore.Eq("userId", userID))
	if err != nil {
		return nil, fmt.Errorf("failed to load savings: %w", err)
	}

	byMonth := make(map[Month]decimal.Decimal)
	for _, r := range recs {
		m := Month(r.String("month"))
		byMonth[m] = byMonth[m].Add(r.Decimal("amount"))
	}

	out := make([]MonthSavings, 0, len(byMonth))
	for m, total := range byMonth {
		out = append(out, MonthSavings{Month: m, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[j].Month.Before(out[i].Month) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func decodeEntries(recs []docstore.Record) []SavingsEntry {
	out := make([]SavingsEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, savingsFromRecord(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
