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
// MANDATORY RULE SET - Recurring fixed deductions
// =============================================================================

// RuleSet manages a user's mandatory rules. Rules outlive months; their
// effect is applied fresh by each rollover, and only active rules count.
type RuleSet struct {
	store docstore.Store
}

func NewRuleSet(store docstore.Store) *RuleSet {
	return &RuleSet{store: store}
}

// Rules returns every rule for the user, oldest first.
func (s *RuleSet) Rules(ctx context.Context, userID string) ([]MandatoryRule, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return s.query(ctx, docstore.Eq("userId", userID))
}

// ActiveRules returns only rules that currently contribute to the mandatory
// total and to rollover accrual.
func (s *RuleSet) ActiveRules(ctx context.Context, userID string) ([]MandatoryRule, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return s.query(ctx, docstore.Eq("userId", userID), docstore.Eq("isActive", true))
}

// CreateRule adds a new rule, active by default.
func (s *RuleSet) CreateRule(ctx context.Context, userID, name string, amount decimal.Decimal) (MandatoryRule, error) {
	if err := requireUser(userID); err != nil {
		return MandatoryRule{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return MandatoryRule{}, &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if err := requirePositive("amount", amount); err != nil {
		return MandatoryRule{}, err
	}

	rule := MandatoryRule{
		ID:        "rule-" + uuid.New().String(),
		UserID:    userID,
		Name:      name,
		Amount:    amount,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.store.Create(ctx, CollectionRules, rule.record()); err != nil {
		return MandatoryRule{}, fmt.Errorf("failed to create rule: %w", err)
	}
	return rule, nil
}

// RuleUpdate carries the mutable subset of a rule. Nil fields are left
// untouched.
type RuleUpdate struct {
	Name     *string
	Amount   *decimal.Decimal
	IsActive *bool
}

// UpdateRule patches name, amount, and/or active flag.
func (s *RuleSet) UpdateRule(ctx context.Context, ruleID string, upd RuleUpdate) error {
	fields := docstore.Record{}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return &ValidationError{Field: "name", Message: "must not be empty"}
		}
		fields["name"] = name
	}
	if upd.Amount != nil {
		if err := requirePositive("amount", *upd.Amount); err != nil {
			return err
		}
		fields["amount"] = upd.Amount.String()
	}
	if upd.IsActive != nil {
		fields["isActive"] = *upd.IsActive
	}
	if len(fields) == 0 {
		return &ValidationError{Field: "update", Message: "no fields to update"}
	}
	return s.store.Update(ctx, CollectionRules, ruleID, fields)
}

// DeleteRule removes a rule entirely. Deactivating (IsActive=false) is the
// reversible alternative.
func (s *RuleSet) DeleteRule(ctx context.Context, ruleID string) error {
	return s.store.Delete(ctx, CollectionRules, ruleID)
}

// TotalMandatory sums the active rule amounts.
func (s *RuleSet) TotalMandatory(ctx context.Context, userID string) (decimal.Decimal, error) {
	rules, err := s.ActiveRules(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range rules {
		total = total.Add(r.Amount)
	}
	return total, nil
}

func (s *RuleSet) query(ctx context.Context, preds ...docstore.Where) ([]MandatoryRule, error) {
	recs, err := s.store.Query(ctx, CollectionRules, preds...)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	out := make([]MandatoryRule, 0, len(recs))
	for _, r := range recs {
		out = append(out, ruleFromRecord(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
