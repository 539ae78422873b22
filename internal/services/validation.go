package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"several/internal/archive"
	"several/internal/core"
	"several/internal/ledger"
)

// validateBudget checks d against the field rules and against the other
// active budgets. selfID is empty for new budgets.
func validateBudget(st ledger.State, d core.BudgetDraft, selfID string, checkColor bool) error {
	if err := d.Validate(); err != nil {
		return invalid(fieldOf(err, "capitalTotal"), err)
	}
	if checkColor && !core.ValidColor(d.Color) {
		return invalid("color", fmt.Errorf("%w: %q", core.ErrInvalidSetting, d.Color))
	}
	for _, b := range st.Budgets {
		if b.IsArchived || b.ID == selfID {
			continue
		}
		if core.SameReference(b.ReferenceNumber, d.ReferenceNumber) {
			return invalid("referenceNumber", core.ErrDuplicateReference)
		}
		if checkColor && strings.EqualFold(strings.TrimSpace(b.Color), strings.TrimSpace(d.Color)) {
			return invalid("color", core.ErrDuplicateColor)
		}
	}
	return nil
}

// validateExpenseReference rejects a reference number already used by
// another expense.
func validateExpenseReference(st ledger.State, ref, selfID string) error {
	for _, e := range st.Expenses {
		if e.ID != selfID && core.SameReference(e.ReferenceNumber, ref) {
			return invalid("referenceNumber", core.ErrDuplicateReference)
		}
	}
	return nil
}

// checkFunds verifies target can absorb amount. When current is the
// expense being edited on the same budget, only the increase counts.
func checkFunds(st ledger.State, target core.Budget, amount decimal.Decimal, current *core.Expense) error {
	remaining := core.Remaining(target, st.Expenses)
	need := amount
	if current != nil && current.BudgetID == target.ID {
		need = amount.Sub(current.Amount)
	}
	if need.GreaterThan(remaining) {
		return invalid("amount", fmt.Errorf("%w: %s available in %q",
			core.ErrInsufficientFunds, core.FormatAmount(remaining), target.Description))
	}
	return nil
}

// activeTarget looks up id and rejects archived budgets.
func activeTarget(st ledger.State, field, id string) (core.Budget, error) {
	if id == "" {
		return core.Budget{}, invalid(field, core.ErrNoTarget)
	}
	b, ok := st.Budget(id)
	if !ok {
		return core.Budget{}, invalid(field, core.ErrBudgetNotFound)
	}
	if b.IsArchived {
		return core.Budget{}, invalid(field, core.ErrBudgetArchived)
	}
	return b, nil
}

// validateOrder rejects unknown or repeated ids.
func validateOrder(st ledger.State, order []string) error {
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		if _, ok := st.Budget(id); !ok {
			return invalid("order", fmt.Errorf("%w: %s", ErrUnknownBudgetID, id))
		}
		if seen[id] {
			return invalid("order", fmt.Errorf("duplicate budget %s", id))
		}
		seen[id] = true
	}
	return nil
}

// checkRestoredReferences rejects a transition that restores a budget whose
// reference number is already used by another active budget in after.
func checkRestoredReferences(before, after []core.Budget) error {
	for _, tr := range archive.Diff(before, after) {
		if tr.Archived {
			continue
		}
		var restored core.Budget
		for _, b := range after {
			if b.ID == tr.BudgetID {
				restored = b
				break
			}
		}
		for _, b := range after {
			if b.ID != restored.ID && !b.IsArchived && core.SameReference(b.ReferenceNumber, restored.ReferenceNumber) {
				return invalid("referenceNumber", fmt.Errorf("%w: restoring %q would duplicate reference %q of %q",
					core.ErrDuplicateReference, restored.Description, restored.ReferenceNumber, b.Description))
			}
		}
	}
	return nil
}
