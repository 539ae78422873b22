package services

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"several/internal/core"
	"several/internal/distribution"
	"several/internal/ledger"
	"several/internal/log"
	"several/internal/reducer"
)

// ExpenseRequest is an expense draft plus the distribution strategy to use
// when Draft.BudgetID is empty. An empty Strategy uses the configured one.
type ExpenseRequest struct {
	Draft    core.ExpenseDraft
	Strategy core.Strategy
}

// CreateBudget adds a budget. An empty color gets the first free palette color.
func (s *BudgetService) CreateBudget(ctx context.Context, d core.BudgetDraft) (core.Budget, error) {
	if err := s.lock(); err != nil {
		return core.Budget{}, err
	}
	defer s.mu.Unlock()

	d.CapitalTotal = d.CapitalTotal.Round(2)
	if d.Color == "" {
		d.Color = core.SuggestColor(s.state.Budgets)
	}
	if err := validateBudget(s.state, d, "", true); err != nil {
		return core.Budget{}, err
	}

	next := s.dispatch(ctx, reducer.AddBudget{Draft: d})
	return next.Budgets[len(next.Budgets)-1], nil
}

// UpdateBudget edits a budget. Archived budgets keep their archived color.
func (s *BudgetService) UpdateBudget(ctx context.Context, id string, d core.BudgetDraft) (core.Budget, error) {
	if err := s.lock(); err != nil {
		return core.Budget{}, err
	}
	defer s.mu.Unlock()

	current, ok := s.state.Budget(id)
	if !ok {
		return core.Budget{}, core.ErrBudgetNotFound
	}
	d.CapitalTotal = d.CapitalTotal.Round(2)
	if current.IsArchived {
		d.Color = current.Color
	}
	if err := validateBudget(s.state, d, id, !current.IsArchived); err != nil {
		return core.Budget{}, err
	}

	updated := current.Apply(d)
	next, err := s.dispatchGuarded(ctx, reducer.UpdateBudget{Budget: updated})
	if err != nil {
		return core.Budget{}, err
	}
	b, _ := next.Budget(id)
	return b, nil
}

// DeleteBudget removes a budget. A budget with expenses needs reassignTo,
// an active budget that receives them.
func (s *BudgetService) DeleteBudget(ctx context.Context, id, reassignTo string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if _, ok := s.state.Budget(id); !ok {
		return core.ErrBudgetNotFound
	}
	if ledger.ExpenseCount(s.state.Expenses, id) == 0 {
		s.dispatch(ctx, reducer.DeleteBudget{ID: id})
		return nil
	}

	if len(reassignTargets(s.state, id)) == 0 {
		return invalid("reassignTo", core.ErrNoReassignTarget)
	}
	if reassignTo == id {
		return invalid("reassignTo", core.ErrSameBudget)
	}
	if _, err := activeTarget(s.state, "reassignTo", reassignTo); err != nil {
		return err
	}

	s.dispatch(ctx, reducer.ReassignAndDeleteBudget{SourceID: id, TargetID: reassignTo})
	return nil
}

// ReassignTargets lists the active budgets that can take over the
// expenses of id.
func (s *BudgetService) ReassignTargets(id string) []core.Budget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return reassignTargets(s.state, id)
}

func reassignTargets(st ledger.State, id string) []core.Budget {
	var out []core.Budget
	for _, b := range st.Budgets {
		if b.ID != id && !b.IsArchived {
			out = append(out, b)
		}
	}
	return out
}

// AddExpense records an expense against Draft.BudgetID or, when empty,
// against the budget chosen by the request strategy.
func (s *BudgetService) AddExpense(ctx context.Context, req ExpenseRequest) (core.Expense, error) {
	if err := s.lock(); err != nil {
		return core.Expense{}, err
	}
	defer s.mu.Unlock()

	d := req.Draft
	d.Amount = d.Amount.Round(2)
	if err := d.Validate(); err != nil {
		return core.Expense{}, invalid(fieldOf(err, "amount"), err)
	}
	if err := validateExpenseReference(s.state, d.ReferenceNumber, ""); err != nil {
		return core.Expense{}, err
	}

	if d.BudgetID == "" {
		id, err := s.resolve(ctx, d.Amount, req.Strategy, "")
		if err != nil {
			return core.Expense{}, err
		}
		d.BudgetID = id
	}
	target, err := activeTarget(s.state, "budgetId", d.BudgetID)
	if err != nil {
		return core.Expense{}, err
	}
	if err := checkFunds(s.state, target, d.Amount, nil); err != nil {
		return core.Expense{}, err
	}

	next := s.dispatch(ctx, reducer.AddExpense{Draft: d})
	return next.Expenses[len(next.Expenses)-1], nil
}

// UpdateExpense edits an expense. With an empty Draft.BudgetID the expense
// stays where it is under the manual strategy; any other strategy picks a
// different budget.
func (s *BudgetService) UpdateExpense(ctx context.Context, id string, req ExpenseRequest) (core.Expense, error) {
	if err := s.lock(); err != nil {
		return core.Expense{}, err
	}
	defer s.mu.Unlock()

	current, ok := s.state.Expense(id)
	if !ok {
		return core.Expense{}, core.ErrExpenseNotFound
	}

	d := req.Draft
	d.Amount = d.Amount.Round(2)
	if err := d.Validate(); err != nil {
		return core.Expense{}, invalid(fieldOf(err, "amount"), err)
	}
	if err := validateExpenseReference(s.state, d.ReferenceNumber, id); err != nil {
		return core.Expense{}, err
	}

	if d.BudgetID == "" {
		if s.strategyFor(req.Strategy) == core.StrategyManual {
			d.BudgetID = current.BudgetID
		} else {
			target, err := s.resolve(ctx, d.Amount, req.Strategy, current.BudgetID)
			if err != nil {
				return core.Expense{}, err
			}
			d.BudgetID = target
		}
	}

	var target core.Budget
	if d.BudgetID == current.BudgetID {
		target, _ = s.state.Budget(d.BudgetID)
	} else {
		var err error
		if target, err = activeTarget(s.state, "budgetId", d.BudgetID); err != nil {
			return core.Expense{}, err
		}
	}
	if err := checkFunds(s.state, target, d.Amount, &current); err != nil {
		return core.Expense{}, err
	}

	next, err := s.dispatchGuarded(ctx, reducer.UpdateExpense{Expense: current.Apply(d)})
	if err != nil {
		return core.Expense{}, err
	}
	e, _ := next.Expense(id)
	return e, nil
}

// DeleteExpense removes an expense and keeps it in the undo slot.
func (s *BudgetService) DeleteExpense(ctx context.Context, id string) (core.Expense, error) {
	if err := s.lock(); err != nil {
		return core.Expense{}, err
	}
	defer s.mu.Unlock()

	e, ok := s.state.Expense(id)
	if !ok {
		return core.Expense{}, core.ErrExpenseNotFound
	}
	if _, err := s.dispatchGuarded(ctx, reducer.DeleteExpense{ID: id}); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

// UndoDelete restores the most recently deleted expense.
func (s *BudgetService) UndoDelete(ctx context.Context) (core.Expense, error) {
	if err := s.lock(); err != nil {
		return core.Expense{}, err
	}
	defer s.mu.Unlock()

	if !s.state.CanUndo() {
		return core.Expense{}, ErrNothingToUndo
	}
	restored := *s.state.LastDeleted
	s.dispatch(ctx, reducer.UndoDeleteExpense{})
	return restored, nil
}

// MoveExpense reassigns one expense to an active budget that can absorb it.
func (s *BudgetService) MoveExpense(ctx context.Context, id, targetID string) (core.Expense, error) {
	if err := s.lock(); err != nil {
		return core.Expense{}, err
	}
	defer s.mu.Unlock()

	e, ok := s.state.Expense(id)
	if !ok {
		return core.Expense{}, core.ErrExpenseNotFound
	}
	if targetID == e.BudgetID {
		return core.Expense{}, invalid("budgetId", core.ErrSameBudget)
	}
	target, err := activeTarget(s.state, "budgetId", targetID)
	if err != nil {
		return core.Expense{}, err
	}
	if err := checkFunds(s.state, target, e.Amount, nil); err != nil {
		return core.Expense{}, err
	}

	next, err := s.dispatchGuarded(ctx, reducer.MoveExpense{ExpenseID: id, TargetBudgetID: targetID})
	if err != nil {
		return core.Expense{}, err
	}
	moved, _ := next.Expense(id)
	return moved, nil
}

// MoveTargets lists the budgets an expense can be moved to.
func (s *BudgetService) MoveTargets(id string) ([]distribution.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.state.Expense(id)
	if !ok {
		return nil, core.ErrExpenseNotFound
	}
	return distribution.Candidates(e.Amount, e.BudgetID, s.state.Budgets, s.state.Expenses), nil
}

// Resolve previews the budget strategy would pick for amount.
func (s *BudgetService) Resolve(ctx context.Context, amount decimal.Decimal, strategy core.Strategy, excludeBudgetID string) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.resolve(ctx, amount.Round(2), strategy, excludeBudgetID)
	if err != nil {
		return core.Budget{}, err
	}
	b, _ := s.state.Budget(id)
	return b, nil
}

func (s *BudgetService) strategyFor(requested core.Strategy) core.Strategy {
	if requested == "" {
		return s.state.Settings.AutoDistributionStrategy
	}
	return requested
}

// resolve runs the resolver for an unassigned expense. Callers hold s.mu.
func (s *BudgetService) resolve(ctx context.Context, amount decimal.Decimal, requested core.Strategy, exclude string) (string, error) {
	strategy := s.strategyFor(requested)
	if strategy != core.StrategyManual && !s.resolver.Supports(strategy) {
		return "", invalid("strategy", distribution.ErrUnknownStrategy)
	}
	if !amount.IsPositive() {
		return "", invalid("amount", core.ErrInvalidAmount)
	}

	id, err := s.resolver.Resolve(amount, strategy, exclude, s.state.Budgets, s.state.Expenses)
	switch {
	case errors.Is(err, distribution.ErrManualStrategy):
		return "", invalid("budgetId", core.ErrNoTarget)
	case err != nil:
		s.logger.InfoContext(ctx, "No budget for auto distribution", log.NewFields().
			WithOperation(log.OpResolve).
			WithError(err, log.ErrorTypeResolution).ToSlice()...)
		return "", &ResolutionError{Strategy: strategy, Amount: amount, Err: err}
	}
	return id, nil
}
