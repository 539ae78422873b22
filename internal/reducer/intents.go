package reducer

import (
	"several/internal/core"
	"several/internal/ledger"
)

// Intent is a requested state transition. Intents are validated by the
// caller before they reach the reducer.
type Intent interface {
	Name() string
}

type (
	AddBudget struct{ Draft core.BudgetDraft }

	// UpdateBudget replaces the editable fields of Budget.ID.
	UpdateBudget struct{ Budget core.Budget }

	// DeleteBudget removes a budget together with its expenses.
	DeleteBudget struct{ ID string }

	// ReassignAndDeleteBudget moves the expenses of SourceID onto TargetID
	// and then removes SourceID.
	ReassignAndDeleteBudget struct {
		SourceID string
		TargetID string
	}

	AddExpense struct{ Draft core.ExpenseDraft }

	// UpdateExpense replaces the editable fields of Expense.ID.
	UpdateExpense struct{ Expense core.Expense }

	DeleteExpense struct{ ID string }

	UndoDeleteExpense struct{}

	MoveExpense struct {
		ExpenseID      string
		TargetBudgetID string
	}

	SetManualOrder struct{ Order []string }

	SetArchivedColor struct{ Color string }

	SetAutoDistributionStrategy struct{ Strategy core.Strategy }

	SetTheme struct{ Theme core.Theme }

	SetBudgetSortOrder struct{ Order core.BudgetSortOrder }

	SetExpenseSortOrder struct{ Order core.ExpenseSortOrder }

	// ImportBackup replaces the data set wholesale and merges Config.
	ImportBackup struct {
		Data   ledger.Snapshot
		Config core.SettingsPatch
	}

	// ClearData wipes budgets, expenses and the undo slot. Settings stay.
	ClearData struct{}
)

func (AddBudget) Name() string                   { return "add_budget" }
func (UpdateBudget) Name() string                { return "update_budget" }
func (DeleteBudget) Name() string                { return "delete_budget" }
func (ReassignAndDeleteBudget) Name() string     { return "reassign_and_delete_budget" }
func (AddExpense) Name() string                  { return "add_expense" }
func (UpdateExpense) Name() string               { return "update_expense" }
func (DeleteExpense) Name() string               { return "delete_expense" }
func (UndoDeleteExpense) Name() string           { return "undo_delete_expense" }
func (MoveExpense) Name() string                 { return "move_expense" }
func (SetManualOrder) Name() string              { return "set_manual_order" }
func (SetArchivedColor) Name() string            { return "set_archived_color" }
func (SetAutoDistributionStrategy) Name() string { return "set_auto_distribution_strategy" }
func (SetTheme) Name() string                    { return "set_theme" }
func (SetBudgetSortOrder) Name() string          { return "set_budget_sort_order" }
func (SetExpenseSortOrder) Name() string         { return "set_expense_sort_order" }
func (ImportBackup) Name() string                { return "import_backup" }
func (ClearData) Name() string                   { return "clear_data" }
