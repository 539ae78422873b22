package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Version is the application version stamped on backups.
const Version = "1.4.0"

type (
	// Budget is a capital envelope expenses are charged against.
	Budget struct {
		ID               string          `json:"id"`
		ReferenceNumber  string          `json:"referenceNumber"`
		Description      string          `json:"description"`
		CapitalTotal     decimal.Decimal `json:"capitalTotal"`
		UsablePercentage int             `json:"usablePercentage"`
		Color            string          `json:"color"`
		CreatedAt        time.Time       `json:"createdAt"`
		ModifiedAt       time.Time       `json:"modifiedAt"`
		IsArchived       bool            `json:"isArchived,omitempty"`
		IsRestored       bool            `json:"isRestored,omitempty"`
	}

	Expense struct {
		ID              string          `json:"id"`
		ReferenceNumber string          `json:"referenceNumber"`
		Description     string          `json:"description"`
		Amount          decimal.Decimal `json:"amount"`
		BudgetID        string          `json:"budgetId"`
		CreatedAt       time.Time       `json:"createdAt"`
	}

	// BudgetDraft holds the user editable fields of a budget.
	BudgetDraft struct {
		ReferenceNumber  string          `json:"referenceNumber"`
		Description      string          `json:"description"`
		CapitalTotal     decimal.Decimal `json:"capitalTotal"`
		UsablePercentage int             `json:"usablePercentage"`
		Color            string          `json:"color"`
	}

	// ExpenseDraft holds the user editable fields of an expense.
	ExpenseDraft struct {
		ReferenceNumber string          `json:"referenceNumber"`
		Description     string          `json:"description"`
		Amount          decimal.Decimal `json:"amount"`
		BudgetID        string          `json:"budgetId"`
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidPercentage  = errors.New("usable percentage must be between 1 and 100")
	ErrEmptyDescription   = errors.New("empty description")
	ErrEmptyReference     = errors.New("empty reference number")
	ErrEmptyColor         = errors.New("empty color")
	ErrDuplicateReference = errors.New("reference number already in use")
	ErrDuplicateColor     = errors.New("color already in use by an active budget")
	ErrInsufficientFunds  = errors.New("amount exceeds remaining balance")
	ErrNoTarget           = errors.New("no target budget selected")
	ErrBudgetNotFound     = errors.New("budget not found")
	ErrExpenseNotFound    = errors.New("expense not found")
	ErrBudgetArchived     = errors.New("budget is archived")
	ErrNoReassignTarget   = errors.New("no other active budget to reassign expenses to")
	ErrSameBudget         = errors.New("source and target budget are the same")
)

// Validate checks the field level rules of a budget draft.
func (d BudgetDraft) Validate() error {
	if strings.TrimSpace(d.ReferenceNumber) == "" {
		return ErrEmptyReference
	}
	if strings.TrimSpace(d.Description) == "" {
		return ErrEmptyDescription
	}
	if !d.CapitalTotal.IsPositive() {
		return ErrInvalidAmount
	}
	if d.UsablePercentage < 1 || d.UsablePercentage > 100 {
		return ErrInvalidPercentage
	}
	if strings.TrimSpace(d.Color) == "" {
		return ErrEmptyColor
	}
	return nil
}

// Validate checks the field level rules of an expense draft.
func (d ExpenseDraft) Validate() error {
	if strings.TrimSpace(d.ReferenceNumber) == "" {
		return ErrEmptyReference
	}
	if strings.TrimSpace(d.Description) == "" {
		return ErrEmptyDescription
	}
	if !d.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Draft returns the editable view of a budget.
func (b Budget) Draft() BudgetDraft {
	return BudgetDraft{
		ReferenceNumber:  b.ReferenceNumber,
		Description:      b.Description,
		CapitalTotal:     b.CapitalTotal,
		UsablePercentage: b.UsablePercentage,
		Color:            b.Color,
	}
}

// Apply copies the editable fields of d onto b.
func (b Budget) Apply(d BudgetDraft) Budget {
	b.ReferenceNumber = strings.TrimSpace(d.ReferenceNumber)
	b.Description = strings.TrimSpace(d.Description)
	b.CapitalTotal = d.CapitalTotal
	b.UsablePercentage = d.UsablePercentage
	b.Color = d.Color
	return b
}

// Apply copies the editable fields of d onto e.
func (e Expense) Apply(d ExpenseDraft) Expense {
	e.ReferenceNumber = strings.TrimSpace(d.ReferenceNumber)
	e.Description = strings.TrimSpace(d.Description)
	e.Amount = d.Amount
	e.BudgetID = d.BudgetID
	return e
}

// SameReference reports whether two reference numbers collide.
// Comparison ignores surrounding whitespace and case.
func SameReference(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// FindBudget returns the index of the budget with id, or -1.
func FindBudget(budgets []Budget, id string) int {
	for i := range budgets {
		if budgets[i].ID == id {
			return i
		}
	}
	return -1
}

// FindExpense returns the index of the expense with id, or -1.
func FindExpense(expenses []Expense, id string) int {
	for i := range expenses {
		if expenses[i].ID == id {
			return i
		}
	}
	return -1
}
