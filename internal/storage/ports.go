package storage

import (
	"context"

	"several/internal/core"
)

// Keys of the values stored outside the budget and expense tables.
const (
	KeyManualOrder = "manualBudgetOrder"
	KeySettings    = "settings"
)

// Store persists the application data. Saves replace the whole collection.
type Store interface {
	GetBudgets(ctx context.Context) ([]core.Budget, error)
	SaveBudgets(ctx context.Context, budgets []core.Budget) error
	GetExpenses(ctx context.Context) ([]core.Expense, error)
	SaveExpenses(ctx context.Context, expenses []core.Expense) error
	GetManualOrder(ctx context.Context) ([]string, error)
	SaveManualOrder(ctx context.Context, order []string) error
	// GetSettings returns core.DefaultSettings when nothing was saved yet.
	GetSettings(ctx context.Context) (core.Settings, error)
	SaveSettings(ctx context.Context, s core.Settings) error
	// ClearAll removes budgets, expenses and the manual order.
	ClearAll(ctx context.Context) error
	Close() error
}
