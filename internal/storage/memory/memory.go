// Package memory is a process local storage.Store used for development
// and tests.
package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"several/internal/backup"
	"several/internal/core"
	"several/internal/storage"
)

type Store struct {
	mu       sync.Mutex
	budgets  []core.Budget
	expenses []core.Expense
	order    []string
	settings *core.Settings
	saves    int
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// NewFromFile seeds the store from a backup document. A missing file
// yields an empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	res, err := backup.Parse(raw, core.Version)
	if err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	s.budgets = res.Data.Budgets
	s.expenses = res.Data.Expenses
	s.order = res.Data.ManualOrder
	if !res.Config.IsEmpty() {
		settings := core.DefaultSettings().Merge(res.Config)
		s.settings = &settings
	}
	return s, nil
}

func (s *Store) GetBudgets(_ context.Context) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Budget(nil), s.budgets...), nil
}

func (s *Store) SaveBudgets(_ context.Context, budgets []core.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets = append([]core.Budget(nil), budgets...)
	s.saves++
	return nil
}

func (s *Store) GetExpenses(_ context.Context) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Expense(nil), s.expenses...), nil
}

func (s *Store) SaveExpenses(_ context.Context, expenses []core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses = append([]core.Expense(nil), expenses...)
	s.saves++
	return nil
}

func (s *Store) GetManualOrder(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...), nil
}

func (s *Store) SaveManualOrder(_ context.Context, order []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append([]string(nil), order...)
	s.saves++
	return nil
}

func (s *Store) GetSettings(_ context.Context) (core.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return core.DefaultSettings(), nil
	}
	return *s.settings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings core.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &settings
	s.saves++
	return nil
}

func (s *Store) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets, s.expenses, s.order = nil, nil, nil
	return nil
}

// Saves reports how many save calls the store has served.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *Store) Close() error { return nil }
