package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"several/internal/core"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	settings, err := s.GetSettings(ctx)
	if err != nil || settings != core.DefaultSettings() {
		t.Fatalf("fresh settings = %+v, %v", settings, err)
	}

	budgets := []core.Budget{{ID: "a", CapitalTotal: decimal.NewFromInt(5)}}
	if err := s.SaveBudgets(ctx, budgets); err != nil {
		t.Fatal(err)
	}
	budgets[0].ID = "mutated"
	got, _ := s.GetBudgets(ctx)
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("GetBudgets() = %+v, store must copy on save", got)
	}

	_ = s.SaveExpenses(ctx, []core.Expense{{ID: "e", BudgetID: "a"}})
	_ = s.SaveManualOrder(ctx, []string{"a"})
	settings.Theme = core.ThemeDark
	_ = s.SaveSettings(ctx, settings)

	if err := s.ClearAll(ctx); err != nil {
		t.Fatal(err)
	}
	b, _ := s.GetBudgets(ctx)
	e, _ := s.GetExpenses(ctx)
	o, _ := s.GetManualOrder(ctx)
	if len(b)+len(e)+len(o) != 0 {
		t.Errorf("ClearAll left data: %v %v %v", b, e, o)
	}
	if kept, _ := s.GetSettings(ctx); kept.Theme != core.ThemeDark {
		t.Error("ClearAll must keep settings")
	}
	if s.Saves() != 4 {
		t.Errorf("Saves() = %d, want 4", s.Saves())
	}
}

func TestNewFromFile(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFromFile(filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("missing seed should not fail: %v", err)
	}
	if b, _ := s.GetBudgets(context.Background()); len(b) != 0 {
		t.Errorf("expected empty store, got %v", b)
	}

	seed := filepath.Join(dir, "seed.json")
	raw := `{"budgets":[{"id":"a","capitalTotal":10,"usablePercentage":100}],"expenses":[]}`
	if err := os.WriteFile(seed, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err = NewFromFile(seed)
	if err != nil {
		t.Fatalf("NewFromFile() error = %v", err)
	}
	order, _ := s.GetManualOrder(context.Background())
	if len(order) != 1 || order[0] != "a" {
		t.Errorf("order = %v", order)
	}

	if err := os.WriteFile(seed, []byte(`{"nope":1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFromFile(seed); err == nil {
		t.Error("expected error for unrecognized seed")
	}
}
