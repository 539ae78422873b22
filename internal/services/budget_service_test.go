package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"several/internal/amqp"
	"several/internal/backup"
	"several/internal/core"
	"several/internal/distribution"
	"several/internal/reducer"
	"several/internal/storage"
	"several/internal/storage/memory"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []amqp.NoticeMessage
	err  error
}

func (f *fakeNotifier) PublishNotice(_ context.Context, msg *amqp.NoticeMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, *msg)
	return f.err
}

func (f *fakeNotifier) kinds() []amqp.NoticeKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []amqp.NoticeKind
	for _, m := range f.msgs {
		out = append(out, m.Kind)
	}
	return out
}

// failingStore rejects budget saves.
type failingStore struct {
	storage.Store
}

func (failingStore) SaveBudgets(context.Context, []core.Budget) error {
	return errors.New("disk full")
}

// flakyStore fails the first failures budget saves.
type flakyStore struct {
	storage.Store

	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyStore) SaveBudgets(ctx context.Context, budgets []core.Budget) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return errors.New("database is locked")
	}
	return f.Store.SaveBudgets(ctx, budgets)
}

func (f *flakyStore) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestService(t *testing.T, store storage.Store) (*BudgetService, *fakeNotifier) {
	t.Helper()
	n := 0
	clock := func() time.Time { return t0 }
	notifier := &fakeNotifier{}
	svc := NewBudgetService(store, Options{
		Reducer: reducer.New(
			reducer.WithClock(clock),
			reducer.WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
		),
		Notifier: notifier,
		Clock:    clock,
	})
	t.Cleanup(func() { svc.Close() })
	return svc, notifier
}

func budgetDraft(ref string, capital int64, color string) core.BudgetDraft {
	return core.BudgetDraft{
		ReferenceNumber:  ref,
		Description:      "Budget " + ref,
		CapitalTotal:     decimal.NewFromInt(capital),
		UsablePercentage: 100,
		Color:            color,
	}
}

func expenseReq(ref string, amount string, budgetID string) ExpenseRequest {
	return ExpenseRequest{Draft: core.ExpenseDraft{
		ReferenceNumber: ref,
		Description:     "Expense " + ref,
		Amount:          decimal.RequireFromString(amount),
		BudgetID:        budgetID,
	}}
}

func mustBudget(t *testing.T, svc *BudgetService, d core.BudgetDraft) core.Budget {
	t.Helper()
	b, err := svc.CreateBudget(context.Background(), d)
	if err != nil {
		t.Fatalf("CreateBudget(%s) error = %v", d.ReferenceNumber, err)
	}
	return b
}

func mustExpense(t *testing.T, svc *BudgetService, req ExpenseRequest) core.Expense {
	t.Helper()
	e, err := svc.AddExpense(context.Background(), req)
	if err != nil {
		t.Fatalf("AddExpense(%s) error = %v", req.Draft.ReferenceNumber, err)
	}
	return e
}

func assertField(t *testing.T, err error, field string, target error) {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if ve.Field != field {
		t.Errorf("Field = %q, want %q", ve.Field, field)
	}
	if target != nil && !errors.Is(err, target) {
		t.Errorf("error = %v, want %v", err, target)
	}
}

func TestBudgetService_ArchiveAndRestore(t *testing.T) {
	store := memory.New()
	svc, notifier := newTestService(t, store)
	ctx := context.Background()

	b := mustBudget(t, svc, budgetDraft("B1", 100, core.Palette[0]))
	e := mustExpense(t, svc, expenseReq("E1", "100", b.ID))

	got, _ := svc.State().Budget(b.ID)
	if !got.IsArchived || got.Color != core.DefaultArchivedColor {
		t.Fatalf("after exhausting: archived=%v color=%s", got.IsArchived, got.Color)
	}

	if _, err := svc.DeleteExpense(ctx, e.ID); err != nil {
		t.Fatalf("DeleteExpense() error = %v", err)
	}
	got, _ = svc.State().Budget(b.ID)
	if got.IsArchived || !got.IsRestored {
		t.Errorf("after delete: archived=%v restored=%v", got.IsArchived, got.IsRestored)
	}

	if err := svc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	want := []amqp.NoticeKind{amqp.NoticeBudgetArchived, amqp.NoticeBudgetRestored}
	if fmt.Sprint(notifier.kinds()) != fmt.Sprint(want) {
		t.Errorf("published = %v, want %v", notifier.kinds(), want)
	}
	if len(svc.Notices()) != 2 {
		t.Errorf("Notices() = %d entries, want 2", len(svc.Notices()))
	}

	persisted, _ := store.GetBudgets(ctx)
	if len(persisted) != 1 || !persisted[0].IsRestored {
		t.Errorf("persisted budgets = %+v", persisted)
	}
}

func TestBudgetService_CreateBudgetValidation(t *testing.T) {
	svc, _ := newTestService(t, memory.New())
	mustBudget(t, svc, budgetDraft("B1", 100, core.Palette[0]))

	tests := []struct {
		name   string
		draft  core.BudgetDraft
		field  string
		target error
	}{
		{"duplicate reference", budgetDraft(" b1 ", 50, core.Palette[1]), "referenceNumber", core.ErrDuplicateReference},
		{"duplicate color", budgetDraft("B2", 50, strings.ToLower(core.Palette[0])), "color", core.ErrDuplicateColor},
		{"invalid color", budgetDraft("B2", 50, "blue"), "color", core.ErrInvalidSetting},
		{"zero capital", budgetDraft("B2", 0, core.Palette[1]), "capitalTotal", core.ErrInvalidAmount},
		{"empty reference", budgetDraft("", 10, core.Palette[1]), "referenceNumber", core.ErrEmptyReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateBudget(context.Background(), tt.draft)
			assertField(t, err, tt.field, tt.target)
		})
	}
	if n := len(svc.State().Budgets); n != 1 {
		t.Errorf("budgets = %d, want 1", n)
	}
}

func TestBudgetService_CreateBudgetSuggestsColor(t *testing.T) {
	svc, _ := newTestService(t, memory.New())
	mustBudget(t, svc, budgetDraft("B1", 100, core.Palette[0]))

	b := mustBudget(t, svc, budgetDraft("B2", 100, ""))
	if b.Color != core.Palette[1] {
		t.Errorf("Color = %s, want %s", b.Color, core.Palette[1])
	}
}

func TestBudgetService_ArchivedBudgetFreesReferenceAndColor(t *testing.T) {
	svc, _ := newTestService(t, memory.New())
	b := mustBudget(t, svc, budgetDraft("B1", 10, core.Palette[0]))
	mustExpense(t, svc, expenseReq("E1", "10", b.ID))

	if _, err := svc.CreateBudget(context.Background(), budgetDraft("B1", 10, core.Palette[0])); err != nil {
		t.Errorf("reusing reference and color of an archived budget: %v", err)
	}
}

func TestBudgetService_RestoreKeepsActiveReferencesUnique(t *testing.T) {
	tests := []struct {
		name   string
		action func(svc *BudgetService, expenseID, spareID string) error
	}{
		{"delete expense", func(svc *BudgetService, e, _ string) error {
			return errOnly(svc.DeleteExpense(context.Background(), e))
		}},
		{"lower amount", func(svc *BudgetService, e, _ string) error {
			req := expenseReq("E1", "4", "")
			return errOnly(svc.UpdateExpense(context.Background(), e, req))
		}},
		{"move away", func(svc *BudgetService, e, spare string) error {
			return errOnly(svc.MoveExpense(context.Background(), e, spare))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, memory.New())
			a := mustBudget(t, svc, budgetDraft("R1", 10, core.Palette[0]))
			e := mustExpense(t, svc, expenseReq("E1", "10", a.ID))
			mustBudget(t, svc, budgetDraft("R1", 50, core.Palette[1]))
			spare := mustBudget(t, svc, budgetDraft("R2", 50, core.Palette[2]))

			assertField(t, tt.action(svc, e.ID, spare.ID), "referenceNumber", core.ErrDuplicateReference)

			after := svc.State()
			active := 0
			for _, b := range after.Budgets {
				if !b.IsArchived && b.ReferenceNumber == "R1" {
					active++
				}
			}
			if active != 1 {
				t.Errorf("active budgets with reference R1 = %d, want 1", active)
			}
			if got, ok := after.Expense(e.ID); !ok || got.BudgetID != a.ID || !got.Amount.Equal(decimal.NewFromInt(10)) || after.CanUndo() {
				t.Errorf("rejected change leaked into state: expense %+v canUndo %v", got, after.CanUndo())
			}
		})
	}
}

func TestBudgetService_RestoreWithFreeReference(t *testing.T) {
	svc, _ := newTestService(t, memory.New())
	a := mustBudget(t, svc, budgetDraft("R1", 10, core.Palette[0]))
	e := mustExpense(t, svc, expenseReq("E1", "10", a.ID))
	mustBudget(t, svc, budgetDraft("R2", 50, core.Palette[1]))

	if _, err := svc.DeleteExpense(context.Background(), e.ID); err != nil {
		t.Fatalf("DeleteExpense() error = %v", err)
	}
	if b, _ := svc.State().Budget(a.ID); b.IsArchived || !b.IsRestored {
		t.Errorf("budget not restored: %+v", b)
	}
}

func TestBudgetService_AddExpenseValidation(t *testing.T) {
	svc, _ := newTestService(t, memory.New())
	b := mustBudget(t, svc, budgetDraft("B1", 100, core.Palette[0]))
	mustExpense(t, svc, expenseReq("E1", "60", b.ID))

	tests := []struct {
		name   string
		req    ExpenseRequest
		field  string
		target error
	}{
		{"duplicate reference", expenseReq("e1", "1", b.ID), "referenceNumber", core.ErrDuplicateReference},
		{"insufficient funds", expenseReq("E2", "40.01", b.ID), "amount", core.ErrInsufficientFunds},
		{"non positive amount", expenseReq("E2", "0.001", b.ID), "amount", core.ErrInvalidAmount},
		{"unknown budget", expenseReq("E2", "1", "nope"), "budgetId", core.ErrBudgetNotFound},
		{"manual without target", expenseReq("E2", "1", ""), "budgetId", core.ErrNoTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddExpense(context.Background(), tt.req)
			assertField(t, err, tt.field, tt.target)
		})
	}

	if _, err := svc.AddExpense(context.Background(), expenseReq("E2", "40", b.ID)); err != nil {
		t.Errorf("exact remaining amount rejected: %v", err)
	}
}

func TestBudgetService_AutoDistribution(t *testing.T) {
	svc, _ := newTestService(t, memory.New())
	ctx := context.Background()
	big := mustBudget(t, svc, budgetDraft("BIG", 500, core.Palette[0]))
	small := mustBudget(t, svc, budgetDraft("SMALL", 50, core.Palette[1]))

	strategy := core.StrategyBestFit
	if _, err := svc.UpdateSettings(ctx, core.SettingsPatch{AutoDistributionStrategy: &strategy}); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	e := mustExpense(t, svc, expenseReq("E1", "30", ""))
	if e.BudgetID != small.ID {
		t.Errorf("best-fit picked %s, want %s", e.BudgetID, small.ID)
	}

	req := expenseReq("E2", "30", "")
	req.Strategy = core.StrategyLargestAvailable
	e = mustExpense(t, svc, req)
	if e.BudgetID != big.ID {
		t.Errorf("largest-available picked %s, want %s", e.BudgetID, big.ID)
	}

	_, err := svc.AddExpense(ctx, expenseReq("E3", "1000", ""))
	var re *ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("error = %v, want *ResolutionError", err)
	}
	if !errors.Is(err, distribution.ErrNoEligibleBudget) {
		t.Errorf("error = %v, want ErrNoEligibleBudget", err)
	}
	if re.FallbackStrategy() != core.StrategyManual || re.Strategy != core.StrategyBestFit {
		t.Errorf("ResolutionError = %+v", re)
	}

	req = expenseReq("E3", "1", "")
	req.Strategy = "cheapest"
	_, err = svc.AddExpense(ctx, req)
	assertField(t, err, "strategy", distribution.ErrUnknownStrategy)
}

func TestBudgetService_UpdateExpense(t *testing.T) {
	ctx := context.Background()

	t.Run("same budget checks only the increase", func(t *testing.T) {
		svc, _ := newTestService(t, memory.New())
		b := mustBudget(t, svc, budgetDraft("B1", 100, core.Palette[0]))
		e := mustExpense(t, svc, expenseReq("E1", "60", b.ID))

		if _, err := svc.UpdateExpense(ctx, e.ID, expenseReq("E1", "100.01", "")); !errors.Is(err, core.ErrInsufficientFunds) {
			t.Errorf("error = %v, want ErrInsufficientFunds", err)
		}
		got, err := svc.UpdateExpense(ctx, e.ID, expenseReq("E1", "100", ""))
		if err != nil {
			t.Fatalf("UpdateExpense() error = %v", err)
		}
		if got.BudgetID != b.ID || !got.Amount.Equal(decimal.NewFromInt(100)) || !got.CreatedAt.Equal(e.CreatedAt) {
			t.Errorf("updated = %+v", got)
		}
		bb, _ := svc.State().Budget(b.ID)
		if !bb.IsArchived {
			t.Error("budget should be archived once fully spent")
		}

		// shrinking an expense on an archived budget restores it
		if _, err := svc.UpdateExpense(ctx, e.ID, expenseReq("E1", "90", "")); err != nil {
			t.Fatalf("UpdateExpense() on archived budget error = %v", err)
		}
		bb, _ = svc.State().Budget(b.ID)
		if bb.IsArchived {
			t.Error("budget should be restored")
		}
	})

	t.Run("auto strategy excludes the current budget", func(t *testing.T) {
		svc, _ := newTestService(t, memory.New())
		a := mustBudget(t, svc, budgetDraft("A", 100, core.Palette[0]))
		b := mustBudget(t, svc, budgetDraft("B", 100, core.Palette[1]))
		e := mustExpense(t, svc, expenseReq("E1", "10", a.ID))

		req := expenseReq("E1", "10", "")
		req.Strategy = core.StrategyOldest
		got, err := svc.UpdateExpense(ctx, e.ID, req)
		if err != nil {
			t.Fatalf("UpdateExpense() error = %v", err)
		}
		if got.BudgetID != b.ID {
			t.Errorf("BudgetID = %s, want %s", got.BudgetID, b.ID)
		}
	})

	t.Run("unknown expense", func(t *testing.T) {
		svc, _ := newTestService(t, memory.New())
		if _, err := svc.UpdateExpense(ctx, "ghost", expenseReq("E1", "1", "")); !errors.Is(err, core.ErrExpenseNotFound) {
			t.Errorf("error = %v, want ErrExpenseNotFound", err)
		}
	})
}

func TestBudgetService_DeleteBudget(t *testing.T) {
	ctx := context.Background()

	t.Run("without expenses", func(t *testing.T) {
		svc, _ := newTestService(t, memory.New())
		b := mustBudget(t, svc, budgetDraft("B1", 100, core.Palette[0]))
		if err := svc.DeleteBudget(ctx, b.ID, ""); err != nil {
			t.Fatalf("DeleteBudget() error = %v", err)
		}
		if st := svc.State(); len(st.Budgets) != 0 || len(st.ManualOrder) != 0 {
			t.Errorf("state after delete = %+v", st)
		}
	})

	t.Run("rejected without another active budget", func(t *testing.T) {
		svc, _ := newTestService(t, memory.New())
		b := mustBudget(t, svc, budgetDraft("B1", 100, core.Palette[0]))
		mustExpense(t, svc, expenseReq("E1", "10", b.ID))

		err := svc.DeleteBudget(ctx, b.ID, "")
		assertField(t, err, "reassignTo", core.ErrNoReassignTarget)
	})

	t.Run("reassigns expenses", func(t *testing.T) {
		svc, _ := newTestService(t, memory.New())
		a := mustBudget(t, svc, budgetDraft("A", 100, core.Palette[0]))
		b := mustBudget(t, svc, budgetDraft("B", 100, core.Palette[1]))
		mustExpense(t, svc, expenseReq("E1", "10", a.ID))
		mustExpense(t, svc, expenseReq("E2", "20", a.ID))

		if targets := svc.ReassignTargets(a.ID); len(targets) != 1 || targets[0].ID != b.ID {
			t.Errorf("ReassignTargets() = %+v", targets)
		}
		assertField(t, svc.DeleteBudget(ctx, a.ID, ""), "reassignTo", core.ErrNoTarget)
		assertField(t, svc.DeleteBudget(ctx, a.ID, a.ID), "reassignTo", core.ErrSameBudget)

		if err := svc.DeleteBudget(ctx, a.ID, b.ID); err != nil {
			t.Fatalf("DeleteBudget() error = %v", err)
		}
		st := svc.State()
		if len(st.Budgets) != 1 {
			t.Fatalf("budgets = %d, want 1", len(st.Budgets))
		}
		for _, e := range st.Expenses {
			if e.BudgetID != b.ID {
				t.Errorf("expense %s still on %s", e.ID, e.BudgetID)
			}
		}
	})

	t.Run("unknown budget", func(t *testing.T) {
		svc, _ := newTestService(t, memory.New())
		if err := svc.DeleteBudget(ctx, "ghost", ""); !errors.Is(err, core.ErrBudgetNotFound) {
			t.Errorf("error = %v, want ErrBudgetNotFound", err)
		}
	})
}

func TestBudgetService_UndoDelete(t *testing.T) {
	svc, _ := newTestService(t, memory.New())
	ctx := context.Background()
	b := mustBudget(t, svc, budgetDraft("B1", 100, core.Palette[0]))
	e := mustExpense(t, svc, expenseReq("E1", "10", b.ID))

	if _, err := svc.UndoDelete(ctx); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("UndoDelete() on empty slot = %v, want ErrNothingToUndo", err)
	}
	if _, err := svc.DeleteExpense(ctx, "ghost"); !errors.Is(err, core.ErrExpenseNotFound) {
		t.Errorf("DeleteExpense(ghost) = %v, want ErrExpenseNotFound", err)
	}
	if _, err := svc.DeleteExpense(ctx, e.ID); err != nil {
		t.Fatalf("DeleteExpense() error = %v", err)
	}
	restored, err := svc.UndoDelete(ctx)
	if err != nil {
		t.Fatalf("UndoDelete() error = %v", err)
	}
	if restored.ID != e.ID {
		t.Errorf("restored %s, want %s", restored.ID, e.ID)
	}
	if st := svc.State(); len(st.Expenses) != 1 || st.CanUndo() {
		t.Errorf("after undo: expenses=%d canUndo=%v", len(st.Expenses), st.CanUndo())
	}
}

func TestBudgetService_MoveExpense(t *testing.T) {
	svc, _ := newTestService(t, memory.New())
	ctx := context.Background()
	a := mustBudget(t, svc, budgetDraft("A", 100, core.Palette[0]))
	b := mustBudget(t, svc, budgetDraft("B", 100, core.Palette[1]))
	full := mustBudget(t, svc, budgetDraft("C", 5, core.Palette[2]))
	mustExpense(t, svc, expenseReq("E0", "5", full.ID))
	e := mustExpense(t, svc, expenseReq("E1", "40", a.ID))

	targets, err := svc.MoveTargets(e.ID)
	if err != nil || len(targets) != 1 || targets[0].Budget.ID != b.ID {
		t.Fatalf("MoveTargets() = %+v, %v", targets, err)
	}

	assertField(t, errOnly(svc.MoveExpense(ctx, e.ID, a.ID)), "budgetId", core.ErrSameBudget)
	assertField(t, errOnly(svc.MoveExpense(ctx, e.ID, full.ID)), "budgetId", core.ErrBudgetArchived)

	moved, err := svc.MoveExpense(ctx, e.ID, b.ID)
	if err != nil {
		t.Fatalf("MoveExpense() error = %v", err)
	}
	if moved.BudgetID != b.ID {
		t.Errorf("BudgetID = %s, want %s", moved.BudgetID, b.ID)
	}
}

func errOnly[T any](_ T, err error) error { return err }

func TestBudgetService_Resolve(t *testing.T) {
	svc, _ := newTestService(t, memory.New())
	ctx := context.Background()
	a := mustBudget(t, svc, budgetDraft("A", 100, core.Palette[0]))
	mustBudget(t, svc, budgetDraft("B", 300, core.Palette[1]))

	got, err := svc.Resolve(ctx, decimal.NewFromInt(10), core.StrategyOldest, "")
	if err != nil || got.ID != a.ID {
		t.Errorf("Resolve(oldest) = %s, %v; want %s", got.ID, err, a.ID)
	}
	if _, err := svc.Resolve(ctx, decimal.NewFromInt(10), core.StrategyManual, ""); !errors.Is(err, core.ErrNoTarget) {
		t.Errorf("Resolve(manual) error = %v, want ErrNoTarget", err)
	}
}

// mostCapital picks the candidate with the largest capital.
type mostCapital struct{}

func (mostCapital) Select(c []distribution.Candidate, _ distribution.RandomSource) int {
	best := 0
	for i := range c {
		if c[i].Budget.CapitalTotal.GreaterThan(c[best].Budget.CapitalTotal) {
			best = i
		}
	}
	return best
}

func TestBudgetService_ResolveRegisteredStrategy(t *testing.T) {
	ctx := context.Background()
	r := distribution.NewResolver(nil)
	if err := r.Register("most-capital", mostCapital{}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	svc := NewBudgetService(memory.New(), Options{Resolver: r})
	t.Cleanup(func() { svc.Close() })

	mustBudget(t, svc, budgetDraft("A", 100, core.Palette[0]))
	b := mustBudget(t, svc, budgetDraft("B", 300, core.Palette[1]))

	got, err := svc.Resolve(ctx, decimal.NewFromInt(10), "most-capital", "")
	if err != nil || got.ID != b.ID {
		t.Errorf("Resolve(most-capital) = %s, %v; want %s", got.ID, err, b.ID)
	}
	_, err = svc.Resolve(ctx, decimal.NewFromInt(10), "fewest-coins", "")
	assertField(t, err, "strategy", distribution.ErrUnknownStrategy)
}

func TestBudgetService_UpdateSettings(t *testing.T) {
	svc, _ := newTestService(t, memory.New())
	ctx := context.Background()
	b := mustBudget(t, svc, budgetDraft("B1", 10, core.Palette[0]))
	mustExpense(t, svc, expenseReq("E1", "10", b.ID))

	bad := core.Theme("neon")
	color := "#112233"
	_, err := svc.UpdateSettings(ctx, core.SettingsPatch{Theme: &bad, ArchivedBudgetColor: &color})
	assertField(t, err, "settings", core.ErrInvalidSetting)
	if svc.State().Settings.ArchivedBudgetColor != core.DefaultArchivedColor {
		t.Error("a rejected patch must not apply any field")
	}

	dark := core.ThemeDark
	settings, err := svc.UpdateSettings(ctx, core.SettingsPatch{Theme: &dark, ArchivedBudgetColor: &color})
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if settings.Theme != core.ThemeDark || settings.ArchivedBudgetColor != color {
		t.Errorf("settings = %+v", settings)
	}
	got, _ := svc.State().Budget(b.ID)
	if got.Color != color {
		t.Errorf("archived budget color = %s, want %s", got.Color, color)
	}
}

func TestBudgetService_SetManualOrder(t *testing.T) {
	svc, _ := newTestService(t, memory.New())
	ctx := context.Background()
	a := mustBudget(t, svc, budgetDraft("A", 100, core.Palette[0]))
	b := mustBudget(t, svc, budgetDraft("B", 100, core.Palette[1]))

	assertField(t, svc.SetManualOrder(ctx, []string{b.ID, "ghost"}), "order", ErrUnknownBudgetID)
	assertField(t, svc.SetManualOrder(ctx, []string{b.ID, b.ID}), "order", nil)

	if err := svc.SetManualOrder(ctx, []string{b.ID, a.ID}); err != nil {
		t.Fatalf("SetManualOrder() error = %v", err)
	}
	if got := svc.State().ManualOrder; fmt.Sprint(got) != fmt.Sprint([]string{b.ID, a.ID}) {
		t.Errorf("ManualOrder = %v", got)
	}
}

func TestBudgetService_ExportImport(t *testing.T) {
	ctx := context.Background()
	src, _ := newTestService(t, memory.New())
	b := mustBudget(t, src, budgetDraft("B1", 100, core.Palette[0]))
	mustExpense(t, src, expenseReq("E1", "12.34", b.ID))

	var buf strings.Builder
	exported := src.Export()
	if exported.Meta.Version != core.Version || !exported.Meta.CreatedAt.Equal(t0) {
		t.Errorf("meta = %+v", exported.Meta)
	}
	if err := backup.Export(&buf, exported); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	dst, _ := newTestService(t, memory.New())
	report, err := dst.Import(ctx, []byte(buf.String()))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(report.Warnings()) != 0 {
		t.Errorf("warnings = %v", report.Warnings())
	}
	if report.Budgets != 1 || report.Expenses != 1 {
		t.Errorf("counts = %d budgets, %d expenses", report.Budgets, report.Expenses)
	}
	st := dst.State()
	if len(st.Budgets) != 1 || len(st.Expenses) != 1 || !st.Expenses[0].Amount.Equal(decimal.RequireFromString("12.34")) {
		t.Errorf("imported state = %+v", st)
	}
}

func TestBudgetService_ImportCountsIgnoreLaterWrites(t *testing.T) {
	ctx := context.Background()
	legacy := []byte(`{"budgets": [{"id": "b1", "referenceNumber": "R1", "description": "Rent",
		"capitalTotal": "100", "usablePercentage": 100, "color": "#22C55E",
		"createdAt": "2024-01-01T00:00:00Z"}], "expenses": []}`)

	for i := 0; i < 20; i++ {
		svc, _ := newTestService(t, memory.New())
		var wg sync.WaitGroup
		var res ImportResult
		var importErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, importErr = svc.Import(ctx, legacy)
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.CreateBudget(ctx, budgetDraft(fmt.Sprintf("C%d", i), 10, core.Palette[1]))
		}()
		wg.Wait()

		if importErr != nil {
			t.Fatalf("Import() error = %v", importErr)
		}
		if res.Budgets != 1 || res.Expenses != 0 {
			t.Fatalf("round %d: counts = %d budgets, %d expenses, want the imported 1 and 0", i, res.Budgets, res.Expenses)
		}
	}
}

func TestBudgetService_ImportRejectsCorruptBackup(t *testing.T) {
	svc, _ := newTestService(t, memory.New())
	mustBudget(t, svc, budgetDraft("B1", 100, core.Palette[0]))

	_, err := svc.Import(context.Background(), []byte(`{"budgets": [], "expenses": [{"id": "e", "budgetId": "missing"}]}`))
	var ie *ImportError
	if !errors.As(err, &ie) || !errors.Is(err, backup.ErrCorruptBackup) {
		t.Fatalf("error = %v, want ImportError wrapping ErrCorruptBackup", err)
	}
	if len(svc.State().Budgets) != 1 {
		t.Error("state must be unchanged after a rejected import")
	}
}

func TestBudgetService_ImportNewerBackupWarns(t *testing.T) {
	svc, notifier := newTestService(t, memory.New())
	raw := `{
		"meta": {"version": "99.0.0"},
		"data": {"budgets": [], "expenses": []},
		"config": {"theme": "dark", "hologramMode": true}
	}`

	report, err := svc.Import(context.Background(), []byte(raw))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if !report.Newer || len(report.DroppedKeys) != 1 {
		t.Errorf("report = %+v", report)
	}
	if svc.State().Settings.Theme != core.ThemeDark {
		t.Error("known keys of a newer backup must still be imported")
	}
	svc.Close()
	if kinds := notifier.kinds(); len(kinds) != 1 || kinds[0] != amqp.NoticeImportWarning {
		t.Errorf("published = %v", kinds)
	}
}

func TestBudgetService_Load(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	settings := core.DefaultSettings()
	settings.Theme = core.ThemeLight
	store.SaveSettings(ctx, settings)
	store.SaveBudgets(ctx, []core.Budget{
		{ID: "a", ReferenceNumber: "A", Description: "A", CapitalTotal: decimal.NewFromInt(10), UsablePercentage: 100, Color: core.Palette[0]},
		{ID: "b", ReferenceNumber: "B", Description: "B", CapitalTotal: decimal.NewFromInt(10), UsablePercentage: 100, Color: core.Palette[1]},
	})
	store.SaveExpenses(ctx, []core.Expense{{ID: "e", BudgetID: "a", Amount: decimal.NewFromInt(10)}})
	store.SaveManualOrder(ctx, []string{"b", "ghost"})

	svc, _ := newTestService(t, store)
	if err := svc.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	st := svc.State()
	if st.Settings.Theme != core.ThemeLight {
		t.Errorf("Theme = %s, want light", st.Settings.Theme)
	}
	if fmt.Sprint(st.ManualOrder) != "[b a]" {
		t.Errorf("ManualOrder = %v, want [b a]", st.ManualOrder)
	}
	a, _ := st.Budget("a")
	if !a.IsArchived {
		t.Error("exhausted budget should be archived on load")
	}
}

func TestBudgetService_ClearKeepsSettings(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc, _ := newTestService(t, store)
	b := mustBudget(t, svc, budgetDraft("B1", 100, core.Palette[0]))
	mustExpense(t, svc, expenseReq("E1", "1", b.ID))
	dark := core.ThemeDark
	svc.UpdateSettings(ctx, core.SettingsPatch{Theme: &dark})

	if err := svc.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	svc.Close()

	st := svc.State()
	if len(st.Budgets) != 0 || len(st.Expenses) != 0 || st.Settings.Theme != core.ThemeDark {
		t.Errorf("state after clear = %+v", st)
	}
	budgets, _ := store.GetBudgets(ctx)
	settings, _ := store.GetSettings(ctx)
	if len(budgets) != 0 || settings.Theme != core.ThemeDark {
		t.Errorf("store after clear: budgets=%d theme=%s", len(budgets), settings.Theme)
	}
}

func TestBudgetService_PersistFailureIsReported(t *testing.T) {
	svc, notifier := newTestService(t, failingStore{Store: memory.New()})
	mustBudget(t, svc, budgetDraft("B1", 100, core.Palette[0]))
	if err := svc.Close(); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Close() after failed save = %v, want disk full", err)
	}

	if kinds := notifier.kinds(); len(kinds) == 0 || kinds[len(kinds)-1] != amqp.NoticeStorageError {
		t.Errorf("published = %v, want a storage error notice", kinds)
	}
	if len(svc.State().Budgets) != 1 {
		t.Error("in-memory state must survive a failed save")
	}
}

func TestBudgetService_CloseReportsFailedImportSave(t *testing.T) {
	svc, _ := newTestService(t, failingStore{Store: memory.New()})
	legacy := `{"budgets": [{"id": "b1", "referenceNumber": "R1", "description": "Rent",
		"capitalTotal": "100", "usablePercentage": 100, "color": "#22C55E",
		"createdAt": "2024-01-01T00:00:00Z"}], "expenses": []}`

	if _, err := svc.Import(context.Background(), []byte(legacy)); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	err := svc.Close()
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("Close() = %v, want the failed save", err)
	}
	if again := svc.Close(); again == nil {
		t.Error("second Close() lost the save error")
	}
}

func TestBudgetService_CloseAfterRecoveredSave(t *testing.T) {
	store := &flakyStore{Store: memory.New(), failures: 1}
	svc, _ := newTestService(t, store)
	mustBudget(t, svc, budgetDraft("B1", 100, core.Palette[0]))
	waitFor(t, func() bool { return store.attempts() >= 1 })
	mustBudget(t, svc, budgetDraft("B2", 100, core.Palette[1]))

	if err := svc.Close(); err != nil {
		t.Errorf("Close() = %v, want nil once a later save succeeded", err)
	}
}

func TestBudgetService_Closed(t *testing.T) {
	svc, _ := newTestService(t, memory.New())
	if err := svc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := svc.CreateBudget(context.Background(), budgetDraft("B1", 1, core.Palette[0])); !errors.Is(err, ErrServiceClosed) {
		t.Errorf("error = %v, want ErrServiceClosed", err)
	}
}
