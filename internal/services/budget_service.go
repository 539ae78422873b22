// Package services hosts the budget controller: it owns the application
// state, validates user input, dispatches intents to the reducer and
// persists every resulting snapshot in the background.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"several/internal/amqp"
	"several/internal/archive"
	"several/internal/core"
	"several/internal/distribution"
	"several/internal/ledger"
	"several/internal/log"
	"several/internal/reducer"
	"several/internal/storage"
)

const (
	defaultSaveTimeout = 5 * time.Second
	recentNotices      = 20
)

// Notifier publishes transient notices. *amqp.Client satisfies it.
type Notifier interface {
	PublishNotice(ctx context.Context, msg *amqp.NoticeMessage) error
}

// Options configure a BudgetService. Zero values pick sensible defaults.
type Options struct {
	Reducer     *reducer.Reducer
	Resolver    *distribution.Resolver
	Notifier    Notifier
	Logger      *log.Logger
	Version     string
	SaveTimeout time.Duration
	Clock       func() time.Time
}

// BudgetService serializes all state transitions behind a mutex.
type BudgetService struct {
	mu     sync.Mutex
	state  ledger.State
	closed bool

	reducer  *reducer.Reducer
	resolver *distribution.Resolver
	store    storage.Store
	notifier Notifier
	logger   *log.Logger
	version  string
	now      func() time.Time

	saveTimeout time.Duration
	saves       chan saveJob
	saverDone   chan struct{}
	// saveErr is the outcome of the latest persist; written by the saver
	// only, read after saverDone is closed.
	saveErr    error
	publishing sync.WaitGroup

	noticesMu sync.Mutex
	notices   []amqp.NoticeMessage
}

type saveJob struct {
	state ledger.State
	clear bool
}

// NewBudgetService starts the background saver. Call Close to flush it.
func NewBudgetService(store storage.Store, opts Options) *BudgetService {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Reducer == nil {
		opts.Reducer = reducer.New(reducer.WithClock(opts.Clock))
	}
	if opts.Resolver == nil {
		opts.Resolver = distribution.NewResolver(nil)
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Version == "" {
		opts.Version = core.Version
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = defaultSaveTimeout
	}

	s := &BudgetService{
		state:       ledger.NewState(),
		reducer:     opts.Reducer,
		resolver:    opts.Resolver,
		store:       store,
		notifier:    opts.Notifier,
		logger:      opts.Logger.WithComponent(log.ComponentLedger),
		version:     opts.Version,
		now:         opts.Clock,
		saveTimeout: opts.SaveTimeout,
		saves:       make(chan saveJob, 1),
		saverDone:   make(chan struct{}),
	}
	go s.saver()
	return s
}

// Load replaces the in-memory state with the persisted one. The four
// collections are read concurrently.
func (s *BudgetService) Load(ctx context.Context) error {
	var (
		budgets  []core.Budget
		expenses []core.Expense
		order    []string
		settings core.Settings
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		budgets, err = s.store.GetBudgets(gctx)
		return err
	})
	g.Go(func() (err error) {
		expenses, err = s.store.GetExpenses(gctx)
		return err
	})
	g.Go(func() (err error) {
		order, err = s.store.GetManualOrder(gctx)
		return err
	})
	g.Go(func() (err error) {
		settings, err = s.store.GetSettings(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	if err := settings.Validate(); err != nil {
		s.logger.WarnContext(ctx, "Persisted settings invalid, using defaults", log.FieldError, err)
		settings = core.DefaultSettings()
	}

	next := ledger.State{
		Budgets:     budgets,
		Expenses:    expenses,
		ManualOrder: ledger.NormalizeOrder(order, budgets),
		Settings:    settings,
	}
	next.Budgets = archive.Recompute(next.Budgets, next.Expenses, settings.ArchivedBudgetColor, s.now())

	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.state = next
	if len(archive.Diff(budgets, next.Budgets)) > 0 {
		s.enqueue(saveJob{state: next})
	}

	s.logger.InfoContext(ctx, "State loaded", log.NewFields().
		WithOperation(log.OpLoad).
		WithCounts(len(next.Budgets), len(next.Expenses)).ToSlice()...)
	return nil
}

// State returns the current state. Slices inside it are never mutated
// by the service and may be read freely.
func (s *BudgetService) State() ledger.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether the service still accepts changes.
func (s *BudgetService) Ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServiceClosed
	}
	return nil
}

// lock acquires s.mu unless the service was closed.
func (s *BudgetService) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServiceClosed
	}
	return nil
}

// dispatch applies in and schedules persistence. Callers hold s.mu.
func (s *BudgetService) dispatch(ctx context.Context, in reducer.Intent) ledger.State {
	return s.commit(ctx, in, s.reducer.Reduce(s.state, in))
}

// dispatchGuarded is dispatch for intents that can lower a budget's spend.
// When the result would restore a budget whose reference number another
// active budget took while it was archived, the intent is rejected and the
// state is left as it was. Callers hold s.mu.
func (s *BudgetService) dispatchGuarded(ctx context.Context, in reducer.Intent) (ledger.State, error) {
	next := s.reducer.Reduce(s.state, in)
	if err := checkRestoredReferences(s.state.Budgets, next.Budgets); err != nil {
		return s.state, err
	}
	return s.commit(ctx, in, next), nil
}

// commit installs next as the current state. Callers hold s.mu.
func (s *BudgetService) commit(ctx context.Context, in reducer.Intent, next ledger.State) ledger.State {
	before := s.state
	s.state = next

	s.logger.DebugContext(ctx, "Intent applied", log.NewFields().
		WithOperation(log.OpDispatch).
		WithIntent(in.Name()).
		WithCounts(len(s.state.Budgets), len(s.state.Expenses)).ToSlice()...)

	for _, tr := range archive.Diff(before.Budgets, s.state.Budgets) {
		kind, verb := amqp.NoticeBudgetRestored, "restored"
		if tr.Archived {
			kind, verb = amqp.NoticeBudgetArchived, "archived"
		}
		s.notify(ctx, amqp.NewNoticeMessage(kind, tr.BudgetID, fmt.Sprintf("Budget %q %s", tr.Description, verb)))
	}

	_, cleared := in.(reducer.ClearData)
	s.enqueue(saveJob{state: s.state, clear: cleared})
	return s.state
}

// enqueue hands the latest state to the saver, replacing a pending one.
// Callers hold s.mu, so only one sender exists at a time.
func (s *BudgetService) enqueue(job saveJob) {
	if s.closed {
		return
	}
	select {
	case s.saves <- job:
		return
	default:
	}
	select {
	case pending := <-s.saves:
		job.clear = job.clear || pending.clear
	default:
	}
	s.saves <- job
}

func (s *BudgetService) saver() {
	defer close(s.saverDone)
	for job := range s.saves {
		err := s.persist(job)
		s.saveErr = err
		if err != nil {
			s.logger.Error("Failed to persist state", log.NewFields().
				WithOperation(log.OpSave).
				WithError(err, log.ErrorTypeDatabase).ToSlice()...)
			s.notify(context.Background(), amqp.NewNoticeMessage(amqp.NoticeStorageError, "", "Changes could not be saved: "+err.Error()))
		}
	}
}

// persist writes the collections of job one after another.
func (s *BudgetService) persist(job saveJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()

	if job.clear {
		if err := s.store.ClearAll(ctx); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
	}
	if err := s.store.SaveBudgets(ctx, job.state.Budgets); err != nil {
		return fmt.Errorf("budgets: %w", err)
	}
	if err := s.store.SaveExpenses(ctx, job.state.Expenses); err != nil {
		return fmt.Errorf("expenses: %w", err)
	}
	if err := s.store.SaveManualOrder(ctx, job.state.ManualOrder); err != nil {
		return fmt.Errorf("manual order: %w", err)
	}
	if err := s.store.SaveSettings(ctx, job.state.Settings); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	return nil
}

// notify records msg and publishes it without blocking the caller.
func (s *BudgetService) notify(ctx context.Context, msg *amqp.NoticeMessage) {
	s.noticesMu.Lock()
	s.notices = append(s.notices, *msg)
	if len(s.notices) > recentNotices {
		s.notices = s.notices[len(s.notices)-recentNotices:]
	}
	s.noticesMu.Unlock()

	s.logger.InfoContext(ctx, msg.Message, log.FieldKind, msg.Kind, log.FieldBudgetID, msg.BudgetID)

	if s.notifier == nil {
		return
	}
	s.publishing.Add(1)
	go func() {
		defer s.publishing.Done()
		ctx := context.WithoutCancel(ctx)
		if err := s.notifier.PublishNotice(ctx, msg); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish notice", log.NewFields().
				WithOperation(log.OpPublish).
				WithError(err, log.ErrorTypeNetwork).ToSlice()...)
		}
	}()
}

// Notices returns the most recent notices, oldest first.
func (s *BudgetService) Notices() []amqp.NoticeMessage {
	s.noticesMu.Lock()
	defer s.noticesMu.Unlock()
	return append([]amqp.NoticeMessage(nil), s.notices...)
}

// Close stops accepting saves, flushes the pending one and waits for
// in-flight notices. It returns the error of the last save when that save
// failed, meaning the persisted state lags the in-memory one. It does not
// close the store or the notifier.
func (s *BudgetService) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.saves)
	}
	s.mu.Unlock()

	<-s.saverDone
	s.publishing.Wait()
	if s.saveErr != nil {
		return fmt.Errorf("last save failed: %w", s.saveErr)
	}
	return nil
}
