package services

import (
	"context"
	"fmt"
	"strings"

	"several/internal/amqp"
	"several/internal/backup"
	"several/internal/core"
	"several/internal/log"
	"several/internal/reducer"
)

// UpdateSettings validates every field of p before applying any of them.
func (s *BudgetService) UpdateSettings(ctx context.Context, p core.SettingsPatch) (core.Settings, error) {
	if err := s.lock(); err != nil {
		return core.Settings{}, err
	}
	defer s.mu.Unlock()

	if err := s.state.Settings.Merge(p).Validate(); err != nil {
		return core.Settings{}, invalid("settings", err)
	}

	var intents []reducer.Intent
	if p.Theme != nil {
		intents = append(intents, reducer.SetTheme{Theme: *p.Theme})
	}
	if p.BudgetSortOrder != nil {
		intents = append(intents, reducer.SetBudgetSortOrder{Order: *p.BudgetSortOrder})
	}
	if p.ExpenseSortOrder != nil {
		intents = append(intents, reducer.SetExpenseSortOrder{Order: *p.ExpenseSortOrder})
	}
	if p.ArchivedBudgetColor != nil {
		intents = append(intents, reducer.SetArchivedColor{Color: strings.ToUpper(strings.TrimSpace(*p.ArchivedBudgetColor))})
	}
	if p.AutoDistributionStrategy != nil {
		intents = append(intents, reducer.SetAutoDistributionStrategy{Strategy: *p.AutoDistributionStrategy})
	}
	for _, in := range intents {
		s.dispatch(ctx, in)
	}
	return s.state.Settings, nil
}

// SetManualOrder stores the user's drag-and-drop budget order.
func (s *BudgetService) SetManualOrder(ctx context.Context, order []string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if err := validateOrder(s.state, order); err != nil {
		return err
	}
	s.dispatch(ctx, reducer.SetManualOrder{Order: order})
	return nil
}

// Export captures the current state as a backup document.
func (s *BudgetService) Export() backup.Backup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return backup.New(s.state, s.version, s.now())
}

// ImportResult describes a completed import. The counts are taken from the
// state the import produced, before any later mutation.
type ImportResult struct {
	backup.Report
	Budgets  int
	Expenses int
}

// Import replaces all data with the backup in raw. A malformed or
// inconsistent backup leaves the state untouched.
func (s *BudgetService) Import(ctx context.Context, raw []byte) (ImportResult, error) {
	res, err := backup.Parse(raw, s.version)
	if err != nil {
		s.logger.WarnContext(ctx, "Backup rejected", log.NewFields().
			WithOperation(log.OpImport).
			WithError(err, log.ErrorTypeImport).ToSlice()...)
		return ImportResult{}, &ImportError{Err: err}
	}

	if err := s.lock(); err != nil {
		return ImportResult{}, err
	}
	defer s.mu.Unlock()

	st := s.dispatch(ctx, reducer.ImportBackup{Data: res.Data, Config: res.Config})
	result := ImportResult{Report: res.Report, Budgets: len(st.Budgets), Expenses: len(st.Expenses)}

	for _, w := range res.Report.Warnings() {
		s.notify(ctx, amqp.NewNoticeMessage(amqp.NoticeImportWarning, "", w))
	}
	s.logger.InfoContext(ctx, "Backup imported", log.NewFields().
		WithOperation(log.OpImport).
		WithCounts(result.Budgets, result.Expenses).ToSlice()...)
	if len(res.Report.IgnoredKeys) > 0 {
		s.logger.DebugContext(ctx, "Unknown settings ignored", "keys", fmt.Sprint(res.Report.IgnoredKeys))
	}
	return result, nil
}

// Clear deletes every budget and expense. Settings are kept.
func (s *BudgetService) Clear(ctx context.Context) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	s.dispatch(ctx, reducer.ClearData{})
	return nil
}
