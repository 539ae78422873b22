package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

type (
	Theme            string
	BudgetSortOrder  string
	ExpenseSortOrder string
	Strategy         string
)

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

const (
	BudgetDateDesc      BudgetSortOrder = "date-desc"
	BudgetDateAsc       BudgetSortOrder = "date-asc"
	BudgetRemainingDesc BudgetSortOrder = "remaining-desc"
	BudgetRemainingAsc  BudgetSortOrder = "remaining-asc"
	BudgetExpensesDesc  BudgetSortOrder = "expenses-desc"
	BudgetExpensesAsc   BudgetSortOrder = "expenses-asc"
	BudgetManual        BudgetSortOrder = "manual"
)

const (
	ExpenseDateDesc        ExpenseSortOrder = "date-desc"
	ExpenseDateAsc         ExpenseSortOrder = "date-asc"
	ExpenseAmountDesc      ExpenseSortOrder = "amount-desc"
	ExpenseAmountAsc       ExpenseSortOrder = "amount-asc"
	ExpenseDescriptionAsc  ExpenseSortOrder = "description-asc"
	ExpenseDescriptionDesc ExpenseSortOrder = "description-desc"
)

const (
	StrategyManual           Strategy = "manual"
	StrategyBestFit          Strategy = "best-fit"
	StrategyLargestAvailable Strategy = "largest-available"
	StrategyNewest           Strategy = "newest"
	StrategyOldest           Strategy = "oldest"
	StrategyRandom           Strategy = "random"
)

// DefaultArchivedColor paints budgets whose balance is exhausted.
const DefaultArchivedColor = "#9CA3AF"

// Palette is the fixed set of colors offered to active budgets.
var Palette = []string{
	"#EF4444", "#F97316", "#F59E0B", "#84CC16",
	"#10B981", "#14B8A6", "#06B6D4", "#3B82F6",
	"#6366F1", "#8B5CF6", "#D946EF", "#EC4899",
}

var ErrInvalidSetting = errors.New("invalid setting")

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Settings are the user preferences persisted next to the data.
type Settings struct {
	Theme                    Theme            `json:"theme"`
	BudgetSortOrder          BudgetSortOrder  `json:"budgetSortOrder"`
	ExpenseSortOrder         ExpenseSortOrder `json:"expenseSortOrder"`
	ArchivedBudgetColor      string           `json:"archivedBudgetColor"`
	AutoDistributionStrategy Strategy         `json:"autoDistributionStrategy"`
}

// SettingsPatch carries the subset of settings present in an import.
type SettingsPatch struct {
	Theme                    *Theme
	BudgetSortOrder          *BudgetSortOrder
	ExpenseSortOrder         *ExpenseSortOrder
	ArchivedBudgetColor      *string
	AutoDistributionStrategy *Strategy
}

// DefaultSettings returns the settings of a fresh installation.
func DefaultSettings() Settings {
	return Settings{
		Theme:                    ThemeSystem,
		BudgetSortOrder:          BudgetDateDesc,
		ExpenseSortOrder:         ExpenseDateDesc,
		ArchivedBudgetColor:      DefaultArchivedColor,
		AutoDistributionStrategy: StrategyManual,
	}
}

func (t Theme) IsValid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return true
	}
	return false
}

func (o BudgetSortOrder) IsValid() bool {
	switch o {
	case BudgetDateDesc, BudgetDateAsc, BudgetRemainingDesc, BudgetRemainingAsc,
		BudgetExpensesDesc, BudgetExpensesAsc, BudgetManual:
		return true
	}
	return false
}

func (o ExpenseSortOrder) IsValid() bool {
	switch o {
	case ExpenseDateDesc, ExpenseDateAsc, ExpenseAmountDesc, ExpenseAmountAsc,
		ExpenseDescriptionAsc, ExpenseDescriptionDesc:
		return true
	}
	return false
}

func (s Strategy) IsValid() bool {
	switch s {
	case StrategyManual, StrategyBestFit, StrategyLargestAvailable,
		StrategyNewest, StrategyOldest, StrategyRandom:
		return true
	}
	return false
}

// ValidColor reports whether c is a #rgb or #rrggbb color.
func ValidColor(c string) bool {
	return hexColor.MatchString(strings.TrimSpace(c))
}

// Validate reports the first invalid setting.
func (s Settings) Validate() error {
	switch {
	case !s.Theme.IsValid():
		return fmt.Errorf("%w: theme %q", ErrInvalidSetting, s.Theme)
	case !s.BudgetSortOrder.IsValid():
		return fmt.Errorf("%w: budget sort order %q", ErrInvalidSetting, s.BudgetSortOrder)
	case !s.ExpenseSortOrder.IsValid():
		return fmt.Errorf("%w: expense sort order %q", ErrInvalidSetting, s.ExpenseSortOrder)
	case !ValidColor(s.ArchivedBudgetColor):
		return fmt.Errorf("%w: archived budget color %q", ErrInvalidSetting, s.ArchivedBudgetColor)
	case !s.AutoDistributionStrategy.IsValid():
		return fmt.Errorf("%w: strategy %q", ErrInvalidSetting, s.AutoDistributionStrategy)
	}
	return nil
}

// Merge overlays the fields present in p.
func (s Settings) Merge(p SettingsPatch) Settings {
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.BudgetSortOrder != nil {
		s.BudgetSortOrder = *p.BudgetSortOrder
	}
	if p.ExpenseSortOrder != nil {
		s.ExpenseSortOrder = *p.ExpenseSortOrder
	}
	if p.ArchivedBudgetColor != nil {
		s.ArchivedBudgetColor = *p.ArchivedBudgetColor
	}
	if p.AutoDistributionStrategy != nil {
		s.AutoDistributionStrategy = *p.AutoDistributionStrategy
	}
	return s
}

// IsEmpty reports whether the patch changes nothing.
func (p SettingsPatch) IsEmpty() bool {
	return p.Theme == nil && p.BudgetSortOrder == nil && p.ExpenseSortOrder == nil &&
		p.ArchivedBudgetColor == nil && p.AutoDistributionStrategy == nil
}

// SuggestColor returns the first palette color not used by an active budget.
func SuggestColor(budgets []Budget) string {
	used := make(map[string]bool, len(budgets))
	for _, b := range budgets {
		if !b.IsArchived {
			used[strings.ToUpper(b.Color)] = true
		}
	}
	for _, c := range Palette {
		if !used[c] {
			return c
		}
	}
	return Palette[0]
}
