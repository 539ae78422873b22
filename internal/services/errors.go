package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"several/internal/core"
)

var (
	ErrNothingToUndo   = errors.New("no deleted expense to restore")
	ErrUnknownBudgetID = errors.New("manual order references an unknown budget")
	ErrServiceClosed   = errors.New("budget service is closed")
)

// ValidationError reports a rejected input field. The state is unchanged.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// ResolutionError is returned when an auto-distribution strategy finds no
// budget. Callers may retry with manual selection.
type ResolutionError struct {
	Strategy core.Strategy
	Amount   decimal.Decimal
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s for %s: %v", e.Strategy, core.FormatAmount(e.Amount), e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// FallbackStrategy is the strategy the caller should switch to.
func (e *ResolutionError) FallbackStrategy() core.Strategy { return core.StrategyManual }

// ImportError wraps a backup that could not be parsed. The state is unchanged.
type ImportError struct{ Err error }

func (e *ImportError) Error() string { return "import backup: " + e.Err.Error() }

func (e *ImportError) Unwrap() error { return e.Err }

// fieldOf maps a draft validation error onto the JSON field it concerns.
// Amount errors are reported against amountField.
func fieldOf(err error, amountField string) string {
	switch {
	case errors.Is(err, core.ErrEmptyReference), errors.Is(err, core.ErrDuplicateReference):
		return "referenceNumber"
	case errors.Is(err, core.ErrEmptyDescription):
		return "description"
	case errors.Is(err, core.ErrInvalidPercentage):
		return "usablePercentage"
	case errors.Is(err, core.ErrEmptyColor), errors.Is(err, core.ErrDuplicateColor):
		return "color"
	}
	return amountField
}
