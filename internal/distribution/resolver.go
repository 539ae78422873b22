// Package distribution picks the budget an expense is charged to when the
// user lets an auto-distribution strategy decide.
//
// Each strategy is a Selector registered under its core.Strategy name.
// Every selector scans candidates in budget collection order and only
// replaces its pick on a strict improvement, so ties always go to the
// first budget encountered.
package distribution

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/shopspring/decimal"

	"several/internal/core"
)

var (
	// ErrNoEligibleBudget is returned when no active budget can absorb the amount.
	ErrNoEligibleBudget = errors.New("no eligible budget")
	// ErrManualStrategy is returned when the resolver is asked to pick under
	// the manual strategy, where the caller selects the budget itself.
	ErrManualStrategy = errors.New("manual strategy requires an explicit budget")

	ErrUnknownStrategy = errors.New("unknown distribution strategy")
)

// RandomSource abstracts the randomness used by the random strategy.
// *rand.Rand from math/rand/v2 satisfies it.
type RandomSource interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// Candidate is a budget able to absorb the requested amount.
type Candidate struct {
	Budget    core.Budget
	Remaining decimal.Decimal
}

// Selector is the strategy interface: it returns the index of the chosen
// candidate. candidates is never empty.
type Selector interface {
	Select(candidates []Candidate, rnd RandomSource) int
}

// BestFitSelector picks the candidate with the smallest remaining balance.
type BestFitSelector struct{}

func (BestFitSelector) Select(c []Candidate, _ RandomSource) int {
	best := 0
	for i := 1; i < len(c); i++ {
		if c[i].Remaining.LessThan(c[best].Remaining) {
			best = i
		}
	}
	return best
}

// LargestAvailableSelector picks the candidate with the largest remaining balance.
type LargestAvailableSelector struct{}

func (LargestAvailableSelector) Select(c []Candidate, _ RandomSource) int {
	best := 0
	for i := 1; i < len(c); i++ {
		if c[i].Remaining.GreaterThan(c[best].Remaining) {
			best = i
		}
	}
	return best
}

// NewestSelector picks the most recently created candidate.
type NewestSelector struct{}

func (NewestSelector) Select(c []Candidate, _ RandomSource) int {
	best := 0
	for i := 1; i < len(c); i++ {
		if c[i].Budget.CreatedAt.After(c[best].Budget.CreatedAt) {
			best = i
		}
	}
	return best
}

// OldestSelector picks the least recently created candidate.
type OldestSelector struct{}

func (OldestSelector) Select(c []Candidate, _ RandomSource) int {
	best := 0
	for i := 1; i < len(c); i++ {
		if c[i].Budget.CreatedAt.Before(c[best].Budget.CreatedAt) {
			best = i
		}
	}
	return best
}

// RandomSelector picks a uniformly random candidate.
type RandomSelector struct{}

func (RandomSelector) Select(c []Candidate, rnd RandomSource) int {
	return rnd.IntN(len(c))
}

// defaultSelectors maps the built-in strategies to their implementation.
// Manual has no entry. It is never written after init.
var defaultSelectors = map[core.Strategy]Selector{
	core.StrategyBestFit:          BestFitSelector{},
	core.StrategyLargestAvailable: LargestAvailableSelector{},
	core.StrategyNewest:           NewestSelector{},
	core.StrategyOldest:           OldestSelector{},
	core.StrategyRandom:           RandomSelector{},
}

// GetSelector returns the built-in selector for strategy.
func GetSelector(strategy core.Strategy) (Selector, error) {
	return lookup(defaultSelectors, strategy)
}

func lookup(m map[core.Strategy]Selector, strategy core.Strategy) (Selector, error) {
	if strategy == core.StrategyManual {
		return nil, ErrManualStrategy
	}
	s, ok := m[strategy]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	return s, nil
}

// Resolver chooses target budgets for auto-distributed expenses. It starts
// with the built-in strategies; Register adds more.
type Resolver struct {
	rnd RandomSource

	mu        sync.RWMutex
	selectors map[core.Strategy]Selector
}

// NewResolver returns a resolver using rnd for the random strategy.
// A nil rnd falls back to the math/rand/v2 global source.
func NewResolver(rnd RandomSource) *Resolver {
	if rnd == nil {
		rnd = globalSource{}
	}
	selectors := make(map[core.Strategy]Selector, len(defaultSelectors))
	for k, v := range defaultSelectors {
		selectors[k] = v
	}
	return &Resolver{rnd: rnd, selectors: selectors}
}

// Register adds or replaces the selector used for strategy on r.
// The manual strategy cannot be overridden.
func (r *Resolver) Register(strategy core.Strategy, s Selector) error {
	if strategy == core.StrategyManual || strategy == "" {
		return fmt.Errorf("%w: %q cannot be registered", ErrUnknownStrategy, strategy)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selectors[strategy] = s
	return nil
}

// Supports reports whether strategy resolves to a selector on r.
func (r *Resolver) Supports(strategy core.Strategy) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.selectors[strategy]
	return ok
}

// Candidates lists, in collection order, the active budgets other than
// excludeBudgetID whose remaining balance covers amount.
func Candidates(amount decimal.Decimal, excludeBudgetID string, budgets []core.Budget, expenses []core.Expense) []Candidate {
	spent := core.SpentByBudget(expenses)
	var out []Candidate
	for _, b := range budgets {
		if b.IsArchived || (excludeBudgetID != "" && b.ID == excludeBudgetID) {
			continue
		}
		remaining := core.UsableAmount(b).Sub(spent[b.ID])
		if remaining.GreaterThanOrEqual(amount) {
			out = append(out, Candidate{Budget: b, Remaining: remaining})
		}
	}
	return out
}

// Resolve returns the id of the budget strategy selects for amount.
func (r *Resolver) Resolve(amount decimal.Decimal, strategy core.Strategy, excludeBudgetID string, budgets []core.Budget, expenses []core.Expense) (string, error) {
	r.mu.RLock()
	sel, err := lookup(r.selectors, strategy)
	r.mu.RUnlock()
	if err != nil {
		return "", err
	}
	candidates := Candidates(amount, excludeBudgetID, budgets, expenses)
	if len(candidates) == 0 {
		return "", ErrNoEligibleBudget
	}
	return candidates[sel.Select(candidates, r.rnd)].Budget.ID, nil
}
