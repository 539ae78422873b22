package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"several/internal/core"
	"several/internal/ledger"
)

// Report describes how a backup was interpreted.
type Report struct {
	Version string
	Legacy  bool
	// Newer is set when the backup comes from a later release.
	Newer bool
	// DroppedKeys are config keys of a newer backup this release does not know.
	DroppedKeys []string
	// IgnoredKeys are unknown config keys of an older or same-version backup.
	IgnoredKeys []string
	// InvalidKeys are known config keys whose value was rejected.
	InvalidKeys []string
	Migrated    int
}

// Warnings returns the user facing notices for r.
func (r Report) Warnings() []string {
	var out []string
	if r.Legacy {
		out = append(out, "legacy backup: only budgets and expenses were imported")
	}
	if len(r.DroppedKeys) > 0 {
		out = append(out, fmt.Sprintf("backup v%s is newer than this app; not imported: %s",
			r.Version, strings.Join(r.DroppedKeys, ", ")))
	}
	if len(r.InvalidKeys) > 0 {
		out = append(out, "invalid settings skipped: "+strings.Join(r.InvalidKeys, ", "))
	}
	return out
}

// Result is a decoded backup ready to be dispatched.
type Result struct {
	Data   ledger.Snapshot
	Config core.SettingsPatch
	Report Report
}

const (
	keyTheme            = "theme"
	keyBudgetSortOrder  = "budgetSortOrder"
	keyExpenseSortOrder = "expenseSortOrder"
	keyArchivedColor    = "archivedBudgetColor"
	keyStrategy         = "autoDistributionStrategy"
)

var knownConfigKeys = map[string]bool{
	keyTheme:            true,
	keyBudgetSortOrder:  true,
	keyExpenseSortOrder: true,
	keyArchivedColor:    true,
	keyStrategy:         true,
}

// Parse decodes raw, which may be a versioned or a flat legacy backup.
// currentVersion is the running application version, used to decide
// whether unknown config keys are reported as dropped.
func Parse(raw []byte, currentVersion string) (Result, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(raw), &top); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnrecognizedFormat, err)
	}

	switch {
	case present(top, "meta") && present(top, "data") && present(top, "config"):
		return parseVersioned(top, currentVersion)
	case present(top, "budgets") && present(top, "expenses"):
		return parseLegacy(top)
	default:
		return Result{}, ErrUnrecognizedFormat
	}
}

func parseVersioned(top map[string]json.RawMessage, currentVersion string) (Result, error) {
	var meta Meta
	if err := json.Unmarshal(top["meta"], &meta); err != nil {
		return Result{}, fmt.Errorf("%w: meta: %v", ErrCorruptBackup, err)
	}
	if strings.TrimSpace(meta.Version) == "" {
		return Result{}, fmt.Errorf("%w: missing meta.version", ErrCorruptBackup)
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(top["data"], &data); err != nil {
		return Result{}, fmt.Errorf("%w: data: %v", ErrCorruptBackup, err)
	}
	if !present(data, "budgets") || !present(data, "expenses") {
		return Result{}, fmt.Errorf("%w: data must contain budgets and expenses", ErrCorruptBackup)
	}

	res := Result{Report: Report{Version: meta.Version}}
	if err := decodeRecords(data, &res); err != nil {
		return Result{}, err
	}
	if present(data, "manualBudgetOrder") {
		if err := json.Unmarshal(data["manualBudgetOrder"], &res.Data.ManualOrder); err != nil {
			return Result{}, fmt.Errorf("%w: manualBudgetOrder: %v", ErrCorruptBackup, err)
		}
	} else {
		res.Data.ManualOrder = ledger.OrderFromBudgets(res.Data.Budgets)
	}

	var config map[string]json.RawMessage
	if err := json.Unmarshal(top["config"], &config); err != nil {
		return Result{}, fmt.Errorf("%w: config: %v", ErrCorruptBackup, err)
	}
	res.Report.Newer = CompareVersions(meta.Version, currentVersion) > 0
	res.Config = decodeConfig(config, &res.Report)
	return res, nil
}

func parseLegacy(top map[string]json.RawMessage) (Result, error) {
	res := Result{Report: Report{Legacy: true}}
	if err := decodeRecords(top, &res); err != nil {
		return Result{}, err
	}
	res.Data.ManualOrder = ledger.OrderFromBudgets(res.Data.Budgets)
	return res, nil
}

func decodeRecords(src map[string]json.RawMessage, res *Result) error {
	var budgets []map[string]json.RawMessage
	if err := json.Unmarshal(src["budgets"], &budgets); err != nil {
		return fmt.Errorf("%w: budgets: %v", ErrCorruptBackup, err)
	}
	var expenses []map[string]json.RawMessage
	if err := json.Unmarshal(src["expenses"], &expenses); err != nil {
		return fmt.Errorf("%w: expenses: %v", ErrCorruptBackup, err)
	}

	res.Data.Budgets = make([]core.Budget, 0, len(budgets))
	for i, rec := range budgets {
		var b core.Budget
		n, err := migrate(rec, budgetRenames, &b)
		if err != nil {
			return fmt.Errorf("%w: budget %d: %v", ErrCorruptBackup, i, err)
		}
		res.Report.Migrated += n
		res.Data.Budgets = append(res.Data.Budgets, b)
	}

	res.Data.Expenses = make([]core.Expense, 0, len(expenses))
	for i, rec := range expenses {
		var e core.Expense
		n, err := migrate(rec, expenseRenames, &e)
		if err != nil {
			return fmt.Errorf("%w: expense %d: %v", ErrCorruptBackup, i, err)
		}
		res.Report.Migrated += n
		res.Data.Expenses = append(res.Data.Expenses, e)
	}
	return checkConsistency(res.Data)
}

func checkConsistency(d ledger.Snapshot) error {
	budgetIDs := make(map[string]bool, len(d.Budgets))
	for _, b := range d.Budgets {
		if b.ID == "" {
			return fmt.Errorf("%w: budget without id", ErrCorruptBackup)
		}
		if budgetIDs[b.ID] {
			return fmt.Errorf("%w: duplicate budget id %q", ErrCorruptBackup, b.ID)
		}
		budgetIDs[b.ID] = true
	}
	expenseIDs := make(map[string]bool, len(d.Expenses))
	for _, e := range d.Expenses {
		if e.ID == "" {
			return fmt.Errorf("%w: expense without id", ErrCorruptBackup)
		}
		if expenseIDs[e.ID] {
			return fmt.Errorf("%w: duplicate expense id %q", ErrCorruptBackup, e.ID)
		}
		expenseIDs[e.ID] = true
		if !budgetIDs[e.BudgetID] {
			return fmt.Errorf("%w: expense %q references unknown budget %q", ErrCorruptBackup, e.ID, e.BudgetID)
		}
	}
	return nil
}

func decodeConfig(config map[string]json.RawMessage, rep *Report) core.SettingsPatch {
	var patch core.SettingsPatch
	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !knownConfigKeys[k] {
			if rep.Newer {
				rep.DroppedKeys = append(rep.DroppedKeys, k)
			} else {
				rep.IgnoredKeys = append(rep.IgnoredKeys, k)
			}
			continue
		}
		var v string
		if err := json.Unmarshal(config[k], &v); err != nil {
			rep.InvalidKeys = append(rep.InvalidKeys, k)
			continue
		}

		valid := true
		switch k {
		case keyTheme:
			t := core.Theme(v)
			valid = t.IsValid()
			patch.Theme = &t
		case keyBudgetSortOrder:
			o := core.BudgetSortOrder(v)
			valid = o.IsValid()
			patch.BudgetSortOrder = &o
		case keyExpenseSortOrder:
			o := core.ExpenseSortOrder(v)
			valid = o.IsValid()
			patch.ExpenseSortOrder = &o
		case keyArchivedColor:
			valid = core.ValidColor(v)
			patch.ArchivedBudgetColor = &v
		case keyStrategy:
			s := core.Strategy(v)
			valid = s.IsValid()
			patch.AutoDistributionStrategy = &s
		}
		if !valid {
			rep.InvalidKeys = append(rep.InvalidKeys, k)
			clearKey(&patch, k)
		}
	}
	return patch
}

func clearKey(p *core.SettingsPatch, k string) {
	switch k {
	case keyTheme:
		p.Theme = nil
	case keyBudgetSortOrder:
		p.BudgetSortOrder = nil
	case keyExpenseSortOrder:
		p.ExpenseSortOrder = nil
	case keyArchivedColor:
		p.ArchivedBudgetColor = nil
	case keyStrategy:
		p.AutoDistributionStrategy = nil
	}
}

func present(m map[string]json.RawMessage, key string) bool {
	v, ok := m[key]
	return ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
