// Package backup encodes the application state into the versioned backup
// document and decodes backups written by this or any earlier release,
// including the flat format that predates versioning.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"several/internal/core"
	"several/internal/ledger"
)

var (
	// ErrUnrecognizedFormat means the document is neither a versioned nor a flat backup.
	ErrUnrecognizedFormat = errors.New("unrecognized backup format")
	// ErrCorruptBackup means the document has the right shape but unusable content.
	ErrCorruptBackup = errors.New("corrupt backup")
)

type (
	Meta struct {
		Version   string    `json:"version"`
		CreatedAt time.Time `json:"createdAt"`
	}

	Data struct {
		Budgets           []core.Budget  `json:"budgets"`
		Expenses          []core.Expense `json:"expenses"`
		ManualBudgetOrder []string       `json:"manualBudgetOrder"`
	}

	// Backup is the document written by Export.
	Backup struct {
		Meta   Meta          `json:"meta"`
		Data   Data          `json:"data"`
		Config core.Settings `json:"config"`
	}
)

// New captures s as a backup stamped with version and now.
func New(s ledger.State, version string, now time.Time) Backup {
	b := Backup{
		Meta: Meta{Version: version, CreatedAt: now.UTC()},
		Data: Data{
			Budgets:           s.Budgets,
			Expenses:          s.Expenses,
			ManualBudgetOrder: s.ManualOrder,
		},
		Config: s.Settings,
	}
	if b.Data.Budgets == nil {
		b.Data.Budgets = []core.Budget{}
	}
	if b.Data.Expenses == nil {
		b.Data.Expenses = []core.Expense{}
	}
	if b.Data.ManualBudgetOrder == nil {
		b.Data.ManualBudgetOrder = []string{}
	}
	return b
}

// Export writes b as indented JSON.
func Export(w io.Writer, b Backup) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	return nil
}

// FileName is the suggested download name for a backup taken at now.
func FileName(now time.Time) string {
	return "several_backup_" + now.Format("2006-01-02") + ".json"
}

// CompareVersions compares dotted numeric versions. Missing or
// non-numeric components count as 0. It returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")
	n := max(len(pa), len(pb))
	for i := 0; i < n; i++ {
		x, y := component(pa, i), component(pb, i)
		switch {
		case x > y:
			return 1
		case x < y:
			return -1
		}
	}
	return 0
}

func component(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
	if err != nil {
		return 0
	}
	return v
}
