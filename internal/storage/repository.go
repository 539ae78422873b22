// Package storage persists budgets, expenses, the manual order and the
// settings in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"several/internal/core"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db *sql.DB
}

var _ Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) GetBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, reference_number, description, capital_total, usable_percentage,
		       color, created_at, modified_at, is_archived, is_restored
		FROM budgets ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var (
			b                 core.Budget
			capital           string
			created, modified string
		)
		if err := rows.Scan(&b.ID, &b.ReferenceNumber, &b.Description, &capital, &b.UsablePercentage,
			&b.Color, &created, &modified, &b.IsArchived, &b.IsRestored); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		if b.CapitalTotal, err = decimal.NewFromString(capital); err != nil {
			return nil, fmt.Errorf("budget %s capital: %w", b.ID, err)
		}
		if b.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("budget %s created_at: %w", b.ID, err)
		}
		if b.ModifiedAt, err = time.Parse(timeLayout, modified); err != nil {
			return nil, fmt.Errorf("budget %s modified_at: %w", b.ID, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SaveBudgets(ctx context.Context, budgets []core.Budget) error {
	return r.replace(ctx, "budgets", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO budgets (position, id, reference_number, description, capital_total,
			                     usable_percentage, color, created_at, modified_at, is_archived, is_restored)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, b := range budgets {
			if _, err := stmt.ExecContext(ctx, i, b.ID, b.ReferenceNumber, b.Description, b.CapitalTotal.String(),
				b.UsablePercentage, b.Color, b.CreatedAt.Format(timeLayout), b.ModifiedAt.Format(timeLayout),
				b.IsArchived, b.IsRestored); err != nil {
				return fmt.Errorf("insert budget %s: %w", b.ID, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) GetExpenses(ctx context.Context) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, reference_number, description, amount, budget_id, created_at
		FROM expenses ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		var (
			e       core.Expense
			amount  string
			created string
		)
		if err := rows.Scan(&e.ID, &e.ReferenceNumber, &e.Description, &amount, &e.BudgetID, &created); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("expense %s amount: %w", e.ID, err)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("expense %s created_at: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SaveExpenses(ctx context.Context, expenses []core.Expense) error {
	return r.replace(ctx, "expenses", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO expenses (position, id, reference_number, description, amount, budget_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, e := range expenses {
			if _, err := stmt.ExecContext(ctx, i, e.ID, e.ReferenceNumber, e.Description,
				e.Amount.String(), e.BudgetID, e.CreatedAt.Format(timeLayout)); err != nil {
				return fmt.Errorf("insert expense %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) GetManualOrder(ctx context.Context) ([]string, error) {
	var order []string
	if _, err := r.getJSON(ctx, KeyManualOrder, &order); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *SQLiteRepository) SaveManualOrder(ctx context.Context, order []string) error {
	if order == nil {
		order = []string{}
	}
	return r.putJSON(ctx, KeyManualOrder, order)
}

func (r *SQLiteRepository) GetSettings(ctx context.Context) (core.Settings, error) {
	s := core.DefaultSettings()
	if _, err := r.getJSON(ctx, KeySettings, &s); err != nil {
		return core.DefaultSettings(), err
	}
	return s, nil
}

func (r *SQLiteRepository) SaveSettings(ctx context.Context, s core.Settings) error {
	return r.putJSON(ctx, KeySettings, s)
}

func (r *SQLiteRepository) ClearAll(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM budgets`,
		`DELETE FROM expenses`,
		`DELETE FROM kv WHERE key = '` + KeyManualOrder + `'`,
	} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("clear data: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	slog.InfoContext(ctx, "All data cleared from SQLite")
	return nil
}

// replace rewrites table inside one transaction using fill.
func (r *SQLiteRepository) replace(ctx context.Context, table string, fill func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s save: %w", table, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("truncate %s: %w", table, err)
	}
	if err := fill(tx); err != nil {
		return fmt.Errorf("save %s: %w", table, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s save: %w", table, err)
	}
	return nil
}

func (r *SQLiteRepository) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (r *SQLiteRepository) putJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
