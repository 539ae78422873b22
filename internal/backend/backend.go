// Package backend opens the storage implementation named by DATA_BACKEND.
package backend

import (
	"errors"
	"fmt"

	"several/internal/config"
)

// Kind names a storage implementation.
type Kind string

const (
	KindMemory Kind = "memory"
	KindSQLite Kind = "sqlite"
)

// CleanupFunc releases whatever a store holds open.
type CleanupFunc func() error

// Config selects and parameterizes a store.
type Config struct {
	Kind Kind

	SQLitePath string
	// SeedFile is a backup document preloaded into the memory store.
	SeedFile string
}

var errNilConfig = errors.New("app config is nil")

// FromAppConfig extracts the storage settings of c.
func FromAppConfig(c *config.Config) (Config, error) {
	if c == nil {
		return Config{}, errNilConfig
	}
	bc := Config{
		Kind:       Kind(c.DataBackend),
		SQLitePath: c.SQLiteDBPath,
		SeedFile:   c.SeedFile,
	}
	return bc, bc.Validate()
}

func (c Config) Validate() error {
	switch c.Kind {
	case KindMemory:
		return nil
	case KindSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite backend needs a database path")
		}
		return nil
	default:
		return fmt.Errorf("unknown backend %q", c.Kind)
	}
}
