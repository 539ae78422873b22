package backend

import (
	"context"
	"fmt"
	"log/slog"

	"several/internal/storage"
	"several/internal/storage/memory"
)

// Opener builds a store for one Kind.
type Opener func(ctx context.Context, c Config) (storage.Store, CleanupFunc, error)

// Factory maps each Kind to its Opener.
type Factory struct {
	logger  *slog.Logger
	openers map[Kind]Opener
}

// NewFactory registers the memory and SQLite openers.
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Factory{logger: logger, openers: make(map[Kind]Opener)}
	f.Register(KindMemory, openMemory)
	f.Register(KindSQLite, openSQLite)
	return f
}

// Register installs or replaces the opener for k.
func (f *Factory) Register(k Kind, o Opener) {
	f.openers[k] = o
}

// Open validates c and builds its store.
func (f *Factory) Open(ctx context.Context, c Config) (storage.Store, CleanupFunc, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	open, ok := f.openers[c.Kind]
	if !ok {
		return nil, nil, fmt.Errorf("no opener for backend %q", c.Kind)
	}
	store, cleanup, err := open(ctx, c)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s backend: %w", c.Kind, err)
	}
	f.logger.InfoContext(ctx, "Storage backend ready", "backend", string(c.Kind),
		"sqlite_path", c.SQLitePath, "seed_file", c.SeedFile)
	return store, cleanup, nil
}

func openSQLite(_ context.Context, c Config) (storage.Store, CleanupFunc, error) {
	repo, err := storage.NewSQLiteRepository(c.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}

func openMemory(_ context.Context, c Config) (storage.Store, CleanupFunc, error) {
	if c.SeedFile == "" {
		s := memory.New()
		return s, s.Close, nil
	}
	s, err := memory.NewFromFile(c.SeedFile)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}
