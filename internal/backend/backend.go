// Package backend selects and constructs the document store adapter from
// configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"duit/internal/config"
	"duit/internal/docstore"
	"duit/internal/docstore/memory"
	"duit/internal/docstore/mongo"
	"duit/internal/docstore/sqlite"
)

// CleanupFunc releases backend resources at shutdown.
type CleanupFunc func(ctx context.Context) error

// Result pairs a ready store with its cleanup function. Cleanup may be nil.
type Result struct {
	Store   docstore.Store
	Cleanup CleanupFunc
}

// Type names the supported backends.
type Type string

const (
	MemoryBackend Type = "memory"
	SQLiteBackend Type = "sqlite"
	MongoBackend  Type = "mongo"
)

func (t Type) IsValid() bool {
	switch t {
	case MemoryBackend, SQLiteBackend, MongoBackend:
		return true
	default:
		return false
	}
}

// Factory creates document stores from configuration.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// CreateStore builds the store named by cfg.DataBackend.
func (f *Factory) CreateStore(ctx context.Context, cfg *config.Config) (*Result, error) {
	t := Type(cfg.DataBackend)
	if !t.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.DataBackend)
	}

	switch t {
	case SQLiteBackend:
		return f.createSQLite(cfg)
	case MongoBackend:
		return f.createMongo(ctx, cfg)
	default:
		return f.createMemory()
	}
}

func (f *Factory) createSQLite(cfg *config.Config) (*Result, error) {
	store, err := sqlite.New(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sqlite store: %w", err)
	}

	f.logger.Info("Initialized sqlite backend", "db_path", cfg.SQLiteDBPath)
	return &Result{
		Store:   store,
		Cleanup: func(context.Context) error { return store.Close() },
	}, nil
}

func (f *Factory) createMongo(ctx context.Context, cfg *config.Config) (*Result, error) {
	store, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mongo store: %w", err)
	}

	f.logger.Info("Initialized mongo backend", "database", cfg.MongoDatabase)
	return &Result{
		Store:   store,
		Cleanup: store.Close,
	}, nil
}

func (f *Factory) createMemory() (*Result, error) {
	f.logger.Info("Initialized memory backend")
	return &Result{Store: memory.New()}, nil
}
