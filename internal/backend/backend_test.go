package backend

import (
	"context"
	"path/filepath"
	"testing"

	"duit/internal/config"
)

func TestCreateStoreMemory(t *testing.T) {
	f := NewFactory(nil)
	result, err := f.CreateStore(context.Background(), &config.Config{DataBackend: "memory"})
	if err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	if result.Store == nil {
		t.Fatal("store is nil")
	}
	if result.Cleanup != nil {
		t.Error("memory backend needs no cleanup")
	}
}

func TestCreateStoreSQLite(t *testing.T) {
	f := NewFactory(nil)
	cfg := &config.Config{
		DataBackend:  "sqlite",
		SQLiteDBPath: filepath.Join(t.TempDir(), "test.db"),
	}
	result, err := f.CreateStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	if result.Cleanup == nil {
		t.Fatal("sqlite backend must expose cleanup")
	}
	if err := result.Cleanup(context.Background()); err != nil {
		t.Errorf("cleanup: %v", err)
	}
}

func TestCreateStoreInvalidType(t *testing.T) {
	f := NewFactory(nil)
	if _, err := f.CreateStore(context.Background(), &config.Config{DataBackend: "firestore"}); err == nil {
		t.Error("expected error for unknown backend type")
	}
}
