package testsupport

import (
	"context"
	"testing"

	"macroblock/internal/config"
	"macroblock/internal/history"
)

// MustOpenStore opens a history.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// InsertRecord stores an analysis record for tests using the provided store.
func InsertRecord(t testing.TB, store *history.Store, rec *history.Record) *history.Record {
	t.Helper()

	if err := store.Insert(context.Background(), rec); err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	return rec
}
