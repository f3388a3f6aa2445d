package testsupport

import (
	"context"
	"testing"

	"webmill/internal/config"
	"webmill/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a fresh processing job for tests using the provided store.
func NewJob(t testing.TB, store *jobs.Store, id string) *jobs.Record {
	t.Helper()

	record, err := store.Create(context.Background(), jobs.NewRecord(id))
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return record
}
