package testsupport

import (
	"context"
	"testing"

	"chronicle/internal/config"
	"chronicle/internal/store"
)

// MustOpenStore opens a store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewBatch creates a batch for tests using the provided store.
func NewBatch(t testing.TB, st *store.Store, name string) *store.Batch {
	t.Helper()

	batch, err := st.InsertBatch(context.Background(), name, "")
	if err != nil {
		t.Fatalf("store.InsertBatch: %v", err)
	}
	return batch
}

// NewWorkItem creates a work item in a batch for tests.
func NewWorkItem(t testing.TB, st *store.Store, batchID int64, label string) *store.WorkItem {
	t.Helper()

	item, err := st.InsertWorkItem(context.Background(), &store.WorkItem{
		BatchID: batchID,
		Label:   label,
	})
	if err != nil {
		t.Fatalf("store.InsertWorkItem: %v", err)
	}
	return item
}
