package testsupport

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tilexfer/internal/ledger"
)

// MustOpenLedger opens a ledger.Store backed by a temp file and registers
// cleanup.
func MustOpenLedger(t testing.TB) *ledger.Store {
	t.Helper()
	return MustOpenLedgerAt(t, filepath.Join(t.TempDir(), "transfer.db"))
}

// MustOpenLedgerAt opens a ledger.Store at a specific path, for tests that
// need several stores sharing one database file.
func MustOpenLedgerAt(t testing.TB, path string) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(path, ledger.Options{BusyTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedMeta records a minimal batch configuration on the store.
func SeedMeta(t testing.TB, store *ledger.Store, mutate ...func(*ledger.Meta)) ledger.Meta {
	t.Helper()

	meta := ledger.Meta{
		Source:      "/src",
		Dest:        "/dst",
		Encoding:    "png",
		Ext:         "bmp",
		ResinAction: ledger.ActionNoop,
		MaxAttempts: 5,
	}
	for _, fn := range mutate {
		fn(&meta)
	}
	if err := store.CreateMeta(context.Background(), meta); err != nil {
		t.Fatalf("CreateMeta: %v", err)
	}
	return meta
}

// EnqueueN inserts n jobs named tile-000.bmp, tile-001.bmp, ... and returns
// their ids.
func EnqueueN(t testing.TB, store *ledger.Store, n int) []string {
	t.Helper()

	jobs := make([]ledger.NewJob, 0, n)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := tileName(i)
		jobs = append(jobs, ledger.NewJob{ID: id, SourcePath: id, DestPath: id})
		ids = append(ids, id)
	}
	if _, err := store.Enqueue(context.Background(), jobs); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return ids
}
