package verify_test

import (
	"context"
	"testing"
	"time"

	"tilexfer/internal/ledger"
	"tilexfer/internal/storage"
	"tilexfer/internal/testsupport"
	"tilexfer/internal/verify"
	"tilexfer/internal/worker"
)

// runBatch drains a seeded ledger through a real worker so the verifier
// sees the same state production runs produce.
func runBatch(t *testing.T, store *ledger.Store, src, dst storage.Backend) {
	t.Helper()
	w, err := worker.New(worker.Options{
		Store:         store,
		Source:        src,
		Dest:          dst,
		BlockSize:     8,
		LeaseDuration: time.Minute,
	})
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("worker.Run: %v", err)
	}
}

func TestVerifyCleanBatch(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	store := testsupport.MustOpenLedger(t)
	testsupport.SeedMeta(t, store, func(m *ledger.Meta) { m.Encoding = "bmp" })
	testsupport.WriteTiles(t, srcDir, 10)
	testsupport.EnqueueN(t, store, 10)

	src := storage.NewLocal(srcDir)
	dst := storage.NewLocal(dstDir)
	runBatch(t, store, src, dst)

	report, err := verify.Run(context.Background(), store, src, dst)
	if err != nil {
		t.Fatalf("verify.Run: %v", err)
	}
	if !report.OK() {
		t.Fatalf("expected clean report, got %s", report.Summary())
	}
}

func TestVerifyDetectsMissingArtifact(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	store := testsupport.MustOpenLedger(t)
	testsupport.SeedMeta(t, store, func(m *ledger.Meta) { m.Encoding = "bmp" })
	testsupport.WriteTiles(t, srcDir, 3)
	testsupport.EnqueueN(t, store, 3)

	src := storage.NewLocal(srcDir)
	dst := storage.NewLocal(dstDir)
	runBatch(t, store, src, dst)

	// Simulate a lost artifact.
	if err := dst.Remove(context.Background(), testsupport.TileName(1)); err != nil {
		t.Fatalf("remove artifact: %v", err)
	}

	report, err := verify.Run(context.Background(), store, src, dst)
	if err != nil {
		t.Fatalf("verify.Run: %v", err)
	}
	if len(report.Missing) != 1 || report.Missing[0] != "tile-001" {
		t.Fatalf("expected tile-001 missing, got %v", report.Missing)
	}
}

func TestVerifyDetectsIncompleteLedger(t *testing.T) {
	srcDir := t.TempDir()
	store := testsupport.MustOpenLedger(t)
	testsupport.SeedMeta(t, store, func(m *ledger.Meta) { m.Encoding = "bmp" })
	testsupport.WriteTiles(t, srcDir, 2)
	testsupport.EnqueueN(t, store, 2)
	// No worker runs: both jobs stay pending.

	report, err := verify.Run(context.Background(), store, storage.NewLocal(srcDir), storage.NewLocal(t.TempDir()))
	if err != nil {
		t.Fatalf("verify.Run: %v", err)
	}
	if len(report.LedgerIncomplete) != 2 {
		t.Fatalf("expected 2 incomplete, got %v", report.LedgerIncomplete)
	}
}

func TestVerifyDetectsExtraAndEmptyArtifacts(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	store := testsupport.MustOpenLedger(t)
	testsupport.SeedMeta(t, store, func(m *ledger.Meta) { m.Encoding = "bmp" })
	testsupport.WriteTiles(t, srcDir, 2)
	testsupport.EnqueueN(t, store, 2)

	src := storage.NewLocal(srcDir)
	dst := storage.NewLocal(dstDir)
	runBatch(t, store, src, dst)

	ctx := context.Background()
	// An artifact nobody asked for, and a truncated one.
	if err := dst.Write(ctx, "stray.bmp", []byte("x"), 0o644); err != nil {
		t.Fatalf("write stray: %v", err)
	}
	if err := dst.Write(ctx, testsupport.TileName(0), nil, 0o644); err != nil {
		t.Fatalf("truncate artifact: %v", err)
	}

	report, err := verify.Run(ctx, store, src, dst)
	if err != nil {
		t.Fatalf("verify.Run: %v", err)
	}
	if len(report.Extra) != 1 || report.Extra[0] != "stray" {
		t.Fatalf("expected stray extra, got %v", report.Extra)
	}
	if len(report.Empty) != 1 || report.Empty[0] != "tile-000" {
		t.Fatalf("expected tile-000 empty, got %v", report.Empty)
	}
}

func TestVerifyExemptsRecordedEmptySource(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	store := testsupport.MustOpenLedger(t)
	testsupport.SeedMeta(t, store, func(m *ledger.Meta) { m.Encoding = "bmp" })
	testsupport.WriteTile(t, srcDir, 0, 0)
	testsupport.EnqueueN(t, store, 1)

	src := storage.NewLocal(srcDir)
	dst := storage.NewLocal(dstDir)
	runBatch(t, store, src, dst)

	report, err := verify.Run(context.Background(), store, src, dst)
	if err != nil {
		t.Fatalf("verify.Run: %v", err)
	}
	if !report.OK() {
		t.Fatalf("recorded-empty source must verify clean, got %s", report.Summary())
	}
}

func TestVerifyIgnoresSkippedResinWithoutArtifact(t *testing.T) {
	srcDir := t.TempDir()
	store := testsupport.MustOpenLedger(t)
	testsupport.SeedMeta(t, store, func(m *ledger.Meta) {
		m.Encoding = "bmp"
		m.ResinAction = ledger.ActionStay
	})
	testsupport.WriteTiles(t, srcDir, 1)
	ids := testsupport.EnqueueN(t, store, 1)

	ctx := context.Background()
	if _, err := store.Claim(ctx, "w1", 1, time.Minute); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := store.MarkResin(ctx, ids[0], "w1", ledger.VerdictResin, ledger.ActionStay); err != nil {
		t.Fatalf("MarkResin: %v", err)
	}

	report, err := verify.Run(ctx, store, storage.NewLocal(srcDir), storage.NewLocal(t.TempDir()))
	if err != nil {
		t.Fatalf("verify.Run: %v", err)
	}
	if !report.OK() {
		t.Fatalf("skipped tile without artifact must verify clean, got %s", report.Summary())
	}
}
