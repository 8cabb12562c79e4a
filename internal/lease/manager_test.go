package lease_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"tilexfer/internal/lease"
	"tilexfer/internal/ledger"
	"tilexfer/internal/testsupport"
)

func TestManagerTracksClaims(t *testing.T) {
	store := testsupport.MustOpenLedger(t)
	testsupport.SeedMeta(t, store)
	testsupport.EnqueueN(t, store, 3)

	manager := lease.NewManager(store, time.Minute, nil)
	if manager.WorkerID() == "" {
		t.Fatal("expected a worker id")
	}

	jobs, err := manager.Claim(context.Background(), 2)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if held := manager.Held(); len(held) != 2 {
		t.Fatalf("expected 2 tracked leases, got %d", len(held))
	}

	manager.Forget(jobs[0].ID)
	if held := manager.Held(); len(held) != 1 {
		t.Fatalf("expected 1 tracked lease after forget, got %d", len(held))
	}
}

func TestKeepAliveRenewsHeldLeases(t *testing.T) {
	store := testsupport.MustOpenLedger(t)
	testsupport.SeedMeta(t, store)
	testsupport.EnqueueN(t, store, 1)

	manager := lease.NewManager(store, 60*time.Millisecond, nil)
	jobs, err := manager.Claim(context.Background(), 1)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("Claim failed: %v (%d jobs)", err, len(jobs))
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go manager.KeepAlive(ctx, &wg)

	// Hold the job well past the original lease; renewals must keep other
	// workers out the whole time.
	time.Sleep(200 * time.Millisecond)
	stolen, err := store.Claim(context.Background(), "intruder", 1, time.Minute)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if len(stolen) != 0 {
		t.Fatalf("expected lease held by keepalive, got %d reclaimed", len(stolen))
	}

	cancel()
	wg.Wait()

	job, err := store.GetByID(context.Background(), jobs[0].ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if job.Status != ledger.StatusLeased || job.LeaseOwner != manager.WorkerID() {
		t.Fatalf("unexpected job state: %+v", job)
	}
}
