// Package lease wraps the ledger's claim/renew primitives with a worker
// identity and a background renewal loop, so the processing code only
// deals in batches of owned jobs.
package lease

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tilexfer/internal/ledger"
	"tilexfer/internal/logging"
)

// Manager claims jobs on behalf of one worker process and keeps the
// leases alive while the worker holds them.
type Manager struct {
	store    *ledger.Store
	workerID string
	duration time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	held map[string]struct{}
}

// NewManager builds a manager with a fresh worker identity. Each process
// gets its own UUID so lease ownership survives hostname collisions.
func NewManager(store *ledger.Store, duration time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		workerID: uuid.NewString(),
		duration: duration,
		logger:   logging.NewComponentLogger(logger, "lease"),
		held:     make(map[string]struct{}),
	}
}

// WorkerID returns the identity leases are claimed under.
func (m *Manager) WorkerID() string {
	return m.workerID
}

// Claim leases up to batchSize jobs and tracks them for renewal.
func (m *Manager) Claim(ctx context.Context, batchSize int) ([]*ledger.Job, error) {
	jobs, err := m.store.Claim(ctx, m.workerID, batchSize, m.duration)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	for _, job := range jobs {
		m.held[job.ID] = struct{}{}
	}
	m.mu.Unlock()
	return jobs, nil
}

// Forget drops a job from renewal tracking once the worker has reported
// its outcome.
func (m *Manager) Forget(id string) {
	m.mu.Lock()
	delete(m.held, id)
	m.mu.Unlock()
}

// Held returns the ids currently tracked for renewal.
func (m *Manager) Held() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.held))
	for id := range m.held {
		ids = append(ids, id)
	}
	return ids
}

// KeepAlive renews held leases until the context is cancelled. It ticks at
// a third of the lease duration so a single missed renewal never loses a
// lease. Run it in its own goroutine; wg is released on exit.
func (m *Manager) KeepAlive(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	interval := m.duration / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.renewHeld(ctx)
		}
	}
}

func (m *Manager) renewHeld(ctx context.Context) {
	ids := m.Held()
	if len(ids) == 0 {
		return
	}
	renewed, err := m.store.Renew(ctx, m.workerID, ids, m.duration)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		m.logger.Warn("lease renewal failed", logging.Error(err))
		return
	}
	if int(renewed) < len(ids) {
		m.logger.Warn("lost ownership of leases",
			logging.Int("held", len(ids)),
			logging.Int64("renewed", renewed))
	}
}
