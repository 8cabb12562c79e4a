// Package worker runs the transfer loop: claim a batch of jobs, process
// each tile, report the outcome, repeat until the ledger is drained.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"tilexfer/internal/codec"
	"tilexfer/internal/lease"
	"tilexfer/internal/ledger"
	"tilexfer/internal/logging"
	"tilexfer/internal/resin"
	"tilexfer/internal/storage"
)

// Options configure one worker process.
type Options struct {
	Store      *ledger.Store
	Source     storage.Backend
	Dest       storage.Backend
	Transcoder *codec.Transcoder
	Gate       *resin.Gate

	// BlockSize caps the claim batch; RampUp stretches the climb from a
	// single-job first batch so a misconfigured fleet fails one tile, not
	// hundreds.
	BlockSize     int
	LeaseDuration time.Duration
	RampUp        time.Duration

	// CodecThreads passes through to encode params.
	CodecThreads int
	// Cleanup removes source tiles after their artifact is confirmed.
	Cleanup bool
	// ShowProgress renders a progress bar on stderr.
	ShowProgress bool

	Logger *slog.Logger
}

// Worker drains a ledger.
type Worker struct {
	opts    Options
	logger  *slog.Logger
	manager *lease.Manager
	started time.Time
}

// New validates options and builds a worker.
func New(opts Options) (*Worker, error) {
	if opts.Store == nil {
		return nil, errors.New("worker requires a ledger store")
	}
	if opts.Source == nil || opts.Dest == nil {
		return nil, errors.New("worker requires source and dest backends")
	}
	if opts.Transcoder == nil {
		opts.Transcoder = codec.NewTranscoder()
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = 1
	}
	if opts.LeaseDuration <= 0 {
		return nil, errors.New("lease duration must be positive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	manager := lease.NewManager(opts.Store, opts.LeaseDuration, logger)
	return &Worker{
		opts: opts,
		logger: logging.NewComponentLogger(logger, "worker").With(
			logging.String(logging.FieldWorkerID, manager.WorkerID()),
		),
		manager: manager,
	}, nil
}

// WorkerID returns the lease identity of this process.
func (w *Worker) WorkerID() string { return w.manager.WorkerID() }

// Run processes jobs until no work remains or the context is cancelled.
// Per-job failures are reported to the ledger and never stop the loop;
// only ledger unavailability aborts.
func (w *Worker) Run(ctx context.Context) error {
	meta, err := w.opts.Store.Meta(ctx)
	if err != nil {
		return fmt.Errorf("load transfer meta: %w", err)
	}
	params := codec.Params{
		Encoding:      meta.Encoding,
		Compression:   meta.Compression,
		Level:         meta.Level,
		Effort:        meta.JXLEffort,
		DecodingSpeed: meta.JXLDecodingSpeed,
		Threads:       w.opts.CodecThreads,
	}
	cleanup := w.opts.Cleanup || meta.Cleanup

	keepCtx, stopKeepAlive := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go w.manager.KeepAlive(keepCtx, &wg)
	defer func() {
		stopKeepAlive()
		wg.Wait()
	}()

	var bar *progressbar.ProgressBar
	if w.opts.ShowProgress {
		counts, err := w.opts.Store.CountSummary(ctx)
		if err != nil {
			return fmt.Errorf("count jobs: %w", err)
		}
		bar = progressbar.Default(int64(counts.Remaining()), "tiles")
	}

	w.started = time.Now()
	w.logger.Info("worker starting",
		logging.Int("block_size", w.opts.BlockSize),
		logging.Duration("lease", w.opts.LeaseDuration))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := w.manager.Claim(ctx, w.batchCap())
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		if len(batch) == 0 {
			done, err := w.waitOrFinish(ctx)
			if err != nil {
				return err
			}
			if done {
				break
			}
			continue
		}
		for _, job := range batch {
			w.processJob(ctx, job, params, cleanup)
			w.manager.Forget(job.ID)
			if bar != nil {
				_ = bar.Add(1)
			}
		}
	}

	if bar != nil {
		_ = bar.Finish()
	}
	w.logger.Info("worker finished", logging.Duration("elapsed", time.Since(w.started)))
	return nil
}

// batchCap doubles the claim size from 1 up to BlockSize over the ramp
// window.
func (w *Worker) batchCap() int {
	if w.opts.RampUp <= 0 || w.opts.BlockSize <= 1 {
		return w.opts.BlockSize
	}
	steps := bits.Len(uint(w.opts.BlockSize - 1))
	interval := w.opts.RampUp / time.Duration(steps)
	if interval <= 0 {
		return w.opts.BlockSize
	}
	doublings := int(time.Since(w.started) / interval)
	if doublings >= steps {
		return w.opts.BlockSize
	}
	size := 1 << doublings
	if size > w.opts.BlockSize {
		size = w.opts.BlockSize
	}
	return size
}

// waitOrFinish decides what an empty claim means: finished, or other
// workers still hold live leases that may yet expire back into the pool.
func (w *Worker) waitOrFinish(ctx context.Context) (bool, error) {
	counts, err := w.opts.Store.CountSummary(ctx)
	if err != nil {
		return false, fmt.Errorf("count jobs: %w", err)
	}
	if counts.Leased == 0 {
		return true, nil
	}
	wait := w.opts.LeaseDuration / 4
	if wait > 2*time.Second {
		wait = 2 * time.Second
	}
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(wait):
		return false, nil
	}
}

func (w *Worker) processJob(ctx context.Context, job *ledger.Job, params codec.Params, cleanup bool) {
	logger := w.logger.With(
		logging.String(logging.FieldJobID, job.ID),
		logging.Int(logging.FieldAttempt, job.Attempts),
	)

	data, err := w.opts.Source.Read(ctx, job.SourcePath)
	if err != nil {
		w.reportFailure(ctx, logger, job, Wrap(ErrTransient, "read source", job.SourcePath, err))
		return
	}

	var (
		verdict = ledger.VerdictUnknown
		inspect codec.Inspector
	)
	if w.opts.Gate != nil && w.opts.Gate.Enabled() {
		inspect = func(ctx context.Context, name string, img *codec.Image) error {
			verdict = w.opts.Gate.Classify(img)
			skip, err := w.opts.Gate.Handle(ctx, name, verdict)
			if err != nil {
				return Wrap(ErrTransient, "resin disposition", name, err)
			}
			if skip {
				return resin.ErrSkipTranscode
			}
			return nil
		}
	}

	_, out, err := w.opts.Transcoder.Transcode(ctx, job.SourcePath, data, params, inspect)
	if errors.Is(err, resin.ErrSkipTranscode) {
		w.reportResin(ctx, logger, job, verdict)
		return
	}
	if err != nil {
		marker := ErrTransient
		if IsPermanent(err) {
			marker = ErrPermanent
		}
		w.reportFailure(ctx, logger, job, Wrap(marker, "transcode", job.SourcePath, err))
		return
	}

	if verdict != ledger.VerdictUnknown {
		// Record the verdict before writing so a crash never leaves a
		// done job with an unknown classification.
		meta, metaErr := w.opts.Store.Meta(ctx)
		if metaErr != nil {
			w.reportFailure(ctx, logger, job, Wrap(ErrTransient, "load transfer meta", "", metaErr))
			return
		}
		if _, err := w.opts.Store.MarkResin(ctx, job.ID, w.manager.WorkerID(), verdict, meta.ResinAction); err != nil {
			w.discardOnOwnershipLoss(logger, job, err)
			return
		}
	}

	if err := w.opts.Dest.Write(ctx, job.DestPath, out, 0o644); err != nil {
		w.reportFailure(ctx, logger, job, Wrap(ErrTransient, "write artifact", job.DestPath, err))
		return
	}

	if err := w.opts.Store.Complete(ctx, job.ID, w.manager.WorkerID(), int64(len(out))); err != nil {
		w.discardOnOwnershipLoss(logger, job, err)
		return
	}
	logger.Debug("job done", logging.Int("result_size", len(out)))

	if cleanup {
		if err := w.opts.Source.Remove(ctx, job.SourcePath); err != nil {
			// The artifact is already confirmed; a stranded source is an
			// operator annoyance, not a job failure.
			logger.Warn("cleanup failed", logging.Error(err))
		}
	}
}

func (w *Worker) reportResin(ctx context.Context, logger *slog.Logger, job *ledger.Job, verdict ledger.Verdict) {
	meta, err := w.opts.Store.Meta(ctx)
	if err != nil {
		logger.Error("load transfer meta", logging.Error(err))
		return
	}
	skipped, err := w.opts.Store.MarkResin(ctx, job.ID, w.manager.WorkerID(), verdict, meta.ResinAction)
	if err != nil {
		w.discardOnOwnershipLoss(logger, job, err)
		return
	}
	if skipped {
		logger.Info("tile skipped as resin")
	}
}

func (w *Worker) reportFailure(ctx context.Context, logger *slog.Logger, job *ledger.Job, cause error) {
	permanent := IsPermanent(cause)
	if err := w.opts.Store.Fail(ctx, job.ID, w.manager.WorkerID(), permanent, cause.Error()); err != nil {
		w.discardOnOwnershipLoss(logger, job, err)
		return
	}
	if permanent {
		logger.Error("job failed permanently", logging.Error(cause))
	} else {
		logger.Warn("job failed, requeued", logging.Error(cause))
	}
}

// discardOnOwnershipLoss handles a rejected report: the lease expired and
// another worker owns the job now, so this worker's result is dropped on
// the floor.
func (w *Worker) discardOnOwnershipLoss(logger *slog.Logger, job *ledger.Job, err error) {
	if errors.Is(err, ledger.ErrOwnership) {
		logger.Warn("lease lost, result discarded")
		return
	}
	logger.Error("report failed", logging.Error(err))
}
