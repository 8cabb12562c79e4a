package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"
)

// enqueueChunk bounds bind parameters per INSERT; SQLite caps host
// parameters at 999 in older builds and each row binds five.
const enqueueChunk = 150

const jobColumns = "seq, id, source_path, dest_path, status, lease_owner, lease_expires_at, attempts, resin_verdict, result_size, last_error, created_at, updated_at"

// Enqueue bulk-inserts new pending jobs, skipping any id already present so
// re-running init does not duplicate rows. It returns the number of rows
// actually inserted.
func (s *Store) Enqueue(ctx context.Context, jobs []NewJob) (int64, error) {
	ctx = ensureContext(ctx)
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	var inserted int64
	for start := 0; start < len(jobs); start += enqueueChunk {
		end := start + enqueueChunk
		if end > len(jobs) {
			end = len(jobs)
		}
		chunk := jobs[start:end]

		query := `INSERT INTO jobs (id, source_path, dest_path, created_at, updated_at) VALUES `
		args := make([]any, 0, len(chunk)*5)
		for i, job := range chunk {
			if job.ID == "" {
				return inserted, errors.New("job id must not be empty")
			}
			if i > 0 {
				query += ","
			}
			query += "(?,?,?,?,?)"
			args = append(args, job.ID, job.SourcePath, job.DestPath, timestamp, timestamp)
		}
		query += " ON CONFLICT(id) DO NOTHING"

		res, err := s.execWithRetry(ctx, query, args...)
		if err != nil {
			return inserted, fmt.Errorf("enqueue jobs: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("rows affected: %w", err)
		}
		inserted += affected
	}
	return inserted, nil
}

// Claim atomically leases up to batchSize jobs for workerID: any job that is
// pending, or leased with an expired lease, and still under the attempts
// ceiling. Selection is oldest first for rough FIFO fairness across workers.
// The whole claim is one UPDATE with a RETURNING clause, so two workers
// racing on the same ledger can never lease the same row.
//
// Claim first sweeps claimable rows already past the ceiling into failed.
// Those rows exist when a worker crash-loops: each reclaim increments
// attempts but the worker never reports, so no Fail call ever runs for
// them.
func (s *Store) Claim(ctx context.Context, workerID string, batchSize int, leaseDuration time.Duration) ([]*Job, error) {
	if workerID == "" {
		return nil, errors.New("worker id must not be empty")
	}
	if batchSize <= 0 {
		return nil, nil
	}
	meta, err := s.Meta(ctx)
	if err != nil {
		return nil, err
	}

	ctx = ensureContext(ctx)
	now := nowMsec()
	if err := s.failExhausted(ctx, now, meta.MaxAttempts); err != nil {
		return nil, err
	}
	expires := now + leaseDuration.Milliseconds()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	query := `UPDATE jobs SET
            status = ?,
            lease_owner = ?,
            lease_expires_at = ?,
            attempts = attempts + 1,
            updated_at = ?
        WHERE id IN (
            SELECT id FROM jobs
            WHERE (status = ? OR (status = ? AND lease_expires_at < ?))
              AND attempts <= ?
            ORDER BY seq
            LIMIT ?
        )
        RETURNING ` + jobColumns

	var jobs []*Job
	queryErr := retryOnBusy(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, query,
			StatusLeased,
			workerID,
			expires,
			timestamp,
			StatusPending,
			StatusLeased,
			now,
			meta.MaxAttempts,
			batchSize,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		jobs = jobs[:0]
		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return rows.Err()
	})
	if queryErr != nil {
		return nil, fmt.Errorf("claim jobs: %w", queryErr)
	}

	// RETURNING does not guarantee row order.
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Seq < jobs[j].Seq })
	return jobs, nil
}

// failExhausted moves claimable rows whose attempts already exceed the
// ceiling to failed, recording why. Without this a job abandoned past the
// ceiling would stay non-terminal forever, invisible to claims.
func (s *Store) failExhausted(ctx context.Context, nowMsec int64, maxAttempts int) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET
            status = ?, lease_owner = NULL, lease_expires_at = NULL,
            last_error = ?, updated_at = ?
         WHERE (status = ? OR (status = ? AND lease_expires_at < ?))
           AND attempts > ?`,
		StatusFailed,
		"attempts exhausted without a reported outcome",
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusPending,
		StatusLeased,
		nowMsec,
		maxAttempts,
	)
	if err != nil {
		return fmt.Errorf("fail exhausted jobs: %w", err)
	}
	return nil
}

// Renew extends the lease on jobs still owned by workerID and returns how
// many rows were extended. A count lower than len(ids) means ownership of
// the remainder has changed; the caller should stop working those jobs.
func (s *Store) Renew(ctx context.Context, workerID string, ids []string, leaseDuration time.Duration) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	expires := nowMsec() + leaseDuration.Milliseconds()
	args := make([]any, 0, len(ids)+4)
	args = append(args, expires, time.Now().UTC().Format(time.RFC3339Nano), StatusLeased, workerID)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE jobs SET lease_expires_at = ?, updated_at = ?
        WHERE status = ? AND lease_owner = ? AND id IN (` + makePlaceholders(len(ids)) + `)`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("renew leases: %w", err)
	}
	return res.RowsAffected()
}

// Complete marks a job done with the produced artifact size. It returns
// ErrOwnership when the caller's lease was reclaimed by another worker; the
// result must be discarded in that case to avoid conflicting writes.
func (s *Store) Complete(ctx context.Context, id, workerID string, resultSize int64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET
            status = ?, result_size = ?, lease_owner = NULL,
            lease_expires_at = NULL, last_error = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND lease_owner = ?`,
		StatusDone,
		resultSize,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusLeased,
		workerID,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return s.checkOwnership(ctx, res, id)
}

// Fail reports a failed attempt. Permanent failures (or transient failures
// past the attempts ceiling) move the job to failed; otherwise it returns to
// pending for another attempt. Ownership is enforced the same way as
// Complete.
func (s *Store) Fail(ctx context.Context, id, workerID string, permanent bool, cause string) error {
	meta, err := s.Meta(ctx)
	if err != nil {
		return err
	}
	failed := permanent
	res, execErr := s.execWithRetry(
		ctx,
		`UPDATE jobs SET
            status = CASE WHEN ? OR attempts > ? THEN ? ELSE ? END,
            lease_owner = NULL, lease_expires_at = NULL,
            last_error = ?, updated_at = ?
         WHERE id = ? AND status = ? AND lease_owner = ?`,
		boolToInt(failed),
		meta.MaxAttempts,
		StatusFailed,
		StatusPending,
		nullableString(cause),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusLeased,
		workerID,
	)
	if execErr != nil {
		return fmt.Errorf("fail job: %w", execErr)
	}
	return s.checkOwnership(ctx, res, id)
}

// MarkResin records the classifier verdict for a leased job. When the
// verdict is resin and the configured action skips transcoding, the job
// moves to skipped_resin and the lease is released; the returned flag
// reports that disposition. Otherwise only the verdict is recorded and the
// lease stands so the worker can continue to transcode.
func (s *Store) MarkResin(ctx context.Context, id, workerID string, verdict Verdict, action Action) (bool, error) {
	skip := verdict == VerdictResin && action.Skips()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	var (
		res sql.Result
		err error
	)
	if skip {
		res, err = s.execWithRetry(
			ctx,
			`UPDATE jobs SET
                status = ?, resin_verdict = ?, lease_owner = NULL,
                lease_expires_at = NULL, updated_at = ?
             WHERE id = ? AND status = ? AND lease_owner = ?`,
			StatusSkippedResin, string(verdict), timestamp,
			id, StatusLeased, workerID,
		)
	} else {
		res, err = s.execWithRetry(
			ctx,
			`UPDATE jobs SET resin_verdict = ?, updated_at = ?
             WHERE id = ? AND status = ? AND lease_owner = ?`,
			string(verdict), timestamp,
			id, StatusLeased, workerID,
		)
	}
	if err != nil {
		return false, fmt.Errorf("mark resin: %w", err)
	}
	if err := s.checkOwnership(ctx, res, id); err != nil {
		return false, err
	}
	return skip, nil
}

// Release forcibly clears every lease, returning leased jobs to pending.
// Operators use this to hand work back to the pool after killing workers
// without waiting out the lease clock.
func (s *Store) Release(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, lease_owner = NULL, lease_expires_at = NULL, updated_at = ?
         WHERE status = ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusLeased,
	)
	if err != nil {
		return 0, fmt.Errorf("release leases: %w", err)
	}
	return res.RowsAffected()
}

// GetByID fetches a job by identifier, or nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs filtered by status set (or all jobs when no status is
// provided), in insertion order.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// checkOwnership turns a zero-row update into ErrOwnership or ErrNotFound.
func (s *Store) checkOwnership(ctx context.Context, res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fmt.Errorf("%w: %s", ErrOwnership, id)
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		seq        int64
		id         string
		sourcePath string
		destPath   string
		statusStr  string
		owner      sql.NullString
		expires    sql.NullInt64
		attempts   int
		verdict    string
		size       sql.NullInt64
		lastError  sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&seq,
		&id,
		&sourcePath,
		&destPath,
		&statusStr,
		&owner,
		&expires,
		&attempts,
		&verdict,
		&size,
		&lastError,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		Seq:          seq,
		ID:           id,
		SourcePath:   sourcePath,
		DestPath:     destPath,
		Status:       Status(statusStr),
		LeaseOwner:   owner.String,
		Attempts:     attempts,
		ResinVerdict: Verdict(verdict),
		LastError:    lastError.String,
	}
	if expires.Valid {
		job.LeaseExpiresAt = expires.Int64
	}
	if size.Valid {
		job.ResultSize = size.Int64
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}
