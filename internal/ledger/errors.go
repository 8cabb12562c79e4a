package ledger

import "errors"

var (
	// ErrOwnership is returned when a worker reports on a lease it no
	// longer holds. The caller must discard its result; the row belongs to
	// whichever worker reclaimed it.
	ErrOwnership = errors.New("lease ownership lost")

	// ErrNotFound is returned when a job id is absent from the ledger.
	ErrNotFound = errors.New("job not found")

	// ErrNoMeta is returned when the ledger has no recorded batch
	// configuration, i.e. init has not run.
	ErrNoMeta = errors.New("ledger has no transfer metadata")

	// ErrSchemaMismatch indicates the database schema version doesn't match
	// the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)
