// Package ledger persists transfer jobs in SQLite and exposes the claim,
// renew, and report operations workers coordinate through.
//
// The Store is the sole source of truth for work state. Every mutation is a
// single-row atomic statement; claiming in particular is one UPDATE with a
// RETURNING clause so mutual exclusion comes from SQLite's write transaction
// rather than a read-then-write cycle. Worker processes on the same or
// different machines share a ledger file without any other channel.
//
// Treat this package as the single source of truth for job semantics; when
// you add statuses or metadata fields, update schema.sql and bump
// schemaVersion.
package ledger
