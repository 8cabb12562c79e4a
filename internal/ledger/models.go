package ledger

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a transfer job.
type Status string

const (
	StatusPending      Status = "pending"
	StatusLeased       Status = "leased"
	StatusDone         Status = "done"
	StatusFailed       Status = "failed"
	StatusSkippedResin Status = "skipped_resin"
)

var allStatuses = []Status{
	StatusPending,
	StatusLeased,
	StatusDone,
	StatusFailed,
	StatusSkippedResin,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// IsTerminal reports whether a status can no longer change.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusSkippedResin:
		return true
	default:
		return false
	}
}

// Verdict is the tri-state result of the resin classifier.
type Verdict string

const (
	VerdictUnknown Verdict = "unknown"
	VerdictClean   Verdict = "clean"
	VerdictResin   Verdict = "resin"
)

// Action controls what happens to a tile classified as resin.
type Action string

const (
	ActionNoop Action = "noop"
	ActionLog  Action = "log"
	ActionStay Action = "stay"
	ActionMove Action = "move"
)

// ParseAction converts a string into a known Action. The delete and lossy
// actions are reserved in the design but deliberately unimplemented; they
// are rejected here so a misconfigured batch fails at init time rather than
// silently doing nothing.
func ParseAction(value string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "noop":
		return ActionNoop, nil
	case "log":
		return ActionLog, nil
	case "stay":
		return ActionStay, nil
	case "move":
		return ActionMove, nil
	case "delete", "lossy":
		return "", fmt.Errorf("resin action %q is reserved and not implemented", value)
	default:
		return "", fmt.Errorf("unknown resin action %q", value)
	}
}

// Skips reports whether a resin-classified tile under this action bypasses
// transcoding entirely.
func (a Action) Skips() bool {
	return a == ActionStay || a == ActionMove
}

// Job is one transfer unit persisted in the ledger.
type Job struct {
	Seq            int64
	ID             string
	SourcePath     string
	DestPath       string
	Status         Status
	LeaseOwner     string
	LeaseExpiresAt int64 // msec since epoch, 0 when not leased
	Attempts       int
	ResinVerdict   Verdict
	ResultSize     int64
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LeaseExpired reports whether the job's lease has lapsed at the given
// millisecond timestamp.
func (j *Job) LeaseExpired(nowMsec int64) bool {
	return j.Status == StatusLeased && j.LeaseExpiresAt < nowMsec
}

// NewJob describes a job to enqueue.
type NewJob struct {
	ID         string
	SourcePath string
	DestPath   string
}

// Meta is the batch configuration recorded once at init, immutable for the
// lifetime of the ledger.
type Meta struct {
	Source           string
	Dest             string
	Encoding         string
	Compression      string
	Level            int
	JXLEffort        int
	JXLDecodingSpeed int
	Ext              string
	ResinAction      Action
	Cleanup          bool
	MaxAttempts      int
	CreatedAt        time.Time
}

// Counts aggregates job totals for status output and verification.
type Counts struct {
	Total     int
	Done      int
	Failed    int
	Skipped   int
	Leased    int // unexpired leases only
	Available int // pending plus reclaimable expired leases
}

// Remaining returns the number of jobs not yet in a terminal state.
func (c Counts) Remaining() int {
	return c.Total - c.Done - c.Failed - c.Skipped
}
