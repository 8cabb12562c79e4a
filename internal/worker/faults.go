package worker

import (
	"errors"
	"fmt"
	"strings"

	"tilexfer/internal/codec"
)

var (
	// ErrTransient marks failures worth retrying: I/O hiccups, remote
	// storage stalls, anything that might clear up on another attempt.
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks failures no retry can fix: unsupported
	// encodings, corrupt tiles that will not decode.
	ErrPermanent = errors.New("permanent failure")
)

// Wrap tags an error with a retry classification, keeping operation
// context in the message. The marker should be one of the sentinels
// above; nil defaults to transient since retrying an unknown fault is
// the safer bet.
func Wrap(marker error, operation, message string, err error) error {
	detail := buildDetail(operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsPermanent reports whether an error should fail the job immediately
// rather than requeue it.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) || errors.Is(err, codec.ErrUnsupported)
}

func buildDetail(operation, message string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "worker failure"
	}
	return strings.Join(parts, ": ")
}
