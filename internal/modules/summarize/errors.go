package summarize

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput covers empty or oversized content, unknown styles and
	// unreadable uploads.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthenticated is returned when no requester was resolved.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInsufficientCredits is returned when a non-privileged user has no
	// credit left at debit time. The summary is withheld.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// Persistence operations that may fail without failing the request.
const (
	OpCacheRead    = "cache_read"
	OpCacheWrite   = "cache_write"
	OpHistoryWrite = "history_write"
)

// PersistenceFault is a swallowed storage failure. It is logged, counted and
// attached to the Outcome, but never returned to the caller.
type PersistenceFault struct {
	Op  string
	Err error
}

func (f PersistenceFault) Error() string {
	return fmt.Sprintf("%s: %v", f.Op, f.Err)
}

func (f PersistenceFault) Unwrap() error { return f.Err }

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
