package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBusy marks a write that lost a lock race with another connection even
// after the busy timeout.
var ErrBusy = errors.New("database busy")

// IsConflictError reports whether err is SQLITE_BUSY or "database is locked".
func IsConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// classify tags lock conflicts with ErrBusy so callers can tell contention
// from corruption.
func classify(op string, err error) error {
	if IsConflictError(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrBusy, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
