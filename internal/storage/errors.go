package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrUnavailable means the database could not be opened or was closed.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateTrigger means a custom command with the same trigger exists.
	ErrDuplicateTrigger = errors.New("trigger already exists")

	// ErrInvalidCommand means a custom command failed validation.
	ErrInvalidCommand = errors.New("invalid command")
)

// StorageError reports a failed storage operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err means the store is not usable at all.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// isBusyError checks for SQLITE_BUSY or "database is locked".
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// isUniqueError checks for a UNIQUE constraint violation.
func isUniqueError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const (
	busyRetries = 3
	busyBackoff = 25 * time.Millisecond
)

// withBusyRetry runs fn, retrying a bounded number of times while another
// process holds the database lock.
func withBusyRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= busyRetries; attempt++ {
		err = fn()
		if !isBusyError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * busyBackoff):
		}
	}
	return err
}
