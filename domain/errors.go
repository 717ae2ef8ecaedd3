package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports board or task data that violates a model invariant.
type ValidationError struct {
	msg string
}

func newValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string { return e.msg }

// NotFoundError reports an operation aimed at a task or column id that does
// not exist on the board.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// ConflictError reports a reorder payload that cannot be reconciled with the
// current board, either because the widget returned items it was never given
// or because the board moved on since the layout was rendered.
type ConflictError struct {
	msg string
}

func newConflictError(format string, args ...any) *ConflictError {
	return &ConflictError{msg: fmt.Sprintf(format, args...)}
}

func (e *ConflictError) Error() string { return e.msg }

var (
	// ErrColumnNotEmpty rejects deleting a populated column without a
	// destination column for its tasks.
	ErrColumnNotEmpty = errors.New("column is not empty, choose a destination column for its tasks")

	// ErrNoActiveLayout rejects a reorder application when the session has no
	// rendered layout to reconcile against.
	ErrNoActiveLayout = errors.New("no active layout for this session")

	// ErrSnapshotNotFound is returned by SnapshotStorage implementations when
	// nothing has been persisted under the requested project key.
	ErrSnapshotNotFound = errors.New("board snapshot not found")
)
