package controller

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrStaleVersion is returned by PersistControllerState when the stored
	// version no longer matches the version the state was read at. It signals
	// that another writer won the race and is not a failure.
	ErrStaleVersion = errors.New("controller state version is stale")

	// ErrIterationInProgress is returned when another instance still owns
	// pending entries of a recent iteration.
	ErrIterationInProgress = errors.New("iteration in progress on another instance")
)

// Error labels used for the handling-errors metric.
const (
	LabelUnknown             = "unknown"
	LabelTimeout             = "timeout"
	LabelInvalidObjectID     = "invalid_object_id"
	LabelLoadObjectState     = "load_object_state"
	LabelLoadControllerState = "load_controller_state"
	LabelWriteBatch          = "write_batch"
	LabelPersistState        = "persist_controller_state"
	LabelCommit              = "commit"
	LabelMissingDelete       = "missing_delete"
)

// HandlerError is a failure of a state handler. Label is used as the error
// type in metrics, so it should be a short, low-cardinality identifier.
type HandlerError struct {
	Label string
	Err   error
}

// NewHandlerError wraps err with a metric label.
func NewHandlerError(label string, err error) *HandlerError {
	return &HandlerError{Label: label, Err: err}
}

// HandlerErrorf formats a handler error with a metric label.
func HandlerErrorf(label, format string, args ...any) *HandlerError {
	return &HandlerError{Label: label, Err: fmt.Errorf(format, args...)}
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Label, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// MetricLabel returns the label the error is counted under.
func (e *HandlerError) MetricLabel() string {
	if e.Label == "" {
		return LabelUnknown
	}
	return e.Label
}

// PersistenceError is a failed database write while committing an object.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IterationClaimError is returned when a new iteration could not be claimed.
// The whole pass is skipped.
type IterationClaimError struct {
	Kind string
	Err  error
}

func (e *IterationClaimError) Error() string {
	return fmt.Sprintf("failed to claim %s iteration: %v", e.Kind, e.Err)
}

func (e *IterationClaimError) Unwrap() error {
	return e.Err
}

// errorLabel maps an object-scoped error to its metric label.
func errorLabel(err error) string {
	var he *HandlerError
	if errors.As(err, &he) {
		return he.MetricLabel()
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return pe.Op
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return LabelTimeout
	}
	return LabelUnknown
}
