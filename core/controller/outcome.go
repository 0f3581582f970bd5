package controller

import (
	"time"

	"gorm.io/gorm"
)

// OutcomeKind names the result of handling one object.
type OutcomeKind string

const (
	OutcomeTransition OutcomeKind = "transition"
	OutcomeDoNothing  OutcomeKind = "do_nothing"
	OutcomeWait       OutcomeKind = "wait"
	OutcomeDeleted    OutcomeKind = "deleted"
	OutcomeError      OutcomeKind = "error"
	// OutcomeStale marks a transition discarded because another writer won.
	OutcomeStale OutcomeKind = "stale_version"
	// OutcomeNotFound marks an object that disappeared before it was handled.
	OutcomeNotFound OutcomeKind = "not_found"
)

// Outcome is what a state handler decided for one object.
type Outcome[CS any] struct {
	kind   OutcomeKind
	next   *CS
	reason string
	txn    *gorm.DB
}

// Transition moves the object to next.
func Transition[CS any](next CS) Outcome[CS] {
	return Outcome[CS]{kind: OutcomeTransition, next: &next}
}

// DoNothing keeps the current state.
func DoNothing[CS any]() Outcome[CS] {
	return Outcome[CS]{kind: OutcomeDoNothing}
}

// Wait keeps the current state and records why the object is not progressing.
func Wait[CS any](reason string) Outcome[CS] {
	return Outcome[CS]{kind: OutcomeWait, reason: reason}
}

// Deleted reports that the object was removed by the handler. The delete must
// be part of the outcome: either in a transaction attached with WithTxn or as
// an op in the write batch. A Deleted outcome with neither is rejected.
func Deleted[CS any]() Outcome[CS] {
	return Outcome[CS]{kind: OutcomeDeleted}
}

// WithTxn attaches a transaction opened by the handler. The controller applies
// the write batch and the state update inside it and commits it, or rolls it
// back if anything fails.
func (o Outcome[CS]) WithTxn(tx *gorm.DB) Outcome[CS] {
	o.txn = tx
	return o
}

// Kind returns the outcome kind.
func (o Outcome[CS]) Kind() OutcomeKind {
	if o.kind == "" {
		return OutcomeDoNothing
	}
	return o.kind
}

// Next returns the target state of a transition.
func (o Outcome[CS]) Next() (CS, bool) {
	if o.next == nil {
		var zero CS
		return zero, false
	}
	return *o.next, true
}

// Reason returns the wait reason, if any.
func (o Outcome[CS]) Reason() string {
	return o.reason
}

// Txn returns the handler-supplied transaction, if any.
func (o Outcome[CS]) Txn() *gorm.DB {
	return o.txn
}

// PersistentOutcome is the record of the last handling of an object, stored
// next to its controller state for operators.
type PersistentOutcome struct {
	Kind      OutcomeKind `json:"kind"`
	NextState string      `json:"next_state,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
