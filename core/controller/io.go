package controller

import (
	"context"
	"fmt"
	"time"

	"site-controller/core/configversion"

	"gorm.io/gorm"
)

// ObjectID is the identifier of a managed object. Its String form is what is
// stored in the queued-objects table and must round trip through ParseObjectID.
type ObjectID interface {
	comparable
	fmt.Stringer
}

// Descriptor holds the names a controller derives from its object kind.
type Descriptor struct {
	// Kind is the short name of the object kind, e.g. "switch".
	Kind string
	// ObjectTable is the table holding the objects and their controller columns.
	ObjectTable string
	// ObjectType prefixes every exported metric, e.g. "site_switches".
	ObjectType string
	// IterationIDsTable holds the per-kind iteration counter row.
	IterationIDsTable string
	// QueuedObjectsTable holds the worklist of the current iteration.
	QueuedObjectsTable string
	// StateHistoryTable receives one row per state change. Empty disables history.
	StateHistoryTable string
	// SpanName names the tracing span of an iteration.
	SpanName string
}

// NewDescriptor derives all table, metric and span names from kind and objectTable.
func NewDescriptor(kind, objectTable string) Descriptor {
	return Descriptor{
		Kind:               kind,
		ObjectTable:        objectTable,
		ObjectType:         "site_" + objectTable,
		IterationIDsTable:  kind + "_controller_iteration_ids",
		QueuedObjectsTable: kind + "_controller_queued_objects",
		StateHistoryTable:  kind + "_state_history",
		SpanName:           kind + "_controller",
	}
}

// WithoutHistory returns a copy of d that records no state history.
func (d Descriptor) WithoutHistory() Descriptor {
	d.StateHistoryTable = ""
	return d
}

// ObjectAdapter is the persistence boundary of one object kind.
//
// The controller never interprets S or CS. Everything it needs to know about
// an object it learns through this interface.
type ObjectAdapter[ID ObjectID, S any, CS any] interface {
	// Descriptor returns the naming of the kind.
	Descriptor() Descriptor

	// ParseObjectID parses the String form of an id.
	ParseObjectID(raw string) (ID, error)

	// ListObjects returns the ids of all objects the controller should visit,
	// including objects marked for deletion.
	ListObjects(ctx context.Context, tx *gorm.DB) ([]ID, error)

	// LoadObjectState returns the full state snapshot, or nil if the object is gone.
	LoadObjectState(ctx context.Context, tx *gorm.DB, id ID) (*S, error)

	// LoadControllerState returns the controller-owned state and its version.
	LoadControllerState(ctx context.Context, tx *gorm.DB, id ID, state *S) (configversion.Versioned[CS], error)

	// PersistControllerState writes next if the stored version still equals
	// expected, and returns ErrStaleVersion otherwise.
	PersistControllerState(ctx context.Context, tx *gorm.DB, id ID, expected configversion.ConfigVersion, next CS) error

	// PersistOutcome records the result of the last handling.
	PersistOutcome(ctx context.Context, tx *gorm.DB, id ID, outcome PersistentOutcome) error

	// MetricStateNames returns the state and substate names used as metric labels.
	MetricStateNames(cs CS) (state, substate string)

	// StateSLA evaluates the SLA of the state at now.
	StateSLA(cs configversion.Versioned[CS], now time.Time) SLA
}

// OutcomeLoader is implemented by adapters that can read back the persisted outcome.
type OutcomeLoader[ID ObjectID] interface {
	LoadOutcome(ctx context.Context, tx *gorm.DB, id ID) (*PersistentOutcome, error)
}

// stateLabel joins state and substate for display.
func stateLabel(state, substate string) string {
	if substate == "" {
		return state
	}
	return state + "/" + substate
}
