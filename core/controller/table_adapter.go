package controller

import (
	"context"
	"errors"
	"fmt"

	"site-controller/core/configversion"

	"gorm.io/gorm"
)

// TableAdapter implements the storage half of ObjectAdapter for models that
// embed ControllerColumns and are keyed by a single string column. Kinds embed
// it and add MetricStateNames and StateSLA.
type TableAdapter[ID ObjectID, S any, CS any] struct {
	Desc Descriptor
	// Parse converts a stored or user supplied id.
	Parse func(raw string) (ID, error)
	// Columns returns the controller columns embedded in s.
	Columns func(s *S) *ControllerColumns[CS]
	// IDColumn defaults to "id".
	IDColumn string
}

func (a TableAdapter[ID, S, CS]) idColumn() string {
	if a.IDColumn == "" {
		return "id"
	}
	return a.IDColumn
}

func (a TableAdapter[ID, S, CS]) keys(id ID) map[string]any {
	return map[string]any{a.idColumn(): id.String()}
}

// Descriptor returns the kind's descriptor.
func (a TableAdapter[ID, S, CS]) Descriptor() Descriptor {
	return a.Desc
}

// ParseObjectID parses raw with Parse.
func (a TableAdapter[ID, S, CS]) ParseObjectID(raw string) (ID, error) {
	return a.Parse(raw)
}

// ListObjects returns the ids of all rows, including rows marked deleted.
func (a TableAdapter[ID, S, CS]) ListObjects(ctx context.Context, tx *gorm.DB) ([]ID, error) {
	var raw []string
	if err := tx.WithContext(ctx).Table(a.Desc.ObjectTable).Order(a.idColumn()).Pluck(a.idColumn(), &raw).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", a.Desc.ObjectTable, err)
	}
	ids := make([]ID, 0, len(raw))
	for _, r := range raw {
		id, err := a.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q in %s: %w", r, a.Desc.ObjectTable, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// LoadObjectState loads the row of id. It returns nil if the row is gone.
func (a TableAdapter[ID, S, CS]) LoadObjectState(ctx context.Context, tx *gorm.DB, id ID) (*S, error) {
	var s S
	err := tx.WithContext(ctx).Table(a.Desc.ObjectTable).Where(a.keys(id)).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", a.Desc.Kind, id, err)
	}
	return &s, nil
}

// LoadControllerState reads the controller columns of the loaded row.
func (a TableAdapter[ID, S, CS]) LoadControllerState(_ context.Context, _ *gorm.DB, id ID, state *S) (configversion.Versioned[CS], error) {
	cols := a.Columns(state)
	if cols.ControllerStateVersion.IsZero() {
		return configversion.Versioned[CS]{}, fmt.Errorf("%s %s has no controller state version", a.Desc.Kind, id)
	}
	return cols.Versioned(), nil
}

// PersistControllerState writes next if the stored version equals expected.
func (a TableAdapter[ID, S, CS]) PersistControllerState(ctx context.Context, tx *gorm.DB, id ID, expected configversion.ConfigVersion, next CS) error {
	return PersistWithHistory(ctx, tx, a.Desc, a.keys(id), id.String(), expected, next)
}

// PersistOutcome stores the outcome of the last handling of id.
func (a TableAdapter[ID, S, CS]) PersistOutcome(ctx context.Context, tx *gorm.DB, id ID, outcome PersistentOutcome) error {
	return UpdateOutcome(ctx, tx, a.Desc.ObjectTable, a.keys(id), outcome)
}

// LoadOutcome reads the stored outcome of id.
func (a TableAdapter[ID, S, CS]) LoadOutcome(ctx context.Context, tx *gorm.DB, id ID) (*PersistentOutcome, error) {
	return LoadOutcome(ctx, tx, a.Desc.ObjectTable, a.keys(id))
}
