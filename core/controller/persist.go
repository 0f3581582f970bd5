package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"site-controller/core/configversion"
	"site-controller/core/database"

	"gorm.io/gorm"
)

// Column names every object table carries.
const (
	ColumnControllerState        = "controller_state"
	ColumnControllerStateVersion = "controller_state_version"
	ColumnControllerStateOutcome = "controller_state_outcome"
)

// ControllerColumns is embedded in object models to add the controller columns.
type ControllerColumns[CS any] struct {
	ControllerState        database.JSON[CS]                 `gorm:"column:controller_state" json:"controller_state"`
	ControllerStateVersion configversion.ConfigVersion       `gorm:"column:controller_state_version;size:64" json:"controller_state_version"`
	ControllerStateOutcome *database.JSON[PersistentOutcome] `gorm:"column:controller_state_outcome" json:"controller_state_outcome,omitempty"`
}

// InitialColumns returns the controller columns of a newly created object.
func InitialColumns[CS any](cs CS) ControllerColumns[CS] {
	return ControllerColumns[CS]{
		ControllerState:        database.NewJSON(cs),
		ControllerStateVersion: configversion.Initial(),
	}
}

// Versioned returns the controller state together with its version.
func (c ControllerColumns[CS]) Versioned() configversion.Versioned[CS] {
	return configversion.New(c.ControllerState.Data, c.ControllerStateVersion)
}

// UpdateControllerState writes next to the row matching keys if its version
// still equals expected. It returns the new version, or ErrStaleVersion if no
// row matched.
func UpdateControllerState[CS any](ctx context.Context, tx *gorm.DB, table string, keys map[string]any, expected configversion.ConfigVersion, next CS) (configversion.ConfigVersion, error) {
	nextVersion := expected.Increment()
	res := tx.WithContext(ctx).Table(table).
		Where(keys).
		Where(ColumnControllerStateVersion+" = ?", expected).
		Updates(map[string]any{
			ColumnControllerState:        database.NewJSON(next),
			ColumnControllerStateVersion: nextVersion,
		})
	if res.Error != nil {
		return configversion.ConfigVersion{}, fmt.Errorf("failed to update controller state in %s: %w", table, res.Error)
	}
	if res.RowsAffected == 0 {
		return configversion.ConfigVersion{}, ErrStaleVersion
	}
	return nextVersion, nil
}

// PersistWithHistory runs UpdateControllerState and, if the descriptor has a
// history table, records the new state in the same transaction.
func PersistWithHistory[CS any](ctx context.Context, tx *gorm.DB, d Descriptor, keys map[string]any, objectID string, expected configversion.ConfigVersion, next CS) error {
	version, err := UpdateControllerState(ctx, tx, d.ObjectTable, keys, expected, next)
	if err != nil {
		return err
	}
	if d.StateHistoryTable == "" {
		return nil
	}
	return AppendStateHistory(ctx, tx, d.StateHistoryTable, objectID, next, version)
}

// UpdateOutcome stores outcome on the row matching keys.
func UpdateOutcome(ctx context.Context, tx *gorm.DB, table string, keys map[string]any, outcome PersistentOutcome) error {
	err := tx.WithContext(ctx).Table(table).
		Where(keys).
		Update(ColumnControllerStateOutcome, database.NewJSON(outcome)).Error
	if err != nil {
		return fmt.Errorf("failed to update outcome in %s: %w", table, err)
	}
	return nil
}

// LoadOutcome reads the stored outcome of the row matching keys. It returns
// nil if the row does not exist or has no outcome yet.
func LoadOutcome(ctx context.Context, tx *gorm.DB, table string, keys map[string]any) (*PersistentOutcome, error) {
	var row struct {
		Outcome *database.JSON[PersistentOutcome] `gorm:"column:controller_state_outcome"`
	}
	err := tx.WithContext(ctx).Table(table).
		Select(ColumnControllerStateOutcome).
		Where(keys).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load outcome from %s: %w", table, err)
	}
	if row.Outcome == nil {
		return nil, nil
	}
	return &row.Outcome.Data, nil
}

// StateHistoryEntry is one row of a state history table.
type StateHistoryEntry struct {
	ID           uint64                      `gorm:"primaryKey;autoIncrement" json:"id"`
	ObjectID     string                      `gorm:"size:191;index" json:"object_id"`
	State        database.JSON[any]          `json:"state"`
	StateVersion configversion.ConfigVersion `gorm:"size:64" json:"state_version"`
	Timestamp    time.Time                   `json:"timestamp"`
}

// AppendStateHistory records that objectID entered state at version.
func AppendStateHistory(ctx context.Context, tx *gorm.DB, table, objectID string, state any, version configversion.ConfigVersion) error {
	entry := StateHistoryEntry{
		ObjectID:     objectID,
		State:        database.NewJSON(state),
		StateVersion: version,
		Timestamp:    version.Timestamp,
	}
	if err := tx.WithContext(ctx).Table(table).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to append state history to %s: %w", table, err)
	}
	return nil
}

// ListStateHistory returns the most recent history entries of objectID, newest first.
func ListStateHistory(ctx context.Context, db *gorm.DB, table, objectID string, limit int) ([]StateHistoryEntry, error) {
	var entries []StateHistoryEntry
	q := db.WithContext(ctx).Table(table).Where("object_id = ?", objectID).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list state history from %s: %w", table, err)
	}
	return entries, nil
}
