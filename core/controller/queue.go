package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"site-controller/core/database"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueueStatus is the processing state of a queued object.
type QueueStatus string

const (
	QueueStatusPending   QueueStatus = "pending"
	QueueStatusCompleted QueueStatus = "completed"
)

// iterationShard is the single row of every iteration-id table.
const iterationShard = 0

// IterationRow is the per-kind iteration counter. Claiming an iteration locks it.
type IterationRow struct {
	Shard           int       `gorm:"primaryKey;autoIncrement:false"`
	LastIterationID int64     `gorm:"not null;default:0"`
	ClaimedAt       time.Time `gorm:"not null"`
}

// QueuedObject is one object in an iteration's worklist.
type QueuedObject struct {
	IterationID int64       `gorm:"primaryKey;autoIncrement:false" json:"iteration_id"`
	ObjectID    string      `gorm:"primaryKey;size:191" json:"object_id"`
	Status      QueueStatus `gorm:"size:16;index;not null" json:"status"`
	Owner       string      `gorm:"size:64;index" json:"owner,omitempty"`
	Outcome     OutcomeKind `gorm:"size:32" json:"outcome,omitempty"`
	ClaimedAt   time.Time   `gorm:"not null" json:"claimed_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// EnsureTables creates the iteration, queue and history tables of d and seeds
// the iteration counter.
func EnsureTables(ctx context.Context, db *gorm.DB, d Descriptor) error {
	tx := db.WithContext(ctx)
	if err := tx.Table(d.IterationIDsTable).AutoMigrate(&IterationRow{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", d.IterationIDsTable, err)
	}
	if err := tx.Table(d.QueuedObjectsTable).AutoMigrate(&QueuedObject{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", d.QueuedObjectsTable, err)
	}
	if d.StateHistoryTable != "" {
		if err := tx.Table(d.StateHistoryTable).AutoMigrate(&StateHistoryEntry{}); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", d.StateHistoryTable, err)
		}
	}
	return seedIterationRow(tx, d)
}

func seedIterationRow(tx *gorm.DB, d Descriptor) error {
	row := IterationRow{Shard: iterationShard, ClaimedAt: time.Unix(0, 0).UTC()}
	err := tx.Table(d.IterationIDsTable).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to seed %s: %w", d.IterationIDsTable, err)
	}
	return nil
}

// VerifySchema checks that the object table carries the controller columns.
func VerifySchema(db *gorm.DB, d Descriptor) error {
	missing, err := database.MissingColumns(db, d.ObjectTable,
		ColumnControllerState, ColumnControllerStateVersion, ColumnControllerStateOutcome)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("table %s is missing controller columns %v", d.ObjectTable, missing)
	}
	return nil
}

// iterationClaim is the result of claiming an iteration.
type iterationClaim struct {
	IterationID int64
	Worklist    []string
	Recovered   int
}

// claimIteration locks the iteration counter, increments it and snapshots
// the worklist in the same transaction. Pending entries left behind by older
// iterations are carried over so that no object is skipped after a crash.
// Entries of other owners younger than grace refuse the claim; entries of
// owner are recovered at once since its iterations never overlap.
func claimIteration(ctx context.Context, db *gorm.DB, d Descriptor, owner string, grace time.Duration, now time.Time, onLocked func(), list func(tx *gorm.DB) ([]string, error)) (*iterationClaim, error) {
	var claim *iterationClaim

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockIterationRow(tx, d)
		if err != nil {
			return err
		}
		if onLocked != nil {
			onLocked()
		}

		var pending []QueuedObject
		if err := tx.Table(d.QueuedObjectsTable).
			Where("status = ?", QueueStatusPending).
			Order("iteration_id, object_id").
			Find(&pending).Error; err != nil {
			return fmt.Errorf("failed to read pending entries: %w", err)
		}
		if grace > 0 {
			for _, p := range pending {
				if p.Owner != owner && now.Sub(p.ClaimedAt) < grace {
					return ErrIterationInProgress
				}
			}
		}

		listed, err := list(tx)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}

		nextID := row.LastIterationID + 1
		seen := make(map[string]struct{}, len(listed)+len(pending))
		worklist := make([]string, 0, len(listed)+len(pending))
		for _, id := range listed {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			worklist = append(worklist, id)
		}
		recovered := make(map[string]struct{})
		for _, p := range pending {
			recovered[p.ObjectID] = struct{}{}
			if _, ok := seen[p.ObjectID]; ok {
				continue
			}
			seen[p.ObjectID] = struct{}{}
			worklist = append(worklist, p.ObjectID)
		}

		if err := tx.Table(d.QueuedObjectsTable).
			Where("iteration_id < ?", nextID).
			Delete(&QueuedObject{}).Error; err != nil {
			return fmt.Errorf("failed to clear old entries: %w", err)
		}

		if len(worklist) > 0 {
			entries := make([]QueuedObject, 0, len(worklist))
			for _, id := range worklist {
				entries = append(entries, QueuedObject{
					IterationID: nextID,
					ObjectID:    id,
					Status:      QueueStatusPending,
					Owner:       owner,
					ClaimedAt:   now,
				})
			}
			if err := tx.Table(d.QueuedObjectsTable).CreateInBatches(entries, 500).Error; err != nil {
				return fmt.Errorf("failed to queue objects: %w", err)
			}
		}

		if err := tx.Table(d.IterationIDsTable).
			Where("shard = ?", iterationShard).
			Updates(map[string]any{"last_iteration_id": nextID, "claimed_at": now}).Error; err != nil {
			return fmt.Errorf("failed to advance iteration id: %w", err)
		}

		claim = &iterationClaim{IterationID: nextID, Worklist: worklist, Recovered: len(recovered)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// lockIterationRow selects the counter row FOR UPDATE, seeding it if missing.
func lockIterationRow(tx *gorm.DB, d Descriptor) (IterationRow, error) {
	var row IterationRow
	for attempt := 0; attempt < 2; attempt++ {
		res := tx.Table(d.IterationIDsTable).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("shard = ?", iterationShard).
			Limit(1).
			Find(&row)
		if res.Error != nil {
			return row, fmt.Errorf("failed to lock %s: %w", d.IterationIDsTable, res.Error)
		}
		if res.RowsAffected > 0 {
			return row, nil
		}
		if err := seedIterationRow(tx, d); err != nil {
			return row, err
		}
	}
	return row, fmt.Errorf("iteration row missing in %s", d.IterationIDsTable)
}

// completeQueued marks the entry of objectID in iterationID as completed.
func completeQueued(ctx context.Context, db *gorm.DB, d Descriptor, iterationID int64, objectID string, outcome OutcomeKind, now time.Time) error {
	err := db.WithContext(ctx).Table(d.QueuedObjectsTable).
		Where("iteration_id = ? AND object_id = ?", iterationID, objectID).
		Updates(map[string]any{
			"status":       QueueStatusCompleted,
			"outcome":      outcome,
			"completed_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to complete queued object %s: %w", objectID, err)
	}
	return nil
}

// ListQueued returns the queue entries of iterationID ordered by object id.
func ListQueued(ctx context.Context, db *gorm.DB, d Descriptor, iterationID int64) ([]QueuedObject, error) {
	var entries []QueuedObject
	err := db.WithContext(ctx).Table(d.QueuedObjectsTable).
		Where("iteration_id = ?", iterationID).
		Order("object_id").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list queued objects: %w", err)
	}
	return entries, nil
}

// LastIterationID returns the id of the most recently claimed iteration.
func LastIterationID(ctx context.Context, db *gorm.DB, d Descriptor) (int64, error) {
	var row IterationRow
	err := db.WithContext(ctx).Table(d.IterationIDsTable).Where("shard = ?", iterationShard).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", d.IterationIDsTable, err)
	}
	return row.LastIterationID, nil
}
