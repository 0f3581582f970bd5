package resource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrNotFound is returned when no object has the requested id.
var ErrNotFound = errors.New("object not found")

// ErrAlreadyDeleted is returned when marking an object that is already marked.
var ErrAlreadyDeleted = errors.New("object already marked deleted")

// DeletedColumn is the nullable timestamp set when an object is marked deleted.
const DeletedColumn = "deleted"

// Store reads and writes the rows of one object table.
type Store[M any] struct {
	db    *gorm.DB
	table string
	now   func() time.Time
}

// NewStore creates a store for table.
func NewStore[M any](db *gorm.DB, table string) *Store[M] {
	return &Store[M]{db: db, table: table, now: time.Now}
}

// List returns all objects ordered by id. Objects marked deleted are only
// included if includeDeleted is set.
func (s *Store[M]) List(ctx context.Context, includeDeleted bool) ([]M, error) {
	var out []M
	q := s.db.WithContext(ctx).Table(s.table).Order("id")
	if !includeDeleted {
		q = q.Where(DeletedColumn + " IS NULL")
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.table, err)
	}
	return out, nil
}

// Get returns the object with id.
func (s *Store[M]) Get(ctx context.Context, id string) (*M, error) {
	var m M
	err := s.db.WithContext(ctx).Table(s.table).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", s.table, id, err)
	}
	return &m, nil
}

// Create inserts m.
func (s *Store[M]) Create(ctx context.Context, m *M) error {
	if err := s.db.WithContext(ctx).Table(s.table).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}
	return nil
}

// MarkDeleted sets the deleted timestamp of id. The row stays until the
// controller has finished tearing the object down.
func (s *Store[M]) MarkDeleted(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Table(s.table).
		Where("id = ? AND "+DeletedColumn+" IS NULL", id).
		Update(DeletedColumn, s.now().UTC())
	if res.Error != nil {
		return fmt.Errorf("failed to mark %s %s deleted: %w", s.table, id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyDeleted
}
