package controller

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// WriteOp is a deferred database write. It runs inside the transaction that
// also persists the object's controller state.
type WriteOp func(ctx context.Context, tx *gorm.DB) error

// WriteBatch collects writes a handler wants to make so they commit together
// with the state transition, or not at all.
type WriteBatch struct {
	mu  sync.Mutex
	ops []WriteOp
}

// NewWriteBatch returns an empty batch.
func NewWriteBatch() *WriteBatch {
	return &WriteBatch{}
}

// Push appends op. Nothing is executed until ApplyAll.
func (b *WriteBatch) Push(op WriteOp) {
	b.mu.Lock()
	b.ops = append(b.ops, op)
	b.mu.Unlock()
}

// Len returns the number of queued operations.
func (b *WriteBatch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ops)
}

// Take removes and returns all queued operations.
func (b *WriteBatch) Take() []WriteOp {
	b.mu.Lock()
	defer b.mu.Unlock()
	ops := b.ops
	b.ops = nil
	return ops
}

// ApplyAll executes the queued operations in push order inside tx and empties
// the batch. The first failure stops execution; the caller rolls tx back.
func (b *WriteBatch) ApplyAll(ctx context.Context, tx *gorm.DB) error {
	for i, op := range b.Take() {
		if err := op(ctx, tx); err != nil {
			return fmt.Errorf("write op %d: %w", i, err)
		}
	}
	return nil
}
