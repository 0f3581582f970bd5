package metrics

import (
	"sync"
	"time"
)

// SharedHolder keeps the most recent snapshot produced by a writer so that
// readers (for example a Prometheus scrape) can observe it later.
//
// A snapshot is reported for HoldPeriod after it was stored and is considered
// fresh for FreshPeriod. Nothing is reported before the first Store.
type SharedHolder[T any] struct {
	mu          sync.Mutex
	value       T
	updated     time.Time
	set         bool
	holdPeriod  time.Duration
	freshPeriod time.Duration
	now         func() time.Time
}

// NewSharedHolder creates a holder. A zero holdPeriod keeps snapshots forever.
func NewSharedHolder[T any](holdPeriod, freshPeriod time.Duration) *SharedHolder[T] {
	return &SharedHolder[T]{
		holdPeriod:  holdPeriod,
		freshPeriod: freshPeriod,
		now:         time.Now,
	}
}

// Store replaces the snapshot.
func (h *SharedHolder[T]) Store(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.value = v
	h.updated = h.now()
	h.set = true
}

// IfAvailable calls fn with the snapshot and its freshness if one is being held.
// It reports whether fn was called.
func (h *SharedHolder[T]) IfAvailable(fn func(v T, fresh bool)) bool {
	h.mu.Lock()
	if !h.set {
		h.mu.Unlock()
		return false
	}
	age := h.now().Sub(h.updated)
	if h.holdPeriod > 0 && age > h.holdPeriod {
		h.mu.Unlock()
		return false
	}
	v := h.value
	h.mu.Unlock()

	fn(v, age <= h.freshPeriod)
	return true
}

// Updated returns the time of the last Store, or the zero time.
func (h *SharedHolder[T]) Updated() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.updated
}
