package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSharedHolder(t *testing.T) {
	clock := time.Unix(1000, 0)
	h := NewSharedHolder[int](5*time.Minute, time.Minute)
	h.now = func() time.Time { return clock }

	called := h.IfAvailable(func(int, bool) { t.Fatal("must not be called before Store") })
	assert.False(t, called)

	h.Store(42)

	var got int
	var fresh bool
	assert.True(t, h.IfAvailable(func(v int, f bool) { got, fresh = v, f }))
	assert.Equal(t, 42, got)
	assert.True(t, fresh)

	clock = clock.Add(2 * time.Minute)
	assert.True(t, h.IfAvailable(func(v int, f bool) { fresh = f }))
	assert.False(t, fresh)

	clock = clock.Add(4 * time.Minute)
	assert.False(t, h.IfAvailable(func(int, bool) {}))

	h.Store(43)
	assert.True(t, h.IfAvailable(func(v int, f bool) { got = v }))
	assert.Equal(t, 43, got)
	assert.Equal(t, clock, h.Updated())
}

func TestSharedHolder_NoHoldPeriod(t *testing.T) {
	clock := time.Unix(0, 0)
	h := NewSharedHolder[string](0, time.Second)
	h.now = func() time.Time { return clock }
	h.Store("x")

	clock = clock.Add(24 * time.Hour)
	assert.True(t, h.IfAvailable(func(string, bool) {}))
}

func TestSharedHolder_Concurrent(t *testing.T) {
	h := NewSharedHolder[int](time.Hour, time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			h.Store(i)
		}(i)
		go func() {
			defer wg.Done()
			h.IfAvailable(func(int, bool) {})
		}()
	}
	wg.Wait()
	assert.True(t, h.IfAvailable(func(int, bool) {}))
}

func TestNewRegistry(t *testing.T) {
	families, err := NewRegistry().Gather()
	assert.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["go_goroutines"])
}
