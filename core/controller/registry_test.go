package controller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type stubRunner struct {
	kind     string
	err      error
	runs     atomic.Int32
	triggers atomic.Int32
}

func (s *stubRunner) Describe(chan<- *prometheus.Desc) {}
func (s *stubRunner) Collect(chan<- prometheus.Metric)  {}
func (s *stubRunner) Kind() string                      { return s.kind }
func (s *stubRunner) Descriptor() Descriptor            { return NewDescriptor(s.kind, s.kind+"s") }
func (s *stubRunner) Trigger()                          { s.triggers.Add(1) }
func (s *stubRunner) Status() Status                    { return Status{Kind: s.kind, Phase: PhaseIdle} }

func (s *stubRunner) RunIteration(context.Context) (*IterationSummary, error) {
	s.runs.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &IterationSummary{Kind: s.kind, IterationID: int64(s.runs.Load())}, nil
}

func (s *stubRunner) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (s *stubRunner) Inspect(_ context.Context, raw string) (*ObjectReport, error) {
	if raw != "known" {
		return nil, ErrObjectNotFound
	}
	return &ObjectReport{ID: raw, State: "ready"}, nil
}

func (s *stubRunner) History(_ context.Context, raw string, limit int) ([]StateHistoryEntry, error) {
	if raw != "known" {
		return nil, ErrObjectNotFound
	}
	return make([]StateHistoryEntry, limit), nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubRunner{kind: "switch"}))
	require.NoError(t, r.Register(&stubRunner{kind: "rack"}))
	assert.Error(t, r.Register(&stubRunner{kind: "rack"}))

	assert.Equal(t, []string{"rack", "switch"}, r.Kinds())
	_, ok := r.Get("power_shelf")
	assert.False(t, ok)

	statuses := r.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "rack", statuses[0].Kind)
}

func TestRegistry_RunOnce(t *testing.T) {
	ctx := context.Background()
	failing := &stubRunner{kind: "rack", err: errors.New("database unavailable")}
	healthy := &stubRunner{kind: "switch"}

	r := NewRegistry()
	require.NoError(t, r.Register(failing))
	require.NoError(t, r.Register(healthy))

	t.Run("AllKinds", func(t *testing.T) {
		summaries, err := r.RunOnce(ctx)
		require.Error(t, err)
		assert.Len(t, multierr.Errors(err), 1)
		assert.Contains(t, err.Error(), "rack: database unavailable")
		assert.Contains(t, summaries, "switch")
		assert.NotContains(t, summaries, "rack")
	})

	t.Run("UnknownKind", func(t *testing.T) {
		summaries, err := r.RunOnce(ctx, "switch", "nope")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown controller kind "nope"`)
		assert.Len(t, summaries, 1)
	})
}

func TestRegistry_RunAllStopsWithContext(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubRunner{kind: "rack"}))
	require.NoError(t, r.Register(&stubRunner{kind: "switch"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.RunAll(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}

func TestRegistry_MustRegisterMetrics(t *testing.T) {
	db := newTestDB(t)
	r := NewRegistry()
	require.NoError(t, r.Register(newWidgetController(t, db, lifecycleHandler(), testConfig())))

	reg := prometheus.NewPedanticRegistry()
	assert.NotPanics(t, func() { r.MustRegisterMetrics(reg) })
	_, err := reg.Gather()
	assert.NoError(t, err)
}
