package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Runner is the kind-independent view of a Controller.
type Runner interface {
	prometheus.Collector
	Kind() string
	Descriptor() Descriptor
	RunIteration(ctx context.Context) (*IterationSummary, error)
	Run(ctx context.Context) error
	Trigger()
	Status() Status
	Inspect(ctx context.Context, raw string) (*ObjectReport, error)
	History(ctx context.Context, raw string, limit int) ([]StateHistoryEntry, error)
}

// Registry holds the controllers of all enabled kinds.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]Runner
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]Runner)}
}

// Register adds r. Registering a kind twice is an error.
func (r *Registry) Register(runner Runner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runners[runner.Kind()]; ok {
		return fmt.Errorf("controller for kind %q already registered", runner.Kind())
	}
	r.runners[runner.Kind()] = runner
	return nil
}

// Get returns the controller of kind.
func (r *Registry) Get(kind string) (Runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[kind]
	return runner, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.runners))
	for k := range r.runners {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Statuses returns the status of every controller, sorted by kind.
func (r *Registry) Statuses() []Status {
	kinds := r.Kinds()
	statuses := make([]Status, 0, len(kinds))
	for _, k := range kinds {
		if runner, ok := r.Get(k); ok {
			statuses = append(statuses, runner.Status())
		}
	}
	return statuses
}

// MustRegisterMetrics registers every controller with reg.
func (r *Registry) MustRegisterMetrics(reg prometheus.Registerer) {
	for _, k := range r.Kinds() {
		runner, _ := r.Get(k)
		reg.MustRegister(runner)
	}
}

// RunAll runs every controller until ctx is cancelled.
func (r *Registry) RunAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, k := range r.Kinds() {
		runner, _ := r.Get(k)
		g.Go(func() error {
			return runner.Run(ctx)
		})
	}
	return g.Wait()
}

// RunOnce runs a single iteration of the given kinds, or of every kind if
// none are given. Errors of all kinds are combined.
func (r *Registry) RunOnce(ctx context.Context, kinds ...string) (map[string]*IterationSummary, error) {
	if len(kinds) == 0 {
		kinds = r.Kinds()
	}

	var (
		mu        sync.Mutex
		errs      error
		summaries = make(map[string]*IterationSummary, len(kinds))
		g         errgroup.Group
	)
	for _, k := range kinds {
		runner, ok := r.Get(k)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("unknown controller kind %q", k))
			continue
		}
		g.Go(func() error {
			summary, err := runner.RunIteration(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", runner.Kind(), err))
				return nil
			}
			summaries[runner.Kind()] = summary
			return nil
		})
	}
	_ = g.Wait()
	return summaries, errs
}
