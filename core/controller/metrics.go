package controller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FullState identifies a state and substate pair in metrics.
type FullState struct {
	State    string `json:"state"`
	Substate string `json:"substate"`
}

// StateStats aggregates the objects found in one state during an iteration.
type StateStats struct {
	NumObjects         int            `json:"num_objects"`
	NumAboveSLA        int            `json:"num_objects_above_sla"`
	HandlingErrors     map[string]int `json:"handling_errors_per_type"`
	NumHandlingErrored int            `json:"num_objects_with_errors"`
}

// CommonIterationMetrics are collected for every object kind.
type CommonIterationMetrics struct {
	NumObjects int                       `json:"num_objects"`
	PerState   map[FullState]*StateStats `json:"-"`
}

func newCommonIterationMetrics() CommonIterationMetrics {
	return CommonIterationMetrics{PerState: make(map[FullState]*StateStats)}
}

func (m *CommonIterationMetrics) stats(s FullState) *StateStats {
	st, ok := m.PerState[s]
	if !ok {
		st = &StateStats{HandlingErrors: make(map[string]int)}
		m.PerState[s] = st
	}
	return st
}

// objectMetrics describes the handling of one object.
type objectMetrics struct {
	state       FullState
	next        *FullState
	deleted     bool
	aboveSLA    bool
	timeInState time.Duration
	latency     time.Duration
	errLabel    string
}

// merge adds one object. An object that transitioned is counted in its new
// state, where it has not spent any time yet.
func (m *CommonIterationMetrics) merge(o objectMetrics) {
	if o.deleted {
		return
	}
	m.NumObjects++

	target := o.state
	if o.next != nil {
		target = *o.next
	}
	st := m.stats(target)
	st.NumObjects++
	if o.next == nil && o.aboveSLA {
		st.NumAboveSLA++
	}
	if o.errLabel != "" {
		st.HandlingErrors[o.errLabel]++
		st.NumHandlingErrored++
	}
}

// MetricsEmitter exports the kind-specific metrics M.
type MetricsEmitter[M any] interface {
	// NewAggregate returns an empty per-iteration aggregate.
	NewAggregate() Aggregate[M]
	// Describe sends the descriptors of all metrics the aggregates emit.
	Describe(ch chan<- *prometheus.Desc)
}

// Aggregate folds the per-object metrics of one iteration. It is not safe for
// concurrent use; the controller serializes calls.
type Aggregate[M any] interface {
	Merge(m *M)
	Collect(ch chan<- prometheus.Metric, fresh string)
}

// NoMetrics is the metrics type of kinds without kind-specific metrics.
type NoMetrics struct{}

// NoopMetricsEmitter emits nothing.
type NoopMetricsEmitter struct{}

func (NoopMetricsEmitter) NewAggregate() Aggregate[NoMetrics] { return noopAggregate{} }

func (NoopMetricsEmitter) Describe(chan<- *prometheus.Desc) {}

type noopAggregate struct{}

func (noopAggregate) Merge(*NoMetrics) {}

func (noopAggregate) Collect(chan<- prometheus.Metric, string) {}

// iterationSnapshot is what the collector exports between iterations.
type iterationSnapshot[M any] struct {
	common CommonIterationMetrics
	kind   Aggregate[M]
}
