package controller

import (
	"sort"
	"strconv"

	"site-controller/core/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// collector exports controller metrics. Gauges are computed from the last
// iteration snapshot; counters and histograms are updated while iterating.
type collector[M any] struct {
	holder  *metrics.SharedHolder[iterationSnapshot[M]]
	emitter MetricsEmitter[M]

	totalDesc    *prometheus.Desc
	perStateDesc *prometheus.Desc
	aboveSLADesc *prometheus.Desc
	errorsDesc   *prometheus.Desc

	stateEntered      *prometheus.CounterVec
	stateExited       *prometheus.CounterVec
	timeInState       *prometheus.HistogramVec
	handlerLatency    *prometheus.HistogramVec
	iterations        *prometheus.CounterVec
	iterationDuration prometheus.Histogram
	recovered         prometheus.Counter
}

func newCollector[M any](objectType string, emitter MetricsEmitter[M], holder *metrics.SharedHolder[iterationSnapshot[M]]) *collector[M] {
	stateLabels := []string{"state", "substate"}
	return &collector[M]{
		holder:  holder,
		emitter: emitter,

		totalDesc: prometheus.NewDesc(objectType+"_total",
			"The total number of objects in the system",
			[]string{"fresh"}, nil),
		perStateDesc: prometheus.NewDesc(objectType+"_per_state",
			"The number of objects in the system with a given state",
			[]string{"state", "substate", "fresh"}, nil),
		aboveSLADesc: prometheus.NewDesc(objectType+"_per_state_above_sla",
			"The number of objects which have been in a certain state for longer than its SLA",
			[]string{"state", "substate", "fresh"}, nil),
		errorsDesc: prometheus.NewDesc(objectType+"_with_state_handling_errors_per_state",
			"The number of objects whose state handler failed in the last iteration",
			[]string{"state", "substate", "error", "fresh"}, nil),

		stateEntered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: objectType + "_state_entered",
			Help: "The number of times objects have entered a certain state",
		}, stateLabels),
		stateExited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: objectType + "_state_exited",
			Help: "The number of times objects have exited a certain state",
		}, stateLabels),
		timeInState: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    objectType + "_time_in_state_seconds",
			Help:    "The time objects spent in a state before exiting it",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 4 * 3600, 24 * 3600},
		}, stateLabels),
		handlerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    objectType + "_handler_latency_milliseconds",
			Help:    "The time it took to run the state handler for a given state",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000},
		}, stateLabels),
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: objectType + "_iterations_total",
			Help: "The number of controller iterations by result",
		}, []string{"result"}),
		iterationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    objectType + "_iteration_duration_seconds",
			Help:    "The time it took to run a controller iteration",
			Buckets: prometheus.DefBuckets,
		}),
		recovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: objectType + "_recovered_objects_total",
			Help: "The number of objects carried over from an interrupted iteration",
		}),
	}
}

// observeObject updates the push-style metrics of one handled object.
func (c *collector[M]) observeObject(o objectMetrics) {
	c.handlerLatency.WithLabelValues(o.state.State, o.state.Substate).
		Observe(float64(o.latency.Milliseconds()))

	if o.next == nil && !o.deleted {
		return
	}
	c.stateExited.WithLabelValues(o.state.State, o.state.Substate).Inc()
	c.timeInState.WithLabelValues(o.state.State, o.state.Substate).Observe(o.timeInState.Seconds())
	if o.next != nil {
		c.stateEntered.WithLabelValues(o.next.State, o.next.Substate).Inc()
	}
}

// Describe implements prometheus.Collector.
func (c *collector[M]) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalDesc
	ch <- c.perStateDesc
	ch <- c.aboveSLADesc
	ch <- c.errorsDesc
	c.stateEntered.Describe(ch)
	c.stateExited.Describe(ch)
	c.timeInState.Describe(ch)
	c.handlerLatency.Describe(ch)
	c.iterations.Describe(ch)
	c.iterationDuration.Describe(ch)
	c.recovered.Describe(ch)
	c.emitter.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *collector[M]) Collect(ch chan<- prometheus.Metric) {
	c.stateEntered.Collect(ch)
	c.stateExited.Collect(ch)
	c.timeInState.Collect(ch)
	c.handlerLatency.Collect(ch)
	c.iterations.Collect(ch)
	c.iterationDuration.Collect(ch)
	c.recovered.Collect(ch)

	c.holder.IfAvailable(func(snap iterationSnapshot[M], isFresh bool) {
		fresh := strconv.FormatBool(isFresh)
		ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.GaugeValue,
			float64(snap.common.NumObjects), fresh)

		for _, s := range sortedStates(snap.common.PerState) {
			st := snap.common.PerState[s]
			ch <- prometheus.MustNewConstMetric(c.perStateDesc, prometheus.GaugeValue,
				float64(st.NumObjects), s.State, s.Substate, fresh)
			ch <- prometheus.MustNewConstMetric(c.aboveSLADesc, prometheus.GaugeValue,
				float64(st.NumAboveSLA), s.State, s.Substate, fresh)
			ch <- prometheus.MustNewConstMetric(c.errorsDesc, prometheus.GaugeValue,
				float64(st.NumHandlingErrored), s.State, s.Substate, "any", fresh)
			for label, n := range st.HandlingErrors {
				ch <- prometheus.MustNewConstMetric(c.errorsDesc, prometheus.GaugeValue,
					float64(n), s.State, s.Substate, label, fresh)
			}
		}

		if snap.kind != nil {
			snap.kind.Collect(ch, fresh)
		}
	})
}

func sortedStates(m map[FullState]*StateStats) []FullState {
	states := make([]FullState, 0, len(m))
	for s := range m {
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool {
		if states[i].State != states[j].State {
			return states[i].State < states[j].State
		}
		return states[i].Substate < states[j].Substate
	})
	return states
}
