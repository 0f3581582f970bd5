package attestation

import (
	"sort"

	"site-controller/core/controller"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics records the verification result of a completed session.
type SessionMetrics struct {
	Result    string
	Appraisal string
}

var sessionsByResultDesc = prometheus.NewDesc("site_attestation_sessions_by_result",
	"The number of completed attestation sessions per verification result",
	[]string{"result", "appraisal", "fresh"}, nil)

// MetricsEmitter exports the number of completed sessions per result.
type MetricsEmitter struct{}

// NewAggregate returns an empty aggregate.
func (MetricsEmitter) NewAggregate() controller.Aggregate[SessionMetrics] {
	return &resultAggregate{counts: make(map[SessionMetrics]int)}
}

// Describe sends the gauge descriptor.
func (MetricsEmitter) Describe(ch chan<- *prometheus.Desc) {
	ch <- sessionsByResultDesc
}

type resultAggregate struct {
	counts map[SessionMetrics]int
}

func (a *resultAggregate) Merge(m *SessionMetrics) {
	if m.Result == "" {
		return
	}
	a.counts[*m]++
}

func (a *resultAggregate) Collect(ch chan<- prometheus.Metric, fresh string) {
	keys := make([]SessionMetrics, 0, len(a.counts))
	for k := range a.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Result != keys[j].Result {
			return keys[i].Result < keys[j].Result
		}
		return keys[i].Appraisal < keys[j].Appraisal
	})
	for _, k := range keys {
		ch <- prometheus.MustNewConstMetric(sessionsByResultDesc, prometheus.GaugeValue, float64(a.counts[k]), k.Result, k.Appraisal, fresh)
	}
}
