package networksegment

import (
	"sort"

	"site-controller/core/controller"

	"github.com/prometheus/client_golang/prometheus"
)

// SegmentMetrics are the address statistics of one ready segment.
type SegmentMetrics struct {
	SegmentID string
	Name      string
	Type      string
	Prefix    string
	Stats     IPStats
}

var (
	segmentLabels = []string{"name", "type", "prefix", "fresh"}

	totalIPsDesc = prometheus.NewDesc("site_network_segment_total_ips",
		"The total number of addresses in a network segment", segmentLabels, nil)
	reservedIPsDesc = prometheus.NewDesc("site_network_segment_reserved_ips",
		"The number of reserved addresses in a network segment", segmentLabels, nil)
	availableIPsDesc = prometheus.NewDesc("site_network_segment_available_ips",
		"The number of addresses that can still be allocated in a network segment", segmentLabels, nil)
)

// MetricsEmitter exports per-segment address gauges.
type MetricsEmitter struct{}

// NewAggregate returns an empty aggregate.
func (MetricsEmitter) NewAggregate() controller.Aggregate[SegmentMetrics] {
	return &segmentAggregate{segments: make(map[string]SegmentMetrics)}
}

// Describe sends the gauge descriptors.
func (MetricsEmitter) Describe(ch chan<- *prometheus.Desc) {
	ch <- totalIPsDesc
	ch <- reservedIPsDesc
	ch <- availableIPsDesc
}

type segmentAggregate struct {
	segments map[string]SegmentMetrics
}

// Merge records m. Segments that are not ready leave SegmentID empty and are skipped.
func (a *segmentAggregate) Merge(m *SegmentMetrics) {
	if m.SegmentID == "" {
		return
	}
	a.segments[m.SegmentID] = *m
}

func (a *segmentAggregate) Collect(ch chan<- prometheus.Metric, fresh string) {
	ids := make([]string, 0, len(a.segments))
	for id := range a.segments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		s := a.segments[id]
		labels := []string{s.Name, s.Type, s.Prefix, fresh}
		ch <- prometheus.MustNewConstMetric(totalIPsDesc, prometheus.GaugeValue, s.Stats.Total, labels...)
		ch <- prometheus.MustNewConstMetric(reservedIPsDesc, prometheus.GaugeValue, s.Stats.Reserved, labels...)
		ch <- prometheus.MustNewConstMetric(availableIPsDesc, prometheus.GaugeValue, s.Stats.Available(), labels...)
	}
}
