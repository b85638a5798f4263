package exporter

import (
	"maps"
	"net/http"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SnapshotReader reads metric snapshots.
type SnapshotReader interface {
	Snapshot() []MetricPoint
}

// NewOpenMetricsHandler returns a handler that renders snapshot gauges and
// the given collectors through the Prometheus OpenMetrics encoder.
func NewOpenMetricsHandler(reader SnapshotReader, collectors ...prometheus.Collector) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(&snapshotCollector{reader: reader})
	for _, collector := range collectors {
		if collector != nil {
			registry.MustRegister(collector)
		}
	}

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

type snapshotCollector struct {
	reader SnapshotReader
}

// Describe sends nothing, which makes the collector unchecked.
func (c *snapshotCollector) Describe(_ chan<- *prometheus.Desc) {}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.reader == nil {
		return
	}

	for _, point := range c.reader.Snapshot() {
		if point.Name == "" {
			continue
		}

		labelKeys := slices.Sorted(maps.Keys(point.Labels))
		labelValues := make([]string, 0, len(labelKeys))
		for _, key := range labelKeys {
			labelValues = append(labelValues, point.Labels[key])
		}

		desc := prometheus.NewDesc(point.Name, point.Name, labelKeys, nil)
		metric, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, point.Value, labelValues...)
		if err != nil {
			continue
		}
		ch <- metric
	}
}
