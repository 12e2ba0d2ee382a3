package migration

import (
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts pipeline outcomes for the Prometheus textfile collector.
type Metrics struct {
	registry *prometheus.Registry

	membersTotal  *prometheus.CounterVec
	assetsTotal   *prometheus.CounterVec
	assetBytes    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	lastRun       *prometheus.GaugeVec
}

// NewMetrics creates the metrics on a private registry.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.initMetrics()
	if err := m.registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.membersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memberbridge_members_total",
			Help: "Members processed per stage and outcome",
		},
		[]string{"stage", "outcome"}, // outcome: succeeded, duplicate, failed, skipped
	)

	m.assetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memberbridge_assets_total",
			Help: "Assets handled by the relocator per type and outcome",
		},
		[]string{"asset_type", "outcome"}, // outcome: uploaded, reused, failed, external
	)

	m.assetBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memberbridge_asset_bytes_total",
			Help: "Bytes uploaded to the object store",
		},
		[]string{"asset_type"},
	)

	// 10ms to ~80s; a stage covers every member of the run
	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memberbridge_stage_duration_seconds",
			Help:    "Wall time of a pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"stage"},
	)

	m.lastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "memberbridge_last_run_timestamp_seconds",
			Help: "Unix time the last run of a stage finished",
		},
		[]string{"stage"},
	)
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.membersTotal.Describe(ch)
	m.assetsTotal.Describe(ch)
	m.assetBytes.Describe(ch)
	m.stageDuration.Describe(ch)
	m.lastRun.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.membersTotal.Collect(ch)
	m.assetsTotal.Collect(ch)
	m.assetBytes.Collect(ch)
	m.stageDuration.Collect(ch)
	m.lastRun.Collect(ch)
}

func (m *Metrics) member(stage Stage, outcome string) {
	if m == nil {
		return
	}
	m.membersTotal.WithLabelValues(string(stage), outcome).Inc()
}

func (m *Metrics) asset(assetType, outcome string, bytes int64) {
	if m == nil {
		return
	}
	m.assetsTotal.WithLabelValues(assetType, outcome).Inc()
	if bytes > 0 {
		m.assetBytes.WithLabelValues(assetType).Add(float64(bytes))
	}
}

func (m *Metrics) stageDone(stage Stage, seconds float64, finishedUnix float64) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage)).Observe(seconds)
	m.lastRun.WithLabelValues(string(stage)).Set(finishedUnix)
}

// WriteTextfile writes all metrics in the node_exporter textfile format,
// creating the parent directory when needed.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
