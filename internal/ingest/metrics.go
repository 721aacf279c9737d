package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons reported by the dispatcher and bridge.
const (
	DropReasonQueueFull  = "queue_full"
	DropReasonUnknown    = "unknown_kind"
	DropReasonStructural = "structural"
	DropReasonInvalid    = "invalid"
	DropReasonStorage    = "storage"
)

// Metrics holds the pipeline's counters. A nil *Metrics is valid and records
// nothing, so tests and metric-less deployments can pass nil.
type Metrics struct {
	packetsReceived *prometheus.CounterVec
	recordsStored   *prometheus.CounterVec
	packetsDropped  *prometheus.CounterVec
	queueDepth      prometheus.Gauge
}

// NewMetrics creates and registers the pipeline metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		packetsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshbase_packets_received_total",
			Help: "Packets received by the ingress bridge, per message kind.",
		}, []string{"kind"}),
		recordsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshbase_records_stored_total",
			Help: "Records appended to storage, per category.",
		}, []string{"category"}),
		packetsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshbase_packets_dropped_total",
			Help: "Packets dropped by the pipeline, per reason.",
		}, []string{"reason"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshbase_queue_depth",
			Help: "Items currently waiting in the ingest queue.",
		}),
	}
	reg.MustRegister(m.packetsReceived, m.recordsStored, m.packetsDropped, m.queueDepth)
	return m
}

func (m *Metrics) received(kind Kind) {
	if m == nil {
		return
	}
	m.packetsReceived.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) stored(category string) {
	if m == nil {
		return
	}
	m.recordsStored.WithLabelValues(category).Inc()
}

func (m *Metrics) dropped(reason string) {
	if m == nil {
		return
	}
	m.packetsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) depth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
