package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/graphcache/internal/ir"
)

// Metrics are the store's prometheus collectors. A nil *Metrics records
// nothing, so the store calls it unconditionally.
type Metrics struct {
	RecordsPushed        *prometheus.CounterVec
	RelationshipsCreated *prometheus.CounterVec
	StateTransitions     *prometheus.CounterVec
	RelationshipsDeleted prometheus.Counter
	QueuedRelationships  prometheus.Gauge
	AdapterRequests      *prometheus.CounterVec
	CoalescedRequests    *prometheus.CounterVec
	AdapterFailures      *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordsPushed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphcache_records_pushed_total",
				Help: "Records ingested from payloads",
			},
			[]string{"type"},
		),
		RelationshipsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphcache_relationships_created_total",
				Help: "Relationships created, by initial state",
			},
			[]string{"state"},
		),
		StateTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphcache_relationship_transitions_total",
				Help: "Relationship state changes",
			},
			[]string{"from", "to"},
		),
		RelationshipsDeleted: f.NewCounter(
			prometheus.CounterOpts{
				Name: "graphcache_relationships_deleted_total",
				Help: "Relationships erased from the graph",
			},
		),
		QueuedRelationships: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "graphcache_relationships_queued",
				Help: "Relationships waiting for an endpoint to load",
			},
		),
		AdapterRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphcache_adapter_requests_total",
				Help: "Adapter calls issued, by request kind",
			},
			[]string{"kind"},
		),
		CoalescedRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphcache_coalesced_requests_total",
				Help: "Finds that joined an identical in-flight request",
			},
			[]string{"kind"},
		),
		AdapterFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphcache_adapter_failures_total",
				Help: "Adapter calls that returned an error",
			},
			[]string{"kind"},
		),
	}
}

func (m *Metrics) recordPushed(typeKey string) {
	if m == nil {
		return
	}
	m.RecordsPushed.WithLabelValues(typeKey).Inc()
}

func (m *Metrics) relationshipCreated(state ir.State) {
	if m == nil {
		return
	}
	m.RelationshipsCreated.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) transition(from, to ir.State) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) relationshipDeleted() {
	if m == nil {
		return
	}
	m.RelationshipsDeleted.Inc()
}

func (m *Metrics) setQueued(n int) {
	if m == nil {
		return
	}
	m.QueuedRelationships.Set(float64(n))
}

func (m *Metrics) adapterRequest(kind string) {
	if m == nil {
		return
	}
	m.AdapterRequests.WithLabelValues(kind).Inc()
}

func (m *Metrics) coalesced(kind string) {
	if m == nil {
		return
	}
	m.CoalescedRequests.WithLabelValues(kind).Inc()
}

func (m *Metrics) adapterFailure(kind string) {
	if m == nil {
		return
	}
	m.AdapterFailures.WithLabelValues(kind).Inc()
}
