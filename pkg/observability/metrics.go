// Package observability exposes the prometheus metrics the indexer and
// retrieval service record.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector registered for one process. A nil
// *Metrics is safe to call; all recorders become no-ops, so tests and
// library callers need no registry.
type Metrics struct {
	NodesWritten  *prometheus.CounterVec
	EdgesWritten  prometheus.Counter
	EdgesSkipped  prometheus.Counter
	ChunksTotal   *prometheus.CounterVec
	LLMCalls      prometheus.Counter
	LLMFailures   *prometheus.CounterVec
	RetrievalTime prometheus.Histogram
}

// New registers all collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		NodesWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onemcp_nodes_written_total",
			Help: "Graph nodes persisted, by node kind.",
		}, []string{"kind"}),
		EdgesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "onemcp_edges_written_total",
			Help: "Graph edges persisted.",
		}),
		EdgesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "onemcp_edges_skipped_total",
			Help: "Edges dropped for a missing endpoint or duplicate triple.",
		}),
		ChunksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onemcp_chunks_total",
			Help: "Chunks produced, by document type.",
		}, []string{"doc_type"}),
		LLMCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "onemcp_llm_calls_total",
			Help: "LLM chat calls issued, including retries.",
		}),
		LLMFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onemcp_llm_failures_total",
			Help: "LLM calls that failed, by error kind.",
		}, []string{"kind"}),
		RetrievalTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "onemcp_retrieval_duration_seconds",
			Help:    "Wall time of one retrieval request.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) NodeWritten(kind string) {
	if m != nil {
		m.NodesWritten.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) EdgeWritten() {
	if m != nil {
		m.EdgesWritten.Inc()
	}
}

func (m *Metrics) EdgeSkipped() {
	if m != nil {
		m.EdgesSkipped.Inc()
	}
}

func (m *Metrics) ChunkProduced(docType string) {
	if m != nil {
		m.ChunksTotal.WithLabelValues(docType).Inc()
	}
}

func (m *Metrics) LLMCall() {
	if m != nil {
		m.LLMCalls.Inc()
	}
}

func (m *Metrics) LLMFailure(kind string) {
	if m != nil {
		m.LLMFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ObserveRetrieval(seconds float64) {
	if m != nil {
		m.RetrievalTime.Observe(seconds)
	}
}
