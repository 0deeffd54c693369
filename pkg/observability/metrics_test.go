package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.NodeWritten("entity")
	m.NodeWritten("entity")
	m.NodeWritten("op")
	m.EdgeWritten()
	m.EdgeSkipped()
	m.ChunkProduced("markdown")
	m.LLMCall()
	m.LLMFailure("timeout")
	m.ObserveRetrieval(0.05)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.NodesWritten.WithLabelValues("entity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodesWritten.WithLabelValues("op")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EdgesWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EdgesSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMFailures.WithLabelValues("timeout")))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.NodeWritten("entity")
	m.EdgeWritten()
	m.EdgeSkipped()
	m.ChunkProduced("openapi")
	m.LLMCall()
	m.LLMFailure("provider-error")
	m.ObserveRetrieval(1)
}
