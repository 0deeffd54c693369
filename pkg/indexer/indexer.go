// Package indexer drives the end-to-end graph build for one handbook:
// OpenAPI extraction through the LLM, markdown documentation extraction,
// validation, and persistence through the graph driver.
package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/onemcp/onemcp/pkg/config"
	"github.com/onemcp/onemcp/pkg/extraction"
	"github.com/onemcp/onemcp/pkg/graph"
	"github.com/onemcp/onemcp/pkg/graph/driver"
	"github.com/onemcp/onemcp/pkg/handbook"
	"github.com/onemcp/onemcp/pkg/llms"
	"github.com/onemcp/onemcp/pkg/observability"
	"github.com/onemcp/onemcp/pkg/progress"
	"github.com/onemcp/onemcp/pkg/runlog"
)

// Options wires a coordinator. Driver and Config are required; LLM is
// optional (rule-based extraction covers its absence), the rest default to
// no-ops.
type Options struct {
	Config   *config.Config
	Driver   driver.Driver
	LLM      llms.Provider
	Progress progress.Sink
	Metrics  *observability.Metrics
	Run      *runlog.Run
	Logger   *slog.Logger
}

// Coordinator owns all graph mutations for a run. Retrieval holds a shared
// read handle on the same driver and never writes.
type Coordinator struct {
	cfg      *config.Config
	driver   driver.Driver
	llm      llms.Provider
	progress progress.Sink
	metrics  *observability.Metrics
	run      *runlog.Run
	logger   *slog.Logger
}

// ServiceSummary is the per-service outcome reported after a run.
type ServiceSummary struct {
	Service       string         `json:"service"`
	Fallback      bool           `json:"fallback,omitempty"`
	Failed        bool           `json:"failed,omitempty"`
	Nodes         map[string]int `json:"nodes"`
	EdgesWritten  int            `json:"edgesWritten"`
	EdgesSkipped  int            `json:"edgesSkipped"`
	ChunksTotal   int            `json:"chunksTotal,omitempty"`
	ChunksSkipped int            `json:"chunksSkipped,omitempty"`
}

// Summary is the whole-run outcome.
type Summary struct {
	Handbook     string           `json:"handbook"`
	RunID        string           `json:"runId,omitempty"`
	Services     []ServiceSummary `json:"services"`
	DocsIndexed  int              `json:"docsIndexed"`
	DocChunks    int              `json:"docChunks"`
	EdgesWritten int              `json:"edgesWritten"`
	EdgesSkipped int              `json:"edgesSkipped"`
}

// New builds a coordinator.
func New(opts Options) (*Coordinator, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("indexer: config is required")
	}
	if opts.Driver == nil {
		return nil, fmt.Errorf("indexer: driver is required")
	}
	if opts.Progress == nil {
		opts.Progress = progress.NopSink{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		cfg:      opts.Config,
		driver:   opts.Driver,
		llm:      opts.LLM,
		progress: opts.Progress,
		metrics:  opts.Metrics,
		run:      opts.Run,
		logger:   opts.Logger,
	}, nil
}

// Index builds the graph for one handbook. Per-chunk failures are skipped,
// per-service failures fall back to rule-based extraction, and only
// handbook-level failures (driver unreachable, cancellation) return an
// error.
func (c *Coordinator) Index(ctx context.Context, hb *handbook.Handbook) (*Summary, error) {
	summary := &Summary{Handbook: hb.Name()}
	if c.run != nil {
		summary.RunID = c.run.ID
	}

	token := "index:" + hb.Name()
	total := float64(len(hb.Services) + 1)
	c.publish(ctx, token, "indexing handbook", 0, total, "initializing", progress.StatusRunning)

	if err := c.driver.Initialize(ctx); err != nil {
		c.publish(ctx, token, "indexing handbook", 0, total, "driver init failed", progress.StatusFailed)
		return nil, fmt.Errorf("failed to initialize graph driver: %w", err)
	}
	if c.cfg.Graph.Indexing.ClearOnStartup == nil || *c.cfg.Graph.Indexing.ClearOnStartup {
		if err := c.driver.ClearAll(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear namespace: %w", err)
		}
	}
	if err := c.driver.EnsureGraphExists(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure graph: %w", err)
	}

	// Run-level referential state: every persisted key, and every written
	// edge triple, across services and the docs stage.
	validKeys := map[string]bool{}
	writtenTriples := map[string]bool{}

	for i, svc := range hb.Services {
		if err := ctx.Err(); err != nil {
			c.publish(ctx, token, "indexing handbook", float64(i), total, "cancelled", progress.StatusCancelled)
			c.logger.Warn("indexing cancelled", "handbook", hb.Name(), "service", svc.Name)
			return summary, fmt.Errorf("indexing cancelled: %w", err)
		}

		svcSummary := c.indexService(ctx, hb, svc, validKeys, writtenTriples)
		summary.Services = append(summary.Services, svcSummary)
		summary.EdgesWritten += svcSummary.EdgesWritten
		summary.EdgesSkipped += svcSummary.EdgesSkipped

		c.publish(ctx, token, "indexing handbook", float64(i+1), total,
			"indexed service "+svc.Name, progress.StatusRunning)
	}

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("indexing cancelled: %w", err)
	}

	docsIndexed, docChunks, docEdges, docSkipped := c.indexDocs(ctx, hb, validKeys, writtenTriples)
	summary.DocsIndexed = docsIndexed
	summary.DocChunks = docChunks
	summary.EdgesWritten += docEdges
	summary.EdgesSkipped += docSkipped

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("indexing cancelled: %w", err)
	}

	c.publish(ctx, token, "indexing handbook", total, total, "done", progress.StatusCompleted)
	if c.run != nil {
		c.run.Summary(summary)
	}
	c.logger.Info("handbook indexed",
		"handbook", hb.Name(),
		"services", len(summary.Services),
		"docs", summary.DocsIndexed,
		"edges_written", summary.EdgesWritten,
		"edges_skipped", summary.EdgesSkipped)
	return summary, nil
}

// persist writes one mapped extraction: nodes first in kind order, then
// edges filtered against the full set of persisted keys. Edge triples are
// deduplicated in memory before the driver sees them.
func (c *Coordinator) persist(ctx context.Context, m *extraction.Mapped, validKeys, writtenTriples map[string]bool, sum *ServiceSummary) error {
	for _, node := range m.Nodes() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.driver.StoreNode(ctx, node); err != nil {
			return fmt.Errorf("failed to store node %s: %w", node.Key, err)
		}
		validKeys[node.Key] = true
		c.metrics.NodeWritten(string(node.Kind))
		if sum != nil {
			sum.Nodes[string(node.Kind)]++
		}
	}

	edges := c.synthesizeEdges(m)
	for _, edge := range edges {
		if writtenTriples[edge.Triple()] {
			continue
		}
		if !validKeys[edge.FromKey] || !validKeys[edge.ToKey] {
			c.logger.Debug("edge skipped",
				"edge", edge.Triple(), "reason", driver.EdgeSkipReasonMissingEndpoint)
			c.metrics.EdgeSkipped()
			if sum != nil {
				sum.EdgesSkipped++
			}
			continue
		}
		res, err := c.driver.StoreEdge(ctx, edge)
		if err != nil {
			return fmt.Errorf("failed to store edge %s: %w", edge.Triple(), err)
		}
		if res.Stored {
			writtenTriples[edge.Triple()] = true
			c.metrics.EdgeWritten()
			if sum != nil {
				sum.EdgesWritten++
			}
		} else {
			c.metrics.EdgeSkipped()
			if sum != nil {
				sum.EdgesSkipped++
			}
		}
	}
	return nil
}

// synthesizeEdges augments the extractor's relationships with the edges
// implied by node structure: ownership edges for fields and examples, and
// association edges from entities to their operations. Synthesized triples
// dedup against anything the extractor already emitted.
func (c *Coordinator) synthesizeEdges(m *extraction.Mapped) []graph.Edge {
	edges := append([]graph.Edge(nil), m.Edges...)
	seen := make(map[string]bool, len(edges))
	for _, e := range edges {
		seen[e.Triple()] = true
	}
	add := func(e graph.Edge) {
		if !seen[e.Triple()] {
			seen[e.Triple()] = true
			edges = append(edges, e)
		}
	}

	for _, n := range m.Fields {
		add(graph.Edge{FromKey: n.Field.OwningEntityKey, ToKey: n.Key, EdgeType: graph.EdgeHasField})
	}
	for _, n := range m.Examples {
		add(graph.Edge{FromKey: n.Example.OwningOperationKey, ToKey: n.Key, EdgeType: graph.EdgeHasExample})
	}
	for _, n := range m.Entities {
		for _, opKey := range n.Entity.AssociatedOperationKeys {
			add(graph.Edge{FromKey: n.Key, ToKey: opKey, EdgeType: graph.EdgeHasOperation})
		}
	}
	return edges
}

func (c *Coordinator) publish(ctx context.Context, id, label string, completed, total float64, message string, status progress.Status) {
	c.progress.Publish(ctx, progress.Event{
		ID:        id,
		Label:     label,
		Completed: completed,
		Total:     total,
		Message:   message,
		Status:    status,
	})
}
