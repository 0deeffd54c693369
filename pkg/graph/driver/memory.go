package driver

import (
	"context"
	"log/slog"
	"sync"

	"github.com/onemcp/onemcp/pkg/graph"
)

// MemoryDriver is the in-memory reference driver. It is the source of
// truth for matching semantics and backs most tests.
type MemoryDriver struct {
	mu          sync.RWMutex
	namespace   string
	initialized bool
	graphExists bool

	nodes     map[string]graph.Node
	edges     map[string]graph.Edge
	edgeOrder []string
}

func NewMemoryDriver(cfg Config) *MemoryDriver {
	return &MemoryDriver{namespace: cfg.Namespace}
}

func (d *MemoryDriver) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		return nil
	}
	d.nodes = make(map[string]graph.Node)
	d.edges = make(map[string]graph.Edge)
	d.edgeOrder = nil
	d.initialized = true
	return nil
}

func (d *MemoryDriver) IsInitialized() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.initialized
}

func (d *MemoryDriver) ClearAll(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	// Graph first, then collections, then recreate.
	d.graphExists = false
	d.nodes = make(map[string]graph.Node)
	d.edges = make(map[string]graph.Edge)
	d.edgeOrder = nil
	return nil
}

func (d *MemoryDriver) EnsureGraphExists(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	d.graphExists = true
	return nil
}

func (d *MemoryDriver) StoreNode(ctx context.Context, node graph.Node) error {
	if err := node.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	// Upsert replaces the stored document in full.
	d.nodes[node.Key] = node
	return nil
}

func (d *MemoryDriver) StoreEdge(ctx context.Context, edge graph.Edge) (EdgeResult, error) {
	if err := edge.Normalize(); err != nil {
		return EdgeResult{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return EdgeResult{}, ErrNotInitialized
	}

	if _, ok := d.nodes[edge.FromKey]; !ok {
		slog.Debug("Skipping edge with missing endpoint",
			"namespace", d.namespace, "from", edge.FromKey, "to", edge.ToKey, "type", edge.EdgeType)
		return EdgeResult{SkipReason: EdgeSkipReasonMissingEndpoint}, nil
	}
	if _, ok := d.nodes[edge.ToKey]; !ok {
		slog.Debug("Skipping edge with missing endpoint",
			"namespace", d.namespace, "from", edge.FromKey, "to", edge.ToKey, "type", edge.EdgeType)
		return EdgeResult{SkipReason: EdgeSkipReasonMissingEndpoint}, nil
	}

	triple := edge.Triple()
	if _, exists := d.edges[triple]; !exists {
		d.edgeOrder = append(d.edgeOrder, triple)
	}
	d.edges[triple] = edge
	return EdgeResult{Stored: true}, nil
}

func (d *MemoryDriver) GetNode(ctx context.Context, key string) (*graph.Node, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.initialized {
		return nil, ErrNotInitialized
	}
	node, ok := d.nodes[key]
	if !ok {
		return nil, nil
	}
	return &node, nil
}

func (d *MemoryDriver) QueryByEntity(ctx context.Context, key string) (*QueryResult, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.initialized {
		return nil, ErrNotInitialized
	}

	result := &QueryResult{Neighbors: make(map[string][]graph.Node)}
	node, ok := d.nodes[key]
	if !ok {
		return result, nil
	}
	result.Node = &node

	// Outgoing first, then incoming, both in edge insertion order.
	for _, triple := range d.edgeOrder {
		e := d.edges[triple]
		if e.FromKey != key {
			continue
		}
		if neighbor, ok := d.nodes[e.ToKey]; ok {
			result.Neighbors[e.EdgeType] = append(result.Neighbors[e.EdgeType], neighbor)
		}
	}
	for _, triple := range d.edgeOrder {
		e := d.edges[triple]
		if e.ToKey != key || e.FromKey == key {
			continue
		}
		if neighbor, ok := d.nodes[e.FromKey]; ok {
			result.Neighbors[e.EdgeType] = append(result.Neighbors[e.EdgeType], neighbor)
		}
	}

	return result, nil
}

func (d *MemoryDriver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	d.initialized = false
	d.nodes = nil
	d.edges = nil
	d.edgeOrder = nil
	return nil
}

// NodeCount and EdgeCount support tests and the per-run summary.
func (d *MemoryDriver) NodeCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.nodes)
}

func (d *MemoryDriver) EdgeCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.edges)
}
