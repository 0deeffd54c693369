package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/onemcp/onemcp/pkg/graph"
	"github.com/onemcp/onemcp/pkg/registry"
)

// ErrNotInitialized is returned by every driver operation after Shutdown or
// before Initialize.
var ErrNotInitialized = errors.New("graph driver is not initialized")

// EdgeSkipReasonMissingEndpoint reports an edge dropped because one of its
// endpoints does not exist in the namespace.
const EdgeSkipReasonMissingEndpoint = "missing-endpoint"

// EdgeResult reports what StoreEdge did. Skipped edges carry a reason and
// never surface as errors; transport failures do.
type EdgeResult struct {
	Stored     bool
	SkipReason string
}

// QueryResult is the one-hop neighborhood of a node. Node is nil when the
// key is unknown. Neighbors are grouped by edge type in stable traversal
// order (edge insertion order, outgoing before incoming).
type QueryResult struct {
	Node      *graph.Node
	Neighbors map[string][]graph.Node
}

// Driver is the storage SPI. One driver instance owns one handbook
// namespace; separate handbooks share no state.
type Driver interface {
	// Initialize creates the namespace, collections, and indexes. It is
	// idempotent; no writes are visible until it returns.
	Initialize(ctx context.Context) error

	// IsInitialized is a pure accessor.
	IsInitialized() bool

	// ClearAll drops graphs first, then collections, then recreates empty
	// collections.
	ClearAll(ctx context.Context) error

	// EnsureGraphExists idempotently creates the named graph with its edge
	// definitions.
	EnsureGraphExists(ctx context.Context) error

	// StoreNode upserts by key: insert, or on conflict replace the stored
	// document in full.
	StoreNode(ctx context.Context, node graph.Node) error

	// StoreEdge upserts by (fromKey, edgeType, toKey). Edges with a missing
	// endpoint are skipped (logged), never an error.
	StoreEdge(ctx context.Context, edge graph.Edge) (EdgeResult, error)

	// GetNode fetches a node by its logical key.
	GetNode(ctx context.Context, key string) (*graph.Node, error)

	// QueryByEntity returns the node with the given key and all incident
	// nodes one hop away grouped by edge type. Works for any node key.
	QueryByEntity(ctx context.Context, key string) (*QueryResult, error)

	// Shutdown flushes pending writes and releases resources. Further
	// calls return ErrNotInitialized.
	Shutdown(ctx context.Context) error
}

// Config is passed to driver constructors.
type Config struct {
	// Namespace is the per-handbook isolation unit, already in the
	// `onemcp_<name>` form.
	Namespace string
	// Path is the storage location for file-backed drivers.
	Path string
}

// Constructor builds a driver bound to one namespace.
type Constructor func(cfg Config) (Driver, error)

// Namespace derives the isolated namespace for a handbook name.
func Namespace(handbookName string) string {
	return "onemcp_" + graph.Slugify(handbookName)
}

var drivers = registry.NewBaseRegistry[Constructor]()

// Register adds a driver constructor under an id. Drivers register at
// startup; there is no dynamic discovery.
func Register(id string, ctor Constructor) error {
	return drivers.Register(id, ctor)
}

// New resolves a driver id and constructs a driver for the namespace.
func New(id string, cfg Config) (Driver, error) {
	ctor, ok := drivers.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown graph driver %q (registered: %v)", id, drivers.Names())
	}
	return ctor(cfg)
}

func init() {
	// Built-in drivers. The in-memory driver is the reference
	// implementation for matching semantics; sqlite is the document-graph
	// backend.
	_ = Register("in-memory", func(cfg Config) (Driver, error) {
		return NewMemoryDriver(cfg), nil
	})
	_ = Register("sqlite", func(cfg Config) (Driver, error) {
		return NewSQLiteDriver(cfg)
	})
}
