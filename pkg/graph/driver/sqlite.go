package driver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/onemcp/onemcp/pkg/graph"
)

// SQLiteDriver is the document-graph backend: one JSON-document collection
// per node kind plus a single edge collection whose edges reference any
// vertex collection. Each namespace is isolated in its own database file.
type SQLiteDriver struct {
	mu          sync.Mutex
	namespace   string
	path        string
	db          *sql.DB
	initialized bool
}

var collectionByKind = map[graph.NodeKind]string{
	graph.KindEntity:        "entities",
	graph.KindField:         "fields",
	graph.KindOperation:     "operations",
	graph.KindExample:       "examples",
	graph.KindDocumentation: "documentation",
}

func NewSQLiteDriver(cfg Config) (*SQLiteDriver, error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("sqlite driver requires a namespace")
	}
	path := cfg.Path
	if path == "" {
		path = ".onemcp"
	}
	return &SQLiteDriver{namespace: cfg.Namespace, path: path}, nil
}

func (d *SQLiteDriver) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		return nil
	}

	if err := os.MkdirAll(d.path, 0755); err != nil {
		return fmt.Errorf("failed to create driver path %s: %w", d.path, err)
	}

	file := filepath.Join(d.path, d.namespace+".db")
	db, err := sql.Open("sqlite3", file+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", file, err)
	}
	// Serialized writes: the coordinator dedups in memory, per-statement
	// upserts are enough.
	db.SetMaxOpenConns(1)

	d.db = db
	if err := d.createSchema(ctx); err != nil {
		db.Close()
		d.db = nil
		return err
	}
	d.initialized = true
	return nil
}

func (d *SQLiteDriver) createSchema(ctx context.Context) error {
	for _, table := range collectionByKind {
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			key TEXT NOT NULL UNIQUE,
			doc TEXT NOT NULL
		)`, table)
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", table, err)
		}
	}

	if _, err := d.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS edges (
		id TEXT PRIMARY KEY,
		from_key TEXT NOT NULL,
		to_key TEXT NOT NULL,
		edge_type TEXT NOT NULL,
		doc TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create edge collection: %w", err)
	}
	if _, err := d.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_key)`); err != nil {
		return fmt.Errorf("failed to create edge index: %w", err)
	}
	if _, err := d.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_key)`); err != nil {
		return fmt.Errorf("failed to create edge index: %w", err)
	}

	if _, err := d.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS graphs (
		name TEXT PRIMARY KEY,
		edge_definitions TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create graphs table: %w", err)
	}
	return nil
}

func (d *SQLiteDriver) IsInitialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

func (d *SQLiteDriver) ClearAll(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}

	// Graphs must go before the collections they reference.
	if _, err := d.db.ExecContext(ctx, `DELETE FROM graphs`); err != nil {
		return fmt.Errorf("failed to drop graphs: %w", err)
	}
	for _, table := range collectionByKind {
		if _, err := d.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
			return fmt.Errorf("failed to drop collection %s: %w", table, err)
		}
	}
	if _, err := d.db.ExecContext(ctx, `DROP TABLE IF EXISTS edges`); err != nil {
		return fmt.Errorf("failed to drop edge collection: %w", err)
	}
	return d.createSchema(ctx)
}

func (d *SQLiteDriver) EnsureGraphExists(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}

	definitions, err := json.Marshal(map[string]interface{}{
		"edge_collection":    "edges",
		"vertex_collections": []string{"entities", "fields", "operations", "examples", "documentation"},
	})
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO graphs (name, edge_definitions) VALUES (?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		d.namespace, string(definitions))
	if err != nil {
		return fmt.Errorf("failed to ensure graph exists: %w", err)
	}
	return nil
}

func (d *SQLiteDriver) StoreNode(ctx context.Context, node graph.Node) error {
	if err := node.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}

	table, ok := collectionByKind[node.Kind]
	if !ok {
		return fmt.Errorf("node %s: no collection for kind %q", node.Key, node.Kind)
	}
	doc, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("failed to marshal node %s: %w", node.Key, err)
	}

	// Upsert by key: insert, on conflict replace the document in full.
	stmt := fmt.Sprintf(`INSERT INTO %s (id, key, doc) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET id = excluded.id, doc = excluded.doc`, table)
	if _, err := d.db.ExecContext(ctx, stmt, graph.CanonicalID(node.Key), node.Key, string(doc)); err != nil {
		return fmt.Errorf("failed to store node %s: %w", node.Key, err)
	}
	return nil
}

func (d *SQLiteDriver) StoreEdge(ctx context.Context, edge graph.Edge) (EdgeResult, error) {
	if err := edge.Normalize(); err != nil {
		return EdgeResult{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return EdgeResult{}, ErrNotInitialized
	}

	for _, key := range []string{edge.FromKey, edge.ToKey} {
		exists, err := d.nodeExists(ctx, key)
		if err != nil {
			return EdgeResult{}, err
		}
		if !exists {
			slog.Debug("Skipping edge with missing endpoint",
				"namespace", d.namespace, "from", edge.FromKey, "to", edge.ToKey, "type", edge.EdgeType)
			return EdgeResult{SkipReason: EdgeSkipReasonMissingEndpoint}, nil
		}
	}

	doc, err := json.Marshal(edge)
	if err != nil {
		return EdgeResult{}, fmt.Errorf("failed to marshal edge: %w", err)
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO edges (id, from_key, to_key, edge_type, doc) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET doc = excluded.doc`,
		graph.CanonicalID(edge.Triple()), edge.FromKey, edge.ToKey, edge.EdgeType, string(doc))
	if err != nil {
		return EdgeResult{}, fmt.Errorf("failed to store edge %s: %w", edge.Triple(), err)
	}
	return EdgeResult{Stored: true}, nil
}

func (d *SQLiteDriver) nodeExists(ctx context.Context, key string) (bool, error) {
	tables := d.tablesFor(key)
	for _, table := range tables {
		var one int
		err := d.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT 1 FROM %s WHERE key = ?`, table), key).Scan(&one)
		if err == nil {
			return true, nil
		}
		if err != sql.ErrNoRows {
			return false, fmt.Errorf("failed to check node %s: %w", key, err)
		}
	}
	return false, nil
}

func (d *SQLiteDriver) tablesFor(key string) []string {
	if kind := graph.KindOf(key); kind != "" {
		return []string{collectionByKind[kind]}
	}
	tables := make([]string, 0, len(collectionByKind))
	for _, table := range collectionByKind {
		tables = append(tables, table)
	}
	return tables
}

func (d *SQLiteDriver) getNodeLocked(ctx context.Context, key string) (*graph.Node, error) {
	for _, table := range d.tablesFor(key) {
		var doc string
		err := d.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT doc FROM %s WHERE key = ?`, table), key).Scan(&doc)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load node %s: %w", key, err)
		}
		var node graph.Node
		if err := json.Unmarshal([]byte(doc), &node); err != nil {
			return nil, fmt.Errorf("failed to decode node %s: %w", key, err)
		}
		return &node, nil
	}
	return nil, nil
}

func (d *SQLiteDriver) GetNode(ctx context.Context, key string) (*graph.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return nil, ErrNotInitialized
	}
	return d.getNodeLocked(ctx, key)
}

func (d *SQLiteDriver) QueryByEntity(ctx context.Context, key string) (*QueryResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return nil, ErrNotInitialized
	}

	result := &QueryResult{Neighbors: make(map[string][]graph.Node)}
	node, err := d.getNodeLocked(ctx, key)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return result, nil
	}
	result.Node = node

	// Outgoing first, then incoming, each in insertion (rowid) order.
	queries := []struct {
		stmt  string
		other func(from, to string) string
	}{
		{`SELECT from_key, to_key, edge_type FROM edges WHERE from_key = ? ORDER BY rowid`,
			func(from, to string) string { return to }},
		{`SELECT from_key, to_key, edge_type FROM edges WHERE to_key = ? AND from_key != ? ORDER BY rowid`,
			func(from, to string) string { return from }},
	}
	for i, q := range queries {
		args := []interface{}{key}
		if i == 1 {
			args = append(args, key)
		}
		rows, err := d.db.QueryContext(ctx, q.stmt, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query edges for %s: %w", key, err)
		}
		type hit struct {
			otherKey string
			edgeType string
		}
		var hits []hit
		for rows.Next() {
			var from, to, edgeType string
			if err := rows.Scan(&from, &to, &edgeType); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan edge row: %w", err)
			}
			hits = append(hits, hit{otherKey: q.other(from, to), edgeType: edgeType})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()

		for _, h := range hits {
			neighbor, err := d.getNodeLocked(ctx, h.otherKey)
			if err != nil {
				return nil, err
			}
			if neighbor != nil {
				result.Neighbors[h.edgeType] = append(result.Neighbors[h.edgeType], *neighbor)
			}
		}
	}

	return result, nil
}

func (d *SQLiteDriver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	d.initialized = false
	err := d.db.Close()
	d.db = nil
	return err
}
