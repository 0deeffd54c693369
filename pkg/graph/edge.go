package graph

import (
	"fmt"
	"strings"
)

// Well-known edge types. Edge types are free-form upper-cased labels; these
// are the ones the indexer itself emits.
const (
	EdgeHasOperation = "HAS_OPERATION"
	EdgeHasField     = "HAS_FIELD"
	EdgeHasExample   = "HAS_EXAMPLE"
	EdgeDescribes    = "DESCRIBES"
	EdgeMentions     = "MENTIONS"
)

// Edge is a typed, directed connection between two nodes, identified by the
// (fromKey, edgeType, toKey) triple.
type Edge struct {
	FromKey     string            `json:"from_key"`
	ToKey       string            `json:"to_key"`
	EdgeType    string            `json:"edge_type"`
	Properties  map[string]string `json:"properties,omitempty"`
	Description string            `json:"description,omitempty"`
	Strength    float64           `json:"strength,omitempty"`
}

// Triple returns the identity of the edge used for deduplication.
func (e Edge) Triple() string {
	return e.FromKey + "<>" + e.EdgeType + "<>" + e.ToKey
}

// Normalize upper-cases the edge type and trims endpoint keys. Returns an
// error when the edge is structurally unusable.
func (e *Edge) Normalize() error {
	e.FromKey = strings.TrimSpace(e.FromKey)
	e.ToKey = strings.TrimSpace(e.ToKey)
	e.EdgeType = strings.ToUpper(strings.TrimSpace(e.EdgeType))
	if e.FromKey == "" || e.ToKey == "" {
		return fmt.Errorf("edge %s: endpoint key is empty", e.Triple())
	}
	if e.EdgeType == "" {
		return fmt.Errorf("edge %s->%s: edge type is empty", e.FromKey, e.ToKey)
	}
	return nil
}
