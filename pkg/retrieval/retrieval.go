// Package retrieval assembles context bundles from the persisted graph:
// entity-oriented and operation-oriented views of entities, their fields,
// operations, examples, and documentation. Retrieval is read-only and
// freely concurrent.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onemcp/onemcp/pkg/graph"
	"github.com/onemcp/onemcp/pkg/graph/driver"
	"github.com/onemcp/onemcp/pkg/observability"
)

// Item types in a context bundle.
const (
	ItemEntity    = "entity"
	ItemDoc       = "doc"
	ItemField     = "field"
	ItemSignature = "signature"
	ItemExample   = "example"
)

// ContextItem is one requested entity with optional operation category
// filters. Confidence and Referral are caller metadata, preserved through
// the response untouched.
type ContextItem struct {
	Entity     string   `json:"entity"`
	Operations []string `json:"operations"`
	Confidence float64  `json:"confidence,omitempty"`
	Referral   string   `json:"referral,omitempty"`
}

// Request is a retrieval query.
type Request struct {
	Context []ContextItem `json:"context"`
}

// Item is one typed content piece with its referral path.
type Item struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Ref     string `json:"ref"`
}

// EntityGroup is the flattened-by-entity view of one request item.
type EntityGroup struct {
	Entity              string   `json:"entity"`
	RequestedOperations []string `json:"requestedOperations"`
	Confidence          float64  `json:"confidence,omitempty"`
	Referral            string   `json:"referral,omitempty"`
	Items               []Item   `json:"items"`
}

// OperationGroup is one operation's bundle in the operation-oriented view,
// keyed by the operation display name (`METHOD path`).
type OperationGroup struct {
	Operation string `json:"operation"`
	Items     []Item `json:"items"`
}

// Response carries both presentation views.
type Response struct {
	Flattened         []EntityGroup    `json:"flattened"`
	OperationOriented []OperationGroup `json:"operationOriented"`
}

// Service resolves retrieval requests against the graph driver.
type Service struct {
	driver  driver.Driver
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New builds a retrieval service over a shared read handle.
func New(d driver.Driver, metrics *observability.Metrics, logger *slog.Logger) (*Service, error) {
	if d == nil {
		return nil, fmt.Errorf("retrieval: driver is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{driver: d, metrics: metrics, logger: logger}, nil
}

// Retrieve resolves every request item. Unknown entities produce an empty
// group preserving the caller's metadata; only driver failures return an
// error.
func (s *Service) Retrieve(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveRetrieval(time.Since(start).Seconds())
	}()

	resp := &Response{}
	opGroups := map[string]*OperationGroup{}
	var opOrder []string
	// Documentation dedup is global per view: a doc shared by several
	// operations or entities appears once under whichever group comes
	// first.
	flatDocsSeen := map[string]bool{}
	opDocsSeen := map[string]bool{}

	for _, item := range req.Context {
		group := EntityGroup{
			Entity:              item.Entity,
			RequestedOperations: item.Operations,
			Confidence:          item.Confidence,
			Referral:            item.Referral,
			Items:               []Item{},
		}

		key := graph.NodeKey(graph.KindEntity, item.Entity)
		result, err := s.driver.QueryByEntity(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to query entity %s: %w", key, err)
		}
		if result.Node == nil || result.Node.Kind != graph.KindEntity {
			s.logger.Debug("entity not found", "entity", item.Entity, "key", key)
			resp.Flattened = append(resp.Flattened, group)
			continue
		}

		entity := result.Node.Entity
		group.Items = append(group.Items, Item{
			Type:    ItemEntity,
			Content: entityContent(entity),
			Ref:     "/" + entity.ServiceSlug + "/entities/" + entity.Name,
		})

		for _, n := range neighborsOfKind(result, graph.KindDocumentation, graph.EdgeDescribes, graph.EdgeMentions) {
			if flatDocsSeen[graph.CanonicalID(n.Key)] {
				continue
			}
			flatDocsSeen[graph.CanonicalID(n.Key)] = true
			group.Items = append(group.Items, docItem(n.Documentation))
		}

		for _, n := range neighborsOfKind(result, graph.KindField, graph.EdgeHasField) {
			f := n.Field
			if strings.HasPrefix(f.Name, "_") {
				continue
			}
			group.Items = append(group.Items, Item{
				Type:    ItemField,
				Content: fieldContent(f),
				Ref:     "/entities/" + entity.Name + "/fields/" + f.Name,
			})
		}

		for _, n := range neighborsOfKind(result, graph.KindOperation, graph.EdgeHasOperation) {
			op := n.Operation
			if !categoryMatches(op.Category, item.Operations) {
				continue
			}
			opResult, err := s.driver.QueryByEntity(ctx, n.Key)
			if err != nil {
				return nil, fmt.Errorf("failed to query operation %s: %w", n.Key, err)
			}

			ref := operationRef(op)
			sig := Item{Type: ItemSignature, Content: op.Signature, Ref: ref}
			group.Items = append(group.Items, sig)

			display := operationDisplay(op)
			og, exists := opGroups[display]
			if !exists {
				og = &OperationGroup{Operation: display, Items: []Item{sig}}
				opGroups[display] = og
				opOrder = append(opOrder, display)
			}

			for _, ex := range neighborsOfKind(opResult, graph.KindExample, graph.EdgeHasExample) {
				exItem := Item{Type: ItemExample, Content: exampleContent(ex.Example), Ref: ref}
				group.Items = append(group.Items, exItem)
				if !exists {
					og.Items = append(og.Items, exItem)
				}
			}
			for _, dn := range neighborsOfKind(opResult, graph.KindDocumentation, graph.EdgeDescribes, graph.EdgeMentions) {
				canonical := graph.CanonicalID(dn.Key)
				if !flatDocsSeen[canonical] {
					flatDocsSeen[canonical] = true
					group.Items = append(group.Items, docItem(dn.Documentation))
				}
				if !opDocsSeen[canonical] {
					opDocsSeen[canonical] = true
					og.Items = append(og.Items, docItem(dn.Documentation))
				}
			}
		}

		resp.Flattened = append(resp.Flattened, group)
	}

	for _, display := range opOrder {
		resp.OperationOriented = append(resp.OperationOriented, *opGroups[display])
	}
	return resp, nil
}

// neighborsOfKind filters a query result's one-hop neighbors by node kind
// over the given edge types, preserving the driver's traversal order.
func neighborsOfKind(result *driver.QueryResult, kind graph.NodeKind, edgeTypes ...string) []graph.Node {
	var out []graph.Node
	seen := map[string]bool{}
	for _, et := range edgeTypes {
		for _, n := range result.Neighbors[et] {
			if n.Kind == kind && !seen[n.Key] {
				seen[n.Key] = true
				out = append(out, n)
			}
		}
	}
	return out
}

func categoryMatches(category string, requested []string) bool {
	if len(requested) == 0 {
		return true
	}
	for _, r := range requested {
		if strings.EqualFold(r, category) {
			return true
		}
	}
	return false
}

func operationDisplay(op *graph.OperationNode) string {
	return strings.TrimSpace(op.Method + " " + op.Path)
}

func operationRef(op *graph.OperationNode) string {
	path := op.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
