package extraction

import (
	"fmt"
	"strings"

	"github.com/onemcp/onemcp/pkg/graph"
)

// Mapped is an extraction lowered onto the node model, grouped by kind in
// persist order. Skipped lists items dropped by validation with a reason.
type Mapped struct {
	Entities   []graph.Node
	Fields     []graph.Node
	Operations []graph.Node
	Examples   []graph.Node
	Docs       []graph.Node
	Edges      []graph.Edge
	Skipped    []string
}

// Nodes returns all mapped nodes in persist order: entities, fields,
// operations, examples, documentation.
func (m *Mapped) Nodes() []graph.Node {
	out := make([]graph.Node, 0,
		len(m.Entities)+len(m.Fields)+len(m.Operations)+len(m.Examples)+len(m.Docs))
	out = append(out, m.Entities...)
	out = append(out, m.Fields...)
	out = append(out, m.Operations...)
	out = append(out, m.Examples...)
	out = append(out, m.Docs...)
	return out
}

// Map lowers one extraction onto graph nodes and edges for the given
// service. Missing keys are synthesized from display names; items that
// fail validation are skipped with a recorded reason, never fatal.
func Map(ext *Extraction, serviceSlug string) *Mapped {
	m := &Mapped{}

	for _, e := range ext.Entities {
		node := graph.NewEntityNode(&graph.EntityNode{
			Key:                     e.Key,
			Name:                    e.Name,
			Description:             e.Description,
			ServiceSlug:             serviceSlug,
			AssociatedOperationKeys: e.AssociatedOperationKeys,
			Source:                  e.Source,
			Attributes:              e.Attributes,
			Domain:                  e.Domain,
		})
		if err := node.Validate(); err != nil {
			m.skip("entity", err)
			continue
		}
		m.Entities = append(m.Entities, node)
	}

	for _, f := range ext.Fields {
		owning := f.OwningEntityKey
		if owning == "" && f.OwningEntity != "" {
			owning = graph.NodeKey(graph.KindEntity, f.OwningEntity)
		}
		node := graph.NewFieldNode(&graph.FieldNode{
			Key:             f.Key,
			Name:            f.Name,
			Description:     f.Description,
			FieldType:       f.FieldType,
			OwningEntityKey: owning,
			ServiceSlug:     serviceSlug,
		})
		if err := node.Validate(); err != nil {
			m.skip("field", err)
			continue
		}
		m.Fields = append(m.Fields, node)
	}

	for _, o := range ext.Operations {
		node := graph.NewOperationNode(&graph.OperationNode{
			Key:              o.Key,
			OperationID:      o.OperationID,
			Method:           strings.ToUpper(o.Method),
			Path:             o.Path,
			Summary:          o.Summary,
			Description:      o.Description,
			ServiceSlug:      serviceSlug,
			Tags:             o.Tags,
			Signature:        o.Signature,
			DocumentationURI: o.DocumentationURI,
			RequestSchema:    string(o.RequestSchema),
			ResponseSchema:   string(o.ResponseSchema),
			Category:         o.Category,
			PrimaryEntityKey: o.PrimaryEntityKey,
		})
		if err := node.Validate(); err != nil {
			m.skip("operation", err)
			continue
		}
		m.Operations = append(m.Operations, node)
	}

	for _, ex := range ext.Examples {
		owning := ex.OwningOperationKey
		if owning == "" && ex.OwningOperation != "" {
			owning = graph.NodeKey(graph.KindOperation, ex.OwningOperation)
		}
		node := graph.NewExampleNode(&graph.ExampleNode{
			Key:                ex.Key,
			Name:               ex.Name,
			Summary:            ex.Summary,
			Description:        ex.Description,
			RequestBody:        string(ex.RequestBody),
			ResponseBody:       string(ex.ResponseBody),
			ResponseStatus:     string(ex.ResponseStatus),
			OwningOperationKey: owning,
			ServiceSlug:        serviceSlug,
		})
		if err := node.Validate(); err != nil {
			m.skip("example", err)
			continue
		}
		m.Examples = append(m.Examples, node)
	}

	for _, d := range ext.Documentations {
		node := graph.NewDocumentationNode(&graph.DocumentationNode{
			Key:         d.Key,
			Title:       d.Title,
			Content:     d.Content,
			DocType:     d.DocType,
			SourceFile:  d.SourceFile,
			RelatedKeys: d.RelatedKeys,
			ServiceSlug: serviceSlug,
			Metadata:    d.Metadata,
		})
		if err := node.Validate(); err != nil {
			m.skip("documentation", err)
			continue
		}
		m.Docs = append(m.Docs, node)
	}

	for _, r := range ext.Relationships {
		edge := graph.Edge{
			FromKey:     r.FromKey,
			ToKey:       r.ToKey,
			EdgeType:    r.EdgeType,
			Description: r.Description,
			Strength:    r.Strength,
			Properties:  flexProperties(r.Properties),
		}
		if err := edge.Normalize(); err != nil {
			m.skip("relationship", err)
			continue
		}
		m.Edges = append(m.Edges, edge)
	}

	return m
}

// Merge folds another mapped extraction into this one; operations and
// entities are deduplicated by key with first-seen wins, other kinds
// append.
func (m *Mapped) Merge(other *Mapped) {
	m.Entities = appendDedup(m.Entities, other.Entities)
	m.Fields = appendDedup(m.Fields, other.Fields)
	m.Operations = appendDedup(m.Operations, other.Operations)
	m.Examples = appendDedup(m.Examples, other.Examples)
	m.Docs = appendDedup(m.Docs, other.Docs)
	m.Edges = append(m.Edges, other.Edges...)
	m.Skipped = append(m.Skipped, other.Skipped...)
}

func appendDedup(dst, src []graph.Node) []graph.Node {
	seen := make(map[string]bool, len(dst))
	for _, n := range dst {
		seen[n.Key] = true
	}
	for _, n := range src {
		if !seen[n.Key] {
			seen[n.Key] = true
			dst = append(dst, n)
		}
	}
	return dst
}

func flexProperties(in map[string]Flex) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = string(v)
	}
	return out
}

func (m *Mapped) skip(kind string, err error) {
	m.Skipped = append(m.Skipped, fmt.Sprintf("%s skipped: %v", kind, err))
}
