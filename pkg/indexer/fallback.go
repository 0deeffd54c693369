package indexer

import (
	"github.com/onemcp/onemcp/pkg/extraction"
	"github.com/onemcp/onemcp/pkg/graph"
	"github.com/onemcp/onemcp/pkg/openapi"
)

// ruleBased extracts a minimal graph without the LLM: one entity per tag,
// one operation per path/method pair, and a HAS_OPERATION edge from each
// tag-entity to each operation carrying that tag.
func (c *Coordinator) ruleBased(doc *openapi.Document, serviceSlug string) *extraction.Mapped {
	m := &extraction.Mapped{}

	tagDescriptions := map[string]string{}
	for _, t := range doc.Tags {
		tagDescriptions[t.Name] = t.Description
	}

	for _, name := range doc.TagNames() {
		m.Entities = append(m.Entities, graph.NewEntityNode(&graph.EntityNode{
			Name:        name,
			Description: tagDescriptions[name],
			ServiceSlug: serviceSlug,
			Source:      "openapi-tags",
		}))
	}

	for _, op := range doc.Operations() {
		opID := op.OperationID
		if opID == "" {
			opID = op.Method + " " + op.Path
		}
		node := graph.NewOperationNode(&graph.OperationNode{
			OperationID: opID,
			Method:      op.Method,
			Path:        op.Path,
			Summary:     op.Summary,
			Description: op.Description,
			ServiceSlug: serviceSlug,
			Tags:        op.Tags,
		})
		m.Operations = append(m.Operations, node)

		for _, tag := range op.Tags {
			m.Edges = append(m.Edges, graph.Edge{
				FromKey:  graph.NodeKey(graph.KindEntity, tag),
				ToKey:    node.Key,
				EdgeType: graph.EdgeHasOperation,
			})
		}
	}

	return m
}
