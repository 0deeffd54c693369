package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "Sale", "sale"},
		{"replaces spaces", "Pricing Rules", "pricing_rules"},
		{"keeps dash and underscore", "multi-word_name", "multi-word_name"},
		{"replaces punctuation", "a.b/c|d", "a_b_c_d"},
		{"trims", "  Sale  ", "sale"},
		{"unicode collapses", "café", "caf_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.input))
		})
	}
}

func TestNodeKey(t *testing.T) {
	assert.Equal(t, "entity|sale", NodeKey(KindEntity, "Sale"))
	assert.Equal(t, "op|listsales", NodeKey(KindOperation, "listSales"))
	assert.Equal(t, "doc|pricing_rules", NodeKey(KindDocumentation, "Pricing rules"))
}

func TestChildKey(t *testing.T) {
	assert.Equal(t, "field|sale_amount", ChildKey(KindField, "entity|sale", "amount"))
	assert.Equal(t, "example|listsales_basic", ChildKey(KindExample, "op|listsales", "Basic"))
	// Parent without a kind prefix is used as-is.
	assert.Equal(t, "field|sale_amount", ChildKey(KindField, "sale", "amount"))
}

func TestCanonicalID(t *testing.T) {
	assert.Equal(t, "entity_sale", CanonicalID("entity|sale"))
	assert.Equal(t, "entity_sale_to_op_listsales", CanonicalID("entity|sale<>op|listsales"))
}

func TestCanonicalIDIdempotent(t *testing.T) {
	keys := []string{"entity|sale", "entity|sale<>op|listsales", "already_canonical"}
	for _, k := range keys {
		once := CanonicalID(k)
		assert.Equal(t, once, CanonicalID(once), "canonicalizing twice must be a no-op for %q", k)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindEntity, KindOf("entity|sale"))
	assert.Equal(t, KindOperation, KindOf("op|listsales"))
	assert.Equal(t, NodeKind(""), KindOf("nokind"))
	assert.Equal(t, NodeKind(""), KindOf("bogus|x"))
}

func TestNewOperationNodeDefaultsSignature(t *testing.T) {
	n := NewOperationNode(&OperationNode{
		OperationID: "listSales",
		Method:      "get",
		Path:        "/sales",
		Summary:     "List all sales",
	})
	require.Equal(t, KindOperation, n.Kind)
	assert.Equal(t, "op|listsales", n.Key)
	assert.Equal(t, "GET /sales — List all sales", n.Operation.Signature)
}

func TestNewOperationNodeKeepsExplicitSignature(t *testing.T) {
	n := NewOperationNode(&OperationNode{
		OperationID: "listSales",
		Signature:   "custom",
	})
	assert.Equal(t, "custom", n.Operation.Signature)
}

func TestNodeValidate(t *testing.T) {
	valid := NewEntityNode(&EntityNode{Name: "Sale"})
	require.NoError(t, valid.Validate())

	blankDoc := NewDocumentationNode(&DocumentationNode{Title: "T", Content: "   "})
	assert.Error(t, blankDoc.Validate())

	noOwner := Node{Key: "field|x", Kind: KindField, Field: &FieldNode{Name: "x"}}
	assert.Error(t, noOwner.Validate())

	assert.Error(t, Node{Kind: KindEntity}.Validate())
}

func TestEdgeNormalize(t *testing.T) {
	e := Edge{FromKey: " entity|sale ", ToKey: "op|listsales", EdgeType: "has_operation"}
	require.NoError(t, e.Normalize())
	assert.Equal(t, "HAS_OPERATION", e.EdgeType)
	assert.Equal(t, "entity|sale", e.FromKey)
	assert.Equal(t, "entity|sale<>HAS_OPERATION<>op|listsales", e.Triple())

	empty := Edge{FromKey: "a", ToKey: "b"}
	assert.Error(t, empty.Normalize())
}
