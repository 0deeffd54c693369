package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onemcp/onemcp/pkg/graph"
	"github.com/onemcp/onemcp/pkg/graph/driver"
)

// seedGraph builds the single-operation sales graph plus a shared doc.
func seedGraph(t *testing.T) driver.Driver {
	t.Helper()
	ctx := context.Background()
	d := driver.NewMemoryDriver(driver.Config{Namespace: "onemcp_test"})
	require.NoError(t, d.Initialize(ctx))

	store := func(n graph.Node) {
		require.NoError(t, d.StoreNode(ctx, n))
	}
	edge := func(from, to, typ string) {
		res, err := d.StoreEdge(ctx, graph.Edge{FromKey: from, ToKey: to, EdgeType: typ})
		require.NoError(t, err)
		require.True(t, res.Stored)
	}

	store(graph.NewEntityNode(&graph.EntityNode{
		Name: "Sale", Description: "A sale record", ServiceSlug: "sales",
	}))
	store(graph.NewFieldNode(&graph.FieldNode{
		Name: "amount", FieldType: "number", OwningEntityKey: "entity|sale", ServiceSlug: "sales",
	}))
	store(graph.NewFieldNode(&graph.FieldNode{
		Name: "_rev", OwningEntityKey: "entity|sale",
	}))
	store(graph.NewOperationNode(&graph.OperationNode{
		OperationID: "listSales", Method: "GET", Path: "/sales",
		Summary: "List all sales", Category: "Retrieve", ServiceSlug: "sales",
	}))
	store(graph.NewOperationNode(&graph.OperationNode{
		OperationID: "createSale", Method: "POST", Path: "/sales",
		Summary: "Create a sale", Category: "Create", ServiceSlug: "sales",
	}))
	store(graph.NewExampleNode(&graph.ExampleNode{
		Name: "basic list", Description: "Fetch everything",
		ResponseBody: `{"sales":[]}`, ResponseStatus: "200",
		OwningOperationKey: "op|listsales", ServiceSlug: "sales",
	}))
	store(graph.NewDocumentationNode(&graph.DocumentationNode{
		Title: "Pricing rules", Content: "Discounts cap at 20%.", DocType: "concept",
	}))

	edge("entity|sale", "op|listsales", graph.EdgeHasOperation)
	edge("entity|sale", "op|createsale", graph.EdgeHasOperation)
	edge("entity|sale", "field|sale_amount", graph.EdgeHasField)
	edge("entity|sale", "field|sale__rev", graph.EdgeHasField)
	edge("op|listsales", "example|listsales_basic_list", graph.EdgeHasExample)
	edge("doc|pricing_rules", "op|listsales", graph.EdgeMentions)
	edge("doc|pricing_rules", "op|createsale", graph.EdgeMentions)

	return d
}

func testService(t *testing.T, d driver.Driver) *Service {
	s, err := New(d, nil, nil)
	require.NoError(t, err)
	return s
}

func itemTypes(items []Item) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.Type)
	}
	return out
}

func TestRetrieveUnknownEntityPreservesMetadata(t *testing.T) {
	s := testService(t, seedGraph(t))

	resp, err := s.Retrieve(context.Background(), Request{Context: []ContextItem{
		{Entity: "X", Operations: []string{}, Confidence: 0.4, Referral: "indirect"},
	}})
	require.NoError(t, err)

	require.Len(t, resp.Flattened, 1)
	g := resp.Flattened[0]
	assert.Equal(t, "X", g.Entity)
	assert.Equal(t, 0.4, g.Confidence)
	assert.Equal(t, "indirect", g.Referral)
	assert.Empty(t, g.Items)
	assert.Empty(t, resp.OperationOriented)
}

func TestRetrieveCategoryFilter(t *testing.T) {
	s := testService(t, seedGraph(t))

	resp, err := s.Retrieve(context.Background(), Request{Context: []ContextItem{
		{Entity: "Sale", Operations: []string{"Retrieve"}},
	}})
	require.NoError(t, err)

	require.Len(t, resp.OperationOriented, 1)
	group := resp.OperationOriented[0]
	assert.Equal(t, "GET /sales", group.Operation)

	require.NotEmpty(t, group.Items)
	sig := group.Items[0]
	assert.Equal(t, ItemSignature, sig.Type)
	assert.Equal(t, "GET /sales — List all sales", sig.Content)
	assert.Equal(t, "/sales", sig.Ref)
}

func TestRetrieveEmptyCategoryListMatchesAllOperations(t *testing.T) {
	s := testService(t, seedGraph(t))

	resp, err := s.Retrieve(context.Background(), Request{Context: []ContextItem{
		{Entity: "Sale"},
	}})
	require.NoError(t, err)
	assert.Len(t, resp.OperationOriented, 2,
		"one group per eligible operation")
}

func TestRetrieveFlattenedOrderAndInternalFieldStripping(t *testing.T) {
	s := testService(t, seedGraph(t))

	resp, err := s.Retrieve(context.Background(), Request{Context: []ContextItem{
		{Entity: "Sale", Operations: []string{"Retrieve"}},
	}})
	require.NoError(t, err)

	require.Len(t, resp.Flattened, 1)
	items := resp.Flattened[0].Items
	types := itemTypes(items)

	assert.Equal(t, ItemEntity, types[0])
	// Exactly one field survives; _rev is backend-internal.
	assert.Equal(t, 1, countType(types, ItemField))
	// Order: entity, then fields, then the operation's signature, example,
	// doc. No entity-level docs exist in the seed.
	assert.Equal(t, []string{ItemEntity, ItemField, ItemSignature, ItemExample, ItemDoc}, types)

	sig := items[2]
	assert.Equal(t, "/sales", sig.Ref)
	assert.Contains(t, items[3].Content, "**basic list**")
}

func TestRetrieveSharedDocAppearsOnce(t *testing.T) {
	s := testService(t, seedGraph(t))

	resp, err := s.Retrieve(context.Background(), Request{Context: []ContextItem{
		{Entity: "Sale"},
	}})
	require.NoError(t, err)

	docCount := 0
	for _, g := range resp.OperationOriented {
		for _, it := range g.Items {
			if it.Type == ItemDoc {
				docCount++
			}
		}
	}
	assert.Equal(t, 1, docCount, "a doc shared by two operations is returned once")

	// And it lands under the first-seen group.
	first := resp.OperationOriented[0]
	hasDoc := false
	for _, it := range first.Items {
		if it.Type == ItemDoc {
			hasDoc = true
			assert.Equal(t, "Discounts cap at 20%.", it.Content)
		}
	}
	assert.True(t, hasDoc)
}

func TestRetrieveEntityRef(t *testing.T) {
	s := testService(t, seedGraph(t))

	resp, err := s.Retrieve(context.Background(), Request{Context: []ContextItem{
		{Entity: "Sale", Operations: []string{"Retrieve"}},
	}})
	require.NoError(t, err)

	items := resp.Flattened[0].Items
	assert.Equal(t, "/sales/entities/Sale", items[0].Ref)

	var fieldRef string
	for _, it := range items {
		if it.Type == ItemField {
			fieldRef = it.Ref
		}
	}
	assert.Equal(t, "/entities/Sale/fields/amount", fieldRef)
}

func TestExampleContentRendering(t *testing.T) {
	full := exampleContent(&graph.ExampleNode{
		Name:         "basic",
		Description:  "Fetch everything",
		RequestBody:  `{"page":1}`,
		ResponseBody: `{"sales":[]}`,
	})
	assert.Equal(t, "**basic**\n\nFetch everything\n\n**Request:**\n```json\n{\"page\":1}\n```\n\n**Response:**\n```json\n{\"sales\":[]}\n```", full)

	// Blank sections are omitted.
	minimal := exampleContent(&graph.ExampleNode{Name: "bare"})
	assert.Equal(t, "**bare**", minimal)
}

func TestRetrieveMultipleEntitiesShareOperationGroups(t *testing.T) {
	d := seedGraph(t)
	ctx := context.Background()
	require.NoError(t, d.StoreNode(ctx, graph.NewEntityNode(&graph.EntityNode{
		Name: "Invoice", ServiceSlug: "sales",
	})))
	res, err := d.StoreEdge(ctx, graph.Edge{
		FromKey: "entity|invoice", ToKey: "op|listsales", EdgeType: graph.EdgeHasOperation,
	})
	require.NoError(t, err)
	require.True(t, res.Stored)

	s := testService(t, d)
	resp, err := s.Retrieve(ctx, Request{Context: []ContextItem{
		{Entity: "Sale", Operations: []string{"Retrieve"}},
		{Entity: "Invoice"},
	}})
	require.NoError(t, err)

	// Both entities reference GET /sales; the view has one group for it.
	assert.Len(t, resp.OperationOriented, 1)
	assert.Len(t, resp.Flattened, 2)
}

func countType(types []string, want string) int {
	n := 0
	for _, tp := range types {
		if tp == want {
			n++
		}
	}
	return n
}
