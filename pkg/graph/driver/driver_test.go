package driver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onemcp/onemcp/pkg/graph"
)

// driverUnderTest builds a fresh initialized driver per invocation so both
// backends satisfy the same contract.
func driversUnderTest(t *testing.T) map[string]func(t *testing.T) Driver {
	return map[string]func(t *testing.T) Driver{
		"in-memory": func(t *testing.T) Driver {
			d := NewMemoryDriver(Config{Namespace: "onemcp_test"})
			require.NoError(t, d.Initialize(context.Background()))
			return d
		},
		"sqlite": func(t *testing.T) Driver {
			d, err := NewSQLiteDriver(Config{Namespace: "onemcp_test", Path: t.TempDir()})
			require.NoError(t, err)
			require.NoError(t, d.Initialize(context.Background()))
			return d
		},
	}
}

func storeTestGraph(t *testing.T, d Driver) {
	ctx := context.Background()

	require.NoError(t, d.StoreNode(ctx, graph.NewEntityNode(&graph.EntityNode{Name: "Sale", ServiceSlug: "sales"})))
	require.NoError(t, d.StoreNode(ctx, graph.NewOperationNode(&graph.OperationNode{
		OperationID: "listSales", Method: "GET", Path: "/sales", Summary: "List sales", Category: "Retrieve",
	})))
	require.NoError(t, d.StoreNode(ctx, graph.NewFieldNode(&graph.FieldNode{
		Name: "amount", OwningEntityKey: "entity|sale", FieldType: "number",
	})))

	res, err := d.StoreEdge(ctx, graph.Edge{FromKey: "entity|sale", ToKey: "op|listsales", EdgeType: graph.EdgeHasOperation})
	require.NoError(t, err)
	require.True(t, res.Stored)
	res, err = d.StoreEdge(ctx, graph.Edge{FromKey: "entity|sale", ToKey: "field|sale_amount", EdgeType: graph.EdgeHasField})
	require.NoError(t, err)
	require.True(t, res.Stored)
}

func TestDriverContract(t *testing.T) {
	for name, build := range driversUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("store and query", func(t *testing.T) {
				d := build(t)
				storeTestGraph(t, d)

				result, err := d.QueryByEntity(ctx, "entity|sale")
				require.NoError(t, err)
				require.NotNil(t, result.Node)
				assert.Equal(t, graph.KindEntity, result.Node.Kind)
				assert.Equal(t, "Sale", result.Node.Entity.Name)

				require.Len(t, result.Neighbors[graph.EdgeHasOperation], 1)
				assert.Equal(t, "op|listsales", result.Neighbors[graph.EdgeHasOperation][0].Key)
				require.Len(t, result.Neighbors[graph.EdgeHasField], 1)
			})

			t.Run("incoming edges are incident", func(t *testing.T) {
				d := build(t)
				storeTestGraph(t, d)

				result, err := d.QueryByEntity(ctx, "op|listsales")
				require.NoError(t, err)
				require.NotNil(t, result.Node)
				require.Len(t, result.Neighbors[graph.EdgeHasOperation], 1)
				assert.Equal(t, "entity|sale", result.Neighbors[graph.EdgeHasOperation][0].Key)
			})

			t.Run("missing endpoint is skipped not failed", func(t *testing.T) {
				d := build(t)
				storeTestGraph(t, d)

				res, err := d.StoreEdge(ctx, graph.Edge{
					FromKey: "entity|sale", ToKey: "op|doesnotexist", EdgeType: graph.EdgeHasOperation,
				})
				require.NoError(t, err)
				assert.False(t, res.Stored)
				assert.Equal(t, EdgeSkipReasonMissingEndpoint, res.SkipReason)
			})

			t.Run("node upsert replaces in full", func(t *testing.T) {
				d := build(t)
				storeTestGraph(t, d)

				require.NoError(t, d.StoreNode(ctx, graph.NewOperationNode(&graph.OperationNode{
					OperationID: "listSales", Method: "GET", Path: "/sales", Summary: "List sales", Category: "Compute",
				})))
				node, err := d.GetNode(ctx, "op|listsales")
				require.NoError(t, err)
				require.NotNil(t, node)
				assert.Equal(t, "Compute", node.Operation.Category)
			})

			t.Run("edge upsert dedups by triple", func(t *testing.T) {
				d := build(t)
				storeTestGraph(t, d)

				res, err := d.StoreEdge(ctx, graph.Edge{
					FromKey: "entity|sale", ToKey: "op|listsales", EdgeType: graph.EdgeHasOperation,
				})
				require.NoError(t, err)
				assert.True(t, res.Stored)

				result, err := d.QueryByEntity(ctx, "entity|sale")
				require.NoError(t, err)
				assert.Len(t, result.Neighbors[graph.EdgeHasOperation], 1)
			})

			t.Run("clear all empties the namespace", func(t *testing.T) {
				d := build(t)
				storeTestGraph(t, d)
				require.NoError(t, d.EnsureGraphExists(ctx))

				require.NoError(t, d.ClearAll(ctx))
				node, err := d.GetNode(ctx, "entity|sale")
				require.NoError(t, err)
				assert.Nil(t, node)

				// Namespace stays usable after clear.
				require.NoError(t, d.EnsureGraphExists(ctx))
				storeTestGraph(t, d)
			})

			t.Run("query unknown key returns empty result", func(t *testing.T) {
				d := build(t)
				result, err := d.QueryByEntity(ctx, "entity|ghost")
				require.NoError(t, err)
				assert.Nil(t, result.Node)
				assert.Empty(t, result.Neighbors)
			})

			t.Run("shutdown makes further calls fail", func(t *testing.T) {
				d := build(t)
				require.NoError(t, d.Shutdown(ctx))
				assert.False(t, d.IsInitialized())

				err := d.StoreNode(ctx, graph.NewEntityNode(&graph.EntityNode{Name: "X"}))
				assert.ErrorIs(t, err, ErrNotInitialized)
				_, err = d.QueryByEntity(ctx, "entity|x")
				assert.ErrorIs(t, err, ErrNotInitialized)
			})
		})
	}
}

func TestNamespace(t *testing.T) {
	assert.Equal(t, "onemcp_my_handbook", Namespace("My Handbook"))
	assert.Equal(t, "onemcp_sales-api", Namespace("sales-api"))
}

func TestNewResolvesRegisteredDrivers(t *testing.T) {
	d, err := New("in-memory", Config{Namespace: "onemcp_x"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryDriver{}, d)

	_, err = New("neo4j", Config{Namespace: "onemcp_x"})
	assert.Error(t, err)
}
