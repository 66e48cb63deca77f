package builder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgridgo/internal/config"
	"github.com/vk/taskgridgo/internal/graph"
	"github.com/vk/taskgridgo/internal/node"
	"github.com/vk/taskgridgo/internal/registry"
)

func fullRegistry() *registry.Registry {
	r := registry.New()
	for kind := range node.Kinds {
		r.RegisterHandler(kind, &registry.RegisteredHandler{
			Fn: func(context.Context, registry.Invocation) (any, error) { return nil, nil },
		})
	}
	return r
}

func boolPtr(b bool) *bool { return &b }

func TestBuildWiresGraph(t *testing.T) {
	model := &config.Model{Graphs: []*config.GraphDef{{
		Name:               "session",
		FailurePolicy:      "best-effort",
		RequiresAllDefault: true,
		Nodes: []*config.NodeDef{
			{Kind: "question", Name: "root", Priority: 1, Content: "q"},
			{Kind: "task", Name: "fetch", Priority: 5, DependsOn: []string{"question.root"}, RequiresAll: boolPtr(false)},
			{Kind: "answer", Name: "final", Priority: 9, DependsOn: []string{"task.fetch"}},
		},
	}}}

	grids, err := Build(context.Background(), model, fullRegistry())
	require.NoError(t, err)
	require.Len(t, grids, 1)
	g := grids[0].Graph

	assert.Equal(t, graph.BestEffort, g.Policy())

	snap, err := g.Snapshot("task.fetch")
	require.NoError(t, err)
	assert.Equal(t, node.KindTask, snap.Kind)
	assert.Equal(t, 5, snap.Priority)
	assert.False(t, snap.RequiresAllParents)
	assert.Equal(t, []string{"question.root"}, snap.Parents)
	assert.Equal(t, []string{"answer.final"}, snap.Children)

	// The default fan-in rule applies when a node does not choose.
	snap, err = g.Snapshot("answer.final")
	require.NoError(t, err)
	assert.True(t, snap.RequiresAllParents)

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"question.root", "task.fetch", "answer.final"}, order)
}

func TestBuildRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown dependency", func(t *testing.T) {
		model := &config.Model{Graphs: []*config.GraphDef{{
			Name:  "g",
			Nodes: []*config.NodeDef{{Kind: "task", Name: "a", DependsOn: []string{"task.ghost"}}},
		}}}
		_, err := Build(ctx, model, fullRegistry())
		assert.ErrorIs(t, err, graph.ErrUnknownNode)
	})

	t.Run("cycle", func(t *testing.T) {
		model := &config.Model{Graphs: []*config.GraphDef{{
			Name: "g",
			Nodes: []*config.NodeDef{
				{Kind: "task", Name: "a", DependsOn: []string{"task.b"}},
				{Kind: "task", Name: "b", DependsOn: []string{"task.a"}},
			},
		}}}
		_, err := Build(ctx, model, fullRegistry())
		assert.ErrorIs(t, err, graph.ErrCycleDetected)
	})

	t.Run("kind without handler", func(t *testing.T) {
		model := &config.Model{Graphs: []*config.GraphDef{{
			Name:  "g",
			Nodes: []*config.NodeDef{{Kind: "task", Name: "a"}},
		}}}
		_, err := Build(ctx, model, registry.New())
		assert.ErrorContains(t, err, "no handler registered")
	})
}
