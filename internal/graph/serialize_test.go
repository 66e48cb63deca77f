package graph

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgridgo/internal/node"
)

// buildMixedGraph produces five nodes in assorted statuses:
// root (completed) -> left (failed), root -> right (running),
// right -> leaf (pending), orphan (ready).
func buildMixedGraph(t *testing.T) *Graph {
	t.Helper()
	g := New(BestEffort)

	now := time.Now()
	require.NoError(t, g.AddNode(node.New("root", node.KindQuestion, "why", 1, true, now)))
	require.NoError(t, g.AddNode(node.New("left", node.KindResearch, map[string]any{"q": "a"}, 2, true, now)))
	require.NoError(t, g.AddNode(node.New("right", node.KindAnalysis, nil, 3, false, now)))
	require.NoError(t, g.AddNode(node.New("leaf", node.KindSynthesis, nil, 4, true, now)))
	require.NoError(t, g.AddNode(node.New("orphan", node.KindTask, nil, 5, true, now)))
	require.NoError(t, g.AddEdge("root", "left"))
	require.NoError(t, g.AddEdge("root", "right"))
	require.NoError(t, g.AddEdge("right", "leaf"))

	g.PromoteReady()
	require.NoError(t, g.MarkRunning("root"))
	_, err := g.MarkCompleted("root", "because")
	require.NoError(t, err)
	require.NoError(t, g.MarkRunning("left"))
	_, err = g.MarkFailed("left", assert.AnError)
	require.NoError(t, err)
	require.NoError(t, g.MarkRunning("right"))
	return g
}

func TestRoundTrip(t *testing.T) {
	g := buildMixedGraph(t)

	data, err := json.Marshal(g)
	require.NoError(t, err)

	loaded, err := LoadJSON(data)
	require.NoError(t, err)

	// A second marshal of the loaded graph must reproduce the document
	// exactly: structure, statuses, payloads, and timestamps.
	again, err := json.Marshal(loaded)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))

	// Statuses and edges survive structurally, not just textually.
	want := g.AllSnapshots()
	got := loaded.AllSnapshots()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Status, got[i].Status)
		assert.Empty(t, cmp.Diff(want[i].Parents, got[i].Parents))
		assert.Empty(t, cmp.Diff(want[i].Children, got[i].Children))
		assert.Equal(t, want[i].Priority, got[i].Priority)
	}

	snap, err := loaded.Snapshot("left")
	require.NoError(t, err)
	assert.Equal(t, node.Failed, snap.Status)
	require.Error(t, snap.Err)
	assert.Equal(t, assert.AnError.Error(), snap.Err.Error())
}

func TestLoadValidation(t *testing.T) {
	base := buildMixedGraph(t).Export()

	t.Run("dangling parent reference", func(t *testing.T) {
		doc := *base
		doc.Nodes = append([]Record(nil), base.Nodes...)
		doc.Nodes[0].ParentIDs = []string{"ghost"}
		_, err := Load(&doc)
		assert.ErrorIs(t, err, ErrUnknownNode)
	})

	t.Run("duplicate id", func(t *testing.T) {
		doc := *base
		doc.Nodes = append(append([]Record(nil), base.Nodes...), base.Nodes[0])
		_, err := Load(&doc)
		assert.ErrorIs(t, err, ErrDuplicateID)
	})

	t.Run("cycle in edges", func(t *testing.T) {
		doc := Document{Policy: "fail-fast", Nodes: []Record{
			{ID: "a", Kind: "task", Status: "pending", ParentIDs: []string{"b"}, ChildIDs: []string{"b"}},
			{ID: "b", Kind: "task", Status: "pending", ParentIDs: []string{"a"}, ChildIDs: []string{"a"}},
		}}
		_, err := Load(&doc)
		assert.ErrorIs(t, err, ErrCycleDetected)
	})

	t.Run("failed node with result", func(t *testing.T) {
		doc := Document{Policy: "fail-fast", Nodes: []Record{
			{ID: "a", Kind: "task", Status: "failed", Result: "oops"},
		}}
		_, err := Load(&doc)
		assert.ErrorContains(t, err, "carries a result")
	})

	t.Run("legacy status aliases still load", func(t *testing.T) {
		doc := Document{Policy: "fail-fast", Nodes: []Record{
			{ID: "a", Kind: "task", Status: "completed_success"},
			{ID: "b", Kind: "task", Status: "in_progress", ParentIDs: []string{"a"}},
		}}
		g, err := Load(&doc)
		require.NoError(t, err)

		snapA, _ := g.Snapshot("a")
		snapB, _ := g.Snapshot("b")
		assert.Equal(t, node.Completed, snapA.Status)
		assert.Equal(t, node.Running, snapB.Status)
	})
}
