package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgridgo/internal/node"
)

func newTask(id string, priority int, requiresAll bool) *node.Node {
	return node.New(id, node.KindTask, nil, priority, requiresAll, time.Now())
}

// addChain builds a -> b -> c ... where each later node depends on the prior.
func addChain(t *testing.T, g *Graph, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, g.AddNode(newTask(id, 0, true)))
	}
	for i := 1; i < len(ids); i++ {
		require.NoError(t, g.AddEdge(ids[i-1], ids[i]))
	}
}

func TestAddNode(t *testing.T) {
	g := New(FailFast)

	require.NoError(t, g.AddNode(newTask("a", 0, true)))
	assert.Equal(t, 1, g.Len())

	err := g.AddNode(newTask("a", 5, false))
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.Equal(t, 1, g.Len())
}

func TestAddEdge(t *testing.T) {
	t.Run("links both directions", func(t *testing.T) {
		g := New(FailFast)
		addChain(t, g, "a", "b")

		snapA, err := g.Snapshot("a")
		require.NoError(t, err)
		snapB, err := g.Snapshot("b")
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, snapA.Children)
		assert.Equal(t, []string{"a"}, snapB.Parents)
	})

	t.Run("unknown endpoints", func(t *testing.T) {
		g := New(FailFast)
		require.NoError(t, g.AddNode(newTask("a", 0, true)))

		assert.ErrorIs(t, g.AddEdge("dne", "a"), ErrUnknownNode)
		assert.ErrorIs(t, g.AddEdge("a", "dne"), ErrUnknownNode)
	})

	t.Run("cycle is rejected and graph unchanged", func(t *testing.T) {
		g := New(FailFast)
		addChain(t, g, "a", "b", "c")

		err := g.AddEdge("c", "a")
		assert.ErrorIs(t, err, ErrCycleDetected)
		err = g.AddEdge("a", "a")
		assert.ErrorIs(t, err, ErrCycleDetected)

		// Rejection is idempotent: the failed insertions left no edges behind.
		snapA, _ := g.Snapshot("a")
		assert.Empty(t, snapA.Parents)
		order, err := g.TopologicalOrder()
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, order)
	})

	t.Run("edge into a released node is rejected", func(t *testing.T) {
		g := New(FailFast)
		addChain(t, g, "a")
		require.NoError(t, g.AddNode(newTask("b", 0, true)))
		g.PromoteReady() // a and b both become Ready

		assert.ErrorIs(t, g.AddEdge("a", "b"), ErrInvalidTransition)
	})
}

func TestRemoveNode(t *testing.T) {
	g := New(FailFast)
	addChain(t, g, "a", "b")

	err := g.RemoveNode("a", false)
	assert.ErrorIs(t, err, ErrHasDependents)

	require.NoError(t, g.RemoveNode("a", true))
	assert.Equal(t, 1, g.Len())
	snapB, _ := g.Snapshot("b")
	assert.Empty(t, snapB.Parents, "forced removal detaches edges")

	require.NoError(t, g.RemoveNode("b", false))
	assert.ErrorIs(t, g.RemoveNode("b", false), ErrUnknownNode)
}

func TestLifecycleTransitions(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		g := New(FailFast)
		addChain(t, g, "a")
		require.Equal(t, []string{"a"}, g.PromoteReady())

		require.NoError(t, g.MarkRunning("a"))
		readied, err := g.MarkCompleted("a", "done")
		require.NoError(t, err)
		assert.Empty(t, readied)

		snap, _ := g.Snapshot("a")
		assert.Equal(t, node.Completed, snap.Status)
		assert.Equal(t, "done", snap.Result)
		assert.False(t, snap.CompletedAt.IsZero())
	})

	t.Run("no resurrection and no skipping", func(t *testing.T) {
		g := New(FailFast)
		addChain(t, g, "a")

		// Pending -> Running skips Ready.
		assert.ErrorIs(t, g.MarkRunning("a"), ErrInvalidTransition)

		g.PromoteReady()
		// Ready -> Completed skips Running.
		_, err := g.MarkCompleted("a", nil)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		require.NoError(t, g.MarkRunning("a"))
		_, err = g.MarkCompleted("a", nil)
		require.NoError(t, err)

		// Terminal states are final.
		assert.ErrorIs(t, g.MarkRunning("a"), ErrInvalidTransition)
		_, err = g.MarkFailed("a", assert.AnError)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestReadinessFanIn(t *testing.T) {
	// Drive both parents to completion in the given order and return the
	// point (0, 1 or 2 completions) at which the child became ready.
	readyAfter := func(t *testing.T, requiresAll bool, order [2]string) int {
		g := New(FailFast)
		require.NoError(t, g.AddNode(newTask("p1", 0, true)))
		require.NoError(t, g.AddNode(newTask("p2", 0, true)))
		require.NoError(t, g.AddNode(newTask("child", 0, requiresAll)))
		require.NoError(t, g.AddEdge("p1", "child"))
		require.NoError(t, g.AddEdge("p2", "child"))
		g.PromoteReady()

		for i, pid := range order {
			require.NoError(t, g.MarkRunning(pid))
			readied, err := g.MarkCompleted(pid, nil)
			require.NoError(t, err)
			for _, id := range readied {
				if id == "child" {
					return i + 1
				}
			}
		}
		return 0
	}

	t.Run("requires all parents, both orders", func(t *testing.T) {
		assert.Equal(t, 2, readyAfter(t, true, [2]string{"p1", "p2"}))
		assert.Equal(t, 2, readyAfter(t, true, [2]string{"p2", "p1"}))
	})

	t.Run("any parent suffices", func(t *testing.T) {
		assert.Equal(t, 1, readyAfter(t, false, [2]string{"p1", "p2"}))
		assert.Equal(t, 1, readyAfter(t, false, [2]string{"p2", "p1"}))
	})
}

func TestFailurePropagation(t *testing.T) {
	// a -> b -> d, a -> c. Fail a while it runs.
	build := func(t *testing.T, policy Policy) *Graph {
		g := New(policy)
		addChain(t, g, "a", "b", "d")
		require.NoError(t, g.AddNode(newTask("c", 0, true)))
		require.NoError(t, g.AddEdge("a", "c"))
		g.PromoteReady()
		require.NoError(t, g.MarkRunning("a"))
		return g
	}

	t.Run("fail-fast blocks every strict descendant", func(t *testing.T) {
		g := build(t, FailFast)
		outcome, err := g.MarkFailed("a", assert.AnError)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"b", "c", "d"}, outcome.Blocked)

		report := g.BlockedReport()
		assert.Equal(t, map[string]string{"b": "a", "c": "a", "d": "a"}, report)

		assert.False(t, g.Terminal())
		assert.True(t, g.Quiescent(), "nothing can run anymore")
	})

	t.Run("best-effort leaves descendants pending", func(t *testing.T) {
		g := build(t, BestEffort)
		outcome, err := g.MarkFailed("a", assert.AnError)
		require.NoError(t, err)
		assert.Empty(t, outcome.Blocked)

		snap, _ := g.Snapshot("b")
		assert.Equal(t, node.Pending, snap.Status)
	})

	t.Run("stranded covers the unreachable subtree", func(t *testing.T) {
		g := build(t, FailFast)
		_, err := g.MarkFailed("a", assert.AnError)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c", "d"}, g.Stranded())

		g = build(t, BestEffort)
		_, err = g.MarkFailed("a", assert.AnError)
		require.NoError(t, err)
		// Nothing is Blocked here, but b, c and d still can never run.
		assert.Equal(t, []string{"b", "c", "d"}, g.Stranded())
	})

	t.Run("any-parent node is stranded only when all parents die", func(t *testing.T) {
		g := New(BestEffort)
		require.NoError(t, g.AddNode(newTask("bad", 0, true)))
		require.NoError(t, g.AddNode(newTask("good", 0, true)))
		require.NoError(t, g.AddNode(newTask("child", 0, false)))
		require.NoError(t, g.AddEdge("bad", "child"))
		require.NoError(t, g.AddEdge("good", "child"))
		g.PromoteReady()

		require.NoError(t, g.MarkRunning("bad"))
		_, err := g.MarkFailed("bad", assert.AnError)
		require.NoError(t, err)
		assert.Empty(t, g.Stranded(), "good can still release child")

		require.NoError(t, g.MarkRunning("good"))
		_, err = g.MarkFailed("good", assert.AnError)
		require.NoError(t, err)
		assert.Equal(t, []string{"child"}, g.Stranded())
	})

	t.Run("best-effort lets any-parent children proceed", func(t *testing.T) {
		g := New(BestEffort)
		require.NoError(t, g.AddNode(newTask("bad", 0, true)))
		require.NoError(t, g.AddNode(newTask("good", 0, true)))
		require.NoError(t, g.AddNode(newTask("child", 0, false)))
		require.NoError(t, g.AddEdge("bad", "child"))
		require.NoError(t, g.AddEdge("good", "child"))
		g.PromoteReady()

		require.NoError(t, g.MarkRunning("bad"))
		_, err := g.MarkFailed("bad", assert.AnError)
		require.NoError(t, err)

		require.NoError(t, g.MarkRunning("good"))
		readied, err := g.MarkCompleted("good", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"child"}, readied)
	})
}

func TestUnblock(t *testing.T) {
	g := New(FailFast)
	addChain(t, g, "a", "b")
	require.NoError(t, g.AddNode(newTask("free", 0, true)))
	require.NoError(t, g.AddEdge("free", "b"))
	g.PromoteReady()

	require.NoError(t, g.MarkRunning("a"))
	_, err := g.MarkFailed("a", assert.AnError)
	require.NoError(t, err)

	snap, _ := g.Snapshot("b")
	require.Equal(t, node.Blocked, snap.Status)

	// Still waiting on "free", so unblocking returns it to Pending only.
	readied, err := g.Unblock("b")
	require.NoError(t, err)
	assert.False(t, readied)
	snap, _ = g.Snapshot("b")
	assert.Equal(t, node.Pending, snap.Status)
	assert.Empty(t, snap.BlockedBy)

	// Unblock is explicit: a non-blocked node cannot be unblocked.
	_, err = g.Unblock("b")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTopologicalOrder(t *testing.T) {
	g := New(FailFast)
	addChain(t, g, "m", "z")
	require.NoError(t, g.AddNode(newTask("a", 0, true)))
	require.NoError(t, g.AddEdge("a", "z"))

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "m", "z"}, order)
}

func TestTransitionHook(t *testing.T) {
	g := New(FailFast)

	type event struct {
		id       string
		from, to node.Status
	}
	var events []event
	g.SetTransitionHook(func(id string, from, to node.Status, _ time.Time) {
		events = append(events, event{id, from, to})
	})

	addChain(t, g, "a")
	g.PromoteReady()
	require.NoError(t, g.MarkRunning("a"))
	_, err := g.MarkCompleted("a", nil)
	require.NoError(t, err)

	assert.Equal(t, []event{
		{"a", node.Pending, node.Ready},
		{"a", node.Ready, node.Running},
		{"a", node.Running, node.Completed},
	}, events)
}
