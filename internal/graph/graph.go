package graph

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vk/taskgridgo/internal/node"
)

// Policy selects how a node failure affects its descendants.
type Policy int

const (
	// FailFast transitions every strict descendant still in Pending or Ready
	// into Blocked, recording the failed ancestor responsible.
	FailFast Policy = iota
	// BestEffort leaves descendants Pending; nodes with an any-parent fan-in
	// can still proceed via their other parents.
	BestEffort
)

func (p Policy) String() string {
	if p == BestEffort {
		return "best-effort"
	}
	return "fail-fast"
}

// ParsePolicy reads a policy name from configuration.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "fail-fast":
		return FailFast, nil
	case "best-effort":
		return BestEffort, nil
	}
	return 0, fmt.Errorf("unknown failure policy %q", name)
}

// TransitionHook observes lifecycle transitions. It is invoked inside the
// graph's critical section and must not call back into the graph; forwarding
// to a channel or logger is the intended use.
type TransitionHook func(id string, from, to node.Status, at time.Time)

// Graph is the arena that exclusively owns all node records and their edges.
// All operations are concurrency-safe.
type Graph struct {
	mu     sync.RWMutex
	nodes  map[string]*node.Node
	policy Policy
	hook   TransitionHook
}

// New creates an empty graph with the given failure policy.
func New(policy Policy) *Graph {
	return &Graph{
		nodes:  make(map[string]*node.Node),
		policy: policy,
	}
}

// Policy returns the configured failure policy.
func (g *Graph) Policy() Policy { return g.policy }

// SetTransitionHook installs the lifecycle event observer. Call before the
// graph is shared between goroutines.
func (g *Graph) SetTransitionHook(hook TransitionHook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hook = hook
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// AddNode places a node into the arena. Fails with ErrDuplicateID when the
// id collides; the node is not modified in that case.
func (g *Graph) AddNode(n *node.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[n.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, n.ID)
	}
	g.nodes[n.ID] = n
	return nil
}

// AddEdge records that childID depends on parentID. The child must still be
// Pending; edges to an already-released node would invalidate its readiness.
// The insertion is all-or-nothing: on any error the graph is unchanged.
func (g *Graph) AddEdge(parentID, childID string) error {
	if parentID == childID {
		return fmt.Errorf("%w: self edge %s", ErrCycleDetected, parentID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	parent, ok := g.nodes[parentID]
	if !ok {
		return fmt.Errorf("%w: parent %s", ErrUnknownNode, parentID)
	}
	child, ok := g.nodes[childID]
	if !ok {
		return fmt.Errorf("%w: child %s", ErrUnknownNode, childID)
	}
	if child.Status != node.Pending {
		return fmt.Errorf("%w: cannot add dependency to %s node %s", ErrInvalidTransition, child.Status, childID)
	}
	// The new edge parent->child closes a cycle iff parent is already
	// reachable from child by following child links.
	if g.reachable(childID, parentID) {
		return fmt.Errorf("%w: %s -> %s", ErrCycleDetected, parentID, childID)
	}

	child.Parents[parentID] = struct{}{}
	parent.Children[childID] = struct{}{}
	return nil
}

// RemoveEdge deletes the dependency of childID on parentID.
func (g *Graph) RemoveEdge(parentID, childID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	parent, ok := g.nodes[parentID]
	if !ok {
		return fmt.Errorf("%w: parent %s", ErrUnknownNode, parentID)
	}
	child, ok := g.nodes[childID]
	if !ok {
		return fmt.Errorf("%w: child %s", ErrUnknownNode, childID)
	}

	delete(child.Parents, parentID)
	delete(parent.Children, childID)
	return nil
}

// RemoveNode deletes a node from the arena. A node that other nodes still
// depend on is protected by ErrHasDependents; force detaches all edges first.
// Used by garbage collection of fully-synthesized subgraphs.
func (g *Graph) RemoveNode(id string, force bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	if len(n.Children) > 0 && !force {
		return fmt.Errorf("%w: %s has %d dependents", ErrHasDependents, id, len(n.Children))
	}

	for pid := range n.Parents {
		delete(g.nodes[pid].Children, id)
	}
	for cid := range n.Children {
		delete(g.nodes[cid].Parents, id)
	}
	delete(g.nodes, id)
	return nil
}

// reachable reports whether to is reachable from from by following child
// edges. Caller holds the lock.
func (g *Graph) reachable(from, to string) bool {
	seen := map[string]struct{}{from: {}}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		for cid := range g.nodes[cur].Children {
			if _, ok := seen[cid]; !ok {
				seen[cid] = struct{}{}
				stack = append(stack, cid)
			}
		}
	}
	return false
}

// Snapshot returns a detached copy of one node.
func (g *Graph) Snapshot(id string) (node.Snapshot, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return node.Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return n.Snapshot(), nil
}

// AllSnapshots returns detached copies of every node, sorted by id. Used by
// diagnostics so readers never block the scheduling hot path.
func (g *Graph) AllSnapshots() []node.Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]node.Snapshot, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// sortedIDs returns all node ids in lexical order. Caller holds the lock.
func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sortedSet returns a set's members in lexical order.
func sortedSet(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
