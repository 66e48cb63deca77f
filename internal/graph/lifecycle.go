package graph

import (
	"fmt"
	"time"

	"github.com/vk/taskgridgo/internal/node"
)

// transition moves a node to a new status, stamps it, and fires the hook.
// Caller holds the write lock and has already validated the move.
func (g *Graph) transition(n *node.Node, to node.Status, at time.Time) {
	from := n.Status
	n.Status = to
	n.UpdatedAt = at
	if to.IsTerminal() {
		n.CompletedAt = at
	}
	if g.hook != nil {
		g.hook(n.ID, from, to, at)
	}
}

// satisfied reports whether the node's fan-in rule currently holds. Caller
// holds the lock.
func (g *Graph) satisfied(n *node.Node) bool {
	if len(n.Parents) == 0 {
		return true
	}
	if n.RequiresAllParents {
		for pid := range n.Parents {
			if g.nodes[pid].Status != node.Completed {
				return false
			}
		}
		return true
	}
	for pid := range n.Parents {
		if g.nodes[pid].Status == node.Completed {
			return true
		}
	}
	return false
}

// IsReady reports whether the node is Pending with its fan-in rule satisfied.
func (g *Graph) IsReady(id string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return n.Status == node.Pending && g.satisfied(n), nil
}

// PromoteReady flips every Pending node whose fan-in rule holds into Ready
// and returns their ids in lexical order. The scheduler uses this to seed its
// queue when a graph (or a mid-flight extension) is submitted.
func (g *Graph) PromoteReady() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	var ready []string
	for _, id := range g.sortedIDs() {
		n := g.nodes[id]
		if n.Status == node.Pending && g.satisfied(n) {
			g.transition(n, node.Ready, now)
			ready = append(ready, id)
		}
	}
	return ready
}

// MarkRunning transitions a node from Ready to Running.
func (g *Graph) MarkRunning(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	if n.Status != node.Ready {
		return fmt.Errorf("%w: %s is %s, want ready", ErrInvalidTransition, id, n.Status)
	}
	g.transition(n, node.Running, time.Now())
	return nil
}

// MarkCompleted transitions a Running node to Completed, records the result,
// and re-evaluates only the node's direct children. It returns the ids of
// children that newly became Ready, in lexical order; the scheduler pushes
// exactly this set into its queue.
func (g *Graph) MarkCompleted(id string, result any) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	if n.Status != node.Running {
		return nil, fmt.Errorf("%w: %s is %s, want running", ErrInvalidTransition, id, n.Status)
	}

	now := time.Now()
	n.Result = result
	g.transition(n, node.Completed, now)

	var readied []string
	for _, cid := range sortedSet(n.Children) {
		child := g.nodes[cid]
		if child.Status == node.Pending && g.satisfied(child) {
			g.transition(child, node.Ready, now)
			readied = append(readied, cid)
		}
	}
	return readied, nil
}

// FailureOutcome reports the downstream effect of a failure.
type FailureOutcome struct {
	// Blocked lists descendants moved to Blocked (fail-fast only). Any of
	// them that were Ready must be removed from the scheduler's queue.
	Blocked []string
}

// MarkFailed transitions a Running node to Failed, records the error, and
// applies the configured failure policy to its descendants.
func (g *Graph) MarkFailed(id string, nodeErr error) (FailureOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return FailureOutcome{}, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	if n.Status != node.Running {
		return FailureOutcome{}, fmt.Errorf("%w: %s is %s, want running", ErrInvalidTransition, id, n.Status)
	}

	now := time.Now()
	n.Err = nodeErr
	g.transition(n, node.Failed, now)

	if g.policy != FailFast {
		// Best-effort: the failed parent simply never satisfies anyone;
		// any-parent children may proceed via other parents.
		return FailureOutcome{}, nil
	}
	return FailureOutcome{Blocked: g.blockDescendants(n, now)}, nil
}

// blockDescendants walks every strict descendant of the failed node and moves
// those still Pending or Ready into Blocked, recording the responsible
// ancestor. Running descendants finish and report normally. Caller holds the
// write lock.
func (g *Graph) blockDescendants(failed *node.Node, now time.Time) []string {
	var blocked []string
	seen := map[string]struct{}{failed.ID: {}}
	queue := sortedSet(failed.Children)
	for _, cid := range queue {
		seen[cid] = struct{}{}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n := g.nodes[cur]

		if n.Status == node.Pending || n.Status == node.Ready {
			n.BlockedBy = failed.ID
			g.transition(n, node.Blocked, now)
			blocked = append(blocked, cur)
		}

		for _, cid := range sortedSet(n.Children) {
			if _, ok := seen[cid]; !ok {
				seen[cid] = struct{}{}
				queue = append(queue, cid)
			}
		}
	}
	return blocked
}

// AdoptOutcome reports the queue-relevant fallout of adopting an external
// terminal outcome.
type AdoptOutcome struct {
	// Readied lists children that became Ready (adopted completion).
	Readied []string
	// Blocked lists descendants moved to Blocked (adopted fail-fast failure).
	Blocked []string
}

// Adopt applies a terminal outcome decided elsewhere, typically by a peer
// that executed the node. Unlike MarkCompleted/MarkFailed it accepts nodes in
// any non-terminal status, since the intermediate transitions happened on the
// reporting peer. Re-adopting the same terminal status is a no-op; a
// contradictory terminal status is rejected.
func (g *Graph) Adopt(id string, status node.Status, result any, nodeErr error) (AdoptOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if status != node.Completed && status != node.Failed {
		return AdoptOutcome{}, fmt.Errorf("%w: cannot adopt non-terminal status %s", ErrInvalidTransition, status)
	}
	n, ok := g.nodes[id]
	if !ok {
		return AdoptOutcome{}, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	if n.Status.IsTerminal() {
		if n.Status == status {
			return AdoptOutcome{}, nil
		}
		return AdoptOutcome{}, fmt.Errorf("%w: %s is %s, conflicting adoption of %s", ErrInvalidTransition, id, n.Status, status)
	}

	now := time.Now()
	if status == node.Completed {
		n.Result = result
		g.transition(n, node.Completed, now)

		var readied []string
		for _, cid := range sortedSet(n.Children) {
			child := g.nodes[cid]
			if child.Status == node.Pending && g.satisfied(child) {
				g.transition(child, node.Ready, now)
				readied = append(readied, cid)
			}
		}
		return AdoptOutcome{Readied: readied}, nil
	}

	n.Err = nodeErr
	g.transition(n, node.Failed, now)
	if g.policy != FailFast {
		return AdoptOutcome{}, nil
	}
	return AdoptOutcome{Blocked: g.blockDescendants(n, now)}, nil
}

// Adjacent reports whether a direct dependency edge connects the two nodes in
// either direction. Unknown ids are simply not adjacent.
func (g *Graph) Adjacent(a, b string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	na, ok := g.nodes[a]
	if !ok {
		return false
	}
	if _, ok := na.Children[b]; ok {
		return true
	}
	_, ok = na.Parents[b]
	return ok
}

// Unblock explicitly returns a Blocked node to Pending and re-evaluates it.
// It reports whether the node became Ready immediately (in which case the
// scheduler must queue it). Blocked is never left automatically.
func (g *Graph) Unblock(id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	if n.Status != node.Blocked {
		return false, fmt.Errorf("%w: %s is %s, want blocked", ErrInvalidTransition, id, n.Status)
	}

	now := time.Now()
	n.BlockedBy = ""
	g.transition(n, node.Pending, now)
	if g.satisfied(n) {
		g.transition(n, node.Ready, now)
		return true, nil
	}
	return false, nil
}

// SetPriority updates a node's stored priority and returns its current
// status so the scheduler can decide whether a queue update is needed.
func (g *Graph) SetPriority(id string, priority int) (node.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	n.Priority = priority
	n.UpdatedAt = time.Now()
	return n.Status, nil
}

// PriorityOf returns the node's stored priority.
func (g *Graph) PriorityOf(id string) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return n.Priority, nil
}

// ReadyIDs returns every Ready node id in lexical order.
func (g *Graph) ReadyIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for _, id := range g.sortedIDs() {
		if g.nodes[id].Status == node.Ready {
			out = append(out, id)
		}
	}
	return out
}

// BlockNonTerminal moves every Pending and Ready node into Blocked,
// recording the given cause. Used by whole-graph cancellation; Running nodes
// are failed separately through their cooperative cancel path.
func (g *Graph) BlockNonTerminal(cause string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	var blocked []string
	for _, id := range g.sortedIDs() {
		n := g.nodes[id]
		if n.Status == node.Pending || n.Status == node.Ready {
			n.BlockedBy = cause
			g.transition(n, node.Blocked, now)
			blocked = append(blocked, id)
		}
	}
	return blocked
}

// Stranded returns the non-terminal nodes that can never become ready, in
// lexical order: Blocked nodes, and Pending nodes whose fan-in rule is
// unsatisfiable because the parents it needs are failed or themselves
// stranded. Running and Ready nodes are never stranded.
func (g *Graph) Stranded() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stranded := make(map[string]struct{})
	for id, n := range g.nodes {
		if n.Status == node.Blocked {
			stranded[id] = struct{}{}
		}
	}

	// Strandedness propagates down the DAG; iterate to a fixpoint.
	for changed := true; changed; {
		changed = false
		for id, n := range g.nodes {
			if n.Status != node.Pending {
				continue
			}
			if _, done := stranded[id]; done {
				continue
			}
			if g.unsatisfiable(n, stranded) {
				stranded[id] = struct{}{}
				changed = true
			}
		}
	}
	return sortedSet(stranded)
}

// unsatisfiable reports whether the node's fan-in rule can never hold given
// the set of already-stranded ids. Caller holds the lock.
func (g *Graph) unsatisfiable(n *node.Node, stranded map[string]struct{}) bool {
	dead := func(pid string) bool {
		if _, s := stranded[pid]; s {
			return true
		}
		return g.nodes[pid].Status == node.Failed
	}
	if n.RequiresAllParents {
		for pid := range n.Parents {
			if dead(pid) {
				return true
			}
		}
		return false
	}
	if len(n.Parents) == 0 {
		return false
	}
	for pid := range n.Parents {
		if !dead(pid) {
			return false
		}
	}
	return true
}

// Terminal reports whether every node is Completed or Failed.
func (g *Graph) Terminal() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, n := range g.nodes {
		if !n.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Quiescent reports whether no node is Ready or Running: nothing is in
// flight and nothing can be dispatched. Together with !Terminal it
// distinguishes "stalled awaiting external intervention" from "drained".
func (g *Graph) Quiescent() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, n := range g.nodes {
		if n.Status == node.Ready || n.Status == node.Running {
			return false
		}
	}
	return true
}

// BlockedReport maps every Blocked node to the failed ancestor responsible,
// for the caller-facing partial-results report.
func (g *Graph) BlockedReport() map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]string)
	for id, n := range g.nodes {
		if n.Status == node.Blocked {
			out[id] = n.BlockedBy
		}
	}
	return out
}
