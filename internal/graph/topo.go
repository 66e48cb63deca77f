package graph

import "fmt"

// TopologicalOrder returns every node id in dependency order (parents before
// children) using Kahn's algorithm, breaking ties lexically so the output is
// deterministic. It is a diagnostic/serialization helper, not part of the
// execution hot path. An error here means the arena was corrupted, since
// AddEdge rejects cycles.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	indegree := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		indegree[id] = len(n.Parents)
	}

	var queue []string
	for _, id := range g.sortedIDs() {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)

		for _, cid := range sortedSet(g.nodes[cur].Children) {
			indegree[cid]--
			if indegree[cid] == 0 {
				queue = append(queue, cid)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("%w: %d of %d nodes unreachable in topological sort", ErrCycleDetected, len(g.nodes)-len(order), len(g.nodes))
	}
	return order, nil
}
