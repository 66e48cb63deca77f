// Package graph owns the dependency DAG and the per-node lifecycle state
// machine. All Node records live in an arena keyed by id; edges are adjacency
// sets of ids, never object references, so the structure is cycle-free at the
// reference level and acyclicity of the dependency relation is enforced on
// every edge insertion.
//
// The graph decides *when* a node becomes eligible to run: completing a node
// re-evaluates only that node's direct children (cost bounded by out-degree),
// and failing a node propagates per the configured policy. The scheduler
// decides *which* eligible node runs next.
//
// All operations are concurrency-safe behind a single RWMutex. Structural
// errors never partially mutate state.
package graph
