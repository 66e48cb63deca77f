// Package coordinator fans grid execution out across peers.
//
// Each peer runs its own scheduler over an identical graph and announces
// every local terminal transition as an Event stamped with a per-peer logical
// clock and a digest of its causal history. Merging a remote event applies it
// when it is causally after the local history, queues-and-applies it when it
// is concurrent but commutative, holds it while causal predecessors are
// missing, and surfaces ErrConflictDetected when two peers report
// contradictory terminal states for the same node. Conflicts are never
// resolved silently.
package coordinator
