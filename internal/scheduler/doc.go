// Package scheduler composes the priority queue with the dependency graph
// and keeps them consistent: a node is present in the queue exactly when its
// graph status is Ready.
//
// All queue mutations and graph transitions happen inside one short critical
// section guarded by a single mutex; node execution happens outside any lock,
// so long-running work never delays scheduling decisions. Next suspends on a
// condition variable while the queue is empty but work is still in flight.
// An empty queue with a non-terminal graph and nothing running is a stall
// (awaiting external intervention such as an Unblock), reported as
// ErrStalled rather than treated as an error in the scheduling logic itself.
package scheduler
