// Package fibheap implements a mergeable min-heap with O(1) amortized insert
// and decrease-key, used by the scheduler to pick the next ready node.
//
// # Why a Fibonacci heap
//
// The scheduler reprioritizes queued nodes while they wait (agent steps bump
// the urgency of pending subtasks), so decrease-key is on the hot path. A
// binary heap pays O(log n) per decrease-key and cannot merge two queues in
// constant time; the Fibonacci structure gives O(1) amortized for both by
// deferring all restructuring to ExtractMin.
//
// # Determinism
//
// Entries with equal keys are returned in insertion order (FIFO). Every entry
// carries a monotonic sequence number assigned at Insert time, and all key
// comparisons fall back to it, so scheduling decisions are reproducible in
// tests.
package fibheap
