// Package executor drains the scheduler with a pool of concurrent workers.
//
// Each worker repeatedly leases the highest-priority ready node, resolves the
// Go handler for its kind through the registry, runs it under the lease
// context, and reports the outcome back to the scheduler. The pool exits when
// the grid is drained or no further progress is possible.
package executor
