// Package node defines the data model for a single unit of work in the
// dependency graph: its identity, kind, lifecycle status, priority, and
// terminal payload. Node records are owned exclusively by the graph arena;
// everything outside the graph works with immutable Snapshot values.
package node
