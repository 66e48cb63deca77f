package graph

import "errors"

var (
	// ErrDuplicateID is returned by AddNode when the id is already taken.
	ErrDuplicateID = errors.New("graph: duplicate node id")
	// ErrUnknownNode is returned when an id does not name a node.
	ErrUnknownNode = errors.New("graph: unknown node")
	// ErrCycleDetected is returned by AddEdge when the edge would close a
	// dependency cycle. The graph is left unchanged.
	ErrCycleDetected = errors.New("graph: edge would create a cycle")
	// ErrInvalidTransition is returned when a lifecycle transition is not
	// allowed from the node's current status.
	ErrInvalidTransition = errors.New("graph: invalid status transition")
	// ErrHasDependents is returned by RemoveNode when live children still
	// reference the node and force was not set.
	ErrHasDependents = errors.New("graph: node still has dependents")
)
