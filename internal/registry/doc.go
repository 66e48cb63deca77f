// Package registry maps task kinds to the Go handlers that execute them.
//
// The Registry stores the binding between the string kind identifiers used in
// grid manifests (e.g. "task", "research") and the compiled Go functions that
// implement them. It is populated during application startup and then
// validated so that every kind a graph can reference has a handler before the
// first node is dispatched.
package registry
