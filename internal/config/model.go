// Package config defines the format-agnostic model for grid definitions,
// along with the Loader interface implemented by format-specific packages.
//
// The config.Model is the single source of truth for the builder: it carries
// every graph a manifest declares, with node contents already converted to
// plain Go values. The HCL implementation lives in internal/hclload.
package config

import "context"

// Loader is the interface for a format-specific grid definition loader.
type Loader interface {
	// Load reads grid definitions from the given paths and translates them
	// into the format-agnostic model.
	Load(ctx context.Context, paths ...string) (*Model, error)
}

// Model is the unified representation of every grid definition the loader
// discovered.
type Model struct {
	Graphs []*GraphDef
}

// GraphDef is the format-agnostic representation of a `graph` block.
type GraphDef struct {
	Name string

	// FailurePolicy is "fail-fast" or "best-effort". Empty means fail-fast.
	FailurePolicy string

	// RequiresAllDefault is the fan-in rule for nodes that do not set
	// requires_all themselves.
	RequiresAllDefault bool

	Nodes []*NodeDef
}

// NodeDef is the format-agnostic representation of a `node` block. The node's
// identifier is "<kind>.<name>", which is also how depends_on entries refer
// to it.
type NodeDef struct {
	Kind        string
	Name        string
	Priority    int
	DependsOn   []string
	RequiresAll *bool
	Content     any
}

// ID returns the node's graph-wide identifier.
func (n *NodeDef) ID() string {
	return n.Kind + "." + n.Name
}
