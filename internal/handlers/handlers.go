// Package handlers provides the built-in kind handlers used when a grid is
// driven entirely from HCL manifests.
package handlers

import (
	"context"

	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/node"
	"github.com/vk/taskgridgo/internal/registry"
)

// Passthrough registers a handler for every kind in the closed set. Each
// handler logs the node and surfaces its manifest content as the result, so
// declarative grids run end to end without custom Go code.
type Passthrough struct{}

// Register implements registry.Module.
func (Passthrough) Register(r *registry.Registry) {
	for kind := range node.Kinds {
		r.RegisterHandler(kind, &registry.RegisteredHandler{
			Description: "built-in passthrough for kind '" + string(kind) + "'",
			Fn:          runPassthrough,
		})
	}
}

func runPassthrough(ctx context.Context, inv registry.Invocation) (any, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Node executed.", "node", inv.Node.ID, "kind", inv.Node.Kind)
	return inv.Node.Content, nil
}
