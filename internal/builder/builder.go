// Package builder turns loaded grid definitions into live dependency graphs.
package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/taskgridgo/internal/config"
	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/graph"
	"github.com/vk/taskgridgo/internal/node"
	"github.com/vk/taskgridgo/internal/registry"
)

// Grid pairs a built graph with the name of its definition block.
type Grid struct {
	Name  string
	Graph *graph.Graph
}

// Build constructs a complete, validated dependency graph for every graph
// definition in the model. Handler parity for each referenced kind is checked
// against the registry up front.
func Build(ctx context.Context, model *config.Model, r *registry.Registry) ([]*Grid, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: starting graph construction.", "graphs", len(model.Graphs))

	grids := make([]*Grid, 0, len(model.Graphs))
	for _, def := range model.Graphs {
		g, err := buildOne(ctx, def, r)
		if err != nil {
			return nil, fmt.Errorf("graph '%s': %w", def.Name, err)
		}
		grids = append(grids, &Grid{Name: def.Name, Graph: g})
	}

	logger.Debug("Build: graph construction successful.")
	return grids, nil
}

func buildOne(ctx context.Context, def *config.GraphDef, r *registry.Registry) (*graph.Graph, error) {
	logger := ctxlog.FromContext(ctx)

	policy, err := graph.ParsePolicy(def.FailurePolicy)
	if err != nil {
		return nil, err
	}
	g := graph.New(policy)

	// First pass: create all nodes.
	now := time.Now()
	for _, nd := range def.Nodes {
		kind, err := node.ParseKind(nd.Kind)
		if err != nil {
			return nil, err
		}
		if _, err := r.Lookup(kind); err != nil {
			return nil, err
		}

		requiresAll := def.RequiresAllDefault
		if nd.RequiresAll != nil {
			requiresAll = *nd.RequiresAll
		}

		if err := g.AddNode(node.New(nd.ID(), kind, nd.Content, nd.Priority, requiresAll, now)); err != nil {
			return nil, err
		}
	}
	logger.Debug("Build: node creation complete.", "graph", def.Name, "node_count", len(def.Nodes))

	// Second pass: link dependencies. AddEdge rejects unknown endpoints and
	// anything that would close a cycle.
	for _, nd := range def.Nodes {
		for _, parent := range nd.DependsOn {
			if err := g.AddEdge(parent, nd.ID()); err != nil {
				return nil, fmt.Errorf("node '%s' depends_on '%s': %w", nd.ID(), parent, err)
			}
		}
	}
	logger.Debug("Build: node linking complete.", "graph", def.Name)

	return g, nil
}
