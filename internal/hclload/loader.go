// Package hclload is the HCL implementation of the config.Loader interface.
//
// A grid manifest looks like:
//
//	graph "session" {
//	  failure_policy       = "fail-fast"
//	  requires_all_default = true
//
//	  node "question" "root" {
//	    priority = 1
//	    content  = "What changed in the release?"
//	  }
//
//	  node "task" "fetch" {
//	    priority     = 5
//	    depends_on   = ["question.root"]
//	    requires_all = false
//	    content      = { url = "https://example.com/notes" }
//	  }
//	}
package hclload

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/taskgridgo/internal/config"
	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/fsutil"
	"github.com/vk/taskgridgo/internal/graph"
	"github.com/vk/taskgridgo/internal/node"
)

// Loader discovers and parses .hcl grid manifests.
type Loader struct{}

// NewLoader creates a new HCL grid definition loader.
func NewLoader() *Loader {
	return &Loader{}
}

// fileRoot decodes all top-level blocks from one file.
type fileRoot struct {
	Graphs []*graphBlock `hcl:"graph,block"`
	Remain hcl.Body      `hcl:",remain"`
}

type graphBlock struct {
	Name               string       `hcl:"name,label"`
	FailurePolicy      *string      `hcl:"failure_policy,optional"`
	RequiresAllDefault *bool        `hcl:"requires_all_default,optional"`
	Nodes              []*nodeBlock `hcl:"node,block"`
}

type nodeBlock struct {
	Kind        string         `hcl:"kind,label"`
	Name        string         `hcl:"name,label"`
	Priority    *int           `hcl:"priority,optional"`
	DependsOn   []string       `hcl:"depends_on,optional"`
	RequiresAll *bool          `hcl:"requires_all,optional"`
	Content     hcl.Expression `hcl:"content,optional"`
}

// Load orchestrates the entire HCL loading process. It is agnostic to the
// origin of the paths and merges graph blocks from every discovered file.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.FindFilesByExtension(paths, ".hcl")
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	model := &config.Model{}
	seen := make(map[string]string)
	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, block := range root.Graphs {
			if prev, dup := seen[block.Name]; dup {
				return nil, fmt.Errorf("graph '%s' in %s already defined in %s", block.Name, file, prev)
			}
			seen[block.Name] = file

			def, err := l.translateGraph(block)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			model.Graphs = append(model.Graphs, def)
		}
	}

	logger.Debug("HCL loading complete.", "graphs", len(model.Graphs))
	return model, nil
}

// translateGraph converts one decoded graph block into the model form,
// validating labels and evaluating node contents.
func (l *Loader) translateGraph(block *graphBlock) (*config.GraphDef, error) {
	def := &config.GraphDef{
		Name:               block.Name,
		RequiresAllDefault: true,
	}

	if block.FailurePolicy != nil {
		if _, err := graph.ParsePolicy(*block.FailurePolicy); err != nil {
			return nil, fmt.Errorf("graph '%s': %w", block.Name, err)
		}
		def.FailurePolicy = *block.FailurePolicy
	}
	if block.RequiresAllDefault != nil {
		def.RequiresAllDefault = *block.RequiresAllDefault
	}

	ids := make(map[string]struct{})
	for _, nb := range block.Nodes {
		nd, err := l.translateNode(nb)
		if err != nil {
			return nil, fmt.Errorf("graph '%s': %w", block.Name, err)
		}
		if _, dup := ids[nd.ID()]; dup {
			return nil, fmt.Errorf("graph '%s': node '%s' defined twice", block.Name, nd.ID())
		}
		ids[nd.ID()] = struct{}{}
		def.Nodes = append(def.Nodes, nd)
	}
	return def, nil
}

func (l *Loader) translateNode(block *nodeBlock) (*config.NodeDef, error) {
	if _, err := node.ParseKind(block.Kind); err != nil {
		return nil, fmt.Errorf("node '%s.%s': %w", block.Kind, block.Name, err)
	}

	nd := &config.NodeDef{
		Kind:        block.Kind,
		Name:        block.Name,
		DependsOn:   block.DependsOn,
		RequiresAll: block.RequiresAll,
	}
	if block.Priority != nil {
		nd.Priority = *block.Priority
	}

	if isExprDefined(block.Content) {
		val, diags := block.Content.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("node '%s': failed to evaluate content: %w", nd.ID(), diags)
		}
		content, err := ctyValueToInterface(val)
		if err != nil {
			return nil, fmt.Errorf("node '%s': %w", nd.ID(), err)
		}
		nd.Content = content
	}
	return nd, nil
}

// isExprDefined checks whether an HCL expression was actually present in the
// source. The decoder populates omitted optional attributes with non-nil,
// zero-width expression objects, so a nil check alone is insufficient.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	return r.End.Byte > r.Start.Byte
}
