package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vk/taskgridgo/internal/node"
)

// Record is the flat serialized form of a node: all data-model fields plus
// explicit id lists for both edge directions, so a document round-trips
// without dangling references.
type Record struct {
	ID                 string    `json:"id"`
	Kind               string    `json:"kind"`
	Content            any       `json:"content,omitempty"`
	Status             string    `json:"status"`
	Priority           int       `json:"priority"`
	RequiresAllParents bool      `json:"requires_all_parents"`
	ParentIDs          []string  `json:"parent_ids"`
	ChildIDs           []string  `json:"child_ids"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	CompletedAt        time.Time `json:"completed_at,omitzero"`
	Result             any       `json:"result,omitempty"`
	Error              string    `json:"error,omitempty"`
	BlockedBy          string    `json:"blocked_by,omitempty"`
}

// Document is a serialized graph.
type Document struct {
	Policy string   `json:"failure_policy"`
	Nodes  []Record `json:"nodes"`
}

// Export snapshots the graph into a Document, nodes sorted by id.
func (g *Graph) Export() *Document {
	snaps := g.AllSnapshots()
	doc := &Document{Policy: g.policy.String(), Nodes: make([]Record, 0, len(snaps))}
	for _, s := range snaps {
		rec := Record{
			ID:                 s.ID,
			Kind:               string(s.Kind),
			Content:            s.Content,
			Status:             s.Status.String(),
			Priority:           s.Priority,
			RequiresAllParents: s.RequiresAllParents,
			ParentIDs:          s.Parents,
			ChildIDs:           s.Children,
			CreatedAt:          s.CreatedAt,
			UpdatedAt:          s.UpdatedAt,
			CompletedAt:        s.CompletedAt,
			Result:             s.Result,
			BlockedBy:          s.BlockedBy,
		}
		if s.Err != nil {
			rec.Error = s.Err.Error()
		}
		doc.Nodes = append(doc.Nodes, rec)
	}
	return doc
}

// MarshalJSON serializes the graph as its Document form.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Export())
}

// Load reconstructs a graph from a Document. The document is fully validated
// before any state is accepted: unique ids, resolvable edge endpoints,
// acyclicity, and result/error consistency with the recorded status.
func Load(doc *Document) (*Graph, error) {
	policy, err := ParsePolicy(doc.Policy)
	if err != nil {
		return nil, err
	}
	g := New(policy)

	for _, rec := range doc.Nodes {
		status, err := node.ParseStatus(rec.Status)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", rec.ID, err)
		}
		kind, err := node.ParseKind(rec.Kind)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", rec.ID, err)
		}
		if status == node.Completed && rec.Error != "" {
			return nil, fmt.Errorf("node %s: completed node carries an error", rec.ID)
		}
		if status == node.Failed && rec.Result != nil {
			return nil, fmt.Errorf("node %s: failed node carries a result", rec.ID)
		}

		n := node.New(rec.ID, kind, rec.Content, rec.Priority, rec.RequiresAllParents, rec.CreatedAt)
		n.Status = status
		n.UpdatedAt = rec.UpdatedAt
		n.CompletedAt = rec.CompletedAt
		n.Result = rec.Result
		n.BlockedBy = rec.BlockedBy
		if rec.Error != "" {
			n.Err = errors.New(rec.Error)
		}
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}

	// Edges are rebuilt from parent lists; AddEdge would reject edges into
	// non-Pending nodes, so link the arena directly and validate acyclicity
	// with a full topological pass afterwards.
	g.mu.Lock()
	for _, rec := range doc.Nodes {
		child := g.nodes[rec.ID]
		for _, pid := range rec.ParentIDs {
			parent, ok := g.nodes[pid]
			if !ok {
				g.mu.Unlock()
				return nil, fmt.Errorf("%w: node %s references parent %s", ErrUnknownNode, rec.ID, pid)
			}
			child.Parents[pid] = struct{}{}
			parent.Children[rec.ID] = struct{}{}
		}
	}
	g.mu.Unlock()

	// Cross-check declared children against the rebuilt adjacency.
	for _, rec := range doc.Nodes {
		snap, _ := g.Snapshot(rec.ID)
		if len(snap.Children) != countDeclaredChildren(doc, rec.ID) {
			return nil, fmt.Errorf("node %s: child list disagrees with parent lists", rec.ID)
		}
	}

	if _, err := g.TopologicalOrder(); err != nil {
		return nil, err
	}
	return g, nil
}

// LoadJSON decodes and validates a serialized graph.
func LoadJSON(data []byte) (*Graph, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding graph document: %w", err)
	}
	return Load(&doc)
}

func countDeclaredChildren(doc *Document, id string) int {
	count := 0
	for _, rec := range doc.Nodes {
		for _, pid := range rec.ParentIDs {
			if pid == id {
				count++
				break
			}
		}
	}
	return count
}
