package testutil

import (
	"context"
	"sync"

	"github.com/vk/taskgridgo/internal/node"
	"github.com/vk/taskgridgo/internal/registry"
)

// RecorderModule registers a handler for every kind that records the order
// nodes executed in. Failures can be injected per node id.
type RecorderModule struct {
	mu       sync.Mutex
	order    []string
	FailWith map[string]error
}

// NewRecorderModule creates an empty recorder.
func NewRecorderModule() *RecorderModule {
	return &RecorderModule{FailWith: make(map[string]error)}
}

// Register implements registry.Module.
func (m *RecorderModule) Register(r *registry.Registry) {
	for kind := range node.Kinds {
		r.RegisterHandler(kind, &registry.RegisteredHandler{
			Description: "test recorder",
			Fn: func(ctx context.Context, inv registry.Invocation) (any, error) {
				m.mu.Lock()
				m.order = append(m.order, inv.Node.ID)
				m.mu.Unlock()
				if err := m.FailWith[inv.Node.ID]; err != nil {
					return nil, err
				}
				return inv.Node.Content, nil
			},
		})
	}
}

// Order returns a copy of the execution order seen so far.
func (m *RecorderModule) Order() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}
