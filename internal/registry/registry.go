package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/node"
)

// Invocation carries everything a handler needs to run one node.
type Invocation struct {
	Node node.Snapshot

	// Decompose registers a follow-up node depending on the running one.
	// Handlers that break work into smaller pieces call it before returning.
	Decompose func(n *node.Node) error
}

// Handler executes one node of its kind. The returned value becomes the
// node's result; a non-nil error fails the node.
type Handler func(ctx context.Context, inv Invocation) (any, error)

// RegisteredHandler holds the compiled Go parts of a kind's lifecycle.
type RegisteredHandler struct {
	Fn Handler

	// Description shows up in diagnostics and the status endpoint.
	Description string
}

// Module is the interface core handler modules implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds all registered kind handlers for a single application
// instance.
type Registry struct {
	HandlerRegistry map[node.Kind]*RegisteredHandler
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		HandlerRegistry: make(map[node.Kind]*RegisteredHandler),
	}
}

// RegisterHandler registers the Go function for a task kind.
func (r *Registry) RegisterHandler(kind node.Kind, handler *RegisteredHandler) {
	if _, exists := r.HandlerRegistry[kind]; exists {
		panic(fmt.Sprintf("handler for kind '%s' already registered", kind))
	}
	slog.Debug("Registering kind handler.", "kind", kind)
	r.HandlerRegistry[kind] = handler
}

// Lookup returns the handler for a kind, or an error naming the kinds that
// are available.
func (r *Registry) Lookup(kind node.Kind) (*RegisteredHandler, error) {
	handler, ok := r.HandlerRegistry[kind]
	if !ok {
		return nil, fmt.Errorf("no handler registered for kind '%s' (have: %s)", kind, strings.Join(r.kinds(), ", "))
	}
	return handler, nil
}

// ValidateRegistry performs a strict parity check between the closed kind set
// and the registered Go handlers.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var errs []string

	for kind := range node.Kinds {
		if _, ok := r.HandlerRegistry[kind]; !ok {
			errs = append(errs, fmt.Sprintf("kind '%s': declared but no Go handler registered", kind))
		}
	}
	for kind := range r.HandlerRegistry {
		if _, ok := node.Kinds[kind]; !ok {
			errs = append(errs, fmt.Sprintf("kind '%s': Go handler registered for undeclared kind", kind))
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	logger.Debug("Registry validated.", "handlers", len(r.HandlerRegistry))
	return nil
}

func (r *Registry) kinds() []string {
	out := make([]string, 0, len(r.HandlerRegistry))
	for kind := range r.HandlerRegistry {
		out = append(out, string(kind))
	}
	sort.Strings(out)
	return out
}
