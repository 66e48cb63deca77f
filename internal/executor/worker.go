package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/node"
	"github.com/vk/taskgridgo/internal/registry"
	"github.com/vk/taskgridgo/internal/scheduler"
)

// worker is the core processing loop for a single concurrent worker.
func (p *Pool) worker(ctx context.Context, workerID int) error {
	logger := ctxlog.FromContext(ctx).With("workerID", workerID)
	logger.Debug("Worker started.")

	for {
		lease, err := p.sched.Next(ctx)
		if err != nil {
			if drainErr(err) {
				logger.Debug("Worker finished.", "reason", err)
				return nil
			}
			return err
		}

		nodeLogger := logger.With("nodeID", lease.Node.ID, "kind", lease.Node.Kind)
		nodeLogger.Debug("Worker picked up node for execution.")

		result, runErr := p.execute(lease, nodeLogger)

		if runErr != nil {
			if lease.Ctx.Err() != nil {
				// The lease was revoked while the handler ran; record the
				// cancellation rather than the handler's raw context error.
				runErr = fmt.Errorf("%w: %v", scheduler.ErrCancelled, runErr)
			}
			nodeLogger.Error("Node execution failed.", "error", runErr)
			if err := ignoreLate(p.sched.Fail(lease.Node.ID, runErr)); err != nil {
				return err
			}
			continue
		}

		nodeLogger.Debug("Node execution succeeded.")
		if err := ignoreLate(p.sched.Complete(lease.Node.ID, result)); err != nil {
			return err
		}
	}
}

// execute runs the kind handler for one leased node. Handler panics are
// converted into node failures so one bad handler cannot take down the pool.
func (p *Pool) execute(lease *scheduler.Lease, logger *slog.Logger) (result any, err error) {
	handler, err := p.reg.Lookup(lease.Node.Kind)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Handler panicked.", "panic", r)
			err = fmt.Errorf("handler for kind '%s' panicked: %v", lease.Node.Kind, r)
		}
	}()

	inv := registry.Invocation{
		Node: lease.Node,
		Decompose: func(n *node.Node) error {
			return p.sched.AddNode(n, lease.Node.ID)
		},
	}

	// The lease context, not the pool context, governs the handler. It is
	// cancelled on per-node timeout or explicit cancellation.
	return handler.Fn(ctxlog.WithLogger(lease.Ctx, logger), inv)
}
