package executor

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/graph"
	"github.com/vk/taskgridgo/internal/registry"
	"github.com/vk/taskgridgo/internal/scheduler"
)

// Pool orchestrates the end-to-end execution of a grid. It manages
// concurrency, leases nodes from the scheduler, and dispatches them to the
// registered kind handlers.
type Pool struct {
	sched   *scheduler.Scheduler
	reg     *registry.Registry
	workers int
}

// NewPool creates a worker pool. workers must be at least 1.
func NewPool(sched *scheduler.Scheduler, reg *registry.Registry, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{sched: sched, reg: reg, workers: workers}
}

// Run executes the grid to quiescence and returns the final report. The
// returned error is non-nil only for infrastructure failures; node-level
// failures are reflected in the report instead.
func (p *Pool) Run(ctx context.Context) (*scheduler.Report, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("▶️ Starting execution.", "workers", p.workers)

	p.sched.Submit()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		workerID := i
		g.Go(func() error {
			return p.worker(gctx, workerID)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report, err := p.sched.Await(ctx)
	if err != nil {
		return nil, err
	}
	if report.Success {
		logger.Info("✅ Grid completed.", "completed", len(report.Completed))
	} else {
		logger.Warn("Grid finished with failures.",
			"completed", len(report.Completed),
			"failed", len(report.Failed),
			"blocked", len(report.Blocked),
		)
	}
	return report, nil
}

// drainErr reports whether a Next error means the worker should exit cleanly.
func drainErr(err error) bool {
	return errors.Is(err, scheduler.ErrDrained) || errors.Is(err, scheduler.ErrStalled)
}

// ignoreLate swallows the rejection a late outcome report gets after a
// timeout or cancellation already moved the node to a terminal state.
func ignoreLate(err error) error {
	if err == nil || errors.Is(err, graph.ErrInvalidTransition) {
		return nil
	}
	return err
}
