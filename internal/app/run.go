package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vk/taskgridgo/internal/builder"
	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/executor"
	"github.com/vk/taskgridgo/internal/scheduler"
)

// Run executes every loaded grid in definition order. It returns an error if
// any grid finishes with failed or blocked nodes.
func (a *App) Run(ctx context.Context, appConfig *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if appConfig.StatusPort > 0 {
		a.startStatusServer(ctx, appConfig.StatusPort)
		defer a.closeStatusServer(ctx)
	}

	// Graphs that do not pick a failure policy inherit the CLI's.
	for _, def := range a.model.Graphs {
		if def.FailurePolicy == "" {
			def.FailurePolicy = appConfig.FailurePolicy
		}
	}

	a.logger.Debug("Building dependency graphs from config model...")
	grids, err := builder.Build(ctx, a.model, a.registry)
	if err != nil {
		return fmt.Errorf("failed to build dependency graphs: %w", err)
	}

	if len(grids) == 0 {
		a.logger.Warn("No graphs found in manifests, execution not required.")
		return nil
	}

	var failures []string
	for _, grid := range grids {
		report, err := a.runGrid(ctx, appConfig, grid)
		if err != nil {
			return err
		}
		if !report.Success {
			failures = append(failures, describeFailure(grid.Name, report))
		}
	}

	a.logger.Debug("App.Run method finished.")
	if len(failures) > 0 {
		return fmt.Errorf("execution finished with failures:\n%s", strings.Join(failures, "\n"))
	}
	return nil
}

func (a *App) runGrid(ctx context.Context, appConfig *Config, grid *builder.Grid) (*scheduler.Report, error) {
	a.logger.Info("🚀 Starting concurrent execution...", "grid", grid.Name)

	sched := scheduler.New(grid.Graph,
		scheduler.WithMaxConcurrentRunning(appConfig.WorkerCount),
		scheduler.WithNodeTimeout(appConfig.NodeTimeout),
	)
	defer sched.Close()
	a.setActive(grid.Name, sched)

	pool := executor.NewPool(sched, a.registry, appConfig.WorkerCount)
	report, err := pool.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("grid '%s': execution failed: %w", grid.Name, err)
	}

	a.logger.Info("🏁 Execution finished.", "grid", grid.Name, "success", report.Success)
	return report, nil
}

// describeFailure renders a grid's partial result: which nodes failed and
// which were blocked by them.
func describeFailure(name string, report *scheduler.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "grid '%s': %d failed, %d blocked", name, len(report.Failed), len(report.Blocked))
	for _, id := range report.Failed {
		fmt.Fprintf(&b, "\n  failed: %s", id)
	}
	blocked := make([]string, 0, len(report.Blocked))
	for id := range report.Blocked {
		blocked = append(blocked, id)
	}
	sort.Strings(blocked)
	for _, id := range blocked {
		fmt.Fprintf(&b, "\n  blocked: %s (by %s)", id, report.Blocked[id])
	}
	return b.String()
}
