package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vk/taskgridgo/internal/config"
	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/handlers"
	"github.com/vk/taskgridgo/internal/registry"
	"github.com/vk/taskgridgo/internal/scheduler"
)

// coreModules are the handler modules registered when the caller supplies
// none of its own.
var coreModules = []registry.Module{handlers.Passthrough{}}

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	model    *config.Model

	httpServer *http.Server

	mu     sync.RWMutex
	active *scheduler.Scheduler
	grid   string
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// Startup failures are programmer or configuration errors and panic.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.GridPath)
	if err != nil {
		panic(fmt.Errorf("failed to load grid definitions: %w", err))
	}
	logger.Debug("Grid definitions loaded into unified model.", "graphs", len(model.Graphs))

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go handler modules registered.", "count", len(modules))

	if err := reg.ValidateRegistry(ctx); err != nil {
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		model:    model,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Model returns the loaded grid definitions. This is primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}

// setActive publishes the scheduler the status server should report on.
func (a *App) setActive(name string, s *scheduler.Scheduler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.grid = name
	a.active = s
}

func (a *App) activeScheduler() (string, *scheduler.Scheduler) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.grid, a.active
}
