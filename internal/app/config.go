package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/vk/taskgridgo/internal/graph"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	GridPath string // .hcl grid manifests

	LogFormat  string
	LogLevel   string
	StatusPort int

	// WorkerCount bounds both the executor pool and the scheduler's
	// concurrent-running window.
	WorkerCount int

	// NodeTimeout is the per-node execution budget. Zero disables the
	// watchdog.
	NodeTimeout time.Duration

	// FailurePolicy applies to graphs whose definition does not set one.
	FailurePolicy string
}

// NewConfig validates a Config and fills defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.GridPath == "" {
		return nil, errors.New("GridPath is a required configuration field and cannot be empty")
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.NodeTimeout < 0 {
		return nil, fmt.Errorf("NodeTimeout must not be negative, got %s", cfg.NodeTimeout)
	}
	if _, err := graph.ParsePolicy(cfg.FailurePolicy); err != nil {
		return nil, err
	}
	return &cfg, nil
}
