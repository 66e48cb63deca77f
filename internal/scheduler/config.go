package scheduler

import (
	"time"

	"github.com/vk/taskgridgo/internal/graph"
)

// Config holds the scheduler's tunables.
type Config struct {
	// MaxConcurrentRunning caps how many nodes may be Running at once.
	// Next blocks while the limit is reached.
	MaxConcurrentRunning int
	// FailurePolicy controls descendant blocking on failure.
	FailurePolicy graph.Policy
	// NodeTimeout fails a Running node that has not reported back within
	// the duration. Zero disables the watchdog.
	NodeTimeout time.Duration
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithMaxConcurrentRunning caps concurrent Running nodes.
func WithMaxConcurrentRunning(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.cfg.MaxConcurrentRunning = n
		}
	}
}

// WithNodeTimeout sets the per-node execution watchdog.
func WithNodeTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.cfg.NodeTimeout = d }
}

// WithTransitionSink registers a lifecycle event observer. Delivery is
// fire-and-forget on a buffered channel; a slow or failing sink drops events
// and never blocks scheduling.
func WithTransitionSink(sink func(Transition)) Option {
	return func(s *Scheduler) { s.sink = sink }
}

func defaultConfig(policy graph.Policy) Config {
	return Config{
		MaxConcurrentRunning: 8,
		FailurePolicy:        policy,
	}
}
