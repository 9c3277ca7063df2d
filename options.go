package statestack

import (
	"log/slog"

	"github.com/aretw0/statestack/internal/runtime"
	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/ports"
)

// Config holds the per-agent tunables. See DefaultConfig.
type Config = runtime.Config

// AgentOption configures every agent a World attaches.
type AgentOption = runtime.AgentOption

// DefaultConfig returns the agent configuration used when no option overrides it.
func DefaultConfig() Config {
	return runtime.DefaultConfig()
}

// Option defines a functional option for configuring the World.
type Option func(*World)

// WithLogger sets a custom structured logger for the world and its agents.
func WithLogger(logger *slog.Logger) Option {
	return func(w *World) {
		w.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks on every agent.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(w *World) {
		w.hooks = hooks
	}
}

// WithParallelism bounds how many agents tick concurrently. Values below 1 remove the bound.
func WithParallelism(n int) Option {
	return func(w *World) {
		if n < 1 {
			n = -1
		}
		w.parallelism = n
	}
}

// WithSnapshotPublisher publishes every agent's snapshot after each world tick.
func WithSnapshotPublisher(p ports.SnapshotPublisher) Option {
	return func(w *World) {
		w.publisher = p
	}
}

// WithAgentOptions appends raw agent options, applied after the world's own.
func WithAgentOptions(opts ...AgentOption) Option {
	return func(w *World) {
		w.agentOpts = append(w.agentOpts, opts...)
	}
}

// WithConfig replaces the agent configuration wholesale.
func WithConfig(cfg Config) Option {
	return WithAgentOptions(runtime.WithConfig(cfg))
}

// WithMaxStackDepth bounds every agent's State Stack.
func WithMaxStackDepth(n int) Option {
	return WithAgentOptions(runtime.WithMaxStackDepth(n))
}

// WithCleanupWaitBudget sets how many waits a force-exited behavior may attempt.
func WithCleanupWaitBudget(n int) Option {
	return WithAgentOptions(runtime.WithCleanupWaitBudget(n))
}

// WithMaxPendingRequests bounds every agent's transition queue.
func WithMaxPendingRequests(n int) Option {
	return WithAgentOptions(runtime.WithMaxPendingRequests(n))
}

// WithUnknownStateReportThreshold sets how many unknown-state requests for one identity
// make a fault. The count restarts after each report.
func WithUnknownStateReportThreshold(n int) Option {
	return WithAgentOptions(runtime.WithUnknownStateReportThreshold(n))
}
