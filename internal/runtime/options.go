package runtime

import (
	"log/slog"
	"time"

	"github.com/aretw0/statestack/pkg/domain"
)

// Defaults for Config.
const (
	DefaultMaxStackDepth               = 32
	DefaultCleanupWaitBudget           = 8
	DefaultMaxPendingRequests          = 64
	DefaultUnknownStateReportThreshold = 3
	DefaultFaultHistory                = 16
)

// Config holds the tunables of one agent.
type Config struct {
	// MaxStackDepth bounds the State Stack; a Push beyond it is rejected.
	MaxStackDepth int
	// CleanupWaitBudget is how many waits a force-exited behavior may attempt before its
	// cleanup is aborted with a CleanupTimeoutError.
	CleanupWaitBudget int
	// MaxPendingRequests bounds the transition queue.
	MaxPendingRequests int
	// UnknownStateReportThreshold is how many requests for the same unknown state make
	// one fault report to the host.
	UnknownStateReportThreshold int
	// FaultHistory is how many recent faults Agent.Faults keeps.
	FaultHistory int
}

// DefaultConfig returns the configuration used when no option overrides it.
func DefaultConfig() Config {
	return Config{
		MaxStackDepth:               DefaultMaxStackDepth,
		CleanupWaitBudget:           DefaultCleanupWaitBudget,
		MaxPendingRequests:          DefaultMaxPendingRequests,
		UnknownStateReportThreshold: DefaultUnknownStateReportThreshold,
		FaultHistory:                DefaultFaultHistory,
	}
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger *slog.Logger) AgentOption {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) AgentOption {
	return func(a *Agent) {
		a.hooks = hooks
	}
}

// WithConfig replaces the whole configuration. Zero fields keep their defaults.
func WithConfig(cfg Config) AgentOption {
	return func(a *Agent) {
		if cfg.MaxStackDepth > 0 {
			a.cfg.MaxStackDepth = cfg.MaxStackDepth
		}
		if cfg.CleanupWaitBudget > 0 {
			a.cfg.CleanupWaitBudget = cfg.CleanupWaitBudget
		}
		if cfg.MaxPendingRequests > 0 {
			a.cfg.MaxPendingRequests = cfg.MaxPendingRequests
		}
		if cfg.UnknownStateReportThreshold > 0 {
			a.cfg.UnknownStateReportThreshold = cfg.UnknownStateReportThreshold
		}
		if cfg.FaultHistory > 0 {
			a.cfg.FaultHistory = cfg.FaultHistory
		}
	}
}

// WithMaxStackDepth bounds the State Stack.
func WithMaxStackDepth(n int) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.cfg.MaxStackDepth = n
		}
	}
}

// WithCleanupWaitBudget sets how many waits a cleanup may attempt. Zero aborts on the first.
func WithCleanupWaitBudget(n int) AgentOption {
	return func(a *Agent) {
		if n >= 0 {
			a.cfg.CleanupWaitBudget = n
		}
	}
}

// WithMaxPendingRequests bounds the transition queue.
func WithMaxPendingRequests(n int) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.cfg.MaxPendingRequests = n
		}
	}
}

// WithUnknownStateReportThreshold sets how many unknown-state requests for one identity
// make a fault. The count restarts after each report.
func WithUnknownStateReportThreshold(n int) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.cfg.UnknownStateReportThreshold = n
		}
	}
}

// WithClock overrides the wall clock used to timestamp events.
func WithClock(now func() time.Time) AgentOption {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}
