package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/statestack/pkg/domain"
)

// Chain combines hooks; each callback runs in argument order. Nil callbacks are skipped.
func Chain(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks

	var (
		actions     []func(context.Context, *domain.StateEvent)
		transitions []func(context.Context, *domain.TransitionEvent)
		faults      []func(context.Context, *domain.FaultEvent)
		wakes       []func(context.Context, *domain.WakeEvent)
	)
	for _, h := range hooks {
		if h.OnStateAction != nil {
			actions = append(actions, h.OnStateAction)
		}
		if h.OnTransition != nil {
			transitions = append(transitions, h.OnTransition)
		}
		if h.OnFault != nil {
			faults = append(faults, h.OnFault)
		}
		if h.OnWake != nil {
			wakes = append(wakes, h.OnWake)
		}
	}

	if len(actions) > 0 {
		out.OnStateAction = func(ctx context.Context, e *domain.StateEvent) {
			for _, fn := range actions {
				fn(ctx, e)
			}
		}
	}
	if len(transitions) > 0 {
		out.OnTransition = func(ctx context.Context, e *domain.TransitionEvent) {
			for _, fn := range transitions {
				fn(ctx, e)
			}
		}
	}
	if len(faults) > 0 {
		out.OnFault = func(ctx context.Context, e *domain.FaultEvent) {
			for _, fn := range faults {
				fn(ctx, e)
			}
		}
	}
	if len(wakes) > 0 {
		out.OnWake = func(ctx context.Context, e *domain.WakeEvent) {
			for _, fn := range wakes {
				fn(ctx, e)
			}
		}
	}
	return out
}

// LogHooks logs state actions and transitions at Debug, faults at Error (fatal) or Warn.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateAction: func(ctx context.Context, e *domain.StateEvent) {
			logger.DebugContext(ctx, "state_action",
				"agent", string(e.AgentID),
				"frame", e.Frame,
				"state", string(e.StateID),
				"instance", uint64(e.Instance),
				"action", string(e.Action),
			)
		},
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			attrs := []any{
				"agent", string(e.AgentID),
				"frame", e.Frame,
				"kind", string(e.Kind),
				"target", string(e.Target),
				"depth", e.Depth,
			}
			if e.Rejected {
				logger.InfoContext(ctx, "transition_rejected", append(attrs, "error", e.Err)...)
				return
			}
			logger.DebugContext(ctx, "transition", attrs...)
		},
		OnFault: func(ctx context.Context, e *domain.FaultEvent) {
			level := slog.LevelWarn
			if e.Fatal {
				level = slog.LevelError
			}
			logger.Log(ctx, level, "fault",
				"agent", string(e.AgentID),
				"frame", e.Frame,
				"state", string(e.StateID),
				"fatal", e.Fatal,
				"error", e.Err,
			)
		},
	}
}
