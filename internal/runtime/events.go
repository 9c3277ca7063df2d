package runtime

import (
	"context"

	"github.com/aretw0/statestack/pkg/domain"
)

func (a *Agent) base(t domain.EventType) domain.EventBase {
	return domain.EventBase{
		Timestamp: a.now(),
		Type:      t,
		AgentID:   a.id,
		Frame:     a.frame.Load(),
	}
}

func (a *Agent) emitState(ctx context.Context, inst *instance, action domain.StateAction, related domain.StateID) {
	frame := a.frame.Load()
	inst.mark(action, frame)

	a.logger.Debug("state action", "state", inst.desc.ID, "instance", inst.id, "action", action, "related", related)
	if a.hooks.OnStateAction != nil {
		a.hooks.OnStateAction(ctx, &domain.StateEvent{
			EventBase: a.base(domain.EventStateAction),
			StateID:   inst.desc.ID,
			Instance:  inst.id,
			Label:     inst.label,
			Action:    action,
			Related:   related,
		})
	}
}

func (a *Agent) emitTransition(ctx context.Context, ev *domain.TransitionEvent) {
	if a.hooks.OnTransition == nil {
		return
	}
	ev.EventBase = a.base(domain.EventTransition)
	a.hooks.OnTransition(ctx, ev)
}

func (a *Agent) emitWake(ctx context.Context, inst *instance, reason domain.WakeReason) {
	if a.hooks.OnWake == nil {
		return
	}
	a.hooks.OnWake(ctx, &domain.WakeEvent{
		EventBase: a.base(domain.EventWake),
		StateID:   inst.desc.ID,
		Instance:  inst.id,
		Reason:    reason,
	})
}

// fault records and reports a failure isolated inside this agent. inst may be nil.
func (a *Agent) fault(ctx context.Context, inst *instance, err error, fatal bool) {
	ev := domain.FaultEvent{
		EventBase: a.base(domain.EventFault),
		Err:       err,
		Fatal:     fatal,
	}
	if inst != nil {
		ev.StateID = inst.desc.ID
		ev.Instance = inst.id
	}

	if fatal {
		a.logger.Error("agent stack torn down", "state", ev.StateID, "err", err)
	} else {
		a.logger.Warn("behavior fault", "state", ev.StateID, "instance", ev.Instance, "err", err)
	}

	a.faultMu.Lock()
	a.faults = append(a.faults, ev)
	if over := len(a.faults) - a.cfg.FaultHistory; over > 0 {
		a.faults = append(a.faults[:0], a.faults[over:]...)
	}
	a.faultMu.Unlock()

	if a.hooks.OnFault != nil {
		a.hooks.OnFault(ctx, &ev)
	}
}

// deferFault queues a fault noticed outside the tick (an external request for an
// unknown state); it is reported at the start of the next tick.
func (a *Agent) deferFault(err error) {
	a.faultMu.Lock()
	defer a.faultMu.Unlock()
	a.deferred = append(a.deferred, err)
}

func (a *Agent) flushDeferredFaults(ctx context.Context) {
	a.faultMu.Lock()
	deferred := a.deferred
	a.deferred = nil
	a.faultMu.Unlock()

	for _, err := range deferred {
		a.fault(ctx, nil, err, false)
	}
}
