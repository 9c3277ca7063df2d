package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/wait"
)

// Tick runs one frame of the agent: wait bookkeeping, at most one resume of the top
// instance, then the pending transitions.
//
// Failures inside behavior code are isolated and reported through hooks and Faults; Tick
// only returns errors for host misuse (overlapping ticks, ticking a detached agent).
func (a *Agent) Tick(ctx context.Context, dt time.Duration) error {
	if !a.ticking.CompareAndSwap(false, true) {
		return fmt.Errorf("tick '%s': %w", a.id, domain.ErrReentrantTick)
	}
	defer a.ticking.Store(false)

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.attached.Load() {
		return fmt.Errorf("tick '%s': %w", a.id, domain.ErrAgentNotAttached)
	}

	a.frame.Add(1)
	a.dt = dt
	a.clock += dt

	a.flushDeferredFaults(ctx)
	a.bridge.Advance(dt)
	a.wake(ctx)
	a.resume(ctx)
	a.ctrl.applyPending(ctx)
	a.publish()
	return nil
}

// wake marks the top instance runnable once its wait has resolved.
func (a *Agent) wake(ctx context.Context) {
	top := a.stack.top()
	if top == nil || top.phase != domain.PhaseSuspended || top.token == nil {
		return
	}
	res, done := top.token.Result()
	if !done {
		return
	}
	top.phase = domain.PhaseActive
	a.emitWake(ctx, top, res.Reason)
}

// resume runs exactly one slice of the top instance if it is runnable.
// Instances below the top are never resumed.
func (a *Agent) resume(ctx context.Context) {
	top := a.stack.top()
	if top == nil || top.phase != domain.PhaseActive || top.done {
		return
	}

	var res wait.Result
	if top.token != nil {
		res, _ = top.token.Result()
		a.bridge.Release(top.id)
		top.token = nil
	}

	top.running = true
	err := guard(func() {
		if !top.started {
			top.started = true
			top.unit.Start(top.scope)
			return
		}
		top.unit.Resume(top.scope, res)
	})
	top.running = false

	if err != nil {
		top.failure = err
		top.done = true
	}
	if top.unit.Finished() {
		top.done = true
	}

	if top.done {
		if err := top.err(); err != nil && !errors.Is(err, domain.ErrInterrupted) {
			a.fault(ctx, top, err, false)
		}
		return
	}

	if tok, ok := a.bridge.Outstanding(top.id); ok {
		top.token = tok
		top.phase = domain.PhaseSuspended
	}
}
