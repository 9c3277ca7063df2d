package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/statestack/pkg/behavior"
	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/transition"
	"github.com/aretw0/statestack/pkg/wait"
)

// maxApplyRounds bounds how many times ApplyPending re-drains the queue when applying a
// request (an OnEnter hook, another goroutine) issued new ones. Leftovers wait a tick.
const maxApplyRounds = 8

// controller is the Transition Controller of one agent.
type controller struct {
	a     *Agent
	queue *transition.Queue

	issueMu sync.Mutex // orders issuance against draining
	unknown map[domain.StateID]int
	blocked []*transition.Ticket // pushes held back by the top's blocklist
}

func newController(a *Agent) *controller {
	return &controller{
		a:       a,
		queue:   transition.NewQueue(a.cfg.MaxPendingRequests),
		unknown: make(map[domain.StateID]int),
	}
}

// request validates a request at issue time and queues it.
// issuer is zero for requests coming from outside the stack (decision layers, the host).
func (c *controller) request(issuer domain.InstanceID, req transition.Request) (*transition.Ticket, error) {
	invalid := func(reason string) error {
		return &domain.InvalidTransitionError{Kind: req.Kind, Issuer: issuer, Reason: reason}
	}

	if err := req.Validate(); err != nil {
		var ite *domain.InvalidTransitionError
		if errors.As(err, &ite) {
			ite.Issuer = issuer
		}
		return nil, err
	}

	if issuer != 0 {
		// Only read from inside the agent's tick, where behavior code runs.
		top := c.a.stack.top()
		if top == nil || top.id != issuer {
			return nil, invalid("issuer is not the executing state")
		}
		if !top.phase.Live() {
			return nil, invalid("issuer is exiting")
		}
	}

	if req.Enters() {
		desc, err := c.a.reg.Lookup(req.Target)
		if err != nil {
			c.noteUnknown(req.Target)
			return nil, err
		}
		if !desc.AcceptsLabel(req.Label) {
			return nil, invalid(fmt.Sprintf("state '%s' has no label '%s'", req.Target, req.Label.OrDefault()))
		}
	}

	c.issueMu.Lock()
	defer c.issueMu.Unlock()

	tk, err := c.queue.Enqueue(issuer, req)
	if err != nil {
		return nil, invalid(err.Error())
	}
	if req.Enters() {
		tk.Reserve(c.a.nextID())
	}
	return tk, nil
}

// pending returns the number of queued requests, blocked pushes included.
func (c *controller) pending() int {
	c.issueMu.Lock()
	n := len(c.blocked)
	c.issueMu.Unlock()
	return c.queue.Len() + n
}

func (c *controller) drain() []*transition.Ticket {
	c.issueMu.Lock()
	defer c.issueMu.Unlock()
	return c.queue.Drain()
}

// clear rejects every queued request with err.
func (c *controller) clear(err error) {
	c.issueMu.Lock()
	defer c.issueMu.Unlock()
	for _, tk := range c.blocked {
		tk.MarkRejected(err)
	}
	c.blocked = nil
	c.queue.Clear(err)
}

// hold keeps a blocked push pending until a later tick.
func (c *controller) hold(tk *transition.Ticket) {
	c.issueMu.Lock()
	defer c.issueMu.Unlock()
	c.blocked = append(c.blocked, tk)
}

// takeBlocked returns the held pushes in issuance order, dropping cancelled ones.
func (c *controller) takeBlocked() []*transition.Ticket {
	c.issueMu.Lock()
	defer c.issueMu.Unlock()
	held := c.blocked[:0:0]
	for _, tk := range c.blocked {
		if tk.Pending() {
			held = append(held, tk)
		}
	}
	c.blocked = nil
	return held
}

func (c *controller) noteUnknown(id domain.StateID) {
	c.issueMu.Lock()
	c.unknown[id]++
	report := c.unknown[id] >= c.a.cfg.UnknownStateReportThreshold
	if report {
		delete(c.unknown, id)
	}
	c.issueMu.Unlock()

	if report {
		c.a.deferFault(&domain.UnknownStateError{StateID: id})
	}
}

// applyPending retries blocked pushes, drains the queue in issuance order, then removes
// naturally finished instances exposed on top. A fatal cleanup failure resets the stack
// to its root.
func (c *controller) applyPending(ctx context.Context) {
	retry := c.takeBlocked()
	for round := 0; round < maxApplyRounds; round++ {
		tickets := append(retry, c.drain()...)
		retry = nil
		for i, tk := range tickets {
			if !tk.Pending() {
				continue
			}
			if fatal := c.apply(ctx, tk); fatal != nil {
				for _, rest := range tickets[i+1:] {
					c.reject(ctx, rest, fatal)
				}
				c.reset(ctx, fatal)
				return
			}
		}

		if fatal := c.settleFinished(ctx); fatal != nil {
			c.reset(ctx, fatal)
			return
		}

		if c.queue.Len() == 0 {
			return
		}
	}
}

// apply executes one request. It returns a non-nil error only when a cleanup failed fatally.
func (c *controller) apply(ctx context.Context, tk *transition.Ticket) error {
	req := tk.Request()

	if issuer := tk.Issuer(); issuer != 0 && !c.a.stack.contains(issuer) {
		c.reject(ctx, tk, &domain.InvalidTransitionError{
			Kind: req.Kind, Issuer: issuer, Reason: "issuer is no longer on the stack",
		})
		return nil
	}

	switch req.Kind {
	case domain.TransitionPush:
		return c.applyPush(ctx, tk)
	case domain.TransitionPop:
		return c.applyPop(ctx, tk)
	case domain.TransitionReplace:
		return c.applyReplace(ctx, tk)
	case domain.TransitionInterrupt:
		return c.applyInterrupt(ctx, tk)
	}
	c.reject(ctx, tk, &domain.InvalidTransitionError{Kind: req.Kind, Issuer: tk.Issuer(), Reason: "unknown kind"})
	return nil
}

func (c *controller) applyPush(ctx context.Context, tk *transition.Ticket) error {
	req := tk.Request()
	if top := c.a.stack.top(); top != nil && top.desc.Blocks(req.Target) {
		c.a.logger.Debug("push held back by active state", "request", req.String(), "active", top.desc.ID)
		c.hold(tk)
		return nil
	}
	if c.a.stack.depth() >= c.a.cfg.MaxStackDepth {
		c.reject(ctx, tk, &domain.InvalidTransitionError{
			Kind: req.Kind, Issuer: tk.Issuer(),
			Reason: fmt.Sprintf("stack depth limit %d reached", c.a.cfg.MaxStackDepth),
		})
		return nil
	}

	inst, ok := c.build(ctx, tk, req.Target, req.Label, req.Params)
	if !ok {
		return nil
	}

	parent := c.a.stack.top()
	c.a.emitState(ctx, parent, domain.ActionPause, inst.desc.ID)
	c.enter(ctx, inst, domain.ActionPush, parent.desc.ID)
	c.applied(ctx, tk, inst.id)
	return nil
}

func (c *controller) applyPop(ctx context.Context, tk *transition.Ticket) error {
	if c.a.stack.depth() <= 1 {
		c.reject(ctx, tk, &domain.RootPopError{AgentID: c.a.id})
		return nil
	}

	top := c.a.stack.top()
	parent := c.a.stack.parent()
	if fatal := c.exit(ctx, top, domain.ActionPop, parent.desc.ID); fatal != nil {
		c.reject(ctx, tk, fatal)
		return fatal
	}
	c.a.emitState(ctx, parent, domain.ActionResume, top.desc.ID)
	c.applied(ctx, tk, 0)
	return nil
}

func (c *controller) applyReplace(ctx context.Context, tk *transition.Ticket) error {
	req := tk.Request()
	if top := c.a.stack.top(); top != nil && top.desc.Blocks(req.Target) {
		c.reject(ctx, tk, &domain.InvalidTransitionError{
			Kind: req.Kind, Issuer: tk.Issuer(),
			Reason: fmt.Sprintf("state '%s' blocks transitions to '%s'", top.desc.ID, req.Target),
		})
		return nil
	}
	inst, ok := c.build(ctx, tk, req.Target, req.Label, req.Params)
	if !ok {
		return nil
	}

	old := c.a.stack.top()
	if fatal := c.swap(ctx, old, inst); fatal != nil {
		c.reject(ctx, tk, fatal)
		return fatal
	}
	c.applied(ctx, tk, inst.id)
	return nil
}

func (c *controller) applyInterrupt(ctx context.Context, tk *transition.Ticket) error {
	req := tk.Request()
	idx := c.a.stack.find(req.Ancestor)
	if idx < 0 {
		c.reject(ctx, tk, &domain.InvalidTransitionError{
			Kind: req.Kind, Issuer: tk.Issuer(),
			Reason: fmt.Sprintf("ancestor '%s' is not on the stack", req.Ancestor),
		})
		return nil
	}
	if req.Then == domain.TransitionPush && idx+1 >= c.a.cfg.MaxStackDepth {
		c.reject(ctx, tk, &domain.InvalidTransitionError{
			Kind: req.Kind, Issuer: tk.Issuer(),
			Reason: fmt.Sprintf("stack depth limit %d reached", c.a.cfg.MaxStackDepth),
		})
		return nil
	}

	// Build the follow-up first so a bad target leaves the stack untouched.
	var next *instance
	if req.Then.Enters() {
		var ok bool
		if next, ok = c.build(ctx, tk, req.Target, req.Label, req.Params); !ok {
			return nil
		}
	}

	var last *instance
	for c.a.stack.depth()-1 > idx {
		top := c.a.stack.top()
		if fatal := c.exit(ctx, top, domain.ActionEnd, req.Ancestor); fatal != nil {
			c.reject(ctx, tk, fatal)
			return fatal
		}
		last = top
	}

	ancestor := c.a.stack.top()
	if last != nil {
		c.a.emitState(ctx, ancestor, domain.ActionResume, last.desc.ID)
	}

	switch req.Then {
	case domain.TransitionPush:
		c.a.emitState(ctx, ancestor, domain.ActionPause, next.desc.ID)
		c.enter(ctx, next, domain.ActionPush, ancestor.desc.ID)
	case domain.TransitionReplace:
		if fatal := c.swap(ctx, ancestor, next); fatal != nil {
			c.reject(ctx, tk, fatal)
			return fatal
		}
	}

	var entered domain.InstanceID
	if next != nil {
		entered = next.id
	}
	c.applied(ctx, tk, entered)
	return nil
}

// settleFinished removes naturally finished instances while they are on top, so a
// finished parent covered by a child leaves as soon as the child is gone.
func (c *controller) settleFinished(ctx context.Context) error {
	for {
		top := c.a.stack.top()
		if top == nil || !top.done || !top.phase.Live() {
			return nil
		}

		c.a.emitTransition(ctx, &domain.TransitionEvent{
			Kind: domain.TransitionPop, Target: top.desc.ID, Issuer: top.id, Depth: c.a.stack.depth() - 1,
		})

		if c.a.stack.depth() == 1 {
			return c.restartRoot(ctx, top)
		}

		parent := c.a.stack.parent()
		if fatal := c.exit(ctx, top, domain.ActionPop, parent.desc.ID); fatal != nil {
			return fatal
		}
		c.a.emitState(ctx, parent, domain.ActionResume, top.desc.ID)
	}
}

// restartRoot replaces a finished root with a fresh instance of the same descriptor.
// When the descriptor cannot build one, the root is exited and the agent detached.
func (c *controller) restartRoot(ctx context.Context, root *instance) error {
	next, err := c.a.newInstance(root.desc, root.label, root.params, 0)
	if err == nil {
		return c.swap(ctx, root, next)
	}

	c.a.fault(ctx, root, err, true)
	if fatal := c.exit(ctx, root, domain.ActionEnd, ""); fatal != nil {
		c.a.fault(ctx, root, fatal, false)
	}
	c.a.bridge.Reset()
	c.clear(fmt.Errorf("agent '%s': %w", c.a.id, domain.ErrAgentNotAttached))
	c.a.attached.Store(false)
	return nil
}

// swap exits old and enters next at the same depth. Parents waiting for old keep
// waiting for next.
func (c *controller) swap(ctx context.Context, old, next *instance) error {
	c.a.bridge.Retarget(old.id, next.id)
	if fatal := c.exit(ctx, old, domain.ActionEnd, next.desc.ID); fatal != nil {
		return fatal
	}
	c.enter(ctx, next, domain.ActionBegin, old.desc.ID)
	return nil
}

// build creates the instance an entering request will push, rejecting the ticket on failure.
func (c *controller) build(ctx context.Context, tk *transition.Ticket, target domain.StateID, label domain.Label, params domain.Params) (*instance, bool) {
	req := tk.Request()
	desc, err := c.a.reg.Lookup(target)
	if err != nil {
		c.noteUnknown(target)
		c.reject(ctx, tk, err)
		return nil, false
	}

	inst, err := c.a.newInstance(desc, label, params, tk.Entered())
	if err != nil {
		c.reject(ctx, tk, &domain.InvalidTransitionError{Kind: req.Kind, Issuer: tk.Issuer(), Reason: err.Error()})
		return nil, false
	}
	return inst, true
}

// enter places inst on top of the stack and runs its descriptor's OnEnter.
// The unit itself starts on the next resume step.
func (c *controller) enter(ctx context.Context, inst *instance, action domain.StateAction, related domain.StateID) {
	s := &c.a.stack
	s.begin(inst)
	defer s.end()

	inst.phase = domain.PhaseEntering
	inst.enteredFrame = c.a.frame.Load()
	inst.enteredAt = c.a.clock
	s.push(inst)

	if inst.desc.OnEnter != nil {
		if err := guard(func() { inst.desc.OnEnter(inst.scope) }); err != nil {
			c.a.fault(ctx, inst, err, false)
		}
	}

	inst.phase = domain.PhaseActive
	c.a.emitState(ctx, inst, action, related)
}

// exit force-exits the top instance: its wait is cancelled, its cleanup and OnExit run
// to completion, and it is removed. Parents waiting for it are resolved with child_done.
// It returns a non-nil error when the cleanup failed, which is fatal for the stack.
func (c *controller) exit(ctx context.Context, inst *instance, action domain.StateAction, related domain.StateID) error {
	s := &c.a.stack
	if s.top() != inst {
		panic("runtime: exit of an instance that is not on top")
	}
	s.begin(inst)
	defer s.end()

	inst.phase = domain.PhaseExiting
	c.a.bridge.Cancel(inst.id)
	inst.token = nil

	var fatal error
	if err := guard(func() { fatal = inst.unit.RequestExit(inst.scope) }); err != nil {
		fatal = err
	}
	if inst.desc.OnExit != nil {
		if err := guard(func() { inst.desc.OnExit(inst.scope) }); err != nil && fatal == nil {
			fatal = err
		}
	}
	if fatal != nil && inst.failure == nil {
		inst.failure = fatal
	}

	inst.phase = domain.PhaseDestroyed
	s.pop()
	c.a.emitState(ctx, inst, action, related)

	c.a.bridge.ResolveChild(inst.id, wait.Result{
		Reason:  domain.WakeChildDone,
		Payload: inst.unit.Result(),
		Err:     inst.err(),
	})
	return fatal
}

// reset tears the stack down after a fatal cleanup failure and re-enters the root.
func (c *controller) reset(ctx context.Context, cause error) {
	c.a.fault(ctx, nil, cause, true)

	for c.a.stack.depth() > 0 {
		top := c.a.stack.top()
		if err := c.exit(ctx, top, domain.ActionEnd, ""); err != nil {
			c.a.fault(ctx, top, err, false)
		}
	}
	c.a.bridge.Reset()
	c.clear(cause)

	root, err := c.a.newInstance(c.a.root.desc, c.a.root.label, c.a.root.params, 0)
	if err != nil {
		c.a.logger.Error("root state could not be re-entered", "err", err)
		c.a.attached.Store(false)
		return
	}
	c.enter(ctx, root, domain.ActionBegin, "")
}

func (c *controller) applied(ctx context.Context, tk *transition.Ticket, entered domain.InstanceID) {
	tk.MarkApplied(entered)
	req := tk.Request()
	c.a.emitTransition(ctx, &domain.TransitionEvent{
		Kind:   req.Kind,
		Target: req.Target,
		Issuer: tk.Issuer(),
		Depth:  c.a.stack.depth(),
	})
}

func (c *controller) reject(ctx context.Context, tk *transition.Ticket, err error) {
	if !tk.MarkRejected(err) {
		return
	}
	req := tk.Request()
	c.a.logger.Debug("transition rejected", "request", req.String(), "issuer", tk.Issuer(), "err", err)
	c.a.emitTransition(ctx, &domain.TransitionEvent{
		Kind:     req.Kind,
		Target:   req.Target,
		Issuer:   tk.Issuer(),
		Depth:    c.a.stack.depth(),
		Err:      err,
		Rejected: true,
	})
}

// guard runs fn, converting a panic into an ErrBehaviorPanic error.
func guard(fn func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = behavior.Recovered(p)
		}
	}()
	fn()
	return nil
}
