package behavior

import (
	"log/slog"
	"time"

	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/transition"
	"github.com/aretw0/statestack/pkg/wait"
)

var interrupted = wait.Result{Reason: domain.WakeInterrupted, Err: domain.ErrInterrupted}

// Context is handed to a latent body. Its blocking helpers suspend the body until the
// next tick that resolves the wait; every other method returns immediately.
type Context struct {
	unit  *latent
	scope Scope
	yield func(struct{}) bool
	wake  wait.Result
}

// Scope returns the instance scope of the current slice.
func (c *Context) Scope() Scope { return c.scope }

func (c *Context) Logger() *slog.Logger { return c.scope.Logger() }

func (c *Context) Params() domain.Params { return c.scope.Params() }

func (c *Context) Decode(out any) error { return c.scope.Decode(out) }

func (c *Context) Frame() uint64 { return c.scope.Frame() }

func (c *Context) SetDebugData(data string) { c.scope.SetDebugData(data) }

// Exiting reports whether the body is running its cleanup after a forced exit.
func (c *Context) Exiting() bool { return c.unit.exiting }

// Wait suspends the body until spec resolves and returns how it resolved.
// While exiting it returns an interrupted result immediately.
func (c *Context) Wait(spec wait.Spec) wait.Result {
	if c.unit.exiting {
		return c.cleanupWait()
	}
	if _, err := c.scope.Arm(spec); err != nil {
		return wait.Result{Reason: domain.WakeRejected, Err: err}
	}
	return c.park()
}

// WaitFrames skips n ticks.
func (c *Context) WaitFrames(n int) error {
	return c.Wait(wait.Frames(n)).Err
}

// WaitFor suspends until d of world time has elapsed.
func (c *Context) WaitFor(d time.Duration) error {
	return c.Wait(wait.Duration(d)).Err
}

// WaitEvent suspends until the named world event is delivered and returns its payload.
func (c *Context) WaitEvent(name string) (any, error) {
	r := c.Wait(wait.Event(name))
	return r.Payload, r.Err
}

// WaitUntil polls pred once per tick.
func (c *Context) WaitUntil(pred func() bool) error {
	return c.Wait(wait.Until(pred)).Err
}

// WaitManual arms a token resolved by an external collaborator. publish receives the
// token before the body suspends.
func (c *Context) WaitManual(publish func(*wait.Token)) (any, error) {
	if c.unit.exiting {
		r := c.cleanupWait()
		return nil, r.Err
	}
	tok, err := c.scope.Arm(wait.Manual())
	if err != nil {
		return nil, err
	}
	publish(tok)
	r := c.park()
	return r.Payload, r.Err
}

// Yield gives up the rest of this tick.
func (c *Context) Yield() error {
	return c.WaitFrames(0)
}

// Request issues an arbitrary transition request.
func (c *Context) Request(req transition.Request) (*transition.Ticket, error) {
	return c.scope.Request(req)
}

// Push nests target on top of this state. The body keeps running until its next wait.
func (c *Context) Push(target domain.StateID, params domain.Params) (*transition.Ticket, error) {
	return c.scope.Request(transition.Push(target, params))
}

// Replace exits this state in favor of target.
func (c *Context) Replace(target domain.StateID, params domain.Params) (*transition.Ticket, error) {
	return c.scope.Request(transition.Replace(target, params))
}

// Pop removes this state from the stack.
func (c *Context) Pop() (*transition.Ticket, error) {
	return c.scope.Request(transition.Pop())
}

// Interrupt unwinds the stack down to the nearest instance of ancestor.
func (c *Context) Interrupt(ancestor domain.StateID) (*transition.Ticket, error) {
	return c.scope.Request(transition.Interrupt(ancestor))
}

// Call pushes target and suspends until it is removed from the stack, returning the
// child's result and error.
func (c *Context) Call(target domain.StateID, params domain.Params) (any, error) {
	return c.CallLabel(target, "", params)
}

// CallLabel is Call entering target at label.
func (c *Context) CallLabel(target domain.StateID, label domain.Label, params domain.Params) (any, error) {
	if c.unit.exiting {
		return nil, c.cleanupWait().Err
	}
	tk, err := c.scope.Request(transition.Push(target, params).AtLabel(label))
	if err != nil {
		return nil, err
	}
	r := c.awaitTicket(tk, wait.Child(tk.Entered()))
	return r.Payload, r.Err
}

// GotoLabel re-enters this state at label. The current body is exited first, so its
// deferred calls run before the new entry point starts.
func (c *Context) GotoLabel(label domain.Label) error {
	if c.unit.exiting {
		return c.cleanupWait().Err
	}
	req := transition.Replace(c.scope.StateID(), c.scope.Params()).AtLabel(label)
	tk, err := c.scope.Request(req)
	if err != nil {
		return err
	}
	return c.awaitTicket(tk, wait.Manual()).Err
}

// Finish records the state's result. Return its value from the body:
//
//	return c.Finish(target)
func (c *Context) Finish(result any) error {
	c.unit.result = result
	return nil
}

// awaitTicket parks on spec, waking early if tk is rejected or cancelled.
func (c *Context) awaitTicket(tk *transition.Ticket, spec wait.Spec) wait.Result {
	tok, err := c.scope.Arm(spec)
	if err != nil {
		tk.Cancel()
		return wait.Result{Reason: domain.WakeRejected, Err: err}
	}
	tk.OnResult(func(t *transition.Ticket) {
		if t.Status() != transition.StatusApplied {
			tok.Reject(t.Err())
		}
	})
	return c.park()
}

func (c *Context) park() wait.Result {
	if !c.yield(struct{}{}) {
		return interrupted
	}
	return c.wake
}

func (c *Context) cleanupWait() wait.Result {
	c.unit.cleanupWaits++
	if c.unit.cleanupWaits > c.scope.CleanupBudget() {
		panic(errCleanupBudget)
	}
	return interrupted
}
