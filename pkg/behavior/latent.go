package behavior

import (
	"errors"
	"fmt"
	"iter"

	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/wait"
)

// ErrUnknownLabel is returned by a Labeled factory asked for an entry point it lacks.
var ErrUnknownLabel = errors.New("unknown label")

// Func is the body of a latent behavior. It runs across as many ticks as its waits take.
// Returning ends the state; an error return is reported with the instance's completion.
type Func func(c *Context) error

// errCleanupBudget aborts a cleanup that keeps waiting. It never leaves this package.
var errCleanupBudget = errors.New("cleanup wait budget exhausted")

// Latent returns a factory of coroutine-backed units running fn, whatever the entry label.
func Latent(fn Func) Factory {
	return func(domain.Label) (Unit, error) {
		return &latent{fn: fn}, nil
	}
}

// Labeled returns a factory picking the body registered for the entry label.
func Labeled(bodies map[domain.Label]Func) Factory {
	return func(label domain.Label) (Unit, error) {
		fn, ok := bodies[label.OrDefault()]
		if !ok {
			return nil, fmt.Errorf("%w '%s'", ErrUnknownLabel, label.OrDefault())
		}
		return &latent{fn: fn}, nil
	}
}

type latent struct {
	fn  Func
	ctx *Context

	next func() (struct{}, bool)
	stop func()

	started      bool
	finished     bool
	exiting      bool
	cleanupWaits int

	err    error
	result any
}

func (u *latent) Start(s Scope) {
	u.started = true
	u.ctx = &Context{unit: u, scope: s}
	u.next, u.stop = iter.Pull(u.body)
	u.step(s, wait.Result{Reason: domain.WakeStart})
}

func (u *latent) Resume(s Scope, r wait.Result) {
	u.step(s, r)
}

func (u *latent) body(yield func(struct{}) bool) {
	u.ctx.yield = yield
	u.err = u.fn(u.ctx)
}

func (u *latent) step(s Scope, r wait.Result) {
	if u.finished || !u.started {
		return
	}
	u.ctx.scope = s
	u.ctx.wake = r

	defer func() {
		if p := recover(); p != nil {
			u.finished = true
			u.err = Recovered(p)
		}
	}()

	if _, ok := u.next(); !ok {
		u.finished = true
	}
}

func (u *latent) RequestExit(s Scope) (err error) {
	if u.finished {
		return nil
	}
	u.exiting = true
	if !u.started {
		u.finished = true
		u.err = domain.ErrInterrupted
		return nil
	}
	u.ctx.scope = s

	defer func() {
		u.finished = true
		p := recover()
		if p == nil {
			return
		}
		if p == errCleanupBudget {
			err = &domain.CleanupTimeoutError{
				AgentID:  s.AgentID(),
				StateID:  s.StateID(),
				Instance: s.Instance(),
				Waits:    u.cleanupWaits,
			}
		} else {
			err = Recovered(p)
		}
		u.err = err
	}()

	// The body is parked in yield: stop makes that yield return false, so the body sees
	// an interrupted wait and unwinds through its deferred calls before stop returns.
	u.stop()
	return nil
}

func (u *latent) Finished() bool { return u.finished }
func (u *latent) Err() error     { return u.err }
func (u *latent) Result() any    { return u.result }

// Recovered converts a recovered panic value into an ErrBehaviorPanic error.
func Recovered(p any) error {
	if err, ok := p.(error); ok {
		return fmt.Errorf("%w: %w", domain.ErrBehaviorPanic, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrBehaviorPanic, p)
}
