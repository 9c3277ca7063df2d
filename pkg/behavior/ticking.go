package behavior

import (
	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/wait"
)

// TickFunc runs once per tick while its state is on top. Returning done or an error
// finishes the state.
type TickFunc func(s Scope) (done bool, err error)

// Ticking returns a factory of per-frame units. cleanup may be nil; otherwise it runs
// exactly once, on natural finish or forced exit.
func Ticking(fn TickFunc, cleanup func(Scope)) Factory {
	return func(domain.Label) (Unit, error) {
		return &ticking{fn: fn, cleanup: cleanup}, nil
	}
}

type ticking struct {
	fn      TickFunc
	cleanup func(Scope)

	finished bool
	cleaned  bool
	err      error
}

func (u *ticking) Start(s Scope)                { u.tick(s) }
func (u *ticking) Resume(s Scope, _ wait.Result) { u.tick(s) }

func (u *ticking) tick(s Scope) {
	if u.finished {
		return
	}

	var (
		done bool
		err  error
	)
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = Recovered(p)
			}
		}()
		done, err = u.fn(s)
	}()

	if !done && err == nil {
		return
	}
	u.err = err
	if cerr := u.runCleanup(s); cerr != nil && u.err == nil {
		u.err = cerr
	}
	u.finished = true
}

func (u *ticking) RequestExit(s Scope) error {
	if u.finished {
		return nil
	}
	u.finished = true
	u.err = domain.ErrInterrupted
	if err := u.runCleanup(s); err != nil {
		u.err = err
		return err
	}
	return nil
}

func (u *ticking) runCleanup(s Scope) (err error) {
	if u.cleaned || u.cleanup == nil {
		return nil
	}
	u.cleaned = true
	defer func() {
		if p := recover(); p != nil {
			err = Recovered(p)
		}
	}()
	u.cleanup(s)
	return nil
}

func (u *ticking) Finished() bool { return u.finished }
func (u *ticking) Err() error     { return u.err }
func (u *ticking) Result() any    { return nil }
