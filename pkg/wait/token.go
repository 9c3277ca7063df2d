package wait

import (
	"sync"
	"time"

	"github.com/aretw0/statestack/pkg/domain"
)

// Result is what a resumed behavior observes about its wait.
type Result struct {
	Reason  domain.WakeReason
	Payload any
	Err     error
}

// Interrupted reports whether the wait ended because of a forced exit.
func (r Result) Interrupted() bool {
	return r.Reason == domain.WakeInterrupted
}

// Token represents one outstanding suspension of one State Instance.
// Resolution methods are safe to call from any goroutine.
type Token struct {
	owner domain.InstanceID
	spec  Spec

	mu     sync.Mutex
	done   bool
	result Result

	// Timer progress; only touched by Bridge.Advance on the owning agent's tick.
	remaining int
	elapsed   time.Duration
}

func newToken(owner domain.InstanceID, spec Spec) *Token {
	return &Token{
		owner:     owner,
		spec:      spec,
		remaining: spec.frames,
	}
}

// NewToken creates a token that is not tracked by any Bridge. Hosts use it to build
// ad-hoc handles; the runtime always arms tokens through a Bridge.
func NewToken(owner domain.InstanceID, spec Spec) *Token {
	return newToken(owner, spec)
}

// Owner returns the instance that is suspended on this token.
func (t *Token) Owner() domain.InstanceID {
	return t.owner
}

// Spec returns what the token is waiting for.
func (t *Token) Spec() Spec {
	return t.spec
}

// Resolve completes the token with an explicit result.
// It returns false if the token was already resolved or cancelled.
func (t *Token) Resolve(r Result) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.result = r
	return true
}

// Signal resolves the token successfully on behalf of an external collaborator.
func (t *Token) Signal(payload any) bool {
	return t.Resolve(Result{Reason: domain.WakeSignaled, Payload: payload})
}

// Cancel resolves the token with the interrupted wake reason.
func (t *Token) Cancel() bool {
	return t.Resolve(Result{Reason: domain.WakeInterrupted, Err: domain.ErrInterrupted})
}

// Reject resolves the token because the operation it depended on failed.
func (t *Token) Reject(err error) bool {
	return t.Resolve(Result{Reason: domain.WakeRejected, Err: err})
}

// Resolved reports whether the token has completed.
func (t *Token) Resolved() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Result returns the outcome and whether the token has completed.
func (t *Token) Result() (Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.done
}

// advance progresses timers and predicates by one tick.
func (t *Token) advance(dt time.Duration) {
	switch t.spec.kind {
	case KindFrames:
		if t.remaining == 0 {
			t.Resolve(Result{Reason: domain.WakeTimer})
			return
		}
		t.remaining--
	case KindDuration:
		t.elapsed += dt
		if t.elapsed >= t.spec.duration {
			t.Resolve(Result{Reason: domain.WakeTimer, Payload: t.elapsed})
		}
	case KindCondition:
		if t.spec.until() {
			t.Resolve(Result{Reason: domain.WakeCondition})
		}
	}
}
