package wait

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/statestack/pkg/domain"
)

// ErrTokenOutstanding is returned when an instance arms a second token while its first
// one is still unresolved.
var ErrTokenOutstanding = errors.New("instance already has an outstanding wait token")

type notification struct {
	event   string
	payload any
}

// Bridge tracks the outstanding tokens of one agent.
// Arm, Advance, Cancel and Release belong to the agent's tick; Notify may be called from
// any goroutine and is delivered on the next Advance.
type Bridge struct {
	mu     sync.Mutex
	tokens map[domain.InstanceID]*Token
	order  []domain.InstanceID // Arm order, keeps Advance deterministic
	inbox  []notification
}

// NewBridge creates an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{
		tokens: make(map[domain.InstanceID]*Token),
	}
}

// Arm registers a new token for owner.
func (b *Bridge) Arm(owner domain.InstanceID, spec Spec) (*Token, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid wait: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.tokens[owner]; ok {
		if !existing.Resolved() {
			return nil, ErrTokenOutstanding
		}
		b.removeLocked(owner)
	}

	tok := newToken(owner, spec)
	b.tokens[owner] = tok
	b.order = append(b.order, owner)
	return tok, nil
}

// Outstanding returns the token currently held by owner, if any.
func (b *Bridge) Outstanding(owner domain.InstanceID) (*Token, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tok, ok := b.tokens[owner]
	return tok, ok
}

// Notify queues a named world event for delivery on the next Advance.
// Events are edge-triggered: if nobody waits for the event when it is delivered, it is dropped.
func (b *Bridge) Notify(event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inbox = append(b.inbox, notification{event: event, payload: payload})
}

// Advance delivers queued events and progresses timers and predicates by one tick.
// Tokens of dormant instances advance too: world time does not stop for a paused state.
func (b *Bridge) Advance(dt time.Duration) {
	b.mu.Lock()
	inbox := b.inbox
	b.inbox = nil
	tokens := make([]*Token, 0, len(b.order))
	for _, owner := range b.order {
		tokens = append(tokens, b.tokens[owner])
	}
	b.mu.Unlock()

	for _, n := range inbox {
		for _, tok := range tokens {
			if tok.spec.kind == KindEvent && tok.spec.event == n.event {
				tok.Resolve(Result{Reason: domain.WakeEventDelivered, Payload: n.payload})
			}
		}
	}

	for _, tok := range tokens {
		if tok.Resolved() {
			continue
		}
		tok.advance(dt)
	}
}

// ResolveChild completes every token waiting for the given child instance.
func (b *Bridge) ResolveChild(child domain.InstanceID, r Result) int {
	b.mu.Lock()
	var matched []*Token
	for _, owner := range b.order {
		tok := b.tokens[owner]
		if tok.spec.kind == KindChild && tok.spec.child == child {
			matched = append(matched, tok)
		}
	}
	b.mu.Unlock()

	n := 0
	for _, tok := range matched {
		if tok.Resolve(r) {
			n++
		}
	}
	return n
}

// Retarget moves unresolved child waits from one instance to another. It is used when a
// waited-on child is replaced at the same depth, so the waiter keeps waiting for the state
// occupying that slot.
func (b *Bridge) Retarget(from, to domain.InstanceID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, owner := range b.order {
		tok := b.tokens[owner]
		if tok.spec.kind == KindChild && tok.spec.child == from && !tok.Resolved() {
			tok.spec.child = to
			n++
		}
	}
	return n
}

// Cancel resolves owner's token as interrupted and stops tracking it.
// It returns false when there was nothing left to cancel.
func (b *Bridge) Cancel(owner domain.InstanceID) bool {
	b.mu.Lock()
	tok, ok := b.tokens[owner]
	if ok {
		b.removeLocked(owner)
	}
	b.mu.Unlock()

	if !ok {
		return false
	}
	return tok.Cancel()
}

// Release stops tracking owner's token once its result has been consumed.
func (b *Bridge) Release(owner domain.InstanceID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(owner)
}

// Pending returns how many tracked tokens are still unresolved.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, tok := range b.tokens {
		if !tok.Resolved() {
			n++
		}
	}
	return n
}

// Reset cancels every tracked token and drops queued events.
func (b *Bridge) Reset() {
	b.mu.Lock()
	tokens := b.tokens
	b.tokens = make(map[domain.InstanceID]*Token)
	b.order = nil
	b.inbox = nil
	b.mu.Unlock()

	for _, tok := range tokens {
		tok.Cancel()
	}
}

func (b *Bridge) removeLocked(owner domain.InstanceID) {
	if _, ok := b.tokens[owner]; !ok {
		return
	}
	delete(b.tokens, owner)
	for i, id := range b.order {
		if id == owner {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}
