package transition

import (
	"sync"

	"github.com/aretw0/statestack/pkg/domain"
)

// Status is the lifecycle of a queued request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApplied  Status = "applied"
	StatusRejected Status = "rejected"
	StatusCanceled Status = "canceled"
)

// Ticket is the handle of one queued Transition Request.
type Ticket struct {
	seq    uint64
	issuer domain.InstanceID
	req    Request

	mu        sync.Mutex
	status    Status
	err       error
	entered   domain.InstanceID
	callbacks []func(*Ticket)
	done      chan struct{}
}

func newTicket(seq uint64, issuer domain.InstanceID, req Request) *Ticket {
	return &Ticket{
		seq:    seq,
		issuer: issuer,
		req:    req,
		status: StatusPending,
		done:   make(chan struct{}),
	}
}

// Seq returns the issuance order of the ticket within its queue.
func (t *Ticket) Seq() uint64 { return t.seq }

// Issuer returns the instance that issued the request, or zero for external callers.
func (t *Ticket) Issuer() domain.InstanceID { return t.issuer }

// Request returns the queued request.
func (t *Ticket) Request() Request { return t.req }

// Status returns the current status.
func (t *Ticket) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Err returns why the request was rejected or cancelled.
func (t *Ticket) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Entered returns the instance identity reserved for, or created by, a Push or Replace.
func (t *Ticket) Entered() domain.InstanceID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entered
}

// Pending reports whether the request is still waiting in the queue.
func (t *Ticket) Pending() bool {
	return t.Status() == StatusPending
}

// Done is closed once the request is applied, rejected or cancelled.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// OnResult registers fn to run once the ticket settles. If it already has, fn runs immediately.
func (t *Ticket) OnResult(fn func(*Ticket)) {
	t.mu.Lock()
	if t.status == StatusPending {
		t.callbacks = append(t.callbacks, fn)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	fn(t)
}

// Cancel withdraws a pending request. It returns false if the request was already settled.
func (t *Ticket) Cancel() bool {
	return t.settle(StatusCanceled, 0, domain.ErrRequestCanceled)
}

// Reserve records the instance identity an entering request will use once applied.
// Used by the Transition Controller at issue time.
func (t *Ticket) Reserve(id domain.InstanceID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusPending {
		t.entered = id
	}
}

// MarkApplied settles the ticket as applied. Used by the Transition Controller.
func (t *Ticket) MarkApplied(entered domain.InstanceID) bool {
	return t.settle(StatusApplied, entered, nil)
}

// MarkRejected settles the ticket as rejected. Used by the Transition Controller.
func (t *Ticket) MarkRejected(err error) bool {
	return t.settle(StatusRejected, 0, err)
}

func (t *Ticket) settle(status Status, entered domain.InstanceID, err error) bool {
	t.mu.Lock()
	if t.status != StatusPending {
		t.mu.Unlock()
		return false
	}
	t.status = status
	if entered != 0 {
		t.entered = entered
	}
	t.err = err
	callbacks := t.callbacks
	t.callbacks = nil
	close(t.done)
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn(t)
	}
	return true
}
