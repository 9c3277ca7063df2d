package transition

import (
	"errors"
	"sync"

	"github.com/aretw0/statestack/pkg/domain"
)

// ErrQueueFull is returned when an agent already has the maximum number of pending requests.
var ErrQueueFull = errors.New("transition queue full")

// DefaultCapacity bounds the pending requests of one agent.
const DefaultCapacity = 64

// Queue is a FIFO of pending tickets. Enqueue is safe from any goroutine so that decision
// layers can issue requests between or during ticks.
type Queue struct {
	mu       sync.Mutex
	items    []*Ticket
	capacity int
	seq      uint64
}

// NewQueue creates a queue bounded to capacity pending requests.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{capacity: capacity}
}

// Enqueue appends a request and returns its ticket.
func (q *Queue) Enqueue(issuer domain.InstanceID, req Request) (*Ticket, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		return nil, ErrQueueFull
	}
	q.seq++
	t := newTicket(q.seq, issuer, req)
	q.items = append(q.items, t)
	return t, nil
}

// Drain removes and returns every queued ticket in issuance order.
func (q *Queue) Drain() []*Ticket {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued tickets, including cancelled ones not yet drained.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear rejects every queued ticket with err.
func (q *Queue) Clear(err error) int {
	n := 0
	for _, t := range q.Drain() {
		if t.MarkRejected(err) {
			n++
		}
	}
	return n
}
