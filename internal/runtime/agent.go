package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/statestack/internal/logging"
	"github.com/aretw0/statestack/pkg/behavior"
	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/registry"
	"github.com/aretw0/statestack/pkg/transition"
	"github.com/aretw0/statestack/pkg/wait"
)

type rootEntry struct {
	desc   *registry.Descriptor
	label  domain.Label
	params domain.Params
}

// Agent is the Agent Context: one simulated entity and the State Stack it owns.
//
// Tick, Attach and Detach are serialized. RequestTransition, Notify, Snapshot and Faults
// are safe to call from any goroutine.
type Agent struct {
	id    domain.AgentID
	owner any
	reg   *registry.Registry

	logger *slog.Logger
	hooks  domain.LifecycleHooks
	cfg    Config
	now    func() time.Time

	mu       sync.Mutex
	ticking  atomic.Bool
	attached atomic.Bool

	stack  stack
	bridge *wait.Bridge
	ctrl   *controller
	root   rootEntry

	frame  atomic.Uint64
	dt     time.Duration
	clock  time.Duration
	lastID atomic.Uint64

	snapMu sync.RWMutex
	snap   domain.StackSnapshot

	faultMu  sync.Mutex
	faults   []domain.FaultEvent
	deferred []error
}

// NewAgent creates a detached agent resolving states through reg.
func NewAgent(id domain.AgentID, reg *registry.Registry, owner any, opts ...AgentOption) *Agent {
	a := &Agent{
		id:     id,
		owner:  owner,
		reg:    reg,
		logger: logging.NewNop(),
		cfg:    DefaultConfig(),
		now:    time.Now,
		bridge: wait.NewBridge(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("agent", string(id))
	a.ctrl = newController(a)
	a.snap = domain.StackSnapshot{AgentID: id}
	return a
}

// ID returns the agent identity.
func (a *Agent) ID() domain.AgentID { return a.id }

// Owner returns the host object the agent was created with.
func (a *Agent) Owner() any { return a.owner }

// Frame returns the number of ticks the agent has run.
func (a *Agent) Frame() uint64 { return a.frame.Load() }

// Attached reports whether the agent has a live stack.
func (a *Agent) Attached() bool { return a.attached.Load() }

// Attach enters the root state and makes the agent tickable.
// The root's unit starts on the first Tick.
func (a *Agent) Attach(ctx context.Context, root domain.StateID, params domain.Params) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.attached.Load() {
		return fmt.Errorf("attach '%s': %w", a.id, domain.ErrAgentAttached)
	}

	desc, err := a.reg.Lookup(root)
	if err != nil {
		return fmt.Errorf("attach '%s': %w", a.id, err)
	}
	inst, err := a.newInstance(desc, "", params, 0)
	if err != nil {
		return fmt.Errorf("attach '%s': %w", a.id, err)
	}

	a.root = rootEntry{desc: desc, label: inst.label, params: inst.params}
	a.attached.Store(true)
	a.ctrl.enter(ctx, inst, domain.ActionBegin, "")
	a.logger.Debug("agent attached", "root", root)
	a.publish()
	return nil
}

// Detach force-exits the whole stack, innermost first, and rejects pending requests.
func (a *Agent) Detach(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.attached.Load() {
		return fmt.Errorf("detach '%s': %w", a.id, domain.ErrAgentNotAttached)
	}
	a.attached.Store(false)

	for a.stack.depth() > 0 {
		top := a.stack.top()
		if err := a.ctrl.exit(ctx, top, domain.ActionEnd, ""); err != nil {
			a.fault(ctx, top, err, false)
		}
	}
	a.bridge.Reset()
	a.ctrl.clear(fmt.Errorf("detach '%s': %w", a.id, domain.ErrAgentNotAttached))
	a.logger.Debug("agent detached")
	a.publish()
	return nil
}

// RequestTransition queues a request from outside the stack. It is validated like a
// request issued by the executing state and applied at the end of the next tick.
func (a *Agent) RequestTransition(req transition.Request) (*transition.Ticket, error) {
	if !a.attached.Load() {
		return nil, fmt.Errorf("request on '%s': %w", a.id, domain.ErrAgentNotAttached)
	}
	return a.ctrl.request(0, req)
}

// Notify queues a named world event for this agent's waits. It is delivered on the next tick.
func (a *Agent) Notify(event string, payload any) {
	a.bridge.Notify(event, payload)
}

// Snapshot returns the stack as of the end of the last tick or stack mutation.
func (a *Agent) Snapshot() domain.StackSnapshot {
	a.snapMu.RLock()
	snap := a.snap
	snap.Entries = slices.Clone(a.snap.Entries)
	a.snapMu.RUnlock()

	snap.Pending = a.ctrl.pending()
	return snap
}

// Faults returns the most recent faults, oldest first.
func (a *Agent) Faults() []domain.FaultEvent {
	a.faultMu.Lock()
	defer a.faultMu.Unlock()
	return slices.Clone(a.faults)
}

func (a *Agent) nextID() domain.InstanceID {
	return domain.InstanceID(a.lastID.Add(1))
}

func (a *Agent) newInstance(desc *registry.Descriptor, label domain.Label, params domain.Params, id domain.InstanceID) (*instance, error) {
	label = label.OrDefault()
	if !desc.AcceptsLabel(label) {
		return nil, fmt.Errorf("state '%s' has no label '%s'", desc.ID, label)
	}

	var (
		unit behavior.Unit
		err  error
	)
	if perr := guard(func() { unit, err = desc.Factory(label) }); perr != nil {
		err = perr
	}
	if err != nil {
		return nil, fmt.Errorf("state '%s': %w", desc.ID, err)
	}
	if unit == nil {
		return nil, fmt.Errorf("state '%s': factory returned no unit", desc.ID)
	}

	if id == 0 {
		id = a.nextID()
	}
	inst := &instance{
		id:     id,
		desc:   desc,
		label:  label,
		params: params.Clone(),
		unit:   unit,
		phase:  domain.PhaseEntering,
	}
	inst.scope = &scope{
		agent:  a,
		inst:   inst,
		logger: a.logger.With("state", string(desc.ID), "instance", uint64(id)),
	}
	return inst, nil
}

// publish refreshes the snapshot read by other goroutines.
func (a *Agent) publish() {
	snap := domain.StackSnapshot{
		AgentID: a.id,
		Frame:   a.frame.Load(),
		Entries: make([]domain.InstanceSnapshot, 0, a.stack.depth()),
	}
	last := a.stack.depth() - 1
	a.stack.each(func(i int, inst *instance) {
		snap.Entries = append(snap.Entries, inst.snapshot(i != last))
	})

	a.snapMu.Lock()
	a.snap = snap
	a.snapMu.Unlock()
}
