package statestack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	goruntime "runtime"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/statestack/internal/logging"
	"github.com/aretw0/statestack/internal/runtime"
	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/ports"
	"github.com/aretw0/statestack/pkg/registry"
	"github.com/aretw0/statestack/pkg/transition"
	"golang.org/x/sync/errgroup"
)

// World is the host-facing entry point: it owns a sealed registry and the agents
// attached to it, and drives them one frame at a time.
type World struct {
	reg         *registry.Registry
	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	parallelism int
	publisher   ports.SnapshotPublisher
	agentOpts   []AgentOption

	mu       sync.RWMutex
	agents   map[domain.AgentID]*runtime.Agent
	unloaded bool
}

// New creates a World over reg. The registry is sealed: descriptors are fixed for the
// lifetime of the world.
func New(reg *registry.Registry, opts ...Option) *World {
	w := &World{
		reg:         reg,
		parallelism: goruntime.GOMAXPROCS(0),
		agents:      make(map[domain.AgentID]*runtime.Agent),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logging.NewNop()
	}
	reg.Seal()
	return w
}

// Registry returns the sealed registry, or nil after Unload.
func (w *World) Registry() *registry.Registry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.reg
}

// Attach creates agent id and enters root. owner is handed to behaviors through Scope.Owner.
func (w *World) Attach(ctx context.Context, id domain.AgentID, root domain.StateID, params domain.Params, owner any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.unloaded {
		return domain.ErrWorldUnloaded
	}
	if _, ok := w.agents[id]; ok {
		return fmt.Errorf("attach '%s': %w", id, domain.ErrAgentAttached)
	}

	opts := append([]AgentOption{
		runtime.WithLogger(w.logger),
		runtime.WithLifecycleHooks(w.hooks),
	}, w.agentOpts...)

	agent := runtime.NewAgent(id, w.reg, owner, opts...)
	if err := agent.Attach(ctx, root, params); err != nil {
		return err
	}
	w.agents[id] = agent
	return nil
}

// Detach force-exits the agent's whole stack and forgets it.
func (w *World) Detach(ctx context.Context, id domain.AgentID) error {
	w.mu.Lock()
	agent, err := w.agentLocked(id)
	if err == nil {
		delete(w.agents, id)
	}
	w.mu.Unlock()
	if err != nil {
		return err
	}

	err = agent.Detach(ctx)
	w.forget(ctx, id)
	return err
}

// Tick advances every attached agent by one frame, in parallel up to the configured
// parallelism. A fault inside one agent never affects the others; the returned error
// only joins host misuse errors such as a reentrant tick.
func (w *World) Tick(ctx context.Context, dt time.Duration) error {
	agents, err := w.snapshotAgents()
	if err != nil {
		return err
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallelism)
	for _, agent := range agents {
		g.Go(func() error {
			if err := agent.Tick(gctx, dt); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	w.publish(ctx, agents)
	return errors.Join(errs...)
}

// TickAgent advances a single agent by one frame.
func (w *World) TickAgent(ctx context.Context, id domain.AgentID, dt time.Duration) error {
	agent, err := w.agent(id)
	if err != nil {
		return err
	}
	if err := agent.Tick(ctx, dt); err != nil {
		return err
	}
	w.publish(ctx, []*runtime.Agent{agent})
	return nil
}

// RequestTransition queues an external request on agent id. It is applied at the end of
// the agent's next tick; the ticket reports the outcome.
func (w *World) RequestTransition(id domain.AgentID, req transition.Request) (*transition.Ticket, error) {
	agent, err := w.agent(id)
	if err != nil {
		return nil, err
	}
	return agent.RequestTransition(req)
}

// Notify delivers a named event to agent id on its next tick.
func (w *World) Notify(id domain.AgentID, event string, payload any) error {
	agent, err := w.agent(id)
	if err != nil {
		return err
	}
	agent.Notify(event, payload)
	return nil
}

// Broadcast delivers a named event to every attached agent.
func (w *World) Broadcast(event string, payload any) error {
	agents, err := w.snapshotAgents()
	if err != nil {
		return err
	}
	for _, agent := range agents {
		agent.Notify(event, payload)
	}
	return nil
}

// Inspect returns agent id's stack as of its last tick.
func (w *World) Inspect(id domain.AgentID) (domain.StackSnapshot, error) {
	agent, err := w.agent(id)
	if err != nil {
		return domain.StackSnapshot{}, err
	}
	return agent.Snapshot(), nil
}

// InspectAll returns every agent's stack, ordered by agent id.
func (w *World) InspectAll() []domain.StackSnapshot {
	agents, err := w.snapshotAgents()
	if err != nil {
		return nil
	}
	out := make([]domain.StackSnapshot, len(agents))
	for i, agent := range agents {
		out[i] = agent.Snapshot()
	}
	return out
}

// Agents returns the attached agent ids, sorted.
func (w *World) Agents() []domain.AgentID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Sorted(maps.Keys(w.agents))
}

// Faults returns the recent faults of agent id, oldest first.
func (w *World) Faults(id domain.AgentID) ([]domain.FaultEvent, error) {
	agent, err := w.agent(id)
	if err != nil {
		return nil, err
	}
	return agent.Faults(), nil
}

// Unload detaches every agent and drops the registry. The World is unusable afterwards.
func (w *World) Unload(ctx context.Context) error {
	w.mu.Lock()
	if w.unloaded {
		w.mu.Unlock()
		return domain.ErrWorldUnloaded
	}
	w.unloaded = true
	agents := w.sortedLocked()
	w.agents = make(map[domain.AgentID]*runtime.Agent)
	w.reg = nil
	w.mu.Unlock()

	var errs []error
	for _, agent := range agents {
		if err := agent.Detach(ctx); err != nil {
			errs = append(errs, err)
		}
		w.forget(ctx, agent.ID())
	}
	w.logger.Debug("world unloaded", "agents", len(agents))
	return errors.Join(errs...)
}

func (w *World) agent(id domain.AgentID) (*runtime.Agent, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.agentLocked(id)
}

func (w *World) agentLocked(id domain.AgentID) (*runtime.Agent, error) {
	if w.unloaded {
		return nil, domain.ErrWorldUnloaded
	}
	agent, ok := w.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent '%s': %w", id, domain.ErrAgentNotAttached)
	}
	return agent, nil
}

func (w *World) snapshotAgents() ([]*runtime.Agent, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.unloaded {
		return nil, domain.ErrWorldUnloaded
	}
	return w.sortedLocked(), nil
}

func (w *World) sortedLocked() []*runtime.Agent {
	agents := make([]*runtime.Agent, 0, len(w.agents))
	for _, id := range slices.Sorted(maps.Keys(w.agents)) {
		agents = append(agents, w.agents[id])
	}
	return agents
}

func (w *World) publish(ctx context.Context, agents []*runtime.Agent) {
	if w.publisher == nil {
		return
	}
	for _, agent := range agents {
		if err := w.publisher.Publish(ctx, agent.Snapshot()); err != nil {
			w.logger.Warn("failed to publish snapshot", "agent", string(agent.ID()), "error", err)
		}
	}
}

// forget drops a detached agent's snapshot when the publisher can delete.
func (w *World) forget(ctx context.Context, id domain.AgentID) {
	store, ok := w.publisher.(ports.SnapshotDeleter)
	if !ok {
		return
	}
	if err := store.Delete(ctx, id); err != nil {
		w.logger.Warn("failed to delete snapshot", "agent", string(id), "error", err)
	}
}
