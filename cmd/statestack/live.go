package main

import (
	"sync/atomic"

	"github.com/aretw0/statestack"
	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/registry"
	"github.com/aretw0/statestack/pkg/transition"
)

// liveWorld lets the HTTP server keep serving while hot reload swaps the world behind it.
type liveWorld struct {
	current atomic.Pointer[statestack.World]
}

func newLiveWorld(w *statestack.World) *liveWorld {
	lw := &liveWorld{}
	lw.current.Store(w)
	return lw
}

func (lw *liveWorld) Load() *statestack.World { return lw.current.Load() }

// Swap installs w and returns the previous world, which the caller unloads.
func (lw *liveWorld) Swap(w *statestack.World) *statestack.World { return lw.current.Swap(w) }

func (lw *liveWorld) Agents() []domain.AgentID { return lw.Load().Agents() }

func (lw *liveWorld) Inspect(id domain.AgentID) (domain.StackSnapshot, error) {
	return lw.Load().Inspect(id)
}

func (lw *liveWorld) RequestTransition(id domain.AgentID, req transition.Request) (*transition.Ticket, error) {
	return lw.Load().RequestTransition(id, req)
}

func (lw *liveWorld) Notify(id domain.AgentID, event string, payload any) error {
	return lw.Load().Notify(id, event, payload)
}

func (lw *liveWorld) Registry() *registry.Registry { return lw.Load().Registry() }
