package runtime

import (
	"slices"
	"time"

	"github.com/aretw0/statestack/pkg/behavior"
	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/registry"
	"github.com/aretw0/statestack/pkg/wait"
)

// instance is one State Instance. It is only touched by its agent's tick.
type instance struct {
	id     domain.InstanceID
	desc   *registry.Descriptor
	label  domain.Label
	params domain.Params
	unit   behavior.Unit
	scope  *scope

	phase   domain.Phase
	started bool
	running bool // inside Start or Resume
	done    bool // finished on its own, waiting to be removed
	failure error

	token *wait.Token

	enteredFrame    uint64
	enteredAt       time.Duration
	lastAction      domain.StateAction
	lastActionFrame uint64
	debug           string
}

func (i *instance) mark(action domain.StateAction, frame uint64) {
	i.lastAction = action
	i.lastActionFrame = frame
}

// err is the outcome reported to a waiting parent.
func (i *instance) err() error {
	if i.failure != nil {
		return i.failure
	}
	return i.unit.Err()
}

func (i *instance) snapshot(dormant bool) domain.InstanceSnapshot {
	s := domain.InstanceSnapshot{
		Instance:        i.id,
		StateID:         i.desc.ID,
		Label:           i.label,
		Phase:           i.phase,
		Dormant:         dormant,
		Tags:            slices.Clone(i.desc.Tags),
		EnteredFrame:    i.enteredFrame,
		LastAction:      i.lastAction,
		LastActionFrame: i.lastActionFrame,
		DebugData:       i.debug,
	}
	if i.token != nil && !i.token.Resolved() {
		s.Wait = i.token.Spec().String()
	}
	return s
}

// stack is the ordered State Stack, bottom first.
type stack struct {
	entries []*instance
	transit *instance // the single instance allowed to be entering or exiting
}

func (s *stack) depth() int { return len(s.entries) }

func (s *stack) top() *instance {
	if len(s.entries) == 0 {
		return nil
	}
	return s.entries[len(s.entries)-1]
}

func (s *stack) at(i int) *instance {
	if i < 0 || i >= len(s.entries) {
		return nil
	}
	return s.entries[i]
}

// parent returns the instance directly below the top.
func (s *stack) parent() *instance {
	return s.at(len(s.entries) - 2)
}

// find returns the index of the nearest instance of id, searching from the top down.
func (s *stack) find(id domain.StateID) int {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].desc.ID == id {
			return i
		}
	}
	return -1
}

func (s *stack) contains(id domain.InstanceID) bool {
	for _, inst := range s.entries {
		if inst.id == id {
			return true
		}
	}
	return false
}

func (s *stack) begin(inst *instance) {
	if s.transit != nil {
		panic("runtime: overlapping enter/exit on one stack")
	}
	s.transit = inst
}

func (s *stack) end() {
	s.transit = nil
}

func (s *stack) push(inst *instance) {
	s.entries = append(s.entries, inst)
}

func (s *stack) pop() *instance {
	top := s.top()
	if top != nil {
		s.entries[len(s.entries)-1] = nil
		s.entries = s.entries[:len(s.entries)-1]
	}
	return top
}

func (s *stack) each(fn func(i int, inst *instance)) {
	for i, inst := range s.entries {
		fn(i, inst)
	}
}
