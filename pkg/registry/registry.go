package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/statestack/pkg/behavior"
	"github.com/aretw0/statestack/pkg/domain"
)

var (
	// ErrSealed is returned when registering into a sealed registry.
	ErrSealed = errors.New("registry is sealed")
	// ErrDuplicate is returned when a state identity is registered twice.
	ErrDuplicate = errors.New("state already registered")
	// ErrInvalidDescriptor is returned for descriptors without identity or factory.
	ErrInvalidDescriptor = errors.New("invalid state descriptor")
)

// Descriptor is the immutable blueprint of a state.
type Descriptor struct {
	ID          domain.StateID
	Description string
	Tags        []string
	// Labels lists the entry points the factory accepts. Empty means any label.
	Labels []domain.Label
	// Links declares the transitions the behavior may request. Informational only:
	// used by catalog graphs, never enforced.
	Links []Link
	// Blocklist names the states that may not be pushed or replaced onto this one while
	// it is on top. Blocked pushes stay pending until the state leaves the top.
	Blocklist []domain.StateID

	Factory behavior.Factory

	// OnEnter runs once when an instance is entered, before its first slice.
	OnEnter func(behavior.Scope)
	// OnExit runs exactly once per removed instance, after the unit's cleanup.
	OnExit func(behavior.Scope)
}

// Link is a declared outgoing transition of a descriptor.
type Link struct {
	Kind   domain.TransitionKind
	Target domain.StateID
	Label  domain.Label
}

// HasTag reports whether the descriptor carries the capability tag.
func (d *Descriptor) HasTag(tag string) bool {
	return slices.Contains(d.Tags, tag)
}

// AcceptsLabel reports whether the descriptor can be entered at label.
func (d *Descriptor) AcceptsLabel(label domain.Label) bool {
	if len(d.Labels) == 0 {
		return true
	}
	return slices.Contains(d.Labels, label.OrDefault())
}

// Blocks reports whether target is on the descriptor's blocklist.
func (d *Descriptor) Blocks(target domain.StateID) bool {
	return slices.Contains(d.Blocklist, target)
}

// Registry maps state identities to descriptors. It is scoped to one world and can be
// sealed once loading is complete, after which it is read-only.
type Registry struct {
	mu     sync.RWMutex
	states map[domain.StateID]*Descriptor
	sealed bool
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		states: make(map[domain.StateID]*Descriptor),
	}
}

// Register validates and adds a descriptor. The registry keeps its own copy.
func (r *Registry) Register(d Descriptor) error {
	if d.ID == "" {
		return fmt.Errorf("%w: empty state id", ErrInvalidDescriptor)
	}
	if d.Factory == nil {
		return fmt.Errorf("%w: state '%s' has no factory", ErrInvalidDescriptor, d.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("register '%s': %w", d.ID, ErrSealed)
	}
	if _, exists := r.states[d.ID]; exists {
		return fmt.Errorf("register '%s': %w", d.ID, ErrDuplicate)
	}

	d.Tags = slices.Clone(d.Tags)
	d.Labels = slices.Clone(d.Labels)
	d.Links = slices.Clone(d.Links)
	d.Blocklist = slices.Clone(d.Blocklist)
	r.states[d.ID] = &d
	return nil
}

// MustRegister is Register for static setup code. It panics on error.
func (r *Registry) MustRegister(descriptors ...Descriptor) *Registry {
	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Seal makes the registry read-only.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Lookup returns the descriptor registered for id.
// Returns an *domain.UnknownStateError if it does not exist.
func (r *Registry) Lookup(id domain.StateID) (*Descriptor, error) {
	r.mu.RLock()
	d, ok := r.states[id]
	r.mu.RUnlock()

	if !ok {
		return nil, &domain.UnknownStateError{StateID: id}
	}
	return d, nil
}

// IDs returns the registered identities in lexical order.
func (r *Registry) IDs() []domain.StateID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]domain.StateID, 0, len(r.states))
	for id := range r.states {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// WithTag returns the identities of every descriptor carrying tag, in lexical order.
func (r *Registry) WithTag(tag string) []domain.StateID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []domain.StateID
	for id, d := range r.states {
		if d.HasTag(tag) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.states)
}
