package transition

import (
	"fmt"

	"github.com/aretw0/statestack/pkg/domain"
)

// Request names the target descriptor, entry parameters and kind of a transition.
type Request struct {
	Kind   domain.TransitionKind `json:"kind" yaml:"kind" mapstructure:"kind"`
	Target domain.StateID        `json:"target,omitempty" yaml:"target,omitempty" mapstructure:"target"`
	Label  domain.Label          `json:"label,omitempty" yaml:"label,omitempty" mapstructure:"label"`
	Params domain.Params         `json:"params,omitempty" yaml:"params,omitempty" mapstructure:"params"`

	// Ancestor is the state an Interrupt unwinds to. It is not exited.
	Ancestor domain.StateID `json:"ancestor,omitempty" yaml:"ancestor,omitempty" mapstructure:"ancestor"`
	// Then is applied after the unwind of an Interrupt: push, replace, or empty for none.
	Then domain.TransitionKind `json:"then,omitempty" yaml:"then,omitempty" mapstructure:"then"`
}

// Push nests target on top of the current state.
func Push(target domain.StateID, params domain.Params) Request {
	return Request{Kind: domain.TransitionPush, Target: target, Params: params}
}

// Pop removes the current top state.
func Pop() Request {
	return Request{Kind: domain.TransitionPop}
}

// Replace exits the current top state and enters target at the same depth.
func Replace(target domain.StateID, params domain.Params) Request {
	return Request{Kind: domain.TransitionReplace, Target: target, Params: params}
}

// Interrupt force-exits every state above the nearest ancestor instance of ancestor.
func Interrupt(ancestor domain.StateID) Request {
	return Request{Kind: domain.TransitionInterrupt, Ancestor: ancestor}
}

// InterruptThen unwinds to ancestor and then applies a Push or Replace of target.
func InterruptThen(ancestor domain.StateID, then domain.TransitionKind, target domain.StateID, params domain.Params) Request {
	return Request{
		Kind:     domain.TransitionInterrupt,
		Ancestor: ancestor,
		Then:     then,
		Target:   target,
		Params:   params,
	}
}

// AtLabel returns a copy of the request entering target at the given label.
func (r Request) AtLabel(label domain.Label) Request {
	r.Label = label
	return r
}

// Enters reports whether applying the request creates a new instance.
func (r Request) Enters() bool {
	if r.Kind == domain.TransitionInterrupt {
		return r.Then.Enters()
	}
	return r.Kind.Enters()
}

// Validate checks the shape of the request. It does not consult any registry or stack.
func (r Request) Validate() error {
	invalid := func(reason string) error {
		return &domain.InvalidTransitionError{Kind: r.Kind, Reason: reason}
	}

	if !r.Kind.Valid() {
		return invalid(fmt.Sprintf("unknown kind '%s'", r.Kind))
	}

	switch r.Kind {
	case domain.TransitionPush, domain.TransitionReplace:
		if r.Target == "" {
			return invalid("target state is required")
		}
	case domain.TransitionPop:
		if r.Target != "" {
			return invalid("pop does not take a target")
		}
	case domain.TransitionInterrupt:
		if r.Ancestor == "" {
			return invalid("ancestor state is required")
		}
		switch r.Then {
		case "":
			if r.Target != "" {
				return invalid("target requires a follow-up kind")
			}
		case domain.TransitionPush, domain.TransitionReplace:
			if r.Target == "" {
				return invalid("follow-up requires a target state")
			}
		default:
			return invalid(fmt.Sprintf("follow-up kind '%s' must be push or replace", r.Then))
		}
	}
	return nil
}

// String renders the request for logs.
func (r Request) String() string {
	switch r.Kind {
	case domain.TransitionPop:
		return "pop"
	case domain.TransitionInterrupt:
		if r.Then == "" {
			return fmt.Sprintf("interrupt(to=%s)", r.Ancestor)
		}
		return fmt.Sprintf("interrupt(to=%s, %s %s)", r.Ancestor, r.Then, r.Target)
	}
	if r.Label != "" && r.Label != domain.DefaultLabel {
		return fmt.Sprintf("%s %s@%s", r.Kind, r.Target, r.Label)
	}
	return fmt.Sprintf("%s %s", r.Kind, r.Target)
}
