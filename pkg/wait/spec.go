package wait

import (
	"fmt"
	"time"

	"github.com/aretw0/statestack/pkg/domain"
)

// Kind classifies what a Token is waiting for.
type Kind string

const (
	KindFrames    Kind = "frames"
	KindDuration  Kind = "duration"
	KindEvent     Kind = "event"
	KindCondition Kind = "condition"
	KindChild     Kind = "child"
	KindManual    Kind = "manual"
)

// Spec describes the condition a Token waits for. Build it with the constructors below.
type Spec struct {
	kind     Kind
	frames   int
	duration time.Duration
	event    string
	until    func() bool
	child    domain.InstanceID
}

// Frames waits for n whole ticks to pass; the token resolves on tick n+1.
// Frames(0) resumes on the very next tick.
func Frames(n int) Spec {
	if n < 0 {
		n = 0
	}
	return Spec{kind: KindFrames, frames: n}
}

// Duration waits until the accumulated tick delta reaches d.
func Duration(d time.Duration) Spec {
	return Spec{kind: KindDuration, duration: d}
}

// Event waits for the named world event to be delivered through Bridge.Notify.
func Event(name string) Spec {
	return Spec{kind: KindEvent, event: name}
}

// Until polls pred once per tick and resolves when it returns true.
func Until(pred func() bool) Spec {
	return Spec{kind: KindCondition, until: pred}
}

// Child waits for the given child instance to be removed from the stack.
func Child(id domain.InstanceID) Spec {
	return Spec{kind: KindChild, child: id}
}

// Manual waits for an external collaborator to call Token.Signal.
func Manual() Spec {
	return Spec{kind: KindManual}
}

// Kind returns the kind of the spec.
func (s Spec) Kind() Kind {
	return s.kind
}

// EventName returns the awaited event for KindEvent specs.
func (s Spec) EventName() string {
	return s.event
}

// ChildID returns the awaited child for KindChild specs.
func (s Spec) ChildID() domain.InstanceID {
	return s.child
}

// Validate checks that the spec was built by one of the constructors.
func (s Spec) Validate() error {
	switch s.kind {
	case KindFrames, KindDuration, KindManual:
		return nil
	case KindEvent:
		if s.event == "" {
			return fmt.Errorf("event wait requires an event name")
		}
		return nil
	case KindCondition:
		if s.until == nil {
			return fmt.Errorf("condition wait requires a predicate")
		}
		return nil
	case KindChild:
		if s.child == 0 {
			return fmt.Errorf("child wait requires an instance id")
		}
		return nil
	case "":
		return fmt.Errorf("empty wait spec")
	}
	return fmt.Errorf("unknown wait kind '%s'", s.kind)
}

// String renders the spec for snapshots and logs.
func (s Spec) String() string {
	switch s.kind {
	case KindFrames:
		return fmt.Sprintf("frames(%d)", s.frames)
	case KindDuration:
		return fmt.Sprintf("duration(%s)", s.duration)
	case KindEvent:
		return fmt.Sprintf("event(%s)", s.event)
	case KindChild:
		return fmt.Sprintf("child(%d)", s.child)
	case KindCondition, KindManual:
		return string(s.kind)
	}
	return "none"
}
