package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStateAction EventType = "state_action"
	EventTransition  EventType = "transition"
	EventFault       EventType = "fault"
	EventWake        EventType = "wake"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	AgentID   AgentID   `json:"agent_id"`
	Frame     uint64    `json:"frame"`
}

// StateEvent reports a lifecycle action of one State Instance.
type StateEvent struct {
	EventBase
	StateID  StateID     `json:"state_id"`
	Instance InstanceID  `json:"instance"`
	Label    Label       `json:"label,omitempty"`
	Action   StateAction `json:"action"`
	// Related is the state that caused the action (the pushed child for a pause, the
	// popped child for a resume, the previous top for a begin).
	Related StateID `json:"related,omitempty"`
}

// TransitionEvent reports the outcome of one Transition Request.
type TransitionEvent struct {
	EventBase
	Kind     TransitionKind `json:"kind"`
	Target   StateID        `json:"target,omitempty"`
	Issuer   InstanceID     `json:"issuer,omitempty"`
	Depth    int            `json:"depth"`
	Err      error          `json:"-"`
	Rejected bool           `json:"rejected,omitempty"`
}

// FaultEvent reports a failure isolated inside one agent.
type FaultEvent struct {
	EventBase
	StateID  StateID    `json:"state_id,omitempty"`
	Instance InstanceID `json:"instance,omitempty"`
	Err      error      `json:"-"`
	// Fatal is true when the agent's stack was torn down: reset to its root state, or
	// emptied and detached when the root could not be rebuilt.
	Fatal bool `json:"fatal"`
}

// WakeEvent reports that a suspended instance became eligible to run.
type WakeEvent struct {
	EventBase
	StateID  StateID    `json:"state_id"`
	Instance InstanceID `json:"instance"`
	Reason   WakeReason `json:"reason"`
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks run synchronously inside the agent's tick and must not call back into the agent.
type LifecycleHooks struct {
	OnStateAction func(context.Context, *StateEvent)
	OnTransition  func(context.Context, *TransitionEvent)
	OnFault       func(context.Context, *FaultEvent)
	OnWake        func(context.Context, *WakeEvent)
}
