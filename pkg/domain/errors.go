package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownState matches every *UnknownStateError.
	ErrUnknownState = errors.New("unknown state")

	// ErrInvalidTransition matches every *InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrRootPop matches every *RootPopError.
	ErrRootPop = errors.New("cannot pop root state")

	// ErrCleanupTimeout matches every *CleanupTimeoutError.
	ErrCleanupTimeout = errors.New("cleanup did not finish within the forced-exit tick")
)

var (
	// ErrAgentNotAttached is returned when an operation targets an agent without an active FSM.
	ErrAgentNotAttached = errors.New("agent not attached")

	// ErrAgentAttached is returned when attaching an agent that already has an active FSM.
	ErrAgentAttached = errors.New("agent already attached")

	// ErrReentrantTick is returned when an agent is ticked while its previous tick is still running.
	ErrReentrantTick = errors.New("agent tick is not reentrant")

	// ErrRequestCanceled is the result of a transition ticket cancelled before it was applied.
	ErrRequestCanceled = errors.New("transition request canceled")

	// ErrInterrupted is returned by behavior helpers once the state is being force-exited.
	ErrInterrupted = errors.New("state interrupted")

	// ErrBehaviorPanic wraps a panic recovered from behavior code.
	ErrBehaviorPanic = errors.New("behavior panicked")

	// ErrWorldUnloaded is returned by a world after Unload.
	ErrWorldUnloaded = errors.New("world unloaded")

	// ErrSnapshotNotFound is returned by snapshot stores for agents never published.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// UnknownStateError is returned when a descriptor is not registered.
type UnknownStateError struct {
	StateID StateID
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("unknown state '%s'", e.StateID)
}

func (e *UnknownStateError) Is(target error) bool {
	return target == ErrUnknownState
}

// InvalidTransitionError is returned when a request is malformed, stale, or issued by an
// instance that is not allowed to mutate the stack.
type InvalidTransitionError struct {
	Kind   TransitionKind
	Issuer InstanceID // Zero for external requests
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e.Issuer == 0 {
		return fmt.Sprintf("invalid %s transition: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("invalid %s transition from instance %d: %s", e.Kind, e.Issuer, e.Reason)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// RootPopError is returned when a Pop targets the last remaining instance of a stack.
type RootPopError struct {
	AgentID AgentID
}

func (e *RootPopError) Error() string {
	return fmt.Sprintf("agent '%s': cannot pop the root state", e.AgentID)
}

func (e *RootPopError) Is(target error) bool {
	return target == ErrRootPop
}

// CleanupTimeoutError is reported when a force-exited behavior kept suspending instead of
// finishing its cleanup. It is fatal for the agent's FSM: the stack is reset to its root.
type CleanupTimeoutError struct {
	AgentID  AgentID
	StateID  StateID
	Instance InstanceID
	Waits    int
}

func (e *CleanupTimeoutError) Error() string {
	return fmt.Sprintf("agent '%s': state '%s' (instance %d) attempted %d waits during cleanup",
		e.AgentID, e.StateID, e.Instance, e.Waits)
}

func (e *CleanupTimeoutError) Is(target error) bool {
	return target == ErrCleanupTimeout
}
