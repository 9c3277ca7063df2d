package domain

// Phase defines where a State Instance is in its lifecycle.
type Phase string

const (
	PhaseEntering  Phase = "entering"  // Created, not yet settled on the stack
	PhaseActive    Phase = "active"    // Eligible to run on the next resume step
	PhaseSuspended Phase = "suspended" // Parked on a Wait Token
	PhaseExiting   Phase = "exiting"   // Cleanup in progress
	PhaseDestroyed Phase = "destroyed" // Removed from the stack
)

// Live reports whether an instance in this phase is still on a stack.
func (p Phase) Live() bool {
	return p != PhaseExiting && p != PhaseDestroyed
}

// WakeReason explains why a suspended behavior was resumed.
type WakeReason string

const (
	WakeStart          WakeReason = "start"       // First slice of a fresh instance
	WakeSignaled       WakeReason = "signaled"    // Manual token signalled by a collaborator
	WakeTimer          WakeReason = "timer"       // Frame or duration timer elapsed
	WakeEventDelivered WakeReason = "event"       // Named world event delivered
	WakeCondition      WakeReason = "condition"   // Polled predicate became true
	WakeChildDone      WakeReason = "child_done"  // Child state was removed from the stack
	WakeInterrupted    WakeReason = "interrupted" // Forced exit; run cleanup and finish
	WakeRejected       WakeReason = "rejected"    // The request the wait depended on was rejected
)

// StateAction is a lifecycle notification emitted for a State Instance.
type StateAction string

const (
	ActionBegin  StateAction = "begin"  // Entered by Replace, Interrupt or Attach
	ActionEnd    StateAction = "end"    // Exited by Replace, Interrupt or Detach
	ActionPush   StateAction = "push"   // Entered on top of a parent
	ActionPop    StateAction = "pop"    // Exited, exposing its parent
	ActionResume StateAction = "resume" // Became the top again
	ActionPause  StateAction = "pause"  // Covered by a pushed child
)
