/*
Package domain contains the core value types of the statestack engine.

It defines the identities, lifecycle phases and transition kinds shared by every other
package, plus the error taxonomy, lifecycle events and read-only stack snapshots. This
package is kept pure and free of scheduling or I/O concerns.

# Key Entities

  - StateID / AgentID / InstanceID: identities of descriptors, agents and live instances.
  - Phase: lifecycle of a State Instance (Entering → Active ⇄ Suspended → Exiting → Destroyed).
  - TransitionKind: Push, Pop, Replace or Interrupt.
  - WakeReason: why a suspended behavior was resumed.
  - StackSnapshot: what debug overlays and inspection tools read.
*/
package domain
