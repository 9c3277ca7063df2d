/*
Package ports defines the driven ports (interfaces) of the statestack engine.

These interfaces decouple worlds and tooling from concrete backends, so that live stack
snapshots can be published in-process, to Redis for remote debug overlays, or anywhere else.

# Key Interfaces

  - SnapshotPublisher: receives every agent's stack snapshot after a world tick.
  - SnapshotReader: serves published snapshots to inspection tools.
  - DistributedLocker: leases a world name so that a single process ticks it.
*/
package ports
