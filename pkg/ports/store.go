package ports

import (
	"context"

	"github.com/aretw0/statestack/pkg/domain"
)

// SnapshotPublisher receives stack snapshots produced by a world.
type SnapshotPublisher interface {
	// Publish stores the latest snapshot of one agent, replacing the previous one.
	Publish(ctx context.Context, snap domain.StackSnapshot) error
}

// SnapshotReader serves published snapshots.
type SnapshotReader interface {
	// Get returns the latest snapshot of an agent.
	// Returns domain.ErrSnapshotNotFound if the agent was never published or was deleted.
	Get(ctx context.Context, agent domain.AgentID) (domain.StackSnapshot, error)

	// List returns the agents with a published snapshot.
	List(ctx context.Context) ([]domain.AgentID, error)
}

// SnapshotDeleter prunes snapshots of agents that left the world.
type SnapshotDeleter interface {
	// Delete removes an agent's snapshot, typically after it was detached.
	Delete(ctx context.Context, agent domain.AgentID) error
}

// SnapshotSink is a publisher that can also prune.
type SnapshotSink interface {
	SnapshotPublisher
	SnapshotDeleter
}

// SnapshotStore is a publisher that can also be read and pruned.
type SnapshotStore interface {
	SnapshotSink
	SnapshotReader
}
