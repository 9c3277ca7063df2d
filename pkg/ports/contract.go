package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/statestack/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractSnapshot(agent domain.AgentID, frame uint64, states ...domain.StateID) domain.StackSnapshot {
	snap := domain.StackSnapshot{AgentID: agent, Frame: frame}
	for i, id := range states {
		snap.Entries = append(snap.Entries, domain.InstanceSnapshot{
			Instance: domain.InstanceID(i + 1),
			StateID:  id,
			Label:    domain.DefaultLabel,
			Phase:    domain.PhaseActive,
			Dormant:  i < len(states)-1,
		})
	}
	return snap
}

// RunSnapshotStoreContract runs a suite of tests to verify that a SnapshotStore
// implementation adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	agent := domain.AgentID("contract-agent-" + time.Now().Format("20060102150405"))

	t.Run("Publish and Get", func(t *testing.T) {
		snap := contractSnapshot(agent, 7, "idle", "patrol")
		snap.Entries[1].Wait = "frames(2)"
		snap.Entries[1].DebugData = "waypoint 3"

		require.NoError(t, store.Publish(ctx, snap), "Publish should not return error")

		loaded, err := store.Get(ctx, agent)
		require.NoError(t, err, "Get should not return error")
		assert.Equal(t, agent, loaded.AgentID)
		assert.Equal(t, uint64(7), loaded.Frame)
		assert.Equal(t, []domain.StateID{"idle", "patrol"}, loaded.IDs())
		assert.True(t, loaded.Entries[0].Dormant)
		assert.Equal(t, "frames(2)", loaded.Entries[1].Wait)
		assert.Equal(t, "waypoint 3", loaded.Entries[1].DebugData)
	})

	t.Run("Publish Replaces", func(t *testing.T) {
		require.NoError(t, store.Publish(ctx, contractSnapshot(agent, 8, "idle")))

		loaded, err := store.Get(ctx, agent)
		require.NoError(t, err)
		assert.Equal(t, uint64(8), loaded.Frame)
		assert.Equal(t, 1, loaded.Depth())
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "non-existent-"+agent)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Publish(ctx, contractSnapshot(agent, 9, "idle")))

		require.NoError(t, store.Delete(ctx, agent), "Delete should not return error")

		_, err := store.Get(ctx, agent)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound, "Get after Delete should return ErrSnapshotNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := agent + "-1"
		id2 := agent + "-2"
		_ = store.Publish(ctx, contractSnapshot(id1, 1, "idle"))
		_ = store.Publish(ctx, contractSnapshot(id2, 1, "idle"))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		agents, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, agents, id1)
		assert.Contains(t, agents, id2)
	})
}

// RunLockerContract verifies that a DistributedLocker serializes holders of one key.
func RunLockerContract(t *testing.T, locker DistributedLocker) {
	ctx := context.Background()
	key := "contract-world-" + time.Now().Format("20060102150405")

	t.Run("Lock and Unlock", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, key, time.Minute)
		require.NoError(t, err)
		require.NoError(t, unlock(ctx))

		unlock, err = locker.Lock(ctx, key, time.Minute)
		require.NoError(t, err, "a released key can be locked again")
		require.NoError(t, unlock(ctx))
	})

	t.Run("Held Lock Blocks", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, key, time.Minute)
		require.NoError(t, err)
		defer func() { _ = unlock(ctx) }()

		waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(waitCtx, key, time.Minute)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
