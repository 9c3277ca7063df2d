package statestack_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/statestack"
	"github.com/aretw0/statestack/pkg/adapters/memory"
	"github.com/aretw0/statestack/pkg/behavior"
	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/registry"
	"github.com/aretw0/statestack/pkg/transition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frame = 16 * time.Millisecond

func newRegistry(counter *atomic.Int64) *registry.Registry {
	return registry.NewRegistry().MustRegister(
		registry.Descriptor{
			ID:   "idle",
			Tags: []string{"ambient"},
			Factory: behavior.Ticking(func(behavior.Scope) (bool, error) {
				counter.Add(1)
				return false, nil
			}, nil),
		},
		registry.Descriptor{
			ID: "faulty",
			Factory: behavior.Ticking(func(behavior.Scope) (bool, error) {
				panic("corrupted blackboard")
			}, nil),
		},
		registry.Descriptor{
			ID: "listener",
			Factory: behavior.Latent(func(c *behavior.Context) error {
				payload, err := c.WaitEvent("alarm")
				if err != nil {
					return err
				}
				c.SetDebugData(payload.(string))
				_, err = c.WaitEvent("never")
				return err
			}),
		},
	)
}

func TestWorld_AttachSealsRegistryAndTicks(t *testing.T) {
	var calls atomic.Int64
	reg := newRegistry(&calls)
	world := statestack.New(reg)
	ctx := context.Background()

	assert.True(t, reg.Sealed())

	require.NoError(t, world.Attach(ctx, "a", "idle", nil, nil))
	require.NoError(t, world.Attach(ctx, "b", "idle", nil, nil))
	assert.Equal(t, []domain.AgentID{"a", "b"}, world.Agents())

	for range 3 {
		require.NoError(t, world.Tick(ctx, frame))
	}
	assert.Equal(t, int64(6), calls.Load())

	snap, err := world.Inspect("a")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snap.Frame)
	assert.Equal(t, []domain.StateID{"idle"}, snap.IDs())
}

func TestWorld_AttachErrors(t *testing.T) {
	var calls atomic.Int64
	world := statestack.New(newRegistry(&calls))
	ctx := context.Background()

	require.NoError(t, world.Attach(ctx, "a", "idle", nil, nil))
	assert.ErrorIs(t, world.Attach(ctx, "a", "idle", nil, nil), domain.ErrAgentAttached)

	err := world.Attach(ctx, "b", "ghost", nil, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownState)
	assert.Equal(t, []domain.AgentID{"a"}, world.Agents())
}

func TestWorld_FaultIsIsolatedPerAgent(t *testing.T) {
	var calls atomic.Int64
	var faults atomic.Int64
	world := statestack.New(newRegistry(&calls),
		statestack.WithParallelism(2),
		statestack.WithLifecycleHooks(domain.LifecycleHooks{
			OnFault: func(_ context.Context, e *domain.FaultEvent) {
				if e.AgentID == "broken" {
					faults.Add(1)
				}
			},
		}),
	)
	ctx := context.Background()

	require.NoError(t, world.Attach(ctx, "broken", "faulty", nil, nil))
	require.NoError(t, world.Attach(ctx, "healthy", "idle", nil, nil))

	for range 4 {
		require.NoError(t, world.Tick(ctx, frame))
	}

	assert.Equal(t, int64(4), calls.Load(), "healthy agent must keep ticking")
	assert.Positive(t, faults.Load())

	recent, err := world.Faults("broken")
	require.NoError(t, err)
	require.NotEmpty(t, recent)
	assert.ErrorIs(t, recent[0].Err, domain.ErrBehaviorPanic)

	recent, err = world.Faults("healthy")
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestWorld_NotifyAndBroadcast(t *testing.T) {
	var calls atomic.Int64
	world := statestack.New(newRegistry(&calls))
	ctx := context.Background()

	require.NoError(t, world.Attach(ctx, "a", "listener", nil, nil))
	require.NoError(t, world.Attach(ctx, "b", "listener", nil, nil))
	require.NoError(t, world.Tick(ctx, frame))

	require.NoError(t, world.Notify("a", "alarm", "direct"))
	require.NoError(t, world.Tick(ctx, frame))

	snap, err := world.Inspect("a")
	require.NoError(t, err)
	top, _ := snap.Top()
	assert.Equal(t, "direct", top.DebugData)

	snap, err = world.Inspect("b")
	require.NoError(t, err)
	top, _ = snap.Top()
	assert.Empty(t, top.DebugData)

	require.NoError(t, world.Broadcast("alarm", "everyone"))
	require.NoError(t, world.Tick(ctx, frame))

	snap, err = world.Inspect("b")
	require.NoError(t, err)
	top, _ = snap.Top()
	assert.Equal(t, "everyone", top.DebugData)

	assert.ErrorIs(t, world.Notify("ghost", "alarm", nil), domain.ErrAgentNotAttached)
}

func TestWorld_RequestTransition(t *testing.T) {
	var calls atomic.Int64
	world := statestack.New(newRegistry(&calls))
	ctx := context.Background()
	require.NoError(t, world.Attach(ctx, "a", "idle", nil, nil))

	tk, err := world.RequestTransition("a", transition.Push("listener", nil))
	require.NoError(t, err)
	require.NoError(t, world.TickAgent(ctx, "a", frame))
	assert.Equal(t, transition.StatusApplied, tk.Status())

	snap, err := world.Inspect("a")
	require.NoError(t, err)
	assert.Equal(t, []domain.StateID{"idle", "listener"}, snap.IDs())

	_, err = world.RequestTransition("a", transition.Push("ghost", nil))
	assert.ErrorIs(t, err, domain.ErrUnknownState)

	_, err = world.RequestTransition("ghost", transition.Pop())
	assert.ErrorIs(t, err, domain.ErrAgentNotAttached)
}

func TestWorld_PublishesSnapshots(t *testing.T) {
	var calls atomic.Int64
	store := memory.NewStore()
	world := statestack.New(newRegistry(&calls), statestack.WithSnapshotPublisher(store))
	ctx := context.Background()

	require.NoError(t, world.Attach(ctx, "a", "idle", nil, nil))
	require.NoError(t, world.Tick(ctx, frame))
	require.NoError(t, world.Tick(ctx, frame))

	snap, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Frame)

	require.NoError(t, world.Detach(ctx, "a"))
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
}

func TestWorld_DetachAndInspectAll(t *testing.T) {
	var calls atomic.Int64
	world := statestack.New(newRegistry(&calls))
	ctx := context.Background()

	require.NoError(t, world.Attach(ctx, "b", "idle", nil, nil))
	require.NoError(t, world.Attach(ctx, "a", "listener", nil, nil))

	all := world.InspectAll()
	require.Len(t, all, 2)
	assert.Equal(t, domain.AgentID("a"), all[0].AgentID)

	require.NoError(t, world.Detach(ctx, "a"))
	assert.ErrorIs(t, world.Detach(ctx, "a"), domain.ErrAgentNotAttached)
	assert.Equal(t, []domain.AgentID{"b"}, world.Agents())
}

func TestWorld_Unload(t *testing.T) {
	var calls atomic.Int64
	exits := 0
	reg := newRegistry(&calls)
	require.NoError(t, reg.Register(registry.Descriptor{
		ID: "tracked",
		Factory: behavior.Ticking(func(behavior.Scope) (bool, error) {
			return false, nil
		}, nil),
		OnExit: func(behavior.Scope) { exits++ },
	}))

	world := statestack.New(reg)
	ctx := context.Background()
	require.NoError(t, world.Attach(ctx, "a", "tracked", nil, nil))
	require.NoError(t, world.Tick(ctx, frame))

	require.NoError(t, world.Unload(ctx))
	assert.Equal(t, 1, exits)
	assert.Nil(t, world.Registry())

	assert.ErrorIs(t, world.Tick(ctx, frame), domain.ErrWorldUnloaded)
	assert.ErrorIs(t, world.Attach(ctx, "a", "idle", nil, nil), domain.ErrWorldUnloaded)
	assert.ErrorIs(t, world.Unload(ctx), domain.ErrWorldUnloaded)
	assert.Nil(t, world.InspectAll())
}

func TestWorld_AgentOptions(t *testing.T) {
	var calls atomic.Int64
	world := statestack.New(newRegistry(&calls), statestack.WithMaxStackDepth(1))
	ctx := context.Background()
	require.NoError(t, world.Attach(ctx, "a", "idle", nil, nil))

	tk, err := world.RequestTransition("a", transition.Push("listener", nil))
	require.NoError(t, err)
	require.NoError(t, world.Tick(ctx, frame))

	assert.Equal(t, transition.StatusRejected, tk.Status())
	assert.ErrorIs(t, tk.Err(), domain.ErrInvalidTransition)
}

func TestWorld_UnboundedParallelism(t *testing.T) {
	for _, n := range []int{0, -3} {
		var calls atomic.Int64
		world := statestack.New(newRegistry(&calls), statestack.WithParallelism(n))
		ctx := context.Background()
		require.NoError(t, world.Attach(ctx, "a", "idle", nil, nil))
		require.NoError(t, world.Attach(ctx, "b", "idle", nil, nil))

		done := make(chan error, 1)
		go func() { done <- world.Tick(ctx, frame) }()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatalf("Tick did not return with parallelism %d", n)
		}
		assert.Equal(t, int64(2), calls.Load())
	}
}
