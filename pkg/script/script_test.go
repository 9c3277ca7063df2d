package script_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/statestack"
	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/registry"
	"github.com/aretw0/statestack/pkg/script"
	"github.com/aretw0/statestack/pkg/transition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frame = 16 * time.Millisecond

func newWorld(t *testing.T, src string, opts ...statestack.Option) *statestack.World {
	t.Helper()
	cat, err := script.ParseCatalog([]byte(src))
	require.NoError(t, err)
	reg := registry.NewRegistry()
	require.NoError(t, cat.Register(reg))
	return statestack.New(reg, opts...)
}

func ticks(t *testing.T, w *statestack.World, n int) {
	t.Helper()
	for range n {
		require.NoError(t, w.Tick(context.Background(), frame))
	}
}

func top(t *testing.T, w *statestack.World, id domain.AgentID) domain.InstanceSnapshot {
	t.Helper()
	snap, err := w.Inspect(id)
	require.NoError(t, err)
	inst, ok := snap.Top()
	require.True(t, ok)
	return inst
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "Unknown Op",
			src:  "states: [{id: a, labels: {default: [{op: jump}]}}]",
			want: `unknown op "jump"`,
		},
		{
			name: "Unknown Field",
			src:  "states: [{id: a, labels: {default: [{op: wait_frames, frame: 2}]}}]",
			want: "frame",
		},
		{
			name: "Unknown State",
			src:  "states: [{id: a, labels: {default: [{op: call, state: ghost}]}}]",
			want: "unknown state 'ghost'",
		},
		{
			name: "Unknown Interrupt Ancestor",
			src:  "states: [{id: a, labels: {default: [{op: interrupt, ancestor: ghost}]}}]",
			want: "unknown state 'ghost'",
		},
		{
			name: "Unknown Blocklist State",
			src:  "states: [{id: a, blocklist: [ghost]}]",
			want: "blocklist: unknown state 'ghost'",
		},
		{
			name: "Unknown Goto Label",
			src:  "states: [{id: a, labels: {default: [{op: goto_label, label: later}]}}]",
			want: "label 'later' is not defined",
		},
		{
			name: "Unknown Target Label",
			src: `states:
  - {id: a, labels: {default: [{op: push, state: b, label: alert}]}}
  - {id: b, labels: {calm: [{op: yield}]}}`,
			want: "state 'b' has no label 'alert'",
		},
		{
			name: "Waiting Hook",
			src:  "states: [{id: a, on_enter: [{op: wait_frames, frames: 1}]}]",
			want: "cannot run in a lifecycle hook",
		},
		{
			name: "Transition In Cleanup",
			src:  "states: [{id: a, cleanup: [{op: pop}]}]",
			want: "cannot run during cleanup",
		},
		{
			name: "Duplicate State",
			src:  "states: [{id: a}, {id: a}]",
			want: "declared twice",
		},
		{
			name: "Missing Required Field",
			src:  "states: [{id: a, labels: {default: [{op: wait_event}]}}]",
			want: "event is required",
		},
		{
			name: "Unknown Catalog Key",
			src:  "states: [{id: a, on_enter_typo: []}]",
			want: "on_enter_typo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := script.ParseCatalog([]byte(tt.src))
			require.Error(t, err)
			assert.ErrorIs(t, err, script.ErrInvalidCatalog)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseCatalog_KnownStates(t *testing.T) {
	src := "states: [{id: a, labels: {default: [{op: push, state: native}]}}]"

	_, err := script.ParseCatalog([]byte(src))
	require.Error(t, err)

	cat, err := script.ParseCatalog([]byte(src), "native")
	require.NoError(t, err)
	assert.Equal(t, []domain.StateID{"a"}, cat.IDs())
}

func TestCatalog_Descriptors(t *testing.T) {
	cat, err := script.ParseCatalog([]byte(`
states:
  - id: guard
    description: Watches the gate.
    tags: [root]
    labels:
      default:
        - {op: call, state: alert, label: loud}
        - {op: replace, state: alert}
      night:
        - {op: interrupt, ancestor: guard, then: push, state: alert}
  - id: alert
    blocklist: [guard]
    labels:
      default: [{op: pop}]
      loud: [{op: pop}]
`))
	require.NoError(t, err)

	ds := cat.Descriptors()
	require.Len(t, ds, 2)

	guard := ds[0]
	assert.Equal(t, domain.StateID("guard"), guard.ID)
	assert.Equal(t, "Watches the gate.", guard.Description)
	assert.True(t, guard.HasTag("root"))
	assert.Equal(t, []domain.Label{"default", "night"}, guard.Labels)
	assert.Equal(t, []registry.Link{
		{Kind: domain.TransitionPush, Target: "alert", Label: "loud"},
		{Kind: domain.TransitionReplace, Target: "alert"},
		{Kind: domain.TransitionInterrupt, Target: "alert"},
	}, guard.Links)
	assert.Empty(t, guard.Blocklist)
	assert.True(t, ds[1].Blocks("guard"))
}

func TestScript_CallWaitsForChild(t *testing.T) {
	world := newWorld(t, `
states:
  - id: root
    labels:
      default:
        - {op: call, state: child, params: {n: 2}}
        - {op: debug, text: back}
        - {op: wait_event, event: never}
  - id: child
    labels:
      default:
        - {op: debug, text: working}
        - {op: wait_frames, frames: 1}
        - {op: finish, result: done}
`)
	ctx := context.Background()
	require.NoError(t, world.Attach(ctx, "npc", "root", nil, nil))

	ticks(t, world, 2)
	snap, err := world.Inspect("npc")
	require.NoError(t, err)
	assert.Equal(t, []domain.StateID{"root", "child"}, snap.IDs())
	assert.Equal(t, "working", top(t, world, "npc").DebugData)

	ticks(t, world, 6)
	snap, err = world.Inspect("npc")
	require.NoError(t, err)
	assert.Equal(t, []domain.StateID{"root"}, snap.IDs())
	assert.Equal(t, "back", top(t, world, "npc").DebugData)
}

func TestScript_HooksAndGotoLabel(t *testing.T) {
	world := newWorld(t, `
states:
  - id: guard
    on_enter: [{op: debug, text: entered}]
    labels:
      default:
        - {op: debug, text: a}
        - {op: goto_label, label: b}
      b:
        - {op: debug, text: b}
        - {op: wait_event, event: never}
`)
	ctx := context.Background()
	require.NoError(t, world.Attach(ctx, "npc", "guard", nil, nil))
	assert.Equal(t, "entered", top(t, world, "npc").DebugData)

	ticks(t, world, 4)
	inst := top(t, world, "npc")
	assert.Equal(t, domain.Label("b"), inst.Label)
	assert.Equal(t, "b", inst.DebugData)
}

func TestScript_FinishStopsWithResult(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	world := newWorld(t, `
states:
  - id: root
    labels:
      default:
        - {op: call, state: child}
        - {op: wait_event, event: never}
  - id: child
    labels:
      default:
        - {op: finish, result: loot}
        - {op: log, message: "past the finish"}
`, statestack.WithLogger(logger))
	require.NoError(t, world.Attach(context.Background(), "npc", "root", nil, nil))

	ticks(t, world, 4)

	snap, err := world.Inspect("npc")
	require.NoError(t, err)
	assert.Equal(t, []domain.StateID{"root"}, snap.IDs())
	assert.Contains(t, buf.String(), "result=loot")
	assert.NotContains(t, buf.String(), "past the finish")
}

func TestScript_CleanupRunsOnForcedExit(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	world := newWorld(t, `
states:
  - id: idle
  - id: chase
    labels:
      default: [{op: wait_event, event: never}]
    cleanup:
      - {op: log, message: "chase aborted"}
      - {op: wait_frames, frames: 5}
      - {op: yield}
      - {op: log, message: "chase cleaned up"}
    on_exit:
      - {op: log, message: "chase over"}
`, statestack.WithLogger(logger))
	ctx := context.Background()
	require.NoError(t, world.Attach(ctx, "npc", "idle", nil, nil))

	_, err := world.RequestTransition("npc", pushReq("chase"))
	require.NoError(t, err)
	ticks(t, world, 3)
	assert.NotContains(t, buf.String(), "chase aborted")

	_, err = world.RequestTransition("npc", popReq())
	require.NoError(t, err)
	ticks(t, world, 1)

	out := buf.String()
	assert.Contains(t, out, "chase aborted")
	assert.Contains(t, out, "chase cleaned up")
	assert.Contains(t, out, "chase over")
	assert.Less(t, strings.Index(out, "chase aborted"), strings.Index(out, "chase cleaned up"))
	assert.Less(t, strings.Index(out, "chase cleaned up"), strings.Index(out, "chase over"))

	faults, err := world.Faults("npc")
	require.NoError(t, err)
	assert.Empty(t, faults)
}

func TestScript_RejectedPopContinues(t *testing.T) {
	world := newWorld(t, `
states:
  - id: root
    labels:
      default:
        - {op: pop}
        - {op: debug, text: still here}
        - {op: wait_event, event: never}
`)
	require.NoError(t, world.Attach(context.Background(), "npc", "root", nil, nil))

	ticks(t, world, 3)
	assert.Equal(t, "still here", top(t, world, "npc").DebugData)
}

func TestScript_StateWithoutLabelsHolds(t *testing.T) {
	world := newWorld(t, "states: [{id: post}]")
	require.NoError(t, world.Attach(context.Background(), "npc", "post", nil, nil))

	ticks(t, world, 5)
	inst := top(t, world, "npc")
	assert.Equal(t, domain.InstanceID(1), inst.Instance)
	assert.Equal(t, domain.PhaseSuspended, inst.Phase)
}

func TestParseScenario(t *testing.T) {
	s, err := script.ParseScenario([]byte(`
frames: 10
delta: 0.02
states:
  - id: idle
    labels:
      default:
        - {op: wait_event, event: wake, debug: true}
        - {op: wait_event, event: never}
agents:
  - {id: a, root: idle}
  - {id: b, root: idle}
events:
  - {frame: 2, event: wake, agent: a, payload: hello}
  - {frame: 3, event: wake, payload: everyone}
requests:
  - {frame: 5, agent: b, request: {kind: pop}}
`))
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, s.DeltaTime())
	assert.Equal(t, uint64(10), s.Frames)

	reg := registry.NewRegistry()
	require.NoError(t, s.Register(reg))
	world := statestack.New(reg)
	ctx := context.Background()
	require.NoError(t, s.Attach(ctx, world))

	for f := uint64(1); f <= 4; f++ {
		require.NoError(t, s.Step(ctx, world, f))
	}
	assert.Equal(t, "hello", top(t, world, "a").DebugData)
	assert.Equal(t, "everyone", top(t, world, "b").DebugData)

	// The root pop is rejected at apply time; scripted requests never fail a step.
	require.NoError(t, s.Step(ctx, world, 5))
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := map[string]string{
		"Unknown Root":    "states: [{id: a}]\nagents: [{id: x, root: ghost}]",
		"Duplicate Agent": "states: [{id: a}]\nagents: [{id: x, root: a}, {id: x, root: a}]",
		"Unknown Target":  "states: [{id: a}]\nagents: [{id: x, root: a}]\nevents: [{frame: 1, event: e, agent: y}]",
		"Bad Request":     "states: [{id: a}]\nagents: [{id: x, root: a}]\nrequests: [{frame: 1, agent: x, request: {kind: push}}]",
		"Bad Delta":       "delta: soon\nstates: [{id: a}]",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := script.ParseScenario([]byte(src))
			assert.Error(t, err)
		})
	}
}

func TestLoadScenario_File(t *testing.T) {
	s, err := script.LoadScenario("testdata/guard.yaml")
	require.NoError(t, err)
	assert.Equal(t, []domain.StateID{"idle", "patrol", "investigate", "flee"}, s.IDs())

	reg := registry.NewRegistry()
	require.NoError(t, s.Register(reg))
	world := statestack.New(reg)
	ctx := context.Background()
	require.NoError(t, s.Attach(ctx, world))

	for f := uint64(1); f <= s.Frames; f++ {
		require.NoError(t, s.Step(ctx, world, f))
	}

	for _, id := range world.Agents() {
		snap, err := world.Inspect(id)
		require.NoError(t, err)
		assert.Equal(t, domain.StateID("idle"), snap.Entries[0].StateID, id)

		faults, err := world.Faults(id)
		require.NoError(t, err)
		assert.Empty(t, faults, id)
	}

	_, err = script.LoadScenario("testdata/missing.yaml")
	assert.Error(t, err)
}

func pushReq(target domain.StateID) transition.Request { return transition.Push(target, nil) }

func popReq() transition.Request { return transition.Pop() }
