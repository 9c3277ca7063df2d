package behavior_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/statestack/internal/logging"
	"github.com/aretw0/statestack/pkg/behavior"
	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/transition"
	"github.com/aretw0/statestack/pkg/wait"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubScope drives a unit outside of the runtime.
type stubScope struct {
	bridge  *wait.Bridge
	queue   *transition.Queue
	id      domain.InstanceID
	nextID  domain.InstanceID
	exiting bool
	budget  int
	frame   uint64
	debug   string
}

func newStubScope() *stubScope {
	return &stubScope{
		bridge: wait.NewBridge(),
		queue:  transition.NewQueue(0),
		id:     1,
		nextID: 1,
		budget: 2,
	}
}

func (s *stubScope) AgentID() domain.AgentID     { return "npc" }
func (s *stubScope) Instance() domain.InstanceID { return s.id }
func (s *stubScope) StateID() domain.StateID     { return "patrol" }
func (s *stubScope) Label() domain.Label         { return domain.DefaultLabel }
func (s *stubScope) Params() domain.Params       { return domain.Params{"route": "a"} }
func (s *stubScope) Decode(out any) error        { return nil }
func (s *stubScope) Frame() uint64               { return s.frame }
func (s *stubScope) DeltaTime() time.Duration    { return 16 * time.Millisecond }
func (s *stubScope) Elapsed() time.Duration      { return 0 }
func (s *stubScope) Logger() *slog.Logger        { return logging.NewNop() }
func (s *stubScope) Owner() any                  { return nil }
func (s *stubScope) SetDebugData(data string)    { s.debug = data }
func (s *stubScope) Exiting() bool               { return s.exiting }
func (s *stubScope) CleanupBudget() int          { return s.budget }

func (s *stubScope) Arm(spec wait.Spec) (*wait.Token, error) {
	return s.bridge.Arm(s.id, spec)
}

func (s *stubScope) Request(req transition.Request) (*transition.Ticket, error) {
	tk, err := s.queue.Enqueue(s.id, req)
	if err != nil {
		return nil, err
	}
	if req.Enters() {
		s.nextID++
		tk.Reserve(s.nextID)
	}
	return tk, nil
}

// tick advances the bridge and resumes the unit when its wait resolved.
func (s *stubScope) tick(u behavior.Unit) {
	s.frame++
	s.bridge.Advance(16 * time.Millisecond)
	tok, ok := s.bridge.Outstanding(s.id)
	if !ok {
		return
	}
	res, done := tok.Result()
	if !done {
		return
	}
	s.bridge.Release(s.id)
	u.Resume(s, res)
}

func (s *stubScope) forceExit(u behavior.Unit) error {
	s.exiting = true
	s.bridge.Cancel(s.id)
	return u.RequestExit(s)
}

func newUnit(t *testing.T, f behavior.Factory) behavior.Unit {
	t.Helper()
	u, err := f(domain.DefaultLabel)
	require.NoError(t, err)
	return u
}

func TestLatent_RunsAcrossTicks(t *testing.T) {
	s := newStubScope()
	var trace []string
	u := newUnit(t, behavior.Latent(func(c *behavior.Context) error {
		trace = append(trace, "start")
		if err := c.WaitFrames(1); err != nil {
			return err
		}
		trace = append(trace, "after-wait")
		return c.Finish("arrived")
	}))

	u.Start(s)
	assert.Equal(t, []string{"start"}, trace)
	assert.False(t, u.Finished())

	s.tick(u) // skipped
	assert.False(t, u.Finished())

	s.tick(u) // resolves and resumes
	require.True(t, u.Finished())
	assert.Equal(t, []string{"start", "after-wait"}, trace)
	assert.NoError(t, u.Err())
	assert.Equal(t, "arrived", u.Result())
}

func TestLatent_ForcedExitRunsCleanupOnce(t *testing.T) {
	s := newStubScope()
	cleanups := 0
	var waitErr error
	u := newUnit(t, behavior.Latent(func(c *behavior.Context) error {
		defer func() { cleanups++ }()
		_, waitErr = c.WaitEvent("never")
		return waitErr
	}))

	u.Start(s)
	require.False(t, u.Finished())

	require.NoError(t, s.forceExit(u))
	assert.True(t, u.Finished())
	assert.Equal(t, 1, cleanups)
	assert.ErrorIs(t, waitErr, domain.ErrInterrupted)
	assert.ErrorIs(t, u.Err(), domain.ErrInterrupted)

	require.NoError(t, u.RequestExit(s), "a second exit is a no-op")
	assert.Equal(t, 1, cleanups)
}

func TestLatent_CleanupWaitsReturnImmediately(t *testing.T) {
	s := newStubScope()
	var cleanupErrs []error
	u := newUnit(t, behavior.Latent(func(c *behavior.Context) error {
		defer func() {
			// Within budget: each wait returns at once instead of suspending.
			cleanupErrs = append(cleanupErrs, c.WaitFrames(5), c.Yield())
		}()
		return c.WaitFrames(100)
	}))

	u.Start(s)
	require.NoError(t, s.forceExit(u))
	require.Len(t, cleanupErrs, 2)
	for _, err := range cleanupErrs {
		assert.ErrorIs(t, err, domain.ErrInterrupted)
	}
}

func TestLatent_CleanupTimeout(t *testing.T) {
	s := newStubScope()
	u := newUnit(t, behavior.Latent(func(c *behavior.Context) error {
		defer func() {
			for {
				_ = c.WaitFrames(1) // ignores interruption
			}
		}()
		return c.WaitFrames(100)
	}))

	u.Start(s)
	err := s.forceExit(u)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCleanupTimeout)

	var timeout *domain.CleanupTimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, domain.StateID("patrol"), timeout.StateID)
	assert.Equal(t, 3, timeout.Waits)
	assert.True(t, u.Finished())
}

func TestLatent_PanicBecomesError(t *testing.T) {
	s := newStubScope()
	u := newUnit(t, behavior.Latent(func(c *behavior.Context) error {
		_ = c.Yield()
		panic("boom")
	}))

	u.Start(s)
	s.tick(u)
	require.True(t, u.Finished())
	assert.ErrorIs(t, u.Err(), domain.ErrBehaviorPanic)
	assert.Contains(t, u.Err().Error(), "boom")
}

func TestLatent_ExitBeforeStart(t *testing.T) {
	s := newStubScope()
	ran := false
	u := newUnit(t, behavior.Latent(func(c *behavior.Context) error {
		ran = true
		return nil
	}))

	require.NoError(t, s.forceExit(u))
	assert.True(t, u.Finished())
	assert.False(t, ran)
}

func TestLatent_CallWaitsForChild(t *testing.T) {
	s := newStubScope()
	var got any
	var callErr error
	u := newUnit(t, behavior.Latent(func(c *behavior.Context) error {
		got, callErr = c.Call("fetch", domain.Params{"item": "key"})
		return callErr
	}))

	u.Start(s)
	tickets := s.queue.Drain()
	require.Len(t, tickets, 1)
	push := tickets[0]
	assert.Equal(t, domain.TransitionPush, push.Request().Kind)
	child := push.Entered()
	require.NotZero(t, child)

	push.MarkApplied(child)
	s.tick(u)
	assert.False(t, u.Finished(), "still waiting for the child")

	s.bridge.ResolveChild(child, wait.Result{Reason: domain.WakeChildDone, Payload: "key"})
	s.tick(u)
	require.True(t, u.Finished())
	assert.NoError(t, callErr)
	assert.Equal(t, "key", got)
}

func TestLatent_CallRejected(t *testing.T) {
	s := newStubScope()
	var callErr error
	u := newUnit(t, behavior.Latent(func(c *behavior.Context) error {
		_, callErr = c.Call("missing", nil)
		return nil
	}))

	u.Start(s)
	tickets := s.queue.Drain()
	require.Len(t, tickets, 1)
	tickets[0].MarkRejected(&domain.UnknownStateError{StateID: "missing"})

	s.tick(u)
	require.True(t, u.Finished())
	assert.ErrorIs(t, callErr, domain.ErrUnknownState)
}

func TestLatent_GotoLabelRequestsReplace(t *testing.T) {
	s := newStubScope()
	u := newUnit(t, behavior.Latent(func(c *behavior.Context) error {
		return c.GotoLabel("alert")
	}))

	u.Start(s)
	tickets := s.queue.Drain()
	require.Len(t, tickets, 1)
	req := tickets[0].Request()
	assert.Equal(t, domain.TransitionReplace, req.Kind)
	assert.Equal(t, domain.StateID("patrol"), req.Target)
	assert.Equal(t, domain.Label("alert"), req.Label)

	require.NoError(t, s.forceExit(u))
	assert.ErrorIs(t, u.Err(), domain.ErrInterrupted)
}

func TestLabeled_UnknownLabel(t *testing.T) {
	f := behavior.Labeled(map[domain.Label]behavior.Func{
		domain.DefaultLabel: func(c *behavior.Context) error { return nil },
	})

	_, err := f("")
	assert.NoError(t, err)

	_, err = f("ambush")
	assert.ErrorIs(t, err, behavior.ErrUnknownLabel)
}

func TestTicking_FinishesAndCleansUpOnce(t *testing.T) {
	s := newStubScope()
	calls, cleanups := 0, 0
	u := newUnit(t, behavior.Ticking(func(behavior.Scope) (bool, error) {
		calls++
		return calls == 3, nil
	}, func(behavior.Scope) { cleanups++ }))

	u.Start(s)
	u.Resume(s, wait.Result{})
	assert.False(t, u.Finished())
	u.Resume(s, wait.Result{})
	require.True(t, u.Finished())
	assert.Equal(t, 1, cleanups)

	require.NoError(t, u.RequestExit(s))
	assert.Equal(t, 1, cleanups)
	assert.NoError(t, u.Err())
}

func TestTicking_ForcedExit(t *testing.T) {
	s := newStubScope()
	cleanups := 0
	u := newUnit(t, behavior.Ticking(func(behavior.Scope) (bool, error) {
		return false, nil
	}, func(behavior.Scope) { cleanups++ }))

	u.Start(s)
	require.NoError(t, u.RequestExit(s))
	assert.True(t, u.Finished())
	assert.Equal(t, 1, cleanups)
	assert.ErrorIs(t, u.Err(), domain.ErrInterrupted)
}

func TestTicking_PanickingCleanupFailsExit(t *testing.T) {
	s := newStubScope()
	u := newUnit(t, behavior.Ticking(func(behavior.Scope) (bool, error) {
		return false, nil
	}, func(behavior.Scope) { panic("leak") }))

	u.Start(s)
	err := u.RequestExit(s)
	assert.ErrorIs(t, err, domain.ErrBehaviorPanic)
}
