package wait_test

import (
	"sync"
	"testing"
	"time"

	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/wait"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridge_FramesSkipsExactlyN(t *testing.T) {
	b := wait.NewBridge()
	tok, err := b.Arm(1, wait.Frames(2))
	require.NoError(t, err)

	b.Advance(16 * time.Millisecond) // tick 1
	assert.False(t, tok.Resolved(), "tick 1 must not resolve")
	b.Advance(16 * time.Millisecond) // tick 2
	assert.False(t, tok.Resolved(), "tick 2 must not resolve")
	b.Advance(16 * time.Millisecond) // tick 3
	require.True(t, tok.Resolved())

	res, _ := tok.Result()
	assert.Equal(t, domain.WakeTimer, res.Reason)
}

func TestBridge_FramesZeroResolvesNextTick(t *testing.T) {
	b := wait.NewBridge()
	tok, err := b.Arm(1, wait.Frames(0))
	require.NoError(t, err)
	assert.False(t, tok.Resolved())

	b.Advance(0)
	assert.True(t, tok.Resolved())
}

func TestBridge_DurationAccumulatesDelta(t *testing.T) {
	b := wait.NewBridge()
	tok, err := b.Arm(1, wait.Duration(50*time.Millisecond))
	require.NoError(t, err)

	b.Advance(20 * time.Millisecond)
	b.Advance(20 * time.Millisecond)
	assert.False(t, tok.Resolved())
	b.Advance(20 * time.Millisecond)
	assert.True(t, tok.Resolved())
}

func TestBridge_EventDeliveredOnNextAdvance(t *testing.T) {
	b := wait.NewBridge()
	alarm, err := b.Arm(1, wait.Event("alarm"))
	require.NoError(t, err)
	other, err := b.Arm(2, wait.Event("other"))
	require.NoError(t, err)

	b.Notify("alarm", "north gate")
	assert.False(t, alarm.Resolved(), "events are delivered on Advance")

	b.Advance(0)
	require.True(t, alarm.Resolved())
	assert.False(t, other.Resolved())

	res, _ := alarm.Result()
	assert.Equal(t, domain.WakeEventDelivered, res.Reason)
	assert.Equal(t, "north gate", res.Payload)
}

func TestBridge_EventsWithoutListenersAreDropped(t *testing.T) {
	b := wait.NewBridge()
	b.Notify("alarm", nil)
	b.Advance(0)

	tok, err := b.Arm(1, wait.Event("alarm"))
	require.NoError(t, err)
	b.Advance(0)
	assert.False(t, tok.Resolved())
}

func TestBridge_ConditionPolledPerTick(t *testing.T) {
	b := wait.NewBridge()
	ready := false
	tok, err := b.Arm(1, wait.Until(func() bool { return ready }))
	require.NoError(t, err)

	b.Advance(0)
	assert.False(t, tok.Resolved())
	ready = true
	b.Advance(0)
	assert.True(t, tok.Resolved())
}

func TestBridge_OneOutstandingTokenPerOwner(t *testing.T) {
	b := wait.NewBridge()
	_, err := b.Arm(7, wait.Manual())
	require.NoError(t, err)

	_, err = b.Arm(7, wait.Frames(1))
	assert.ErrorIs(t, err, wait.ErrTokenOutstanding)

	// A different owner is unaffected.
	_, err = b.Arm(8, wait.Manual())
	assert.NoError(t, err)
	assert.Equal(t, 2, b.Pending())
}

func TestBridge_RearmAfterResolution(t *testing.T) {
	b := wait.NewBridge()
	tok, err := b.Arm(7, wait.Manual())
	require.NoError(t, err)
	require.True(t, tok.Signal(nil))

	_, err = b.Arm(7, wait.Frames(1))
	assert.NoError(t, err)
}

func TestBridge_ResolveChild(t *testing.T) {
	b := wait.NewBridge()
	parent, err := b.Arm(1, wait.Child(2))
	require.NoError(t, err)

	n := b.ResolveChild(2, wait.Result{Reason: domain.WakeChildDone, Payload: 42})
	assert.Equal(t, 1, n)

	res, done := parent.Result()
	require.True(t, done)
	assert.Equal(t, domain.WakeChildDone, res.Reason)
	assert.Equal(t, 42, res.Payload)
}

func TestBridge_RetargetChild(t *testing.T) {
	b := wait.NewBridge()
	tok, err := b.Arm(1, wait.Child(4))
	require.NoError(t, err)

	assert.Equal(t, 1, b.Retarget(4, 5))
	assert.Equal(t, 0, b.ResolveChild(4, wait.Result{Reason: domain.WakeChildDone}))
	assert.False(t, tok.Resolved())

	assert.Equal(t, 1, b.ResolveChild(5, wait.Result{Reason: domain.WakeChildDone, Payload: "ok"}))
	res, done := tok.Result()
	require.True(t, done)
	assert.Equal(t, "ok", res.Payload)
}

func TestBridge_CancelInterrupts(t *testing.T) {
	b := wait.NewBridge()
	tok, err := b.Arm(3, wait.Event("never"))
	require.NoError(t, err)

	assert.True(t, b.Cancel(3))
	res, done := tok.Result()
	require.True(t, done)
	assert.True(t, res.Interrupted())
	assert.ErrorIs(t, res.Err, domain.ErrInterrupted)

	assert.False(t, b.Cancel(3), "nothing left to cancel")
	_, ok := b.Outstanding(3)
	assert.False(t, ok)
}

func TestBridge_ResetCancelsEverything(t *testing.T) {
	b := wait.NewBridge()
	t1, _ := b.Arm(1, wait.Manual())
	t2, _ := b.Arm(2, wait.Frames(10))

	b.Reset()
	assert.True(t, t1.Resolved())
	assert.True(t, t2.Resolved())
	assert.Equal(t, 0, b.Pending())
}

func TestBridge_InvalidSpec(t *testing.T) {
	b := wait.NewBridge()
	_, err := b.Arm(1, wait.Spec{})
	assert.Error(t, err)
	_, err = b.Arm(1, wait.Event(""))
	assert.Error(t, err)
}

func TestToken_CompletionIsIdempotent(t *testing.T) {
	tok := wait.NewToken(1, wait.Manual())

	assert.True(t, tok.Signal("first"))
	assert.False(t, tok.Signal("second"))
	assert.False(t, tok.Cancel())
	assert.False(t, tok.Reject(domain.ErrRootPop))

	res, _ := tok.Result()
	assert.Equal(t, domain.WakeSignaled, res.Reason)
	assert.Equal(t, "first", res.Payload)

	cancelled := wait.NewToken(2, wait.Manual())
	assert.True(t, cancelled.Cancel())
	assert.False(t, cancelled.Cancel())
	assert.False(t, cancelled.Signal(nil))
}

func TestToken_ConcurrentSignalsResolveOnce(t *testing.T) {
	tok := wait.NewToken(1, wait.Manual())

	var wg sync.WaitGroup
	wins := make(chan int, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if tok.Signal(i) {
				wins <- i
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1)
}

func TestSpec_String(t *testing.T) {
	assert.Equal(t, "frames(2)", wait.Frames(2).String())
	assert.Equal(t, "event(alarm)", wait.Event("alarm").String())
	assert.Equal(t, "child(4)", wait.Child(4).String())
	assert.Equal(t, "manual", wait.Manual().String())
	assert.Equal(t, "frames(0)", wait.Frames(-3).String(), "negative frame counts clamp to zero")
}
