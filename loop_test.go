package async

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopTickOrdering(t *testing.T) {
	loop := NewLoop()

	var order []string
	f := newFiber(loop, func() {
		order = append(order, "fiber-start")
	})
	loop.addFiber(f)
	loop.nextTick(func() { order = append(order, "microtask") })

	ran := loop.tick()
	assert.True(t, ran)
	assert.Equal(t, []string{"fiber-start", "microtask"}, order)
}

func TestLoopDrainsAllMicrotasksBeforeResumingFibers(t *testing.T) {
	loop := NewLoop()

	var order []string
	p := loop.newPromise()
	p.registerThen(func(Value) { order = append(order, "then-1") })

	var f *Fiber
	f = newFiber(loop, func() {
		order = append(order, "body-start")
		f.suspend()
		order = append(order, "body-resumed")
	})
	loop.addFiber(f)

	loop.nextTick(func() {
		order = append(order, "microtask-a")
		loop.scheduleFiber(f)
	})
	p.Resolve(nil)

	loop.tick()
	assert.Equal(t, []string{"body-start", "microtask-a", "then-1"}, order)

	loop.tick()
	assert.Equal(t, []string{"body-start", "microtask-a", "then-1", "body-resumed"}, order)
}

func TestLoopRunUntilIdle(t *testing.T) {
	loop := NewLoop()
	var ran bool
	f := newFiber(loop, func() { ran = true })
	loop.addFiber(f)

	err := loop.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.True(t, loop.isIdle())
}

func TestLoopRunHonoursContextCancellation(t *testing.T) {
	loop := NewLoop()
	loop.addTimer(10, func() {})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := loop.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoopReentrantRunRejected(t *testing.T) {
	loop := NewLoop()
	loop.running.Store(true)
	defer loop.running.Store(false)

	err := loop.Run(context.Background())
	assert.ErrorIs(t, err, ErrReentrantRun)
}

func TestLoopStatsDisabledByDefault(t *testing.T) {
	loop := NewLoop()
	f := newFiber(loop, func() {})
	loop.addFiber(f)
	require.NoError(t, loop.Run(context.Background()))
	assert.Zero(t, loop.Stats().FibersResumed)
}

func TestLoopStatsEnabled(t *testing.T) {
	loop := NewLoop(WithStats(true))

	var f *Fiber
	f = newFiber(loop, func() {
		f.suspend()
	})
	loop.addFiber(f)
	loop.tick()
	loop.scheduleFiber(f)
	loop.tick()

	stats := loop.Stats()
	assert.Equal(t, uint64(2), stats.Ticks)
	assert.Equal(t, uint64(1), stats.FibersResumed)
}

func TestLoopResetForceRejectsPending(t *testing.T) {
	loop := NewLoop()
	p := loop.newPromise()
	loop.reset()

	assert.Equal(t, Rejected, p.State())
	var cancelErr *CancelledError
	assert.ErrorAs(t, NormalizeReason(p.Reason()), &cancelErr)
}

func TestLoopTimerFiresInOrder(t *testing.T) {
	loop := NewLoop()
	var fired []int
	loop.addTimer(0, func() { fired = append(fired, 1) })
	loop.addTimer(0, func() { fired = append(fired, 2) })

	loop.fireDueTimers()
	assert.Equal(t, []int{1, 2}, fired)
}

func TestLoopTimerCancellationIsLazy(t *testing.T) {
	loop := NewLoop()
	called := false
	id := loop.addTimer(0, func() { called = true })
	loop.cancelTimer(id)

	loop.fireDueTimers()
	assert.False(t, called)
	assert.True(t, loop.isIdle())
}
