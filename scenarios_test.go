package async

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentPreservesKeyOrderAcrossVaryingDelays checks that named
// tasks with differing delays still come back keyed, with values matching
// each task regardless of completion order.
func TestConcurrentPreservesKeyOrderAcrossVaryingDelays(t *testing.T) {
	rt := NewRuntime()
	loop := rt.Loop()

	tasks := KeyedTasks(
		[]string{"a", "b", "c"},
		[]any{
			func() Value { return rt.Delay(0.03).Then(func(Value) Value { return "A" }) },
			func() Value { return rt.Delay(0.01).Then(func(Value) Value { return "B" }) },
			func() Value { return rt.Delay(0.02).Then(func(Value) Value { return "C" }) },
		},
	)

	p, err := rt.Concurrent(tasks, 3)
	require.NoError(t, err)

	v, awaitErr := loop.runUntilSettled(p)
	require.NoError(t, awaitErr)

	om := v.(OrderedMap)
	require.Len(t, om, 3)
	assert.Equal(t, "a", om[0].Key.String())
	assert.Equal(t, "A", om[0].Value)
	assert.Equal(t, "b", om[1].Key.String())
	assert.Equal(t, "B", om[1].Value)
	assert.Equal(t, "c", om[2].Key.String())
	assert.Equal(t, "C", om[2].Value)
}

// TestConcurrentRespectsLimitAndPreservesInputOrder checks that no more
// than the given limit of tasks ever run at once, and that results still
// come back in input order regardless of completion order.
func TestConcurrentRespectsLimitAndPreservesInputOrder(t *testing.T) {
	rt := NewRuntime()
	loop := rt.Loop()

	counter := 0
	maxObserved := 0
	makeTask := func(i int) func() Value {
		return func() Value {
			counter++
			if counter > maxObserved {
				maxObserved = counter
			}
			counter--
			return i
		}
	}

	tasks := Tasks(makeTask(0), makeTask(1), makeTask(2), makeTask(3), makeTask(4))
	p, err := rt.Concurrent(tasks, 2)
	require.NoError(t, err)

	v, awaitErr := loop.runUntilSettled(p)
	require.NoError(t, awaitErr)
	assert.LessOrEqual(t, maxObserved, 2)
	assert.Equal(t, 0, counter)

	om := v.(OrderedMap)
	for i := 0; i < 5; i++ {
		got, ok := om.Get(IntKey(i))
		require.True(t, ok)
		assert.Equal(t, i, got)
	}
}

// TestRaceSurfacesFasterRejectionOverSlowerFulfillment checks that a
// rejection wins the race even when the fulfilling operand would have
// settled with a normal value, as long as it settles first.
func TestRaceSurfacesFasterRejectionOverSlowerFulfillment(t *testing.T) {
	rt := NewRuntime()
	loop := rt.Loop()

	slow := rt.Delay(5).Then(func(Value) Value { return "slow" })
	fast := loop.rejectedPromise(errors.New("fast"))

	result := Race(loop, Tasks(slow, fast))
	_, err := loop.runUntilSettled(result)
	assert.EqualError(t, err, "fast")
}

// TestAnyFallsThroughToFirstSuccessOrAggregatesFailures checks that Any
// fulfills with the first success among a mix of rejections, and falls
// back to an ordered AggregateError when every input fails.
func TestAnyFallsThroughToFirstSuccessOrAggregatesFailures(t *testing.T) {
	rt := NewRuntime()
	loop := rt.Loop()

	items := Tasks(
		loop.rejectedPromise(errors.New("e1")),
		loop.resolvedPromise("ok"),
		loop.rejectedPromise(errors.New("e2")),
	)
	v, err := loop.runUntilSettled(Any(loop, items))
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	allFail := Tasks(
		loop.rejectedPromise(errors.New("e1")),
		loop.rejectedPromise(errors.New("e2")),
	)
	_, err = loop.runUntilSettled(Any(loop, allFail))
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Errors, 2)
	assert.EqualError(t, agg.Errors[0], "e1")
	assert.EqualError(t, agg.Errors[1], "e2")
}

// TestMutexSerializesIncrementsAcrossFibers has five fibers each acquire
// the mutex, read-delay-write a shared counter, and release - the final
// counter must equal the fiber count with no lost updates, and the append
// order must match release order (FIFO).
func TestMutexSerializesIncrementsAcrossFibers(t *testing.T) {
	rt := NewRuntime()
	loop := rt.Loop()
	mu := rt.NewMutex()

	const n = 5
	counter := 0
	var log []int
	doneCh := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		i := i
		f := newFiber(loop, func() {
			v, err := Await(mu.Acquire(), nil)
			require.NoError(t, err)
			guard := v.(*Guard)

			old := counter
			require.NoError(t, rt.Sleep(0.001))
			counter = old + 1
			log = append(log, counter)
			_ = i
			guard.Release()
			doneCh <- struct{}{}
		})
		loop.addFiber(f)
	}

	require.NoError(t, loop.Run(context.Background()))
	for i := 0; i < n; i++ {
		<-doneCh
	}

	assert.Equal(t, n, counter)
	require.Len(t, log, n)
	for i, v := range log {
		assert.Equal(t, i+1, v)
	}
}

// TestCancellationPropagatesToTrackedDelays checks that cancelling a
// token source cancels every promise it tracks, clears the tracked count,
// and makes a subsequent Await on any of them fail with CancelledError.
func TestCancellationPropagatesToTrackedDelays(t *testing.T) {
	rt := NewRuntime()
	loop := rt.Loop()
	src := rt.NewCancellationTokenSource()
	token := src.Token()

	delays := make([]*Promise, 3)
	for i := range delays {
		delays[i] = token.Track(rt.Delay(1))
	}
	assert.Equal(t, 3, token.GetTrackedCount())

	src.CancelAfter(0.01)
	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, 0, token.GetTrackedCount())
	for _, d := range delays {
		assert.Equal(t, Cancelled, d.State())
		_, err := Await(d, nil)
		var cancelErr *CancelledError
		assert.ErrorAs(t, err, &cancelErr)
	}
}
