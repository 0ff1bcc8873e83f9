package async

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncImmediateFulfills(t *testing.T) {
	rt := NewRuntime()
	p := rt.AsyncImmediate(func() (Value, error) {
		return "ok", nil
	})

	v, err := rt.Loop().runUntilSettled(p)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestAsyncImmediateRejects(t *testing.T) {
	rt := NewRuntime()
	p := rt.AsyncImmediate(func() (Value, error) {
		return nil, errors.New("boom")
	})

	_, err := rt.Loop().runUntilSettled(p)
	assert.EqualError(t, err, "boom")
}

func TestAsyncIsLazyUntilThunkInvoked(t *testing.T) {
	rt := NewRuntime()
	var called bool
	thunk := rt.Async(func() (Value, error) {
		called = true
		return nil, nil
	})

	assert.False(t, called)
	p := thunk()
	require.NoError(t, rt.Loop().Run(context.Background()))
	assert.True(t, called)
	assert.Equal(t, Fulfilled, p.State())
}

func TestAsyncPanicRejectsAndIsRecovered(t *testing.T) {
	rt := NewRuntime()
	p := rt.AsyncImmediate(func() (Value, error) {
		panic("async exploded")
	})

	_, err := rt.Loop().runUntilSettled(p)
	var pe *PanicError
	assert.ErrorAs(t, err, &pe)
}

func TestAsyncBodyCanAwaitAnotherPromise(t *testing.T) {
	rt := NewRuntime()
	loop := rt.Loop()

	p := rt.AsyncImmediate(func() (Value, error) {
		v, err := rt.Await(rt.Delay(0))
		if err != nil {
			return nil, err
		}
		return v, nil
	})

	v, err := loop.runUntilSettled(p)
	require.NoError(t, err)
	assert.Nil(t, v)
}
