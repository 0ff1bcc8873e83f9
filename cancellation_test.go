package async

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancellationTokenNoneNeverCancels(t *testing.T) {
	none := CancellationTokenNone()
	assert.False(t, none.IsCancelled())
}

func TestCancellationTokenNoneTrackIsNoop(t *testing.T) {
	rt := NewRuntime()
	p := rt.Loop().newPromise()

	none := CancellationTokenNone()
	none.Track(p)

	assert.Equal(t, Pending, p.State())
	assert.Equal(t, 0, none.GetTrackedCount())
}

func TestCancellationTokenCancelsTrackedPromises(t *testing.T) {
	rt := NewRuntime()
	loop := rt.Loop()
	src := rt.NewCancellationTokenSource()
	token := src.Token()

	p1 := loop.newPromise()
	p2 := loop.newPromise()
	token.Track(p1)
	token.Track(p2)
	assert.Equal(t, 2, token.GetTrackedCount())

	src.Cancel()
	assert.Equal(t, Cancelled, p1.State())
	assert.Equal(t, Cancelled, p2.State())
	assert.Equal(t, 0, token.GetTrackedCount())
}

func TestCancellationTokenTrackAlreadyCancelledCancelsImmediately(t *testing.T) {
	rt := NewRuntime()
	loop := rt.Loop()
	src := rt.NewCancellationTokenSource()
	src.Cancel()

	p := loop.newPromise()
	src.Token().Track(p)
	assert.Equal(t, Cancelled, p.State())
}

func TestCancellationTokenUntrackedOnSettlement(t *testing.T) {
	rt := NewRuntime()
	loop := rt.Loop()
	src := rt.NewCancellationTokenSource()
	token := src.Token()

	p := loop.newPromise()
	token.Track(p)
	p.Resolve("done")

	assert.Equal(t, 0, token.GetTrackedCount())
	src.Cancel() // must not panic or affect the already-settled promise
	assert.Equal(t, Fulfilled, p.State())
}

func TestCancellationTokenOnCancelFiresOnceInOrder(t *testing.T) {
	rt := NewRuntime()
	src := rt.NewCancellationTokenSource()
	token := src.Token()

	var order []int
	token.OnCancel(func() { order = append(order, 1) })
	token.OnCancel(func() { order = append(order, 2) })

	src.Cancel()
	src.Cancel() // idempotent, must not fire callbacks twice
	assert.Equal(t, []int{1, 2}, order)
}

func TestCancellationTokenOnCancelAfterCancellationFiresImmediately(t *testing.T) {
	rt := NewRuntime()
	src := rt.NewCancellationTokenSource()
	src.Cancel()

	var ran bool
	reg := src.Token().OnCancel(func() { ran = true })
	assert.True(t, ran)
	assert.NotPanics(t, reg.Dispose)
}

func TestRegistrationDisposePreventsCallback(t *testing.T) {
	rt := NewRuntime()
	src := rt.NewCancellationTokenSource()

	var ran bool
	reg := src.Token().OnCancel(func() { ran = true })
	reg.Dispose()

	src.Cancel()
	assert.False(t, ran)
}

func TestThrowIfCancelled(t *testing.T) {
	rt := NewRuntime()
	src := rt.NewCancellationTokenSource()
	token := src.Token()

	assert.NoError(t, token.ThrowIfCancelled())
	src.Cancel()

	var cancelErr *CancelledError
	assert.ErrorAs(t, token.ThrowIfCancelled(), &cancelErr)
}

func TestCancelAfterArmsTimer(t *testing.T) {
	rt := NewRuntime()
	loop := rt.Loop()
	src := rt.NewCancellationTokenSource()
	src.CancelAfter(0)

	require.NoError(t, loop.Run(context.Background()))
	assert.True(t, src.IsCancelled())
}

func TestNewCancellationTokenSourceWithTimeout(t *testing.T) {
	rt := NewRuntime()
	loop := rt.Loop()
	src := rt.NewCancellationTokenSource(0)

	require.NoError(t, loop.Run(context.Background()))
	assert.True(t, src.IsCancelled())
}

func TestLinkedCancellationTokenSourceCancelsWithEitherParent(t *testing.T) {
	rt := NewRuntime()
	loop := rt.Loop()
	a := rt.NewCancellationTokenSource()
	b := rt.NewCancellationTokenSource()

	linked := NewLinkedCancellationTokenSource(loop, a.Token(), b.Token())
	assert.False(t, linked.IsCancelled())

	b.Cancel()
	assert.True(t, linked.IsCancelled())
}

func TestLinkedCancellationTokenSourceAlreadyCancelledParent(t *testing.T) {
	rt := NewRuntime()
	loop := rt.Loop()
	a := rt.NewCancellationTokenSource()
	a.Cancel()

	linked := NewLinkedCancellationTokenSource(loop, a.Token())
	assert.True(t, linked.IsCancelled())
}
