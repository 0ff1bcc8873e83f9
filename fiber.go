package async

import "sync/atomic"

// Fiber is a stackful unit of cooperative execution: a goroutine parked on
// a pair of handshake channels so the owning Loop can guarantee that
// exactly one fiber body is logically running at any instant, even though
// each fiber is a distinct OS-level goroutine.
//
// The handshake is modeled directly on microbatch.Batcher.Submit's
// jobCh/batchCh ping/pong: the loop sends on resumeCh and then blocks
// receiving from parked (or done), never proceeding to anything else
// until the fiber yields control back.
type Fiber struct {
	id   uint64
	loop *Loop
	body func()

	// parked is signalled by the fiber every time it suspends (including
	// its very first suspension point); termination closes done instead.
	parked chan struct{}
	// resumeCh is signalled by the loop to let a suspended fiber proceed.
	resumeCh chan struct{}
	// done is closed once the fiber body returns or panics.
	done chan struct{}

	started atomic.Bool
}

func newFiber(loop *Loop, body func()) *Fiber {
	return &Fiber{
		id:       loop.nextFiberID(),
		loop:     loop,
		body:     body,
		parked:   make(chan struct{}),
		resumeCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// ID returns the fiber's loop-scoped identifier, primarily useful for
// logging.
func (f *Fiber) ID() uint64 { return f.id }

// Loop returns the Loop this fiber is bound to.
func (f *Fiber) Loop() *Loop { return f.loop }

// suspend yields control back to the loop goroutine and blocks until the
// loop resumes this fiber. Must only be called from within the fiber's own
// body.
func (f *Fiber) suspend() {
	f.parked <- struct{}{}
	<-f.resumeCh
}

// launch runs the fiber body on a new goroutine, registering/unregistering
// fiber-context for the duration, and recovering a panicking body into a
// logged fault rather than crashing the process.
func (f *Fiber) launch() {
	registerCurrentFiber(f)
	defer unregisterCurrentFiber()
	defer close(f.done)
	defer func() {
		if r := recover(); r != nil {
			logFiberPanic(f.loop.logger, f.id, r)
		}
	}()
	f.body()
}

// start launches the fiber's goroutine and blocks the caller (the loop)
// until the fiber either suspends for the first time or finishes.
func (f *Fiber) start() {
	if !f.started.CompareAndSwap(false, true) {
		return
	}
	go f.launch()
	f.waitForYieldOrDone()
}

// resume signals a previously-suspended fiber to continue, and blocks the
// caller (the loop) until it suspends again or finishes.
func (f *Fiber) resume() {
	select {
	case <-f.done:
		return
	default:
	}
	f.resumeCh <- struct{}{}
	f.waitForYieldOrDone()
}

func (f *Fiber) waitForYieldOrDone() {
	select {
	case <-f.parked:
	case <-f.done:
	}
}

// finished reports whether the fiber body has returned or panicked.
func (f *Fiber) finished() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
