package async

import (
	"sync"
	"sync/atomic"
)

// Mutex is an async-aware mutual exclusion lock: Acquire returns a
// promise that fulfills with a Guard once the lock is held, queuing
// waiters FIFO rather than blocking an OS thread.
type Mutex struct {
	loop *Loop

	mu      sync.Mutex
	locked  bool
	waiters *fifo[*Promise]
}

// NewMutex constructs an unlocked Mutex bound to the given runtime's
// loop.
func (rt *Runtime) NewMutex() *Mutex {
	return &Mutex{loop: rt.loop, waiters: newFifo[*Promise]()}
}

// Guard represents ownership of a Mutex; call Release exactly once (or
// any number of times - subsequent calls are no-ops) to hand the lock to
// the next waiter, or unlock it if none are waiting.
type Guard struct {
	m        *Mutex
	released atomic.Bool
}

// Release gives up ownership of the mutex. Idempotent.
func (g *Guard) Release() {
	if !g.released.CompareAndSwap(false, true) {
		return
	}
	g.m.release()
}

// Acquire returns a promise that fulfills with a *Guard once the lock is
// held by the caller. If the lock is free, the promise is already
// fulfilled; otherwise the caller is queued FIFO behind existing waiters.
func (m *Mutex) Acquire() *Promise {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		logMutexEvent(m.loop.logger, "acquire", 0)
		return m.loop.resolvedPromise(&Guard{m: m})
	}
	p := m.loop.newPromise()
	m.waiters.pushBack(p)
	depth := m.waiters.len()
	m.mu.Unlock()
	logMutexEvent(m.loop.logger, "queued", depth)
	return p
}

// release hands the lock to the next non-cancelled waiter, or marks it
// free if the waiter queue is empty (skipping any waiter whose Acquire
// call was itself cancelled in the meantime).
func (m *Mutex) release() {
	for {
		m.mu.Lock()
		next, ok := m.waiters.popFront()
		if !ok {
			m.locked = false
			depth := m.waiters.len()
			m.mu.Unlock()
			logMutexEvent(m.loop.logger, "release", depth)
			return
		}
		m.mu.Unlock()
		if next.State() == Cancelled {
			continue
		}
		next.Resolve(&Guard{m: m})
		return
	}
}

// IsLocked reports whether the mutex is currently held.
func (m *Mutex) IsLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// QueueLength reports how many Acquire calls are waiting for the lock.
func (m *Mutex) QueueLength() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiters.len()
}
