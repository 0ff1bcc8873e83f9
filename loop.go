package async

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// LoopStats is a snapshot of the Loop's lightweight activity counters,
// populated only when the loop was constructed WithStats(true).
type LoopStats struct {
	Ticks          uint64
	FibersResumed  uint64
	MicrotasksRun  uint64
	TimersRun      uint64
}

type loopStatsCounters struct {
	ticks         atomic.Uint64
	fibersResumed atomic.Uint64
	microtasksRun atomic.Uint64
	timersRun     atomic.Uint64
}

// Loop is the single-threaded cooperative scheduler multiplexing fibers,
// timers, and microtasks. It is safe to call its public methods from any
// goroutine; internally, a mutex guards the queues and timer heap, since
// fiber bodies (each its own goroutine) and external callers may submit
// work concurrently with whichever goroutine is currently ticking.
type Loop struct {
	mu sync.Mutex

	newFibers  *fifo[*Fiber]
	ready      *fifo[*Fiber]
	microtasks *fifo[func()]

	timers      timerHeap
	timerIndex  map[uint64]*timerEntry
	nextTimerID uint64

	nextFiberIDCounter   uint64
	nextPromiseIDCounter uint64

	state   loopState
	running atomic.Bool

	logger *Logger
	stats  loopStatsCounters
	statsEnabled bool

	reg *registry

	startedAt time.Time
}

// NewLoop constructs a Loop ready to accept fibers, timers, and
// microtasks.
func NewLoop(opts ...LoopOption) *Loop {
	cfg := resolveLoopOptions(opts)
	logger := cfg.logger
	if logger == nil {
		logger = newNopLogger()
	}
	l := &Loop{
		newFibers:    newFifo[*Fiber](),
		ready:        newFifo[*Fiber](),
		microtasks:   newFifo[func()](),
		timerIndex:   make(map[uint64]*timerEntry),
		logger:       logger,
		statsEnabled: cfg.stats,
		startedAt:    time.Now(),
	}
	l.reg = newRegistry()
	return l
}

func (l *Loop) nextFiberID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextFiberIDCounter++
	return l.nextFiberIDCounter
}

func (l *Loop) nextPromiseID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextPromiseIDCounter++
	return l.nextPromiseIDCounter
}

// now returns seconds elapsed since the loop was constructed - a
// monotonic clock local to this loop, sufficient for timer ordering.
func (l *Loop) now() float64 {
	return time.Since(l.startedAt).Seconds()
}

// addFiber enqueues a newly-constructed, not-yet-started fiber.
func (l *Loop) addFiber(f *Fiber) {
	l.mu.Lock()
	l.newFibers.pushBack(f)
	l.mu.Unlock()
}

// scheduleFiber enqueues a previously-suspended fiber to be resumed on a
// future tick.
func (l *Loop) scheduleFiber(f *Fiber) {
	l.mu.Lock()
	l.ready.pushBack(f)
	l.mu.Unlock()
}

// nextTick schedules fn as a microtask, run before the next fiber
// resumption step.
func (l *Loop) nextTick(fn func()) {
	l.mu.Lock()
	l.microtasks.pushBack(fn)
	l.mu.Unlock()
}

// addTimer schedules fn to run once, seconds from now. Returns a handle
// usable with cancelTimer.
func (l *Loop) addTimer(seconds float64, fn func()) uint64 {
	if seconds < 0 {
		seconds = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextTimerID++
	id := l.nextTimerID
	entry := &timerEntry{
		due: l.now() + seconds,
		seq: id,
		id:  id,
		fn:  fn,
	}
	heap.Push(&l.timers, entry)
	l.timerIndex[id] = entry
	return id
}

// cancelTimer marks a previously-scheduled timer as cancelled; it is
// lazily removed from the heap the next time the heap is drained.
func (l *Loop) cancelTimer(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.timerIndex[id]; ok {
		entry.cancelled = true
		delete(l.timerIndex, id)
		logTimerEvent(l.logger, "cancelled", id)
	}
}

// Stats returns a snapshot of the loop's activity counters. Always zero
// unless the loop was constructed WithStats(true).
func (l *Loop) Stats() LoopStats {
	return LoopStats{
		Ticks:         l.stats.ticks.Load(),
		FibersResumed: l.stats.fibersResumed.Load(),
		MicrotasksRun: l.stats.microtasksRun.Load(),
		TimersRun:     l.stats.timersRun.Load(),
	}
}

// tick runs exactly one iteration of the scheduling algorithm:
//  1. start any new fibers (run until first suspension or termination)
//  2. fully drain microtasks
//  3. resume fibers that were ready when this tick began (a snapshot -
//     fibers scheduled during steps 1 and 2 run next tick)
//  4. fire all timers whose due time has passed
//
// It reports whether any work was actually performed.
func (l *Loop) tick() bool {
	if l.statsEnabled {
		l.stats.ticks.Add(1)
	}
	l.mu.Lock()
	readyAtEntry := l.ready.len()
	l.mu.Unlock()
	didWork := false
	if l.startNewFibers() {
		didWork = true
	}
	if l.drainMicrotasksFull() {
		didWork = true
	}
	if l.resumeReadySnapshot(readyAtEntry) {
		didWork = true
	}
	if l.fireDueTimers() {
		didWork = true
	}
	return didWork
}

func (l *Loop) startNewFibers() bool {
	batch := l.snapshotPop(l.newFibers)
	for _, f := range batch {
		f.start()
	}
	return len(batch) > 0
}

// resumeReadySnapshot resumes at most n fibers from the front of the ready
// queue - the n that were queued when the current tick began.
func (l *Loop) resumeReadySnapshot(n int) bool {
	l.mu.Lock()
	batch := make([]*Fiber, 0, n)
	for len(batch) < n {
		f, ok := l.ready.popFront()
		if !ok {
			break
		}
		batch = append(batch, f)
	}
	l.mu.Unlock()
	for _, f := range batch {
		f.resume()
	}
	if l.statsEnabled && len(batch) > 0 {
		l.stats.fibersResumed.Add(uint64(len(batch)))
	}
	return len(batch) > 0
}

// snapshotPop pops exactly as many fibers as were queued at the moment of
// the call, leaving anything enqueued mid-drain for the next tick.
func (l *Loop) snapshotPop(q *fifo[*Fiber]) []*Fiber {
	l.mu.Lock()
	n := q.len()
	batch := make([]*Fiber, 0, n)
	for i := 0; i < n; i++ {
		f, ok := q.popFront()
		if !ok {
			break
		}
		batch = append(batch, f)
	}
	l.mu.Unlock()
	return batch
}

func (l *Loop) drainMicrotasksFull() bool {
	any := false
	for {
		l.mu.Lock()
		fn, ok := l.microtasks.popFront()
		l.mu.Unlock()
		if !ok {
			break
		}
		any = true
		if l.statsEnabled {
			l.stats.microtasksRun.Add(1)
		}
		l.safeRun(fn)
	}
	return any
}

func (l *Loop) fireDueTimers() bool {
	now := l.now()
	var due []*timerEntry
	l.mu.Lock()
	for l.timers.Len() > 0 {
		top := l.timers[0]
		if top.cancelled {
			heap.Pop(&l.timers)
			continue
		}
		if top.due > now {
			break
		}
		heap.Pop(&l.timers)
		delete(l.timerIndex, top.id)
		due = append(due, top)
	}
	l.mu.Unlock()
	for _, t := range due {
		if l.statsEnabled {
			l.stats.timersRun.Add(1)
		}
		logTimerEvent(l.logger, "fired", t.id)
		l.safeRun(t.fn)
	}
	return len(due) > 0
}

// safeRun invokes fn, recovering and logging any panic rather than
// crashing the loop goroutine - a last-resort safety net, since
// microtasks and timer callbacks constructed by this package already
// carry their own panic-to-rejection handling.
func (l *Loop) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logFiberPanic(l.logger, 0, r)
		}
	}()
	fn()
}

// isIdle reports whether every queue the loop drives is empty and no
// live (non-cancelled) timer remains pending.
func (l *Loop) isIdle() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.newFibers.len() != 0 || l.ready.len() != 0 || l.microtasks.len() != 0 {
		return false
	}
	for _, t := range l.timers {
		if !t.cancelled {
			return false
		}
	}
	return true
}

// nextTimerDelay returns the number of seconds until the next live timer
// is due, or -1 if no live timer is scheduled.
func (l *Loop) nextTimerDelay() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	next := -1.0
	for _, t := range l.timers {
		if t.cancelled {
			continue
		}
		d := t.due - now
		if d < 0 {
			d = 0
		}
		if next < 0 || d < next {
			next = d
		}
	}
	return next
}

// Run drives the loop - ticking, sleeping until the next timer when
// there is nothing else to do - until it becomes idle or ctx is done.
// Re-entrant calls (from a nested Run or a blocking Await while this Run
// is in flight) fail fast with ErrReentrantRun.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrReentrantRun
	}
	defer l.running.Store(false)

	logLoopEvent(l.logger, "start")
	defer logLoopEvent(l.logger, "shutdown")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		didWork := l.tick()
		if l.isIdle() {
			return nil
		}
		if didWork {
			continue
		}

		delay := l.nextTimerDelay()
		if delay < 0 {
			return nil
		}
		if delay == 0 {
			continue
		}
		timer := time.NewTimer(time.Duration(delay * float64(time.Second)))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// runUntilSettled drives the loop - exactly like Run, but targeting a
// single promise's settlement rather than full queue drainage - used by
// Await when called outside of any fiber. Fails fast with
// ErrReentrantRun if the loop is already being driven elsewhere.
func (l *Loop) runUntilSettled(p *Promise) (Value, error) {
	if !l.running.CompareAndSwap(false, true) {
		return nil, ErrReentrantRun
	}
	defer l.running.Store(false)

	for p.State() == Pending {
		didWork := l.tick()
		if p.State() != Pending {
			break
		}
		if didWork {
			continue
		}
		delay := l.nextTimerDelay()
		switch {
		case delay < 0:
			time.Sleep(time.Millisecond)
		case delay == 0:
		default:
			time.Sleep(time.Duration(delay * float64(time.Second)))
		}
	}

	switch p.State() {
	case Fulfilled:
		return p.Value(), nil
	case Rejected:
		return nil, NormalizeReason(p.Reason())
	default:
		return nil, &CancelledError{}
	}
}

// reset clears all queued fibers, timers, and microtasks, and rejects
// every promise this loop still has outstanding - used by tests that
// want to reuse a Loop instance across cases without leaking state.
func (l *Loop) reset() {
	l.mu.Lock()
	l.newFibers = newFifo[*Fiber]()
	l.ready = newFifo[*Fiber]()
	l.microtasks = newFifo[func()]()
	l.timers = nil
	l.timerIndex = make(map[uint64]*timerEntry)
	l.mu.Unlock()
	l.reg.rejectAll(&CancelledError{Message: "loop reset"})
}
