package async

import "sync"

// CancellationTokenSource is the writable side of a cancellation token:
// it owns the set of tracked promises and registered callbacks, and is
// the only thing that can actually trigger cancellation. Token is the
// read-only handle typically threaded through call signatures.
type CancellationTokenSource struct {
	loop *Loop

	mu           sync.Mutex
	cancelled    bool
	trackedOrder []*Promise
	tracked      map[*Promise]int // index into trackedOrder
	callbacks    []cancelCallback
	nextCallback uint64
	timerHandle  *uint64
}

type cancelCallback struct {
	id uint64
	fn func()
}

// NewCancellationTokenSource constructs a source bound to the given
// runtime's loop. If timeoutSeconds is given, the source auto-cancels
// after that many seconds, equivalent to calling CancelAfter immediately.
func (rt *Runtime) NewCancellationTokenSource(timeoutSeconds ...float64) *CancellationTokenSource {
	s := &CancellationTokenSource{
		loop:    rt.loop,
		tracked: make(map[*Promise]int),
	}
	if len(timeoutSeconds) > 0 {
		s.CancelAfter(timeoutSeconds[0])
	}
	return s
}

// Token returns the read-only handle for this source.
func (s *CancellationTokenSource) Token() *CancellationToken {
	return &CancellationToken{source: s}
}

// IsCancelled reports whether Cancel has already been called.
func (s *CancellationTokenSource) IsCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Cancel is idempotent. On the first call, it cancels every tracked
// promise (in the order they were tracked), then fires every registered
// onCancel callback (in registration order), then clears both sets.
// Later calls are no-ops.
func (s *CancellationTokenSource) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	tracked := s.trackedOrder
	callbacks := s.callbacks
	s.trackedOrder = nil
	s.tracked = make(map[*Promise]int)
	s.callbacks = nil
	timerHandle := s.timerHandle
	s.timerHandle = nil
	s.mu.Unlock()

	if timerHandle != nil {
		s.loop.cancelTimer(*timerHandle)
	}
	logCancellationEvent(s.loop.logger, "cancel", len(tracked))

	for _, p := range tracked {
		p.Cancel()
	}
	for _, cb := range callbacks {
		cb.fn()
	}
}

// CancelAfter arms (or re-arms) a timer that calls Cancel once seconds
// have elapsed. A no-op if the source is already cancelled.
func (s *CancellationTokenSource) CancelAfter(seconds float64) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	if s.timerHandle != nil {
		s.loop.cancelTimer(*s.timerHandle)
	}
	s.mu.Unlock()

	id := s.loop.addTimer(seconds, s.Cancel)

	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		s.loop.cancelTimer(id)
		return
	}
	s.timerHandle = &id
	s.mu.Unlock()
	logCancellationEvent(s.loop.logger, "cancelAfter armed", s.trackedCount())
}

func (s *CancellationTokenSource) trackedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.trackedOrder {
		if p.State() == Pending {
			n++
		}
	}
	return n
}

func (s *CancellationTokenSource) track(p *Promise) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		p.Cancel()
		return
	}
	if _, ok := s.tracked[p]; ok {
		s.mu.Unlock()
		return
	}
	s.tracked[p] = len(s.trackedOrder)
	s.trackedOrder = append(s.trackedOrder, p)
	s.mu.Unlock()

	untrack := func() { s.untrack(p) }
	p.registerThen(func(Value) { untrack() })
	p.registerCatch(func(Value) { untrack() })
	p.registerCancel(untrack)
}

func (s *CancellationTokenSource) untrack(p *Promise) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.tracked[p]
	if !ok {
		return
	}
	delete(s.tracked, p)
	// Order-preserving removal, so Cancel still sees tracking order; the
	// indices of the entries after the removed one shift down by one.
	s.trackedOrder = append(s.trackedOrder[:idx], s.trackedOrder[idx+1:]...)
	for i := idx; i < len(s.trackedOrder); i++ {
		s.tracked[s.trackedOrder[i]] = i
	}
}

func (s *CancellationTokenSource) onCancel(cb func()) *Registration {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		cb()
		return &Registration{}
	}
	s.nextCallback++
	id := s.nextCallback
	s.callbacks = append(s.callbacks, cancelCallback{id: id, fn: cb})
	s.mu.Unlock()
	return &Registration{source: s, id: id}
}

func (s *CancellationTokenSource) removeCallback(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cb := range s.callbacks {
		if cb.id == id {
			s.callbacks = append(s.callbacks[:i], s.callbacks[i+1:]...)
			return
		}
	}
}

// CancellationToken is the read-only handle to a CancellationTokenSource.
// The zero value (and the value returned by CancellationTokenNone) never
// cancels and makes every operation a no-op.
type CancellationToken struct {
	source *CancellationTokenSource
}

var noneToken = &CancellationToken{}

// CancellationTokenNone returns the token that never cancels.
func CancellationTokenNone() *CancellationToken { return noneToken }

// IsCancelled reports whether the underlying source has been cancelled.
func (t *CancellationToken) IsCancelled() bool {
	if t == nil || t.source == nil {
		return false
	}
	return t.source.IsCancelled()
}

// Track attaches p to this token: if the token is already cancelled, p is
// cancelled immediately; otherwise p is tracked so that cancelling the
// token later cancels p too. p is auto-untracked once it settles by any
// means. Returns p for convenient chaining.
func (t *CancellationToken) Track(p *Promise) *Promise {
	if t == nil || t.source == nil {
		return p
	}
	t.source.track(p)
	return p
}

// Untrack removes p from this token's tracked set without cancelling it.
func (t *CancellationToken) Untrack(p *Promise) {
	if t == nil || t.source == nil {
		return
	}
	t.source.untrack(p)
}

// OnCancel registers cb to run when the token's source cancels. If the
// source is already cancelled, cb runs synchronously and the returned
// Registration is already disposed.
func (t *CancellationToken) OnCancel(cb func()) *Registration {
	if t == nil || t.source == nil {
		return &Registration{}
	}
	return t.source.onCancel(cb)
}

// ThrowIfCancelled returns a *CancelledError if the token's source has
// been cancelled, nil otherwise.
func (t *CancellationToken) ThrowIfCancelled() error {
	if t.IsCancelled() {
		return &CancelledError{}
	}
	return nil
}

// GetTrackedCount returns the number of promises currently tracked
// against this token. A tracked promise stops counting the moment it
// settles, before its auto-untrack continuation has run.
func (t *CancellationToken) GetTrackedCount() int {
	if t == nil || t.source == nil {
		return 0
	}
	return t.source.trackedCount()
}

// Registration is returned by CancellationToken.OnCancel; Dispose
// unregisters the callback if it has not already fired.
type Registration struct {
	source   *CancellationTokenSource
	id       uint64
	disposed bool
	mu       sync.Mutex
}

// Dispose removes the associated callback, if it has not already run.
// Idempotent and safe to call on a nil Registration.
func (r *Registration) Dispose() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	r.mu.Unlock()
	if r.source != nil {
		r.source.removeCallback(r.id)
	}
}

// NewLinkedCancellationTokenSource returns a new source that cancels as
// soon as any of the given tokens does (or immediately, if one already
// has).
func NewLinkedCancellationTokenSource(loop *Loop, tokens ...*CancellationToken) *CancellationTokenSource {
	s := &CancellationTokenSource{loop: loop, tracked: make(map[*Promise]int)}
	for _, t := range tokens {
		if t.IsCancelled() {
			s.Cancel()
			return s
		}
	}
	for _, t := range tokens {
		t.OnCancel(s.Cancel)
	}
	return s
}
