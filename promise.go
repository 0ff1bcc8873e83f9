package async

import "sync"

// Value is the type carried by a settled Promise - deliberately `any`,
// since the collection and concurrency combinators need to hold
// heterogeneously-typed promises in a single ordered collection.
type Value = any

// PromiseState is one of the four states a Promise can occupy.
type PromiseState int32

const (
	// Pending is the only non-terminal state.
	Pending PromiseState = iota
	Fulfilled
	Rejected
	Cancelled
)

func (s PromiseState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Promise is an eagerly-constructed, mutable state machine. Continuations
// registered via Then/Catch/OnCancel are always invoked in registration
// order; Then/Catch continuations are always scheduled as a microtask
// through the owning Loop, even when registered after the promise has
// already settled, so that a continuation chain can never re-enter the
// caller's stack frame.
type Promise struct {
	mu    sync.Mutex
	id    uint64
	loop  *Loop
	state PromiseState

	value  Value
	reason Value

	thenReactions   []func(Value)
	catchReactions  []func(Value)
	cancelReactions []func()

	// cancelHook, if set, is invoked synchronously the moment this
	// promise transitions to Cancelled, before any cancelReactions -
	// cancellation-aware producers (Delay, Timeout) use it to free
	// the underlying resource (e.g. a scheduled timer).
	cancelHook func()
}

// newPromise constructs a pending promise bound to loop and tracks it in
// the loop's registry.
func (l *Loop) newPromise() *Promise {
	p := &Promise{id: l.nextPromiseID(), loop: l, state: Pending}
	l.reg.track(p)
	return p
}

// resolvedPromise returns an already-fulfilled promise wrapping v.
func (l *Loop) resolvedPromise(v Value) *Promise {
	p := l.newPromise()
	p.Resolve(v)
	return p
}

// rejectedPromise returns an already-rejected promise wrapping reason.
func (l *Loop) rejectedPromise(reason Value) *Promise {
	p := l.newPromise()
	p.Reject(reason)
	return p
}

// State returns the promise's current state.
func (p *Promise) State() PromiseState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Value returns the fulfillment value. Only meaningful once State is
// Fulfilled.
func (p *Promise) Value() Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Reason returns the rejection reason. Only meaningful once State is
// Rejected.
func (p *Promise) Reason() Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

// setCancelHook installs the producer's cancellation cleanup. Not safe to
// call once the promise may already have settled from another goroutine;
// intended for use immediately after construction by the producer itself.
func (p *Promise) setCancelHook(hook func()) {
	p.mu.Lock()
	p.cancelHook = hook
	p.mu.Unlock()
}

// Resolve transitions the promise to Fulfilled with value v, unless v is
// itself a *Promise, in which case this promise adopts v's eventual
// settlement instead (chaining through fulfillment, rejection, or
// cancellation). A no-op if the promise is no longer pending.
func (p *Promise) Resolve(v Value) {
	if inner, ok := v.(*Promise); ok {
		inner.registerThen(func(iv Value) { p.Resolve(iv) })
		inner.registerCatch(func(ir Value) { p.Reject(ir) })
		inner.registerCancel(func() { p.Cancel() })
		return
	}

	p.mu.Lock()
	if p.state != Pending {
		p.mu.Unlock()
		return
	}
	p.state = Fulfilled
	p.value = v
	reactions := p.thenReactions
	p.thenReactions = nil
	p.catchReactions = nil
	p.cancelReactions = nil
	p.mu.Unlock()

	p.loop.reg.untrack(p)
	for _, r := range reactions {
		r := r
		p.loop.nextTick(func() { r(v) })
	}
}

// Reject transitions the promise to Rejected with the given reason. A
// no-op if the promise is no longer pending.
func (p *Promise) Reject(reason Value) {
	p.mu.Lock()
	if p.state != Pending {
		p.mu.Unlock()
		return
	}
	p.state = Rejected
	p.reason = reason
	reactions := p.catchReactions
	p.thenReactions = nil
	p.catchReactions = nil
	p.cancelReactions = nil
	p.mu.Unlock()

	p.loop.reg.untrack(p)
	for _, r := range reactions {
		r := r
		p.loop.nextTick(func() { r(reason) })
	}
}

// Cancel transitions the promise to Cancelled. Any producer-supplied
// cancellation hook runs first (synchronously), then registered
// onCancel callbacks fire in registration order (also synchronously - per
// the cancellation-token contract, callbacks are never deferred). A
// no-op if the promise is no longer pending.
func (p *Promise) Cancel() {
	p.mu.Lock()
	if p.state != Pending {
		p.mu.Unlock()
		return
	}
	p.state = Cancelled
	hook := p.cancelHook
	reactions := p.cancelReactions
	p.thenReactions = nil
	p.catchReactions = nil
	p.cancelReactions = nil
	p.mu.Unlock()

	p.loop.reg.untrack(p)
	if hook != nil {
		hook()
	}
	for _, r := range reactions {
		r()
	}
}

// registerThen appends fn to be called with the fulfillment value, or
// schedules it immediately (as a microtask) if already fulfilled. Never
// called for a rejected or cancelled promise.
func (p *Promise) registerThen(fn func(Value)) {
	p.mu.Lock()
	if p.state == Pending {
		p.thenReactions = append(p.thenReactions, fn)
		p.mu.Unlock()
		return
	}
	state, value := p.state, p.value
	p.mu.Unlock()
	if state == Fulfilled {
		p.loop.nextTick(func() { fn(value) })
	}
}

// registerCatch appends fn to be called with the rejection reason, or
// schedules it immediately (as a microtask) if already rejected.
func (p *Promise) registerCatch(fn func(Value)) {
	p.mu.Lock()
	if p.state == Pending {
		p.catchReactions = append(p.catchReactions, fn)
		p.mu.Unlock()
		return
	}
	state, reason := p.state, p.reason
	p.mu.Unlock()
	if state == Rejected {
		p.loop.nextTick(func() { fn(reason) })
	}
}

// registerCancel appends fn to be called on cancellation, or invokes it
// synchronously if already cancelled.
func (p *Promise) registerCancel(fn func()) {
	p.mu.Lock()
	if p.state == Pending {
		p.cancelReactions = append(p.cancelReactions, fn)
		p.mu.Unlock()
		return
	}
	state := p.state
	p.mu.Unlock()
	if state == Cancelled {
		fn()
	}
}

// callProtected invokes cb(arg), recovering a panic rather than letting
// it escape into the microtask drain loop.
func callProtected(cb func(Value) Value, arg Value) (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = normalizePanicValue(r)
		}
	}()
	result = cb(arg)
	return
}

// Then registers cb to run once this promise fulfills, and returns a
// derived promise settled by cb's return value (or its panic). If this
// promise rejects or cancels instead, the derived promise rejects or
// cancels with the same reason, without invoking cb.
func (p *Promise) Then(cb func(Value) Value) *Promise {
	derived := p.loop.newPromise()
	p.registerThen(func(v Value) {
		result, err := callProtected(cb, v)
		if err != nil {
			derived.Reject(err)
			return
		}
		derived.Resolve(result)
	})
	p.registerCatch(func(r Value) { derived.Reject(r) })
	p.registerCancel(func() { derived.Cancel() })
	return derived
}

// Catch registers cb to run once this promise rejects, and returns a
// derived promise settled by cb's return value (or its panic) - the
// derived promise fulfills, recovering from the rejection, unless cb
// itself panics. If this promise fulfills or cancels instead, the
// derived promise adopts that outcome without invoking cb.
func (p *Promise) Catch(cb func(Value) Value) *Promise {
	derived := p.loop.newPromise()
	p.registerThen(func(v Value) { derived.Resolve(v) })
	p.registerCatch(func(r Value) {
		result, err := callProtected(cb, r)
		if err != nil {
			derived.Reject(err)
			return
		}
		derived.Resolve(result)
	})
	p.registerCancel(func() { derived.Cancel() })
	return derived
}

// OnCancel registers cb to run if and when this promise is cancelled. It
// does not produce a derived promise, matching the cancellation-token
// onCancel contract elsewhere in this package.
func (p *Promise) OnCancel(cb func()) {
	p.registerCancel(cb)
}
