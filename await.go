package async

// Await suspends until p settles, returning its fulfillment value or an
// error describing why it did not fulfill (CancelledError, or the
// normalized rejection reason).
//
// If the calling goroutine is running as a fiber (InFiber() is true),
// Await suspends that fiber without blocking any OS thread beyond the
// fiber's own goroutine - the loop continues ticking other fibers, timers,
// and microtasks while this one is parked. If token is non-nil, p is
// tracked against it for the duration of the wait, so cancelling token
// also cancels p (and so this Await).
//
// If the calling goroutine is not a fiber, Await drives the owning Loop
// directly until p settles - this only succeeds if the loop is not
// already being driven elsewhere (see ErrReentrantRun).
func Await(p *Promise, token *CancellationToken) (Value, error) {
	if token != nil {
		token.Track(p)
	}

	if !InFiber() {
		return p.loop.runUntilSettled(p)
	}

	if p.State() == Cancelled {
		return nil, &CancelledError{}
	}

	f := CurrentFiber()
	if f == nil {
		return nil, &NotInFiberError{}
	}

	var (
		value     Value
		reason    Value
		hasReason bool
		cancelled bool
	)

	p.registerThen(func(v Value) {
		value = v
		f.loop.scheduleFiber(f)
	})
	p.registerCatch(func(r Value) {
		reason = r
		hasReason = true
		f.loop.scheduleFiber(f)
	})
	p.registerCancel(func() {
		cancelled = true
		f.loop.scheduleFiber(f)
	})

	f.suspend()

	if cancelled || p.State() == Cancelled {
		return nil, &CancelledError{}
	}
	if hasReason {
		return nil, NormalizeReason(reason)
	}
	return value, nil
}
