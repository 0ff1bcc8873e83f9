package async

// Delay returns a promise that fulfills with nil after seconds have
// elapsed on the owning loop's clock. Cancelling the returned promise
// before it fires cancels the underlying timer, freeing it without
// waiting for it to come due.
func (rt *Runtime) Delay(seconds float64) *Promise {
	p := rt.loop.newPromise()
	handle := rt.loop.addTimer(seconds, func() {
		p.Resolve(nil)
	})
	p.setCancelHook(func() {
		rt.loop.cancelTimer(handle)
	})
	return p
}

// Sleep suspends the calling fiber (or, outside a fiber, drives the loop)
// for seconds, returning any error from the underlying Await (e.g. if the
// delay promise was cancelled via an optional cancellation token).
func (rt *Runtime) Sleep(seconds float64, token ...*CancellationToken) error {
	_, err := Await(rt.Delay(seconds), firstToken(token))
	return err
}
