package async

// Async wraps fn so that each invocation of the returned thunk starts a
// fresh fiber running fn and returns a promise for its outcome - the
// fiber is not created until the thunk is called (lazy), mirroring the
// two-step "define, then start" shape of async/await in languages with
// native coroutines.
func (rt *Runtime) Async(fn func() (Value, error)) func() *Promise {
	return func() *Promise {
		return rt.asyncStart(fn)
	}
}

// AsyncImmediate starts a fiber running fn immediately and returns a
// promise for its outcome, equivalent to rt.Async(fn)().
func (rt *Runtime) AsyncImmediate(fn func() (Value, error)) *Promise {
	return rt.asyncStart(fn)
}

func (rt *Runtime) asyncStart(fn func() (Value, error)) *Promise {
	p := rt.loop.newPromise()
	f := newFiber(rt.loop, func() {
		defer func() {
			if r := recover(); r != nil {
				p.Reject(normalizePanicValue(r))
				panic(r)
			}
		}()
		v, err := fn()
		if err != nil {
			p.Reject(err)
			return
		}
		p.Resolve(v)
	})
	rt.loop.addFiber(f)
	return p
}
