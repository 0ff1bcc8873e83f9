package async

import "context"

// Runtime bundles a Loop with convenience constructors and combinator
// methods, so a process can own more than one isolated runtime (e.g. one
// per test) without any package-level mutable state - this is the
// "Runtime handle" replacing what would otherwise be singleton/static
// package functions.
type Runtime struct {
	loop *Loop
}

// NewRuntime constructs a Runtime backed by a fresh Loop.
func NewRuntime(opts ...LoopOption) *Runtime {
	return &Runtime{loop: NewLoop(opts...)}
}

// Loop returns the runtime's underlying Loop, for callers that need
// direct access (e.g. to call Run themselves, or to inspect Stats).
func (rt *Runtime) Loop() *Loop { return rt.loop }

// Await suspends until p settles, per the package-level Await.
func (rt *Runtime) Await(p *Promise) (Value, error) {
	return Await(p, nil)
}

// Run drives the runtime's loop until idle or ctx is done.
func (rt *Runtime) Run(ctx context.Context) error {
	return rt.loop.Run(ctx)
}

// firstToken returns the first token in tokens, or nil if empty -
// a small helper backing this package's `token ...*CancellationToken`
// optional-argument convention.
func firstToken(tokens []*CancellationToken) *CancellationToken {
	if len(tokens) == 0 {
		return nil
	}
	return tokens[0]
}

var defaultRuntime = NewRuntime()

// Default returns the package-level Runtime used by the top-level
// convenience functions (Async, AsyncImmediate, Delay, Sleep, ...).
func Default() *Runtime { return defaultRuntime }

// Async is a package-level convenience wrapping Default().Async.
func Async(fn func() (Value, error)) func() *Promise {
	return defaultRuntime.Async(fn)
}

// AsyncImmediate is a package-level convenience wrapping
// Default().AsyncImmediate.
func AsyncImmediate(fn func() (Value, error)) *Promise {
	return defaultRuntime.AsyncImmediate(fn)
}

// Delay is a package-level convenience wrapping Default().Delay.
func Delay(seconds float64) *Promise {
	return defaultRuntime.Delay(seconds)
}

// Sleep is a package-level convenience wrapping Default().Sleep.
func Sleep(seconds float64, token ...*CancellationToken) error {
	return defaultRuntime.Sleep(seconds, token...)
}
