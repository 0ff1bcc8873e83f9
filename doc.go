// Package async provides a user-space asynchronous runtime built around
// stackful fibers and eagerly-evaluated promise objects.
//
// # Architecture
//
// A [Runtime] owns a [Loop]: a single-threaded cooperative scheduler that
// multiplexes fibers, timers, and microtasks. [Runtime.Async] wraps a
// function in a fresh [Promise] and a fresh [Fiber] bound to the loop;
// [Await] suspends the calling fiber (or, outside any fiber, drives the loop
// directly) until a promise settles.
//
// Fibers are implemented as goroutines parked on a pair of handshake
// channels, so that exactly one fiber's body is ever actually running at a
// time even though each has its own OS thread of control.
//
// # Promises
//
// [Promise] is a mutable state machine with exactly one of four states:
// pending, fulfilled, rejected, cancelled. [Promise.Then] and
// [Promise.Catch] register continuations and return a derived promise; per
// the Promise/A+-style contract, continuations registered on an already
// settled promise are always scheduled as a microtask, never run
// synchronously, to avoid reentrancy hazards in continuation chains.
//
// # Combinators
//
// [All], [AllSettled], [Race], [Any], and [Timeout] compose promises
// order-preservingly. [Runtime.Concurrent] and [Runtime.Batch] (plus their
// *Settled variants) dispatch tasks with a concurrency cap, preserving
// input key order.
//
// # Usage
//
//	rt := async.NewRuntime()
//	task := rt.Async(func() (async.Value, error) {
//	    rt.Sleep(0.1)
//	    return "done", nil
//	})
//	p := task()
//	v, err := rt.Await(p)
package async
