package async

import "sync"

// toPromise normalizes a combinator input into a *Promise: an already
// constructed promise is used as-is; a zero-argument callable is invoked
// once and its return adopted (a plain value resolves immediately, a
// returned promise is awaited through adoption).
func toPromise(loop *Loop, item any) *Promise {
	switch v := item.(type) {
	case *Promise:
		return v
	case func() *Promise:
		return v()
	case func() Value:
		p := loop.newPromise()
		p.Resolve(v())
		return p
	default:
		return loop.rejectedPromise(&InvalidArgumentError{
			Message: "combinator input must be *Promise, func() *Promise, or func() Value",
		})
	}
}

// All settles once every input has fulfilled, with an OrderedMap of their
// values in input order, or rejects with the first rejection reason
// encountered (subsequent settlements, including cancellations that are
// not the first, are ignored). A cancelled input cancels the result,
// exactly like a rejection but with the Cancelled state instead.
func All(loop *Loop, items []Entry) *Promise {
	result := loop.newPromise()
	if len(items) == 0 {
		result.Resolve(OrderedMap{})
		return result
	}

	values := make(OrderedMap, len(items))
	for i, e := range items {
		values[i].Key = e.Key
	}

	var (
		mu        sync.Mutex
		remaining = len(items)
		settled   bool
	)

	for i, e := range items {
		idx := i
		p := toPromise(loop, e.Value)
		p.registerThen(func(v Value) {
			mu.Lock()
			if settled {
				mu.Unlock()
				return
			}
			values[idx].Value = v
			remaining--
			done := remaining == 0
			mu.Unlock()
			if done {
				result.Resolve(values)
			}
		})
		p.registerCatch(func(r Value) {
			mu.Lock()
			already := settled
			settled = true
			mu.Unlock()
			if !already {
				result.Reject(r)
			}
		})
		p.registerCancel(func() {
			mu.Lock()
			already := settled
			settled = true
			mu.Unlock()
			if !already {
				result.Cancel()
			}
		})
	}
	return result
}

// SettlementRecord is one entry of an AllSettled/ConcurrentSettled result:
// either Fulfilled with Value set, or not Fulfilled with Reason set
// (cancellation is folded into Reason as a *CancelledError, since a
// settlement record only distinguishes fulfilled from rejected).
type SettlementRecord struct {
	Fulfilled bool
	Value     Value
	Reason    Value
}

// AllSettled waits for every input to settle (by whatever means) and
// always fulfills, with an OrderedMap of SettlementRecord in input order.
// It never rejects.
func AllSettled(loop *Loop, items []Entry) *Promise {
	result := loop.newPromise()
	if len(items) == 0 {
		result.Resolve(OrderedMap{})
		return result
	}

	records := make(OrderedMap, len(items))
	for i, e := range items {
		records[i].Key = e.Key
	}

	var (
		mu        sync.Mutex
		remaining = len(items)
	)

	settle := func(idx int, rec SettlementRecord) {
		mu.Lock()
		records[idx].Value = rec
		remaining--
		done := remaining == 0
		mu.Unlock()
		if done {
			result.Resolve(records)
		}
	}

	for i, e := range items {
		idx := i
		p := toPromise(loop, e.Value)
		p.registerThen(func(v Value) {
			settle(idx, SettlementRecord{Fulfilled: true, Value: v})
		})
		p.registerCatch(func(r Value) {
			settle(idx, SettlementRecord{Reason: r})
		})
		p.registerCancel(func() {
			settle(idx, SettlementRecord{Reason: &CancelledError{}})
		})
	}
	return result
}

// Race settles with the first input to settle - adopting its value,
// reason, or cancellation - and ignores every later settlement.
func Race(loop *Loop, items []Entry) *Promise {
	result := loop.newPromise()
	if len(items) == 0 {
		result.Reject(&InvalidArgumentError{Message: "race: items must not be empty"})
		return result
	}

	var (
		mu      sync.Mutex
		settled bool
	)
	first := func(fn func()) {
		mu.Lock()
		already := settled
		settled = true
		mu.Unlock()
		if !already {
			fn()
		}
	}

	for _, e := range items {
		p := toPromise(loop, e.Value)
		p.registerThen(func(v Value) { first(func() { result.Resolve(v) }) })
		p.registerCatch(func(r Value) { first(func() { result.Reject(r) }) })
		p.registerCancel(func() { first(func() { result.Cancel() }) })
	}
	return result
}

// Any fulfills with the first fulfilled input's value. If every input
// rejects or cancels, Any rejects with an *AggregateError collecting the
// reasons (cancellations contribute a *CancelledError) in input order.
func Any(loop *Loop, items []Entry) *Promise {
	result := loop.newPromise()
	if len(items) == 0 {
		result.Reject(&AggregateError{})
		return result
	}

	reasons := make([]error, len(items))
	var (
		mu        sync.Mutex
		remaining = len(items)
		settled   bool
	)

	for i, e := range items {
		idx := i
		p := toPromise(loop, e.Value)
		p.registerThen(func(v Value) {
			mu.Lock()
			already := settled
			settled = true
			mu.Unlock()
			if !already {
				result.Resolve(v)
			}
		})
		fail := func(reason error) {
			mu.Lock()
			if settled {
				mu.Unlock()
				return
			}
			reasons[idx] = reason
			remaining--
			done := remaining == 0
			mu.Unlock()
			if done {
				result.Reject(&AggregateError{Errors: reasons})
			}
		}
		p.registerCatch(func(r Value) { fail(NormalizeReason(r)) })
		p.registerCancel(func() { fail(&CancelledError{}) })
	}
	return result
}

// Timeout races p against an internal timer, rejecting with *TimeoutError
// if the timer fires first. The losing side is never forcibly
// terminated by Timeout itself - callers needing cleanup of an operand
// that lost the race should couple it with a CancellationToken. seconds
// must be strictly positive; otherwise Timeout fails synchronously.
func Timeout(loop *Loop, p *Promise, seconds float64) (*Promise, error) {
	if seconds <= 0 {
		return nil, &InvalidArgumentError{Message: "timeout: seconds must be > 0"}
	}

	timeoutP := loop.newPromise()
	handle := loop.addTimer(seconds, func() {
		timeoutP.Reject(&TimeoutError{Seconds: seconds})
	})
	timeoutP.setCancelHook(func() { loop.cancelTimer(handle) })

	cleanup := func() { loop.cancelTimer(handle) }
	p.registerThen(func(Value) { cleanup() })
	p.registerCatch(func(Value) { cleanup() })
	p.registerCancel(cleanup)

	return Race(loop, []Entry{{Key: IntKey(0), Value: p}, {Key: IntKey(1), Value: timeoutP}}), nil
}
