package async

import "sync"

// executeTask runs one task to completion, returning its value (awaiting
// a promise result through to settlement) or the error it failed with.
// Must be called from within a fiber, since a promise-valued task is
// awaited via Await.
func executeTask(item any) (Value, error) {
	switch v := item.(type) {
	case *Promise:
		return Await(v, nil)
	case func() *Promise:
		result, err := invokeProtected(func() Value { return v() })
		if err != nil {
			return nil, err
		}
		return Await(result.(*Promise), nil)
	case func() Value:
		result, err := invokeProtected(v)
		if err != nil {
			return nil, err
		}
		if p, ok := result.(*Promise); ok {
			return Await(p, nil)
		}
		return result, nil
	default:
		return nil, &InvalidArgumentError{
			Message: "task must be *Promise, func() *Promise, or func() Value",
		}
	}
}

func invokeProtected(fn func() Value) (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = normalizePanicValue(r)
		}
	}()
	result = fn()
	return
}

// Concurrent runs tasks with at most limit running at once, resolving
// with an OrderedMap of results in input order once every task has
// fulfilled, or rejecting with the first task's error (remaining tasks
// already started are left to finish but their results are discarded).
// limit must be strictly positive.
func (rt *Runtime) Concurrent(tasks []Entry, limit int) (*Promise, error) {
	if limit <= 0 {
		return nil, &InvalidArgumentError{Message: "concurrent: limit must be > 0"}
	}
	loop := rt.loop
	if len(tasks) == 0 {
		return loop.resolvedPromise(OrderedMap{}), nil
	}

	total := len(tasks)
	results := make(OrderedMap, total)
	for i, t := range tasks {
		results[i].Key = t.Key
	}

	outer := loop.newPromise()

	var (
		mu        sync.Mutex
		running   int
		completed int
		nextIndex int
		settled   bool
	)

	var schedule func()
	schedule = func() {
		mu.Lock()
		if settled {
			mu.Unlock()
			return
		}
		var toStart []int
		for running < limit && nextIndex < total {
			toStart = append(toStart, nextIndex)
			nextIndex++
			running++
		}
		mu.Unlock()

		for _, idx := range toStart {
			idx := idx
			f := newFiber(loop, func() {
				value, err := executeTask(tasks[idx].Value)
				mu.Lock()
				if settled {
					mu.Unlock()
					return
				}
				if err != nil {
					settled = true
					mu.Unlock()
					outer.Reject(err)
					return
				}
				results[idx].Value = value
				running--
				completed++
				done := completed == total
				mu.Unlock()
				if done {
					outer.Resolve(results)
				} else {
					loop.nextTick(schedule)
				}
			})
			loop.addFiber(f)
		}
	}

	loop.nextTick(schedule)
	return outer, nil
}

// ConcurrentSettled behaves like Concurrent but never rejects: it waits
// for every task to settle and resolves with an OrderedMap of
// SettlementRecord in input order.
func (rt *Runtime) ConcurrentSettled(tasks []Entry, limit int) (*Promise, error) {
	if limit <= 0 {
		return nil, &InvalidArgumentError{Message: "concurrentSettled: limit must be > 0"}
	}
	loop := rt.loop
	if len(tasks) == 0 {
		return loop.resolvedPromise(OrderedMap{}), nil
	}

	total := len(tasks)
	records := make(OrderedMap, total)
	for i, t := range tasks {
		records[i].Key = t.Key
	}

	outer := loop.newPromise()

	var (
		mu        sync.Mutex
		running   int
		completed int
		nextIndex int
	)

	var schedule func()
	schedule = func() {
		mu.Lock()
		var toStart []int
		for running < limit && nextIndex < total {
			toStart = append(toStart, nextIndex)
			nextIndex++
			running++
		}
		mu.Unlock()

		for _, idx := range toStart {
			idx := idx
			f := newFiber(loop, func() {
				value, err := executeTask(tasks[idx].Value)
				mu.Lock()
				if err != nil {
					records[idx].Value = SettlementRecord{Reason: err}
				} else {
					records[idx].Value = SettlementRecord{Fulfilled: true, Value: value}
				}
				running--
				completed++
				done := completed == total
				mu.Unlock()
				if done {
					outer.Resolve(records)
				} else {
					loop.nextTick(schedule)
				}
			})
			loop.addFiber(f)
		}
	}

	loop.nextTick(schedule)
	return outer, nil
}

// Batch splits tasks into chunks of batchSize, processing chunks
// sequentially (each chunk run via Concurrent with the given per-chunk
// limit, defaulting to batchSize when limit <= 0) and merging their
// OrderedMap results in order. A rejection in any chunk stops processing
// further chunks and rejects the returned promise.
func (rt *Runtime) Batch(tasks []Entry, batchSize int, limit int) (*Promise, error) {
	if batchSize <= 0 {
		return nil, &InvalidArgumentError{Message: "batch: batchSize must be > 0"}
	}
	if limit <= 0 {
		limit = batchSize
	}
	loop := rt.loop
	chunks := chunkEntries(tasks, batchSize)
	outer := loop.newPromise()

	coordinator := newFiber(loop, func() {
		merged := make(OrderedMap, 0, len(tasks))
		for _, chunk := range chunks {
			chunkPromise, err := rt.Concurrent(chunk, limit)
			if err != nil {
				outer.Reject(err)
				return
			}
			v, awaitErr := Await(chunkPromise, nil)
			if awaitErr != nil {
				outer.Reject(awaitErr)
				return
			}
			merged = append(merged, v.(OrderedMap)...)
		}
		outer.Resolve(merged)
	})
	loop.addFiber(coordinator)
	return outer, nil
}

// BatchSettled behaves like Batch but uses ConcurrentSettled per chunk,
// so it never rejects due to an individual task failing.
func (rt *Runtime) BatchSettled(tasks []Entry, batchSize int, limit int) (*Promise, error) {
	if batchSize <= 0 {
		return nil, &InvalidArgumentError{Message: "batchSettled: batchSize must be > 0"}
	}
	if limit <= 0 {
		limit = batchSize
	}
	loop := rt.loop
	chunks := chunkEntries(tasks, batchSize)
	outer := loop.newPromise()

	coordinator := newFiber(loop, func() {
		merged := make(OrderedMap, 0, len(tasks))
		for _, chunk := range chunks {
			chunkPromise, err := rt.ConcurrentSettled(chunk, limit)
			if err != nil {
				outer.Reject(err)
				return
			}
			v, awaitErr := Await(chunkPromise, nil)
			if awaitErr != nil {
				outer.Reject(awaitErr)
				return
			}
			merged = append(merged, v.(OrderedMap)...)
		}
		outer.Resolve(merged)
	})
	loop.addFiber(coordinator)
	return outer, nil
}

func chunkEntries(tasks []Entry, size int) [][]Entry {
	if len(tasks) == 0 {
		return nil
	}
	var chunks [][]Entry
	for i := 0; i < len(tasks); i += size {
		end := i + size
		if end > len(tasks) {
			end = len(tasks)
		}
		chunks = append(chunks, tasks[i:end])
	}
	return chunks
}
