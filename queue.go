package async

import "github.com/eapache/queue"

// fifo is a typed FIFO queue backing the Loop's ready-fiber, new-fiber,
// and microtask lists, backed by eapache/queue's ring buffer so repeated
// push/pop cycles do not reallocate once warmed up.
type fifo[T any] struct {
	q *queue.Queue
}

func newFifo[T any]() *fifo[T] {
	return &fifo[T]{q: queue.New()}
}

func (f *fifo[T]) pushBack(v T) {
	f.q.Add(v)
}

func (f *fifo[T]) popFront() (T, bool) {
	var zero T
	if f.q.Length() == 0 {
		return zero, false
	}
	v := f.q.Remove()
	return v.(T), true
}

func (f *fifo[T]) len() int {
	return f.q.Length()
}
