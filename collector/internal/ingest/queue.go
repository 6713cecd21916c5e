// Package ingest buffers captures while the store is not ready and drains
// them in arrival order once it is.
package ingest

import "sync"

// Queue has two states. NotReady (initial) buffers offered items; Ready
// refuses them so the caller writes directly. MarkReady performs the drain.
type Queue[T any] struct {
	mu    sync.Mutex
	ready bool
	buf   []T

	drainMu sync.Mutex
}

// New returns a NotReady queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Offer buffers item and returns true while the queue is NotReady. It
// returns false once Ready; the caller then persists item itself.
func (q *Queue[T]) Offer(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ready {
		return false
	}
	q.buf = append(q.buf, item)
	return true
}

// MarkReady drains the buffer through fn in arrival order and switches to
// Ready once nothing is left. Items offered during the drain are drained
// after the ones already buffered. If fn fails, the failing item and
// everything after it stay buffered, the queue stays NotReady and the error
// is returned with the number of items drained so far.
func (q *Queue[T]) MarkReady(fn func(T) error) (int, error) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	drained := 0
	for {
		q.mu.Lock()
		if q.ready {
			q.mu.Unlock()
			return drained, nil
		}
		batch := q.buf
		q.buf = nil
		if len(batch) == 0 {
			q.ready = true
			q.mu.Unlock()
			return drained, nil
		}
		q.mu.Unlock()

		for i, item := range batch {
			if err := fn(item); err != nil {
				q.mu.Lock()
				q.buf = append(batch[i:len(batch):len(batch)], q.buf...)
				q.ready = false
				q.mu.Unlock()
				return drained, err
			}
			drained++
		}
	}
}

// Reset returns the queue to NotReady. Later offers are buffered until the
// next MarkReady.
func (q *Queue[T]) Reset() {
	q.mu.Lock()
	q.ready = false
	q.mu.Unlock()
}

// Discard drops every buffered item and returns how many there were.
func (q *Queue[T]) Discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.buf)
	q.buf = nil
	return n
}

// Ready reports the current state.
func (q *Queue[T]) Ready() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}
