// Package handoff provides an order-preserving mailbox that pairs producers
// with consumers.
//
// The Nth value passed to Enqueue is delivered to the Nth consumer slot
// claimed through Reserve (or Dequeue), regardless of whether the value
// arrived before or after the consumer started waiting.
//
//	q := handoff.New[string]()
//	go func() { q.Enqueue("hello") }()
//	v, err := q.Dequeue(ctx) // "hello"
//
// A consumer that gives up (its context ends) keeps its slot: the value
// that later arrives for it is discarded instead of being handed to the
// next consumer. This is what a positional request/response protocol
// needs, since the reply to an abandoned request will still show up.
package handoff

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is the default error returned to waiters after Close.
var ErrClosed = errors.New("handoff: queue closed")

// waiter is a consumer slot that has not received its value yet.
type waiter[T any] struct {
	ch        chan T // capacity 1; closed by Queue.Close
	abandoned bool   // guarded by Queue.mu
}

// Queue is a FIFO handoff between producers and consumers.
//
// At any instant at most one of the two internal sequences (pending values,
// waiting consumers) is non-empty. Queue is safe for concurrent use.
type Queue[T any] struct {
	mu       sync.Mutex
	values   []T
	waiters  []*waiter[T]
	closed   bool
	closeErr error

	onDiscard func(T)
}

// Option configures a Queue.
type Option[T any] func(*Queue[T])

// WithDiscardHook registers fn to be called with every value that is
// dropped, either because its consumer abandoned the slot or because the
// queue was already closed. fn is called without the queue lock held.
func WithDiscardHook[T any](fn func(T)) Option[T] {
	return func(q *Queue[T]) {
		q.onDiscard = fn
	}
}

// New creates an empty Queue.
func New[T any](opts ...Option[T]) *Queue[T] {
	q := &Queue[T]{}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue hands v to the oldest waiting consumer, or holds it until a
// consumer arrives. It never blocks.
func (q *Queue[T]) Enqueue(v T) {
	q.mu.Lock()

	if q.closed {
		hook := q.onDiscard
		q.mu.Unlock()
		if hook != nil {
			hook(v)
		}
		return
	}

	if len(q.waiters) == 0 {
		q.values = append(q.values, v)
		q.mu.Unlock()
		return
	}

	w := q.waiters[0]
	q.waiters[0] = nil
	q.waiters = q.waiters[1:]

	if w.abandoned {
		hook := q.onDiscard
		q.mu.Unlock()
		if hook != nil {
			hook(v)
		}
		return
	}

	// Each waiter receives exactly one value and ch has capacity 1.
	w.ch <- v
	q.mu.Unlock()
}

// Reserve claims the next consumer slot without blocking. The returned
// Ticket resolves to the value paired with that slot.
//
// Slots are claimed in call order, so two goroutines that each Reserve
// while holding a shared lock are paired with values in the order they
// took the lock.
func (q *Queue[T]) Reserve() *Ticket[T] {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.values) > 0 {
		v := q.values[0]
		var zero T
		q.values[0] = zero
		q.values = q.values[1:]
		return &Ticket[T]{value: v, ready: true}
	}

	if q.closed {
		return &Ticket[T]{err: q.closeErr}
	}

	w := &waiter[T]{ch: make(chan T, 1)}
	q.waiters = append(q.waiters, w)
	return &Ticket[T]{q: q, w: w}
}

// Dequeue returns the oldest unclaimed value, waiting for one if needed.
// It is shorthand for Reserve().Wait(ctx).
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	return q.Reserve().Wait(ctx)
}

// Close rejects every waiting consumer with err (ErrClosed when nil).
// Values that are already pending can still be claimed; once they run out,
// Reserve and Dequeue fail with err. Close is idempotent; only the first
// error is kept.
func (q *Queue[T]) Close(err error) {
	if err == nil {
		err = ErrClosed
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.closeErr = err

	for _, w := range q.waiters {
		close(w.ch)
	}
	q.waiters = nil
}

// Err returns the error passed to Close, or nil while the queue is open.
func (q *Queue[T]) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closeErr
}

// Len reports the number of pending values and the number of claimed
// slots still waiting (abandoned slots included).
func (q *Queue[T]) Len() (values, waiters int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.values), len(q.waiters)
}

// Ticket is a claimed consumer slot.
type Ticket[T any] struct {
	q *Queue[T]
	w *waiter[T]

	value T
	ready bool
	err   error
}

// Wait blocks until the slot's value arrives, the queue is closed, or ctx
// ends. If ctx ends first the slot stays claimed and its value will be
// discarded on arrival. Calling Wait again after it returned yields the
// same result.
func (t *Ticket[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	if t.ready {
		return t.value, nil
	}
	if t.err != nil {
		return zero, t.err
	}

	select {
	case v, ok := <-t.w.ch:
		return t.resolve(v, ok)
	case <-ctx.Done():
	}

	t.q.mu.Lock()
	// A value (or Close) may have landed between ctx firing and taking
	// the lock; Enqueue sends under the lock so this check is final.
	select {
	case v, ok := <-t.w.ch:
		t.q.mu.Unlock()
		return t.resolve(v, ok)
	default:
	}
	t.w.abandoned = true
	t.q.mu.Unlock()

	t.err = ctx.Err()
	return zero, t.err
}

func (t *Ticket[T]) resolve(v T, ok bool) (T, error) {
	if !ok {
		var zero T
		t.err = t.q.Err()
		return zero, t.err
	}
	t.value = v
	t.ready = true
	return v, nil
}
