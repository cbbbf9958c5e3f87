// Package gqueue provides the producer/consumer queue that decouples
// load generation from the processing engine,
// and the harness that times bulk submission into it.
//
// A queue is created with [New] under a [Config]:
// unbounded queues accept every send immediately,
// while bounded queues block senders once Capacity items are undelivered.
// That blocking is the backpressure the benchmark measures.
//
// Either end may be closed.
// Closing the [Receiver] models a dropped consumer:
// every pending and future send fails fast with [ErrClosed].
// Closing the [Sender] lets the receiver drain what remains
// before it too observes [ErrClosed].
package gqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrClosed is returned from sends after the receiver is closed,
	// and from receives after the sender is closed and the queue is drained.
	ErrClosed = errors.New("channel closed")

	// ErrTimeout is returned from [Receiver.RecvTimeout]
	// when no item arrives within the timeout.
	ErrTimeout = errors.New("receive timed out")
)

// Stats tracks queue activity.
type Stats struct {
	Sent     uint64
	Received uint64

	// BlockedSends counts sends that found a bounded queue full
	// and had to wait.
	BlockedSends uint64
}

// New returns the two ends of a new queue.
// It panics if cfg is invalid.
func New[T any](cfg Config) (*Sender[T], *Receiver[T]) {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	q := &queue[T]{
		cfg:      cfg,
		rxClosed: make(chan struct{}),
		txClosed: make(chan struct{}),
	}
	if cfg.Kind == KindBounded {
		q.ch = make(chan T, cfg.Capacity)
	} else {
		q.notify = make(chan struct{}, 1)
	}

	return &Sender[T]{q: q}, &Receiver[T]{q: q}
}

type queue[T any] struct {
	cfg Config

	rxClosed, txClosed       chan struct{}
	rxCloseOnce, txCloseOnce sync.Once

	// Bounded storage.
	ch chan T

	// Unbounded storage.
	mu     sync.Mutex
	items  []T
	head   int
	notify chan struct{}

	sent, received, blocked atomic.Uint64
}

func (q *queue[T]) stats() Stats {
	return Stats{
		Sent:         q.sent.Load(),
		Received:     q.received.Load(),
		BlockedSends: q.blocked.Load(),
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Sender is the producing end of a queue.
// It is safe for concurrent use.
type Sender[T any] struct {
	q *queue[T]
}

// Send enqueues v.
//
// On an unbounded queue, Send never blocks.
// On a bounded queue, Send blocks while the queue is full,
// until a receive makes room, the receiver is closed, or ctx is done.
//
// Send returns [ErrClosed] if either end has been closed.
func (s *Sender[T]) Send(ctx context.Context, v T) error {
	q := s.q
	if isClosed(q.rxClosed) || isClosed(q.txClosed) {
		return ErrClosed
	}

	if q.cfg.Kind == KindUnbounded {
		return s.sendUnbounded(v)
	}

	// Fast path: room available.
	select {
	case q.ch <- v:
		q.sent.Add(1)
		return nil
	default:
	}

	q.blocked.Add(1)
	select {
	case q.ch <- v:
		q.sent.Add(1)
		return nil
	case <-q.rxClosed:
		return ErrClosed
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

func (s *Sender[T]) sendUnbounded(v T) error {
	q := s.q

	q.mu.Lock()
	// Recheck under the lock so that Receiver.Close,
	// which also takes the lock to release items, cannot race an append.
	if isClosed(q.rxClosed) {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	q.sent.Add(1)

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Close marks the sending side as finished.
// Items already queued remain receivable.
// Close is idempotent.
func (s *Sender[T]) Close() {
	s.q.txCloseOnce.Do(func() {
		close(s.q.txClosed)
	})
}

// Config returns the configuration the queue was created with.
func (s *Sender[T]) Config() Config {
	return s.q.cfg
}

func (s *Sender[T]) Stats() Stats {
	return s.q.stats()
}

// Receiver is the consuming end of a queue.
// It is safe for concurrent use by multiple consumers.
type Receiver[T any] struct {
	q *queue[T]
}

// Recv blocks until an item is available, the queue is closed, or ctx is done.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	return r.recv(ctx, nil)
}

// RecvTimeout blocks for at most d waiting for an item,
// returning [ErrTimeout] if none arrives.
func (r *Receiver[T]) RecvTimeout(d time.Duration) (T, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	return r.recv(context.Background(), timer.C)
}

// TryRecv returns an item if one is immediately available.
func (r *Receiver[T]) TryRecv() (T, bool) {
	v, ok := r.tryRecv()
	if ok {
		r.q.received.Add(1)
	}
	return v, ok
}

// recv waits on ctx and, if non-nil, timeout.
func (r *Receiver[T]) recv(ctx context.Context, timeout <-chan time.Time) (T, error) {
	q := r.q
	var zero T

	for {
		if isClosed(q.rxClosed) {
			return zero, ErrClosed
		}

		if v, ok := r.tryRecv(); ok {
			q.received.Add(1)
			return v, nil
		}

		// Only report closure once the queue is observed empty
		// after the sender closed, so no item is lost.
		if isClosed(q.txClosed) {
			if v, ok := r.tryRecv(); ok {
				q.received.Add(1)
				return v, nil
			}
			return zero, ErrClosed
		}

		if q.cfg.Kind == KindBounded {
			select {
			case v := <-q.ch:
				q.received.Add(1)
				return v, nil
			case <-q.txClosed:
				// Loop around to drain or report closed.
			case <-q.rxClosed:
				return zero, ErrClosed
			case <-ctx.Done():
				return zero, context.Cause(ctx)
			case <-timeout:
				return zero, ErrTimeout
			}
			continue
		}

		select {
		case <-q.notify:
		case <-q.txClosed:
		case <-q.rxClosed:
			return zero, ErrClosed
		case <-ctx.Done():
			return zero, context.Cause(ctx)
		case <-timeout:
			return zero, ErrTimeout
		}
	}
}

func (r *Receiver[T]) tryRecv() (T, bool) {
	q := r.q
	var zero T

	if q.cfg.Kind == KindBounded {
		select {
		case v := <-q.ch:
			return v, true
		default:
			return zero, false
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		return zero, false
	}

	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++

	switch {
	case q.head == len(q.items):
		// Drained; reuse the backing array.
		q.items = q.items[:0]
		q.head = 0
	case q.head > 1024 && q.head*2 > len(q.items):
		// Mostly consumed; compact so the slice does not grow forever.
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}

	if len(q.items) > q.head {
		// Wake another waiting receiver for the remaining items.
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}

	return v, true
}

// Len returns the number of undelivered items.
func (r *Receiver[T]) Len() int {
	q := r.q
	if q.cfg.Kind == KindBounded {
		return len(q.ch)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Close drops the receiving side.
// Blocked and future sends fail with [ErrClosed],
// and any undelivered items are discarded.
// Close is idempotent.
func (r *Receiver[T]) Close() {
	q := r.q
	q.rxCloseOnce.Do(func() {
		q.mu.Lock()
		close(q.rxClosed)
		clear(q.items)
		q.items = nil
		q.head = 0
		q.mu.Unlock()
	})
}

func (r *Receiver[T]) Config() Config {
	return r.q.cfg
}

func (r *Receiver[T]) Stats() Stats {
	return r.q.stats()
}
