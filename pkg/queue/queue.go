// Package queue implements a bounded multi-producer queue with a poison
// close and two consumer wait strategies.
package queue

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"filterchain/pkg/wakeup"
)

var (
	ErrClosed  = errors.New("queue closed")
	ErrFull    = errors.New("queue full")
	ErrTimeout = errors.New("queue pop timed out")
)

type Mode int

const (
	// Signaled parks the consumer on a wakeup.Signal between items.
	Signaled Mode = iota
	// Spinning polls, yielding the processor, and falls back to short
	// sleeps after SpinLimit consecutive misses.
	Spinning
)

const (
	SpinLimit  = 1000
	SpinSleep  = time.Millisecond
	DefaultCap = 1000
)

func (m Mode) String() string {
	switch m {
	case Spinning:
		return "spinning"
	default:
		return "signaled"
	}
}

func ParseMode(s string) Mode {
	if s == "spinning" || s == "adaptive" {
		return Spinning
	}
	return Signaled
}

type Bounded[T any] struct {
	mode   Mode
	items  chan T
	size   atomic.Int64
	signal *wakeup.Signal

	mu   sync.RWMutex
	open bool
}

// New returns a closed queue; call Open before pushing.
func New[T any](capacity int, mode Mode) *Bounded[T] {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Bounded[T]{
		mode:   mode,
		items:  make(chan T, capacity),
		signal: wakeup.New(),
	}
}

func (q *Bounded[T]) Open() {
	q.mu.Lock()
	q.open = true
	q.mu.Unlock()
}

// Close poisons the queue. Pushes fail from now on; Pop keeps returning
// queued items and reports ErrClosed once the queue is empty.
func (q *Bounded[T]) Close() {
	q.mu.Lock()
	q.open = false
	q.mu.Unlock()
	q.signal.Notify()
}

func (q *Bounded[T]) IsOpen() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.open
}

// Push never blocks.
func (q *Bounded[T]) Push(item T) error {
	q.mu.RLock()
	if !q.open {
		q.mu.RUnlock()
		return ErrClosed
	}
	select {
	case q.items <- item:
		q.size.Add(1)
	default:
		q.mu.RUnlock()
		return ErrFull
	}
	q.mu.RUnlock()

	if q.mode == Signaled {
		q.signal.Notify()
	}
	return nil
}

func (q *Bounded[T]) TryPop() (T, bool) {
	select {
	case item := <-q.items:
		q.size.Add(-1)
		return item, true
	default:
		var zero T
		return zero, false
	}
}

// Pop waits up to timeout for an item. A non-positive timeout waits until an
// item arrives or the queue is closed and drained.
func (q *Bounded[T]) Pop(timeout time.Duration) (T, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	if q.mode == Spinning {
		return q.popSpinning(deadline)
	}
	return q.popSignaled(deadline)
}

func (q *Bounded[T]) popSignaled(deadline time.Time) (T, error) {
	var zero T
	for {
		if item, ok := q.TryPop(); ok {
			return item, nil
		}
		if !q.IsOpen() {
			// a push may have landed between the miss and the check
			if item, ok := q.TryPop(); ok {
				return item, nil
			}
			return zero, ErrClosed
		}

		var wait time.Duration
		if !deadline.IsZero() {
			wait = time.Until(deadline)
			if wait <= 0 {
				return zero, ErrTimeout
			}
		}
		if q.signal.Wait(wait) == wakeup.TimedOut {
			if item, ok := q.TryPop(); ok {
				return item, nil
			}
			return zero, ErrTimeout
		}
	}
}

func (q *Bounded[T]) popSpinning(deadline time.Time) (T, error) {
	var zero T
	fails := 0
	for {
		if item, ok := q.TryPop(); ok {
			return item, nil
		}
		if !q.IsOpen() {
			if item, ok := q.TryPop(); ok {
				return item, nil
			}
			return zero, ErrClosed
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return zero, ErrTimeout
		}

		if fails < SpinLimit {
			fails++
			runtime.Gosched()
		} else {
			time.Sleep(SpinSleep)
		}
	}
}

// Size is approximate and may briefly read negative under concurrent use.
func (q *Bounded[T]) Size() int64 {
	return q.size.Load()
}

func (q *Bounded[T]) Cap() int {
	return cap(q.items)
}

func (q *Bounded[T]) Mode() Mode {
	return q.mode
}
