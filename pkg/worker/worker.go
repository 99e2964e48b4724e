// Package worker runs queue consumers on dedicated goroutines and spreads
// work across them.
package worker

import (
	"errors"
	"runtime"
	"sync"

	"filterchain/pkg/queue"
	"filterchain/pkg/wakeup"
)

// DefaultRetries is the enqueue retry budget used by filter stages.
const DefaultRetries = 1000

var ErrBusy = errors.New("worker queue busy")

type Handler[T any] func(item T)

// BatchHandler receives at least one item.
type BatchHandler[T any] func(items []T)

type Option func(*options)

type options struct {
	mode       queue.Mode
	lockThread bool
}

func WithMode(mode queue.Mode) Option {
	return func(o *options) { o.mode = mode }
}

// WithLockOSThread pins the run loop to its own OS thread.
func WithLockOSThread() Option {
	return func(o *options) { o.lockThread = true }
}

type Worker[T any] struct {
	ordinal    int
	queue      *queue.Bounded[T]
	handle     BatchHandler[T]
	batchSize  int
	lockThread bool

	mu      sync.Mutex
	running bool
	started *wakeup.Signal
	live    bool
	done    chan struct{}
}

func New[T any](ordinal, capacity int, handle Handler[T], opts ...Option) *Worker[T] {
	return NewBatch[T](ordinal, capacity, 1, func(items []T) {
		for _, item := range items {
			handle(item)
		}
	}, opts...)
}

// NewBatch returns a worker that hands over up to batchSize items at once:
// one it waited for plus whatever was already queued behind it.
func NewBatch[T any](ordinal, capacity, batchSize int, handle BatchHandler[T], opts ...Option) *Worker[T] {
	o := options{mode: queue.Signaled}
	for _, opt := range opts {
		opt(&o)
	}
	if batchSize < 1 {
		batchSize = 1
	}

	return &Worker[T]{
		ordinal:    ordinal,
		queue:      queue.New[T](capacity, o.mode),
		handle:     handle,
		batchSize:  batchSize,
		lockThread: o.lockThread,
		started:    wakeup.New(),
	}
}

// Start opens the queue and returns once the run loop is consuming.
// Calling Start on a running worker does nothing.
func (w *Worker[T]) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.queue.Open()
	w.done = make(chan struct{})
	w.live = false

	go w.run()

	w.started.WaitFor(func() bool { return w.live })
	w.running = true
	return nil
}

// Stop closes the queue, lets the run loop drain what was already queued and
// waits for it to exit.
func (w *Worker[T]) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	w.queue.Close()
	<-w.done
	w.running = false
}

func (w *Worker[T]) run() {
	defer close(w.done)

	if w.lockThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	w.started.NotifyWith(func() { w.live = true })

	batch := make([]T, 0, w.batchSize)
	for {
		item, err := w.queue.Pop(0)
		if errors.Is(err, queue.ErrClosed) {
			return
		}
		if err != nil {
			continue
		}

		batch = append(batch[:0], item)
		for len(batch) < w.batchSize {
			next, ok := w.queue.TryPop()
			if !ok {
				break
			}
			batch = append(batch, next)
		}
		w.handle(batch)
	}
}

func (w *Worker[T]) Push(item T) error {
	return w.queue.Push(item)
}

// TryEnqueue pushes item, retrying while the queue is full. maxRetries of
// zero means a single attempt.
func (w *Worker[T]) TryEnqueue(item T, maxRetries int) error {
	return TryEnqueue[T](w, item, maxRetries)
}

func (w *Worker[T]) Size() int64 {
	return w.queue.Size()
}

func (w *Worker[T]) Ordinal() int {
	return w.ordinal
}

func (w *Worker[T]) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

type Pusher[T any] interface {
	Push(item T) error
}

// TryEnqueue makes up to maxRetries push attempts (at least one). It returns
// ErrBusy when every attempt found the queue full and passes any other error
// through unchanged.
func TryEnqueue[T any](p Pusher[T], item T, maxRetries int) error {
	attempts := maxRetries
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		err := p.Push(item)
		if err == nil {
			return nil
		}
		if !errors.Is(err, queue.ErrFull) {
			return err
		}
		runtime.Gosched()
	}

	return ErrBusy
}
