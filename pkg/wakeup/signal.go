// Package wakeup provides a one-to-one wakeup primitive used by queue
// consumers and worker start-up handshakes.
package wakeup

import (
	"context"
	"sync"
	"time"
)

type Result int

const (
	WokenUp Result = iota
	TimedOut
)

func (r Result) String() string {
	if r == WokenUp {
		return "woken_up"
	}
	return "timed_out"
}

// Signal wakes a single waiter. A notification sent while nobody waits is
// kept until the next wait consumes it; repeated notifications collapse
// into one. There is no broadcast.
type Signal struct {
	mu    sync.Mutex
	token chan struct{}
}

func New() *Signal {
	return &Signal{token: make(chan struct{}, 1)}
}

// Wait blocks until notified or until timeout elapses. A zero timeout waits
// forever.
func (s *Signal) Wait(timeout time.Duration) Result {
	if timeout <= 0 {
		<-s.token
		return WokenUp
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.token:
		return WokenUp
	case <-timer.C:
		return TimedOut
	}
}

func (s *Signal) WaitContext(ctx context.Context) error {
	select {
	case <-s.token:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitFor returns once pred holds. pred is evaluated under the signal's lock,
// before the first sleep and after every wakeup.
func (s *Signal) WaitFor(pred func() bool) {
	for {
		s.mu.Lock()
		ok := pred()
		s.mu.Unlock()
		if ok {
			return
		}
		<-s.token
	}
}

// WaitForTimeout is WaitFor bounded by timeout. It reports whether pred held
// before the deadline.
func (s *Signal) WaitForTimeout(timeout time.Duration, pred func() bool) bool {
	if timeout <= 0 {
		s.WaitFor(pred)
		return true
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		ok := pred()
		s.mu.Unlock()
		if ok {
			return true
		}

		select {
		case <-s.token:
		case <-deadline.C:
			s.mu.Lock()
			ok = pred()
			s.mu.Unlock()
			return ok
		}
	}
}

func (s *Signal) Notify() {
	select {
	case s.token <- struct{}{}:
	default:
	}
}

// NotifyWith runs mutate under the signal's lock and then wakes one waiter.
func (s *Signal) NotifyWith(mutate func()) {
	s.mu.Lock()
	mutate()
	s.mu.Unlock()
	s.Notify()
}

// NotifyWithLock hands mutate an unlock func so it can release the lock
// early. Calling unlock more than once is a no-op.
func (s *Signal) NotifyWithLock(mutate func(unlock func())) {
	s.mu.Lock()
	released := false
	unlock := func() {
		if !released {
			released = true
			s.mu.Unlock()
		}
	}
	mutate(unlock)
	unlock()
	s.Notify()
}
