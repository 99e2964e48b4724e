// Package tps counts events over a sliding one-second window.
package tps

import (
	"sync"
	"time"
)

const Window = time.Second

type Meter struct {
	mu    sync.Mutex
	times []time.Time
	now   func() time.Time
}

type Option func(*Meter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Meter) { m.now = now }
}

func NewMeter(opts ...Option) *Meter {
	m := &Meter{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add records one event at the current time and returns the number of
// events in the window, this one included.
func (m *Meter) Add() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.prune(now)
	m.insert(now)
	return len(m.times)
}

func (m *Meter) Current() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prune(m.now())
	return len(m.times)
}

// prune drops every timestamp at or before now-Window.
func (m *Meter) prune(now time.Time) {
	cutoff := now.Add(-Window)
	i := 0
	for i < len(m.times) && !m.times[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(m.times, m.times[i:])
	m.times = m.times[:n]
}

// insert keeps times ordered when the clock steps backwards.
func (m *Meter) insert(t time.Time) {
	i := len(m.times)
	for i > 0 && m.times[i-1].After(t) {
		i--
	}
	m.times = append(m.times, time.Time{})
	copy(m.times[i+1:], m.times[i:])
	m.times[i] = t
}
