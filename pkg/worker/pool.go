package worker

import (
	"errors"
	"fmt"
	"sync"
)

var ErrNoWorkers = errors.New("worker pool is empty")

// Member is anything a Pool can dispatch to.
type Member[M any] interface {
	Push(item M) error
	Size() int64
	Start() error
	Stop()
}

type Factory[M any] func(ordinal, capacity int) Member[M]

type Pool[M any] struct {
	mu      sync.RWMutex
	members []Member[M]
}

func NewPool[M any]() *Pool[M] {
	return &Pool[M]{}
}

// Configure replaces the pool's members with n fresh ones numbered from 1.
// It must not be called while the pool is running.
func (p *Pool[M]) Configure(n, capacity int, factory Factory[M]) {
	members := make([]Member[M], 0, n)
	for i := 1; i <= n; i++ {
		members = append(members, factory(i, capacity))
	}

	p.mu.Lock()
	p.members = members
	p.mu.Unlock()
}

// Dispatch hands item to the member with the fewest queued items. Sizes are
// read without coordination, so the choice is a heuristic.
func (p *Pool[M]) Dispatch(item M) error {
	p.mu.RLock()
	members := p.members
	p.mu.RUnlock()

	target := leastLoaded(members)
	if target == nil {
		return ErrNoWorkers
	}
	return target.Push(item)
}

func leastLoaded[M any](members []Member[M]) Member[M] {
	var (
		best     Member[M]
		bestSize int64
	)
	for i, m := range members {
		size := m.Size()
		if i == 0 || size < bestSize {
			best, bestSize = m, size
		}
	}
	return best
}

func (p *Pool[M]) Start() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for i, m := range p.members {
		if err := m.Start(); err != nil {
			return fmt.Errorf("start worker %d: %w", i+1, err)
		}
	}
	return nil
}

// Stop stops every member, including ones that never started.
func (p *Pool[M]) Stop() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, m := range p.members {
		m.Stop()
	}
}

func (p *Pool[M]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.members)
}

func (p *Pool[M]) Sizes() []int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	sizes := make([]int64, len(p.members))
	for i, m := range p.members {
		sizes[i] = m.Size()
	}
	return sizes
}
