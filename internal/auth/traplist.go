package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"filterchain/internal/constants"
	"filterchain/internal/logger"
	"filterchain/pkg/metrics"
)

// TrapList is an in-memory copy of the trap number table. The background
// loop reloads it only when the table checksum moves.
type TrapList struct {
	repo   TrapRepository
	period time.Duration
	logger logger.Logger

	mu       sync.RWMutex
	checksum string
	loaded   bool
	numbers  map[string]struct{}
}

func NewTrapList(repo TrapRepository, periodMs int, log logger.Logger) *TrapList {
	period := time.Duration(periodMs) * time.Millisecond
	if period <= 0 {
		period = constants.DefaultTableCheckPeriod
	}
	return &TrapList{
		repo:    repo,
		period:  period,
		logger:  log,
		numbers: make(map[string]struct{}),
	}
}

func (l *TrapList) Contains(mdn string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.numbers[mdn]
	return ok
}

func (l *TrapList) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.numbers)
}

// Refresh reloads the numbers if the checksum changed and reports whether
// it did.
func (l *TrapList) Refresh(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.TrapListQueryTimeout)
	defer cancel()

	sum, err := l.repo.Checksum(ctx)
	if err != nil {
		metrics.IncTrapListReload("error")
		return false, fmt.Errorf("trap list checksum: %w", err)
	}

	l.mu.RLock()
	unchanged := l.loaded && sum == l.checksum
	l.mu.RUnlock()
	if unchanged {
		return false, nil
	}

	return true, l.load(ctx, sum)
}

// Reload loads the numbers regardless of the checksum.
func (l *TrapList) Reload(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.TrapListQueryTimeout)
	defer cancel()

	sum, err := l.repo.Checksum(ctx)
	if err != nil {
		metrics.IncTrapListReload("error")
		return fmt.Errorf("trap list checksum: %w", err)
	}
	return l.load(ctx, sum)
}

func (l *TrapList) load(ctx context.Context, sum string) error {
	list, err := l.repo.LoadNumbers(ctx)
	if err != nil {
		metrics.IncTrapListReload("error")
		return fmt.Errorf("trap list load: %w", err)
	}

	numbers := make(map[string]struct{}, len(list))
	for _, mdn := range list {
		numbers[mdn] = struct{}{}
	}

	l.mu.Lock()
	l.numbers = numbers
	l.checksum = sum
	l.loaded = true
	l.mu.Unlock()

	metrics.IncTrapListReload("success")
	metrics.SetTrapListSize(len(numbers))
	l.logger.Infow("Trap list loaded", "count", len(numbers), "checksum", sum)
	return nil
}

// Run checks the table every period until ctx is done. The list must have
// been loaded once before, so a failing database keeps the last good copy.
func (l *TrapList) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := l.Refresh(ctx); err != nil && ctx.Err() == nil {
				l.logger.Errorw("Failed to refresh trap list", "error", err)
			}
		}
	}
}
