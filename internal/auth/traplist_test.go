package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filterchain/internal/logger"
)

type fakeTrapRepo struct {
	mu          sync.Mutex
	checksum    string
	numbers     []string
	checksumErr error
	loadErr     error
	loads       int
}

func (r *fakeTrapRepo) Checksum(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checksum, r.checksumErr
}

func (r *fakeTrapRepo) LoadNumbers(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	return append([]string(nil), r.numbers...), r.loadErr
}

func (r *fakeTrapRepo) set(checksum string, numbers ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checksum = checksum
	r.numbers = numbers
}

func (r *fakeTrapRepo) loadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads
}

func TestTrapList_RefreshOnlyOnChecksumChange(t *testing.T) {
	repo := &fakeTrapRepo{}
	repo.set("a", "0101", "0102")
	l := NewTrapList(repo, 0, logger.NopLogger())

	changed, err := l.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, l.Contains("0101"))
	assert.False(t, l.Contains("0199"))
	assert.Equal(t, 2, l.Size())

	changed, err = l.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, repo.loadCount())

	repo.set("b", "0199")
	changed, err = l.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, l.Contains("0199"))
	assert.False(t, l.Contains("0101"))
}

func TestTrapList_EmptyTableLoadsOnce(t *testing.T) {
	repo := &fakeTrapRepo{}
	l := NewTrapList(repo, 0, logger.NopLogger())

	changed, err := l.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = l.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 0, l.Size())
}

func TestTrapList_FailureKeepsLastGoodCopy(t *testing.T) {
	repo := &fakeTrapRepo{}
	repo.set("a", "0101")
	l := NewTrapList(repo, 0, logger.NopLogger())
	require.NoError(t, l.Reload(context.Background()))

	repo.set("b", "0202")
	repo.loadErr = errors.New("lost connection")
	_, err := l.Refresh(context.Background())
	assert.Error(t, err)
	assert.True(t, l.Contains("0101"))

	repo.loadErr = nil
	repo.checksumErr = errors.New("lost connection")
	assert.Error(t, l.Reload(context.Background()))
	assert.True(t, l.Contains("0101"))
}

func TestTrapList_RunPicksUpChanges(t *testing.T) {
	repo := &fakeTrapRepo{}
	repo.set("a", "0101")
	l := NewTrapList(repo, 5, logger.NopLogger())
	require.NoError(t, l.Reload(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	repo.set("b", "0303")
	assert.Eventually(t, func() bool { return l.Contains("0303") }, time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
