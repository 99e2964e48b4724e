package toggle

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToggle_ReportsEdgesOnly(t *testing.T) {
	var tg Toggle

	assert.False(t, tg.TurnOff())
	assert.True(t, tg.TurnOn())
	assert.False(t, tg.TurnOn())
	assert.True(t, tg.IsOn())
	assert.True(t, tg.TurnOff())
	assert.False(t, tg.TurnOff())
	assert.False(t, tg.IsOn())
}

func TestToggle_SingleWinnerUnderContention(t *testing.T) {
	var (
		tg   Toggle
		wins atomic.Int32
		wg   sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tg.TurnOn() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
}
