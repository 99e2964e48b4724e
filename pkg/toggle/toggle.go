// Package toggle tracks an on/off condition and reports only transitions,
// which keeps repeated failures from flooding the log.
package toggle

import "sync/atomic"

type Toggle struct {
	on atomic.Bool
}

// TurnOn reports whether the toggle was off.
func (t *Toggle) TurnOn() bool {
	return t.on.CompareAndSwap(false, true)
}

// TurnOff reports whether the toggle was on.
func (t *Toggle) TurnOff() bool {
	return t.on.CompareAndSwap(true, false)
}

func (t *Toggle) IsOn() bool {
	return t.on.Load()
}
