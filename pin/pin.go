// Package pin defines the digital input boundary consumed by the debounce,
// button and rotary packages, plus adapters for real GPIO drivers.
package pin

import (
	"context"
	"errors"
)

// ErrClosed is returned by adapters whose underlying driver was shut down.
var ErrClosed = errors.New("pin: closed")

// Reader samples the instantaneous electrical level of a pin.
// true means high.
type Reader interface {
	ReadLevel() (bool, error)
}

// Waiter is implemented by pins that can suspend until a level is reached.
// It returns ctx.Err() when ctx is done first.
type Waiter interface {
	WaitForLevel(ctx context.Context, level bool) error
}

// Polarity selects how an electrical level maps to a logical "active" level.
type Polarity int

const (
	// ActiveHigh: a high pin is active.
	ActiveHigh Polarity = iota
	// ActiveLow: a low pin is active (pull-up wiring, contact to ground).
	ActiveLow
)

// PullUp returns the polarity used by pull-up wired contacts when pullUp is
// true, ActiveHigh otherwise.
func PullUp(pullUp bool) Polarity {
	if pullUp {
		return ActiveLow
	}
	return ActiveHigh
}

func (p Polarity) String() string {
	switch p {
	case ActiveHigh:
		return "active-high"
	case ActiveLow:
		return "active-low"
	default:
		return "unknown"
	}
}

// Normalize converts an electrical level to a logical one.
func (p Polarity) Normalize(level bool) bool {
	if p == ActiveLow {
		return !level
	}
	return level
}

// Sample reads r once and returns the logical level under p.
// Read errors are returned unchanged.
func Sample(r Reader, p Polarity) (bool, error) {
	level, err := r.ReadLevel()
	if err != nil {
		return false, err
	}
	return p.Normalize(level), nil
}
