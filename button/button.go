// Package button debounces a single push-button or switch contact.
package button

import (
	"context"
	"errors"
	"fmt"

	"surfacekit/debounce"
	"surfacekit/pin"
)

// ErrWaitUnsupported is returned by WaitForActivity when the pin cannot wait.
var ErrWaitUnsupported = errors.New("button: pin does not support waiting")

// Event is a debounced button transition.
type Event int

const (
	Released Event = iota
	Pressed
)

func (e Event) String() string {
	switch e {
	case Released:
		return "released"
	case Pressed:
		return "pressed"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Config holds construction-time parameters.
type Config struct {
	// FilterSize is the number of agreeing samples required to change state (2..8).
	FilterSize int
	// Polarity maps the electrical level to pressed/released.
	Polarity pin.Polarity
}

// Button is a debounced contact bound to one pin. It is not safe for
// concurrent use.
type Button struct {
	pin      pin.Reader
	polarity pin.Polarity
	filter   *debounce.Filter
}

// New returns a released button reading from r.
func New(r pin.Reader, cfg Config) (*Button, error) {
	if r == nil {
		return nil, errors.New("button: nil pin")
	}
	f, err := debounce.New(cfg.FilterSize)
	if err != nil {
		return nil, err
	}
	return &Button{
		pin:      r,
		polarity: cfg.Polarity,
		filter:   f,
	}, nil
}

// Poll samples the pin once and returns a transition, if one happened.
// A pin error is returned unchanged and the filter is not updated.
func (b *Button) Poll() (Event, bool, error) {
	active, err := pin.Sample(b.pin, b.polarity)
	if err != nil {
		return 0, false, err
	}
	ev, ok := b.step(active)
	return ev, ok, nil
}

// Feed debounces a level sampled by the caller instead of the owned pin.
// level is electrical; polarity is applied.
func (b *Button) Feed(level bool) (Event, bool) {
	return b.step(b.polarity.Normalize(level))
}

func (b *Button) step(active bool) (Event, bool) {
	edge, ok := b.filter.Poll(active)
	if !ok {
		return 0, false
	}
	if edge == debounce.Rose {
		return Pressed, true
	}
	return Released, true
}

// IsPressed reports the debounced state.
func (b *Button) IsPressed() bool { return b.filter.Stable() }

// IsReleased reports the inverse of IsPressed.
func (b *Button) IsReleased() bool { return !b.filter.Stable() }

// Polarity returns the configured polarity.
func (b *Button) Polarity() pin.Polarity { return b.polarity }

// WaitForActivity blocks until the raw pin level disagrees with the debounced
// state, i.e. until polling is worthwhile again. It needs a pin implementing
// pin.Waiter.
func (b *Button) WaitForActivity(ctx context.Context) error {
	w, ok := b.pin.(pin.Waiter)
	if !ok {
		return ErrWaitUnsupported
	}
	// Electrical level that corresponds to the opposite logical state.
	target := b.polarity.Normalize(!b.IsPressed())
	return w.WaitForLevel(ctx, target)
}
