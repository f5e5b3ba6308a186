// Package rotary decodes a two-channel quadrature encoder.
//
// Each channel is debounced on its own. A detent is counted when one channel's
// stable level rises while the two channels disagree; if both stable levels
// move on the same poll the sample pair is treated as a glitch and dropped.
package rotary

import (
	"errors"

	"surfacekit/debounce"
	"surfacekit/pin"
)

// Config holds construction-time parameters shared by both channels.
type Config struct {
	FilterSize int
	Polarity   pin.Polarity
}

// Decoder is a debounced quadrature decoder. It is not safe for concurrent use.
type Decoder struct {
	pinA, pinB pin.Reader
	polarity   pin.Polarity

	filterA, filterB *debounce.Filter

	ticks int
}

// New returns a decoder reading channel A from a and channel B from b.
func New(a, b pin.Reader, cfg Config) (*Decoder, error) {
	if a == nil || b == nil {
		return nil, errors.New("rotary: nil pin")
	}
	fa, err := debounce.New(cfg.FilterSize)
	if err != nil {
		return nil, err
	}
	fb, err := debounce.New(cfg.FilterSize)
	if err != nil {
		return nil, err
	}
	return &Decoder{
		pinA:     a,
		pinB:     b,
		polarity: cfg.Polarity,
		filterA:  fa,
		filterB:  fb,
	}, nil
}

// Poll samples both pins once and returns -1 or +1 when a detent completes.
// If either read fails the error is returned and neither filter is fed.
func (d *Decoder) Poll() (int, bool, error) {
	a, err := pin.Sample(d.pinA, d.polarity)
	if err != nil {
		return 0, false, err
	}
	b, err := pin.Sample(d.pinB, d.polarity)
	if err != nil {
		return 0, false, err
	}
	dir, ok := d.decode(a, b)
	return dir, ok, nil
}

// Feed decodes electrical levels sampled by the caller.
func (d *Decoder) Feed(a, b bool) (int, bool) {
	return d.decode(d.polarity.Normalize(a), d.polarity.Normalize(b))
}

func (d *Decoder) decode(a, b bool) (int, bool) {
	oldA, oldB := d.filterA.Stable(), d.filterB.Stable()
	d.filterA.Poll(a)
	d.filterB.Poll(b)
	stateA, stateB := d.filterA.Stable(), d.filterB.Stable()

	changedA, changedB := stateA != oldA, stateB != oldB
	if stateA == stateB || changedA == changedB {
		return 0, false
	}

	var dir int
	switch {
	case stateA && changedA:
		dir = -1
	case stateB && changedB:
		dir = 1
	default:
		return 0, false
	}
	d.ticks += dir
	return dir, true
}

// Ticks returns the sum of emitted directions since the last ResetTicks.
func (d *Decoder) Ticks() int { return d.ticks }

// ResetTicks zeroes the accumulator. Decoding state is kept.
func (d *Decoder) ResetTicks() { d.ticks = 0 }

// State returns the current stable levels of channels A and B.
func (d *Decoder) State() (a, b bool) {
	return d.filterA.Stable(), d.filterB.Stable()
}
