// Package debounce implements a shift-register debounce filter.
//
// The filter keeps the last Size samples of one logical signal in a single
// byte. Its stable level only flips when every retained sample agrees, so a
// contact bouncing faster than Size polls never produces an edge.
package debounce

import (
	"errors"
	"fmt"
)

const (
	// MinSize and MaxSize bound the number of retained samples.
	// The history register is one byte.
	MinSize = 2
	MaxSize = 8
)

// ErrFilterSize is returned when a filter size is outside [MinSize, MaxSize].
var ErrFilterSize = errors.New("debounce: filter size out of range")

// Edge is a transition of the stable level.
type Edge int

const (
	// Rose: stable level went from low to high.
	Rose Edge = iota + 1
	// Fell: stable level went from high to low.
	Fell
)

func (e Edge) String() string {
	switch e {
	case Rose:
		return "rose"
	case Fell:
		return "fell"
	default:
		return fmt.Sprintf("Edge(%d)", int(e))
	}
}

// Filter is a fixed-width debounce filter. The zero value is not usable;
// construct with New.
type Filter struct {
	history uint8
	index   uint8
	size    uint8
	mask    uint8
	stable  bool
}

// New returns a filter retaining size samples. The stable level starts low.
func New(size int) (*Filter, error) {
	if size < MinSize || size > MaxSize {
		return nil, fmt.Errorf("%w: %d (must be %d..%d)", ErrFilterSize, size, MinSize, MaxSize)
	}
	return &Filter{
		size: uint8(size),
		mask: uint8((uint16(1) << size) - 1),
	}, nil
}

// MustNew is like New but panics on an invalid size.
func MustNew(size int) *Filter {
	f, err := New(size)
	if err != nil {
		panic(err)
	}
	return f
}

// Poll records one logical sample and reports a stable edge, if any.
// At most one edge is reported per call.
func (f *Filter) Poll(sample bool) (Edge, bool) {
	if sample {
		f.history |= 1 << f.index
	} else {
		f.history &^= 1 << f.index
	}
	f.index++
	if f.index >= f.size {
		f.index = 0
	}

	switch {
	case f.history == f.mask && !f.stable:
		f.stable = true
		return Rose, true
	case f.history == 0 && f.stable:
		f.stable = false
		return Fell, true
	}
	return 0, false
}

// Stable returns the last stable level.
func (f *Filter) Stable() bool { return f.stable }

// Size returns the number of retained samples.
func (f *Filter) Size() int { return int(f.size) }

// Reset clears the history and returns the stable level to low.
func (f *Filter) Reset() {
	f.history = 0
	f.index = 0
	f.stable = false
}
