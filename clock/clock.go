// Package clock provides monotonic instants for the velocity map.
package clock

import "time"

// Source returns a monotonically non-decreasing instant in microseconds.
type Source interface {
	Now() uint64
}

// Func adapts a function to Source.
type Func func() uint64

func (f Func) Now() uint64 { return f() }

// Monotonic reads the kernel monotonic clock where available. Instants are
// only comparable within one process.
type Monotonic struct{}

// Now implements Source.
func (Monotonic) Now() uint64 { return monotonicMicros() }

// Manual is a settable clock for tests and simulations.
type Manual struct {
	Micros uint64
}

// Now implements Source.
func (m *Manual) Now() uint64 { return m.Micros }

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.Micros += uint64(d / time.Microsecond)
}
