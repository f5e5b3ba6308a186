// Package velocity scales encoder ticks by how quickly they arrive.
//
// A Map is a small table of (threshold, scale) entries sorted by threshold.
// For each tick the time since the previous tick is compared against the
// table; the first threshold greater than the elapsed time selects the scale.
// Short gaps (fast spinning) therefore land in the low-threshold, high-scale
// buckets.
//
// Instants are plain unsigned integers in a unit chosen by the caller
// (microseconds in surfaced).
package velocity

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrMapFull is returned when inserting beyond the map's capacity.
	ErrMapFull = errors.New("velocity: map is full")
	// ErrDuplicateThreshold is returned when a threshold is already present.
	ErrDuplicateThreshold = errors.New("velocity: duplicate threshold")
)

// Entry is one bucket of the table.
type Entry struct {
	Threshold uint64
	Scale     float32
}

// Map converts raw ticks to velocity-scaled ticks. It is not safe for
// concurrent use.
type Map struct {
	entries []Entry

	last    uint64
	hasLast bool
}

// New returns an empty map holding at most capacity entries. Storage is
// allocated once here.
func New(capacity int) *Map {
	if capacity < 0 {
		capacity = 0
	}
	return &Map{entries: make([]Entry, 0, capacity)}
}

// Insert adds an entry, keeping the table sorted by ascending threshold.
func (m *Map) Insert(threshold uint64, scale float32) error {
	if len(m.entries) == cap(m.entries) {
		return fmt.Errorf("%w (capacity %d)", ErrMapFull, cap(m.entries))
	}
	i, found := slices.BinarySearchFunc(m.entries, threshold, func(e Entry, t uint64) int {
		switch {
		case e.Threshold < t:
			return -1
		case e.Threshold > t:
			return 1
		}
		return 0
	})
	if found {
		return fmt.Errorf("%w: %d", ErrDuplicateThreshold, threshold)
	}
	m.entries = slices.Insert(m.entries, i, Entry{Threshold: threshold, Scale: scale})
	return nil
}

// Add is the builder form of Insert. It panics if the entry cannot be added,
// which indicates a configuration bug.
func (m *Map) Add(threshold uint64, scale float32) *Map {
	if err := m.Insert(threshold, scale); err != nil {
		panic(err)
	}
	return m
}

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.entries) }

// Entries returns a copy of the table in ascending threshold order.
func (m *Map) Entries() []Entry {
	return slices.Clone(m.entries)
}

// Reset forgets the last recorded instant. The next tick passes unscaled.
func (m *Map) Reset() {
	m.last = 0
	m.hasLast = false
}

// Map is Scale for an optional tick: when present is false nothing is
// recorded and ok is false.
func (m *Map) Map(now uint64, ticks int, present bool) (scaled int, ok bool) {
	if !present {
		return 0, false
	}
	return m.Scale(now, ticks)
}

// Scale returns ticks scaled for the time elapsed since the previous
// accepted tick.
//
// With an empty table ticks pass through and no instant is recorded. The
// first tick passes through and records now. If now is earlier than the
// recorded instant the tick is rejected (ok is false) and the recorded
// instant is left untouched. Scaled values are truncated toward zero.
func (m *Map) Scale(now uint64, ticks int) (scaled int, ok bool) {
	if len(m.entries) == 0 {
		return ticks, true
	}
	if !m.hasLast {
		m.last, m.hasLast = now, true
		return ticks, true
	}
	if now < m.last {
		return 0, false
	}

	elapsed := now - m.last
	m.last = now
	for _, e := range m.entries {
		if elapsed < e.Threshold {
			return int(float32(ticks) * e.Scale), true
		}
	}
	return ticks, true
}
