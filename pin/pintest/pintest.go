// Package pintest provides scripted pins for tests.
package pintest

import (
	"context"
	"sync"
)

// Script is a pin.Reader that replays a fixed sequence of electrical levels.
// Once the sequence is exhausted the last level repeats. A non-nil Err is
// returned by every read until cleared.
type Script struct {
	mu     sync.Mutex
	levels []bool
	pos    int
	reads  int
	err    error

	// changed is signalled whenever Set is called.
	changed chan struct{}
}

// NewScript returns a pin that replays levels.
func NewScript(levels ...bool) *Script {
	return &Script{
		levels:  append([]bool(nil), levels...),
		changed: make(chan struct{}, 1),
	}
}

// Level returns a pin stuck at level.
func Level(level bool) *Script {
	return NewScript(level)
}

// Bits builds a level sequence from a string of '0' and '1'; other runes are
// ignored so sequences can be grouped ("0011 1100").
func Bits(s string) []bool {
	out := make([]bool, 0, len(s))
	for _, r := range s {
		switch r {
		case '0':
			out = append(out, false)
		case '1':
			out = append(out, true)
		}
	}
	return out
}

// ReadLevel implements pin.Reader.
func (s *Script) ReadLevel() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.err != nil {
		return false, s.err
	}
	return s.current(), nil
}

func (s *Script) current() bool {
	if len(s.levels) == 0 {
		return false
	}
	if s.pos >= len(s.levels) {
		return s.levels[len(s.levels)-1]
	}
	v := s.levels[s.pos]
	s.pos++
	return v
}

// Push appends levels to the script.
func (s *Script) Push(levels ...bool) {
	s.mu.Lock()
	s.levels = append(s.levels, levels...)
	s.mu.Unlock()
}

// Set replaces the script with a single stuck level and wakes waiters.
func (s *Script) Set(level bool) {
	s.mu.Lock()
	s.levels = []bool{level}
	s.pos = 0
	s.mu.Unlock()
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Fail makes subsequent reads return err (nil clears it).
func (s *Script) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Reads reports how many times ReadLevel was called.
func (s *Script) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Waitable wraps a Script with a pin.Waiter implementation driven by Set.
type Waitable struct {
	*Script
}

// NewWaitable returns a waitable pin stuck at level.
func NewWaitable(level bool) *Waitable {
	return &Waitable{Script: Level(level)}
}

// WaitForLevel implements pin.Waiter. It does not consume scripted levels.
func (w *Waitable) WaitForLevel(ctx context.Context, level bool) error {
	for {
		w.mu.Lock()
		err := w.err
		var cur bool
		if n := len(w.levels); n > 0 {
			i := w.pos
			if i >= n {
				i = n - 1
			}
			cur = w.levels[i]
		}
		w.mu.Unlock()

		if err != nil {
			return err
		}
		if cur == level {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.changed:
		}
	}
}
