package clock

import (
	"testing"
	"time"
)

func TestMonotonic_NonDecreasing(t *testing.T) {
	var c Monotonic
	prev := c.Now()
	for i := 0; i < 1000; i++ {
		now := c.Now()
		if now < prev {
			t.Fatalf("clock went backwards: %d -> %d", prev, now)
		}
		prev = now
	}
}

func TestMonotonic_Advances(t *testing.T) {
	var c Monotonic
	start := c.Now()
	time.Sleep(5 * time.Millisecond)
	if d := c.Now() - start; d < 4000 {
		t.Errorf("expected at least ~5ms elapsed, got %dus", d)
	}
}

func TestManual_Advance(t *testing.T) {
	m := &Manual{}
	m.Advance(300 * time.Millisecond)
	if m.Now() != 300_000 {
		t.Errorf("Now() = %d, want 300000", m.Now())
	}
}

func TestFunc(t *testing.T) {
	var s Source = Func(func() uint64 { return 42 })
	if s.Now() != 42 {
		t.Errorf("Func source returned %d", s.Now())
	}
}
