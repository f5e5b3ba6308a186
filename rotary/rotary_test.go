package rotary

import (
	"errors"
	"testing"

	"surfacekit/debounce"
	"surfacekit/pin"
	"surfacekit/pin/pintest"
)

func newDecoder(t *testing.T, a, b pin.Reader, size int, pol pin.Polarity) *Decoder {
	t.Helper()
	d, err := New(a, b, Config{FilterSize: size, Polarity: pol})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

// pollAll polls d n times and returns the emitted directions.
func pollAll(t *testing.T, d *Decoder, n int) []int {
	t.Helper()
	var got []int
	for i := 0; i < n; i++ {
		dir, ok, err := d.Poll()
		if err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
		if ok {
			got = append(got, dir)
		}
	}
	return got
}

func TestNew_RejectsBadFilterSize(t *testing.T) {
	_, err := New(pintest.Level(false), pintest.Level(false), Config{FilterSize: 9})
	if !errors.Is(err, debounce.ErrFilterSize) {
		t.Fatalf("expected ErrFilterSize, got %v", err)
	}
}

// TestPoll_CanonicalSequence feeds the A-leads-B cycle one raw sample per poll
// through size-2 filters.
func TestPoll_CanonicalSequence(t *testing.T) {
	a := pintest.NewScript(pintest.Bits("01100")...)
	b := pintest.NewScript(pintest.Bits("00110")...)
	d := newDecoder(t, a, b, 2, pin.ActiveHigh)

	got := pollAll(t, d, 5)
	if len(got) != 1 || got[0] != -1 {
		t.Fatalf("expected a single -1, got %v", got)
	}
	if d.Ticks() != -1 {
		t.Errorf("Ticks() = %d, want -1", d.Ticks())
	}
}

func TestPoll_ReverseSequence(t *testing.T) {
	a := pintest.NewScript(pintest.Bits("00110")...)
	b := pintest.NewScript(pintest.Bits("01100")...)
	d := newDecoder(t, a, b, 2, pin.ActiveHigh)

	got := pollAll(t, d, 5)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected a single +1, got %v", got)
	}
}

// TestPoll_OneTickPerCycle holds each quadrature phase for several polls and
// checks that every full cycle yields exactly one tick.
func TestPoll_OneTickPerCycle(t *testing.T) {
	const cycles = 5
	// Phases: 00, 10, 11, 01 (A leads), each held for 3 polls.
	var as, bs string
	for i := 0; i < cycles; i++ {
		as += "000 111 111 000"
		bs += "000 000 111 111"
	}
	as += "000"
	bs += "000"

	for _, size := range []int{2, 3} {
		a := pintest.NewScript(pintest.Bits(as)...)
		b := pintest.NewScript(pintest.Bits(bs)...)
		d := newDecoder(t, a, b, size, pin.ActiveHigh)

		got := pollAll(t, d, len(pintest.Bits(as)))
		if len(got) != cycles {
			t.Fatalf("size %d: expected %d ticks, got %v", size, cycles, got)
		}
		for _, dir := range got {
			if dir != -1 {
				t.Fatalf("size %d: unexpected direction %d", size, dir)
			}
		}
		if d.Ticks() != -cycles {
			t.Errorf("size %d: Ticks() = %d, want %d", size, d.Ticks(), -cycles)
		}
	}
}

func TestPoll_PullUpWiring(t *testing.T) {
	// Idle-high lines; same cycle as the canonical one but inverted.
	a := pintest.NewScript(pintest.Bits("11 00 00 11 11")...)
	b := pintest.NewScript(pintest.Bits("11 11 00 00 11")...)
	d := newDecoder(t, a, b, 2, pin.ActiveLow)

	got := pollAll(t, d, 10)
	if len(got) != 1 || got[0] != -1 {
		t.Fatalf("expected a single -1, got %v", got)
	}
}

func TestPoll_BouncingChannelDoesNotTick(t *testing.T) {
	a := pintest.NewScript(pintest.Bits("0101010101010101")...)
	b := pintest.Level(false)
	d := newDecoder(t, a, b, 2, pin.ActiveHigh)

	if got := pollAll(t, d, 16); len(got) != 0 {
		t.Fatalf("bounce produced ticks %v", got)
	}
}

func TestFeed_SimultaneousChangeIsGlitch(t *testing.T) {
	d := newDecoder(t, pintest.Level(false), pintest.Level(false), 2, pin.ActiveHigh)

	// Settle to A=0, B=1. B rising alone is a +1.
	d.Feed(false, true)
	if dir, ok := d.Feed(false, true); !ok || dir != 1 {
		t.Fatalf("expected +1 settling to 01, got %d %v", dir, ok)
	}

	// Both stable levels flip on the same poll: 01 -> 10.
	d.Feed(true, false)
	if dir, ok := d.Feed(true, false); ok {
		t.Fatalf("simultaneous change emitted %d", dir)
	}
	if a, b := d.State(); !a || b {
		t.Fatalf("expected state 10, got %v%v", a, b)
	}
	if d.Ticks() != 1 {
		t.Errorf("Ticks() = %d, want 1", d.Ticks())
	}
}

func TestFeed_BothRiseTogetherEmitsNothing(t *testing.T) {
	d := newDecoder(t, pintest.Level(false), pintest.Level(false), 2, pin.ActiveHigh)
	d.Feed(true, true)
	if _, ok := d.Feed(true, true); ok {
		t.Fatalf("agreeing states must not tick")
	}
}

func TestPoll_PinErrorFeedsNothing(t *testing.T) {
	a := pintest.Level(true)
	b := pintest.Level(false)
	d := newDecoder(t, a, b, 2, pin.ActiveHigh)

	if _, _, err := d.Poll(); err != nil {
		t.Fatalf("poll: %v", err)
	}

	boom := errors.New("channel b open circuit")
	b.Fail(boom)
	if _, _, err := d.Poll(); !errors.Is(err, boom) {
		t.Fatalf("expected pin error, got %v", err)
	}
	if sa, _ := d.State(); sa {
		t.Fatalf("channel A must not be fed when B fails")
	}

	b.Fail(nil)
	dir, ok, err := d.Poll()
	if err != nil || !ok || dir != -1 {
		t.Fatalf("expected -1 after recovery, got %d %v %v", dir, ok, err)
	}
}

func TestResetTicks(t *testing.T) {
	d := newDecoder(t, pintest.Level(false), pintest.Level(false), 2, pin.ActiveHigh)
	d.Feed(true, false)
	d.Feed(true, false)
	if d.Ticks() != -1 {
		t.Fatalf("Ticks() = %d, want -1", d.Ticks())
	}
	d.ResetTicks()
	if d.Ticks() != 0 {
		t.Errorf("Ticks() = %d after reset", d.Ticks())
	}
	if a, _ := d.State(); !a {
		t.Errorf("ResetTicks must keep decoding state")
	}
}
