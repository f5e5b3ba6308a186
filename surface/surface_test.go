package surface

import (
	"errors"
	"testing"
	"time"

	"surfacekit/button"
	"surfacekit/clock"
	"surfacekit/pin"
	"surfacekit/pin/pintest"
	"surfacekit/rotary"
	"surfacekit/velocity"
)

func mustButton(t *testing.T, r pin.Reader) *button.Button {
	t.Helper()
	b, err := button.New(r, button.Config{FilterSize: 2, Polarity: pin.ActiveHigh})
	if err != nil {
		t.Fatalf("button.New: %v", err)
	}
	return b
}

func mustEncoder(t *testing.T, a, b pin.Reader) *rotary.Decoder {
	t.Helper()
	d, err := rotary.New(a, b, rotary.Config{FilterSize: 2, Polarity: pin.ActiveHigh})
	if err != nil {
		t.Fatalf("rotary.New: %v", err)
	}
	return d
}

func TestUpdate_ButtonEvents(t *testing.T) {
	clk := &clock.Manual{}
	s := New(clk)
	if err := s.AddButton("play", mustButton(t, pintest.NewScript(pintest.Bits("1100")...))); err != nil {
		t.Fatal(err)
	}

	var events []Event
	for i := 0; i < 4; i++ {
		clk.Advance(time.Millisecond)
		var err error
		events, err = s.Update(events)
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %+v", events)
	}
	if events[0].Kind != KindButton || events[0].Button != button.Pressed || events[0].Name != "play" {
		t.Errorf("unexpected first event %+v", events[0])
	}
	if events[0].At != 2000 {
		t.Errorf("At = %d, want 2000", events[0].At)
	}
	if events[1].Button != button.Released {
		t.Errorf("unexpected second event %+v", events[1])
	}
}

// encoderScript returns pins running n full A-leads-B cycles, two polls per
// phase.
func encoderScript(n int) (*pintest.Script, *pintest.Script) {
	var as, bs string
	for i := 0; i < n; i++ {
		as += "00 11 11 00"
		bs += "00 00 11 11"
	}
	return pintest.NewScript(pintest.Bits(as)...), pintest.NewScript(pintest.Bits(bs)...)
}

func TestUpdate_EncoderVelocityScaling(t *testing.T) {
	clk := &clock.Manual{}
	s := New(clk)

	a, b := encoderScript(3)
	vmap := velocity.New(2).Add(100_000, 4).Add(500_000, 2)
	if err := s.AddEncoder("volume", mustEncoder(t, a, b), vmap); err != nil {
		t.Fatal(err)
	}

	var events []Event
	for i := 0; i < 24; i++ {
		// 5ms per poll, 8 polls per cycle: 40ms between detents.
		clk.Advance(5 * time.Millisecond)
		var err error
		if events, err = s.Update(events); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 encoder events, got %+v", events)
	}
	if events[0].Delta != -1 || events[0].Raw != -1 {
		t.Errorf("first detent should pass unscaled, got %+v", events[0])
	}
	for _, ev := range events[1:] {
		if ev.Delta != -4 || ev.Raw != -1 {
			t.Errorf("fast detent should scale by 4, got %+v", ev)
		}
	}

	snap := s.Snapshot()
	if len(snap.Encoders) != 1 || snap.Encoders[0].Ticks != -3 {
		t.Errorf("raw tick accumulator should be -3, got %+v", snap.Encoders)
	}
}

func TestUpdate_NonMonotonicClockDropsTick(t *testing.T) {
	var now uint64 = 1_000_000
	s := New(clock.Func(func() uint64 { return now }))

	a, b := encoderScript(2)
	if err := s.AddEncoder("jog", mustEncoder(t, a, b), velocity.New(1).Add(100_000, 8)); err != nil {
		t.Fatal(err)
	}

	var events []Event
	for i := 0; i < 16; i++ {
		if i == 8 {
			now = 10 // clock misuse: jumps backwards
		}
		events, _ = s.Update(events)
	}
	if len(events) != 1 {
		t.Fatalf("expected the second detent to be dropped, got %+v", events)
	}
}

func TestUpdate_PinErrorIsWrapped(t *testing.T) {
	s := New(&clock.Manual{})
	p := pintest.Level(false)
	s.AddButton("ok", mustButton(t, pintest.Level(false)))
	s.AddButton("broken", mustButton(t, p))

	boom := errors.New("gpio read failed")
	p.Fail(boom)
	_, err := s.Update(nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped pin error, got %v", err)
	}
}

func TestAdd_DuplicateName(t *testing.T) {
	s := New(nil)
	s.AddButton("x", mustButton(t, pintest.Level(false)))
	err := s.AddEncoder("x", mustEncoder(t, pintest.Level(false), pintest.Level(false)), nil)
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestResetTicks(t *testing.T) {
	s := New(&clock.Manual{})
	a, b := encoderScript(1)
	s.AddEncoder("e1", mustEncoder(t, a, b), nil)
	for i := 0; i < 8; i++ {
		s.Update(nil)
	}
	if got := s.Snapshot().Encoders[0].Ticks; got != -1 {
		t.Fatalf("ticks = %d, want -1", got)
	}

	if err := s.ResetTicks("nope"); !errors.Is(err, ErrUnknownElement) {
		t.Errorf("expected ErrUnknownElement, got %v", err)
	}
	if err := s.ResetTicks("e1"); err != nil {
		t.Fatalf("ResetTicks: %v", err)
	}
	if got := s.Snapshot().Encoders[0].Ticks; got != 0 {
		t.Errorf("ticks = %d after reset", got)
	}
}

func TestKind_String(t *testing.T) {
	if KindButton.String() != "button" || KindEncoder.String() != "encoder" {
		t.Errorf("unexpected kind names")
	}
}
