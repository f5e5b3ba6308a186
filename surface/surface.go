// Package surface groups buttons and encoders into one control surface that
// is polled as a unit.
//
// A Surface has a single owner. Update, Snapshot and ResetTicks must be
// called from the same goroutine (surfaced runs them on its poll loop).
package surface

import (
	"errors"
	"fmt"

	"surfacekit/button"
	"surfacekit/clock"
	"surfacekit/rotary"
	"surfacekit/velocity"
)

var (
	// ErrUnknownElement is returned when no element has the requested name.
	ErrUnknownElement = errors.New("surface: unknown element")
	// ErrDuplicateName is returned when an element name is registered twice.
	ErrDuplicateName = errors.New("surface: duplicate element name")
)

// Kind identifies the element that produced an Event.
type Kind int

const (
	KindButton Kind = iota + 1
	KindEncoder
)

func (k Kind) String() string {
	switch k {
	case KindButton:
		return "button"
	case KindEncoder:
		return "encoder"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is one debounced occurrence on the surface.
type Event struct {
	Kind  Kind
	Name  string
	Index int // position within its bank

	// Button is set for KindButton.
	Button button.Event

	// Delta is the velocity-scaled movement for KindEncoder; Raw is the
	// decoded direction before scaling.
	Delta int
	Raw   int

	// At is the clock instant of the poll that produced the event.
	At uint64
}

type buttonSlot struct {
	name string
	b    *button.Button
}

type encoderSlot struct {
	name string
	d    *rotary.Decoder
	vmap *velocity.Map
}

// Surface is an ordered set of named buttons and encoders.
type Surface struct {
	clock    clock.Source
	buttons  []buttonSlot
	encoders []encoderSlot
	names    map[string]struct{}
}

// New returns an empty surface. A nil src uses clock.Monotonic.
func New(src clock.Source) *Surface {
	if src == nil {
		src = clock.Monotonic{}
	}
	return &Surface{
		clock: src,
		names: make(map[string]struct{}),
	}
}

func (s *Surface) claim(name string) error {
	if _, ok := s.names[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	s.names[name] = struct{}{}
	return nil
}

// AddButton appends a button to the button bank.
func (s *Surface) AddButton(name string, b *button.Button) error {
	if err := s.claim(name); err != nil {
		return err
	}
	s.buttons = append(s.buttons, buttonSlot{name: name, b: b})
	return nil
}

// AddEncoder appends an encoder to the encoder bank. vmap may be nil, in
// which case deltas are unscaled.
func (s *Surface) AddEncoder(name string, d *rotary.Decoder, vmap *velocity.Map) error {
	if err := s.claim(name); err != nil {
		return err
	}
	s.encoders = append(s.encoders, encoderSlot{name: name, d: d, vmap: vmap})
	return nil
}

// Update polls every element once, buttons first, and appends resulting
// events to dst. The first pin error stops the update; events gathered
// before it are still returned.
func (s *Surface) Update(dst []Event) ([]Event, error) {
	now := s.clock.Now()

	for i, slot := range s.buttons {
		ev, ok, err := slot.b.Poll()
		if err != nil {
			return dst, fmt.Errorf("button %q: %w", slot.name, err)
		}
		if ok {
			dst = append(dst, Event{Kind: KindButton, Name: slot.name, Index: i, Button: ev, At: now})
		}
	}

	for i, slot := range s.encoders {
		dir, ok, err := slot.d.Poll()
		if err != nil {
			return dst, fmt.Errorf("encoder %q: %w", slot.name, err)
		}
		if !ok {
			continue
		}
		delta := dir
		if slot.vmap != nil {
			if delta, ok = slot.vmap.Scale(now, dir); !ok {
				continue
			}
		}
		dst = append(dst, Event{Kind: KindEncoder, Name: slot.name, Index: i, Delta: delta, Raw: dir, At: now})
	}

	return dst, nil
}

// ButtonState is a snapshot of one button.
type ButtonState struct {
	Name    string `json:"name"`
	Pressed bool   `json:"pressed"`
}

// EncoderState is a snapshot of one encoder.
type EncoderState struct {
	Name  string `json:"name"`
	A     bool   `json:"a"`
	B     bool   `json:"b"`
	Ticks int    `json:"ticks"`
}

// Snapshot is the state of every element at one instant.
type Snapshot struct {
	At       uint64         `json:"at"`
	Buttons  []ButtonState  `json:"buttons"`
	Encoders []EncoderState `json:"encoders"`
}

// Snapshot reports current debounced states and tick accumulators.
func (s *Surface) Snapshot() Snapshot {
	snap := Snapshot{
		At:       s.clock.Now(),
		Buttons:  make([]ButtonState, 0, len(s.buttons)),
		Encoders: make([]EncoderState, 0, len(s.encoders)),
	}
	for _, slot := range s.buttons {
		snap.Buttons = append(snap.Buttons, ButtonState{Name: slot.name, Pressed: slot.b.IsPressed()})
	}
	for _, slot := range s.encoders {
		a, b := slot.d.State()
		snap.Encoders = append(snap.Encoders, EncoderState{Name: slot.name, A: a, B: b, Ticks: slot.d.Ticks()})
	}
	return snap
}

// ResetTicks zeroes the accumulator of the named encoder, or of every
// encoder when name is empty.
func (s *Surface) ResetTicks(name string) error {
	if name == "" {
		for _, slot := range s.encoders {
			slot.d.ResetTicks()
		}
		return nil
	}
	for _, slot := range s.encoders {
		if slot.name == name {
			slot.d.ResetTicks()
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownElement, name)
}

// Len returns the number of buttons and encoders.
func (s *Surface) Len() (buttons, encoders int) {
	return len(s.buttons), len(s.encoders)
}
