package pin

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Linux input event types and values used by Evdev.
const (
	evKey = 0x01

	keyUp     = 0
	keyDown   = 1
	keyRepeat = 2
)

// inputEvent mirrors struct input_event on 64-bit Linux:
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// Evdev exposes one key of a Linux input device as a pin. The level is high
// while the key is held, so it is always wired active-high.
//
// A background goroutine reads the device; ReadLevel reports the latest
// state without blocking.
type Evdev struct {
	f    *os.File
	code uint16

	mu      sync.Mutex
	level   bool
	err     error
	changed chan struct{} // closed and replaced on every level change
}

// ParseEvdev splits an "evdev:DEVICE:CODE" pin name. It reports false if
// name does not use the evdev scheme.
func ParseEvdev(name string) (device string, code uint16, ok bool, err error) {
	rest, found := strings.CutPrefix(name, "evdev:")
	if !found {
		return "", 0, false, nil
	}
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 || i == len(rest)-1 {
		return "", 0, true, fmt.Errorf("evdev: pin %q must be evdev:DEVICE:CODE", name)
	}
	n, err := strconv.ParseUint(rest[i+1:], 0, 16)
	if err != nil {
		return "", 0, true, fmt.Errorf("evdev: invalid key code in %q: %w", name, err)
	}
	return rest[:i], uint16(n), true, nil
}

// OpenEvdev opens device and tracks key code on it.
func OpenEvdev(device string, code uint16) (*Evdev, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, fmt.Errorf("evdev: open %s: %w", device, err)
	}
	held, err := keyHeld(f, code)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("evdev: query %s: %w", device, err)
	}
	return newEvdev(f, code, held), nil
}

// NewEvdev tracks key code on an already open event stream, starting released.
func NewEvdev(f *os.File, code uint16) *Evdev {
	return newEvdev(f, code, false)
}

func newEvdev(f *os.File, code uint16, held bool) *Evdev {
	e := &Evdev{
		f:       f,
		code:    code,
		level:   held,
		changed: make(chan struct{}),
	}
	go e.readEvents()
	return e
}

// readEvents runs until the stream fails or is closed.
func (e *Evdev) readEvents() {
	evSize := binary.Size(inputEvent{})
	buf := make([]byte, evSize)
	reader := bytes.NewReader(buf)

	for {
		if _, err := io.ReadFull(e.f, buf); err != nil {
			e.fail(fmt.Errorf("evdev: read %s: %w", e.f.Name(), err))
			return
		}

		reader.Reset(buf)
		var ev inputEvent
		if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
			continue
		}
		if ev.Type != evKey || ev.Code != e.code {
			continue
		}

		switch ev.Value {
		case keyDown, keyRepeat:
			e.set(true)
		case keyUp:
			e.set(false)
		}
	}
}

func (e *Evdev) set(level bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.level == level {
		return
	}
	e.level = level
	close(e.changed)
	e.changed = make(chan struct{})
}

func (e *Evdev) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err == nil {
		e.err = err
	}
	close(e.changed)
	e.changed = make(chan struct{})
}

// Close stops the reader. Later reads return ErrClosed.
func (e *Evdev) Close() error {
	e.mu.Lock()
	if e.err == nil {
		e.err = ErrClosed
	}
	e.mu.Unlock()
	return e.f.Close()
}

// ReadLevel implements Reader.
func (e *Evdev) ReadLevel() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.level, e.err
}

// WaitForLevel implements Waiter.
func (e *Evdev) WaitForLevel(ctx context.Context, level bool) error {
	for {
		e.mu.Lock()
		cur, err, changed := e.level, e.err, e.changed
		e.mu.Unlock()

		if err != nil {
			return err
		}
		if cur == level {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func (e *Evdev) String() string {
	return fmt.Sprintf("%s:%d", e.f.Name(), e.code)
}
