package pin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var (
	periphOnce sync.Once
	periphErr  error
)

// edgePollInterval bounds each WaitForEdge call so context cancellation is
// observed even when the line never moves.
const edgePollInterval = 100 * time.Millisecond

// Periph adapts a periph.io input pin.
type Periph struct {
	p gpio.PinIn
}

// OpenPeriph initializes the periph.io host drivers (once per process), looks
// up the pin by name (e.g. "GPIO17") and configures it as an input with the
// requested pull and edge detection on both edges.
func OpenPeriph(name string, pullUp bool) (*Periph, error) {
	periphOnce.Do(func() {
		_, periphErr = host.Init()
	})
	if periphErr != nil {
		return nil, fmt.Errorf("periph host init: %w", periphErr)
	}

	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("periph: unknown pin %q", name)
	}

	pull := gpio.Float
	if pullUp {
		pull = gpio.PullUp
	}
	if err := p.In(pull, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("periph: configure %s: %w", name, err)
	}

	return &Periph{p: p}, nil
}

// NewPeriph wraps an already configured pin.
func NewPeriph(p gpio.PinIn) *Periph {
	return &Periph{p: p}
}

func (pp *Periph) String() string {
	return pp.p.String()
}

// ReadLevel implements Reader.
func (pp *Periph) ReadLevel() (bool, error) {
	return pp.p.Read() == gpio.High, nil
}

// WaitForLevel implements Waiter using the driver's edge detection.
func (pp *Periph) WaitForLevel(ctx context.Context, level bool) error {
	want := gpio.Low
	if level {
		want = gpio.High
	}
	for {
		if pp.p.Read() == want {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		// A false return is a timeout; loop to recheck ctx and the level.
		pp.p.WaitForEdge(edgePollInterval)
	}
}
