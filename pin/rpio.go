package pin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
)

var (
	rpioMu   sync.Mutex
	rpioOpen bool
)

// rpioWaitInterval is the sampling period used by RPIO.WaitForLevel.
// go-rpio has no blocking edge wait, so waiting is done by polling.
const rpioWaitInterval = time.Millisecond

// RPIO adapts a Raspberry Pi BCM pin driven through /dev/gpiomem.
type RPIO struct {
	pin rpio.Pin
}

// OpenRPIO maps the GPIO registers (once per process) and configures BCM pin
// num as an input with the requested pull.
func OpenRPIO(num int, pullUp bool) (*RPIO, error) {
	if num < 0 || num > 53 {
		return nil, fmt.Errorf("rpio: pin %d out of range", num)
	}

	rpioMu.Lock()
	defer rpioMu.Unlock()
	if !rpioOpen {
		if err := rpio.Open(); err != nil {
			return nil, fmt.Errorf("rpio open: %w", err)
		}
		rpioOpen = true
	}

	p := rpio.Pin(num)
	p.Input()
	if pullUp {
		p.PullUp()
	} else {
		p.PullOff()
	}
	return &RPIO{pin: p}, nil
}

// CloseRPIO unmaps the GPIO registers. Pins opened with OpenRPIO report
// ErrClosed afterwards.
func CloseRPIO() error {
	rpioMu.Lock()
	defer rpioMu.Unlock()
	if !rpioOpen {
		return nil
	}
	rpioOpen = false
	return rpio.Close()
}

func (r *RPIO) String() string {
	return fmt.Sprintf("BCM%d", uint8(r.pin))
}

// ReadLevel implements Reader.
func (r *RPIO) ReadLevel() (bool, error) {
	rpioMu.Lock()
	open := rpioOpen
	rpioMu.Unlock()
	if !open {
		return false, ErrClosed
	}
	return r.pin.Read() == rpio.High, nil
}

// WaitForLevel implements Waiter.
func (r *RPIO) WaitForLevel(ctx context.Context, level bool) error {
	ticker := time.NewTicker(rpioWaitInterval)
	defer ticker.Stop()
	for {
		got, err := r.ReadLevel()
		if err != nil {
			return err
		}
		if got == level {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
