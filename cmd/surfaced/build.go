package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"surfacekit/button"
	"surfacekit/clock"
	"surfacekit/pin"
	"surfacekit/rotary"
	"surfacekit/surface"
	"surfacekit/velocity"
)

// pinOpener opens one configured input pin by name.
type pinOpener func(name string, pullUp bool) (pin.Reader, error)

// openDriver returns the pin opener for the configured driver and a function
// releasing driver resources. Pins named "evdev:DEVICE:CODE" are opened as
// input device keys whatever the driver.
func openDriver(driver string) (pinOpener, func() error, error) {
	var (
		gpioOpen  pinOpener
		gpioClose func() error
	)
	switch driver {
	case "periph":
		gpioOpen = func(name string, pullUp bool) (pin.Reader, error) {
			return pin.OpenPeriph(name, pullUp)
		}
		gpioClose = func() error { return nil }

	case "rpio":
		gpioOpen = func(name string, pullUp bool) (pin.Reader, error) {
			num, err := parseBCM(name)
			if err != nil {
				return nil, err
			}
			return pin.OpenRPIO(num, pullUp)
		}
		gpioClose = pin.CloseRPIO

	default:
		return nil, nil, fmt.Errorf("unknown driver %q", driver)
	}

	var keys []*pin.Evdev
	open := func(name string, pullUp bool) (pin.Reader, error) {
		device, code, ok, err := pin.ParseEvdev(name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return gpioOpen(name, pullUp)
		}
		k, err := pin.OpenEvdev(device, code)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
		return k, nil
	}
	closeAll := func() error {
		var errs []error
		for _, k := range keys {
			errs = append(errs, k.Close())
		}
		errs = append(errs, gpioClose())
		return errors.Join(errs...)
	}
	return open, closeAll, nil
}

// parseBCM accepts "17", "GPIO17" or "BCM17".
func parseBCM(name string) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(name))
	s = strings.TrimPrefix(s, "GPIO")
	s = strings.TrimPrefix(s, "BCM")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("rpio: invalid pin name %q", name)
	}
	return n, nil
}

// buildSurface opens every configured pin and assembles the surface.
// cfg must be validated.
func buildSurface(cfg Config, open pinOpener, src clock.Source) (*surface.Surface, error) {
	s := surface.New(src)

	for _, bc := range cfg.Buttons {
		p, err := open(bc.Pin, bc.PullUp)
		if err != nil {
			return nil, fmt.Errorf("button %q: open pin %s: %w", bc.Name, bc.Pin, err)
		}
		b, err := button.New(p, button.Config{
			FilterSize: cfg.filterSize(bc.FilterSize),
			Polarity:   pin.PullUp(bc.PullUp),
		})
		if err != nil {
			return nil, fmt.Errorf("button %q: %w", bc.Name, err)
		}
		if err := s.AddButton(bc.Name, b); err != nil {
			return nil, err
		}
	}

	for _, ec := range cfg.Encoders {
		a, err := open(ec.PinA, ec.PullUp)
		if err != nil {
			return nil, fmt.Errorf("encoder %q: open pin %s: %w", ec.Name, ec.PinA, err)
		}
		b, err := open(ec.PinB, ec.PullUp)
		if err != nil {
			return nil, fmt.Errorf("encoder %q: open pin %s: %w", ec.Name, ec.PinB, err)
		}
		d, err := rotary.New(a, b, rotary.Config{
			FilterSize: cfg.filterSize(ec.FilterSize),
			Polarity:   pin.PullUp(ec.PullUp),
		})
		if err != nil {
			return nil, fmt.Errorf("encoder %q: %w", ec.Name, err)
		}

		var vmap *velocity.Map
		if len(ec.Velocity) > 0 {
			vmap = velocity.New(len(ec.Velocity))
			for _, v := range ec.Velocity {
				if err := vmap.Insert(v.ThresholdMicros(), v.Scale); err != nil {
					return nil, fmt.Errorf("encoder %q: %w", ec.Name, err)
				}
			}
		}

		if err := s.AddEncoder(ec.Name, d, vmap); err != nil {
			return nil, err
		}
	}

	return s, nil
}
