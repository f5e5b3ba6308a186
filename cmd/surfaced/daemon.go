package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"surfacekit/surface"
)

// ============================================================================
// Poll Loop - sole owner of the Surface
// ============================================================================
//
// Design rules enforced here:
//   - Only this goroutine touches the Surface (no locks in the core packages).
//   - Other goroutines reach the Surface through requests with reply channels.
//   - Emitted events are handed off without blocking; the poll cadence is
//     never held up by a slow consumer.
//   - A pin read error is fatal: the loop returns it and the daemon exits.
//
// ============================================================================

// runPollLoop polls surf at pollHz until ctx is canceled or a pin fails.
//
// Shutdown semantics:
//   - Returns nil when ctx is canceled
//   - Returns a wrapped pin error when any element fails to read
func runPollLoop(
	ctx context.Context,
	surf *surface.Surface,
	pollHz int,
	requests <-chan request,
	out chan<- surface.Event,
	logger *slog.Logger,
) error {
	if surf == nil {
		return fmt.Errorf("poll loop: nil surface")
	}
	if pollHz <= 0 {
		return fmt.Errorf("poll loop: invalid rate %d Hz", pollHz)
	}

	ticker := time.NewTicker(time.Second / time.Duration(pollHz))
	defer ticker.Stop()

	// Reused across polls; events are copied into out.
	events := make([]surface.Event, 0, 16)
	var dropped int

	for {
		select {
		case <-ctx.Done():
			logger.Info("poll loop stopping (context canceled)")
			return nil

		case req := <-requests:
			handleRequest(surf, req, logger)

		case <-ticker.C:
			var err error
			events, err = surf.Update(events[:0])

			for _, ev := range events {
				logger.Debug("surface event",
					"kind", ev.Kind,
					"name", ev.Name,
					"button", ev.Button,
					"delta", ev.Delta,
					"raw", ev.Raw,
					"at_us", ev.At)

				select {
				case out <- ev:
				default:
					dropped++
					if dropped == 1 || dropped%100 == 0 {
						logger.Warn("event queue full, dropping events", "dropped", dropped)
					}
				}
			}

			if err != nil {
				logger.Error("pin read failed", "error", err)
				return fmt.Errorf("poll: %w", err)
			}
		}
	}
}

// handleRequest serves one request on the poll loop goroutine.
func handleRequest(surf *surface.Surface, req request, logger *slog.Logger) {
	switch r := req.(type) {
	case snapshotRequest:
		// Reply channels are buffered by the requester.
		select {
		case r.Reply <- surf.Snapshot():
		default:
			logger.Warn("snapshot reply dropped (requester not listening)")
		}

	case resetTicksRequest:
		err := surf.ResetTicks(r.Name)
		if err == nil {
			logger.Info("encoder ticks reset", "name", r.Name)
		}
		select {
		case r.Reply <- err:
		default:
		}

	default:
		logger.Warn("unknown poll loop request", "type", fmt.Sprintf("%T", req))
	}
}

// requestSnapshot asks the poll loop for a snapshot and waits for it.
func requestSnapshot(ctx context.Context, requests chan<- request) (surface.Snapshot, error) {
	reply := make(chan surface.Snapshot, 1)
	select {
	case <-ctx.Done():
		return surface.Snapshot{}, ctx.Err()
	case requests <- snapshotRequest{Reply: reply}:
	}
	select {
	case <-ctx.Done():
		return surface.Snapshot{}, ctx.Err()
	case snap := <-reply:
		return snap, nil
	}
}

// requestResetTicks asks the poll loop to reset an encoder and waits for the result.
func requestResetTicks(ctx context.Context, requests chan<- request, name string) error {
	reply := make(chan error, 1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case requests <- resetTicksRequest{Name: name, Reply: reply}:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-reply:
		return err
	}
}
