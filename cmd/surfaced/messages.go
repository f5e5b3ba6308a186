package main

import (
	"encoding/json"
	"fmt"
	"time"

	"surfacekit/button"
	"surfacekit/surface"
)

// ============================================================================
// Wire messages shared by the WebSocket stream and the IPC socket
// ============================================================================

// envelope is the wire format for WS messages: {type, ts, data}.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

// wsButtonData is the `data` payload of button_pressed / button_released.
type wsButtonData struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
	At    uint64 `json:"at_us"`
}

// wsEncoderData is the `data` payload of encoder_turned.
type wsEncoderData struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
	Delta int    `json:"delta"`
	Raw   int    `json:"raw"`
	At    uint64 `json:"at_us"`
}

// convertEvent maps a surface event to its wire type and payload.
func convertEvent(ev surface.Event) (string, any, bool) {
	switch ev.Kind {
	case surface.KindButton:
		typ := msgButtonReleased
		if ev.Button == button.Pressed {
			typ = msgButtonPressed
		}
		return typ, wsButtonData{Name: ev.Name, Index: ev.Index, At: ev.At}, true

	case surface.KindEncoder:
		return msgEncoderTurned, wsEncoderData{
			Name:  ev.Name,
			Index: ev.Index,
			Delta: ev.Delta,
			Raw:   ev.Raw,
			At:    ev.At,
		}, true

	default:
		return "", nil, false
	}
}

// marshalEnvelope serializes one message stamped with ts.
func marshalEnvelope(typ string, data any, ts time.Time) ([]byte, error) {
	ts = ts.UTC()
	return json.Marshal(envelope{Type: typ, Ts: &ts, Data: data})
}

// ============================================================================
// Poll loop requests
// ============================================================================
// Requests let other goroutines read or mutate the surface without sharing
// it: the poll loop is the surface's only owner.

type request interface {
	requestMarker()
}

// snapshotRequest asks the poll loop for the current surface state.
type snapshotRequest struct {
	Reply chan<- surface.Snapshot
}

func (snapshotRequest) requestMarker() {}

// resetTicksRequest zeroes one encoder's accumulator (all encoders if Name is empty).
type resetTicksRequest struct {
	Name  string
	Reply chan<- error
}

func (resetTicksRequest) requestMarker() {}

// ipcEnvelope is one line-delimited IPC request.
type ipcEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse is the reply to each IPC request line.
type IPCResponse struct {
	Status string `json:"status"`          // "ok" or "error"
	Error  string `json:"error,omitempty"` // set when status == "error"
	Data   any    `json:"data,omitempty"`
}

type resetTicksData struct {
	Name string `json:"name"`
}

// decodeIPCRequest validates an IPC line and returns its type and reset target.
func decodeIPCRequest(line []byte) (typ string, name string, err error) {
	var env ipcEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return "", "", fmt.Errorf("parse request: %w", err)
	}
	switch env.Type {
	case "snapshot":
		return env.Type, "", nil
	case "reset_ticks":
		var d resetTicksData
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &d); err != nil {
				return "", "", fmt.Errorf("parse reset_ticks data: %w", err)
			}
		}
		return env.Type, d.Name, nil
	case "":
		return "", "", fmt.Errorf("missing request type")
	default:
		return "", "", fmt.Errorf("unknown request type: %s", env.Type)
	}
}
