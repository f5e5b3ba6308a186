package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"surfacekit/pin/pintest"
	"surfacekit/surface"
)

func TestDecodeIPCRequest(t *testing.T) {
	tests := []struct {
		line     string
		wantType string
		wantName string
		wantErr  string
	}{
		{`{"type":"snapshot"}`, "snapshot", "", ""},
		{`{"type":"reset_ticks"}`, "reset_ticks", "", ""},
		{`{"type":"reset_ticks","data":{"name":"volume"}}`, "reset_ticks", "volume", ""},
		{`{"type":"reset_ticks","data":[1]}`, "", "", "reset_ticks data"},
		{`{}`, "", "", "missing request type"},
		{`{"type":"reboot"}`, "", "", "unknown request type"},
		{`not json`, "", "", "parse request"},
	}

	for _, tt := range tests {
		typ, name, err := decodeIPCRequest([]byte(tt.line))
		if tt.wantErr != "" {
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("%s: expected error containing %q, got %v", tt.line, tt.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.line, err)
			continue
		}
		if typ != tt.wantType || name != tt.wantName {
			t.Errorf("%s: got (%q, %q), want (%q, %q)", tt.line, typ, name, tt.wantType, tt.wantName)
		}
	}
}

// startPollLoop runs a poll loop over a surface with idle pins.
func startPollLoop(t *testing.T, ctx context.Context) chan request {
	t.Helper()
	surf := testSurface(t, fakePins{
		"GPIO5":  pintest.Level(false),
		"GPIO6":  pintest.Level(false),
		"GPIO13": pintest.Level(false),
	})
	requests := make(chan request)
	go runPollLoop(ctx, surf, 1000, requests, make(chan surface.Event, 16), discardLogger())
	return requests
}

func TestServeIPCRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	requests := startPollLoop(t, ctx)

	resp := serveIPCRequest(ctx, []byte(`{"type":"snapshot"}`), requests)
	if resp.Status != "ok" {
		t.Fatalf("snapshot: %+v", resp)
	}
	snap, ok := resp.Data.(surface.Snapshot)
	if !ok || len(snap.Encoders) != 1 || snap.Encoders[0].Name != "volume" {
		t.Errorf("unexpected snapshot %+v", resp.Data)
	}

	resp = serveIPCRequest(ctx, []byte(`{"type":"reset_ticks","data":{"name":"nope"}}`), requests)
	if resp.Status != "error" || !strings.Contains(resp.Error, "unknown element") {
		t.Errorf("reset unknown: %+v", resp)
	}

	resp = serveIPCRequest(ctx, []byte(`{"type":"reset_ticks"}`), requests)
	if resp.Status != "ok" {
		t.Errorf("reset all: %+v", resp)
	}
}

func TestServeIPCRequest_PollLoopGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := serveIPCRequest(ctx, []byte(`{"type":"snapshot"}`), make(chan request))
	if resp.Status != "error" {
		t.Fatalf("expected error with no poll loop, got %+v", resp)
	}
}

func TestRunIPCServer_RoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "surfd")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "s.sock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	requests := startPollLoop(t, ctx)

	done := make(chan error, 1)
	go func() { done <- runIPCServer(ctx, sock, requests, discardLogger()) }()

	var conn net.Conn
	waitUntil(t, time.Second, func() bool {
		conn, err = net.Dial("unix", sock)
		return err == nil
	}, "ipc socket not accepting")
	defer conn.Close()

	if _, err := conn.Write([]byte("{\"type\":\"snapshot\"}\n")); err != nil {
		t.Fatal(err)
	}
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var resp struct {
		Status string           `json:"status"`
		Data   surface.Snapshot `json:"data"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || len(resp.Data.Buttons) != 1 {
		t.Errorf("unexpected response %s", line)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runIPCServer: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ipc server did not stop")
	}
	if _, err := os.Stat(sock); !os.IsNotExist(err) {
		t.Errorf("socket file left behind: %v", err)
	}
}
