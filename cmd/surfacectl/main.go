package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"
)

// ============================================================================
// surfacectl - Command-line IPC Client
// ============================================================================
// This tool queries and controls the surfaced daemon over its Unix socket.
//
// Usage:
//   surfacectl snapshot
//   surfacectl reset-ticks
//   surfacectl reset-ticks volume
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/surfaced.sock)
// ============================================================================

// Request wraps one IPC request line.
type Request struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type resetTicksData struct {
	Name string `json:"name"`
}

// Response mirrors the daemon's reply.
type Response struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Snapshot mirrors the daemon's surface snapshot.
type Snapshot struct {
	At      uint64 `json:"at"`
	Buttons []struct {
		Name    string `json:"name"`
		Pressed bool   `json:"pressed"`
	} `json:"buttons"`
	Encoders []struct {
		Name  string `json:"name"`
		A     bool   `json:"a"`
		B     bool   `json:"b"`
		Ticks int    `json:"ticks"`
	} `json:"encoders"`
}

func main() {
	socketPath := "/tmp/surfaced.sock"
	asJSON := false

	args := os.Args[1:]
	for len(args) > 0 {
		switch args[0] {
		case "-socket", "--socket":
			if len(args) < 2 {
				fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
				os.Exit(1)
			}
			socketPath = args[1]
			args = args[2:]
			continue
		case "-json", "--json":
			asJSON = true
			args = args[1:]
			continue
		}
		break
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var req Request
	switch args[0] {
	case "snapshot", "state":
		req = Request{Type: "snapshot"}

	case "reset-ticks", "reset":
		req = Request{Type: "reset_ticks"}
		if len(args) > 1 {
			req.Data = resetTicksData{Name: args[1]}
		}

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	resp, err := send(socketPath, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if req.Type != "snapshot" {
		fmt.Println("ok")
		return
	}

	if asJSON {
		fmt.Println(string(resp.Data))
		return
	}
	var snap Snapshot
	if err := json.Unmarshal(resp.Data, &snap); err != nil {
		fmt.Fprintf(os.Stderr, "error: decode snapshot: %v\n", err)
		os.Exit(1)
	}
	printSnapshot(snap)
}

// send writes one request and waits for its response.
func send(socketPath string, req Request) (Response, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return Response{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	data, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status == "error" {
		return resp, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return resp, nil
}

func printSnapshot(s Snapshot) {
	fmt.Printf("at: %d us\n", s.At)
	for _, b := range s.Buttons {
		state := "released"
		if b.Pressed {
			state = "PRESSED"
		}
		fmt.Printf("[BUTTON]  %-16s %s\n", b.Name, state)
	}
	for _, e := range s.Encoders {
		fmt.Printf("[ENCODER] %-16s ticks=%-6d a=%d b=%d\n", e.Name, e.Ticks, bit(e.A), bit(e.B))
	}
}

func bit(v bool) int {
	if v {
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `surfacectl - Query and control the surfaced daemon via IPC

Usage:
  surfacectl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/surfaced.sock)
  -json           Print the raw snapshot JSON

Commands:
  snapshot, state            Print debounced button states and encoder ticks
  reset-ticks, reset [NAME]  Zero one encoder's tick count (all if NAME is omitted)
  help, -h, --help           Show this help message

Examples:
  surfacectl snapshot
  surfacectl reset-ticks volume
  surfacectl -socket /run/surfaced.sock -json snapshot
`)
}
