package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket control interface
// ============================================================================
// Protocol: line-delimited JSON
//   - Client sends: {"type": "snapshot"}
//                   {"type": "reset_ticks", "data": {"name": "volume"}}
//   - Server responds: {"status": "ok", "data": ...} or
//                      {"status": "error", "error": "msg"}
//
// Requests are forwarded to the poll loop, which owns the surface.
// ============================================================================

// ipcRequestTimeout bounds how long one request waits on the poll loop.
const ipcRequestTimeout = 2 * time.Second

// runIPCServer serves the control socket until ctx is canceled.
func runIPCServer(ctx context.Context, socketPath string, requests chan<- request, logger *slog.Logger) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0660); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Closing the listener unblocks Accept on shutdown.
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(ctx, conn, requests, logger)
	}
}

// handleIPCConnection serves request lines from one client until it hangs up.
func handleIPCConnection(ctx context.Context, conn net.Conn, requests chan<- request, logger *slog.Logger) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		logger.Debug("IPC received", "line", string(line))

		resp := serveIPCRequest(ctx, line, requests)
		if err := encoder.Encode(resp); err != nil {
			logger.Error("IPC failed to send response", "error", err)
			return
		}
	}
}

// serveIPCRequest executes one request line against the poll loop.
func serveIPCRequest(ctx context.Context, line []byte, requests chan<- request) IPCResponse {
	typ, name, err := decodeIPCRequest(line)
	if err != nil {
		return IPCResponse{Status: "error", Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, ipcRequestTimeout)
	defer cancel()

	switch typ {
	case "snapshot":
		snap, err := requestSnapshot(ctx, requests)
		if err != nil {
			return IPCResponse{Status: "error", Error: err.Error()}
		}
		return IPCResponse{Status: "ok", Data: snap}

	case "reset_ticks":
		if err := requestResetTicks(ctx, requests, name); err != nil {
			return IPCResponse{Status: "error", Error: err.Error()}
		}
		return IPCResponse{Status: "ok"}
	}

	return IPCResponse{Status: "error", Error: "unhandled request type: " + typ}
}
