package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"surfacekit/surface"
)

// ============================================================================
// Event WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// This file implements:
//   - A Hub that tracks connected WebSocket clients
//   - Per-client write pumps so one slow client doesn't block others
//   - A broadcaster loop that turns surface events into JSON frames
//
// Notes:
//   - The Surface stays owned by the poll loop; the initial state_init
//     snapshot is requested through it.
//   - Slow clients are disconnected when their send buffer fills.
//   - Messages are JSON text frames with an envelope: {type, ts, data}.
//
// ============================================================================

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size (default 64).
	SendBuf int
	// BroadcastBuf is the hub inbound queue size (default 256).
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 64
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 256
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled, then disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Debug("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, remove them after unlocking.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				if !c.trySend(msg) {
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// Clients returns the number of registered clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.closeSend()
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	// Closing send signals writePump to exit.
	c.closeSend()
	h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

// BroadcastBytes enqueues a pre-serialized frame. It never blocks; if the
// hub queue is full the frame is dropped.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn

	// send is closed by the hub; mu and closed guard every send against it.
	mu     sync.Mutex
	send   chan []byte
	closed bool

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 64
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// trySend queues msg without blocking. It reports false if the queue is full
// or the client was already disconnected.
func (c *Client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// isClosed reports whether the hub has disconnected the client.
func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// closeStatus extracts a websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes queued frames and keepalive pings.
// It exits on write error or when send is closed.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump discards inbound messages to detect disconnects and handle control
// frames, then unregisters the client.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP Handler
// ============================================================================

type Server struct {
	logger   *slog.Logger
	hub      *Hub
	requests chan<- request
}

// NewServer constructs the WS server. Register it on a mux and run the hub.
func NewServer(logger *slog.Logger, hub *Hub, requests chan<- request) *Server {
	return &Server{
		logger:   logger,
		hub:      hub,
		requests: requests,
	}
}

// Register registers the WS handler on mux at path.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleEventsWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEventsWS upgrades and registers a client, then sends state_init.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)
	s.hub.register <- client

	// Pump lifetimes are managed by the hub and connection errors, not the
	// request context, which net/http cancels when this handler returns.
	go client.writePump()
	go client.readPump()

	s.sendStateInit(r.Context(), client)
}

// sendStateInit queues the current surface snapshot for client. The client
// may disconnect while the poll loop answers; the frame is then dropped.
func (s *Server) sendStateInit(ctx context.Context, client *Client) {
	if s.requests == nil {
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	snap, err := requestSnapshot(waitCtx, s.requests)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", err)
		}
		return
	}

	msg, err := marshalEnvelope(msgStateInit, snap, time.Now())
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		return
	}
	if client.trySend(msg) || client.isClosed() {
		return
	}
	s.hub.unregister <- client
}

// ============================================================================
// Broadcaster
// ============================================================================

// wsEncoderCoalesceWindow is the period over which encoder deltas are summed
// per encoder before broadcasting. Zero sends every detent immediately.
const wsEncoderCoalesceWindow = 20 * time.Millisecond

// RunBroadcaster reads surface events, marshals them and broadcasts them to
// all hub clients. Encoder deltas arriving within window are merged per
// encoder (latest timestamp, summed delta and raw). Button events flush any
// pending encoder deltas first so ordering between elements is kept.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan surface.Event, window time.Duration, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var (
		pending []surface.Event // at most one per encoder, in first-seen order
		timer   *time.Timer
		timerC  <-chan time.Time
	)

	emit := func(ev surface.Event) {
		typ, data, ok := convertEvent(ev)
		if !ok {
			return
		}
		msg, err := marshalEnvelope(typ, data, time.Now())
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", typ)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flush := func() {
		for _, ev := range pending {
			// Opposite detents within one window cancel out.
			if ev.Delta == 0 && ev.Raw == 0 {
				continue
			}
			emit(ev)
		}
		pending = pending[:0]
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case <-timerC:
			timer, timerC = nil, nil
			flush()

		case ev, ok := <-src:
			if !ok {
				flush()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			if ev.Kind != surface.KindEncoder || window <= 0 {
				flush()
				emit(ev)
				continue
			}

			merged := false
			for i := range pending {
				if pending[i].Name == ev.Name {
					pending[i].Delta += ev.Delta
					pending[i].Raw += ev.Raw
					pending[i].At = ev.At
					merged = true
					break
				}
			}
			if !merged {
				pending = append(pending, ev)
			}
			if timer == nil {
				timer = time.NewTimer(window)
				timerC = timer.C
			}
		}
	}
}
