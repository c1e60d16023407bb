package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// State WebSocket
// ============================================================================
//
// Observers (haphap-monitor, dashboards) connect here to follow the session:
//
//	state_init            StateSnapshot, sent once on connect
//	engine_state_changed  {from, to, reason}
//	playback_started      {effect, offset_ms}
//	playback_stopped      {effect}
//	settings_changed      EffectParameters (coalesced, latest wins)
//
// Frames are JSON text messages with an envelope {type, ts, data}. The session
// state is never shared: the snapshot on connect goes through the event loop and
// everything else comes from reducer-emitted broadcasts. A client whose send
// buffer fills is disconnected.
// ============================================================================

type wsEngineStateData struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

type wsPlaybackData struct {
	Effect   string   `json:"effect"`
	OffsetMs *float64 `json:"offset_ms,omitempty"`
}

// wsOutboundEvent is a typed, externally-consumable state event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalEnvelope(ev wsOutboundEvent) ([]byte, error) {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()
	return json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size (default 32).
	SendBuf int
	// BroadcastBuf is the hub inbound queue size (default 128).
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
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
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
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

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
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
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.closeSend()
	h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

// BroadcastBytes enqueues a serialized frame. It drops the frame if the hub queue is full.
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

	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once

	remoteAddr string
	logger     *slog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
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

// closeSend signals writePump to exit. Safe to call more than once.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// wsSettingsCoalesceWindow bounds how often settings_changed is emitted while
// a client is dragging a slider.
const wsSettingsCoalesceWindow = 100 * time.Millisecond

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

// writePump drains the send queue to the socket and keeps the connection alive.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
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

// readPump discards inbound frames; its only job is noticing the disconnect.
func (c *Client) readPump(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for ctx.Err() == nil {
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
// HTTP handler
// ============================================================================

type Server struct {
	logger *slog.Logger
	hub    *Hub

	// events carries the snapshot request for state_init through the session loop.
	events chan<- Event
}

type ServerConfig struct {
	Hub HubConfig
}

func NewServer(logger *slog.Logger, events chan<- Event, cfg ServerConfig) *Server {
	return &Server{
		logger: logger,
		hub:    NewHub(logger, cfg.Hub),
		events: events,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register installs the websocket handler on mux.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleStateWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)
	s.hub.register <- client

	// The pumps outlive the handler; net/http cancels r.Context() on return.
	go client.writePump(context.Background())
	go client.readPump(context.Background())

	if s.events == nil {
		return
	}

	reply := make(chan StateSnapshot, 1)
	select {
	case <-r.Context().Done():
		return
	case s.events <- RequestStateSnapshot{Reply: reply}:
	}

	waitCtx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	select {
	case <-waitCtx.Done():
		if !errors.Is(waitCtx.Err(), context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", waitCtx.Err())
		}
	case snap := <-reply:
		msg, err := marshalEnvelope(wsOutboundEvent{Type: "state_init", Data: snap})
		if err != nil {
			s.logger.Warn("ws state_init marshal failed", "error", err)
			return
		}
		select {
		case client.send <- msg:
		default:
			s.hub.unregister <- client
		}
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster fans reducer broadcasts out to the hub. settings_changed is
// rate-limited: the latest pending value is flushed at most once per window,
// and any other event flushes it first so ordering is preserved.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var pending *wsOutboundEvent
	var timer *time.Timer
	var timerC <-chan time.Time

	send := func(ev wsOutboundEvent) {
		msg, err := marshalEnvelope(ev)
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flush := func() {
		if pending != nil {
			send(*pending)
			pending = nil
		}
	}

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer, timerC = nil, nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			stopTimer()
			return

		case <-timerC:
			flush()
			stopTimer()

		case b, ok := <-src:
			if !ok {
				flush()
				stopTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			if ev.Type == "settings_changed" {
				pending = &ev
				if timer == nil {
					timer = time.NewTimer(wsSettingsCoalesceWindow)
					timerC = timer.C
				}
				continue
			}

			flush()
			stopTimer()
			send(ev)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastEngineStateChanged:
		return wsOutboundEvent{
			Type: "engine_state_changed",
			Data: wsEngineStateData{From: ev.From.String(), To: ev.To.String(), Reason: ev.Reason},
			At:   ev.At,
		}, true

	case BroadcastPlaybackStarted:
		offset := ev.OffsetMs
		return wsOutboundEvent{
			Type: "playback_started",
			Data: wsPlaybackData{Effect: ev.Effect.String(), OffsetMs: &offset},
			At:   ev.At,
		}, true

	case BroadcastPlaybackStopped:
		return wsOutboundEvent{
			Type: "playback_stopped",
			Data: wsPlaybackData{Effect: ev.Effect.String()},
			At:   ev.At,
		}, true

	case BroadcastSettingsChanged:
		return wsOutboundEvent{Type: "settings_changed", Data: ev.Params, At: ev.At}, true

	default:
		return wsOutboundEvent{}, false
	}
}

// broadcastType names a broadcast for logs.
func broadcastType(b StateBroadcast) string {
	if ev, ok := convertBroadcast(b); ok {
		return ev.Type
	}
	return "unknown"
}
