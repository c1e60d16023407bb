package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ============================================================================
// Remote actuator backend
// ============================================================================
//
// Talks to an actuator service over a websocket. Requests are either a bare op
// name ("Start") or a single-key object ({"PlayCurve": {...}}); every reply is
// keyed by the op:
//
//	{"PlayCurve": {"result": "Ok"}}
//	{"GetCapabilities": {"result": "Ok", "value": {"supports_haptics": true, ...}}}
//	{"Start": {"result": "Error", "error": "device busy"}}
//
// The service may interleave notifications with replies:
//
//	{"Event": {"kind": "stopped", "reason": "idle_timeout"}}
//	{"Event": {"kind": "reset"}}
// ============================================================================

// remoteError is a failure reported by the actuator service itself.
type remoteError struct {
	Op  string
	Msg string
}

func (e *remoteError) Error() string { return fmt.Sprintf("remote %s: %s", e.Op, e.Msg) }

type remoteReply struct {
	Result string          `json:"result"`
	Value  json.RawMessage `json:"value,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type remoteEvent struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

// RemoteClient manages the websocket to the actuator service. The connection
// is established on first use and re-established after a transport error.
type RemoteClient struct {
	mu          sync.Mutex
	conn        *websocket.Conn
	url         string
	logger      *slog.Logger
	readTimeout time.Duration
	attempts    int
	retryDelay  time.Duration
	onEvent     func(remoteEvent)
}

func NewRemoteClient(wsURL string, timeoutMs, attempts int, logger *slog.Logger) (*RemoteClient, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid websocket URL %q: scheme must be ws or wss", wsURL)
	}
	if attempts <= 0 {
		attempts = 1
	}
	return &RemoteClient{
		url:         wsURL,
		logger:      logger,
		readTimeout: time.Duration(timeoutMs) * time.Millisecond,
		attempts:    attempts,
		retryDelay:  500 * time.Millisecond,
	}, nil
}

func (c *RemoteClient) setEventHandler(fn func(remoteEvent)) {
	c.mu.Lock()
	c.onEvent = fn
	c.mu.Unlock()
}

// connectLocked dials the service. Must hold c.mu.
func (c *RemoteClient) connectLocked() error {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(c.retryDelay)
		}
		d := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
		conn, _, err := d.Dial(c.url, nil)
		if err == nil {
			c.conn = conn
			c.logger.Info("connected to actuator service", "url", c.url)
			return nil
		}
		lastErr = err
		c.logger.Warn("actuator connection failed", "error", err, "attempt", attempt+1)
	}
	return fmt.Errorf("connect to %s after %d attempts: %w", c.url, c.attempts, lastErr)
}

// call sends op (with arg, if non-nil) and waits for the reply keyed by op.
// Notifications received in the meantime are dispatched to the event handler.
func (c *RemoteClient) call(op string, arg any) (json.RawMessage, error) {
	var msg any = op
	if arg != nil {
		msg = map[string]any{op: arg}
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connectLocked(); err != nil {
			return nil, err
		}
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("send %s: %w", op, err)
	}

	c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	defer func() {
		if c.conn != nil {
			c.conn.SetReadDeadline(time.Time{})
		}
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			c.dropLocked()
			return nil, fmt.Errorf("read %s reply: %w", op, err)
		}

		var keyed map[string]json.RawMessage
		if err := json.Unmarshal(message, &keyed); err != nil {
			c.logger.Warn("unparseable actuator message", "error", err)
			continue
		}

		if raw, ok := keyed["Event"]; ok {
			c.dispatchLocked(raw)
			continue
		}

		raw, ok := keyed[op]
		if !ok {
			c.logger.Debug("ignoring actuator message for another op", "op", op)
			continue
		}

		var reply remoteReply
		if err := json.Unmarshal(raw, &reply); err != nil {
			return nil, fmt.Errorf("parse %s reply: %w", op, err)
		}
		if reply.Result != "Ok" {
			return nil, &remoteError{Op: op, Msg: reply.Error}
		}
		c.logger.Debug("actuator call", "op", op, "result", reply.Result)
		return reply.Value, nil
	}
}

func (c *RemoteClient) dispatchLocked(raw json.RawMessage) {
	var ev remoteEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		c.logger.Warn("unparseable actuator event", "error", err)
		return
	}
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

func (c *RemoteClient) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *RemoteClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
	return nil
}

// parseStopReason maps the service's reason strings onto StopReason.
func parseStopReason(s string) StopReason {
	for r := StopReasonUnknown; r <= StopReasonDeviceDisconnected; r++ {
		if r.String() == s {
			return r
		}
	}
	return StopReasonUnknown
}

// ==============================
// Backend / Engine / Player
// ==============================

type RemoteBackend struct {
	client *RemoteClient
	logger *slog.Logger
}

func NewRemoteBackend(client *RemoteClient, logger *slog.Logger) *RemoteBackend {
	return &RemoteBackend{client: client, logger: logger}
}

func (b *RemoteBackend) Name() string { return "remote" }

func (b *RemoteBackend) Probe() Capabilities {
	raw, err := b.client.call("GetCapabilities", nil)
	if err != nil {
		b.logger.Warn("remote probe failed", "error", err)
		return Capabilities{}
	}
	var caps Capabilities
	if err := json.Unmarshal(raw, &caps); err != nil {
		b.logger.Warn("remote probe: bad capabilities", "error", err)
		return Capabilities{}
	}
	return caps
}

func (b *RemoteBackend) CreateEngine(cb EngineCallbacks) (Engine, error) {
	caps := b.Probe()
	if !caps.SupportsHaptics {
		return nil, fmt.Errorf("%w: actuator service reports no haptics", ErrNotSupported)
	}
	b.client.setEventHandler(func(ev remoteEvent) {
		switch ev.Kind {
		case "stopped":
			cb.externalStop(parseStopReason(ev.Reason))
		case "reset":
			cb.resetRequested()
		default:
			b.logger.Warn("unknown actuator event", "kind", ev.Kind)
		}
	})
	return &remoteEngine{client: b.client, caps: caps, cb: cb}, nil
}

type remoteEngine struct {
	client *RemoteClient
	caps   Capabilities
	cb     EngineCallbacks
}

// call forwards to the client; transport failures outside Start are reported
// as a system stop so the session falls back to NeedsStart.
func (e *remoteEngine) call(op string, arg any) error {
	_, err := e.client.call(op, arg)
	if err == nil {
		return nil
	}
	var re *remoteError
	if !errors.As(err, &re) && op != "Start" {
		e.cb.externalStop(StopReasonSystemError)
	}
	return err
}

func (e *remoteEngine) Capabilities() Capabilities { return e.caps }

func (e *remoteEngine) Start() error {
	if err := e.call("Start", nil); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return nil
}

func (e *remoteEngine) Stop() error { return e.call("Stop", nil) }

func (e *remoteEngine) Close() error {
	err := e.Stop()
	e.client.Close()
	return err
}

func (e *remoteEngine) MakePlayer(p Pattern) (Player, error) {
	if p.Curve.Empty() {
		return nil, invalidParameter("empty %s curve", p.Curve.Kind)
	}
	return &remotePlayer{id: uuid.NewString(), pattern: p, engine: e}, nil
}

type playPatternArgs struct {
	Data []byte `json:"data"`
}

func (e *remoteEngine) PlayPattern(data []byte) error {
	return e.call("PlayPattern", playPatternArgs{Data: data})
}

type playCurveArgs struct {
	PlayerID string  `json:"player_id"`
	Curve    Curve   `json:"curve"`
	Bed      *Curve  `json:"bed,omitempty"`
	Accent   bool    `json:"accent,omitempty"`
	OffsetMs float64 `json:"offset_ms"`
}

type playWaveformArgs struct {
	PlayerID   string   `json:"player_id"`
	TimingsMs  []uint32 `json:"timings_ms"`
	Amplitudes []int    `json:"amplitudes"`
}

type playerArgs struct {
	PlayerID string  `json:"player_id"`
	OffsetMs float64 `json:"offset_ms,omitempty"`
}

// remotePlayer is a handle to a player living in the actuator service.
type remotePlayer struct {
	id      string
	pattern Pattern
	engine  *remoteEngine
}

func (p *remotePlayer) Start(atOffsetMs float64) error {
	if p.engine.caps.SupportsContinuousCurves {
		return p.engine.call("PlayCurve", playCurveArgs{
			PlayerID: p.id,
			Curve:    p.pattern.Curve,
			Bed:      p.pattern.Bed,
			Accent:   p.pattern.Accent && atOffsetMs <= 0,
			OffsetMs: atOffsetMs,
		})
	}

	wf := Quantize(p.pattern.Curve.TrimFrom(atOffsetMs))
	amps := make([]int, len(wf.Amplitudes))
	for i, a := range wf.Amplitudes {
		amps[i] = int(a)
	}
	return p.engine.call("PlayWaveform", playWaveformArgs{PlayerID: p.id, TimingsMs: wf.TimingsMs, Amplitudes: amps})
}

func (p *remotePlayer) Seek(offsetMs float64) error {
	if !p.engine.caps.SupportsContinuousCurves {
		return p.Start(offsetMs)
	}
	return p.engine.call("SeekPlayer", playerArgs{PlayerID: p.id, OffsetMs: offsetMs})
}

func (p *remotePlayer) Stop() error {
	return p.engine.call("StopPlayer", playerArgs{PlayerID: p.id})
}
