package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Hub tests use Clients with a nil conn; the hub never writes to the socket
// itself, and eviction skips Close for nil conns.

func startTestHub(t *testing.T, sendBuf, broadcastBuf int) (*Hub, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(discardLogger(), HubConfig{SendBuf: sendBuf, BroadcastBuf: broadcastBuf})

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	return hub, func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for hub to stop")
		}
	}
}

func registerTestClient(t *testing.T, hub *Hub, name string, buf int) *Client {
	t.Helper()
	c := &Client{hub: hub, send: make(chan []byte, buf), remoteAddr: name, logger: discardLogger()}
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, name+" not registered in time")
	return c
}

func expectFrame(t *testing.T, c *Client, want string) {
	t.Helper()
	select {
	case got := <-c.send:
		if string(got) != want {
			t.Fatalf("%s: expected %q, got %q", c.remoteAddr, want, string(got))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("%s: timeout waiting for frame", c.remoteAddr)
	}
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	hub, stop := startTestHub(t, 4, 8)
	defer stop()

	c1 := registerTestClient(t, hub, "c1", 4)
	c2 := registerTestClient(t, hub, "c2", 4)

	msg := `{"type":"playback_started","data":{"effect":"release","offset_ms":2000}}`
	hub.broadcast <- []byte(msg)

	expectFrame(t, c1, msg)
	expectFrame(t, c2, msg)

	if n := hub.ClientCount(); n != 2 {
		t.Fatalf("expected 2 clients, got %d", n)
	}
}

func TestHub_SlowClientDisconnectedOnFullSendBuffer(t *testing.T) {
	hub, stop := startTestHub(t, 1, 8)
	defer stop()

	slow := registerTestClient(t, hub, "slow", 1)
	fast := registerTestClient(t, hub, "fast", 8)

	slow.send <- []byte(`"stuck"`)

	msg := `{"type":"engine_state_changed","data":{"from":"needs_start","to":"ready"}}`
	hub.broadcast <- []byte(msg)
	expectFrame(t, fast, msg)

	<-slow.send // the stuck frame
	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")

	if n := hub.ClientCount(); n != 1 {
		t.Fatalf("expected 1 client left, got %d", n)
	}
}

func TestHub_StopClosesClients(t *testing.T) {
	hub, stop := startTestHub(t, 4, 8)
	c := registerTestClient(t, hub, "c", 4)

	stop()

	select {
	case _, ok := <-c.send:
		if ok {
			t.Fatal("expected closed send channel, got a frame")
		}
	default:
		t.Fatal("expected send channel to be closed on hub stop")
	}
}

func TestConvertBroadcast(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := []struct {
		in   StateBroadcast
		want string
	}{
		{BroadcastEngineStateChanged{From: EngineNeedsStart, To: EngineReady, Reason: "start:prepare", At: at},
			`{"type":"engine_state_changed","ts":"2026-01-02T03:04:05Z","data":{"from":"needs_start","to":"ready","reason":"start:prepare"}}`},
		{BroadcastPlaybackStarted{Effect: EffectRelease, OffsetMs: 2000, At: at},
			`{"type":"playback_started","ts":"2026-01-02T03:04:05Z","data":{"effect":"release","offset_ms":2000}}`},
		{BroadcastPlaybackStopped{Effect: EffectRampUp, At: at},
			`{"type":"playback_stopped","ts":"2026-01-02T03:04:05Z","data":{"effect":"ramp_up"}}`},
	}
	for _, tc := range cases {
		ev, ok := convertBroadcast(tc.in)
		if !ok {
			t.Fatalf("expected %T to convert", tc.in)
		}
		got, err := marshalEnvelope(ev)
		if err != nil {
			t.Fatalf("marshal %T: %v", tc.in, err)
		}
		if string(got) != tc.want {
			t.Fatalf("expected %s, got %s", tc.want, got)
		}
	}
}

func TestRunBroadcaster_CoalescesSettings(t *testing.T) {
	hub, stop := startTestHub(t, 16, 16)
	defer stop()
	c := registerTestClient(t, hub, "c", 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := make(chan StateBroadcast, 8)
	go RunBroadcaster(ctx, hub, src, discardLogger())

	for _, rev := range []float64{2, 3, 5} {
		p := DefaultEffectParameters()
		p.Revolutions = rev
		src <- BroadcastSettingsChanged{Params: p}
	}

	select {
	case msg := <-c.send:
		var raw struct {
			Type string           `json:"type"`
			Data EffectParameters `json:"data"`
		}
		if err := json.Unmarshal(msg, &raw); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if raw.Type != "settings_changed" || raw.Data.Revolutions != 5 {
			t.Fatalf("expected the latest settings only, got %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for settings_changed")
	}

	select {
	case msg := <-c.send:
		t.Fatalf("expected a single coalesced frame, got another: %s", msg)
	case <-time.After(2 * wsSettingsCoalesceWindow):
	}
}

func TestRunBroadcaster_OtherEventFlushesPendingSettings(t *testing.T) {
	hub, stop := startTestHub(t, 16, 16)
	defer stop()
	c := registerTestClient(t, hub, "c", 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := make(chan StateBroadcast, 8)
	go RunBroadcaster(ctx, hub, src, discardLogger())

	src <- BroadcastSettingsChanged{Params: DefaultEffectParameters()}
	src <- BroadcastPlaybackStopped{Effect: EffectRelease}

	for _, want := range []string{"settings_changed", "playback_stopped"} {
		select {
		case msg := <-c.send:
			if !strings.Contains(string(msg), `"type":"`+want+`"`) {
				t.Fatalf("expected %s, got %s", want, msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

func TestServer_SendsStateInitOnConnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 1)
	srv := NewServer(discardLogger(), events, ServerConfig{})
	go srv.Hub().Run(ctx)

	// Stand-in session: answers the snapshot request.
	go func() {
		for ev := range events {
			if req, ok := ev.(RequestStateSnapshot); ok {
				req.Reply <- NewSessionState(DefaultEffectParameters()).Snapshot()
			}
		}
	}()
	defer close(events)

	mux := http.NewServeMux()
	srv.Register(mux, "/ws/state")
	ts := httptest.NewServer(mux)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/state", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var env struct {
		Type string        `json:"type"`
		Data StateSnapshot `json:"data"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != "state_init" {
		t.Fatalf("expected state_init, got %q", env.Type)
	}
	if env.Data.EngineState != "not_created" || env.Data.ActiveEffect != "none" {
		t.Fatalf("unexpected snapshot %+v", env.Data)
	}
	if env.Data.Params.ReleaseDurationMs != 4000 {
		t.Fatalf("expected default params, got %+v", env.Data.Params)
	}
}
