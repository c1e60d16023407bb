package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestFormatMessage_EngineState(t *testing.T) {
	payload := []byte(`{"type":"engine_state_changed","ts":"2026-01-02T03:04:05.678Z","data":{"from":"needs_start","to":"ready","reason":"start:playback"}}`)
	got := formatMessage(payload, time.Now())
	want := "03:04:05.678 [ENGINE] needs_start -> ready (start:playback)"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestFormatMessage_Playback(t *testing.T) {
	ts := "2026-01-02T03:04:05Z"
	cases := []struct {
		payload string
		want    string
	}{
		{`{"type":"playback_started","ts":"` + ts + `","data":{"effect":"release","offset_ms":2000}}`, "03:04:05.000 [PLAY] release from 2000 ms"},
		{`{"type":"playback_started","ts":"` + ts + `","data":{"effect":"ramp_up"}}`, "03:04:05.000 [PLAY] ramp_up"},
		{`{"type":"playback_stopped","ts":"` + ts + `","data":{"effect":"all"}}`, "03:04:05.000 [STOP] all"},
		{`{"type":"settings_changed","ts":"` + ts + `","data":{ "revolutions": 6 }}`, `03:04:05.000 [settings_changed] {"revolutions":6}`},
	}
	for _, tc := range cases {
		if got := formatMessage([]byte(tc.payload), time.Now()); got != tc.want {
			t.Errorf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestFormatMessage_NotAnEnvelope(t *testing.T) {
	got := formatMessage([]byte("hello"), time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if !strings.HasSuffix(got, "[TEXT] hello") {
		t.Fatalf("expected raw text line, got %q", got)
	}
}

func TestNextBackoff(t *testing.T) {
	if got := nextBackoff(time.Second); got != 2*time.Second {
		t.Fatalf("expected 2s, got %s", got)
	}
	if got := nextBackoff(8 * time.Second); got != maxBackoff {
		t.Fatalf("expected cap %s, got %s", maxBackoff, got)
	}
}

type lockedBuffer struct {
	mu sync.Mutex
	sb strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.Write(p)
}

func TestWatch_PrintsUntilServerCloses(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"playback_stopped","ts":"2026-01-02T03:04:05Z","data":{"effect":"release"}}`))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	var out lockedBuffer
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	connected, err := watch(context.Background(), wsURL, &out, false)
	if !connected {
		t.Fatalf("expected to connect, got err %v", err)
	}
	if err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}
	if got := out.sb.String(); !strings.Contains(got, "[STOP] release") {
		t.Fatalf("expected stop line, got %q", got)
	}
}

func TestWatch_DialFailure(t *testing.T) {
	connected, err := watch(context.Background(), "ws://127.0.0.1:1/ws/state", &lockedBuffer{}, false)
	if connected || err == nil {
		t.Fatalf("expected dial failure, got connected=%v err=%v", connected, err)
	}
}
