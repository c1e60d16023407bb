package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type actuatorCall struct {
	Op  string
	Arg json.RawMessage
}

// fakeActuator is a websocket actuator service answering through respond.
// A nil reply list hangs up the connection.
type fakeActuator struct {
	mu      sync.Mutex
	calls   []actuatorCall
	respond func(call actuatorCall) []string
	srv     *httptest.Server
}

func newFakeActuator(t *testing.T, respond func(call actuatorCall) []string) *fakeActuator {
	t.Helper()
	fa := &fakeActuator{respond: respond}
	upgrader := websocket.Upgrader{}
	fa.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			call := parseActuatorCall(msg)
			fa.mu.Lock()
			fa.calls = append(fa.calls, call)
			fa.mu.Unlock()

			replies := fa.respond(call)
			if replies == nil {
				return
			}
			for _, reply := range replies {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(fa.srv.Close)
	return fa
}

func parseActuatorCall(msg []byte) actuatorCall {
	var op string
	if json.Unmarshal(msg, &op) == nil {
		return actuatorCall{Op: op}
	}
	var keyed map[string]json.RawMessage
	_ = json.Unmarshal(msg, &keyed)
	for k, v := range keyed {
		return actuatorCall{Op: k, Arg: v}
	}
	return actuatorCall{}
}

func (fa *fakeActuator) url() string {
	return "ws" + strings.TrimPrefix(fa.srv.URL, "http") + "/actuator"
}

func (fa *fakeActuator) lastCall(op string) (actuatorCall, bool) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	for i := len(fa.calls) - 1; i >= 0; i-- {
		if fa.calls[i].Op == op {
			return fa.calls[i], true
		}
	}
	return actuatorCall{}, false
}

func okReply(op string) string { return `{"` + op + `":{"result":"Ok"}}` }

func capsReply(continuous bool) string {
	if continuous {
		return `{"GetCapabilities":{"result":"Ok","value":{"supports_haptics":true,"supports_continuous_curves":true}}}`
	}
	return `{"GetCapabilities":{"result":"Ok","value":{"supports_haptics":true,"supports_continuous_curves":false}}}`
}

func newTestRemoteBackend(t *testing.T, fa *fakeActuator) *RemoteBackend {
	t.Helper()
	client, err := NewRemoteClient(fa.url(), 1000, 1, discardLogger())
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewRemoteBackend(client, discardLogger())
}

type stopRecorder struct {
	mu      sync.Mutex
	reasons []StopReason
	resets  int
}

func (r *stopRecorder) callbacks() EngineCallbacks {
	return EngineCallbacks{
		OnExternalStop: func(reason StopReason) {
			r.mu.Lock()
			r.reasons = append(r.reasons, reason)
			r.mu.Unlock()
		},
		OnResetRequested: func() {
			r.mu.Lock()
			r.resets++
			r.mu.Unlock()
		},
	}
}

func (r *stopRecorder) snapshot() ([]StopReason, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StopReason(nil), r.reasons...), r.resets
}

func TestRemoteBackend_ProbeAndWaveformPlayback(t *testing.T) {
	fa := newFakeActuator(t, func(call actuatorCall) []string {
		if call.Op == "GetCapabilities" {
			return []string{capsReply(false)}
		}
		return []string{okReply(call.Op)}
	})
	backend := newTestRemoteBackend(t, fa)

	caps := backend.Probe()
	if !caps.SupportsHaptics || caps.SupportsContinuousCurves {
		t.Fatalf("unexpected capabilities %+v", caps)
	}

	engine, err := backend.CreateEngine(EngineCallbacks{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	player, err := engine.MakePlayer(Pattern{Curve: GenerateDecay(DefaultEffectParameters())})
	if err != nil {
		t.Fatalf("make player: %v", err)
	}
	if err := player.Start(2000); err != nil {
		t.Fatalf("player start: %v", err)
	}

	call, ok := fa.lastCall("PlayWaveform")
	if !ok {
		t.Fatal("expected PlayWaveform call")
	}
	var args playWaveformArgs
	if err := json.Unmarshal(call.Arg, &args); err != nil {
		t.Fatalf("decode args: %v", err)
	}
	if args.PlayerID == "" || len(args.TimingsMs) != 40 || len(args.Amplitudes) != 40 {
		t.Fatalf("expected 40 trimmed steps, got %+v", args)
	}

	if err := player.Stop(); err != nil {
		t.Fatalf("player stop: %v", err)
	}
	stop, _ := fa.lastCall("StopPlayer")
	if !strings.Contains(string(stop.Arg), args.PlayerID) {
		t.Fatalf("expected StopPlayer for %s, got %s", args.PlayerID, stop.Arg)
	}
}

func TestRemoteBackend_ContinuousDispatchesInterleavedEvents(t *testing.T) {
	fa := newFakeActuator(t, func(call actuatorCall) []string {
		switch call.Op {
		case "GetCapabilities":
			return []string{capsReply(true)}
		case "PlayCurve":
			return []string{
				`{"Event":{"kind":"stopped","reason":"idle_timeout"}}`,
				`{"Event":{"kind":"reset"}}`,
				okReply("Stop"),
				okReply("PlayCurve"),
			}
		default:
			return []string{okReply(call.Op)}
		}
	})
	backend := newTestRemoteBackend(t, fa)

	rec := &stopRecorder{}
	engine, err := backend.CreateEngine(rec.callbacks())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	player, err := engine.MakePlayer(Pattern{Curve: GenerateSustain(DefaultEffectParameters()), Accent: true})
	if err != nil {
		t.Fatalf("make player: %v", err)
	}
	if err := player.Start(500); err != nil {
		t.Fatalf("player start: %v", err)
	}

	call, _ := fa.lastCall("PlayCurve")
	var args playCurveArgs
	if err := json.Unmarshal(call.Arg, &args); err != nil {
		t.Fatalf("decode args: %v", err)
	}
	if args.OffsetMs != 500 || args.Accent || len(args.Curve.Points) == 0 {
		t.Fatalf("expected offset 500 without accent, got %+v", args)
	}

	reasons, resets := rec.snapshot()
	if len(reasons) != 1 || reasons[0] != StopReasonIdleTimeout {
		t.Fatalf("expected one idle_timeout stop, got %v", reasons)
	}
	if resets != 1 {
		t.Fatalf("expected one reset, got %d", resets)
	}

	if err := player.Start(0); err != nil {
		t.Fatalf("player start at head: %v", err)
	}
	call, _ = fa.lastCall("PlayCurve")
	args = playCurveArgs{}
	if err := json.Unmarshal(call.Arg, &args); err != nil {
		t.Fatalf("decode args: %v", err)
	}
	if args.OffsetMs != 0 || !args.Accent {
		t.Fatalf("expected accent at the head, got %+v", args)
	}

	if err := player.Seek(1000); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if _, ok := fa.lastCall("SeekPlayer"); !ok {
		t.Fatal("expected SeekPlayer call")
	}
}

func TestRemoteBackend_ServiceErrors(t *testing.T) {
	fa := newFakeActuator(t, func(call actuatorCall) []string {
		switch call.Op {
		case "GetCapabilities":
			return []string{capsReply(true)}
		case "Start":
			return []string{`{"Start":{"result":"Error","error":"device busy"}}`}
		case "PlayPattern":
			return nil
		default:
			return []string{okReply(call.Op)}
		}
	})
	backend := newTestRemoteBackend(t, fa)
	rec := &stopRecorder{}
	engine, err := backend.CreateEngine(rec.callbacks())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = engine.Start()
	if !errors.Is(err, ErrEngineUnavailable) || !strings.Contains(err.Error(), "device busy") {
		t.Fatalf("expected engine unavailable with service message, got %v", err)
	}
	if reasons, _ := rec.snapshot(); len(reasons) != 0 {
		t.Fatalf("expected no stop for a service error, got %v", reasons)
	}

	if err := engine.PlayPattern([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected hang-up to fail the call")
	}
	reasons, _ := rec.snapshot()
	if len(reasons) != 1 || reasons[0] != StopReasonSystemError {
		t.Fatalf("expected system_error stop after transport failure, got %v", reasons)
	}

	// The next call reconnects.
	if err := engine.Stop(); err != nil {
		t.Fatalf("expected reconnect, got %v", err)
	}
}

func TestRemoteBackend_NoHaptics(t *testing.T) {
	fa := newFakeActuator(t, func(call actuatorCall) []string {
		return []string{`{"GetCapabilities":{"result":"Ok","value":{"supports_haptics":false}}}`}
	})
	backend := newTestRemoteBackend(t, fa)

	if _, err := backend.CreateEngine(EngineCallbacks{}); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected not supported, got %v", err)
	}
}

func TestRemoteClient_Timeout(t *testing.T) {
	fa := newFakeActuator(t, func(call actuatorCall) []string {
		return []string{`{"Other":{"result":"Ok"}}`}
	})
	client, err := NewRemoteClient(fa.url(), 100, 1, discardLogger())
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer client.Close()

	start := time.Now()
	if _, err := client.call("Start", nil); err == nil {
		t.Fatal("expected timeout")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("expected read deadline to fire quickly, took %s", elapsed)
	}
}

func TestNewRemoteClient_RejectsScheme(t *testing.T) {
	if _, err := NewRemoteClient("http://127.0.0.1:7878", 500, 1, discardLogger()); err == nil {
		t.Fatal("expected http scheme to be rejected")
	}
	if _, err := NewRemoteClient("wss://actuator.local/ws", 500, 0, discardLogger()); err != nil {
		t.Fatalf("expected wss to be accepted, got %v", err)
	}
}

func TestParseStopReason(t *testing.T) {
	for r := StopReasonUnknown; r <= StopReasonDeviceDisconnected; r++ {
		if got := parseStopReason(r.String()); got != r {
			t.Fatalf("expected %s, got %s", r, got)
		}
	}
	if parseStopReason("meteor") != StopReasonUnknown {
		t.Fatal("expected unknown reason")
	}
}
