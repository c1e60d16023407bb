// Command haphap-monitor prints haphapd state websocket messages as they arrive.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	maxBackoff   = 10 * time.Second
)

// message is the envelope the daemon sends on its state websocket.
type message struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	var (
		wsURL   = flag.String("ws", "ws://127.0.0.1:3002/ws/state", "haphapd state websocket URL")
		rawJSON = flag.Bool("raw", false, "Print messages as received")
		once    = flag.Bool("once", false, "Exit after the first disconnect instead of reconnecting")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		log.Fatalf("invalid websocket URL: scheme must be ws or wss, got %q", u.Scheme)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backoff := 250 * time.Millisecond
	for {
		connected, err := watch(ctx, u.String(), os.Stdout, *rawJSON)
		if ctx.Err() != nil {
			log.Printf("shutting down...")
			return
		}
		if err != nil {
			log.Printf("connection lost: %v", err)
		}
		if *once {
			if err != nil {
				os.Exit(1)
			}
			return
		}
		if connected {
			backoff = 250 * time.Millisecond
		}

		log.Printf("reconnecting in %s", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// watch connects once and prints messages until the connection drops or ctx
// is canceled. connected reports whether the dial succeeded.
func watch(ctx context.Context, wsURL string, w io.Writer, raw bool) (connected bool, err error) {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	log.Printf("connecting to %s...", wsURL)
	conn, _, err := d.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	log.Printf("connected! (press Ctrl+C to exit)")

	var writeMu sync.Mutex

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				writeMu.Lock()
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				writeMu.Unlock()
				_ = conn.Close()
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					log.Printf("ping failed: %v", err)
					return
				}
			}
		}
	}()

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, nil
			}
			return true, err
		}

		switch messageType {
		case websocket.TextMessage:
			if raw {
				fmt.Fprintf(w, "%s\n", payload)
				continue
			}
			fmt.Fprintln(w, formatMessage(payload, time.Now()))
		case websocket.BinaryMessage:
			fmt.Fprintf(w, "[BINARY] %d bytes\n", len(payload))
		}
	}
}

// formatMessage renders one envelope as a single line. received is used when
// the envelope carries no timestamp.
func formatMessage(payload []byte, received time.Time) string {
	var m message
	if err := json.Unmarshal(payload, &m); err != nil || m.Type == "" {
		return fmt.Sprintf("%s [TEXT] %s", received.Format(time.RFC3339Nano), payload)
	}

	ts := received
	if m.Ts != nil {
		ts = *m.Ts
	}
	stamp := ts.Format("15:04:05.000")

	switch m.Type {
	case "engine_state_changed":
		var d struct {
			From   string `json:"from"`
			To     string `json:"to"`
			Reason string `json:"reason"`
		}
		if json.Unmarshal(m.Data, &d) == nil {
			if d.Reason != "" {
				return fmt.Sprintf("%s [ENGINE] %s -> %s (%s)", stamp, d.From, d.To, d.Reason)
			}
			return fmt.Sprintf("%s [ENGINE] %s -> %s", stamp, d.From, d.To)
		}
	case "playback_started":
		var d struct {
			Effect   string   `json:"effect"`
			OffsetMs *float64 `json:"offset_ms"`
		}
		if json.Unmarshal(m.Data, &d) == nil {
			if d.OffsetMs != nil && *d.OffsetMs > 0 {
				return fmt.Sprintf("%s [PLAY] %s from %.0f ms", stamp, d.Effect, *d.OffsetMs)
			}
			return fmt.Sprintf("%s [PLAY] %s", stamp, d.Effect)
		}
	case "playback_stopped":
		var d struct {
			Effect string `json:"effect"`
		}
		if json.Unmarshal(m.Data, &d) == nil {
			return fmt.Sprintf("%s [STOP] %s", stamp, d.Effect)
		}
	}

	if len(m.Data) == 0 {
		return fmt.Sprintf("%s [%s]", stamp, m.Type)
	}
	return fmt.Sprintf("%s [%s] %s", stamp, m.Type, compact(m.Data))
}

func compact(data json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return string(data)
	}
	return buf.String()
}
