package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Request is one IPC request line.
type Request struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Capabilities mirrors the daemon's capability pair.
type Capabilities struct {
	SupportsHaptics          bool `json:"supports_haptics"`
	SupportsContinuousCurves bool `json:"supports_continuous_curves"`
}

// EffectParameters mirrors the daemon's effect parameters.
type EffectParameters struct {
	ReleaseDurationMs   uint32  `json:"release_duration_ms"`
	Revolutions         float64 `json:"revolutions"`
	UseExponentialCurve bool    `json:"use_exponential_curve"`
	TimeStepMs          uint32  `json:"time_step_ms"`
}

// StateSnapshot mirrors the daemon's get_state answer.
type StateSnapshot struct {
	EngineState      string           `json:"engine_state"`
	Capabilities     Capabilities     `json:"capabilities"`
	ManuallyPrepared bool             `json:"manually_prepared"`
	ActiveEffect     string           `json:"active_effect"`
	PendingEffect    string           `json:"pending_effect,omitempty"`
	Params           EffectParameters `json:"params"`
}

// Response is the daemon's answer to one request line.
type Response struct {
	Status       string         `json:"status"`
	Code         string         `json:"code,omitempty"`
	Error        string         `json:"error,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	Capabilities *Capabilities  `json:"capabilities,omitempty"`
	State        *StateSnapshot `json:"state,omitempty"`
}

// Failed reports whether the daemon answered with an error status.
func (r Response) Failed() bool {
	return r.Status == "error"
}

// sendRequest writes req to the socket and decodes a single response line.
func sendRequest(socketPath string, timeout time.Duration, req Request) (Response, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return Response{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return Response{}, fmt.Errorf("set deadline: %w", err)
		}
	}

	line, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal %s request: %w", req.Type, err)
	}
	line = append(line, '\n')
	if _, err := conn.Write(line); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	raw, err := reader.ReadBytes('\n')
	if err != nil && len(raw) == 0 {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
