package main

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// ============================================================================
// Events - inputs to the session reducer
// ============================================================================
// Events come from four places:
//   - the command boundary (IPC requests, each carrying a Reply channel)
//   - the lifecycle monitor (background / foreground)
//   - the engine (external stop, reset requested)
//   - the effect executor (observations of side effects it ran)
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// TimedEvent stamps an event with its arrival time. The daemon loop wraps every
// external event so payload types stay free of timestamps.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// ==============================
// Requests (command boundary)
// ==============================

// PrepareRequest creates and starts the engine ahead of playback.
type PrepareRequest struct {
	Reply chan<- Result
}

// StopRequest cancels the pending start and halts active output.
type StopRequest struct {
	Reply chan<- Result
}

// GoToIdleRequest stops everything including the engine and forgets a manual prepare.
type GoToIdleRequest struct {
	Reply chan<- Result
}

// PlayRequest runs an effect family. Power is required for EffectRelease.
type PlayRequest struct {
	Effect EffectKind
	Power  *float64
	Reply  chan<- Result
}

// UpdateSettingsRequest replaces the release parameters. The time step is kept.
type UpdateSettingsRequest struct {
	ReleaseDurationMs   uint32
	Revolutions         float64
	UseExponentialCurve bool
	Reply               chan<- Result
}

// RunPatternRequest passes an opaque pattern blob to the engine unmodified.
type RunPatternRequest struct {
	Data  []byte
	Reply chan<- Result
}

// CapabilityQuery asks for the probed capabilities.
type CapabilityQuery struct {
	Reply chan<- Result
}

// StateQuery asks for a state snapshot in a Result.
type StateQuery struct {
	Reply chan<- Result
}

// RequestStateSnapshot asks for a bare snapshot (state websocket on connect).
type RequestStateSnapshot struct {
	Reply chan<- StateSnapshot
}

func (PrepareRequest) eventMarker()        {}
func (StopRequest) eventMarker()           {}
func (GoToIdleRequest) eventMarker()       {}
func (PlayRequest) eventMarker()           {}
func (UpdateSettingsRequest) eventMarker() {}
func (RunPatternRequest) eventMarker()     {}
func (CapabilityQuery) eventMarker()       {}
func (StateQuery) eventMarker()            {}
func (RequestStateSnapshot) eventMarker()  {}

// ==============================
// Lifecycle and engine signals
// ==============================

// AppBackground is delivered when the host goes to the background.
type AppBackground struct{}

// AppForeground is delivered when the host comes back.
type AppForeground struct{}

// EngineStopped is reported by the engine when it stopped on its own.
type EngineStopped struct {
	Reason StopReason
}

// EngineResetRequested is reported by the engine when it needs a restart.
type EngineResetRequested struct{}

func (AppBackground) eventMarker()        {}
func (AppForeground) eventMarker()        {}
func (EngineStopped) eventMarker()        {}
func (EngineResetRequested) eventMarker() {}

// ==============================
// Observations (effect executor)
// ==============================

// SessionStarted is the first event of every session.
type SessionStarted struct{}

// CapabilitiesProbed carries the one-time capability probe.
type CapabilitiesProbed struct {
	Caps Capabilities
}

// EngineCreated reports the backend produced an engine handle.
type EngineCreated struct{}

// EngineCreateFailed reports engine creation failed.
type EngineCreateFailed struct {
	Err error
}

// EngineStartResult reports the outcome of CmdStartEngine, echoing its continuation.
type EngineStartResult struct {
	Err    error
	Origin StartOrigin
	Then   Event
	Reply  chan<- Result
}

// PendingStartFired is posted by the deferred start timer.
type PendingStartFired struct {
	Token uint64
}

// PlayerStarted reports a player began output.
type PlayerStarted struct {
	Effect   EffectKind
	OffsetMs float64
}

// PlayerStartFailed reports a player could not start or seek.
type PlayerStartFailed struct {
	Effect EffectKind
	Err    error
}

// PatternResult reports the outcome of CmdPlayPattern.
type PatternResult struct {
	Err   error
	Reply chan<- Result
}

// CommandFailed reports a command that failed with nobody waiting for it.
type CommandFailed struct {
	Command Command
	Err     error
}

func (SessionStarted) eventMarker()     {}
func (CapabilitiesProbed) eventMarker() {}
func (EngineCreated) eventMarker()      {}
func (EngineCreateFailed) eventMarker() {}
func (EngineStartResult) eventMarker()  {}
func (PendingStartFired) eventMarker()  {}
func (PlayerStarted) eventMarker()      {}
func (PlayerStartFailed) eventMarker()  {}
func (PatternResult) eventMarker()      {}
func (CommandFailed) eventMarker()      {}

// ============================================================================
// Results
// ============================================================================

// ResultStatus is the outcome class of a request.
type ResultStatus string

const (
	StatusOK    ResultStatus = "ok"
	StatusNoop  ResultStatus = "noop"
	StatusError ResultStatus = "error"
)

// Result is the answer to a request.
type Result struct {
	Status       ResultStatus
	Err          error
	Capabilities *Capabilities
	Snapshot     *StateSnapshot
}

func okResult() Result            { return Result{Status: StatusOK} }
func noopResult() Result          { return Result{Status: StatusNoop} }
func errResult(err error) Result { return Result{Status: StatusError, Err: err} }

// replyOf returns the reply channel carried by a request event, if any.
func replyOf(e Event) chan<- Result {
	switch r := e.(type) {
	case PrepareRequest:
		return r.Reply
	case StopRequest:
		return r.Reply
	case GoToIdleRequest:
		return r.Reply
	case PlayRequest:
		return r.Reply
	case UpdateSettingsRequest:
		return r.Reply
	case RunPatternRequest:
		return r.Reply
	case CapabilityQuery:
		return r.Reply
	case StateQuery:
		return r.Reply
	default:
		return nil
	}
}

// ============================================================================
// JSON decoding (command boundary)
// ============================================================================
// RequestEnvelope is one IPC request line: {"type": "...", "data": {...}}.
// Missing required fields and wrongly typed fields are reported as ErrBadArguments.
// ============================================================================

// RequestEnvelope wraps a request with a type discriminator.
type RequestEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type runReleasePayload struct {
	Power *float64 `json:"power"`
}

type updateSettingsPayload struct {
	ReleaseDurationMs   *uint32  `json:"release_duration_ms"`
	Revolutions         *float64 `json:"revolutions"`
	UseExponentialCurve *bool    `json:"use_exponential_curve"`
}

type runPatternPayload struct {
	Data *[]byte `json:"data"` // base64 in JSON
}

// UnmarshalRequest decodes one IPC request into a session event answering on reply.
func UnmarshalRequest(data []byte, reply chan<- Result) (Event, error) {
	var env RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, badArguments("unmarshal envelope: %v", err)
	}

	switch env.Type {
	case "prepare":
		return PrepareRequest{Reply: reply}, nil
	case "stop":
		return StopRequest{Reply: reply}, nil
	case "go_to_idle":
		return GoToIdleRequest{Reply: reply}, nil
	case "run_ramp_up":
		return PlayRequest{Effect: EffectRampUp, Reply: reply}, nil
	case "capability_query":
		return CapabilityQuery{Reply: reply}, nil
	case "get_state":
		return StateQuery{Reply: reply}, nil
	case "app_background":
		return AppBackground{}, nil
	case "app_foreground":
		return AppForeground{}, nil

	case "run_release":
		var p runReleasePayload
		if err := decodePayload(env.Data, &p); err != nil {
			return nil, badArguments("run_release: %v", err)
		}
		if p.Power == nil {
			return nil, badArguments("run_release: missing power")
		}
		return PlayRequest{Effect: EffectRelease, Power: p.Power, Reply: reply}, nil

	case "update_settings":
		var p updateSettingsPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return nil, badArguments("update_settings: %v", err)
		}
		if p.ReleaseDurationMs == nil || p.Revolutions == nil || p.UseExponentialCurve == nil {
			return nil, badArguments("update_settings: release_duration_ms, revolutions and use_exponential_curve are required")
		}
		return UpdateSettingsRequest{
			ReleaseDurationMs:   *p.ReleaseDurationMs,
			Revolutions:         *p.Revolutions,
			UseExponentialCurve: *p.UseExponentialCurve,
			Reply:               reply,
		}, nil

	case "run_pattern":
		var p runPatternPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return nil, badArguments("run_pattern: %v", err)
		}
		if p.Data == nil {
			return nil, badArguments("run_pattern: missing data")
		}
		return RunPatternRequest{Data: *p.Data, Reply: reply}, nil

	default:
		return nil, badArguments("unknown request type: %q", env.Type)
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// validPower reports whether power is a usable release power.
func validPower(power float64) bool {
	return !math.IsNaN(power) && power >= 0 && power <= 1
}
