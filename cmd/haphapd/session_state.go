package main

import "time"

// EngineState is the lifecycle state of the haptic engine as seen by the session.
type EngineState int

const (
	EngineNotCreated EngineState = iota
	EngineNeedsStart
	EngineReady
	EngineSuspended
)

func (s EngineState) String() string {
	switch s {
	case EngineNotCreated:
		return "not_created"
	case EngineNeedsStart:
		return "needs_start"
	case EngineReady:
		return "ready"
	case EngineSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// needsStart reports whether a play request must start the engine first.
// Suspended behaves like NeedsStart for lazy restarts.
func (s EngineState) needsStart() bool {
	return s != EngineReady
}

// SessionState is the daemon-owned playback session state.
//
// It is owned by the daemon goroutine and only changed by Reduce. Other goroutines
// get copies through StateSnapshot.
type SessionState struct {
	Engine EngineState

	// Capabilities are probed once at session start and never change afterwards.
	Probed          bool
	Capabilities    Capabilities
	SupportsHaptics bool

	// EngineCreated is true once the backend produced an engine handle.
	EngineCreated bool

	// ManuallyPrepared is set by an explicit prepare and cleared by goToIdle.
	// Only a manually prepared session is restarted on foreground.
	ManuallyPrepared bool

	Params EffectParameters

	// Pending is the single deferred start slot. Token 0 means empty.
	Pending    PendingStart
	PendingSeq uint64

	// Active is the effect family whose player was last started.
	Active EffectKind
}

// PendingStart is the one not-yet-fired deferred playback start.
type PendingStart struct {
	Token    uint64
	Effect   EffectKind
	OffsetMs float64
}

func (p PendingStart) empty() bool { return p.Token == 0 }

// NewSessionState returns the initial state for a session using params.
func NewSessionState(params EffectParameters) *SessionState {
	return &SessionState{
		Engine: EngineNotCreated,
		Params: params,
	}
}

// SessionConfig holds the reducer's policy knobs.
type SessionConfig struct {
	// StartDelay defers player starts so they never race a just-issued engine start.
	StartDelay time.Duration
}

// DefaultSessionConfig returns the reference policy.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{StartDelay: defaultStartDelayMS * time.Millisecond}
}

// StateSnapshot is a copy of the session state for observers (IPC, websocket).
type StateSnapshot struct {
	EngineState      string           `json:"engine_state"`
	Capabilities     Capabilities     `json:"capabilities"`
	ManuallyPrepared bool             `json:"manually_prepared"`
	ActiveEffect     string           `json:"active_effect"`
	PendingEffect    string           `json:"pending_effect,omitempty"`
	Params           EffectParameters `json:"params"`
}

// Snapshot copies the observable parts of the state.
func (s *SessionState) Snapshot() StateSnapshot {
	snap := StateSnapshot{
		EngineState:      s.Engine.String(),
		Capabilities:     s.Capabilities,
		ManuallyPrepared: s.ManuallyPrepared,
		ActiveEffect:     s.Active.String(),
		Params:           s.Params,
	}
	if !s.Pending.empty() {
		snap.PendingEffect = s.Pending.Effect.String()
	}
	return snap
}
