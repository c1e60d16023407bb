package main

import "fmt"

// ============================================================================
// Engine boundary
// ============================================================================
//
// A Backend knows how to probe a device for haptic support and create an Engine
// for it. The engine turns Patterns into Players. Engines report asynchronous
// trouble through EngineCallbacks; the session turns those into events.
//
// Only the effect executor (effects.go) holds an Engine or a Player.
// ============================================================================

// Capabilities describes what the output device can do.
type Capabilities struct {
	SupportsHaptics          bool `json:"supports_haptics" yaml:"supports_haptics"`
	SupportsContinuousCurves bool `json:"supports_continuous_curves" yaml:"supports_continuous_curves"`
}

// StopReason is why an engine stopped on its own.
type StopReason int

const (
	StopReasonUnknown StopReason = iota
	StopReasonAudioSessionInterrupt
	StopReasonApplicationSuspended
	StopReasonIdleTimeout
	StopReasonSystemError
	StopReasonNotifyWhenFinished
	StopReasonEngineDestroyed
	StopReasonDeviceDisconnected
)

func (r StopReason) String() string {
	switch r {
	case StopReasonAudioSessionInterrupt:
		return "audio_session_interrupt"
	case StopReasonApplicationSuspended:
		return "application_suspended"
	case StopReasonIdleTimeout:
		return "idle_timeout"
	case StopReasonSystemError:
		return "system_error"
	case StopReasonNotifyWhenFinished:
		return "notify_when_finished"
	case StopReasonEngineDestroyed:
		return "engine_destroyed"
	case StopReasonDeviceDisconnected:
		return "device_disconnected"
	default:
		return "unknown"
	}
}

// EngineCallbacks are invoked by an engine from its own goroutines.
type EngineCallbacks struct {
	OnExternalStop   func(reason StopReason)
	OnResetRequested func()
}

func (cb EngineCallbacks) externalStop(reason StopReason) {
	if cb.OnExternalStop != nil {
		cb.OnExternalStop(reason)
	}
}

func (cb EngineCallbacks) resetRequested() {
	if cb.OnResetRequested != nil {
		cb.OnResetRequested()
	}
}

// Pattern is what a Player renders: a main curve, optionally layered over a
// continuous bed and opened by an accent transient.
type Pattern struct {
	Curve Curve
	Bed   *Curve

	// Accent sits at offset 0, so a start past the head skips it.
	Accent bool
}

// Backend probes for and creates engines.
type Backend interface {
	Name() string
	Probe() Capabilities
	CreateEngine(cb EngineCallbacks) (Engine, error)
}

// Engine is the underlying playback service.
type Engine interface {
	Capabilities() Capabilities
	Start() error
	Stop() error
	MakePlayer(p Pattern) (Player, error)
	PlayPattern(data []byte) error
	Close() error
}

// Player plays one Pattern.
type Player interface {
	Start(atOffsetMs float64) error
	Seek(offsetMs float64) error
	Stop() error
}

// EffectKind is an effect family. Families are mutually exclusive.
type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectRampUp
	EffectRelease
)

func (k EffectKind) String() string {
	switch k {
	case EffectNone:
		return "none"
	case EffectRampUp:
		return "ramp_up"
	case EffectRelease:
		return "release"
	default:
		return fmt.Sprintf("effect(%d)", int(k))
	}
}

// other returns the mutually exclusive family.
func (k EffectKind) other() EffectKind {
	switch k {
	case EffectRampUp:
		return EffectRelease
	case EffectRelease:
		return EffectRampUp
	default:
		return EffectNone
	}
}

// patternFor assembles the pattern for an effect family from the store.
// Continuous targets get the supplemental layers (sustain bed, accent).
func patternFor(effect EffectKind, store *CurveStore, continuous bool) Pattern {
	switch effect {
	case EffectRampUp:
		p := Pattern{Curve: store.Get(CurveEscalation)}
		if continuous {
			bed := store.Get(CurveSustain)
			p.Bed = &bed
		}
		return p
	case EffectRelease:
		return Pattern{Curve: store.Get(CurveDecay), Accent: continuous}
	default:
		return Pattern{}
	}
}
