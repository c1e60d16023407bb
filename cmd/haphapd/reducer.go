package main

import (
	"errors"
	"fmt"
	"time"
)

// The session is driven by a reducer:
//
//   - Reduce() computes the next state, the Commands to run and the Broadcasts
//     to publish. It performs no I/O.
//   - The daemon loop executes Commands (effects.go) and feeds their outcomes
//     back in as Events.
//
// Requests that need a running engine are parked in CmdStartEngine.Then and
// reduced again once the start succeeded, so a single request never sees two
// engine starts.

// ReduceResult is the output of Reduce().
type ReduceResult struct {
	State      *SessionState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// startPlayerIntent re-enters the reducer after a lazy engine restart triggered
// by a deferred start that fired while the engine was not Ready.
type startPlayerIntent struct {
	Effect   EffectKind
	OffsetMs float64
}

func (startPlayerIntent) eventMarker() {}

// Reduce is the pure session reducer.
//
// Rules:
//   - Must not perform I/O
//   - May only mutate s
//   - Every request carrying a Reply gets exactly one CmdReply, possibly after
//     an engine start round trip
func Reduce(s *SessionState, e Event, cfg SessionConfig) ReduceResult {
	if s == nil {
		s = NewSessionState(DefaultEffectParameters())
	}

	r := &reduction{s: s, cfg: cfg}
	if te, ok := e.(TimedEvent); ok {
		e = te.Event
		r.at = te.At
	}

	prev := s.Engine
	r.reduce(e)

	if s.Engine != prev {
		r.broadcast(BroadcastEngineStateChanged{From: prev, To: s.Engine, Reason: r.reason, At: r.at})
	}

	return ReduceResult{State: s, Commands: r.cmds, Broadcasts: r.broadcasts}
}

type reduction struct {
	s   *SessionState
	cfg SessionConfig
	at  time.Time

	reason     string
	cmds       []Command
	broadcasts []StateBroadcast
}

func (r *reduction) emit(c ...Command) { r.cmds = append(r.cmds, c...) }

func (r *reduction) broadcast(b StateBroadcast) { r.broadcasts = append(r.broadcasts, b) }

func (r *reduction) reply(ch chan<- Result, res Result) {
	if ch == nil {
		return
	}
	r.emit(CmdReply{Reply: ch, Result: res})
}

func (r *reduction) reduce(e Event) {
	s := r.s

	switch ev := e.(type) {
	case TimedEvent:
		r.reduce(ev.Event)

	// ---- session bring-up ----

	case SessionStarted:
		if !s.Probed {
			r.emit(CmdProbeCapabilities{})
		}

	case CapabilitiesProbed:
		if s.Probed {
			return
		}
		s.Probed = true
		s.Capabilities = ev.Caps
		s.SupportsHaptics = ev.Caps.SupportsHaptics
		if s.SupportsHaptics {
			r.emit(CmdCreateEngine{})
		}

	case EngineCreated:
		s.EngineCreated = true
		if s.Engine == EngineNotCreated {
			r.reason = "engine_created"
			s.Engine = EngineNeedsStart
		}

	case EngineCreateFailed:
		// Stays NotCreated; the next start attempt retries creation.

	// ---- requests ----

	case PrepareRequest:
		if !s.SupportsHaptics {
			r.reply(ev.Reply, noopResult())
			return
		}
		if s.Engine == EngineReady {
			s.ManuallyPrepared = true
			r.reply(ev.Reply, okResult())
			return
		}
		r.emit(CmdStartEngine{Origin: StartForPrepare, Reply: ev.Reply})

	case PlayRequest:
		r.play(ev)

	case StopRequest:
		if !s.SupportsHaptics {
			r.reply(ev.Reply, noopResult())
			return
		}
		r.haltOutput()
		r.reply(ev.Reply, okResult())

	case GoToIdleRequest:
		if !s.SupportsHaptics {
			r.reply(ev.Reply, noopResult())
			return
		}
		r.haltOutput()
		if s.EngineCreated {
			r.emit(CmdStopEngine{})
			s.Engine = EngineNeedsStart
		} else {
			s.Engine = EngineNotCreated
		}
		s.ManuallyPrepared = false
		r.reason = "go_to_idle"
		r.reply(ev.Reply, okResult())

	case UpdateSettingsRequest:
		if !s.SupportsHaptics {
			r.reply(ev.Reply, noopResult())
			return
		}
		p := EffectParameters{
			ReleaseDurationMs:   ev.ReleaseDurationMs,
			Revolutions:         ev.Revolutions,
			UseExponentialCurve: ev.UseExponentialCurve,
			TimeStepMs:          s.Params.TimeStepMs,
		}
		if err := p.Validate(); err != nil {
			r.reply(ev.Reply, errResult(err))
			return
		}
		s.Params = p
		r.emit(CmdUpdateCurves{Params: p})
		r.broadcast(BroadcastSettingsChanged{Params: p, At: r.at})
		r.reply(ev.Reply, okResult())

	case RunPatternRequest:
		if !s.SupportsHaptics {
			r.reply(ev.Reply, noopResult())
			return
		}
		if len(ev.Data) == 0 {
			r.reply(ev.Reply, errResult(invalidParameter("pattern data is empty")))
			return
		}
		if s.Engine.needsStart() {
			r.emit(CmdStartEngine{Origin: StartForPattern, Then: ev})
			return
		}
		r.emit(CmdPlayPattern{Data: ev.Data, Reply: ev.Reply})

	case CapabilityQuery:
		caps := s.Capabilities
		res := okResult()
		res.Capabilities = &caps
		r.reply(ev.Reply, res)

	case StateQuery:
		snap := s.Snapshot()
		res := okResult()
		res.Snapshot = &snap
		r.reply(ev.Reply, res)

	case RequestStateSnapshot:
		r.emit(CmdPublishStateSnapshot{Reply: ev.Reply, Snapshot: s.Snapshot()})

	// ---- engine start / playback observations ----

	case EngineStartResult:
		r.engineStarted(ev)

	case PendingStartFired:
		if s.Pending.empty() || ev.Token != s.Pending.Token {
			return
		}
		p := s.Pending
		s.Pending = PendingStart{}
		intent := startPlayerIntent{Effect: p.Effect, OffsetMs: p.OffsetMs}
		if s.Engine.needsStart() {
			r.emit(CmdStartEngine{Origin: StartForPlayback, Then: intent})
			return
		}
		r.reduce(intent)

	case startPlayerIntent:
		if s.Engine != EngineReady {
			return
		}
		r.emit(CmdStartPlayer{Effect: ev.Effect, OffsetMs: ev.OffsetMs})

	case PlayerStarted:
		s.Active = ev.Effect
		r.broadcast(BroadcastPlaybackStarted{Effect: ev.Effect, OffsetMs: ev.OffsetMs, At: r.at})

	case PlayerStartFailed:
		s.Active = EffectNone
		if s.Engine == EngineReady {
			s.Engine = EngineNeedsStart
			r.reason = "player_start_failed"
		}

	case PatternResult:
		switch {
		case ev.Err == nil:
			r.reply(ev.Reply, okResult())
		case errors.Is(ev.Err, ErrInvalidParameter), errors.Is(ev.Err, ErrNotSupported):
			r.reply(ev.Reply, errResult(ev.Err))
		default:
			if s.Engine == EngineReady {
				s.Engine = EngineNeedsStart
				r.reason = "pattern_failed"
			}
			r.reply(ev.Reply, errResult(engineUnavailable(ev.Err)))
		}

	case CommandFailed:
		// Logged by the executor; nothing to track.

	// ---- host lifecycle ----

	case AppBackground:
		if !s.SupportsHaptics {
			return
		}
		r.haltOutput()
		if s.EngineCreated {
			r.emit(CmdStopEngine{})
			s.Engine = EngineSuspended
			r.reason = "app_background"
		}

	case AppForeground:
		if s.Engine != EngineSuspended {
			return
		}
		r.reason = "app_foreground"
		if s.ManuallyPrepared {
			r.emit(CmdStartEngine{Origin: StartForForeground})
			return
		}
		s.Engine = EngineNeedsStart

	// ---- engine callbacks ----

	case EngineStopped:
		if s.Engine != EngineReady {
			return
		}
		s.Engine = EngineNeedsStart
		r.reason = "engine_stopped:" + ev.Reason.String()
		r.clearActive()

	case EngineResetRequested:
		if !s.SupportsHaptics || !s.EngineCreated || s.Engine == EngineSuspended {
			return
		}
		r.clearActive()
		r.emit(CmdStartEngine{Origin: StartForReset, Reset: true})
	}
}

func (r *reduction) play(ev PlayRequest) {
	s := r.s
	if !s.SupportsHaptics {
		r.reply(ev.Reply, noopResult())
		return
	}

	var offset float64
	switch ev.Effect {
	case EffectRampUp:
	case EffectRelease:
		if ev.Power == nil {
			r.reply(ev.Reply, errResult(badArguments("release requires power")))
			return
		}
		if !validPower(*ev.Power) {
			r.reply(ev.Reply, errResult(invalidParameter("power must be within [0, 1], got %v", *ev.Power)))
			return
		}
		offset = ReleaseOffsetMs(s.Params, *ev.Power)
	default:
		r.reply(ev.Reply, errResult(badArguments("unknown effect %s", ev.Effect)))
		return
	}

	if s.Engine.needsStart() {
		r.emit(CmdStartEngine{Origin: StartForPlayback, Then: ev})
		return
	}

	r.emit(CmdStopPlayers{Effect: ev.Effect.other()})
	if s.Active == ev.Effect.other() {
		r.clearActive()
	}

	s.PendingSeq++
	s.Pending = PendingStart{Token: s.PendingSeq, Effect: ev.Effect, OffsetMs: offset}
	r.emit(CmdSchedulePlayback{Token: s.Pending.Token, Delay: r.cfg.StartDelay})
	r.reply(ev.Reply, okResult())
}

func (r *reduction) engineStarted(ev EngineStartResult) {
	s := r.s
	r.reason = "start:" + string(ev.Origin)

	if ev.Err != nil {
		if s.EngineCreated {
			s.Engine = EngineNeedsStart
		} else {
			s.Engine = EngineNotCreated
		}
		err := engineUnavailable(ev.Err)
		r.reply(ev.Reply, errResult(err))
		if ev.Then != nil {
			r.reply(replyOf(ev.Then), errResult(err))
		}
		return
	}

	s.Engine = EngineReady
	s.EngineCreated = true
	if ev.Origin == StartForPrepare {
		s.ManuallyPrepared = true
	}
	r.reply(ev.Reply, okResult())
	if ev.Then != nil {
		r.reduce(ev.Then)
	}
}

// haltOutput cancels the deferred start and stops every player.
func (r *reduction) haltOutput() {
	r.emit(CmdCancelPending{}, CmdStopPlayers{Effect: EffectNone})
	r.s.Pending = PendingStart{}
	r.clearActive()
}

func (r *reduction) clearActive() {
	if r.s.Active == EffectNone {
		return
	}
	r.broadcast(BroadcastPlaybackStopped{Effect: r.s.Active, At: r.at})
	r.s.Active = EffectNone
}

func engineUnavailable(err error) error {
	if errors.Is(err, ErrEngineUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
}
