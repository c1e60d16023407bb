package main

import (
	"fmt"
	"log/slog"
	"time"
)

// stopper is the part of *time.Timer the host needs.
type stopper interface {
	Stop() bool
}

// engineHost owns everything runEffect touches: the backend, the engine handle,
// the curve store, the players and the deferred start timer.
//
// It is only used from the daemon goroutine. Engine callbacks and timer fires are
// forwarded through notify, which must not block.
type engineHost struct {
	backend Backend
	store   *CurveStore
	logger  *slog.Logger
	notify  func(Event)

	afterFunc func(d time.Duration, f func()) stopper

	engine  Engine
	caps    Capabilities
	players map[EffectKind]Player
	retired map[EffectKind][]Player
	pending stopper
}

func newEngineHost(backend Backend, store *CurveStore, notify func(Event), logger *slog.Logger) *engineHost {
	return &engineHost{
		backend: backend,
		store:   store,
		logger:  logger,
		notify:  notify,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		players: make(map[EffectKind]Player),
		retired: make(map[EffectKind][]Player),
	}
}

// runEffect executes a single reducer-emitted Command and reports the outcome
// through onEvent.
//
// Design rules:
//   - This function is allowed to perform I/O.
//   - It must never call Reduce() directly; it only emits Events.
//   - Replies are delivered here, never from the reducer.
func runEffect(h *engineHost, cmd Command, logger *slog.Logger, onEvent func(Event)) {
	if onEvent == nil {
		return
	}
	if h == nil {
		onEvent(CommandFailed{Command: cmd, Err: errNoEngine{}})
		return
	}

	switch c := cmd.(type) {
	case CmdProbeCapabilities:
		h.caps = h.backend.Probe()
		logger.Info("capabilities probed",
			"backend", h.backend.Name(),
			"haptics", h.caps.SupportsHaptics,
			"continuous", h.caps.SupportsContinuousCurves)
		onEvent(CapabilitiesProbed{Caps: h.caps})

	case CmdCreateEngine:
		if err := h.createEngine(); err != nil {
			logger.Error("engine create failed", "backend", h.backend.Name(), "error", err)
			onEvent(EngineCreateFailed{Err: err})
			return
		}
		onEvent(EngineCreated{})

	case CmdStartEngine:
		err := h.startEngine(c.Reset)
		if err != nil {
			logger.Error("engine start failed", "origin", c.Origin, "error", err)
		} else {
			logger.Debug("engine started", "origin", c.Origin, "reset", c.Reset)
		}
		onEvent(EngineStartResult{Err: err, Origin: c.Origin, Then: c.Then, Reply: c.Reply})

	case CmdStopEngine:
		if h.engine == nil {
			return
		}
		if err := h.engine.Stop(); err != nil {
			logger.Warn("engine stop failed", "error", err)
		}

	case CmdStopPlayers:
		h.stopPlayers(c.Effect)

	case CmdCancelPending:
		h.cancelPending()

	case CmdSchedulePlayback:
		h.schedule(c.Token, c.Delay)

	case CmdStartPlayer:
		if err := h.startPlayer(c.Effect, c.OffsetMs); err != nil {
			logger.Error("player start failed", "effect", c.Effect, "offset_ms", c.OffsetMs, "error", err)
			onEvent(PlayerStartFailed{Effect: c.Effect, Err: err})
			return
		}
		onEvent(PlayerStarted{Effect: c.Effect, OffsetMs: c.OffsetMs})

	case CmdUpdateCurves:
		h.updateCurves(c.Params)

	case CmdPlayPattern:
		var err error
		if h.engine == nil {
			err = errNoEngine{}
		} else {
			err = h.engine.PlayPattern(c.Data)
		}
		if err != nil {
			logger.Warn("pattern playback failed", "bytes", len(c.Data), "error", err)
		}
		onEvent(PatternResult{Err: err, Reply: c.Reply})

	case CmdReply:
		if c.Reply == nil {
			return
		}
		// Reply channels are buffered; a full one means the requester gave up.
		select {
		case c.Reply <- c.Result:
		default:
			logger.Warn("reply channel not ready; dropping result", "status", c.Result.Status)
		}

	case CmdPublishStateSnapshot:
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		logger.Warn("unknown command type", "command", cmd.String())
		onEvent(CommandFailed{Command: cmd, Err: errUnknownCommand{cmd: cmd}})
	}
}

func (h *engineHost) continuous() bool { return h.caps.SupportsContinuousCurves }

func (h *engineHost) createEngine() error {
	if h.engine != nil {
		return nil
	}
	eng, err := h.backend.CreateEngine(EngineCallbacks{
		OnExternalStop: func(reason StopReason) {
			h.notify(EngineStopped{Reason: reason})
		},
		OnResetRequested: func() {
			h.notify(EngineResetRequested{})
		},
	})
	if err != nil {
		return fmt.Errorf("create %s engine: %w", h.backend.Name(), err)
	}
	h.engine = eng
	return nil
}

func (h *engineHost) startEngine(reset bool) error {
	if reset {
		h.dropPlayers()
	}
	if err := h.createEngine(); err != nil {
		return err
	}
	if err := h.engine.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	return nil
}

// startPlayer starts one effect family at offsetMs.
//
// Discrete targets get a fresh player over the trimmed curve; an offset at or
// past the last sample leaves nothing to play and completes immediately.
// Continuous targets reuse their cached player, started directly at offsetMs.
func (h *engineHost) startPlayer(effect EffectKind, offsetMs float64) error {
	if h.engine == nil {
		return errNoEngine{}
	}
	h.stopRetired(effect)

	if !h.continuous() {
		h.stopFamily(effect)
		pattern := patternFor(effect, h.store, false)
		pattern.Curve = pattern.Curve.TrimFrom(offsetMs)
		if pattern.Curve.Empty() {
			h.logger.Debug("nothing left to play", "effect", effect, "offset_ms", offsetMs)
			return nil
		}
		p, err := h.engine.MakePlayer(pattern)
		if err != nil {
			return fmt.Errorf("make %s player: %w", effect, err)
		}
		h.players[effect] = p
		if err := p.Start(0); err != nil {
			return fmt.Errorf("start %s player: %w", effect, err)
		}
		return nil
	}

	p, ok := h.players[effect]
	if !ok {
		var err error
		p, err = h.engine.MakePlayer(patternFor(effect, h.store, true))
		if err != nil {
			return fmt.Errorf("make %s player: %w", effect, err)
		}
		h.players[effect] = p
	}
	if err := p.Start(offsetMs); err != nil {
		return fmt.Errorf("start %s player at %.0fms: %w", effect, offsetMs, err)
	}
	return nil
}

// stopPlayers stops one family, or every family for EffectNone.
func (h *engineHost) stopPlayers(effect EffectKind) {
	if effect == EffectNone {
		for kind := range h.players {
			h.stopFamily(kind)
		}
		for kind := range h.retired {
			h.stopRetired(kind)
		}
		return
	}
	h.stopFamily(effect)
	h.stopRetired(effect)
}

func (h *engineHost) stopFamily(effect EffectKind) {
	p, ok := h.players[effect]
	if !ok {
		return
	}
	if err := p.Stop(); err != nil {
		h.logger.Warn("player stop failed", "effect", effect, "error", err)
	}
	if !h.continuous() {
		delete(h.players, effect)
	}
}

func (h *engineHost) stopRetired(effect EffectKind) {
	for _, p := range h.retired[effect] {
		if err := p.Stop(); err != nil {
			h.logger.Warn("retired player stop failed", "effect", effect, "error", err)
		}
	}
	delete(h.retired, effect)
}

// dropPlayers stops and forgets every player.
func (h *engineHost) dropPlayers() {
	h.stopPlayers(EffectNone)
	clear(h.players)
}

// updateCurves installs new parameters and rebuilds the cached players.
// Players built from the old curves keep playing until their family is stopped
// or restarted. A player that cannot be rebuilt stays in service.
func (h *engineHost) updateCurves(p EffectParameters) {
	if err := h.store.Update(p); err != nil {
		h.logger.Error("curve update rejected; keeping previous curves", "error", err)
		return
	}
	for kind, old := range h.players {
		if !h.continuous() || h.engine == nil {
			h.retired[kind] = append(h.retired[kind], old)
			delete(h.players, kind)
			continue
		}
		fresh, err := h.engine.MakePlayer(patternFor(kind, h.store, true))
		if err != nil {
			h.logger.Warn("player rebuild failed; keeping stale player", "effect", kind, "error", err)
			continue
		}
		h.retired[kind] = append(h.retired[kind], old)
		h.players[kind] = fresh
	}
	h.logger.Info("curves updated", "params", p.String())
}

func (h *engineHost) schedule(token uint64, delay time.Duration) {
	h.cancelPending()
	h.pending = h.afterFunc(delay, func() {
		h.notify(PendingStartFired{Token: token})
	})
}

func (h *engineHost) cancelPending() {
	if h.pending == nil {
		return
	}
	h.pending.Stop()
	h.pending = nil
}

// Close tears the engine down.
func (h *engineHost) Close() error {
	h.cancelPending()
	h.dropPlayers()
	if h.engine == nil {
		return nil
	}
	err := h.engine.Close()
	h.engine = nil
	return err
}
