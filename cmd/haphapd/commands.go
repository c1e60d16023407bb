package main

import (
	"fmt"
	"time"
)

// ==============================
// Commands (side effects)
// ==============================

// Command is a side effect requested by the reducer and executed by runEffect.
// Everything that touches the engine, its players or the start timer is a Command.
type Command interface {
	commandMarker()
	String() string
}

// StartOrigin records why an engine start was issued.
type StartOrigin string

const (
	StartForPrepare    StartOrigin = "prepare"
	StartForPlayback   StartOrigin = "playback"
	StartForPattern    StartOrigin = "pattern"
	StartForForeground StartOrigin = "foreground"
	StartForReset      StartOrigin = "reset"
)

// CmdProbeCapabilities runs the one-time capability probe.
type CmdProbeCapabilities struct{}

func (CmdProbeCapabilities) commandMarker() {}
func (CmdProbeCapabilities) String() string { return "CmdProbeCapabilities()" }

// CmdCreateEngine asks the backend for an engine handle.
type CmdCreateEngine struct{}

func (CmdCreateEngine) commandMarker() {}
func (CmdCreateEngine) String() string { return "CmdCreateEngine()" }

// CmdStartEngine creates the engine if needed and starts it. Then, if set, is
// reduced again once the engine is Ready.
type CmdStartEngine struct {
	Origin StartOrigin
	Reset  bool
	Then   Event
	Reply  chan<- Result
}

func (CmdStartEngine) commandMarker() {}
func (c CmdStartEngine) String() string {
	return fmt.Sprintf("CmdStartEngine(origin=%s, reset=%v, then=%T)", c.Origin, c.Reset, c.Then)
}

// CmdStopEngine stops the engine. Failures are logged only.
type CmdStopEngine struct{}

func (CmdStopEngine) commandMarker() {}
func (CmdStopEngine) String() string { return "CmdStopEngine()" }

// CmdStopPlayers stops the players of one family, or all of them for EffectNone.
type CmdStopPlayers struct {
	Effect EffectKind
}

func (CmdStopPlayers) commandMarker() {}
func (c CmdStopPlayers) String() string {
	return fmt.Sprintf("CmdStopPlayers(effect=%s)", c.Effect)
}

// CmdCancelPending cancels the deferred start timer.
type CmdCancelPending struct{}

func (CmdCancelPending) commandMarker() {}
func (CmdCancelPending) String() string { return "CmdCancelPending()" }

// CmdSchedulePlayback arms the single deferred start slot, replacing any previous timer.
type CmdSchedulePlayback struct {
	Token uint64
	Delay time.Duration
}

func (CmdSchedulePlayback) commandMarker() {}
func (c CmdSchedulePlayback) String() string {
	return fmt.Sprintf("CmdSchedulePlayback(token=%d, delay=%s)", c.Token, c.Delay)
}

// CmdStartPlayer starts an effect family at OffsetMs into its curve.
type CmdStartPlayer struct {
	Effect   EffectKind
	OffsetMs float64
}

func (CmdStartPlayer) commandMarker() {}
func (c CmdStartPlayer) String() string {
	return fmt.Sprintf("CmdStartPlayer(effect=%s, offset_ms=%.0f)", c.Effect, c.OffsetMs)
}

// CmdUpdateCurves installs new parameters in the curve store and rebuilds players.
type CmdUpdateCurves struct {
	Params EffectParameters
}

func (CmdUpdateCurves) commandMarker() {}
func (c CmdUpdateCurves) String() string {
	return fmt.Sprintf("CmdUpdateCurves(%s)", c.Params)
}

// CmdPlayPattern passes an opaque blob to the engine.
type CmdPlayPattern struct {
	Data  []byte
	Reply chan<- Result
}

func (CmdPlayPattern) commandMarker() {}
func (c CmdPlayPattern) String() string {
	return fmt.Sprintf("CmdPlayPattern(bytes=%d)", len(c.Data))
}

// CmdReply delivers a Result to a waiting requester.
type CmdReply struct {
	Reply  chan<- Result
	Result Result
}

func (CmdReply) commandMarker() {}
func (c CmdReply) String() string {
	return fmt.Sprintf("CmdReply(status=%s)", c.Result.Status)
}

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan<- StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }
