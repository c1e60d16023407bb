package main

import "time"

// StateBroadcast is a reducer-emitted notification for state observers.
// The daemon forwards broadcasts to the state websocket; they never feed back
// into the reducer.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastEngineStateChanged is emitted whenever the engine state changes.
type BroadcastEngineStateChanged struct {
	From   EngineState
	To     EngineState
	Reason string
	At     time.Time
}

// BroadcastPlaybackStarted is emitted when a player began output.
type BroadcastPlaybackStarted struct {
	Effect   EffectKind
	OffsetMs float64
	At       time.Time
}

// BroadcastPlaybackStopped is emitted when active output was halted.
type BroadcastPlaybackStopped struct {
	Effect EffectKind
	At     time.Time
}

// BroadcastSettingsChanged is emitted after a successful settings update.
type BroadcastSettingsChanged struct {
	Params EffectParameters
	At     time.Time
}

func (BroadcastEngineStateChanged) broadcastMarker() {}
func (BroadcastPlaybackStarted) broadcastMarker()    {}
func (BroadcastPlaybackStopped) broadcastMarker()    {}
func (BroadcastSettingsChanged) broadcastMarker()    {}
