package main

// Linux force-feedback event types and codes (from <linux/input.h>)
const (
	EV_FF = 0x15

	FF_RUMBLE = 0x50
	FF_GAIN   = 0x60
	FF_MAX    = 0x7f

	ffEffectSize  = 48 // sizeof(struct ff_effect) on 64-bit
	ffUnionOffset = 16 // offset of the effect union inside struct ff_effect
)

// Effect parameter defaults
const (
	defaultReleaseDurationMs = 4000
	defaultRevolutions       = 4.0
	defaultTimeStepMs        = 50
)

// Escalation ("ramp-up") tap sequence.
//
// The amplitude floor and the minimum inter-tap delay are tuned by feel and
// have drifted between revisions; treat them as knobs, not contracts.
const (
	escalationEventCount     = 60
	escalationRampWindow     = 60
	escalationBaseSpreadMs   = 70.0
	escalationMinDelayMs     = 25.0
	escalationAmplitudeSpan  = 100.0
	escalationAmplitudeFloor = 28.0
	deviceAmplitudeMax       = 255.0
)

// Sustain bed played under the escalation taps on continuous targets.
const (
	sustainIntensity      = 0.5
	sustainControlStart   = 0.2
	sustainControlEnd     = 1.0
	sustainRampDurationMs = 4000
	sustainHoldMs         = 30000
)

// Accent transient played at the start of a release on continuous targets.
const (
	accentIntensity  = 1.0
	accentDurationMs = 30
)

// Playback and transport defaults
const (
	defaultStartDelayMS     = 50   // deferred start after a play request (ms)
	defaultControlHz        = 100  // continuous player control rate (Hz)
	defaultIPCReplyTimeout  = 2000 // how long IPC waits for the session to answer (ms)
	defaultRemoteTimeoutMS  = 500  // remote actuator response timeout (ms)
	defaultEvdevGain        = 1.0
	evdevMaxLevelHoldMs     = 1000 // upper bound for a single rumble upload
	evdevMagnitudeMax       = 0xFFFF
	evdevWeakMagnitudeRatio = 0.5
)
