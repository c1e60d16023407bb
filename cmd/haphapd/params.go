package main

import (
	"fmt"
	"math"
)

// EffectParameters is an immutable snapshot of the tunable effect settings.
// A settings update produces a new value; nothing mutates one in place.
type EffectParameters struct {
	ReleaseDurationMs   uint32  `json:"release_duration_ms" yaml:"release_duration_ms"`
	Revolutions         float64 `json:"revolutions" yaml:"revolutions"`
	UseExponentialCurve bool    `json:"use_exponential_curve" yaml:"use_exponential_curve"`
	TimeStepMs          uint32  `json:"time_step_ms" yaml:"time_step_ms"`
}

// DefaultEffectParameters returns the reference release settings.
func DefaultEffectParameters() EffectParameters {
	return EffectParameters{
		ReleaseDurationMs:   defaultReleaseDurationMs,
		Revolutions:         defaultRevolutions,
		UseExponentialCurve: false,
		TimeStepMs:          defaultTimeStepMs,
	}
}

// Validate checks the parameter invariants. Errors wrap ErrInvalidParameter.
func (p EffectParameters) Validate() error {
	if p.TimeStepMs == 0 {
		return invalidParameter("time_step_ms must be > 0")
	}
	if p.ReleaseDurationMs == 0 {
		return invalidParameter("release_duration_ms must be > 0")
	}
	if p.ReleaseDurationMs < p.TimeStepMs {
		return invalidParameter("release_duration_ms (%d) must be >= time_step_ms (%d)", p.ReleaseDurationMs, p.TimeStepMs)
	}
	if math.IsNaN(p.Revolutions) || math.IsInf(p.Revolutions, 0) || p.Revolutions <= 0 {
		return invalidParameter("revolutions must be a finite number > 0")
	}
	return nil
}

// DecaySampleCount is the number of samples in the release curve.
func (p EffectParameters) DecaySampleCount() int {
	if p.TimeStepMs == 0 {
		return 0
	}
	return int(p.ReleaseDurationMs / p.TimeStepMs)
}

// DecayDurationMs is the total release curve length (whole time steps only).
func (p EffectParameters) DecayDurationMs() float64 {
	return float64(p.DecaySampleCount()) * float64(p.TimeStepMs)
}

func (p EffectParameters) String() string {
	return fmt.Sprintf("release=%dms revolutions=%.3f exponential=%v step=%dms",
		p.ReleaseDurationMs, p.Revolutions, p.UseExponentialCurve, p.TimeStepMs)
}
