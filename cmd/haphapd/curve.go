package main

import (
	"fmt"
	"math"
	"sort"
)

// CurveKind identifies one of the precomputed curves.
type CurveKind int

const (
	CurveEscalation CurveKind = iota
	CurveDecay
	CurveSustain

	curveKindCount
)

func (k CurveKind) String() string {
	switch k {
	case CurveEscalation:
		return "escalation"
	case CurveDecay:
		return "decay"
	case CurveSustain:
		return "sustain"
	default:
		return fmt.Sprintf("curve(%d)", int(k))
	}
}

// CurvePoint is one control point. On discrete targets it is an amplitude step
// held until the next point; on continuous targets it is a control point that is
// interpolated linearly.
type CurvePoint struct {
	OffsetMs  float64 `json:"offset_ms"`
	Amplitude float64 `json:"amplitude"`
}

// Curve is an ordered amplitude-over-time description of one effect.
type Curve struct {
	Kind       CurveKind    `json:"-"`
	Points     []CurvePoint `json:"points"`
	DurationMs float64      `json:"duration_ms"`

	// Stepped curves hold each amplitude until the next point even when
	// rendered continuously (tap sequences).
	Stepped bool `json:"stepped,omitempty"`
}

// Empty reports whether the curve has nothing left to play.
func (c Curve) Empty() bool { return len(c.Points) == 0 }

// HoldMs returns how long point i lasts before the next one (or the end).
func (c Curve) HoldMs(i int) float64 {
	if i < 0 || i >= len(c.Points) {
		return 0
	}
	if i == len(c.Points)-1 {
		return c.DurationMs - c.Points[i].OffsetMs
	}
	return c.Points[i+1].OffsetMs - c.Points[i].OffsetMs
}

// IndexAt returns the index of the first point at or after offsetMs.
// It returns len(Points) if offsetMs is beyond the last point.
func (c Curve) IndexAt(offsetMs float64) int {
	return sort.Search(len(c.Points), func(i int) bool {
		return c.Points[i].OffsetMs >= offsetMs
	})
}

// TrimFrom drops every point before offsetMs and rebases the rest so the first
// kept point starts at zero. The receiver is not modified.
func (c Curve) TrimFrom(offsetMs float64) Curve {
	if offsetMs <= 0 {
		return c
	}
	idx := c.IndexAt(offsetMs)
	out := Curve{Kind: c.Kind, Stepped: c.Stepped}
	if idx >= len(c.Points) {
		return out
	}
	base := c.Points[idx].OffsetMs
	out.Points = make([]CurvePoint, 0, len(c.Points)-idx)
	for _, p := range c.Points[idx:] {
		out.Points = append(out.Points, CurvePoint{OffsetMs: p.OffsetMs - base, Amplitude: p.Amplitude})
	}
	out.DurationMs = c.DurationMs - base
	return out
}

// AmplitudeAt samples the curve as a continuous control curve (linear
// interpolation between control points, zero outside the curve).
func (c Curve) AmplitudeAt(ms float64) float64 {
	n := len(c.Points)
	if n == 0 || ms < 0 || ms >= c.DurationMs {
		return 0
	}
	i := sort.Search(n, func(i int) bool { return c.Points[i].OffsetMs > ms }) - 1
	if i < 0 {
		return 0
	}
	p := c.Points[i]
	if i == n-1 || c.Stepped {
		return p.Amplitude
	}
	q := c.Points[i+1]
	span := q.OffsetMs - p.OffsetMs
	if span <= 0 {
		return q.Amplitude
	}
	t := (ms - p.OffsetMs) / span
	return p.Amplitude + (q.Amplitude-p.Amplitude)*t
}

// ==============================
// Generators (pure)
// ==============================

// GenerateCurve builds the curve of the given kind for p.
func GenerateCurve(kind CurveKind, p EffectParameters) Curve {
	switch kind {
	case CurveEscalation:
		return GenerateEscalation()
	case CurveDecay:
		return GenerateDecay(p)
	case CurveSustain:
		return GenerateSustain(p)
	default:
		return Curve{Kind: kind}
	}
}

// GenerateEscalation builds the accelerating double-tap sequence.
// It does not depend on EffectParameters.
func GenerateEscalation() Curve {
	points := make([]CurvePoint, escalationEventCount)
	offset := 0.0
	for i := 0; i < escalationEventCount; i++ {
		amp := 0.0
		if i%2 == 0 {
			ramp := math.Min(1, float64(i)/escalationRampWindow)
			amp = (ramp*escalationAmplitudeSpan + escalationAmplitudeFloor) / deviceAmplitudeMax
		}
		points[i] = CurvePoint{OffsetMs: offset, Amplitude: amp}
		offset += escalationDelayMs(i)
	}
	return Curve{Kind: CurveEscalation, Points: points, DurationMs: offset, Stepped: true}
}

// escalationDelayMs is the gap after tap i; it shrinks as i grows.
func escalationDelayMs(i int) float64 {
	return escalationBaseSpreadMs*(1-float64(i)/escalationEventCount) + escalationMinDelayMs
}

// GenerateDecay builds the release curve: a cosine lobe pattern driven by either
// a linear or a smoothed phase, under a linear falloff.
func GenerateDecay(p EffectParameters) Curve {
	n := p.DecaySampleCount()
	if n == 0 {
		return Curve{Kind: CurveDecay}
	}
	step := float64(p.TimeStepMs)
	dt := step / 1000.0

	points := make([]CurvePoint, n)
	value := 1.0
	for i := 0; i < n; i++ {
		value += (0 - value) * dt

		pct := float64(i) / float64(n)
		phase := pct
		if p.UseExponentialCurve {
			phase = value
		}
		x := phase * 2 * math.Pi * p.Revolutions
		y := (math.Cos(x)*0.5 + 0.5) * (1 - pct)

		points[i] = CurvePoint{OffsetMs: float64(i) * step, Amplitude: clamp01(y)}
	}
	return Curve{Kind: CurveDecay, Points: points, DurationMs: float64(n) * step}
}

// GenerateSustain builds the continuous bed under the ramp-up: intensity control
// rises linearly over the ramp, then holds.
func GenerateSustain(p EffectParameters) Curve {
	step := float64(p.TimeStepMs)
	if step <= 0 {
		step = defaultTimeStepMs
	}
	ramp := float64(sustainRampDurationMs)

	var points []CurvePoint
	for t := 0.0; t < ramp; t += step {
		control := sustainControlStart + (sustainControlEnd-sustainControlStart)*(t/ramp)
		points = append(points, CurvePoint{OffsetMs: t, Amplitude: sustainIntensity * control})
	}
	points = append(points, CurvePoint{OffsetMs: ramp, Amplitude: sustainIntensity * sustainControlEnd})

	return Curve{Kind: CurveSustain, Points: points, DurationMs: ramp + sustainHoldMs}
}

// accentCurve is the short transient that opens a release on continuous targets.
func accentCurve() Curve {
	return Curve{
		Kind:       CurveDecay,
		Points:     []CurvePoint{{OffsetMs: 0, Amplitude: accentIntensity}},
		DurationMs: accentDurationMs,
		Stepped:    true,
	}
}

// ReleaseOffsetMs converts a power value into the release prefix skip:
// power 1 plays the whole curve, power 0 skips all of it.
func ReleaseOffsetMs(p EffectParameters, power float64) float64 {
	power = clamp01(power)
	return math.Round((1 - power) * p.DecayDurationMs())
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
