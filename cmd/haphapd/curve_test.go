package main

import (
	"math"
	"testing"
)

func interiorMaxima(c Curve) int {
	n := 0
	for i := 1; i+1 < len(c.Points); i++ {
		y := c.Points[i].Amplitude
		if y > c.Points[i-1].Amplitude && y > c.Points[i+1].Amplitude {
			n++
		}
	}
	return n
}

func TestGenerateDecay_SampleCountAndSpacing(t *testing.T) {
	p := DefaultEffectParameters()
	c := GenerateDecay(p)

	if len(c.Points) != 80 {
		t.Fatalf("expected 80 samples, got %d", len(c.Points))
	}
	for i, pt := range c.Points {
		if want := float64(i) * 50; pt.OffsetMs != want {
			t.Fatalf("sample %d: expected offset %v, got %v", i, want, pt.OffsetMs)
		}
		if pt.Amplitude < 0 || pt.Amplitude > 1 {
			t.Fatalf("sample %d: amplitude %v out of [0,1]", i, pt.Amplitude)
		}
	}
	if c.DurationMs != 4000 {
		t.Fatalf("expected duration 4000, got %v", c.DurationMs)
	}
}

func TestGenerateDecay_KnownValues(t *testing.T) {
	c := GenerateDecay(DefaultEffectParameters())
	if got := c.Points[0].Amplitude; math.Abs(got-1) > 1e-9 {
		t.Fatalf("expected first sample 1.0, got %v", got)
	}
	if got := c.Points[40].Amplitude; math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("expected sample 40 to be 0.5, got %v", got)
	}
}

func TestGenerateDecay_Falloff(t *testing.T) {
	for _, exp := range []bool{false, true} {
		p := DefaultEffectParameters()
		p.UseExponentialCurve = exp
		c := GenerateDecay(p)
		n := float64(len(c.Points))
		for i, pt := range c.Points {
			if limit := 1 - float64(i)/n; pt.Amplitude > limit+1e-12 {
				t.Fatalf("exponential=%v sample %d: amplitude %v above falloff %v", exp, i, pt.Amplitude, limit)
			}
		}
	}
}

func TestGenerateDecay_MoreRevolutionsMoreMaxima(t *testing.T) {
	want := map[float64]int{1: 1, 2: 2, 4: 4, 8: 8}
	prev := -1
	for _, rev := range []float64{1, 2, 4, 8} {
		p := DefaultEffectParameters()
		p.Revolutions = rev
		got := interiorMaxima(GenerateDecay(p))
		if got != want[rev] {
			t.Fatalf("revolutions %v: expected %d maxima, got %d", rev, want[rev], got)
		}
		if got <= prev {
			t.Fatalf("revolutions %v: expected more than %d maxima, got %d", rev, prev, got)
		}
		prev = got
	}
}

func TestGenerateDecay_ExponentialDiffersFromLinear(t *testing.T) {
	lin := DefaultEffectParameters()
	exp := lin
	exp.UseExponentialCurve = true

	a, b := GenerateDecay(lin), GenerateDecay(exp)
	if len(a.Points) != len(b.Points) {
		t.Fatalf("expected equal sample counts, got %d and %d", len(a.Points), len(b.Points))
	}
	same := true
	for i := range a.Points {
		if math.Abs(a.Points[i].Amplitude-b.Points[i].Amplitude) > 1e-9 {
			same = false
			break
		}
	}
	if same {
		t.Fatal("expected exponential phase to change the curve")
	}
}

func TestGenerateEscalation(t *testing.T) {
	c := GenerateEscalation()

	if len(c.Points) != 60 {
		t.Fatalf("expected 60 events, got %d", len(c.Points))
	}
	if !c.Stepped {
		t.Fatal("expected escalation to be stepped")
	}
	if math.Abs(c.DurationMs-3635) > 1e-9 {
		t.Fatalf("expected total 3635ms, got %v", c.DurationMs)
	}

	for i, pt := range c.Points {
		if i%2 == 1 && pt.Amplitude != 0 {
			t.Fatalf("event %d: expected silent gap, got %v", i, pt.Amplitude)
		}
		if i%2 == 0 && pt.Amplitude <= 0 {
			t.Fatalf("event %d: expected a tap, got %v", i, pt.Amplitude)
		}
	}

	for i := 1; i < len(c.Points); i++ {
		if c.HoldMs(i) >= c.HoldMs(i-1) {
			t.Fatalf("event %d: expected delay below %v, got %v", i, c.HoldMs(i-1), c.HoldMs(i))
		}
	}

	first, last := c.Points[0].Amplitude, c.Points[58].Amplitude
	if last <= first {
		t.Fatalf("expected taps to grow, first %v last %v", first, last)
	}
	if got := c.HoldMs(59); math.Abs(got-escalationMinDelayMs-escalationBaseSpreadMs/60) > 1e-9 {
		t.Fatalf("unexpected final delay %v", got)
	}
}

func TestGenerateEscalation_IgnoresParameters(t *testing.T) {
	p := DefaultEffectParameters()
	p.Revolutions = 9
	p.ReleaseDurationMs = 1000
	a := GenerateCurve(CurveEscalation, p)
	b := GenerateEscalation()
	if a.DurationMs != b.DurationMs || len(a.Points) != len(b.Points) {
		t.Fatal("expected escalation to be independent of effect parameters")
	}
}

func TestGenerateSustain(t *testing.T) {
	c := GenerateSustain(DefaultEffectParameters())
	if c.Empty() {
		t.Fatal("expected sustain points")
	}
	if got := c.Points[0].Amplitude; math.Abs(got-sustainIntensity*sustainControlStart) > 1e-9 {
		t.Fatalf("expected initial control %v, got %v", sustainIntensity*sustainControlStart, got)
	}
	lastPt := c.Points[len(c.Points)-1]
	if lastPt.OffsetMs != sustainRampDurationMs || lastPt.Amplitude != sustainIntensity {
		t.Fatalf("expected ramp to end at %dms with %v, got %+v", sustainRampDurationMs, sustainIntensity, lastPt)
	}
	if got := c.AmplitudeAt(sustainRampDurationMs + 10000); got != sustainIntensity {
		t.Fatalf("expected hold at %v, got %v", sustainIntensity, got)
	}
}

func TestReleaseOffsetMs(t *testing.T) {
	p := DefaultEffectParameters()

	if got := ReleaseOffsetMs(p, 1); got != 0 {
		t.Fatalf("power 1: expected offset 0, got %v", got)
	}
	if got := ReleaseOffsetMs(p, 0); got != 4000 {
		t.Fatalf("power 0: expected offset 4000, got %v", got)
	}
	if got := ReleaseOffsetMs(p, 0.5); got != 2000 {
		t.Fatalf("power 0.5: expected offset 2000, got %v", got)
	}

	prev := math.Inf(1)
	for power := 0.0; power <= 1.0001; power += 0.05 {
		got := ReleaseOffsetMs(p, power)
		if got > prev {
			t.Fatalf("power %v: offset %v grew from %v", power, got, prev)
		}
		prev = got
	}
}

func TestReleaseAtHalfPowerStartsAtSampleForty(t *testing.T) {
	p := EffectParameters{ReleaseDurationMs: 4000, Revolutions: 4, UseExponentialCurve: false, TimeStepMs: 50}
	c := GenerateDecay(p)
	if len(c.Points) != 80 {
		t.Fatalf("expected 80 samples, got %d", len(c.Points))
	}
	off := ReleaseOffsetMs(p, 0.5)
	if idx := c.IndexAt(off); idx != 40 {
		t.Fatalf("expected start index 40, got %d", idx)
	}
	trimmed := c.TrimFrom(off)
	if len(trimmed.Points) != 40 {
		t.Fatalf("expected 40 remaining samples, got %d", len(trimmed.Points))
	}
	if trimmed.Points[0].OffsetMs != 0 || trimmed.DurationMs != 2000 {
		t.Fatalf("expected rebased curve of 2000ms, got start %v duration %v", trimmed.Points[0].OffsetMs, trimmed.DurationMs)
	}
	if trimmed.Points[0].Amplitude != c.Points[40].Amplitude {
		t.Fatal("expected trimmed curve to start at sample 40")
	}
}

func TestCurve_TrimFromEnd(t *testing.T) {
	c := GenerateDecay(DefaultEffectParameters())
	if got := c.TrimFrom(c.DurationMs); !got.Empty() {
		t.Fatalf("expected empty curve, got %d points", len(got.Points))
	}
	if got := c.TrimFrom(0); len(got.Points) != len(c.Points) {
		t.Fatal("expected zero trim to keep every point")
	}
}

func TestCurve_AmplitudeAt(t *testing.T) {
	c := Curve{
		Points:     []CurvePoint{{OffsetMs: 0, Amplitude: 0}, {OffsetMs: 100, Amplitude: 1}},
		DurationMs: 200,
	}
	if got := c.AmplitudeAt(50); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("expected 0.5, got %v", got)
	}
	if got := c.AmplitudeAt(150); got != 1 {
		t.Fatalf("expected last point held, got %v", got)
	}
	if got := c.AmplitudeAt(200); got != 0 {
		t.Fatalf("expected 0 past the end, got %v", got)
	}

	c.Stepped = true
	if got := c.AmplitudeAt(50); got != 0 {
		t.Fatalf("expected stepped curve to hold 0, got %v", got)
	}
}
