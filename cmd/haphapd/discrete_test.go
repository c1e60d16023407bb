package main

import "testing"

func TestQuantize_Decay(t *testing.T) {
	c := GenerateDecay(DefaultEffectParameters())
	w := Quantize(c)

	if w.Len() != 80 {
		t.Fatalf("expected 80 steps, got %d", w.Len())
	}
	if w.TotalMs() != 4000 {
		t.Fatalf("expected 4000ms, got %d", w.TotalMs())
	}
	if w.Amplitudes[0] != 255 {
		t.Fatalf("expected first amplitude 255, got %d", w.Amplitudes[0])
	}
	for i, hold := range w.TimingsMs {
		if hold != 50 {
			t.Fatalf("step %d: expected 50ms, got %d", i, hold)
		}
	}
}

func TestQuantize_EscalationKeepsTotal(t *testing.T) {
	c := GenerateEscalation()
	w := Quantize(c)

	if w.Len() != 60 {
		t.Fatalf("expected 60 steps, got %d", w.Len())
	}
	if w.TotalMs() != 3635 {
		t.Fatalf("expected rounding not to drift from 3635ms, got %d", w.TotalMs())
	}
	for i := 1; i < w.Len(); i += 2 {
		if w.Amplitudes[i] != 0 {
			t.Fatalf("step %d: expected silent gap, got %d", i, w.Amplitudes[i])
		}
	}
}

func TestQuantize_DropsZeroLengthSteps(t *testing.T) {
	c := Curve{
		Points: []CurvePoint{
			{OffsetMs: 0, Amplitude: 1},
			{OffsetMs: 0.2, Amplitude: 0.5},
			{OffsetMs: 10, Amplitude: 0},
		},
		DurationMs: 20,
	}
	w := Quantize(c)
	if w.Len() != 2 {
		t.Fatalf("expected 2 steps, got %d: %+v", w.Len(), w)
	}
	if w.Amplitudes[0] != 128 || w.TimingsMs[0] != 10 {
		t.Fatalf("expected 10ms at 128, got %dms at %d", w.TimingsMs[0], w.Amplitudes[0])
	}
}

func TestQuantize_Empty(t *testing.T) {
	if w := Quantize(Curve{}); w.Len() != 0 || w.TotalMs() != 0 {
		t.Fatalf("expected empty waveform, got %+v", w)
	}
}
