package main

import (
	"errors"
	"math"
	"testing"
)

func TestEffectParameters_DefaultsAreValid(t *testing.T) {
	p := DefaultEffectParameters()
	if err := p.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if got := p.DecaySampleCount(); got != 80 {
		t.Fatalf("expected 80 samples, got %d", got)
	}
	if got := p.DecayDurationMs(); got != 4000 {
		t.Fatalf("expected 4000ms, got %v", got)
	}
}

func TestEffectParameters_ValidateRejects(t *testing.T) {
	base := DefaultEffectParameters()
	cases := map[string]func(p *EffectParameters){
		"zero step":            func(p *EffectParameters) { p.TimeStepMs = 0 },
		"zero duration":        func(p *EffectParameters) { p.ReleaseDurationMs = 0 },
		"duration below step":  func(p *EffectParameters) { p.ReleaseDurationMs = 20 },
		"zero revolutions":     func(p *EffectParameters) { p.Revolutions = 0 },
		"negative revolutions": func(p *EffectParameters) { p.Revolutions = -1 },
		"nan revolutions":      func(p *EffectParameters) { p.Revolutions = math.NaN() },
		"inf revolutions":      func(p *EffectParameters) { p.Revolutions = math.Inf(1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := base
			mutate(&p)
			err := p.Validate()
			if !errors.Is(err, ErrInvalidParameter) {
				t.Fatalf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}

func TestEffectParameters_PartialStepIsDropped(t *testing.T) {
	p := EffectParameters{ReleaseDurationMs: 1020, Revolutions: 1, TimeStepMs: 50}
	if got := p.DecaySampleCount(); got != 20 {
		t.Fatalf("expected 20 samples, got %d", got)
	}
	if got := p.DecayDurationMs(); got != 1000 {
		t.Fatalf("expected 1000ms, got %v", got)
	}
}
