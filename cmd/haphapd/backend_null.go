package main

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// NullBackend simulates a haptic device. It is used when no hardware is
// available and by the tests; the reported capabilities come from config.
type NullBackend struct {
	caps      Capabilities
	controlHz int
	logger    *slog.Logger

	// FailStart makes every engine start fail.
	FailStart bool

	mu      sync.Mutex
	engines []*nullEngine
}

func NewNullBackend(caps Capabilities, controlHz int, logger *slog.Logger) *NullBackend {
	return &NullBackend{caps: caps, controlHz: controlHz, logger: logger}
}

func (b *NullBackend) Name() string { return "null" }

func (b *NullBackend) Probe() Capabilities { return b.caps }

func (b *NullBackend) CreateEngine(cb EngineCallbacks) (Engine, error) {
	if !b.caps.SupportsHaptics {
		return nil, ErrNotSupported
	}
	e := &nullEngine{backend: b, cb: cb}
	b.mu.Lock()
	b.engines = append(b.engines, e)
	b.mu.Unlock()
	return e, nil
}

// Engine returns the most recently created engine, or nil.
func (b *NullBackend) Engine() *nullEngine {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.engines) == 0 {
		return nil
	}
	return b.engines[len(b.engines)-1]
}

func (b *NullBackend) failStart() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.FailStart
}

// SetFailStart toggles start failures at runtime.
func (b *NullBackend) SetFailStart(fail bool) {
	b.mu.Lock()
	b.FailStart = fail
	b.mu.Unlock()
}

var errNullEngineStopped = errors.New("null engine not running")

// nullEngine records what it was asked to do. It is its own level sink.
type nullEngine struct {
	backend *NullBackend
	cb      EngineCallbacks

	mu       sync.Mutex
	running  bool
	starts   int
	level    float64
	peak     float64
	patterns [][]byte
	closed   bool
}

func (e *nullEngine) Capabilities() Capabilities { return e.backend.caps }

func (e *nullEngine) Start() error {
	if e.backend.failStart() {
		return fmt.Errorf("%w: simulated start failure", ErrEngineUnavailable)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("%w: engine closed", ErrEngineUnavailable)
	}
	e.running = true
	e.starts++
	return nil
}

func (e *nullEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	e.level = 0
	return nil
}

func (e *nullEngine) MakePlayer(p Pattern) (Player, error) {
	if p.Curve.Empty() {
		return nil, invalidParameter("empty %s curve", p.Curve.Kind)
	}
	return newCurvePlayer(p, e.backend.caps.SupportsContinuousCurves, e.backend.controlHz, e, e.backend.logger), nil
}

func (e *nullEngine) PlayPattern(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return errNullEngineStopped
	}
	e.patterns = append(e.patterns, append([]byte(nil), data...))
	return nil
}

func (e *nullEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	e.closed = true
	return nil
}

// SetLevel implements levelSink.
func (e *nullEngine) SetLevel(level float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running && level > 0 {
		return errNullEngineStopped
	}
	e.level = level
	if level > e.peak {
		e.peak = level
	}
	return nil
}

// SimulateStop stops the engine as if the system did it.
func (e *nullEngine) SimulateStop(reason StopReason) {
	e.mu.Lock()
	e.running = false
	e.level = 0
	e.mu.Unlock()
	e.cb.externalStop(reason)
}

// SimulateReset asks the session to restart the engine.
func (e *nullEngine) SimulateReset() {
	e.cb.resetRequested()
}

func (e *nullEngine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *nullEngine) Starts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

func (e *nullEngine) Peak() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peak
}

func (e *nullEngine) Patterns() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]byte(nil), e.patterns...)
}
