package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep"
)

// ============================================================================
// curvePlayer: the output adapter shared by local backends
// ============================================================================
//
// A curvePlayer renders a Pattern into actuator levels in [0,1] and pushes them
// into a levelSink (a rumble motor, a simulated device).
//
//   - Discrete targets: the curve is trimmed to the start offset, quantized into
//     a Waveform and stepped through with timers.
//   - Continuous targets: the pattern is built as beep streamers (curve + bed
//     mixed, accent sequenced in front) and sampled at the control rate.
//     Seeking repositions the streamers in place.
// ============================================================================

// levelSink receives actuator intensity in [0,1].
type levelSink interface {
	SetLevel(level float64) error
}

var errPlayerNotStarted = errors.New("player not started")

type curvePlayer struct {
	pattern    Pattern
	continuous bool
	rate       beep.SampleRate
	sink       levelSink
	logger     *slog.Logger

	mu     sync.Mutex
	main   *curveStreamer
	bed    *curveStreamer
	src    beep.Streamer
	cancel context.CancelFunc
	done   chan struct{}
}

func newCurvePlayer(p Pattern, continuous bool, controlHz int, sink levelSink, logger *slog.Logger) *curvePlayer {
	if controlHz <= 0 {
		controlHz = defaultControlHz
	}
	return &curvePlayer{
		pattern:    p,
		continuous: continuous,
		rate:       beep.SampleRate(controlHz),
		sink:       sink,
		logger:     logger,
	}
}

// Start begins playback at atOffsetMs into the pattern, restarting if already playing.
func (p *curvePlayer) Start(atOffsetMs float64) error {
	p.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	if !p.continuous {
		wf := Quantize(p.pattern.Curve.TrimFrom(atOffsetMs))
		go p.runSteps(ctx, wf, done)
		return nil
	}

	p.main = newCurveStreamer(p.pattern.Curve, p.rate)
	if err := p.main.Seek(p.rate.N(msDuration(atOffsetMs))); err != nil {
		cancel()
		close(done)
		return fmt.Errorf("seek curve: %w", err)
	}
	var src beep.Streamer = p.main

	p.bed = nil
	if p.pattern.Bed != nil {
		p.bed = newCurveStreamer(*p.pattern.Bed, p.rate)
		_ = p.bed.Seek(p.rate.N(msDuration(atOffsetMs)))
		src = beep.Mix(p.main, p.bed)
	}
	if p.pattern.Accent && atOffsetMs <= 0 && p.main.Position() < p.main.Len() {
		src = beep.Seq(newCurveStreamer(accentCurve(), p.rate), src)
	}
	p.src = src

	go p.runStream(ctx, done)
	return nil
}

// Seek repositions a playing pattern. Discrete playback restarts from offsetMs.
func (p *curvePlayer) Seek(offsetMs float64) error {
	if !p.continuous {
		return p.Start(offsetMs)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.main == nil {
		return errPlayerNotStarted
	}
	pos := p.rate.N(msDuration(offsetMs))
	if err := p.main.Seek(pos); err != nil {
		return fmt.Errorf("seek curve: %w", err)
	}
	if p.bed != nil {
		_ = p.bed.Seek(pos)
	}
	return nil
}

// Stop halts playback and silences the sink.
func (p *curvePlayer) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return p.sink.SetLevel(0)
}

// Playing reports whether a pump goroutine is running.
func (p *curvePlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *curvePlayer) runSteps(ctx context.Context, wf Waveform, done chan struct{}) {
	defer close(done)

	for i, hold := range wf.TimingsMs {
		level := float64(wf.Amplitudes[i]) / deviceAmplitudeMax
		if err := p.sink.SetLevel(level); err != nil {
			p.logger.Warn("player step failed", "error", err, "step", i)
			return
		}
		t := time.NewTimer(time.Duration(hold) * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
	_ = p.sink.SetLevel(0)
}

func (p *curvePlayer) runStream(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.rate.D(1))
	defer ticker.Stop()

	buf := make([][2]float64, 1)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		n, ok := p.src.Stream(buf)
		finished := !ok || n == 0 || p.drainedLocked()
		p.mu.Unlock()

		if finished {
			_ = p.sink.SetLevel(0)
			return
		}
		if err := p.sink.SetLevel(clamp01(buf[0][0])); err != nil {
			p.logger.Warn("player level update failed", "error", err)
			return
		}
	}
}

// drainedLocked reports whether every layer has reached its end. Must hold p.mu.
func (p *curvePlayer) drainedLocked() bool {
	if p.main == nil || p.main.Position() < p.main.Len() {
		return false
	}
	return p.bed == nil || p.bed.Position() >= p.bed.Len()
}

// ============================================================================
// curveStreamer: a Curve as a beep.StreamSeeker
// ============================================================================

// curveStreamer samples a Curve at a fixed control rate. Both channels carry
// the same level.
type curveStreamer struct {
	curve Curve
	rate  beep.SampleRate
	pos   int
	n     int
}

func newCurveStreamer(c Curve, rate beep.SampleRate) *curveStreamer {
	return &curveStreamer{
		curve: c,
		rate:  rate,
		n:     rate.N(msDuration(c.DurationMs)),
	}
}

func (s *curveStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.pos >= s.n {
		return 0, false
	}
	for i := range samples {
		if s.pos >= s.n {
			return i, true
		}
		ms := float64(s.rate.D(s.pos)) / float64(time.Millisecond)
		a := s.curve.AmplitudeAt(ms)
		samples[i][0] = a
		samples[i][1] = a
		s.pos++
	}
	return len(samples), true
}

func (s *curveStreamer) Err() error    { return nil }
func (s *curveStreamer) Len() int      { return s.n }
func (s *curveStreamer) Position() int { return s.pos }

func (s *curveStreamer) Seek(p int) error {
	if p < 0 {
		return fmt.Errorf("seek position %d out of range [0, %d]", p, s.n)
	}
	if p > s.n {
		p = s.n
	}
	s.pos = p
	return nil
}

func msDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
