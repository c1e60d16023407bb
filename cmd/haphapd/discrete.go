package main

import "math"

// Waveform is the discrete rendition of a curve: each amplitude (0..255) is held
// for the matching number of milliseconds. This is the shape on/off vibration
// motors accept.
type Waveform struct {
	TimingsMs  []uint32 `json:"timings_ms"`
	Amplitudes []uint8  `json:"amplitudes"`
}

// Len returns the number of steps.
func (w Waveform) Len() int { return len(w.TimingsMs) }

// TotalMs is the waveform length.
func (w Waveform) TotalMs() uint64 {
	var total uint64
	for _, t := range w.TimingsMs {
		total += uint64(t)
	}
	return total
}

// Quantize downsamples a curve into a Waveform.
//
// Step boundaries are rounded from the cumulative offsets rather than per step,
// so rounding error never accumulates over a long curve. Zero-length steps are
// dropped.
func Quantize(c Curve) Waveform {
	var w Waveform
	for i, p := range c.Points {
		start := math.Round(p.OffsetMs)
		end := math.Round(c.DurationMs)
		if i+1 < len(c.Points) {
			end = math.Round(c.Points[i+1].OffsetMs)
		}
		hold := end - start
		if hold <= 0 {
			continue
		}
		w.TimingsMs = append(w.TimingsMs, uint32(hold))
		w.Amplitudes = append(w.Amplitudes, amplitudeByte(p.Amplitude))
	}
	return w
}

// amplitudeByte maps [0,1] to the 0..255 device range.
func amplitudeByte(a float64) uint8 {
	return uint8(math.Round(clamp01(a) * deviceAmplitudeMax))
}
