// Package taper implements the pure bidirectional numeric mappings
// between MIDI integer space and normalized [0,1] float parameters
// (§4.5). The curve set is closed and performance-sensitive, so — per
// Design Notes §9 — this uses a tagged enum with a small dispatch table
// rather than per-curve interfaces/polymorphism.
package taper

import "math"

// Curve identifies one of the four fixed taper shapes.
type Curve int

const (
	Linear Curve = iota
	Logarithmic
	AudioTaper
	SCurve
)

func (c Curve) String() string {
	switch c {
	case Linear:
		return "linear"
	case Logarithmic:
		return "logarithmic"
	case AudioTaper:
		return "audio"
	case SCurve:
		return "s_curve"
	default:
		return "unknown"
	}
}

// Tolerance is the default float-compare slack: one 14-bit LSB
// (1/16384), used by the sync engine's echo suppression and by these
// round-trip tests (§4.5, §8).
const Tolerance = 1.0 / 16384.0

// forward maps x in [0,1] to f(x) in [0,1] for the given curve.
func forward(c Curve, x float64) float64 {
	switch c {
	case Linear:
		return x
	case Logarithmic:
		return math.Log2(1 + x)
	case AudioTaper:
		return math.Pow(x, 2.5)
	case SCurve:
		return 0.5 - 0.5*math.Cos(math.Pi*x)
	default:
		return x
	}
}

// inverse maps y in [0,1] back to f⁻¹(y) in [0,1] for the given curve.
func inverse(c Curve, y float64) float64 {
	switch c {
	case Linear:
		return y
	case Logarithmic:
		return math.Pow(2, y) - 1
	case AudioTaper:
		return math.Pow(y, 1.0/2.5)
	case SCurve:
		return math.Acos(1-2*y) / math.Pi
	default:
		return y
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Window holds the [min_norm, max_norm] windowing and invert settings a
// mapping record carries alongside its Curve (§3 "Mapping record").
type Window struct {
	Min    float64
	Max    float64
	Invert bool
}

// ForwardMIDIToUCP runs the full MIDI→UCP pipeline (§4.5): normalize the
// integer, optionally invert, apply the curve, then map into the
// window, clamped to [0,1].
func ForwardMIDIToUCP(curve Curve, w Window, midiInt, maxInt int) float64 {
	u := float64(midiInt) / float64(maxInt)
	if w.Invert {
		u = 1 - u
	}
	v := forward(curve, clamp01(u))
	out := w.Min + v*(w.Max-w.Min)
	return clamp01(out)
}

// ReverseUCPToMIDI runs the full UCP→MIDI pipeline (§4.5): undo the
// window, apply the curve's inverse, optionally invert, and scale to an
// integer of the given width. Division by zero (Max == Min) yields the
// low-endpoint integer without signaling, per spec.md §4.5.
func ReverseUCPToMIDI(curve Curve, w Window, in float64, maxInt int) int {
	var v float64
	if w.Max == w.Min {
		v = 0
	} else {
		v = clamp01((in - w.Min) / (w.Max - w.Min))
	}

	u := inverse(curve, v)
	if w.Invert {
		u = 1 - u
	}

	rounded := math.Round(clamp01(u) * float64(maxInt))
	return int(rounded)
}

// Equal reports whether two normalized values are within Tolerance of
// each other — the comparison the sync engine's echo suppression uses
// (§4.5, §4.9).
func Equal(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= Tolerance
}
