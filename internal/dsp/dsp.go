// Package dsp defines the numeric primitives shared by the modulation,
// pulse-shaping, and channel stages: the complex sample type and a small
// dependency-injected Dsp interface wrapping convolution and Gaussian random
// generation. Production code uses the gonum-backed implementation; tests
// swap in a deterministic stub (see design note in SPEC_FULL.md §4 "Dsp
// interface").
package dsp

// Sample is a complex sample: a pair of 32-bit floats (I, Q), matching
// spec.md §3's data model exactly (complex64 is Go's native I/Q-float32 pair).
type Sample = complex64

// Signal is an ordered sequence of complex samples at a known sample rate.
type Signal = []Sample

// Dsp abstracts the numeric operations the channel and pulse-shaping stages
// need, so tests can run against a deterministic stub instead of a seeded
// PRNG. This mirrors the source's ad hoc dependence on a numerical-computing
// engine (§9 design notes): the interface boundary replaces that ambient
// dependency with an explicit, swappable one.
type Dsp interface {
	// ConvSame convolves x with kernel h and returns a signal the same
	// length as x (kernel is implicitly centered).
	ConvSame(x, h Signal) Signal
	// RandNormal returns a sample from a standard real-valued normal
	// distribution (mean 0, variance 1).
	RandNormal() float64
	// RandUniform returns a sample from the uniform distribution on [0, 1).
	RandUniform() float64
}

// ConvSame is a pure convolution helper shared by every Dsp implementation:
// full linear convolution of x and h, truncated/centered to len(x) samples,
// so pulse-shaping and matched filtering can reuse one code path regardless
// of which Dsp supplies the randomness.
func ConvSame(x, h Signal) Signal {
	if len(h) == 0 || len(x) == 0 {
		out := make(Signal, len(x))
		copy(out, x)
		return out
	}
	full := make(Signal, len(x)+len(h)-1)
	for i, xv := range x {
		if xv == 0 {
			continue
		}
		for j, hv := range h {
			full[i+j] += xv * hv
		}
	}
	// Center the same-length window: full conv has len(h)-1 extra samples,
	// split roughly evenly on each side.
	offset := (len(h) - 1) / 2
	out := make(Signal, len(x))
	for i := range out {
		srcIdx := i + offset
		if srcIdx < len(full) {
			out[i] = full[srcIdx]
		}
	}
	return out
}
