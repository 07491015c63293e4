// Package pulse implements the root-raised-cosine pulse-shaping filter and
// the symbol upsampling that feeds it (§4.5). The same tap set doubles as
// the receiver's matched filter: convolving twice with the RRC taps yields
// an overall raised-cosine response.
package pulse

import (
	"math"

	"github.com/kstaniek/linkemu/internal/dsp"
)

// DefaultRolloff and DefaultSpan are the emulator's default pulse-shaping
// parameters (§4.5).
const (
	DefaultRolloff = 0.35
	DefaultSpan    = 6 // symbols
)

// Taps computes the root-raised-cosine impulse response for roll-off beta
// and the given span (in symbols) and samples-per-symbol, evaluated at
// t = k/sps symbol periods for k centered on zero. The formula is the
// piecewise definition of spec.md §4.5 (singularities at t=0 and
// |t|=T/(4*beta) handled by their closed-form limits).
func Taps(beta float64, span int, sps int) []float64 {
	n := span*sps + 1
	taps := make([]float64, n)
	half := n / 2
	for k := 0; k < n; k++ {
		// t expressed in units of the symbol period T.
		t := float64(k-half) / float64(sps)
		taps[k] = rrcValue(t, beta)
	}
	return taps
}

// rrcValue evaluates the RRC impulse response at time t (in units of the
// symbol period T=1), for roll-off beta. T is normalized to 1 throughout;
// callers scale taps by 1/T externally if an absolute amplitude matters
// (the pipeline only needs the filter's shape since it is applied
// symmetrically at both ends).
func rrcValue(t, beta float64) float64 {
	const epsilon = 1e-8
	if beta == 0 {
		return sinc(t)
	}
	if math.Abs(t) < epsilon {
		return 1 + beta*(4/math.Pi-1)
	}
	quarterPeriod := 1 / (4 * beta)
	if math.Abs(math.Abs(t)-quarterPeriod) < epsilon {
		return (beta / math.Sqrt2) * ((1+2/math.Pi)*math.Sin(math.Pi/(4*beta)) + (1-2/math.Pi)*math.Cos(math.Pi/(4*beta)))
	}
	numerator := math.Sin(math.Pi*t*(1-beta)) + 4*beta*t*math.Cos(math.Pi*t*(1+beta))
	denominator := math.Pi * t * (1 - math.Pow(4*beta*t, 2))
	return numerator / denominator
}

func sinc(t float64) float64 {
	if t == 0 {
		return 1
	}
	x := math.Pi * t
	return math.Sin(x) / x
}

// Upsample inserts sps-1 zero samples between each symbol, the first step of
// transmit-side pulse shaping (§4.5).
func Upsample(symbols dsp.Signal, sps int) dsp.Signal {
	out := make(dsp.Signal, len(symbols)*sps)
	for i, s := range symbols {
		out[i*sps] = s
	}
	return out
}

// Shape upsamples symbols and convolves with the RRC taps, producing the
// transmitted baseband signal.
func Shape(symbols dsp.Signal, taps []float64, sps int, d dsp.Dsp) dsp.Signal {
	up := Upsample(symbols, sps)
	h := realTapsToSignal(taps)
	return d.ConvSame(up, h)
}

// MatchedFilter convolves a received signal with the same RRC taps used at
// the transmitter (square-root-raised-cosine on each end composes into an
// overall raised cosine), per §4.7 step 1.
func MatchedFilter(signal dsp.Signal, taps []float64, d dsp.Dsp) dsp.Signal {
	h := realTapsToSignal(taps)
	return d.ConvSame(signal, h)
}

func realTapsToSignal(taps []float64) dsp.Signal {
	out := make(dsp.Signal, len(taps))
	for i, v := range taps {
		out[i] = complex(float32(v), 0)
	}
	return out
}

// SamplesPerSymbol derives the integer upsampling ratio from sample and
// symbol rates (§4.5: samples_per_symbol = sample_rate / symbol_rate).
func SamplesPerSymbol(sampleRateHz, symbolRateHz float64) int {
	return int(math.Round(sampleRateHz / symbolRateHz))
}
