// Package channel implements the emulator's impairment model: optional
// Rayleigh/Rician fading via Jakes' sum-of-sinusoids, then an optional
// exponential-power-delay-profile multipath tap set, then AWGN with a
// configurable SNR (§4.6).
package channel

import (
	"math"
	"math/cmplx"

	"github.com/kstaniek/linkemu/internal/dsp"
)

// Model identifies the fading model applied before AWGN.
type Model int

const (
	AWGNOnly Model = iota
	Rayleigh
	Rician
)

// String implements fmt.Stringer.
func (m Model) String() string {
	switch m {
	case AWGNOnly:
		return "awgn"
	case Rayleigh:
		return "rayleigh"
	case Rician:
		return "rician"
	default:
		return "unknown"
	}
}

// ParseModel parses the --channel CLI values (§6).
func ParseModel(s string) (Model, error) {
	switch s {
	case "awgn":
		return AWGNOnly, nil
	case "rayleigh":
		return Rayleigh, nil
	case "rician":
		return Rician, nil
	default:
		return 0, &invalidModelError{s}
	}
}

type invalidModelError struct{ got string }

func (e *invalidModelError) Error() string { return "channel: unknown model " + e.got }

// jakesOscillators is N in Jakes' sum-of-sinusoids (§4.6 step 1).
const jakesOscillators = 16

// Params bundles the channel's configurable parameters (spec.md §3).
type Params struct {
	SNRDb        float64
	Model        Model
	DopplerHz    float64
	RicianK      float64
	DelaySpreadS float64
	SampleRateHz float64
}

// Channel applies impairments to a transmitted signal. It owns the PRNG (via
// its injected Dsp) and regenerates fading/multipath state per call to
// Apply, matching spec.md §3's "fading sequence... regenerated per packet"
// lifecycle rule.
type Channel struct {
	params Params
	d      dsp.Dsp
}

// New constructs a Channel from explicit parameters and a Dsp implementation
// (deterministic tests inject dsp.StubDsp; production uses
// dsp.NewGonumDsp(seed), see NewSeeded).
func New(params Params, d dsp.Dsp) *Channel {
	return &Channel{params: params, d: d}
}

// NewSeeded is the production constructor: it owns a gonum-backed PRNG
// seeded as requested, so that two runs with the same seed reproduce the
// same impairment sequence (§4.6 "deterministic testing requires seeding").
func NewSeeded(params Params, seed uint64) *Channel {
	return New(params, dsp.NewGonumDsp(seed))
}

// Apply runs the impairment pipeline: fading (if configured), multipath (if
// delay spread is set), then AWGN at the configured SNR.
func (c *Channel) Apply(signal dsp.Signal) dsp.Signal {
	out := signal
	if c.params.Model == Rayleigh || c.params.Model == Rician {
		out = c.applyFading(out)
	}
	if c.params.DelaySpreadS > 0 {
		out = c.applyMultipath(out)
	}
	out = c.applyAWGN(out)
	return out
}

// applyFading multiplies each sample by a complex fading coefficient drawn
// from Jakes' sum-of-sinusoids model, blended with a deterministic
// line-of-sight term for Rician fading.
func (c *Channel) applyFading(signal dsp.Signal) dsp.Signal {
	out := make(dsp.Signal, len(signal))
	phases := make([]float64, jakesOscillators)
	for n := range phases {
		phases[n] = 2 * math.Pi * c.d.RandUniform()
	}
	sampleRate := c.params.SampleRateHz
	for i, s := range signal {
		t := float64(i) / sampleRate
		var sum complex128
		for n := 0; n < jakesOscillators; n++ {
			fn := c.params.DopplerHz * math.Cos(2*math.Pi*float64(n)/jakesOscillators)
			sum += cmplx.Exp(complex(0, 2*math.Pi*fn*t+phases[n]))
		}
		rayleigh := sum / complex(math.Sqrt(jakesOscillators), 0)
		var h complex128
		if c.params.Model == Rician {
			k := c.params.RicianK
			losAmp := math.Sqrt(k / (k + 1))
			rayAmp := math.Sqrt(1 / (k + 1))
			h = complex(losAmp, 0) + complex(rayAmp, 0)*rayleigh
		} else {
			h = rayleigh
		}
		out[i] = dsp.Sample(complex128(s) * h)
	}
	return out
}

// applyMultipath convolves the signal with an exponential power-delay
// profile tap set (§4.6 step 2), causal (no centering, since physical
// multipath only adds delayed echoes, never advances the signal).
func (c *Channel) applyMultipath(signal dsp.Signal) dsp.Signal {
	taps := c.multipathTaps()
	full := make(dsp.Signal, len(signal)+len(taps)-1)
	for i, s := range signal {
		if s == 0 {
			continue
		}
		for j, h := range taps {
			full[i+j] += s * h
		}
	}
	return full[:len(signal)]
}

// multipathTaps builds h[k] = sqrt(p[k]) * n[k] for k in [0, 5*tauRms*Fs],
// p[k] proportional to exp(-k/(tauRms*Fs)) and normalized to sum 1.
func (c *Channel) multipathTaps() dsp.Signal {
	tauRms := c.params.DelaySpreadS
	fs := c.params.SampleRateHz
	maxK := int(math.Ceil(5 * tauRms * fs))
	if maxK < 1 {
		maxK = 1
	}
	decay := tauRms * fs
	raw := make([]float64, maxK+1)
	var total float64
	for k := 0; k <= maxK; k++ {
		raw[k] = math.Exp(-float64(k) / decay)
		total += raw[k]
	}
	taps := make(dsp.Signal, maxK+1)
	for k := range taps {
		p := raw[k] / total
		amp := math.Sqrt(p)
		n := complex(c.d.RandNormal(), c.d.RandNormal()) / complex(math.Sqrt2, 0)
		taps[k] = dsp.Sample(complex(amp, 0) * n)
	}
	return taps
}

// applyAWGN adds i.i.d. complex Gaussian noise sized to the configured SNR
// (§4.6 step 3). Signal power is measured directly from the input samples.
func (c *Channel) applyAWGN(signal dsp.Signal) dsp.Signal {
	ps := SignalPower(signal)
	pn := ps / math.Pow(10, c.params.SNRDb/10)
	sigma := math.Sqrt(pn / 2)
	out := make(dsp.Signal, len(signal))
	for i, s := range signal {
		noise := complex(sigma*c.d.RandNormal(), sigma*c.d.RandNormal())
		out[i] = dsp.Sample(complex128(s) + noise)
	}
	return out
}

// ApplyBits is the byte-mode channel shortcut (§4.7, §9): rather than
// modulating onto a carrier, it flips each bit of data independently with
// probability ber (the pipeline passes the BER it derives from the
// configured SNR).
// This is a fast approximation used when emulating a target BER directly,
// without the sample-level modulation/demodulation chain.
func (c *Channel) ApplyBits(data []byte, ber float64) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	for i := range out {
		for bit := 0; bit < 8; bit++ {
			if c.d.RandUniform() < ber {
				out[i] ^= 1 << uint(bit)
			}
		}
	}
	return out
}

// SignalPower returns the mean |x|^2 across a signal's samples.
func SignalPower(signal dsp.Signal) float64 {
	if len(signal) == 0 {
		return 0
	}
	var sum float64
	for _, s := range signal {
		c := complex128(s)
		sum += real(c)*real(c) + imag(c)*imag(c)
	}
	return sum / float64(len(signal))
}
