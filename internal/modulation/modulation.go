// Package modulation implements the three constellation schemes the
// emulator supports — BPSK, QPSK, and 16-QAM, all Gray-coded and
// power-normalized to 1 (§4.4) — plus hard- and soft-decision demodulation.
package modulation

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/kstaniek/linkemu/internal/dsp"
)

// Scheme identifies a modulation scheme.
type Scheme int

const (
	BPSK Scheme = iota
	QPSK
	QAM16
)

// String implements fmt.Stringer.
func (s Scheme) String() string {
	switch s {
	case BPSK:
		return "bpsk"
	case QPSK:
		return "qpsk"
	case QAM16:
		return "16qam"
	default:
		return fmt.Sprintf("modulation.Scheme(%d)", int(s))
	}
}

// BitsPerSymbol returns how many bits each scheme packs into one symbol.
func (s Scheme) BitsPerSymbol() int {
	switch s {
	case BPSK:
		return 1
	case QPSK:
		return 2
	case QAM16:
		return 4
	default:
		return 0
	}
}

// ParseScheme parses the --modulation CLI values (§6).
func ParseScheme(s string) (Scheme, error) {
	switch s {
	case "bpsk":
		return BPSK, nil
	case "qpsk":
		return QPSK, nil
	case "16qam":
		return QAM16, nil
	default:
		return 0, fmt.Errorf("modulation: unknown scheme %q", s)
	}
}

// invSqrt2 is 1/sqrt(2), the QPSK per-axis normalization constant.
var invSqrt2 = 1 / math.Sqrt2

// invSqrt10 is 1/sqrt(10), the 16-QAM per-axis normalization constant
// bringing average symbol power to 1 over the {±1,±3} constellation.
var invSqrt10 = 1 / math.Sqrt(10)

// qam16Axis holds the four per-axis levels of the 16-QAM constellation. A
// symbol's 4-bit Gray-coded label (b0 b1 b2 b3) picks the I level from (b0,b1)
// and the Q level from (b2,b3), each pair Gray-mapped 00->-3, 01->-1, 11->+1,
// 10->+3 (adjacent points differ by one bit).
var qam16Axis = [4]float64{-3, -1, 1, 3}

// grayIndex maps a 2-bit value to its position in qam16Axis under Gray coding.
func grayIndex(b0, b1 byte) int {
	switch {
	case b0 == 0 && b1 == 0:
		return 0
	case b0 == 0 && b1 == 1:
		return 1
	case b0 == 1 && b1 == 1:
		return 2
	default: // b0==1, b1==0
		return 3
	}
}

// axisGrayBits is the inverse of grayIndex, returning (b0, b1) for each axis index.
var axisGrayBits = [4][2]byte{{0, 0}, {0, 1}, {1, 1}, {1, 0}}

// padBits pads bits with trailing zeros so its length is a multiple of n.
func padBits(bits []byte, n int) []byte {
	rem := len(bits) % n
	if rem == 0 {
		return bits
	}
	out := make([]byte, len(bits)+(n-rem))
	copy(out, bits)
	return out
}

// Modulate maps bits onto symbols for the given scheme, zero-padding the
// final group if len(bits) is not a multiple of bits-per-symbol (§4.4).
func Modulate(bits []byte, scheme Scheme) dsp.Signal {
	bps := scheme.BitsPerSymbol()
	padded := padBits(bits, bps)
	out := make(dsp.Signal, len(padded)/bps)
	switch scheme {
	case BPSK:
		for i, b := range padded {
			if b == 0 {
				out[i] = complex(1, 0)
			} else {
				out[i] = complex(-1, 0)
			}
		}
	case QPSK:
		for i := 0; i < len(padded); i += 2 {
			b0, b1 := padded[i], padded[i+1]
			ival := (1 - 2*float64(b0)) * invSqrt2
			qval := (1 - 2*float64(b1)) * invSqrt2
			out[i/2] = complex(float32(ival), float32(qval))
		}
	case QAM16:
		for i := 0; i < len(padded); i += 4 {
			ii := grayIndex(padded[i], padded[i+1])
			qi := grayIndex(padded[i+2], padded[i+3])
			ival := qam16Axis[ii] * invSqrt10
			qval := qam16Axis[qi] * invSqrt10
			out[i/4] = complex(float32(ival), float32(qval))
		}
	}
	return out
}

// DemodulateHard performs hard-decision demodulation, returning the bit
// sequence (§4.4). BPSK/QPSK use sign slicing; 16-QAM uses a minimum-distance
// search over the 16 constellation points.
func DemodulateHard(symbols dsp.Signal, scheme Scheme) []byte {
	bps := scheme.BitsPerSymbol()
	out := make([]byte, 0, len(symbols)*bps)
	switch scheme {
	case BPSK:
		for _, s := range symbols {
			if real(s) >= 0 {
				out = append(out, 0)
			} else {
				out = append(out, 1)
			}
		}
	case QPSK:
		for _, s := range symbols {
			b0 := byte(0)
			if real(s) < 0 {
				b0 = 1
			}
			b1 := byte(0)
			if imag(s) < 0 {
				b1 = 1
			}
			out = append(out, b0, b1)
		}
	case QAM16:
		for _, s := range symbols {
			ii := nearestAxisIndex(float64(real(s)) / invSqrt10)
			qi := nearestAxisIndex(float64(imag(s)) / invSqrt10)
			out = append(out, axisGrayBits[ii][0], axisGrayBits[ii][1], axisGrayBits[qi][0], axisGrayBits[qi][1])
		}
	}
	return out
}

// nearestAxisIndex finds the closest of the four 16-QAM axis levels to v.
func nearestAxisIndex(v float64) int {
	best := 0
	bestDist := math.Abs(v - qam16Axis[0])
	for i := 1; i < len(qam16Axis); i++ {
		d := math.Abs(v - qam16Axis[i])
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// DemodulateSoft returns log-likelihood ratios for QPSK (required by
// spec.md §4.4; other schemes may implement it but are not required to).
// A positive LLR favors bit 0, negative favors bit 1, matching the sign
// convention of DemodulateHard's slicing.
func DemodulateSoft(symbols dsp.Signal, scheme Scheme, noiseVariance float64) ([]float64, error) {
	if scheme != QPSK {
		return nil, fmt.Errorf("modulation: soft demodulation only implemented for QPSK, got %s", scheme)
	}
	if noiseVariance <= 0 {
		noiseVariance = 1e-12
	}
	out := make([]float64, 0, len(symbols)*2)
	// For QPSK with per-axis amplitude invSqrt2, LLR = 2*a*r/sigma^2 with a=invSqrt2.
	scale := 2 * invSqrt2 / noiseVariance
	for _, s := range symbols {
		out = append(out, float64(real(s))*scale, float64(imag(s))*scale)
	}
	return out, nil
}

// NearestSymbol returns the ideal constellation point closest to a
// (possibly noisy) received symbol, used to compute error-vector magnitude
// (SPEC_FULL.md §5, supplemented from the original's per-packet EVM).
func NearestSymbol(s dsp.Sample, scheme Scheme) dsp.Sample {
	switch scheme {
	case BPSK:
		if real(s) >= 0 {
			return complex(1, 0)
		}
		return complex(-1, 0)
	case QPSK:
		i := invSqrt2
		q := invSqrt2
		if real(s) < 0 {
			i = -i
		}
		if imag(s) < 0 {
			q = -q
		}
		return complex(float32(i), float32(q))
	case QAM16:
		ii := nearestAxisIndex(float64(real(s)) / invSqrt10)
		qi := nearestAxisIndex(float64(imag(s)) / invSqrt10)
		return complex(float32(qam16Axis[ii]*invSqrt10), float32(qam16Axis[qi]*invSqrt10))
	default:
		return s
	}
}

// EVM computes the RMS error-vector magnitude of received symbols against
// their sliced ideal constellation points.
func EVM(symbols dsp.Signal, scheme Scheme) float64 {
	if len(symbols) == 0 {
		return 0
	}
	var sum float64
	for _, s := range symbols {
		ideal := NearestSymbol(s, scheme)
		d := complex128(s) - complex128(ideal)
		sum += real(d)*real(d) + imag(d)*imag(d)
	}
	return math.Sqrt(sum / float64(len(symbols)))
}

// AveragePower reports the measured mean |s|^2 across symbols, which I6
// requires to be 1 (within floating point tolerance) for a correctly
// generated constellation.
func AveragePower(symbols dsp.Signal) float64 {
	if len(symbols) == 0 {
		return 0
	}
	var sum float64
	for _, s := range symbols {
		sum += real(cmplx.Conj(complex128(s)) * complex128(s))
	}
	return sum / float64(len(symbols))
}
