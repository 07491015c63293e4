package dsp

import (
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// GonumDsp is the default Dsp implementation, backed by gonum's
// stat/distuv distributions seeded from a math/rand source. It is the
// production implementation wired into the channel model (§4.6).
type GonumDsp struct {
	normal  distuv.Normal
	uniform distuv.Uniform
}

// NewGonumDsp builds a GonumDsp seeded deterministically, so the channel
// model's constructor (which always takes a seed, per spec.md §4.6) produces
// reproducible fading/noise sequences.
func NewGonumDsp(seed uint64) *GonumDsp {
	src := rand.NewSource(int64(seed))
	return &GonumDsp{
		normal:  distuv.Normal{Mu: 0, Sigma: 1, Src: src},
		uniform: distuv.Uniform{Min: 0, Max: 1, Src: src},
	}
}

// ConvSame delegates to the shared pure convolution helper.
func (g *GonumDsp) ConvSame(x, h Signal) Signal { return ConvSame(x, h) }

// RandNormal returns a standard normal sample via gonum's distuv.Normal.
func (g *GonumDsp) RandNormal() float64 { return g.normal.Rand() }

// RandUniform returns a uniform[0,1) sample via gonum's distuv.Uniform.
func (g *GonumDsp) RandUniform() float64 { return g.uniform.Rand() }

var _ Dsp = (*GonumDsp)(nil)
