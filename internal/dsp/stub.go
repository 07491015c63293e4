package dsp

// StubDsp is a deterministic test double: RandNormal/RandUniform replay a
// fixed, cyclic sequence instead of drawing from a real distribution, so
// channel-model tests can assert exact sample values.
type StubDsp struct {
	Normals  []float64
	Uniforms []float64
	ni, ui   int
}

// NewStubDsp builds a StubDsp cycling through the given sequences. Empty
// sequences default to a single zero value.
func NewStubDsp(normals, uniforms []float64) *StubDsp {
	if len(normals) == 0 {
		normals = []float64{0}
	}
	if len(uniforms) == 0 {
		uniforms = []float64{0}
	}
	return &StubDsp{Normals: normals, Uniforms: uniforms}
}

// ConvSame delegates to the shared pure convolution helper.
func (s *StubDsp) ConvSame(x, h Signal) Signal { return ConvSame(x, h) }

// RandNormal returns the next value from the configured sequence, cycling.
func (s *StubDsp) RandNormal() float64 {
	v := s.Normals[s.ni%len(s.Normals)]
	s.ni++
	return v
}

// RandUniform returns the next value from the configured sequence, cycling.
func (s *StubDsp) RandUniform() float64 {
	v := s.Uniforms[s.ui%len(s.Uniforms)]
	s.ui++
	return v
}

var _ Dsp = (*StubDsp)(nil)
