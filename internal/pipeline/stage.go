package pipeline

import (
	"math"

	"github.com/kstaniek/linkemu/internal/fec"
	"github.com/kstaniek/linkemu/internal/framesync"
	"github.com/kstaniek/linkemu/internal/modulation"
	"github.com/kstaniek/linkemu/internal/pulse"
)

// stageExtras carries the per-packet channel metrics a receive path can
// observe (§3 "Packet metrics"), beyond the recovered payload itself.
type stageExtras struct {
	FECCorrections int
	BitErrors      int
	HasBitErrors   bool
	BER            float64
	HasBER         bool
	EVM            float64
	HasEVM         bool
}

// countBitDiff returns the number of differing bits between two equal-length
// byte slices.
func countBitDiff(a, b []byte) int {
	n := 0
	for i := range a {
		x := a[i] ^ b[i]
		for x != 0 {
			n += int(x & 1)
			x >>= 1
		}
	}
	return n
}

// berFromSNR approximates the bit error rate of an uncoded BPSK signal over
// AWGN at the given SNR, for the byte-mode receive path's "fast
// approximation" shortcut (§9): BER = Q(sqrt(2*snr_linear)) = 0.5*erfc(sqrt(snr_linear)).
func berFromSNR(snrDb float64) float64 {
	snrLinear := math.Pow(10, snrDb/10)
	return 0.5 * math.Erfc(math.Sqrt(snrLinear))
}

// runByteMode is the "alternative simpler receiver" of §4.7: the channel is
// applied directly to bytes via a bit-flip probability derived from the
// configured SNR, bypassing modulation entirely.
func (d *Driver) runByteMode(payload []byte) ([]byte, stageExtras, error) {
	blob, err := d.cipher.Cipher(payload)
	if err != nil {
		return nil, stageExtras{}, err
	}

	coded := blob
	if d.fecR > 0 {
		coded, err = fec.Encode(blob, d.fecR)
		if err != nil {
			return nil, stageExtras{}, err
		}
	}

	ber := berFromSNR(d.params.SNRDb)
	received := d.channel.ApplyBits(coded, ber)
	bitErrors := countBitDiff(coded, received)

	decoded := received
	corrections := 0
	if d.fecR > 0 {
		decoded, corrections, err = fec.Decode(received, d.fecR)
		if err != nil {
			return nil, stageExtras{}, err
		}
	}

	plaintext, err := d.cipher.Decipher(decoded)
	if err != nil {
		return nil, stageExtras{}, err
	}

	extras := stageExtras{
		FECCorrections: corrections,
		BitErrors:      bitErrors,
		HasBitErrors:   true,
		BER:            float64(bitErrors) / float64(len(coded)*8),
		HasBER:         true,
	}
	return plaintext, extras, nil
}

// runSampleMode is the full sample-level receive chain of §4.7: modulate,
// pulse-shape, impair, matched-filter, recover timing, demodulate, and
// extract the frame-sync envelope.
func (d *Driver) runSampleMode(payload []byte) ([]byte, stageExtras, error) {
	blob, err := d.cipher.Cipher(payload)
	if err != nil {
		return nil, stageExtras{}, err
	}

	coded := blob
	if d.fecR > 0 {
		coded, err = fec.Encode(blob, d.fecR)
		if err != nil {
			return nil, stageExtras{}, err
		}
	}

	bits := wrapSyncEnvelope(coded)
	symbols := modulation.Modulate(bits, d.modScheme)
	shaped := pulse.Shape(symbols, d.rrcTaps, d.sps, d.channelDsp)
	impaired := d.channel.Apply(shaped)
	filtered := pulse.MatchedFilter(impaired, d.rrcTaps, d.channelDsp)

	_, recoveredSymbols := framesync.TimingRecovery(filtered, d.sps)
	evm := modulation.EVM(recoveredSymbols, d.modScheme)
	recoveredBits := modulation.DemodulateHard(recoveredSymbols, d.modScheme)

	result, err := framesync.Extract(recoveredBits, d.syncThresh)
	if err != nil {
		return nil, stageExtras{}, err
	}

	decoded := result.Payload
	corrections := 0
	if d.fecR > 0 {
		decoded, corrections, err = fec.Decode(result.Payload, d.fecR)
		if err != nil {
			return nil, stageExtras{}, err
		}
	}

	plaintext, err := d.cipher.Decipher(decoded)
	if err != nil {
		return nil, stageExtras{}, err
	}

	bitErrors := 0
	hasBitErrors := false
	if len(recoveredBits) >= len(bits) {
		bitErrors = countBitDiffBits(bits, recoveredBits[:len(bits)])
		hasBitErrors = true
	}

	extras := stageExtras{
		FECCorrections: corrections,
		BitErrors:      bitErrors,
		HasBitErrors:   hasBitErrors,
		EVM:            evm,
		HasEVM:         true,
	}
	if hasBitErrors && len(bits) > 0 {
		extras.BER = float64(bitErrors) / float64(len(bits))
		extras.HasBER = true
	}
	return plaintext, extras, nil
}

func countBitDiffBits(a, b []byte) int {
	n := 0
	for i := range a {
		if a[i] != b[i] {
			n++
		}
	}
	return n
}

// wrapSyncEnvelope builds the bit-level frame-sync envelope around coded
// payload bytes: START(8) || length(16, big-endian) || payload bits ||
// STOP(8) (§4.7 steps 5-8).
func wrapSyncEnvelope(coded []byte) []byte {
	bits := make([]byte, 0, 8+16+len(coded)*8+8)
	bits = appendByteBits(bits, framesync.StartPattern)
	bits = appendU16Bits(bits, uint16(len(coded)))
	for _, b := range coded {
		bits = appendByteBits(bits, b)
	}
	bits = appendByteBits(bits, framesync.StopPattern)
	return bits
}

func appendByteBits(bits []byte, b byte) []byte {
	for i := 7; i >= 0; i-- {
		bits = append(bits, (b>>uint(i))&1)
	}
	return bits
}

func appendU16Bits(bits []byte, v uint16) []byte {
	for i := 15; i >= 0; i-- {
		bits = append(bits, byte((v>>uint(i))&1))
	}
	return bits
}
