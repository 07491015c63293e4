package framesync

import (
	"math/rand"
	"testing"

	"github.com/kstaniek/linkemu/internal/dsp"
	"github.com/stretchr/testify/require"
)

func byteToBits(b byte) []byte {
	bits := make([]byte, 8)
	for i := 0; i < 8; i++ {
		bits[i] = (b >> (7 - i)) & 1
	}
	return bits
}

func u16ToBits(v uint16) []byte {
	bits := make([]byte, 16)
	for i := 0; i < 16; i++ {
		bits[i] = byte((v >> (15 - i)) & 1)
	}
	return bits
}

// Scenario 5 (spec.md §8): a bit stream with an embedded START pattern,
// 16-bit length field L=1, one payload byte 0x00, and STOP must yield
// Extract with L=1 and payload 0x00.
func TestScenario_SyncPatternFound(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	var bits []byte
	for i := 0; i < 32; i++ {
		bits = append(bits, byte(r.Intn(2)))
	}
	bits = append(bits, byteToBits(StartPattern)...)
	bits = append(bits, u16ToBits(1)...)
	bits = append(bits, byteToBits(0x00)...)
	bits = append(bits, byteToBits(StopPattern)...)

	res, err := Extract(bits, DefaultSyncThreshold)
	require.NoError(t, err)
	require.Equal(t, uint16(1), res.Length)
	require.Equal(t, []byte{0x00}, res.Payload)
	require.Equal(t, 32, res.StartIdx)
}

// Scenario 6 (spec.md §8): 512 random bits with no embedded START pattern
// must fail SyncLost. We avoid the pattern deterministically by using all
// zero bits, which can never correlate with 10101100 above threshold.
func TestScenario_SyncMissing(t *testing.T) {
	bits := make([]byte, 512)
	_, err := Extract(bits, DefaultSyncThreshold)
	require.ErrorIs(t, err, ErrSyncLost)
}

func TestExtract_StopMismatch(t *testing.T) {
	var bits []byte
	bits = append(bits, byteToBits(StartPattern)...)
	bits = append(bits, u16ToBits(1)...)
	bits = append(bits, byteToBits(0xAA)...)
	bits = append(bits, byteToBits(0xFF)...) // wrong stop pattern
	_, err := Extract(bits, DefaultSyncThreshold)
	require.ErrorIs(t, err, ErrStopMismatch)
}

func TestExtract_TruncatedAfterStart_SyncLost(t *testing.T) {
	bits := byteToBits(StartPattern)
	_, err := Extract(bits, DefaultSyncThreshold)
	require.ErrorIs(t, err, ErrSyncLost)
}

func TestTimingRecovery_FindsEnergyPeakOffset(t *testing.T) {
	const sps = 4
	symbols := dsp.Signal{1, -1, 1, 1}
	var signal dsp.Signal
	for _, s := range symbols {
		signal = append(signal, s)
		for k := 1; k < sps; k++ {
			signal = append(signal, 0.01) // near-zero off-peak energy
		}
	}
	offset, recovered := TimingRecovery(signal, sps)
	require.Equal(t, 0, offset)
	require.Len(t, recovered, len(symbols))
}

func TestTimingRecovery_SamplesPerSymbolOne_Passthrough(t *testing.T) {
	signal := dsp.Signal{1, 2, 3}
	offset, recovered := TimingRecovery(signal, 1)
	require.Equal(t, 0, offset)
	require.Equal(t, signal, recovered)
}

func TestValidateThreshold(t *testing.T) {
	require.NoError(t, ValidateThreshold(0.7))
	require.Error(t, ValidateThreshold(1.5))
	require.Error(t, ValidateThreshold(-2))
}
