package fec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip_NoErrors(t *testing.T) {
	data := []byte("ABCDEFGH")
	enc, err := Encode(data, 3)
	require.NoError(t, err)
	require.Len(t, enc, len(data)*3)
	dec, corrections, err := Decode(enc, 3)
	require.NoError(t, err)
	require.Equal(t, data, dec)
	require.Equal(t, 0, corrections)
}

func TestDecode_FECCorrection(t *testing.T) {
	// Scenario 2 of spec.md §8: flip one bit in each of the first three r-groups.
	data := []byte("ABCDEFGH")
	enc, err := Encode(data, 3)
	require.NoError(t, err)
	for g := 0; g < 3; g++ {
		enc[g*3] ^= 0x01 // flip one bit of the first byte in the group
	}
	dec, corrections, err := Decode(enc, 3)
	require.NoError(t, err)
	require.Equal(t, data, dec)
	require.Equal(t, 3, corrections)
}

func TestDecode_TieBreakIsFirstByte(t *testing.T) {
	group := []byte{0x41, 0x42} // r=2, no majority: tie between 'A' and 'B'
	dec, corrections, err := Decode(group, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{0x41}, dec)
	require.Equal(t, 1, corrections)
}

func TestDecode_BadLength(t *testing.T) {
	_, _, err := Decode([]byte{1, 2, 3, 4}, 3)
	require.ErrorIs(t, err, ErrBadLength)
}

func TestEncode_RepeatOutOfRange(t *testing.T) {
	_, err := Encode([]byte("x"), 0)
	require.ErrorIs(t, err, ErrRepeatOutOfRange)
	_, err = Encode([]byte("x"), 16)
	require.ErrorIs(t, err, ErrRepeatOutOfRange)
}

// P3: decode corrects any pattern flipping at most floor((r-1)/2) bytes per group.
func TestProperty_CorrectionBound(t *testing.T) {
	const r = 5 // can correct up to 2 errors per group
	data := []byte("the quick brown fox jumps over the lazy dog")
	enc, err := Encode(data, r)
	require.NoError(t, err)
	maxErrs := MaxCorrectableErrors(r)
	require.Equal(t, 2, maxErrs)

	for groupStart := 0; groupStart < len(enc); groupStart += r {
		mutated := append([]byte(nil), enc...)
		// Flip the max correctable number of bytes in this one group to a fixed wrong value.
		for k := 0; k < maxErrs; k++ {
			mutated[groupStart+k] = mutated[groupStart+k] + 1
		}
		dec, _, err := Decode(mutated, r)
		require.NoError(t, err)
		require.Equal(t, data, dec, "group starting at %d should still decode correctly", groupStart/r)
	}
}

func TestDecode_NeverPanicsOnMiscorrection(t *testing.T) {
	// I5: miscorrections beyond the bound degrade gracefully, never panic.
	data := make([]byte, 30)
	enc, err := Encode(data, 3)
	require.NoError(t, err)
	for i := range enc {
		enc[i] = byte(i) // worst-case: every byte in every group differs
	}
	require.NotPanics(t, func() {
		_, _, err := Decode(enc, 3)
		require.NoError(t, err)
	})
}
