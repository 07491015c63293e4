package wire

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func mkPayload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i * 7)
	}
	return p
}

func TestPackUnpack_RoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		seq     uint32
		src     string
		dst     string
		ts      uint64
		payload []byte
	}{
		{"empty", 0, "10.0.0.1", "10.0.0.2", 0, nil},
		{"small", 1, "10.0.0.1", "10.0.0.2", 123456789, []byte("Hello")},
		{"max", 7, "192.168.1.1", "192.168.1.2", 1 << 40, mkPayload(MaxPayload)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf, err := Pack(tc.seq, net.ParseIP(tc.src), net.ParseIP(tc.dst), tc.ts, tc.payload)
			require.NoError(t, err)
			fr, err := Unpack(buf)
			require.NoError(t, err)
			require.Equal(t, tc.seq, fr.Seq)
			require.True(t, fr.Src.Equal(net.ParseIP(tc.src)))
			require.True(t, fr.Dst.Equal(net.ParseIP(tc.dst)))
			require.Equal(t, tc.ts, fr.TimestampNS)
			require.True(t, bytes.Equal(tc.payload, fr.Payload))
		})
	}
}

func TestPack_TooLarge(t *testing.T) {
	_, err := Pack(1, net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2"), 0, mkPayload(MaxPayload+1))
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestPack_BadAddress(t *testing.T) {
	_, err := Pack(1, net.ParseIP("::1"), net.ParseIP("10.0.0.2"), 0, nil)
	require.ErrorIs(t, err, ErrBadAddress)
}

func TestUnpack_TooShort(t *testing.T) {
	_, err := Unpack(make([]byte, HeaderSize-1))
	require.ErrorIs(t, err, ErrTooShort)
}

func TestUnpack_BadLength(t *testing.T) {
	buf, err := Pack(1, net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2"), 0, []byte("Test"))
	require.NoError(t, err)
	buf = buf[:len(buf)-1] // truncate one payload byte; declared length now exceeds buffer
	_, err = Unpack(buf)
	require.ErrorIs(t, err, ErrBadLength)
}

func TestUnpack_CrcMismatch(t *testing.T) {
	// Scenario 3 of spec.md §8: pack seq=7 payload="Test", flip first payload byte.
	buf, err := Pack(7, net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2"), 0, []byte("Test"))
	require.NoError(t, err)
	buf[HeaderSize] ^= 0xFF
	_, err = Unpack(buf)
	require.ErrorIs(t, err, ErrCrcMismatch)
}

func TestUnpack_SingleBitFlipAlwaysDetected(t *testing.T) {
	// P4: any single-bit flip in the payload region is caught.
	payload := []byte("a longer payload to flip bits across")
	buf, err := Pack(3, net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2"), 99, payload)
	require.NoError(t, err)
	for i := HeaderSize; i < len(buf); i++ {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), buf...)
			mutated[i] ^= 1 << bit
			_, err := Unpack(mutated)
			require.Error(t, err, "byte %d bit %d should have been detected", i-HeaderSize, bit)
		}
	}
}

func TestRepack(t *testing.T) {
	buf, err := Pack(42, net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2"), 7, []byte("data"))
	require.NoError(t, err)
	fr, err := Unpack(buf)
	require.NoError(t, err)
	fr.Payload = []byte("mutated")
	buf2, err := fr.Repack()
	require.NoError(t, err)
	fr2, err := Unpack(buf2)
	require.NoError(t, err)
	require.Equal(t, []byte("mutated"), fr2.Payload)
	require.Equal(t, fr.Seq, fr2.Seq)
}

func FuzzUnpack(f *testing.F) {
	seed, _ := Pack(1, net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2"), 0, []byte("seed"))
	f.Add(seed)
	f.Add(make([]byte, HeaderSize))
	f.Fuzz(func(t *testing.T, data []byte) {
		// Must never panic regardless of input.
		_, _ = Unpack(data)
	})
}
