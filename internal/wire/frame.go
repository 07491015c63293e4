// Package wire implements the on-the-wire packet codec: a fixed 26-byte
// header (sequence number, source/destination IPv4, nanosecond timestamp,
// payload length) followed by the payload, with a CRC32 over the payload
// only. It is the leaf codec shared by both the sample-mode and byte-mode
// receive paths (§4.1, §4.7 of the emulator design).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"net"
)

// MaxPayload is the largest payload a Frame may carry, matching the UDP
// datagram ceiling used throughout the pipeline.
const MaxPayload = 65507

// HeaderSize is the fixed size of the packed header, in bytes:
// seq(4) + src(4) + dst(4) + timestamp_ns(8) + length(2) + crc32(4).
const HeaderSize = 4 + 4 + 4 + 8 + 2 + 4

// Frame is a decoded packet: header fields plus payload.
type Frame struct {
	Seq         uint32
	Src         net.IP // 4-byte IPv4
	Dst         net.IP // 4-byte IPv4
	TimestampNS uint64
	Payload     []byte
}

// Kind classifies a codec failure so callers can bump the right counter
// without string matching (§7 error taxonomy).
type Kind int

const (
	// KindNone marks a successful decode.
	KindNone Kind = iota
	KindTooShort
	KindBadLength
	KindCrcMismatch
	KindBadAddress
	KindTooLarge
)

// Error wraps a Kind with context, implementing the standard error interface.
// It unwraps to its sentinel, so errors.Is(err, ErrCrcMismatch) and the like
// hold.
type Error struct {
	Kind Kind
	Msg  string
	err  error
}

func (e *Error) Error() string { return e.Msg }

// Unwrap returns the sentinel error this Error was built from.
func (e *Error) Unwrap() error { return e.err }

var (
	// ErrTooShort is returned (wrapped in *Error) when fewer than HeaderSize
	// bytes are available.
	ErrTooShort = errors.New("wire: frame too short")
	// ErrBadLength is returned when the declared payload length exceeds the
	// bytes actually present; bytes beyond the declared length are ignored.
	ErrBadLength = errors.New("wire: declared length exceeds buffer")
	// ErrCrcMismatch is returned when the computed CRC32 does not match the
	// header's crc32 field.
	ErrCrcMismatch = errors.New("wire: crc32 mismatch")
	// ErrBadAddress is returned by Pack when src/dst are not 4-byte IPv4
	// addresses.
	ErrBadAddress = errors.New("wire: address is not a valid IPv4 literal")
	// ErrTooLarge is returned by Pack when the payload exceeds MaxPayload.
	ErrTooLarge = errors.New("wire: payload exceeds MaxPayload")
)

func newErr(kind Kind, sentinel error, detail string) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf("%v: %s", sentinel, detail), err: sentinel}
}

// crcTable is the IEEE 802.3 polynomial table (0xEDB88320), the same
// polynomial crc32.IEEE uses in the standard library — matching spec.md's
// explicit choice, so no custom table is hand-rolled here.
var crcTable = crc32.MakeTable(crc32.IEEE)

func checksum(payload []byte) uint32 {
	return crc32.Checksum(payload, crcTable)
}

// Pack serializes seq/src/dst/ts/payload into the wire header+payload
// layout. It fails (I1 of spec.md §3) if payload exceeds MaxPayload or if
// src/dst are not 4-byte IPv4 literals.
func Pack(seq uint32, src, dst net.IP, tsNS uint64, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, newErr(KindTooLarge, ErrTooLarge, fmt.Sprintf("%d > %d", len(payload), MaxPayload))
	}
	src4 := src.To4()
	dst4 := dst.To4()
	if src4 == nil || dst4 == nil {
		return nil, newErr(KindBadAddress, ErrBadAddress, "src/dst must be IPv4")
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], seq)
	copy(buf[4:8], src4)
	copy(buf[8:12], dst4)
	binary.BigEndian.PutUint64(buf[12:20], tsNS)
	binary.BigEndian.PutUint16(buf[20:22], uint16(len(payload)))
	binary.BigEndian.PutUint32(buf[22:26], checksum(payload))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// Unpack parses a wire-format buffer into a Frame, verifying the payload
// CRC32. It returns a *Error carrying the failure Kind on any validation
// error, matching spec.md §4.1's distinct error kinds.
func Unpack(buf []byte) (Frame, error) {
	if len(buf) < HeaderSize {
		return Frame{}, newErr(KindTooShort, ErrTooShort, fmt.Sprintf("%d < %d", len(buf), HeaderSize))
	}
	seq := binary.BigEndian.Uint32(buf[0:4])
	src := net.IP(append([]byte(nil), buf[4:8]...))
	dst := net.IP(append([]byte(nil), buf[8:12]...))
	ts := binary.BigEndian.Uint64(buf[12:20])
	length := binary.BigEndian.Uint16(buf[20:22])
	crc := binary.BigEndian.Uint32(buf[22:26])

	payloadEnd := HeaderSize + int(length)
	if payloadEnd > len(buf) {
		return Frame{}, newErr(KindBadLength, ErrBadLength, fmt.Sprintf("declared %d, have %d", length, len(buf)-HeaderSize))
	}
	payload := buf[HeaderSize:payloadEnd]
	if got := checksum(payload); got != crc {
		return Frame{}, newErr(KindCrcMismatch, ErrCrcMismatch, fmt.Sprintf("got %08x want %08x", got, crc))
	}

	out := make([]byte, len(payload))
	copy(out, payload)
	return Frame{
		Seq:         seq,
		Src:         src,
		Dst:         dst,
		TimestampNS: ts,
		Payload:     out,
	}, nil
}

// Repack re-serializes a Frame with a freshly-computed CRC32 over its
// (possibly mutated) payload, keeping the original header fields; it is
// Pack applied to the Frame's own fields.
func (f Frame) Repack() ([]byte, error) {
	return Pack(f.Seq, f.Src, f.Dst, f.TimestampNS, f.Payload)
}
