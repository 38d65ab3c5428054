package protocol

import (
	"errors"
	"fmt"
)

// Wire validation errors.
var (
	// ErrDataTooSmall is returned for datagrams too short to carry a
	// checksum and a payload.
	ErrDataTooSmall = errors.New("protocol: data too small")

	// ErrChecksumMismatch is returned when a datagram checksum does not
	// match its payload. Use errors.Is against this sentinel; the
	// concrete error is a *ChecksumError carrying both values.
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")

	// ErrUnknownPacket is returned when decoding a packet with an
	// unrecognized type byte.
	ErrUnknownPacket = errors.New("protocol: unknown packet type")
)

// ChecksumError reports a datagram whose checksum prefix does not match
// its payload. It matches ErrChecksumMismatch under errors.Is.
type ChecksumError struct {
	Got  uint32 // checksum computed over the payload
	Want uint32 // checksum carried in the datagram prefix
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("protocol: checksum mismatch: got %08x want %08x", e.Got, e.Want)
}

func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// UnknownPacketError reports an unrecognized packet type byte. It matches
// ErrUnknownPacket under errors.Is.
type UnknownPacketError struct {
	Type PacketType
}

func (e *UnknownPacketError) Error() string {
	return fmt.Sprintf("protocol: unknown packet type 0x%02x", uint8(e.Type))
}

func (e *UnknownPacketError) Is(target error) bool {
	return target == ErrUnknownPacket
}
