package protocol

import (
	"encoding/binary"
	"hash/crc32"
)

// checksumSeed is mixed into every datagram checksum. Both peers must use
// the same seed; it rejects traffic from unrelated protocols that happen to
// carry a valid plain CRC32.
const checksumSeed = "UNIVERCITY"

// seedCRC is the CRC32 state after hashing the seed, precomputed so
// Checksum only has to hash the payload.
var seedCRC = crc32.ChecksumIEEE([]byte(checksumSeed))

// Checksum returns the seeded IEEE CRC32 of data.
func Checksum(data []byte) uint32 {
	return crc32.Update(seedCRC, crc32.IEEETable, data)
}

// SealDatagram prepends the little-endian checksum of payload, producing
// the bytes that go on the wire.
func SealDatagram(payload []byte) []byte {
	out := make([]byte, ChecksumSize+len(payload))
	binary.LittleEndian.PutUint32(out, Checksum(payload))
	copy(out[ChecksumSize:], payload)
	return out
}

// OpenDatagram validates and strips the checksum prefix of a received
// datagram, returning the payload. The payload aliases data.
//
// A datagram that is all prefix and no payload is rejected: every valid
// payload starts with at least a packet type byte.
func OpenDatagram(data []byte) ([]byte, error) {
	if len(data) <= ChecksumSize {
		return nil, ErrDataTooSmall
	}
	payload := data[ChecksumSize:]
	want := binary.LittleEndian.Uint32(data)
	if got := Checksum(payload); got != want {
		return nil, &ChecksumError{Got: got, Want: want}
	}
	return payload, nil
}
