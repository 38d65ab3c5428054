// Package protocol implements the binary wire format shared by the
// server and its clients.
//
// # Datagram framing
//
// Each datagram is a little-endian CRC32 checksum followed by the
// payload. The checksum is seeded with a protocol constant, so plain
// CRC32 traffic from other programs never validates. SealDatagram and
// OpenDatagram convert between payloads and wire bytes; a datagram that
// fails validation is dropped without further parsing.
//
// # Bit packing
//
// Payloads are bit streams, not byte streams. Fields are packed
// contiguously with no padding, most-significant-bit first within each
// field, so a 14-bit frame id costs exactly 14 bits on the wire. The
// stream is padded with zeros to a byte boundary only at datagram
// assembly. BitWriter and BitReader are the only cursors; every packet
// encodes through them, which keeps both sides of the protocol in the
// same file for each packet.
//
// # Packets
//
// Every payload starts with an 8-bit PacketType followed by the packet
// body. Bodies whose final field is raw trailing bytes (fragments, entity
// frames, request bodies) consume the remainder of the stream, so they
// must be the last packet in their datagram. The Ensured and EnsuredAck
// packets implement reliable delivery framing and are consumed by
// pkg/transport; everything else is application traffic.
package protocol
