package protocol

import "errors"

// Bit cursor errors.
var (
	// ErrBufferTooShort is returned when reading past the end of the stream.
	ErrBufferTooShort = errors.New("protocol: buffer too short")

	// ErrVarintOverflow is returned when a varint is malformed or too large.
	ErrVarintOverflow = errors.New("protocol: varint overflow")

	// ErrAllocationTooLarge is returned when a length prefix would require
	// an unreasonably large allocation.
	ErrAllocationTooLarge = errors.New("protocol: allocation too large")

	// ErrWidthOutOfRange is returned when a field width outside 1..64 bits
	// is requested.
	ErrWidthOutOfRange = errors.New("protocol: bit width out of range")
)

const (
	// MaxByteAllocation caps a single length-prefixed byte read.
	MaxByteAllocation = 4 * 1024 * 1024

	// MaxCollectionCount caps decoded collection lengths.
	MaxCollectionCount = 100_000
)

// BitWriter encodes values into a bit stream.
//
// Fields are packed contiguously with no padding, most-significant-bit
// first within each field. A value written as WriteBits(v, n) occupies
// exactly n bits; the first bit on the wire is bit n-1 of v. The stream is
// padded with zero bits up to a byte boundary only when Bytes is called.
//
// The zero value is ready to use.
type BitWriter struct {
	buf  []byte
	free uint // unused low bits in the final byte of buf
}

// NewBitWriter creates a writer with capacity preallocated for size bytes.
func NewBitWriter(size int) *BitWriter {
	return &BitWriter{buf: make([]byte, 0, size)}
}

// WriteBits appends the low n bits of v, most significant first.
// Widths outside 1..64 panic: widths are compile-time properties of the
// wire format, not runtime inputs.
func (w *BitWriter) WriteBits(v uint64, n uint) {
	if n == 0 || n > 64 {
		panic("protocol: bit width out of range")
	}
	if n < 64 {
		v &= (1 << n) - 1
	}
	for n > 0 {
		if w.free == 0 {
			w.buf = append(w.buf, 0)
			w.free = 8
		}
		take := n
		if take > w.free {
			take = w.free
		}
		chunk := byte(v >> (n - take))
		w.buf[len(w.buf)-1] |= chunk << (w.free - take)
		w.free -= take
		n -= take
	}
}

// WriteBool appends a single bit.
func (w *BitWriter) WriteBool(v bool) {
	if v {
		w.WriteBits(1, 1)
	} else {
		w.WriteBits(0, 1)
	}
}

// WriteSigned appends v as an n-bit two's-complement value.
func (w *BitWriter) WriteSigned(v int64, n uint) {
	w.WriteBits(uint64(v), n)
}

// WriteBytes appends each byte of b as an 8-bit group. The bytes are not
// length-prefixed; use WriteLenBytes when the reader cannot infer the
// length.
func (w *BitWriter) WriteBytes(b []byte) {
	if w.free == 0 {
		// Aligned fast path.
		w.buf = append(w.buf, b...)
		return
	}
	for _, c := range b {
		w.WriteBits(uint64(c), 8)
	}
}

// WriteUvarint appends v using 7-bit groups with a continuation bit,
// least-significant group first.
func (w *BitWriter) WriteUvarint(v uint64) {
	for v >= 0x80 {
		w.WriteBits(v&0x7F|0x80, 8)
		v >>= 7
	}
	w.WriteBits(v, 8)
}

// WriteSvarint appends v using ZigZag encoding, so small negative values
// stay small on the wire.
func (w *BitWriter) WriteSvarint(v int64) {
	w.WriteUvarint(uint64((v << 1) ^ (v >> 63)))
}

// WriteLenBytes appends a varint length prefix followed by the bytes.
func (w *BitWriter) WriteLenBytes(b []byte) {
	w.WriteUvarint(uint64(len(b)))
	w.WriteBytes(b)
}

// WriteString appends a varint length prefix followed by the UTF-8 bytes.
func (w *BitWriter) WriteString(s string) {
	w.WriteUvarint(uint64(len(s)))
	w.WriteBytes([]byte(s))
}

// Append copies every bit written to src onto w. Neither stream needs to
// be byte aligned.
func (w *BitWriter) Append(src *BitWriter) {
	n := src.Len()
	if w.free == 0 && src.free == 0 {
		w.buf = append(w.buf, src.buf...)
		return
	}
	for i := 0; i < n; i += 32 {
		take := uint(32)
		if rem := uint(n - i); rem < take {
			take = rem
		}
		v, _ := peekBits(src.buf, i, take)
		w.WriteBits(v, take)
	}
}

// Len returns the number of bits written so far.
func (w *BitWriter) Len() int {
	return len(w.buf)*8 - int(w.free)
}

// Reset clears the writer for reuse, keeping the allocated buffer.
func (w *BitWriter) Reset() {
	w.buf = w.buf[:0]
	w.free = 0
}

// Bytes returns the encoded stream padded with zero bits to a byte
// boundary. The returned slice aliases the writer's buffer.
func (w *BitWriter) Bytes() []byte {
	return w.buf
}

// SetByte overwrites byte i of the stream. It is used to patch reserved
// header bytes (such as a count written before the count is known) and
// requires the byte to have been fully written already.
func (w *BitWriter) SetByte(i int, v byte) {
	w.buf[i] = v
}

// peekBits reads n bits starting at bit position pos from buf.
func peekBits(buf []byte, pos int, n uint) (uint64, error) {
	if pos < 0 || n == 0 || n > 64 {
		return 0, ErrWidthOutOfRange
	}
	if pos+int(n) > len(buf)*8 {
		return 0, ErrBufferTooShort
	}
	var v uint64
	for n > 0 {
		idx := pos >> 3
		off := uint(pos & 7)
		avail := 8 - off
		take := n
		if take > avail {
			take = avail
		}
		chunk := uint64(buf[idx]>>(avail-take)) & ((1 << take) - 1)
		v = v<<take | chunk
		pos += int(take)
		n -= take
	}
	return v, nil
}

// BitReader decodes a bit stream produced by BitWriter.
type BitReader struct {
	buf []byte
	pos int // bit position
}

// NewBitReader creates a reader over data. The reader does not copy data.
func NewBitReader(data []byte) *BitReader {
	return &BitReader{buf: data}
}

// ReadBits consumes the next n bits and returns them as the low bits of
// the result.
func (r *BitReader) ReadBits(n uint) (uint64, error) {
	v, err := peekBits(r.buf, r.pos, n)
	if err != nil {
		return 0, err
	}
	r.pos += int(n)
	return v, nil
}

// ReadBool consumes a single bit.
func (r *BitReader) ReadBool() (bool, error) {
	v, err := r.ReadBits(1)
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

// ReadSigned consumes an n-bit two's-complement value.
func (r *BitReader) ReadSigned(n uint) (int64, error) {
	v, err := r.ReadBits(n)
	if err != nil {
		return 0, err
	}
	// Sign-extend from bit n-1.
	shift := 64 - n
	return int64(v<<shift) >> shift, nil
}

// ReadBytes consumes n bytes written with WriteBytes.
func (r *BitReader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > MaxByteAllocation {
		return nil, ErrAllocationTooLarge
	}
	if r.pos+n*8 > len(r.buf)*8 {
		return nil, ErrBufferTooShort
	}
	if r.pos&7 == 0 {
		// Aligned fast path.
		start := r.pos >> 3
		out := make([]byte, n)
		copy(out, r.buf[start:start+n])
		r.pos += n * 8
		return out, nil
	}
	out := make([]byte, n)
	for i := range out {
		v, err := r.ReadBits(8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}

// ReadUvarint consumes a varint written with WriteUvarint.
func (r *BitReader) ReadUvarint() (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; i < 10; i++ {
		b, err := r.ReadBits(8)
		if err != nil {
			return 0, err
		}
		if i == 9 && b > 1 {
			return 0, ErrVarintOverflow
		}
		v |= (b & 0x7F) << shift
		if b < 0x80 {
			return v, nil
		}
		shift += 7
	}
	return 0, ErrVarintOverflow
}

// ReadSvarint consumes a ZigZag varint written with WriteSvarint.
func (r *BitReader) ReadSvarint() (int64, error) {
	v, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}
	return int64(v>>1) ^ -int64(v&1), nil
}

// ReadLenBytes consumes a varint length prefix and that many bytes.
func (r *BitReader) ReadLenBytes() ([]byte, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if n > MaxByteAllocation {
		return nil, ErrAllocationTooLarge
	}
	return r.ReadBytes(int(n))
}

// ReadString consumes a varint length prefix and that many UTF-8 bytes.
func (r *BitReader) ReadString() (string, error) {
	b, err := r.ReadLenBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadCollectionCount consumes a varint and validates it as a collection
// length.
func (r *BitReader) ReadCollectionCount() (int, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if n > MaxCollectionCount {
		return 0, ErrAllocationTooLarge
	}
	return int(n), nil
}

// ReadRemainingBytes consumes whole bytes until fewer than eight bits
// remain. Trailing padding bits are left unread. Packet fields decoded
// this way must be the final field of their packet.
func (r *BitReader) ReadRemainingBytes() ([]byte, error) {
	n := r.Remaining() / 8
	return r.ReadBytes(n)
}

// Remaining returns the number of unread bits.
func (r *BitReader) Remaining() int {
	return len(r.buf)*8 - r.pos
}
