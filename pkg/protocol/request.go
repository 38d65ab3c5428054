package protocol

// RequestKind names a request family with a 4-byte tag, the way file
// formats name chunks. Tags read as ASCII in logs and packet dumps.
type RequestKind [4]byte

// Kind creates a RequestKind from a 4-character string. It panics on any
// other length; kinds are compile-time constants.
func Kind(s string) RequestKind {
	if len(s) != 4 {
		panic("protocol: request kind must be 4 bytes")
	}
	var k RequestKind
	copy(k[:], s)
	return k
}

// String returns the tag as text.
func (k RequestKind) String() string {
	return string(k[:])
}

// Request asks the peer to perform a correlated operation. ID ties the
// eventual Reply back to the caller; bodies are opaque to the protocol.
type Request struct {
	Kind RequestKind
	ID   uint32
	Data []byte
}

func (p *Request) Type() PacketType { return TypeRequest }

func (p *Request) encodeTo(w *BitWriter) {
	w.WriteBytes(p.Kind[:])
	w.WriteBits(uint64(p.ID), 32)
	w.WriteBytes(p.Data)
}

func (p *Request) decodeFrom(r *BitReader) error {
	kind, err := r.ReadBytes(4)
	if err != nil {
		return err
	}
	id, err := r.ReadBits(32)
	if err != nil {
		return err
	}
	data, err := r.ReadRemainingBytes()
	if err != nil {
		return err
	}
	copy(p.Kind[:], kind)
	p.ID = uint32(id)
	p.Data = data
	return nil
}

// Reply answers a Request, carrying back its kind and id.
type Reply struct {
	Kind RequestKind
	ID   uint32
	Data []byte
}

func (p *Reply) Type() PacketType { return TypeReply }

func (p *Reply) encodeTo(w *BitWriter) {
	w.WriteBytes(p.Kind[:])
	w.WriteBits(uint64(p.ID), 32)
	w.WriteBytes(p.Data)
}

func (p *Reply) decodeFrom(r *BitReader) error {
	kind, err := r.ReadBytes(4)
	if err != nil {
		return err
	}
	id, err := r.ReadBits(32)
	if err != nil {
		return err
	}
	data, err := r.ReadRemainingBytes()
	if err != nil {
		return err
	}
	copy(p.Kind[:], kind)
	p.ID = uint32(id)
	p.Data = data
	return nil
}
