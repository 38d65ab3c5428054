package protocol

// Ensured carries one fragment of a reliably delivered payload. The
// payload is split into FragmentSize chunks that share a fragment id;
// each chunk is resent until the peer acknowledges it.
type Ensured struct {
	FragmentID       uint16 // id shared by every fragment of one payload
	FragmentPart     uint16 // index of this fragment within the payload
	FragmentMaxParts uint16 // highest fragment index, fragment count - 1
	Data             []byte // chunk bytes, at most FragmentSize
}

// NewEnsured creates a fragment packet for part of the payload with the
// given id. maxParts is the highest part index, not the part count.
func NewEnsured(id, part, maxParts uint16, data []byte) *Ensured {
	return &Ensured{
		FragmentID:       id,
		FragmentPart:     part,
		FragmentMaxParts: maxParts,
		Data:             data,
	}
}

func (p *Ensured) Type() PacketType { return TypeEnsured }

func (p *Ensured) encodeTo(w *BitWriter) {
	w.WriteBits(uint64(p.FragmentID), 16)
	w.WriteBits(uint64(p.FragmentPart), 16)
	w.WriteBits(uint64(p.FragmentMaxParts), 16)
	w.WriteBytes(p.Data)
}

func (p *Ensured) decodeFrom(r *BitReader) error {
	id, err := r.ReadBits(16)
	if err != nil {
		return err
	}
	part, err := r.ReadBits(16)
	if err != nil {
		return err
	}
	maxParts, err := r.ReadBits(16)
	if err != nil {
		return err
	}
	data, err := r.ReadRemainingBytes()
	if err != nil {
		return err
	}
	p.FragmentID = uint16(id)
	p.FragmentPart = uint16(part)
	p.FragmentMaxParts = uint16(maxParts)
	p.Data = data
	return nil
}

// EnsuredAck acknowledges receipt of a single fragment. Every received
// fragment is acked, duplicates included, so a lost ack only costs one
// resend round.
type EnsuredAck struct {
	FragmentID   uint16
	FragmentPart uint16
}

// NewEnsuredAck creates an ack for one fragment.
func NewEnsuredAck(id, part uint16) *EnsuredAck {
	return &EnsuredAck{FragmentID: id, FragmentPart: part}
}

func (p *EnsuredAck) Type() PacketType { return TypeEnsuredAck }

func (p *EnsuredAck) encodeTo(w *BitWriter) {
	w.WriteBits(uint64(p.FragmentID), 16)
	w.WriteBits(uint64(p.FragmentPart), 16)
}

func (p *EnsuredAck) decodeFrom(r *BitReader) error {
	id, err := r.ReadBits(16)
	if err != nil {
		return err
	}
	part, err := r.ReadBits(16)
	if err != nil {
		return err
	}
	p.FragmentID = uint16(id)
	p.FragmentPart = uint16(part)
	return nil
}
