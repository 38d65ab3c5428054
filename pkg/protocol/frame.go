package protocol

// EntityFrame carries one delta-encoded entity snapshot packet. The body
// is opaque at this layer; pkg/snapshot produces and consumes it.
type EntityFrame struct {
	Data []byte
}

func (p *EntityFrame) Type() PacketType { return TypeEntityFrame }

func (p *EntityFrame) encodeTo(w *BitWriter) {
	w.WriteBytes(p.Data)
}

func (p *EntityFrame) decodeFrom(r *BitReader) error {
	data, err := r.ReadRemainingBytes()
	if err != nil {
		return err
	}
	p.Data = data
	return nil
}

// EntityAckFrame acknowledges one entity range of a received frame: the
// client saw frame Frame for EntityCount entity slots starting at
// EntityOffset. A frame split across packets is acked per packet.
type EntityAckFrame struct {
	Frame        uint16 // 14-bit frame id
	EntityOffset uint32 // 20-bit first entity slot
	EntityCount  uint16 // 14-bit slot count
}

func (p *EntityAckFrame) Type() PacketType { return TypeEntityAckFrame }

func (p *EntityAckFrame) encodeTo(w *BitWriter) {
	w.WriteBits(uint64(p.Frame), 14)
	w.WriteBits(uint64(p.EntityOffset), 20)
	w.WriteBits(uint64(p.EntityCount), 14)
}

func (p *EntityAckFrame) decodeFrom(r *BitReader) error {
	frame, err := r.ReadBits(14)
	if err != nil {
		return err
	}
	offset, err := r.ReadBits(20)
	if err != nil {
		return err
	}
	count, err := r.ReadBits(14)
	if err != nil {
		return err
	}
	p.Frame = uint16(frame)
	p.EntityOffset = uint32(offset)
	p.EntityCount = uint16(count)
	return nil
}

// PlayerAckFrame acknowledges the player-state portion of a received
// frame.
type PlayerAckFrame struct {
	Frame uint16
}

func (p *PlayerAckFrame) Type() PacketType { return TypePlayerAckFrame }

func (p *PlayerAckFrame) encodeTo(w *BitWriter) {
	w.WriteBits(uint64(p.Frame), 16)
}

func (p *PlayerAckFrame) decodeFrom(r *BitReader) error {
	frame, err := r.ReadBits(16)
	if err != nil {
		return err
	}
	p.Frame = uint16(frame)
	return nil
}
