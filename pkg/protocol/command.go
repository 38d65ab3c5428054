package protocol

// ExecutedCommands carries a batch of client-issued commands. StartID is
// the id of the first command; ids are consecutive within the batch.
// Command bodies are opaque to the protocol.
type ExecutedCommands struct {
	StartID  uint32
	Commands [][]byte
}

func (p *ExecutedCommands) Type() PacketType { return TypeExecutedCommands }

func (p *ExecutedCommands) encodeTo(w *BitWriter) {
	w.WriteBits(uint64(p.StartID), 32)
	w.WriteUvarint(uint64(len(p.Commands)))
	for _, c := range p.Commands {
		w.WriteLenBytes(c)
	}
}

func (p *ExecutedCommands) decodeFrom(r *BitReader) error {
	startID, err := r.ReadBits(32)
	if err != nil {
		return err
	}
	count, err := r.ReadCollectionCount()
	if err != nil {
		return err
	}
	commands := make([][]byte, count)
	for i := range commands {
		if commands[i], err = r.ReadLenBytes(); err != nil {
			return err
		}
	}
	p.StartID = uint32(startID)
	p.Commands = commands
	return nil
}

// AckCommands tells the client its commands through AcceptedID were
// applied. The client drops them from its resend queue.
type AckCommands struct {
	AcceptedID uint32
}

func (p *AckCommands) Type() PacketType { return TypeAckCommands }

func (p *AckCommands) encodeTo(w *BitWriter) {
	w.WriteBits(uint64(p.AcceptedID), 32)
}

func (p *AckCommands) decodeFrom(r *BitReader) error {
	id, err := r.ReadBits(32)
	if err != nil {
		return err
	}
	p.AcceptedID = uint32(id)
	return nil
}

// RejectCommands tells the client its commands after AcceptedID up to and
// including RejectedID were refused and must be rolled back.
type RejectCommands struct {
	AcceptedID uint32
	RejectedID uint32
}

func (p *RejectCommands) Type() PacketType { return TypeRejectCommands }

func (p *RejectCommands) encodeTo(w *BitWriter) {
	w.WriteBits(uint64(p.AcceptedID), 32)
	w.WriteBits(uint64(p.RejectedID), 32)
}

func (p *RejectCommands) decodeFrom(r *BitReader) error {
	accepted, err := r.ReadBits(32)
	if err != nil {
		return err
	}
	rejected, err := r.ReadBits(32)
	if err != nil {
		return err
	}
	p.AcceptedID = uint32(accepted)
	p.RejectedID = uint32(rejected)
	return nil
}

// RemoteExecutedCommands relays other players' accepted commands to a
// client. The batch stays in its encoded form; the relay never needs to
// look inside.
type RemoteExecutedCommands struct {
	StartID  uint32
	Commands []byte
}

func (p *RemoteExecutedCommands) Type() PacketType { return TypeRemoteExecutedCommands }

func (p *RemoteExecutedCommands) encodeTo(w *BitWriter) {
	w.WriteBits(uint64(p.StartID), 32)
	w.WriteBytes(p.Commands)
}

func (p *RemoteExecutedCommands) decodeFrom(r *BitReader) error {
	startID, err := r.ReadBits(32)
	if err != nil {
		return err
	}
	commands, err := r.ReadRemainingBytes()
	if err != nil {
		return err
	}
	p.StartID = uint32(startID)
	p.Commands = commands
	return nil
}

// AckRemoteCommands tells the server which relayed commands the client
// has applied.
type AckRemoteCommands struct {
	AcceptedID uint32
}

func (p *AckRemoteCommands) Type() PacketType { return TypeAckRemoteCommands }

func (p *AckRemoteCommands) encodeTo(w *BitWriter) {
	w.WriteBits(uint64(p.AcceptedID), 32)
}

func (p *AckRemoteCommands) decodeFrom(r *BitReader) error {
	id, err := r.ReadBits(32)
	if err != nil {
		return err
	}
	p.AcceptedID = uint32(id)
	return nil
}
