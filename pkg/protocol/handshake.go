package protocol

// Disconnect tells the peer the sender is leaving. It carries no body;
// either side may send it at any time.
type Disconnect struct{}

func (p *Disconnect) Type() PacketType            { return TypeDisconnect }
func (p *Disconnect) encodeTo(*BitWriter)         {}
func (p *Disconnect) decodeFrom(*BitReader) error { return nil }

// KeepAlive generates traffic during idle periods so the connection
// timeout does not fire. The server echoes every KeepAlive it receives.
type KeepAlive struct{}

func (p *KeepAlive) Type() PacketType            { return TypeKeepAlive }
func (p *KeepAlive) encodeTo(*BitWriter)         {}
func (p *KeepAlive) decodeFrom(*BitReader) error { return nil }

// LocalConnectionStart is the hello of a client living in the same
// process as the server. Local connections are trusted and skip the
// verification a remote hello goes through.
type LocalConnectionStart struct {
	Name string
}

func (p *LocalConnectionStart) Type() PacketType { return TypeLocalConnectionStart }

func (p *LocalConnectionStart) encodeTo(w *BitWriter) {
	w.WriteString(p.Name)
}

func (p *LocalConnectionStart) decodeFrom(r *BitReader) error {
	name, err := r.ReadString()
	if err != nil {
		return err
	}
	p.Name = name
	return nil
}

// RemoteConnectionStart is the hello of a client connecting over the
// network.
type RemoteConnectionStart struct {
	Name string
}

func (p *RemoteConnectionStart) Type() PacketType { return TypeRemoteConnectionStart }

func (p *RemoteConnectionStart) encodeTo(w *BitWriter) {
	w.WriteString(p.Name)
}

func (p *RemoteConnectionStart) decodeFrom(r *BitReader) error {
	name, err := r.ReadString()
	if err != nil {
		return err
	}
	p.Name = name
	return nil
}

// ServerConnectionStart accepts a hello and assigns the client its uid.
type ServerConnectionStart struct {
	UID int16
}

func (p *ServerConnectionStart) Type() PacketType { return TypeServerConnectionStart }

func (p *ServerConnectionStart) encodeTo(w *BitWriter) {
	w.WriteSigned(int64(p.UID), 16)
}

func (p *ServerConnectionStart) decodeFrom(r *BitReader) error {
	uid, err := r.ReadSigned(16)
	if err != nil {
		return err
	}
	p.UID = int16(uid)
	return nil
}

// ServerConnectionFail rejects a hello. The reason is user visible.
type ServerConnectionFail struct {
	Reason string
}

func (p *ServerConnectionFail) Type() PacketType { return TypeServerConnectionFail }

func (p *ServerConnectionFail) encodeTo(w *BitWriter) {
	w.WriteString(p.Reason)
}

func (p *ServerConnectionFail) decodeFrom(r *BitReader) error {
	reason, err := r.ReadString()
	if err != nil {
		return err
	}
	p.Reason = reason
	return nil
}
