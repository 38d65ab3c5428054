package protocol

// EnterLobby tells the server the client finished its handshake and wants
// to appear in the lobby roster.
type EnterLobby struct{}

func (p *EnterLobby) Type() PacketType            { return TypeEnterLobby }
func (p *EnterLobby) encodeTo(*BitWriter)         {}
func (p *EnterLobby) decodeFrom(*BitReader) error { return nil }

// LobbyEntry is one player in the lobby roster.
type LobbyEntry struct {
	UID  int16
	Name string
}

// UpdateLobby broadcasts the lobby roster. ChangeID increases with every
// roster change, so clients can drop reordered updates.
type UpdateLobby struct {
	ChangeID uint32
	Players  []LobbyEntry
	CanStart bool // true only for the player allowed to start the game
}

func (p *UpdateLobby) Type() PacketType { return TypeUpdateLobby }

func (p *UpdateLobby) encodeTo(w *BitWriter) {
	w.WriteBits(uint64(p.ChangeID), 32)
	w.WriteUvarint(uint64(len(p.Players)))
	for i := range p.Players {
		w.WriteSigned(int64(p.Players[i].UID), 16)
		w.WriteString(p.Players[i].Name)
	}
	w.WriteBool(p.CanStart)
}

func (p *UpdateLobby) decodeFrom(r *BitReader) error {
	changeID, err := r.ReadBits(32)
	if err != nil {
		return err
	}
	count, err := r.ReadCollectionCount()
	if err != nil {
		return err
	}
	players := make([]LobbyEntry, count)
	for i := range players {
		uid, err := r.ReadSigned(16)
		if err != nil {
			return err
		}
		name, err := r.ReadString()
		if err != nil {
			return err
		}
		players[i] = LobbyEntry{UID: int16(uid), Name: name}
	}
	canStart, err := r.ReadBool()
	if err != nil {
		return err
	}
	p.ChangeID = uint32(changeID)
	p.Players = players
	p.CanStart = canStart
	return nil
}

// RequestGameBegin asks the server to start the game. Only honored when
// sent by the player UpdateLobby marked with CanStart.
type RequestGameBegin struct{}

func (p *RequestGameBegin) Type() PacketType            { return TypeRequestGameBegin }
func (p *RequestGameBegin) encodeTo(*BitWriter)         {}
func (p *RequestGameBegin) decodeFrom(*BitReader) error { return nil }
