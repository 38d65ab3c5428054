package protocol

// PacketType identifies the type of a wire packet. Every encoded packet
// starts with its type as an 8-bit prefix.
type PacketType uint8

const (
	// Connection lifecycle.
	TypeDisconnect            PacketType = 0x01 // peer is leaving
	TypeKeepAlive             PacketType = 0x02 // traffic during idle periods
	TypeLocalConnectionStart  PacketType = 0x03 // trusted same-process client hello
	TypeRemoteConnectionStart PacketType = 0x04 // remote client hello
	TypeServerConnectionStart PacketType = 0x05 // server accepts, assigns uid
	TypeServerConnectionFail  PacketType = 0x06 // server rejects with reason

	// Lobby.
	TypeEnterLobby       PacketType = 0x10 // client is ready for lobby state
	TypeUpdateLobby      PacketType = 0x11 // lobby roster broadcast
	TypeRequestGameBegin PacketType = 0x12 // host asks to start the game

	// Game lifecycle and events.
	TypeGameBegin    PacketType = 0x20 // initial game state hand-off
	TypeSetPauseGame PacketType = 0x21 // pause toggle
	TypeSaveGame     PacketType = 0x22 // save request
	TypeLevelLoaded  PacketType = 0x23 // client finished loading
	TypeGameStart    PacketType = 0x24 // all clients loaded, simulation runs
	TypeChatMessage  PacketType = 0x25 // lobby/game chat line
	TypeNotification PacketType = 0x26 // one-shot user-visible notice
	TypeUpdateStats  PacketType = 0x27 // periodic statistics history

	// Command channel.
	TypeExecutedCommands       PacketType = 0x30 // client-issued command batch
	TypeAckCommands            PacketType = 0x31 // server accepted through id
	TypeRejectCommands         PacketType = 0x32 // server rejected a range
	TypeRemoteExecutedCommands PacketType = 0x33 // server-relayed command batch
	TypeAckRemoteCommands      PacketType = 0x34 // client accepted through id

	// Entity synchronization.
	TypeEntityFrame    PacketType = 0x40 // delta-encoded entity snapshot
	TypeEntityAckFrame PacketType = 0x41 // client acks an entity range
	TypePlayerAckFrame PacketType = 0x42 // client acks player state

	// Request/reply correlation.
	TypeRequest PacketType = 0x50 // correlated request
	TypeReply   PacketType = 0x51 // correlated reply

	// Reliable delivery framing.
	TypeEnsured    PacketType = 0x70 // fragment of a reliable payload
	TypeEnsuredAck PacketType = 0x71 // acknowledges one fragment
)

// String returns the name of the packet type.
func (t PacketType) String() string {
	switch t {
	case TypeDisconnect:
		return "Disconnect"
	case TypeKeepAlive:
		return "KeepAlive"
	case TypeLocalConnectionStart:
		return "LocalConnectionStart"
	case TypeRemoteConnectionStart:
		return "RemoteConnectionStart"
	case TypeServerConnectionStart:
		return "ServerConnectionStart"
	case TypeServerConnectionFail:
		return "ServerConnectionFail"
	case TypeEnterLobby:
		return "EnterLobby"
	case TypeUpdateLobby:
		return "UpdateLobby"
	case TypeRequestGameBegin:
		return "RequestGameBegin"
	case TypeGameBegin:
		return "GameBegin"
	case TypeSetPauseGame:
		return "SetPauseGame"
	case TypeSaveGame:
		return "SaveGame"
	case TypeLevelLoaded:
		return "LevelLoaded"
	case TypeGameStart:
		return "GameStart"
	case TypeChatMessage:
		return "ChatMessage"
	case TypeNotification:
		return "Notification"
	case TypeUpdateStats:
		return "UpdateStats"
	case TypeExecutedCommands:
		return "ExecutedCommands"
	case TypeAckCommands:
		return "AckCommands"
	case TypeRejectCommands:
		return "RejectCommands"
	case TypeRemoteExecutedCommands:
		return "RemoteExecutedCommands"
	case TypeAckRemoteCommands:
		return "AckRemoteCommands"
	case TypeEntityFrame:
		return "EntityFrame"
	case TypeEntityAckFrame:
		return "EntityAckFrame"
	case TypePlayerAckFrame:
		return "PlayerAckFrame"
	case TypeRequest:
		return "Request"
	case TypeReply:
		return "Reply"
	case TypeEnsured:
		return "Ensured"
	case TypeEnsuredAck:
		return "EnsuredAck"
	default:
		return "Unknown"
	}
}

// Packet is implemented by every wire message.
type Packet interface {
	// Type returns the wire type byte of the packet.
	Type() PacketType

	encodeTo(w *BitWriter)
	decodeFrom(r *BitReader) error
}

// newPacket returns a zero packet of the given type, or nil for an
// unknown type.
func newPacket(t PacketType) Packet {
	switch t {
	case TypeDisconnect:
		return &Disconnect{}
	case TypeKeepAlive:
		return &KeepAlive{}
	case TypeLocalConnectionStart:
		return &LocalConnectionStart{}
	case TypeRemoteConnectionStart:
		return &RemoteConnectionStart{}
	case TypeServerConnectionStart:
		return &ServerConnectionStart{}
	case TypeServerConnectionFail:
		return &ServerConnectionFail{}
	case TypeEnterLobby:
		return &EnterLobby{}
	case TypeUpdateLobby:
		return &UpdateLobby{}
	case TypeRequestGameBegin:
		return &RequestGameBegin{}
	case TypeGameBegin:
		return &GameBegin{}
	case TypeSetPauseGame:
		return &SetPauseGame{}
	case TypeSaveGame:
		return &SaveGame{}
	case TypeLevelLoaded:
		return &LevelLoaded{}
	case TypeGameStart:
		return &GameStart{}
	case TypeChatMessage:
		return &ChatMessage{}
	case TypeNotification:
		return &Notification{}
	case TypeUpdateStats:
		return &UpdateStats{}
	case TypeExecutedCommands:
		return &ExecutedCommands{}
	case TypeAckCommands:
		return &AckCommands{}
	case TypeRejectCommands:
		return &RejectCommands{}
	case TypeRemoteExecutedCommands:
		return &RemoteExecutedCommands{}
	case TypeAckRemoteCommands:
		return &AckRemoteCommands{}
	case TypeEntityFrame:
		return &EntityFrame{}
	case TypeEntityAckFrame:
		return &EntityAckFrame{}
	case TypePlayerAckFrame:
		return &PlayerAckFrame{}
	case TypeRequest:
		return &Request{}
	case TypeReply:
		return &Reply{}
	case TypeEnsured:
		return &Ensured{}
	case TypeEnsuredAck:
		return &EnsuredAck{}
	default:
		return nil
	}
}

// EncodePacket encodes a packet to bytes, type prefix included.
func EncodePacket(p Packet) []byte {
	w := NewBitWriter(64)
	EncodePacketTo(w, p)
	return w.Bytes()
}

// EncodePacketTo encodes a packet using the provided writer.
func EncodePacketTo(w *BitWriter, p Packet) {
	w.WriteBits(uint64(p.Type()), 8)
	p.encodeTo(w)
}

// DecodePacket decodes a single packet from bytes.
func DecodePacket(data []byte) (Packet, error) {
	return DecodePacketFrom(NewBitReader(data))
}

// DecodePacketFrom decodes a single packet from a reader.
func DecodePacketFrom(r *BitReader) (Packet, error) {
	t, err := r.ReadBits(8)
	if err != nil {
		return nil, err
	}
	p := newPacket(PacketType(t))
	if p == nil {
		return nil, &UnknownPacketError{Type: PacketType(t)}
	}
	if err := p.decodeFrom(r); err != nil {
		return nil, err
	}
	return p, nil
}

// PeekType returns the packet type of an encoded packet without decoding
// its body. Transports use it to route fragment framing without touching
// application payloads.
func PeekType(data []byte) (PacketType, bool) {
	if len(data) == 0 {
		return 0, false
	}
	return PacketType(data[0]), true
}
