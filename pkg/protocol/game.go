package protocol

// PlayerEntry is one player in the GameBegin hand-off.
type PlayerEntry struct {
	UID  int16
	Name string
}

// GameBegin hands a joining client everything it needs to load the game:
// its uid, the map dimensions, the player roster, the string table
// referenced by entity data, and the opaque serialized game state.
// It is large and always goes through reliable delivery.
type GameBegin struct {
	UID     int16
	Width   uint32
	Height  uint32
	Players []PlayerEntry
	Strings []string
	State   []byte
}

func (p *GameBegin) Type() PacketType { return TypeGameBegin }

func (p *GameBegin) encodeTo(w *BitWriter) {
	w.WriteSigned(int64(p.UID), 16)
	w.WriteBits(uint64(p.Width), 32)
	w.WriteBits(uint64(p.Height), 32)
	w.WriteUvarint(uint64(len(p.Players)))
	for i := range p.Players {
		w.WriteSigned(int64(p.Players[i].UID), 16)
		w.WriteString(p.Players[i].Name)
	}
	w.WriteUvarint(uint64(len(p.Strings)))
	for _, s := range p.Strings {
		w.WriteString(s)
	}
	w.WriteLenBytes(p.State)
}

func (p *GameBegin) decodeFrom(r *BitReader) error {
	uid, err := r.ReadSigned(16)
	if err != nil {
		return err
	}
	width, err := r.ReadBits(32)
	if err != nil {
		return err
	}
	height, err := r.ReadBits(32)
	if err != nil {
		return err
	}
	playerCount, err := r.ReadCollectionCount()
	if err != nil {
		return err
	}
	players := make([]PlayerEntry, playerCount)
	for i := range players {
		puid, err := r.ReadSigned(16)
		if err != nil {
			return err
		}
		name, err := r.ReadString()
		if err != nil {
			return err
		}
		players[i] = PlayerEntry{UID: int16(puid), Name: name}
	}
	stringCount, err := r.ReadCollectionCount()
	if err != nil {
		return err
	}
	strings := make([]string, stringCount)
	for i := range strings {
		if strings[i], err = r.ReadString(); err != nil {
			return err
		}
	}
	state, err := r.ReadLenBytes()
	if err != nil {
		return err
	}
	p.UID = int16(uid)
	p.Width = uint32(width)
	p.Height = uint32(height)
	p.Players = players
	p.Strings = strings
	p.State = state
	return nil
}

// SetPauseGame toggles the simulation pause state for everyone.
type SetPauseGame struct {
	Paused bool
}

func (p *SetPauseGame) Type() PacketType { return TypeSetPauseGame }

func (p *SetPauseGame) encodeTo(w *BitWriter) {
	w.WriteBool(p.Paused)
}

func (p *SetPauseGame) decodeFrom(r *BitReader) error {
	paused, err := r.ReadBool()
	if err != nil {
		return err
	}
	p.Paused = paused
	return nil
}

// SaveGame asks the server to persist the current game. Only honored
// from local connections.
type SaveGame struct{}

func (p *SaveGame) Type() PacketType            { return TypeSaveGame }
func (p *SaveGame) encodeTo(*BitWriter)         {}
func (p *SaveGame) decodeFrom(*BitReader) error { return nil }

// LevelLoaded tells the server the client finished loading the GameBegin
// state and can start simulating.
type LevelLoaded struct{}

func (p *LevelLoaded) Type() PacketType            { return TypeLevelLoaded }
func (p *LevelLoaded) encodeTo(*BitWriter)         {}
func (p *LevelLoaded) decodeFrom(*BitReader) error { return nil }

// GameStart tells clients every player has loaded and the simulation is
// running.
type GameStart struct{}

func (p *GameStart) Type() PacketType            { return TypeGameStart }
func (p *GameStart) encodeTo(*BitWriter)         {}
func (p *GameStart) decodeFrom(*BitReader) error { return nil }

// ChatMessage is a chat line. Clients send it bare; the server prefixes
// the sender name before fanning it out.
type ChatMessage struct {
	Message string
}

func (p *ChatMessage) Type() PacketType { return TypeChatMessage }

func (p *ChatMessage) encodeTo(w *BitWriter) {
	w.WriteString(p.Message)
}

func (p *ChatMessage) decodeFrom(r *BitReader) error {
	msg, err := r.ReadString()
	if err != nil {
		return err
	}
	p.Message = msg
	return nil
}

// NoticeKind classifies a Notification for presentation.
type NoticeKind uint8

const (
	NoticeInfo    NoticeKind = 0 // informational
	NoticeWarning NoticeKind = 1 // something needs attention
	NoticeError   NoticeKind = 2 // something failed
)

// String returns the name of the notice kind.
func (k NoticeKind) String() string {
	switch k {
	case NoticeInfo:
		return "Info"
	case NoticeWarning:
		return "Warning"
	case NoticeError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Notification is a one-shot user-visible notice from the server.
type Notification struct {
	Kind    NoticeKind
	Message string
}

func (p *Notification) Type() PacketType { return TypeNotification }

func (p *Notification) encodeTo(w *BitWriter) {
	w.WriteBits(uint64(p.Kind), 8)
	w.WriteString(p.Message)
}

func (p *Notification) decodeFrom(r *BitReader) error {
	kind, err := r.ReadBits(8)
	if err != nil {
		return err
	}
	msg, err := r.ReadString()
	if err != nil {
		return err
	}
	p.Kind = NoticeKind(kind)
	p.Message = msg
	return nil
}

// StatsEntry is one sample of the periodic statistics history.
type StatsEntry struct {
	Total    int64  // balance at sample time
	Income   int64  // earned since previous sample
	Outcome  int64  // spent since previous sample
	Students uint32
	Grades   [6]uint32 // histogram of current grades
}

// UpdateStats carries the statistics samples the client has not seen yet.
// UpdateID counts samples from game start; the history holds the samples
// after the client's last acknowledged id.
type UpdateStats struct {
	UpdateID uint32
	History  []StatsEntry
}

func (p *UpdateStats) Type() PacketType { return TypeUpdateStats }

func (p *UpdateStats) encodeTo(w *BitWriter) {
	w.WriteBits(uint64(p.UpdateID), 32)
	w.WriteUvarint(uint64(len(p.History)))
	for i := range p.History {
		e := &p.History[i]
		w.WriteSvarint(e.Total)
		w.WriteSvarint(e.Income)
		w.WriteSvarint(e.Outcome)
		w.WriteUvarint(uint64(e.Students))
		for _, g := range e.Grades {
			w.WriteUvarint(uint64(g))
		}
	}
}

func (p *UpdateStats) decodeFrom(r *BitReader) error {
	updateID, err := r.ReadBits(32)
	if err != nil {
		return err
	}
	count, err := r.ReadCollectionCount()
	if err != nil {
		return err
	}
	history := make([]StatsEntry, count)
	for i := range history {
		e := &history[i]
		if e.Total, err = r.ReadSvarint(); err != nil {
			return err
		}
		if e.Income, err = r.ReadSvarint(); err != nil {
			return err
		}
		if e.Outcome, err = r.ReadSvarint(); err != nil {
			return err
		}
		students, err := r.ReadUvarint()
		if err != nil {
			return err
		}
		e.Students = uint32(students)
		for j := range e.Grades {
			g, err := r.ReadUvarint()
			if err != nil {
				return err
			}
			e.Grades[j] = uint32(g)
		}
	}
	p.UpdateID = uint32(updateID)
	p.History = history
	return nil
}
