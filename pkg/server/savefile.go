package server

import (
	"fmt"

	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/snapshot"
)

// saveVersion is bumped when the envelope layout changes. Older saves
// are rejected rather than guessed at.
const saveVersion = 1

// saveFile is the persisted session envelope: the roster, where the
// clock stood, and the game's own state blob. The game state is opaque
// here; the Game that produced it decodes it again through the
// factory.
type saveFile struct {
	roster  []PlayerInfo
	dayTick snapshot.DayTick
	state   []byte
}

func (f *saveFile) encode() []byte {
	w := protocol.NewBitWriter(64 + len(f.state))
	w.WriteBits(saveVersion, 32)
	w.WriteUvarint(uint64(len(f.roster)))
	for _, info := range f.roster {
		w.WriteSigned(int64(info.UID), 16)
		w.WriteString(info.Name)
	}
	w.WriteSigned(int64(f.dayTick.Tick), 32)
	w.WriteBits(uint64(f.dayTick.Day), 32)
	w.WriteBits(uint64(f.dayTick.Time), 32)
	w.WriteLenBytes(f.state)
	return w.Bytes()
}

func decodeSaveFile(data []byte) (*saveFile, error) {
	r := protocol.NewBitReader(data)

	version, err := r.ReadBits(32)
	if err != nil {
		return nil, err
	}
	if version != saveVersion {
		return nil, fmt.Errorf("server: unsupported save version %d", version)
	}

	count, err := r.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	f := &saveFile{roster: make([]PlayerInfo, 0, count)}
	for i := 0; i < count; i++ {
		uid, err := r.ReadSigned(16)
		if err != nil {
			return nil, err
		}
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		f.roster = append(f.roster, PlayerInfo{UID: snapshot.PlayerID(uid), Name: name})
	}

	tick, err := r.ReadSigned(32)
	if err != nil {
		return nil, err
	}
	day, err := r.ReadBits(32)
	if err != nil {
		return nil, err
	}
	tod, err := r.ReadBits(32)
	if err != nil {
		return nil, err
	}
	f.dayTick = snapshot.DayTick{Tick: int32(tick), Day: uint32(day), Time: uint32(tod)}

	f.state, err = r.ReadLenBytes()
	if err != nil {
		return nil, err
	}
	return f, nil
}
