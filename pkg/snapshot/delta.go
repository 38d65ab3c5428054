package snapshot

import (
	"fmt"

	"github.com/gridwire-go/gridwire/pkg/protocol"
)

// entityFlag is the 2-bit per-slot marker inside an entity frame.
type entityFlag uint8

const (
	flagEmpty   entityFlag = iota // slot unused on both sides
	flagRemoved                   // entity existed in the base, now gone
	flagAdd                       // entity added, or the slot was reused
	flagUpdate                    // entity changed against the base
)

// maxPacketEntities is the widest slot range one packet covers; the
// count rides in a single header byte.
const maxPacketEntities = 255

// Each packet starts with a 56-bit header: the frame id (14 bits), the
// base frame id (14), the first covered slot (20) and the slot count
// (8), followed by a bool marking whether player state follows. The
// count sits byte-aligned at offset 6 so it can be patched in once the
// packet is closed.

// CreateDelta encodes the latest captured frame against what the peer
// has acknowledged. The walk splits into a new packet whenever the
// acknowledged base changes, the count byte would overflow, or the
// packet outgrows a single fragment. Only the first packet of a burst
// carries player state, and an empty world still yields that one
// packet so the clock keeps flowing.
func (s *Snapshots) CreateDelta(peer *SyncState, uid PlayerID) ([]*protocol.EntityFrame, error) {
	cur := s.frames[int(s.current)%historySize]
	if cur == nil || cur.frameID != s.current {
		return nil, ErrNoFrame
	}

	var packets []*protocol.EntityFrame
	current := protocol.NewBitWriter(protocol.FragmentSize)
	scratch := protocol.NewBitWriter(64)

	first := true
	offset := 0
	count := 0
	baseFrame := InvalidFrame

	finish := func() {
		buf := current.Bytes()
		data := make([]byte, len(buf))
		copy(data, buf)
		data[6] = byte(count)
		packets = append(packets, &protocol.EntityFrame{Data: data})
	}
	header := func(withPlayer bool) error {
		current.WriteBits(uint64(s.current), 14)
		current.WriteBits(uint64(baseFrame), 14)
		current.WriteBits(uint64(offset), 20)
		current.WriteBits(0, 8)
		current.WriteBool(withPlayer)
		if withPlayer {
			return s.writePlayerState(current, peer, uid)
		}
		return nil
	}

	for id := range s.arena {
		// Leading slots unknown to both sides are folded into the offset.
		if first && s.arena[id] == NoEntity && peer.frameFor(id) == InvalidFrame {
			offset++
			continue
		}

		entityFrame := peer.frameFor(id)
		if entityFrame != InvalidFrame && !s.resident(entityFrame) {
			entityFrame = InvalidFrame
		}

		var oldRow, newRow *capturedEntity
		if id < len(cur.entities) {
			newRow = cur.entities[id]
		}
		sameEntity := false
		if entityFrame != InvalidFrame {
			old := s.frames[int(entityFrame)%historySize]
			if id < len(old.entities) {
				oldRow = old.entities[id]
			}
			sameEntity = oldRow != nil && newRow != nil && oldRow.entity == newRow.entity
		}

		var flag entityFlag
		switch {
		case entityFrame == InvalidFrame && newRow != nil:
			flag = flagAdd
		case entityFrame == InvalidFrame:
			flag = flagEmpty
		case newRow == nil:
			flag = flagRemoved
		case !sameEntity:
			flag = flagAdd
		default:
			flag = flagUpdate
		}

		scratch.WriteBits(uint64(flag), 2)
		switch flag {
		case flagAdd:
			encodeEntity(scratch, &newRow.state, nil)
		case flagUpdate:
			encodeEntity(scratch, &newRow.state, &oldRow.state)
		}

		if first || entityFrame != baseFrame || count >= maxPacketEntities ||
			scratch.Len()+current.Len() > protocol.FragmentSize*8 {
			if !first {
				finish()
				offset += count
				count = 0
				current.Reset()
			}
			baseFrame = entityFrame
			if err := header(first); err != nil {
				return nil, err
			}
			first = false
		}

		current.Append(scratch)
		scratch.Reset()
		count++
	}

	if count > 0 || first {
		if first {
			if err := header(true); err != nil {
				return nil, err
			}
		}
		finish()
	}
	return packets, nil
}

// writePlayerState appends the player-state base id and encoding to the
// burst's first packet. The base is the peer's confirmed player frame
// when the ring still holds it, a full encode otherwise.
func (s *Snapshots) writePlayerState(w *protocol.BitWriter, peer *SyncState, uid PlayerID) error {
	ring, ok := s.playerFrames[uid]
	if !ok {
		return fmt.Errorf("snapshot: no state ring for player %d", uid)
	}
	cur := ring[int(s.current)%historySize]
	if cur == nil || cur.frameID != s.current {
		return ErrNoFrame
	}
	if pf := ring[int(peer.playerFrame)%historySize]; pf != nil && pf.frameID == peer.playerFrame {
		w.WriteBits(uint64(pf.frameID), 14)
		encodePlayer(w, &cur.state, &pf.state)
	} else {
		w.WriteBits(uint64(InvalidFrame), 14)
		encodePlayer(w, &cur.state, nil)
	}
	return nil
}
