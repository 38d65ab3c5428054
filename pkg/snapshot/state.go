package snapshot

import "github.com/gridwire-go/gridwire/pkg/protocol"

// InvalidFrame is the reserved 14-bit frame id meaning "no frame": an
// unacknowledged slot, a delta with no base, or player state that was
// never applied. The frame counter skips it when it wraps.
const InvalidFrame uint16 = 0x3FFF

// IsPreviousFrame reports whether candidate is at or behind current
// under 14-bit wrap-around: ids up to 511 steps ahead of current count
// as newer, everything else as already seen.
func IsPreviousFrame(current, candidate uint16) bool {
	if candidate > current {
		return candidate-current > 0x1FF
	}
	return current-candidate <= 0x1FF
}

// SyncState tracks the frames a link has confirmed, one entry per
// network slot plus the player-state frame. On the capture side it
// holds the peer's acknowledgements and picks delta bases; on the
// receive side it holds the frames actually applied to the world.
type SyncState struct {
	entities    []uint16
	playerFrame uint16
}

func NewSyncState() *SyncState {
	return &SyncState{playerFrame: InvalidFrame}
}

// AckEntities records an entity ack, growing the slot table to cover
// the acknowledged range. A slot only ever moves forward, except that
// an unacknowledged slot accepts any ack.
func (st *SyncState) AckEntities(ack *protocol.EntityAckFrame) {
	end := int(ack.EntityOffset) + int(ack.EntityCount)
	for end >= len(st.entities) {
		st.entities = append(st.entities, InvalidFrame)
	}
	for i := int(ack.EntityOffset); i < end; i++ {
		if !IsPreviousFrame(st.entities[i], ack.Frame) || st.entities[i] == InvalidFrame {
			st.entities[i] = ack.Frame
		}
	}
}

// AckPlayer records a player-state ack if it advances.
func (st *SyncState) AckPlayer(ack *protocol.PlayerAckFrame) {
	if !IsPreviousFrame(st.playerFrame, ack.Frame) {
		st.playerFrame = ack.Frame
	}
}

// PlayerFrame returns the confirmed player-state frame.
func (st *SyncState) PlayerFrame() uint16 {
	return st.playerFrame
}

func (st *SyncState) frameFor(id int) uint16 {
	if id >= 0 && id < len(st.entities) {
		return st.entities[id]
	}
	return InvalidFrame
}

// growEntities widens the slot table so index n-1 is addressable.
func (st *SyncState) growEntities(n int) {
	for len(st.entities) < n {
		st.entities = append(st.entities, InvalidFrame)
	}
}
