package snapshot

import (
	"errors"
	"fmt"
	"math"

	"github.com/gridwire-go/gridwire/pkg/protocol"
)

// ErrOldFrame reports a frame that has fallen behind what is already
// applied and cannot be used.
var ErrOldFrame = errors.New("snapshot: frame older than applied state")

// Entities closer to their target than this snap into place instead of
// pathfinding the remaining distance.
const snapDistance = 0.05

// ResolveDelta applies one received entity frame to the world and
// returns the acks to send back: the entity ack for the covered slot
// range and, when the packet carried player state, the player ack.
//
// A packet whose entity base was already evicted from the ring returns
// a nil entity ack while keeping the player ack; the unacknowledged
// slots then come back as full adds in a later burst. A packet older
// than what is applied fails outright and acknowledges nothing.
func (s *Snapshots) ResolveDelta(world ClientWorld, st *SyncState, tick *DayTick, pkt *protocol.EntityFrame) (*protocol.EntityAckFrame, *protocol.PlayerAckFrame, error) {
	r := protocol.NewBitReader(pkt.Data)

	frameBits, err := r.ReadBits(14)
	if err != nil {
		return nil, nil, err
	}
	frame := uint16(frameBits)
	baseBits, err := r.ReadBits(14)
	if err != nil {
		return nil, nil, err
	}
	baseFrame := uint16(baseBits)
	offsetBits, err := r.ReadBits(20)
	if err != nil {
		return nil, nil, err
	}
	offset := int(offsetBits)
	countBits, err := r.ReadBits(8)
	if err != nil {
		return nil, nil, err
	}
	count := int(countBits)

	hasPlayer, err := r.ReadBool()
	if err != nil {
		return nil, nil, err
	}
	var playerAck *protocol.PlayerAckFrame
	if hasPlayer {
		playerAck, err = s.resolvePlayer(world.Player, st, tick, frame, r)
		if err != nil {
			return nil, nil, err
		}
	}

	// A base evicted from the ring cannot seed decoding. Keep the player
	// ack so the clock advances; withholding the entity ack makes the
	// sender fall back to full adds for these slots.
	if baseFrame != InvalidFrame && !s.resident(baseFrame) {
		return nil, playerAck, nil
	}

	baseSnap := s.frames[historySize]
	if baseFrame != InvalidFrame {
		baseSnap = s.frames[int(baseFrame)%historySize]
	}

	if f := s.frames[int(frame)%historySize]; f == nil || f.frameID != frame {
		if f != nil && !IsPreviousFrame(frame, f.frameID) {
			return nil, nil, fmt.Errorf("%w: frame %d behind %d", ErrOldFrame, frame, f.frameID)
		}
		s.frames[int(frame)%historySize] = &worldFrame{frameID: frame}
	}
	snap := s.frames[int(frame)%historySize]

	needed := len(s.arena)
	if n := offset + count; n > needed {
		needed = n
	}
	st.growEntities(needed)
	for len(snap.entities) < needed {
		snap.entities = append(snap.entities, nil)
	}
	for len(s.arena) < needed {
		s.arena = append(s.arena, NoEntity)
	}

	for id := offset; id < offset+count; id++ {
		flagBits, err := r.ReadBits(2)
		if err != nil {
			return nil, nil, err
		}
		flag := entityFlag(flagBits)

		// The state always decodes, even when it turns out to be stale,
		// so the reader stays aligned with the packet.
		updateTarget := false
		switch flag {
		case flagAdd:
			ne, err := decodeEntity(r, nil)
			if err != nil {
				return nil, nil, err
			}
			updateTarget = true
			snap.entities[id] = &capturedEntity{state: ne}
		case flagUpdate:
			var baseRow *capturedEntity
			if id < len(baseSnap.entities) {
				baseRow = baseSnap.entities[id]
			}
			if baseRow == nil {
				return nil, nil, fmt.Errorf("%w: update for slot %d with no base row", ErrMalformedFrame, id)
			}
			ne, err := decodeEntity(r, &baseRow.state)
			if err != nil {
				return nil, nil, err
			}
			old := &baseRow.state
			updateTarget = ne.Target.X != old.Target.X || ne.Target.Z != old.Target.Z ||
				(ne.Target.Time != old.Target.Time && ne.Target.Time != 0)
			snap.entities[id] = &capturedEntity{state: ne}
		case flagRemoved:
			snap.entities[id] = nil
		case flagEmpty:
		}

		if cur := st.frameFor(id); cur != InvalidFrame && IsPreviousFrame(cur, frame) {
			continue
		}
		st.entities[id] = frame

		// An add can land on an occupied slot when the sender lost track
		// of our acks. Same entity type means the entity survived on the
		// sender too, so fold the add into an update; otherwise the
		// occupant is gone.
		if flag == flagAdd {
			if occupant := s.arena[id]; occupant != NoEntity {
				key, live := world.Container.Key(occupant)
				if live && key == snap.entities[id].state.Info.Key {
					updateTarget = true
					flag = flagUpdate
				} else {
					world.Container.Remove(occupant)
				}
			}
		}

		switch flag {
		case flagAdd:
			if err := s.applyAdd(world, id, &snap.entities[id].state); err != nil {
				return nil, nil, err
			}
		case flagUpdate:
			s.applyUpdate(world, id, &snap.entities[id].state, updateTarget)
		case flagRemoved:
			e := s.arena[id]
			if e == NoEntity {
				continue
			}
			s.setSlot(id, NoEntity)
			if world.Container.Live(e) {
				world.Container.Remove(e)
			}
		}
	}

	return &protocol.EntityAckFrame{
		Frame:        frame,
		EntityOffset: uint32(offset),
		EntityCount:  uint16(count),
	}, playerAck, nil
}

// resolvePlayer decodes and applies the player state leading the first
// packet of a burst. The decoded frame is stored in the player ring
// regardless of staleness so it can serve as a base later; the world is
// only touched when the frame advances.
func (s *Snapshots) resolvePlayer(player Player, st *SyncState, tick *DayTick, frame uint16, r *protocol.BitReader) (*protocol.PlayerAckFrame, error) {
	baseBits, err := r.ReadBits(14)
	if err != nil {
		return nil, err
	}
	playerBase := uint16(baseBits)

	uid := player.UID()
	ring, ok := s.playerFrames[uid]
	if !ok {
		return nil, fmt.Errorf("snapshot: no state ring for player %d", uid)
	}
	var baseState *PlayerState
	if playerBase != InvalidFrame {
		pf := ring[int(playerBase)%historySize]
		if pf == nil || pf.frameID != playerBase {
			return nil, fmt.Errorf("%w: player base %d not held", ErrOldFrame, playerBase)
		}
		baseState = &pf.state
	}
	ps, err := decodePlayer(r, baseState)
	if err != nil {
		return nil, err
	}

	if st.playerFrame == InvalidFrame || !IsPreviousFrame(st.playerFrame, frame) {
		st.playerFrame = frame
		player.AddMoney(ps.Money - player.Money())
		player.SetRating(ps.Rating)
		player.SetConfig(ps.Config)
		*tick = ps.DayTick
	}
	ring[int(frame)%historySize] = &playerFrame{frameID: frame, state: ps}
	return &protocol.PlayerAckFrame{Frame: frame}, nil
}

func (s *Snapshots) applyAdd(world ClientWorld, id int, ne *EntityState) error {
	e, err := world.Factory.Create(ne.Info)
	if err != nil {
		return fmt.Errorf("snapshot: create %q: %w", ne.Info.Key, err)
	}
	s.setSlot(id, e)

	c := world.Container
	c.SetPosition(e, ne.Target.X, ne.Target.Z)
	if f := ne.Target.Facing; f != nil {
		c.SetFacing(e, *f)
	}
	if ne.Owner != nil {
		c.SetOwner(e, ne.Owner)
	}
	if ne.Selected != nil {
		c.SetSelected(e, ne.Selected)
	}
	switch {
	case ne.Room != nil:
		if world.Rooms.Exists(*ne.Room) {
			world.Rooms.Attach(e, *ne.Room)
			c.ControlByRoom(e, *ne.Room)
		} else {
			c.ReleaseControl(e)
		}
	case ne.Owner != nil && ne.Idle != nil:
		c.SetIdle(e, ne.Owner, ne.Idle)
		c.ControlByIdle(e, ne.Idle.Idx)
	default:
		c.ReleaseControl(e)
	}
	c.SetScriptData(e, ne.Data)
	if len(ne.Emotes) > 0 {
		c.SetEmotes(e, ne.Emotes)
	}
	if len(ne.Tints) > 0 {
		c.SetTints(e, ne.Tints)
	}
	return nil
}

func (s *Snapshots) applyUpdate(world ClientWorld, id int, ne *EntityState, updateTarget bool) {
	e := s.arena[id]
	if e == NoEntity {
		return
	}
	c := world.Container
	if !c.Live(e) {
		s.setSlot(id, NoEntity)
		return
	}

	// An entity the local player is holding follows their cursor, not
	// the sender's idea of its position.
	selectedByMe := ne.Selected != nil && *ne.Selected == world.Player.UID()
	if updateTarget && !selectedByMe {
		px, pz := c.Position(e)
		dx := px - ne.Target.X
		dz := pz - ne.Target.Z
		c.Lift(e, ne.Selected != nil)
		if dx*dx+dz*dz < snapDistance*snapDistance || ne.Target.Time < snapDistance {
			c.SetPosition(e, ne.Target.X, ne.Target.Z)
			c.Stop(e)
		} else {
			c.MoveTo(e, ne.Target.X, ne.Target.Z, ne.Target.Time)
		}
	} else {
		c.Lift(e, ne.Selected != nil)
	}

	if f := ne.Target.Facing; f != nil {
		if d := angleDifference(c.Facing(e), *f); d < -0.005 || d > 0.005 {
			c.Face(e, *f)
		}
	}

	c.SetSelected(e, ne.Selected)
	c.SetOwner(e, ne.Owner)

	if ne.Room != nil {
		prev := c.Room(e)
		same := prev != nil && *prev == *ne.Room
		c.ControlByRoom(e, *ne.Room)
		if !same && world.Rooms.Exists(*ne.Room) {
			if prev != nil {
				world.Rooms.Detach(e, *prev)
			}
			world.Rooms.Attach(e, *ne.Room)
		}
	} else if prev := c.Room(e); prev != nil {
		world.Rooms.Detach(e, *prev)
	}

	c.SetScriptData(e, ne.Data)

	if ne.Owner != nil && ne.Idle != nil {
		c.SetIdle(e, ne.Owner, ne.Idle)
		if ne.Room == nil {
			c.ControlByIdle(e, ne.Idle.Idx)
		}
	} else {
		c.SetIdle(e, ne.Owner, nil)
	}
	if ne.Room == nil && ne.Idle == nil {
		c.ReleaseControl(e)
	}

	if len(ne.Emotes) > 0 {
		// TODO: a resent frame repeating emotes can queue duplicate icons
		c.AddEmotes(e, ne.Emotes)
	}
}

// angleDifference returns the wrapped signed difference b-a in
// [-pi, pi].
func angleDifference(a, b float32) float32 {
	d := math.Mod(float64(b-a)+math.Pi, 2*math.Pi)
	if d < 0 {
		d += 2 * math.Pi
	}
	return float32(d - math.Pi)
}
