package snapshot

import (
	"errors"
	"log/slog"
)

// historySize is how many recent frames each ring remembers. A base
// older than this has been evicted and can no longer seed a delta.
const historySize = 128

// ErrNoFrame reports that nothing has been captured yet.
var ErrNoFrame = errors.New("snapshot: no captured frame")

type capturedEntity struct {
	entity Entity
	state  EntityState
}

type worldFrame struct {
	frameID  uint16
	entities []*capturedEntity
}

type playerFrame struct {
	frameID uint16
	state   PlayerState
}

// Snapshots keeps a ring of recent world frames plus per-player state
// frames, and owns the arena assigning entities to stable network
// slots. The capture side records the world into it every tick and
// derives per-peer deltas from the acknowledged bases; the receive side
// feeds frames through ResolveDelta, which reconstructs them into the
// same ring so later deltas can decode against them.
type Snapshots struct {
	logger *slog.Logger

	// frames has one extra slot past the ring: a permanent empty frame
	// that serves as the base when a delta is encoded against nothing.
	frames       []*worldFrame
	playerFrames map[PlayerID][]*playerFrame
	current      uint16

	arena  []Entity
	ids    map[Entity]int
	nextID int
}

// NewSnapshots builds the history rings for the given player roster. On
// the receiving side the roster is just the local player.
func NewSnapshots(logger *slog.Logger, players []PlayerID) *Snapshots {
	if logger == nil {
		logger = slog.Default()
	}
	frames := make([]*worldFrame, historySize+1)
	frames[historySize] = &worldFrame{frameID: InvalidFrame}
	pf := make(map[PlayerID][]*playerFrame, len(players))
	for _, id := range players {
		pf[id] = make([]*playerFrame, historySize)
	}
	return &Snapshots{
		logger:       logger.With("component", "snapshots"),
		frames:       frames,
		playerFrames: pf,
		ids:          make(map[Entity]int),
	}
}

// CurrentFrame returns the id of the most recently captured frame.
func (s *Snapshots) CurrentFrame() uint16 {
	return s.current
}

// nextFrameID advances the frame counter, skipping InvalidFrame when
// the 14-bit space wraps.
func (s *Snapshots) nextFrameID() uint16 {
	s.current++
	if s.current == InvalidFrame {
		s.current = 0
	}
	return s.current
}

// Capture records the world as the next frame. Entities that died since
// the last capture give their slots back, new entities claim the lowest
// free slot, and every live entity gets a state row. Each player in
// players gets a state frame carrying the shared clock and their
// economy.
func (s *Snapshots) Capture(src Source, tick DayTick, players map[PlayerID]Player) uint16 {
	frameID := s.nextFrameID()

	for id, p := range players {
		ring, ok := s.playerFrames[id]
		if !ok {
			s.logger.Warn("capture for unknown player", "player", id)
			continue
		}
		ring[int(frameID)%historySize] = &playerFrame{
			frameID: frameID,
			state: PlayerState{
				DayTick: tick,
				Money:   p.Money(),
				Rating:  p.Rating(),
				Config:  p.Config(),
			},
		}
	}

	for id, e := range s.arena {
		if e != NoEntity && !src.Live(e) {
			delete(s.ids, e)
			s.arena[id] = NoEntity
			if id < s.nextID {
				s.nextID = id
			}
		}
	}

	for _, e := range src.Entities() {
		if _, ok := s.ids[e]; ok {
			continue
		}
		id := s.nextID
		for id < len(s.arena) && s.arena[id] != NoEntity {
			s.nextID++
			id = s.nextID
		}
		if id >= len(s.arena) {
			s.arena = append(s.arena, NoEntity)
		}
		s.arena[id] = e
		s.ids[e] = id
	}

	entities := make([]*capturedEntity, len(s.arena))
	for id, e := range s.arena {
		if e == NoEntity {
			continue
		}
		entities[id] = &capturedEntity{entity: e, state: src.State(e)}
	}
	s.frames[int(frameID)%historySize] = &worldFrame{frameID: frameID, entities: entities}
	return frameID
}

// EntityByID returns the entity occupying a network slot.
func (s *Snapshots) EntityByID(id int) (Entity, bool) {
	if id < 0 || id >= len(s.arena) || s.arena[id] == NoEntity {
		return NoEntity, false
	}
	return s.arena[id], true
}

// NetworkID returns the slot assigned to an entity.
func (s *Snapshots) NetworkID(e Entity) (int, bool) {
	id, ok := s.ids[e]
	return id, ok
}

// resident reports whether the ring still holds the given frame.
func (s *Snapshots) resident(frame uint16) bool {
	f := s.frames[int(frame)%historySize]
	return f != nil && f.frameID == frame
}

// setSlot points a network slot at an entity, keeping the reverse map
// in step.
func (s *Snapshots) setSlot(id int, e Entity) {
	for id >= len(s.arena) {
		s.arena = append(s.arena, NoEntity)
	}
	if old := s.arena[id]; old != NoEntity {
		delete(s.ids, old)
	}
	s.arena[id] = e
	if e != NoEntity {
		s.ids[e] = id
	} else if id < s.nextID {
		s.nextID = id
	}
}
