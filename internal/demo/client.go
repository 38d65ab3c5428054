package demo

import (
	"slices"

	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/snapshot"
)

// Mirror is the headless world a client rebuilds from received deltas.
// It stores what the resolver pushes at it and answers the queries the
// apply path makes, which is all a load client needs in place of a
// rendering game. Motion orders are recorded, not animated: an entity
// sits at its last snapped position and carries its current order.
//
// A mirror belongs to one receive loop and does no locking of its own.
type Mirror struct {
	account *Account
	clock   snapshot.DayTick

	next  snapshot.Entity
	order []snapshot.Entity
	ents  map[snapshot.Entity]*mirrorEntity
	rooms map[snapshot.RoomID]map[snapshot.Entity]bool

	created int
	removed int
	moves   int
}

var (
	_ snapshot.Container = (*Mirror)(nil)
	_ snapshot.RoomView  = (*Mirror)(nil)
	_ snapshot.Factory   = (*Mirror)(nil)
)

type mirrorEntity struct {
	info   snapshot.EntityInfo
	x, z   float32
	facing float32
	lifted bool

	moving                 bool
	moveX, moveZ, moveTime float32

	owner, selected *snapshot.PlayerID
	room            *snapshot.RoomID
	data            []byte
	idle            *snapshot.IdleChoice
	emotes          []snapshot.EmoteEntry
	tints           []snapshot.Tint
	control         string
}

// NewMirror builds an empty mirror for the given local player.
func NewMirror(uid snapshot.PlayerID) *Mirror {
	return &Mirror{
		account: &Account{uid: uid, rating: startingRating},
		ents:    make(map[snapshot.Entity]*mirrorEntity),
		rooms:   make(map[snapshot.RoomID]map[snapshot.Entity]bool),
	}
}

// World bundles the mirror's surfaces for delta application.
func (m *Mirror) World() snapshot.ClientWorld {
	return snapshot.ClientWorld{Container: m, Rooms: m, Factory: m, Player: m.account}
}

// Apply feeds one received entity frame through the resolver and
// returns the acks to send back.
func (m *Mirror) Apply(snaps *snapshot.Snapshots, st *snapshot.SyncState, pkt *protocol.EntityFrame) (*protocol.EntityAckFrame, *protocol.PlayerAckFrame, error) {
	return snaps.ResolveDelta(m.World(), st, &m.clock, pkt)
}

// Account returns the mirrored local economic state.
func (m *Mirror) Account() *Account { return m.account }

// Clock returns the shared game clock as last applied.
func (m *Mirror) Clock() snapshot.DayTick { return m.clock }

// Handles returns the live mirrored entities in creation order.
func (m *Mirror) Handles() []snapshot.Entity {
	return slices.Clone(m.order)
}

// Len returns the number of live mirrored entities.
func (m *Mirror) Len() int { return len(m.ents) }

// Info returns the identity of a mirrored entity.
func (m *Mirror) Info(e snapshot.Entity) (snapshot.EntityInfo, bool) {
	me := m.ents[e]
	if me == nil {
		return snapshot.EntityInfo{}, false
	}
	return me.info, true
}

// Data returns the entity's script blob as last applied.
func (m *Mirror) Data(e snapshot.Entity) ([]byte, bool) {
	me := m.ents[e]
	if me == nil {
		return nil, false
	}
	return me.data, true
}

// Target returns the entity's current motion order. Idle entities
// report their position with ok false.
func (m *Mirror) Target(e snapshot.Entity) (x, z float32, ok bool) {
	me := m.ents[e]
	if me == nil {
		return 0, 0, false
	}
	if me.moving {
		return me.moveX, me.moveZ, true
	}
	return me.x, me.z, false
}

// Created counts entities the resolver has materialized.
func (m *Mirror) Created() int { return m.created }

// Removed counts entities the resolver has destroyed.
func (m *Mirror) Removed() int { return m.removed }

// Moves counts motion orders received.
func (m *Mirror) Moves() int { return m.moves }

func (m *Mirror) Create(info snapshot.EntityInfo) (snapshot.Entity, error) {
	m.next++
	e := m.next
	m.ents[e] = &mirrorEntity{info: info}
	m.order = append(m.order, e)
	m.created++
	return e, nil
}

func (m *Mirror) Live(e snapshot.Entity) bool {
	_, ok := m.ents[e]
	return ok
}

func (m *Mirror) Remove(e snapshot.Entity) {
	me := m.ents[e]
	if me == nil {
		return
	}
	if me.room != nil {
		delete(m.rooms[*me.room], e)
	}
	delete(m.ents, e)
	for i, h := range m.order {
		if h == e {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.removed++
}

func (m *Mirror) Key(e snapshot.Entity) (string, bool) {
	me := m.ents[e]
	if me == nil {
		return "", false
	}
	return me.info.Key, true
}

func (m *Mirror) Position(e snapshot.Entity) (float32, float32) {
	me := m.ents[e]
	return me.x, me.z
}

func (m *Mirror) SetPosition(e snapshot.Entity, x, z float32) {
	me := m.ents[e]
	me.x, me.z = x, z
}

func (m *Mirror) Lift(e snapshot.Entity, lifted bool) {
	m.ents[e].lifted = lifted
}

func (m *Mirror) MoveTo(e snapshot.Entity, x, z, time float32) {
	me := m.ents[e]
	me.moving = true
	me.moveX, me.moveZ, me.moveTime = x, z, time
	m.moves++
}

func (m *Mirror) Stop(e snapshot.Entity) {
	m.ents[e].moving = false
}

func (m *Mirror) Facing(e snapshot.Entity) float32 {
	return m.ents[e].facing
}

func (m *Mirror) Face(e snapshot.Entity, radians float32) {
	m.ents[e].facing = radians
}

func (m *Mirror) SetFacing(e snapshot.Entity, radians float32) {
	m.ents[e].facing = radians
}

func (m *Mirror) SetOwner(e snapshot.Entity, p *snapshot.PlayerID) {
	m.ents[e].owner = cloneID(p)
}

func (m *Mirror) SetSelected(e snapshot.Entity, p *snapshot.PlayerID) {
	m.ents[e].selected = cloneID(p)
}

func (m *Mirror) SetScriptData(e snapshot.Entity, data []byte) {
	m.ents[e].data = slices.Clone(data)
}

func (m *Mirror) Room(e snapshot.Entity) *snapshot.RoomID {
	return cloneRoom(m.ents[e].room)
}

func (m *Mirror) IdleChoice(e snapshot.Entity) *snapshot.IdleChoice {
	me := m.ents[e]
	if me.idle == nil {
		return nil
	}
	v := *me.idle
	return &v
}

func (m *Mirror) SetIdle(e snapshot.Entity, owner *snapshot.PlayerID, idle *snapshot.IdleChoice) {
	me := m.ents[e]
	if idle == nil {
		me.idle = nil
		return
	}
	v := *idle
	me.idle = &v
}

func (m *Mirror) ControlByRoom(e snapshot.Entity, r snapshot.RoomID) {
	m.ents[e].control = "room"
}

func (m *Mirror) ControlByIdle(e snapshot.Entity, idx uint16) {
	m.ents[e].control = "idle"
}

func (m *Mirror) ReleaseControl(e snapshot.Entity) {
	m.ents[e].control = ""
}

func (m *Mirror) AddEmotes(e snapshot.Entity, emotes []snapshot.EmoteEntry) {
	me := m.ents[e]
	me.emotes = append(me.emotes, emotes...)
	// displayed icons drain in a real client; the mirror keeps the tail
	if len(me.emotes) > 16 {
		me.emotes = me.emotes[len(me.emotes)-16:]
	}
}

func (m *Mirror) SetEmotes(e snapshot.Entity, emotes []snapshot.EmoteEntry) {
	m.ents[e].emotes = slices.Clone(emotes)
}

func (m *Mirror) SetTints(e snapshot.Entity, tints []snapshot.Tint) {
	m.ents[e].tints = slices.Clone(tints)
}

func (m *Mirror) Exists(r snapshot.RoomID) bool {
	_, ok := m.rooms[r]
	return ok
}

func (m *Mirror) Attach(e snapshot.Entity, r snapshot.RoomID) {
	if m.rooms[r] == nil {
		m.rooms[r] = make(map[snapshot.Entity]bool)
	}
	m.rooms[r][e] = true
	id := r
	m.ents[e].room = &id
}

func (m *Mirror) Detach(e snapshot.Entity, r snapshot.RoomID) {
	delete(m.rooms[r], e)
	me := m.ents[e]
	if me.room != nil && *me.room == r {
		me.room = nil
	}
}

func cloneRoom(p *snapshot.RoomID) *snapshot.RoomID {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
