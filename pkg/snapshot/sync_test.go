package snapshot

import (
	"fmt"
	"slices"
	"testing"

	"github.com/gridwire-go/gridwire/pkg/protocol"
)

// testWorld is a minimal world that can sit on either end of the
// protocol: it implements Source and Player for capturing, and
// Container, RoomView, Factory and Player for applying.
type testWorld struct {
	uid    PlayerID
	money  int64
	rating int16
	config PlayerConfig

	next     Entity
	entities map[Entity]*testEntity
	order    []Entity
	rooms    map[RoomID]map[Entity]bool
	created  int
}

type testEntity struct {
	key         string
	variant     uint8
	first, last string

	x, z      float32
	facing    float32
	hasFacing bool
	lifted    bool

	moving                 bool
	moveX, moveZ, moveTime float32

	owner, selected *PlayerID
	room            *RoomID
	data            []byte
	idle            *IdleChoice
	emotes          []EmoteEntry
	tints           []Tint
	control         string
	live            bool
}

var (
	_ Source    = (*testWorld)(nil)
	_ Container = (*testWorld)(nil)
	_ RoomView  = (*testWorld)(nil)
	_ Factory   = (*testWorld)(nil)
	_ Player    = (*testWorld)(nil)
)

func newTestWorld(uid PlayerID) *testWorld {
	return &testWorld{
		uid:      uid,
		entities: make(map[Entity]*testEntity),
		rooms:    make(map[RoomID]map[Entity]bool),
	}
}

func cloneID[T ~int16](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneIdle(p *IdleChoice) *IdleChoice {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (w *testWorld) addRoom(r RoomID) {
	w.rooms[r] = make(map[Entity]bool)
}

func (w *testWorld) spawn(key string, x, z float32) Entity {
	e, _ := w.Create(EntityInfo{Key: key, FirstName: "Ada", LastName: "Cole"})
	te := w.entities[e]
	te.x, te.z = x, z
	return e
}

func (w *testWorld) kill(e Entity) {
	w.entities[e].live = false
}

func (w *testWorld) get(t *testing.T, e Entity) *testEntity {
	t.Helper()
	te := w.entities[e]
	if te == nil {
		t.Fatalf("no entity %d", e)
	}
	return te
}

func (w *testWorld) Entities() []Entity {
	var out []Entity
	for _, e := range w.order {
		if w.entities[e].live {
			out = append(out, e)
		}
	}
	return out
}

func (w *testWorld) Live(e Entity) bool {
	te := w.entities[e]
	return te != nil && te.live
}

func (w *testWorld) State(e Entity) EntityState {
	te := w.entities[e]
	tgt := Target{X: te.x, Z: te.z}
	if te.moving {
		tgt = Target{Time: te.moveTime, X: te.moveX, Z: te.moveZ}
	}
	if te.hasFacing {
		f := te.facing
		tgt.Facing = &f
	}
	return EntityState{
		Info:     EntityInfo{Key: te.key, Variant: te.variant, FirstName: te.first, LastName: te.last},
		Owner:    cloneID(te.owner),
		Target:   tgt,
		Selected: cloneID(te.selected),
		Room:     cloneID(te.room),
		Data:     slices.Clone(te.data),
		Idle:     cloneIdle(te.idle),
		Emotes:   slices.Clone(te.emotes),
		Tints:    slices.Clone(te.tints),
	}
}

func (w *testWorld) Remove(e Entity) {
	if te := w.entities[e]; te != nil {
		te.live = false
	}
}

func (w *testWorld) Key(e Entity) (string, bool) {
	te := w.entities[e]
	if te == nil || !te.live {
		return "", false
	}
	return te.key, true
}

func (w *testWorld) Position(e Entity) (float32, float32) {
	te := w.entities[e]
	return te.x, te.z
}

func (w *testWorld) SetPosition(e Entity, x, z float32) {
	te := w.entities[e]
	te.x, te.z = x, z
}

func (w *testWorld) Lift(e Entity, lifted bool) {
	w.entities[e].lifted = lifted
}

func (w *testWorld) MoveTo(e Entity, x, z, time float32) {
	te := w.entities[e]
	te.moving = true
	te.moveX, te.moveZ, te.moveTime = x, z, time
}

func (w *testWorld) Stop(e Entity) {
	w.entities[e].moving = false
}

func (w *testWorld) Facing(e Entity) float32 {
	return w.entities[e].facing
}

func (w *testWorld) Face(e Entity, radians float32) {
	te := w.entities[e]
	te.facing = radians
	te.hasFacing = true
}

func (w *testWorld) SetFacing(e Entity, radians float32) {
	te := w.entities[e]
	te.facing = radians
	te.hasFacing = true
}

func (w *testWorld) SetOwner(e Entity, p *PlayerID) {
	w.entities[e].owner = cloneID(p)
}

func (w *testWorld) SetSelected(e Entity, p *PlayerID) {
	w.entities[e].selected = cloneID(p)
}

func (w *testWorld) SetScriptData(e Entity, data []byte) {
	w.entities[e].data = slices.Clone(data)
}

func (w *testWorld) Room(e Entity) *RoomID {
	return cloneID(w.entities[e].room)
}

func (w *testWorld) Exists(r RoomID) bool {
	_, ok := w.rooms[r]
	return ok
}

func (w *testWorld) Attach(e Entity, r RoomID) {
	w.rooms[r][e] = true
	w.entities[e].room = cloneID(&r)
}

func (w *testWorld) Detach(e Entity, r RoomID) {
	delete(w.rooms[r], e)
	w.entities[e].room = nil
}

func (w *testWorld) IdleChoice(e Entity) *IdleChoice {
	return cloneIdle(w.entities[e].idle)
}

func (w *testWorld) SetIdle(e Entity, owner *PlayerID, idle *IdleChoice) {
	w.entities[e].idle = cloneIdle(idle)
}

func (w *testWorld) ControlByRoom(e Entity, r RoomID) {
	w.entities[e].control = fmt.Sprintf("room:%d", r)
}

func (w *testWorld) ControlByIdle(e Entity, idx uint16) {
	w.entities[e].control = fmt.Sprintf("idle:%d", idx)
}

func (w *testWorld) ReleaseControl(e Entity) {
	w.entities[e].control = ""
}

func (w *testWorld) AddEmotes(e Entity, emotes []EmoteEntry) {
	te := w.entities[e]
	te.emotes = append(te.emotes, emotes...)
}

func (w *testWorld) SetEmotes(e Entity, emotes []EmoteEntry) {
	w.entities[e].emotes = slices.Clone(emotes)
}

func (w *testWorld) SetTints(e Entity, tints []Tint) {
	w.entities[e].tints = slices.Clone(tints)
}

func (w *testWorld) Create(info EntityInfo) (Entity, error) {
	w.next++
	e := w.next
	w.entities[e] = &testEntity{
		key:     info.Key,
		variant: info.Variant,
		first:   info.FirstName,
		last:    info.LastName,
		live:    true,
	}
	w.order = append(w.order, e)
	w.created++
	return e, nil
}

func (w *testWorld) UID() PlayerID         { return w.uid }
func (w *testWorld) Money() int64          { return w.money }
func (w *testWorld) AddMoney(d int64)      { w.money += d }
func (w *testWorld) Rating() int16         { return w.rating }
func (w *testWorld) SetRating(r int16)     { w.rating = r }
func (w *testWorld) Config() PlayerConfig  { return w.config }
func (w *testWorld) SetConfig(PlayerConfig) {}

// pair wires an authoritative world to a client world through the
// protocol, with full control over which packets and acks get through.
type pair struct {
	t        *testing.T
	sw, cw   *testWorld
	srv, cli *Snapshots
	peer     *SyncState // server's record of the client's acks
	applied  *SyncState // client's record of what it applied
	tick     DayTick
	cliTick  DayTick
}

const testUID PlayerID = 7

func newPair(t *testing.T) *pair {
	return &pair{
		t:       t,
		sw:      newTestWorld(testUID),
		cw:      newTestWorld(testUID),
		srv:     NewSnapshots(testLogger(), []PlayerID{testUID}),
		cli:     NewSnapshots(testLogger(), []PlayerID{testUID}),
		peer:    NewSyncState(),
		applied: NewSyncState(),
	}
}

func (p *pair) capture() {
	p.tick.Time++
	p.srv.Capture(p.sw, p.tick, capturePlayers(p.sw))
}

func (p *pair) delta() []*protocol.EntityFrame {
	p.t.Helper()
	pkts, err := p.srv.CreateDelta(p.peer, testUID)
	if err != nil {
		p.t.Fatalf("create delta: %v", err)
	}
	return pkts
}

func (p *pair) clientWorld() ClientWorld {
	return ClientWorld{Container: p.cw, Rooms: p.cw, Factory: p.cw, Player: p.cw}
}

func (p *pair) resolve(pkts []*protocol.EntityFrame) ([]*protocol.EntityAckFrame, []*protocol.PlayerAckFrame) {
	p.t.Helper()
	var eas []*protocol.EntityAckFrame
	var pas []*protocol.PlayerAckFrame
	for _, pkt := range pkts {
		ea, pa, err := p.cli.ResolveDelta(p.clientWorld(), p.applied, &p.cliTick, pkt)
		if err != nil {
			p.t.Fatalf("resolve delta: %v", err)
		}
		if ea != nil {
			eas = append(eas, ea)
		}
		if pa != nil {
			pas = append(pas, pa)
		}
	}
	return eas, pas
}

func (p *pair) ack(eas []*protocol.EntityAckFrame, pas []*protocol.PlayerAckFrame) {
	for _, ea := range eas {
		p.peer.AckEntities(ea)
	}
	for _, pa := range pas {
		p.peer.AckPlayer(pa)
	}
}

// sync runs one full tick: capture, encode, deliver, ack. It returns
// the burst for inspection.
func (p *pair) sync() []*protocol.EntityFrame {
	p.t.Helper()
	p.capture()
	pkts := p.delta()
	p.ack(p.resolve(pkts))
	return pkts
}

func (p *pair) clientEntity(slot int) *testEntity {
	p.t.Helper()
	e, ok := p.cli.EntityByID(slot)
	if !ok {
		p.t.Fatalf("no client entity in slot %d", slot)
	}
	return p.cw.get(p.t, e)
}

func TestFirstSyncCreatesWorld(t *testing.T) {
	p := newPair(t)
	p.sw.addRoom(3)
	p.cw.addRoom(3)
	p.sw.money = 5_000
	p.sw.rating = 42
	p.tick = DayTick{Tick: 100, Day: 2}

	a := p.sw.spawn("base/worker", 10.5, 3.25)
	at := p.sw.get(t, a)
	at.owner = pid(3)
	at.room = rid(3)
	at.facing = 0.5
	at.hasFacing = true
	at.data = []byte{0xAA, 0xBB}

	b := p.sw.spawn("base/guest", 1.0, 2.0)
	bt := p.sw.get(t, b)
	bt.owner = pid(3)
	bt.idle = &IdleChoice{Idx: 5}

	p.sw.spawn("base/crate", -4.5, 6.25)

	pkts := p.sync()
	if len(pkts) != 1 {
		t.Fatalf("burst size = %d, want 1", len(pkts))
	}

	if p.cw.created != 3 {
		t.Fatalf("client created %d entities, want 3", p.cw.created)
	}

	ca := p.clientEntity(0)
	if ca.key != "base/worker" || ca.first != "Ada" || ca.last != "Cole" {
		t.Errorf("slot 0 identity = %q %q %q", ca.key, ca.first, ca.last)
	}
	if ca.x != 10.5 || ca.z != 3.25 {
		t.Errorf("slot 0 position = (%v, %v)", ca.x, ca.z)
	}
	if !ca.hasFacing || ca.facing != 0.5 {
		t.Errorf("slot 0 facing = %v (%v)", ca.facing, ca.hasFacing)
	}
	if ca.owner == nil || *ca.owner != 3 {
		t.Errorf("slot 0 owner = %v", ca.owner)
	}
	if ca.control != "room:3" || ca.room == nil || *ca.room != 3 {
		t.Errorf("slot 0 room = %v control %q", ca.room, ca.control)
	}
	ce, _ := p.cli.EntityByID(0)
	if !p.cw.rooms[3][ce] {
		t.Error("slot 0 entity not attached to room 3")
	}
	if !slices.Equal(ca.data, []byte{0xAA, 0xBB}) {
		t.Errorf("slot 0 data = %v", ca.data)
	}

	cb := p.clientEntity(1)
	if cb.idle == nil || cb.idle.Idx != 5 || cb.control != "idle:5" {
		t.Errorf("slot 1 idle = %v control %q", cb.idle, cb.control)
	}

	cc := p.clientEntity(2)
	if cc.control != "" {
		t.Errorf("slot 2 control = %q, want uncontrolled", cc.control)
	}
	if cc.x != -4.5 || cc.z != 6.25 {
		t.Errorf("slot 2 position = (%v, %v)", cc.x, cc.z)
	}

	if p.cw.money != 5_000 || p.cw.rating != 42 {
		t.Errorf("client economy = %d / %d", p.cw.money, p.cw.rating)
	}
	if p.cliTick != p.tick {
		t.Errorf("client clock = %+v, want %+v", p.cliTick, p.tick)
	}
	if p.peer.PlayerFrame() != 1 {
		t.Errorf("player ack = %d, want 1", p.peer.PlayerFrame())
	}
}

func TestUpdateMovesEntity(t *testing.T) {
	p := newPair(t)
	e := p.sw.spawn("base/worker", 10.5, 3.25)
	p.sync()

	// A far target starts client pathfinding.
	te := p.sw.get(t, e)
	te.moving = true
	te.moveX, te.moveZ, te.moveTime = 12.5, 3.25, 2.0
	p.sync()

	ce := p.clientEntity(0)
	if !ce.moving || ce.moveX != 12.5 || ce.moveTime != 2.0 {
		t.Fatalf("client not pathfinding: %+v", ce)
	}
	if ce.x != 10.5 {
		t.Fatalf("client position jumped to %v", ce.x)
	}

	// The authority arriving only zeroes the travel time; the client is
	// left to finish its own pathfinding.
	te.moving = false
	te.x, te.z = 12.5, 3.25
	p.sync()
	if !ce.moving {
		t.Fatal("client path cleared by arrival frame")
	}

	// A tiny travel time snaps the entity into place.
	te.moving = true
	te.moveX, te.moveZ, te.moveTime = 12.5, 3.25, 0.03125
	p.sync()
	if ce.moving {
		t.Fatal("client still pathfinding after snap")
	}
	if ce.x != 12.5 || ce.z != 3.25 {
		t.Errorf("client position = (%v, %v), want snapped (12.5, 3.25)", ce.x, ce.z)
	}
}

func TestHeldEntityFollowsHolder(t *testing.T) {
	p := newPair(t)
	mine := p.sw.spawn("base/crate", 1.5, 1.5)
	theirs := p.sw.spawn("base/crate", 2.5, 2.5)
	p.sync()

	mt := p.sw.get(t, mine)
	mt.selected = pid(testUID)
	mt.moving = true
	mt.moveX, mt.moveZ, mt.moveTime = 8.5, 8.5, 1.0

	tt := p.sw.get(t, theirs)
	tt.selected = pid(9)
	tt.moving = true
	tt.moveX, tt.moveZ, tt.moveTime = 9.5, 9.5, 1.0
	p.sync()

	cm := p.clientEntity(0)
	if !cm.lifted {
		t.Error("held entity not lifted")
	}
	if cm.moving || cm.x != 1.5 {
		t.Errorf("locally held entity moved: %+v", cm)
	}

	ct := p.clientEntity(1)
	if !ct.lifted {
		t.Error("remotely held entity not lifted")
	}
	if !ct.moving || ct.moveX != 9.5 {
		t.Errorf("remotely held entity did not follow: %+v", ct)
	}
}

func TestRemovedEntityFreesSlot(t *testing.T) {
	p := newPair(t)
	a := p.sw.spawn("base/worker", 1.5, 0)
	p.sw.spawn("base/worker", 2.5, 0)
	p.sync()

	first, _ := p.cli.EntityByID(0)
	p.sw.kill(a)
	p.sync()

	if _, ok := p.cli.EntityByID(0); ok {
		t.Fatal("slot 0 still occupied on client")
	}
	if p.cw.Live(first) {
		t.Fatal("removed entity still live on client")
	}
	if _, ok := p.cli.EntityByID(1); !ok {
		t.Fatal("slot 1 lost")
	}

	// The freed slot is reused for the next spawn.
	p.sw.spawn("base/guest", 3.5, 0)
	p.sync()
	ce := p.clientEntity(0)
	if ce.key != "base/guest" {
		t.Errorf("slot 0 key = %q, want the new entity", ce.key)
	}
	if p.cw.created != 3 {
		t.Errorf("client created %d entities, want 3", p.cw.created)
	}
}

func TestUnchangedWorldSendsTinyUpdates(t *testing.T) {
	p := newPair(t)
	for i := 0; i < 300; i++ {
		p.sw.spawn("base/crowd", float32(i)*0.5, 0)
	}

	burst1 := p.sync()
	if len(burst1) < 2 {
		t.Fatalf("add burst = %d packets, want several", len(burst1))
	}
	for i, pkt := range burst1 {
		if len(pkt.Data) > protocol.FragmentSize {
			t.Errorf("packet %d is %d bytes, over the fragment budget", i, len(pkt.Data))
		}
	}
	if p.cw.created != 300 {
		t.Fatalf("client created %d entities, want 300", p.cw.created)
	}
	for i := 0; i < 300; i++ {
		if ce := p.clientEntity(i); ce.x != float32(i)*0.5 {
			t.Fatalf("slot %d position = %v", i, ce.x)
		}
	}

	// With nothing changed, rows shrink to their changed bits and only
	// the count byte forces a split.
	p.capture()
	burst2 := p.delta()
	eas, _ := p.resolve(burst2)
	if len(burst2) != 2 {
		t.Fatalf("unchanged burst = %d packets, want 2", len(burst2))
	}
	if len(eas) != 2 || eas[0].EntityCount != 255 || eas[1].EntityOffset != 255 || eas[1].EntityCount != 45 {
		t.Errorf("acks = %+v / %+v", eas[0], eas[1])
	}
	if len(burst2[0].Data) >= len(burst1[0].Data) {
		t.Errorf("unchanged packet (%d bytes) not smaller than add packet (%d bytes)",
			len(burst2[0].Data), len(burst1[0].Data))
	}
}

func TestBaseChangeForcesSplit(t *testing.T) {
	p := newPair(t)
	p.sw.spawn("base/worker", 1.5, 0)
	p.sync()

	// Slot 0 updates against an acked frame while slot 1 is brand new,
	// so the burst needs two packets.
	p.sw.spawn("base/guest", 2.5, 0)
	p.capture()
	pkts := p.delta()
	if len(pkts) != 2 {
		t.Fatalf("burst = %d packets, want 2", len(pkts))
	}
	eas, _ := p.resolve(pkts)
	if len(eas) != 2 {
		t.Fatalf("acks = %d, want 2", len(eas))
	}
	if eas[0].EntityOffset != 0 || eas[0].EntityCount != 1 {
		t.Errorf("first ack = %+v", eas[0])
	}
	if eas[1].EntityOffset != 1 || eas[1].EntityCount != 1 {
		t.Errorf("second ack = %+v", eas[1])
	}
	if p.cw.created != 2 {
		t.Errorf("client created %d entities, want 2", p.cw.created)
	}
}

func TestStaleBurstIsIgnored(t *testing.T) {
	p := newPair(t)
	e := p.sw.spawn("base/worker", 1.5, 0)
	p.sw.money = 5_000
	stale := p.sync()

	p.sw.money = 6_000
	p.sw.get(t, e).x = 4.5
	p.sync()

	ce := p.clientEntity(0)
	if p.cw.money != 6_000 {
		t.Fatalf("client money = %d before redelivery", p.cw.money)
	}

	// Redelivering the first burst must not roll anything back.
	eas, pas := p.resolve(stale)
	if p.cw.money != 6_000 {
		t.Errorf("client money rolled back to %d", p.cw.money)
	}
	if p.cliTick.Time != 2 {
		t.Errorf("client clock rolled back to %d", p.cliTick.Time)
	}
	if got := ce.x; got != 4.5 && got != 1.5 {
		t.Errorf("client position = %v", got)
	}
	if ce.moving {
		t.Error("stale burst restarted pathfinding")
	}

	// The acks it produces are for the old frame and must not regress
	// the server's record.
	if len(pas) != 1 || pas[0].Frame != 1 {
		t.Fatalf("player ack = %+v", pas)
	}
	p.ack(eas, pas)
	if p.peer.PlayerFrame() != 2 {
		t.Errorf("peer player frame = %d, want 2", p.peer.PlayerFrame())
	}
}

func TestServerBaseEvictionFallsBackToAdd(t *testing.T) {
	p := newPair(t)
	e := p.sw.spawn("base/worker", 10.5, 3.25)
	p.sync()
	created := p.cw.created

	// The client goes quiet while the world keeps ticking; by the time
	// it is heard from again its acked base has left the ring.
	p.sw.get(t, e).x = 20.0
	for i := 0; i < historySize+2; i++ {
		p.capture()
	}

	pkts := p.delta()
	if len(pkts) != 1 {
		t.Fatalf("burst = %d packets, want 1", len(pkts))
	}
	r := protocol.NewBitReader(pkts[0].Data)
	if _, err := r.ReadBits(14); err != nil {
		t.Fatal(err)
	}
	base, err := r.ReadBits(14)
	if err != nil {
		t.Fatal(err)
	}
	if uint16(base) != InvalidFrame {
		t.Fatalf("burst base = %#x, want full-state marker", base)
	}

	// The full add folds back onto the surviving entity.
	p.ack(p.resolve(pkts))
	if p.cw.created != created {
		t.Errorf("entity recreated: created = %d", p.cw.created)
	}
	ce := p.clientEntity(0)
	if ce.x != 20.0 {
		t.Errorf("position = %v, want 20 from the full state", ce.x)
	}
	handle, _ := p.cli.EntityByID(0)
	if !p.cw.Live(handle) {
		t.Error("entity not live after fold")
	}
}

func TestLateFrameAfterClientEvictedBase(t *testing.T) {
	p := newPair(t)
	p.sw.spawn("base/worker", 10.5, 3.25)

	// Only the entity ack reaches the server, so later bursts keep
	// carrying full player state.
	p.capture()
	eas, _ := p.resolve(p.delta())
	p.ack(eas, nil)

	// This burst is encoded against the acked base and then delayed in
	// flight for longer than the ring remembers.
	p.capture()
	delayed := p.delta()

	for i := 0; i < historySize+2; i++ {
		p.capture()
		eas, _ = p.resolve(p.delta())
		p.ack(eas, nil)
	}

	ea, pa, err := p.cli.ResolveDelta(p.clientWorld(), p.applied, &p.cliTick, delayed[0])
	if err != nil {
		t.Fatalf("late frame errored: %v", err)
	}
	if ea != nil {
		t.Errorf("entity ack %+v for a base the client no longer holds", ea)
	}
	if pa == nil || pa.Frame != 2 {
		t.Errorf("player ack = %+v, want frame 2", pa)
	}
}

func TestSlotReuseReplacesDifferentEntity(t *testing.T) {
	p := newPair(t)
	p.sw.spawn("base/worker", 1.5, 2.5)
	p.sync()
	old, _ := p.cli.EntityByID(0)

	// The authority restarts: new history, fresh ack state, and a
	// different occupant in slot 0.
	p.sw = newTestWorld(testUID)
	p.srv = NewSnapshots(testLogger(), []PlayerID{testUID})
	p.peer = NewSyncState()
	p.applied = NewSyncState()
	p.tick = DayTick{}
	p.sw.spawn("base/machine", 4.5, 0.5)
	p.sync()

	if p.cw.Live(old) {
		t.Error("replaced entity still live")
	}
	ce := p.clientEntity(0)
	if ce.key != "base/machine" {
		t.Errorf("slot 0 key = %q, want replacement", ce.key)
	}
	if ce.x != 4.5 || ce.z != 0.5 {
		t.Errorf("replacement position = (%v, %v)", ce.x, ce.z)
	}
	if p.cw.created != 2 {
		t.Errorf("created = %d, want 2", p.cw.created)
	}
}

func TestRoomLifecycle(t *testing.T) {
	p := newPair(t)
	for _, r := range []RoomID{3, 4} {
		p.sw.addRoom(r)
		p.cw.addRoom(r)
	}
	e := p.sw.spawn("base/worker", 1.5, 0)
	te := p.sw.get(t, e)
	te.room = rid(3)
	p.sync()

	ce := p.clientEntity(0)
	handle, _ := p.cli.EntityByID(0)
	if ce.control != "room:3" || !p.cw.rooms[3][handle] {
		t.Fatalf("not attached to room 3: control %q", ce.control)
	}

	te.room = rid(4)
	p.sync()
	if ce.control != "room:4" {
		t.Errorf("control = %q, want room:4", ce.control)
	}
	if p.cw.rooms[3][handle] || !p.cw.rooms[4][handle] {
		t.Errorf("membership: room3=%v room4=%v", p.cw.rooms[3][handle], p.cw.rooms[4][handle])
	}

	te.room = nil
	p.sync()
	if ce.control != "" {
		t.Errorf("control = %q, want released", ce.control)
	}
	if p.cw.rooms[4][handle] {
		t.Error("still attached to room 4")
	}
}

func TestIdleLifecycle(t *testing.T) {
	p := newPair(t)
	e := p.sw.spawn("base/guest", 1.5, 0)
	te := p.sw.get(t, e)
	te.owner = pid(3)
	te.idle = &IdleChoice{Idx: 5}
	p.sync()

	ce := p.clientEntity(0)
	if ce.idle == nil || ce.idle.Idx != 5 || ce.control != "idle:5" {
		t.Fatalf("idle not applied: %v %q", ce.idle, ce.control)
	}

	te.idle = &IdleChoice{Idx: 9}
	p.sync()
	if ce.idle == nil || ce.idle.Idx != 9 || ce.control != "idle:9" {
		t.Errorf("idle change not applied: %v %q", ce.idle, ce.control)
	}

	te.idle = nil
	p.sync()
	if ce.idle != nil || ce.control != "" {
		t.Errorf("idle not cleared: %v %q", ce.idle, ce.control)
	}
}

func TestScriptDataEmotesAndTints(t *testing.T) {
	p := newPair(t)
	e := p.sw.spawn("base/worker", 1.5, 0)
	te := p.sw.get(t, e)
	te.tints = []Tint{{R: 10, G: 20, B: 30, A: 255}}
	p.sync()

	ce := p.clientEntity(0)
	if !slices.Equal(ce.tints, te.tints) {
		t.Fatalf("tints not applied on add: %v", ce.tints)
	}

	te.data = []byte{1, 2, 3}
	p.sync()
	if !slices.Equal(ce.data, []byte{1, 2, 3}) {
		t.Errorf("script data = %v", ce.data)
	}

	te.data = nil
	p.sync()
	if ce.data != nil {
		t.Errorf("script data not cleared: %v", ce.data)
	}

	// Emote updates extend the queue; an emptied list is left alone.
	te.emotes = []EmoteEntry{{Slot: 0, Kind: EmotePaid}}
	p.sync()
	if !slices.Equal(ce.emotes, te.emotes) {
		t.Errorf("emotes = %v", ce.emotes)
	}
	te.emotes = nil
	p.sync()
	if len(ce.emotes) != 1 {
		t.Errorf("emote queue changed by empty update: %v", ce.emotes)
	}

	// Tint changes only travel with adds, never updates.
	te.tints = []Tint{{R: 99, G: 99, B: 99, A: 255}}
	p.sync()
	if ce.tints[0].R != 10 {
		t.Errorf("update rewrote tints: %v", ce.tints)
	}
}

func TestEmptyWorldKeepsClockFlowing(t *testing.T) {
	p := newPair(t)
	p.sw.money = 1_000

	p.capture()
	pkts := p.delta()
	if len(pkts) != 1 {
		t.Fatalf("burst = %d packets, want 1", len(pkts))
	}
	eas, pas := p.resolve(pkts)
	if len(eas) != 1 || eas[0].EntityOffset != 0 || eas[0].EntityCount != 0 {
		t.Errorf("entity ack = %+v", eas)
	}
	if len(pas) != 1 {
		t.Fatalf("player ack missing")
	}
	p.ack(eas, pas)

	if p.cw.money != 1_000 {
		t.Errorf("client money = %d", p.cw.money)
	}
	if p.cliTick.Time != 1 {
		t.Errorf("client clock = %+v", p.cliTick)
	}

	// The next tick deltas the player state against the acked frame.
	p.sw.money = 1_250
	p.sync()
	if p.cw.money != 1_250 {
		t.Errorf("client money = %d after delta", p.cw.money)
	}
}

func TestFreshPeerSkipsLeadingEmptySlots(t *testing.T) {
	p := newPair(t)
	handles := make([]Entity, 6)
	for i := range handles {
		handles[i] = p.sw.spawn("base/worker", float32(i)*1.5, 0)
	}
	p.sync()
	for _, e := range handles[:5] {
		p.sw.kill(e)
	}
	p.sync()

	// A second peer joining now should only hear about slot 5.
	cw2 := newTestWorld(testUID)
	cli2 := NewSnapshots(testLogger(), []PlayerID{testUID})
	applied2 := NewSyncState()
	var tick2 DayTick

	p.capture()
	pkts, err := p.srv.CreateDelta(NewSyncState(), testUID)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkts) != 1 {
		t.Fatalf("burst = %d packets, want 1", len(pkts))
	}
	world2 := ClientWorld{Container: cw2, Rooms: cw2, Factory: cw2, Player: cw2}
	ea, _, err := cli2.ResolveDelta(world2, applied2, &tick2, pkts[0])
	if err != nil {
		t.Fatal(err)
	}
	if ea.EntityOffset != 5 || ea.EntityCount != 1 {
		t.Errorf("ack = %+v, want offset 5 count 1", ea)
	}
	if cw2.created != 1 {
		t.Errorf("second client created %d entities, want 1", cw2.created)
	}
	if _, ok := cli2.EntityByID(5); !ok {
		t.Error("slot 5 empty on second client")
	}
}
