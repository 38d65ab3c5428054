package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/gridwire-go/gridwire/pkg/middleware"
	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/server"
	"github.com/gridwire-go/gridwire/pkg/snapshot"
)

// Entity type keys used by the campus.
const (
	KeyStudent = "student"
	KeyStaff   = "staff"
)

// Campus layout and economy defaults.
const (
	DefaultStudents = 24
	DefaultWidth    = 64
	DefaultHeight   = 48

	startingBalance = 10_000
	startingRating  = 500
	maxRating       = 999
	hireCost        = 1_500
	dailyTuition    = 35
	dailyWage       = 90

	walkSpeed  = 1.6 // units per second
	statsEvery = 240 // ticks between economy samples
)

// Command verbs understood by Execute. Clients build payloads with the
// *Command helpers below and run them locally before reporting them.
const (
	cmdHire    = 0x01
	cmdDismiss = 0x02
	cmdCheer   = 0x03
)

// activities is the string table handed to clients in the session
// handshake; entity script blobs reference it by index.
var activities = []string{"wandering", "lecture", "queue", "resting"}

const actWandering = 0

var firstNames = []string{
	"Ada", "Brook", "Casey", "Dev", "Ellis", "Frankie", "Gale", "Harper",
	"Indigo", "Jules", "Kit", "Lake", "Morgan", "Noor", "Parker", "Quinn",
}

var lastNames = []string{
	"Abbott", "Barnes", "Calloway", "Doyle", "Eastman", "Finch", "Granger",
	"Holt", "Iverson", "Jennings", "Knox", "Lowell", "Merritt", "North",
	"Pike", "Rowan",
}

// InfoKind tags the campus-info request served by InfoHandler.
var InfoKind = protocol.Kind("info")

// Config shapes a fresh campus.
type Config struct {
	Students int    // wandering students, DefaultStudents when 0
	Width    uint32 // level bounds, DefaultWidth/DefaultHeight when 0
	Height   uint32
	TickRate int   // server ticks per second, 20 when 0
	Seed     int64 // rng seed, fixed default when 0
}

func (c Config) withDefaults() Config {
	if c.Students == 0 {
		c.Students = DefaultStudents
	}
	if c.Students < 0 {
		c.Students = 0
	}
	if c.Width == 0 {
		c.Width = DefaultWidth
	}
	if c.Height == 0 {
		c.Height = DefaultHeight
	}
	if c.TickRate <= 0 {
		c.TickRate = 20
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
	return c
}

// World is a small self-running campus: students wander between
// waypoints, staff hired by players follow them around, and every
// account moves with the day cycle. It implements the complete
// authoritative-game surface, so the serve command and the load rig
// exercise the same contracts a real game would.
//
// Like any game driven by the sync server, all methods run on the tick
// goroutine.
type World struct {
	cfg   Config
	rng   *rand.Rand
	clock snapshot.DayTick

	next   snapshot.Entity
	order  []snapshot.Entity
	actors map[snapshot.Entity]*actor

	accounts map[snapshot.PlayerID]*Account
	sampleIn int
}

var (
	_ server.Game          = (*World)(nil)
	_ server.StatsProvider = (*World)(nil)
)

type actor struct {
	key         string
	variant     uint8
	first, last string
	owner       *snapshot.PlayerID
	tints       []snapshot.Tint

	x, z   float32
	facing float32
	tx, tz float32
	travel int // ticks left to reach the waypoint
	rest   int // idle ticks before picking the next one

	activity uint8
	emotes   []snapshot.EmoteEntry
	emoteTTL int
}

// NewWorld lays out a fresh campus for the given roster.
func NewWorld(cfg Config, players []snapshot.PlayerID) *World {
	w := newEmpty(cfg)
	for _, uid := range players {
		w.ensureAccount(uid)
	}
	for i := 0; i < w.cfg.Students; i++ {
		w.spawn(KeyStudent, uint8(w.rng.IntN(6)), nil)
	}
	return w
}

func newEmpty(cfg Config) *World {
	cfg = cfg.withDefaults()
	return &World{
		cfg:      cfg,
		rng:      rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)^0x9e3779b97f4a7c15)),
		actors:   make(map[snapshot.Entity]*actor),
		accounts: make(map[snapshot.PlayerID]*Account),
		sampleIn: statsEvery,
	}
}

// Factory adapts the campus to the server's game-construction hook. A
// nil save lays out a fresh campus; otherwise the saved one is restored
// and any roster members it does not know get fresh accounts.
func Factory(cfg Config) server.GameFactory {
	return func(save []byte, players []snapshot.PlayerID) (server.Game, error) {
		if len(save) == 0 {
			return NewWorld(cfg, players), nil
		}
		return Restore(cfg, save, players)
	}
}

func (w *World) ensureAccount(uid snapshot.PlayerID) *Account {
	if a, ok := w.accounts[uid]; ok {
		return a
	}
	a := &Account{uid: uid, money: startingBalance, rating: startingRating}
	w.accounts[uid] = a
	return a
}

func (w *World) spawn(key string, variant uint8, owner *snapshot.PlayerID) snapshot.Entity {
	w.next++
	e := w.next
	a := &actor{
		key:     key,
		variant: variant,
		first:   firstNames[w.rng.IntN(len(firstNames))],
		last:    lastNames[w.rng.IntN(len(lastNames))],
		owner:   owner,
		x:       1 + w.rng.Float32()*float32(w.cfg.Width-2),
		z:       1 + w.rng.Float32()*float32(w.cfg.Height-2),
	}
	a.tx, a.tz = a.x, a.z
	a.rest = w.rng.IntN(2 * w.cfg.TickRate)
	if owner != nil {
		a.tints = staffTints(*owner)
	}
	w.actors[e] = a
	w.order = append(w.order, e)
	return e
}

func (w *World) remove(e snapshot.Entity) {
	delete(w.actors, e)
	for i, h := range w.order {
		if h == e {
			w.order = append(w.order[:i], w.order[i+1:]...)
			return
		}
	}
}

// staffTints derives a stable uniform color from the employing player.
func staffTints(uid snapshot.PlayerID) []snapshot.Tint {
	base := uint8(40 + (int(uid)*53)&0x7f)
	return []snapshot.Tint{
		{R: base, G: 90, B: 220 - base/2, A: 255},
		{R: 230, G: 230, B: 240, A: 255},
	}
}

// Step advances every actor and settles the books on day boundaries.
func (w *World) Step(tick snapshot.DayTick) {
	w.clock = tick
	if tick.Tick == 0 {
		w.settleDay()
	}
	for _, e := range w.order {
		w.stepActor(w.actors[e])
	}
	w.sampleIn--
	if w.sampleIn <= 0 {
		w.sampleIn = statsEvery
		w.sampleStats()
	}
}

func (w *World) stepActor(a *actor) {
	if a.emoteTTL > 0 {
		a.emoteTTL--
		if a.emoteTTL == 0 {
			a.emotes = nil
		}
	}
	if a.travel > 0 {
		a.x += (a.tx - a.x) / float32(a.travel)
		a.z += (a.tz - a.z) / float32(a.travel)
		a.travel--
		if a.travel == 0 {
			a.x, a.z = a.tx, a.tz
			a.rest = 2*w.cfg.TickRate + w.rng.IntN(8*w.cfg.TickRate)
			a.activity = uint8(1 + w.rng.IntN(len(activities)-1))
		}
		return
	}
	if a.rest > 0 {
		a.rest--
		return
	}
	w.sendSomewhere(a)
}

// sendSomewhere picks a fresh waypoint and turns the actor toward it.
func (w *World) sendSomewhere(a *actor) {
	a.tx = 1 + w.rng.Float32()*float32(w.cfg.Width-2)
	a.tz = 1 + w.rng.Float32()*float32(w.cfg.Height-2)
	dx := float64(a.tx - a.x)
	dz := float64(a.tz - a.z)
	a.facing = float32(math.Atan2(dz, dx))
	ticks := int(math.Hypot(dx, dz) / walkSpeed * float64(w.cfg.TickRate))
	if ticks < 1 {
		ticks = 1
	}
	a.travel = ticks
	a.activity = actWandering
	if w.rng.IntN(8) == 0 {
		a.emotes = []snapshot.EmoteEntry{{Slot: 0, Kind: snapshot.EmoteConfused}}
		a.emoteTTL = 2 * w.cfg.TickRate
	}
}

// settleDay charges wages and collects tuition once per game day.
func (w *World) settleDay() {
	students := int64(w.countKey(KeyStudent))
	for _, uid := range w.accountUIDs() {
		acct := w.accounts[uid]
		income := students * dailyTuition
		outcome := int64(w.countOwned(uid)) * dailyWage
		acct.money += income - outcome
		acct.income += income
		acct.outcome += outcome
		switch {
		case income >= outcome && acct.rating < maxRating:
			acct.rating++
		case income < outcome && acct.rating > 0:
			acct.rating--
		}
	}
}

func (w *World) sampleStats() {
	students := uint32(w.countKey(KeyStudent))
	grades := w.gradeHistogram()
	for _, acct := range w.accounts {
		acct.updateID++
		acct.pending = append(acct.pending, protocol.StatsEntry{
			Total:    acct.money,
			Income:   acct.income,
			Outcome:  acct.outcome,
			Students: students,
			Grades:   grades,
		})
		acct.income, acct.outcome = 0, 0
	}
}

// gradeHistogram buckets students by their model variant, standing in
// for real academic performance.
func (w *World) gradeHistogram() [6]uint32 {
	var grades [6]uint32
	for _, e := range w.order {
		if a := w.actors[e]; a.key == KeyStudent {
			grades[a.variant%6]++
		}
	}
	return grades
}

func (w *World) countKey(key string) int {
	n := 0
	for _, e := range w.order {
		if w.actors[e].key == key {
			n++
		}
	}
	return n
}

func (w *World) countOwned(uid snapshot.PlayerID) int {
	n := 0
	for _, e := range w.order {
		a := w.actors[e]
		if a.owner != nil && *a.owner == uid {
			n++
		}
	}
	return n
}

func (w *World) accountUIDs() []snapshot.PlayerID {
	uids := make([]snapshot.PlayerID, 0, len(w.accounts))
	for uid := range w.accounts {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

// Entities returns the live actors in spawn order.
func (w *World) Entities() []snapshot.Entity {
	out := make([]snapshot.Entity, 0, len(w.order))
	out = append(out, w.order...)
	return out
}

func (w *World) Live(e snapshot.Entity) bool {
	_, ok := w.actors[e]
	return ok
}

// State captures one actor for the snapshot layer. Everything returned
// is copied; captured frames outlive the tick that took them.
func (w *World) State(e snapshot.Entity) snapshot.EntityState {
	a := w.actors[e]
	f := a.facing
	st := snapshot.EntityState{
		Info: snapshot.EntityInfo{
			Key:       a.key,
			Variant:   a.variant,
			FirstName: a.first,
			LastName:  a.last,
		},
		Owner: cloneID(a.owner),
		Target: snapshot.Target{
			Time:   float32(a.travel) / float32(w.cfg.TickRate),
			X:      a.tx,
			Z:      a.tz,
			Facing: &f,
		},
		Data: w.activityBlob(a),
	}
	if a.owner != nil && a.travel == 0 && a.rest > 0 {
		st.Idle = &snapshot.IdleChoice{Idx: uint16(a.activity)}
	}
	if len(a.emotes) > 0 {
		st.Emotes = append([]snapshot.EmoteEntry(nil), a.emotes...)
	}
	if len(a.tints) > 0 {
		st.Tints = append([]snapshot.Tint(nil), a.tints...)
	}
	return st
}

func cloneID(p *snapshot.PlayerID) *snapshot.PlayerID {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (w *World) activityBlob(a *actor) []byte {
	bw := protocol.NewBitWriter(2)
	bw.WriteUvarint(uint64(a.activity))
	return bw.Bytes()
}

// ActivityName resolves an entity's script blob against the string
// table from the session handshake.
func ActivityName(table []string, data []byte) (string, error) {
	r := protocol.NewBitReader(data)
	idx, err := r.ReadUvarint()
	if err != nil {
		return "", err
	}
	if idx >= uint64(len(table)) {
		return "", fmt.Errorf("demo: activity %d outside table of %d", idx, len(table))
	}
	return table[idx], nil
}

func (w *World) Bounds() (uint32, uint32) { return w.cfg.Width, w.cfg.Height }

func (w *World) Strings() []string {
	return append([]string(nil), activities...)
}

// Player returns one account's economic view.
func (w *World) Player(uid snapshot.PlayerID) snapshot.Player {
	a, ok := w.accounts[uid]
	if !ok {
		return nil
	}
	return a
}

// TakeStats drains the samples accumulated for one player.
func (w *World) TakeStats(uid snapshot.PlayerID) *protocol.UpdateStats {
	acct, ok := w.accounts[uid]
	if !ok || len(acct.pending) == 0 {
		return nil
	}
	pkt := &protocol.UpdateStats{
		UpdateID: acct.updateID,
		History:  append([]protocol.StatsEntry(nil), acct.pending...),
	}
	acct.pending = acct.pending[:0]
	return pkt
}

// Execute applies one reported command. Hiring and dismissing forward
// to the other players so their copies stay in step; cheering only
// queues emotes, which travel with the snapshots anyway.
func (w *World) Execute(uid snapshot.PlayerID, cmd []byte) (bool, error) {
	acct, ok := w.accounts[uid]
	if !ok {
		return false, fmt.Errorf("demo: no account for player %d", uid)
	}
	r := protocol.NewBitReader(cmd)
	verb, err := r.ReadBits(8)
	if err != nil {
		return false, err
	}
	switch verb {
	case cmdHire:
		first, err := r.ReadString()
		if err != nil {
			return false, err
		}
		last, err := r.ReadString()
		if err != nil {
			return false, err
		}
		if acct.money < hireCost {
			return false, fmt.Errorf("demo: player %d cannot afford staff (%d < %d)", uid, acct.money, hireCost)
		}
		acct.money -= hireCost
		acct.outcome += hireCost
		e := w.spawn(KeyStaff, 0, cloneID(&uid))
		a := w.actors[e]
		if first != "" {
			a.first = first
		}
		if last != "" {
			a.last = last
		}
		return true, nil

	case cmdDismiss:
		e, ok := w.lastStaff(uid)
		if !ok {
			return false, fmt.Errorf("demo: player %d has no staff to dismiss", uid)
		}
		w.remove(e)
		return true, nil

	case cmdCheer:
		for _, e := range w.order {
			a := w.actors[e]
			if a.owner != nil && *a.owner == uid {
				a.emotes = append(a.emotes, snapshot.EmoteEntry{Slot: uint8(len(a.emotes)), Kind: snapshot.EmotePaid})
				a.emoteTTL = 3 * w.cfg.TickRate
			}
		}
		return false, nil

	default:
		return false, fmt.Errorf("demo: unknown command verb 0x%02x", verb)
	}
}

func (w *World) lastStaff(uid snapshot.PlayerID) (snapshot.Entity, bool) {
	for i := len(w.order) - 1; i >= 0; i-- {
		a := w.actors[w.order[i]]
		if a.key == KeyStaff && a.owner != nil && *a.owner == uid {
			return w.order[i], true
		}
	}
	return snapshot.NoEntity, false
}

// HireCommand encodes a hire order. Empty names let the campus pick.
func HireCommand(first, last string) []byte {
	bw := protocol.NewBitWriter(16)
	bw.WriteBits(cmdHire, 8)
	bw.WriteString(first)
	bw.WriteString(last)
	return bw.Bytes()
}

// DismissCommand encodes an order to let the most recent hire go.
func DismissCommand() []byte {
	bw := protocol.NewBitWriter(1)
	bw.WriteBits(cmdDismiss, 8)
	return bw.Bytes()
}

// CheerCommand encodes a round of applause for the player's staff.
func CheerCommand() []byte {
	bw := protocol.NewBitWriter(1)
	bw.WriteBits(cmdCheer, 8)
	return bw.Bytes()
}

// Info is the reply body of a campus-info request.
type Info struct {
	Day      uint32           `json:"day"`
	Students int              `json:"students"`
	Staff    int              `json:"staff"`
	Balances map[string]int64 `json:"balances"`
}

// InfoHandler answers campus-info requests with a JSON summary. Wire it
// under InfoKind; request dispatch runs on the tick goroutine, so
// reading the world here is safe.
func (w *World) InfoHandler() middleware.RequestHandler {
	return func(ctx context.Context, kind string, data []byte) ([]byte, error) {
		info := Info{
			Day:      w.clock.Day,
			Students: w.countKey(KeyStudent),
			Staff:    w.countKey(KeyStaff),
			Balances: make(map[string]int64, len(w.accounts)),
		}
		for uid, acct := range w.accounts {
			info.Balances[fmt.Sprintf("%d", uid)] = acct.money
		}
		return json.Marshal(info)
	}
}

// Account is one player's books. It implements the economic view the
// snapshot layer captures and applies.
type Account struct {
	uid    snapshot.PlayerID
	money  int64
	rating int16
	config snapshot.PlayerConfig

	income, outcome int64
	updateID        uint32
	pending         []protocol.StatsEntry
}

var _ snapshot.Player = (*Account)(nil)

func (a *Account) UID() snapshot.PlayerID { return a.uid }
func (a *Account) Money() int64           { return a.money }
func (a *Account) AddMoney(d int64)       { a.money += d }
func (a *Account) Rating() int16          { return a.rating }
func (a *Account) SetRating(r int16)      { a.rating = r }

func (a *Account) Config() snapshot.PlayerConfig     { return a.config }
func (a *Account) SetConfig(c snapshot.PlayerConfig) { a.config = c }
