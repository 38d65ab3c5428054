package demo

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/snapshot"
)

func testConfig() Config {
	return Config{Students: 4, Width: 32, Height: 24, TickRate: 20, Seed: 7}
}

// stepN advances the world while staying off the day boundary, so the
// books only move when a test crosses it on purpose.
func stepN(w *World, n int) {
	tick := snapshot.DayTick{Tick: 1, Time: 1}
	for i := 0; i < n; i++ {
		w.Step(tick)
		tick.Tick++
		tick.Time++
	}
}

func TestNewWorldLayout(t *testing.T) {
	w := NewWorld(testConfig(), []snapshot.PlayerID{1, 2})

	if got := len(w.Entities()); got != 4 {
		t.Fatalf("spawned %d entities, want 4", got)
	}
	width, height := w.Bounds()
	if width != 32 || height != 24 {
		t.Fatalf("bounds = %dx%d, want 32x24", width, height)
	}
	for _, e := range w.Entities() {
		st := w.State(e)
		if st.Info.Key != KeyStudent {
			t.Fatalf("entity key = %q, want %q", st.Info.Key, KeyStudent)
		}
		if st.Info.FirstName == "" || st.Info.LastName == "" {
			t.Fatalf("entity spawned without a name: %+v", st.Info)
		}
		if st.Target.X < 1 || st.Target.X > 31 || st.Target.Z < 1 || st.Target.Z > 23 {
			t.Fatalf("spawn target (%v, %v) outside bounds", st.Target.X, st.Target.Z)
		}
		if st.Owner != nil {
			t.Fatalf("students must start unowned, got owner %d", *st.Owner)
		}
	}

	if w.Player(1) == nil || w.Player(2) == nil {
		t.Fatal("roster accounts missing")
	}
	if w.Player(3) != nil {
		t.Fatal("unknown player must have no account")
	}
	if got := w.Player(1).Money(); got != startingBalance {
		t.Fatalf("starting balance = %d, want %d", got, startingBalance)
	}
}

func TestStateIsDetached(t *testing.T) {
	w := NewWorld(testConfig(), nil)
	e := w.Entities()[0]

	st := w.State(e)
	*st.Target.Facing = 99
	if got := *w.State(e).Target.Facing; got == 99 {
		t.Fatal("mutating a captured facing leaked into the world")
	}

	st.Data[0] ^= 0xff
	fresh := w.State(e)
	if slices.Equal(fresh.Data, st.Data) {
		t.Fatal("mutating a captured script blob leaked into the world")
	}
}

func TestStepMovesStudents(t *testing.T) {
	w := NewWorld(testConfig(), nil)

	before := make(map[snapshot.Entity][2]float32)
	for _, e := range w.Entities() {
		st := w.State(e)
		before[e] = [2]float32{st.Target.X, st.Target.Z}
	}

	stepN(w, 600)

	moved := 0
	for _, e := range w.Entities() {
		st := w.State(e)
		if st.Target.X < 1 || st.Target.X > 31 || st.Target.Z < 1 || st.Target.Z > 23 {
			t.Fatalf("target (%v, %v) wandered outside bounds", st.Target.X, st.Target.Z)
		}
		if b := before[e]; st.Target.X != b[0] || st.Target.Z != b[1] {
			moved++
		}
	}
	if moved == 0 {
		t.Fatal("no student picked a new waypoint in 600 ticks")
	}
}

func TestDaySettlement(t *testing.T) {
	w := NewWorld(Config{Students: 10, Seed: 3}, []snapshot.PlayerID{1})
	acct := w.Player(1)

	w.Step(snapshot.DayTick{Tick: 0, Day: 1})
	want := int64(startingBalance) + 10*dailyTuition
	if got := acct.Money(); got != want {
		t.Fatalf("after first day: money = %d, want %d", got, want)
	}

	if _, err := w.Execute(1, HireCommand("", "")); err != nil {
		t.Fatalf("hire: %v", err)
	}
	mid := acct.Money()
	if mid != want-hireCost {
		t.Fatalf("after hire: money = %d, want %d", mid, want-hireCost)
	}

	w.Step(snapshot.DayTick{Tick: 0, Day: 2})
	want = mid + 10*dailyTuition - dailyWage
	if got := acct.Money(); got != want {
		t.Fatalf("after second day: money = %d, want %d", got, want)
	}
}

func TestExecuteHireAndDismiss(t *testing.T) {
	w := NewWorld(Config{Students: 1, Seed: 5}, []snapshot.PlayerID{3})

	forward, err := w.Execute(3, HireCommand("Rae", "Campos"))
	if err != nil || !forward {
		t.Fatalf("hire: forward=%v err=%v", forward, err)
	}

	var staff *snapshot.EntityState
	for _, e := range w.Entities() {
		st := w.State(e)
		if st.Info.Key == KeyStaff {
			staff = &st
		}
	}
	if staff == nil {
		t.Fatal("hire spawned no staff")
	}
	if staff.Owner == nil || *staff.Owner != 3 {
		t.Fatalf("staff owner = %v, want 3", staff.Owner)
	}
	if staff.Info.FirstName != "Rae" || staff.Info.LastName != "Campos" {
		t.Fatalf("staff name = %s %s", staff.Info.FirstName, staff.Info.LastName)
	}
	if len(staff.Tints) == 0 {
		t.Fatal("staff must carry their employer's colors")
	}

	forward, err = w.Execute(3, CheerCommand())
	if err != nil || forward {
		t.Fatalf("cheer: forward=%v err=%v", forward, err)
	}
	cheered := false
	for _, e := range w.Entities() {
		st := w.State(e)
		if st.Info.Key == KeyStaff && len(st.Emotes) > 0 && st.Emotes[0].Kind == snapshot.EmotePaid {
			cheered = true
		}
	}
	if !cheered {
		t.Fatal("cheer queued no emote on the staff")
	}

	forward, err = w.Execute(3, DismissCommand())
	if err != nil || !forward {
		t.Fatalf("dismiss: forward=%v err=%v", forward, err)
	}
	if got := len(w.Entities()); got != 1 {
		t.Fatalf("after dismissal %d entities remain, want 1", got)
	}

	if _, err := w.Execute(3, DismissCommand()); err == nil {
		t.Fatal("dismissing with no staff must fail")
	}
}

func TestExecuteRejections(t *testing.T) {
	w := NewWorld(Config{Students: 1, Seed: 5}, []snapshot.PlayerID{9})
	w.accounts[9].money = hireCost - 1

	if _, err := w.Execute(9, HireCommand("", "")); err == nil {
		t.Fatal("hiring while broke must fail")
	}
	if _, err := w.Execute(9, []byte{0x7f}); err == nil {
		t.Fatal("unknown verb must fail")
	}
	if _, err := w.Execute(42, CheerCommand()); err == nil {
		t.Fatal("command from an unknown player must fail")
	}
	if _, err := w.Execute(9, nil); err == nil {
		t.Fatal("empty command body must fail")
	}
}

func TestStatsSampling(t *testing.T) {
	w := NewWorld(Config{Students: 6, Seed: 2}, []snapshot.PlayerID{1})

	if pkt := w.TakeStats(1); pkt != nil {
		t.Fatalf("stats before the first sample: %+v", pkt)
	}

	stepN(w, statsEvery)
	pkt := w.TakeStats(1)
	if pkt == nil {
		t.Fatal("no stats after a full sample interval")
	}
	if pkt.UpdateID != 1 || len(pkt.History) != 1 {
		t.Fatalf("UpdateID=%d len=%d, want 1/1", pkt.UpdateID, len(pkt.History))
	}
	entry := pkt.History[0]
	if entry.Students != 6 {
		t.Fatalf("Students = %d, want 6", entry.Students)
	}
	if entry.Total != startingBalance {
		t.Fatalf("Total = %d, want %d", entry.Total, startingBalance)
	}
	var graded uint32
	for _, g := range entry.Grades {
		graded += g
	}
	if graded != 6 {
		t.Fatalf("grade histogram covers %d students, want 6", graded)
	}

	if pkt := w.TakeStats(1); pkt != nil {
		t.Fatal("stats must drain on take")
	}

	stepN(w, 2*statsEvery)
	pkt = w.TakeStats(1)
	if pkt == nil || pkt.UpdateID != 3 || len(pkt.History) != 2 {
		t.Fatalf("accumulated stats: %+v", pkt)
	}

	if pkt := w.TakeStats(99); pkt != nil {
		t.Fatal("stats for an unknown player")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	w := NewWorld(Config{Students: 5, Width: 32, Height: 24, Seed: 11}, []snapshot.PlayerID{1, 2})
	if _, err := w.Execute(1, HireCommand("Sam", "Ochoa")); err != nil {
		t.Fatalf("hire: %v", err)
	}
	stepN(w, 50)

	blob := w.EncodeState()
	r, err := Restore(Config{}, blob, []snapshot.PlayerID{1, 2, 3})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	width, height := r.Bounds()
	if width != 32 || height != 24 {
		t.Fatalf("restored bounds %dx%d, want 32x24", width, height)
	}
	if got, want := len(r.Entities()), len(w.Entities()); got != want {
		t.Fatalf("restored %d entities, want %d", got, want)
	}
	for i, e := range w.order {
		a := w.actors[e]
		ra := r.actors[r.order[i]]
		if ra.key != a.key || ra.first != a.first || ra.last != a.last {
			t.Fatalf("actor %d identity changed: %s %s (%s) vs %s %s (%s)",
				i, ra.first, ra.last, ra.key, a.first, a.last, a.key)
		}
		if ra.x != a.x || ra.z != a.z {
			t.Fatalf("actor %d moved across the save: (%v,%v) vs (%v,%v)", i, ra.x, ra.z, a.x, a.z)
		}
	}

	if got, want := r.Player(1).Money(), w.Player(1).Money(); got != want {
		t.Fatalf("restored balance = %d, want %d", got, want)
	}
	if r.Player(3) == nil || r.Player(3).Money() != startingBalance {
		t.Fatal("new roster member must start with a fresh account")
	}

	staff, ok := r.lastStaff(1)
	if !ok {
		t.Fatal("restored campus lost the hired staff")
	}
	if st := r.State(staff); len(st.Tints) == 0 {
		t.Fatal("restored staff lost their colors")
	}
}

func TestRestoreRejectsBadBlobs(t *testing.T) {
	w := NewWorld(testConfig(), nil)
	blob := w.EncodeState()

	bad := slices.Clone(blob)
	bad[0] = 9
	if _, err := Restore(Config{}, bad, nil); err == nil || !strings.Contains(err.Error(), "version") {
		t.Fatalf("version mismatch not rejected: %v", err)
	}

	if _, err := Restore(Config{}, blob[:5], nil); err == nil {
		t.Fatal("truncated blob not rejected")
	}
}

func TestFactory(t *testing.T) {
	factory := Factory(Config{Students: 3, Seed: 4})

	game, err := factory(nil, []snapshot.PlayerID{1})
	if err != nil {
		t.Fatalf("fresh: %v", err)
	}
	if got := len(game.Entities()); got != 3 {
		t.Fatalf("fresh campus has %d entities, want 3", got)
	}

	restored, err := factory(game.EncodeState(), []snapshot.PlayerID{1})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := len(restored.Entities()); got != 3 {
		t.Fatalf("restored campus has %d entities, want 3", got)
	}
}

func TestInfoHandler(t *testing.T) {
	w := NewWorld(Config{Students: 3, Seed: 4}, []snapshot.PlayerID{1})
	w.Step(snapshot.DayTick{Tick: 5, Day: 2, Time: 10})

	body, err := w.InfoHandler()(context.Background(), InfoKind.String(), nil)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	var info Info
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("reply not JSON: %v", err)
	}
	if info.Day != 2 || info.Students != 3 || info.Staff != 0 {
		t.Fatalf("info = %+v", info)
	}
	if info.Balances["1"] != startingBalance {
		t.Fatalf("balance = %d, want %d", info.Balances["1"], startingBalance)
	}
}

func TestSession(t *testing.T) {
	s := NewSession(Config{Students: 2, Seed: 8})
	info := s.Requests()[InfoKind]
	if info == nil {
		t.Fatal("no info handler registered")
	}
	if _, err := info(context.Background(), InfoKind.String(), nil); err == nil {
		t.Fatal("info before the session starts must fail")
	}

	game, err := s.Factory()(nil, []snapshot.PlayerID{1})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if w, ok := game.(*World); !ok || w != s.World() {
		t.Fatal("session did not latch the started world")
	}

	body, err := info(context.Background(), InfoKind.String(), nil)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	var reply Info
	if err := json.Unmarshal(body, &reply); err != nil {
		t.Fatalf("reply not JSON: %v", err)
	}
	if reply.Students != 2 {
		t.Fatalf("info students = %d, want 2", reply.Students)
	}
}

func TestActivityName(t *testing.T) {
	w := NewWorld(testConfig(), nil)
	table := w.Strings()

	st := w.State(w.Entities()[0])
	name, err := ActivityName(table, st.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !slices.Contains(table, name) {
		t.Fatalf("activity %q not in the table", name)
	}

	bw := protocol.NewBitWriter(2)
	bw.WriteUvarint(99)
	if _, err := ActivityName(table, bw.Bytes()); err == nil {
		t.Fatal("out-of-table index not rejected")
	}
	if _, err := ActivityName(table, nil); err == nil {
		t.Fatal("empty blob not rejected")
	}
}
