package server_test

import (
	"fmt"
	"sync"

	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/server"
	"github.com/gridwire-go/gridwire/pkg/snapshot"
)

// fakeGame is a minimal world for driving the server: two static
// entities, a bank account per player, and a command rule of "anything
// starting with '!' is illegal, anything starting with '.' is private".
// It records every call the server makes so tests can assert on them.
type fakeGame struct {
	mu      sync.Mutex
	save    []byte
	uids    []snapshot.PlayerID
	state   []byte
	steps   int
	execs   []execCall
	players map[snapshot.PlayerID]*fakeAccount
	stats   map[snapshot.PlayerID][]*protocol.UpdateStats
}

type execCall struct {
	uid snapshot.PlayerID
	cmd string
}

func newFakeGame() *fakeGame {
	return &fakeGame{
		state:   []byte("fake-state"),
		players: make(map[snapshot.PlayerID]*fakeAccount),
		stats:   make(map[snapshot.PlayerID][]*protocol.UpdateStats),
	}
}

// factory returns a GameFactory that records its inputs and serves g.
func (g *fakeGame) factory() server.GameFactory {
	return func(save []byte, players []snapshot.PlayerID) (server.Game, error) {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.save = save
		g.uids = append([]snapshot.PlayerID(nil), players...)
		for _, uid := range players {
			g.account(uid)
		}
		return g, nil
	}
}

func (g *fakeGame) Entities() []snapshot.Entity { return []snapshot.Entity{1, 2} }

func (g *fakeGame) Live(snapshot.Entity) bool { return true }

func (g *fakeGame) State(e snapshot.Entity) snapshot.EntityState {
	return snapshot.EntityState{
		Info:   snapshot.EntityInfo{Key: "visitor", FirstName: "v", LastName: fmt.Sprint(e)},
		Target: snapshot.Target{X: float32(e), Z: float32(e)},
	}
}

func (g *fakeGame) Step(snapshot.DayTick) {
	g.mu.Lock()
	g.steps++
	g.mu.Unlock()
}

func (g *fakeGame) Bounds() (uint32, uint32) { return 48, 36 }

func (g *fakeGame) Strings() []string { return []string{"visitor"} }

func (g *fakeGame) EncodeState() []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *fakeGame) Player(uid snapshot.PlayerID) snapshot.Player {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.account(uid)
}

func (g *fakeGame) Execute(uid snapshot.PlayerID, cmd []byte) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(cmd) > 0 && cmd[0] == '!' {
		return false, fmt.Errorf("illegal command %q", cmd)
	}
	g.execs = append(g.execs, execCall{uid, string(cmd)})
	if len(cmd) > 0 && cmd[0] == '.' {
		return false, nil
	}
	return true, nil
}

func (g *fakeGame) TakeStats(uid snapshot.PlayerID) *protocol.UpdateStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	queue := g.stats[uid]
	if len(queue) == 0 {
		return nil
	}
	g.stats[uid] = queue[1:]
	return queue[0]
}

// account returns the player's account, creating it on first use. The
// caller must hold g.mu.
func (g *fakeGame) account(uid snapshot.PlayerID) *fakeAccount {
	a, ok := g.players[uid]
	if !ok {
		a = &fakeAccount{uid: uid, money: 1000, rating: 50}
		g.players[uid] = a
	}
	return a
}

func (g *fakeGame) stepCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.steps
}

func (g *fakeGame) calls() []execCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]execCall(nil), g.execs...)
}

func (g *fakeGame) setState(state []byte) {
	g.mu.Lock()
	g.state = state
	g.mu.Unlock()
}

func (g *fakeGame) queueStats(uid snapshot.PlayerID, pkt *protocol.UpdateStats) {
	g.mu.Lock()
	g.stats[uid] = append(g.stats[uid], pkt)
	g.mu.Unlock()
}

func (g *fakeGame) factoryInputs() ([]byte, []snapshot.PlayerID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.save, append([]snapshot.PlayerID(nil), g.uids...)
}

// fakeAccount is the per-player economy the snapshot layer reads.
type fakeAccount struct {
	mu     sync.Mutex
	uid    snapshot.PlayerID
	money  int64
	rating int16
	config snapshot.PlayerConfig
}

func (a *fakeAccount) UID() snapshot.PlayerID { return a.uid }

func (a *fakeAccount) Money() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.money
}

func (a *fakeAccount) AddMoney(delta int64) {
	a.mu.Lock()
	a.money += delta
	a.mu.Unlock()
}

func (a *fakeAccount) Rating() int16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rating
}

func (a *fakeAccount) SetRating(r int16) {
	a.mu.Lock()
	a.rating = r
	a.mu.Unlock()
}

func (a *fakeAccount) Config() snapshot.PlayerConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}

func (a *fakeAccount) SetConfig(c snapshot.PlayerConfig) {
	a.mu.Lock()
	a.config = c
	a.mu.Unlock()
}
