package server_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gridwire-go/gridwire/pkg/middleware"
	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/server"
	"github.com/gridwire-go/gridwire/pkg/snapshot"
	"github.com/gridwire-go/gridwire/pkg/store"
)

func TestServerCommandRelay(t *testing.T) {
	ts := startServer(t, nil)
	a, b := startPair(t, ts)

	b.send(&protocol.ExecutedCommands{StartID: 1, Commands: [][]byte{
		[]byte("build 7"),
		[]byte(".note"),
		[]byte("paint 3"),
	}})
	ack := awaitPacket[*protocol.AckCommands](b)
	if ack.AcceptedID != 3 {
		t.Fatalf("AcceptedID = %d, want 3", ack.AcceptedID)
	}

	// The private command stays with the game; the rest reach the host.
	batch := awaitPacket[*protocol.RemoteExecutedCommands](a)
	cmds, err := server.DecodeRelayBatch(batch)
	if err != nil {
		t.Fatalf("DecodeRelayBatch: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("len(cmds) = %d, want 2", len(cmds))
	}
	if string(cmds[0].Data) != "build 7" || string(cmds[1].Data) != "paint 3" {
		t.Fatalf("cmds = %q, %q", cmds[0].Data, cmds[1].Data)
	}
	for _, cmd := range cmds {
		if cmd.Player != snapshot.PlayerID(b.uid) {
			t.Fatalf("cmd.Player = %d, want %d", cmd.Player, b.uid)
		}
	}

	calls := ts.game.calls()
	if len(calls) != 3 {
		t.Fatalf("len(calls) = %d, want 3", len(calls))
	}
	for _, call := range calls {
		if call.uid != snapshot.PlayerID(b.uid) {
			t.Fatalf("call.uid = %d, want %d", call.uid, b.uid)
		}
	}

	// Acking the batch stops the per-tick resends.
	a.send(&protocol.AckRemoteCommands{AcceptedID: cmds[len(cmds)-1].ID})
	a.drain(200 * time.Millisecond)
	expectNone[*protocol.RemoteExecutedCommands](a, 150*time.Millisecond)
}

func TestServerCommandRejectionRollback(t *testing.T) {
	ts := startServer(t, nil)
	a := startSolo(t, ts, "alice")

	a.send(&protocol.ExecutedCommands{StartID: 1, Commands: [][]byte{[]byte("!veto")}})
	rej := awaitPacket[*protocol.RejectCommands](a)
	if rej.AcceptedID != 0 || rej.RejectedID != 1 {
		t.Fatalf("reject = %d/%d, want 0/1", rej.AcceptedID, rej.RejectedID)
	}

	// The stream is frozen: later commands are dropped, not executed.
	a.send(&protocol.ExecutedCommands{StartID: 2, Commands: [][]byte{[]byte("build 1")}})
	rej2 := awaitPacket[*protocol.RejectCommands](a)
	if rej2.AcceptedID != 0 || rej2.RejectedID != 1 {
		t.Fatalf("repeat reject = %d/%d, want 0/1", rej2.AcceptedID, rej2.RejectedID)
	}
	if calls := ts.game.calls(); len(calls) != 0 {
		t.Fatalf("frozen stream executed %v", calls)
	}

	// An empty resend of the rejected id reopens the stream.
	a.send(&protocol.ExecutedCommands{StartID: 1, Commands: [][]byte{nil}})
	ack := awaitPacket[*protocol.AckCommands](a)
	if ack.AcceptedID != 0 {
		t.Fatalf("rollback ack = %d, want 0", ack.AcceptedID)
	}

	a.send(&protocol.ExecutedCommands{StartID: 1, Commands: [][]byte{[]byte("build 2")}})
	ack2 := awaitPacket[*protocol.AckCommands](a)
	if ack2.AcceptedID != 1 {
		t.Fatalf("ack = %d, want 1", ack2.AcceptedID)
	}
	calls := ts.game.calls()
	if len(calls) != 1 || calls[0].cmd != "build 2" {
		t.Fatalf("calls = %v", calls)
	}
}

func TestServerChatFanOut(t *testing.T) {
	ts := startServer(t, nil)
	a, b := startPair(t, ts)

	b.send(&protocol.ChatMessage{Message: "  hello  "})
	for _, c := range []*testClient{a, b} {
		awaitMatch(c, func(m *protocol.ChatMessage) bool { return m.Message == "<bob>: hello" })
	}

	// Slash commands and blank lines never reach the room.
	b.send(&protocol.ChatMessage{Message: "/give gold"})
	b.send(&protocol.ChatMessage{Message: "   "})
	b.send(&protocol.ChatMessage{Message: "after"})
	next := awaitMatch(a, func(m *protocol.ChatMessage) bool {
		return strings.HasPrefix(m.Message, "<bob>:")
	})
	if next.Message != "<bob>: after" {
		t.Fatalf("next chat = %q", next.Message)
	}
}

func TestServerLocalHostLifecycle(t *testing.T) {
	saves, err := store.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	ts := startServer(t, func(cfg *server.Config) {
		cfg.Saves = saves
		cfg.SaveName = "campus"
	})

	// A local host skips the lobby entirely.
	h := connect(t, ts.lst)
	h.name = "host"
	h.send(&protocol.LocalConnectionStart{Name: "host"})
	begin := h.loadIn()
	if begin.UID != 1 {
		t.Fatalf("host uid = %d, want 1", begin.UID)
	}
	if _, uids := ts.game.factoryInputs(); len(uids) != 1 || uids[0] != 1 {
		t.Fatalf("factory uids = %v", uids)
	}
	awaitPacket[*protocol.EntityFrame](h)

	// Pausing freezes the world clock.
	h.send(&protocol.SetPauseGame{Paused: true})
	waitFor(t, "paused status", func() bool { return ts.srv.Status().Paused })
	frozen := ts.game.stepCount()
	time.Sleep(100 * time.Millisecond)
	if got := ts.game.stepCount(); got != frozen {
		t.Fatalf("stepped %d times while paused", got-frozen)
	}
	h.send(&protocol.SetPauseGame{Paused: false})
	waitFor(t, "world resumed", func() bool { return ts.game.stepCount() > frozen })

	// A requested save lands on disk.
	h.send(&protocol.SaveGame{})
	waitFor(t, "save written", func() bool { return ts.srv.Metrics().Saves >= 1 })
	list, err := saves.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Name != "campus" {
		t.Fatalf("saves = %+v", list)
	}

	// The session does not outlive its host.
	h.leave()
	if err := ts.wait(); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestServerShutdownSavesAndRestores(t *testing.T) {
	dir := t.TempDir()
	saves, err := store.NewDiskStore(dir)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	withSaves := func(cfg *server.Config) {
		cfg.Saves = saves
		cfg.SaveName = "resort"
	}

	ts := startServer(t, withSaves)
	a := startSolo(t, ts, "alice")
	awaitPacket[*protocol.EntityFrame](a)
	ts.game.setState([]byte("late-game"))
	ts.stop()
	final := ts.srv.Status()

	if _, err := saves.Load(context.Background(), "resort"); err != nil {
		t.Fatalf("Load after shutdown: %v", err)
	}

	// A new server picks the session up where it stopped.
	ts2 := startServer(t, withSaves)
	waitFor(t, "restored roster", func() bool {
		st := ts2.srv.Status()
		return len(st.Players) == 1 && st.Players[0] == "alice"
	})
	if st := ts2.srv.Status(); st.Day != final.Day || st.Tick != final.Tick {
		t.Fatalf("clock = day %d tick %d, want day %d tick %d", st.Day, st.Tick, final.Day, final.Tick)
	}

	a2 := connect(t, ts2.lst)
	a2.join("alice")
	if a2.uid != 1 {
		t.Fatalf("restored uid = %d, want 1", a2.uid)
	}

	// Loading a save locks the roster.
	m := connect(t, ts2.lst)
	m.name = "mallory"
	m.send(&protocol.RemoteConnectionStart{Name: "mallory"})
	fail := awaitPacket[*protocol.ServerConnectionFail](m)
	if fail.Reason != "Server not accepting new players" {
		t.Fatalf("reason = %q", fail.Reason)
	}

	awaitMatch(a2, func(u *protocol.UpdateLobby) bool { return u.CanStart })
	a2.send(&protocol.RequestGameBegin{})
	a2.loadIn()

	save, uids := ts2.game.factoryInputs()
	if string(save) != "late-game" {
		t.Fatalf("factory save = %q, want %q", save, "late-game")
	}
	if len(uids) != 1 || uids[0] != 1 {
		t.Fatalf("factory uids = %v", uids)
	}
}

func TestServerNotifyDeliversNotification(t *testing.T) {
	ts := startServer(t, nil)
	a := startSolo(t, ts, "alice")

	ts.srv.Notify(1, protocol.NoticeWarning, "inspection tomorrow")

	n := awaitPacket[*protocol.Notification](a)
	if n.Kind != protocol.NoticeWarning {
		t.Fatalf("kind = %v, want %v", n.Kind, protocol.NoticeWarning)
	}
	if n.Message != "inspection tomorrow" {
		t.Fatalf("message = %q", n.Message)
	}
}

func TestServerStreamsGameStats(t *testing.T) {
	ts := startServer(t, nil)
	a := startSolo(t, ts, "alice")

	want := protocol.StatsEntry{Total: 500, Income: 120, Outcome: 20, Students: 9, Grades: [6]uint32{1, 2, 3, 0, 0, 3}}
	ts.game.queueStats(1, &protocol.UpdateStats{UpdateID: 4, History: []protocol.StatsEntry{want}})

	got := awaitPacket[*protocol.UpdateStats](a)
	if got.UpdateID != 4 {
		t.Fatalf("UpdateID = %d, want 4", got.UpdateID)
	}
	if len(got.History) != 1 || got.History[0] != want {
		t.Fatalf("history = %+v", got.History)
	}
}

func TestServerRequestReply(t *testing.T) {
	var mu sync.Mutex
	var peer string
	kindPing := protocol.Kind("ping")
	kindFail := protocol.Kind("fail")

	ts := startServer(t, func(cfg *server.Config) {
		cfg.Requests = map[protocol.RequestKind]middleware.RequestHandler{
			kindPing: func(ctx context.Context, _ string, data []byte) ([]byte, error) {
				mu.Lock()
				peer = middleware.PeerFromContext(ctx)
				mu.Unlock()
				return append([]byte("pong:"), data...), nil
			},
			kindFail: func(context.Context, string, []byte) ([]byte, error) {
				return nil, errors.New("quota exceeded")
			},
		}
	})
	a := startSolo(t, ts, "alice")

	a.send(&protocol.Request{Kind: kindPing, ID: 11, Data: []byte("abc")})
	rep := awaitMatch(a, func(r *protocol.Reply) bool { return r.ID == 11 })
	if rep.Kind != kindPing {
		t.Fatalf("kind = %s, want %s", rep.Kind, kindPing)
	}
	if string(rep.Data) != "pong:abc" {
		t.Fatalf("data = %q, want %q", rep.Data, "pong:abc")
	}
	mu.Lock()
	gotPeer := peer
	mu.Unlock()
	if !strings.HasPrefix(gotPeer, "loopback:") {
		t.Fatalf("peer = %q", gotPeer)
	}

	a.send(&protocol.Request{Kind: kindFail, ID: 12})
	rep2 := awaitMatch(a, func(r *protocol.Reply) bool { return r.ID == 12 })
	if rep2.Kind != server.KindError {
		t.Fatalf("kind = %s, want %s", rep2.Kind, server.KindError)
	}
	if string(rep2.Data) != "quota exceeded" {
		t.Fatalf("data = %q", rep2.Data)
	}

	a.send(&protocol.Request{Kind: protocol.Kind("wat?"), ID: 13})
	rep3 := awaitMatch(a, func(r *protocol.Reply) bool { return r.ID == 13 })
	if rep3.Kind != server.KindError {
		t.Fatalf("kind = %s, want %s", rep3.Kind, server.KindError)
	}
	if !strings.Contains(string(rep3.Data), "wat?") {
		t.Fatalf("data = %q", rep3.Data)
	}
}
