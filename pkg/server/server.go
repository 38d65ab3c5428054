package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridwire-go/gridwire/pkg/middleware"
	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/snapshot"
	"github.com/gridwire-go/gridwire/pkg/store"
	"github.com/gridwire-go/gridwire/pkg/transport"
)

// phase is where the whole session stands, as opposed to PlayerState
// which tracks a single connection.
type phase uint8

const (
	phaseLobby phase = iota
	phaseBegin
	phasePlaying
)

func (ph phase) String() string {
	switch ph {
	case phaseLobby:
		return "lobby"
	case phaseBegin:
		return "begin"
	case phasePlaying:
		return "playing"
	}
	return "unknown"
}

// Server runs one authoritative game session. All session state lives
// on the tick goroutine inside Run; the exported mutators (Notify,
// RequestSave) hand work over through synchronized queues and are safe
// from any goroutine.
type Server struct {
	cfg       Config
	logger    *slog.Logger
	collector MetricsCollector

	network *NetworkManager

	players map[string]*player
	info    map[snapshot.PlayerID]*PlayerInfo
	nextUID snapshot.PlayerID

	phase    phase
	changeID uint32
	dirty    bool
	locked   bool

	game       Game
	snapshots  *snapshot.Snapshots
	dayTick    snapshot.DayTick
	savedState []byte
	paused     bool

	// messages queued for the chat fan-out at the end of the tick.
	messages []string

	forceSave atomic.Bool
	lastSave  time.Time

	traceRequests func(middleware.RequestHandler) middleware.RequestHandler

	mu      sync.Mutex
	notices map[snapshot.PlayerID][]notice
	status  Status
}

// Status is a point-in-time view of the session.
type Status struct {
	Phase   string          `json:"phase"`
	Paused  bool            `json:"paused"`
	Players []string        `json:"players"`
	Day     uint32          `json:"day"`
	Tick    int32           `json:"tick"`
	Metrics MetricsSnapshot `json:"metrics"`
}

// New builds a Server. The listener is not opened until Run.
func New(cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Server{
		cfg:           cfg,
		logger:        cfg.Logger.With("component", "server"),
		players:       make(map[string]*player),
		info:          make(map[snapshot.PlayerID]*PlayerInfo),
		nextUID:       1,
		locked:        cfg.Locked,
		traceRequests: middleware.OpenTelemetry(),
		notices:       make(map[snapshot.PlayerID][]notice),
	}, nil
}

// Status returns the last published session view. Safe from any
// goroutine.
func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Metrics returns a snapshot of the server counters.
func (s *Server) Metrics() MetricsSnapshot {
	return s.collector.Snapshot()
}

// Notify queues a notification for one player. The message rides the
// next tick once the player is in game. Safe from any goroutine.
func (s *Server) Notify(uid snapshot.PlayerID, kind protocol.NoticeKind, message string) {
	s.mu.Lock()
	s.notices[uid] = append(s.notices[uid], notice{kind: kind, message: message})
	s.mu.Unlock()
}

// RequestSave asks the tick loop to save at its next opportunity. Safe
// from any goroutine.
func (s *Server) RequestSave() {
	s.forceSave.Store(true)
}

// Run drives the session until ctx is canceled or the session ends on
// its own: a loopback-only session ends when its players leave, and
// any session ends when its hosting connection goes away. A running
// game is saved before Run returns.
func (s *Server) Run(ctx context.Context) error {
	listener := s.cfg.Listener
	if listener == nil {
		l, err := transport.ListenUDP(s.cfg.Addr, s.cfg.Logger)
		if err != nil {
			return err
		}
		listener = l
	}
	s.network = newNetworkManager(s.logger, listener)
	defer s.network.Close()

	if err := s.loadSave(ctx); err != nil {
		return err
	}

	if s.cfg.DebugAddr != "" {
		debug := s.startDebug()
		defer debug.Close()
	}

	s.logger.Info("server running", "addr", listener.Addr(), "tick_rate", s.cfg.TickRate)

	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.TickRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// ctx is spent; the final save gets a fresh one.
			s.shutdown(context.Background())
			return nil

		case <-ticker.C:
			start := time.Now()
			s.tick(ctx)
			if s.phase == phasePlaying && !s.paused {
				s.game.Step(s.dayTick)
				s.advanceClock()
				s.maybeSave(ctx)
				s.syncState()
			}
			s.collector.ticks.Add(1)
			s.publishStatus()
			middleware.RecordTickDuration(time.Since(start))

			if s.sessionOver() {
				s.logger.Info("session over")
				s.shutdown(ctx)
				return nil
			}
		}
	}
}

// tick services the network: new connections, inbound packets, player
// pruning, chat fan-out, and whichever of lobby upkeep or command
// distribution the current phase calls for.
func (s *Server) tick(ctx context.Context) {
	s.network.Tick()

	for _, c := range s.network.Connections() {
		p, ok := s.players[c.Addr()]
		if !ok {
			p = newPlayer(s.logger, c, NewRequestManager(s.logger, s.cfg.Requests, s.traceRequests))
			s.players[c.Addr()] = p
		}
		s.handlePlayer(ctx, p)

		if p.wantsSave {
			p.wantsSave = false
			s.forceSave.Store(true)
		}
		if !c.Local() && time.Since(c.LastRecv()) > s.cfg.Timeout {
			p.logger.Info("connection timed out")
			p.remote = StateClosed
			p.local = StateClosed
		}
		if p.remote == StateClosed || p.local == StateClosed {
			c.Close()
		}
	}

	type commandBatch struct {
		origin snapshot.PlayerID
		cmds   [][]byte
	}
	var newCommands []commandBatch
	for _, addr := range s.sortedPlayerAddrs() {
		p := s.players[addr]
		if !p.hasUID || s.info[p.uid] == nil {
			continue
		}
		if cmds := p.takeCommands(); len(cmds) > 0 {
			newCommands = append(newCommands, commandBatch{p.uid, cmds})
		}
	}

	s.prunePlayers()
	s.fanOutMessages()

	switch s.phase {
	case phaseLobby:
		if s.dirty {
			s.updateLobby()
		}
		if s.phase == phaseBegin { // autostart tripped
			s.beginGame()
		}
	case phaseBegin:
		s.beginGame()
	case phasePlaying:
		for _, batch := range newCommands {
			s.distribute(batch.origin, batch.cmds)
		}
	}
}

// distribute queues commands one player executed for everyone else who
// is in the game or loading into it.
func (s *Server) distribute(origin snapshot.PlayerID, cmds [][]byte) {
	for _, p := range s.players {
		if !p.hasUID || p.uid == origin {
			continue
		}
		if p.remote != StateLoading && p.remote != StatePlaying {
			continue
		}
		for _, cmd := range cmds {
			p.relay.push(origin, cmd)
		}
	}
}

// prunePlayers drops players whose connection is gone. In the lobby
// the roster entry goes with them; during play the entry stays so the
// player can reclaim the spot by reconnecting.
func (s *Server) prunePlayers() {
	for addr, p := range s.players {
		if s.network.Open(addr) && p.local != StateClosed {
			continue
		}
		delete(s.players, addr)

		var info *PlayerInfo
		if p.hasUID {
			info = s.info[p.uid]
		}
		name := addr
		if info != nil {
			name = info.Name
		}
		s.logger.Info("player disconnected", "peer", addr, "name", name, "state", p.remote.String())

		if info != nil {
			s.messages = append(s.messages, info.Name+" has left the server")
		}
		if s.phase == phaseLobby && p.hasUID {
			delete(s.info, p.uid)
			s.dirty = true
		}
	}
}

// fanOutMessages delivers queued chat lines to every named player.
func (s *Server) fanOutMessages() {
	if len(s.messages) == 0 {
		return
	}
	msgs := s.messages
	s.messages = nil

	for _, msg := range msgs {
		pkt := &protocol.ChatMessage{Message: msg}
		for _, p := range s.players {
			if !p.hasUID || s.info[p.uid] == nil {
				continue
			}
			if err := p.conn.EnsureSend(pkt); err != nil {
				p.logger.Debug("chat send failed", "error", err)
			}
		}
	}
}

// syncState captures the world once and streams a delta to each player
// in game. Frames ride unreliable sends; a lost frame just means the
// next delta diffs against an older acked base.
func (s *Server) syncState() {
	views := make(map[snapshot.PlayerID]snapshot.Player, len(s.info))
	for uid := range s.info {
		views[uid] = s.game.Player(uid)
	}
	s.snapshots.Capture(s.game, s.dayTick, views)
	middleware.RecordSnapshotCaptured(len(s.game.Entities()))

	for _, p := range s.players {
		if !p.hasUID || p.remote != StatePlaying {
			continue
		}
		frames, err := s.snapshots.CreateDelta(p.entities, p.uid)
		if err != nil {
			p.logger.Error("delta build failed", "error", err)
			continue
		}
		middleware.RecordEntityFrames(len(frames))
		s.collector.framesSent.Add(int64(len(frames)))
		for _, f := range frames {
			if err := p.conn.Send(f); err != nil {
				p.logger.Debug("frame send failed", "error", err)
				break
			}
		}
	}
}

func (s *Server) advanceClock() {
	s.dayTick.Tick++
	if s.dayTick.Tick >= s.cfg.DayTicks {
		s.dayTick.Day++
		s.dayTick.Tick -= s.cfg.DayTicks
	}
	s.dayTick.Time++
}

// sessionOver decides whether the run loop should wind down on its
// own. A network server keeps listening even when empty.
func (s *Server) sessionOver() bool {
	if s.network.LocalListener() && s.network.Accepted() > 0 && len(s.players) == 0 {
		return true
	}
	return s.network.HostGone()
}

func (s *Server) shutdown(ctx context.Context) {
	if s.phase == phasePlaying {
		s.saveGame(ctx)
	}
	for _, p := range s.players {
		if p.open() {
			p.conn.Send(&protocol.Disconnect{})
		}
	}
	s.logger.Info("server stopped")
}

func (s *Server) loadSave(ctx context.Context) error {
	if s.cfg.Saves == nil {
		return nil
	}
	data, err := s.cfg.Saves.Load(ctx, s.cfg.SaveName)
	if errors.Is(err, store.ErrNoSave) {
		return nil
	}
	if err != nil {
		return err
	}
	file, err := decodeSaveFile(data)
	if err != nil {
		return err
	}

	for i := range file.roster {
		s.addInfo(&file.roster[i])
	}
	s.dayTick = file.dayTick
	s.savedState = file.state
	s.locked = true
	s.logger.Info("save loaded", "name", s.cfg.SaveName, "players", len(file.roster), "day", file.dayTick.Day)
	return nil
}

// maybeSave runs at most one save per tick: immediately when one was
// requested, otherwise on the autosave clock.
func (s *Server) maybeSave(ctx context.Context) {
	force := s.forceSave.Swap(false)
	if s.cfg.Saves == nil {
		return
	}
	if !force {
		if s.cfg.AutosaveInterval <= 0 || time.Since(s.lastSave) < s.cfg.AutosaveInterval {
			return
		}
	}
	s.saveGame(ctx)
}

func (s *Server) saveGame(ctx context.Context) {
	if s.cfg.Saves == nil || s.game == nil {
		return
	}
	roster := make([]PlayerInfo, 0, len(s.info))
	for _, uid := range s.rosterUIDs() {
		roster = append(roster, *s.info[uid])
	}
	file := &saveFile{roster: roster, dayTick: s.dayTick, state: s.game.EncodeState()}
	if err := s.cfg.Saves.Save(ctx, s.cfg.SaveName, file.encode()); err != nil {
		s.logger.Error("save failed", "name", s.cfg.SaveName, "error", err)
		return
	}
	s.lastSave = time.Now()
	s.collector.saves.Add(1)
	s.logger.Info("game saved", "name", s.cfg.SaveName, "day", s.dayTick.Day)
}

func (s *Server) publishStatus() {
	names := make([]string, 0, len(s.info))
	for _, uid := range s.rosterUIDs() {
		names = append(names, s.info[uid].Name)
	}
	st := Status{
		Phase:   s.phase.String(),
		Paused:  s.paused,
		Players: names,
		Day:     s.dayTick.Day,
		Tick:    s.dayTick.Tick,
		Metrics: s.collector.Snapshot(),
	}
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *Server) sortedPlayerAddrs() []string {
	addrs := make([]string, 0, len(s.players))
	for addr := range s.players {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

// startDebug serves Prometheus metrics and the status page.
func (s *Server) startDebug() *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Prometheus())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.Status())
	})

	srv := &http.Server{Addr: s.cfg.DebugAddr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("debug endpoint failed", "error", err)
		}
	}()
	s.logger.Info("debug endpoint up", "addr", s.cfg.DebugAddr)
	return srv
}
