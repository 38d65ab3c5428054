package server

import (
	"log/slog"

	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/snapshot"
)

// PlayerState tracks one side of a connection through its lifecycle.
// Each connection carries two: the remote state follows what the
// client last told us, the local state is what we are doing for them.
type PlayerState uint8

const (
	StateConnecting PlayerState = iota
	StateLobby
	StateLoading
	StatePlaying
	StateClosed
)

func (s PlayerState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLobby:
		return "lobby"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type notice struct {
	kind    protocol.NoticeKind
	message string
}

// PlayerInfo is a roster entry. Entries outlive connections: a player
// who drops during play keeps their spot and reclaims it by connecting
// again under the same name.
type PlayerInfo struct {
	UID  snapshot.PlayerID
	Name string
}

// player is the server half of one connection.
type player struct {
	logger *slog.Logger
	conn   *Connection

	uid    snapshot.PlayerID
	hasUID bool

	remote PlayerState
	local  PlayerState

	// Command bookkeeping for the reported-command stream. lastCommand
	// is the id of the newest accepted command; after a rejection,
	// failedCommand holds the rejected id until the client resyncs.
	lastCommand   uint32
	failedCommand uint32
	hasFailed     bool

	// commands accepted this tick, waiting to be distributed to the
	// other players' relay queues.
	commands [][]byte

	relay    relayQueue
	entities *snapshot.SyncState
	requests *RequestManager

	wantsSave bool
}

func newPlayer(logger *slog.Logger, conn *Connection, requests *RequestManager) *player {
	return &player{
		logger:   logger.With("peer", conn.Addr()),
		conn:     conn,
		remote:   StateConnecting,
		local:    StateLobby,
		relay:    relayQueue{nextID: 1},
		entities: snapshot.NewSyncState(),
		requests: requests,
	}
}

// takeCommands hands back the commands accepted this tick and clears
// the slot for the next one.
func (p *player) takeCommands() [][]byte {
	cmds := p.commands
	p.commands = nil
	return cmds
}

// open reports whether the connection is still usable for sends.
func (p *player) open() bool {
	return p.local != StateClosed && p.remote != StateClosed && !p.conn.Closed()
}
