package server

import (
	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/snapshot"
)

// Game is the authoritative simulation the server drives. The server
// captures entity snapshots from it once per tick, validates every
// command a client reports against it, and persists whatever
// EncodeState returns.
//
// All methods are called from the server's tick goroutine only.
type Game interface {
	snapshot.Source

	// Step advances the simulation by one tick.
	Step(tick snapshot.DayTick)

	// Bounds reports the level dimensions handed to joining clients.
	Bounds() (width, height uint32)

	// Strings returns the string table referenced by serialized entity
	// data in GameBegin payloads.
	Strings() []string

	// EncodeState serializes the level for GameBegin payloads and for
	// saves. The blob is opaque to the server.
	EncodeState() []byte

	// Player returns the economic view of one player, or nil if the
	// game does not know the id.
	Player(uid snapshot.PlayerID) snapshot.Player

	// Execute applies a command the issuing client already ran locally.
	// A non-nil error rejects the command; the server rolls the client
	// back and ignores it until it acknowledges the rejection. The
	// forward result asks the server to relay the command to the other
	// players.
	Execute(uid snapshot.PlayerID, cmd []byte) (forward bool, err error)
}

// GameFactory builds the game when the session leaves the lobby. The
// save blob is the state from a previous EncodeState, nil when starting
// fresh. The player list is the final session roster.
type GameFactory func(save []byte, players []snapshot.PlayerID) (Game, error)

// StatsProvider is implemented by games that publish per-player
// economy history. The server polls it each tick for every player in
// game and forwards fresh packets reliably; return nil while there is
// nothing new.
type StatsProvider interface {
	TakeStats(uid snapshot.PlayerID) *protocol.UpdateStats
}
