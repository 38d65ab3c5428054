// Package gridwire provides the public API for the Gridwire
// synchronization engine.
//
// This is the recommended import for most hosts and clients:
//
//	import "github.com/gridwire-go/gridwire"
//
// Hosting a session:
//
//	srv, err := gridwire.New(gridwire.Config{
//		Addr:    ":23347",
//		Factory: func(save []byte, players []gridwire.PlayerID) (gridwire.Game, error) {
//			return game.New(save, players)
//		},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// Joining one:
//
//	sock, err := gridwire.DialUDP("game.example.com:23347", logger)
//	...
//	gridwire.EnsureSendPacket(sock, &protocol.RemoteConnectionStart{Name: "ada"})
//
// The facade covers the embedding surface. Wire-level packet types live
// in pkg/protocol, the delta codec internals in pkg/snapshot.
package gridwire

import (
	"github.com/gridwire-go/gridwire/pkg/middleware"
	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/server"
	"github.com/gridwire-go/gridwire/pkg/snapshot"
	"github.com/gridwire-go/gridwire/pkg/store"
	"github.com/gridwire-go/gridwire/pkg/transport"
)

// =============================================================================
// Server (re-export from pkg/server)
// =============================================================================

// Server runs one authoritative game session over a Listener.
type Server = server.Server

// Config configures a Server. Factory is the only required field; zero
// values for the rest pick the defaults documented on pkg/server.Config.
type Config = server.Config

// Status is a point-in-time view of a running session.
type Status = server.Status

// MetricsSnapshot is the server's counter block, embedded in Status.
type MetricsSnapshot = server.MetricsSnapshot

// PlayerInfo describes one connected player.
type PlayerInfo = server.PlayerInfo

// New builds a Server. The listener is not opened until Run.
//
// Example:
//
//	srv, err := gridwire.New(gridwire.Config{
//		Addr:      ":23347",
//		Factory:   newGame,
//		TickRate:  20,
//		Autostart: true,
//	})
func New(cfg Config) (*Server, error) {
	return server.New(cfg)
}

// Game is the authoritative simulation the server drives. Implement it
// plus GameFactory to host your own world.
type Game = server.Game

// GameFactory builds the game when the session leaves the lobby.
type GameFactory = server.GameFactory

// StatsProvider is implemented by games that publish per-player economy
// history.
type StatsProvider = server.StatsProvider

// RelayedCommand is one remote command decoded from a relay batch.
type RelayedCommand = server.RelayedCommand

// DecodeRelayBatch splits a relayed command packet into per-command
// entries for client-side application.
var DecodeRelayBatch = server.DecodeRelayBatch

// KindError is the request kind the server answers with when a handler
// fails.
var KindError = server.KindError

// =============================================================================
// Transport (re-export from pkg/transport)
// =============================================================================

// Socket is one bidirectional connection. Send is best-effort,
// EnsureSend is reliable with fragmentation and resend.
type Socket = transport.Socket

// Listener accepts sockets for a Server.
type Listener = transport.Listener

// ListenUDP binds a UDP listener. Pass its result as Config.Listener,
// or leave Config.Listener nil and let Run bind Config.Addr itself.
var ListenUDP = transport.ListenUDP

// DialUDP connects a client socket to a UDP server.
var DialUDP = transport.DialUDP

// ListenWebSocket serves the same protocol over WebSocket for clients
// that cannot speak UDP.
var ListenWebSocket = transport.ListenWebSocket

// DialWebSocket connects a client socket to a WebSocket endpoint.
var DialWebSocket = transport.DialWebSocket

// NewLoopbackListener builds an in-process listener for single-player
// and test sessions.
var NewLoopbackListener = transport.NewLoopbackListener

// LoopbackPair returns two directly connected in-process sockets.
var LoopbackPair = transport.LoopbackPair

// SendPacket encodes and sends a packet best-effort.
var SendPacket = transport.SendPacket

// EnsureSendPacket encodes and sends a packet reliably.
var EnsureSendPacket = transport.EnsureSendPacket

// Transport sentinels. ErrNoData and ErrNoPacketSlots are transient,
// ErrConnectionClosed is terminal.
var (
	ErrNoData           = transport.ErrNoData
	ErrNoPacketSlots    = transport.ErrNoPacketSlots
	ErrPacketTooLarge   = transport.ErrPacketTooLarge
	ErrConnectionClosed = transport.ErrConnectionClosed
)

// =============================================================================
// Entity synchronization (re-export from pkg/snapshot)
// =============================================================================

// Entity is an opaque handle for a synchronized entity.
type Entity = snapshot.Entity

// NoEntity is the zero Entity. No live entity compares equal to it.
const NoEntity = snapshot.NoEntity

// PlayerID identifies one player within a session.
type PlayerID = snapshot.PlayerID

// RoomID identifies a room within the level.
type RoomID = snapshot.RoomID

// DayTick is a position in simulated time.
type DayTick = snapshot.DayTick

// EntityState is the full wire state of one entity at one tick.
type EntityState = snapshot.EntityState

// EntityInfo is the synchronized identity of an entity, enough for a
// client factory to recreate it.
type EntityInfo = snapshot.EntityInfo

// PlayerState is the synchronized economic state of one player.
type PlayerState = snapshot.PlayerState

// Leaf state types referenced by EntityState and the Container surface.
type (
	Target       = snapshot.Target
	EmoteKind    = snapshot.EmoteKind
	EmoteEntry   = snapshot.EmoteEntry
	Tint         = snapshot.Tint
	IdleChoice   = snapshot.IdleChoice
	PlayerConfig = snapshot.PlayerConfig
)

// Source is the world view the server's capture side reads. Game
// includes it.
type Source = snapshot.Source

// Container is the world surface client-side deltas are applied into.
type Container = snapshot.Container

// RoomView exposes room membership to delta application.
type RoomView = snapshot.RoomView

// EntityFactory materializes entities from their synchronized identity
// on the client side.
type EntityFactory = snapshot.Factory

// Player exposes the economic state deltas read and write.
type Player = snapshot.Player

// ClientWorld bundles the collaborators delta application touches.
type ClientWorld = snapshot.ClientWorld

// Snapshots is the per-session capture history and delta encoder.
type Snapshots = snapshot.Snapshots

// NewSnapshots builds the capture history for a session roster.
var NewSnapshots = snapshot.NewSnapshots

// SyncState tracks which frames a client has applied and acknowledged.
type SyncState = snapshot.SyncState

// NewSyncState builds an empty client sync state.
var NewSyncState = snapshot.NewSyncState

// Snapshot sentinels. ErrOldFrame marks a frame the client already
// passed; drop it and keep going.
var (
	ErrOldFrame       = snapshot.ErrOldFrame
	ErrMalformedFrame = snapshot.ErrMalformedFrame
	ErrNoFrame        = snapshot.ErrNoFrame
)

// =============================================================================
// Saves (re-export from pkg/store)
// =============================================================================

// Store persists save blobs between sessions.
type Store = store.Store

// SaveInfo describes one stored save.
type SaveInfo = store.SaveInfo

// NewDiskStore opens a directory-backed save store.
var NewDiskStore = store.NewDiskStore

// NewS3Store wraps an S3 bucket as a save store.
var NewS3Store = store.NewS3Store

// ErrNoSave is returned when a named save does not exist.
var ErrNoSave = store.ErrNoSave

// =============================================================================
// Requests and middleware (re-export from pkg/middleware)
// =============================================================================

// RequestHandler answers one request kind. Register handlers through
// Config.Requests.
type RequestHandler = middleware.RequestHandler

// OpenTelemetry wraps a RequestHandler with a span per request.
var OpenTelemetry = middleware.OpenTelemetry

// Prometheus wraps an http.Handler with request metrics, for hosts that
// mount their own debug mux instead of Config.DebugAddr.
var Prometheus = middleware.Prometheus

// Middleware options.
type (
	MetricsOption = middleware.MetricsOption
	OTelOption    = middleware.OTelOption
)

var (
	WithNamespace          = middleware.WithNamespace
	WithSubsystem          = middleware.WithSubsystem
	WithConstLabels        = middleware.WithConstLabels
	WithBuckets            = middleware.WithBuckets
	WithRegistry           = middleware.WithRegistry
	WithTracerName         = middleware.WithTracerName
	WithIncludePeer        = middleware.WithIncludePeer
	WithRequestFilter      = middleware.WithRequestFilter
	WithAttributeExtractor = middleware.WithAttributeExtractor
)

// =============================================================================
// Wire protocol basics (re-export from pkg/protocol)
// =============================================================================

// Packet is any decoded protocol message.
type Packet = protocol.Packet

// RequestKind names a request/reply channel.
type RequestKind = protocol.RequestKind

// Kind builds a RequestKind from a four-character tag.
var Kind = protocol.Kind

// EncodePacket serializes a packet for Send or EnsureSend.
var EncodePacket = protocol.EncodePacket

// DecodePacket decodes one received payload.
var DecodePacket = protocol.DecodePacket
