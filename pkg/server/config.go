package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gridwire-go/gridwire/pkg/middleware"
	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/store"
	"github.com/gridwire-go/gridwire/pkg/transport"
)

// Config configures a Server. The zero value is not usable on its own;
// Factory must be set. Every other field has a sensible default.
type Config struct {
	// Addr is the UDP listen address. Ignored when Listener is set.
	Addr string

	// Listener accepts incoming connections. Leave nil to listen on
	// Addr; set one explicitly to serve loopback or WebSocket peers.
	Listener transport.Listener

	// Factory builds the game simulation when play begins. Required.
	Factory GameFactory

	// TickRate is simulation ticks per second. Default 20.
	TickRate int

	// DayTicks is the number of ticks in one in-game day. Default 9600.
	DayTicks int32

	// MinPlayers is the lobby size needed before play may start.
	// Default 1.
	MinPlayers int

	// MaxPlayers caps the lobby size. 0 means no limit.
	MaxPlayers int

	// Autostart begins play as soon as the lobby reaches MinPlayers,
	// without waiting for a start request.
	Autostart bool

	// Locked rejects connection attempts from names not already on the
	// roster. Loading a save locks the server regardless, so only the
	// original cast can rejoin a session in progress.
	Locked bool

	// Timeout closes remote connections that have been silent for this
	// long. Loopback connections never time out. Default 15s.
	Timeout time.Duration

	// SaveName is the name the session is saved under. Default "game".
	SaveName string

	// Saves persists the session. Leave nil to disable saving.
	Saves store.Store

	// AutosaveInterval is how often a running game is saved. Default
	// 2m; set negative to disable autosaving. Explicit save requests
	// work either way.
	AutosaveInterval time.Duration

	// Requests maps request kinds to their handlers. Unknown kinds get
	// an error reply.
	Requests map[protocol.RequestKind]middleware.RequestHandler

	// DebugAddr serves Prometheus metrics and a status page over HTTP
	// when set, e.g. "localhost:6060". Empty disables the endpoint.
	DebugAddr string

	// Logger receives server logs. Defaults to slog.Default.
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":23347"
	}
	if c.TickRate <= 0 {
		c.TickRate = 20
	}
	if c.DayTicks <= 0 {
		c.DayTicks = 9600
	}
	if c.MinPlayers <= 0 {
		c.MinPlayers = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.SaveName == "" {
		c.SaveName = "game"
	}
	if c.AutosaveInterval == 0 {
		c.AutosaveInterval = 2 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

func (c Config) validate() error {
	if c.Factory == nil {
		return errors.New("server: config needs a game factory")
	}
	if c.MaxPlayers > 0 && c.MaxPlayers < c.MinPlayers {
		return errors.New("server: max players below min players")
	}
	return nil
}
