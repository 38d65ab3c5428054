package demo

import (
	"context"
	"errors"

	"github.com/gridwire-go/gridwire/pkg/middleware"
	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/server"
	"github.com/gridwire-go/gridwire/pkg/snapshot"
)

// Session tracks the live campus across game starts, so request
// handlers built before the session leaves the lobby can reach the
// world once it exists. The factory and request dispatch both run on
// the server's tick goroutine; no locking is needed.
type Session struct {
	cfg   Config
	world *World
}

func NewSession(cfg Config) *Session {
	return &Session{cfg: cfg}
}

// World returns the live campus, nil before the session starts.
func (s *Session) World() *World { return s.world }

// Factory returns the server's game-construction hook.
func (s *Session) Factory() server.GameFactory {
	inner := Factory(s.cfg)
	return func(save []byte, players []snapshot.PlayerID) (server.Game, error) {
		g, err := inner(save, players)
		if err == nil {
			s.world = g.(*World)
		}
		return g, err
	}
}

// Requests returns the campus request handlers.
func (s *Session) Requests() map[protocol.RequestKind]middleware.RequestHandler {
	return map[protocol.RequestKind]middleware.RequestHandler{
		InfoKind: func(ctx context.Context, kind string, data []byte) ([]byte, error) {
			if s.world == nil {
				return nil, errors.New("demo: session not started")
			}
			return s.world.InfoHandler()(ctx, kind, data)
		},
	}
}
