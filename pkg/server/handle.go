package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gridwire-go/gridwire/pkg/middleware"
	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/snapshot"
	"github.com/gridwire-go/gridwire/pkg/transport"
)

// handlePlayer services one connection for one tick. Any error is a
// protocol violation or a dead link; either way the player is done.
func (s *Server) handlePlayer(ctx context.Context, p *player) {
	if err := s.servicePlayer(ctx, p); err != nil {
		p.logger.Error("client error", "error", err)
		p.local = StateClosed
	}
}

func (s *Server) servicePlayer(ctx context.Context, p *player) error {
	for {
		pkt, err := p.conn.TryRecvPacket()
		if err != nil {
			if errors.Is(err, transport.ErrNoData) || errors.Is(err, transport.ErrConnectionClosed) {
				break
			}
			return fmt.Errorf("bad packet: %w", err)
		}
		s.collector.packets.Add(1)
		if err := s.dispatch(ctx, p, pkt); err != nil {
			return err
		}
	}

	if p.remote == StatePlaying {
		if err := s.sendNotices(p); err != nil {
			return err
		}
		if stats, ok := s.game.(StatsProvider); ok {
			if pkt := stats.TakeStats(p.uid); pkt != nil {
				if err := p.conn.EnsureSend(pkt); err != nil {
					return err
				}
			}
		}
		for _, batch := range p.relay.batches() {
			if err := p.conn.Send(batch); err != nil {
				return err
			}
		}
	}
	for _, pkt := range p.requests.Packets() {
		if err := p.conn.EnsureSend(pkt); err != nil {
			return err
		}
	}
	return nil
}

// dispatch routes one packet. Cases that do not return handle the
// packet; reaching the end means the packet is not valid in the
// connection's current state.
func (s *Server) dispatch(ctx context.Context, p *player, pkt protocol.Packet) error {
	switch pkt := pkt.(type) {
	case *protocol.KeepAlive:
		return p.conn.Send(&protocol.KeepAlive{})

	case *protocol.Disconnect:
		p.remote = StateClosed
		p.local = StateClosed
		return nil

	case *protocol.LocalConnectionStart:
		if p.remote == StateConnecting && p.conn.Local() && s.phase == phaseLobby {
			return s.startLocal(p, pkt)
		}

	case *protocol.RemoteConnectionStart:
		if p.remote == StateConnecting {
			return s.startRemote(p, pkt)
		}

	case *protocol.EnterLobby:
		if p.remote == StateConnecting {
			p.remote = StateLobby
			s.dirty = true
			return nil
		}

	case *protocol.RequestGameBegin:
		if p.remote == StateLobby && s.phase == phaseLobby {
			s.requestBegin(p)
			return nil
		}

	case *protocol.LevelLoaded:
		if p.remote == StateLoading {
			p.remote = StatePlaying
			p.logger.Info("player loaded in", "uid", p.uid)
			return p.conn.EnsureSend(&protocol.GameStart{})
		}

	case *protocol.SaveGame:
		if p.remote == StatePlaying && p.conn.Local() {
			p.wantsSave = true
			return nil
		}

	case *protocol.SetPauseGame:
		if p.remote == StatePlaying && p.conn.Local() {
			s.paused = pkt.Paused
			s.logger.Info("pause toggled", "paused", pkt.Paused)
			return nil
		}

	case *protocol.ChatMessage:
		if p.remote == StatePlaying {
			s.handleChat(p, pkt)
			return nil
		}

	case *protocol.EntityAckFrame:
		if p.remote == StatePlaying {
			p.entities.AckEntities(pkt)
			return nil
		}

	case *protocol.PlayerAckFrame:
		if p.remote == StatePlaying {
			p.entities.AckPlayer(pkt)
			return nil
		}

	case *protocol.AckRemoteCommands:
		if p.remote == StatePlaying {
			p.relay.ack(pkt.AcceptedID)
			return nil
		}

	case *protocol.ExecutedCommands:
		if p.remote == StatePlaying {
			return s.handleExecutedCommands(p, pkt)
		}

	case *protocol.Request:
		if p.remote == StatePlaying {
			p.requests.HandleRequest(middleware.WithPeer(ctx, p.conn.Addr()), pkt)
			return nil
		}

	case *protocol.Reply:
		if p.remote == StatePlaying {
			p.requests.HandleReply(pkt)
			return nil
		}
	}

	p.logger.Error("unhandled packet", "type", fmt.Sprintf("%T", pkt), "state", p.remote)
	return nil
}

// startLocal admits the in-process host. Local games skip the lobby:
// the host gets uid 1 and the game starts at once.
func (s *Server) startLocal(p *player, pkt *protocol.LocalConnectionStart) error {
	const hostUID snapshot.PlayerID = 1

	p.uid = hostUID
	p.hasUID = true
	if info, ok := s.info[hostUID]; ok {
		info.Name = pkt.Name
	} else {
		s.addInfo(&PlayerInfo{UID: hostUID, Name: pkt.Name})
	}

	if err := s.createGame(s.rosterUIDs()); err != nil {
		return err
	}
	p.remote = StateLoading
	p.local = StatePlaying
	return p.conn.EnsureSend(s.gameBeginPacket(hostUID, s.game.EncodeState()))
}

// startRemote admits a network client, or turns it away with a reason.
func (s *Server) startRemote(p *player, pkt *protocol.RemoteConnectionStart) error {
	switch s.phase {
	case phaseLobby:
		if info := s.infoByName(pkt.Name); info != nil {
			p.uid = info.UID
			p.hasUID = true
			p.local = StateLobby
			s.dirty = true
			s.messages = append(s.messages, pkt.Name+" has joined the server")
			return p.conn.EnsureSend(&protocol.ServerConnectionStart{UID: int16(info.UID)})
		}
		if s.locked {
			p.logger.Info("rejecting unknown player, roster locked", "name", pkt.Name)
			if err := p.conn.EnsureSend(&protocol.ServerConnectionFail{Reason: "Server not accepting new players"}); err != nil {
				return err
			}
			p.local = StateClosed
			return nil
		}
		uid := s.nextUID
		s.addInfo(&PlayerInfo{UID: uid, Name: pkt.Name})
		p.uid = uid
		p.hasUID = true
		p.local = StateLobby
		s.dirty = true
		s.messages = append(s.messages, pkt.Name+" has joined the server")
		return p.conn.EnsureSend(&protocol.ServerConnectionStart{UID: int16(uid)})

	case phasePlaying:
		info := s.infoByName(pkt.Name)
		if info == nil {
			p.logger.Info("rejecting unknown player, session started", "name", pkt.Name)
			if err := p.conn.EnsureSend(&protocol.ServerConnectionFail{Reason: "Session already started"}); err != nil {
				return err
			}
			p.local = StateClosed
			return nil
		}
		p.uid = info.UID
		p.hasUID = true
		p.remote = StateLoading
		p.local = StatePlaying
		s.messages = append(s.messages, pkt.Name+" has joined the server")
		return p.conn.EnsureSend(s.gameBeginPacket(info.UID, s.game.EncodeState()))
	}

	// The lobby is mid-handover to the game; the client will retry.
	return nil
}

// requestBegin honors a start request from the player the last lobby
// update marked as allowed to start.
func (s *Server) requestBegin(p *player) {
	count := len(s.lobbyMembers())
	if count < s.cfg.MinPlayers || (s.cfg.MaxPlayers > 0 && count > s.cfg.MaxPlayers) {
		p.logger.Warn("start request outside player limits", "players", count)
		return
	}
	if host, ok := s.lobbyHost(); !ok || host != p.uid {
		p.logger.Warn("start request from non-host", "uid", p.uid)
		return
	}
	s.phase = phaseBegin
}

func (s *Server) handleChat(p *player, pkt *protocol.ChatMessage) {
	msg := strings.TrimSpace(pkt.Message)
	if msg == "" {
		return
	}
	if strings.HasPrefix(msg, "/") {
		p.logger.Debug("dropping chat command", "message", msg)
		return
	}
	info := s.info[p.uid]
	if !p.hasUID || info == nil {
		return
	}
	s.messages = append(s.messages, "<"+info.Name+">: "+msg)
}

// handleExecutedCommands validates the commands a client reports. Ids
// at or below the accepted watermark are duplicates from resends and
// skipped. The first failing command freezes the stream: everything
// after it is ignored until the client acknowledges the rejection by
// resending that id as an empty rollback marker.
func (s *Server) handleExecutedCommands(p *player, pkt *protocol.ExecutedCommands) error {
	for i, cmd := range pkt.Commands {
		id := pkt.StartID + uint32(i)
		if id <= p.lastCommand {
			continue
		}
		if p.hasFailed {
			if id == p.failedCommand && len(cmd) == 0 {
				p.logger.Warn("client rolled back, accepting commands again")
				p.hasFailed = false
			}
			continue
		}
		if len(cmd) == 0 {
			p.lastCommand = id
			continue
		}

		forward, err := s.game.Execute(p.uid, cmd)
		if err != nil {
			p.logger.Warn("rejecting command", "id", id, "error", err)
			s.collector.commandsRejected.Add(1)
			p.failedCommand = id
			p.hasFailed = true
			return p.conn.Send(&protocol.RejectCommands{AcceptedID: p.lastCommand, RejectedID: id})
		}
		s.collector.commandsAccepted.Add(1)
		if forward {
			p.commands = append(p.commands, cmd)
		}
		p.lastCommand = id
	}

	if p.hasFailed {
		return p.conn.Send(&protocol.RejectCommands{AcceptedID: p.lastCommand, RejectedID: p.failedCommand})
	}
	return p.conn.Send(&protocol.AckCommands{AcceptedID: p.lastCommand})
}

// sendNotices flushes queued notifications for this player.
func (s *Server) sendNotices(p *player) error {
	if !p.hasUID {
		return nil
	}
	s.mu.Lock()
	queued := s.notices[p.uid]
	delete(s.notices, p.uid)
	s.mu.Unlock()

	for _, n := range queued {
		pkt := &protocol.Notification{Kind: n.kind, Message: n.message}
		if err := p.conn.EnsureSend(pkt); err != nil {
			return err
		}
	}
	return nil
}
