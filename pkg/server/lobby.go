package server

import (
	"sort"
	"time"

	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/snapshot"
)

// addInfo inserts a roster entry and keeps uid assignment ahead of it.
func (s *Server) addInfo(info *PlayerInfo) {
	s.info[info.UID] = info
	if info.UID >= s.nextUID {
		s.nextUID = info.UID + 1
	}
}

func (s *Server) infoByName(name string) *PlayerInfo {
	for _, info := range s.info {
		if info.Name == name {
			return info
		}
	}
	return nil
}

// rosterUIDs returns every roster uid, lowest first.
func (s *Server) rosterUIDs() []snapshot.PlayerID {
	uids := make([]snapshot.PlayerID, 0, len(s.info))
	for uid := range s.info {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

// lobbyMembers returns the connected players sitting in the lobby,
// lowest uid first.
func (s *Server) lobbyMembers() []*player {
	var members []*player
	for _, p := range s.players {
		if p.hasUID && s.info[p.uid] != nil && p.remote == StateLobby {
			members = append(members, p)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].uid < members[j].uid })
	return members
}

// lobbyHost is the lowest uid waiting in the lobby. That player, and
// nobody else, may start the game.
func (s *Server) lobbyHost() (snapshot.PlayerID, bool) {
	members := s.lobbyMembers()
	if len(members) == 0 {
		return 0, false
	}
	return members[0].uid, true
}

// updateLobby rebroadcasts the roster after any change. Every lobby
// member gets the same list; only the host's copy carries CanStart,
// and only while the player count is within the configured limits.
func (s *Server) updateLobby() {
	s.changeID++
	s.dirty = false

	members := s.lobbyMembers()
	count := len(members)
	canStart := count >= s.cfg.MinPlayers && (s.cfg.MaxPlayers == 0 || count <= s.cfg.MaxPlayers)

	roster := make([]protocol.LobbyEntry, 0, len(s.players))
	for _, p := range s.players {
		if !p.hasUID {
			continue
		}
		info := s.info[p.uid]
		if info == nil {
			continue
		}
		roster = append(roster, protocol.LobbyEntry{UID: int16(info.UID), Name: info.Name})
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].UID < roster[j].UID })

	for _, m := range members {
		pkt := &protocol.UpdateLobby{
			ChangeID: s.changeID,
			Players:  roster,
			CanStart: canStart && m.uid == members[0].uid,
		}
		if err := m.conn.EnsureSend(pkt); err != nil {
			m.logger.Debug("lobby update failed", "error", err)
		}
	}

	if canStart && s.cfg.Autostart {
		s.phase = phaseBegin
	}
}

// beginGame moves the lobby into play: the roster freezes, the game is
// built, and everyone waiting gets the starting state to load.
func (s *Server) beginGame() {
	if err := s.createGame(s.rosterUIDs()); err != nil {
		s.logger.Error("game start failed", "error", err)
		s.phase = phaseLobby
		s.dirty = true
		return
	}

	state := s.game.EncodeState()
	for _, p := range s.players {
		if !p.hasUID || p.remote != StateLobby {
			continue
		}
		if err := p.conn.EnsureSend(s.gameBeginPacket(p.uid, state)); err != nil {
			p.logger.Error("game begin send failed", "error", err)
			p.local = StateClosed
			continue
		}
		p.remote = StateLoading
		p.local = StatePlaying
	}
}

func (s *Server) createGame(uids []snapshot.PlayerID) error {
	game, err := s.cfg.Factory(s.savedState, uids)
	if err != nil {
		return err
	}
	s.game = game
	s.savedState = nil
	s.snapshots = snapshot.NewSnapshots(s.logger, uids)
	s.phase = phasePlaying
	s.lastSave = time.Now()
	s.logger.Info("game running", "players", len(uids))
	return nil
}

func (s *Server) gameBeginPacket(uid snapshot.PlayerID, state []byte) *protocol.GameBegin {
	width, height := s.game.Bounds()
	return &protocol.GameBegin{
		UID:     int16(uid),
		Width:   width,
		Height:  height,
		Players: s.playerEntries(),
		Strings: s.game.Strings(),
		State:   state,
	}
}

func (s *Server) playerEntries() []protocol.PlayerEntry {
	entries := make([]protocol.PlayerEntry, 0, len(s.info))
	for _, uid := range s.rosterUIDs() {
		entries = append(entries, protocol.PlayerEntry{UID: int16(uid), Name: s.info[uid].Name})
	}
	return entries
}
