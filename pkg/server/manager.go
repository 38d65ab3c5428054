package server

import (
	"errors"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/gridwire-go/gridwire/pkg/middleware"
	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/transport"
)

// Connection pairs a socket with the packet codec and latches the
// first close it observes, so the rest of the server can treat a gone
// peer as a simple flag instead of an error from every call.
type Connection struct {
	sock   transport.Socket
	closed atomic.Bool
}

func newConnection(sock transport.Socket) *Connection {
	return &Connection{sock: sock}
}

func (c *Connection) Addr() string        { return c.sock.Addr() }
func (c *Connection) Local() bool         { return c.sock.Local() }
func (c *Connection) LastRecv() time.Time { return c.sock.LastRecv() }

// Closed reports whether the connection is known to be dead.
func (c *Connection) Closed() bool { return c.closed.Load() }

func (c *Connection) Close() error {
	c.closed.Store(true)
	return c.sock.Close()
}

func (c *Connection) fail(err error) {
	if errors.Is(err, transport.ErrConnectionClosed) {
		c.closed.Store(true)
	}
}

// Send transmits a packet best effort.
func (c *Connection) Send(p protocol.Packet) error {
	err := transport.SendPacket(c.sock, p)
	if err != nil {
		c.fail(err)
	}
	return err
}

// EnsureSend transmits a packet reliably.
func (c *Connection) EnsureSend(p protocol.Packet) error {
	err := transport.EnsureSendPacket(c.sock, p)
	if err != nil {
		c.fail(err)
	}
	return err
}

// TryRecvPacket returns the next decoded packet, transport.ErrNoData
// when the queue is drained, or the decode error for a malformed
// payload.
func (c *Connection) TryRecvPacket() (protocol.Packet, error) {
	data, err := c.sock.TryRecv()
	if err != nil {
		c.fail(err)
		return nil, err
	}
	return protocol.DecodePacket(data)
}

// NetworkManager owns the listener and the live connection set. The
// server drives it once per tick; nothing here blocks.
type NetworkManager struct {
	logger   *slog.Logger
	listener transport.Listener
	local    bool

	conns    map[string]*Connection
	accepted int
	host     string
}

func newNetworkManager(logger *slog.Logger, listener transport.Listener) *NetworkManager {
	_, local := listener.(*transport.LoopbackListener)
	return &NetworkManager{
		logger:   logger.With("component", "network"),
		listener: listener,
		local:    local,
		conns:    make(map[string]*Connection),
	}
}

// Tick accepts every pending connection.
func (m *NetworkManager) Tick() {
	for {
		sock, err := m.listener.TryAccept()
		if err != nil {
			if !errors.Is(err, transport.ErrNoData) {
				m.logger.Debug("accept failed", "error", err)
			}
			return
		}
		c := newConnection(sock)
		m.conns[c.Addr()] = c
		m.accepted++
		if m.host == "" && c.Local() {
			m.host = c.Addr()
		}
		middleware.RecordConnectionOpened()
		m.logger.Info("connection accepted", "peer", c.Addr(), "local", c.Local())
	}
}

// Connections prunes dead connections and returns the rest sorted by
// address, so each tick visits peers in a stable order.
func (m *NetworkManager) Connections() []*Connection {
	addrs := make([]string, 0, len(m.conns))
	for addr, c := range m.conns {
		if c.Closed() {
			delete(m.conns, addr)
			middleware.RecordConnectionClosed()
			m.logger.Debug("connection dropped", "peer", addr)
			continue
		}
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	conns := make([]*Connection, len(addrs))
	for i, addr := range addrs {
		conns[i] = m.conns[addr]
	}
	return conns
}

// Open reports whether the connection at addr is still live.
func (m *NetworkManager) Open(addr string) bool {
	c, ok := m.conns[addr]
	return ok && !c.Closed()
}

// LocalListener reports whether the manager serves in-process peers
// only. A local session ends when its players leave; a network server
// keeps running for the next one.
func (m *NetworkManager) LocalListener() bool { return m.local }

// Accepted returns how many connections have ever been accepted.
func (m *NetworkManager) Accepted() int { return m.accepted }

// HostGone reports whether a hosting local connection existed and has
// since disappeared. The session cannot outlive its host.
func (m *NetworkManager) HostGone() bool {
	return m.host != "" && !m.Open(m.host)
}

// Close shuts the listener and every live connection.
func (m *NetworkManager) Close() {
	m.listener.Close()
	for addr, c := range m.conns {
		c.Close()
		delete(m.conns, addr)
	}
}
