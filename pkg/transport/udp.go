package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
)

// acceptQueueSize bounds connections waiting for Accept. A peer whose
// hello arrives while the backlog is full is treated as lost traffic; it
// will retry.
const acceptQueueSize = 64

// readBufferSize is large enough for any datagram a conforming peer
// sends; oversized datagrams are truncated and fail the checksum.
const readBufferSize = 2048

// UDPListener accepts datagram connections on a UDP socket. One reader
// goroutine demultiplexes inbound datagrams to per-connection queues by
// peer address; datagrams from unknown peers create pending connections.
type UDPListener struct {
	logger *slog.Logger
	sock   *net.UDPConn

	mu    sync.Mutex
	conns map[netip.AddrPort]*conn

	accept    chan Socket
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

// ListenUDP opens a listener on addr ("host:port", port 0 for ephemeral).
// A nil logger falls back to slog.Default().
func ListenUDP(addr string, logger *slog.Logger) (*UDPListener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %s: %w", addr, err)
	}
	sock, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}

	l := &UDPListener{
		logger: logger.With("component", "udp-listener", "addr", sock.LocalAddr().String()),
		sock:   sock,
		conns:  make(map[netip.AddrPort]*conn),
		accept: make(chan Socket, acceptQueueSize),
		done:   make(chan struct{}),
	}
	go l.readLoop()
	return l, nil
}

func (l *UDPListener) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, peer, err := l.sock.ReadFromUDPAddrPort(buf)
		if err != nil {
			if l.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Error("udp read failed", "error", err)
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		l.route(peer, data)
	}
}

// route hands a datagram to its peer's connection, creating the
// connection on first contact.
func (l *UDPListener) route(peer netip.AddrPort, data []byte) {
	l.mu.Lock()
	c, ok := l.conns[peer]
	if !ok {
		if l.closed.Load() {
			l.mu.Unlock()
			return
		}
		c = newConn(l.logger, peer.String(), false, l.writerFor(peer), func() { l.remove(peer) })
		l.conns[peer] = c
		select {
		case l.accept <- c:
			c.start()
			l.logger.Debug("new peer", "peer", peer.String())
		default:
			// Backlog full; treat the first datagram as lost.
			delete(l.conns, peer)
			l.mu.Unlock()
			c.Close()
			return
		}
	}
	l.mu.Unlock()
	c.feedRaw(data)
}

func (l *UDPListener) writerFor(peer netip.AddrPort) func([]byte) error {
	return func(d []byte) error {
		_, err := l.sock.WriteToUDPAddrPort(d, peer)
		return err
	}
}

func (l *UDPListener) remove(peer netip.AddrPort) {
	l.mu.Lock()
	delete(l.conns, peer)
	l.mu.Unlock()
}

// Accept blocks until a connection arrives or the listener closes.
func (l *UDPListener) Accept() (Socket, error) {
	select {
	case c := <-l.accept:
		return c, nil
	case <-l.done:
		return nil, ErrConnectionClosed
	}
}

// TryAccept returns a pending connection or ErrNoData without blocking.
func (l *UDPListener) TryAccept() (Socket, error) {
	select {
	case c := <-l.accept:
		return c, nil
	default:
	}
	if l.closed.Load() {
		return nil, ErrConnectionClosed
	}
	return nil, ErrNoData
}

// Addr returns the bound address, useful with ephemeral ports.
func (l *UDPListener) Addr() string {
	return l.sock.LocalAddr().String()
}

// Close shuts the listener and every connection accepted from it.
func (l *UDPListener) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
		l.sock.Close()

		l.mu.Lock()
		conns := make([]*conn, 0, len(l.conns))
		for _, c := range l.conns {
			conns = append(conns, c)
		}
		l.mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return nil
}

// UDPSocket is the client end of a UDP connection.
type UDPSocket struct {
	*conn
	sock *net.UDPConn
}

// DialUDP connects to a listener at addr. The returned socket is usable
// immediately; reliability handshaking happens per payload, not per
// connection. A nil logger falls back to slog.Default().
func DialUDP(addr string, logger *slog.Logger) (*UDPSocket, error) {
	if logger == nil {
		logger = slog.Default()
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %s: %w", addr, err)
	}
	sock, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}

	s := &UDPSocket{sock: sock}
	s.conn = newConn(
		logger.With("component", "udp-client"),
		addr,
		false,
		func(d []byte) error {
			_, err := sock.Write(d)
			return err
		},
		func() { sock.Close() },
	)
	s.conn.start()
	go s.readLoop()
	return s, nil
}

func (s *UDPSocket) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.sock.Read(buf)
		if err != nil {
			if s.conn.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			// Transient; connected UDP sockets surface ICMP errors here.
			s.conn.logger.Debug("udp read failed", "error", err)
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		s.conn.feedRaw(data)
	}
}
