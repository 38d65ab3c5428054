package transport

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// LoopbackPair returns two connected in-memory sockets. Datagrams cross a
// channel instead of a network, but every payload still goes through the
// checksum and fragment path, so reliable delivery behaves exactly as it
// does over UDP. Both ends report Local() true and are exempt from idle
// timeouts.
//
// A nil logger falls back to slog.Default().
func LoopbackPair(logger *slog.Logger) (client, server Socket) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "loopback")

	var a, b *conn
	a = newConn(logger, "loopback:server", true, func(d []byte) error {
		if b.closed.Load() {
			return ErrConnectionClosed
		}
		b.feedRaw(d)
		return nil
	}, nil)
	b = newConn(logger, "loopback:client", true, func(d []byte) error {
		if a.closed.Load() {
			return ErrConnectionClosed
		}
		a.feedRaw(d)
		return nil
	}, nil)

	a.start()
	b.start()
	return a, b
}

// LoopbackListener hands out in-process connections. Each Connect call
// builds a socket pair, queues the serving half for Accept, and returns
// the client half, so a server and its local client can share a process
// without touching the network.
type LoopbackListener struct {
	logger *slog.Logger

	accept    chan Socket
	done      chan struct{}
	seq       atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewLoopbackListener creates an in-process listener. A nil logger falls
// back to slog.Default().
func NewLoopbackListener(logger *slog.Logger) *LoopbackListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoopbackListener{
		logger: logger.With("component", "loopback-listener"),
		accept: make(chan Socket, acceptQueueSize),
		done:   make(chan struct{}),
	}
}

// Connect creates a new connection to the listener and returns the
// client end. It returns ErrConnectionClosed after Close, or ErrNoData
// when the accept backlog is full.
func (l *LoopbackListener) Connect() (Socket, error) {
	if l.closed.Load() {
		return nil, ErrConnectionClosed
	}
	n := l.seq.Add(1)

	var client, server *conn
	client = newConn(l.logger, "loopback:server", true, func(d []byte) error {
		if server.closed.Load() {
			return ErrConnectionClosed
		}
		server.feedRaw(d)
		return nil
	}, nil)
	server = newConn(l.logger, fmt.Sprintf("loopback:%d", n), true, func(d []byte) error {
		if client.closed.Load() {
			return ErrConnectionClosed
		}
		client.feedRaw(d)
		return nil
	}, nil)

	select {
	case l.accept <- server:
	default:
		return nil, ErrNoData
	}
	client.start()
	server.start()
	return client, nil
}

// Accept blocks until a connection arrives or the listener closes.
func (l *LoopbackListener) Accept() (Socket, error) {
	select {
	case c := <-l.accept:
		return c, nil
	case <-l.done:
		return nil, ErrConnectionClosed
	}
}

// TryAccept returns a pending connection or ErrNoData without blocking.
func (l *LoopbackListener) TryAccept() (Socket, error) {
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

// Addr identifies the listener for logs.
func (l *LoopbackListener) Addr() string {
	return "loopback"
}

// Close stops the listener. Connections already handed out stay open.
func (l *LoopbackListener) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
	})
	return nil
}
