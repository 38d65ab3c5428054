package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gridwire-go/gridwire/pkg/middleware"
	"github.com/gridwire-go/gridwire/pkg/protocol"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// WSSocket adapts a WebSocket connection to the Socket interface. The
// underlying stream is ordered and reliable, so payloads travel as whole
// binary messages with no checksum or fragment framing; EnsureSend
// differs from Send only in that it blocks instead of dropping when the
// outbound queue is full. Size limits match the datagram transports so
// callers behave identically on either.
type WSSocket struct {
	logger *slog.Logger
	ws     *websocket.Conn

	inbound chan []byte
	out     chan []byte
	done    chan struct{}

	closed    atomic.Bool
	lastRecv  atomic.Int64
	closeOnce sync.Once
}

func newWSSocket(ws *websocket.Conn, logger *slog.Logger) *WSSocket {
	s := &WSSocket{
		logger:  logger.With("peer", ws.RemoteAddr().String()),
		ws:      ws,
		inbound: make(chan []byte, inboundQueueSize),
		out:     make(chan []byte, outQueueSize),
		done:    make(chan struct{}),
	}
	s.lastRecv.Store(time.Now().UnixNano())
	go s.readPump()
	go s.writePump()
	return s
}

func (s *WSSocket) readPump() {
	defer s.Close()

	s.ws.SetReadLimit(protocol.MaxFragmentedSize)
	s.ws.SetReadDeadline(time.Now().Add(wsPongWait))
	s.ws.SetPongHandler(func(string) error {
		s.ws.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, msg, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) && !s.closed.Load() {
				s.logger.Error("websocket read failed", "error", err)
			}
			return
		}
		s.ws.SetReadDeadline(time.Now().Add(wsPongWait))
		s.lastRecv.Store(time.Now().UnixNano())
		middleware.RecordDatagramReceived(len(msg))

		select {
		case s.inbound <- msg:
		case <-s.done:
			return
		}
	}
}

func (s *WSSocket) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case d := <-s.out:
			s.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.ws.WriteMessage(websocket.BinaryMessage, d); err != nil {
				if !s.closed.Load() {
					s.logger.Error("websocket write failed", "error", err)
				}
				s.Close()
				return
			}
			middleware.RecordDatagramSent(len(d))

		case <-ticker.C:
			s.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}

		case <-s.done:
			return
		}
	}
}

func (s *WSSocket) Send(data []byte) error {
	if s.closed.Load() {
		return ErrConnectionClosed
	}
	if len(data)+protocol.ChecksumSize > protocol.MaxDatagramSize {
		return ErrPacketTooLarge
	}
	select {
	case s.out <- data:
	default:
		middleware.RecordDatagramDropped()
	}
	return nil
}

func (s *WSSocket) EnsureSend(data []byte) error {
	if s.closed.Load() {
		return ErrConnectionClosed
	}
	if len(data) > protocol.MaxFragmentedSize {
		return ErrPacketTooLarge
	}
	select {
	case s.out <- data:
		return nil
	case <-s.done:
		return ErrConnectionClosed
	}
}

func (s *WSSocket) Recv() ([]byte, error) {
	select {
	case p := <-s.inbound:
		return p, nil
	default:
	}
	select {
	case p := <-s.inbound:
		return p, nil
	case <-s.done:
		return nil, ErrConnectionClosed
	}
}

func (s *WSSocket) TryRecv() ([]byte, error) {
	select {
	case p := <-s.inbound:
		return p, nil
	default:
	}
	if s.closed.Load() {
		return nil, ErrConnectionClosed
	}
	return nil, ErrNoData
}

func (s *WSSocket) RecvTimeout(d time.Duration) ([]byte, error) {
	select {
	case p := <-s.inbound:
		return p, nil
	default:
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case p := <-s.inbound:
		return p, nil
	case <-timer.C:
		return nil, ErrNoData
	case <-s.done:
		return nil, ErrConnectionClosed
	}
}

func (s *WSSocket) Local() bool {
	return false
}

func (s *WSSocket) Addr() string {
	return s.ws.RemoteAddr().String()
}

func (s *WSSocket) LastRecv() time.Time {
	return time.Unix(0, s.lastRecv.Load())
}

func (s *WSSocket) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteWait))
		s.ws.Close()
	})
	return nil
}

// WSAcceptor upgrades HTTP requests into sockets. It implements
// http.Handler so it can be mounted on an existing router, and Listener
// so accept loops work the same as over UDP.
type WSAcceptor struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	accept    chan Socket
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewWSAcceptor builds an acceptor. Game clients are not browsers, so the
// upgrader skips origin checks. A nil logger falls back to slog.Default().
func NewWSAcceptor(logger *slog.Logger) *WSAcceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSAcceptor{
		logger: logger.With("component", "ws-listener"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		accept: make(chan Socket, acceptQueueSize),
		done:   make(chan struct{}),
	}
}

func (a *WSAcceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.closed.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	s := newWSSocket(ws, a.logger)
	select {
	case a.accept <- s:
		a.logger.Debug("new peer", "peer", s.Addr())
	default:
		// Backlog full; refuse the connection.
		s.Close()
	}
}

// Accept blocks until a connection arrives or the acceptor closes.
func (a *WSAcceptor) Accept() (Socket, error) {
	select {
	case s := <-a.accept:
		return s, nil
	case <-a.done:
		return nil, ErrConnectionClosed
	}
}

// TryAccept returns a pending connection or ErrNoData without blocking.
func (a *WSAcceptor) TryAccept() (Socket, error) {
	select {
	case s := <-a.accept:
		return s, nil
	default:
	}
	if a.closed.Load() {
		return nil, ErrConnectionClosed
	}
	return nil, ErrNoData
}

// Addr returns the mount path handled by the acceptor. Use WSListener
// for a bound network address.
func (a *WSAcceptor) Addr() string {
	return "/ws"
}

// Close stops accepting and closes connections not yet handed out.
func (a *WSAcceptor) Close() error {
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		close(a.done)
		for {
			select {
			case s := <-a.accept:
				s.Close()
			default:
				return
			}
		}
	})
	return nil
}

// WSListener runs a WSAcceptor behind its own HTTP server at /ws.
type WSListener struct {
	*WSAcceptor
	srv *http.Server
	ln  net.Listener
}

// ListenWebSocket serves WebSocket connections on addr ("host:port",
// port 0 for ephemeral).
func ListenWebSocket(addr string, logger *slog.Logger) (*WSListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	a := NewWSAcceptor(logger)
	mux := http.NewServeMux()
	mux.Handle("/ws", a)

	l := &WSListener{
		WSAcceptor: a,
		srv:        &http.Server{Handler: mux},
		ln:         ln,
	}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("websocket serve failed", "error", err)
		}
	}()
	return l, nil
}

// Addr returns the bound address, useful with ephemeral ports.
func (l *WSListener) Addr() string {
	return l.ln.Addr().String()
}

func (l *WSListener) Close() error {
	l.WSAcceptor.Close()
	return l.srv.Close()
}

// DialWebSocket connects to a WebSocket endpoint, e.g.
// "ws://host:port/ws". A nil logger falls back to slog.Default().
func DialWebSocket(url string, logger *slog.Logger) (*WSSocket, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	return newWSSocket(ws, logger.With("component", "ws-client")), nil
}
