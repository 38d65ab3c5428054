package transport

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gridwire-go/gridwire/pkg/middleware"
	"github.com/gridwire-go/gridwire/pkg/protocol"
)

// Socket is one end of an established connection. Send is best effort:
// the payload rides a single datagram and may be lost. EnsureSend
// fragments the payload and resends until the peer acknowledges every
// fragment. Receives return whole payloads; fragment framing never
// reaches the application.
//
// All methods are safe for concurrent use.
type Socket interface {
	// Send transmits a payload best effort. ErrPacketTooLarge if it
	// cannot fit a single datagram.
	Send(data []byte) error

	// EnsureSend transmits a payload reliably. ErrNoPacketSlots when the
	// in-flight window and the pending queue are both full.
	EnsureSend(data []byte) error

	// Recv blocks until a payload arrives or the connection closes.
	Recv() ([]byte, error)

	// TryRecv returns a pending payload or ErrNoData without blocking.
	TryRecv() ([]byte, error)

	// RecvTimeout waits up to d for a payload.
	RecvTimeout(d time.Duration) ([]byte, error)

	// Local reports whether the peer lives in the same process. Local
	// connections are exempt from the idle timeout.
	Local() bool

	// Addr identifies the peer for logs.
	Addr() string

	// LastRecv returns the time of the last validated inbound traffic.
	LastRecv() time.Time

	Close() error
}

// Listener accepts inbound connections.
type Listener interface {
	// Accept blocks until a connection arrives or the listener closes.
	Accept() (Socket, error)

	// TryAccept returns a pending connection or ErrNoData without
	// blocking.
	TryAccept() (Socket, error)

	Addr() string
	Close() error
}

// SendPacket encodes p and sends it best effort.
func SendPacket(s Socket, p protocol.Packet) error {
	return s.Send(protocol.EncodePacket(p))
}

// EnsureSendPacket encodes p and sends it reliably.
func EnsureSendPacket(s Socket, p protocol.Packet) error {
	return s.EnsureSend(protocol.EncodePacket(p))
}

// Queue capacities. Raw inbound datagrams are dropped when their queue is
// full, which the reliability layer treats as network loss; everything
// else applies backpressure or surfaces an error.
const (
	rawQueueSize     = 512
	inboundQueueSize = 256
	outQueueSize     = 512
	maxEnsureQueue   = 128
)

// conn is the datagram socket core shared by the UDP and loopback
// transports: fragment state, the queue plumbing, and the reader, writer
// and monitor goroutines. Transports provide the write function and feed
// inbound datagrams through feedRaw.
type conn struct {
	logger *slog.Logger
	frag   *fragmentState

	raw     chan []byte // inbound wire datagrams
	inbound chan []byte // reassembled payloads for the application
	out     chan []byte // sealed datagrams awaiting the writer
	done    chan struct{}

	ensureMu      sync.Mutex
	ensurePending [][]byte

	write   func([]byte) error
	onClose func()

	local     bool
	addr      string
	closed    atomic.Bool
	lastRecv  atomic.Int64
	closeOnce sync.Once
}

func newConn(logger *slog.Logger, addr string, local bool, write func([]byte) error, onClose func()) *conn {
	c := &conn{
		logger:  logger.With("peer", addr),
		frag:    newFragmentState(),
		raw:     make(chan []byte, rawQueueSize),
		inbound: make(chan []byte, inboundQueueSize),
		out:     make(chan []byte, outQueueSize),
		done:    make(chan struct{}),
		write:   write,
		onClose: onClose,
		local:   local,
		addr:    addr,
	}
	c.lastRecv.Store(time.Now().UnixNano())
	return c
}

// start launches the connection goroutines.
func (c *conn) start() {
	go c.readLoop()
	go c.writeLoop()
	go c.monitorLoop()
}

// feedRaw hands an inbound datagram to the connection. It never blocks:
// when the queue is full the datagram is dropped, and unacknowledged
// fragments come back through the peer's resend monitor. The slice must
// not be reused by the caller.
func (c *conn) feedRaw(data []byte) {
	select {
	case c.raw <- data:
	default:
		middleware.RecordDatagramDropped()
	}
}

func (c *conn) readLoop() {
	for {
		select {
		case data := <-c.raw:
			c.handleDatagram(data)
		case <-c.done:
			return
		}
	}
}

func (c *conn) handleDatagram(data []byte) {
	payload, err := protocol.OpenDatagram(data)
	if err != nil {
		if errors.Is(err, protocol.ErrChecksumMismatch) {
			middleware.RecordChecksumFailure()
		}
		c.logger.Debug("dropping datagram", "error", err)
		return
	}
	c.lastRecv.Store(time.Now().UnixNano())
	middleware.RecordDatagramReceived(len(data))

	t, _ := protocol.PeekType(payload)
	switch t {
	case protocol.TypeEnsured:
		pkt, err := protocol.DecodePacket(payload)
		if err != nil {
			c.logger.Debug("dropping fragment", "error", err)
			return
		}
		ack, complete, err := c.frag.handleEnsured(pkt.(*protocol.Ensured))
		if err != nil {
			c.logger.Warn("rejecting fragment", "error", err)
			return
		}
		c.enqueueOut(ack)
		if complete != nil {
			middleware.RecordReliablePayload(len(complete))
			c.deliver(complete)
		}

	case protocol.TypeEnsuredAck:
		pkt, err := protocol.DecodePacket(payload)
		if err != nil {
			c.logger.Debug("dropping ack", "error", err)
			return
		}
		c.frag.handleAck(pkt.(*protocol.EnsuredAck))

	default:
		c.deliver(payload)
	}
}

func (c *conn) deliver(payload []byte) {
	select {
	case c.inbound <- payload:
	case <-c.done:
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case d := <-c.out:
			if err := c.write(d); err != nil {
				if !c.closed.Load() {
					c.logger.Error("datagram write failed", "error", err)
				}
				continue
			}
			middleware.RecordDatagramSent(len(d))
		case <-c.done:
			return
		}
	}
}

func (c *conn) monitorLoop() {
	ticker := time.NewTicker(resendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flushEnsurePending()
			due := c.frag.resendDue()
			if len(due) > 0 {
				middleware.RecordFragmentsResent(len(due))
			}
			for _, d := range due {
				c.enqueueOut(d)
			}
		case <-c.done:
			return
		}
	}
}

// enqueueOut queues a sealed datagram for the writer without blocking.
// Dropping here is safe: unreliable traffic is allowed to vanish and
// reliable fragments are re-collected by the next monitor tick.
func (c *conn) enqueueOut(d []byte) {
	select {
	case c.out <- d:
	default:
		c.logger.Debug("outbound queue full, dropping datagram")
	}
}

func (c *conn) Send(data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if len(data)+protocol.ChecksumSize > protocol.MaxDatagramSize {
		return ErrPacketTooLarge
	}
	c.enqueueOut(protocol.SealDatagram(data))
	return nil
}

func (c *conn) EnsureSend(data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if len(data) > protocol.MaxFragmentedSize {
		return ErrPacketTooLarge
	}

	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()

	// Earlier payloads wait for slots; queue behind them to keep
	// fragment ids in send order.
	if len(c.ensurePending) == 0 {
		datagrams, err := c.frag.ensure(data)
		if err == nil {
			for _, d := range datagrams {
				c.enqueueOut(d)
			}
			return nil
		}
		if !errors.Is(err, ErrNoPacketSlots) {
			return err
		}
	}
	if len(c.ensurePending) >= maxEnsureQueue {
		return ErrNoPacketSlots
	}
	c.ensurePending = append(c.ensurePending, data)
	return nil
}

// flushEnsurePending moves queued reliable payloads into freed slots,
// oldest first.
func (c *conn) flushEnsurePending() {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()

	for len(c.ensurePending) > 0 {
		datagrams, err := c.frag.ensure(c.ensurePending[0])
		if err != nil {
			return
		}
		c.ensurePending = c.ensurePending[1:]
		for _, d := range datagrams {
			c.enqueueOut(d)
		}
	}
}

func (c *conn) Recv() ([]byte, error) {
	// Drain buffered payloads before reporting the close.
	select {
	case p := <-c.inbound:
		return p, nil
	default:
	}
	select {
	case p := <-c.inbound:
		return p, nil
	case <-c.done:
		return nil, ErrConnectionClosed
	}
}

func (c *conn) TryRecv() ([]byte, error) {
	select {
	case p := <-c.inbound:
		return p, nil
	default:
	}
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}
	return nil, ErrNoData
}

func (c *conn) RecvTimeout(d time.Duration) ([]byte, error) {
	select {
	case p := <-c.inbound:
		return p, nil
	default:
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case p := <-c.inbound:
		return p, nil
	case <-timer.C:
		return nil, ErrNoData
	case <-c.done:
		return nil, ErrConnectionClosed
	}
}

func (c *conn) Local() bool {
	return c.local
}

func (c *conn) Addr() string {
	return c.addr
}

func (c *conn) LastRecv() time.Time {
	return time.Unix(0, c.lastRecv.Load())
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		if c.onClose != nil {
			c.onClose()
		}
	})
	return nil
}
