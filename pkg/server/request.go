package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gridwire-go/gridwire/pkg/middleware"
	"github.com/gridwire-go/gridwire/pkg/protocol"
)

// RequestManager correlates Request and Reply packets over one
// connection, in both directions. Inbound requests are dispatched to a
// handler and the reply queued for the next flush; outbound requests
// get a ticket whose reply is collected later with TakeReply.
type RequestManager struct {
	logger   *slog.Logger
	dispatch middleware.RequestHandler

	mu      sync.Mutex
	nextID  uint32
	pending map[uint32]protocol.RequestKind
	done    map[uint32]replyOutcome
	outbox  []protocol.Packet
}

type replyOutcome struct {
	data []byte
	err  error
}

// NewRequestManager builds a manager over a handler table. Wrappers
// are applied around the whole dispatch, outermost first, so tracing
// middleware sees unknown kinds too.
func NewRequestManager(logger *slog.Logger, handlers map[protocol.RequestKind]middleware.RequestHandler, wrappers ...func(middleware.RequestHandler) middleware.RequestHandler) *RequestManager {
	if logger == nil {
		logger = slog.Default()
	}

	dispatch := func(ctx context.Context, kind string, data []byte) ([]byte, error) {
		h, ok := handlers[protocol.Kind(kind)]
		if !ok {
			return nil, fmt.Errorf("server: no handler for request kind %q", kind)
		}
		return h(ctx, kind, data)
	}
	for i := len(wrappers) - 1; i >= 0; i-- {
		dispatch = wrappers[i](dispatch)
	}

	return &RequestManager{
		logger:   logger,
		dispatch: dispatch,
		pending:  make(map[uint32]protocol.RequestKind),
		done:     make(map[uint32]replyOutcome),
	}
}

// HandleRequest runs the handler for an inbound request and queues the
// reply. Handler failures become KindError replies carrying the error
// text, so the peer's ticket resolves instead of hanging.
func (m *RequestManager) HandleRequest(ctx context.Context, req *protocol.Request) {
	reply, err := m.dispatch(ctx, req.Kind.String(), req.Data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.logger.Warn("request failed", "kind", req.Kind.String(), "id", req.ID, "error", err)
		m.outbox = append(m.outbox, &protocol.Reply{Kind: KindError, ID: req.ID, Data: []byte(err.Error())})
		return
	}
	m.outbox = append(m.outbox, &protocol.Reply{Kind: req.Kind, ID: req.ID, Data: reply})
}

// HandleReply resolves the ticket an inbound reply answers. Replies
// that match no outstanding ticket are dropped; duplicates can arrive
// when a peer resends.
func (m *RequestManager) HandleReply(rep *protocol.Reply) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kind, ok := m.pending[rep.ID]
	if !ok {
		m.logger.Debug("reply for unknown request", "id", rep.ID)
		return
	}
	delete(m.pending, rep.ID)

	if rep.Kind == KindError {
		m.done[rep.ID] = replyOutcome{err: &RequestError{Kind: kind, Message: string(rep.Data)}}
		return
	}
	m.done[rep.ID] = replyOutcome{data: rep.Data}
}

// Request queues an outbound request and returns its ticket.
func (m *RequestManager) Request(kind protocol.RequestKind, data []byte) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.pending[id] = kind
	m.outbox = append(m.outbox, &protocol.Request{Kind: kind, ID: id, Data: data})
	return id
}

// TakeReply returns the reply for a ticket. ErrNoReply while the
// request is still outstanding, ErrUnknownTicket for a ticket never
// issued or already taken. A resolved ticket can be taken once.
func (m *RequestManager) TakeReply(ticket uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if out, ok := m.done[ticket]; ok {
		delete(m.done, ticket)
		return out.data, out.err
	}
	if _, ok := m.pending[ticket]; ok {
		return nil, ErrNoReply
	}
	return nil, ErrUnknownTicket
}

// Packets drains the queued outbound requests and replies.
func (m *RequestManager) Packets() []protocol.Packet {
	m.mu.Lock()
	defer m.mu.Unlock()

	pkts := m.outbox
	m.outbox = nil
	return pkts
}
