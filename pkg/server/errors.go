package server

import (
	"errors"
	"fmt"

	"github.com/gridwire-go/gridwire/pkg/protocol"
)

var (
	// ErrNoReply is returned by TakeReply while the ticket's reply has
	// not arrived yet.
	ErrNoReply = errors.New("server: no reply yet")

	// ErrUnknownTicket is returned by TakeReply for a ticket this
	// manager never issued or already resolved.
	ErrUnknownTicket = errors.New("server: unknown ticket")
)

// KindError tags replies that report a failure instead of an answer.
// The reply body is the failure message.
var KindError = protocol.Kind("errr")

// RequestError is the failure a peer reported instead of answering a
// request.
type RequestError struct {
	Kind    protocol.RequestKind
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("server: request %s failed: %s", e.Kind, e.Message)
}
