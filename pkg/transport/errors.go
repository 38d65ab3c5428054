package transport

import (
	"errors"
	"fmt"
)

// Transport errors. ErrNoData and ErrNoPacketSlots are transient: the
// first is the normal result of polling an idle connection, the second is
// backpressure that clears as acknowledgments arrive. ErrConnectionClosed
// is terminal.
var (
	// ErrPacketTooLarge is returned when a payload cannot fit the
	// datagram or fragmentation limits.
	ErrPacketTooLarge = errors.New("transport: packet too large")

	// ErrInvalidFragment is returned for a fragment whose part index is
	// outside its own declared part count.
	ErrInvalidFragment = errors.New("transport: invalid fragment")

	// ErrMaxFragmentPartChanged is returned when fragments of one payload
	// disagree about the part count.
	ErrMaxFragmentPartChanged = errors.New("transport: fragment part count changed")

	// ErrDataTooLarge is returned for a fragment carrying more than
	// FragmentSize bytes.
	ErrDataTooLarge = errors.New("transport: fragment data too large")

	// ErrNoPacketSlots is returned when every reliable-send slot is
	// occupied by an unacknowledged payload. Retry after a resend period.
	ErrNoPacketSlots = errors.New("transport: no free packet slots")

	// ErrNoData is returned by non-blocking receives when nothing is
	// pending.
	ErrNoData = errors.New("transport: no data")

	// ErrConnectionClosed is returned for any operation on a closed
	// connection.
	ErrConnectionClosed = errors.New("transport: connection closed")
)

// FragmentError carries the offending fragment ids alongside one of the
// fragment sentinels. It matches the wrapped sentinel under errors.Is.
type FragmentError struct {
	ID   uint16
	Part uint16
	Err  error
}

func (e *FragmentError) Error() string {
	return fmt.Sprintf("%v (fragment %d part %d)", e.Err, e.ID, e.Part)
}

func (e *FragmentError) Unwrap() error {
	return e.Err
}
