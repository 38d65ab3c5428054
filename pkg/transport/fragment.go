package transport

import (
	"sync"
	"time"

	"github.com/gridwire-go/gridwire/pkg/protocol"
)

const (
	// maxWaitPackets is the number of reliable-delivery slots per
	// direction. Fragment ids map to slots by id % maxWaitPackets, so at
	// most maxWaitPackets payloads can be in flight.
	maxWaitPackets = 128

	// resendInterval is the monitor tick driving resends.
	resendInterval = 20 * time.Millisecond

	// initialResendTicks is how many monitor ticks a fresh payload waits
	// before its first resend burst. Each burst backs the next one off by
	// another initialResendTicks.
	initialResendTicks = 4

	// noDeliveredID marks a receive slot that has never completed a
	// payload.
	noDeliveredID = 0xFFFF
)

// sentData tracks one reliably sent payload until every fragment is
// acknowledged.
type sentData struct {
	id          uint16
	datagrams   [][]byte // sealed fragments, indexed by part
	acked       *protocol.BitSet
	mask        *protocol.BitSet
	resendCount int
	resendTicks int
}

// recvData reassembles one incoming payload from its fragments.
type recvData struct {
	id        uint16
	fragments int
	buf       []byte
	received  *protocol.BitSet
	mask      *protocol.BitSet
	tailLen   int
}

// fragmentState is the reliable-delivery bookkeeping of one connection.
// It is pure state: methods return the datagrams to transmit and never
// touch a socket, so the mutex is held only for slot updates.
type fragmentState struct {
	mu       sync.Mutex
	sent     [maxWaitPackets]*sentData
	recv     [maxWaitPackets]*recvData
	recvLast [maxWaitPackets]uint16
	nextID   uint16
}

func newFragmentState() *fragmentState {
	fs := &fragmentState{}
	for i := range fs.recvLast {
		fs.recvLast[i] = noDeliveredID
	}
	return fs
}

// ensure splits payload into fragments, registers them for resending and
// returns the sealed datagrams of the initial burst.
//
// The fragment id is consumed only on success; after ErrNoPacketSlots the
// same id is retried once acknowledgments free its slot.
func (fs *fragmentState) ensure(payload []byte) ([][]byte, error) {
	if len(payload) > protocol.MaxFragmentedSize {
		return nil, ErrPacketTooLarge
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	slot := fs.nextID % maxWaitPackets
	if fs.sent[slot] != nil {
		return nil, ErrNoPacketSlots
	}

	id := fs.nextID
	parts := (len(payload) + protocol.FragmentSize - 1) / protocol.FragmentSize
	if parts == 0 {
		parts = 1
	}

	datagrams := make([][]byte, parts)
	for part := 0; part < parts; part++ {
		start := part * protocol.FragmentSize
		end := start + protocol.FragmentSize
		if end > len(payload) {
			end = len(payload)
		}
		chunk := protocol.NewEnsured(id, uint16(part), uint16(parts-1), payload[start:end])
		datagrams[part] = protocol.SealDatagram(protocol.EncodePacket(chunk))
	}

	mask := protocol.NewBitSet(parts)
	mask.SetAll()
	fs.sent[slot] = &sentData{
		id:          id,
		datagrams:   datagrams,
		acked:       protocol.NewBitSet(parts),
		mask:        mask,
		resendTicks: initialResendTicks,
	}
	fs.nextID++
	return datagrams, nil
}

// handleEnsured ingests one received fragment. It returns the sealed ack
// datagram to transmit and, when this fragment completes its payload, the
// reassembled payload. Duplicates are acknowledged again so a lost ack
// costs only one resend round.
func (fs *fragmentState) handleEnsured(p *protocol.Ensured) (ack, payload []byte, err error) {
	if len(p.Data) > protocol.FragmentSize {
		return nil, nil, &FragmentError{ID: p.FragmentID, Part: p.FragmentPart, Err: ErrDataTooLarge}
	}
	fragments := int(p.FragmentMaxParts) + 1
	part := int(p.FragmentPart)
	if part >= fragments {
		return nil, nil, &FragmentError{ID: p.FragmentID, Part: p.FragmentPart, Err: ErrInvalidFragment}
	}

	fs.mu.Lock()
	slot := p.FragmentID % maxWaitPackets

	if fs.recvLast[slot] == p.FragmentID {
		// The payload was already delivered; the ack got lost.
		fs.mu.Unlock()
		return ackDatagram(p.FragmentID, p.FragmentPart), nil, nil
	}

	rd := fs.recv[slot]
	if rd != nil && rd.id != p.FragmentID {
		// The slot's id moved on; the partial payload in it is stale.
		rd = nil
	}
	if rd == nil {
		rd = &recvData{
			id:        p.FragmentID,
			fragments: fragments,
			buf:       make([]byte, fragments*protocol.FragmentSize),
			received:  protocol.NewBitSet(fragments),
			mask:      protocol.NewBitSet(fragments),
		}
		rd.mask.SetAll()
		fs.recv[slot] = rd
	}
	if rd.fragments != fragments {
		fs.mu.Unlock()
		return nil, nil, &FragmentError{ID: p.FragmentID, Part: p.FragmentPart, Err: ErrMaxFragmentPartChanged}
	}

	copy(rd.buf[part*protocol.FragmentSize:], p.Data)
	if part == fragments-1 {
		rd.tailLen = len(p.Data)
	}
	rd.received.Set(part)

	if rd.received.IncludesSet(rd.mask) {
		payload = rd.buf[:(fragments-1)*protocol.FragmentSize+rd.tailLen]
		fs.recv[slot] = nil
		fs.recvLast[slot] = p.FragmentID
	}
	fs.mu.Unlock()

	return ackDatagram(p.FragmentID, p.FragmentPart), payload, nil
}

// handleAck marks a fragment acknowledged. Acks for unknown or stale
// payloads are ignored; a fully acknowledged payload frees its slot.
func (fs *fragmentState) handleAck(p *protocol.EnsuredAck) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	slot := p.FragmentID % maxWaitPackets
	sd := fs.sent[slot]
	if sd == nil || sd.id != p.FragmentID {
		return
	}
	part := int(p.FragmentPart)
	if part >= len(sd.datagrams) {
		return
	}
	sd.acked.Set(part)
	if sd.acked.IncludesSet(sd.mask) {
		fs.sent[slot] = nil
	}
}

// resendDue advances the resend clock by one monitor tick and returns
// every datagram whose acknowledgment is overdue.
func (fs *fragmentState) resendDue() [][]byte {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var due [][]byte
	for _, sd := range fs.sent {
		if sd == nil {
			continue
		}
		sd.resendTicks--
		if sd.resendTicks > 0 {
			continue
		}
		for part, d := range sd.datagrams {
			if !sd.acked.Get(part) {
				due = append(due, d)
			}
		}
		sd.resendCount++
		sd.resendTicks = initialResendTicks * sd.resendCount
	}
	return due
}

// outstanding returns the number of reliable payloads awaiting full
// acknowledgment.
func (fs *fragmentState) outstanding() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n := 0
	for _, sd := range fs.sent {
		if sd != nil {
			n++
		}
	}
	return n
}

func ackDatagram(id, part uint16) []byte {
	return protocol.SealDatagram(protocol.EncodePacket(protocol.NewEnsuredAck(id, part)))
}
