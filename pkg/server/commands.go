package server

import (
	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/snapshot"
)

// RelayedCommand is one command some other player executed, as carried
// inside a RemoteExecutedCommands batch.
type RelayedCommand struct {
	ID     uint32
	Player snapshot.PlayerID
	Data   []byte
}

// maxBatchCommands is the most commands one batch can carry; the batch
// header stores the count in a single byte.
const maxBatchCommands = 255

// relayQueue accumulates commands bound for one client. Batches go out
// unreliable every tick and entries stay queued until the client acks
// them, so a lost datagram only costs a tick of latency.
type relayQueue struct {
	nextID  uint32
	pending []RelayedCommand
}

func (q *relayQueue) push(player snapshot.PlayerID, data []byte) {
	q.pending = append(q.pending, RelayedCommand{ID: q.nextID, Player: player, Data: data})
	q.nextID++
}

// ack drops every entry up to and including id. An id that is not in
// the queue acks nothing; a stale ack from a reordered datagram must
// not discard commands the client has not seen.
func (q *relayQueue) ack(id uint32) {
	for i := range q.pending {
		if q.pending[i].ID == id {
			q.pending = q.pending[i+1:]
			return
		}
	}
}

// batches encodes the whole queue into RemoteExecutedCommands packets.
// A batch closes when the next entry would push it past one fragment
// or past the one-byte count.
func (q *relayQueue) batches() []*protocol.RemoteExecutedCommands {
	if len(q.pending) == 0 {
		return nil
	}

	var out []*protocol.RemoteExecutedCommands
	w := protocol.NewBitWriter(protocol.FragmentSize)
	entry := protocol.NewBitWriter(64)

	start := q.pending[0].ID
	count := 0
	flush := func() {
		w.SetByte(0, byte(count))
		out = append(out, &protocol.RemoteExecutedCommands{
			StartID:  start,
			Commands: append([]byte(nil), w.Bytes()...),
		})
		w.Reset()
		w.WriteBits(0, 8)
		count = 0
	}

	w.WriteBits(0, 8) // count, patched in by flush
	for _, cmd := range q.pending {
		entry.Reset()
		entry.WriteSigned(int64(cmd.Player), 16)
		entry.WriteLenBytes(cmd.Data)
		if count > 0 && (w.Len()+entry.Len() > protocol.FragmentSize*8 || count == maxBatchCommands) {
			flush()
			start = cmd.ID
		}
		w.Append(entry)
		count++
	}
	flush()
	return out
}

// DecodeRelayBatch unpacks a RemoteExecutedCommands batch. Commands
// are numbered consecutively from the batch's StartID; clients track
// the highest id applied and ack it with AckRemoteCommands.
func DecodeRelayBatch(pkt *protocol.RemoteExecutedCommands) ([]RelayedCommand, error) {
	r := protocol.NewBitReader(pkt.Commands)
	count, err := r.ReadBits(8)
	if err != nil {
		return nil, err
	}

	cmds := make([]RelayedCommand, 0, count)
	for i := uint32(0); i < uint32(count); i++ {
		uid, err := r.ReadSigned(16)
		if err != nil {
			return nil, err
		}
		data, err := r.ReadLenBytes()
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, RelayedCommand{
			ID:     pkt.StartID + i,
			Player: snapshot.PlayerID(uid),
			Data:   data,
		})
	}
	return cmds, nil
}
