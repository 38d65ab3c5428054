package server

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/snapshot"
)

func TestRelayQueueAssignsSequentialIDs(t *testing.T) {
	q := relayQueue{nextID: 1}
	q.push(2, []byte("a"))
	q.push(3, []byte("b"))
	q.push(2, []byte("c"))

	for i, want := range []uint32{1, 2, 3} {
		if q.pending[i].ID != want {
			t.Fatalf("pending[%d].ID = %d, want %d", i, q.pending[i].ID, want)
		}
	}
}

func TestRelayQueueAckDropsThroughMatch(t *testing.T) {
	q := relayQueue{nextID: 1}
	for i := 0; i < 5; i++ {
		q.push(2, []byte{byte(i)})
	}

	q.ack(3)
	if len(q.pending) != 2 {
		t.Fatalf("len(pending) = %d, want 2", len(q.pending))
	}
	if q.pending[0].ID != 4 || q.pending[1].ID != 5 {
		t.Fatalf("pending ids = %d,%d, want 4,5", q.pending[0].ID, q.pending[1].ID)
	}
}

func TestRelayQueueStaleAckIsNoOp(t *testing.T) {
	q := relayQueue{nextID: 10}
	q.push(2, []byte("x"))
	q.push(2, []byte("y"))

	// Acks below or above the queued range must not drop anything.
	q.ack(3)
	q.ack(99)
	if len(q.pending) != 2 {
		t.Fatalf("len(pending) = %d, want 2", len(q.pending))
	}
}

func TestRelayBatchRoundTrip(t *testing.T) {
	q := relayQueue{nextID: 7}
	q.push(2, []byte("build room"))
	q.push(3, []byte{})
	q.push(-1, []byte("server command"))

	batches := q.batches()
	if len(batches) != 1 {
		t.Fatalf("len(batches) = %d, want 1", len(batches))
	}
	if batches[0].StartID != 7 {
		t.Fatalf("StartID = %d, want 7", batches[0].StartID)
	}

	cmds, err := DecodeRelayBatch(batches[0])
	if err != nil {
		t.Fatalf("DecodeRelayBatch: %v", err)
	}
	if len(cmds) != 3 {
		t.Fatalf("len(cmds) = %d, want 3", len(cmds))
	}
	for i, want := range q.pending {
		if cmds[i].ID != want.ID || cmds[i].Player != want.Player {
			t.Fatalf("cmds[%d] = {%d %d}, want {%d %d}", i, cmds[i].ID, cmds[i].Player, want.ID, want.Player)
		}
		if !bytes.Equal(cmds[i].Data, want.Data) {
			t.Fatalf("cmds[%d].Data = %q, want %q", i, cmds[i].Data, want.Data)
		}
	}
}

func TestRelayBatchesSurviveDatagramCodec(t *testing.T) {
	q := relayQueue{nextID: 1}
	q.push(4, []byte("north"))
	q.push(5, []byte("south"))

	for _, batch := range q.batches() {
		data := protocol.EncodePacket(batch)
		decoded, err := protocol.DecodePacket(data)
		if err != nil {
			t.Fatalf("DecodePacket: %v", err)
		}
		back, ok := decoded.(*protocol.RemoteExecutedCommands)
		if !ok {
			t.Fatalf("decoded %T, want *RemoteExecutedCommands", decoded)
		}
		if back.StartID != batch.StartID || !bytes.Equal(back.Commands, batch.Commands) {
			t.Fatalf("round trip changed the batch")
		}
	}
}

func TestRelayBatchSplitsAtCountLimit(t *testing.T) {
	q := relayQueue{nextID: 1}
	for i := 0; i < maxBatchCommands+10; i++ {
		q.push(2, []byte{byte(i)})
	}

	batches := q.batches()
	if len(batches) != 2 {
		t.Fatalf("len(batches) = %d, want 2", len(batches))
	}
	if batches[0].StartID != 1 {
		t.Fatalf("batches[0].StartID = %d, want 1", batches[0].StartID)
	}
	if batches[1].StartID != maxBatchCommands+1 {
		t.Fatalf("batches[1].StartID = %d, want %d", batches[1].StartID, maxBatchCommands+1)
	}

	first, err := DecodeRelayBatch(batches[0])
	if err != nil {
		t.Fatalf("DecodeRelayBatch(first): %v", err)
	}
	second, err := DecodeRelayBatch(batches[1])
	if err != nil {
		t.Fatalf("DecodeRelayBatch(second): %v", err)
	}
	if len(first) != maxBatchCommands || len(second) != 10 {
		t.Fatalf("batch sizes = %d,%d, want %d,10", len(first), len(second), maxBatchCommands)
	}
	if second[0].ID != maxBatchCommands+1 {
		t.Fatalf("second[0].ID = %d, want %d", second[0].ID, maxBatchCommands+1)
	}
}

func TestRelayBatchSplitsAtFragmentSize(t *testing.T) {
	big := bytes.Repeat([]byte("x"), 400)
	q := relayQueue{nextID: 1}
	for i := 0; i < 4; i++ {
		q.push(2, big)
	}

	batches := q.batches()
	if len(batches) < 2 {
		t.Fatalf("len(batches) = %d, want at least 2", len(batches))
	}
	for i, batch := range batches {
		if len(batch.Commands) > protocol.FragmentSize {
			t.Fatalf("batches[%d] is %d bytes, over the fragment size", i, len(batch.Commands))
		}
	}

	// The batches together must reproduce the queue in order.
	var all []RelayedCommand
	for _, batch := range batches {
		cmds, err := DecodeRelayBatch(batch)
		if err != nil {
			t.Fatalf("DecodeRelayBatch: %v", err)
		}
		all = append(all, cmds...)
	}
	if len(all) != 4 {
		t.Fatalf("total commands = %d, want 4", len(all))
	}
	for i, cmd := range all {
		if cmd.ID != uint32(i+1) {
			t.Fatalf("all[%d].ID = %d, want %d", i, cmd.ID, i+1)
		}
	}
}

func TestRelayBatchesResendUntilAcked(t *testing.T) {
	q := relayQueue{nextID: 1}
	q.push(2, []byte("once"))

	a := q.batches()
	b := q.batches()
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("batch counts = %d,%d, want 1,1", len(a), len(b))
	}
	if !bytes.Equal(a[0].Commands, b[0].Commands) {
		t.Fatal("resent batch differs")
	}

	q.ack(1)
	if got := q.batches(); got != nil {
		t.Fatalf("batches after ack = %v, want none", got)
	}
}

func TestDecodeRelayBatchRejectsTruncatedPayload(t *testing.T) {
	q := relayQueue{nextID: 1}
	q.push(2, []byte("hello world"))
	batch := q.batches()[0]

	for cut := 0; cut < len(batch.Commands); cut++ {
		short := &protocol.RemoteExecutedCommands{
			StartID:  batch.StartID,
			Commands: batch.Commands[:cut],
		}
		if _, err := DecodeRelayBatch(short); err == nil {
			t.Fatalf("expected error at %d of %d bytes", cut, len(batch.Commands))
		}
	}
}

func TestRelayBatchLargeQueueKeepsIDsContiguous(t *testing.T) {
	q := relayQueue{nextID: 100}
	for i := 0; i < 600; i++ {
		q.push(snapshot.PlayerID(i%4+1), []byte(fmt.Sprintf("cmd-%d", i)))
	}

	var all []RelayedCommand
	for _, batch := range q.batches() {
		cmds, err := DecodeRelayBatch(batch)
		if err != nil {
			t.Fatalf("DecodeRelayBatch: %v", err)
		}
		all = append(all, cmds...)
	}
	if len(all) != 600 {
		t.Fatalf("total = %d, want 600", len(all))
	}
	for i, cmd := range all {
		if cmd.ID != uint32(100+i) {
			t.Fatalf("all[%d].ID = %d, want %d", i, cmd.ID, 100+i)
		}
	}
}

// FuzzDecodeRelayBatch checks arbitrary relay payloads never panic the
// decoder and that decoded ids stay contiguous from StartID.
func FuzzDecodeRelayBatch(f *testing.F) {
	q := relayQueue{nextID: 5}
	q.push(2, []byte("build room"))
	q.push(-1, []byte{})
	for _, batch := range q.batches() {
		f.Add(batch.StartID, batch.Commands)
	}
	f.Add(uint32(0), []byte{0xFF})
	f.Add(uint32(9), []byte{})

	f.Fuzz(func(t *testing.T, startID uint32, data []byte) {
		cmds, err := DecodeRelayBatch(&protocol.RemoteExecutedCommands{StartID: startID, Commands: data})
		if err != nil {
			return
		}
		for i, cmd := range cmds {
			if cmd.ID != startID+uint32(i) {
				t.Fatalf("cmds[%d].ID = %d, want %d", i, cmd.ID, startID+uint32(i))
			}
		}
	})
}
