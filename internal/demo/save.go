package demo

import (
	"fmt"
	"math"

	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/snapshot"
)

// saveVersion guards the campus blob layout inside the server's save
// envelope.
const saveVersion = 1

// EncodeState serializes the campus. The same blob seeds joining
// clients and goes into saves.
func (w *World) EncodeState() []byte {
	bw := protocol.NewBitWriter(64 + 32*len(w.order))
	bw.WriteBits(saveVersion, 8)
	bw.WriteBits(uint64(w.cfg.Width), 32)
	bw.WriteBits(uint64(w.cfg.Height), 32)

	bw.WriteUvarint(uint64(len(w.order)))
	for _, e := range w.order {
		a := w.actors[e]
		bw.WriteString(a.key)
		bw.WriteBits(uint64(a.variant), 8)
		bw.WriteString(a.first)
		bw.WriteString(a.last)
		if a.owner != nil {
			bw.WriteBool(true)
			bw.WriteSigned(int64(*a.owner), 16)
		} else {
			bw.WriteBool(false)
		}
		bw.WriteBits(uint64(math.Float32bits(a.x)), 32)
		bw.WriteBits(uint64(math.Float32bits(a.z)), 32)
		bw.WriteBits(uint64(a.activity), 8)
	}

	uids := w.accountUIDs()
	bw.WriteUvarint(uint64(len(uids)))
	for _, uid := range uids {
		acct := w.accounts[uid]
		bw.WriteSigned(int64(uid), 16)
		bw.WriteSvarint(acct.money)
		bw.WriteSvarint(int64(acct.rating))
		bw.WriteUvarint(uint64(acct.updateID))
	}
	return bw.Bytes()
}

// Restore rebuilds a campus from a saved blob. Actors wake up resting
// where they stood; the books pick up from the saved balances. Roster
// members the save does not know get fresh accounts.
func Restore(cfg Config, save []byte, players []snapshot.PlayerID) (*World, error) {
	r := protocol.NewBitReader(save)
	version, err := r.ReadBits(8)
	if err != nil {
		return nil, err
	}
	if version != saveVersion {
		return nil, fmt.Errorf("demo: unsupported campus save version %d", version)
	}

	w := newEmpty(cfg)
	width, err := r.ReadBits(32)
	if err != nil {
		return nil, err
	}
	height, err := r.ReadBits(32)
	if err != nil {
		return nil, err
	}
	w.cfg.Width = uint32(width)
	w.cfg.Height = uint32(height)

	actorCount, err := r.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	for i := 0; i < actorCount; i++ {
		if err := w.restoreActor(r); err != nil {
			return nil, err
		}
	}

	acctCount, err := r.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	for i := 0; i < acctCount; i++ {
		uid, err := r.ReadSigned(16)
		if err != nil {
			return nil, err
		}
		money, err := r.ReadSvarint()
		if err != nil {
			return nil, err
		}
		rating, err := r.ReadSvarint()
		if err != nil {
			return nil, err
		}
		updateID, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		acct := w.ensureAccount(snapshot.PlayerID(uid))
		acct.money = money
		acct.rating = int16(rating)
		acct.updateID = uint32(updateID)
	}

	for _, uid := range players {
		w.ensureAccount(uid)
	}
	return w, nil
}

func (w *World) restoreActor(r *protocol.BitReader) error {
	key, err := r.ReadString()
	if err != nil {
		return err
	}
	variant, err := r.ReadBits(8)
	if err != nil {
		return err
	}
	first, err := r.ReadString()
	if err != nil {
		return err
	}
	last, err := r.ReadString()
	if err != nil {
		return err
	}
	hasOwner, err := r.ReadBool()
	if err != nil {
		return err
	}
	var owner *snapshot.PlayerID
	if hasOwner {
		uid, err := r.ReadSigned(16)
		if err != nil {
			return err
		}
		id := snapshot.PlayerID(uid)
		owner = &id
	}
	xBits, err := r.ReadBits(32)
	if err != nil {
		return err
	}
	zBits, err := r.ReadBits(32)
	if err != nil {
		return err
	}
	activity, err := r.ReadBits(8)
	if err != nil {
		return err
	}

	e := w.spawn(key, uint8(variant), owner)
	a := w.actors[e]
	a.first, a.last = first, last
	a.x = math.Float32frombits(uint32(xBits))
	a.z = math.Float32frombits(uint32(zBits))
	a.tx, a.tz = a.x, a.z
	a.activity = uint8(activity)
	return nil
}
