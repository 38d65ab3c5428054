package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/gridwire-go/gridwire/pkg/protocol"
)

// ErrMalformedFrame reports an entity frame whose bits do not decode.
var ErrMalformedFrame = errors.New("snapshot: malformed entity frame")

// Entity and player state use a delta encoding against a base the peer
// has acknowledged:
//
//   - With a base, every top-level field starts with a changed bit. A
//     clear bit carries the base value forward with no further bits; a
//     set bit is followed by the field's encoding. Without a base all
//     fields are written in full and no changed bits are present.
//   - Optional fields are a presence bit followed by the value.
//   - Floats use a rung ladder: a 3-bit selector picks one of four
//     signed fixed-point widths or, as the last resort, the raw 32 bits
//     of the float. Rung widths count the sign bit. Travel time keeps
//     1/32 precision; positions keep 1/128 and encode the difference
//     from the base value.
//   - Facing angles are a fixed 10-bit signed value at 1/32 radian.
//   - EntityInfo changes atomically: one changed bit covers the key,
//     variant and name together.
const (
	timeFrac  = 5
	posFrac   = 7
	angleFrac = 5
	angleBits = 10

	rungFull = 4
)

var (
	timeRungs = [4]uint{9, 11, 15, 21}
	posRungs  = [4]uint{11, 13, 17, 23}
)

func writeQuantized(w *protocol.BitWriter, v float32, rungs [4]uint, frac uint) {
	q := int64(math.Round(float64(v) * float64(int64(1)<<frac)))
	for i, width := range rungs {
		lo := -(int64(1) << (width - 1))
		hi := int64(1)<<(width-1) - 1
		if q >= lo && q <= hi {
			w.WriteBits(uint64(i), 3)
			w.WriteSigned(q, width)
			return
		}
	}
	w.WriteBits(rungFull, 3)
	w.WriteBits(uint64(math.Float32bits(v)), 32)
}

func readQuantized(r *protocol.BitReader, rungs [4]uint, frac uint) (float32, error) {
	sel, err := r.ReadBits(3)
	if err != nil {
		return 0, err
	}
	if sel == rungFull {
		raw, err := r.ReadBits(32)
		if err != nil {
			return 0, err
		}
		return math.Float32frombits(uint32(raw)), nil
	}
	if sel > rungFull {
		return 0, fmt.Errorf("%w: rung selector %d", ErrMalformedFrame, sel)
	}
	q, err := r.ReadSigned(rungs[sel])
	if err != nil {
		return 0, err
	}
	return float32(q) / float32(int64(1)<<frac), nil
}

func writeAngle(w *protocol.BitWriter, radians float32) {
	w.WriteSigned(int64(math.Round(float64(radians)*(1<<angleFrac))), angleBits)
}

func readAngle(r *protocol.BitReader) (float32, error) {
	v, err := r.ReadSigned(angleBits)
	if err != nil {
		return 0, err
	}
	return float32(v) / (1 << angleFrac), nil
}

func writeOptAngle(w *protocol.BitWriter, v *float32) {
	w.WriteBool(v != nil)
	if v != nil {
		writeAngle(w, *v)
	}
}

func readOptAngle(r *protocol.BitReader) (*float32, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	v, err := readAngle(r)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func writeOptID[T ~int16](w *protocol.BitWriter, v *T) {
	w.WriteBool(v != nil)
	if v != nil {
		w.WriteSigned(int64(*v), 16)
	}
}

func readOptID[T ~int16](r *protocol.BitReader) (*T, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	v, err := r.ReadSigned(16)
	if err != nil {
		return nil, err
	}
	id := T(v)
	return &id, nil
}

func eqOptID[T ~int16](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqOptAngle(a, b *float32) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqOptIdle(a, b *IdleChoice) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// eqBytes distinguishes an absent blob from an empty one.
func eqBytes(a, b []byte) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return bytes.Equal(a, b)
}

func writeOptBytes(w *protocol.BitWriter, data []byte) {
	w.WriteBool(data != nil)
	if data != nil {
		w.WriteLenBytes(data)
	}
}

func readOptBytes(r *protocol.BitReader) ([]byte, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	return r.ReadLenBytes()
}

func writeOptIdle(w *protocol.BitWriter, idle *IdleChoice) {
	w.WriteBool(idle != nil)
	if idle != nil {
		w.WriteUvarint(uint64(idle.Idx))
	}
}

func readOptIdle(r *protocol.BitReader) (*IdleChoice, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	v, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if v > math.MaxUint16 {
		return nil, fmt.Errorf("%w: idle index %d", ErrMalformedFrame, v)
	}
	return &IdleChoice{Idx: uint16(v)}, nil
}

func writeEmotes(w *protocol.BitWriter, emotes []EmoteEntry) {
	w.WriteUvarint(uint64(len(emotes)))
	for _, e := range emotes {
		w.WriteBits(uint64(e.Slot), 8)
		w.WriteBits(uint64(e.Kind), 8)
	}
}

func readEmotes(r *protocol.BitReader) ([]EmoteEntry, error) {
	n, err := r.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]EmoteEntry, n)
	for i := range out {
		slot, err := r.ReadBits(8)
		if err != nil {
			return nil, err
		}
		kind, err := r.ReadBits(8)
		if err != nil {
			return nil, err
		}
		out[i] = EmoteEntry{Slot: uint8(slot), Kind: EmoteKind(kind)}
	}
	return out, nil
}

func writeTints(w *protocol.BitWriter, tints []Tint) {
	w.WriteUvarint(uint64(len(tints)))
	for _, t := range tints {
		w.WriteBits(uint64(t.R), 8)
		w.WriteBits(uint64(t.G), 8)
		w.WriteBits(uint64(t.B), 8)
		w.WriteBits(uint64(t.A), 8)
	}
}

func readTints(r *protocol.BitReader) ([]Tint, error) {
	n, err := r.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]Tint, n)
	for i := range out {
		var vals [4]uint8
		for j := range vals {
			v, err := r.ReadBits(8)
			if err != nil {
				return nil, err
			}
			vals[j] = uint8(v)
		}
		out[i] = Tint{R: vals[0], G: vals[1], B: vals[2], A: vals[3]}
	}
	return out, nil
}

func encodeInfo(w *protocol.BitWriter, info *EntityInfo) {
	w.WriteString(info.Key)
	w.WriteBits(uint64(info.Variant), 8)
	w.WriteString(info.FirstName)
	w.WriteString(info.LastName)
}

func decodeInfo(r *protocol.BitReader) (EntityInfo, error) {
	var info EntityInfo
	var err error
	if info.Key, err = r.ReadString(); err != nil {
		return info, err
	}
	variant, err := r.ReadBits(8)
	if err != nil {
		return info, err
	}
	info.Variant = uint8(variant)
	if info.FirstName, err = r.ReadString(); err != nil {
		return info, err
	}
	if info.LastName, err = r.ReadString(); err != nil {
		return info, err
	}
	return info, nil
}

func encodeTarget(w *protocol.BitWriter, t, base *Target) {
	if base == nil {
		writeQuantized(w, t.Time, timeRungs, timeFrac)
		writeQuantized(w, t.X, posRungs, posFrac)
		writeQuantized(w, t.Z, posRungs, posFrac)
		writeOptAngle(w, t.Facing)
		return
	}

	changed := t.Time != base.Time
	w.WriteBool(changed)
	if changed {
		writeQuantized(w, t.Time, timeRungs, timeFrac)
	}

	changed = t.X != base.X
	w.WriteBool(changed)
	if changed {
		writeQuantized(w, t.X-base.X, posRungs, posFrac)
	}

	changed = t.Z != base.Z
	w.WriteBool(changed)
	if changed {
		writeQuantized(w, t.Z-base.Z, posRungs, posFrac)
	}

	changed = !eqOptAngle(t.Facing, base.Facing)
	w.WriteBool(changed)
	if changed {
		writeOptAngle(w, t.Facing)
	}
}

func decodeTarget(r *protocol.BitReader, base *Target) (Target, error) {
	if base == nil {
		var t Target
		var err error
		if t.Time, err = readQuantized(r, timeRungs, timeFrac); err != nil {
			return t, err
		}
		if t.X, err = readQuantized(r, posRungs, posFrac); err != nil {
			return t, err
		}
		if t.Z, err = readQuantized(r, posRungs, posFrac); err != nil {
			return t, err
		}
		if t.Facing, err = readOptAngle(r); err != nil {
			return t, err
		}
		return t, nil
	}

	t := *base
	changed, err := r.ReadBool()
	if err != nil {
		return t, err
	}
	if changed {
		if t.Time, err = readQuantized(r, timeRungs, timeFrac); err != nil {
			return t, err
		}
	}

	if changed, err = r.ReadBool(); err != nil {
		return t, err
	}
	if changed {
		dx, err := readQuantized(r, posRungs, posFrac)
		if err != nil {
			return t, err
		}
		t.X = base.X + dx
	}

	if changed, err = r.ReadBool(); err != nil {
		return t, err
	}
	if changed {
		dz, err := readQuantized(r, posRungs, posFrac)
		if err != nil {
			return t, err
		}
		t.Z = base.Z + dz
	}

	if changed, err = r.ReadBool(); err != nil {
		return t, err
	}
	if changed {
		if t.Facing, err = readOptAngle(r); err != nil {
			return t, err
		}
	}
	return t, nil
}

func encodeEntity(w *protocol.BitWriter, st, base *EntityState) {
	if base == nil {
		encodeInfo(w, &st.Info)
		writeOptID(w, st.Owner)
		encodeTarget(w, &st.Target, nil)
		writeOptID(w, st.Selected)
		writeOptID(w, st.Room)
		writeOptBytes(w, st.Data)
		writeOptIdle(w, st.Idle)
		writeEmotes(w, st.Emotes)
		writeTints(w, st.Tints)
		return
	}

	changed := st.Info != base.Info
	w.WriteBool(changed)
	if changed {
		encodeInfo(w, &st.Info)
	}

	changed = !eqOptID(st.Owner, base.Owner)
	w.WriteBool(changed)
	if changed {
		writeOptID(w, st.Owner)
	}

	encodeTarget(w, &st.Target, &base.Target)

	changed = !eqOptID(st.Selected, base.Selected)
	w.WriteBool(changed)
	if changed {
		writeOptID(w, st.Selected)
	}

	changed = !eqOptID(st.Room, base.Room)
	w.WriteBool(changed)
	if changed {
		writeOptID(w, st.Room)
	}

	changed = !eqBytes(st.Data, base.Data)
	w.WriteBool(changed)
	if changed {
		writeOptBytes(w, st.Data)
	}

	changed = !eqOptIdle(st.Idle, base.Idle)
	w.WriteBool(changed)
	if changed {
		writeOptIdle(w, st.Idle)
	}

	changed = !slices.Equal(st.Emotes, base.Emotes)
	w.WriteBool(changed)
	if changed {
		writeEmotes(w, st.Emotes)
	}

	changed = !slices.Equal(st.Tints, base.Tints)
	w.WriteBool(changed)
	if changed {
		writeTints(w, st.Tints)
	}
}

func decodeEntity(r *protocol.BitReader, base *EntityState) (EntityState, error) {
	if base == nil {
		var st EntityState
		var err error
		if st.Info, err = decodeInfo(r); err != nil {
			return st, err
		}
		if st.Owner, err = readOptID[PlayerID](r); err != nil {
			return st, err
		}
		if st.Target, err = decodeTarget(r, nil); err != nil {
			return st, err
		}
		if st.Selected, err = readOptID[PlayerID](r); err != nil {
			return st, err
		}
		if st.Room, err = readOptID[RoomID](r); err != nil {
			return st, err
		}
		if st.Data, err = readOptBytes(r); err != nil {
			return st, err
		}
		if st.Idle, err = readOptIdle(r); err != nil {
			return st, err
		}
		if st.Emotes, err = readEmotes(r); err != nil {
			return st, err
		}
		if st.Tints, err = readTints(r); err != nil {
			return st, err
		}
		return st, nil
	}

	st := *base
	changed, err := r.ReadBool()
	if err != nil {
		return st, err
	}
	if changed {
		if st.Info, err = decodeInfo(r); err != nil {
			return st, err
		}
	}

	if changed, err = r.ReadBool(); err != nil {
		return st, err
	}
	if changed {
		if st.Owner, err = readOptID[PlayerID](r); err != nil {
			return st, err
		}
	}

	if st.Target, err = decodeTarget(r, &base.Target); err != nil {
		return st, err
	}

	if changed, err = r.ReadBool(); err != nil {
		return st, err
	}
	if changed {
		if st.Selected, err = readOptID[PlayerID](r); err != nil {
			return st, err
		}
	}

	if changed, err = r.ReadBool(); err != nil {
		return st, err
	}
	if changed {
		if st.Room, err = readOptID[RoomID](r); err != nil {
			return st, err
		}
	}

	if changed, err = r.ReadBool(); err != nil {
		return st, err
	}
	if changed {
		if st.Data, err = readOptBytes(r); err != nil {
			return st, err
		}
	}

	if changed, err = r.ReadBool(); err != nil {
		return st, err
	}
	if changed {
		if st.Idle, err = readOptIdle(r); err != nil {
			return st, err
		}
	}

	if changed, err = r.ReadBool(); err != nil {
		return st, err
	}
	if changed {
		if st.Emotes, err = readEmotes(r); err != nil {
			return st, err
		}
	}

	if changed, err = r.ReadBool(); err != nil {
		return st, err
	}
	if changed {
		if st.Tints, err = readTints(r); err != nil {
			return st, err
		}
	}
	return st, nil
}

// Player state shares the changed-bit scheme. The day tick and day count
// encode as differences from the base; money and rating are written in
// full when they change. PlayerConfig currently has no wire fields.
func encodePlayer(w *protocol.BitWriter, st, base *PlayerState) {
	if base == nil {
		w.WriteSvarint(int64(st.DayTick.Tick))
		w.WriteUvarint(uint64(st.DayTick.Day))
		w.WriteUvarint(uint64(st.DayTick.Time))
		w.WriteSvarint(st.Money)
		w.WriteSigned(int64(st.Rating), 16)
		return
	}

	changed := st.DayTick.Tick != base.DayTick.Tick
	w.WriteBool(changed)
	if changed {
		w.WriteSvarint(int64(st.DayTick.Tick) - int64(base.DayTick.Tick))
	}

	changed = st.DayTick.Day != base.DayTick.Day
	w.WriteBool(changed)
	if changed {
		w.WriteSvarint(int64(st.DayTick.Day) - int64(base.DayTick.Day))
	}

	changed = st.DayTick.Time != base.DayTick.Time
	w.WriteBool(changed)
	if changed {
		w.WriteUvarint(uint64(st.DayTick.Time))
	}

	changed = st.Money != base.Money
	w.WriteBool(changed)
	if changed {
		w.WriteSvarint(st.Money)
	}

	changed = st.Rating != base.Rating
	w.WriteBool(changed)
	if changed {
		w.WriteSigned(int64(st.Rating), 16)
	}
}

func decodePlayer(r *protocol.BitReader, base *PlayerState) (PlayerState, error) {
	if base == nil {
		var st PlayerState
		tick, err := r.ReadSvarint()
		if err != nil {
			return st, err
		}
		st.DayTick.Tick = int32(tick)
		day, err := r.ReadUvarint()
		if err != nil {
			return st, err
		}
		st.DayTick.Day = uint32(day)
		tm, err := r.ReadUvarint()
		if err != nil {
			return st, err
		}
		st.DayTick.Time = uint32(tm)
		if st.Money, err = r.ReadSvarint(); err != nil {
			return st, err
		}
		rating, err := r.ReadSigned(16)
		if err != nil {
			return st, err
		}
		st.Rating = int16(rating)
		return st, nil
	}

	st := *base
	changed, err := r.ReadBool()
	if err != nil {
		return st, err
	}
	if changed {
		d, err := r.ReadSvarint()
		if err != nil {
			return st, err
		}
		st.DayTick.Tick = int32(int64(base.DayTick.Tick) + d)
	}

	if changed, err = r.ReadBool(); err != nil {
		return st, err
	}
	if changed {
		d, err := r.ReadSvarint()
		if err != nil {
			return st, err
		}
		st.DayTick.Day = uint32(int64(base.DayTick.Day) + d)
	}

	if changed, err = r.ReadBool(); err != nil {
		return st, err
	}
	if changed {
		tm, err := r.ReadUvarint()
		if err != nil {
			return st, err
		}
		st.DayTick.Time = uint32(tm)
	}

	if changed, err = r.ReadBool(); err != nil {
		return st, err
	}
	if changed {
		if st.Money, err = r.ReadSvarint(); err != nil {
			return st, err
		}
	}

	if changed, err = r.ReadBool(); err != nil {
		return st, err
	}
	if changed {
		rating, err := r.ReadSigned(16)
		if err != nil {
			return st, err
		}
		st.Rating = int16(rating)
	}
	return st, nil
}
