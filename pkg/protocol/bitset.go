package protocol

import "math/bits"

// BitSet is a fixed-size set of bit flags backed by 64-bit words. The
// transport uses it to track which fragments of a payload have been
// received or acknowledged.
type BitSet struct {
	words []uint64
	size  int
}

// NewBitSet creates a set holding size bits, all clear.
func NewBitSet(size int) *BitSet {
	return &BitSet{
		words: make([]uint64, (size+63)/64),
		size:  size,
	}
}

// Size returns the number of bits the set holds.
func (s *BitSet) Size() int {
	return s.size
}

// Resize grows the set to hold at least size bits. Shrinking is ignored;
// existing bits keep their values.
func (s *BitSet) Resize(size int) {
	if size <= s.size {
		return
	}
	words := (size + 63) / 64
	if words > len(s.words) {
		grown := make([]uint64, words)
		copy(grown, s.words)
		s.words = grown
	}
	s.size = size
}

// Set sets bit i.
func (s *BitSet) Set(i int) {
	s.words[i>>6] |= 1 << (i & 0x3F)
}

// Clear clears bit i.
func (s *BitSet) Clear(i int) {
	s.words[i>>6] &^= 1 << (i & 0x3F)
}

// Get reports whether bit i is set. Bits outside the set are clear.
func (s *BitSet) Get(i int) bool {
	if i < 0 || i >= s.size {
		return false
	}
	return s.words[i>>6]&(1<<(i&0x3F)) != 0
}

// SetAll sets every bit in the set.
func (s *BitSet) SetAll() {
	for i := range s.words {
		s.words[i] = ^uint64(0)
	}
	s.maskTail()
}

// ClearAll clears every bit in the set.
func (s *BitSet) ClearAll() {
	for i := range s.words {
		s.words[i] = 0
	}
}

// IncludesSet reports whether every set bit of other is also set in s.
func (s *BitSet) IncludesSet(other *BitSet) bool {
	for i, w := range other.words {
		if i >= len(s.words) {
			if w != 0 {
				return false
			}
			continue
		}
		if s.words[i]&w != w {
			return false
		}
	}
	return true
}

// Or sets every bit that is set in other.
func (s *BitSet) Or(other *BitSet) {
	n := len(s.words)
	if len(other.words) < n {
		n = len(other.words)
	}
	for i := 0; i < n; i++ {
		s.words[i] |= other.words[i]
	}
	s.maskTail()
}

// And clears every bit that is clear in other.
func (s *BitSet) And(other *BitSet) {
	for i := range s.words {
		if i < len(other.words) {
			s.words[i] &= other.words[i]
		} else {
			s.words[i] = 0
		}
	}
}

// AndNot clears every bit that is set in other.
func (s *BitSet) AndNot(other *BitSet) {
	n := len(s.words)
	if len(other.words) < n {
		n = len(other.words)
	}
	for i := 0; i < n; i++ {
		s.words[i] &^= other.words[i]
	}
}

// Count returns the number of set bits.
func (s *BitSet) Count() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// maskTail clears bits past size in the final word, so bulk operations
// cannot leak phantom bits into Count or IncludesSet.
func (s *BitSet) maskTail() {
	if tail := s.size & 0x3F; tail != 0 && len(s.words) > 0 {
		s.words[len(s.words)-1] &= (1 << tail) - 1
	}
}
