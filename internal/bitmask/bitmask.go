// Package bitmask provides a fixed size set of set-once bits.
package bitmask

import "math/bits"

// Set is a fixed size bit set. Bits can be set but never cleared.
type Set struct {
	words []uint64
	n     int
}

// New creates a set of n cleared bits.
func New(n int) *Set {
	return &Set{words: make([]uint64, (n+63)/64), n: n}
}

// Len returns the number of bits.
func (s *Set) Len() int { return s.n }

// Set sets bit i. It reports false if the bit was set already or i is out of range.
func (s *Set) Set(i int) bool {
	if i < 0 || i >= s.n {
		return false
	}
	word, mask := i/64, uint64(1)<<(i%64)
	if s.words[word]&mask != 0 {
		return false
	}
	s.words[word] |= mask
	return true
}

// IsSet reports whether bit i is set.
func (s *Set) IsSet(i int) bool {
	if i < 0 || i >= s.n {
		return false
	}
	return s.words[i/64]&(uint64(1)<<(i%64)) != 0
}

// Count returns the number of set bits.
func (s *Set) Count() int {
	count := 0
	for _, w := range s.words {
		count += bits.OnesCount64(w)
	}
	return count
}
