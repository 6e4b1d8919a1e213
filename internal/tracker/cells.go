package tracker

import "math/bits"

// cellSet is a growable bit-vector of whole-second positions.
type cellSet struct {
	words []uint64
	count int
}

func newCellSet(size int) *cellSet {
	if size < 0 {
		size = 0
	}
	return &cellSet{words: make([]uint64, (size+63)/64)}
}

// Add marks second as visited and reports whether it was new.
func (c *cellSet) Add(second int) bool {
	if second < 0 {
		return false
	}
	word, bit := second/64, uint(second%64)
	if word >= len(c.words) {
		grown := make([]uint64, word+1)
		copy(grown, c.words)
		c.words = grown
	}
	mask := uint64(1) << bit
	if c.words[word]&mask != 0 {
		return false
	}
	c.words[word] |= mask
	c.count++
	return true
}

func (c *cellSet) Has(second int) bool {
	if second < 0 {
		return false
	}
	word := second / 64
	if word >= len(c.words) {
		return false
	}
	return c.words[word]&(uint64(1)<<uint(second%64)) != 0
}

func (c *cellSet) Len() int { return c.count }

// CountBelow returns the number of visited seconds in [0, limit).
func (c *cellSet) CountBelow(limit int) int {
	if limit <= 0 {
		return 0
	}
	full := limit / 64
	n := 0
	for i := 0; i < full && i < len(c.words); i++ {
		n += bits.OnesCount64(c.words[i])
	}
	if rem := uint(limit % 64); rem != 0 && full < len(c.words) {
		n += bits.OnesCount64(c.words[full] & (uint64(1)<<rem - 1))
	}
	return n
}
