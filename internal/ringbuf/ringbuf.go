// Package ringbuf provides a fixed-size ring of price samples that keeps the
// most recent values and overwrites the oldest when full.
//
// A Ring is not safe for concurrent use; the owner serializes access.
package ringbuf

import "signalengine/internal/model"

// Ring holds the latest samples for one symbol.
// Size is a power of two for fast bitwise modulo.
type Ring struct {
	buf     []model.PriceSample
	mask    uint64
	head    uint64 // total pushes
	evicted uint64
}

// New creates a ring buffer. capacity is rounded up to the next power of two.
// Minimum capacity is 2.
func New(capacity int) *Ring {
	size := nextPow2(capacity)
	if size < 2 {
		size = 2
	}
	return &Ring{
		buf:  make([]model.PriceSample, size),
		mask: uint64(size - 1),
	}
}

// Push appends a sample, overwriting the oldest one when the ring is full.
func (r *Ring) Push(s model.PriceSample) {
	if r.head >= uint64(len(r.buf)) {
		r.evicted++
	}
	r.buf[r.head&r.mask] = s
	r.head++
}

// Last returns the newest sample.
func (r *Ring) Last() (model.PriceSample, bool) {
	if r.head == 0 {
		return model.PriceSample{}, false
	}
	return r.buf[(r.head-1)&r.mask], true
}

// Snapshot copies up to n of the newest samples, oldest first.
// n <= 0 copies everything held.
func (r *Ring) Snapshot(n int) []model.PriceSample {
	size := r.Len()
	if n <= 0 || n > size {
		n = size
	}
	out := make([]model.PriceSample, n)
	start := r.head - uint64(n)
	for i := range out {
		out[i] = r.buf[(start+uint64(i))&r.mask]
	}
	return out
}

// Len returns the number of samples held.
func (r *Ring) Len() int {
	if r.head < uint64(len(r.buf)) {
		return int(r.head)
	}
	return len(r.buf)
}

// Cap returns the buffer capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Evicted returns the number of samples overwritten so far.
func (r *Ring) Evicted() uint64 {
	return r.evicted
}

// Reset empties the ring without releasing its storage.
func (r *Ring) Reset() {
	r.head = 0
	r.evicted = 0
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
