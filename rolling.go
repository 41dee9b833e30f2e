// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blocksync

import (
	"math"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyWindow is returned when a byte is rolled out of a window that
	// holds no bytes.
	ErrEmptyWindow = errors.New("blocksync: rolling window is empty")

	// ErrWindowTooLarge is returned when the window grows past 4 GiB, beyond
	// which the second lane could silently overflow.
	ErrWindowTooLarge = errors.New("blocksync: rolling window exceeds 4 GiB")

	// ErrMismatchedLengths is returned by RollMany when the outgoing and
	// incoming slices differ in length. Callers hitting it have corrupted
	// their window bookkeeping and must not trust the sum.
	ErrMismatchedLengths = errors.New("blocksync: mismatched outgoing and incoming lengths")
)

// RollingSum is the fast checksum slid along the target during delta
// generation. The zero value is a valid empty sum. It is a variant of
// Adler-32 with two 16-bit lanes and no prime modulus, which makes the sum
// cheap to update when the window moves one byte to the right.
//
// A RollingSum is not safe for concurrent use.
type RollingSum struct {
	s1, s2 uint32
	// window is the number of bytes currently summed.
	window int
}

// Update digests p into the sum, growing the window by len(p).
func (r *RollingSum) Update(p []byte) {
	i := 0
	for ; i+4 <= len(p); i += 4 {
		r.s2 += 4*(r.s1+uint32(p[i])) + 3*uint32(p[i+1]) + 2*uint32(p[i+2]) + uint32(p[i+3])
		r.s1 += uint32(p[i]) + uint32(p[i+1]) + uint32(p[i+2]) + uint32(p[i+3])
		r.s1 %= mod
		r.s2 %= mod
	}
	for ; i < len(p); i++ {
		r.s1 += uint32(p[i])
		r.s2 += r.s1
		r.s1 %= mod
		r.s2 %= mod
	}
	r.window += len(p)
}

// Roll slides the window one byte to the right, removing out and adding in.
// The sum afterwards equals a fresh sum over the slid window.
func (r *RollingSum) Roll(out, in byte) error {
	if r.window == 0 {
		return ErrEmptyWindow
	}
	if uint64(r.window) > math.MaxUint32 {
		return ErrWindowTooLarge
	}
	// Wraparound in the product is harmless since 2^16 divides 2^32.
	drop := uint32(r.window) * uint32(out) % mod
	r.s1 = (r.s1 + mod - uint32(out) + uint32(in)) % mod
	r.s2 = (r.s2 + mod - drop + r.s1) % mod
	return nil
}

// RollMany slides the window len(out) bytes to the right. It is equivalent to
// calling Roll once per byte pair. The slices must have equal lengths; empty
// slices are a no-op.
func (r *RollingSum) RollMany(out, in []byte) error {
	if len(out) != len(in) {
		return ErrMismatchedLengths
	}
	for i := range out {
		if err := r.Roll(out[i], in[i]); err != nil {
			return err
		}
	}
	return nil
}

// Sum32 returns the current checksum with the second lane in the high half.
func (r *RollingSum) Sum32() uint32 {
	return r.s2<<16 | r.s1
}

// Window returns the number of bytes currently summed.
func (r *RollingSum) Window() int {
	return r.window
}

// Reset returns the sum to its empty state.
func (r *RollingSum) Reset() {
	r.s1, r.s2, r.window = 0, 0, 0
}

// weakSum returns the rolling checksum of p in one shot.
func weakSum(p []byte) uint32 {
	var r RollingSum
	r.Update(p)
	return r.Sum32()
}
