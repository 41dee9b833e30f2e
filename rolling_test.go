// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blocksync

import (
	"math"
	"testing"

	"github.com/hooklift/assert"
)

func TestWeakSumKnownValue(t *testing.T) {
	// s1 = 394, s2 = 980 for "abcd".
	assert.Equals(t, uint32(64225674), weakSum([]byte("abcd")))
}

func TestRollingMatchesFresh(t *testing.T) {
	const window = 64
	data := srand(1, 4096)

	var r RollingSum
	r.Update(data[:window])
	assert.Equals(t, weakSum(data[:window]), r.Sum32())

	for i := window; i < len(data); i++ {
		err := r.Roll(data[i-window], data[i])
		assert.Ok(t, err)
		if want := weakSum(data[i-window+1 : i+1]); want != r.Sum32() {
			t.Fatalf("rolled sum diverged at offset %d: got %#x, want %#x", i, r.Sum32(), want)
		}
	}
	assert.Equals(t, window, r.Window())
}

func TestRollManyMatchesSingleRolls(t *testing.T) {
	const window = 128
	data := srand(2, 1024)

	var one, many RollingSum
	one.Update(data[:window])
	many.Update(data[:window])

	const k = 300
	for i := 0; i < k; i++ {
		assert.Ok(t, one.Roll(data[i], data[window+i]))
	}
	assert.Ok(t, many.RollMany(data[:k], data[window:window+k]))

	assert.Equals(t, one.Sum32(), many.Sum32())
	assert.Equals(t, weakSum(data[k:window+k]), many.Sum32())
}

func TestRollManyErrorOrdering(t *testing.T) {
	var r RollingSum

	// A length mismatch wins over every other condition.
	assert.Equals(t, ErrMismatchedLengths, r.RollMany([]byte{1, 2}, []byte{3}))

	// Empty slices are a no-op even on an empty window.
	assert.Ok(t, r.RollMany(nil, nil))
	assert.Equals(t, uint32(0), r.Sum32())

	assert.Equals(t, ErrEmptyWindow, r.RollMany([]byte{1}, []byte{2}))
	assert.Equals(t, ErrEmptyWindow, r.Roll(1, 2))
}

func TestRollWindowTooLarge(t *testing.T) {
	huge := uint64(math.MaxUint32) + 1
	r := RollingSum{window: int(huge)}
	assert.Equals(t, ErrWindowTooLarge, r.Roll(0, 0))
}

func TestRollingReset(t *testing.T) {
	var r RollingSum
	r.Update([]byte("abcd"))
	r.Reset()
	assert.Equals(t, uint32(0), r.Sum32())
	assert.Equals(t, 0, r.Window())

	r.Update([]byte("abcd"))
	assert.Equals(t, weakSum([]byte("abcd")), r.Sum32())
}

func BenchmarkRollingSum(b *testing.B) {
	const window = 700
	data := srand(3, 1<<20)
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var r RollingSum
		r.Update(data[:window])
		for j := window; j < len(data); j++ {
			if err := r.Roll(data[j-window], data[j]); err != nil {
				b.Fatal(err)
			}
		}
	}
}
